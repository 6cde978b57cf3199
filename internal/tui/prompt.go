package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/voxop/voxop/internal/exec"
)

// ConfirmRequest prompts for a parked task on the plain CLI path, where
// the full-screen board is not running.
func ConfirmRequest(req exec.ConfirmationRequest) (bool, error) {
	var approved bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Allow %s?", req.Capability)).
				Description(req.Reason+"\n\n  "+req.Payload).
				Affirmative("Approve").
				Negative("Deny").
				Value(&approved),
		),
	)
	if err := form.Run(); err != nil {
		return false, err
	}
	return approved, nil
}

// PromptForUtterance asks for a request when the run command got none.
func PromptForUtterance() (string, error) {
	var text string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("What should I do?").
				Placeholder("open the terminal and also check my email").
				Value(&text),
		),
	)
	if err := form.Run(); err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}
