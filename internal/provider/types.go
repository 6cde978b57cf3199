package provider

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// CompletionRequest is a single prompt sent to a model collaborator.
type CompletionRequest struct {
	// System is the system prompt, empty for none.
	System string

	// Prompt is the user content.
	Prompt string

	// Images carries raw screenshot bytes for multimodal requests.
	Images [][]byte

	// MaxTokens bounds the response length, 0 for the client default.
	MaxTokens int

	Temperature float64
}

// CompletionResponse is a model collaborator's reply.
type CompletionResponse struct {
	Content    string
	Model      string
	TokensUsed int
	Latency    time.Duration
}

// Target is one UI element candidate returned by the vision model.
// Coordinates are absolute pixels in the analyzed screenshot.
type Target struct {
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// targetsEnvelope is the vision model's reply document.
type targetsEnvelope struct {
	Targets []Target `json:"targets"`
	Notes   string   `json:"notes,omitempty"`
}

// ParseCommandArray extracts a JSON array-of-arrays of command argv
// from model output. Models often wrap JSON in prose, so after a
// direct parse fails the span from the first '[' to the last ']' is
// tried before giving up.
func ParseCommandArray(content string) ([][]string, error) {
	content = strings.TrimSpace(content)

	if cmds, err := decodeCommandArray(content); err == nil {
		return cmds, nil
	}

	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start != -1 && end > start {
		if cmds, err := decodeCommandArray(content[start : end+1]); err == nil {
			return cmds, nil
		}
	}
	return nil, fmt.Errorf("no JSON array of command sequences in output")
}

func decodeCommandArray(s string) ([][]string, error) {
	var cmds [][]string
	if err := json.Unmarshal([]byte(s), &cmds); err != nil {
		return nil, err
	}
	out := make([][]string, 0, len(cmds))
	for _, argv := range cmds {
		cleaned := make([]string, 0, len(argv))
		for _, tok := range argv {
			if tok = strings.TrimSpace(tok); tok != "" {
				cleaned = append(cleaned, tok)
			}
		}
		if len(cleaned) > 0 {
			out = append(out, cleaned)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("command array is empty")
	}
	return out, nil
}

// ParseTargets extracts the vision model's target list. The substring
// from the first '{' to the last '}' is tried when the direct parse
// fails. An empty target list is a valid answer meaning "nothing
// found with confidence".
func ParseTargets(content string) ([]Target, error) {
	content = strings.TrimSpace(content)

	var env targetsEnvelope
	if err := json.Unmarshal([]byte(content), &env); err == nil {
		return validTargets(env.Targets), nil
	}

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start != -1 && end > start {
		if err := json.Unmarshal([]byte(content[start:end+1]), &env); err == nil {
			return validTargets(env.Targets), nil
		}
	}
	return nil, fmt.Errorf("no JSON target object in output")
}

// validTargets drops entries with negative coordinates or confidence
// outside [0, 1]. A sloppy model costs a retry, not a bad click.
func validTargets(targets []Target) []Target {
	out := make([]Target, 0, len(targets))
	for _, t := range targets {
		if t.X < 0 || t.Y < 0 {
			continue
		}
		if t.Confidence < 0 || t.Confidence > 1 {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Best returns the highest-confidence target, false when none exist.
func Best(targets []Target) (Target, bool) {
	if len(targets) == 0 {
		return Target{}, false
	}
	best := targets[0]
	for _, t := range targets[1:] {
		if t.Confidence > best.Confidence {
			best = t
		}
	}
	return best, true
}
