// Package tui provides the interactive terminal session: an utterance
// prompt, a live task board fed by the event stream, and a confirmation
// modal for actions the policy gate parked.
package tui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/voxop/voxop/internal/exec"
	"github.com/voxop/voxop/internal/telemetry"
)

// pollInterval is how often the board re-reads history and pending
// confirmations while a run is active.
const pollInterval = 150 * time.Millisecond

// transcriptLines caps the visible tail of the event pane.
const transcriptLines = 12

// Session is the slice of the orchestration core the TUI drives.
type Session interface {
	StartUtterance(ctx context.Context, text string) (*exec.Report, error)
	ApproveConfirmation(taskID string) bool
	DenyConfirmation(taskID string) bool
	PendingConfirmations() []exec.ConfirmationRequest
	AbortAll()
	History() []telemetry.Event
}

// ViewType represents different TUI views
type ViewType int

const (
	ViewPrompt ViewType = iota
	ViewRun
	ViewConfirm
	ViewHelp
)

// Model represents the main TUI model
type Model struct {
	session Session
	styles  Styles

	view     ViewType
	lastView ViewType

	input      textinput.Model
	spinner    spinner.Model
	transcript viewport.Model

	width  int
	height int
	ready  bool

	running   bool
	utterance string
	history   []telemetry.Event
	pending   []exec.ConfirmationRequest
	report    *exec.Report
	runErr    error
	quitting  bool
}

// Styles contains lipgloss styles for the TUI
type Styles struct {
	Title    lipgloss.Style
	Subtitle lipgloss.Style
	Task     lipgloss.Style
	Running  lipgloss.Style
	Success  lipgloss.Style
	Error    lipgloss.Style
	Warning  lipgloss.Style
	Muted    lipgloss.Style
	Help     lipgloss.Style
	Modal    lipgloss.Style
	Payload  lipgloss.Style
}

// DefaultStyles returns the default styling
func DefaultStyles() Styles {
	return Styles{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("63")). // Purple
			MarginBottom(1),
		Subtitle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99")), // Light purple
		Task: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")), // Light gray
		Running: lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")), // Orange
		Success: lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")), // Green
		Error: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")), // Red
		Warning: lipgloss.NewStyle().
			Foreground(lipgloss.Color("226")), // Yellow
		Muted: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")), // Gray
		Help: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")). // Gray
			MarginTop(1),
		Modal: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("214")). // Orange
			Padding(1, 2),
		Payload: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("231")). // White
			Background(lipgloss.Color("52")),  // Dark red
	}
}

// Messages for TUI updates
type tickMsg time.Time

type runFinishedMsg struct {
	report *exec.Report
	err    error
}

// NewModel creates a new TUI model bound to a session core.
func NewModel(sess Session) Model {
	ti := textinput.New()
	ti.Placeholder = "open the terminal and also check my email"
	ti.Prompt = "❯ "
	ti.CharLimit = 256
	ti.Width = 64
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("214")) // Orange

	return Model{
		session: sess,
		styles:  DefaultStyles(),
		view:    ViewPrompt,
		input:   ti,
		spinner: sp,
	}
}

// Init initializes the TUI model
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles TUI messages and updates
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if !m.ready {
			m.transcript = viewport.New(msg.Width-4, transcriptLines)
			m.ready = true
		} else {
			m.transcript.Width = msg.Width - 4
		}
		m = m.refresh()
		return m, nil

	case tickMsg:
		m = m.refresh()
		if len(m.pending) > 0 && m.view == ViewRun {
			m.view = ViewConfirm
		}
		if len(m.pending) == 0 && m.view == ViewConfirm {
			m.view = ViewRun
		}
		if m.running {
			return m, tickCmd()
		}
		return m, nil

	case runFinishedMsg:
		m.running = false
		m.report = msg.report
		m.runErr = msg.err
		m = m.refresh()
		if m.view == ViewConfirm {
			m.view = ViewRun
		}
		return m, nil

	case spinner.TickMsg:
		if !m.running {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	if m.view == ViewPrompt {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

// handleKeyPress processes keyboard input
func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// ctrl+c always quits, aborting any active run first.
	if msg.String() == "ctrl+c" {
		if m.running {
			m.session.AbortAll()
		}
		m.quitting = true
		return m, tea.Quit
	}

	switch m.view {
	case ViewPrompt:
		return m.handlePromptKeys(msg)
	case ViewRun:
		return m.handleRunKeys(msg)
	case ViewConfirm:
		return m.handleConfirmKeys(msg)
	case ViewHelp:
		switch msg.String() {
		case "esc", "q", "?":
			m.view = m.lastView
		}
		return m, nil
	}
	return m, nil
}

func (m Model) handlePromptKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		text := strings.TrimSpace(m.input.Value())
		if text == "" || m.running {
			return m, nil
		}
		m.utterance = text
		m.input.Reset()
		m.view = ViewRun
		m.running = true
		m.report = nil
		m.runErr = nil
		return m, tea.Batch(m.spinner.Tick, startRun(m.session, text), tickCmd())
	case "esc":
		m.quitting = true
		return m, tea.Quit
	case "ctrl+h":
		m.lastView = m.view
		m.view = ViewHelp
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleRunKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		if m.running {
			m.session.AbortAll()
			return m, nil
		}
		m.view = ViewPrompt
		m.input.Focus()
		return m, textinput.Blink
	case "enter":
		if !m.running {
			m.view = ViewPrompt
			m.input.Focus()
			return m, textinput.Blink
		}
	case "q":
		if !m.running {
			m.quitting = true
			return m, tea.Quit
		}
	case "?":
		m.lastView = m.view
		m.view = ViewHelp
	case "up", "down", "k", "j", "pgup", "pgdown":
		var cmd tea.Cmd
		m.transcript, cmd = m.transcript.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if len(m.pending) == 0 {
		m.view = ViewRun
		return m, nil
	}
	req := m.pending[0]
	switch msg.String() {
	case "y", "enter":
		m.session.ApproveConfirmation(req.TaskID)
		m.pending = m.pending[1:]
	case "n":
		m.session.DenyConfirmation(req.TaskID)
		m.pending = m.pending[1:]
	case "esc":
		// Esc abandons the whole run, not just the prompt.
		m.session.AbortAll()
		m.pending = nil
	}
	if len(m.pending) == 0 {
		m.view = ViewRun
	}
	return m, nil
}

// refresh re-reads session state the board renders from.
func (m Model) refresh() Model {
	m.history = m.session.History()
	m.pending = m.session.PendingConfirmations()
	if m.ready {
		m.transcript.SetContent(m.renderTranscript())
		m.transcript.GotoBottom()
	}
	return m
}

func startRun(sess Session, text string) tea.Cmd {
	return func() tea.Msg {
		rep, err := sess.StartUtterance(context.Background(), text)
		return runFinishedMsg{report: rep, err: err}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Run drives the interactive terminal session until the user quits.
func Run(sess Session) error {
	p := tea.NewProgram(NewModel(sess), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
