package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/muesli/reflow/wordwrap"

	"github.com/voxop/voxop/internal/graph"
	"github.com/voxop/voxop/internal/telemetry"
)

// View renders the TUI
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "starting..."
	}

	switch m.view {
	case ViewPrompt:
		return m.renderPromptView()
	case ViewRun:
		return m.renderRunView()
	case ViewConfirm:
		return m.renderConfirmView()
	case ViewHelp:
		return m.renderHelpView()
	default:
		return "unknown view"
	}
}

// renderPromptView renders the utterance entry screen
func (m Model) renderPromptView() string {
	var b strings.Builder

	b.WriteString(m.styles.Title.Render("🎙 voxop"))
	b.WriteString("\n")
	b.WriteString(m.styles.Muted.Render("Type what you would say. The request becomes a task graph and runs."))
	b.WriteString("\n\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")

	if m.report != nil {
		b.WriteString("\n")
		b.WriteString(m.styles.Subtitle.Render("Last run"))
		b.WriteString("\n")
		b.WriteString(m.renderSummaryLine())
		b.WriteString("\n")
	}
	if m.runErr != nil {
		b.WriteString("\n")
		b.WriteString(m.styles.Error.Render("✗ " + m.runErr.Error()))
		b.WriteString("\n")
	}

	help := []string{"enter run", "esc quit", "ctrl+h help"}
	b.WriteString(m.styles.Help.Render(strings.Join(help, " • ")))
	return b.String()
}

// renderRunView renders the live task board and event transcript
func (m Model) renderRunView() string {
	var b strings.Builder

	if m.running {
		b.WriteString(m.styles.Title.Render(m.spinner.View() + " Running"))
	} else {
		b.WriteString(m.styles.Title.Render("🏁 Finished"))
	}
	b.WriteString("\n")
	b.WriteString(m.styles.Muted.Render("\"" + m.utterance + "\""))
	b.WriteString("\n\n")

	b.WriteString(m.styles.Subtitle.Render("Tasks"))
	b.WriteString("\n")
	rows := m.taskRows()
	if len(rows) == 0 {
		b.WriteString(m.styles.Muted.Render("  waiting for the graph..."))
		b.WriteString("\n")
	}
	for _, row := range rows {
		b.WriteString(m.renderTaskRow(row))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.styles.Subtitle.Render("Events"))
	b.WriteString("\n")
	b.WriteString(m.transcript.View())
	b.WriteString("\n")

	if !m.running {
		b.WriteString("\n")
		b.WriteString(m.renderSummaryLine())
		b.WriteString("\n")
	}

	var help []string
	if m.running {
		help = []string{"esc abort", "↑/↓ scroll", "? help"}
	} else {
		help = []string{"enter new request", "q quit", "↑/↓ scroll", "? help"}
	}
	b.WriteString(m.styles.Help.Render(strings.Join(help, " • ")))
	return b.String()
}

// renderConfirmView renders the approval modal for a parked task
func (m Model) renderConfirmView() string {
	if len(m.pending) == 0 {
		return m.renderRunView()
	}
	req := m.pending[0]

	var b strings.Builder
	b.WriteString(m.styles.Warning.Render("⚠️  Confirmation required"))
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("Task %s wants to use %s.\n", req.TaskID, m.styles.Subtitle.Render(string(req.Capability))))
	if req.Reason != "" {
		b.WriteString(m.styles.Muted.Render(req.Reason))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(m.styles.Payload.Render(" " + req.Payload + " "))
	b.WriteString("\n\n")
	if n := len(m.pending) - 1; n > 0 {
		b.WriteString(m.styles.Muted.Render(fmt.Sprintf("%d more waiting", n)))
		b.WriteString("\n")
	}
	b.WriteString(m.styles.Help.Render(strings.Join([]string{"y/enter approve", "n deny", "esc abort run"}, " • ")))

	return m.styles.Modal.Render(b.String())
}

// renderHelpView renders the key reference
func (m Model) renderHelpView() string {
	var b strings.Builder
	b.WriteString(m.styles.Title.Render("❓ Help"))
	b.WriteString("\n")

	keys := [][2]string{
		{"enter", "run the typed request / approve a confirmation"},
		{"y", "approve a confirmation"},
		{"n", "deny a confirmation"},
		{"esc", "abort the active run (quit from the prompt)"},
		{"↑/↓", "scroll the event transcript"},
		{"q", "quit when idle"},
		{"ctrl+c", "abort and quit"},
	}
	for _, k := range keys {
		b.WriteString(fmt.Sprintf("  %s  %s\n", m.styles.Subtitle.Render(fmt.Sprintf("%-7s", k[0])), k[1]))
	}

	b.WriteString(m.styles.Help.Render("esc back"))
	return b.String()
}

// taskRow is one line of the task board, folded from task.state events.
type taskRow struct {
	id     string
	state  string
	detail string
	err    string
}

// taskRows folds the event history into one row per task, ordered by
// first appearance so the board matches dispatch order.
func (m Model) taskRows() []taskRow {
	index := make(map[string]int)
	rows := make([]taskRow, 0, 8)
	for _, e := range m.history {
		if e.Kind != telemetry.KindTaskState || e.TaskID == "" {
			continue
		}
		i, seen := index[e.TaskID]
		if !seen {
			index[e.TaskID] = len(rows)
			rows = append(rows, taskRow{id: e.TaskID})
			i = len(rows) - 1
		}
		rows[i].state = e.State
		rows[i].detail = e.Detail
		if e.Err != "" {
			rows[i].err = e.Err
		}
	}
	return rows
}

func (m Model) renderTaskRow(row taskRow) string {
	icon := m.stateIcon(row.state)
	line := fmt.Sprintf("  %s %s %s", icon, row.id, m.styles.Muted.Render(row.state))
	if row.err != "" && graph.State(row.state).Terminal() {
		line += " " + m.styles.Error.Render(row.err)
	} else if row.detail != "" {
		line += " " + m.styles.Muted.Render(row.detail)
	}
	return line
}

// stateIcon returns the board glyph for a task state.
func (m Model) stateIcon(state string) string {
	switch graph.State(state) {
	case graph.StateSucceeded:
		return m.styles.Success.Render("✓")
	case graph.StateFailed:
		return m.styles.Error.Render("✗")
	case graph.StateAborted:
		return m.styles.Error.Render("⊘")
	case graph.StateRunning, graph.StateVerifying:
		return m.styles.Running.Render("⟳")
	case graph.StateAwaitingConfirmation:
		return m.styles.Warning.Render("⏸")
	default:
		return m.styles.Muted.Render("○")
	}
}

// renderTranscript formats the event tail for the viewport.
func (m Model) renderTranscript() string {
	if len(m.history) == 0 {
		return m.styles.Muted.Render("no events yet")
	}
	start := 0
	if len(m.history) > transcriptLines*4 {
		start = len(m.history) - transcriptLines*4
	}
	width := m.transcript.Width
	if width <= 0 {
		width = 80
	}
	var lines []string
	for _, e := range m.history[start:] {
		lines = append(lines, wordwrap.String(m.formatEvent(e), width))
	}
	return strings.Join(lines, "\n")
}

// formatEvent renders one history entry as a transcript line.
func (m Model) formatEvent(e telemetry.Event) string {
	ts := m.styles.Muted.Render(e.Time.Local().Format("15:04:05"))
	kind := m.styles.Subtitle.Render(string(e.Kind))
	parts := []string{ts, kind}
	if e.TaskID != "" {
		parts = append(parts, e.TaskID)
	}
	if e.State != "" {
		parts = append(parts, e.State)
	}
	if e.Detail != "" {
		parts = append(parts, e.Detail)
	}
	if e.Err != "" {
		parts = append(parts, m.styles.Error.Render(e.Err))
	}
	return strings.Join(parts, " ")
}

// renderSummaryLine renders the tally for the most recent run.
func (m Model) renderSummaryLine() string {
	if m.report == nil {
		if m.runErr != nil {
			return m.styles.Error.Render("✗ " + m.runErr.Error())
		}
		return m.styles.Muted.Render("no runs yet")
	}
	rep := m.report
	parts := []string{
		m.styles.Success.Render(fmt.Sprintf("%d succeeded", rep.Succeeded)),
	}
	if rep.Failed > 0 {
		parts = append(parts, m.styles.Error.Render(fmt.Sprintf("%d failed", rep.Failed)))
	}
	if rep.Aborted > 0 {
		parts = append(parts, m.styles.Warning.Render(fmt.Sprintf("%d aborted", rep.Aborted)))
	}
	line := strings.Join(parts, " • ")
	if !rep.EndedAt.IsZero() && !rep.StartedAt.IsZero() {
		line += m.styles.Muted.Render(" in " + formatDuration(rep.EndedAt.Sub(rep.StartedAt)))
	}
	return line
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}
