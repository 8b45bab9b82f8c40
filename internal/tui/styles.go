package tui

import "github.com/charmbracelet/lipgloss"

// Styles contains all lipgloss styles for the job board
type Styles struct {
	// Header styling
	Title lipgloss.Style
	Timer lipgloss.Style

	// Job row styling by status
	Running  lipgloss.Style
	Queued   lipgloss.Style
	Blocked  lipgloss.Style
	Done     lipgloss.Style
	Failed   lipgloss.Style
	Merged   lipgloss.Style
	Rejected lipgloss.Style
	Pending  lipgloss.Style

	// Detail text
	Detail lipgloss.Style
	Error  lipgloss.Style

	// Footer styling
	Footer    lipgloss.Style
	FooterKey lipgloss.Style
}

// DefaultStyles returns the default job board styles
func DefaultStyles() Styles {
	return Styles{
		Title: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		Timer: lipgloss.NewStyle().Foreground(lipgloss.Color("245")),

		Running:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		Queued:   lipgloss.NewStyle().Foreground(lipgloss.Color("75")),
		Blocked:  lipgloss.NewStyle().Foreground(lipgloss.Color("168")),
		Done:     lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		Failed:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		Merged:   lipgloss.NewStyle().Foreground(lipgloss.Color("35")),
		Rejected: lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		Pending:  lipgloss.NewStyle().Foreground(lipgloss.Color("245")),

		Detail: lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
		Error:  lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Italic(true),

		Footer:    lipgloss.NewStyle().Foreground(lipgloss.Color("245")).MarginTop(1),
		FooterKey: lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true),
	}
}

// Icons used in the job board
const (
	IconRunning = "●"
	IconDone    = "✓"
	IconFailed  = "✗"
	IconBlocked = "⏳"
	IconMerged  = "⇡"
)

// statusStyle picks the style for one job status string.
func (s Styles) statusStyle(status string) lipgloss.Style {
	switch status {
	case "running":
		return s.Running
	case "queued":
		return s.Queued
	case "blocked":
		return s.Blocked
	case "done":
		return s.Done
	case "failed":
		return s.Failed
	case "merged":
		return s.Merged
	case "rejected":
		return s.Rejected
	default:
		return s.Pending
	}
}

func statusIcon(status string) string {
	switch status {
	case "running":
		return IconRunning
	case "done":
		return IconDone
	case "failed":
		return IconFailed
	case "blocked":
		return IconBlocked
	case "merged":
		return IconMerged
	default:
		return "·"
	}
}
