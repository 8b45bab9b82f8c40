// Package tui renders a live job board: every job's status, the running
// jobs' progress, and a summary line, refreshed by polling the control
// API. Presentation only — no scheduling state lives here.
package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/RevCBH/kyco/internal/ctlapi"
)

// FetchJobs supplies the current job list; the model owns no transport.
type FetchJobs func() ([]ctlapi.JobView, error)

// Model is the bubbletea model for the job board
type Model struct {
	Fetch  FetchJobs
	Styles Styles

	// State
	Jobs      []ctlapi.JobView
	FetchErr  error
	StartTime time.Time
	Width     int
	Height    int

	// Control
	Quitting bool
}

// NewModel creates a new job board model
func NewModel(fetch FetchJobs) *Model {
	return &Model{
		Fetch:     fetch,
		Styles:    DefaultStyles(),
		StartTime: time.Now(),
	}
}

// Init implements tea.Model
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		fetchCmd(m.Fetch),
		tickCmd(),
	)
}

// TickMsg drives the refresh cadence and the header timer
type TickMsg time.Time

// tickCmd returns a command that sends TickMsg twice a second
func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// JobsMsg carries a fresh job list (or the error fetching it)
type JobsMsg struct {
	Jobs []ctlapi.JobView
	Err  error
}

// fetchCmd polls the control API once
func fetchCmd(fetch FetchJobs) tea.Cmd {
	return func() tea.Msg {
		jobs, err := fetch()
		return JobsMsg{Jobs: jobs, Err: err}
	}
}
