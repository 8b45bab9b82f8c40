package tui

import tea "github.com/charmbracelet/bubbletea"

// Update implements tea.Model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.Quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height

	case TickMsg:
		// Refresh on every tick; the fetch result arrives as JobsMsg.
		return m, tea.Batch(fetchCmd(m.Fetch), tickCmd())

	case JobsMsg:
		if msg.Err != nil {
			m.FetchErr = msg.Err
		} else {
			m.FetchErr = nil
			m.Jobs = msg.Jobs
		}
	}

	return m, nil
}
