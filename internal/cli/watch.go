package cli

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/RevCBH/kyco/internal/ctlapi"
	"github.com/RevCBH/kyco/internal/tui"
)

// NewWatchCmd creates the 'watch' command: a live job board over the
// control API.
func NewWatchCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Live job board for a running orchestrator",
		Long: `Open a terminal dashboard showing every job's status, refreshed
continuously from the control API. Press q to quit.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !term.IsTerminal(int(os.Stdout.Fd())) {
				return fmt.Errorf("watch needs a terminal; use `kyco jobs` for scripted output")
			}

			c := NewClient(a.addr, tokenFromEnv())
			model := tui.NewModel(func() ([]ctlapi.JobView, error) {
				return c.ListJobs(cmd.Context())
			})
			p := tea.NewProgram(model, tea.WithAltScreen())
			_, err := p.Run()
			return err
		},
	}
}
