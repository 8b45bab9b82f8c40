package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewVersionCmd creates the 'version' command
func NewVersionCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "kyco %s (commit %s, built %s)\n",
				a.version, a.commit, a.date)
		},
	}
}
