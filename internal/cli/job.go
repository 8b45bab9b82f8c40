package cli

import (
	"github.com/spf13/cobra"
)

// NewJobCmd creates the 'job' command for showing one job in detail
// Args: job-id (required)
func NewJobCmd(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job <job-id>",
		Short: "Show one job in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}

			c := NewClient(a.addr, tokenFromEnv())
			j, err := c.GetJob(cmd.Context(), id)
			if err != nil {
				return err
			}

			displayJobDetail(cmd.OutOrStdout(), j)
			return nil
		},
	}
	return cmd
}
