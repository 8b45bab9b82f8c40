package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/RevCBH/kyco/internal/ctlapi"
)

// NewJobsCmd creates the 'jobs' command for listing all jobs
// Flags: --status (string, comma-separated filter)
func NewJobsCmd(a *App) *cobra.Command {
	var statusFilter string

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List all jobs",
		Long: `List all jobs known to the running orchestrator.

Use --status to filter by job status (comma-separated values).
Valid statuses: pending, queued, blocked, running, done, failed,
rejected, merged`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := NewClient(a.addr, tokenFromEnv())

			jobs, err := c.ListJobs(cmd.Context())
			if err != nil {
				return err
			}

			if statusFilter != "" {
				jobs = filterJobs(jobs, parseStatusFilter(statusFilter))
			}

			displayJobs(cmd.OutOrStdout(), jobs)
			return nil
		},
	}

	cmd.Flags().StringVar(&statusFilter, "status", "", "Filter by status (comma-separated)")

	return cmd
}

// parseStatusFilter splits comma-separated status values and trims whitespace
func parseStatusFilter(filter string) []string {
	parts := strings.Split(filter, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.ToLower(strings.TrimSpace(p))
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func filterJobs(jobs []ctlapi.JobView, statuses []string) []ctlapi.JobView {
	if len(statuses) == 0 {
		return jobs
	}
	keep := make(map[string]bool, len(statuses))
	for _, s := range statuses {
		keep[s] = true
	}
	out := make([]ctlapi.JobView, 0, len(jobs))
	for _, j := range jobs {
		if keep[strings.ToLower(j.Status)] {
			out = append(out, j)
		}
	}
	return out
}
