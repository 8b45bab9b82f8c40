package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

func parseJobID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid job id %q", s)
	}
	return id, nil
}

// tokenFromEnv reads the control API token, if the serve side requires
// one.
func tokenFromEnv() string {
	return os.Getenv("KYCO_TOKEN")
}

// NewQueueCmd creates the 'queue' command: move a pending job to Queued.
func NewQueueCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "queue <job-id>",
		Short: "Queue a pending job for execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			c := NewClient(a.addr, tokenFromEnv())
			status, err := c.QueueJob(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "job #%d: %s\n", id, status)
			return nil
		},
	}
}

// NewMergeCmd creates the 'merge' command: merge a Done job's worktree
// back into its base branch.
// Flags: --message (string, commit message override)
func NewMergeCmd(a *App) *cobra.Command {
	var message string

	cmd := &cobra.Command{
		Use:   "merge <job-id>",
		Short: "Merge a finished job's changes into its base branch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			c := NewClient(a.addr, tokenFromEnv())
			if err := c.MergeJob(cmd.Context(), id, message); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "job #%d merged\n", id)
			return nil
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "Commit message for the merge")

	return cmd
}

// NewRejectCmd creates the 'reject' command: discard a job's worktree.
func NewRejectCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "reject <job-id>",
		Short: "Reject a finished job and remove its worktree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			c := NewClient(a.addr, tokenFromEnv())
			if err := c.RejectJob(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "job #%d rejected\n", id)
			return nil
		},
	}
}

// NewDiffCmd creates the 'diff' command: print a job's diff against its
// base branch.
func NewDiffCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "diff <job-id>",
		Short: "Show a job's diff against its base branch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			c := NewClient(a.addr, tokenFromEnv())
			resp, err := c.DiffJob(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), resp.Diff)
			return nil
		},
	}
}

// NewCancelCmd creates the 'cancel' command: request cooperative
// cancellation of a job.
func NewCancelCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a queued or running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			c := NewClient(a.addr, tokenFromEnv())
			if err := c.CancelJob(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "job #%d: cancellation requested\n", id)
			return nil
		},
	}
}
