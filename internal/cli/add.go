package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

// NewAddCmd creates the 'add' command for creating (and by default
// queueing) a job.
// Args: mode, file (file may be the literal "prompt" for prompt-only jobs)
// Flags: --line, --prompt, --agent, --agents, --no-queue, --force-worktree
func NewAddCmd(a *App) *cobra.Command {
	var line int
	var prompt string
	var agentID string
	var agents []string
	var noQueue bool
	var forceWorktree bool

	cmd := &cobra.Command{
		Use:   "add <mode> <file>",
		Short: "Create a job (queued by default)",
		Long: `Create a job running <mode> against <file>.

Pass --agents with several agent ids to fan the same prompt out to
multiple agents as a run group; you later pick one result and merge it.
Use the literal file name "prompt" for a job that isn't about a
specific file.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, file := args[0], args[1]

			if file != "prompt" {
				abs, err := filepath.Abs(file)
				if err != nil {
					return err
				}
				file = abs
			}

			queue := !noQueue
			req := CreateJobsRequest{
				FilePath:      file,
				Mode:          mode,
				Prompt:        prompt,
				Agent:         agentID,
				Agents:        agents,
				Queue:         &queue,
				ForceWorktree: forceWorktree,
			}
			if line > 0 {
				req.LineStart = &line
			}

			c := NewClient(a.addr, tokenFromEnv())
			jobIDs, groupID, err := c.CreateJobs(cmd.Context(), req)
			if err != nil {
				return err
			}

			for _, id := range jobIDs {
				fmt.Fprintf(cmd.OutOrStdout(), "created job #%d\n", id)
			}
			if groupID != 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "group #%d (%d agents)\n", groupID, len(jobIDs))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&line, "line", 1, "Source line the job is about")
	cmd.Flags().StringVar(&prompt, "prompt", "", "Prompt text sent to the agent")
	cmd.Flags().StringVar(&agentID, "agent", "", "Agent id (default: claude)")
	cmd.Flags().StringSliceVar(&agents, "agents", nil, "Fan out to several agents as a group")
	cmd.Flags().BoolVar(&noQueue, "no-queue", false, "Create the job without queueing it")
	cmd.Flags().BoolVar(&forceWorktree, "force-worktree", false, "Require worktree isolation for this job")

	return cmd
}
