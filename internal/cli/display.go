package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/RevCBH/kyco/internal/ctlapi"
)

// displayJobs renders a list of jobs in tabular format using tabwriter.
func displayJobs(w io.Writer, jobs []ctlapi.JobView) {
	if len(jobs) == 0 {
		fmt.Fprintln(w, "No jobs")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tMODE\tAGENT\tFILE\tAGE")
	for _, j := range jobs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			j.ID, j.Status, j.Mode, j.AgentID,
			shortPath(j.SourceFile, j.WorkspacePath),
			formatAge(j.CreatedAt))
	}
	tw.Flush()
}

// displayJobDetail renders one job with its result, chain history, and
// token accounting.
func displayJobDetail(w io.Writer, j ctlapi.JobView) {
	fmt.Fprintf(w, "Job #%d  %s\n", j.ID, j.Status)
	fmt.Fprintf(w, "  mode: %s  agent: %s\n", j.Mode, j.AgentID)
	fmt.Fprintf(w, "  file: %s:%d\n", j.SourceFile, j.SourceLine)
	if j.GroupID != 0 {
		fmt.Fprintf(w, "  group: #%d\n", j.GroupID)
	}
	if j.GitWorktreePath != "" {
		fmt.Fprintf(w, "  worktree: %s (branch %s, base %s)\n", j.GitWorktreePath, j.BranchName, j.BaseBranch)
	}
	if j.BlockedBy != 0 {
		fmt.Fprintf(w, "  blocked by job #%d on %s\n", j.BlockedBy, j.BlockedFile)
	}
	if j.ErrorMessage != "" {
		fmt.Fprintf(w, "  error: %s\n", j.ErrorMessage)
	}

	if j.Result != nil {
		if j.Result.Title != nil {
			fmt.Fprintf(w, "  title: %s\n", *j.Result.Title)
		}
		if j.Result.Status != nil {
			fmt.Fprintf(w, "  result: %s\n", *j.Result.Status)
		}
		if j.Result.Summary != nil && *j.Result.Summary != "" {
			fmt.Fprintf(w, "  summary: %s\n", indentContinuations(*j.Result.Summary))
		}
	}

	if j.ChainName != "" {
		fmt.Fprintf(w, "  chain: %s (%d/%d steps)\n", j.ChainName, j.ChainCurrentStep, j.ChainTotalSteps)
		for _, step := range j.ChainStepHistory {
			mark := "+"
			switch {
			case step.Skipped:
				mark = "~"
			case !step.Success:
				mark = "x"
			}
			fmt.Fprintf(w, "    %s [%s] %s\n", mark, step.Mode, stepLabel(step.Title, step.Skipped))
		}
	}

	if j.FilesChanged > 0 || j.LinesAdded > 0 || j.LinesRemoved > 0 {
		fmt.Fprintf(w, "  changes: %d files, +%d/-%d\n", j.FilesChanged, j.LinesAdded, j.LinesRemoved)
	}
	if j.CostUSD > 0 {
		fmt.Fprintf(w, "  cost: $%.4f (%d in / %d out tokens)\n", j.CostUSD, j.InputTokens, j.OutputTokens)
	}
}

func stepLabel(title string, skipped bool) string {
	if skipped {
		return "skipped"
	}
	if title == "" {
		return "done"
	}
	return title
}

func indentContinuations(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), "\n", "\n    ")
}

// shortPath trims the workspace prefix off a job's source file so the
// table stays readable.
func shortPath(path, workspace string) string {
	if workspace != "" && strings.HasPrefix(path, workspace) {
		rel := strings.TrimPrefix(strings.TrimPrefix(path, workspace), "/")
		if rel == "" {
			return "(workspace)"
		}
		return rel
	}
	return path
}

func formatAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
