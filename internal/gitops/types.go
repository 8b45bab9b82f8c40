package gitops

import "context"

// WorktreeInfo is the value produced by CreateWorktree.
type WorktreeInfo struct {
	Path       string
	BaseBranch string
	BranchName string
}

// FileDiff is one entry in a DiffReport.
type FileDiff struct {
	Path         string
	Status       string // "modified", "added", "deleted", "untracked"
	LinesAdded   int
	LinesRemoved int
	IsBinary     bool
	Patch        *string
}

// DiffReport is the structured diff summary for a worktree vs its base.
type DiffReport struct {
	Files          []FileDiff
	TotalAdded     int
	TotalRemoved   int
	FilesChanged   int
}

// DiffSettings controls DiffReport's optional inclusions.
type DiffSettings struct {
	IncludeUntracked bool
	IgnoreWhitespace bool
}

// GitOps is the orchestrator's entire git surface. All methods shell
// out via Runner; RepoRoot is the main working copy the worktrees
// branch from and ultimately merge back into.
type GitOps struct {
	RepoRoot     string
	WorktreesDir string
	runner       Runner
}

// New constructs a GitOps rooted at repoRoot, with worktrees created
// under worktreesDir (conventionally "{repoRoot}/.kyco/worktrees").
func New(repoRoot, worktreesDir string, runner Runner) *GitOps {
	if runner == nil {
		runner = NewOSRunner()
	}
	return &GitOps{RepoRoot: repoRoot, WorktreesDir: worktreesDir, runner: runner}
}

func (g *GitOps) run(ctx context.Context, dir string, args ...string) Result {
	return g.runner.Run(ctx, dir, args...)
}
