package gitops

import (
	"context"
	"os"
	"path/filepath"
	"strings"
)

const uncommittedMarker = "\n\n--- Uncommitted changes ---\n\n"

// Diff returns the concatenation of the committed diff
// ({base}...HEAD, empty if base is empty after trim) and the uncommitted
// diff (HEAD), separated by uncommittedMarker only when both are
// non-empty.
func (g *GitOps) Diff(ctx context.Context, worktree, baseBranch string) (string, error) {
	var committed string
	if strings.TrimSpace(baseBranch) != "" {
		res := g.run(ctx, worktree, "diff", "--no-color", baseBranch+"...HEAD")
		if !res.Success() {
			return "", res.AsError([]string{"diff", "--no-color", baseBranch + "...HEAD"})
		}
		committed = res.Stdout
	}

	uncommittedRes := g.run(ctx, worktree, "diff", "--no-color", "HEAD")
	if !uncommittedRes.Success() {
		return "", uncommittedRes.AsError([]string{"diff", "--no-color", "HEAD"})
	}
	uncommitted := uncommittedRes.Stdout

	switch {
	case committed != "" && uncommitted != "":
		return committed + uncommittedMarker + uncommitted, nil
	case committed != "":
		return committed, nil
	default:
		return uncommitted, nil
	}
}

// DiffReport aggregates FileDiff entries from the committed and
// uncommitted numstat, dedups by path (committed entry wins), and folds
// in untracked files only when settings.IncludeUntracked.
func (g *GitOps) DiffReport(ctx context.Context, worktree, baseBranch string, settings DiffSettings) (DiffReport, error) {
	seen := map[string]bool{}
	var files []FileDiff

	if strings.TrimSpace(baseBranch) != "" {
		res := g.run(ctx, worktree, "diff", "--numstat", baseBranch+"...HEAD")
		if !res.Success() {
			return DiffReport{}, res.AsError([]string{"diff", "--numstat", baseBranch + "...HEAD"})
		}
		for _, e := range parseNumstat(res.Stdout) {
			if seen[e.path] {
				continue
			}
			seen[e.path] = true
			files = append(files, FileDiff{
				Path: e.path, Status: "modified",
				LinesAdded: e.added, LinesRemoved: e.removed, IsBinary: e.isBinary,
			})
		}
	}

	uncommittedRes := g.run(ctx, worktree, "diff", "--numstat", "HEAD")
	if !uncommittedRes.Success() {
		return DiffReport{}, uncommittedRes.AsError([]string{"diff", "--numstat", "HEAD"})
	}
	for _, e := range parseNumstat(uncommittedRes.Stdout) {
		if seen[e.path] {
			continue
		}
		seen[e.path] = true
		files = append(files, FileDiff{
			Path: e.path, Status: "modified",
			LinesAdded: e.added, LinesRemoved: e.removed, IsBinary: e.isBinary,
		})
	}

	if settings.IncludeUntracked {
		untracked, err := g.UntrackedFiles(ctx, worktree)
		if err != nil {
			return DiffReport{}, err
		}
		for _, path := range untracked {
			if seen[path] {
				continue
			}
			seen[path] = true
			added, isBinary := countUntrackedLines(filepath.Join(worktree, path))
			files = append(files, FileDiff{
				Path: path, Status: "untracked",
				LinesAdded: added, IsBinary: isBinary,
			})
		}
	}

	report := DiffReport{Files: files, FilesChanged: len(files)}
	for _, f := range files {
		report.TotalAdded += f.LinesAdded
		report.TotalRemoved += f.LinesRemoved
	}
	return report, nil
}

// countUntrackedLines reads a new file directly (there is no committed
// blob to diff against) and reports its line count, with a NUL-byte
// sniff for binaries.
func countUntrackedLines(path string) (lines int, isBinary bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	for _, b := range data {
		if b == 0 {
			return 0, true
		}
	}
	if len(data) == 0 {
		return 0, false
	}
	lines = strings.Count(string(data), "\n")
	if !strings.HasSuffix(string(data), "\n") {
		lines++
	}
	return lines, false
}

// NumstatTotals sums added+removed lines and distinct file counts across
// both committed ({base}...HEAD) and uncommitted (HEAD) numstat output,
// the numbers JobRunner stores on the job after a worktree run.
func (g *GitOps) NumstatTotals(ctx context.Context, worktree, baseBranch string) (filesChanged, linesAdded, linesRemoved int, err error) {
	paths := map[string]bool{}

	collect := func(args ...string) error {
		res := g.run(ctx, worktree, args...)
		if !res.Success() {
			return res.AsError(args)
		}
		for _, e := range parseNumstat(res.Stdout) {
			paths[e.path] = true
			linesAdded += e.added
			linesRemoved += e.removed
		}
		return nil
	}

	if strings.TrimSpace(baseBranch) != "" {
		if err := collect("diff", "--numstat", baseBranch+"...HEAD"); err != nil {
			return 0, 0, 0, err
		}
	}
	if err := collect("diff", "--numstat", "HEAD"); err != nil {
		return 0, 0, 0, err
	}

	return len(paths), linesAdded, linesRemoved, nil
}
