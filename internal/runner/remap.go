package runner

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/RevCBH/kyco/internal/gitops"
)

// gitShellTools is the fixed set of git-shell permissions spliced into
// the adapter's allowed tools when a job runs inside a worktree, so the
// agent may commit on its isolated branch.
var gitShellTools = []string{
	"Bash(git add:*)",
	"Bash(git commit:*)",
	"Bash(git status:*)",
	"Bash(git diff:*)",
	"Bash(git log:*)",
}

// remapPaths computes the worktree-local equivalents of a job's source
// file and target. If the source file doesn't exist in the worktree (it
// wasn't tracked by git, so `git worktree add` never cloned it), it is
// copied over preserving directory structure and emitCopy narrates the
// copy. Pure computation plus file I/O — the caller applies the
// returned paths to the job under the store lock.
func remapPaths(workspacePath, sourceFile, target string, info gitops.WorktreeInfo, emitCopy func(relPath string)) (newSourceFile, newTarget string, err error) {
	rel, err := filepath.Rel(workspacePath, sourceFile)
	if err != nil {
		return "", "", err
	}

	newSourceFile = filepath.Join(info.Path, rel)

	newTarget = target
	if strings.HasPrefix(target, workspacePath) {
		if targetRel, err := filepath.Rel(workspacePath, target); err == nil {
			newTarget = filepath.Join(info.Path, targetRel)
		}
	}

	if sourceFile != workspacePath && !isPromptOnlyPath(sourceFile) {
		if _, err := os.Stat(newSourceFile); os.IsNotExist(err) {
			if copyErr := copyIntoWorktree(sourceFile, newSourceFile); copyErr != nil {
				return "", "", copyErr
			}
			if emitCopy != nil {
				emitCopy(rel)
			}
		}
	}

	return newSourceFile, newTarget, nil
}

func isPromptOnlyPath(path string) bool {
	return path == "prompt"
}

// copyIntoWorktree copies src to dst, creating dst's parent directories.
func copyIntoWorktree(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
