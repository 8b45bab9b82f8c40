package runner

import (
	"fmt"
	"os"
	"path/filepath"
)

// validateInput checks a job's inputs before any worktree work: the
// source line must be >=1; the source file is resolved to an absolute
// path rooted at workspacePath; unless that resolves to the workspace
// root itself or the literal string "prompt" (a prompt-only job), the
// file must exist and be a regular file. On success the returned path
// is the resolved absolute one.
func validateInput(sourceFile string, sourceLine int, workspacePath string) (resolved string, err error) {
	if sourceLine < 1 {
		return "", fmt.Errorf("source_line must be >= 1, got %d", sourceLine)
	}

	isPromptLiteral := sourceFile == "prompt"

	resolved = sourceFile
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(workspacePath, resolved)
	}
	resolved = filepath.Clean(resolved)

	if resolved == filepath.Clean(workspacePath) || isPromptLiteral {
		return resolved, nil
	}

	info, statErr := os.Stat(resolved)
	if statErr != nil {
		return "", fmt.Errorf("source file does not exist: %s", resolved)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("source file is not a regular file: %s", resolved)
	}
	return resolved, nil
}
