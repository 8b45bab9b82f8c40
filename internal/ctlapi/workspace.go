package ctlapi

import (
	"os"
	"path/filepath"
)

// resolveWorkspacePath infers a job's workspace_path from its source
// file: the nearest enclosing git root, falling back to the source
// file's parent directory (the rule job.Store.CreateJob's doc comment
// calls out as the caller's responsibility).
func resolveWorkspacePath(sourceFile string) string {
	dir := filepath.Dir(sourceFile)
	for candidate := dir; ; {
		if info, err := os.Stat(filepath.Join(candidate, ".git")); err == nil && info != nil {
			return candidate
		}
		parent := filepath.Dir(candidate)
		if parent == candidate {
			return dir
		}
		candidate = parent
	}
}
