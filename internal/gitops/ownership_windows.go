//go:build windows

package gitops

import "os"

// isRootOwned has no meaning on Windows; ownership never blocks
// worktree creation there.
func isRootOwned(info os.FileInfo) bool { return false }
