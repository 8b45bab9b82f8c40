//go:build !windows

package gitops

import (
	"os"
	"syscall"
)

// isRootOwned reports whether info's underlying file is owned by uid 0.
func isRootOwned(info os.FileInfo) bool {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return false
	}
	return stat.Uid == 0
}
