//go:build linux

package modsync

import (
	"os"

	"golang.org/x/sys/unix"
)

// rawDeviceNumber extracts the rdev field backing fi, used to recreate
// device nodes and KernelSU-style whiteouts verbatim in the staged copy.
func rawDeviceNumber(fi os.FileInfo) uint64 {
	stat, ok := fi.Sys().(*unix.Stat_t)
	if !ok {
		return 0
	}
	return uint64(stat.Rdev)
}
