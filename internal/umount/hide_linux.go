//go:build linux

package umount

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// BindHider hides a path by binding an empty directory over it, so
// content beneath a committed mount point is no longer reachable even if
// the mount itself is later lazily detached.
type BindHider struct {
	EmptyDir string
}

func (b BindHider) Hide(path string) error {
	if err := os.MkdirAll(b.EmptyDir, 0o755); err != nil {
		return fmt.Errorf("mkdir hide source %s: %w", b.EmptyDir, err)
	}
	if err := unix.Mount(b.EmptyDir, path, "", unix.MS_BIND, ""); err != nil {
		return fmt.Errorf("bind hide %s: %w", path, err)
	}
	return nil
}
