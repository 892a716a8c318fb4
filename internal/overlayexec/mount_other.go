//go:build !linux

package overlayexec

import (
	"fmt"

	"github.com/sysoverlay/sysoverlay/internal/mountinfo"
	"github.com/sysoverlay/sysoverlay/internal/planner"
)

func MountOverlay(op planner.OverlayOperation) error {
	return fmt.Errorf("overlay mount unsupported on this platform")
}

func BindMount(src, dst string) error {
	return fmt.Errorf("bind mount unsupported on this platform")
}

func ExposeChildren(entries []mountinfo.Entry, op planner.OverlayOperation) error {
	return fmt.Errorf("expose children unsupported on this platform")
}

func Unmount(target string) error {
	return fmt.Errorf("unmount unsupported on this platform")
}
