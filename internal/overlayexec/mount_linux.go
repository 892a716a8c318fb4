//go:build linux

package overlayexec

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/sysoverlay/sysoverlay/internal/logging"
	"github.com/sysoverlay/sysoverlay/internal/mountinfo"
	"github.com/sysoverlay/sysoverlay/internal/planner"
)

// MountOverlay mounts op's target as an OverlayFS stacking op.Lowerdirs,
// highest-priority module first, with no upper layer (read-only overlay).
// It tries the fsopen/fsconfig/fsmount/move_mount syscall family first
// (needed once lowerdir count makes the classic comma-separated options
// string exceed the kernel's page-sized mount-data limit) and falls back
// to a classic mount(2) call when the new API is unavailable.
func MountOverlay(op planner.OverlayOperation) error {
	if err := os.MkdirAll(op.Target, 0o755); err != nil {
		return fmt.Errorf("mkdir target %s: %w", op.Target, err)
	}

	if err := mountOverlayFsconfig(op.Lowerdirs, "", "", op.Target); err == nil {
		return nil
	} else if !errors.Is(err, unix.ENOSYS) {
		logging.Op().Debug("fsopen overlay mount failed, falling back to classic mount", "target", op.Target, "error", err)
	}

	opts := buildOverlayOptions(op.Lowerdirs, "", "")
	if err := unix.Mount("overlay", op.Target, "overlay", 0, opts); err != nil {
		return fmt.Errorf("mount overlay at %s: %w", op.Target, err)
	}
	return nil
}

// mountOverlayFsconfig drives the modern fsopen-based overlay mount API,
// returning unix.ENOSYS-wrapped errors when the kernel predates it so the
// caller knows to fall back rather than treat this as a hard failure.
func mountOverlayFsconfig(lowerdirs []string, upperdir, workdir, target string) error {
	fd, err := unix.Fsopen("overlay", 0)
	if err != nil {
		return fmt.Errorf("fsopen: %w", err)
	}
	defer unix.Close(fd)

	opts := buildOverlayOptions(lowerdirs, upperdir, workdir)
	if err := unix.FsconfigSetString(fd, "lowerdir", opts[len("lowerdir="):]); err != nil {
		return fmt.Errorf("fsconfig lowerdir: %w", err)
	}
	if upperdir != "" {
		if err := unix.FsconfigSetString(fd, "upperdir", upperdir); err != nil {
			return fmt.Errorf("fsconfig upperdir: %w", err)
		}
		if err := unix.FsconfigSetString(fd, "workdir", workdir); err != nil {
			return fmt.Errorf("fsconfig workdir: %w", err)
		}
	}
	if err := unix.FsconfigCreate(fd); err != nil {
		return fmt.Errorf("fsconfig create: %w", err)
	}

	mfd, err := unix.Fsmount(fd, 0, 0)
	if err != nil {
		return fmt.Errorf("fsmount: %w", err)
	}
	defer unix.Close(mfd)

	if err := unix.MoveMount(mfd, "", unix.AT_FDCWD, target, unix.MOVE_MOUNT_F_EMPTY_PATH); err != nil {
		return fmt.Errorf("move_mount: %w", err)
	}
	return nil
}

// BindMount recursively bind-mounts src onto dst, preferring open_tree's
// AT_RECURSIVE|CLONE semantics and falling back to a classic MS_BIND|MS_REC
// mount when open_tree is unavailable.
func BindMount(src, dst string) error {
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dst, err)
	}

	fd, err := unix.OpenTree(unix.AT_FDCWD, src, unix.OPEN_TREE_CLONE|unix.AT_RECURSIVE|unix.OPEN_TREE_CLOEXEC)
	if err == nil {
		defer unix.Close(fd)
		if moveErr := unix.MoveMount(fd, "", unix.AT_FDCWD, dst, unix.MOVE_MOUNT_F_EMPTY_PATH); moveErr == nil {
			return nil
		}
	}

	if err := unix.Mount(src, dst, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
		return fmt.Errorf("bind mount %s -> %s: %w", src, dst, err)
	}
	return nil
}

// ExposeChildren re-mounts every real mount nested beneath target (one the
// root overlay mount would otherwise shadow), choosing a nested overlay
// when a module lowerdir also contributes at that path, or a recursive
// bind otherwise.
func ExposeChildren(entries []mountinfo.Entry, op planner.OverlayOperation) error {
	children := dedupMountSeq(PlanChildren(entries, op.Target))
	for _, c := range children {
		childTarget := c.Source.MountPoint
		if NeedsNestedOverlay(op.Lowerdirs, c.RelativePath) {
			nestedLowers := make([]string, 0, len(op.Lowerdirs)+1)
			for _, lower := range op.Lowerdirs {
				nestedLowers = append(nestedLowers, lower+"/"+c.RelativePath)
			}
			nestedLowers = append(nestedLowers, childTarget)
			nestedOp := planner.OverlayOperation{Partition: op.Partition, Target: childTarget, Lowerdirs: nestedLowers}
			if err := MountOverlay(nestedOp); err != nil {
				return fmt.Errorf("expose nested overlay child %s: %w", childTarget, err)
			}
			continue
		}
		if err := BindMount(childTarget, childTarget); err != nil {
			return fmt.Errorf("expose bind child %s: %w", childTarget, err)
		}
	}
	return nil
}

// Unmount lazily detaches target, used to roll an overlay mount back when
// a later step in the same partition's mount sequence fails.
func Unmount(target string) error {
	if err := unix.Unmount(target, unix.MNT_DETACH); err != nil {
		return fmt.Errorf("unmount %s: %w", target, err)
	}
	return nil
}
