//go:build linux

package magicmount

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/sysoverlay/sysoverlay/internal/logging"
	"github.com/sysoverlay/sysoverlay/internal/nodetree"
	"github.com/sysoverlay/sysoverlay/internal/pathutil"
)

// Executor drives a magic-mount composition: it mounts a scratch tmpfs
// workspace, constructs the private directory skeleton wherever NeedsTmpfs
// says one is required, mirrors or mounts every node into place, then
// privatizes and moves each tmpfs level onto its final real-fs location.
type Executor struct {
	WorkspaceRoot string // scratch tmpfs mount point, e.g. /data/adb/sysoverlay/mnt/magic-workspace
}

// Mount walks root (the combined tree built by nodetree.BuildTree) and
// applies it onto realRoot, the real directory that root mirrors.
func (e *Executor) Mount(root *nodetree.Node, realRoot string) error {
	if err := os.MkdirAll(e.WorkspaceRoot, 0o755); err != nil {
		return fmt.Errorf("mkdir workspace %s: %w", e.WorkspaceRoot, err)
	}
	if err := unix.Mount("tmpfs", e.WorkspaceRoot, "tmpfs", 0, "mode=0755"); err != nil {
		return fmt.Errorf("mount workspace tmpfs at %s: %w", e.WorkspaceRoot, err)
	}
	defer func() {
		if err := unix.Unmount(e.WorkspaceRoot, unix.MNT_DETACH); err != nil {
			logging.Op().Warn("failed to unmount magic-mount workspace", "path", e.WorkspaceRoot, "error", err)
		}
	}()

	workRoot := filepath.Join(e.WorkspaceRoot, root.Name)
	return e.mountDirectory(root, realRoot, workRoot, false)
}

// mountDirectory implements the magic-mount "directory()" case. hasTmpfs is
// whatever the parent already decided: once an ancestor has committed to a
// private tmpfs enclosure, every descendant inherits that and keeps
// building inside the very same skeleton instead of allocating one of its
// own. A directory only transitions false->true here the first time
// something under it actually needs writing; that's the one point where a
// new skeleton is allocated, self-bound, filled in, and moved into place.
func (e *Executor) mountDirectory(node *nodetree.Node, path, workPath string, hasTmpfs bool) error {
	tmpfsNeeded := hasTmpfs
	if !tmpfsNeeded {
		tmpfsNeeded = NeedsTmpfs(node, path, OSProbe)
	}
	transition := tmpfsNeeded && !hasTmpfs

	if tmpfsNeeded {
		if err := e.buildSkeleton(node, path, workPath); err != nil {
			return err
		}
	}
	if transition {
		// Self-bind turns workPath into a mount point of its own, which
		// MS_MOVE requires of its source.
		if err := unix.Mount(workPath, workPath, "", unix.MS_BIND, ""); err != nil {
			return fmt.Errorf("self-bind work dir %s: %w", workPath, err)
		}
	}

	for _, name := range node.SortedChildNames() {
		child := node.Children[name]
		if child.Skip {
			continue
		}
		childPath := filepath.Join(path, name)
		childWork := filepath.Join(workPath, name)
		if err := e.mountChild(child, childPath, childWork, tmpfsNeeded); err != nil {
			return fmt.Errorf("%s/%s: %w", path, name, err)
		}
	}

	if transition {
		if err := unix.Mount("", workPath, "", unix.MS_REMOUNT|unix.MS_BIND|unix.MS_RDONLY, ""); err != nil {
			logging.Op().Debug("remount ro failed", "path", workPath, "error", err)
		}
		if err := moveMount(workPath, path); err != nil {
			return fmt.Errorf("move skeleton %s -> %s: %w", workPath, path, err)
		}
		if err := unix.Mount("", path, "", unix.MS_PRIVATE, ""); err != nil {
			logging.Op().Debug("mount private failed", "path", path, "error", err)
		}
	}
	return nil
}

// mountChild dispatches one composed child onto its place in the current
// skeleton (or, if tmpfsNeeded is still false at this level, a no-op: an
// entry that needs no change simply stays exactly as the real fs already
// has it).
func (e *Executor) mountChild(child *nodetree.Node, childPath, childWork string, tmpfsNeeded bool) error {
	switch child.Type {
	case nodetree.TypeDirectory:
		return e.mountDirectory(child, childPath, childWork, tmpfsNeeded)
	case nodetree.TypeSymlink:
		return e.mountSymlink(child, childPath, childWork, tmpfsNeeded)
	case nodetree.TypeWhiteout:
		return e.mountWhiteout(childWork, tmpfsNeeded)
	case nodetree.TypeRegularFile:
		return e.mountRegularFile(child, childPath, childWork, tmpfsNeeded)
	}
	return nil
}

// buildSkeleton creates a directory's place in the private tmpfs skeleton,
// both for the directory that starts an enclosure and for every directory
// nested inside one, copying SELinux/xattr context from whichever of the
// real path or the module's own directory actually exists.
func (e *Executor) buildSkeleton(node *nodetree.Node, path, workPath string) error {
	if err := os.MkdirAll(workPath, 0o755); err != nil {
		return fmt.Errorf("mkdir skeleton %s: %w", workPath, err)
	}
	ref := path
	if exists, _, _ := OSProbe(path); !exists {
		ref = node.ModulePath
	}
	if ref == "" {
		return nil
	}
	if err := pathutil.CopyExtendedAttributes(ref, workPath); err != nil {
		logging.Op().Debug("context copy failed for magic-mount skeleton", "path", workPath, "error", err)
	}
	return nil
}

// mountSymlink clones a symlink into the skeleton. Only needed once this
// level has committed to tmpfs; an unmodified real symlink left outside a
// tmpfs enclosure needs no action at all.
func (e *Executor) mountSymlink(child *nodetree.Node, childPath, childWork string, tmpfsNeeded bool) error {
	if !tmpfsNeeded {
		return nil
	}
	if err := os.Symlink(child.LinkTarget, childWork); err != nil {
		return fmt.Errorf("symlink %s: %w", childWork, err)
	}
	source := child.ModulePath
	if source == "" {
		source = childPath
	}
	_ = pathutil.CopyExtendedAttributes(source, childWork)
	return nil
}

// mountWhiteout creates nothing: inside a tmpfs skeleton the entry is
// simply left absent, which hides the real file once the skeleton is moved
// into place. When tmpfsNeeded is false there is nothing to hide either:
// NeedsTmpfs only asks for tmpfs on account of a whiteout when the real fs
// actually has something there, so a false here means there's nothing for
// this whiteout to mask.
func (e *Executor) mountWhiteout(childWork string, tmpfsNeeded bool) error {
	return nil
}

// mountRegularFile binds a file into the skeleton: a module-owned file is
// bound from its staged source and forced read-only, an unmodified real
// file is mirrored in from its own real path unchanged. No-op when this
// level hasn't committed to tmpfs, since the real file is already visible
// as-is.
func (e *Executor) mountRegularFile(child *nodetree.Node, childPath, childWork string, tmpfsNeeded bool) error {
	if !tmpfsNeeded {
		return nil
	}
	source := child.ModulePath
	if source == "" {
		source = childPath
	}
	if err := touch(childWork); err != nil {
		return fmt.Errorf("touch %s: %w", childWork, err)
	}
	if err := unix.Mount(source, childWork, "", unix.MS_BIND, ""); err != nil {
		return fmt.Errorf("bind %s -> %s: %w", source, childWork, err)
	}
	if child.ModulePath != "" {
		if err := unix.Mount("", childWork, "", unix.MS_REMOUNT|unix.MS_BIND|unix.MS_RDONLY, ""); err != nil {
			logging.Op().Debug("remount ro failed", "path", childWork, "error", err)
		}
	}
	_ = pathutil.CopyExtendedAttributes(source, childWork)
	return nil
}

func touch(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}

// moveMount relocates a mount from src onto dst using MS_MOVE.
func moveMount(src, dst string) error {
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	if err := unix.Mount(src, dst, "", unix.MS_MOVE, ""); err != nil {
		return fmt.Errorf("mount move %s -> %s: %w", src, dst, err)
	}
	return nil
}
