// Package pathutil provides the path, xattr, SELinux-label, and device-node
// primitives shared by the sync, planner, overlay, and magic-mount phases.
package pathutil

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

// Marker file names that disable a module or opt a directory out of merge
// semantics.
const (
	DisableFileName   = "disable"
	RemoveFileName    = "remove"
	SkipMountFileName = "skip_mount"
	ReplaceFileName   = ".replace"
)

// BuiltinPartitions is the default set of partitions the planner considers,
// extended at runtime by any user-supplied extras.
var BuiltinPartitions = []string{"system", "vendor", "product", "system_ext", "odm", "oem", "apex"}

var moduleIDPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9._-]+$`)

// ValidateModuleID reports whether id matches the module-id grammar
// ^[A-Za-z][A-Za-z0-9._-]+$.
func ValidateModuleID(id string) error {
	if !moduleIDPattern.MatchString(id) {
		return fmt.Errorf("invalid module id %q: must match /^[A-Za-z][A-Za-z0-9._-]+$/", id)
	}
	return nil
}

// AtomicWrite writes content to path via a same-directory temp file plus
// rename, so a concurrent reader never observes a partial file.
func AtomicWrite(path string, content []byte) error {
	dir := filepath.Dir(path)
	tmp := filepath.Join(dir, fmt.Sprintf(".sysoverlay_tmp_%d_%d", os.Getpid(), time.Now().UnixNano()))

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create temp file for atomic write: %w", err)
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename atomic temp file: %w", err)
	}
	return nil
}

// HasEntries reports whether dir exists and contains at least one entry.
func HasEntries(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	return len(entries) > 0
}

// HasEntriesRecursive reports whether dir exists and contains at least one
// directory entry anywhere in its subtree (used where a single top-level
// readdir isn't enough to tell an empty skeleton from real content).
func HasEntriesRecursive(dir string) bool {
	found := false
	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if path != dir {
			found = true
			return filepath.SkipAll
		}
		return nil
	})
	return found
}

// PruneEmptyDirs removes empty directories under root, deepest first, so a
// directory that only held now-pruned subdirectories disappears too.
func PruneEmptyDirs(root string) error {
	if _, err := os.Stat(root); err != nil {
		return nil
	}

	var dirs []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if path != root && d.IsDir() {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	// Deepest paths first: longer paths sort after shorter ones lexically
	// in the common case, but to be exact we rely on WalkDir's pre-order
	// traversal and simply reverse it.
	for i, j := 0, len(dirs)-1; i < j; i, j = i+1, j-1 {
		dirs[i], dirs[j] = dirs[j], dirs[i]
	}

	for _, d := range dirs {
		_ = os.Remove(d) // no-op if not empty
	}
	return nil
}

// ExtractModuleID walks up from path looking for a module.prop sibling,
// falling back to the immediate child of path's ancestor otherwise.
func ExtractModuleID(path string) string {
	current := path
	for {
		if _, err := os.Stat(filepath.Join(current, "module.prop")); err == nil {
			return filepath.Base(current)
		}
		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}
	return filepath.Base(filepath.Dir(path))
}
