// Package overlayexec executes OverlayOperation plans: mounting the root
// overlay for a partition and re-exposing any real child mount nested
// beneath it (an already-mounted /system/app, for instance) either via a
// recursive bind or a nested sub-overlay when a module also contributes
// content at that same child path.
package overlayexec

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/sysoverlay/sysoverlay/internal/mountinfo"
)

// ChildMount is one real mount nested beneath an overlay target that must
// be re-exposed after the root overlay replaces the directory it lives in.
type ChildMount struct {
	RelativePath string // path relative to the overlay target
	Source       mountinfo.Entry
}

// PlanChildren inspects the live mount table and returns, in ascending
// path-length order, every mount nested under target that the root
// overlay mount would otherwise shadow.
func PlanChildren(entries []mountinfo.Entry, target string) []ChildMount {
	children := mountinfo.ChildrenUnder(entries, target)
	out := make([]ChildMount, 0, len(children))
	for _, c := range children {
		rel, err := filepath.Rel(target, c.MountPoint)
		if err != nil {
			continue
		}
		out = append(out, ChildMount{RelativePath: rel, Source: c})
	}
	return out
}

// NeedsNestedOverlay reports whether a child mount point must be
// re-exposed as its own nested overlay (true) rather than a plain
// recursive bind (false): a nested overlay is required exactly when at
// least one module lowerdir contributes content at that same relative
// path, so the module's files and the original child mount's files both
// need to be visible there.
func NeedsNestedOverlay(lowerdirs []string, relPath string) bool {
	for _, lower := range lowerdirs {
		if hasEntryAt(lower, relPath) {
			return true
		}
	}
	return false
}

// hasEntryAt is overridden in tests; the real implementation is a plain
// os.Stat, kept here so this file stays free of direct syscalls and fully
// portable.
var hasEntryAt = statExists

func statExists(root, rel string) bool {
	_, err := os.Stat(filepath.Join(root, filepath.FromSlash(rel)))
	return err == nil
}

// dedupMountSeq removes duplicate mount points from a child-mount list
// while preserving the ascending path-length order PlanChildren produced,
// matching the original dedup pass over the mountinfo-derived sequence.
func dedupMountSeq(children []ChildMount) []ChildMount {
	seen := make(map[string]bool, len(children))
	out := make([]ChildMount, 0, len(children))
	for _, c := range children {
		if seen[c.Source.MountPoint] {
			continue
		}
		seen[c.Source.MountPoint] = true
		out = append(out, c)
	}
	return out
}

// buildOverlayOptions formats the comma-separated overlay mount option
// string, escaping colons in individual directory components since ':'
// is the lowerdir separator.
func buildOverlayOptions(lowerdirs []string, upperdir, workdir string) string {
	escaped := make([]string, len(lowerdirs))
	for i, d := range lowerdirs {
		escaped[i] = strings.ReplaceAll(d, ":", "\\:")
	}
	opts := "lowerdir=" + strings.Join(escaped, ":")
	if upperdir != "" {
		opts += ",upperdir=" + upperdir + ",workdir=" + workdir
	}
	return opts
}
