// Package magicmount implements the tmpfs-skeleton fallback mount
// strategy for modules that cannot be composed via OverlayFS: it walks a
// nodetree.Node tree built by internal/nodetree and, for each directory,
// decides whether a private writable tmpfs copy is required before its
// children can be mirrored and mounted.
package magicmount

import (
	"os"

	"github.com/sysoverlay/sysoverlay/internal/nodetree"
)

// RealProbe reports what (if anything) exists on the real filesystem at a
// given path, so the tmpfs-needed decision can compare a composed node
// against its real-fs counterpart without the decision logic itself
// touching the filesystem.
type RealProbe func(path string) (exists bool, isDir bool, isSymlink bool)

// OSProbe is the production RealProbe, backed by os.Lstat.
func OSProbe(path string) (exists bool, isDir bool, isSymlink bool) {
	fi, err := os.Lstat(path)
	if err != nil {
		return false, false, false
	}
	return true, fi.IsDir(), fi.Mode()&os.ModeSymlink != 0
}

// NeedsTmpfs reports whether realPath's directory must be given a private
// tmpfs copy before mounting its children, rather than being mirrored via
// a plain recursive bind of the unmodified real directory. A tmpfs copy is
// required when:
//   - the node itself is marked Replace (a module opaque-shadows this
//     whole subtree), or
//   - the node itself is module-owned (a module supplies this directory
//     directly, e.g. a brand-new partition subtree), or
//   - any child needs one: a Symlink child (symlinks must be created
//     fresh, never bind-mounted), a Whiteout child masking something that
//     exists on the real fs, a module-owned child, a child whose type
//     disagrees with what's on the real fs, or a child the real fs simply
//     doesn't have.
func NeedsTmpfs(node *nodetree.Node, realPath string, probe RealProbe) bool {
	if node.Replace || node.ModulePath != "" {
		return true
	}
	for _, name := range node.SortedChildNames() {
		child := node.Children[name]
		if childNeedsTmpfs(child, realPath+"/"+name, probe) {
			return true
		}
	}
	return false
}

func childNeedsTmpfs(child *nodetree.Node, realChildPath string, probe RealProbe) bool {
	if child.Type == nodetree.TypeSymlink {
		return true
	}
	exists, isDir, isSymlink := probe(realChildPath)
	if child.Type == nodetree.TypeWhiteout {
		return exists
	}
	if child.ModulePath != "" {
		return true
	}
	if !exists {
		return true
	}
	switch child.Type {
	case nodetree.TypeDirectory:
		return !isDir
	case nodetree.TypeRegularFile:
		return isDir || isSymlink
	default:
		return false
	}
}
