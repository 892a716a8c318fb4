package magicmount

import (
	"testing"

	"github.com/sysoverlay/sysoverlay/internal/nodetree"
)

func noopProbe(exists, isDir, isSymlink bool) RealProbe {
	return func(string) (bool, bool, bool) { return exists, isDir, isSymlink }
}

func TestNeedsTmpfsReplace(t *testing.T) {
	node := nodetree.NewDirectory("d")
	node.Replace = true
	if !NeedsTmpfs(node, "/real/d", noopProbe(true, true, false)) {
		t.Error("expected Replace node to need tmpfs")
	}
}

func TestNeedsTmpfsModuleOwnedDir(t *testing.T) {
	node := nodetree.NewDirectory("d")
	node.ModulePath = "/staged/mod/system/d"
	if !NeedsTmpfs(node, "/real/d", noopProbe(false, false, false)) {
		t.Error("expected module-owned directory to need tmpfs")
	}
}

func TestNeedsTmpfsSymlinkChild(t *testing.T) {
	node := nodetree.NewDirectory("d")
	_ = node.AddChild(&nodetree.Node{Name: "link", Type: nodetree.TypeSymlink})
	if !NeedsTmpfs(node, "/real/d", noopProbe(true, true, false)) {
		t.Error("expected symlink child to force tmpfs")
	}
}

func TestNeedsTmpfsUnmodifiedMirror(t *testing.T) {
	node := nodetree.NewDirectory("d")
	_ = node.AddChild(&nodetree.Node{Name: "unchanged.txt", Type: nodetree.TypeRegularFile})
	if NeedsTmpfs(node, "/real/d", noopProbe(true, false, false)) {
		t.Error("expected unmodified real-fs mirror to not need tmpfs")
	}
}

func TestNeedsTmpfsMissingOnRealFS(t *testing.T) {
	node := nodetree.NewDirectory("d")
	_ = node.AddChild(&nodetree.Node{Name: "ghost.txt", Type: nodetree.TypeRegularFile, ModulePath: ""})
	if !NeedsTmpfs(node, "/real/d", noopProbe(false, false, false)) {
		t.Error("expected entry missing on real fs to force tmpfs")
	}
}

func TestNeedsTmpfsWhiteoutOverExisting(t *testing.T) {
	node := nodetree.NewDirectory("d")
	_ = node.AddChild(&nodetree.Node{Name: "gone", Type: nodetree.TypeWhiteout})
	if !NeedsTmpfs(node, "/real/d", noopProbe(true, false, false)) {
		t.Error("expected whiteout over existing real entry to force tmpfs")
	}
	if NeedsTmpfs(node, "/real/d", noopProbe(false, false, false)) {
		t.Error("expected whiteout over nonexistent real entry to not force tmpfs")
	}
}
