package nodetree

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBuildTreeOverlaysModuleFile(t *testing.T) {
	real := t.TempDir()
	if err := os.MkdirAll(filepath.Join(real, "bin"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(real, "bin", "sh"), []byte("real"), 0o644); err != nil {
		t.Fatal(err)
	}

	modDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(modDir, "bin"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(modDir, "bin", "tool"), []byte("new"), 0o644); err != nil {
		t.Fatal(err)
	}

	root, err := BuildTree(real, map[string]map[string]string{"mymod": {"bin": modDir + "/bin"}}, []string{"bin"})
	if err != nil {
		t.Fatalf("BuildTree: %v", err)
	}

	bin, ok := root.Children["bin"]
	if !ok {
		t.Fatalf("expected 'bin' child, got %+v", root.SortedChildNames())
	}
	sh, ok := bin.Children["sh"]
	if !ok || sh.ModulePath != "" {
		t.Errorf("expected unmodified real 'sh' node, got %+v", sh)
	}
	tool, ok := bin.Children["tool"]
	if !ok || tool.ModulePath == "" {
		t.Errorf("expected module-owned 'tool' node, got %+v", tool)
	}
}

func TestRehomePartitionsWithOwnMountPoint(t *testing.T) {
	realRoot := t.TempDir()
	if err := os.MkdirAll(filepath.Join(realRoot, "vendor"), 0o755); err != nil {
		t.Fatal(err)
	}
	// no realRoot/system/vendor on disk: vendor has no legacy compat symlink
	// either, so it's a genuine standalone partition on this device.

	root := NewDirectory("root")
	root.Children["vendor"] = NewDirectory("vendor") // seeded by BuildTree's per-partition loop
	system := NewDirectory("system")
	vendor := NewDirectory("vendor")
	vendor.ModulePath = "/staged/mymod/system/vendor"
	vendor.Children["bin"] = NewDirectory("bin")
	_ = system.AddChild(vendor)
	_ = root.AddChild(system)

	rehome(root, []string{"vendor"}, realRoot)

	if _, ok := system.Children["vendor"]; ok {
		t.Error("expected 'vendor' to be removed from system's children")
	}
	rootVendor, ok := root.Children["vendor"]
	if !ok {
		t.Fatal("expected 'vendor' to be rehomed to root's children")
	}
	if _, ok := rootVendor.Children["bin"]; !ok {
		t.Error("expected vendor's staged content merged into root's pre-existing vendor node")
	}
}

func TestRehomeSkipsPartitionWithoutOwnMountPoint(t *testing.T) {
	realRoot := t.TempDir()
	// no top-level realRoot/vendor directory: this device has no separate
	// vendor partition, so staged content must stay merged under system.

	root := NewDirectory("root")
	system := NewDirectory("system")
	vendor := NewDirectory("vendor")
	vendor.ModulePath = "/staged/mymod/system/vendor"
	_ = system.AddChild(vendor)
	_ = root.AddChild(system)

	rehome(root, []string{"vendor"}, realRoot)

	if _, ok := system.Children["vendor"]; !ok {
		t.Error("expected 'vendor' to remain under system when no real top-level mount point exists")
	}
	if _, ok := root.Children["vendor"]; ok {
		t.Error("expected no synthetic 'vendor' node created at root")
	}
}
