package pathutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidateModuleID(t *testing.T) {
	cases := []struct {
		id string
		ok bool
	}{
		{"busybox", true},
		{"my-module.v2", true},
		{"A1_b.c-d", true},
		{"", false},
		{"1leadingdigit", false},
		{"has space", false},
		{"-leadingdash", false},
	}
	for _, c := range cases {
		err := ValidateModuleID(c.id)
		if (err == nil) != c.ok {
			t.Errorf("ValidateModuleID(%q) error=%v, want ok=%v", c.id, err, c.ok)
		}
	}
}

func TestAtomicWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	if err := AtomicWrite(path, []byte("hello")); err != nil {
		t.Fatalf("AtomicWrite: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("got %q, want %q", data, "hello")
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("expected no leftover temp files, found %d entries", len(entries))
	}
}

func TestHasEntries(t *testing.T) {
	dir := t.TempDir()
	if HasEntries(dir) {
		t.Error("empty dir should report no entries")
	}
	if err := os.WriteFile(filepath.Join(dir, "f"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !HasEntries(dir) {
		t.Error("non-empty dir should report entries")
	}
	if HasEntries(filepath.Join(dir, "missing")) {
		t.Error("missing dir should report no entries")
	}
}

func TestPruneEmptyDirs(t *testing.T) {
	root := t.TempDir()
	deep := filepath.Join(root, "a", "b", "c")
	if err := os.MkdirAll(deep, 0o755); err != nil {
		t.Fatal(err)
	}
	keep := filepath.Join(root, "keep")
	if err := os.MkdirAll(keep, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(keep, "file"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := PruneEmptyDirs(root); err != nil {
		t.Fatalf("PruneEmptyDirs: %v", err)
	}

	if _, err := os.Stat(filepath.Join(root, "a")); !os.IsNotExist(err) {
		t.Errorf("expected empty tree 'a' to be pruned, stat err=%v", err)
	}
	if _, err := os.Stat(keep); err != nil {
		t.Errorf("expected non-empty dir 'keep' to survive: %v", err)
	}
}

func TestGuessContextByPath(t *testing.T) {
	cases := map[string]string{
		"/system/bin/sh":           ContextSystem,
		"/vendor/lib64/libfoo.so":  ContextHAL,
		"/vendor/bin/tool":         ContextVendorExec,
		"/vendor/firmware/a.bin":   ContextVendor,
		"/odm/etc/something":      ContextVendor,
	}
	for path, want := range cases {
		if got := GuessContextByPath(path); got != want {
			t.Errorf("GuessContextByPath(%q) = %q, want %q", path, got, want)
		}
	}
}
