package inventory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sysoverlay/sysoverlay/internal/module"
)

func writeModule(t *testing.T, root, id string, prop string, markers ...string) {
	t.Helper()
	dir := filepath.Join(root, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if prop != "" {
		if err := os.WriteFile(filepath.Join(dir, "module.prop"), []byte(prop), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	for _, m := range markers {
		if err := os.WriteFile(filepath.Join(dir, m), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestScanSkipsMarkersAndReserved(t *testing.T) {
	root := t.TempDir()
	writeModule(t, root, "good", "id=good\nname=Good Module\nversion=1.0\n")
	writeModule(t, root, "disabled", "id=disabled\n", "disable")
	writeModule(t, root, "removed", "id=removed\n", "remove")
	writeModule(t, root, "skipped", "id=skipped\n", "skip_mount")
	writeModule(t, root, "lost+found", "")
	writeModule(t, root, "sysoverlay", "id=sysoverlay\n")
	writeModule(t, root, "1bad", "id=1bad\n")

	mods, err := Scan(root, nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(mods) != 1 {
		t.Fatalf("expected 1 enabled module, got %d: %+v", len(mods), mods)
	}
	if mods[0].ID != "good" {
		t.Errorf("expected 'good', got %q", mods[0].ID)
	}
	if mods[0].Name() != "Good Module" {
		t.Errorf("expected name 'Good Module', got %q", mods[0].Name())
	}
}

func TestScanMissingDir(t *testing.T) {
	mods, err := Scan(filepath.Join(t.TempDir(), "missing"), nil)
	if err != nil {
		t.Fatalf("expected no error for missing dir, got %v", err)
	}
	if mods != nil {
		t.Errorf("expected nil modules, got %+v", mods)
	}
}

func TestScanDeclaredIDMismatch(t *testing.T) {
	root := t.TempDir()
	writeModule(t, root, "actual", "id=other\nname=X\n")

	mods, err := Scan(root, nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(mods) != 1 || mods[0].ID != "actual" {
		t.Fatalf("expected module 'actual' to still be included despite id mismatch, got %+v", mods)
	}
	if mods[0].DeclaredID != "other" {
		t.Errorf("expected DeclaredID 'other', got %q", mods[0].DeclaredID)
	}
}

func TestResolveEffectiveMode(t *testing.T) {
	m := module.Module{ID: "x", Rules: module.NewRuleTable()}
	if got := ResolveEffectiveMode(m, "vendor"); got != "auto" {
		t.Errorf("expected 'auto' for unset override, got %q", got)
	}

	m.Rules.Overrides["vendor"] = module.ModeMagic
	if got := ResolveEffectiveMode(m, "vendor"); got != "magic" {
		t.Errorf("expected 'magic', got %q", got)
	}
}
