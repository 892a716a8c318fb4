package modsync

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sysoverlay/sysoverlay/internal/module"
)

func TestSyncCopiesModuleTree(t *testing.T) {
	srcRoot := t.TempDir()
	stageRoot := t.TempDir()

	modDir := filepath.Join(srcRoot, "mymod")
	if err := os.MkdirAll(filepath.Join(modDir, "system", "bin"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(modDir, "module.prop"), []byte("id=mymod\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(modDir, "system", "bin", "tool"), []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	mods := []module.Module{{ID: "mymod", SourcePath: modDir}}
	result, err := Sync(context.Background(), mods, stageRoot, false)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("expected 1 result, got %d", len(result))
	}
	stagePath := result[0].StagePath
	if stagePath != filepath.Join(stageRoot, "mymod") {
		t.Errorf("unexpected stage path %q", stagePath)
	}
	toolPath := filepath.Join(stagePath, "system", "bin", "tool")
	data, err := os.ReadFile(toolPath)
	if err != nil {
		t.Fatalf("staged file missing: %v", err)
	}
	if string(data) != "#!/bin/sh\n" {
		t.Errorf("unexpected staged content %q", data)
	}
}

func TestSyncSkipsUnchangedModule(t *testing.T) {
	srcRoot := t.TempDir()
	stageRoot := t.TempDir()

	modDir := filepath.Join(srcRoot, "mymod")
	if err := os.MkdirAll(modDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(modDir, "module.prop"), []byte("id=mymod\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	mods := []module.Module{{ID: "mymod", SourcePath: modDir}}
	if _, err := Sync(context.Background(), mods, stageRoot, false); err != nil {
		t.Fatalf("first Sync: %v", err)
	}

	marker := filepath.Join(stageRoot, "mymod", "marker")
	if err := os.WriteFile(marker, []byte("keepme"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Sync(context.Background(), mods, stageRoot, false); err != nil {
		t.Fatalf("second Sync: %v", err)
	}
	if _, err := os.Stat(marker); err != nil {
		t.Errorf("expected unchanged module to be skipped, marker file gone: %v", err)
	}
}

func TestPruneOrphans(t *testing.T) {
	stageRoot := t.TempDir()
	for _, name := range []string{"keep", "orphan", "lost+found"} {
		if err := os.MkdirAll(filepath.Join(stageRoot, name), 0o755); err != nil {
			t.Fatal(err)
		}
	}

	enabled := []module.Module{{ID: "keep"}}
	if err := PruneOrphans(stageRoot, enabled); err != nil {
		t.Fatalf("PruneOrphans: %v", err)
	}

	if _, err := os.Stat(filepath.Join(stageRoot, "keep")); err != nil {
		t.Errorf("expected 'keep' to survive: %v", err)
	}
	if _, err := os.Stat(filepath.Join(stageRoot, "orphan")); !os.IsNotExist(err) {
		t.Errorf("expected 'orphan' to be removed, err=%v", err)
	}
	if _, err := os.Stat(filepath.Join(stageRoot, "lost+found")); err != nil {
		t.Errorf("expected reserved 'lost+found' to survive: %v", err)
	}
}
