package runtimestate

import (
	"path/filepath"
	"testing"
)

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	want := State{
		RunID:          "abc-123",
		StorageMode:    "erofs",
		MountPoint:     "/data/adb/sysoverlay/mnt",
		OverlayModules: []string{"modA", "modB"},
		MagicModules:   []string{"modC"},
		ActiveMounts:   []string{"/system", "/vendor"},
		Usage:          Usage{TotalBytes: 1000, UsedBytes: 125, Percent: 12.5},
		Finalized:      true,
	}

	if err := Save(path, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.RunID != want.RunID || got.StorageMode != want.StorageMode || !got.Finalized {
		t.Errorf("got %+v, want %+v", got, want)
	}
	if len(got.OverlayModules) != 2 {
		t.Errorf("expected 2 overlay modules, got %v", got.OverlayModules)
	}
}

func TestLoadMissingFile(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
	if s.RunID != "" {
		t.Errorf("expected zero-value State, got %+v", s)
	}
}
