package storage

import "testing"

func TestModeString(t *testing.T) {
	cases := map[Mode]string{
		ModeTmpfs:        "tmpfs",
		ModeExt4:         "ext4",
		ModeErofsStaging: "erofs_staging",
		ModeErofs:        "erofs",
	}
	for mode, want := range cases {
		if got := mode.String(); got != want {
			t.Errorf("Mode(%d).String() = %q, want %q", mode, got, want)
		}
	}
}

func TestCommitNoopForNonStagingMode(t *testing.T) {
	h := &Handle{Mode: ModeTmpfs, MountPoint: "/tmp/x"}
	if err := h.Commit("/tmp/x.img", "/tmp/rw", nil); err != nil {
		t.Fatalf("expected Commit to be a no-op for tmpfs mode, got %v", err)
	}
	if h.Mode != ModeTmpfs {
		t.Errorf("expected mode to stay tmpfs, got %v", h.Mode)
	}
}
