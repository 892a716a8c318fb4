package controller

import (
	"testing"

	"github.com/sysoverlay/sysoverlay/internal/config"
)

func TestPhaseString(t *testing.T) {
	cases := map[Phase]string{
		Init:         "init",
		StorageReady: "storage_ready",
		ModulesReady: "modules_ready",
		Planned:      "planned",
		Executed:     "executed",
		Finalized:    "finalized",
	}
	for phase, want := range cases {
		if got := phase.String(); got != want {
			t.Errorf("Phase(%d).String() = %q, want %q", phase, got, want)
		}
	}
}

func TestPartitionListDedupesExtras(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Partitions = []string{"system", "my_extra"}

	c := New(cfg)
	partitions := c.partitionList()

	seen := make(map[string]int)
	for _, p := range partitions {
		seen[p]++
	}
	if seen["system"] != 1 {
		t.Errorf("expected 'system' to appear once, got %d", seen["system"])
	}
	if seen["my_extra"] != 1 {
		t.Errorf("expected 'my_extra' to appear once, got %d", seen["my_extra"])
	}
}

func TestNewGeneratesRunID(t *testing.T) {
	c := New(config.DefaultConfig())
	if c.RunID == "" {
		t.Error("expected New to generate a non-empty RunID")
	}
	if c.Phase != Init {
		t.Errorf("expected initial phase Init, got %v", c.Phase)
	}
}
