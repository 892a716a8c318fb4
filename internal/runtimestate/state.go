// Package runtimestate persists the single JSON snapshot of the last
// completed run, so the `status` CLI subcommand can report on a run's
// outcome long after the daemon process that performed the mounts has
// exited.
package runtimestate

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sysoverlay/sysoverlay/internal/pathutil"
)

// Usage is the persisted storage usage snapshot, matching the `usage`
// object in the status JSON contract (total, used, percent).
type Usage struct {
	TotalBytes uint64  `json:"total"`
	UsedBytes  uint64  `json:"used"`
	Percent    float64 `json:"percent"`
}

// State is the full persisted snapshot of one completed run.
type State struct {
	RunID          string   `json:"run_id"`
	StorageMode    string   `json:"storage_mode"`
	MountPoint     string   `json:"mount_point"`
	OverlayModules []string `json:"overlay_modules"`
	MagicModules   []string `json:"magic_modules"`
	HymoModules    []string `json:"hymo_modules"`
	ActiveMounts   []string `json:"active_mounts"`
	Usage          Usage    `json:"usage"`
	Finalized      bool     `json:"finalized"`
}

// Load reads and parses the state file at path. A missing file is not an
// error: it returns a zero-value State, matching a system that has never
// completed a run (e.g. right after flashing).
func Load(path string) (State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return State{}, nil
		}
		return State{}, fmt.Errorf("read state %s: %w", path, err)
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return State{}, fmt.Errorf("parse state %s: %w", path, err)
	}
	return s, nil
}

// Save atomically writes s to path as indented JSON.
func Save(path string, s State) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := pathutil.AtomicWrite(path, data); err != nil {
		return fmt.Errorf("write state %s: %w", path, err)
	}
	return nil
}
