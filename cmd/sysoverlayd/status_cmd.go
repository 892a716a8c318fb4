package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sysoverlay/sysoverlay/internal/runtimestate"
	"github.com/sysoverlay/sysoverlay/internal/storage"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report the last completed run's storage backend and mount state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			statePath := filepath.Join(filepath.Dir(cfg.TempDir), "state.json")
			state, err := runtimestate.Load(statePath)
			if err != nil {
				return fmt.Errorf("load run state: %w", err)
			}

			scratch := filepath.Join(filepath.Dir(cfg.TempDir), ".sysoverlay_probe")
			status := storage.Status{
				Type:           state.StorageMode,
				MountPoint:     state.MountPoint,
				UsagePercent:   state.Usage.Percent,
				TotalSize:      state.Usage.TotalBytes,
				UsedSize:       state.Usage.UsedBytes,
				SupportedModes: storage.ProbeSupportedModes(scratch),
			}
			if status.Type == "" {
				status.Type = "unknown"
			}

			data, err := json.MarshalIndent(status, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		},
	}
}
