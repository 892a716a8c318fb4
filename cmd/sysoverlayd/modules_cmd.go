package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sysoverlay/sysoverlay/internal/inventory"
)

// moduleListing is the per-module JSON record printed by `modules`,
// enriching the scanned module with its resolved effective mode per
// partition rather than the raw rule-table internals.
type moduleListing struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Version     string            `json:"version"`
	Author      string            `json:"author"`
	Description string            `json:"description"`
	Modes       map[string]string `json:"modes"`
}

func modulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "modules",
		Short: "List enabled modules and their resolved per-partition mount mode",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			mods, err := inventory.Scan(cfg.ModuleDir, nil)
			if err != nil {
				return fmt.Errorf("scan modules: %w", err)
			}

			allPartitions := append([]string{}, cfg.Partitions...)
			allPartitions = append(allPartitions, "system", "vendor", "product", "system_ext", "odm", "oem")

			listings := make([]moduleListing, 0, len(mods))
			for _, m := range mods {
				modes := make(map[string]string, len(allPartitions))
				for _, p := range allPartitions {
					modes[p] = inventory.ResolveEffectiveMode(m, p)
				}
				listings = append(listings, moduleListing{
					ID:          m.ID,
					Name:        m.Name(),
					Version:     m.Version(),
					Author:      m.Author(),
					Description: m.Description(),
					Modes:       modes,
				})
			}

			data, err := json.MarshalIndent(listings, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		},
	}
}
