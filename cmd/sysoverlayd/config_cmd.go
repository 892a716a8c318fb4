package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sysoverlay/sysoverlay/internal/config"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or scaffold the sysoverlayd configuration",
	}
	cmd.AddCommand(configInitCmd(), configShowCmd())
	return cmd
}

func configInitCmd() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := config.DefaultConfig().AsYAML()
			if err != nil {
				return fmt.Errorf("render default config: %w", err)
			}
			if outPath == "" {
				fmt.Println(string(data))
				return nil
			}
			return writeFile(outPath, data)
		},
	}
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "write to this path instead of stdout")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration after file and env overrides",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			data, err := cfg.AsJSON()
			if err != nil {
				return fmt.Errorf("render config: %w", err)
			}
			fmt.Println(string(data))
			return nil
		},
	}
}

func writeFile(path string, data []byte) error {
	return writeFileMode(path, data, 0o644)
}
