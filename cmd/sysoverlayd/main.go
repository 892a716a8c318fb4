package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sysoverlay/sysoverlay/internal/config"
	"github.com/sysoverlay/sysoverlay/internal/controller"
	"github.com/sysoverlay/sysoverlay/internal/logging"
	"github.com/sysoverlay/sysoverlay/internal/observability"
)

var (
	configFile  string
	moduleDir   string
	tempDir     string
	mountSource string
	partitions  []string
	verbose     bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sysoverlayd",
		Short: "sysoverlayd composes root-module overlays at boot",
		Long:  "Scans enabled root modules and mounts their contributions onto system partitions via OverlayFS, falling back to magic-mount per module where needed.",
		RunE:  runRoot,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&moduleDir, "moduledir", "", "override configured module metadata directory")
	rootCmd.PersistentFlags().StringVar(&tempDir, "tempdir", "", "override configured staging/workspace directory")
	rootCmd.PersistentFlags().StringVar(&mountSource, "mountsource", "", "override the configured mount source tag")
	rootCmd.PersistentFlags().StringSliceVar(&partitions, "partitions", nil, "extra partitions beyond the built-in set")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(configCmd(), statusCmd(), modulesCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.DefaultConfig()
	}
	config.LoadFromEnv(cfg)

	if moduleDir != "" {
		cfg.ModuleDir = moduleDir
	}
	if tempDir != "" {
		cfg.TempDir = tempDir
	}
	if mountSource != "" {
		cfg.MountSource = mountSource
	}
	if len(partitions) > 0 {
		cfg.Partitions = partitions
	}
	if verbose {
		cfg.Daemon.LogLevel = "debug"
	}
	return cfg, nil
}

func runRoot(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logging.SetLevelFromString(cfg.Daemon.LogLevel)

	ctx := context.Background()
	if cfg.Observability.Tracing.Enabled {
		if err := observability.Init(ctx, observability.Config{
			Enabled:     true,
			Exporter:    cfg.Observability.Tracing.Exporter,
			Endpoint:    cfg.Observability.Tracing.Endpoint,
			ServiceName: cfg.Observability.Tracing.ServiceName,
			SampleRate:  cfg.Observability.Tracing.SampleRate,
		}); err != nil {
			logging.Op().Warn("telemetry init failed, continuing without tracing", "error", err)
		}
		defer observability.Shutdown(ctx)
	}

	c := controller.New(cfg)
	if err := c.Run(ctx); err != nil {
		logging.WithRun(c.RunID).Error("run failed", "phase", c.Phase.String(), "error", err)
		return err
	}
	return nil
}
