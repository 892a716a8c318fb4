// Package config loads and validates sysoverlayd's runtime configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ObservabilityConfig aggregates tracing/metrics/logging settings, mirroring
// how the upstream daemon groups its own cross-cutting concerns.
type ObservabilityConfig struct {
	Tracing TracingConfig `yaml:"tracing" json:"tracing"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// TracingConfig holds OpenTelemetry phase-span tracing settings.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled" json:"enabled"`
	Exporter    string  `yaml:"exporter" json:"exporter"`         // otlp-http, stdout
	Endpoint    string  `yaml:"endpoint" json:"endpoint"`         // localhost:4318
	ServiceName string  `yaml:"service_name" json:"service_name"` // sysoverlayd
	SampleRate  float64 `yaml:"sample_rate" json:"sample_rate"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled          bool      `yaml:"enabled" json:"enabled"`
	Namespace        string    `yaml:"namespace" json:"namespace"`
	HistogramBuckets []float64 `yaml:"histogram_buckets" json:"histogram_buckets"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`   // debug, info, warn, error
	Format string `yaml:"format" json:"format"` // text, json
}

// DaemonConfig holds process-level settings.
type DaemonConfig struct {
	LogLevel string `yaml:"log_level" json:"log_level"`
	HTTPAddr string `yaml:"http_addr" json:"http_addr"` // loaded but not read: sysoverlayd starts no HTTP server
}

// Config aggregates every sub-configuration the engine needs, following the
// teacher's pattern of one struct embedding component configs rather than a
// flat field list.
type Config struct {
	ModuleDir string `yaml:"module_dir" json:"module_dir"`
	TempDir   string `yaml:"temp_dir" json:"temp_dir"`
	// MountSource names the host-environment tag (KSU, APatch, Magisk). It
	// is read from file, env and flag and passed on in storage.Options; no
	// mount this run performs uses it as its source string.
	MountSource string   `yaml:"mount_source" json:"mount_source"`
	Partitions  []string `yaml:"partitions" json:"partitions"`

	// SystemRWDir varies across known deployments of this engine
	// (/dev/meta-hybrid/rw vs /data/adb/meta-hybrid/rw); exposed as
	// configuration per the open question, defaulting to a tmpfs-backed
	// location under /dev so it never persists across boots.
	SystemRWDir string `yaml:"system_rw_dir" json:"system_rw_dir"`

	PreferredStorageModes []string `yaml:"preferred_storage_modes" json:"preferred_storage_modes"`

	// ExtImagePreexistOnly, when true, refuses to create the ext4 backing
	// image and requires it to already exist (open question: both behaviors
	// are observed upstream; exposed as configuration rather than decided).
	ExtImagePreexistOnly bool `yaml:"ext4_image_preexist_only" json:"ext4_image_preexist_only"`

	DisableUmountHiding bool `yaml:"disable_umount_hiding" json:"disable_umount_hiding"`

	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
	Daemon        DaemonConfig        `yaml:"daemon" json:"daemon"`
}

const (
	DefaultModuleDir = "/data/adb/modules"
	DefaultTempDir   = "/data/adb/sysoverlay/mnt"
	DefaultRWDir     = "/dev/sysoverlay/rw"
)

// DefaultConfig returns the configuration used when no file or env override
// is present.
func DefaultConfig() *Config {
	return &Config{
		ModuleDir:             DefaultModuleDir,
		TempDir:               DefaultTempDir,
		MountSource:           "sysoverlay",
		Partitions:            nil,
		SystemRWDir:           DefaultRWDir,
		PreferredStorageModes: []string{"tmpfs", "ext4", "erofs"},
		ExtImagePreexistOnly:  false,
		DisableUmountHiding:   false,
		Observability: ObservabilityConfig{
			Tracing: TracingConfig{
				Enabled:     false,
				Exporter:    "otlp-http",
				Endpoint:    "localhost:4318",
				ServiceName: "sysoverlayd",
				SampleRate:  1.0,
			},
			Metrics: MetricsConfig{
				Enabled:   true,
				Namespace: "sysoverlay",
			},
			Logging: LoggingConfig{
				Level:  "info",
				Format: "text",
			},
		},
		Daemon: DaemonConfig{
			LogLevel: "info",
		},
	}
}

// LoadFromFile reads a YAML configuration file, falling back to defaults for
// any key the file omits.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, nil
}

// LoadFromEnv applies SYSOVERLAY_* environment overrides onto cfg, in place.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("SYSOVERLAY_MODULE_DIR"); v != "" {
		cfg.ModuleDir = v
	}
	if v := os.Getenv("SYSOVERLAY_TEMP_DIR"); v != "" {
		cfg.TempDir = v
	}
	if v := os.Getenv("SYSOVERLAY_MOUNT_SOURCE"); v != "" {
		cfg.MountSource = v
	}
	if v := os.Getenv("SYSOVERLAY_PARTITIONS"); v != "" {
		cfg.Partitions = strings.Split(v, ",")
	}
	if v := os.Getenv("SYSOVERLAY_SYSTEM_RW_DIR"); v != "" {
		cfg.SystemRWDir = v
	}
	if v := os.Getenv("SYSOVERLAY_EXT4_PREEXIST_ONLY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.ExtImagePreexistOnly = b
		}
	}
	if v := os.Getenv("SYSOVERLAY_LOG_LEVEL"); v != "" {
		cfg.Daemon.LogLevel = v
		cfg.Observability.Logging.Level = v
	}
	if v := os.Getenv("SYSOVERLAY_HTTP_ADDR"); v != "" {
		cfg.Daemon.HTTPAddr = v
	}
}

// AsJSON renders the effective configuration as indented JSON, for the
// `sysoverlayd config show` subcommand.
func (c *Config) AsJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// AsYAML renders the configuration as YAML, for `sysoverlayd config init`.
func (c *Config) AsYAML() ([]byte, error) {
	return yaml.Marshal(c)
}
