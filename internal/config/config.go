// Package config loads and validates the overtrack configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the complete overtrack configuration.
type Config struct {
	Manifest string        `yaml:"manifest"`
	Trees    TreesConfig   `yaml:"trees"`
	Upgrade  UpgradeConfig `yaml:"upgrade"`
	Diff     DiffConfig    `yaml:"diff"`
	Log      LogConfig     `yaml:"log"`
}

// TreesConfig locates the downstream tree, the upstream tree and its
// version snapshots.
type TreesConfig struct {
	// OverrideRoot is the downstream source tree the manifest's paths are
	// relative to.
	OverrideRoot string `yaml:"override_root"`
	// BaseRoot is the currently checked-out upstream tree.
	BaseRoot string `yaml:"base_root"`
	// SnapshotsDir holds one subtree per historical upstream version,
	// named by version label. Three-way merges read pinned content here.
	SnapshotsDir string `yaml:"snapshots_dir"`
	// Version is the label of the upstream currently at BaseRoot. New and
	// upgraded overrides are pinned against it.
	Version string `yaml:"version"`
}

// UpgradeConfig configures reconciliation behavior.
type UpgradeConfig struct {
	// AllowConflicts writes conflicted merges out with markers instead of
	// leaving the file untouched.
	AllowConflicts bool `yaml:"allow_conflicts"`
	// Concurrency bounds parallel per-override work. Zero means serial.
	Concurrency int `yaml:"concurrency"`
}

// DiffConfig configures unified diff rendering.
type DiffConfig struct {
	MaxBytes int `yaml:"max_bytes"`
	Context  int `yaml:"context"`
}

// LogConfig configures logging output.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Development switches to the human-oriented console encoder.
	Development bool `yaml:"development"`
}

// Load reads and parses the configuration file.
func Load(path string) (*Config, error) {
	path = os.ExpandEnv(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.expandEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// expandEnv expands environment variables in all path fields.
func (c *Config) expandEnv() {
	c.Manifest = os.ExpandEnv(c.Manifest)
	c.Trees.OverrideRoot = os.ExpandEnv(c.Trees.OverrideRoot)
	c.Trees.BaseRoot = os.ExpandEnv(c.Trees.BaseRoot)
	c.Trees.SnapshotsDir = os.ExpandEnv(c.Trees.SnapshotsDir)
	c.Trees.Version = os.ExpandEnv(c.Trees.Version)
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Manifest == "" && c.Trees.OverrideRoot != "" {
		c.Manifest = filepath.Join(c.Trees.OverrideRoot, "overrides.json")
	}
	if c.Upgrade.Concurrency == 0 {
		c.Upgrade.Concurrency = 4
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Manifest == "" {
		return fmt.Errorf("manifest is required")
	}
	if c.Trees.OverrideRoot == "" {
		return fmt.Errorf("trees.override_root is required")
	}
	if c.Trees.BaseRoot == "" {
		return fmt.Errorf("trees.base_root is required")
	}
	if c.Trees.Version == "" {
		return fmt.Errorf("trees.version is required")
	}
	if c.Upgrade.Concurrency < 0 {
		return fmt.Errorf("upgrade.concurrency must not be negative: %d", c.Upgrade.Concurrency)
	}
	if c.Diff.MaxBytes < 0 {
		return fmt.Errorf("diff.max_bytes must not be negative: %d", c.Diff.MaxBytes)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log.level: %s (must be debug, info, warn, or error)", c.Log.Level)
	}

	return nil
}
