// Package config loads the host configuration graphd needs to construct
// the Graph Store (data directory layout, snapshot cadence, persistence
// mode, broadcaster sizing, and the default provenance user). Grounded on
// the teacher's cmd/warren/apply.go, which reads a YAML resource file with
// gopkg.in/yaml.v3 and struct tags; this package follows the same load
// style for a flat host config file instead of a resource manifest.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the keys the core consumes from the host, per the
// Configuration table: data directory layout, snapshot cadence,
// persistence mode, broadcaster sizing, and default provenance user.
type Config struct {
	DataDir              string `yaml:"data_dir"`
	SnapshotThreshold    int    `yaml:"snapshot_threshold"`
	ArchiveOldEvents     bool   `yaml:"archive_old_events"`
	EventSourcingEnabled bool   `yaml:"event_sourcing_enabled"`
	MemoryFilePath       string `yaml:"memory_file_path"`
	HistorySize          int    `yaml:"history_size"`
	BroadcastCapacity    int    `yaml:"broadcast_capacity"`
	CurrentUser          string `yaml:"current_user"`
}

// Default returns a Config with every documented default applied.
func Default() Config {
	return Config{
		DataDir:              "./graphkeep-data",
		SnapshotThreshold:    1000,
		ArchiveOldEvents:     true,
		EventSourcingEnabled: true,
		MemoryFilePath:       "./graphkeep-data/memory.jsonl",
		HistorySize:          1000,
		BroadcastCapacity:    1024,
		CurrentUser:          "system",
	}
}

// Load reads path as YAML and overlays it on Default(). A missing file is
// not an error: the caller gets plain defaults, matching the host's
// "run with zero config" expectation.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyZeroDefaults()
	return cfg, nil
}

// applyZeroDefaults restores documented defaults for any field a partial
// YAML document left at its zero value, so a config file that only
// overrides data_dir doesn't also zero out snapshot_threshold.
func (c *Config) applyZeroDefaults() {
	d := Default()
	if c.DataDir == "" {
		c.DataDir = d.DataDir
	}
	if c.SnapshotThreshold == 0 {
		c.SnapshotThreshold = d.SnapshotThreshold
	}
	if c.MemoryFilePath == "" {
		c.MemoryFilePath = d.MemoryFilePath
	}
	if c.HistorySize == 0 {
		c.HistorySize = d.HistorySize
	}
	if c.BroadcastCapacity == 0 {
		c.BroadcastCapacity = d.BroadcastCapacity
	}
	if c.CurrentUser == "" {
		c.CurrentUser = d.CurrentUser
	}
}
