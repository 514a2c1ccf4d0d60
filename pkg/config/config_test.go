package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_PartialOverrideKeepsOtherDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graphd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data_dir: /var/lib/graphkeep\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/graphkeep", cfg.DataDir)
	assert.Equal(t, Default().SnapshotThreshold, cfg.SnapshotThreshold)
	assert.Equal(t, Default().HistorySize, cfg.HistorySize)
}

func TestLoad_FullDocumentOverridesEverything(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graphd.yaml")
	doc := `
data_dir: /data
snapshot_threshold: 50
archive_old_events: false
event_sourcing_enabled: false
memory_file_path: /data/memory.jsonl
history_size: 10
broadcast_capacity: 16
current_user: alice
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Config{
		DataDir:              "/data",
		SnapshotThreshold:    50,
		ArchiveOldEvents:     false,
		EventSourcingEnabled: false,
		MemoryFilePath:       "/data/memory.jsonl",
		HistorySize:          10,
		BroadcastCapacity:    16,
		CurrentUser:          "alice",
	}, cfg)
}

func TestLoad_MalformedYAMLReturnsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graphd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data_dir: [unterminated\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
