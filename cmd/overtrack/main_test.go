package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"overtrack/internal/config"
)

// workspace lays out a minimal config, manifest and tree pair for
// exercising subcommands in-process.
func workspace(t *testing.T, manifestJSON string) {
	t.Helper()
	dir := t.TempDir()
	downstream := filepath.Join(dir, "downstream")
	upstream := filepath.Join(dir, "upstream")
	require.NoError(t, os.MkdirAll(downstream, 0o755))
	require.NoError(t, os.MkdirAll(upstream, 0o755))

	manifestPath := filepath.Join(downstream, "overrides.json")
	require.NoError(t, os.WriteFile(manifestPath, []byte(manifestJSON), 0o644))

	cfg = &config.Config{
		Manifest: manifestPath,
		Trees: config.TreesConfig{
			OverrideRoot: downstream,
			BaseRoot:     upstream,
			SnapshotsDir: filepath.Join(dir, "snapshots"),
			Version:      "v1",
		},
		Upgrade: config.UpgradeConfig{Concurrency: 1},
	}
	logger = zap.NewNop()
}

func TestValidateRecordsCheckFailure(t *testing.T) {
	workspace(t, `{"overrides": [{"type": "platform", "file": "src/missing.cpp"}]}`)
	exitCode = 0
	validateCmd.SetContext(context.Background())

	// A failing override is a check failure, not a command error.
	require.NoError(t, validateCmd.RunE(validateCmd, nil))
	assert.Equal(t, exitCheckFailed, exitCode)
}

func TestValidateCleanManifestExitsZero(t *testing.T) {
	workspace(t, `{"overrides": [{"type": "platform", "file": "src/present.cpp"}]}`)
	present := filepath.Join(cfg.Trees.OverrideRoot, "src", "present.cpp")
	require.NoError(t, os.MkdirAll(filepath.Dir(present), 0o755))
	require.NoError(t, os.WriteFile(present, []byte("platform code\n"), 0o644))

	exitCode = 0
	validateCmd.SetContext(context.Background())
	require.NoError(t, validateCmd.RunE(validateCmd, nil))
	assert.Equal(t, 0, exitCode)
}
