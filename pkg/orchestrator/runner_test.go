package orchestrator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/core-tools/hsu-orchestrator/pkg/config"
	"github.com/core-tools/hsu-orchestrator/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePaths(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Server.DataDir = base
	cfg.Logging.File = "orchestrator.log"
	cfg.Stores.Local = config.StoreConfig{Type: config.StoreTypeSQLite}
	cfg.Stores.Remote = config.StoreConfig{Type: config.StoreTypeSQLite, DSN: "peer.db"}

	_, err := resolvePaths(cfg)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(base, "logs", "orchestrator.log"), cfg.Logging.File)
	assert.Equal(t, filepath.Join(base, "data", "thoughts.db"), cfg.Stores.Local.DSN)
	assert.Equal(t, filepath.Join(base, "data", "peer.db"), cfg.Stores.Remote.DSN)

	_, err = os.Stat(filepath.Join(base, "data"))
	assert.NoError(t, err)
}

func TestResolvePaths_RejectsUnknownContext(t *testing.T) {
	cfg := config.Default()
	cfg.Server.ServiceContext = "kernel"
	_, err := resolvePaths(cfg)
	assert.True(t, errors.IsValidationError(err))
}

func TestLoadAndValidate(t *testing.T) {
	dir := t.TempDir()
	valid := filepath.Join(dir, "valid.yaml")
	require.NoError(t, os.WriteFile(valid, []byte("server:\n  port: 5555\nservices:\n  - name: api\n    port: 8080\n"), 0o644))

	cfg, err := LoadAndValidate(valid)
	require.NoError(t, err)
	assert.Equal(t, 5555, cfg.Server.Port)
	require.Len(t, cfg.Services, 1)
	assert.Equal(t, "/health", cfg.Services[0].HealthEndpoint)

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("thresholds:\n  cpu_usage: 2\n"), 0o644))
	_, err = LoadAndValidate(invalid)
	assert.True(t, errors.IsValidationError(err))

	_, err = LoadAndValidate(filepath.Join(dir, "missing.yaml"))
	assert.True(t, errors.IsIOError(err))
}
