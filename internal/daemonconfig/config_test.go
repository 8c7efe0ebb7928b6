package daemonconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plumberd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeTemp(t, `
log:
  level: info
  format: text
scheduler:
  workers: 4
  async_pool_size: 2
  equeue_capacity: 64
graph_file: graph.yaml
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "info", cfg.Log.Level)
	require.Equal(t, 4, cfg.Scheduler.Workers)
}

func TestLoadRejectsBadLogLevel(t *testing.T) {
	path := writeTemp(t, `
log:
  level: noisy
scheduler:
  workers: 1
  async_pool_size: 1
graph_file: graph.yaml
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsMissingGraphFile(t *testing.T) {
	path := writeTemp(t, `
log:
  level: info
scheduler:
  workers: 1
  async_pool_size: 1
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
