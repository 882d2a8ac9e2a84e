package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()

	opts, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, dir, opts.DataDir)
	assert.Equal(t, filepath.Join(dir, "logs"), opts.LogDir)
	assert.Equal(t, "0.0.0.0", opts.BindHost)
	assert.Equal(t, IsolationInProcess, opts.Isolation)
	assert.Equal(t, 100, opts.PortSearchLimit)
	assert.True(t, opts.LiveReload)
	assert.Equal(t, 5*time.Second, opts.StopTimeout)
	assert.Equal(t, filepath.Join(dir, "liveserve.db"), opts.DatabasePath())
}

func TestLoadOverridesFromYAML(t *testing.T) {
	dir := t.TempDir()
	content := `
isolation: process
bind_host: 127.0.0.1
port_search_limit: 10
live_reload: false
stop_timeout: 2s
`
	require.NoError(t, os.WriteFile(FilePath(dir), []byte(content), 0600))

	opts, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, IsolationProcess, opts.Isolation)
	assert.Equal(t, "127.0.0.1", opts.BindHost)
	assert.Equal(t, 10, opts.PortSearchLimit)
	assert.False(t, opts.LiveReload)
	assert.Equal(t, 2*time.Second, opts.StopTimeout)
	assert.Equal(t, "index.html", opts.DefaultDocument)
}

func TestLoadRejectsInvalidIsolation(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(FilePath(dir), []byte("isolation: vm\n"), 0600))

	_, err := Load(dir)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidOptions))
}

func TestSaveRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	opts := DefaultOptions(dir)
	opts.MetricsListen = "127.0.0.1:9464"
	require.NoError(t, opts.Save())

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9464", loaded.MetricsListen)
}

func TestBaseDirHonoursEnv(t *testing.T) {
	t.Setenv("LIVESERVE_HOME", "/tmp/liveserve-test")
	dir, err := BaseDir()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/liveserve-test", dir)
}
