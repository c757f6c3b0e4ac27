package daemon

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigParsesYaml(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "udcnd.yaml")
	yaml := `
bind_address: 0.0.0.0
port: 6363
mtu: 1400
min_mtu: 576
max_mtu: 9000
cache_capacity: 5000
idle_timeout_s: 30
retries: 3
retry_interval_ms: 100
enable_ml_mtu_prediction: true
log_level: DEBUG
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", cfg.BindAddress)
	assert.Equal(t, uint16(6363), cfg.Port)
	assert.Equal(t, 1400, cfg.MTU)
	assert.Equal(t, 5000, cfg.CacheCapacity)
	assert.True(t, cfg.EnableMLMTUPrediction)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
}

func TestLoadConfigMissingFileErrors(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
