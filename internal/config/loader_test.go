package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, meta, err := Load()
	require.NoError(t, err)
	require.Equal(t, DefaultHeartbeatDelay, cfg.HeartbeatDelay)
	require.Equal(t, DefaultMaxNumberWorkers, cfg.MaxNumberWorkers)
	require.Equal(t, SourceDefault, meta.Source("heartbeat_delay"))
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/idds.yaml"
	require.NoError(t, os.WriteFile(path, []byte("heartbeat_delay: 45s\nmax_new_retries: 7\n"), 0o600))

	cfg, meta, err := Load(WithConfigPath(path))
	require.NoError(t, err)
	require.Equal(t, 45*time.Second, cfg.HeartbeatDelay)
	require.Equal(t, 7, cfg.MaxNewRetries)
	require.Equal(t, SourceFile, meta.Source("heartbeat_delay"))
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	_, _, err := Load(WithConfigPath("/nonexistent/idds.yaml"))
	require.NoError(t, err)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	lookup := func(key string) (string, bool) {
		if key == "IDDS_HEARTBEAT_DELAY" {
			return "90s", true
		}
		return "", false
	}
	dir := t.TempDir()
	path := dir + "/idds.yaml"
	require.NoError(t, os.WriteFile(path, []byte("heartbeat_delay: 45s\n"), 0o600))

	cfg, meta, err := Load(WithConfigPath(path), WithEnv(lookup))
	require.NoError(t, err)
	require.Equal(t, 90*time.Second, cfg.HeartbeatDelay)
	require.Equal(t, SourceEnv, meta.Source("heartbeat_delay"))
}

func TestLoadOverridesWinOverEverything(t *testing.T) {
	hb := 5 * time.Minute
	cfg, meta, err := Load(WithOverrides(Overrides{HeartbeatDelay: &hb}))
	require.NoError(t, err)
	require.Equal(t, 5*time.Minute, cfg.HeartbeatDelay)
	require.Equal(t, SourceOverride, meta.Source("heartbeat_delay"))
}

func TestNormalizeConfigClampsInvalidValues(t *testing.T) {
	cfg := defaultConfig()
	cfg.NumThreads = 0
	cfg.MaxNumberWorkers = 1
	cfg.RetrieveBulkSize = -5
	normalizeConfig(&cfg)
	require.Equal(t, DefaultNumThreads, cfg.NumThreads)
	require.GreaterOrEqual(t, cfg.MaxNumberWorkers, cfg.NumThreads)
	require.Equal(t, DefaultRetrieveBulkSize, cfg.RetrieveBulkSize)
}
