package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.Port)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 60*time.Second, cfg.RetryDelay)
	assert.Equal(t, 7*24*time.Hour, cfg.TaskTTL)
	assert.Equal(t, 30*24*time.Hour, cfg.ScriptTTL)
	assert.Equal(t, 5*time.Minute, cfg.AnalysisTimeout)
	assert.Equal(t, int64(20<<20), cfg.MaxVideoSize)
	assert.False(t, cfg.AuthEnable)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("VIDANALYZER_PORT", "9000")
	t.Setenv("VIDANALYZER_DOWNLOAD_TIMEOUT", "90s")
	t.Setenv("VIDANALYZER_MAX_VIDEO_SIZE", "50MB")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, 90*time.Second, cfg.DownloadTimeout)
	assert.Equal(t, int64(50<<20), cfg.MaxVideoSize)
}
