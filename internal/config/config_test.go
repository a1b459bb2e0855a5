package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ``))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8787, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.Equal(t, "./data/tomearr.db", cfg.Database.Path)
	assert.Equal(t, 10*time.Second, cfg.Scheduler.Interval.Std())
	assert.Equal(t, 2, cfg.Scheduler.MaxActiveSearches)
	assert.Equal(t, 3, cfg.Scheduler.MaxConcurrentDownloads)
	assert.Equal(t, 3, cfg.Retries.Search)
	assert.Equal(t, 2, cfg.Retries.Conversion)
	assert.True(t, cfg.Seeding.Enabled)
	assert.Equal(t, 1.0, cfg.Seeding.Ratio)
	assert.Equal(t, 72*time.Hour, cfg.Seeding.MaxSeedTime.Std())
	assert.Equal(t, 50, cfg.Search.MinConfidence)
	assert.Equal(t, "ffmpeg", cfg.Conversion.FFmpeg)
}

func TestLoad_FullConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
[server]
host = "127.0.0.1"
port = 9000
log_level = "debug"

[library]
root = "/srv/audiobooks"

[scheduler]
interval = "5s"
max_active_searches = 4

[seeding]
enabled = false
ratio = 2.0
max_seed_time = "48h"

[indexers.nzbgeek]
url = "https://api.nzbgeek.info"
api_key = "secret"
protocol = "usenet"

[indexers.audiotracker]
url = "http://localhost:9117/api/v2.0/indexers/audio/results/torznab"
api_key = "jackett-key"
protocol = "torrent"

[downloaders]
rewrite_host = "media.lan"

[downloaders.sabnzbd]
url = "http://sab:8080"
api_key = "sabkey"

[downloaders.qbittorrent]
url = "http://qbt:8080"
username = "admin"
password = "adminadmin"

[conversion]
activation_bytes = "1a2b3c4d"
`))
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "/srv/audiobooks", cfg.Library.Root)
	assert.Equal(t, 5*time.Second, cfg.Scheduler.Interval.Std())
	assert.Equal(t, 4, cfg.Scheduler.MaxActiveSearches)
	assert.False(t, cfg.Seeding.Enabled)
	assert.Equal(t, 2.0, cfg.Seeding.Ratio)
	assert.Equal(t, 48*time.Hour, cfg.Seeding.MaxSeedTime.Std())
	assert.Len(t, cfg.Indexers, 2)
	assert.Equal(t, "torrent", cfg.Indexers["audiotracker"].Protocol)
	assert.Equal(t, "media.lan", cfg.Downloaders.RewriteHost)
	assert.Equal(t, "audiobooks", cfg.Downloaders.SABnzbd.Category)
	assert.Equal(t, "audiobooks", cfg.Downloaders.QBittorrent.Category)
	assert.Equal(t, "1a2b3c4d", cfg.Conversion.ActivationBytes)
}

func TestLoad_IntervalClamped(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
[scheduler]
interval = "500ms"
`))
	require.NoError(t, err)
	assert.Equal(t, MinInterval, cfg.Scheduler.Interval.Std())

	cfg, err = Load(writeConfig(t, `
[scheduler]
interval = "10m"
`))
	require.NoError(t, err)
	assert.Equal(t, MaxInterval, cfg.Scheduler.Interval.Std())
}

func TestLoad_EnvSubstitution(t *testing.T) {
	t.Setenv("TOMEARR_TEST_KEY", "from-env")

	cfg, err := Load(writeConfig(t, `
[indexers.geek]
url = "https://api.example.com"
api_key = "${TOMEARR_TEST_KEY}"
`))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Indexers["geek"].APIKey)
}

func TestLoad_UnsetEnvLeftAlone(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
[indexers.geek]
url = "https://api.example.com"
api_key = "${TOMEARR_DEFINITELY_UNSET}"
`))
	require.NoError(t, err)
	assert.Equal(t, "${TOMEARR_DEFINITELY_UNSET}", cfg.Indexers["geek"].APIKey)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	assert.Error(t, err)
}

func TestLoad_BadTOML(t *testing.T) {
	_, err := Load(writeConfig(t, `[server` + "\n"))
	assert.Error(t, err)
}
