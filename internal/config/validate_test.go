package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg := &Config{
		Library: LibraryConfig{Root: t.TempDir()},
		Indexers: map[string]IndexerConfig{
			"geek": {URL: "https://api.example.com", APIKey: "key", Protocol: "usenet"},
		},
		Downloaders: DownloadersConfig{
			SABnzbd: &SABnzbdConfig{URL: "http://sab:8080", APIKey: "sabkey"},
		},
	}
	cfg.applyDefaults()
	return cfg
}

func hasError(errs []string, substr string) bool {
	for _, e := range errs {
		if strings.Contains(e, substr) {
			return true
		}
	}
	return false
}

func TestValidate_MinimalValid(t *testing.T) {
	assert.Empty(t, validConfig(t).Validate())
}

func TestValidate_NoLibrary(t *testing.T) {
	cfg := validConfig(t)
	cfg.Library.Root = ""
	assert.True(t, hasError(cfg.Validate(), "library.root: required"))
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := validConfig(t)
	cfg.Server.Port = 70000
	assert.True(t, hasError(cfg.Validate(), "server.port"))
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := validConfig(t)
	cfg.Server.LogLevel = "verbose"
	assert.True(t, hasError(cfg.Validate(), "server.log_level"))
}

func TestValidate_NoIndexers(t *testing.T) {
	cfg := validConfig(t)
	cfg.Indexers = nil
	assert.True(t, hasError(cfg.Validate(), "at least one indexer"))
}

func TestValidate_IndexerMissingAPIKey(t *testing.T) {
	cfg := validConfig(t)
	cfg.Indexers["geek"] = IndexerConfig{URL: "https://api.example.com"}
	assert.True(t, hasError(cfg.Validate(), "indexers.geek.api_key"))
}

func TestValidate_UnresolvedEnvVar(t *testing.T) {
	cfg := validConfig(t)
	cfg.Indexers["geek"] = IndexerConfig{URL: "https://api.example.com", APIKey: "${UNSET_VAR}"}
	assert.True(t, hasError(cfg.Validate(), "environment variable"))
}

func TestValidate_BadProtocol(t *testing.T) {
	cfg := validConfig(t)
	cfg.Indexers["geek"] = IndexerConfig{URL: "u", APIKey: "k", Protocol: "ftp"}
	assert.True(t, hasError(cfg.Validate(), "indexers.geek.protocol"))
}

func TestValidate_NoDownloaders(t *testing.T) {
	cfg := validConfig(t)
	cfg.Downloaders = DownloadersConfig{}
	assert.True(t, hasError(cfg.Validate(), "at least one download client"))
}

func TestValidate_TorrentIndexerWithoutTorrentClient(t *testing.T) {
	cfg := validConfig(t)
	cfg.Indexers["tracker"] = IndexerConfig{URL: "u", APIKey: "k", Protocol: "torrent"}
	errs := cfg.Validate()
	assert.True(t, hasError(errs, "torrent indexer configured without a torrent client"))

	cfg.Downloaders.QBittorrent = &QBittorrentConfig{URL: "http://qbt:8080"}
	assert.Empty(t, cfg.Validate())
}

func TestValidate_LibraryRootWarning(t *testing.T) {
	cfg := validConfig(t)
	cfg.Library.Root = "/definitely/not/a/real/path"
	errs := cfg.Validate()
	require.NotEmpty(t, errs)
	assert.True(t, hasError(errs, "does not exist"))
}
