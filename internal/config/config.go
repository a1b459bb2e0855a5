// Package config handles TOML configuration loading with environment
// variable substitution.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration wraps time.Duration so TOML files can say "30s" or "72h".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for toml decoding.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root configuration structure.
type Config struct {
	Server      ServerConfig             `toml:"server"`
	Database    DatabaseConfig           `toml:"database"`
	Library     LibraryConfig            `toml:"library"`
	Scheduler   SchedulerConfig          `toml:"scheduler"`
	Retries     RetriesConfig            `toml:"retries"`
	Seeding     SeedingConfig            `toml:"seeding"`
	Search      SearchConfig             `toml:"search"`
	Indexers    map[string]IndexerConfig `toml:"indexers"`
	Downloaders DownloadersConfig        `toml:"downloaders"`
	Conversion  ConversionConfig         `toml:"conversion"`
}

type ServerConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	LogLevel string `toml:"log_level"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type LibraryConfig struct {
	// Root is where imported audiobooks land.
	Root string `toml:"root"`
	// WorkDir stages conversion output before import.
	WorkDir string `toml:"work_dir"`
}

type SchedulerConfig struct {
	// Interval between reconciliation passes, clamped to [2s, 30s].
	Interval               Duration `toml:"interval"`
	MaxActiveSearches      int      `toml:"max_active_searches"`
	MaxConcurrentDownloads int      `toml:"max_concurrent_downloads"`
	// StageWorkers bounds concurrent conversions and imports.
	StageWorkers int `toml:"stage_workers"`
}

type RetriesConfig struct {
	Search     int `toml:"search"`
	Download   int `toml:"download"`
	Conversion int `toml:"conversion"`
	Import     int `toml:"import"`
}

type SeedingConfig struct {
	// Enabled keeps torrents seeding after import. When off, torrents
	// finish at imported like any other source.
	Enabled bool `toml:"enabled"`
	// Ratio at which a torrent's seeding obligation is met.
	Ratio float64 `toml:"ratio"`
	// MaxSeedTime caps seeding regardless of ratio.
	MaxSeedTime Duration `toml:"max_seed_time"`
	// RemoveAfterSeeding deletes the client job and files once done.
	RemoveAfterSeeding bool `toml:"remove_after_seeding"`
}

type SearchConfig struct {
	// MinConfidence rejects the best candidate when it scores lower.
	MinConfidence int `toml:"min_confidence"`
}

type IndexerConfig struct {
	URL    string `toml:"url"`
	APIKey string `toml:"api_key"`
	// Protocol is "usenet" or "torrent".
	Protocol string `toml:"protocol"`
}

type DownloadersConfig struct {
	// RewriteHost replaces loopback hosts in download URLs so a remote
	// client can fetch them.
	RewriteHost string             `toml:"rewrite_host"`
	SABnzbd     *SABnzbdConfig     `toml:"sabnzbd"`
	QBittorrent *QBittorrentConfig `toml:"qbittorrent"`
}

type SABnzbdConfig struct {
	URL      string `toml:"url"`
	APIKey   string `toml:"api_key"`
	Category string `toml:"category"`
}

type QBittorrentConfig struct {
	URL      string `toml:"url"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	Category string `toml:"category"`
}

type ConversionConfig struct {
	FFmpeg          string `toml:"ffmpeg"`
	ActivationBytes string `toml:"activation_bytes"`
}

// Scheduler interval bounds. Values outside are clamped, not rejected.
const (
	MinInterval = 2 * time.Second
	MaxInterval = 30 * time.Second
)

// Load reads and parses the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	content := substituteEnvVars(string(data))

	// Booleans that default on are seeded before decoding; toml only
	// overwrites keys the file actually sets.
	cfg := Config{Seeding: SeedingConfig{Enabled: true}}
	if _, err := toml.Decode(content, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8787
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Database.Path == "" {
		c.Database.Path = "./data/tomearr.db"
	}
	if c.Library.WorkDir == "" {
		c.Library.WorkDir = "./data/work"
	}

	if c.Scheduler.Interval == 0 {
		c.Scheduler.Interval = Duration(10 * time.Second)
	}
	if c.Scheduler.Interval.Std() < MinInterval {
		c.Scheduler.Interval = Duration(MinInterval)
	}
	if c.Scheduler.Interval.Std() > MaxInterval {
		c.Scheduler.Interval = Duration(MaxInterval)
	}
	if c.Scheduler.MaxActiveSearches == 0 {
		c.Scheduler.MaxActiveSearches = 2
	}
	if c.Scheduler.MaxConcurrentDownloads == 0 {
		c.Scheduler.MaxConcurrentDownloads = 3
	}
	if c.Scheduler.StageWorkers == 0 {
		c.Scheduler.StageWorkers = 2
	}

	if c.Retries.Search == 0 {
		c.Retries.Search = 3
	}
	if c.Retries.Download == 0 {
		c.Retries.Download = 3
	}
	if c.Retries.Conversion == 0 {
		c.Retries.Conversion = 2
	}
	if c.Retries.Import == 0 {
		c.Retries.Import = 2
	}

	if c.Seeding.Ratio == 0 {
		c.Seeding.Ratio = 1.0
	}
	if c.Seeding.MaxSeedTime == 0 {
		c.Seeding.MaxSeedTime = Duration(72 * time.Hour)
	}

	if c.Search.MinConfidence == 0 {
		c.Search.MinConfidence = 50
	}

	if c.Conversion.FFmpeg == "" {
		c.Conversion.FFmpeg = "ffmpeg"
	}

	if sab := c.Downloaders.SABnzbd; sab != nil && sab.Category == "" {
		sab.Category = "audiobooks"
	}
	if qb := c.Downloaders.QBittorrent; qb != nil && qb.Category == "" {
		qb.Category = "audiobooks"
	}
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable
// values. Unset variables are left as-is so validation can flag them.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

func substituteEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		varName := match[2 : len(match)-1]
		if value, ok := os.LookupEnv(varName); ok {
			return value
		}
		return match
	})
}
