package config

import (
	"fmt"
	"os"
	"strings"
)

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "error": true, "": true,
}

var validProtocols = map[string]bool{
	"usenet": true, "torrent": true,
}

// Validate checks the configuration for errors.
// Returns a slice of error messages (empty if valid).
func (c *Config) Validate() []string {
	var errs []string

	if c.Library.Root == "" {
		errs = append(errs, "library.root: required")
	}

	if c.Server.Port != 0 && (c.Server.Port < 1 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server.port: must be between 1 and 65535, got %d", c.Server.Port))
	}
	if !validLogLevels[c.Server.LogLevel] {
		errs = append(errs, fmt.Sprintf("server.log_level: must be one of debug, info, warn, error; got %q", c.Server.LogLevel))
	}

	if len(c.Indexers) == 0 {
		errs = append(errs, "indexers: at least one indexer must be configured")
	}
	for name, indexer := range c.Indexers {
		if indexer.URL == "" {
			errs = append(errs, fmt.Sprintf("indexers.%s.url: required", name))
		}
		if indexer.APIKey == "" {
			errs = append(errs, fmt.Sprintf("indexers.%s.api_key: required", name))
		} else if strings.HasPrefix(indexer.APIKey, "${") {
			errs = append(errs, fmt.Sprintf("indexers.%s.api_key: environment variable %s is not set", name, indexer.APIKey))
		}
		if indexer.Protocol != "" && !validProtocols[indexer.Protocol] {
			errs = append(errs, fmt.Sprintf("indexers.%s.protocol: must be usenet or torrent, got %q", name, indexer.Protocol))
		}
	}

	if c.Downloaders.SABnzbd == nil && c.Downloaders.QBittorrent == nil {
		errs = append(errs, "downloaders: at least one download client must be configured")
	}
	if sab := c.Downloaders.SABnzbd; sab != nil {
		if sab.URL == "" {
			errs = append(errs, "downloaders.sabnzbd.url: required when sabnzbd is configured")
		}
		if sab.APIKey == "" {
			errs = append(errs, "downloaders.sabnzbd.api_key: required when sabnzbd is configured")
		}
	}
	if qb := c.Downloaders.QBittorrent; qb != nil {
		if qb.URL == "" {
			errs = append(errs, "downloaders.qbittorrent.url: required when qbittorrent is configured")
		}
	}

	// Torrent indexers without a torrent client can never download.
	if c.Downloaders.QBittorrent == nil {
		for name, indexer := range c.Indexers {
			if indexer.Protocol == "torrent" {
				errs = append(errs, fmt.Sprintf("indexers.%s: torrent indexer configured without a torrent client", name))
			}
		}
	}

	if c.Seeding.Ratio < 0 {
		errs = append(errs, fmt.Sprintf("seeding.ratio: must not be negative, got %g", c.Seeding.Ratio))
	}
	if c.Search.MinConfidence < 0 || c.Search.MinConfidence > 100 {
		errs = append(errs, fmt.Sprintf("search.min_confidence: must be 0-100, got %d", c.Search.MinConfidence))
	}

	// Library path warning (non-fatal in spirit, surfaced the same way).
	if c.Library.Root != "" {
		if _, err := os.Stat(c.Library.Root); os.IsNotExist(err) {
			errs = append(errs, fmt.Sprintf("library.root: warning: directory %q does not exist", c.Library.Root))
		}
	}

	return errs
}
