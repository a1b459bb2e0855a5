// Package pipeline defines the persisted unit of work and its state machine.
package pipeline

import (
	"time"
)

// SourceType identifies where a selected candidate came from. Catalog sources
// deliver DRM-wrapped containers and require conversion before import;
// torrent and usenet payloads arrive in library formats.
type SourceType string

const (
	SourceCatalog SourceType = "catalog"
	SourceTorrent SourceType = "torrent"
	SourceUsenet  SourceType = "usenet"
)

// NeedsConversion reports whether payloads from this source must be
// transcoded before they can be imported.
func (s SourceType) NeedsConversion() bool {
	return s == SourceCatalog
}

// Stage is one phase of the pipeline with its own retry budget.
type Stage string

const (
	StageSearch     Stage = "search"
	StageDownload   Stage = "download"
	StageConversion Stage = "conversion"
	StageImport     Stage = "import"
)

// RetryCounters tracks per-stage retry consumption for one pipeline run.
type RetryCounters struct {
	Search     int
	Download   int
	Conversion int
	Import     int
}

// Get returns the counter for a stage.
func (r RetryCounters) Get(s Stage) int {
	switch s {
	case StageSearch:
		return r.Search
	case StageDownload:
		return r.Download
	case StageConversion:
		return r.Conversion
	case StageImport:
		return r.Import
	}
	return 0
}

// Bump increments the counter for a stage.
func (r *RetryCounters) Bump(s Stage) {
	switch s {
	case StageSearch:
		r.Search++
	case StageDownload:
		r.Download++
	case StageConversion:
		r.Conversion++
	case StageImport:
		r.Import++
	}
}

// Reset zeroes all counters. Only the operator retry action may call this.
func (r *RetryCounters) Reset() {
	*r = RetryCounters{}
}

// Selected is the chosen candidate copied onto the item once search picks a
// winner. Reference is a download URL, magnet link, or catalog asset ID.
type Selected struct {
	Reference  string
	Title      string
	Indexer    string
	SourceType SourceType
	Format     string
	Bitrate    int
	Size       int64
	Confidence int
}

// Progress is the live transfer view reconciled from the download client.
type Progress struct {
	Percent float64 // 0-100
	Speed   int64   // bytes/sec
	ETA     time.Duration
	Ratio   float64
	Elapsed time.Duration
}

// Item is the persisted unit of work tracked through the state machine.
// All mutation goes through the queue store; Status changes only via Apply.
type Item struct {
	ID       int64
	Identity string // stable external key, empty for non-catalog items
	Title    string
	Author   string
	Narrator string
	Priority int

	Status   Status
	Selected *Selected
	ClientID string // handle in the download client once submitted

	Progress Progress
	Retries  RetryCounters

	DownloadPath  string
	ConvertedPath string
	FinalPath     string

	LastError string

	QueuedAt    time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time

	Version int64 // optimistic concurrency
}

// Terminal reports whether the item can no longer advance.
func (i *Item) Terminal() bool {
	return i.Status.Terminal()
}
