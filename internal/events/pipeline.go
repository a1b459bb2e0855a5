package events

import "github.com/tomearr/tomearr/internal/pipeline"

// Entity types
const (
	EntityItem = "item"
)

// Event type constants
const (
	EventItemQueued          = "item.queued"
	EventItemStateChanged    = "item.state.changed"
	EventItemProgressed      = "item.progressed"
	EventSearchCompleted     = "search.completed"
	EventSearchExhausted     = "search.exhausted"
	EventDownloadLinked      = "download.linked"
	EventConversionCompleted = "conversion.completed"
	EventImportCompleted     = "import.completed"
	EventSeedingCompleted    = "seeding.completed"
	EventItemFailed          = "item.failed"
)

// ItemQueued is emitted when a wanted book enters the pipeline.
type ItemQueued struct {
	BaseEvent
	Identity string `json:"identity"`
	Title    string `json:"title"`
	Author   string `json:"author,omitempty"`
	Priority int    `json:"priority"`
	Manual   bool   `json:"manual,omitempty"`
}

// ItemStateChanged is emitted on every committed pipeline transition.
type ItemStateChanged struct {
	BaseEvent
	Identity string  `json:"identity"`
	OldState string  `json:"old_state"`
	NewState string  `json:"new_state"`
	Progress float64 `json:"progress"`
}

// ItemProgressed is emitted when download progress moves meaningfully.
type ItemProgressed struct {
	BaseEvent
	Identity string  `json:"identity"`
	Progress float64 `json:"progress"`
	Speed    int64   `json:"speed_bps"`
	ETA      int64   `json:"eta_seconds"`
	Ratio    float64 `json:"ratio,omitempty"`
}

// SearchCompleted is emitted when a search pass picks a candidate.
type SearchCompleted struct {
	BaseEvent
	Identity    string `json:"identity"`
	ReleaseName string `json:"release_name"`
	Indexer     string `json:"indexer"`
	SourceType  string `json:"source_type"`
	Score       int    `json:"score"`
	Candidates  int    `json:"candidates"`
}

// SearchExhausted is emitted when a search pass finds no viable candidate.
type SearchExhausted struct {
	BaseEvent
	Identity string `json:"identity"`
	Attempt  int    `json:"attempt"`
}

// DownloadLinked is emitted once a client job is bound to an item.
type DownloadLinked struct {
	BaseEvent
	Identity    string `json:"identity"`
	ClientID    string `json:"client_id"`
	Client      string `json:"client"`
	ReleaseName string `json:"release_name"`
}

// ConversionCompleted is emitted after a successful aax to m4b conversion.
type ConversionCompleted struct {
	BaseEvent
	Identity   string `json:"identity"`
	SourcePath string `json:"source_path"`
	OutputPath string `json:"output_path"`
}

// ImportCompleted is emitted when a finished file lands in the library.
type ImportCompleted struct {
	BaseEvent
	Identity  string `json:"identity"`
	FinalPath string `json:"final_path"`
	SizeBytes int64  `json:"size_bytes"`
}

// SeedingCompleted is emitted when a torrent item meets its seed goal.
type SeedingCompleted struct {
	BaseEvent
	Identity string  `json:"identity"`
	Ratio    float64 `json:"ratio"`
	Elapsed  int64   `json:"elapsed_seconds"`
}

// ItemFailed is emitted when an item lands in a failure state.
type ItemFailed struct {
	BaseEvent
	Identity  string `json:"identity"`
	Stage     string `json:"stage"`
	Reason    string `json:"reason"`
	Retryable bool   `json:"retryable"`
}

// FromTransition builds the state-change event for a committed transition.
func FromTransition(itemID int64, identity string, from, to pipeline.Status, progress float64) *ItemStateChanged {
	return &ItemStateChanged{
		BaseEvent: NewBaseEvent(EventItemStateChanged, EntityItem, itemID),
		Identity:  identity,
		OldState:  string(from),
		NewState:  string(to),
		Progress:  progress,
	}
}
