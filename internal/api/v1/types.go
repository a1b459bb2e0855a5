package v1

import (
	"encoding/json"
	"time"
)

// addWantedRequest is the body for POST /wanted.
type addWantedRequest struct {
	Identity string `json:"identity,omitempty"`
	Title    string `json:"title"`
	Author   string `json:"author,omitempty"`
	Narrator string `json:"narrator,omitempty"`
	Priority int    `json:"priority,omitempty"`
}

// manualSelection is an operator-supplied candidate that skips search.
type manualSelection struct {
	Reference  string `json:"reference"`
	Title      string `json:"title"`
	Indexer    string `json:"indexer,omitempty"`
	SourceType string `json:"source_type"`
	Format     string `json:"format,omitempty"`
	Bitrate    int    `json:"bitrate,omitempty"`
	Size       int64  `json:"size,omitempty"`
}

// addManualRequest is the body for POST /wanted/manual.
type addManualRequest struct {
	addWantedRequest
	Selection manualSelection `json:"selection"`
}

// selectionResponse mirrors the candidate chosen for an item.
type selectionResponse struct {
	Reference  string `json:"reference"`
	Title      string `json:"title"`
	Indexer    string `json:"indexer,omitempty"`
	SourceType string `json:"source_type"`
	Format     string `json:"format,omitempty"`
	Bitrate    int    `json:"bitrate,omitempty"`
	Size       int64  `json:"size,omitempty"`
	Confidence int    `json:"confidence"`
}

// itemResponse is the API representation of a pipeline item.
type itemResponse struct {
	ID       int64  `json:"id"`
	Identity string `json:"identity,omitempty"`
	Title    string `json:"title"`
	Author   string `json:"author,omitempty"`
	Narrator string `json:"narrator,omitempty"`
	Priority int    `json:"priority"`
	Status   string `json:"status"`

	Selected *selectionResponse `json:"selected,omitempty"`
	ClientID string             `json:"client_id,omitempty"`

	Progress       float64 `json:"progress"`
	SpeedBps       int64   `json:"speed_bps,omitempty"`
	ETASeconds     int64   `json:"eta_seconds,omitempty"`
	Ratio          float64 `json:"ratio,omitempty"`
	ElapsedSeconds int64   `json:"elapsed_seconds,omitempty"`

	DownloadPath  string `json:"download_path,omitempty"`
	ConvertedPath string `json:"converted_path,omitempty"`
	FinalPath     string `json:"final_path,omitempty"`

	LastError string `json:"last_error,omitempty"`

	SearchRetries     int `json:"search_retries,omitempty"`
	DownloadRetries   int `json:"download_retries,omitempty"`
	ConversionRetries int `json:"conversion_retries,omitempty"`
	ImportRetries     int `json:"import_retries,omitempty"`

	QueuedAt    time.Time  `json:"queued_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// listItemsResponse is the response for GET /queue.
type listItemsResponse struct {
	Items []itemResponse `json:"items"`
	Total int            `json:"total"`
}

// statsResponse is the response for GET /queue/stats.
type statsResponse struct {
	Counts map[string]int `json:"counts"`
	Total  int            `json:"total"`
	Active int            `json:"active"`
}

// eventResponse is one persisted event.
type eventResponse struct {
	ID         int64           `json:"id"`
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	EntityType string          `json:"entity_type"`
	EntityID   int64           `json:"entity_id"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	OccurredAt string          `json:"occurred_at"`
}

// listEventsResponse is the response for GET /events.
type listEventsResponse struct {
	Items []eventResponse `json:"items"`
	Total int             `json:"total"`
}
