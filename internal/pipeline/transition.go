package pipeline

import (
	"errors"
	"fmt"
)

// Sentinel errors for the pipeline package.
var (
	// ErrInvalidTransition is returned when an event is not legal for the
	// item's current status.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrRetriesExhausted wraps transitions that fail an item because a
	// stage's retry budget ran out.
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// Event drives the state machine.
type Event string

const (
	EventSubmitForSearch    Event = "submit_for_search"
	EventSkipSearch         Event = "skip_search" // pre-selected candidate, straight to found
	EventCandidateFound     Event = "candidate_found"
	EventNoCandidate        Event = "no_candidate"
	EventSearchError        Event = "search_error" // transient, counted
	EventClientAccepted     Event = "client_accepted"
	EventClientRejected     Event = "client_rejected"
	EventProgressComplete   Event = "progress_complete"
	EventPauseRequested     Event = "pause_requested"
	EventResumeRequested    Event = "resume_requested"
	EventClientError        Event = "client_error"
	EventNeedsConversion    Event = "needs_conversion"
	EventNoConversionNeeded Event = "no_conversion_needed"
	EventConversionDone     Event = "conversion_done"
	EventConversionError    Event = "conversion_error"
	EventImportDone         Event = "import_done"
	EventImportError        Event = "import_error"
	EventStartSeeding       Event = "start_seeding"
	EventSeedGoalMet        Event = "seed_goal_met"
	EventOperatorCancel     Event = "operator_cancel"
	EventOperatorRetry      Event = "operator_retry"
	EventOperatorRequeue    Event = "operator_requeue"
)

// Limits holds the configured per-stage retry budgets.
type Limits struct {
	Search     int
	Download   int
	Conversion int
	Import     int
}

// Max returns the budget for a stage.
func (l Limits) Max(s Stage) int {
	switch s {
	case StageSearch:
		return l.Search
	case StageDownload:
		return l.Download
	case StageConversion:
		return l.Conversion
	case StageImport:
		return l.Import
	}
	return 0
}

// transition is one row of the transition table: an event legal in a given
// state, the state it leads to, and the retry stage it consumes (if any).
type transition struct {
	to    Status
	stage Stage // non-empty: bump this counter; exhaustion fails the item instead
}

// table maps (status, event) to the resulting transition. Cancellation and
// operator retry are handled in Apply since they cut across states.
var table = map[Status]map[Event]transition{
	StatusQueued: {
		EventSubmitForSearch: {to: StatusSearching},
		EventSkipSearch:      {to: StatusFound},
	},
	StatusSearching: {
		EventCandidateFound: {to: StatusFound},
		EventNoCandidate:    {to: StatusFailed},
		EventSearchError:    {to: StatusQueued, stage: StageSearch},
	},
	StatusFound: {
		EventClientAccepted: {to: StatusDownloading},
		EventClientRejected: {to: StatusQueued, stage: StageDownload},
	},
	StatusDownloading: {
		EventProgressComplete: {to: StatusDownloadComplete},
		EventPauseRequested:   {to: StatusPaused},
		EventClientError:      {to: StatusQueued, stage: StageDownload},
	},
	StatusPaused: {
		EventResumeRequested: {to: StatusDownloading},
		// A transfer can finish while the pause request is in flight,
		// or the client may ignore the pause entirely.
		EventProgressComplete: {to: StatusDownloadComplete},
	},
	StatusDownloadComplete: {
		EventNeedsConversion:    {to: StatusConverting},
		EventNoConversionNeeded: {to: StatusImporting},
	},
	StatusConverting: {
		EventConversionDone:  {to: StatusConverted},
		EventConversionError: {to: StatusDownloadComplete, stage: StageConversion},
	},
	StatusConverted: {
		EventNoConversionNeeded: {to: StatusImporting},
	},
	StatusImporting: {
		EventImportDone:  {to: StatusImported},
		EventImportError: {to: StatusDownloadComplete, stage: StageImport},
	},
	StatusImported: {
		EventStartSeeding: {to: StatusSeeding},
	},
	StatusSeeding: {
		EventSeedGoalMet: {to: StatusSeedingComplete},
	},
}

// Apply runs one event against the item, mutating Status and retry counters.
// Transient stage errors re-enter queued and consume one retry; when a
// stage's budget is spent the item fails instead. Returns the new status or
// ErrInvalidTransition when the event is not legal in the current state.
func Apply(item *Item, ev Event, limits Limits) (Status, error) {
	switch ev {
	case EventOperatorCancel:
		if item.Status.Terminal() {
			return item.Status, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, item.Status, StatusCancelled)
		}
		item.Status = StatusCancelled
		return item.Status, nil

	case EventOperatorRetry:
		if !item.Status.Terminal() && item.Status != StatusError {
			return item.Status, fmt.Errorf("%w: retry from %s", ErrInvalidTransition, item.Status)
		}
		item.Retries.Reset()
		item.LastError = ""
		item.Status = StatusQueued
		return item.Status, nil

	case EventOperatorRequeue:
		// Forced restart: abandon the current candidate and search again.
		// Only in-flight items qualify; terminal items go through retry.
		if item.Status.Terminal() {
			return item.Status, fmt.Errorf("%w: requeue from %s", ErrInvalidTransition, item.Status)
		}
		item.Selected = nil
		item.ClientID = ""
		item.Progress = Progress{}
		item.Retries.Reset()
		item.LastError = ""
		item.Status = StatusQueued
		return item.Status, nil
	}

	events, ok := table[item.Status]
	if !ok {
		return item.Status, fmt.Errorf("%w: no events from %s", ErrInvalidTransition, item.Status)
	}
	tr, ok := events[ev]
	if !ok {
		return item.Status, fmt.Errorf("%w: %s not valid in %s", ErrInvalidTransition, ev, item.Status)
	}

	// Seeding only continues a torrent download; anything else treats
	// imported as terminal.
	if ev == EventStartSeeding {
		if item.Selected == nil || item.Selected.SourceType != SourceTorrent {
			return item.Status, fmt.Errorf("%w: seeding requires a torrent source", ErrInvalidTransition)
		}
	}

	if tr.stage != "" {
		item.Retries.Bump(tr.stage)
		if item.Retries.Get(tr.stage) > limits.Max(tr.stage) {
			item.Status = StatusFailed
			return item.Status, fmt.Errorf("%w: %s stage", ErrRetriesExhausted, tr.stage)
		}
	}

	item.Status = tr.to
	return item.Status, nil
}
