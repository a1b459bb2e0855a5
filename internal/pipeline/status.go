package pipeline

// Status tracks pipeline state.
type Status string

const (
	StatusQueued           Status = "queued"
	StatusSearching        Status = "searching"
	StatusFound            Status = "found"
	StatusDownloading      Status = "downloading"
	StatusDownloadComplete Status = "download_complete"
	StatusConverting       Status = "converting"
	StatusConverted        Status = "converted"
	StatusImporting        Status = "importing"
	StatusImported         Status = "imported"
	StatusSeeding          Status = "seeding"
	StatusSeedingComplete  Status = "seeding_complete"
	StatusPaused           Status = "paused"
	StatusFailed           Status = "failed"
	StatusCancelled        Status = "cancelled"
	StatusError            Status = "error"
)

// validTransitions defines allowed state transitions.
// Key is the "from" status, value is list of valid "to" statuses.
// Cancellation edges are handled separately: every non-terminal state may
// transition to cancelled (see CanTransitionTo).
var validTransitions = map[Status][]Status{
	StatusQueued:           {StatusSearching, StatusFound, StatusFailed},
	StatusSearching:        {StatusFound, StatusQueued, StatusFailed},
	StatusFound:            {StatusDownloading, StatusQueued, StatusFailed},
	StatusDownloading:      {StatusDownloadComplete, StatusPaused, StatusQueued, StatusFailed},
	StatusPaused:           {StatusDownloading, StatusFailed},
	StatusDownloadComplete: {StatusConverting, StatusImporting, StatusFailed},
	StatusConverting:       {StatusConverted, StatusDownloadComplete, StatusFailed},
	StatusConverted:        {StatusImporting, StatusFailed},
	StatusImporting:        {StatusImported, StatusDownloadComplete, StatusFailed},
	StatusImported:         {StatusSeeding},
	StatusSeeding:          {StatusSeedingComplete, StatusFailed},
	StatusSeedingComplete:  {},
	StatusFailed:           {StatusQueued}, // operator retry only
	StatusCancelled:        {},
	StatusError:            {StatusQueued},
}

var allStatuses = []Status{
	StatusQueued, StatusSearching, StatusFound, StatusDownloading,
	StatusDownloadComplete, StatusConverting, StatusConverted,
	StatusImporting, StatusImported, StatusSeeding, StatusSeedingComplete,
	StatusPaused, StatusFailed, StatusCancelled, StatusError,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := validTransitions[s]
	return ok
}

// CanTransitionTo returns true if transitioning from s to target is valid.
func (s Status) CanTransitionTo(target Status) bool {
	if target == StatusCancelled {
		return !s.Terminal()
	}
	valid, ok := validTransitions[s]
	if !ok {
		return false
	}
	for _, v := range valid {
		if v == target {
			return true
		}
	}
	return false
}

// Terminal reports whether this status has no outgoing transitions other
// than operator actions. Imported is terminal for everything except the
// optional seeding continuation, which Apply gates on source type.
func (s Status) Terminal() bool {
	switch s {
	case StatusImported, StatusSeedingComplete, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Active reports whether the item holds a live download-client job.
func (s Status) Active() bool {
	switch s {
	case StatusDownloading, StatusPaused, StatusSeeding:
		return true
	}
	return false
}

// Statuses returns all known statuses in declaration order.
func Statuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}
