package queue

import (
	"errors"
	"fmt"
	"time"

	"github.com/tomearr/tomearr/internal/pipeline"
)

// Transition applies one state-machine event to the item and persists the
// result under the optimistic version check. Invalid events leave the row
// untouched. Retry-exhaustion failures ARE persisted (the item moves to
// failed) and the wrapped ErrRetriesExhausted is still returned so callers
// can record the cause.
func (s *Store) Transition(item *pipeline.Item, event pipeline.Event) error {
	from := item.Status

	_, applyErr := pipeline.Apply(item, event, s.limits)
	if applyErr != nil && !errors.Is(applyErr, pipeline.ErrRetriesExhausted) {
		return applyErr
	}

	now := time.Now().UTC()
	switch item.Status {
	case pipeline.StatusDownloading:
		if item.StartedAt == nil {
			t := now
			item.StartedAt = &t
		}
	case pipeline.StatusImported, pipeline.StatusSeedingComplete,
		pipeline.StatusFailed, pipeline.StatusCancelled:
		if item.CompletedAt == nil {
			t := now
			item.CompletedAt = &t
		}
	}

	to := item.Status
	if err := s.Update(item); err != nil {
		// Roll the in-memory status back so the caller's copy matches the row.
		item.Status = from
		return fmt.Errorf("persist transition %s -> %s: %w", from, to, err)
	}

	s.emit(TransitionEvent{
		ItemID:   item.ID,
		Identity: item.Identity,
		From:     from,
		To:       item.Status,
		Progress: item.Progress.Percent,
		At:       now,
	})

	return applyErr
}

// SetError records the last error message on an item without changing state.
func (s *Store) SetError(item *pipeline.Item, cause error) error {
	if cause != nil {
		item.LastError = cause.Error()
	}
	return s.Update(item)
}

func (s *Store) emit(e TransitionEvent) {
	for _, h := range s.handlers {
		h(e)
	}
}

// stuckRollbacks maps transient processing states to the state each rolls
// back to when the daemon restarts mid-flight. Download-side states are not
// rolled back: the external client still holds the job and reconciliation
// picks it up again.
var stuckRollbacks = map[pipeline.Status]pipeline.Status{
	pipeline.StatusSearching:  pipeline.StatusQueued,
	pipeline.StatusConverting: pipeline.StatusDownloadComplete,
	pipeline.StatusImporting:  pipeline.StatusDownloadComplete,
}

// ResetStuckProcessing rolls items abandoned in transient processing states
// back to their stage entry point. Called once at daemon start, before the
// scheduler loop begins.
func (s *Store) ResetStuckProcessing() (int64, error) {
	var total int64
	for from, to := range stuckRollbacks {
		res, err := s.db.Exec(`
			UPDATE pipeline_items
			SET status = ?, version = version + 1
			WHERE status = ?`,
			to, from,
		)
		if err != nil {
			return total, fmt.Errorf("reset stuck items %s: %w", from, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("rows affected: %w", err)
		}
		total += n
	}
	return total, nil
}
