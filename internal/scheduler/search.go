package scheduler

import (
	"context"
	"errors"

	"github.com/tomearr/tomearr/internal/events"
	"github.com/tomearr/tomearr/internal/pipeline"
	"github.com/tomearr/tomearr/internal/search"
)

// admitSearches moves queued items into searching while the active
// search count stays under budget, then makes sure every searching item
// has a worker. Searching items without a worker exist after a transition
// that outlived its goroutine, for example when a tick was interrupted.
func (s *Scheduler) admitSearches(ctx context.Context) {
	searching := s.listStatus(pipeline.StatusSearching)

	budget := s.cfg.MaxActiveSearches - len(searching)
	if budget > 0 {
		for _, item := range s.listStatus(pipeline.StatusQueued) {
			if budget <= 0 {
				break
			}
			if !s.transition(item, pipeline.EventSubmitForSearch) {
				continue
			}
			searching = append(searching, item)
			budget--
		}
	}

	for _, item := range searching {
		s.spawnSearch(ctx, item)
	}
}

func (s *Scheduler) spawnSearch(ctx context.Context, item *pipeline.Item) {
	if !s.markInFlight(item.ID) {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.clearInFlight(item.ID)
		if err := s.searchSem.Acquire(ctx, 1); err != nil {
			return
		}
		defer s.searchSem.Release(1)
		s.runSearch(ctx, item)
	}()
}

func (s *Scheduler) runSearch(ctx context.Context, item *pipeline.Item) {
	log := s.log.With("item_id", item.ID, "title", item.Title)

	// Searches fan out to every indexer, so give them twice the
	// single-call budget.
	cctx, cancel := context.WithTimeout(ctx, 2*s.cfg.OpTimeout)
	defer cancel()

	sel, err := s.searcher.FindBest(cctx, search.Request{
		Title:  item.Title,
		Author: item.Author,
	})
	switch {
	case err == nil:
		selected := sel.Selected
		item.Selected = &selected
		if !s.transition(item, pipeline.EventCandidateFound) {
			return
		}
		log.Info("candidate found",
			"release", selected.Title,
			"indexer", selected.Indexer,
			"source", selected.SourceType,
			"confidence", selected.Confidence)
		s.publish(ctx, &events.SearchCompleted{
			BaseEvent:   events.NewBaseEvent(events.EventSearchCompleted, events.EntityItem, item.ID),
			Identity:    item.Identity,
			ReleaseName: selected.Title,
			Indexer:     selected.Indexer,
			SourceType:  string(selected.SourceType),
			Score:       selected.Confidence,
			Candidates:  sel.Candidates,
		})

	case errors.Is(err, search.ErrNoCandidates):
		log.Info("no viable candidate")
		s.publish(ctx, &events.SearchExhausted{
			BaseEvent: events.NewBaseEvent(events.EventSearchExhausted, events.EntityItem, item.ID),
			Identity:  item.Identity,
			Attempt:   item.Retries.Search + 1,
		})
		if err := s.store.SetError(item, search.ErrNoCandidates); err != nil {
			log.Warn("record error", "error", err)
			return
		}
		s.transition(item, pipeline.EventNoCandidate)
		s.publish(ctx, &events.ItemFailed{
			BaseEvent: events.NewBaseEvent(events.EventItemFailed, events.EntityItem, item.ID),
			Identity:  item.Identity,
			Stage:     string(pipeline.StageSearch),
			Reason:    item.LastError,
		})

	default:
		log.Warn("search failed", "error", err)
		s.failStage(ctx, item, pipeline.EventSearchError, pipeline.StageSearch, err)
	}
}
