package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomearr/tomearr/internal/client"
	"github.com/tomearr/tomearr/internal/events"
	"github.com/tomearr/tomearr/internal/pipeline"
)

// progressEpsilon is the minimum percent change worth persisting.
const progressEpsilon = 0.5

// reconcileTransfers polls the download clients for every live transfer
// and folds the reported state back into the queue.
func (s *Scheduler) reconcileTransfers(ctx context.Context) {
	for _, item := range s.listStatus(pipeline.StatusDownloading, pipeline.StatusPaused) {
		s.reconcileOne(ctx, item)
	}
}

func (s *Scheduler) reconcileOne(ctx context.Context, item *pipeline.Item) {
	log := s.log.With("item_id", item.ID, "title", item.Title)

	c := s.clientFor(item)
	if c == nil {
		s.failStage(ctx, item, pipeline.EventClientError, pipeline.StageDownload,
			errors.New("download client no longer configured"))
		return
	}

	if item.ClientID == "" && !s.resolveHandle(ctx, item, c) {
		return
	}

	cctx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
	defer cancel()

	st, err := c.Status(cctx, client.Handle{Client: c.Name(), ID: item.ClientID})
	switch {
	case errors.Is(err, client.ErrNotFound):
		log.Warn("transfer vanished from client", "client", c.Name(), "client_id", item.ClientID)
		item.ClientID = ""
		s.failStage(ctx, item, pipeline.EventClientError, pipeline.StageDownload,
			fmt.Errorf("transfer removed from %s", c.Name()))
		return
	case err != nil:
		// A client outage is not the item's fault. Leave the item
		// alone and try again next tick.
		log.Warn("client status failed", "client", c.Name(), "error", err)
		return
	}

	if st.State == client.StateFailed {
		s.failStage(ctx, item, pipeline.EventClientError, pipeline.StageDownload,
			fmt.Errorf("%s reported the transfer failed", c.Name()))
		return
	}

	done := st.State == client.StateCompleted ||
		st.State == client.StateSeeding ||
		st.Progress >= 100
	if done {
		item.Progress.Percent = 100
		item.Progress.Speed = 0
		item.Progress.ETA = 0
		item.Progress.Ratio = st.Ratio
		item.DownloadPath = st.Path
		if s.transition(item, pipeline.EventProgressComplete) {
			log.Info("download complete", "path", st.Path)
		}
		return
	}

	moved := st.Progress-item.Progress.Percent >= progressEpsilon
	item.Progress.Percent = st.Progress
	item.Progress.Speed = st.Speed
	item.Progress.ETA = time.Duration(st.ETA) * time.Second
	item.Progress.Ratio = st.Ratio
	item.Progress.Elapsed = time.Duration(st.Elapsed) * time.Second
	if st.Path != "" {
		item.DownloadPath = st.Path
	}
	if err := s.store.Update(item); err != nil {
		log.Warn("persist progress", "error", err)
		return
	}
	if moved {
		s.publish(ctx, &events.ItemProgressed{
			BaseEvent: events.NewBaseEvent(events.EventItemProgressed, events.EntityItem, item.ID),
			Identity:  item.Identity,
			Progress:  st.Progress,
			Speed:     st.Speed,
			ETA:       st.ETA,
			Ratio:     st.Ratio,
		})
	}
}

// resolveHandle looks up the client-side ID for a transfer that was
// submitted without one, matching by release name. Gives up after a few
// ticks so a swallowed submission does not pin the item forever.
func (s *Scheduler) resolveHandle(ctx context.Context, item *pipeline.Item, c client.Client) bool {
	log := s.log.With("item_id", item.ID, "title", item.Title)

	resolver, ok := c.(handleResolver)
	if !ok {
		s.failStage(ctx, item, pipeline.EventClientError, pipeline.StageDownload,
			fmt.Errorf("%s returned no transfer id", c.Name()))
		return false
	}

	s.mu.Lock()
	s.resolveAttempts[item.ID]++
	attempts := s.resolveAttempts[item.ID]
	s.mu.Unlock()

	cctx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
	defer cancel()

	name := item.Title
	if item.Selected != nil {
		name = item.Selected.Title
	}
	h, err := resolver.ResolveHandle(cctx, name)
	if err != nil {
		if attempts >= maxResolveAttempts {
			s.clearResolveAttempts(item.ID)
			s.failStage(ctx, item, pipeline.EventClientError, pipeline.StageDownload,
				fmt.Errorf("transfer never appeared in %s", c.Name()))
			return false
		}
		log.Debug("transfer not visible yet", "client", c.Name(), "attempt", attempts)
		return false
	}

	s.clearResolveAttempts(item.ID)
	item.ClientID = h.ID
	if err := s.store.Update(item); err != nil {
		log.Warn("persist client id", "error", err)
		return false
	}
	log.Info("transfer linked", "client", c.Name(), "client_id", h.ID)
	s.publish(ctx, &events.DownloadLinked{
		BaseEvent:   events.NewBaseEvent(events.EventDownloadLinked, events.EntityItem, item.ID),
		Identity:    item.Identity,
		ClientID:    h.ID,
		Client:      c.Name(),
		ReleaseName: name,
	})
	return true
}

func (s *Scheduler) clearResolveAttempts(id int64) {
	s.mu.Lock()
	delete(s.resolveAttempts, id)
	s.mu.Unlock()
}

// reconcileSeeding checks torrent items against the seed goal and
// finishes them once ratio or time is met. A transfer the client has
// already dropped counts as goal met.
func (s *Scheduler) reconcileSeeding(ctx context.Context) {
	for _, item := range s.listStatus(pipeline.StatusSeeding) {
		s.reconcileSeedingOne(ctx, item)
	}
}

func (s *Scheduler) reconcileSeedingOne(ctx context.Context, item *pipeline.Item) {
	log := s.log.With("item_id", item.ID, "title", item.Title)

	c := s.clientFor(item)
	if c == nil || item.ClientID == "" {
		s.finishSeeding(ctx, item, nil, nil)
		return
	}

	cctx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
	defer cancel()

	h := client.Handle{Client: c.Name(), ID: item.ClientID}
	st, err := c.Status(cctx, h)
	switch {
	case errors.Is(err, client.ErrNotFound):
		s.finishSeeding(ctx, item, nil, nil)
		return
	case err != nil:
		log.Warn("client status failed", "client", c.Name(), "error", err)
		return
	}

	item.Progress.Ratio = st.Ratio
	item.Progress.Elapsed = time.Duration(st.Elapsed) * time.Second

	goalMet := (s.cfg.SeedRatio > 0 && st.Ratio >= s.cfg.SeedRatio) ||
		item.Progress.Elapsed >= s.cfg.MaxSeedTime
	if !goalMet {
		if err := s.store.Update(item); err != nil {
			log.Warn("persist seed progress", "error", err)
		}
		return
	}

	log.Info("seed goal met",
		"ratio", st.Ratio,
		"elapsed", item.Progress.Elapsed,
		"target_ratio", s.cfg.SeedRatio)
	s.finishSeeding(ctx, item, c, &h)
}

func (s *Scheduler) finishSeeding(ctx context.Context, item *pipeline.Item, c client.Client, h *client.Handle) {
	if !s.transition(item, pipeline.EventSeedGoalMet) {
		return
	}
	s.publish(ctx, &events.SeedingCompleted{
		BaseEvent: events.NewBaseEvent(events.EventSeedingCompleted, events.EntityItem, item.ID),
		Identity:  item.Identity,
		Ratio:     item.Progress.Ratio,
		Elapsed:   int64(item.Progress.Elapsed / time.Second),
	})

	if !s.cfg.RemoveAfterSeeding || c == nil || h == nil {
		return
	}
	cctx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
	defer cancel()
	if err := c.Remove(cctx, *h, true); err != nil {
		// The library copy is already safe; a leftover transfer is
		// only clutter in the client.
		s.log.Warn("remove seeded transfer",
			"item_id", item.ID,
			"client", c.Name(),
			"error", err)
	}
}
