package scheduler

import (
	"context"
	"fmt"

	"github.com/tomearr/tomearr/internal/client"
	"github.com/tomearr/tomearr/internal/events"
	"github.com/tomearr/tomearr/internal/pipeline"
)

// admitDownloads hands found items to their download client while the
// active transfer count stays under budget.
func (s *Scheduler) admitDownloads(ctx context.Context) {
	active := len(s.listStatus(pipeline.StatusDownloading))
	budget := s.cfg.MaxConcurrentDownloads - active
	if budget <= 0 {
		return
	}

	for _, item := range s.listStatus(pipeline.StatusFound) {
		if budget <= 0 {
			return
		}
		if s.submitDownload(ctx, item) {
			budget--
		}
	}
}

func (s *Scheduler) submitDownload(ctx context.Context, item *pipeline.Item) bool {
	log := s.log.With("item_id", item.ID, "title", item.Title)

	c := s.clientFor(item)
	if c == nil {
		var src pipeline.SourceType
		if item.Selected != nil {
			src = item.Selected.SourceType
		}
		s.failStage(ctx, item, pipeline.EventClientRejected, pipeline.StageDownload,
			fmt.Errorf("no download client for source %q", src))
		return false
	}

	cctx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
	defer cancel()

	h, err := c.Submit(cctx, client.SubmitRequest{
		URL:  item.Selected.Reference,
		Name: item.Selected.Title,
	})
	if err != nil {
		log.Warn("client rejected download", "client", c.Name(), "error", err)
		s.failStage(ctx, item, pipeline.EventClientRejected, pipeline.StageDownload,
			fmt.Errorf("submit to %s: %w", c.Name(), err))
		return false
	}

	// Some clients cannot report an ID at submit time; reconciliation
	// resolves the handle by release name on later ticks.
	item.ClientID = h.ID
	if !s.transition(item, pipeline.EventClientAccepted) {
		return false
	}

	log.Info("download submitted", "client", c.Name(), "client_id", h.ID)
	if h.ID != "" {
		s.publish(ctx, &events.DownloadLinked{
			BaseEvent:   events.NewBaseEvent(events.EventDownloadLinked, events.EntityItem, item.ID),
			Identity:    item.Identity,
			ClientID:    h.ID,
			Client:      c.Name(),
			ReleaseName: item.Selected.Title,
		})
	}
	return true
}
