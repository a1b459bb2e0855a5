// Package scheduler drives the pipeline. A periodic tick admits queued
// work under concurrency budgets, reconciles live transfers against the
// download clients, and dispatches conversion and import work to a
// bounded worker pool. Every item is handled in isolation: one bad item
// or one unreachable client never stalls the rest of the queue.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/tomearr/tomearr/internal/client"
	"github.com/tomearr/tomearr/internal/converter"
	"github.com/tomearr/tomearr/internal/events"
	"github.com/tomearr/tomearr/internal/importer"
	"github.com/tomearr/tomearr/internal/pipeline"
	"github.com/tomearr/tomearr/internal/queue"
	"github.com/tomearr/tomearr/internal/search"
)

// Searcher finds the best candidate for a wanted book.
type Searcher interface {
	FindBest(ctx context.Context, req search.Request) (*search.Selection, error)
}

// Importer moves a finished file into the library.
type Importer interface {
	Import(ctx context.Context, item *pipeline.Item) (*importer.Result, error)
}

// handleResolver is implemented by clients that cannot report a
// transfer ID synchronously on submit.
type handleResolver interface {
	ResolveHandle(ctx context.Context, name string) (client.Handle, error)
}

// maxResolveAttempts bounds how many ticks we spend looking for a
// submitted transfer the client has not surfaced yet.
const maxResolveAttempts = 5

// Config for the scheduler.
type Config struct {
	Interval               time.Duration
	MaxActiveSearches      int
	MaxConcurrentDownloads int
	StageWorkers           int

	// SeedingEnabled keeps torrents seeding after import; when off,
	// torrents terminate at imported.
	SeedingEnabled     bool
	SeedRatio          float64
	MaxSeedTime        time.Duration
	RemoveAfterSeeding bool

	// WorkDir stages conversion output.
	WorkDir string

	// OpTimeout bounds each individual client call.
	OpTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 10 * time.Second
	}
	if c.MaxActiveSearches <= 0 {
		c.MaxActiveSearches = 2
	}
	if c.MaxConcurrentDownloads <= 0 {
		c.MaxConcurrentDownloads = 3
	}
	if c.StageWorkers <= 0 {
		c.StageWorkers = 2
	}
	if c.OpTimeout <= 0 {
		c.OpTimeout = 30 * time.Second
	}
	if c.MaxSeedTime <= 0 {
		c.MaxSeedTime = 72 * time.Hour
	}
}

// Scheduler owns the tick loop.
type Scheduler struct {
	store     *queue.Store
	searcher  Searcher
	clients   map[pipeline.SourceType]client.Client
	converter converter.Converter
	importer  Importer
	bus       *events.Bus
	cfg       Config
	log       *slog.Logger

	searchSem *semaphore.Weighted
	stageSem  *semaphore.Weighted

	wg sync.WaitGroup

	mu              sync.Mutex
	inFlight        map[int64]struct{}
	resolveAttempts map[int64]int
}

// New creates a scheduler. Clients maps source types to the download
// client driving them; a missing entry rejects items of that source.
func New(
	store *queue.Store,
	searcher Searcher,
	clients map[pipeline.SourceType]client.Client,
	conv converter.Converter,
	imp Importer,
	bus *events.Bus,
	cfg Config,
	log *slog.Logger,
) *Scheduler {
	cfg.applyDefaults()
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		store:           store,
		searcher:        searcher,
		clients:         clients,
		converter:       conv,
		importer:        imp,
		bus:             bus,
		cfg:             cfg,
		log:             log.With("component", "scheduler"),
		searchSem:       semaphore.NewWeighted(int64(cfg.MaxActiveSearches)),
		stageSem:        semaphore.NewWeighted(int64(cfg.StageWorkers)),
		inFlight:        make(map[int64]struct{}),
		resolveAttempts: make(map[int64]int),
	}
}

// Run ticks until the context is canceled, then waits for in-flight
// workers to drain.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("scheduler started",
		"interval", s.cfg.Interval,
		"max_searches", s.cfg.MaxActiveSearches,
		"max_downloads", s.cfg.MaxConcurrentDownloads)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			s.log.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one reconciliation pass. Exported for the tests; Run is
// the production entry point.
func (s *Scheduler) Tick(ctx context.Context) {
	s.admitSearches(ctx)
	s.admitDownloads(ctx)
	s.reconcileTransfers(ctx)
	s.reconcileSeeding(ctx)
	s.dispatchStages(ctx)
}

// Wait blocks until all spawned workers finish. Used by tests.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// markInFlight claims an item for an async worker. Returns false when
// another worker already owns it.
func (s *Scheduler) markInFlight(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[id]; busy {
		return false
	}
	s.inFlight[id] = struct{}{}
	return true
}

func (s *Scheduler) clearInFlight(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, id)
}

func (s *Scheduler) clientFor(item *pipeline.Item) client.Client {
	if item.Selected == nil {
		return nil
	}
	return s.clients[item.Selected.SourceType]
}

func (s *Scheduler) publish(ctx context.Context, e events.Event) {
	if s.bus == nil {
		return
	}
	_ = s.bus.Publish(ctx, e)
}

// transition applies an event and logs failures without propagating:
// a transition rejected because the operator moved the item first is
// normal, not an error to act on.
func (s *Scheduler) transition(item *pipeline.Item, ev pipeline.Event) bool {
	if err := s.store.Transition(item, ev); err != nil {
		s.log.Warn("transition failed",
			"item_id", item.ID,
			"status", item.Status,
			"event", ev,
			"error", err)
		return false
	}
	return true
}

// failStage records the cause and applies a stage-error event. When the
// stage's retry budget is exhausted the item lands in failed and an
// ItemFailed event goes out on the bus.
func (s *Scheduler) failStage(ctx context.Context, item *pipeline.Item, ev pipeline.Event, stage pipeline.Stage, cause error) {
	if cause != nil {
		if err := s.store.SetError(item, cause); err != nil {
			s.log.Warn("record error", "item_id", item.ID, "error", err)
			return
		}
	}

	err := s.store.Transition(item, ev)
	switch {
	case err == nil:
		s.log.Info("stage retry scheduled",
			"item_id", item.ID,
			"stage", stage,
			"attempt", item.Retries.Get(stage),
			"cause", item.LastError)
	case errors.Is(err, pipeline.ErrRetriesExhausted):
		s.log.Warn("retries exhausted",
			"item_id", item.ID,
			"stage", stage,
			"cause", item.LastError)
		s.publish(ctx, &events.ItemFailed{
			BaseEvent: events.NewBaseEvent(events.EventItemFailed, events.EntityItem, item.ID),
			Identity:  item.Identity,
			Stage:     string(stage),
			Reason:    item.LastError,
		})
	default:
		s.log.Warn("stage error transition failed",
			"item_id", item.ID,
			"status", item.Status,
			"event", ev,
			"error", err)
	}
}

func (s *Scheduler) listStatus(statuses ...pipeline.Status) []*pipeline.Item {
	items, err := s.store.List(queue.Filter{Statuses: statuses})
	if err != nil {
		s.log.Error("list items", "error", err)
		return nil
	}
	return items
}
