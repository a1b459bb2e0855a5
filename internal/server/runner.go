// Package server wires the daemon together: database, event bus,
// download clients, search, scheduler, and the HTTP API.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
	"golang.org/x/sync/errgroup"

	v1 "github.com/tomearr/tomearr/internal/api/v1"
	"github.com/tomearr/tomearr/internal/client"
	"github.com/tomearr/tomearr/internal/config"
	"github.com/tomearr/tomearr/internal/converter"
	"github.com/tomearr/tomearr/internal/events"
	"github.com/tomearr/tomearr/internal/importer"
	"github.com/tomearr/tomearr/internal/migrations"
	"github.com/tomearr/tomearr/internal/pipeline"
	"github.com/tomearr/tomearr/internal/queue"
	"github.com/tomearr/tomearr/internal/scheduler"
	"github.com/tomearr/tomearr/internal/scoring"
	"github.com/tomearr/tomearr/internal/search"
	"github.com/tomearr/tomearr/pkg/newznab"
)

// Runner owns the daemon's component lifecycle.
type Runner struct {
	cfg    *config.Config
	logger *slog.Logger
}

// NewRunner creates a runner for a validated config.
func NewRunner(cfg *config.Config, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{cfg: cfg, logger: logger}
}

// Run starts every component and blocks until the context is canceled
// or a component fails.
func (r *Runner) Run(ctx context.Context) error {
	cfg := r.cfg

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer func() { _ = db.Close() }()

	if _, err := db.Exec(migrations.InitialSQL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	// Stores and events
	store := queue.NewStore(db, pipeline.Limits{
		Search:     cfg.Retries.Search,
		Download:   cfg.Retries.Download,
		Conversion: cfg.Retries.Conversion,
		Import:     cfg.Retries.Import,
	})
	eventLog := events.NewEventLog(db)
	bus := events.NewBus(eventLog, r.logger.With("component", "bus"))
	defer bus.Close()

	store.OnTransition(func(e queue.TransitionEvent) {
		_ = bus.Publish(context.Background(),
			events.FromTransition(e.ItemID, e.Identity, e.From, e.To, e.Progress))
	})

	// Items abandoned mid-stage by the previous run re-enter their
	// stage before the first tick.
	if n, err := store.ResetStuckProcessing(); err != nil {
		return fmt.Errorf("reset stuck items: %w", err)
	} else if n > 0 {
		r.logger.Info("reset stuck items", "count", n)
	}

	// Download clients
	var rewriter *client.Rewriter
	if cfg.Downloaders.RewriteHost != "" {
		rewriter = client.NewRewriter(cfg.Downloaders.RewriteHost, r.logger.With("component", "rewriter"))
	}

	clients := make(map[pipeline.SourceType]client.Client)
	if sab := cfg.Downloaders.SABnzbd; sab != nil {
		clients[pipeline.SourceUsenet] = client.NewSABnzbd(client.SABnzbdConfig{
			URL:      sab.URL,
			APIKey:   sab.APIKey,
			Category: sab.Category,
		}, rewriter, r.logger.With("component", "sabnzbd"))
	}
	if qb := cfg.Downloaders.QBittorrent; qb != nil {
		clients[pipeline.SourceTorrent] = client.NewQBittorrent(client.QBittorrentConfig{
			Host:     qb.URL,
			Username: qb.Username,
			Password: qb.Password,
			Category: qb.Category,
		}, rewriter, r.logger.With("component", "qbittorrent"))
	}

	// Search
	indexers := make([]*newznab.Client, 0, len(cfg.Indexers))
	for name, ic := range cfg.Indexers {
		protocol := newznab.ProtocolUsenet
		if ic.Protocol == "torrent" {
			protocol = newznab.ProtocolTorrent
		}
		indexers = append(indexers, newznab.NewClient(name, ic.URL, ic.APIKey, protocol,
			r.logger.With("component", "indexer", "indexer", name)))
	}
	pool := search.NewIndexerPool(indexers, r.logger.With("component", "indexerpool"))
	searcher := search.NewService(pool, scoring.NewEngine(nil), cfg.Search.MinConfidence,
		r.logger.With("component", "search"))

	// Conversion and import
	ffmpeg := converter.NewFFmpeg(converter.Config{
		Binary:          cfg.Conversion.FFmpeg,
		ActivationBytes: cfg.Conversion.ActivationBytes,
	}, r.logger.With("component", "converter"))
	if err := ffmpeg.Check(); err != nil {
		r.logger.Warn("ffmpeg not available, conversions will fail", "error", err)
	}
	imp := importer.New(importer.Config{LibraryRoot: cfg.Library.Root},
		r.logger.With("component", "importer"))

	// Scheduler
	sched := scheduler.New(store, searcher, clients, ffmpeg, imp, bus, scheduler.Config{
		Interval:               cfg.Scheduler.Interval.Std(),
		MaxActiveSearches:      cfg.Scheduler.MaxActiveSearches,
		MaxConcurrentDownloads: cfg.Scheduler.MaxConcurrentDownloads,
		StageWorkers:           cfg.Scheduler.StageWorkers,
		SeedingEnabled:         cfg.Seeding.Enabled,
		SeedRatio:              cfg.Seeding.Ratio,
		MaxSeedTime:            cfg.Seeding.MaxSeedTime.Std(),
		RemoveAfterSeeding:     cfg.Seeding.RemoveAfterSeeding,
		WorkDir:                cfg.Library.WorkDir,
	}, r.logger)

	// HTTP API
	controllers := make(map[pipeline.SourceType]v1.TransferController, len(clients))
	for src, c := range clients {
		controllers[src] = c
	}
	api, err := v1.New(v1.ServerDeps{
		Queue:    store,
		Clients:  controllers,
		EventLog: eventLog,
		Bus:      bus,
	})
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	api.RegisterRoutes(mux)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: logRequests(mux, r.logger)}

	r.logger.Info("server starting",
		"addr", addr,
		"database", cfg.Database.Path,
		"library", cfg.Library.Root,
		"indexers", len(cfg.Indexers),
		"sabnzbd", cfg.Downloaders.SABnzbd != nil,
		"qbittorrent", cfg.Downloaders.QBittorrent != nil,
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	err = g.Wait()
	r.logger.Info("server stopped")
	return err
}
