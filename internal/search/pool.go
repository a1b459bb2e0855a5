package search

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/tomearr/tomearr/pkg/newznab"
	"github.com/tomearr/tomearr/pkg/release"
)

// ErrNoIndexers is returned when no indexers are configured.
var ErrNoIndexers = errors.New("no indexers configured")

// Audiobook categories queried on every search.
var audiobookCategories = []int{newznab.CategoryAudio, newznab.CategoryAudiobook}

// IndexerPool fans a query out to every configured indexer in parallel
// and merges the results. One slow or broken indexer never hides the
// others' results.
type IndexerPool struct {
	clients []*newznab.Client
	log     *slog.Logger
}

// NewIndexerPool creates a pool from the given clients.
func NewIndexerPool(clients []*newznab.Client, log *slog.Logger) *IndexerPool {
	if log == nil {
		log = slog.Default()
	}
	return &IndexerPool{clients: clients, log: log.With("component", "search")}
}

// Search queries all indexers in parallel. Partial failure is normal:
// results from healthy indexers come back alongside the errors.
func (p *IndexerPool) Search(ctx context.Context, query string) ([]newznab.Result, []error) {
	searchText := release.NormalizeSearchQuery(query)
	p.log.Debug("search started", "query", searchText, "original", query, "indexers", len(p.clients))
	start := time.Now()

	if len(p.clients) == 0 {
		return nil, []error{ErrNoIndexers}
	}

	type result struct {
		results []newznab.Result
		err     error
	}

	results := make(chan result, len(p.clients))
	var wg sync.WaitGroup

	for _, client := range p.clients {
		wg.Add(1)
		go func(c *newznab.Client) {
			defer wg.Done()
			indexerStart := time.Now()
			found, err := c.Search(ctx, searchText, audiobookCategories)
			if err != nil {
				p.log.Warn("indexer failed", "indexer", c.Name(), "error", err, "duration_ms", time.Since(indexerStart).Milliseconds())
			} else {
				p.log.Debug("indexer returned", "indexer", c.Name(), "results", len(found), "duration_ms", time.Since(indexerStart).Milliseconds())
			}
			results <- result{results: found, err: err}
		}(client)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var all []newznab.Result
	var errs []error
	for r := range results {
		if r.err != nil {
			errs = append(errs, r.err)
			continue
		}
		all = append(all, r.results...)
	}

	p.log.Info("search complete", "query", searchText, "results", len(all), "errors", len(errs), "duration_ms", time.Since(start).Milliseconds())
	return all, errs
}
