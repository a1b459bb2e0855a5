// Package search turns a wanted book into a ranked download candidate.
// It fans the query out to the indexers, filters results that do not
// match the wanted title, and hands the survivors to the scoring
// engine.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tomearr/tomearr/internal/pipeline"
	"github.com/tomearr/tomearr/internal/scoring"
	"github.com/tomearr/tomearr/pkg/newznab"
	"github.com/tomearr/tomearr/pkg/release"
)

// ErrNoCandidates is returned when no result survives matching and the
// confidence floor.
var ErrNoCandidates = errors.New("no viable candidates")

// DefaultMinConfidence is the floor below which the best candidate is
// still rejected.
const DefaultMinConfidence = 50

// Request describes what to search for.
type Request struct {
	Title  string
	Author string
}

// Selection is the winning candidate plus ranking context.
type Selection struct {
	Selected   pipeline.Selected
	Assessment scoring.Assessment
	Candidates int // viable candidates considered
}

// resultSource is the slice of IndexerPool the service needs; tests
// substitute a fake.
type resultSource interface {
	Search(ctx context.Context, query string) ([]newznab.Result, []error)
}

// Service selects the best release for a wanted book.
type Service struct {
	pool          resultSource
	engine        *scoring.Engine
	minConfidence int
	log           *slog.Logger
}

// NewService creates a search service. minConfidence <= 0 selects the
// default floor.
func NewService(pool *IndexerPool, engine *scoring.Engine, minConfidence int, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return newService(pool, engine, minConfidence, log)
}

func newService(pool resultSource, engine *scoring.Engine, minConfidence int, log *slog.Logger) *Service {
	if minConfidence <= 0 {
		minConfidence = DefaultMinConfidence
	}
	return &Service{
		pool:          pool,
		engine:        engine,
		minConfidence: minConfidence,
		log:           log.With("component", "search"),
	}
}

// FindBest searches, filters, ranks, and returns the winning candidate.
// A total indexer outage is an error; finding nothing viable is
// ErrNoCandidates.
func (s *Service) FindBest(ctx context.Context, req Request) (*Selection, error) {
	query := req.Title
	if req.Author != "" {
		query = req.Title + " " + req.Author
	}

	results, errs := s.pool.Search(ctx, query)
	if len(results) == 0 && len(errs) > 0 {
		return nil, fmt.Errorf("all indexers failed: %w", errors.Join(errs...))
	}

	candidates := s.toCandidates(req, results)
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}

	ranked := s.engine.Rank(candidates)
	best := ranked[0]
	if best.Assessment.Confidence < s.minConfidence {
		s.log.Debug("best candidate below floor",
			"title", best.Candidate.Title,
			"confidence", best.Assessment.Confidence,
			"floor", s.minConfidence)
		return nil, ErrNoCandidates
	}

	s.log.Info("candidate selected",
		"title", best.Candidate.Title,
		"indexer", best.Candidate.Indexer,
		"format", best.Candidate.Format,
		"confidence", best.Assessment.Confidence,
		"rating", best.Assessment.Rating(),
		"candidates", len(candidates))

	return &Selection{
		Selected: pipeline.Selected{
			Reference:  best.Candidate.Reference,
			Title:      best.Candidate.Title,
			Indexer:    best.Candidate.Indexer,
			SourceType: best.Candidate.SourceType,
			Format:     best.Candidate.Format,
			Bitrate:    best.Candidate.Bitrate,
			Size:       best.Candidate.Size,
			Confidence: best.Assessment.Confidence,
		},
		Assessment: best.Assessment,
		Candidates: len(candidates),
	}, nil
}

// toCandidates parses each result and drops the ones whose title does
// not match what we asked for. Author mismatch also rejects, but only
// when both sides have an author to compare.
func (s *Service) toCandidates(req Request, results []newznab.Result) []scoring.Candidate {
	candidates := make([]scoring.Candidate, 0, len(results))
	for _, r := range results {
		info := release.Parse(r.Title)

		title := info.Title
		if title == "" {
			title = r.Title
		}
		if release.Match(req.Title, title).Confidence == release.ConfidenceNone {
			continue
		}
		if req.Author != "" && info.Author != "" {
			if release.Match(req.Author, info.Author).Confidence == release.ConfidenceNone {
				continue
			}
		}

		reference := r.DownloadURL
		sourceType := pipeline.SourceUsenet
		if r.Protocol == newznab.ProtocolTorrent {
			sourceType = pipeline.SourceTorrent
			if r.MagnetURL != "" {
				reference = r.MagnetURL
			}
		}

		candidates = append(candidates, scoring.Candidate{
			Title:      r.Title,
			Author:     info.Author,
			Format:     info.Format,
			Bitrate:    info.Bitrate,
			Size:       r.Size,
			Seeders:    r.Seeders,
			Peers:      r.Peers,
			Indexer:    r.Indexer,
			Reference:  reference,
			SourceType: sourceType,
		})
	}
	return candidates
}
