// Package scoring implements the candidate quality-assessment engine.
// Assess is deterministic and side-effect free: the same candidate always
// produces the same assessment.
package scoring

import (
	"sort"

	"github.com/tomearr/tomearr/internal/pipeline"
)

// Component weights. They sum to 1.0 so the weighted total stays on the
// same 0-10 scale as the component scores.
const (
	weightFormat       = 0.30
	weightBitrate      = 0.25
	weightReputation   = 0.20
	weightCompleteness = 0.15
	weightAvailability = 0.10
)

// defaultReputation is used until a reputation feed is wired in.
const defaultReputation = 7.0

// Candidate is one unranked search result. Ephemeral: only the chosen one
// survives the search phase, copied onto the pipeline item.
type Candidate struct {
	Title      string
	Author     string
	Format     string // normalized container, e.g. "m4b", "mp3"
	Bitrate    int    // kbps, 0 when unknown
	Size       int64  // bytes, 0 when unknown
	Seeders    int
	Peers      int
	Indexer    string
	Reference  string // download URL or magnet
	SourceType pipeline.SourceType
}

// Assessment is the derived quality view of a candidate. Never mutated in
// place; recomputed on demand.
type Assessment struct {
	Format       float64
	Bitrate      float64
	Reputation   float64
	Completeness float64
	Availability float64
	TotalScore   float64 // 0-10
	Confidence   int     // 0-100
}

// Rating buckets an assessment's confidence into an operator-facing label.
type Rating string

const (
	RatingExcellent Rating = "excellent"
	RatingGood      Rating = "good"
	RatingFair      Rating = "fair"
	RatingPoor      Rating = "poor"
)

// Rating returns the label for this assessment's confidence.
func (a Assessment) Rating() Rating {
	switch {
	case a.Confidence >= 90:
		return RatingExcellent
	case a.Confidence >= 75:
		return RatingGood
	case a.Confidence >= 50:
		return RatingFair
	default:
		return RatingPoor
	}
}

// ReputationSource supplies per-indexer reputation scores (0-10).
type ReputationSource interface {
	Reputation(indexer string) float64
}

// Engine assesses and ranks candidates.
type Engine struct {
	reputation ReputationSource
}

// NewEngine creates an engine. reputation may be nil, in which case every
// indexer gets the fixed default.
func NewEngine(reputation ReputationSource) *Engine {
	return &Engine{reputation: reputation}
}

// formatScores is the exact-match container table. The preferred audiobook
// container scores highest; lossless formats rank below it because of their
// size on disk, not their fidelity.
var formatScores = map[string]float64{
	"m4b":  10,
	"m4a":  8,
	"mp3":  7,
	"aac":  7,
	"ogg":  6,
	"opus": 6,
	"flac": 7,
	"wma":  3,
	"aax":  5, // DRM-wrapped, conversion required
}

// bestFormat is the container that earns the best-format bonus.
const bestFormat = "m4b"

func formatScore(format string) float64 {
	if s, ok := formatScores[format]; ok {
		return s
	}
	return 1
}

// bitrateScore interpolates piecewise over kbps.
func bitrateScore(kbps int) float64 {
	b := float64(kbps)
	switch {
	case kbps >= 320:
		return 10
	case kbps >= 128:
		return 8 + (b-128)/(320-128)*2
	case kbps >= 96:
		return 6 + (b-96)/(128-96)*2
	case kbps >= 64:
		return 3 + (b-64)/(96-64)*3
	case kbps > 0:
		return 1
	default:
		return 0
	}
}

func completenessScore(c Candidate) float64 {
	var s float64
	if c.Title != "" {
		s += 4
	}
	if c.Author != "" {
		s += 4
	}
	if c.Size > 0 {
		s += 2
	}
	if s > 10 {
		s = 10
	}
	return s
}

// availabilityScore maps seeder counts to a 0-10 score. Non-P2P sources are
// always available and score full marks.
func availabilityScore(c Candidate) float64 {
	if c.SourceType != pipeline.SourceTorrent {
		return 10
	}
	switch {
	case c.Seeders >= 50:
		return 10
	case c.Seeders >= 10:
		return 8
	case c.Seeders >= 5:
		return 6
	case c.Seeders >= 2:
		return 4
	case c.Seeders == 1:
		return 2
	default:
		return 0
	}
}

func (e *Engine) reputationScore(indexer string) float64 {
	if e.reputation == nil {
		return defaultReputation
	}
	s := e.reputation.Reputation(indexer)
	if s < 0 {
		return 0
	}
	if s > 10 {
		return 10
	}
	return s
}

// missingMetadataFields counts absent fields among title, author, size.
func missingMetadataFields(c Candidate) int {
	n := 0
	if c.Title == "" {
		n++
	}
	if c.Author == "" {
		n++
	}
	if c.Size <= 0 {
		n++
	}
	return n
}

// Assess scores a single candidate.
func (e *Engine) Assess(c Candidate) Assessment {
	a := Assessment{
		Format:       formatScore(c.Format),
		Bitrate:      bitrateScore(c.Bitrate),
		Reputation:   e.reputationScore(c.Indexer),
		Completeness: completenessScore(c),
		Availability: availabilityScore(c),
	}

	a.TotalScore = a.Format*weightFormat +
		a.Bitrate*weightBitrate +
		a.Reputation*weightReputation +
		a.Completeness*weightCompleteness +
		a.Availability*weightAvailability

	confidence := a.TotalScore * 10

	// Penalties.
	if c.SourceType == pipeline.SourceTorrent && c.Seeders <= 0 {
		confidence -= 20
	}
	if _, known := formatScores[c.Format]; !known {
		confidence -= 15
	}
	if c.SourceType == pipeline.SourceTorrent && c.Seeders >= 1 && c.Seeders <= 2 {
		confidence -= 10
	}
	if c.Bitrate <= 0 {
		confidence -= 10
	} else if c.Bitrate < 96 {
		if c.Bitrate < 64 {
			confidence -= 10
		} else {
			confidence -= 5
		}
	}
	if missing := missingMetadataFields(c); missing > 0 {
		confidence -= float64(5 * missing) // -5 per missing field, -15 floor case
	}

	// Bonuses.
	if c.SourceType == pipeline.SourceTorrent && c.Seeders >= 50 {
		confidence += 5
	}
	if c.Format == bestFormat {
		confidence += 5
	}
	if c.Bitrate >= 256 {
		confidence += 3
	}
	if missingMetadataFields(c) == 0 {
		confidence += 2
	}

	if confidence < 0 {
		confidence = 0
	}
	if confidence > 100 {
		confidence = 100
	}
	a.Confidence = int(confidence + 0.5)
	if a.Confidence > 100 {
		a.Confidence = 100
	}

	return a
}

// Ranked pairs a candidate with its assessment.
type Ranked struct {
	Candidate  Candidate
	Assessment Assessment
}

// Rank assesses all candidates and returns them ordered best first:
// confidence descending, ties broken by total score descending, then
// availability descending. The sort is stable so equal candidates keep
// their input order.
func (e *Engine) Rank(candidates []Candidate) []Ranked {
	ranked := make([]Ranked, len(candidates))
	for i, c := range candidates {
		ranked[i] = Ranked{Candidate: c, Assessment: e.Assess(c)}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		ai, aj := ranked[i].Assessment, ranked[j].Assessment
		if ai.Confidence != aj.Confidence {
			return ai.Confidence > aj.Confidence
		}
		if ai.TotalScore != aj.TotalScore {
			return ai.TotalScore > aj.TotalScore
		}
		return ai.Availability > aj.Availability
	})

	return ranked
}
