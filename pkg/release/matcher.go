package release

import (
	"github.com/hbollon/go-edlib"
)

// MatchConfidence represents the confidence level of a fuzzy match.
type MatchConfidence int

const (
	ConfidenceNone   MatchConfidence = iota // Score < 0.70
	ConfidenceLow                           // Score >= 0.70
	ConfidenceMedium                        // Score >= 0.85
	ConfidenceHigh                          // Score >= 0.95
)

func (c MatchConfidence) String() string {
	switch c {
	case ConfidenceHigh:
		return "high"
	case ConfidenceMedium:
		return "medium"
	case ConfidenceLow:
		return "low"
	default:
		return "none"
	}
}

// MatchResult is the outcome of matching a parsed field against the wanted
// value.
type MatchResult struct {
	Score      float64 // Jaro-Winkler similarity, 0.0-1.0
	Confidence MatchConfidence
}

// Match compares a wanted title or author against a parsed one using
// Jaro-Winkler similarity, which favors shared prefixes, a good fit for
// book titles and "Lastname, Firstname" author shapes. Both sides are
// normalized first so accents, articles, and punctuation do not depress the
// score.
func Match(wanted, parsed string) MatchResult {
	if wanted == "" || parsed == "" {
		return MatchResult{Confidence: ConfidenceNone}
	}

	score := float64(edlib.JaroWinklerSimilarity(CleanTitle(wanted), CleanTitle(parsed)))

	return MatchResult{Score: score, Confidence: confidenceFor(score)}
}

func confidenceFor(score float64) MatchConfidence {
	switch {
	case score >= 0.95:
		return ConfidenceHigh
	case score >= 0.85:
		return ConfidenceMedium
	case score >= 0.70:
		return ConfidenceLow
	default:
		return ConfidenceNone
	}
}
