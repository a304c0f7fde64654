// Package similarity scores how alike two short texts are, in [0,1].
package similarity

import (
	"fmt"
	"math"
	"strings"

	"github.com/xrash/smetrics"
)

// Algorithm names accepted by New.
const (
	Jaccard     = "jaccard"
	JaroWinkler = "jarowinkler"
)

// DefaultThreshold is the score at or above which two texts are near-duplicates.
const DefaultThreshold = 0.7

// Scorer computes a symmetric, reflexive similarity score.
type Scorer interface {
	Score(a, b string) float64
}

// ScorerFunc adapts a function to Scorer.
type ScorerFunc func(a, b string) float64

func (f ScorerFunc) Score(a, b string) float64 { return f(a, b) }

// New returns the scorer registered under name. An empty name selects Jaccard.
func New(name string) (Scorer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", Jaccard:
		return ScorerFunc(JaccardScore), nil
	case JaroWinkler, "jaro-winkler":
		return ScorerFunc(JaroWinklerScore), nil
	default:
		return nil, fmt.Errorf("unknown similarity algorithm %q", name)
	}
}

// JaccardScore is |A∩B| / |A∪B| over the lower-cased, whitespace-separated word sets.
func JaccardScore(a, b string) float64 {
	sa, sb := wordSet(a), wordSet(b)
	if len(sa) == 0 && len(sb) == 0 {
		return 1
	}
	inter := 0
	for w := range sa {
		if _, ok := sb[w]; ok {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	return float64(inter) / float64(union)
}

// JaroWinklerScore runs Jaro–Winkler over the full lower-cased strings.
// Inputs are put in a fixed order so the score does not depend on argument order.
func JaroWinklerScore(a, b string) float64 {
	a, b = strings.ToLower(a), strings.ToLower(b)
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	if a > b {
		a, b = b, a
	}
	s := smetrics.JaroWinkler(a, b, 0.7, 4)
	switch {
	case math.IsNaN(s), s < 0:
		return 0
	case s > 1:
		return 1
	}
	return s
}

// Match is a history text that scored at or above the threshold.
type Match struct {
	Text  string
	Score float64
}

// FindDuplicate returns the highest-scoring text among corpus with a score >= threshold.
func FindDuplicate(s Scorer, candidate string, corpus []string, threshold float64) (Match, bool) {
	var best Match
	found := false
	for _, c := range corpus {
		score := s.Score(candidate, c)
		if score >= threshold && (!found || score > best.Score) {
			best = Match{Text: c, Score: score}
			found = true
		}
	}
	return best, found
}

func wordSet(s string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}
