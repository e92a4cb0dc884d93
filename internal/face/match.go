package face

import (
	"math"

	"github.com/andresmejia3/checkpoint/internal/types"
)

// DefaultThreshold is the similarity a match has to strictly exceed.
const DefaultThreshold = 0.6

// CosineSimilarity returns the cosine of the angle between a and b, clamped to [-1, 1].
// Signatures of different length or with zero magnitude score 0.
func CosineSimilarity(a, b Signature) float64 {
	if len(a.values) != len(b.values) || len(a.values) == 0 {
		return 0
	}

	var dot, sumA, sumB float64
	for i := range a.values {
		dot += a.values[i] * b.values[i]
		sumA += a.values[i] * a.values[i]
		sumB += b.values[i] * b.values[i]
	}
	if sumA == 0 || sumB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(sumA) * math.Sqrt(sumB))
	// Floating point can push identical vectors just past 1
	if sim > 1 {
		sim = 1
	}
	if sim < -1 {
		sim = -1
	}
	return sim
}

// Matcher finds the closest gallery identity for a signature.
type Matcher interface {
	Match(sig Signature) types.MatchResult
}

// GalleryMatcher compares against every gallery entry in gallery order.
type GalleryMatcher struct {
	gallery   *Gallery
	threshold float64
}

// NewMatcher returns a matcher over g that accepts similarities strictly above threshold.
func NewMatcher(g *Gallery, threshold float64) *GalleryMatcher {
	return &GalleryMatcher{gallery: g, threshold: threshold}
}

// Match returns the most similar label, or types.UnknownLabel with confidence 0
// when the best similarity does not exceed the threshold or the gallery is empty.
// Ties keep the entry that comes first in gallery order.
func (m *GalleryMatcher) Match(sig Signature) types.MatchResult {
	best := types.MatchResult{Label: types.UnknownLabel}
	bestSim := math.Inf(-1)

	if m.gallery != nil {
		for _, label := range m.gallery.labels {
			sim := CosineSimilarity(sig, m.gallery.entries[label])
			if sim > bestSim {
				bestSim = sim
				best.Label = label
			}
		}
	}

	if bestSim > m.threshold {
		best.Confidence = bestSim
		return best
	}
	return types.MatchResult{Label: types.UnknownLabel, Confidence: 0}
}
