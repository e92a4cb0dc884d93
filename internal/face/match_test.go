package face

import (
	"math"
	"math/rand"
	"testing"

	"github.com/andresmejia3/checkpoint/internal/types"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a    []float64
		b    []float64
		want float64
	}{
		{
			name: "Identical vectors",
			a:    []float64{1.0, 0.0},
			b:    []float64{1.0, 0.0},
			want: 1.0,
		},
		{
			name: "Orthogonal vectors",
			a:    []float64{1.0, 0.0},
			b:    []float64{0.0, 1.0},
			want: 0.0,
		},
		{
			name: "Opposite vectors",
			a:    []float64{1.0, 0.0},
			b:    []float64{-1.0, 0.0},
			want: -1.0,
		},
		{
			name: "B is scaled",
			a:    []float64{0.2, 0.4},
			b:    []float64{0.5, 1.0},
			want: 1.0, // brightness scaling does not change direction
		},
		{
			name: "Zero vector",
			a:    []float64{0, 0},
			b:    []float64{1, 0},
			want: 0.0,
		},
		{
			name: "Length mismatch",
			a:    []float64{1, 0, 0},
			b:    []float64{1, 0},
			want: 0.0,
		},
		{
			name: "Empty vectors",
			a:    []float64{},
			b:    []float64{},
			want: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(NewSignature(tt.a), NewSignature(tt.b))
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CosineSimilarity() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCosineSimilarity_SymmetricAndBounded(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	randomSig := func(nonNegative bool) Signature {
		v := make([]float64, 64)
		for i := range v {
			v[i] = rng.Float64()
			if !nonNegative {
				v[i] = v[i]*2 - 1
			}
		}
		return NewSignature(v)
	}

	for i := 0; i < 200; i++ {
		nonNeg := i%2 == 0
		a, b := randomSig(nonNeg), randomSig(nonNeg)

		ab, ba := CosineSimilarity(a, b), CosineSimilarity(b, a)
		if math.Abs(ab-ba) > 1e-12 {
			t.Fatalf("not symmetric: %f vs %f", ab, ba)
		}
		if ab < -1 || ab > 1 {
			t.Fatalf("out of [-1,1]: %f", ab)
		}
		if nonNeg && ab < 0 {
			t.Fatalf("non-negative inputs gave negative similarity %f", ab)
		}
	}
}

func TestMatcher_IdenticalSignature(t *testing.T) {
	alice := mustExtract(t, patternImage(90, 110, 5))
	bob := mustExtract(t, patternImage(90, 110, 23))

	g := NewGallery()
	g.Put("alice", alice)
	g.Put("bob", bob)

	res := NewMatcher(g, DefaultThreshold).Match(alice)
	if res.Label != "alice" {
		t.Errorf("expected alice, got %q", res.Label)
	}
	if math.Abs(res.Confidence-1.0) > 1e-9 {
		t.Errorf("expected confidence 1.0, got %f", res.Confidence)
	}

	res = NewMatcher(g, DefaultThreshold).Match(bob)
	if res.Label != "bob" {
		t.Errorf("expected bob, got %q", res.Label)
	}
}

func TestMatcher_EmptyGallery(t *testing.T) {
	sig := mustExtract(t, patternImage(30, 30, 2))

	for name, g := range map[string]*Gallery{"empty": NewGallery(), "nil": nil} {
		t.Run(name, func(t *testing.T) {
			res := NewMatcher(g, DefaultThreshold).Match(sig)
			if res != (types.MatchResult{Label: types.UnknownLabel, Confidence: 0}) {
				t.Errorf("expected Unknown/0, got %+v", res)
			}
		})
	}
}

func TestMatcher_Threshold(t *testing.T) {
	g := NewGallery()
	g.Put("x", NewSignature([]float64{1, 0}))

	tests := []struct {
		name      string
		query     []float64
		wantLabel string
	}{
		{name: "orthogonal rejected", query: []float64{0, 1}, wantLabel: types.UnknownLabel},
		{name: "at threshold rejected", query: []float64{0.6, 0.8}, wantLabel: types.UnknownLabel},
		{name: "above threshold accepted", query: []float64{0.8, 0.6}, wantLabel: "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := NewMatcher(g, DefaultThreshold).Match(NewSignature(tt.query))
			if res.Label != tt.wantLabel {
				t.Errorf("Match() label = %q, want %q (confidence %f)", res.Label, tt.wantLabel, res.Confidence)
			}
			if res.Label == types.UnknownLabel && res.Confidence != 0 {
				t.Errorf("expected zero confidence for Unknown, got %f", res.Confidence)
			}
		})
	}
}

func TestMatcher_TieKeepsGalleryOrder(t *testing.T) {
	same := []float64{0.3, 0.7, 0.1}
	g := NewGallery()
	g.Put("zed", NewSignature(same))
	g.Put("amy", NewSignature(same))

	for i := 0; i < 10; i++ {
		if res := NewMatcher(g, DefaultThreshold).Match(NewSignature(same)); res.Label != "zed" {
			t.Fatalf("expected first gallery entry zed to win the tie, got %q", res.Label)
		}
	}
}
