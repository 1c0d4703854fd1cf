// Package vector provides pure vector math for embedding similarity.
package vector

import (
	"fmt"
	"math"

	"github.com/kailas-cloud/matchd/internal/domain"
)

// CosineSimilarity returns the cosine of the angle between a and b:
// dot product over the product of L2 norms. Returns 0 when either
// vector has zero magnitude, so a missing or degenerate embedding can
// never divide by zero. NaN inputs are a documented precondition
// violation; callers must pre-validate.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", domain.ErrDimensionMismatch, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		av := float64(a[i])
		bv := float64(b[i])
		dot += av * bv
		normA += av * av
		normB += bv * bv
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// Validate checks that v is non-empty, has the expected dimension
// (when dim > 0), and contains no NaN or Inf components.
func Validate(v []float32, dim int) error {
	if len(v) == 0 {
		return fmt.Errorf("%w: empty vector", domain.ErrValidation)
	}
	if dim > 0 && len(v) != dim {
		return fmt.Errorf("%w: expected %d, got %d", domain.ErrDimensionMismatch, dim, len(v))
	}
	for i, c := range v {
		f := float64(c)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: non-finite component at %d", domain.ErrValidation, i)
		}
	}
	return nil
}
