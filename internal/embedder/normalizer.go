package embedder

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/dshills/llmbridge/pkg/types"
)

// Standardization actions reported by Normalizer.Action.
const (
	ActionNone     = "none"
	ActionPad      = "pad"
	ActionTruncate = "truncate"
)

// Normalizer forces vectors to a fixed dimension and checks them.
type Normalizer struct {
	dimension int
}

// NewNormalizer returns a Normalizer for dimension, which must be positive.
func NewNormalizer(dimension int) (*Normalizer, error) {
	if dimension <= 0 {
		return nil, types.Configurationf("embedder: dimension must be positive, got %d", dimension)
	}
	return &Normalizer{dimension: dimension}, nil
}

// Dimension returns the target length.
func (n *Normalizer) Dimension() int {
	return n.dimension
}

// Action reports what Standardize will do to v.
func (n *Normalizer) Action(v []float64) string {
	switch {
	case len(v) < n.dimension:
		return ActionPad
	case len(v) > n.dimension:
		return ActionTruncate
	default:
		return ActionNone
	}
}

// Standardize returns a new slice of exactly Dimension elements: v
// zero-padded or truncated. The input is never aliased.
func (n *Normalizer) Standardize(v []float64) []float64 {
	out := make([]float64, n.dimension)
	copy(out, v)
	return out
}

// Validate returns ErrValidation unless v has the target length and every
// element is finite.
func (n *Normalizer) Validate(v []float64) error {
	if len(v) != n.dimension {
		return types.Validationf("embedder: expected %d dimensions, got %d", n.dimension, len(v))
	}
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return types.Validationf("embedder: element %d is not finite", i)
		}
	}
	return nil
}

// Normalize returns v scaled to unit L2 length. A zero vector is returned
// unchanged.
func (n *Normalizer) Normalize(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	norm := floats.Norm(out, 2)
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return out
	}
	floats.Scale(1/norm, out)
	return out
}
