package artifact

import "math"

// Similarity scores two equal-length vectors. Results are clamped to [0,1] by
// the store.
type Similarity func(a, b []float64) float64

// Cosine is the default Similarity.
func Cosine(a, b []float64) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// resize front-truncates or zero-pads vec to dimension.
func resize(vec []float64, dimension int) []float64 {
	out := make([]float64, dimension)
	copy(out, vec)
	return out
}
