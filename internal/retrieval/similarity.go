// Package retrieval implements brute-force vector search over the FAQ
// and game-catalog corpora, plus budgeted context assembly.
package retrieval

import "math"

// CosineSimilarity returns the cosine of the angle between a and b.
// Returns 0 when either vector is zero-length or the dimensions differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	dot := dotProduct(a, b)
	na := norm(a)
	nb := norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (na * nb)
}

func dotProduct(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
