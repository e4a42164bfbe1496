// Package similarity provides vector similarity scoring and embedding
// generation for the semantic categorization stage.
package similarity

import "math"

// Cosine computes the cosine similarity between two vectors. It returns 0
// when either vector is empty, zero-length, or the dimensions mismatch;
// those are no-match conditions, not errors.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
