// Package similarity holds the vector math shared by deduplication and clustering.
package similarity

import (
	"errors"
	"fmt"
	"math"
)

// ErrDimensionMismatch is returned when vectors in one batch differ in length.
var ErrDimensionMismatch = errors.New("embedding dimensions do not match")

// CheckDimensions verifies every vector has the same length as the first.
func CheckDimensions(vectors [][]float64) error {
	if len(vectors) == 0 {
		return nil
	}
	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("vector %d has %d dimensions, expected %d: %w", i, len(v), dim, ErrDimensionMismatch)
		}
	}
	return nil
}

// Norm returns the L2 norm of v.
func Norm(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// Normalize returns a unit-length copy of v. Zero vectors stay zero.
func Normalize(v []float64) []float64 {
	out := make([]float64, len(v))
	n := Norm(v)
	if n == 0 {
		return out
	}
	for i, x := range v {
		out[i] = x / n
	}
	return out
}

// NormalizeAll L2-normalizes every row.
func NormalizeAll(vectors [][]float64) [][]float64 {
	out := make([][]float64, len(vectors))
	for i, v := range vectors {
		out[i] = Normalize(v)
	}
	return out
}

// Dot returns the inner product of a and b. Lengths must match.
func Dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// Cosine returns the cosine similarity of a and b, or 0 if either is a zero vector.
func Cosine(a, b []float64) float64 {
	na, nb := Norm(a), Norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return clamp(Dot(a, b)/(na*nb), -1, 1)
}

// Matrix builds the N×N cosine similarity matrix of vectors. The result is
// symmetric with a diagonal of exactly 1.0, including for zero vectors.
func Matrix(vectors [][]float64) ([][]float64, error) {
	if err := CheckDimensions(vectors); err != nil {
		return nil, err
	}

	normalized := NormalizeAll(vectors)
	n := len(normalized)
	sim := make([][]float64, n)
	for i := range sim {
		sim[i] = make([]float64, n)
	}

	for i := 0; i < n; i++ {
		sim[i][i] = 1.0
		for j := i + 1; j < n; j++ {
			s := clamp(Dot(normalized[i], normalized[j]), -1, 1)
			sim[i][j] = s
			sim[j][i] = s
		}
	}
	return sim, nil
}

// Euclidean returns the Euclidean distance between a and b.
func Euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Centroid returns the element-wise mean of vectors, or nil if there are none.
func Centroid(vectors [][]float64) []float64 {
	if len(vectors) == 0 {
		return nil
	}
	centroid := make([]float64, len(vectors[0]))
	for _, v := range vectors {
		for i, x := range v {
			centroid[i] += x
		}
	}
	for i := range centroid {
		centroid[i] /= float64(len(vectors))
	}
	return centroid
}

// MeanPairwise returns the mean cosine similarity over all distinct pairs of
// vectors (strict upper triangle). Fewer than two vectors yield 1.0.
func MeanPairwise(vectors [][]float64) float64 {
	if len(vectors) < 2 {
		return 1.0
	}
	normalized := NormalizeAll(vectors)

	var sum float64
	var pairs int
	for i := 0; i < len(normalized); i++ {
		for j := i + 1; j < len(normalized); j++ {
			sum += clamp(Dot(normalized[i], normalized[j]), -1, 1)
			pairs++
		}
	}
	return sum / float64(pairs)
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
