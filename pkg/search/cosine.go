// Package search ranks conversation messages by semantic similarity.
package search

import (
	"math"
	"sort"
)

// Cosine returns dot(a,b)/(|a||b|). Vectors of different or zero length
// and zero-magnitude vectors score 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Embedded is anything carrying a vector.
type Embedded interface {
	Vector() []float32
}

type Scored[T Embedded] struct {
	Item  T
	Score float64
}

// Rank scores items against query, dropping items without a vector, and
// sorts by descending score. Ties keep input order.
func Rank[T Embedded](items []T, query []float32) []Scored[T] {
	out := make([]Scored[T], 0, len(items))
	for _, it := range items {
		v := it.Vector()
		if len(v) == 0 {
			continue
		}
		out = append(out, Scored[T]{Item: it, Score: Cosine(v, query)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}
