package metrictree

import (
	"math"
	"sync/atomic"
)

// Item is an opaque element of the indexed space. ID must be unique within
// a build; Value is only ever inspected through a Metric.
type Item[T any] struct {
	ID    uint32 `msgpack:"id"`
	Value T      `msgpack:"v"`
}

// Metric computes the distance between two values. Implementations must
// satisfy the metric axioms (non-negativity, identity, symmetry, triangle
// inequality): every pruning rule in this package depends on them.
//
// A Metric is called from several goroutines when Config.Workers > 1.
type Metric[T any] interface {
	Distance(a, b T) float64
}

// DistanceFunc adapts a plain function into a Metric.
type DistanceFunc[T any] func(a, b T) float64

func (f DistanceFunc[T]) Distance(a, b T) float64 { return f(a, b) }

// Vector is the value type used by the built-in metrics.
type Vector = []float64

// EuclideanMetric computes the Euclidean (L2) distance.
type EuclideanMetric struct{}

func (EuclideanMetric) Distance(a, b Vector) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// ManhattanMetric computes the Manhattan (L1 / city-block) distance.
type ManhattanMetric struct{}

func (ManhattanMetric) Distance(a, b Vector) float64 {
	var sum float64
	for i := range a {
		sum += math.Abs(a[i] - b[i])
	}
	return sum
}

// ChebyshevMetric computes the Chebyshev (L-infinity) distance.
type ChebyshevMetric struct{}

func (ChebyshevMetric) Distance(a, b Vector) float64 {
	var maxVal float64
	for i := range a {
		if v := math.Abs(a[i] - b[i]); v > maxVal {
			maxVal = v
		}
	}
	return maxVal
}

// MinkowskiMetric computes the Minkowski distance parameterized by P.
// P must be >= 1 (below that the triangle inequality fails). Panics if P < 1.
type MinkowskiMetric struct {
	P float64
}

func (m MinkowskiMetric) Distance(a, b Vector) float64 {
	if m.P < 1 {
		panic("MinkowskiMetric: P must be >= 1")
	}
	var sum float64
	for i := range a {
		sum += math.Pow(math.Abs(a[i]-b[i]), m.P)
	}
	return math.Pow(sum, 1.0/m.P)
}

// AngularMetric computes the angle between two vectors in radians, which,
// unlike 1 - cosine similarity, is a proper metric on directions.
// Zero vectors are at distance 0 from each other and pi/2 from anything else.
type AngularMetric struct{}

func (AngularMetric) Distance(a, b Vector) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	switch {
	case normA == 0 && normB == 0:
		return 0
	case normA == 0 || normB == 0:
		return math.Pi / 2
	}
	c := dot / math.Sqrt(normA*normB)
	c = max(-1, min(1, c))
	return math.Acos(c)
}

// CountingMetric wraps a Metric and counts every distance computation.
// It is safe for concurrent use.
type CountingMetric[T any] struct {
	Metric Metric[T]
	n      atomic.Int64
}

// NewCountingMetric wraps m.
func NewCountingMetric[T any](m Metric[T]) *CountingMetric[T] {
	return &CountingMetric[T]{Metric: m}
}

func (c *CountingMetric[T]) Distance(a, b T) float64 {
	c.n.Add(1)
	return c.Metric.Distance(a, b)
}

// Count returns the number of distance computations so far.
func (c *CountingMetric[T]) Count() int64 { return c.n.Load() }

// Reset zeroes the counter and returns its previous value.
func (c *CountingMetric[T]) Reset() int64 { return c.n.Swap(0) }

// ComputePairwiseDistances computes the full n*n distance matrix of items.
// Returns flat []float64 of length n*n in row-major order.
func ComputePairwiseDistances[T any](items []Item[T], metric Metric[T]) []float64 {
	n := len(items)
	result := make([]float64, n*n)

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := metric.Distance(items[i].Value, items[j].Value)
			result[i*n+j] = d
			result[j*n+i] = d
		}
	}

	return result
}
