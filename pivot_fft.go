package metrictree

import (
	"math"
	"math/rand/v2"
)

// FFTSelector performs farthest-first traversal: the first pivot is drawn at
// random, every following pivot is the candidate whose distance to its
// nearest chosen pivot is largest.
type FFTSelector[T any] struct{}

func (FFTSelector[T]) SelectPivots(rng *rand.Rand, candidates, eval []Item[T], metric Metric[T], count int) []Item[T] {
	if count >= len(eval) {
		return distinctItems(eval, metric)
	}
	return farthestFirst(rng, candidates, metric, count)
}

// farthestFirst keeps, for every candidate, the distance to its nearest
// chosen pivot and updates it after each pick, so each round costs one
// distance per remaining candidate. It stops early once every remaining
// candidate coincides with a chosen pivot.
func farthestFirst[T any](rng *rand.Rand, candidates []Item[T], metric Metric[T], count int) []Item[T] {
	n := len(candidates)
	if n == 0 || count <= 0 {
		return nil
	}

	minDist := make([]float64, n)
	for i := range minDist {
		minDist[i] = math.Inf(1)
	}
	chosen := make([]bool, n)

	first := rng.IntN(n)
	pivots := make([]Item[T], 0, count)
	pivots = append(pivots, candidates[first])
	chosen[first] = true
	last := first

	for len(pivots) < count {
		best, bestDist := -1, 0.0
		for i := 0; i < n; i++ {
			if chosen[i] {
				continue
			}
			if d := metric.Distance(candidates[i].Value, candidates[last].Value); d < minDist[i] {
				minDist[i] = d
			}
			if minDist[i] > bestDist {
				best, bestDist = i, minDist[i]
			}
		}
		if best < 0 {
			break
		}
		pivots = append(pivots, candidates[best])
		chosen[best] = true
		last = best
	}
	return pivots
}
