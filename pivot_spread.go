package metrictree

import (
	"math"
	"math/rand/v2"
)

// MaxSpreadSelector grows the pivot set one pivot at a time. It samples
// Pairs evaluation pairs (a, b) from eval and keeps, for every pair, the
// best lower bound D on d(a, b) provided by the pivots chosen so far. Each
// round draws Candidates random candidates and keeps the one maximizing
//
//	Σ_pairs max(D, |d(a, c) - d(b, c)|)
//
// i.e. the candidate that spreads the evaluation pairs furthest apart in
// pivot space.
type MaxSpreadSelector[T any] struct {
	Pairs      int
	Candidates int
}

func (s MaxSpreadSelector[T]) SelectPivots(rng *rand.Rand, candidates, eval []Item[T], metric Metric[T], count int) []Item[T] {
	if count >= len(eval) {
		return distinctItems(eval, metric)
	}
	if len(candidates) == 0 || count <= 0 {
		return nil
	}
	numPairs := max(s.Pairs, 1)
	numCand := max(s.Candidates, 1)

	pairs := make([][2]T, 0, numPairs)
	for range numPairs {
		i := rng.IntN(len(eval))
		j := rng.IntN(len(eval) - 1)
		if j >= i {
			j++
		}
		pairs = append(pairs, [2]T{eval[i].Value, eval[j].Value})
	}

	bound := make([]float64, numPairs)
	next := make([]float64, numPairs)
	best := make([]float64, numPairs)
	pivots := make([]Item[T], 0, count)

	for len(pivots) < count {
		cands := sampleDistinct(rng, candidates, min(numCand, len(candidates)), pivots, metric)
		if len(cands) == 0 {
			break
		}
		bestScore := math.Inf(-1)
		bestIdx := -1
		for ci, c := range cands {
			var score float64
			for j, p := range pairs {
				v := max(bound[j], math.Abs(metric.Distance(p[0], c.Value)-metric.Distance(p[1], c.Value)))
				next[j] = v
				score += v
			}
			if score > bestScore {
				bestScore, bestIdx = score, ci
				copy(best, next)
			}
		}
		pivots = append(pivots, cands[bestIdx])
		copy(bound, best)
	}
	return pivots
}
