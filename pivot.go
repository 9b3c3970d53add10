package metrictree

import (
	"fmt"
	"math/rand/v2"
)

// maxSampleCounter bounds the random draws spent on one sample slot before
// falling back to a linear scan.
const maxSampleCounter = 100

// PivotSelector chooses up to count mutually distinct pivots from candidates.
// eval is the data the pivots will partition: selectors that score pivot
// quality measure it against eval, the others ignore it. When count is at
// least len(eval), every distinct item of eval is returned.
//
// Selectors never return two pivots at distance 0 from each other. They
// return fewer than count pivots only when not enough distinct items exist.
type PivotSelector[T any] interface {
	SelectPivots(rng *rand.Rand, candidates, eval []Item[T], metric Metric[T], count int) []Item[T]
}

// NewPivotSelector returns the selector configured by cfg.Selection.
func NewPivotSelector[T any](cfg Config) (PivotSelector[T], error) {
	applyDefaults(&cfg)
	switch cfg.Selection {
	case SelectRandom:
		return RandomSelector[T]{}, nil
	case SelectFFT:
		return FFTSelector[T]{}, nil
	case SelectMaxSpread:
		return MaxSpreadSelector[T]{Pairs: cfg.SpreadPairs, Candidates: cfg.SpreadCandidates}, nil
	case SelectPCA:
		return PCASelector[T]{Scale: cfg.PCAScale, Workers: cfg.Workers}, nil
	case SelectPAM:
		return MedoidSelector[T]{Workers: cfg.Workers}, nil
	case SelectCLARA:
		return MedoidSelector[T]{
			CLARA:      true,
			SampleSize: cfg.ClaraSampleSize,
			Samples:    cfg.ClaraSamples,
			Workers:    cfg.Workers,
		}, nil
	}
	return nil, fmt.Errorf("%w: invalid Selection %q", ErrInvalidConfig, cfg.Selection)
}

// distinctItems returns the items of src that are not at distance 0 from an
// earlier item, keeping the first occurrence.
func distinctItems[T any](src []Item[T], metric Metric[T]) []Item[T] {
	out := make([]Item[T], 0, len(src))
	for _, it := range src {
		if !atZeroDistance(it, out, metric) {
			out = append(out, it)
		}
	}
	return out
}

// atZeroDistance reports whether it coincides with any member of set.
func atZeroDistance[T any](it Item[T], set []Item[T], metric Metric[T]) bool {
	for _, s := range set {
		if s.ID == it.ID || metric.Distance(it.Value, s.Value) == 0 {
			return true
		}
	}
	return false
}

// sampleDistinct draws up to size items from data that are distinct from
// each other and from exclude. Each slot gets a bounded number of random
// draws; once that budget runs out the remaining slots are filled by a linear
// scan from a random offset, so the sample always makes progress.
func sampleDistinct[T any](rng *rand.Rand, data []Item[T], size int, exclude []Item[T], metric Metric[T]) []Item[T] {
	if size <= 0 || len(data) == 0 {
		return nil
	}
	picked := make([]Item[T], 0, size)
	taken := func(it Item[T]) bool {
		return atZeroDistance(it, picked, metric) || atZeroDistance(it, exclude, metric)
	}

	budget := maxSampleCounter
	for len(picked) < size && budget > 0 {
		it := data[rng.IntN(len(data))]
		if taken(it) {
			budget--
			continue
		}
		picked = append(picked, it)
	}
	if len(picked) == size {
		return picked
	}

	offset := rng.IntN(len(data))
	for i := range data {
		if len(picked) == size {
			break
		}
		it := data[(offset+i)%len(data)]
		if !taken(it) {
			picked = append(picked, it)
		}
	}
	return picked
}

// RandomSelector draws pivots uniformly at random, rejecting draws that
// coincide with an already chosen pivot.
type RandomSelector[T any] struct{}

func (RandomSelector[T]) SelectPivots(rng *rand.Rand, candidates, eval []Item[T], metric Metric[T], count int) []Item[T] {
	if count >= len(eval) {
		return distinctItems(eval, metric)
	}
	return sampleDistinct(rng, candidates, count, nil, metric)
}
