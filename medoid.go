package metrictree

import (
	"math"
	"math/rand/v2"
	"slices"
)

// MedoidResult is the outcome of a PAM or CLARA run.
type MedoidResult[T any] struct {
	// Medoids are the chosen cluster centres. CLARA pads a short result by
	// repeating the first medoid; such repeats are degenerate and callers
	// needing distinct pivots must drop them.
	Medoids []Item[T]

	// Cost is the sum over clusters of the distance from the medoid to the
	// farthest member (the cluster radius).
	Cost float64

	// CostHistory holds the cost before the first swap and after every
	// accepted swap. It is strictly decreasing.
	CostHistory []float64
}

// PAM runs Partitioning Around Medoids on items with the sum of cluster
// radii as the objective. Initial medoids are drawn at random; every pass
// evaluates all (non-medoid, medoid) swaps and applies the best one that
// strictly lowers the cost, until no improving swap remains.
//
// PAM returns fewer than k medoids only when items hold fewer than k
// distinct values.
func PAM[T any](rng *rand.Rand, items []Item[T], metric Metric[T], k, workers int) MedoidResult[T] {
	if k <= 0 || len(items) == 0 {
		return MedoidResult[T]{}
	}
	st := newPAMState(rng, items, metric, k, workers)
	st.run()

	res := MedoidResult[T]{Cost: st.cost, CostHistory: st.history}
	for _, m := range st.medoids {
		res.Medoids = append(res.Medoids, items[m])
	}
	return res
}

type pamState struct {
	n        int
	dist     triangle
	medoids  []int // item index per cluster
	isMedoid []bool
	cluster  []int // cluster per item
	radius   []float64
	cost     float64
	history  []float64

	// scratch for swap evaluation
	tryCluster []int
	tryRadius  []float64
}

func newPAMState[T any](rng *rand.Rand, items []Item[T], metric Metric[T], k, workers int) *pamState {
	n := len(items)
	st := &pamState{
		n:        n,
		dist:     computeTriangle(items, metric, workers),
		isMedoid: make([]bool, n),
		cluster:  make([]int, n),
	}
	st.initMedoids(rng, k)
	k = len(st.medoids)
	st.radius = make([]float64, k)
	st.tryCluster = make([]int, n)
	st.tryRadius = make([]float64, k)
	st.assign()
	st.history = []float64{st.cost}
	return st
}

// initMedoids draws k distinct medoids, spending a growing random budget per
// slot before scanning linearly from a random offset.
func (st *pamState) initMedoids(rng *rand.Rand, k int) {
	distinct := func(i int) bool {
		if st.isMedoid[i] {
			return false
		}
		for _, m := range st.medoids {
			if st.dist.at(i, m) == 0 {
				return false
			}
		}
		return true
	}
	for slot := 0; slot < k; slot++ {
		found := -1
		for tries := 0; tries < maxSampleCounter*(slot+1); tries++ {
			if i := rng.IntN(st.n); distinct(i) {
				found = i
				break
			}
		}
		if found < 0 {
			offset := rng.IntN(st.n)
			for j := 0; j < st.n; j++ {
				if i := (offset + j) % st.n; distinct(i) {
					found = i
					break
				}
			}
		}
		if found < 0 {
			return
		}
		st.medoids = append(st.medoids, found)
		st.isMedoid[found] = true
	}
}

// assign attaches every item to its nearest medoid and recomputes radii.
func (st *pamState) assign() {
	for c := range st.radius {
		st.radius[c] = 0
	}
	for i := 0; i < st.n; i++ {
		c, d := st.nearest(i, -1, -1)
		st.cluster[i] = c
		st.radius[c] = max(st.radius[c], d)
	}
	st.cost = sum(st.radius)
}

// nearest returns the cluster whose medoid is closest to item i. When
// swapCluster >= 0 that cluster's medoid is taken to be item swapIn.
// Ties go to the lower cluster index.
func (st *pamState) nearest(i, swapCluster, swapIn int) (int, float64) {
	best, bestD := 0, math.Inf(1)
	for c, m := range st.medoids {
		if c == swapCluster {
			m = swapIn
		}
		if d := st.dist.at(i, m); d < bestD {
			best, bestD = c, d
		}
	}
	return best, bestD
}

// evaluateSwap computes the exact cost of replacing the medoid of cluster
// target by item in, filling tryCluster/tryRadius. Members of other clusters
// only need one comparison against the incoming medoid; members of the
// target cluster are re-derived against every medoid.
func (st *pamState) evaluateSwap(target, in int) float64 {
	for c := range st.tryRadius {
		st.tryRadius[c] = 0
	}
	for i := 0; i < st.n; i++ {
		var c int
		var d float64
		switch {
		case i == in:
			c, d = target, 0
		case st.isMedoid[i] && i != st.medoids[target]:
			c, d = st.cluster[i], 0
		case st.cluster[i] == target:
			c, d = st.nearest(i, target, in)
		default:
			c = st.cluster[i]
			d = st.dist.at(i, st.medoids[c])
			if dIn := st.dist.at(i, in); dIn < d {
				c, d = target, dIn
			}
		}
		st.tryCluster[i] = c
		st.tryRadius[c] = max(st.tryRadius[c], d)
	}
	return sum(st.tryRadius)
}

func (st *pamState) run() {
	if len(st.medoids) == 0 {
		return
	}
	bestCluster := make([]int, st.n)
	bestRadius := make([]float64, len(st.medoids))

	for {
		bestCost := st.cost
		bestTarget, bestIn := -1, -1
		for in := 0; in < st.n; in++ {
			if st.isMedoid[in] || st.coincidesWithMedoid(in) {
				continue
			}
			for target := range st.medoids {
				cost := st.evaluateSwap(target, in)
				if cost < bestCost {
					bestCost, bestTarget, bestIn = cost, target, in
					copy(bestCluster, st.tryCluster)
					copy(bestRadius, st.tryRadius)
				}
			}
		}
		if bestTarget < 0 || !(bestCost < st.cost) {
			return
		}

		st.isMedoid[st.medoids[bestTarget]] = false
		st.medoids[bestTarget] = bestIn
		st.isMedoid[bestIn] = true
		copy(st.cluster, bestCluster)
		copy(st.radius, bestRadius)
		st.cost = bestCost
		st.history = append(st.history, bestCost)
	}
}

func (st *pamState) coincidesWithMedoid(i int) bool {
	for _, m := range st.medoids {
		if st.dist.at(i, m) == 0 {
			return true
		}
	}
	return false
}

func sum(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		s += x
	}
	return s
}

// CLARA approximates PAM on large inputs. Small inputs go straight to PAM.
// Otherwise each round runs PAM on a random sample (the first round a sample
// of sampleSize+2k items, later rounds sampleSize+k items plus the best
// medoids so far) and scores the medoids by the sum of cluster radii over
// all of items; the best-scoring set wins. The result is padded with its
// first medoid when fewer than k distinct medoids exist.
func CLARA[T any](rng *rand.Rand, items []Item[T], metric Metric[T], k, sampleSize, samples, workers int) MedoidResult[T] {
	const (
		timeK            = 2
		minDataMagnitude = 3
	)
	if k <= 0 || len(items) == 0 {
		return MedoidResult[T]{}
	}
	if len(items) <= (sampleSize+timeK*k)*minDataMagnitude {
		return padMedoids(PAM(rng, items, metric, k, workers), k)
	}

	var best MedoidResult[T]
	bestCost := math.Inf(1)
	for round := 0; round < max(samples, 1); round++ {
		var sample []Item[T]
		if round == 0 {
			sample = sampleDistinct(rng, items, sampleSize+timeK*k, nil, metric)
		} else {
			sample = sampleDistinct(rng, items, sampleSize+(timeK-1)*k, best.Medoids, metric)
			sample = append(sample, best.Medoids...)
		}

		res := PAM(rng, sample, metric, k, workers)
		cost := radiiCost(items, res.Medoids, metric)
		if cost < bestCost {
			bestCost = cost
			best = MedoidResult[T]{
				Medoids:     res.Medoids,
				Cost:        cost,
				CostHistory: append(best.CostHistory, cost),
			}
		}
	}
	return padMedoids(best, k)
}

// radiiCost assigns every item to its nearest medoid and returns the sum of
// the resulting cluster radii.
func radiiCost[T any](items, medoids []Item[T], metric Metric[T]) float64 {
	if len(medoids) == 0 {
		return math.Inf(1)
	}
	radius := make([]float64, len(medoids))
	for _, it := range items {
		c, bestD := 0, math.Inf(1)
		for j, m := range medoids {
			if d := metric.Distance(it.Value, m.Value); d < bestD {
				c, bestD = j, d
			}
		}
		radius[c] = max(radius[c], bestD)
	}
	return sum(radius)
}

func padMedoids[T any](res MedoidResult[T], k int) MedoidResult[T] {
	if len(res.Medoids) == 0 {
		return res
	}
	res.Medoids = slices.Clone(res.Medoids)
	for len(res.Medoids) < k {
		res.Medoids = append(res.Medoids, res.Medoids[0])
	}
	return res
}

// pamMaxCandidates caps the candidates MedoidSelector hands to plain PAM,
// whose distance matrix grows quadratically.
const pamMaxCandidates = 512

// MedoidSelector picks the medoids of a PAM or CLARA clustering of the
// candidates as pivots. Plain PAM works on a random sample of at most
// pamMaxCandidates candidates.
type MedoidSelector[T any] struct {
	CLARA      bool
	SampleSize int
	Samples    int
	Workers    int
}

func (s MedoidSelector[T]) SelectPivots(rng *rand.Rand, candidates, eval []Item[T], metric Metric[T], count int) []Item[T] {
	if count >= len(eval) {
		return distinctItems(eval, metric)
	}
	var res MedoidResult[T]
	switch {
	case s.CLARA:
		res = CLARA(rng, candidates, metric, count, max(s.SampleSize, 1), s.Samples, s.Workers)
	case len(candidates) > pamMaxCandidates:
		res = PAM(rng, sampleDistinct(rng, candidates, pamMaxCandidates, nil, metric), metric, count, s.Workers)
	default:
		res = PAM(rng, candidates, metric, count, s.Workers)
	}
	return distinctItems(res.Medoids, metric)
}
