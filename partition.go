package metrictree

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/stat"
)

// Partitioning is the outcome of routing items among children of one
// internal node.
type Partitioning[T any] struct {
	Rule PartitionRule

	// Buckets holds the items of each child, in input order. Empty buckets
	// are allowed and become absent children.
	Buckets [][]Item[T]

	// Bounds holds [min, max] of d(x, pivot) over each bucket.
	Bounds BoundTable

	// Deltas holds the δ ranges of each bucket for the sign-pattern rule.
	Deltas *BoundTable

	// Splits holds the per-pivot split value of the ball-median and grid
	// rules.
	Splits []float64

	// Centroids holds the pivot-space centroids of the cluster rule.
	Centroids [][]float64
}

// ChildCount returns C for the rule with p pivots and the given cluster
// count.
func ChildCount(rule PartitionRule, p, clusters int) int {
	switch rule {
	case RuleNearestPivot:
		return p
	case RuleBallMedian, RulePivotSpaceGrid:
		return 1 << p
	case RuleSignPattern:
		return 1 << (p - 1)
	case RuleCluster:
		return clusters
	}
	return 0
}

// Partition routes items among children according to rule, given pivots
// that are not themselves among items. Every item lands in exactly one
// bucket, and the bound table covers every routed item's pivot distances.
//
// It returns ErrTooFewItems when there is nothing to partition and
// ErrIncompatibleRule when the rule cannot use len(pivots) pivots.
func Partition[T any](rng *rand.Rand, cfg Config, pivots, items []Item[T], metric Metric[T]) (*Partitioning[T], error) {
	p := len(pivots)
	if p == 0 || len(items) == 0 {
		return nil, fmt.Errorf("%w: %d items, %d pivots", ErrTooFewItems, len(items), p)
	}
	switch cfg.Partition {
	case RuleNearestPivot, RuleSignPattern:
		if p < 2 {
			return nil, fmt.Errorf("%w: %s with %d pivot", ErrIncompatibleRule, cfg.Partition, p)
		}
	case RuleCluster:
		if cfg.Clusters < 2 {
			return nil, fmt.Errorf("%w: cluster rule with %d clusters", ErrIncompatibleRule, cfg.Clusters)
		}
	case RuleBallMedian, RulePivotSpaceGrid:
	default:
		return nil, fmt.Errorf("%w: invalid Partition %q", ErrInvalidConfig, cfg.Partition)
	}

	n := len(items)
	dist := make([]float64, n*p)
	for i, it := range items {
		for j, pv := range pivots {
			dist[i*p+j] = metric.Distance(it.Value, pv.Value)
		}
	}
	row := func(i int) []float64 { return dist[i*p : (i+1)*p] }

	part := &Partitioning[T]{Rule: cfg.Partition}
	assign := make([]int, n)

	switch cfg.Partition {
	case RuleNearestPivot:
		for i := range items {
			assign[i] = nearestPivot(row(i))
		}

	case RuleBallMedian, RulePivotSpaceGrid:
		part.Splits = make([]float64, p)
		col := make([]float64, n)
		for j := 0; j < p; j++ {
			for i := range items {
				col[i] = dist[i*p+j]
			}
			slices.Sort(col)
			if cfg.Partition == RuleBallMedian {
				part.Splits[j] = stat.Quantile(0.5, stat.Empirical, col, nil)
			} else {
				part.Splits[j] = col[n/2]
			}
		}
		for i := range items {
			assign[i] = splitCode(cfg.Partition, row(i), part.Splits)
		}

	case RuleSignPattern:
		deltas := newBoundTable(ChildCount(RuleSignPattern, p, 0), p-1)
		var buf []float64
		for i := range items {
			buf = deltaRow(row(i), buf)
			assign[i] = signCode(buf)
			deltas.extend(assign[i], buf)
		}
		part.Deltas = &deltas

	case RuleCluster:
		part.Centroids = kmeans(rng, dist, p, cfg.Clusters, cfg.KMeansIterations, assign)
	}

	c := ChildCount(cfg.Partition, p, cfg.Clusters)
	part.Buckets = make([][]Item[T], c)
	part.Bounds = newBoundTable(c, p)
	for i, it := range items {
		b := assign[i]
		part.Buckets[b] = append(part.Buckets[b], it)
		part.Bounds.extend(b, row(i))
	}
	return part, nil
}

// nearestPivot returns the index of the smallest distance; ties go to the
// lower pivot index.
func nearestPivot(d []float64) int {
	best, bestD := 0, math.Inf(1)
	for j, v := range d {
		if v < bestD {
			best, bestD = j, v
		}
	}
	return best
}

// splitCode sets bit j when the item lies in the outer half of pivot j.
// The ball rule puts ties with the median inside; the grid rule puts ties
// with the split element outside.
func splitCode(rule PartitionRule, d, splits []float64) int {
	code := 0
	for j, v := range d {
		outer := v > splits[j]
		if rule == RulePivotSpaceGrid {
			outer = v >= splits[j]
		}
		if outer {
			code |= 1 << j
		}
	}
	return code
}

// signCode sets bit i when δ_i > 0, i.e. the item is farther from the first
// pivot than from pivot i+1.
func signCode(delta []float64) int {
	code := 0
	for i, v := range delta {
		if v > 0 {
			code |= 1 << i
		}
	}
	return code
}
