package metrictree

import (
	"math"
	"sort"
)

// LinearScan answers the same queries as Tree by computing the distance to
// every item. It is the reference the tree's results are checked against.
type LinearScan[T any] struct {
	Items  []Item[T]
	Metric Metric[T]
}

// Range returns every item within radius of q, in input order.
func (l LinearScan[T]) Range(q T, radius float64) []Item[T] {
	if radius < 0 || math.IsNaN(radius) {
		return nil
	}
	var out []Item[T]
	for _, it := range l.Items {
		if l.Metric.Distance(q, it.Value) <= radius {
			out = append(out, it)
		}
	}
	return out
}

// KNN returns the k nearest items to q by ascending distance; ties keep
// input order.
func (l LinearScan[T]) KNN(q T, k int) []Neighbor[T] {
	if k <= 0 {
		return nil
	}
	all := make([]Neighbor[T], len(l.Items))
	for i, it := range l.Items {
		all[i] = Neighbor[T]{Item: it, Distance: l.Metric.Distance(q, it.Value)}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Distance < all[j].Distance })
	return all[:min(k, len(all))]
}
