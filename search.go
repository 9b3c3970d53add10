package metrictree

import (
	"container/heap"
	"context"
	"math"
	"slices"
	"sort"
	"time"
)

// QueryStats counts the work done by one query.
type QueryStats struct {
	DistanceComputations int
	NodesVisited         int
}

// Neighbor is a kNN result.
type Neighbor[T any] struct {
	Item     Item[T]
	Distance float64
}

// Searcher is a reusable query context holding per-query counters and
// scratch space. A Searcher is NOT safe for concurrent use; create one per
// goroutine. Each top-level query resets its counters.
type Searcher[T any] struct {
	tree  *Tree[T]
	stats QueryStats
	heap  neighborHeap[T]
	seq   int
}

// NewSearcher returns a query context for t.
func (t *Tree[T]) NewSearcher() *Searcher[T] {
	return &Searcher[T]{tree: t}
}

// Stats returns the counters of the most recent query.
func (s *Searcher[T]) Stats() QueryStats { return s.stats }

func (s *Searcher[T]) reset() {
	s.stats = QueryStats{}
	s.heap = s.heap[:0]
	s.seq = 0
}

func (s *Searcher[T]) distance(a, b T) float64 {
	s.stats.DistanceComputations++
	return s.tree.metric.Distance(a, b)
}

func (s *Searcher[T]) pivotDistances(q T, n *Internal[T]) []float64 {
	dq := make([]float64, len(n.Pivots))
	for i, p := range n.Pivots {
		dq[i] = s.distance(q, p.Value)
	}
	return dq
}

// Range is a convenience wrapper that runs a range query with a fresh
// Searcher.
func (t *Tree[T]) Range(ctx context.Context, q T, radius float64) ([]Item[T], error) {
	return t.NewSearcher().Range(ctx, q, radius)
}

// KNN is a convenience wrapper that runs a kNN query with a fresh Searcher.
func (t *Tree[T]) KNN(ctx context.Context, q T, k int) ([]Neighbor[T], error) {
	return t.NewSearcher().KNN(ctx, q, k)
}

// Range returns every item x with d(q, x) <= radius, in no particular
// order. A child is skipped when some pivot's distance interval cannot meet
// [d(q,p)-radius, d(q,p)+radius]; a child is taken whole, without distance
// computations, when some pivot proves every member lies within radius.
func (s *Searcher[T]) Range(ctx context.Context, q T, radius float64) ([]Item[T], error) {
	s.reset()
	if s.tree == nil || s.tree.root.IsAbsent() || radius < 0 || math.IsNaN(radius) {
		return nil, nil
	}
	start := time.Now()
	var out []Item[T]
	err := s.rangeNode(ctx, s.tree.root, q, radius, &out)
	s.tree.logger.LogQuery(ctx, "range", len(out), s.stats, time.Since(start), err)
	s.tree.metrics.observeQuery("range", s.stats, time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Searcher[T]) rangeNode(ctx context.Context, ref ChildRef[T], q T, r float64, out *[]Item[T]) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	node, err := s.tree.resolve(ctx, ref)
	if err != nil {
		return err
	}
	s.stats.NodesVisited++

	switch n := node.(type) {
	case *Leaf[T]:
		for _, it := range n.Items {
			if s.distance(q, it.Value) <= r {
				*out = append(*out, it)
			}
		}
		return nil

	case *Internal[T]:
		dq := s.pivotDistances(q, n)
		for i, p := range n.Pivots {
			if n.Owned[i] && dq[i] <= r {
				*out = append(*out, p)
			}
		}
		for b, child := range n.Children {
			if child.IsAbsent() || n.Bounds.IsEmpty(b) {
				continue
			}
			if !n.Bounds.intersects(b, dq, r) {
				continue
			}
			if n.Deltas != nil && !n.Deltas.deltaIntersects(b, dq, r) {
				continue
			}
			if n.Bounds.contained(b, dq, r) {
				if err := s.collect(ctx, child, out); err != nil {
					return err
				}
				continue
			}
			if err := s.rangeNode(ctx, child, q, r, out); err != nil {
				return err
			}
		}
	}
	return nil
}

// collect appends every item stored under ref.
func (s *Searcher[T]) collect(ctx context.Context, ref ChildRef[T], out *[]Item[T]) error {
	node, err := s.tree.resolve(ctx, ref)
	if err != nil {
		return err
	}
	s.stats.NodesVisited++
	switch n := node.(type) {
	case *Leaf[T]:
		*out = append(*out, n.Items...)
	case *Internal[T]:
		for i, p := range n.Pivots {
			if n.Owned[i] {
				*out = append(*out, p)
			}
		}
		for _, child := range n.Children {
			if child.IsAbsent() {
				continue
			}
			if err := s.collect(ctx, child, out); err != nil {
				return err
			}
		}
	}
	return nil
}

// KNN returns the k items closest to q, sorted by ascending distance; equal
// distances keep the order in which the items were first reached. It
// returns fewer than k results only when the tree holds fewer items.
//
// Children are visited in ascending order of their lower bound on d(q, x)
// and skipped once that bound reaches the current k-th distance.
func (s *Searcher[T]) KNN(ctx context.Context, q T, k int) ([]Neighbor[T], error) {
	s.reset()
	if s.tree == nil || s.tree.root.IsAbsent() || k <= 0 {
		return nil, nil
	}
	start := time.Now()
	err := s.knnNode(ctx, s.tree.root, q, k)
	if err != nil {
		s.tree.logger.LogQuery(ctx, "knn", 0, s.stats, time.Since(start), err)
		s.tree.metrics.observeQuery("knn", s.stats, time.Since(start), err)
		return nil, err
	}

	entries := slices.Clone(s.heap)
	sort.Slice(entries, func(i, j int) bool { return entries[i].less(entries[j]) })
	out := make([]Neighbor[T], len(entries))
	for i, e := range entries {
		out[i] = Neighbor[T]{Item: e.item, Distance: e.dist}
	}

	s.tree.logger.LogQuery(ctx, "knn", len(out), s.stats, time.Since(start), nil)
	s.tree.metrics.observeQuery("knn", s.stats, time.Since(start), nil)
	return out, nil
}

// radius is the distance a candidate must beat: +Inf until k results are
// held, then the current k-th distance.
func (s *Searcher[T]) radius(k int) float64 {
	if len(s.heap) < k {
		return math.Inf(1)
	}
	return s.heap[0].dist
}

// offer inserts a candidate into the bounded max-heap. When full, a
// candidate must be strictly closer than the current worst, so the earlier
// of two equidistant items is the one kept.
func (s *Searcher[T]) offer(it Item[T], d float64, k int) {
	e := neighborEntry[T]{item: it, dist: d, seq: s.seq}
	s.seq++
	if len(s.heap) < k {
		heap.Push(&s.heap, e)
		return
	}
	if d < s.heap[0].dist {
		s.heap[0] = e
		heap.Fix(&s.heap, 0)
	}
}

type childOrder struct {
	child int
	lb    float64
}

func (s *Searcher[T]) knnNode(ctx context.Context, ref ChildRef[T], q T, k int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	node, err := s.tree.resolve(ctx, ref)
	if err != nil {
		return err
	}
	s.stats.NodesVisited++

	switch n := node.(type) {
	case *Leaf[T]:
		for _, it := range n.Items {
			s.offer(it, s.distance(q, it.Value), k)
		}
		return nil

	case *Internal[T]:
		dq := s.pivotDistances(q, n)
		for i, p := range n.Pivots {
			if n.Owned[i] {
				s.offer(p, dq[i], k)
			}
		}

		order := make([]childOrder, 0, len(n.Children))
		for b, child := range n.Children {
			if child.IsAbsent() || n.Bounds.IsEmpty(b) {
				continue
			}
			lb := n.Bounds.lowerBound(b, dq)
			if n.Deltas != nil {
				lb = max(lb, n.Deltas.deltaLowerBound(b, dq))
			}
			order = append(order, childOrder{child: b, lb: lb})
		}
		sort.SliceStable(order, func(i, j int) bool { return order[i].lb < order[j].lb })

		for _, c := range order {
			if len(s.heap) == k && c.lb >= s.radius(k) {
				break
			}
			if err := s.knnNode(ctx, n.Children[c.child], q, k); err != nil {
				return err
			}
		}
	}
	return nil
}

// neighborEntry is a kNN candidate; seq records first-seen order.
type neighborEntry[T any] struct {
	item Item[T]
	dist float64
	seq  int
}

func (e neighborEntry[T]) less(o neighborEntry[T]) bool {
	if e.dist != o.dist {
		return e.dist < o.dist
	}
	return e.seq < o.seq
}

// neighborHeap is a max-heap on (dist, seq): the root is the candidate to
// evict next.
type neighborHeap[T any] []neighborEntry[T]

func (h neighborHeap[T]) Len() int           { return len(h) }
func (h neighborHeap[T]) Less(i, j int) bool { return h[j].less(h[i]) }
func (h neighborHeap[T]) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *neighborHeap[T]) Push(x any) { *h = append(*h, x.(neighborEntry[T])) }

func (h *neighborHeap[T]) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
