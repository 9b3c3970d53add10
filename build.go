package metrictree

import (
	"context"
	"math/rand/v2"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/errgroup"
)

// heightController decides when a partition becomes a leaf. Depth counts
// from 0 at the root; heights count levels, so a lone leaf has height 1.
type heightController struct {
	minHeight   int
	maxHeight   int // 0 = unlimited
	maxLeafSize int
}

// leaf reports whether size items at depth must become a leaf when each
// split consumes pivots pivots.
func (h heightController) leaf(depth, size, pivots int) bool {
	switch {
	case size <= pivots:
		return true
	case h.maxHeight > 0 && depth+1 >= h.maxHeight:
		return true
	case depth+1 < h.minHeight:
		return false
	}
	return size <= h.maxLeafSize
}

type subtreeSummary struct {
	height int
	nodes  int
	leaves int
}

type builder[T any] struct {
	cfg      Config
	metric   Metric[T]
	selector PivotSelector[T]
	store    NodeStore[T]
	detach   bool
	logger   *Logger
	height   heightController

	fixed []Item[T] // global mode pivots
	pool  []Item[T] // mix mode candidates

	// sem holds one token per extra goroutine allowed to build a sibling
	// subtree; nil means sequential.
	sem chan struct{}
}

func (b *builder[T]) build(ctx context.Context, data []Item[T], depth int, rng *rand.Rand) (ChildRef[T], subtreeSummary, error) {
	if err := ctx.Err(); err != nil {
		return ChildRef[T]{}, subtreeSummary{}, err
	}
	if b.height.leaf(depth, len(data), b.cfg.PivotCount) {
		return b.leaf(ctx, data)
	}

	pivots := b.pivotsFor(rng, data)
	if len(pivots) < b.cfg.PivotCount {
		b.logger.LogDegenerate(ctx, depth, len(data), "too few distinct pivots")
		return b.leaf(ctx, data)
	}

	local := roaring.New()
	for _, it := range data {
		local.Add(it.ID)
	}
	taken := roaring.New()
	owned := make([]bool, len(pivots))
	for i, p := range pivots {
		if local.Contains(p.ID) {
			owned[i] = true
			taken.Add(p.ID)
		}
	}
	rest := make([]Item[T], 0, len(data)-int(taken.GetCardinality()))
	for _, it := range data {
		if !taken.Contains(it.ID) {
			rest = append(rest, it)
		}
	}

	part, err := Partition(rng, b.cfg, pivots, rest, b.metric)
	if err != nil {
		return ChildRef[T]{}, subtreeSummary{}, err
	}
	largest := 0
	for _, bucket := range part.Buckets {
		largest = max(largest, len(bucket))
	}
	if taken.IsEmpty() && largest == len(rest) {
		b.logger.LogDegenerate(ctx, depth, len(data), "partition made no progress")
		return b.leaf(ctx, data)
	}

	children, sum, err := b.buildChildren(ctx, part.Buckets, depth, rng)
	if err != nil {
		return ChildRef[T]{}, subtreeSummary{}, err
	}

	node := &Internal[T]{
		Pivots:    pivots,
		Owned:     owned,
		Bounds:    part.Bounds,
		Deltas:    part.Deltas,
		Children:  children,
		Rule:      part.Rule,
		Splits:    part.Splits,
		Centroids: part.Centroids,
		size:      len(data),
	}
	ref, err := b.emit(ctx, node)
	if err != nil {
		return ChildRef[T]{}, subtreeSummary{}, err
	}
	sum.height++
	sum.nodes++
	return ref, sum, nil
}

// pivotsFor selects the pivots for one node according to the pivot mode.
func (b *builder[T]) pivotsFor(rng *rand.Rand, data []Item[T]) []Item[T] {
	var pivots []Item[T]
	switch b.cfg.PivotMode {
	case PivotModeGlobal:
		return b.fixed
	case PivotModeMix:
		pivots = b.selector.SelectPivots(rng, b.pool, data, b.metric, b.cfg.PivotCount)
	default:
		pivots = b.selector.SelectPivots(rng, data, data, b.metric, b.cfg.PivotCount)
	}
	return distinctItems(pivots, b.metric)
}

// buildChildren builds one subtree per non-empty bucket. Seeds for every
// child are drawn before any child starts, so the result does not depend on
// scheduling. A child runs on its own goroutine when a token is free and
// inline otherwise.
func (b *builder[T]) buildChildren(ctx context.Context, buckets [][]Item[T], depth int, rng *rand.Rand) ([]ChildRef[T], subtreeSummary, error) {
	children := make([]ChildRef[T], len(buckets))
	sums := make([]subtreeSummary, len(buckets))
	seeds := make([][2]uint64, len(buckets))
	for i := range seeds {
		seeds[i] = [2]uint64{rng.Uint64(), rng.Uint64()}
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, bucket := range buckets {
		if len(bucket) == 0 {
			continue
		}
		run := func() error {
			childRng := rand.New(rand.NewPCG(seeds[i][0], seeds[i][1]))
			ref, sum, err := b.build(gctx, bucket, depth+1, childRng)
			if err != nil {
				return err
			}
			children[i], sums[i] = ref, sum
			return nil
		}

		select {
		case b.sem <- struct{}{}:
			g.Go(func() error {
				defer func() { <-b.sem }()
				return run()
			})
		default:
			if err := run(); err != nil {
				_ = g.Wait()
				return nil, subtreeSummary{}, err
			}
		}
	}
	if err := g.Wait(); err != nil {
		return nil, subtreeSummary{}, err
	}

	var total subtreeSummary
	for _, s := range sums {
		total.height = max(total.height, s.height)
		total.nodes += s.nodes
		total.leaves += s.leaves
	}
	return children, total, nil
}

func (b *builder[T]) leaf(ctx context.Context, data []Item[T]) (ChildRef[T], subtreeSummary, error) {
	ref, err := b.emit(ctx, &Leaf[T]{Items: slices.Clone(data)})
	if err != nil {
		return ChildRef[T]{}, subtreeSummary{}, err
	}
	return ref, subtreeSummary{height: 1, nodes: 1, leaves: 1}, nil
}

// emit hands a finished node to the store, if any, and returns the
// reference its parent keeps.
func (b *builder[T]) emit(ctx context.Context, n Node[T]) (ChildRef[T], error) {
	if b.store == nil {
		return ChildRef[T]{Node: n}, nil
	}
	h, err := b.store.Put(ctx, recordOf[T](n))
	if err != nil {
		return ChildRef[T]{}, err
	}
	if b.detach {
		return ChildRef[T]{Handle: h}, nil
	}
	return ChildRef[T]{Node: n, Handle: h}, nil
}
