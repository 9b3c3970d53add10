package metrictree

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
)

// Tree is a multi-pivot metric index. It is immutable once built and safe
// for concurrent queries.
type Tree[T any] struct {
	root    ChildRef[T]
	metric  Metric[T]
	store   NodeStore[T]
	cfg     Config
	stats   TreeStats
	logger  *Logger
	metrics *Metrics
}

// Build bulk-loads items into a new tree.
//
// Items must have unique IDs. Building is deterministic for a given
// cfg.Seed, independent of cfg.Workers.
func Build[T any](ctx context.Context, items []Item[T], metric Metric[T], cfg Config, opts ...Option) (*Tree[T], error) {
	o := applyOptions(opts)
	t, err := build(ctx, items, metric, cfg, o)
	if err != nil {
		o.logger.LogBuild(ctx, len(items), TreeStats{}, err)
		o.metrics.observeBuild(TreeStats{}, err)
		return nil, err
	}
	o.logger.LogBuild(ctx, len(items), t.stats, nil)
	o.metrics.observeBuild(t.stats, nil)
	return t, nil
}

func build[T any](ctx context.Context, items []Item[T], metric Metric[T], cfg Config, o options) (*Tree[T], error) {
	applyDefaults(&cfg)
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrEmptyDataset
	}
	if err := checkUniqueIDs(items); err != nil {
		return nil, err
	}

	var store NodeStore[T]
	if o.store != nil {
		s, ok := o.store.(NodeStore[T])
		if !ok {
			return nil, fmt.Errorf("%w: store holds %T, not NodeStore of the item type", ErrInvalidConfig, o.store)
		}
		store = s
	}
	if o.detach && store == nil {
		return nil, fmt.Errorf("%w: detached children need a store", ErrInvalidConfig)
	}

	start := time.Now()
	counting := NewCountingMetric(metric)
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))

	selector, err := NewPivotSelector[T](cfg)
	if err != nil {
		return nil, err
	}

	b := &builder[T]{
		cfg:      cfg,
		metric:   counting,
		selector: selector,
		store:    store,
		detach:   o.detach,
		logger:   o.logger,
		height:   heightController{minHeight: cfg.MinHeight, maxHeight: cfg.MaxHeight, maxLeafSize: cfg.MaxLeafSize},
	}
	if cfg.Workers > 1 {
		b.sem = make(chan struct{}, cfg.Workers-1)
	}

	switch cfg.PivotMode {
	case PivotModeGlobal:
		if o.globalPivots != nil {
			given, ok := o.globalPivots.([]Item[T])
			if !ok {
				return nil, fmt.Errorf("%w: global pivots are %T, not of the item type", ErrInvalidConfig, o.globalPivots)
			}
			b.fixed = distinctItems(given, counting)
			if err := checkSuppliedPivots(items, b.fixed, counting); err != nil {
				return nil, err
			}
			cfg.PivotCount = len(b.fixed)
			if err := validateConfig(&cfg); err != nil {
				return nil, err
			}
			b.cfg = cfg
		} else {
			b.fixed = distinctItems(selector.SelectPivots(rng, items, items, counting, cfg.PivotCount), counting)
		}
	case PivotModeMix:
		b.pool = sampleDistinct(rng, items, cfg.SampleSize, nil, counting)
	}

	root, sum, err := b.build(ctx, items, 0, rng)
	if err != nil {
		return nil, err
	}

	return &Tree[T]{
		root:   root,
		metric: metric,
		store:  store,
		cfg:    cfg,
		stats: TreeStats{
			Height:                    sum.height,
			Nodes:                     sum.nodes,
			Leaves:                    sum.leaves,
			Internals:                 sum.nodes - sum.leaves,
			Items:                     len(items),
			BuildDistanceComputations: counting.Count(),
			BuildDuration:             time.Since(start),
		},
		logger:  o.logger,
		metrics: o.metrics,
	}, nil
}

func checkUniqueIDs[T any](items []Item[T]) error {
	seen := roaring.New()
	for _, it := range items {
		if !seen.CheckedAdd(it.ID) {
			return fmt.Errorf("%w: %d", ErrDuplicateID, it.ID)
		}
	}
	return nil
}

// checkSuppliedPivots rejects a reference pivot that reuses the ID of a
// dataset item with a different value. A pivot equal to its dataset item is
// owned by the root like any selected pivot.
func checkSuppliedPivots[T any](items, pivots []Item[T], metric Metric[T]) error {
	byID := make(map[uint32]int, len(items))
	for i, it := range items {
		byID[it.ID] = i
	}
	for _, p := range pivots {
		i, ok := byID[p.ID]
		if ok && metric.Distance(p.Value, items[i].Value) != 0 {
			return fmt.Errorf("%w: global pivot %d differs from the dataset item with that id", ErrDuplicateID, p.ID)
		}
	}
	return nil
}

// Open returns a tree backed by a store, rooted at the node behind root.
// Nodes are read on demand while querying.
func Open[T any](ctx context.Context, store NodeStore[T], root Handle, metric Metric[T], opts ...Option) (*Tree[T], error) {
	o := applyOptions(opts)
	rec, err := store.Get(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("metrictree: open root: %w", err)
	}
	return &Tree[T]{
		root:    ChildRef[T]{Node: nodeOf(rec), Handle: root},
		metric:  metric,
		store:   store,
		stats:   TreeStats{Items: rec.Size},
		logger:  o.logger,
		metrics: o.metrics,
	}, nil
}

// Len returns the number of indexed items.
func (t *Tree[T]) Len() int {
	if t == nil {
		return 0
	}
	return t.stats.Items
}

// Root returns the reference to the root node.
func (t *Tree[T]) Root() ChildRef[T] { return t.root }

// RootHandle returns the store handle of the root, or 0 when the tree was
// built without a store.
func (t *Tree[T]) RootHandle() Handle { return t.root.Handle }

// Config returns the configuration the tree was built with. Trees created
// by Open return the zero Config.
func (t *Tree[T]) Config() Config { return t.cfg }

// Stats returns the statistics recorded while building. For trees created
// by Open only Items is known; use CollectStats to walk the tree.
func (t *Tree[T]) Stats() TreeStats { return t.stats }

// resolve returns the node behind ref, reading it from the store when only
// a handle is held.
func (t *Tree[T]) resolve(ctx context.Context, ref ChildRef[T]) (Node[T], error) {
	if ref.Node != nil {
		return ref.Node, nil
	}
	if t.store == nil {
		return nil, fmt.Errorf("%w: handle %d without a store", ErrNodeNotFound, ref.Handle)
	}
	rec, err := t.store.Get(ctx, ref.Handle)
	if err != nil {
		return nil, err
	}
	return nodeOf(rec), nil
}
