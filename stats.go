package metrictree

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
)

// TreeStats summarizes a tree's shape and the cost of building it.
type TreeStats struct {
	// Height is the number of levels; a tree that is a single leaf has
	// height 1.
	Height    int
	Nodes     int
	Leaves    int
	Internals int
	Items     int

	// BuildDistanceComputations and BuildDuration are only known for trees
	// built in this process.
	BuildDistanceComputations int64
	BuildDuration             time.Duration
}

func (s TreeStats) String() string {
	return fmt.Sprintf("height=%d nodes=%d (internal=%d leaf=%d) items=%d build_distances=%d build_time=%s",
		s.Height, s.Nodes, s.Internals, s.Leaves, s.Items, s.BuildDistanceComputations, s.BuildDuration)
}

// CollectStats walks the whole tree, reading nodes from the store where
// needed, and returns its shape. Build-cost fields are copied from Stats.
func (t *Tree[T]) CollectStats(ctx context.Context) (TreeStats, error) {
	stats := t.stats
	stats.Height, stats.Nodes, stats.Leaves, stats.Internals, stats.Items = 0, 0, 0, 0, 0
	if t.root.IsAbsent() {
		return stats, nil
	}
	err := t.walk(ctx, t.root, 0, func(n Node[T], depth int) {
		stats.Nodes++
		stats.Height = max(stats.Height, depth+1)
		switch n := n.(type) {
		case *Leaf[T]:
			stats.Leaves++
			stats.Items += len(n.Items)
		case *Internal[T]:
			stats.Internals++
			for _, owned := range n.Owned {
				if owned {
					stats.Items++
				}
			}
		}
	})
	return stats, err
}

// walk visits every node in pre-order.
func (t *Tree[T]) walk(ctx context.Context, ref ChildRef[T], depth int, fn func(Node[T], int)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	node, err := t.resolve(ctx, ref)
	if err != nil {
		return err
	}
	fn(node, depth)
	if in, ok := node.(*Internal[T]); ok {
		for _, child := range in.Children {
			if child.IsAbsent() {
				continue
			}
			if err := t.walk(ctx, child, depth+1, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// Describe writes an indented outline of the tree to w: one line per node
// with its size, and for internal nodes the pivot IDs and per-child
// distance intervals.
func (t *Tree[T]) Describe(ctx context.Context, w io.Writer) error {
	if t.root.IsAbsent() {
		_, err := fmt.Fprintln(w, "(empty)")
		return err
	}
	var werr error
	err := t.walk(ctx, t.root, 0, func(n Node[T], depth int) {
		if werr != nil {
			return
		}
		indent := strings.Repeat("  ", depth)
		switch n := n.(type) {
		case *Leaf[T]:
			ids := make([]string, len(n.Items))
			for i, it := range n.Items {
				ids[i] = fmt.Sprint(it.ID)
			}
			_, werr = fmt.Fprintf(w, "%sleaf size=%d ids=[%s]\n", indent, n.Size(), strings.Join(ids, " "))
		case *Internal[T]:
			pivots := make([]string, len(n.Pivots))
			for i, p := range n.Pivots {
				pivots[i] = fmt.Sprint(p.ID)
				if !n.Owned[i] {
					pivots[i] += "*"
				}
			}
			_, werr = fmt.Fprintf(w, "%sinternal size=%d rule=%s pivots=[%s]\n",
				indent, n.Size(), n.Rule, strings.Join(pivots, " "))
			for b := range n.Children {
				if n.Bounds.IsEmpty(b) || werr != nil {
					continue
				}
				ranges := make([]string, n.Bounds.Columns)
				for p := range ranges {
					lo, hi := n.Bounds.At(b, p)
					ranges[p] = fmt.Sprintf("[%.4g,%.4g]", lo, hi)
				}
				_, werr = fmt.Fprintf(w, "%s  child %d: %s\n", indent, b, strings.Join(ranges, " "))
			}
		}
	})
	if err != nil {
		return err
	}
	return werr
}
