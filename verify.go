package metrictree

import (
	"context"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
)

// Verify walks the tree and checks its structural invariants:
//
//   - every item is stored exactly once, in a leaf or as an owned pivot;
//   - every item under child b of a node lies inside that node's distance
//     interval for b on every pivot, and inside its δ intervals for the
//     sign-pattern rule;
//   - every node's recorded size matches its contents.
//
// When want is non-nil the stored IDs must also equal want's IDs, and each
// stored item must be at distance zero from want's item with the same ID.
// Violations are reported as ErrInvariant.
func (t *Tree[T]) Verify(ctx context.Context, want []Item[T]) error {
	seen := roaring.New()
	var stored []Item[T]
	if !t.root.IsAbsent() {
		var err error
		if stored, err = t.verifyNode(ctx, t.root, seen); err != nil {
			return err
		}
	}
	if want == nil {
		return nil
	}
	expected := roaring.New()
	for _, it := range want {
		expected.Add(it.ID)
	}
	if !seen.Equals(expected) {
		missing := roaring.AndNot(expected, seen)
		extra := roaring.AndNot(seen, expected)
		return fmt.Errorf("%w: %d items missing, %d unexpected", ErrInvariant,
			missing.GetCardinality(), extra.GetCardinality())
	}
	byID := make(map[uint32]int, len(want))
	for i, it := range want {
		byID[it.ID] = i
	}
	for _, it := range stored {
		if t.metric.Distance(it.Value, want[byID[it.ID]].Value) != 0 {
			return fmt.Errorf("%w: item %d stored with a different value", ErrInvariant, it.ID)
		}
	}
	return nil
}

func (t *Tree[T]) verifyNode(ctx context.Context, ref ChildRef[T], seen *roaring.Bitmap) ([]Item[T], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	node, err := t.resolve(ctx, ref)
	if err != nil {
		return nil, err
	}

	add := func(it Item[T]) error {
		if !seen.CheckedAdd(it.ID) {
			return fmt.Errorf("%w: item %d stored twice", ErrInvariant, it.ID)
		}
		return nil
	}

	switch n := node.(type) {
	case *Leaf[T]:
		for _, it := range n.Items {
			if err := add(it); err != nil {
				return nil, err
			}
		}
		return n.Items, nil

	case *Internal[T]:
		if len(n.Owned) != len(n.Pivots) || n.Bounds.Columns != len(n.Pivots) || n.Bounds.Children != len(n.Children) {
			return nil, fmt.Errorf("%w: inconsistent internal node shape", ErrInvariant)
		}
		var all []Item[T]
		for i, p := range n.Pivots {
			if n.Owned[i] {
				if err := add(p); err != nil {
					return nil, err
				}
				all = append(all, p)
			}
		}
		var dist, delta []float64
		for b, child := range n.Children {
			if child.IsAbsent() {
				continue
			}
			sub, err := t.verifyNode(ctx, child, seen)
			if err != nil {
				return nil, err
			}
			for _, x := range sub {
				dist = dist[:0]
				for _, p := range n.Pivots {
					dist = append(dist, t.metric.Distance(x.Value, p.Value))
				}
				if !within(n.Bounds, b, dist) {
					return nil, fmt.Errorf("%w: item %d outside bounds of child %d", ErrInvariant, x.ID, b)
				}
				if n.Deltas != nil {
					delta = deltaRow(dist, delta)
					if !within(*n.Deltas, b, delta) {
						return nil, fmt.Errorf("%w: item %d outside delta bounds of child %d", ErrInvariant, x.ID, b)
					}
				}
			}
			all = append(all, sub...)
		}
		if len(all) != n.Size() {
			return nil, fmt.Errorf("%w: node size %d, holds %d items", ErrInvariant, n.Size(), len(all))
		}
		return all, nil
	}
	return nil, fmt.Errorf("%w: unknown node type %T", ErrInvariant, node)
}

func within(t BoundTable, b int, row []float64) bool {
	for p, v := range row {
		lo, hi := t.At(b, p)
		if v < lo-slack(lo) || v > hi+slack(hi) {
			return false
		}
	}
	return true
}
