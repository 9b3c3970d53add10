package metrictree

// Node is a tree node: either *Leaf or *Internal.
type Node[T any] interface {
	// Size returns the number of items stored in the node's subtree.
	Size() int
	isNode()
}

// Leaf stores items verbatim.
type Leaf[T any] struct {
	Items []Item[T]
}

func (l *Leaf[T]) Size() int { return len(l.Items) }
func (*Leaf[T]) isNode()     {}

// Internal routes queries to its children.
type Internal[T any] struct {
	// Pivots are the node's reference points.
	Pivots []Item[T]

	// Owned[i] reports whether Pivots[i] is a member of this subtree's data.
	// Owned pivots are stored here and nowhere else; borrowed pivots (global
	// and mix modes) are only reference points.
	Owned []bool

	// Bounds holds the [min, max] distance to each pivot per child.
	Bounds BoundTable

	// Deltas holds the sign-pattern δ ranges per child, or nil.
	Deltas *BoundTable

	// Children has one slot per bucket; empty buckets are absent refs.
	Children []ChildRef[T]

	// Rule records which rule produced the node; Splits and Centroids are
	// kept for inspection only.
	Rule      PartitionRule
	Splits    []float64
	Centroids [][]float64

	size int
}

func (n *Internal[T]) Size() int { return n.size }
func (*Internal[T]) isNode()     {}

// Handle is an opaque reference to a node held in a NodeStore.
// The zero Handle means "no node".
type Handle uint64

// ChildRef is either an in-memory node, a store handle, both, or neither
// (an absent child).
type ChildRef[T any] struct {
	Node   Node[T]
	Handle Handle
}

// IsAbsent reports whether the child slot is empty.
func (c ChildRef[T]) IsAbsent() bool { return c.Node == nil && c.Handle == 0 }

// NodeRecord is the storable form of a node. Child links are handles.
type NodeRecord[T any] struct {
	Leaf      bool          `msgpack:"leaf"`
	Items     []Item[T]     `msgpack:"items,omitempty"`
	Pivots    []Item[T]     `msgpack:"pivots,omitempty"`
	Owned     []bool        `msgpack:"owned,omitempty"`
	Bounds    BoundTable    `msgpack:"bounds"`
	Deltas    *BoundTable   `msgpack:"deltas,omitempty"`
	Children  []Handle      `msgpack:"children,omitempty"`
	Rule      PartitionRule `msgpack:"rule,omitempty"`
	Splits    []float64     `msgpack:"splits,omitempty"`
	Centroids [][]float64   `msgpack:"centroids,omitempty"`
	Size      int           `msgpack:"size"`
}

// recordOf converts n to its storable form. Every present child must
// already carry a handle.
func recordOf[T any](n Node[T]) *NodeRecord[T] {
	switch n := n.(type) {
	case *Leaf[T]:
		return &NodeRecord[T]{Leaf: true, Items: n.Items, Size: len(n.Items)}
	case *Internal[T]:
		rec := &NodeRecord[T]{
			Pivots:    n.Pivots,
			Owned:     n.Owned,
			Bounds:    n.Bounds,
			Deltas:    n.Deltas,
			Children:  make([]Handle, len(n.Children)),
			Rule:      n.Rule,
			Splits:    n.Splits,
			Centroids: n.Centroids,
			Size:      n.size,
		}
		for i, c := range n.Children {
			rec.Children[i] = c.Handle
		}
		return rec
	}
	return nil
}

// nodeOf converts a record back into a node whose children are handles only.
func nodeOf[T any](rec *NodeRecord[T]) Node[T] {
	if rec.Leaf {
		return &Leaf[T]{Items: rec.Items}
	}
	n := &Internal[T]{
		Pivots:    rec.Pivots,
		Owned:     rec.Owned,
		Bounds:    rec.Bounds,
		Deltas:    rec.Deltas,
		Children:  make([]ChildRef[T], len(rec.Children)),
		Rule:      rec.Rule,
		Splits:    rec.Splits,
		Centroids: rec.Centroids,
		size:      rec.Size,
	}
	for i, h := range rec.Children {
		n.Children[i] = ChildRef[T]{Handle: h}
	}
	return n
}
