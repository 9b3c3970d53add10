// Package metrictree implements a generalized multi-pivot metric tree: an
// index over items from any metric space that answers range and
// k-nearest-neighbor queries while pruning subtrees with the triangle
// inequality.
//
// Each internal node holds a few pivots and, for every child, the interval
// of distances from the child's items to each pivot. The same engine covers
// several classic structures through configuration: nearest-pivot routing
// (GH/GNAT style), median balls (VP/MVP style), sign patterns of distance
// differences (CGH style), grid cells in pivot space and k-means clusters
// in pivot space.
//
// Basic usage:
//
//	items := []metrictree.Item[metrictree.Vector]{{ID: 1, Value: []float64{0, 0}}, ...}
//	cfg := metrictree.DefaultConfig()
//	cfg.PivotCount = 3
//	cfg.Partition = metrictree.RuleBallMedian
//	tree, err := metrictree.Build(ctx, items, metrictree.EuclideanMetric{}, cfg)
//	hits, err := tree.Range(ctx, []float64{5, 5}, 3.0)
//	nearest, err := tree.KNN(ctx, []float64{5, 5}, 10)
//
// # Pivot selection
//
// Config.Selection picks the pivot selector: "random", "fft" (farthest-first
// traversal), "max_spread", "pca" (extremes of EM-PCA components), "pam" or
// "clara" (medoids). Config.PivotMode controls whether pivots come from each
// node's own data ("local"), from one set shared by every level ("global"),
// or from a pool sampled once and re-evaluated per node ("mix").
//
// # Persistence
//
// With WithStore every node is written to a NodeStore as soon as it is
// built; WithDetachedChildren keeps only child handles in memory. Open
// re-creates a queryable tree from a store and a root handle. The
// badgerstore package provides a BadgerDB-backed store.
package metrictree
