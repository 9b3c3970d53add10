package metrictree

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- brute-force equivalence ---

func TestTree_MatchesLinearScan_AllConfigurations(t *testing.T) {
	ctx := context.Background()
	rules := []PartitionRule{RuleNearestPivot, RuleBallMedian, RuleSignPattern, RulePivotSpaceGrid, RuleCluster}
	modes := []PivotMode{PivotModeLocal, PivotModeGlobal, PivotModeMix}
	selections := []SelectionMethod{SelectRandom, SelectFFT, SelectMaxSpread, SelectPCA, SelectPAM, SelectCLARA}

	for _, sel := range selections {
		n := 200
		if sel == SelectPAM || sel == SelectCLARA {
			n = 80
		}
		items := randomItems(7, n, 3)
		queries := randomItems(99, 5, 3)
		scan := LinearScan[Vector]{Items: items, Metric: EuclideanMetric{}}

		for _, rule := range rules {
			for _, mode := range modes {
				for _, p := range []int{1, 2, 3} {
					if p == 1 && (rule == RuleNearestPivot || rule == RuleSignPattern) {
						continue
					}
					name := fmt.Sprintf("%s/%s/%s/P%d", sel, rule, mode, p)
					t.Run(name, func(t *testing.T) {
						cfg := DefaultConfig()
						cfg.Selection = sel
						cfg.Partition = rule
						cfg.PivotMode = mode
						cfg.PivotCount = p
						cfg.MaxLeafSize = 6
						cfg.Clusters = 3
						cfg.SampleSize = 20

						tree, err := Build[Vector](ctx, items, EuclideanMetric{}, cfg)
						require.NoError(t, err)
						require.NoError(t, tree.Verify(ctx, items))
						assert.Equal(t, n, tree.Len())

						for _, q := range queries {
							for _, r := range []float64{0, 5, 15, 40} {
								got, err := tree.Range(ctx, q.Value, r)
								require.NoError(t, err)
								assert.Equal(t, sortedIDs(scan.Range(q.Value, r)), sortedIDs(got), "range r=%v", r)
							}
							for _, k := range []int{1, 5, 20} {
								got, err := tree.KNN(ctx, q.Value, k)
								require.NoError(t, err)
								want := scan.KNN(q.Value, k)
								require.Len(t, got, len(want))
								for i := range want {
									assert.InDelta(t, want[i].Distance, got[i].Distance, floatTol, "knn k=%d rank %d", k, i)
								}
								assert.Equal(t, neighborIDs(want), neighborIDs(got))
							}
						}
					})
				}
			}
		}
	}
}

// --- worked example ---

func TestTree_FifteenPoints_EveryRule(t *testing.T) {
	ctx := context.Background()
	items := vectorItems(fifteenPoints)
	q := []float64{5, 5}

	for _, rule := range []PartitionRule{RuleNearestPivot, RuleBallMedian, RuleSignPattern, RulePivotSpaceGrid, RuleCluster} {
		t.Run(string(rule), func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Partition = rule
			cfg.MaxLeafSize = 3
			cfg.Clusters = 2

			tree, err := Build[Vector](ctx, items, EuclideanMetric{}, cfg)
			require.NoError(t, err)

			hits, err := tree.Range(ctx, q, 3.0)
			require.NoError(t, err)
			assert.Equal(t, []uint32{3, 4, 5, 6, 10}, sortedIDs(hits))

			nn, err := tree.KNN(ctx, q, 3)
			require.NoError(t, err)
			assert.Equal(t, []uint32{5, 3, 10}, neighborIDs(nn))
			assert.InDelta(t, 1.0, nn[0].Distance, floatTol)
			assert.InDelta(t, 1.4142135623730951, nn[1].Distance, floatTol)
			assert.InDelta(t, 2.0, nn[2].Distance, floatTol)
		})
	}
}

// --- degenerate inputs ---

func TestBuild_EmptyDataset(t *testing.T) {
	_, err := Build[Vector](context.Background(), nil, EuclideanMetric{}, DefaultConfig())
	assert.ErrorIs(t, err, ErrEmptyDataset)
}

func TestBuild_DuplicateIDs(t *testing.T) {
	items := []Item[Vector]{{ID: 1, Value: []float64{0}}, {ID: 1, Value: []float64{1}}}
	_, err := Build[Vector](context.Background(), items, EuclideanMetric{}, DefaultConfig())
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestBuild_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PivotCount = 1
	cfg.Partition = RuleSignPattern
	_, err := Build[Vector](context.Background(), randomItems(1, 10, 2), EuclideanMetric{}, cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.ErrorIs(t, err, ErrIncompatibleRule)
}

func TestBuild_AllDuplicateValues(t *testing.T) {
	ctx := context.Background()
	rows := make([][]float64, 50)
	for i := range rows {
		rows[i] = []float64{3, 3}
	}
	items := vectorItems(rows)

	for _, sel := range []SelectionMethod{SelectRandom, SelectFFT, SelectMaxSpread, SelectPCA, SelectPAM, SelectCLARA} {
		t.Run(string(sel), func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Selection = sel
			cfg.MaxLeafSize = 4

			tree, err := Build[Vector](ctx, items, EuclideanMetric{}, cfg)
			require.NoError(t, err)
			require.NoError(t, tree.Verify(ctx, items))
			assert.Equal(t, 1, tree.Stats().Leaves)

			hits, err := tree.Range(ctx, []float64{3, 3}, 0)
			require.NoError(t, err)
			assert.Len(t, hits, 50)

			nn, err := tree.KNN(ctx, []float64{3, 3}, 10)
			require.NoError(t, err)
			assert.Equal(t, []uint32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, neighborIDs(nn))
		})
	}
}

func TestBuild_PivotCountAtLeastDatasetSize(t *testing.T) {
	ctx := context.Background()
	items := randomItems(3, 4, 2)
	cfg := DefaultConfig()
	cfg.PivotCount = 5
	cfg.Partition = RuleBallMedian
	cfg.MaxLeafSize = 1

	tree, err := Build[Vector](ctx, items, EuclideanMetric{}, cfg)
	require.NoError(t, err)
	leaf, ok := tree.Root().Node.(*Leaf[Vector])
	require.True(t, ok, "root should be a leaf")
	assert.Equal(t, sortedIDs(items), sortedIDs(leaf.Items))
}

func TestQuery_NilTree(t *testing.T) {
	var tree *Tree[Vector]
	hits, err := tree.Range(context.Background(), []float64{0}, 10)
	assert.NoError(t, err)
	assert.Empty(t, hits)
	nn, err := tree.KNN(context.Background(), []float64{0}, 3)
	assert.NoError(t, err)
	assert.Empty(t, nn)
}

func TestQuery_NonPositiveKAndNegativeRadius(t *testing.T) {
	ctx := context.Background()
	tree, err := Build[Vector](ctx, randomItems(5, 30, 2), EuclideanMetric{}, DefaultConfig())
	require.NoError(t, err)

	for _, k := range []int{0, -3} {
		nn, err := tree.KNN(ctx, []float64{1, 1}, k)
		assert.NoError(t, err)
		assert.Empty(t, nn)
	}
	hits, err := tree.Range(ctx, []float64{1, 1}, -1)
	assert.NoError(t, err)
	assert.Empty(t, hits)
}

func TestQuery_KLargerThanDataset(t *testing.T) {
	ctx := context.Background()
	items := randomItems(5, 12, 2)
	tree, err := Build[Vector](ctx, items, EuclideanMetric{}, DefaultConfig())
	require.NoError(t, err)

	nn, err := tree.KNN(ctx, []float64{50, 50}, 100)
	require.NoError(t, err)
	assert.Len(t, nn, 12)
	for i := 1; i < len(nn); i++ {
		assert.LessOrEqual(t, nn[i-1].Distance, nn[i].Distance)
	}
}

// --- height control ---

func TestBuild_MaxHeightForcesLeaf(t *testing.T) {
	ctx := context.Background()
	items := randomItems(11, 300, 2)
	cfg := DefaultConfig()
	cfg.MaxLeafSize = 2
	cfg.MaxHeight = 3

	tree, err := Build[Vector](ctx, items, EuclideanMetric{}, cfg)
	require.NoError(t, err)
	assert.LessOrEqual(t, tree.Stats().Height, 3)
	require.NoError(t, tree.Verify(ctx, items))
}

func TestBuild_MinHeightForcesSplits(t *testing.T) {
	ctx := context.Background()
	items := randomItems(12, 60, 2)
	cfg := DefaultConfig()
	cfg.MaxLeafSize = 1000
	cfg.MinHeight = 3

	tree, err := Build[Vector](ctx, items, EuclideanMetric{}, cfg)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, tree.Stats().Height, 3)
	require.NoError(t, tree.Verify(ctx, items))
}

func TestHeightController_Leaf(t *testing.T) {
	h := heightController{minHeight: 2, maxHeight: 4, maxLeafSize: 10}
	tests := []struct {
		depth, size, pivots int
		want                bool
	}{
		{0, 2, 2, true},     // nothing left after removing pivots
		{0, 5, 2, false},    // below min height
		{1, 5, 2, true},     // min height reached, small
		{1, 50, 2, false},   // large
		{3, 500, 2, true},   // height ceiling
		{2, 11, 2, false},   // just above leaf size
		{2, 10, 2, true},    // at leaf size
		{0, 1, 1, true},     // single item
		{0, 100, 99, false}, // more items than pivots
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, h.leaf(tt.depth, tt.size, tt.pivots), "depth=%d size=%d pivots=%d", tt.depth, tt.size, tt.pivots)
	}
}

// --- determinism and concurrency ---

func describe(t *testing.T, tree *Tree[Vector]) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, tree.Describe(context.Background(), &buf))
	return buf.String()
}

func TestBuild_DeterministicAcrossWorkers(t *testing.T) {
	ctx := context.Background()
	items := randomItems(21, 400, 4)
	cfg := DefaultConfig()
	cfg.PivotCount = 3
	cfg.Partition = RuleBallMedian
	cfg.MaxLeafSize = 5

	seq, err := Build[Vector](ctx, items, EuclideanMetric{}, cfg)
	require.NoError(t, err)

	cfg.Workers = 4
	par, err := Build[Vector](ctx, items, EuclideanMetric{}, cfg)
	require.NoError(t, err)

	assert.Equal(t, describe(t, seq), describe(t, par))
	assert.Equal(t, seq.Stats().BuildDistanceComputations, par.Stats().BuildDistanceComputations)
	require.NoError(t, par.Verify(ctx, items))
}

func TestBuild_SeedChangesTree(t *testing.T) {
	ctx := context.Background()
	items := randomItems(22, 200, 2)
	cfg := DefaultConfig()
	cfg.Selection = SelectRandom

	a, err := Build[Vector](ctx, items, EuclideanMetric{}, cfg)
	require.NoError(t, err)
	b, err := Build[Vector](ctx, items, EuclideanMetric{}, cfg)
	require.NoError(t, err)
	assert.Equal(t, describe(t, a), describe(t, b))

	cfg.Seed = 2
	c, err := Build[Vector](ctx, items, EuclideanMetric{}, cfg)
	require.NoError(t, err)
	assert.NotEqual(t, describe(t, a), describe(t, c))
}

func TestBuild_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Build[Vector](ctx, randomItems(1, 100, 2), EuclideanMetric{}, DefaultConfig())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTree_ConcurrentQueries(t *testing.T) {
	ctx := context.Background()
	items := randomItems(31, 500, 3)
	tree, err := Build[Vector](ctx, items, EuclideanMetric{}, DefaultConfig())
	require.NoError(t, err)
	scan := LinearScan[Vector]{Items: items, Metric: EuclideanMetric{}}

	queries := randomItems(32, 16, 3)
	errs := make(chan error, len(queries))
	for _, q := range queries {
		go func() {
			s := tree.NewSearcher()
			got, err := s.KNN(ctx, q.Value, 7)
			if err == nil && fmt.Sprint(neighborIDs(got)) != fmt.Sprint(neighborIDs(scan.KNN(q.Value, 7))) {
				err = fmt.Errorf("query %d: mismatch", q.ID)
			}
			errs <- err
		}()
	}
	for range queries {
		assert.NoError(t, <-errs)
	}
}

// --- global and mix modes ---

func TestBuild_GlobalModeWithSuppliedPivots(t *testing.T) {
	ctx := context.Background()
	items := randomItems(41, 150, 2)
	pivots := []Item[Vector]{
		{ID: 1000, Value: []float64{0, 0}},
		{ID: 1001, Value: []float64{100, 100}},
		{ID: 1002, Value: []float64{0, 100}},
	}
	cfg := DefaultConfig()
	cfg.PivotMode = PivotModeGlobal
	cfg.Partition = RuleBallMedian
	cfg.MaxLeafSize = 4

	tree, err := Build[Vector](ctx, items, EuclideanMetric{}, cfg, WithGlobalPivots(pivots))
	require.NoError(t, err)
	require.NoError(t, tree.Verify(ctx, items))
	assert.Equal(t, 3, tree.Config().PivotCount)

	root, ok := tree.Root().Node.(*Internal[Vector])
	require.True(t, ok)
	assert.Equal(t, []bool{false, false, false}, root.Owned)

	scan := LinearScan[Vector]{Items: items, Metric: EuclideanMetric{}}
	got, err := tree.Range(ctx, []float64{50, 50}, 20)
	require.NoError(t, err)
	assert.Equal(t, sortedIDs(scan.Range([]float64{50, 50}, 20)), sortedIDs(got))
}

func TestBuild_GlobalPivotsWrongType(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PivotMode = PivotModeGlobal
	_, err := Build[Vector](context.Background(), randomItems(1, 20, 2), EuclideanMetric{}, cfg,
		WithGlobalPivots([]Item[string]{{ID: 1, Value: "x"}}))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestBuild_GlobalPivotsCollidingIDs(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PivotMode = PivotModeGlobal
	cfg.Partition = RuleBallMedian
	pivots := []Item[Vector]{
		{ID: 0, Value: []float64{100, 100}},
		{ID: 1, Value: []float64{-100, 50}},
	}

	_, err := Build[Vector](context.Background(), vectorItems(fifteenPoints), EuclideanMetric{}, cfg,
		WithGlobalPivots(pivots))
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestBuild_GlobalPivotEqualToDatasetItemIsOwned(t *testing.T) {
	ctx := context.Background()
	items := vectorItems(fifteenPoints)
	cfg := DefaultConfig()
	cfg.PivotMode = PivotModeGlobal
	cfg.Partition = RuleBallMedian
	cfg.MaxLeafSize = 3
	pivots := []Item[Vector]{
		{ID: 0, Value: []float64{1, 1}},
		{ID: 100, Value: []float64{50, 50}},
	}

	tree, err := Build[Vector](ctx, items, EuclideanMetric{}, cfg, WithGlobalPivots(pivots))
	require.NoError(t, err)
	require.NoError(t, tree.Verify(ctx, items))

	root, ok := tree.Root().Node.(*Internal[Vector])
	require.True(t, ok)
	assert.Equal(t, []bool{true, false}, root.Owned)

	got, err := tree.Range(ctx, []float64{1, 1}, 0.5)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0}, sortedIDs(got))

	got, err = tree.Range(ctx, []float64{50, 50}, 0.5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestVerify_DetectsChangedValue(t *testing.T) {
	ctx := context.Background()
	tree := &Tree[Vector]{
		root:   ChildRef[Vector]{Node: &Leaf[Vector]{Items: vectorItems([][]float64{{1, 1}, {2, 2}})}},
		metric: EuclideanMetric{},
	}

	require.NoError(t, tree.Verify(ctx, vectorItems([][]float64{{1, 1}, {2, 2}})))
	assert.ErrorIs(t, tree.Verify(ctx, vectorItems([][]float64{{1, 1}, {9, 9}})), ErrInvariant)
}

// --- stats ---

func TestTree_StatsMatchWalk(t *testing.T) {
	ctx := context.Background()
	items := randomItems(51, 250, 3)
	cfg := DefaultConfig()
	cfg.PivotCount = 3
	cfg.Partition = RuleSignPattern
	cfg.MaxLeafSize = 8

	tree, err := Build[Vector](ctx, items, EuclideanMetric{}, cfg)
	require.NoError(t, err)

	built := tree.Stats()
	walked, err := tree.CollectStats(ctx)
	require.NoError(t, err)

	assert.Equal(t, built.Height, walked.Height)
	assert.Equal(t, built.Nodes, walked.Nodes)
	assert.Equal(t, built.Leaves, walked.Leaves)
	assert.Equal(t, built.Internals, walked.Internals)
	assert.Equal(t, 250, walked.Items)
	assert.Equal(t, built.Nodes, built.Leaves+built.Internals)
	assert.Positive(t, built.BuildDistanceComputations)
	assert.Contains(t, built.String(), "items=250")
}

func TestSearcher_StatsPruneWork(t *testing.T) {
	ctx := context.Background()
	items := clusteredItems(61, [][]float64{{0, 0}, {100, 0}, {0, 100}, {100, 100}}, 100, 3)
	cfg := DefaultConfig()
	cfg.PivotCount = 4
	cfg.MaxLeafSize = 10

	tree, err := Build[Vector](ctx, items, EuclideanMetric{}, cfg)
	require.NoError(t, err)

	s := tree.NewSearcher()
	_, err = s.Range(ctx, []float64{0, 0}, 2)
	require.NoError(t, err)
	assert.Less(t, s.Stats().DistanceComputations, len(items))
	assert.Positive(t, s.Stats().NodesVisited)

	_, err = s.KNN(ctx, []float64{100, 100}, 3)
	require.NoError(t, err)
	assert.Less(t, s.Stats().DistanceComputations, len(items))
}

func TestTree_DescribeMarksBorrowedPivots(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.PivotMode = PivotModeGlobal
	cfg.Partition = RuleBallMedian
	cfg.MaxLeafSize = 4
	items := randomItems(71, 40, 2)

	tree, err := Build[Vector](ctx, items, EuclideanMetric{}, cfg,
		WithGlobalPivots([]Item[Vector]{{ID: 500, Value: []float64{0, 0}}, {ID: 501, Value: []float64{9, 9}}}))
	require.NoError(t, err)
	assert.Contains(t, describe(t, tree), "500*")
}
