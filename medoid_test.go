package metrictree

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var threeCorners = [][]float64{{0, 0}, {100, 0}, {0, 100}}

// clusterOf maps an item of clusteredItems back to its centre.
func clusterOf(id uint32, perCluster int) int { return int(id) / perCluster }

func assertStrictlyDecreasing(t *testing.T, xs []float64) {
	t.Helper()
	for i := 1; i < len(xs); i++ {
		assert.Less(t, xs[i], xs[i-1], "history[%d]", i)
	}
}

func TestPAM_OneMedoidPerSeparatedCluster(t *testing.T) {
	items := clusteredItems(3, threeCorners, 10, 1)
	res := PAM[Vector](testRNG(), items, EuclideanMetric{}, 3, 1)

	require.Len(t, res.Medoids, 3)
	seen := map[int]bool{}
	for _, m := range res.Medoids {
		seen[clusterOf(m.ID, 10)] = true
	}
	assert.Len(t, seen, 3)
	assert.Less(t, res.Cost, 3*2*math.Sqrt2)
}

func TestPAM_CostHistoryStrictlyDecreasing(t *testing.T) {
	items := randomItems(5, 60, 2)
	res := PAM[Vector](testRNG(), items, EuclideanMetric{}, 4, 1)

	require.NotEmpty(t, res.CostHistory)
	assertStrictlyDecreasing(t, res.CostHistory)
	assert.Equal(t, res.Cost, res.CostHistory[len(res.CostHistory)-1])
	assert.InDelta(t, radiiCost(items, res.Medoids, EuclideanMetric{}), res.Cost, 1e-9)
}

func TestPAM_WorkersDoNotChangeResult(t *testing.T) {
	items := randomItems(6, 90, 3)
	a := PAM[Vector](testRNG(), items, EuclideanMetric{}, 3, 1)
	b := PAM[Vector](testRNG(), items, EuclideanMetric{}, 3, 4)
	assert.Equal(t, sortedIDs(a.Medoids), sortedIDs(b.Medoids))
	assert.Equal(t, a.CostHistory, b.CostHistory)
}

func TestPAM_FewerDistinctValuesThanK(t *testing.T) {
	items := vectorItems([][]float64{{1}, {1}, {2}, {2}, {1}})
	res := PAM[Vector](testRNG(), items, EuclideanMetric{}, 4, 1)
	require.Len(t, res.Medoids, 2)
	assert.Zero(t, res.Cost)
}

func TestPAM_Empty(t *testing.T) {
	assert.Empty(t, PAM[Vector](testRNG(), nil, EuclideanMetric{}, 2, 1).Medoids)
	assert.Empty(t, PAM[Vector](testRNG(), randomItems(1, 5, 1), EuclideanMetric{}, 0, 1).Medoids)
}

func TestCLARA_SmallInputRunsPAM(t *testing.T) {
	items := randomItems(7, 40, 2)
	clara := CLARA[Vector](testRNG(), items, EuclideanMetric{}, 3, 50, 5, 1)
	pam := PAM[Vector](testRNG(), items, EuclideanMetric{}, 3, 1)
	assert.Equal(t, pam.Medoids, clara.Medoids)
	assert.Equal(t, pam.Cost, clara.Cost)
}

func TestCLARA_LargeInputSamples(t *testing.T) {
	items := clusteredItems(8, threeCorners, 200, 2)
	metric := NewCountingMetric[Vector](EuclideanMetric{})
	res := CLARA[Vector](testRNG(), items, metric, 3, 20, 10, 1)

	require.Len(t, res.Medoids, 3)
	seen := map[int]bool{}
	for _, m := range res.Medoids {
		seen[clusterOf(m.ID, 200)] = true
	}
	assert.Len(t, seen, 3)
	assertStrictlyDecreasing(t, res.CostHistory)
	assert.InDelta(t, radiiCost(items, res.Medoids, EuclideanMetric{}), res.Cost, 1e-9)

	// A full PAM would need n(n-1)/2 distances for the matrix alone.
	assert.Less(t, metric.Count(), int64(len(items)*(len(items)-1)/2))
}

func TestCLARA_PadsWithFirstMedoid(t *testing.T) {
	items := vectorItems([][]float64{{1}, {1}, {2}, {2}})
	res := CLARA[Vector](testRNG(), items, EuclideanMetric{}, 3, 10, 2, 1)
	require.Len(t, res.Medoids, 3)
	assert.Equal(t, res.Medoids[0], res.Medoids[2])
}

func TestPadMedoids(t *testing.T) {
	one := Item[Vector]{ID: 4, Value: []float64{1}}
	res := padMedoids(MedoidResult[Vector]{Medoids: []Item[Vector]{one}}, 3)
	assert.Equal(t, []Item[Vector]{one, one, one}, res.Medoids)

	empty := padMedoids(MedoidResult[Vector]{}, 3)
	assert.Empty(t, empty.Medoids)
}

func TestMedoidSelector_DropsPadding(t *testing.T) {
	items := vectorItems([][]float64{{1}, {1}, {2}, {2}, {1}, {2}})
	s := MedoidSelector[Vector]{CLARA: true, SampleSize: 10, Samples: 2, Workers: 1}
	pivots := s.SelectPivots(testRNG(), items, items, EuclideanMetric{}, 3)
	assert.Len(t, pivots, 2)
	assertDistinct(t, pivots)
}
