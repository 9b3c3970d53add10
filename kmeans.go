package metrictree

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
)

// kmeans clusters the n rows of the flat row-major matrix points (dim
// columns) into k groups with Lloyd's algorithm, writing each row's cluster
// into assign and returning the centroids. Centroids start at k random rows;
// an emptied cluster is re-seeded with the row farthest from its centroid.
// With n <= k every row gets its own cluster and the rest stay empty.
func kmeans(rng *rand.Rand, points []float64, dim, k, maxIter int, assign []int) [][]float64 {
	n := len(points) / dim
	row := func(i int) []float64 { return points[i*dim : (i+1)*dim] }

	if n <= k {
		centroids := make([][]float64, n)
		for i := range centroids {
			centroids[i] = append([]float64(nil), row(i)...)
			assign[i] = i
		}
		return centroids
	}

	centroids := make([][]float64, k)
	perm := rng.Perm(n)
	for j := range centroids {
		centroids[j] = append([]float64(nil), row(perm[j])...)
	}

	nearest := func(v []float64) int {
		best, bestD := 0, math.Inf(1)
		for j, c := range centroids {
			if d := floats.Distance(v, c, 2); d < bestD {
				best, bestD = j, d
			}
		}
		return best
	}

	for i := 0; i < n; i++ {
		assign[i] = nearest(row(i))
	}

	counts := make([]int, k)
	for iter := 0; iter < maxIter; iter++ {
		// Update step
		for j := range centroids {
			counts[j] = 0
			floats.Scale(0, centroids[j])
		}
		for i := 0; i < n; i++ {
			floats.Add(centroids[assign[i]], row(i))
			counts[assign[i]]++
		}
		for j := range centroids {
			if counts[j] > 0 {
				floats.Scale(1/float64(counts[j]), centroids[j])
			}
		}
		for j := range centroids {
			if counts[j] > 0 {
				continue
			}
			far, farD := 0, -1.0
			for i := 0; i < n; i++ {
				if d := floats.Distance(row(i), centroids[assign[i]], 2); d > farD {
					far, farD = i, d
				}
			}
			copy(centroids[j], row(far))
			assign[far] = j
		}

		// Assignment step
		changed := false
		for i := 0; i < n; i++ {
			if c := nearest(row(i)); c != assign[i] {
				assign[i] = c
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return centroids
}
