package metrictree

import "sync"

// ComputePairwiseDistancesParallel computes the full n×n distance matrix using
// multiple goroutines. numWorkers controls the degree of parallelism; if <= 1,
// it falls back to single-threaded ComputePairwiseDistances.
//
// The result is bitwise identical to ComputePairwiseDistances.
func ComputePairwiseDistancesParallel[T any](items []Item[T], metric Metric[T], numWorkers int) []float64 {
	n := len(items)
	if numWorkers <= 1 || n <= 1 {
		return ComputePairwiseDistances(items, metric)
	}

	result := make([]float64, n*n)

	// Each worker owns a contiguous range of source rows and writes
	// dist(i,j) for j > i, so writes never overlap.
	forEachRowRange(n, numWorkers, func(start, end int) {
		for i := start; i < end; i++ {
			for j := i + 1; j < n; j++ {
				d := metric.Distance(items[i].Value, items[j].Value)
				result[i*n+j] = d
				result[j*n+i] = d
			}
		}
	})
	return result
}

// triangle is a packed strictly-lower-triangular distance matrix:
// entry (i, j) with j < i lives at i*(i-1)/2 + j.
type triangle struct {
	n    int
	data []float64
}

func (t triangle) at(i, j int) float64 {
	switch {
	case i == j:
		return 0
	case i < j:
		i, j = j, i
	}
	return t.data[i*(i-1)/2+j]
}

// computeTriangle fills the lower triangle of the distance matrix of items.
// Row i has i entries, so rows are dealt out round-robin to keep the
// workers' loads comparable.
func computeTriangle[T any](items []Item[T], metric Metric[T], numWorkers int) triangle {
	n := len(items)
	t := triangle{n: n, data: make([]float64, n*(n-1)/2)}
	fill := func(i int) {
		base := i * (i - 1) / 2
		for j := 0; j < i; j++ {
			t.data[base+j] = metric.Distance(items[i].Value, items[j].Value)
		}
	}
	if numWorkers <= 1 || n <= 64 {
		for i := 1; i < n; i++ {
			fill(i)
		}
		return t
	}

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 1 + w; i < n; i += numWorkers {
				fill(i)
			}
		}(w)
	}
	wg.Wait()
	return t
}

// forEachRowRange splits [0, n) into numWorkers contiguous ranges and runs fn
// on each in its own goroutine.
func forEachRowRange(n, numWorkers int, fn func(start, end int)) {
	var wg sync.WaitGroup
	rowsPerWorker := (n + numWorkers - 1) / numWorkers

	for w := 0; w < numWorkers; w++ {
		startRow := w * rowsPerWorker
		endRow := min(startRow+rowsPerWorker, n)
		if startRow >= n {
			break
		}

		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			fn(start, end)
		}(startRow, endRow)
	}

	wg.Wait()
}
