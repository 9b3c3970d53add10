package metrictree

import (
	"math/rand/v2"
	"slices"
)

func vectorItems(rows [][]float64) []Item[Vector] {
	items := make([]Item[Vector], len(rows))
	for i, r := range rows {
		items[i] = Item[Vector]{ID: uint32(i), Value: r}
	}
	return items
}

func randomItems(seed uint64, n, dims int) []Item[Vector] {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = make([]float64, dims)
		for j := range rows[i] {
			rows[i][j] = rng.Float64() * 100
		}
	}
	return vectorItems(rows)
}

// clusteredItems places n points around each of the given centres.
func clusteredItems(seed uint64, centres [][]float64, n int, spread float64) []Item[Vector] {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	var rows [][]float64
	for _, c := range centres {
		for i := 0; i < n; i++ {
			p := make([]float64, len(c))
			for j := range c {
				p[j] = c[j] + (rng.Float64()*2-1)*spread
			}
			rows = append(rows, p)
		}
	}
	return vectorItems(rows)
}

func testRNG() *rand.Rand { return rand.New(rand.NewPCG(42, 43)) }

func sortedIDs[T any](items []Item[T]) []uint32 {
	ids := make([]uint32, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	slices.Sort(ids)
	return ids
}

func neighborIDs[T any](ns []Neighbor[T]) []uint32 {
	ids := make([]uint32, len(ns))
	for i, n := range ns {
		ids[i] = n.Item.ID
	}
	return ids
}

// fifteenPoints is the 2-D fixture used by the worked range/kNN example.
var fifteenPoints = [][]float64{
	{1, 1}, {2, 2}, {3, 1}, {4, 4}, {5, 2},
	{6, 5}, {7, 3}, {8, 6}, {9, 4}, {10, 7},
	{3, 5}, {6, 1}, {2, 7}, {8, 2}, {4, 8},
}
