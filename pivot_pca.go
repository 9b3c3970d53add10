package metrictree

import (
	"errors"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const (
	// pcaPivotsPerComponent is how many pivots each principal component
	// contributes: its two extreme points.
	pcaPivotsPerComponent = 2
	// pcaComponentScale over-extracts components so the leading ones are
	// well separated before ranking.
	pcaComponentScale = 2
	pcaEMIterations   = 30
)

// PCASelector treats every candidate as a point in distance space (its row
// of the candidate distance matrix), extracts the leading principal
// components with EM-PCA, and picks the extreme points along each
// component. Candidates are first thinned to count*Scale items by
// farthest-first traversal.
type PCASelector[T any] struct {
	Scale   int
	Workers int
}

func (s PCASelector[T]) SelectPivots(rng *rand.Rand, candidates, eval []Item[T], metric Metric[T], count int) []Item[T] {
	if count >= len(eval) {
		return distinctItems(eval, metric)
	}
	pool := farthestFirst(rng, candidates, metric, count*max(s.Scale, 1))
	if len(pool) <= count {
		return pool
	}

	n := len(pool)
	y := mat.NewDense(n, n, ComputePairwiseDistancesParallel(pool, metric, s.Workers))
	col := make([]float64, n)
	for j := 0; j < n; j++ {
		mat.Col(col, j, y)
		mean := stat.Mean(col, nil)
		for i := 0; i < n; i++ {
			y.Set(i, j, col[i]-mean)
		}
	}

	want := (count + pcaPivotsPerComponent - 1) / pcaPivotsPerComponent
	basis := emPCA(rng, y, min(want*pcaComponentScale, n))

	pivots := make([]Item[T], 0, count)
	chosen := make([]bool, n)
	proj := make([]float64, n)
	for _, c := range rankComponents(y, basis) {
		if len(pivots) == count {
			break
		}
		mat.NewVecDense(n, proj).MulVec(y, mat.NewVecDense(n, c))
		order := make([]int, n)
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool { return proj[order[a]] > proj[order[b]] })

		for _, end := range [pcaPivotsPerComponent][]int{order, reversed(order)} {
			for _, i := range end {
				if chosen[i] {
					continue
				}
				if atZeroDistance(pool[i], pivots, metric) {
					continue
				}
				chosen[i] = true
				pivots = append(pivots, pool[i])
				break
			}
			if len(pivots) == count {
				break
			}
		}
	}

	// Degenerate spectra yield fewer components than needed; top up in
	// farthest-first order, which is the pool's own order.
	for i := 0; i < n && len(pivots) < count; i++ {
		if !chosen[i] && !atZeroDistance(pool[i], pivots, metric) {
			chosen[i] = true
			pivots = append(pivots, pool[i])
		}
	}
	return pivots
}

// emPCA estimates a k-dimensional principal subspace of the rows of y
// (already column-centred) with the EM algorithm of Roweis, and returns an
// orthonormal basis of it. The basis may have fewer than k vectors when y
// has lower rank.
func emPCA(rng *rand.Rand, y *mat.Dense, k int) [][]float64 {
	_, d := y.Dims()
	c := mat.NewDense(d, k, nil)
	for i := 0; i < d; i++ {
		for j := 0; j < k; j++ {
			c.Set(i, j, rng.NormFloat64())
		}
	}

	for range pcaEMIterations {
		// E-step: X = (CᵀC)⁻¹ Cᵀ Yᵀ
		var ctc, cty, x mat.Dense
		ctc.Mul(c.T(), c)
		cty.Mul(c.T(), y.T())
		if err := x.Solve(&ctc, &cty); !usable(err) {
			break
		}
		// M-step: Cᵀ = (XXᵀ)⁻¹ X Y
		var xxt, xy, ct mat.Dense
		xxt.Mul(&x, x.T())
		xy.Mul(&x, y)
		if err := ct.Solve(&xxt, &xy); !usable(err) {
			break
		}
		c.Copy(ct.T())
	}

	basis := make([][]float64, 0, k)
	for j := 0; j < k; j++ {
		v := mat.Col(nil, j, c)
		for _, b := range basis {
			floats.AddScaled(v, -floats.Dot(v, b), b)
		}
		norm := floats.Norm(v, 2)
		if norm < 1e-12 || math.IsNaN(norm) {
			continue
		}
		floats.Scale(1/norm, v)
		basis = append(basis, v)
	}
	if len(basis) < 2 {
		return basis
	}

	// EM converges to the principal subspace, not its axes; rotate the
	// basis onto the eigenvectors of the projected covariance.
	b := mat.NewDense(d, len(basis), nil)
	for j, v := range basis {
		b.SetCol(j, v)
	}
	var z mat.Dense
	z.Mul(y, b)
	var cov mat.SymDense
	cov.SymOuterK(1, z.T())
	var eig mat.EigenSym
	if !eig.Factorize(&cov, true) {
		return basis
	}
	var vecs, rotated mat.Dense
	eig.VectorsTo(&vecs)
	rotated.Mul(b, &vecs)
	for j := range basis {
		basis[j] = mat.Col(nil, j, &rotated)
	}
	return basis
}

// usable accepts a nil error or an ill-conditioning warning; gonum still
// fills the result in the latter case.
func usable(err error) bool {
	if err == nil {
		return true
	}
	var cond mat.Condition
	return errors.As(err, &cond) && !math.IsInf(float64(cond), 0) && !math.IsNaN(float64(cond))
}

// rankComponents orders basis vectors by the variance of the projections of
// y's rows onto them, largest first.
func rankComponents(y *mat.Dense, basis [][]float64) [][]float64 {
	n, _ := y.Dims()
	variance := make([]float64, len(basis))
	proj := make([]float64, n)
	for j, b := range basis {
		mat.NewVecDense(n, proj).MulVec(y, mat.NewVecDense(len(b), b))
		variance[j] = stat.Variance(proj, nil)
	}
	idx := make([]int, len(basis))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return variance[idx[a]] > variance[idx[b]] })

	out := make([][]float64, len(basis))
	for i, j := range idx {
		out[i] = basis[j]
	}
	return out
}

func reversed(s []int) []int {
	out := make([]int, len(s))
	for i, v := range s {
		out[len(s)-1-i] = v
	}
	return out
}
