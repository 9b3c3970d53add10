package metrictree

import "math"

// pruneTolerance absorbs floating-point rounding in triangle-inequality
// tests, so items lying exactly on a bound are never pruned.
const pruneTolerance = 1e-12

// BoundTable stores, for every child bucket b and every column p, the
// closed interval [Lower, Upper] spanned by the column values of the items
// routed to b. For the distance table the columns are pivots and the values
// are d(x, pivot); for the sign-pattern delta table the columns are
// δ_i = d(x, p1) - d(x, p_{i+1}).
//
// Storage is flat row-major: entry (b, p) lives at b*Columns+p. An empty
// bucket has Lower = +Inf and Upper = -Inf in every column.
type BoundTable struct {
	Children int       `msgpack:"c"`
	Columns  int       `msgpack:"p"`
	Lower    []float64 `msgpack:"l"`
	Upper    []float64 `msgpack:"u"`
}

func newBoundTable(children, columns int) BoundTable {
	t := BoundTable{
		Children: children,
		Columns:  columns,
		Lower:    make([]float64, children*columns),
		Upper:    make([]float64, children*columns),
	}
	for i := range t.Lower {
		t.Lower[i] = math.Inf(1)
		t.Upper[i] = math.Inf(-1)
	}
	return t
}

// At returns the interval of child b on column p.
func (t BoundTable) At(b, p int) (lower, upper float64) {
	i := b*t.Columns + p
	return t.Lower[i], t.Upper[i]
}

// IsEmpty reports whether no item was routed to child b.
func (t BoundTable) IsEmpty(b int) bool {
	return t.Columns == 0 || t.Lower[b*t.Columns] > t.Upper[b*t.Columns]
}

func (t *BoundTable) extend(b int, row []float64) {
	base := b * t.Columns
	for p, v := range row {
		t.Lower[base+p] = min(t.Lower[base+p], v)
		t.Upper[base+p] = max(t.Upper[base+p], v)
	}
}

func slack(v float64) float64 {
	if math.IsInf(v, 0) {
		return 0
	}
	return pruneTolerance * (1 + math.Abs(v))
}

// intersects reports whether, for every column, the query interval
// [dq-r, dq+r] meets the child's interval. A child failing this test cannot
// hold any item within r of the query.
func (t BoundTable) intersects(b int, dq []float64, r float64) bool {
	base := b * t.Columns
	for p, d := range dq {
		lo, hi := t.Lower[base+p], t.Upper[base+p]
		if d+r < lo-slack(lo) || d-r > hi+slack(hi) {
			return false
		}
	}
	return true
}

// contained reports whether some pivot proves every item of child b lies
// within r of the query: d(q, x) <= d(q, p) + d(x, p) <= dq + Upper.
func (t BoundTable) contained(b int, dq []float64, r float64) bool {
	base := b * t.Columns
	for p, d := range dq {
		if d+t.Upper[base+p] <= r-slack(r) {
			return true
		}
	}
	return false
}

// lowerBound returns a lower bound on d(q, x) for every x routed to child b,
// given the query's distances to the pivots.
func (t BoundTable) lowerBound(b int, dq []float64) float64 {
	base := b * t.Columns
	lb := 0.0
	for p, d := range dq {
		lo, hi := t.Lower[base+p], t.Upper[base+p]
		lb = max(lb, lo-d-slack(lo), d-hi-slack(hi))
	}
	return lb
}

// deltaIntersects applies the sign-pattern test |δ_x - δ_q| <= 2r to every
// delta column of child b.
func (t BoundTable) deltaIntersects(b int, dq []float64, r float64) bool {
	base := b * t.Columns
	for i := 0; i < t.Columns; i++ {
		delta := dq[0] - dq[i+1]
		lo, hi := t.Lower[base+i], t.Upper[base+i]
		if delta < lo-2*r-slack(lo) || delta > hi+2*r+slack(hi) {
			return false
		}
	}
	return true
}

// deltaLowerBound returns max_i |δ_x - δ_q|/2 minimized over the child's
// delta intervals, a lower bound on d(q, x).
func (t BoundTable) deltaLowerBound(b int, dq []float64) float64 {
	base := b * t.Columns
	lb := 0.0
	for i := 0; i < t.Columns; i++ {
		delta := dq[0] - dq[i+1]
		lo, hi := t.Lower[base+i], t.Upper[base+i]
		lb = max(lb, (lo-delta-slack(lo))/2, (delta-hi-slack(hi))/2)
	}
	return lb
}

// deltaRow fills out with δ_i = d[0] - d[i+1].
func deltaRow(d, out []float64) []float64 {
	out = out[:0]
	for i := 1; i < len(d); i++ {
		out = append(out, d[0]-d[i])
	}
	return out
}
