package optimization

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// DefaultSimplexTol is the reduced-cost tolerance handed to lp.Simplex. It
// must stay positive: a zero tolerance lets rounding noise on the reduced
// cost of a free variable's negative half select a zero-cost ray, which
// lp.Simplex reports as unbounded.
const DefaultSimplexTol = 1e-10

// Simplex solves LPs with gonum's simplex implementation. Variables with a
// finite lower bound stay native non-negative columns (shifted by the
// bound), only free variables are split, and each inequality or finite
// upper bound gets one slack column. When the program carries a feasible
// Start point the solver seeds the basis from it and skips phase I.
type Simplex struct {
	Tol float64
}

// NewSimplex returns a simplex solver with the default tolerance.
func NewSimplex() *Simplex {
	return &Simplex{Tol: DefaultSimplexTol}
}

func (s *Simplex) Name() string { return "simplex" }

func (s *Simplex) Supports(k Kind) bool { return k == KindLP }

func (s *Simplex) Solve(ctx context.Context, p Problem) (Solution, error) {
	prog, ok := p.(*LinearProgram)
	if !ok {
		return Solution{}, fmt.Errorf("simplex: unsupported problem kind %s", p.Kind())
	}
	if err := prog.Constraints.Validate(prog.Dim()); err != nil {
		return Solution{}, err
	}
	if err := ctx.Err(); err != nil {
		return Solution{}, err
	}

	sf, err := newStandardForm(prog)
	if err != nil {
		return Solution{}, err
	}
	if len(sf.b) == 0 {
		// Nothing constrains the non-negative columns and none lowers the cost.
		return Solution{X: sf.recover(nil), Objective: sf.objOffset, Solver: s.Name()}, nil
	}
	tol := s.Tol
	if tol <= 0 {
		tol = DefaultSimplexTol
	}

	basis := sf.startBasis(prog.Start)
	obj, y, err := lp.Simplex(sf.c, sf.a, sf.b, tol, basis)
	if err != nil {
		if errors.Is(err, lp.ErrInfeasible) {
			return Solution{}, fmt.Errorf("%w: %v", ErrInfeasible, err)
		}
		return Solution{}, fmt.Errorf("simplex: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return Solution{}, err
	}
	return Solution{X: sf.recover(y), Objective: obj + sf.objOffset, Solver: s.Name()}, nil
}

// column maps an original variable onto standard-form columns:
// x = offset + sign·y[pos] − y[neg], where neg is used only by free variables.
type column struct {
	pos, neg int
	sign     float64
	offset   float64
}

// standardForm is min cᵀy s.t. a·y = b, y ≥ 0, built from a LinearProgram.
// Rows are ordered equalities, inequalities, upper bounds. Columns that
// appear in no row are dropped (their value is zero).
type standardForm struct {
	prog      *LinearProgram
	c         []float64
	a         *mat.Dense
	b         []float64
	cols      []column
	objOffset float64
	// keep maps uncompacted column indices to compacted ones (−1 when dropped).
	keep []int
	// slacks lists compacted slack column indices in row order.
	slacks []int
	// boundVar is the original variable of each upper-bound row.
	boundVar []int
	nStruct  int
}

func newStandardForm(prog *LinearProgram) (*standardForm, error) {
	n := prog.Dim()
	cons := &prog.Constraints
	sf := &standardForm{prog: prog, cols: make([]column, n)}

	k := 0
	for i := 0; i < n; i++ {
		lo, hi := cons.LowerAt(i), cons.UpperAt(i)
		if lo > hi {
			return nil, fmt.Errorf("%w: variable %d has bounds [%g, %g]", ErrInfeasible, i, lo, hi)
		}
		switch {
		case !math.IsInf(lo, -1):
			sf.cols[i] = column{pos: k, neg: -1, sign: 1, offset: lo}
			k++
			if !math.IsInf(hi, 1) {
				sf.boundVar = append(sf.boundVar, i)
			}
		case !math.IsInf(hi, 1):
			sf.cols[i] = column{pos: k, neg: -1, sign: -1, offset: hi}
			k++
		default:
			sf.cols[i] = column{pos: k, neg: k + 1, sign: 1}
			k += 2
		}
	}
	sf.nStruct = k

	nEq, nIneq, nBound := cons.EqRows(), cons.IneqRows(), len(sf.boundVar)
	rows := nEq + nIneq + nBound
	width := k + nIneq + nBound
	a := make([][]float64, rows)
	b := make([]float64, rows)
	c := make([]float64, width)

	addRow := func(r int, coeffs []float64, rhs float64) {
		a[r] = make([]float64, width)
		b[r] = rhs
		for j, v := range coeffs {
			if v == 0 {
				continue
			}
			col := sf.cols[j]
			a[r][col.pos] += v * col.sign
			if col.neg >= 0 {
				a[r][col.neg] -= v
			}
			b[r] -= v * col.offset
		}
	}
	for r := 0; r < nEq; r++ {
		addRow(r, cons.Aeq.RawRowView(r), cons.Beq[r])
	}
	for r := 0; r < nIneq; r++ {
		addRow(nEq+r, cons.G.RawRowView(r), cons.H[r])
		a[nEq+r][k+r] = 1
	}
	for q, i := range sf.boundVar {
		r := nEq + nIneq + q
		a[r] = make([]float64, width)
		a[r][sf.cols[i].pos] = 1
		a[r][k+nIneq+q] = 1
		b[r] = cons.UpperAt(i) - cons.LowerAt(i)
	}
	for i, ci := range prog.C {
		col := sf.cols[i]
		c[col.pos] += ci * col.sign
		if col.neg >= 0 {
			c[col.neg] -= ci
		}
		sf.objOffset += ci * col.offset
	}

	// Drop empty rows and columns; lp.Simplex rejects both.
	var keptRows []int
	for r := range a {
		empty := true
		for _, v := range a[r] {
			if v != 0 {
				empty = false
				break
			}
		}
		if !empty {
			keptRows = append(keptRows, r)
			continue
		}
		if math.Abs(b[r]) > FeasibilityTol {
			return nil, fmt.Errorf("%w: constraint row %d has no variables but targets %g", ErrInfeasible, r, b[r])
		}
	}
	sf.keep = make([]int, width)
	kept := 0
	for j := 0; j < width; j++ {
		empty := true
		for _, r := range keptRows {
			if a[r][j] != 0 {
				empty = false
				break
			}
		}
		if empty {
			if c[j] < 0 {
				return nil, fmt.Errorf("simplex: %w", lp.ErrUnbounded)
			}
			sf.keep[j] = -1
			continue
		}
		sf.keep[j] = kept
		kept++
	}
	if len(keptRows) > kept {
		return nil, fmt.Errorf("%w: %d constraint rows for %d columns", ErrInfeasible, len(keptRows), kept)
	}

	sf.b = make([]float64, len(keptRows))
	sf.c = make([]float64, kept)
	if len(keptRows) == 0 {
		return sf, nil
	}
	sf.a = mat.NewDense(len(keptRows), kept, nil)
	for ri, r := range keptRows {
		sf.b[ri] = b[r]
		for j, v := range a[r] {
			if idx := sf.keep[j]; idx >= 0 && v != 0 {
				sf.a.Set(ri, idx, v)
			}
		}
	}
	for j, v := range c {
		if idx := sf.keep[j]; idx >= 0 {
			sf.c[idx] = v
		}
	}
	for j := k; j < width; j++ {
		if idx := sf.keep[j]; idx >= 0 {
			sf.slacks = append(sf.slacks, idx)
		}
	}
	return sf, nil
}

// values maps a point of the original program onto compacted standard-form
// columns. ok is false when x violates a bound or an inequality.
func (sf *standardForm) values(x []float64) (y []float64, ok bool) {
	cons := &sf.prog.Constraints
	full := make([]float64, len(sf.keep))
	for i, col := range sf.cols {
		if col.neg >= 0 {
			full[col.pos] = math.Max(x[i], 0)
			full[col.neg] = math.Max(-x[i], 0)
			continue
		}
		full[col.pos] = col.sign * (x[i] - col.offset)
	}
	nIneq := cons.IneqRows()
	for r := 0; r < nIneq; r++ {
		full[sf.nStruct+r] = cons.H[r] - rowDot(cons.G, r, x)
	}
	for q, i := range sf.boundVar {
		full[sf.nStruct+nIneq+q] = cons.UpperAt(i) - x[i]
	}

	y = make([]float64, len(sf.c))
	for j, v := range full {
		if v < -1e-9 {
			return nil, false
		}
		if idx := sf.keep[j]; idx >= 0 {
			y[idx] = math.Max(v, 0)
		}
	}
	return y, true
}

// startBasis turns a feasible vertex into an initial basis for lp.Simplex:
// the columns that are non-zero at the vertex, padded with slack columns.
// It returns nil, which makes lp.Simplex run phase I, whenever the point is
// missing, infeasible, not a vertex, or yields a singular basis.
func (sf *standardForm) startBasis(start []float64) []int {
	if len(start) != sf.prog.Dim() || len(sf.b) == 0 {
		return nil
	}
	if sf.prog.Constraints.Violation(start) > FeasibilityTol {
		return nil
	}
	y, ok := sf.values(start)
	if !ok {
		return nil
	}

	m := len(sf.b)
	basis := make([]int, 0, m)
	in := make(map[int]bool, m)
	for j, v := range y {
		if v > 1e-12 {
			basis = append(basis, j)
			in[j] = true
		}
	}
	if len(basis) > m {
		return nil
	}

	// Pad with slacks of rows no basic singleton column covers first, so a
	// degenerate row does not end up without a pivot.
	covered := make([]bool, m)
	for _, j := range basis {
		if r, ok := sf.singletonRow(j); ok {
			covered[r] = true
		}
	}
	for pass := 0; pass < 2; pass++ {
		for _, j := range sf.slacks {
			if len(basis) == m {
				break
			}
			r, _ := sf.singletonRow(j)
			if in[j] || (pass == 0 && covered[r]) {
				continue
			}
			basis = append(basis, j)
			in[j] = true
			covered[r] = true
		}
	}
	if len(basis) != m {
		return nil
	}

	ab := mat.NewDense(m, m, nil)
	col := make([]float64, m)
	for i, j := range basis {
		mat.Col(col, j, sf.a)
		ab.SetCol(i, col)
	}
	var xb mat.VecDense
	if err := xb.SolveVec(ab, mat.NewVecDense(m, sf.b)); err != nil {
		return nil
	}
	for i := 0; i < m; i++ {
		if xb.AtVec(i) < -1e-14 {
			return nil
		}
	}
	return basis
}

// singletonRow reports the only row in which column j is non-zero.
func (sf *standardForm) singletonRow(j int) (int, bool) {
	row, count := -1, 0
	for r := range sf.b {
		if sf.a.At(r, j) != 0 {
			row = r
			count++
		}
	}
	return row, count == 1
}

// recover maps a standard-form answer back to the original variables.
func (sf *standardForm) recover(y []float64) []float64 {
	at := func(j int) float64 {
		if idx := sf.keep[j]; idx >= 0 {
			return y[idx]
		}
		return 0
	}
	x := make([]float64, len(sf.cols))
	for i, col := range sf.cols {
		x[i] = col.offset + col.sign*at(col.pos)
		if col.neg >= 0 {
			x[i] -= at(col.neg)
		}
	}
	return x
}
