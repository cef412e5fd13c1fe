// Package optimization provides the optimizer backend: quadratic and linear
// program types, a registry of interchangeable solvers and the dense linear
// algebra the closed-form allocators rely on.
package optimization

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrUnavailable means no registered solver handles the problem kind.
	ErrUnavailable = errors.New("no solver available")
	// ErrInfeasible means no solver produced an answer satisfying the constraints.
	ErrInfeasible = errors.New("problem infeasible")
)

// FeasibilityTol is the absolute tolerance, scaled by the right-hand side,
// used to accept a solver answer.
const FeasibilityTol = 1e-5

// Kind distinguishes quadratic from linear programs.
type Kind int

const (
	KindQP Kind = iota
	KindLP
)

func (k Kind) String() string {
	switch k {
	case KindQP:
		return "qp"
	case KindLP:
		return "lp"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Constraints holds the linear constraint set shared by QPs and LPs:
//
//	Aeq x = Beq
//	G x  <= H
//	Lower <= x <= Upper
//
// Nil matrices mean no rows. Nil bound slices mean unbounded; individual
// entries may be ±Inf.
type Constraints struct {
	Aeq   *mat.Dense
	Beq   []float64
	G     *mat.Dense
	H     []float64
	Lower []float64
	Upper []float64
}

// QuadraticProgram is min ½xᵀQx + cᵀx subject to Constraints.
type QuadraticProgram struct {
	Q mat.Symmetric
	C []float64
	Constraints
}

// LinearProgram is min cᵀx subject to Constraints. Start optionally holds a
// feasible vertex; solvers that can warm-start begin there.
type LinearProgram struct {
	C     []float64
	Start []float64
	Constraints
}

// Problem is a program a Solver can attempt.
type Problem interface {
	Kind() Kind
	Dim() int
	Objective(x []float64) float64
	constraintSet() *Constraints
}

// Solution is a verified solver answer.
type Solution struct {
	X          []float64
	Objective  float64
	Solver     string
	Iterations int
}

func (p *QuadraticProgram) Kind() Kind { return KindQP }

func (p *QuadraticProgram) Dim() int {
	if p.Q != nil {
		return p.Q.SymmetricDim()
	}
	return len(p.C)
}

func (p *QuadraticProgram) Objective(x []float64) float64 {
	xv := mat.NewVecDense(len(x), x)
	obj := 0.5 * mat.Inner(xv, p.Q, xv)
	for i, c := range p.C {
		obj += c * x[i]
	}
	return obj
}

// Gradient writes Qx + c into grad.
func (p *QuadraticProgram) Gradient(grad, x []float64) {
	n := len(x)
	for i := 0; i < n; i++ {
		g := 0.0
		for j := 0; j < n; j++ {
			g += p.Q.At(i, j) * x[j]
		}
		if p.C != nil {
			g += p.C[i]
		}
		grad[i] = g
	}
}

func (p *QuadraticProgram) constraintSet() *Constraints { return &p.Constraints }

func (p *LinearProgram) Kind() Kind { return KindLP }

func (p *LinearProgram) Dim() int { return len(p.C) }

func (p *LinearProgram) Objective(x []float64) float64 {
	obj := 0.0
	for i, c := range p.C {
		obj += c * x[i]
	}
	return obj
}

func (p *LinearProgram) constraintSet() *Constraints { return &p.Constraints }

// Validate checks constraint dimensions against n variables.
func (c *Constraints) Validate(n int) error {
	if c.Aeq != nil {
		r, cols := c.Aeq.Dims()
		if cols != n || r != len(c.Beq) {
			return fmt.Errorf("equality constraints are %dx%d with %d targets, want %d columns", r, cols, len(c.Beq), n)
		}
	} else if len(c.Beq) != 0 {
		return fmt.Errorf("%d equality targets without a matrix", len(c.Beq))
	}
	if c.G != nil {
		r, cols := c.G.Dims()
		if cols != n || r != len(c.H) {
			return fmt.Errorf("inequality constraints are %dx%d with %d bounds, want %d columns", r, cols, len(c.H), n)
		}
	} else if len(c.H) != 0 {
		return fmt.Errorf("%d inequality bounds without a matrix", len(c.H))
	}
	if c.Lower != nil && len(c.Lower) != n {
		return fmt.Errorf("lower bounds have length %d, want %d", len(c.Lower), n)
	}
	if c.Upper != nil && len(c.Upper) != n {
		return fmt.Errorf("upper bounds have length %d, want %d", len(c.Upper), n)
	}
	return nil
}

// EqRows returns the number of equality rows.
func (c *Constraints) EqRows() int { return len(c.Beq) }

// IneqRows returns the number of inequality rows.
func (c *Constraints) IneqRows() int { return len(c.H) }

// LowerAt returns the lower bound for variable i (-Inf when unbounded).
func (c *Constraints) LowerAt(i int) float64 {
	if c.Lower == nil {
		return math.Inf(-1)
	}
	return c.Lower[i]
}

// UpperAt returns the upper bound for variable i (+Inf when unbounded).
func (c *Constraints) UpperAt(i int) float64 {
	if c.Upper == nil {
		return math.Inf(1)
	}
	return c.Upper[i]
}

// Violation returns the largest scaled constraint violation of x.
func (c *Constraints) Violation(x []float64) float64 {
	worst := 0.0
	for i, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return math.Inf(1)
		}
		if lo := c.LowerAt(i); !math.IsInf(lo, -1) {
			worst = math.Max(worst, (lo-v)/(1+math.Abs(lo)))
		}
		if hi := c.UpperAt(i); !math.IsInf(hi, 1) {
			worst = math.Max(worst, (v-hi)/(1+math.Abs(hi)))
		}
	}
	for r := 0; r < c.EqRows(); r++ {
		d := math.Abs(rowDot(c.Aeq, r, x)-c.Beq[r]) / (1 + math.Abs(c.Beq[r]))
		worst = math.Max(worst, d)
	}
	for r := 0; r < c.IneqRows(); r++ {
		d := (rowDot(c.G, r, x) - c.H[r]) / (1 + math.Abs(c.H[r]))
		worst = math.Max(worst, d)
	}
	return worst
}

// verify checks that x is a finite point satisfying p's constraints.
func verify(p Problem, x []float64) error {
	if len(x) != p.Dim() {
		return fmt.Errorf("%w: answer has %d variables, want %d", ErrInfeasible, len(x), p.Dim())
	}
	if v := p.constraintSet().Violation(x); v > FeasibilityTol {
		return fmt.Errorf("%w: constraint violation %.3g", ErrInfeasible, v)
	}
	return nil
}

func rowDot(m *mat.Dense, r int, x []float64) float64 {
	s := 0.0
	for j, v := range m.RawRowView(r) {
		s += v * x[j]
	}
	return s
}

// clip projects x onto the bounds in place.
func (c *Constraints) clip(x []float64) {
	for i := range x {
		if lo := c.LowerAt(i); x[i] < lo {
			x[i] = lo
		}
		if hi := c.UpperAt(i); x[i] > hi {
			x[i] = hi
		}
	}
}
