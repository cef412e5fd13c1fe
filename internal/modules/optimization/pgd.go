package optimization

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// PGD solves convex QPs by accelerated projected gradient descent.
// The first equality row and the bounds are handled by exact projection;
// remaining equalities and all inequalities go through an augmented
// Lagrangian outer loop.
type PGD struct {
	MaxInner int
	MaxOuter int
	Tol      float64
}

// NewPGD returns a PGD solver with default iteration limits.
func NewPGD() *PGD {
	return &PGD{MaxInner: 20000, MaxOuter: 60, Tol: 1e-10}
}

func (s *PGD) Name() string { return "pgd" }

func (s *PGD) Supports(k Kind) bool { return k == KindQP }

func (s *PGD) Solve(ctx context.Context, p Problem) (Solution, error) {
	qp, ok := p.(*QuadraticProgram)
	if !ok {
		return Solution{}, fmt.Errorf("pgd: unsupported problem kind %s", p.Kind())
	}
	n := qp.Dim()
	cons := &qp.Constraints

	proj, err := newProjector(cons, n)
	if err != nil {
		return Solution{}, err
	}

	// Rows not absorbed by the projection.
	var eqRows []int
	for r := proj.absorbed + 1; r < cons.EqRows(); r++ {
		eqRows = append(eqRows, r)
	}
	ineqRows := cons.IneqRows()

	lambda := make([]float64, len(eqRows))
	mu := make([]float64, ineqRows)
	rho := 10.0

	lq := maxEigen(qp.Q)
	penaltyNorm := 0.0
	for _, r := range eqRows {
		penaltyNorm += floats.Dot(cons.Aeq.RawRowView(r), cons.Aeq.RawRowView(r))
	}
	if cons.G != nil {
		penaltyNorm += math.Pow(mat.Norm(cons.G, 2), 2)
	}

	x := make([]float64, n)
	for i := range x {
		x[i] = 1.0 / float64(n)
	}
	if err := proj.project(x); err != nil {
		return Solution{}, err
	}

	grad := make([]float64, n)
	gradient := func(dst, at []float64) {
		qp.Gradient(dst, at)
		for k, r := range eqRows {
			row := cons.Aeq.RawRowView(r)
			m := lambda[k] + rho*(floats.Dot(row, at)-cons.Beq[r])
			floats.AddScaled(dst, m, row)
		}
		for r := 0; r < ineqRows; r++ {
			row := cons.G.RawRowView(r)
			m := math.Max(0, mu[r]+rho*(floats.Dot(row, at)-cons.H[r]))
			if m > 0 {
				floats.AddScaled(dst, m, row)
			}
		}
	}

	iterations := 0
	prevViolation := math.Inf(1)
	outer := s.MaxOuter
	if len(eqRows) == 0 && ineqRows == 0 {
		outer = 1
	}

	for o := 0; o < outer; o++ {
		L := lq + rho*penaltyNorm
		if L <= 0 {
			L = 1
		}
		step := 1 / L

		y := append([]float64(nil), x...)
		next := make([]float64, n)
		t := 1.0
		for k := 0; k < s.MaxInner; k++ {
			if k%200 == 0 {
				if err := ctx.Err(); err != nil {
					return Solution{}, err
				}
			}
			iterations++

			gradient(grad, y)
			copy(next, y)
			floats.AddScaled(next, -step, grad)
			if err := proj.project(next); err != nil {
				return Solution{}, err
			}

			moved := floats.Distance(next, x, math.Inf(1))
			tNext := (1 + math.Sqrt(1+4*t*t)) / 2
			restart := 0.0
			for i := range next {
				restart += (y[i] - next[i]) * (next[i] - x[i])
			}
			if restart > 0 {
				tNext = 1
				copy(y, next)
			} else {
				beta := (t - 1) / tNext
				for i := range y {
					y[i] = next[i] + beta*(next[i]-x[i])
				}
			}
			copy(x, next)
			t = tNext

			if moved < s.Tol {
				break
			}
		}

		violation := 0.0
		for k, r := range eqRows {
			d := floats.Dot(cons.Aeq.RawRowView(r), x) - cons.Beq[r]
			lambda[k] += rho * d
			violation = math.Max(violation, math.Abs(d))
		}
		for r := 0; r < ineqRows; r++ {
			d := floats.Dot(cons.G.RawRowView(r), x) - cons.H[r]
			mu[r] = math.Max(0, mu[r]+rho*d)
			violation = math.Max(violation, d)
		}
		if violation <= 1e-9 {
			break
		}
		if violation > 0.25*prevViolation {
			rho *= 4
		}
		prevViolation = violation
	}

	return Solution{X: x, Objective: qp.Objective(x), Solver: s.Name(), Iterations: iterations}, nil
}

// projector maps a point onto {a·x = b, lower ≤ x ≤ upper} for the first
// equality row a (when present) and the variable bounds.
type projector struct {
	cons     *Constraints
	row      []float64
	target   float64
	absorbed int
}

func newProjector(cons *Constraints, n int) (*projector, error) {
	if err := cons.Validate(n); err != nil {
		return nil, err
	}
	p := &projector{cons: cons, absorbed: -1}
	if cons.EqRows() > 0 {
		p.row = cons.Aeq.RawRowView(0)
		p.target = cons.Beq[0]
		p.absorbed = 0
	}
	return p, nil
}

func (p *projector) project(x []float64) error {
	if p.row == nil {
		p.cons.clip(x)
		return nil
	}

	v := append([]float64(nil), x...)
	level := func(tau float64) float64 {
		for i := range x {
			x[i] = v[i] - tau*p.row[i]
		}
		p.cons.clip(x)
		return floats.Dot(p.row, x) - p.target
	}

	// level is non-increasing in tau; bracket a root then bisect.
	lo, hi := -1.0, 1.0
	for k := 0; level(lo) < 0; k++ {
		if k > 80 {
			return fmt.Errorf("%w: equality row unreachable within bounds", ErrInfeasible)
		}
		hi = lo
		lo *= 2
	}
	for k := 0; level(hi) > 0; k++ {
		if k > 80 {
			return fmt.Errorf("%w: equality row unreachable within bounds", ErrInfeasible)
		}
		lo = hi
		hi *= 2
	}
	for k := 0; k < 200 && hi-lo > 1e-15*math.Max(1, math.Abs(lo)); k++ {
		mid := 0.5 * (lo + hi)
		if level(mid) > 0 {
			lo = mid
		} else {
			hi = mid
		}
	}
	if g := level(0.5 * (lo + hi)); math.Abs(g) > 1e-9*(1+math.Abs(p.target)) {
		return fmt.Errorf("%w: projection residual %.3g", ErrInfeasible, g)
	}
	return nil
}
