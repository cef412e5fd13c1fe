package optimization

import (
	"context"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/optimize"
)

// Penalty solves QPs with gonum/optimize by folding every constraint into a
// quadratic penalty and evaluating the objective at the bound-projected
// point. It tries BFGS first and falls back to Nelder-Mead. The penalty
// weight is raised geometrically, warm-starting each round.
type Penalty struct {
	Weights []float64
}

// NewPenalty returns a penalty solver with the default weight schedule.
func NewPenalty() *Penalty {
	return &Penalty{Weights: []float64{1e2, 1e4, 1e6, 1e8}}
}

func (s *Penalty) Name() string { return "bfgs" }

func (s *Penalty) Supports(k Kind) bool { return k == KindQP }

func (s *Penalty) Solve(ctx context.Context, p Problem) (Solution, error) {
	qp, ok := p.(*QuadraticProgram)
	if !ok {
		return Solution{}, fmt.Errorf("bfgs: unsupported problem kind %s", p.Kind())
	}
	n := qp.Dim()
	cons := &qp.Constraints
	if err := cons.Validate(n); err != nil {
		return Solution{}, err
	}

	project := func(x []float64) []float64 {
		proj := append([]float64(nil), x...)
		cons.clip(proj)
		return proj
	}

	x := make([]float64, n)
	for i := range x {
		x[i] = 1.0 / float64(n)
	}

	iterations := 0
	for _, penaltyWeight := range s.Weights {
		if err := ctx.Err(); err != nil {
			return Solution{}, err
		}
		weight := penaltyWeight

		problem := optimize.Problem{
			Func: func(x []float64) float64 {
				xProj := project(x)
				obj := qp.Objective(xProj)

				for r := 0; r < cons.EqRows(); r++ {
					d := rowDot(cons.Aeq, r, xProj) - cons.Beq[r]
					obj += weight * d * d
				}
				for r := 0; r < cons.IneqRows(); r++ {
					if d := rowDot(cons.G, r, xProj) - cons.H[r]; d > 0 {
						obj += weight * d * d
					}
				}
				return obj
			},
			Grad: func(grad, x []float64) {
				xProj := project(x)
				qp.Gradient(grad, xProj)

				for r := 0; r < cons.EqRows(); r++ {
					d := rowDot(cons.Aeq, r, xProj) - cons.Beq[r]
					for j, a := range cons.Aeq.RawRowView(r) {
						grad[j] += 2 * weight * d * a
					}
				}
				for r := 0; r < cons.IneqRows(); r++ {
					d := rowDot(cons.G, r, xProj) - cons.H[r]
					if d <= 0 {
						continue
					}
					for j, g := range cons.G.RawRowView(r) {
						grad[j] += 2 * weight * d * g
					}
				}
			},
		}

		settings := &optimize.Settings{}
		if deadline, ok := ctx.Deadline(); ok {
			settings.Runtime = time.Until(deadline)
		}

		result, err := optimize.Minimize(problem, x, settings, &optimize.BFGS{})
		if err != nil || !converged(result.Status) {
			result, err = optimize.Minimize(problem, x, settings, &optimize.NelderMead{})
			if err != nil {
				return Solution{}, fmt.Errorf("optimization failed: %w", err)
			}
		}
		if !converged(result.Status) && result.Status != optimize.RuntimeLimit {
			return Solution{}, fmt.Errorf("optimization did not converge: status=%v", result.Status)
		}
		iterations += result.Stats.MajorIterations
		x = project(result.X)
	}

	// Restore the leading equality row exactly; the rest stay penalised.
	proj, err := newProjector(cons, n)
	if err != nil {
		return Solution{}, err
	}
	if err := proj.project(x); err != nil {
		return Solution{}, err
	}
	for _, v := range x {
		if math.IsNaN(v) {
			return Solution{}, fmt.Errorf("%w: solver produced NaN", ErrInfeasible)
		}
	}

	return Solution{X: x, Objective: qp.Objective(x), Solver: s.Name(), Iterations: iterations}, nil
}

func converged(status optimize.Status) bool {
	return status == optimize.Success ||
		status == optimize.GradientThreshold ||
		status == optimize.FunctionConvergence
}
