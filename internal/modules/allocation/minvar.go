package allocation

import (
	"context"

	"github.com/aristath/portfoliopilot/internal/domain"
	"github.com/aristath/portfoliopilot/internal/modules/optimization"
	"gonum.org/v1/gonum/mat"
)

var qpSolvers = []string{"pgd", "bfgs"}

// minVariance minimises wᵀΣw on the long-only (optionally capped) simplex.
// Without a backend it uses the pseudo-inverse closed form clipped to
// non-negative weights; a failed solve yields equal weight.
func (a *Allocator) minVariance(ctx context.Context, returns *domain.Frame, n int, limit float64) Decision {
	cov, ok := sampleCovariance(returns)
	if !ok {
		return Decision{Weights: domain.EqualWeights(n), Note: "min_variance: insufficient history, equal weight"}
	}

	if !a.solvers.Available(optimization.KindQP) {
		w, err := MinVarianceUnconstrained(cov)
		if err != nil {
			return equalWeightFallback(n, "min_variance: closed form failed")
		}
		return Decision{Weights: domain.Normalize(w), Degraded: true, Note: "min_variance: no solver backend, closed form"}
	}

	sol, err := a.solvers.SolveQP(ctx, simplexQP(cov, nil, limit), qpSolvers...)
	if err != nil {
		a.log.Warn().Err(err).Msg("Minimum variance solve failed, falling back to equal weight")
		return equalWeightFallback(n, "min_variance: solver failed, equal weight")
	}
	return Decision{Weights: domain.Normalize(sol.X)}
}

// simplexQP builds min wᵀΣw (+ cᵀw) subject to Σw = 1 and 0 ≤ w ≤ limit.
func simplexQP(cov mat.Symmetric, c []float64, limit float64) *optimization.QuadraticProgram {
	n := cov.SymmetricDim()
	q := mat.NewSymDense(n, nil)
	q.ScaleSym(2, cov)

	ones := make([]float64, n)
	lower := make([]float64, n)
	upper := make([]float64, n)
	for i := range ones {
		ones[i] = 1
		upper[i] = 1
		if limit > 0 {
			upper[i] = limit
		}
	}
	return &optimization.QuadraticProgram{
		Q: q,
		C: c,
		Constraints: optimization.Constraints{
			Aeq:   mat.NewDense(1, n, ones),
			Beq:   []float64{1},
			Lower: lower,
			Upper: upper,
		},
	}
}
