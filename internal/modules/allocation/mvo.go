package allocation

import (
	"context"

	"github.com/aristath/portfoliopilot/internal/domain"
	"github.com/aristath/portfoliopilot/internal/modules/optimization"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// The unconstrained closed forms below allow short positions: weights sum to
// one but may be negative. All inverses are Moore-Penrose pseudo-inverses.

// MinVarianceUnconstrained returns Σ⁺1 scaled to sum to one.
func MinVarianceUnconstrained(cov mat.Symmetric) ([]float64, error) {
	ones := make([]float64, cov.SymmetricDim())
	for i := range ones {
		ones[i] = 1
	}
	return pinvDirection(cov, ones)
}

// MaxSharpeUnconstrained returns Σ⁺(μ − r_f) scaled to sum to one.
func MaxSharpeUnconstrained(mu []float64, cov mat.Symmetric, riskFree float64) ([]float64, error) {
	excess := make([]float64, len(mu))
	for i, m := range mu {
		excess[i] = m - riskFree
	}
	return pinvDirection(cov, excess)
}

// TargetReturnUnconstrained solves the KKT system for min wᵀΣw subject to
// Σw = 1 and μᵀw = target.
func TargetReturnUnconstrained(mu []float64, cov mat.Symmetric, target float64) ([]float64, error) {
	n := len(mu)
	kkt := mat.NewDense(n+2, n+2, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			kkt.Set(i, j, 2*cov.At(i, j))
		}
		kkt.Set(i, n, 1)
		kkt.Set(i, n+1, mu[i])
		kkt.Set(n, i, 1)
		kkt.Set(n+1, i, mu[i])
	}
	rhs := make([]float64, n+2)
	rhs[n] = 1
	rhs[n+1] = target

	sol, err := optimization.SolveLinear(kkt, rhs)
	if err != nil {
		return nil, err
	}
	return sol[:n], nil
}

// MinVarianceLongOnly minimises variance on the long-only simplex with an
// optional cap. Without a backend it returns the unconstrained closed form.
func (a *Allocator) MinVarianceLongOnly(ctx context.Context, cov mat.Symmetric, limit float64) Decision {
	n := cov.SymmetricDim()
	if !a.solvers.Available(optimization.KindQP) {
		return a.closedForm(n, "min variance", func() ([]float64, error) { return MinVarianceUnconstrained(cov) })
	}
	sol, err := a.solvers.SolveQP(ctx, simplexQP(cov, nil, limit), qpSolvers...)
	if err != nil {
		a.log.Warn().Err(err).Msg("Long-only minimum variance failed, falling back to equal weight")
		return equalWeightFallback(n, "min variance: solver failed, equal weight")
	}
	return a.enforceCap(Decision{Weights: domain.Normalize(sol.X)}, limit)
}

// TargetReturnLongOnly minimises variance on the long-only simplex subject
// to μᵀw ≥ target.
func (a *Allocator) TargetReturnLongOnly(ctx context.Context, mu []float64, cov mat.Symmetric, target, limit float64) Decision {
	n := len(mu)
	if !a.solvers.Available(optimization.KindQP) {
		return a.closedForm(n, "target return", func() ([]float64, error) { return TargetReturnUnconstrained(mu, cov, target) })
	}

	qp := simplexQP(cov, nil, limit)
	neg := make([]float64, n)
	floats.ScaleTo(neg, -1, mu)
	qp.G = mat.NewDense(1, n, neg)
	qp.H = []float64{-target}

	sol, err := a.solvers.SolveQP(ctx, qp, qpSolvers...)
	if err != nil {
		a.log.Warn().Err(err).Float64("target", target).Msg("Target return solve failed, falling back to equal weight")
		return equalWeightFallback(n, "target return: solver failed, equal weight")
	}
	return a.enforceCap(Decision{Weights: domain.Normalize(sol.X)}, limit)
}

// MaxSharpeLongOnly maximises the Sharpe ratio over long-only weights by
// solving min yᵀΣy s.t. (μ − r_f)ᵀy = 1, y ≥ 0 and returning y/Σy. A cap
// becomes y_i ≤ limit·Σy.
func (a *Allocator) MaxSharpeLongOnly(ctx context.Context, mu []float64, cov mat.Symmetric, riskFree, limit float64) Decision {
	n := len(mu)
	if !a.solvers.Available(optimization.KindQP) {
		return a.closedForm(n, "max sharpe", func() ([]float64, error) { return MaxSharpeUnconstrained(mu, cov, riskFree) })
	}

	q := mat.NewSymDense(n, nil)
	q.ScaleSym(2, cov)
	excess := make([]float64, n)
	for i, m := range mu {
		excess[i] = m - riskFree
	}
	qp := &optimization.QuadraticProgram{
		Q: q,
		Constraints: optimization.Constraints{
			Aeq:   mat.NewDense(1, n, excess),
			Beq:   []float64{1},
			Lower: make([]float64, n),
		},
	}
	if limit > 0 && limit < 1 {
		g := mat.NewDense(n, n, nil)
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				g.Set(i, j, -limit)
			}
			g.Set(i, i, 1-limit)
		}
		qp.G = g
		qp.H = make([]float64, n)
	}

	sol, err := a.solvers.SolveQP(ctx, qp, qpSolvers...)
	if err != nil {
		a.log.Warn().Err(err).Msg("Max Sharpe solve failed, falling back to equal weight")
		return equalWeightFallback(n, "max sharpe: solver failed, equal weight")
	}
	return a.enforceCap(Decision{Weights: domain.Normalize(sol.X)}, limit)
}

func (a *Allocator) closedForm(n int, label string, solve func() ([]float64, error)) Decision {
	w, err := solve()
	if err != nil {
		return equalWeightFallback(n, label+": closed form failed, equal weight")
	}
	return Decision{Weights: w, Degraded: true, Note: label + ": no solver backend, unconstrained closed form"}
}

// pinvDirection returns Σ⁺v scaled to sum to one, or equal weight when the
// direction sums to zero.
func pinvDirection(cov mat.Symmetric, v []float64) ([]float64, error) {
	pinv, err := optimization.PseudoInverse(cov)
	if err != nil {
		return nil, err
	}
	w := optimization.MulVec(pinv, v)
	total := floats.Sum(w)
	if total == 0 {
		return domain.EqualWeights(len(w)), nil
	}
	floats.Scale(1/total, w)
	return w, nil
}
