package allocation

import (
	"math"

	"github.com/aristath/portfoliopilot/internal/domain"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// RiskParityOptions controls the fixed-point iteration.
type RiskParityOptions struct {
	MaxIter int
	Step    float64
	Floor   float64
	Tol     float64
}

// DefaultRiskParityOptions returns the standard iteration settings.
func DefaultRiskParityOptions() RiskParityOptions {
	return RiskParityOptions{MaxIter: 200, Step: 0.05, Floor: 1e-6, Tol: 1e-4}
}

// RiskParityResult carries the weights and convergence diagnostics.
type RiskParityResult struct {
	Weights    []float64
	Iterations int
	Converged  bool
	// Deviation is the norm of risk contribution minus target at the last
	// evaluated weights.
	Deviation float64
}

// RiskParity equalises risk contributions by fixed-point iteration from
// equal weight. Weights stay positive and sum to one at every step.
func RiskParity(cov mat.Symmetric, opts RiskParityOptions) RiskParityResult {
	n := cov.SymmetricDim()
	w := domain.EqualWeights(n)
	res := RiskParityResult{Weights: w}

	marginal := mat.NewVecDense(n, nil)
	gradient := make([]float64, n)
	for iter := 0; iter < opts.MaxIter; iter++ {
		res.Iterations = iter + 1

		wv := mat.NewVecDense(n, w)
		vol := math.Sqrt(math.Max(mat.Inner(wv, cov, wv), 0))
		if vol == 0 || math.IsNaN(vol) {
			res.Converged = vol == 0
			res.Deviation = 0
			break
		}

		marginal.MulVec(cov, wv)
		target := vol / float64(n)
		for i := range gradient {
			gradient[i] = w[i]*marginal.AtVec(i)/vol - target
		}
		res.Deviation = floats.Norm(gradient, 2)

		next := make([]float64, n)
		for i := range next {
			next[i] = math.Max(w[i]-opts.Step*gradient[i], opts.Floor)
		}
		floats.Scale(1/floats.Sum(next), next)
		w = next

		if res.Deviation < opts.Tol {
			res.Converged = true
			break
		}
	}
	res.Weights = w
	return res
}

func (a *Allocator) riskParity(returns *domain.Frame, n int) Decision {
	cov, ok := sampleCovariance(returns)
	if !ok {
		return Decision{Weights: domain.EqualWeights(n), Note: "risk_parity: insufficient history, equal weight"}
	}
	res := RiskParity(cov, a.RiskParity)
	if !res.Converged {
		a.log.Debug().Int("iterations", res.Iterations).Float64("deviation", res.Deviation).Msg("Risk parity hit iteration cap")
	}
	return Decision{Weights: res.Weights}
}
