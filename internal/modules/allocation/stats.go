package allocation

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Statistics summarises a weight vector under (μ, Σ).
type Statistics struct {
	ExpectedReturn float64 `json:"expected_return" msgpack:"expected_return"`
	Volatility     float64 `json:"expected_vol" msgpack:"expected_vol"`
	Sharpe         float64 `json:"sharpe" msgpack:"sharpe"`
}

// PortfolioStatistics returns wᵀμ, √(wᵀΣw) and the Sharpe ratio, which is 0
// when volatility is 0.
func PortfolioStatistics(w, mu []float64, cov mat.Symmetric, riskFree float64) Statistics {
	ret := floats.Dot(w, mu)
	wv := mat.NewVecDense(len(w), w)
	vol := math.Sqrt(math.Max(mat.Inner(wv, cov, wv), 0))

	s := Statistics{ExpectedReturn: ret, Volatility: vol}
	if vol > 0 {
		s.Sharpe = (ret - riskFree) / vol
	}
	return s
}
