package allocation

import (
	"context"
	"math"
	"testing"

	"github.com/aristath/portfoliopilot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// trendingPrices grows asset i by growth[i] per row.
func trendingPrices(rows int, growth []float64) *domain.Frame {
	assets := make([]string, len(growth))
	for i := range assets {
		assets[i] = string(rune('A' + i))
	}
	data := make([][]float64, rows)
	for t := range data {
		data[t] = make([]float64, len(growth))
		for i, g := range growth {
			data[t][i] = 100 * math.Pow(1+g, float64(t))
		}
	}
	return frameOf(assets, data)
}

func TestMomentum_ShortHistoryIsExactEqualWeight(t *testing.T) {
	prices := trendingPrices(272, []float64{0.001, 0.002, 0.003})
	d := Momentum(prices, DefaultMomentumOptions())
	assert.Equal(t, domain.EqualWeights(3), d.Weights)
}

func TestMomentum_SelectsTopThird(t *testing.T) {
	prices := trendingPrices(300, []float64{0.001, 0.004, -0.001, 0.003, 0.0, 0.002})
	d := Momentum(prices, DefaultMomentumOptions())
	assert.Equal(t, []float64{0, 0.5, 0, 0.5, 0, 0}, d.Weights)
}

func TestMomentum_SkipsRecentMonth(t *testing.T) {
	prices := trendingPrices(273, []float64{0.002, 0.001})
	// A crash inside the skipped month does not affect the ranking.
	for t := 252; t < 273; t++ {
		prices.Rows[t][0] = 1
	}
	d := Momentum(prices, DefaultMomentumOptions())
	assert.Equal(t, []float64{1, 0}, d.Weights)
}

func TestMomentum_TiesAndMissing(t *testing.T) {
	prices := trendingPrices(273, []float64{0.001, 0.001, 0.001, 0.001})
	for t := range prices.Rows {
		prices.Rows[t][0] = math.NaN()
	}
	d := Momentum(prices, DefaultMomentumOptions())
	// ceil(4/3) = 2 leaders; ties keep original order and NaN ranks last.
	assert.Equal(t, []float64{0, 0.5, 0.5, 0}, d.Weights)
}

func TestMomentum_CapSpreadsExcess(t *testing.T) {
	prices := trendingPrices(300, []float64{0.001, 0.004, -0.001, 0.003, 0.0, 0.002})
	d, err := withoutBackend().Compute(context.Background(), Request{Strategy: domain.Momentum121, Prices: prices, MaxWeight: 0.25})
	require.NoError(t, err)
	assertValid(t, d.Weights, 0.25)
	assert.InDelta(t, 0.25, d.Weights[1], 1e-9)
	assert.InDelta(t, 0.25, d.Weights[3], 1e-9)
}

func TestRiskParity_Convergence(t *testing.T) {
	cases := map[string]*mat.SymDense{
		"diagonal":   mat.NewSymDense(2, []float64{0.04, 0, 0, 0.01}),
		"correlated": mat.NewSymDense(3, []float64{0.04, 0.006, 0.002, 0.006, 0.09, 0.01, 0.002, 0.01, 0.0225}),
	}
	for name, cov := range cases {
		t.Run(name, func(t *testing.T) {
			opts := DefaultRiskParityOptions()
			res := RiskParity(cov, opts)
			assertValid(t, res.Weights, 0)
			assert.True(t, res.Converged || res.Iterations == opts.MaxIter)
			if res.Converged {
				assert.Less(t, res.Deviation, opts.Tol)
			}
			for _, w := range res.Weights {
				assert.Greater(t, w, 0.0)
			}
		})
	}

	res := RiskParity(mat.NewSymDense(2, []float64{0.04, 0, 0, 0.01}), DefaultRiskParityOptions())
	assert.Greater(t, res.Weights[1], res.Weights[0], "lower volatility asset gets more weight")
}

func TestRiskParity_ZeroVolatility(t *testing.T) {
	res := RiskParity(mat.NewSymDense(3, nil), DefaultRiskParityOptions())
	assert.Equal(t, domain.EqualWeights(3), res.Weights)
	assert.True(t, res.Converged)
	assert.Equal(t, 1, res.Iterations)
}

func TestCVaR_AllZeroReturns(t *testing.T) {
	rows := make([][]float64, 20)
	for i := range rows {
		rows[i] = make([]float64, 4)
	}
	scenarios := frameOf([]string{"A", "B", "C", "D"}, rows)

	for _, a := range []*Allocator{withBackend(), withoutBackend()} {
		d, err := a.Compute(context.Background(), Request{Strategy: domain.CVaRMin, Returns: scenarios})
		require.NoError(t, err)
		require.Len(t, d.Weights, 4)
		assertValid(t, d.Weights, 0)
	}
}

func TestCVaR_AvoidsTailLosses(t *testing.T) {
	rows := make([][]float64, 40)
	for i := range rows {
		risky := 0.03
		if i%5 == 0 {
			risky = -0.12
		}
		rows[i] = []float64{0.001, risky}
	}
	scenarios := frameOf([]string{"SAFE", "RISKY"}, rows)

	d := withBackend().MinCVaR(context.Background(), scenarios, 0.95, 0)
	assert.False(t, d.Degraded, d.Note)
	assertValid(t, d.Weights, 0)
	assert.Greater(t, d.Weights[0], 0.8)

	capped := withBackend().MinCVaR(context.Background(), scenarios, 0.95, 0.6)
	assertValid(t, capped.Weights, 0.6)
	assert.InDelta(t, 0.6, capped.Weights[0], 1e-6)

	none := withoutBackend().MinCVaR(context.Background(), scenarios, 0.95, 0)
	assert.True(t, none.Degraded)
	assert.Equal(t, domain.EqualWeights(2), none.Weights)
}

func TestCVaRProgram_Shape(t *testing.T) {
	scenarios := frameOf([]string{"A", "B"}, [][]float64{{0.01, math.NaN()}, {-0.02, 0.03}})
	lp := CVaRProgram(scenarios, 0.95, 0.7)

	assert.Equal(t, 5, lp.Dim())
	assert.InDelta(t, 1/(0.05*2), lp.C[3], 1e-12)
	assert.Equal(t, 0.0, lp.G.At(0, 1), "missing return counts as zero")
	assert.Equal(t, -1.0, lp.G.At(1, 4))
	assert.True(t, math.IsInf(lp.Lower[2], -1))
	assert.Equal(t, 0.7, lp.Upper[0])
}

func TestEfficientFrontier(t *testing.T) {
	mu := []float64{0.05, 0.08, 0.12}
	cov := mat.NewSymDense(3, []float64{0.02, 0.004, 0.002, 0.004, 0.04, 0.01, 0.002, 0.01, 0.09})

	points, err := withBackend().EfficientFrontier(context.Background(), mu, cov, FrontierOptions{Points: 6, LongOnly: true})
	require.NoError(t, err)
	require.Len(t, points, 6)

	assert.InDelta(t, 0.05, points[0].Target, 1e-12)
	assert.InDelta(t, 0.12, points[5].Target, 1e-12)
	for i, p := range points {
		assertValid(t, p.Weights, 0)
		assert.GreaterOrEqual(t, p.Return, p.Target-1e-3, "point %d", i)
		if i > 0 {
			assert.Greater(t, p.Target, points[i-1].Target)
		}
	}
	// The top of the frontier holds only the highest-return asset.
	assert.InDelta(t, 1.0, points[5].Weights[2], 1e-3)

	unconstrained, err := withoutBackend().EfficientFrontier(context.Background(), mu, cov, FrontierOptions{Points: 4})
	require.NoError(t, err)
	for _, p := range unconstrained {
		assert.InDelta(t, p.Target, p.Return, 1e-9)
	}

	none, err := withBackend().EfficientFrontier(context.Background(), mu, cov, FrontierOptions{})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSanitizeCovariance(t *testing.T) {
	nan := math.NaN()
	cov, ok := sanitizeCovariance(mat.NewSymDense(3, []float64{
		0.04, nan, 0.01,
		nan, nan, nan,
		0.01, nan, 0.09,
	}))
	require.True(t, ok)
	assert.Equal(t, 0.09, cov.At(1, 1))
	assert.Equal(t, 0.0, cov.At(0, 1))
	assert.Equal(t, 0.01, cov.At(0, 2))

	_, ok = sanitizeCovariance(mat.NewSymDense(2, []float64{nan, nan, nan, nan}))
	assert.False(t, ok)
}
