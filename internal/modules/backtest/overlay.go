package backtest

import (
	"math"

	"github.com/aristath/portfoliopilot/pkg/formulas"
)

const (
	// VolDecay is the EWMA decay of the volatility estimate.
	VolDecay = 0.94
	// MaxLeverage caps the overlay scale.
	MaxLeverage = 2.5
)

// ApplyVolTarget rescales returns toward an annualised volatility target.
// The scale applied at t uses the EWMA volatility estimated through t-1 and
// is clip(daily target / estimate, 0, MaxLeverage); where the estimate is
// undefined or zero the scale is 1.
//
// The estimate is lagged on purpose and differs from a same-date EWMA that
// includes r_t: the scale applied to r_t must never depend on r_t.
func ApplyVolTarget(returns []float64, annualTarget float64) (scaled, scale []float64) {
	dailyTarget := annualTarget / math.Sqrt(formulas.TradingDaysPerYear)
	vol := formulas.EWMAStdDev(returns, 1-VolDecay)

	scaled = make([]float64, len(returns))
	scale = make([]float64, len(returns))
	for t, r := range returns {
		s := 1.0
		if t > 0 {
			if v := vol[t-1]; v > 0 && !math.IsNaN(v) {
				s = math.Min(math.Max(dailyTarget/v, 0), MaxLeverage)
			}
		}
		scale[t] = s
		scaled[t] = r * s
	}
	return scaled, scale
}
