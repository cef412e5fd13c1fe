// Package formulas holds stateless formulas over price and return series.
package formulas

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// TradingDaysPerYear is the annualisation factor for daily series.
const TradingDaysPerYear = 252

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the sample standard deviation (N-1 denominator).
func StdDev(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// CalculateReturns converts prices to percentage returns.
// Returns[i] = Price[i+1] / Price[i] - 1; a non-positive base yields NaN.
func CalculateReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return []float64{}
	}

	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		prev, cur := prices[i-1], prices[i]
		if prev > 0 && !math.IsNaN(prev) && !math.IsNaN(cur) {
			returns[i-1] = cur/prev - 1
		} else {
			returns[i-1] = math.NaN()
		}
	}
	return returns
}

// AnnualizedReturn compounds periodic returns and annualises them.
//
// Formula: ((1+r1)*(1+r2)*...*(1+rN))^(periodsPerYear/N) - 1
func AnnualizedReturn(returns []float64, periodsPerYear int) float64 {
	if len(returns) == 0 {
		return 0
	}
	compounded := 1.0
	for _, r := range returns {
		compounded *= 1 + r
	}
	if compounded <= 0 {
		return -1
	}
	return math.Pow(compounded, float64(periodsPerYear)/float64(len(returns))) - 1
}

// AnnualizedVolatility is the sample standard deviation scaled by sqrt(periodsPerYear).
func AnnualizedVolatility(returns []float64, periodsPerYear int) float64 {
	return StdDev(returns) * math.Sqrt(float64(periodsPerYear))
}

// SharpeRatio returns the annualised Sharpe ratio of periodic returns against
// an annual risk-free rate. Zero variance yields 0.
func SharpeRatio(returns []float64, riskFree float64, periodsPerYear int) float64 {
	if len(returns) < 2 {
		return 0
	}
	periodic := riskFree / float64(periodsPerYear)
	excess := make([]float64, len(returns))
	for i, r := range returns {
		excess[i] = r - periodic
	}
	sd := StdDev(excess)
	if sd == 0 || math.IsNaN(sd) {
		return 0
	}
	return Mean(excess) / sd * math.Sqrt(float64(periodsPerYear))
}
