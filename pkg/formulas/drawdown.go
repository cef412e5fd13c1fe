package formulas

// DrawdownCurve returns equity / running peak - 1 for every point.
func DrawdownCurve(equity []float64) []float64 {
	out := make([]float64, len(equity))
	peak := 0.0
	for i, v := range equity {
		if i == 0 || v > peak {
			peak = v
		}
		if peak > 0 {
			out[i] = v/peak - 1
		}
	}
	return out
}

// MaxDrawdown is the most negative point of a drawdown curve (0 when empty).
func MaxDrawdown(drawdown []float64) float64 {
	worst := 0.0
	for _, d := range drawdown {
		if d < worst {
			worst = d
		}
	}
	return worst
}

// CalmarRatio is CAGR / |max drawdown|, defined as 0 when there was no drawdown.
func CalmarRatio(cagr, maxDrawdown float64) float64 {
	if maxDrawdown == 0 {
		return 0
	}
	if maxDrawdown < 0 {
		maxDrawdown = -maxDrawdown
	}
	return cagr / maxDrawdown
}
