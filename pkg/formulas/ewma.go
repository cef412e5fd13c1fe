package formulas

import "math"

// EWMAStdDev returns the exponentially weighted standard deviation of x at
// every point, using the recursive (non-adjusted) weighting with smoothing
// factor alpha and the unbiased weight correction. Points with fewer than two
// effective observations, or NaN inputs before the first observation, are NaN.
//
// The recursion matches the common dataframe definition of
// ewm(alpha, adjust=False).std().
func EWMAStdDev(x []float64, alpha float64) []float64 {
	out := make([]float64, len(x))
	if len(x) == 0 {
		return out
	}

	oldWtFactor := 1 - alpha
	newWt := alpha

	mean := x[0]
	cov := 0.0
	sumWt, sumWt2, oldWt := 1.0, 1.0, 1.0
	out[0] = math.NaN()

	for i := 1; i < len(x); i++ {
		cur := x[i]
		observed := !math.IsNaN(cur)

		if !math.IsNaN(mean) {
			sumWt *= oldWtFactor
			sumWt2 *= oldWtFactor * oldWtFactor
			oldWt *= oldWtFactor
			if observed {
				oldMean := mean
				if mean != cur {
					mean = (oldWt*oldMean + newWt*cur) / (oldWt + newWt)
				}
				cov = (oldWt*(cov+(oldMean-mean)*(oldMean-mean)) + newWt*(cur-mean)*(cur-mean)) / (oldWt + newWt)
				sumWt += newWt
				sumWt2 += newWt * newWt
				oldWt += newWt
				sumWt /= oldWt
				sumWt2 /= oldWt * oldWt
				oldWt = 1
			}
		} else if observed {
			mean = cur
		}

		numerator := sumWt * sumWt
		denominator := numerator - sumWt2
		if denominator > 0 && !math.IsNaN(mean) {
			out[i] = math.Sqrt(math.Max(numerator/denominator*cov, 0))
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}
