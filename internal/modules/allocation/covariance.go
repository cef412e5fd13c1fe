package allocation

import (
	"math"

	"github.com/aristath/portfoliopilot/internal/domain"
	"gonum.org/v1/gonum/mat"
)

// sampleCovariance estimates Σ from a return window and repairs gaps: a
// missing variance takes the largest observed variance, a missing covariance
// is treated as zero. ok is false when fewer than two rows exist or no
// variance could be estimated at all.
func sampleCovariance(returns *domain.Frame) (cov *mat.SymDense, ok bool) {
	if returns.Len() < 2 {
		return nil, false
	}
	cov = returns.Covariance()
	return sanitizeCovariance(cov)
}

func sanitizeCovariance(cov *mat.SymDense) (*mat.SymDense, bool) {
	n := cov.SymmetricDim()
	maxVar := math.NaN()
	for i := 0; i < n; i++ {
		if v := cov.At(i, i); !math.IsNaN(v) && (math.IsNaN(maxVar) || v > maxVar) {
			maxVar = v
		}
	}
	if math.IsNaN(maxVar) {
		return nil, false
	}

	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := cov.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				v = 0
				if i == j {
					v = maxVar
				}
			}
			out.SetSym(i, j, v)
		}
	}
	return out, true
}
