package allocation

import (
	"math"
	"sort"

	"github.com/aristath/portfoliopilot/internal/domain"
	"github.com/markcheno/go-talib"
)

// MomentumOptions sets the 12-1 momentum windows in rows.
type MomentumOptions struct {
	Lookback int
	Skip     int
}

// DefaultMomentumOptions returns twelve months of lookback skipping the most
// recent month.
func DefaultMomentumOptions() MomentumOptions {
	return MomentumOptions{Lookback: 252, Skip: 21}
}

// Momentum equal-weights the top third of assets ranked by total return over
// the window ending Skip rows before the last price row. With fewer than
// Lookback+Skip rows it returns equal weight.
func Momentum(prices *domain.Frame, opts MomentumOptions) Decision {
	n := prices.Width()
	span := opts.Lookback + opts.Skip
	if prices.Len() < span || opts.Lookback < 2 {
		return Decision{Weights: domain.EqualWeights(n)}
	}

	start := prices.Len() - span
	scores := make([]float64, n)
	for i := range scores {
		window := prices.Column(i)[start : start+opts.Lookback]
		// ROCR over the full window is last/first.
		ratio := talib.Rocr(window, len(window)-1)
		scores[i] = ratio[len(ratio)-1] - 1
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		sa, sb := scores[order[a]], scores[order[b]]
		if math.IsNaN(sb) {
			return !math.IsNaN(sa)
		}
		if math.IsNaN(sa) {
			return false
		}
		return sa > sb
	})

	top := int(math.Ceil(float64(n) / 3))
	if top < 1 {
		top = 1
	}
	weights := make([]float64, n)
	for _, idx := range order[:top] {
		weights[idx] = 1.0 / float64(top)
	}
	return Decision{Weights: weights}
}
