package allocation

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// FrontierPoint is one target-return solve on the efficient frontier.
type FrontierPoint struct {
	Target     float64   `json:"target_return" msgpack:"target_return"`
	Return     float64   `json:"expected_return" msgpack:"expected_return"`
	Volatility float64   `json:"expected_vol" msgpack:"expected_vol"`
	Weights    []float64 `json:"weights" msgpack:"weights"`
	Degraded   bool      `json:"degraded,omitempty" msgpack:"degraded,omitempty"`
}

// FrontierOptions selects the frontier sweep.
type FrontierOptions struct {
	Points    int
	LongOnly  bool
	MaxWeight float64
}

// EfficientFrontier solves the target-return problem at Points targets spaced
// evenly from the lowest to the highest single-asset expected return. Points
// are independent and solved concurrently; results keep target order.
func (a *Allocator) EfficientFrontier(ctx context.Context, mu []float64, cov mat.Symmetric, opts FrontierOptions) ([]FrontierPoint, error) {
	if opts.Points <= 0 || len(mu) == 0 {
		return nil, nil
	}

	targets := make([]float64, opts.Points)
	if opts.Points == 1 {
		targets[0] = floats.Min(mu)
	} else {
		floats.Span(targets, floats.Min(mu), floats.Max(mu))
	}

	points := make([]FrontierPoint, len(targets))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, target := range targets {
		i, target := i, target
		g.Go(func() error {
			var d Decision
			if opts.LongOnly {
				d = a.TargetReturnLongOnly(ctx, mu, cov, target, opts.MaxWeight)
			} else {
				w, err := TargetReturnUnconstrained(mu, cov, target)
				if err != nil {
					return err
				}
				d = Decision{Weights: w}
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			stats := PortfolioStatistics(d.Weights, mu, cov, 0)
			points[i] = FrontierPoint{
				Target:     target,
				Return:     stats.ExpectedReturn,
				Volatility: stats.Volatility,
				Weights:    d.Weights,
				Degraded:   d.Degraded,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return points, nil
}
