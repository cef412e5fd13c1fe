// Package allocation turns a strategy and a trailing data window into a
// weight vector.
package allocation

import (
	"context"
	"fmt"

	"github.com/aristath/portfoliopilot/internal/domain"
	"github.com/aristath/portfoliopilot/internal/modules/optimization"
	"github.com/rs/zerolog"
)

// Request carries everything a strategy may look at. Every window ends at
// the decision date.
type Request struct {
	Strategy domain.Strategy
	// Prices is the trailing price window (lookback + momentum skip rows).
	Prices *domain.Frame
	// Returns is the trailing return window (lookback rows).
	Returns *domain.Frame
	// Previous holds the weights currently in force, nil before the first
	// rebalance.
	Previous []float64
	// MaxWeight caps each weight when positive.
	MaxWeight float64
}

// Decision is a weight vector over the request's assets. Degraded marks a
// deterministic fallback taken in place of the requested algorithm.
type Decision struct {
	Weights  []float64
	Degraded bool
	Note     string
}

// Allocator dispatches strategies to their algorithms. It holds no mutable
// state and is safe for concurrent use.
type Allocator struct {
	solvers *optimization.Registry
	log     zerolog.Logger

	Momentum   MomentumOptions
	RiskParity RiskParityOptions
	CVaRAlpha  float64
}

// NewAllocator creates an allocator. A nil registry means no optimizer
// backend: every algorithm takes its closed-form or equal-weight fallback.
func NewAllocator(solvers *optimization.Registry, log zerolog.Logger) *Allocator {
	return &Allocator{
		solvers:    solvers,
		log:        log.With().Str("component", "allocation").Logger(),
		Momentum:   DefaultMomentumOptions(),
		RiskParity: DefaultRiskParityOptions(),
		CVaRAlpha:  DefaultCVaRAlpha,
	}
}

// Compute returns the weights the requested strategy holds at the end of the
// request windows. The result is always a full vector over the universe.
func (a *Allocator) Compute(ctx context.Context, req Request) (Decision, error) {
	n, err := req.width()
	if err != nil {
		return Decision{}, err
	}

	var d Decision
	switch req.Strategy {
	case domain.EqualWeight:
		d = Decision{Weights: domain.EqualWeights(n)}
	case domain.VolTarget:
		// Base allocation is equal weight; scaling happens on returns.
		d = Decision{Weights: domain.EqualWeights(n)}
	case domain.BuyAndHold:
		if req.Previous != nil {
			d = Decision{Weights: append([]float64(nil), req.Previous...)}
		} else {
			d = Decision{Weights: domain.EqualWeights(n), Note: "buy_and_hold: no prior holdings, starting from equal weight"}
		}
	case domain.Momentum121:
		d = Momentum(req.Prices, a.Momentum)
	case domain.MinVariance:
		d = a.minVariance(ctx, req.Returns, n, req.MaxWeight)
	case domain.RiskParity:
		d = a.riskParity(req.Returns, n)
	case domain.CVaRMin:
		d = a.cvar(ctx, req.Returns, n, req.MaxWeight)
	default:
		return Decision{}, fmt.Errorf("%w: unhandled strategy %d", domain.ErrMalformedInput, int(req.Strategy))
	}

	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}
	return a.enforceCap(d, req.MaxWeight), nil
}

func (req Request) width() (int, error) {
	n := req.Prices.Width()
	if n == 0 {
		n = req.Returns.Width()
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: empty asset universe", domain.ErrMalformedInput)
	}
	if w := req.Returns.Width(); w != 0 && w != n {
		return 0, fmt.Errorf("%w: %d price columns but %d return columns", domain.ErrMalformedInput, n, w)
	}
	if req.Previous != nil && len(req.Previous) != n {
		return 0, fmt.Errorf("%w: %d previous weights for %d assets", domain.ErrMalformedInput, len(req.Previous), n)
	}
	if req.MaxWeight < 0 || req.MaxWeight > 1 {
		return 0, fmt.Errorf("%w: max weight %.4f outside (0, 1]", domain.ErrMalformedInput, req.MaxWeight)
	}
	return n, nil
}

// enforceCap projects weights that breach the cap onto the capped simplex.
func (a *Allocator) enforceCap(d Decision, limit float64) Decision {
	n := len(d.Weights)
	if limit <= 0 || limit >= 1 || domain.ValidWeights(d.Weights, limit, domain.WeightTolerance) {
		return d
	}
	if limit*float64(n) < 1-domain.WeightTolerance {
		a.log.Warn().Float64("max_weight", limit).Int("assets", n).Msg("Weight cap infeasible for universe size, ignoring cap")
		return degrade(d, fmt.Sprintf("max_weight %.4f infeasible for %d assets", limit, n))
	}
	capped, err := optimization.ProjectCappedSimplex(d.Weights, limit)
	if err != nil {
		a.log.Warn().Err(err).Msg("Cap projection failed")
		return degrade(d, "cap projection failed")
	}
	d.Weights = capped
	return d
}

func degrade(d Decision, note string) Decision {
	d.Degraded = true
	if d.Note == "" {
		d.Note = note
	} else {
		d.Note += "; " + note
	}
	return d
}

func equalWeightFallback(n int, note string) Decision {
	return Decision{Weights: domain.EqualWeights(n), Degraded: true, Note: note}
}
