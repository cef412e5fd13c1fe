package allocation

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/aristath/portfoliopilot/internal/domain"
	"github.com/aristath/portfoliopilot/pkg/formulas"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ErrUnknownMethod is returned for an optimisation method outside mvo,
// risk_parity and cvar.
var ErrUnknownMethod = fmt.Errorf("%w: unknown optimisation method", domain.ErrMalformedInput)

// Optimisation methods.
const (
	MethodMVO        = "mvo"
	MethodRiskParity = "risk_parity"
	MethodCVaR       = "cvar"
)

// DefaultFrontierPoints is the frontier resolution when none is requested.
const DefaultFrontierPoints = 25

// OptimizeRequest is a one-off optimisation over a return history.
type OptimizeRequest struct {
	Method  string
	Returns *domain.Frame
	// TargetReturn switches mvo from max Sharpe to the target-return
	// problem. Annualised.
	TargetReturn *float64
	MaxWeight    float64
	RiskFree     float64
	LongOnly     bool
	// FrontierPoints applies to mvo; 0 skips the frontier.
	FrontierPoints int
	// Alpha is the CVaR confidence level.
	Alpha float64
}

// OptimizeResult holds the weights and their annualised statistics.
type OptimizeResult struct {
	Method   string
	Weights  []float64
	Stats    Statistics
	Frontier []FrontierPoint
	Degraded bool
	Notes    []string
}

// Optimize estimates annualised μ and Σ from req.Returns and runs the
// requested method.
func (a *Allocator) Optimize(ctx context.Context, req OptimizeRequest) (*OptimizeResult, error) {
	method := strings.ToLower(strings.TrimSpace(req.Method))
	switch method {
	case MethodMVO, MethodRiskParity, MethodCVaR:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, req.Method)
	}
	if req.Returns == nil || req.Returns.Width() == 0 {
		return nil, fmt.Errorf("%w: no assets to optimise", domain.ErrMalformedInput)
	}
	if req.MaxWeight < 0 || req.MaxWeight > 1 || math.IsNaN(req.MaxWeight) {
		return nil, fmt.Errorf("%w: max weight %g outside [0, 1]", domain.ErrMalformedInput, req.MaxWeight)
	}

	cov, ok := sampleCovariance(req.Returns)
	if !ok {
		return nil, fmt.Errorf("%w: fewer than two return observations", domain.ErrMalformedInput)
	}
	cov.ScaleSym(formulas.TradingDaysPerYear, cov)
	mu := req.Returns.Mean()
	for i, m := range mu {
		if math.IsNaN(m) {
			mu[i] = 0
		}
	}
	floats.Scale(formulas.TradingDaysPerYear, mu)

	res := &OptimizeResult{Method: method}
	var d Decision
	switch method {
	case MethodMVO:
		var err error
		d, err = a.meanVariance(ctx, mu, cov, req)
		if err != nil {
			return nil, err
		}
		if req.FrontierPoints > 0 {
			frontier, err := a.EfficientFrontier(ctx, mu, cov, FrontierOptions{
				Points:    req.FrontierPoints,
				LongOnly:  req.LongOnly,
				MaxWeight: req.MaxWeight,
			})
			if err != nil {
				return nil, fmt.Errorf("efficient frontier: %w", err)
			}
			res.Frontier = frontier
		}
	case MethodRiskParity:
		rp := RiskParity(cov, a.RiskParity)
		d = a.enforceCap(Decision{Weights: rp.Weights}, req.MaxWeight)
	case MethodCVaR:
		d = a.enforceCap(a.MinCVaR(ctx, req.Returns, req.Alpha, req.MaxWeight), req.MaxWeight)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res.Weights = d.Weights
	res.Degraded = d.Degraded
	if d.Note != "" {
		res.Notes = append(res.Notes, d.Note)
	}
	for _, p := range res.Frontier {
		if p.Degraded {
			res.Degraded = true
			res.Notes = append(res.Notes, "efficient frontier: some points fell back")
			break
		}
	}
	res.Stats = PortfolioStatistics(res.Weights, mu, cov, req.RiskFree)
	return res, nil
}

func (a *Allocator) meanVariance(ctx context.Context, mu []float64, cov mat.Symmetric, req OptimizeRequest) (Decision, error) {
	if req.LongOnly {
		if req.TargetReturn != nil {
			return a.TargetReturnLongOnly(ctx, mu, cov, *req.TargetReturn, req.MaxWeight), nil
		}
		return a.MaxSharpeLongOnly(ctx, mu, cov, req.RiskFree, req.MaxWeight), nil
	}

	var (
		w   []float64
		err error
	)
	if req.TargetReturn != nil {
		w, err = TargetReturnUnconstrained(mu, cov, *req.TargetReturn)
	} else {
		w, err = MaxSharpeUnconstrained(mu, cov, req.RiskFree)
	}
	if err != nil {
		a.log.Warn().Err(err).Msg("Unconstrained mean-variance failed, falling back to equal weight")
		return equalWeightFallback(len(mu), "mvo: closed form failed, equal weight"), nil
	}
	return Decision{Weights: w}, nil
}
