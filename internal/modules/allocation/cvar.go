package allocation

import (
	"context"
	"math"
	"sort"

	"github.com/aristath/portfoliopilot/internal/domain"
	"github.com/aristath/portfoliopilot/internal/modules/optimization"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// DefaultCVaRAlpha is the CVaR confidence level.
const DefaultCVaRAlpha = 0.95

// MaxCVaRScenarios bounds the scenarios fed to the CVaR program; longer
// windows keep their most recent rows. Each simplex pivot factorises a
// basis with one row per scenario.
const MaxCVaRScenarios = 252

// CVaRProgram builds the Rockafellar-Uryasev linear program over historical
// scenarios. Variables are [w (n), z, u (T)]:
//
//	min  z + 1/((1-α)T) Σ u_t
//	s.t. -r_t·w - z - u_t ≤ 0,  u ≥ 0,  Σw = 1,  0 ≤ w ≤ limit
//
// Missing scenario returns count as zero. The weights carry an upper bound
// only when limit is in (0, 1); otherwise Σw = 1 and w ≥ 0 already bound
// them. Start holds a feasible vertex for warm-starting the solver.
func CVaRProgram(scenarios *domain.Frame, alpha, limit float64) *optimization.LinearProgram {
	n := scenarios.Width()
	T := scenarios.Len()
	dim := n + 1 + T
	zIdx := n
	capped := limit > 0 && limit < 1

	c := make([]float64, dim)
	c[zIdx] = 1
	for t := 0; t < T; t++ {
		c[n+1+t] = 1 / ((1 - alpha) * float64(T))
	}

	g := mat.NewDense(T, dim, nil)
	h := make([]float64, T)
	for t, row := range scenarios.Rows {
		for i, r := range row {
			if !math.IsNaN(r) {
				g.Set(t, i, -r)
			}
		}
		g.Set(t, zIdx, -1)
		g.Set(t, n+1+t, -1)
	}

	aeq := mat.NewDense(1, dim, nil)
	lower := make([]float64, dim)
	upper := make([]float64, dim)
	for i := 0; i < dim; i++ {
		upper[i] = math.Inf(1)
	}
	for i := 0; i < n; i++ {
		aeq.Set(0, i, 1)
		if capped {
			upper[i] = limit
		}
	}
	lower[zIdx] = math.Inf(-1)

	start := cvarStart(scenarios, alpha, limit)

	return &optimization.LinearProgram{
		C:     c,
		Start: start,
		Constraints: optimization.Constraints{
			Aeq:   aeq,
			Beq:   []float64{1},
			G:     g,
			H:     h,
			Lower: lower,
			Upper: upper,
		},
	}
}

// cvarStart builds a vertex of the CVaR program: assets filled up to the
// limit in ascending order of their own historical CVaR, z at the
// portfolio's α-quantile loss and u_t the loss in excess of z.
func cvarStart(scenarios *domain.Frame, alpha, limit float64) []float64 {
	n := scenarios.Width()
	T := scenarios.Len()
	start := make([]float64, n+1+T)
	if n == 0 {
		return start
	}

	lossAt := func(t, i int) float64 {
		if r := scenarios.Rows[t][i]; !math.IsNaN(r) {
			return -r
		}
		return 0
	}
	tail := int(math.Ceil((1 - alpha) * float64(T)))
	if tail < 1 {
		tail = 1
	}
	own := make([]float64, n)
	losses := make([]float64, T)
	for i := 0; i < n; i++ {
		for t := range losses {
			losses[t] = lossAt(t, i)
		}
		sort.Float64s(losses)
		if T > 0 {
			own[i] = floats.Sum(losses[T-min(tail, T):]) / float64(min(tail, T))
		}
	}
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return own[order[a]] < own[order[b]] })

	remaining := 1.0
	for _, i := range order {
		if remaining <= 0 {
			break
		}
		w := remaining
		if limit > 0 && limit < 1 && w > limit {
			w = limit
		}
		start[i] = w
		remaining -= w
	}
	if T == 0 {
		return start
	}

	portfolio := make([]float64, T)
	for t := range portfolio {
		for i := 0; i < n; i++ {
			portfolio[t] += start[i] * lossAt(t, i)
		}
	}
	sorted := append([]float64(nil), portfolio...)
	sort.Float64s(sorted)
	q := int(math.Ceil(alpha*float64(T))) - 1
	q = max(0, min(q, T-1))
	z := sorted[q]
	start[n] = z
	for t, loss := range portfolio {
		start[n+1+t] = math.Max(loss-z, 0)
	}
	return start
}

// MinCVaR solves the CVaR program and returns the normalised weights.
func (a *Allocator) MinCVaR(ctx context.Context, scenarios *domain.Frame, alpha, limit float64) Decision {
	n := scenarios.Width()
	if scenarios.Len() == 0 {
		return Decision{Weights: domain.EqualWeights(n), Note: "cvar_min: no scenarios, equal weight"}
	}
	if !a.solvers.Available(optimization.KindLP) {
		return equalWeightFallback(n, "cvar_min: no solver backend, equal weight")
	}
	if alpha <= 0 || alpha >= 1 {
		alpha = DefaultCVaRAlpha
	}
	if scenarios.Len() > MaxCVaRScenarios {
		scenarios = scenarios.Window(scenarios.Len()-1, MaxCVaRScenarios)
	}

	sol, err := a.solvers.SolveLP(ctx, CVaRProgram(scenarios, alpha, limit), "simplex")
	if err != nil {
		a.log.Warn().Err(err).Msg("CVaR solve failed, falling back to equal weight")
		return equalWeightFallback(n, "cvar_min: solver failed, equal weight")
	}
	return Decision{Weights: domain.Normalize(sol.X[:n])}
}

func (a *Allocator) cvar(ctx context.Context, returns *domain.Frame, n int, limit float64) Decision {
	if returns.Width() == 0 {
		return Decision{Weights: domain.EqualWeights(n), Note: "cvar_min: no scenarios, equal weight"}
	}
	return a.MinCVaR(ctx, returns, a.CVaRAlpha, limit)
}
