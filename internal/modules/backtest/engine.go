package backtest

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/aristath/portfoliopilot/internal/domain"
	"github.com/aristath/portfoliopilot/internal/modules/allocation"
	"github.com/aristath/portfoliopilot/internal/modules/rebalancing"
	"github.com/rs/zerolog"
)

// Engine runs backtests. It holds no per-run state, so one engine serves
// concurrent runs.
type Engine struct {
	allocator *allocation.Allocator
	log       zerolog.Logger
}

// NewEngine creates an engine that allocates through allocator.
func NewEngine(allocator *allocation.Allocator, log zerolog.Logger) *Engine {
	return &Engine{
		allocator: allocator,
		log:       log.With().Str("component", "backtest").Logger(),
	}
}

// Run simulates cfg over panel. Weights decided on a date only see prices
// and returns dated on or before it. An empty return series yields an empty
// output; a cancelled context aborts the run without output.
func (e *Engine) Run(ctx context.Context, cfg Config, panel *domain.PricePanel) (*Output, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := panel.Validate(); err != nil {
		return nil, err
	}

	var notes noteLog
	strategy, known := cfg.resolveStrategy()
	if !known {
		e.log.Warn().Str("strategy", cfg.StrategyName).Msg("Unknown strategy, running equal weight")
		notes.add(fmt.Sprintf("unknown strategy %q: ran equal_weight", cfg.StrategyName))
	}

	prices := panel.Prices()
	returns := domain.Returns(prices)
	if returns.Empty() {
		e.log.Info().Str("strategy", strategy.String()).Msg("No returns in panel, empty result")
		return emptyOutput(strategy, prices.Assets, notes.list()), nil
	}

	rule, err := rebalancing.ParseRule(cfg.Rebalance)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	scheduled := make(map[time.Time]bool)
	for _, d := range rule.Dates(prices.Dates) {
		scheduled[d] = true
	}
	costs := rebalancing.CostModel{TransactionCostBps: cfg.TransactionCostBps, SlippageBps: cfg.SlippageBps}

	started := time.Now()
	e.log.Info().
		Str("strategy", strategy.String()).
		Str("rebalance", rule.String()).
		Int("assets", prices.Width()).
		Int("dates", prices.Len()).
		Msg("Starting backtest")

	out := &Output{
		Strategy: strategy,
		Assets:   prices.Assets,
		Weights:  domain.WeightPath{Assets: prices.Assets},
		Turnover: make([]float64, prices.Len()),
		Costs:    make([]float64, prices.Len()),
	}

	state := State{}
	for t, date := range prices.Dates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if state.Due(scheduled[date]) {
			decision, err := e.allocator.Compute(ctx, allocation.Request{
				Strategy:  strategy,
				Prices:    prices.Window(t, cfg.Lookback+PriceWindowMargin),
				Returns:   returns.Window(returns.IndexAtOrBefore(date), cfg.Lookback),
				Previous:  state.Weights,
				MaxWeight: cfg.maxWeight(),
			})
			if err != nil {
				return nil, fmt.Errorf("allocating on %s: %w", date.Format(domain.DateLayout), err)
			}
			if decision.Degraded {
				notes.add(decision.Note)
			}

			if state.Initialised {
				out.Turnover[t], out.Costs[t] = costs.Trade(state.Weights, decision.Weights)
			}
			state = state.Rebalance(date, decision.Weights)
			out.RebalanceDates = append(out.RebalanceDates, date)

			e.log.Debug().
				Str("date", date.Format(domain.DateLayout)).
				Float64("turnover", out.Turnover[t]).
				Bool("degraded", decision.Degraded).
				Msg("Rebalanced")
		}
		out.Weights.Append(date, state.Weights)
	}

	net := e.netReturns(prices, returns, out)

	overlay := cfg.VolTarget != nil || strategy == domain.VolTarget
	if overlay {
		target := DefaultVolTarget
		if cfg.VolTarget != nil {
			target = *cfg.VolTarget
		}
		out.Returns, out.Scale = ApplyVolTarget(net, target)
	} else {
		out.Returns = net
		out.Scale = make([]float64, len(net))
		for i := range out.Scale {
			out.Scale[i] = 1
		}
	}

	out.Dates = returns.Dates
	out.Equity = compound(out.Returns)
	out.Notes = notes.list()
	out.Degraded = len(out.Notes) > 0

	e.log.Info().
		Str("strategy", strategy.String()).
		Int("rebalances", len(out.RebalanceDates)).
		Float64("final_equity", out.Equity[len(out.Equity)-1]).
		Bool("degraded", out.Degraded).
		Dur("elapsed", time.Since(started)).
		Msg("Backtest finished")

	return out, nil
}

// netReturns applies the weights held at the previous price date to each
// return row and deducts that date's trading cost. Missing returns count as
// zero.
func (e *Engine) netReturns(prices, returns *domain.Frame, out *Output) []float64 {
	net := make([]float64, returns.Len())
	for s, date := range returns.Dates {
		t := prices.IndexAtOrBefore(date)
		held := out.Weights.Weights[t-1]

		r := 0.0
		for i, ret := range returns.Rows[s] {
			if !math.IsNaN(ret) {
				r += held[i] * ret
			}
		}
		net[s] = r - out.Costs[t]
	}
	return net
}

func compound(returns []float64) []float64 {
	equity := make([]float64, len(returns))
	level := 1.0
	for i, r := range returns {
		level *= 1 + r
		equity[i] = level
	}
	return equity
}
