// Package backtest walks a price panel forward in time, rebalancing under an
// allocation strategy and accounting for trading costs.
package backtest

import (
	"errors"
	"fmt"
	"math"

	"github.com/aristath/portfoliopilot/internal/domain"
	"github.com/aristath/portfoliopilot/internal/modules/rebalancing"
)

// ErrInvalidConfig marks a run configuration outside its valid ranges.
var ErrInvalidConfig = errors.New("invalid backtest config")

const (
	DefaultRebalance          = "M"
	DefaultTransactionCostBps = 5.0
	DefaultSlippageBps        = 2.0
	DefaultLookback           = 126
	// DefaultVolTarget applies when the vol_target strategy runs without an
	// explicit target.
	DefaultVolTarget = 0.10
	// PriceWindowMargin extends the price window beyond the lookback so
	// momentum can skip its most recent month.
	PriceWindowMargin = 21
)

// Config describes one run.
type Config struct {
	Strategy domain.Strategy
	// StrategyName, when set, is parsed and overrides Strategy. Unknown names
	// run as equal weight and are reported in the output notes.
	StrategyName       string
	Rebalance          string
	TransactionCostBps float64
	SlippageBps        float64
	Lookback           int
	MaxWeight          *float64
	VolTarget          *float64
}

// DefaultConfig returns a monthly equal-weight run with standard costs.
func DefaultConfig() Config {
	return Config{
		Strategy:           domain.EqualWeight,
		Rebalance:          DefaultRebalance,
		TransactionCostBps: DefaultTransactionCostBps,
		SlippageBps:        DefaultSlippageBps,
		Lookback:           DefaultLookback,
	}
}

// Validate checks every numeric range and the rebalance rule.
func (c Config) Validate() error {
	if c.Lookback <= 0 {
		return fmt.Errorf("%w: lookback must be positive, got %d", ErrInvalidConfig, c.Lookback)
	}
	if !nonNegative(c.TransactionCostBps) {
		return fmt.Errorf("%w: transaction_cost_bps must be non-negative, got %v", ErrInvalidConfig, c.TransactionCostBps)
	}
	if !nonNegative(c.SlippageBps) {
		return fmt.Errorf("%w: slippage_bps must be non-negative, got %v", ErrInvalidConfig, c.SlippageBps)
	}
	if c.MaxWeight != nil && !(*c.MaxWeight > 0 && *c.MaxWeight <= 1) {
		return fmt.Errorf("%w: max_weight must be in (0, 1], got %v", ErrInvalidConfig, *c.MaxWeight)
	}
	if c.VolTarget != nil && !(*c.VolTarget > 0 && !math.IsInf(*c.VolTarget, 1)) {
		return fmt.Errorf("%w: vol_target must be positive, got %v", ErrInvalidConfig, *c.VolTarget)
	}
	if _, err := rebalancing.ParseRule(c.Rebalance); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// resolveStrategy returns the strategy to run and whether its name was
// recognised.
func (c Config) resolveStrategy() (domain.Strategy, bool) {
	if c.StrategyName == "" {
		return c.Strategy, true
	}
	return domain.ParseStrategy(c.StrategyName)
}

func (c Config) maxWeight() float64 {
	if c.MaxWeight == nil {
		return 0
	}
	return *c.MaxWeight
}

func nonNegative(v float64) bool {
	return v >= 0 && !math.IsInf(v, 1)
}
