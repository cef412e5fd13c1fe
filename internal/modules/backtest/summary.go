package backtest

import (
	"github.com/aristath/portfoliopilot/pkg/formulas"
)

// Summary holds the headline statistics of a finished run.
type Summary struct {
	CAGR        float64 `json:"cagr" msgpack:"cagr"`
	Vol         float64 `json:"vol" msgpack:"vol"`
	Sharpe      float64 `json:"sharpe" msgpack:"sharpe"`
	MaxDrawdown float64 `json:"max_drawdown" msgpack:"max_drawdown"`
	Calmar      float64 `json:"calmar" msgpack:"calmar"`
}

// Summarize computes annualised statistics from a run's returns and equity.
// An empty run summarises to zeros.
func Summarize(out *Output, riskFree float64) Summary {
	if out.Empty() {
		return Summary{}
	}
	cagr := formulas.AnnualizedReturn(out.Returns, formulas.TradingDaysPerYear)
	mdd := formulas.MaxDrawdown(Drawdown(out.Equity))
	return Summary{
		CAGR:        cagr,
		Vol:         formulas.AnnualizedVolatility(out.Returns, formulas.TradingDaysPerYear),
		Sharpe:      formulas.SharpeRatio(out.Returns, riskFree, formulas.TradingDaysPerYear),
		MaxDrawdown: mdd,
		Calmar:      formulas.CalmarRatio(cagr, mdd),
	}
}

// Drawdown returns the equity curve's distance below its running peak.
func Drawdown(equity []float64) []float64 {
	return formulas.DrawdownCurve(equity)
}
