package rebalancing

import "github.com/aristath/portfoliopilot/internal/domain"

// CostModel prices rebalancing turnover in basis points of traded value.
type CostModel struct {
	TransactionCostBps float64
	SlippageBps        float64
}

// Rate is the cost per unit of turnover.
func (m CostModel) Rate() float64 {
	return (m.TransactionCostBps + m.SlippageBps) / 10000
}

// Trade returns the turnover and cost of moving from prev to next.
func (m CostModel) Trade(prev, next []float64) (turnover, cost float64) {
	turnover = domain.Turnover(prev, next)
	return turnover, turnover * m.Rate()
}
