package backtest

import (
	"strconv"
	"time"

	"github.com/aristath/portfoliopilot/internal/domain"
)

// Output is the result bundle of one run. It is built once and not modified
// afterwards.
//
// Weights, Turnover and Costs follow the price dates; Returns, Equity and
// Scale follow the return dates, which start one price row later.
type Output struct {
	Strategy       domain.Strategy
	Assets         []string
	Weights        domain.WeightPath
	Turnover       []float64
	Costs          []float64
	Dates          []time.Time
	Returns        []float64
	Equity         []float64
	Scale          []float64
	RebalanceDates []time.Time
	Degraded       bool
	Notes          []string
}

// Empty reports whether the run produced no returns.
func (o *Output) Empty() bool {
	return o == nil || len(o.Returns) == 0
}

func emptyOutput(strategy domain.Strategy, assets []string, notes []string) *Output {
	return &Output{
		Strategy:       strategy,
		Assets:         assets,
		Weights:        domain.WeightPath{Assets: assets, Dates: []time.Time{}, Weights: [][]float64{}},
		Turnover:       []float64{},
		Costs:          []float64{},
		Dates:          []time.Time{},
		Returns:        []float64{},
		Equity:         []float64{},
		Scale:          []float64{},
		RebalanceDates: []time.Time{},
		Degraded:       len(notes) > 0,
		Notes:          notes,
	}
}

// noteLog collects degraded-mode notes once each, keeping first-seen order.
type noteLog struct {
	order  []string
	counts map[string]int
}

func (n *noteLog) add(note string) {
	if note == "" {
		return
	}
	if n.counts == nil {
		n.counts = make(map[string]int)
	}
	if n.counts[note] == 0 {
		n.order = append(n.order, note)
	}
	n.counts[note]++
}

func (n *noteLog) list() []string {
	out := make([]string, 0, len(n.order))
	for _, note := range n.order {
		if c := n.counts[note]; c > 1 {
			note = note + " (" + strconv.Itoa(c) + " rebalances)"
		}
		out = append(out, note)
	}
	return out
}
