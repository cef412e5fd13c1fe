package backtest

import "time"

// State is the value threaded through the date loop. It is replaced, never
// modified, at each rebalance.
type State struct {
	Weights       []float64
	LastRebalance time.Time
	Initialised   bool
}

// Rebalance returns the state holding weights from date onwards.
func (s State) Rebalance(date time.Time, weights []float64) State {
	return State{
		Weights:       append([]float64(nil), weights...),
		LastRebalance: date,
		Initialised:   true,
	}
}

// Due reports whether the loop must recompute weights on a date.
func (s State) Due(scheduled bool) bool {
	return scheduled || !s.Initialised
}
