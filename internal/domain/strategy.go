package domain

import "strings"

// Strategy identifies an allocation rule.
type Strategy int

const (
	EqualWeight Strategy = iota
	Momentum121
	MinVariance
	RiskParity
	CVaRMin
	VolTarget
	BuyAndHold
)

var strategyNames = [...]string{
	EqualWeight: "equal_weight",
	Momentum121: "momentum_12_1",
	MinVariance: "min_variance",
	RiskParity:  "risk_parity",
	CVaRMin:     "cvar_min",
	VolTarget:   "vol_target",
	BuyAndHold:  "buy_and_hold",
}

func (s Strategy) String() string {
	if s < 0 || int(s) >= len(strategyNames) {
		return "unknown"
	}
	return strategyNames[s]
}

// ParseStrategy maps a wire name to a Strategy. Unknown names resolve to
// EqualWeight with known=false so the caller can log and flag the fallback.
func ParseStrategy(name string) (s Strategy, known bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range strategyNames {
		if n == name {
			return Strategy(i), true
		}
	}
	return EqualWeight, false
}

// Strategies lists every strategy in declaration order.
func Strategies() []Strategy {
	out := make([]Strategy, len(strategyNames))
	for i := range out {
		out[i] = Strategy(i)
	}
	return out
}
