// Package rebalancing decides when a portfolio is rebalanced and what a
// rebalance costs.
package rebalancing

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrUnknownRule is returned for calendar rules that cannot be parsed.
var ErrUnknownRule = errors.New("unknown rebalance rule")

// cronPrefix introduces a cron expression rule, e.g. "cron:0 0 1 * *".
const cronPrefix = "cron:"

// Rule assigns every date to a calendar period. Two dates rebalance
// separately when their period keys differ.
type Rule struct {
	name   string
	period func(time.Time) time.Time
}

// String returns the rule as given.
func (r Rule) String() string { return r.name }

// ParseRule parses a calendar rule:
//
//	D            every trading day
//	W, W-SUN     weeks ending Sunday
//	M, ME, BM    calendar months
//	Q, QE        calendar quarters
//	A, Y, YE     calendar years
//	cron:<expr>  periods delimited by the fire times of a standard cron
//	             expression
func ParseRule(rule string) (Rule, error) {
	trimmed := strings.TrimSpace(rule)
	if strings.HasPrefix(strings.ToLower(trimmed), cronPrefix) {
		expr := strings.TrimSpace(trimmed[len(cronPrefix):])
		sched, err := cron.ParseStandard(expr)
		if err != nil {
			return Rule{}, fmt.Errorf("%w %q: %v", ErrUnknownRule, rule, err)
		}
		// A date belongs to the period closed by the next fire time.
		return Rule{name: trimmed, period: sched.Next}, nil
	}

	var period func(time.Time) time.Time
	switch strings.ToUpper(trimmed) {
	case "D", "B":
		period = func(t time.Time) time.Time {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
		}
	case "W", "W-SUN":
		period = func(t time.Time) time.Time {
			offset := (7 - int(t.Weekday())) % 7
			return time.Date(t.Year(), t.Month(), t.Day()+offset, 0, 0, 0, 0, t.Location())
		}
	case "M", "ME", "BM", "BME":
		period = func(t time.Time) time.Time {
			return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
		}
	case "Q", "QE", "BQ":
		period = func(t time.Time) time.Time {
			first := time.Month((int(t.Month())-1)/3*3 + 1)
			return time.Date(t.Year(), first, 1, 0, 0, 0, 0, t.Location())
		}
	case "A", "Y", "YE", "AE", "BA", "BY":
		period = func(t time.Time) time.Time {
			return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, t.Location())
		}
	default:
		return Rule{}, fmt.Errorf("%w %q", ErrUnknownRule, rule)
	}
	return Rule{name: strings.ToUpper(trimmed), period: period}, nil
}

// Dates returns the last trading date of every closed period, in order. A
// period is closed once a later date falls outside it, or, for the final
// date, once the next calendar day does. The trailing partial period never
// produces a rebalance date.
func (r Rule) Dates(dates []time.Time) []time.Time {
	var out []time.Time
	for i := 0; i+1 < len(dates); i++ {
		if !r.period(dates[i]).Equal(r.period(dates[i+1])) {
			out = append(out, dates[i])
		}
	}
	if n := len(dates); n > 0 {
		last := dates[n-1]
		if !r.period(last).Equal(r.period(last.AddDate(0, 0, 1))) {
			out = append(out, last)
		}
	}
	return out
}

// Schedule parses rule and returns its rebalance dates within dates, which
// must be strictly increasing.
func Schedule(dates []time.Time, rule string) ([]time.Time, error) {
	r, err := ParseRule(rule)
	if err != nil {
		return nil, err
	}
	return r.Dates(dates), nil
}
