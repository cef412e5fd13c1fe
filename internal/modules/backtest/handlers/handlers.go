// Package handlers provides the HTTP handler for backtest runs.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/aristath/portfoliopilot/internal/domain"
	"github.com/aristath/portfoliopilot/internal/modules/backtest"
	"github.com/aristath/portfoliopilot/internal/modules/historical"
	"github.com/aristath/portfoliopilot/internal/utils"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Request is the body of POST /backtest.
type Request struct {
	Tickers            []string `json:"tickers"`
	Start              string   `json:"start"`
	End                string   `json:"end"`
	Strategy           string   `json:"strategy"`
	Rebalance          *string  `json:"rebalance"`
	TransactionCostBps *float64 `json:"transaction_cost_bps"`
	SlippageBps        *float64 `json:"slippage_bps"`
	LookbackWindow     *int     `json:"lookback_window"`
	MaxWeight          *float64 `json:"max_weight"`
	VolTarget          *float64 `json:"vol_target"`
	RiskFree           *float64 `json:"risk_free"`
}

// TimeSeries is a dated series on the wire.
type TimeSeries struct {
	Dates  []string  `json:"dates" msgpack:"dates"`
	Values []float64 `json:"values" msgpack:"values"`
}

// WeightSeries holds each ticker's weight on every price date.
type WeightSeries struct {
	Dates   []string             `json:"dates" msgpack:"dates"`
	Weights map[string][]float64 `json:"weights" msgpack:"weights"`
}

// Result is the body returned for a finished run.
type Result struct {
	RunID          string           `json:"run_id" msgpack:"run_id"`
	Strategy       string           `json:"strategy" msgpack:"strategy"`
	Tickers        []string         `json:"tickers" msgpack:"tickers"`
	Summary        backtest.Summary `json:"summary" msgpack:"summary"`
	EquityCurve    TimeSeries       `json:"equity_curve" msgpack:"equity_curve"`
	Returns        TimeSeries       `json:"returns" msgpack:"returns"`
	Drawdown       TimeSeries       `json:"drawdown" msgpack:"drawdown"`
	Weights        WeightSeries     `json:"weights" msgpack:"weights"`
	Turnover       TimeSeries       `json:"turnover" msgpack:"turnover"`
	Costs          TimeSeries       `json:"costs" msgpack:"costs"`
	Scale          TimeSeries       `json:"scale" msgpack:"scale"`
	RebalanceDates []string         `json:"rebalance_dates" msgpack:"rebalance_dates"`
	Degraded       bool             `json:"degraded" msgpack:"degraded"`
	Notes          []string         `json:"notes" msgpack:"notes"`
}

// Handler handles backtest HTTP requests
type Handler struct {
	prices          domain.PanelProvider
	engine          *backtest.Engine
	defaultUniverse []string
	riskFree        float64
	log             zerolog.Logger
}

// NewHandler creates a new backtest handler
func NewHandler(
	prices domain.PanelProvider,
	engine *backtest.Engine,
	defaultUniverse []string,
	riskFree float64,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		prices:          prices,
		engine:          engine,
		defaultUniverse: defaultUniverse,
		riskFree:        riskFree,
		log:             log.With().Str("handler", "backtest").Logger(),
	}
}

// HandleRun handles POST /backtest
func (h *Handler) HandleRun(w http.ResponseWriter, r *http.Request) {
	defer utils.OperationTimer("backtest_request", h.log)()

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error(), h.log)
		return
	}

	tickers := utils.NormalizeTickers(req.Tickers)
	if len(tickers) == 0 {
		tickers = h.defaultUniverse
	}
	start, err := domain.ParseDate(req.Start)
	if err != nil {
		utils.WriteError(w, r, http.StatusBadRequest, err.Error(), h.log)
		return
	}
	end, err := domain.ParseDate(req.End)
	if err != nil {
		utils.WriteError(w, r, http.StatusBadRequest, err.Error(), h.log)
		return
	}

	cfg := req.config()
	if err := cfg.Validate(); err != nil {
		utils.WriteError(w, r, http.StatusBadRequest, err.Error(), h.log)
		return
	}

	panel, err := h.prices.Panel(r.Context(), tickers, start, end)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}

	out, err := h.engine.Run(r.Context(), cfg, panel)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}

	riskFree := h.riskFree
	if req.RiskFree != nil {
		riskFree = *req.RiskFree
	}
	utils.WriteResponse(w, r, http.StatusOK, buildResult(out, riskFree), h.log)
}

func (req Request) config() backtest.Config {
	cfg := backtest.DefaultConfig()
	cfg.StrategyName = req.Strategy
	if req.Rebalance != nil {
		cfg.Rebalance = *req.Rebalance
	}
	if req.TransactionCostBps != nil {
		cfg.TransactionCostBps = *req.TransactionCostBps
	}
	if req.SlippageBps != nil {
		cfg.SlippageBps = *req.SlippageBps
	}
	if req.LookbackWindow != nil {
		cfg.Lookback = *req.LookbackWindow
	}
	cfg.MaxWeight = req.MaxWeight
	cfg.VolTarget = req.VolTarget
	return cfg
}

func (h *Handler) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, historical.ErrNoData):
		utils.WriteError(w, r, http.StatusNotFound, err.Error(), h.log)
	case errors.Is(err, domain.ErrMalformedInput), errors.Is(err, backtest.ErrInvalidConfig):
		utils.WriteError(w, r, http.StatusBadRequest, err.Error(), h.log)
	case r.Context().Err() != nil:
		utils.WriteError(w, r, http.StatusServiceUnavailable, "request cancelled", h.log)
	default:
		h.log.Error().Err(err).Msg("Backtest failed")
		utils.WriteError(w, r, http.StatusInternalServerError, "backtest failed", h.log)
	}
}

func buildResult(out *backtest.Output, riskFree float64) Result {
	res := Result{
		RunID:          uuid.New().String(),
		Strategy:       out.Strategy.String(),
		Tickers:        out.Assets,
		Summary:        backtest.Summarize(out, riskFree),
		EquityCurve:    series(out.Dates, out.Equity),
		Returns:        series(out.Dates, out.Returns),
		Drawdown:       series(out.Dates, backtest.Drawdown(out.Equity)),
		Turnover:       series(out.Weights.Dates, out.Turnover),
		Costs:          series(out.Weights.Dates, out.Costs),
		Scale:          series(out.Dates, out.Scale),
		RebalanceDates: formatDates(out.RebalanceDates),
		Degraded:       out.Degraded,
		Notes:          out.Notes,
		Weights: WeightSeries{
			Dates:   formatDates(out.Weights.Dates),
			Weights: make(map[string][]float64, len(out.Assets)),
		},
	}
	for _, asset := range out.Assets {
		res.Weights.Weights[asset] = out.Weights.At(asset)
	}
	if res.Notes == nil {
		res.Notes = []string{}
	}
	return res
}

func series(dates []time.Time, values []float64) TimeSeries {
	if values == nil {
		values = []float64{}
	}
	return TimeSeries{Dates: formatDates(dates), Values: values}
}

func formatDates(dates []time.Time) []string {
	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = d.Format(domain.DateLayout)
	}
	return out
}
