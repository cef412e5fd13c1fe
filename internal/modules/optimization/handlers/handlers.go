// Package handlers provides the HTTP handler for one-off portfolio
// optimisation.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aristath/portfoliopilot/internal/domain"
	"github.com/aristath/portfoliopilot/internal/modules/allocation"
	"github.com/aristath/portfoliopilot/internal/modules/historical"
	"github.com/aristath/portfoliopilot/internal/utils"
	"github.com/rs/zerolog"
)

// Request is the body of POST /optimize.
type Request struct {
	Tickers        []string `json:"tickers"`
	Start          string   `json:"start"`
	End            string   `json:"end"`
	Method         string   `json:"method"`
	TargetReturn   *float64 `json:"target_return"`
	MaxWeight      *float64 `json:"max_weight"`
	RiskFree       *float64 `json:"risk_free"`
	LongOnly       *bool    `json:"long_only"`
	FrontierPoints *int     `json:"frontier_points"`
	Alpha          *float64 `json:"alpha"`
}

// Result is the optimisation response.
type Result struct {
	Method         string                     `json:"method" msgpack:"method"`
	Weights        map[string]float64         `json:"weights" msgpack:"weights"`
	ExpectedReturn float64                    `json:"expected_return" msgpack:"expected_return"`
	ExpectedVol    float64                    `json:"expected_vol" msgpack:"expected_vol"`
	Sharpe         float64                    `json:"sharpe" msgpack:"sharpe"`
	Frontier       []allocation.FrontierPoint `json:"frontier,omitempty" msgpack:"frontier,omitempty"`
	Degraded       bool                       `json:"degraded" msgpack:"degraded"`
	Notes          []string                   `json:"notes,omitempty" msgpack:"notes,omitempty"`
}

// Handler handles optimisation HTTP requests
type Handler struct {
	prices          domain.PanelProvider
	allocator       *allocation.Allocator
	defaultUniverse []string
	log             zerolog.Logger
}

// NewHandler creates a new optimisation handler
func NewHandler(prices domain.PanelProvider, allocator *allocation.Allocator, defaultUniverse []string, log zerolog.Logger) *Handler {
	return &Handler{
		prices:          prices,
		allocator:       allocator,
		defaultUniverse: defaultUniverse,
		log:             log.With().Str("handler", "optimization").Logger(),
	}
}

// HandleOptimize handles POST /optimize
func (h *Handler) HandleOptimize(w http.ResponseWriter, r *http.Request) {
	defer utils.OperationTimer("optimize_request", h.log)()

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

	panel, err := h.prices.Panel(r.Context(), tickers, start, end)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	if err := panel.Validate(); err != nil {
		h.writeFailure(w, r, err)
		return
	}

	res, err := h.allocator.Optimize(r.Context(), req.optimizeRequest(domain.Returns(panel.Prices())))
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}

	out := Result{
		Method:         res.Method,
		Weights:        make(map[string]float64, len(panel.Assets)),
		ExpectedReturn: res.Stats.ExpectedReturn,
		ExpectedVol:    res.Stats.Volatility,
		Sharpe:         res.Stats.Sharpe,
		Frontier:       res.Frontier,
		Degraded:       res.Degraded,
		Notes:          res.Notes,
	}
	for i, asset := range panel.Assets {
		out.Weights[asset] = res.Weights[i]
	}
	utils.WriteResponse(w, r, http.StatusOK, out, h.log)
}

func (req Request) optimizeRequest(returns *domain.Frame) allocation.OptimizeRequest {
	opt := allocation.OptimizeRequest{
		Method:         req.Method,
		Returns:        returns,
		TargetReturn:   req.TargetReturn,
		LongOnly:       true,
		FrontierPoints: allocation.DefaultFrontierPoints,
		Alpha:          allocation.DefaultCVaRAlpha,
	}
	if req.MaxWeight != nil {
		opt.MaxWeight = *req.MaxWeight
	}
	if req.RiskFree != nil {
		opt.RiskFree = *req.RiskFree
	}
	if req.LongOnly != nil {
		opt.LongOnly = *req.LongOnly
	}
	if req.FrontierPoints != nil {
		opt.FrontierPoints = *req.FrontierPoints
	}
	if req.Alpha != nil {
		opt.Alpha = *req.Alpha
	}
	return opt
}

func (h *Handler) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, historical.ErrNoData):
		utils.WriteError(w, r, http.StatusNotFound, err.Error(), h.log)
	case errors.Is(err, domain.ErrMalformedInput):
		utils.WriteError(w, r, http.StatusBadRequest, err.Error(), h.log)
	case r.Context().Err() != nil:
		utils.WriteError(w, r, http.StatusServiceUnavailable, "request cancelled", h.log)
	default:
		h.log.Error().Err(err).Msg("Optimisation failed")
		utils.WriteError(w, r, http.StatusInternalServerError, "optimisation failed", h.log)
	}
}
