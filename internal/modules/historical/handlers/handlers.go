// Package handlers provides HTTP handlers for price history import and
// listing.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/aristath/portfoliopilot/internal/domain"
	"github.com/aristath/portfoliopilot/internal/modules/historical"
	"github.com/aristath/portfoliopilot/internal/utils"
	"github.com/rs/zerolog"
)

// MaxUploadBytes bounds a CSV import body.
const MaxUploadBytes = 32 << 20

// Handler handles historical data HTTP requests
type Handler struct {
	store *historical.Store
	log   zerolog.Logger
}

// NewHandler creates a new historical data handler
func NewHandler(store *historical.Store, log zerolog.Logger) *Handler {
	return &Handler{
		store: store,
		log:   log.With().Str("handler", "historical").Logger(),
	}
}

// HandleImport handles POST /history/{symbol} with a CSV body
func (h *Handler) HandleImport(w http.ResponseWriter, r *http.Request, symbol string) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		utils.WriteError(w, r, http.StatusBadRequest, "symbol is required", h.log)
		return
	}

	body := http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	n, err := h.store.ImportCSV(r.Context(), body, symbol)
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			utils.WriteError(w, r, http.StatusRequestEntityTooLarge, "csv body too large", h.log)
		case errors.Is(err, domain.ErrMalformedInput):
			utils.WriteError(w, r, http.StatusBadRequest, err.Error(), h.log)
		default:
			h.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to import prices")
			utils.WriteError(w, r, http.StatusInternalServerError, "failed to import prices", h.log)
		}
		return
	}

	utils.WriteResponse(w, r, http.StatusCreated, map[string]interface{}{
		"symbol":   symbol,
		"imported": n,
	}, h.log)
}

// HandleListSymbols handles GET /history
func (h *Handler) HandleListSymbols(w http.ResponseWriter, r *http.Request) {
	symbols, err := h.store.Symbols(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list symbols")
		utils.WriteError(w, r, http.StatusInternalServerError, "failed to list symbols", h.log)
		return
	}
	if symbols == nil {
		symbols = []string{}
	}
	utils.WriteResponse(w, r, http.StatusOK, map[string]interface{}{
		"symbols": symbols,
		"count":   len(symbols),
	}, h.log)
}
