package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aristath/portfoliopilot/internal/database"
	"github.com/aristath/portfoliopilot/internal/modules/historical"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(t *testing.T) *chi.Mux {
	t.Helper()
	logger := zerolog.New(nil).Level(zerolog.Disabled)

	db, err := database.New(database.Config{Path: "file::memory:", Name: "history"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())

	handler := NewHandler(historical.NewStore(db.Conn(), logger), logger)
	router := chi.NewRouter()
	handler.RegisterRoutes(router)
	return router
}

func TestHandleImport(t *testing.T) {
	router := setupRouter(t)

	csv := "date,open,high,low,close,adj_close,volume\n" +
		"2024-01-02,1,1,1,1,1,10\n" +
		"2024-01-03,2,2,2,2,2,20\n"
	req := httptest.NewRequest(http.MethodPost, "/history/spy", strings.NewReader(csv))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "SPY", body["symbol"])
	assert.Equal(t, 2.0, body["imported"])

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/history/", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body = nil
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, []interface{}{"SPY"}, body["symbols"])
}

func TestHandleImport_Malformed(t *testing.T) {
	router := setupRouter(t)

	tests := []struct {
		name string
		body string
	}{
		{"empty", ""},
		{"no date column", "close\n1\n"},
		{"bad row", "date,close\n2024-13-45,1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/history/SPY", strings.NewReader(tt.body)))
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestHandleListSymbols_Empty(t *testing.T) {
	router := setupRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/history/", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"symbols":[],"count":0}`, w.Body.String())
}
