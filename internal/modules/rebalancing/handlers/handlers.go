// Package handlers provides HTTP handlers for rebalancing operations.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"ballast/internal/domain"
	"ballast/internal/modules/journal"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Runner starts rebalancing runs
type Runner interface {
	Run(ctx context.Context, accountID string, maxPhase int) (*domain.RunResult, error)
}

// JournalReader reads the persisted run history
type JournalReader interface {
	ListRecent(limit int) ([]journal.RunRecord, error)
	GetOrders(runID string) ([]domain.OrderOutcome, error)
}

// Handler handles rebalancing HTTP requests
type Handler struct {
	runner           Runner
	journal          JournalReader // optional
	defaultAccountID string
	log              zerolog.Logger
}

// NewHandler creates a new rebalancing handler
func NewHandler(runner Runner, journal JournalReader, defaultAccountID string, log zerolog.Logger) *Handler {
	return &Handler{
		runner:           runner,
		journal:          journal,
		defaultAccountID: defaultAccountID,
		log:              log.With().Str("handler", "rebalancing").Logger(),
	}
}

// RunRequest represents a request to start a rebalancing run
type RunRequest struct {
	AccountID string `json:"account_id"`
	MaxPhase  int    `json:"max_phase"`
}

// HandleRun handles POST /api/rebalancing/run
func (h *Handler) HandleRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.AccountID == "" {
		req.AccountID = h.defaultAccountID
	}
	if req.AccountID == "" {
		http.Error(w, "account_id is required", http.StatusBadRequest)
		return
	}
	if req.MaxPhase == 0 {
		req.MaxPhase = 5
	}
	if req.MaxPhase < 1 || req.MaxPhase > 5 {
		http.Error(w, "max_phase must be within [1,5]", http.StatusBadRequest)
		return
	}

	result, err := h.runner.Run(r.Context(), req.AccountID, req.MaxPhase)
	if err != nil {
		h.log.Error().Err(err).Msg("Rebalancing run failed to start")
		http.Error(w, "Failed to run rebalancing", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": result,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleListRuns handles GET /api/rebalancing/runs
func (h *Handler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		http.Error(w, "Run journal not configured", http.StatusNotFound)
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	records, err := h.journal.ListRecent(limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list runs")
		http.Error(w, "Failed to list runs", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"runs":  records,
			"count": len(records),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetRunOrders handles GET /api/rebalancing/runs/{runID}/orders
func (h *Handler) HandleGetRunOrders(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		http.Error(w, "Run journal not configured", http.StatusNotFound)
		return
	}

	runID := chi.URLParam(r, "runID")
	if runID == "" {
		http.Error(w, "run id is required", http.StatusBadRequest)
		return
	}

	orders, err := h.journal.GetOrders(runID)
	if err != nil {
		h.log.Error().Err(err).Str("run_id", runID).Msg("Failed to load run orders")
		http.Error(w, "Failed to load run orders", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"run_id": runID,
			"orders": orders,
			"count":  len(orders),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
