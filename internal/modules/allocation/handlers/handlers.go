// Package handlers provides HTTP handlers for allocation target management.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// TargetStore writes and reads allocation targets
type TargetStore interface {
	SetClassTarget(accountID, assetClass string, weightPct float64) error
	SetInstrumentWeight(accountID, assetClass, instrumentID string, fraction float64) error
}

// Handler handles allocation HTTP requests
type Handler struct {
	store            TargetStore
	defaultAccountID string
	log              zerolog.Logger
}

// NewHandler creates a new allocation handler
func NewHandler(store TargetStore, defaultAccountID string, log zerolog.Logger) *Handler {
	return &Handler{
		store:            store,
		defaultAccountID: defaultAccountID,
		log:              log.With().Str("handler", "allocation").Logger(),
	}
}

// SetClassTargetRequest sets the portfolio weight of an asset class
type SetClassTargetRequest struct {
	AccountID  string  `json:"account_id"`
	AssetClass string  `json:"asset_class"`
	WeightPct  float64 `json:"weight_pct"`
}

// SetInstrumentWeightRequest sets the intra-class fraction of an instrument
type SetInstrumentWeightRequest struct {
	AccountID      string  `json:"account_id"`
	AssetClass     string  `json:"asset_class"`
	InstrumentID   string  `json:"instrument_id"`
	WeightFraction float64 `json:"weight_fraction"`
}

// HandleSetClassTarget handles PUT /api/allocation/classes
func (h *Handler) HandleSetClassTarget(w http.ResponseWriter, r *http.Request) {
	var req SetClassTargetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.AccountID == "" {
		req.AccountID = h.defaultAccountID
	}
	if req.AccountID == "" || req.AssetClass == "" {
		http.Error(w, "account_id and asset_class are required", http.StatusBadRequest)
		return
	}

	if err := h.store.SetClassTarget(req.AccountID, req.AssetClass, req.WeightPct); err != nil {
		h.log.Error().Err(err).Str("asset_class", req.AssetClass).Msg("Failed to set class target")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": req,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleSetInstrumentWeight handles PUT /api/allocation/instruments
func (h *Handler) HandleSetInstrumentWeight(w http.ResponseWriter, r *http.Request) {
	var req SetInstrumentWeightRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.AccountID == "" {
		req.AccountID = h.defaultAccountID
	}
	if req.AccountID == "" || req.AssetClass == "" || req.InstrumentID == "" {
		http.Error(w, "account_id, asset_class and instrument_id are required", http.StatusBadRequest)
		return
	}

	if err := h.store.SetInstrumentWeight(req.AccountID, req.AssetClass, req.InstrumentID, req.WeightFraction); err != nil {
		h.log.Error().Err(err).Str("instrument", req.InstrumentID).Msg("Failed to set instrument weight")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": req,
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
