package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockStore records target writes
type mockStore struct {
	classCalls      int
	instrumentCalls int
	lastAccountID   string
	err             error
}

func (m *mockStore) SetClassTarget(accountID, assetClass string, weightPct float64) error {
	m.classCalls++
	m.lastAccountID = accountID
	return m.err
}

func (m *mockStore) SetInstrumentWeight(accountID, assetClass, instrumentID string, fraction float64) error {
	m.instrumentCalls++
	m.lastAccountID = accountID
	return m.err
}

func newTestRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func TestHandleSetClassTarget(t *testing.T) {
	store := &mockStore{}
	h := NewHandler(store, "", zerolog.Nop())
	router := newTestRouter(h)

	body := []byte(`{"account_id": "acc-1", "asset_class": "equity", "weight_pct": 70}`)
	req := httptest.NewRequest(http.MethodPut, "/allocation/classes", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, store.classCalls)
	assert.Equal(t, "acc-1", store.lastAccountID)
}

func TestHandleSetClassTarget_DefaultAccount(t *testing.T) {
	store := &mockStore{}
	h := NewHandler(store, "default-acc", zerolog.Nop())
	router := newTestRouter(h)

	body := []byte(`{"asset_class": "equity", "weight_pct": 70}`)
	req := httptest.NewRequest(http.MethodPut, "/allocation/classes", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "default-acc", store.lastAccountID)
}

func TestHandleSetClassTarget_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "invalid json", body: `{`},
		{name: "missing asset class", body: `{"account_id": "acc-1", "weight_pct": 70}`},
		{name: "no account anywhere", body: `{"asset_class": "equity", "weight_pct": 70}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mockStore{}
			h := NewHandler(store, "", zerolog.Nop())
			router := newTestRouter(h)

			req := httptest.NewRequest(http.MethodPut, "/allocation/classes", bytes.NewReader([]byte(tt.body)))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Zero(t, store.classCalls)
		})
	}
}

func TestHandleSetClassTarget_StoreRejection(t *testing.T) {
	store := &mockStore{err: fmt.Errorf("class weight must be within [0,100], got 120.00")}
	h := NewHandler(store, "", zerolog.Nop())
	router := newTestRouter(h)

	body := []byte(`{"account_id": "acc-1", "asset_class": "equity", "weight_pct": 120}`)
	req := httptest.NewRequest(http.MethodPut, "/allocation/classes", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "within [0,100]")
}

func TestHandleSetInstrumentWeight(t *testing.T) {
	store := &mockStore{}
	h := NewHandler(store, "", zerolog.Nop())
	router := newTestRouter(h)

	body := []byte(`{"account_id": "acc-1", "asset_class": "equity", "instrument_id": "EQ-A", "weight_fraction": 0.5}`)
	req := httptest.NewRequest(http.MethodPut, "/allocation/instruments", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, store.instrumentCalls)
}

func TestHandleSetInstrumentWeight_MissingInstrument(t *testing.T) {
	store := &mockStore{}
	h := NewHandler(store, "", zerolog.Nop())
	router := newTestRouter(h)

	body := []byte(`{"account_id": "acc-1", "asset_class": "equity", "weight_fraction": 0.5}`)
	req := httptest.NewRequest(http.MethodPut, "/allocation/instruments", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, store.instrumentCalls)
}
