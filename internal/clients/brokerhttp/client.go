// Package brokerhttp is a JSON/REST brokerage client implementing the
// snapshot, quote and order ports. Wire-protocol details stay inside this
// package; the pipeline only sees domain types.
package brokerhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ballast/internal/domain"

	"github.com/rs/zerolog"
)

// Client talks to the brokerage REST API
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a new brokerage client
func NewClient(baseURL, apiKey string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
		log:     log.With().Str("client", "broker").Logger(),
	}
}

// holdingPayload mirrors the broker's portfolio response
type holdingPayload struct {
	InstrumentID string  `json:"instrument_id"`
	Quantity     int64   `json:"quantity"`
	Valuation    float64 `json:"valuation"`
	AssetClass   string  `json:"asset_class"`
}

type portfolioPayload struct {
	Cash       float64          `json:"cash"`
	TotalValue float64          `json:"total_value"`
	Holdings   []holdingPayload `json:"holdings"`
}

// GetSnapshot implements domain.SnapshotSource
func (c *Client) GetSnapshot(ctx context.Context, accountID string) (*domain.Snapshot, error) {
	var payload portfolioPayload
	path := fmt.Sprintf("/v1/accounts/%s/portfolio", accountID)
	if err := c.getJSON(ctx, path, &payload); err != nil {
		return nil, fmt.Errorf("failed to fetch portfolio snapshot: %w", err)
	}

	snapshot := &domain.Snapshot{
		AccountID:  accountID,
		Cash:       payload.Cash,
		TotalValue: payload.TotalValue,
		Holdings:   make([]domain.Holding, 0, len(payload.Holdings)),
	}
	for _, h := range payload.Holdings {
		if h.InstrumentID == "" {
			return nil, fmt.Errorf("portfolio snapshot contains holding without instrument id")
		}
		snapshot.Holdings = append(snapshot.Holdings, domain.Holding{
			InstrumentID: h.InstrumentID,
			Quantity:     h.Quantity,
			Valuation:    h.Valuation,
			AssetClass:   h.AssetClass,
		})
	}
	return snapshot, nil
}

// GetPrice implements domain.QuoteSource
func (c *Client) GetPrice(ctx context.Context, instrumentID string) (float64, error) {
	var payload struct {
		InstrumentID string  `json:"instrument_id"`
		Price        float64 `json:"price"`
	}
	path := fmt.Sprintf("/v1/quotes/%s", instrumentID)
	if err := c.getJSON(ctx, path, &payload); err != nil {
		return 0, fmt.Errorf("failed to fetch quote for %s: %w", instrumentID, err)
	}
	if payload.Price <= 0 {
		return 0, fmt.Errorf("broker returned non-positive price %.4f for %s", payload.Price, instrumentID)
	}
	return payload.Price, nil
}

// orderRequest is the broker's order submission payload
type orderRequest struct {
	InstrumentID string  `json:"instrument_id"`
	Side         string  `json:"side"`
	Quantity     int64   `json:"quantity"`
	OrderType    string  `json:"order_type"`
	LimitPrice   float64 `json:"limit_price,omitempty"`
}

type orderResponse struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// SubmitSell implements domain.OrderGateway
func (c *Client) SubmitSell(ctx context.Context, instr domain.ExecutionInstruction) (*domain.OrderAck, error) {
	return c.submitOrder(ctx, instr)
}

// SubmitBuy implements domain.OrderGateway
func (c *Client) SubmitBuy(ctx context.Context, instr domain.ExecutionInstruction) (*domain.OrderAck, error) {
	return c.submitOrder(ctx, instr)
}

// submitOrder posts one order and confirms broker acceptance
func (c *Client) submitOrder(ctx context.Context, instr domain.ExecutionInstruction) (*domain.OrderAck, error) {
	req := orderRequest{
		InstrumentID: instr.Trade.InstrumentID,
		Side:         string(instr.Trade.Side),
		Quantity:     instr.Trade.Quantity,
		OrderType:    string(instr.Style),
	}
	if instr.Style == domain.StyleLimit {
		req.LimitPrice = instr.LimitPrice
	}

	var resp orderResponse
	if err := c.postJSON(ctx, "/v1/orders", req, &resp); err != nil {
		return nil, err
	}
	if resp.OrderID == "" {
		return nil, fmt.Errorf("broker accepted order without an order id: %s", resp.Message)
	}

	c.log.Debug().
		Str("instrument", instr.Trade.InstrumentID).
		Str("side", string(instr.Trade.Side)).
		Str("order_id", resp.OrderID).
		Msg("Order submitted")

	return &domain.OrderAck{OrderID: resp.OrderID, Detail: resp.Message}, nil
}

// HealthCheck reports broker API reachability
func (c *Client) HealthCheck(ctx context.Context) error {
	var payload struct {
		Status string `json:"status"`
	}
	if err := c.getJSON(ctx, "/v1/health", &payload); err != nil {
		return fmt.Errorf("broker health check failed: %w", err)
	}
	return nil
}

// getJSON performs an authenticated GET and decodes the response
func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	return c.do(req, out)
}

// postJSON performs an authenticated POST and decodes the response
func (c *Client) postJSON(ctx context.Context, path string, body, out interface{}) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

// do executes the request with the API key header and decodes JSON
func (c *Client) do(req *http.Request, out interface{}) error {
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("broker returned status %d: %s", resp.StatusCode, string(body))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
