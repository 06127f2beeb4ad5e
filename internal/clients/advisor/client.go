// Package advisor is the HTTP client for the execution-style advisory
// oracle. The oracle is optional and unreliable by contract: a single
// blocking request per run, no retry. Callers treat any failure as a signal
// to plan with the deterministic fallback.
package advisor

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

// Client talks to the advisory oracle service
type Client struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a new advisory oracle client
func NewClient(baseURL string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     log.With().Str("client", "advisor").Logger(),
	}
}

// suggestRequest is the oracle's request payload
type suggestRequest struct {
	Trades  []domain.NetTrade    `json:"trades"`
	Context domain.MarketContext `json:"context"`
}

// SuggestExecution implements domain.AdvisoryOracle. The raw hints are
// returned untrusted; the planner validates every field before use.
func (c *Client) SuggestExecution(ctx context.Context, trades []domain.NetTrade, mctx domain.MarketContext) ([]domain.ExecutionHint, error) {
	payload, err := json.Marshal(suggestRequest{Trades: trades, Context: mctx})
	if err != nil {
		return nil, fmt.Errorf("failed to encode advisory request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/execution-hints", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build advisory request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("advisory request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("advisory oracle returned status %d: %s", resp.StatusCode, string(body))
	}

	var hints []domain.ExecutionHint
	if err := json.NewDecoder(resp.Body).Decode(&hints); err != nil {
		return nil, fmt.Errorf("failed to parse advisory response: %w", err)
	}

	c.log.Debug().Int("hints", len(hints)).Msg("Received execution hints")
	return hints, nil
}
