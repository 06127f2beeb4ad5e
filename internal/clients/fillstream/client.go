// Package fillstream is a websocket client for brokers that push position
// updates as orders fill. When available it replaces the polling confirmer:
// fills are confirmed the moment the broker reports them instead of on the
// next poll cycle.
package fillstream

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
)

const dialTimeout = 30 * time.Second

// positionUpdate is one pushed position event: the held quantity of an
// instrument after the broker processed a fill.
type positionUpdate struct {
	AccountID    string `json:"account_id"`
	InstrumentID string `json:"instrument_id"`
	Quantity     int64  `json:"quantity"`
}

// Confirmer confirms sell fills from the broker's position event stream.
// Implements domain.FillConfirmer.
type Confirmer struct {
	url        string
	apiKey     string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewConfirmer creates a stream-based fill confirmer
func NewConfirmer(url, apiKey string, log zerolog.Logger) *Confirmer {
	return &Confirmer{
		url:        url,
		apiKey:     apiKey,
		httpClient: createHTTP1Client(),
		log:        log.With().Str("component", "fillstream_confirmer").Logger(),
	}
}

// createHTTP1Client creates an HTTP client that forces HTTP/1.1.
// Websocket upgrades require HTTP/1.1; proxies that negotiate HTTP/2 via
// TLS ALPN would otherwise break the handshake.
func createHTTP1Client() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSClientConfig: &tls.Config{
				NextProtos: []string{"http/1.1"},
			},
			ForceAttemptHTTP2: false,
		},
	}
}

// ConfirmFills dials the stream and reads position updates until every
// target is reached or the context deadline expires. The connection lives
// for the duration of one sell phase only.
func (c *Confirmer) ConfirmFills(ctx context.Context, accountID string, targets map[string]int64) (map[string]bool, error) {
	filled := make(map[string]bool, len(targets))
	if len(targets) == 0 {
		return filled, nil
	}

	conn, err := c.dial(ctx)
	if err != nil {
		return filled, fmt.Errorf("failed to connect to fill stream: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "sell phase complete")

	if err := c.subscribe(ctx, conn, accountID); err != nil {
		return filled, err
	}

	for {
		update, err := c.readUpdate(ctx, conn)
		if err != nil {
			if ctx.Err() != nil {
				// Deadline reached: report what was confirmed so far
				c.log.Warn().
					Int("confirmed", len(filled)).
					Int("pending", len(targets)-len(filled)).
					Msg("Fill stream window closed with pending sells")
				return filled, nil
			}
			return filled, fmt.Errorf("fill stream read failed: %w", err)
		}

		if update.AccountID != "" && update.AccountID != accountID {
			continue
		}
		target, tracked := targets[update.InstrumentID]
		if !tracked || filled[update.InstrumentID] {
			continue
		}
		if update.Quantity <= target {
			filled[update.InstrumentID] = true
			c.log.Debug().
				Str("instrument", update.InstrumentID).
				Int64("quantity", update.Quantity).
				Msg("Sell fill confirmed from stream")
		}

		if len(filled) == len(targets) {
			c.log.Info().Int("confirmed", len(filled)).Msg("All sell fills confirmed from stream")
			return filled, nil
		}
	}
}

// dial opens the websocket connection
func (c *Confirmer) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	opts := &websocket.DialOptions{HTTPClient: c.httpClient}
	if c.apiKey != "" {
		opts.HTTPHeader = http.Header{"X-API-Key": []string{c.apiKey}}
	}

	conn, _, err := websocket.Dial(dialCtx, c.url, opts)
	if err != nil {
		return nil, err
	}
	// Position bursts right after a multi-leg submission can be large
	conn.SetReadLimit(1 << 20)
	return conn, nil
}

// subscribe requests position events for the account
func (c *Confirmer) subscribe(ctx context.Context, conn *websocket.Conn, accountID string) error {
	msg, err := json.Marshal(map[string]string{
		"action":     "subscribe",
		"channel":    "positions",
		"account_id": accountID,
	})
	if err != nil {
		return fmt.Errorf("failed to encode subscribe message: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, msg); err != nil {
		return fmt.Errorf("failed to subscribe to fill stream: %w", err)
	}
	return nil
}

// readUpdate reads and decodes the next position update, skipping frames
// that are not position events (heartbeats, acks).
func (c *Confirmer) readUpdate(ctx context.Context, conn *websocket.Conn) (*positionUpdate, error) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return nil, err
		}

		var update positionUpdate
		if err := json.Unmarshal(data, &update); err != nil || update.InstrumentID == "" {
			continue
		}
		return &update, nil
	}
}
