package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mteoong/quickscope-sub000/internal/domain"
)

const (
	readDeadline  = 75 * time.Second
	pingInterval  = 25 * time.Second
	writeDeadline = 10 * time.Second

	// recordBuffer absorbs bursts between the read loop and the decode
	// loop without reordering: a single channel keeps arrival order.
	recordBuffer = 256

	// reconnectBudget caps how long the client keeps retrying a dead
	// endpoint before giving up and reporting the stream down.
	reconnectBudget = 5 * time.Minute
)

// Handler receives decoded trade events in arrival order.
type Handler func(domain.TradeEvent)

// StatusFunc receives transport state transitions.
type StatusFunc func(domain.StreamStatus)

// Dialer opens a websocket connection. Swappable in tests.
type Dialer func(ctx context.Context, url string) (*websocket.Conn, error)

// Client holds a persistent JSON-RPC subscription for transactions touching
// the tracked mint, reconnecting with bounded exponential backoff when the
// transport drops. Decoded events are delivered to the handler in the order
// the ledger delivered them.
type Client struct {
	url     string
	mint    string
	decoder *Decoder

	onTrade  Handler
	onStatus StatusFunc
	dial     Dialer

	maxElapsed time.Duration
	sessionID  string
}

// NewClient creates a stream client for the tracked mint. onStatus may be nil.
func NewClient(url, mint string, decoder *Decoder, onTrade Handler, onStatus StatusFunc) *Client {
	c := &Client{
		url:        url,
		mint:       mint,
		decoder:    decoder,
		onTrade:    onTrade,
		onStatus:   onStatus,
		maxElapsed: reconnectBudget,
		sessionID:  uuid.New().String(),
	}
	c.dial = func(ctx context.Context, url string) (*websocket.Conn, error) {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		return conn, err
	}
	return c
}

// Run connects and serves the subscription until ctx is cancelled. Each
// transport failure triggers a reconnect with exponential backoff; Run only
// returns once the context ends.
func (c *Client) Run(ctx context.Context) error {
	records := make(chan *TxRecord, recordBuffer)

	go c.decodeLoop(ctx, records)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = c.maxElapsed

	attempt := func() error {
		// A successful subscribe restarts the reconnect budget; the cap
		// only applies to consecutive failed attempts.
		if err := c.serveOnce(ctx, records, bo.Reset); err != nil {
			log.Printf("stream %s: connection lost: %v", c.sessionID, err)
			c.setStatus(domain.StreamReconnecting)
			return err
		}
		return nil
	}

	err := backoff.Retry(func() error {
		select {
		case <-ctx.Done():
			return backoff.Permanent(ctx.Err())
		default:
		}
		if err := attempt(); err != nil {
			return err
		}
		// Clean read-loop exit still means the server closed on us.
		return fmt.Errorf("stream closed by remote")
	}, backoff.WithContext(bo, ctx))

	c.setStatus(domain.StreamDisconnected)
	return err
}

// serveOnce dials, subscribes, and pumps messages until the connection fails
// or the context ends. onUp runs once the subscription is acknowledged.
func (c *Client) serveOnce(ctx context.Context, records chan<- *TxRecord, onUp func()) error {
	conn, err := c.dial(ctx, c.url)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}
	defer conn.Close()

	if err := c.subscribe(conn); err != nil {
		return err
	}
	if onUp != nil {
		onUp()
	}
	c.setStatus(domain.StreamConnected)
	log.Printf("stream %s: subscribed to transactions for %s", c.sessionID, c.mint)

	// Close the connection when ctx ends so the blocked ReadMessage returns.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	go c.pingLoop(conn, done)

	conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read: %w", err)
		}
		conn.SetReadDeadline(time.Now().Add(readDeadline))

		rec, ok := parseNotification(msg)
		if !ok {
			continue
		}
		select {
		case records <- rec:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// subscribe sends the transactionSubscribe request and waits for the
// acknowledgement carrying the subscription id.
func (c *Client) subscribe(conn *websocket.Conn) error {
	req := map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "transactionSubscribe",
		"params": []any{
			map[string]any{
				"accountInclude": []string{c.mint},
				"failed":         false,
			},
			map[string]any{
				"commitment":          "confirmed",
				"encoding":            "jsonParsed",
				"transactionDetails":  "full",
				"showRewards":         false,
				"maxSupportedTransactionVersion": 0,
			},
		},
	}
	conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	if err := conn.WriteJSON(req); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(readDeadline))
	var ack struct {
		ID     int             `json:"id"`
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := conn.ReadJSON(&ack); err != nil {
		return fmt.Errorf("subscribe ack: %w", err)
	}
	if ack.Error != nil {
		return fmt.Errorf("subscribe rejected: %d %s", ack.Error.Code, ack.Error.Message)
	}
	return nil
}

func (c *Client) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(writeDeadline)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// decodeLoop drains raw records sequentially so event order matches arrival
// order.
func (c *Client) decodeLoop(ctx context.Context, records <-chan *TxRecord) {
	for {
		select {
		case rec := <-records:
			if ev, ok := c.decoder.Decode(rec); ok {
				c.onTrade(*ev)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) setStatus(s domain.StreamStatus) {
	if c.onStatus != nil {
		c.onStatus(s)
	}
}

// parseNotification lifts a TxRecord out of a transactionNotification
// envelope. Non-notification frames (acks, keepalives) return false.
func parseNotification(msg []byte) (*TxRecord, bool) {
	var env struct {
		Method string `json:"method"`
		Params struct {
			Result struct {
				Signature   string `json:"signature"`
				Slot        int64  `json:"slot"`
				Transaction struct {
					BlockTime   int64           `json:"blockTime"`
					Meta        json.RawMessage `json:"meta"`
					Transaction json.RawMessage `json:"transaction"`
				} `json:"transaction"`
			} `json:"result"`
		} `json:"params"`
	}
	if err := json.Unmarshal(msg, &env); err != nil {
		return nil, false
	}
	if env.Method != "transactionNotification" {
		return nil, false
	}

	rec := &TxRecord{
		Signature: env.Params.Result.Signature,
		Slot:      env.Params.Result.Slot,
		BlockTime: env.Params.Result.Transaction.BlockTime,
	}
	if len(env.Params.Result.Transaction.Meta) > 0 {
		if err := json.Unmarshal(env.Params.Result.Transaction.Meta, &rec.Meta); err != nil {
			return nil, false
		}
	}
	if len(env.Params.Result.Transaction.Transaction) > 0 {
		if err := json.Unmarshal(env.Params.Result.Transaction.Transaction, &rec.Transaction); err != nil {
			return nil, false
		}
	}
	if rec.Signature == "" && len(rec.Transaction.Signatures) > 0 {
		rec.Signature = rec.Transaction.Signatures[0]
	}
	return rec, true
}
