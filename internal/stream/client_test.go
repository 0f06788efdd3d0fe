package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mteoong/quickscope-sub000/internal/domain"
)

func notificationFrame(t *testing.T, rec *TxRecord) []byte {
	t.Helper()
	meta, err := json.Marshal(rec.Meta)
	require.NoError(t, err)
	tx, err := json.Marshal(rec.Transaction)
	require.NoError(t, err)
	frame := fmt.Sprintf(`{"jsonrpc":"2.0","method":"transactionNotification","params":{"subscription":1,"result":{"signature":%q,"slot":%d,"transaction":{"blockTime":%d,"meta":%s,"transaction":%s}}}}`,
		rec.Signature, rec.Slot, rec.BlockTime, meta, tx)
	return []byte(frame)
}

func TestParseNotification(t *testing.T) {
	rec := swapRecord("0", "1000000000", "5000000", "0")
	got, ok := parseNotification(notificationFrame(t, rec))
	require.True(t, ok)
	assert.Equal(t, "sig1", got.Signature)
	assert.Equal(t, int64(100), got.Slot)
	assert.Equal(t, int64(1700000000), got.BlockTime)
	assert.Len(t, got.Meta.PostTokenBalances, 2)
	assert.Equal(t, traderAddr, got.Transaction.Message.AccountKeys[0])
}

func TestParseNotificationIgnoresOtherFrames(t *testing.T) {
	_, ok := parseNotification([]byte(`{"jsonrpc":"2.0","id":1,"result":42}`))
	assert.False(t, ok)

	_, ok = parseNotification([]byte(`not json`))
	assert.False(t, ok)
}

func TestClientDeliversDecodedTrades(t *testing.T) {
	rec := swapRecord("0", "1000000000", "5000000", "0")

	var upgrader websocket.Upgrader
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		// Subscribe request arrives first.
		var req map[string]any
		require.NoError(t, conn.ReadJSON(&req))
		assert.Equal(t, "transactionSubscribe", req["method"])

		require.NoError(t, conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": 1, "result": 42}))
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, notificationFrame(t, rec)))

		// Keep the connection open until the client hangs up.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events := make(chan domain.TradeEvent, 1)
	var statuses []domain.StreamStatus

	decoder := NewDecoder(testMint, 0, fixedValuer{prices: map[string]float64{counterMint: 200}})
	client := NewClient(
		"ws"+strings.TrimPrefix(srv.URL, "http"),
		testMint,
		decoder,
		func(ev domain.TradeEvent) { events <- ev },
		func(s domain.StreamStatus) { statuses = append(statuses, s) },
	)

	done := make(chan error, 1)
	go func() { done <- client.Run(ctx) }()

	select {
	case ev := <-events:
		assert.Equal(t, domain.SideBuy, ev.Side)
		assert.InDelta(t, 1000.0, ev.Amount, 1e-9)
	case <-time.After(4 * time.Second):
		t.Fatal("no trade delivered")
	}

	cancel()
	<-done
	require.NotEmpty(t, statuses)
	assert.Equal(t, domain.StreamConnected, statuses[0])
	assert.Equal(t, domain.StreamDisconnected, statuses[len(statuses)-1])
}

func TestClientGivesUpAfterReconnectBudget(t *testing.T) {
	decoder := NewDecoder(testMint, 0, fixedValuer{})

	var statuses []domain.StreamStatus
	client := NewClient("ws://unreachable.invalid", testMint, decoder,
		func(domain.TradeEvent) {},
		func(s domain.StreamStatus) { statuses = append(statuses, s) })
	client.maxElapsed = time.Millisecond
	client.dial = func(context.Context, string) (*websocket.Conn, error) {
		return nil, fmt.Errorf("connection refused")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := client.Run(ctx)
	require.Error(t, err)
	require.NoError(t, ctx.Err(), "the budget, not the context, must end the run")
	require.NotEmpty(t, statuses)
	assert.Equal(t, domain.StreamDisconnected, statuses[len(statuses)-1])
}

func TestClientReconnectsAfterDrop(t *testing.T) {
	var dials atomic.Int32
	var upgrader websocket.Upgrader
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := dials.Add(1)
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)

		var req map[string]any
		require.NoError(t, conn.ReadJSON(&req))
		require.NoError(t, conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": 1, "result": 1}))

		if n == 1 {
			// Drop the first connection right after the ack.
			conn.Close()
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	reconnecting := make(chan struct{}, 4)
	connected := make(chan struct{}, 4)
	decoder := NewDecoder(testMint, 0, fixedValuer{})
	client := NewClient(
		"ws"+strings.TrimPrefix(srv.URL, "http"),
		testMint,
		decoder,
		func(domain.TradeEvent) {},
		func(s domain.StreamStatus) {
			switch s {
			case domain.StreamReconnecting:
				reconnecting <- struct{}{}
			case domain.StreamConnected:
				connected <- struct{}{}
			}
		},
	)

	done := make(chan error, 1)
	go func() { done <- client.Run(ctx) }()

	waitFor := func(ch chan struct{}, what string) {
		select {
		case <-ch:
		case <-time.After(8 * time.Second):
			t.Fatalf("timed out waiting for %s", what)
		}
	}
	waitFor(connected, "first connect")
	waitFor(reconnecting, "reconnect attempt")
	waitFor(connected, "second connect")

	cancel()
	<-done
	assert.GreaterOrEqual(t, dials.Load(), int32(2))
}
