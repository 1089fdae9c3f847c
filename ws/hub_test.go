package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gridServer/game"
	"gridServer/oracle"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMarket() game.MarketConfig {
	return game.MarketConfig{
		NumPriceBuckets:    21,
		MidPriceBucket:     10,
		TimeBucketSeconds:  10,
		LockedColumnsAhead: 1,
		MinBetSize:         1000,
		MaxBetSize:         1_000_000,
	}
}

func fixedClock(now int64) Clock {
	return func() int64 { return now }
}

func startHub(t *testing.T, now int64) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(testMarket(), fixedClock(now), 4, "feed")

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msgType string, data map[string]interface{}) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(ClientMessage{Type: msgType, Data: data}))
}

func readType(t *testing.T, conn *websocket.Conn) (string, []byte) {
	t.Helper()
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var head struct {
		Type string `json:"type"`
	}
	require.NoError(t, json.Unmarshal(raw, &head))
	return head.Type, raw
}

func TestQuoteUsesHubClock(t *testing.T) {
	hub := NewHub(testMarket(), fixedClock(1000), 4, "feed")

	q, err := hub.Quote(10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(102), q.TimeBucket)
	assert.Equal(t, int64(1000), q.NowSeconds)
	assert.Equal(t, int64(10_500), q.MultiplierBps)
	assert.Equal(t, "1.05x", q.Display)

	q, err = hub.Quote(12, 0)
	require.NoError(t, err)
	assert.Equal(t, "1.17x", q.Display)
}

func TestQuoteRejectsInvalidCells(t *testing.T) {
	hub := NewHub(testMarket(), fixedClock(1000), 4, "feed")

	_, err := hub.Quote(21, 0)
	assert.ErrorIs(t, err, game.ErrInvalidCoordinate)

	_, err = hub.Quote(10, -1)
	assert.ErrorIs(t, err, game.ErrInvalidCoordinate)
}

func TestSubscribeGridSendsSnapshot(t *testing.T) {
	_, srv := startHub(t, 1000)
	conn := dial(t, srv)

	send(t, conn, "subscribe", map[string]interface{}{"channel": ChannelGrid})

	msgType, raw := readType(t, conn)
	require.Equal(t, "grid_update", msgType)

	var msg GridMessage
	require.NoError(t, json.Unmarshal(raw, &msg))
	require.NotNil(t, msg.Grid)
	assert.Equal(t, int64(100), msg.Grid.CurrentBucket)
	assert.Equal(t, int64(102), msg.Grid.EarliestBettableBucket)
	assert.Len(t, msg.Grid.Cells, 21*4)
}

func TestQuoteMessage(t *testing.T) {
	_, srv := startHub(t, 1000)
	conn := dial(t, srv)

	send(t, conn, "quote", map[string]interface{}{"priceBucket": 10, "columnIndex": 0})

	msgType, raw := readType(t, conn)
	require.Equal(t, "quote_result", msgType)

	var msg struct {
		Quote Quote `json:"quote"`
	}
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, int64(10_500), msg.Quote.MultiplierBps)
	assert.Equal(t, "1.05x", msg.Quote.Display)
}

func TestBadRequestsGetErrors(t *testing.T) {
	_, srv := startHub(t, 1000)
	conn := dial(t, srv)

	send(t, conn, "subscribe", map[string]interface{}{"channel": "crash"})
	msgType, _ := readType(t, conn)
	assert.Equal(t, "error", msgType)

	send(t, conn, "quote", map[string]interface{}{"priceBucket": 10.5, "columnIndex": 0})
	msgType, _ = readType(t, conn)
	assert.Equal(t, "error", msgType)

	send(t, conn, "quote", map[string]interface{}{"priceBucket": 99, "columnIndex": 0})
	msgType, raw := readType(t, conn)
	assert.Equal(t, "error", msgType)
	assert.Contains(t, string(raw), game.ErrInvalidCoordinate.Error())
}

func TestBroadcastOnlyReachesSubscribers(t *testing.T) {
	hub, srv := startHub(t, 1000)

	bets := dial(t, srv)
	send(t, bets, "subscribe", map[string]interface{}{"channel": ChannelBets})
	// Requests are handled in order, so the quote reply means the
	// subscription is in place.
	send(t, bets, "quote", map[string]interface{}{"priceBucket": 10, "columnIndex": 0})
	msgType, _ := readType(t, bets)
	require.Equal(t, "quote_result", msgType)

	grid := dial(t, srv)
	send(t, grid, "subscribe", map[string]interface{}{"channel": ChannelGrid})
	msgType, _ = readType(t, grid)
	require.Equal(t, "grid_update", msgType)

	hub.PublishBet("bet_placed", map[string]string{"betId": "7"})
	require.NoError(t, hub.BroadcastGrid())

	msgType, raw := readType(t, bets)
	assert.Equal(t, "bet_placed", msgType)
	assert.Contains(t, string(raw), `"betId":"7"`)

	// The grid client skips the bet and sees the next grid broadcast.
	msgType, _ = readType(t, grid)
	assert.Equal(t, "grid_update", msgType)
}

func TestSubscribePriceSendsHistory(t *testing.T) {
	_, srv := startHub(t, 1000)
	conn := dial(t, srv)

	send(t, conn, "subscribe", map[string]interface{}{"channel": ChannelPrice})
	msgType, raw := readType(t, conn)
	require.Equal(t, "price_history", msgType)
	assert.Contains(t, string(raw), `"ticks":[]`)
}

func TestRelayPricesKeepsLatest(t *testing.T) {
	hub := NewHub(testMarket(), fixedClock(1000), 4, "feed")
	assert.Nil(t, hub.LatestPrice())

	ticks := make(chan oracle.PriceTick, 2)
	ticks <- oracle.PriceTick{FeedID: "feed", Price: decimal.RequireFromString("3000.5"), PublishTime: 1}
	ticks <- oracle.PriceTick{FeedID: "feed", Price: decimal.RequireFromString("3001.25"), PublishTime: 2}
	close(ticks)

	require.NoError(t, hub.RelayPrices(context.Background(), ticks))

	latest := hub.LatestPrice()
	require.NotNil(t, latest)
	assert.Equal(t, int64(2), latest.PublishTime)
	assert.True(t, latest.Price.Equal(decimal.RequireFromString("3001.25")))
}

func TestRunClosesClientsOnShutdown(t *testing.T) {
	hub := NewHub(testMarket(), fixedClock(1000), 4, "feed")
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- hub.Run(ctx) }()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()
	conn := dial(t, srv)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 0, hub.ClientCount())

	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}
