package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"gridServer/config"
	"gridServer/game"

	"github.com/gorilla/websocket"
)

// Channels clients can subscribe to.
const (
	ChannelGrid  = "grid"
	ChannelPrice = "price"
	ChannelBets  = "bets"
)

// Clock returns unix seconds. Grid broadcasts, quotes, calldata and the
// keeper all read the same Clock.
type Clock func() int64

// SystemClock reads the wall clock.
func SystemClock() int64 {
	return time.Now().Unix()
}

type envelope struct {
	channel string
	data    []byte
}

// Hub fans out grid, price and bet events to subscribed websocket clients.
type Hub struct {
	market  game.MarketConfig
	clock   Clock
	columns int
	feedID  string

	clients      map[*ClientConnection]bool
	clientsMutex sync.RWMutex

	register   chan *ClientConnection
	unregister chan *ClientConnection
	broadcast  chan envelope
	done       chan struct{}

	latestPrice      *PriceMessage
	latestPriceMutex sync.RWMutex

	upgrader websocket.Upgrader
}

// NewHub creates a hub for market. columns is the number of visible grid
// columns broadcast on each tick.
func NewHub(market game.MarketConfig, clock Clock, columns int, feedID string) *Hub {
	if clock == nil {
		clock = SystemClock
	}
	if columns < 1 {
		columns = config.DefaultVisibleColumns
	}
	return &Hub{
		market:     market,
		clock:      clock,
		columns:    columns,
		feedID:     feedID,
		clients:    make(map[*ClientConnection]bool),
		register:   make(chan *ClientConnection),
		unregister: make(chan *ClientConnection),
		broadcast:  make(chan envelope, config.WSSendBufferSize),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.WSReadBufferSize,
			WriteBufferSize: config.WSWriteBufferSize,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Now is the hub's current time in unix seconds.
func (h *Hub) Now() int64 {
	return h.clock()
}

func (h *Hub) Market() game.MarketConfig {
	return h.market
}

func (h *Hub) Columns() int {
	return h.columns
}

func (h *Hub) FeedID() string {
	return h.feedID
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.clientsMutex.RLock()
	defer h.clientsMutex.RUnlock()
	return len(h.clients)
}

// Run is the central dispatcher. It returns nil once ctx is done, after
// closing every client.
func (h *Hub) Run(ctx context.Context) error {
	log.Println("🚀 Grid event hub started")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.clientsMutex.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.Send)
			}
			h.clientsMutex.Unlock()
			log.Println("🛑 Grid event hub stopped")
			return nil

		case client := <-h.register:
			h.clientsMutex.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.clientsMutex.Unlock()
			log.Printf("✅ Client registered: %s (Total: %d)", client.ID, total)

		case client := <-h.unregister:
			h.clientsMutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
			}
			total := len(h.clients)
			h.clientsMutex.Unlock()
			log.Printf("👋 Client unregistered: %s (Total: %d)", client.ID, total)

		case msg := <-h.broadcast:
			h.broadcastToSubscribers(msg)
		}
	}
}

// broadcastToSubscribers sends a message to all clients subscribed to its
// channel. Slow clients drop messages instead of stalling the hub.
func (h *Hub) broadcastToSubscribers(msg envelope) {
	h.clientsMutex.RLock()
	defer h.clientsMutex.RUnlock()

	for client := range h.clients {
		if !client.subscribed(msg.channel) {
			continue
		}
		select {
		case client.Send <- msg.data:
		default:
			log.Printf("⚠️  Client %s send buffer full, skipping %s message", client.ID, msg.channel)
		}
	}
}

// Publish queues message for every subscriber of channel. It never blocks.
func (h *Hub) Publish(channel string, message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("❌ Failed to marshal message for %s: %v", channel, err)
		return
	}

	select {
	case h.broadcast <- envelope{channel: channel, data: data}:
	default:
		log.Printf("⚠️  Broadcast queue full, dropping %s message", channel)
	}
}

/* =========================
   GRID
========================= */

// GridMessage is pushed to the grid channel on every tick.
type GridMessage struct {
	Type string             `json:"type"`
	Grid *game.GridSnapshot `json:"grid"`
}

// Snapshot builds the grid at the hub clock.
func (h *Hub) Snapshot(columns int) (*game.GridSnapshot, error) {
	return game.BuildGrid(h.market, h.Now(), columns)
}

// BroadcastGrid publishes the current grid to the grid channel.
func (h *Hub) BroadcastGrid() error {
	snap, err := h.Snapshot(h.columns)
	if err != nil {
		return err
	}
	h.Publish(ChannelGrid, GridMessage{Type: "grid_update", Grid: snap})
	return nil
}

// RunGridTicker broadcasts the grid every interval until ctx is done. Ticks
// with no connected clients are skipped.
func (h *Hub) RunGridTicker(ctx context.Context, interval time.Duration) error {
	log.Printf("📡 Grid ticker started (%v interval, %d columns)", interval, h.columns)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if h.ClientCount() == 0 {
				continue
			}
			if err := h.BroadcastGrid(); err != nil {
				log.Printf("❌ Grid broadcast failed: %v", err)
			}
		}
	}
}

/* =========================
   QUOTES
========================= */

// Quote is the multiplier for one visible cell at the hub clock.
type Quote struct {
	PriceBucket   int    `json:"priceBucket"`
	ColumnIndex   int    `json:"columnIndex"`
	TimeBucket    int64  `json:"timeBucket"`
	NowSeconds    int64  `json:"nowSeconds"`
	MultiplierBps int64  `json:"multiplierBps"`
	Display       string `json:"display"`
}

// Quote maps a visible column to its time bucket and prices the cell.
func (h *Hub) Quote(priceBucket, columnIndex int) (*Quote, error) {
	now := h.Now()
	earliest, err := game.EarliestBettableBucket(now, h.market.TimeBucketSeconds, h.market.LockedColumnsAhead)
	if err != nil {
		return nil, err
	}
	target, err := game.ColumnIndexToBucket(columnIndex, earliest)
	if err != nil {
		return nil, err
	}
	bps, err := game.ComputeMultiplierBps(h.market, priceBucket, target, now)
	if err != nil {
		return nil, err
	}

	return &Quote{
		PriceBucket:   priceBucket,
		ColumnIndex:   columnIndex,
		TimeBucket:    target,
		NowSeconds:    now,
		MultiplierBps: bps,
		Display:       game.FormatMultiplier(bps),
	}, nil
}

/* =========================
   BETS
========================= */

// BetMessage announces a placed or settled bet on the bets channel.
type BetMessage struct {
	Type string      `json:"type"`
	Bet  interface{} `json:"bet"`
}

// PublishBet announces a bet event, e.g. "bet_placed" or "bet_settled".
func (h *Hub) PublishBet(eventType string, bet interface{}) {
	h.Publish(ChannelBets, BetMessage{Type: eventType, Bet: bet})
}
