package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"gridServer/config"
	"gridServer/db"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ClientConnection represents a connected client with their subscriptions
type ClientConnection struct {
	ID            string
	Conn          *websocket.Conn
	Subscriptions map[string]bool // grid, price, bets
	mu            sync.RWMutex
	writeMutex    sync.Mutex // Protects websocket writes
	Send          chan []byte

	hub *Hub
}

// ClientMessage is a request from a client. Data carries the channel for
// subscribe/unsubscribe and priceBucket/columnIndex for quote.
type ClientMessage struct {
	Type string                 `json:"type"`
	Data map[string]interface{} `json:"data,omitempty"`
}

// writeJSON safely writes JSON to the websocket with mutex protection
func (c *ClientConnection) writeJSON(v interface{}) error {
	c.writeMutex.Lock()
	defer c.writeMutex.Unlock()
	c.Conn.SetWriteDeadline(time.Now().Add(config.WSWriteDeadline))
	return c.Conn.WriteJSON(v)
}

func (c *ClientConnection) sendError(message string) {
	if err := c.writeJSON(map[string]interface{}{
		"type":  "error",
		"error": message,
	}); err != nil {
		log.Printf("⚠️  Failed to send error to client %s: %v", c.ID, err)
	}
}

func (c *ClientConnection) subscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Subscriptions[channel]
}

// HandleWS upgrades the request and registers the client with the hub.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	log.Println("📥 WebSocket connection from:", r.RemoteAddr)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("❌ WebSocket upgrade failed:", err)
		return
	}

	client := &ClientConnection{
		ID:            uuid.NewString(),
		Conn:          conn,
		Subscriptions: make(map[string]bool),
		Send:          make(chan []byte, config.WSSendBufferSize),
		hub:           h,
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// writePump sends messages from the Send channel to the WebSocket and keeps
// the connection alive with pings.
func (c *ClientConnection) writePump() {
	ticker := time.NewTicker(config.WSPingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.writeMutex.Lock()
			c.Conn.SetWriteDeadline(time.Now().Add(config.WSWriteDeadline))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				c.writeMutex.Unlock()
				return
			}
			err := c.Conn.WriteMessage(websocket.TextMessage, message)
			c.writeMutex.Unlock()
			if err != nil {
				log.Printf("❌ Write error for client %s: %v", c.ID, err)
				return
			}

		case <-ticker.C:
			c.writeMutex.Lock()
			c.Conn.SetWriteDeadline(time.Now().Add(config.WSWriteDeadline))
			err := c.Conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMutex.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// readPump reads messages from the WebSocket and handles subscriptions/requests
func (c *ClientConnection) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(config.WSReadDeadline))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(config.WSReadDeadline))
		return nil
	})

	for {
		_, messageBytes, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("❌ Read error for client %s: %v", c.ID, err)
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			log.Printf("❌ Failed to parse message from client %s: %v", c.ID, err)
			c.sendError("malformed message")
			continue
		}

		c.handleMessage(msg)
	}
}

// handleMessage processes incoming client messages
func (c *ClientConnection) handleMessage(msg ClientMessage) {
	switch msg.Type {
	case "subscribe":
		channel, ok := channelField(msg.Data)
		if !ok {
			c.sendError("unknown channel")
			return
		}
		c.mu.Lock()
		c.Subscriptions[channel] = true
		c.mu.Unlock()
		log.Printf("📡 Client %s subscribed to: %s", c.ID, channel)

		c.sendInitialData(channel)

	case "unsubscribe":
		channel, ok := channelField(msg.Data)
		if !ok {
			c.sendError("unknown channel")
			return
		}
		c.mu.Lock()
		delete(c.Subscriptions, channel)
		c.mu.Unlock()
		log.Printf("📴 Client %s unsubscribed from: %s", c.ID, channel)

	case "quote":
		c.handleQuote(msg.Data)

	default:
		log.Printf("⚠️  Unknown message type from client %s: %s", c.ID, msg.Type)
		c.sendError(fmt.Sprintf("unknown message type %q", msg.Type))
	}
}

// sendInitialData gives a fresh subscriber the current state so it does not
// wait for the next broadcast.
func (c *ClientConnection) sendInitialData(channel string) {
	switch channel {
	case ChannelGrid:
		snap, err := c.hub.Snapshot(c.hub.Columns())
		if err != nil {
			c.sendError(err.Error())
			return
		}
		if err := c.writeJSON(GridMessage{Type: "grid_update", Grid: snap}); err != nil {
			log.Printf("⚠️  Failed to send grid to client %s: %v", c.ID, err)
		}

	case ChannelPrice:
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		history, err := db.GetPriceHistory(ctx, c.hub.FeedID(), config.PriceHistorySize)
		if err != nil {
			log.Printf("⚠️  Failed to load price history: %v", err)
			history = []json.RawMessage{}
		}
		if err := c.writeJSON(map[string]interface{}{
			"type":  "price_history",
			"ticks": history,
		}); err != nil {
			log.Printf("⚠️  Failed to send price history to client %s: %v", c.ID, err)
		} else {
			log.Printf("📨 Client %s subscribed to price - sent %d history ticks", c.ID, len(history))
		}

	case ChannelBets:
		// Live only.
	}
}

func (c *ClientConnection) handleQuote(data map[string]interface{}) {
	priceBucket, ok1 := intField(data, "priceBucket")
	columnIndex, ok2 := intField(data, "columnIndex")
	if !ok1 || !ok2 {
		c.sendError("quote requires integer priceBucket and columnIndex")
		return
	}

	quote, err := c.hub.Quote(priceBucket, columnIndex)
	if err != nil {
		c.sendError(err.Error())
		return
	}

	if err := c.writeJSON(map[string]interface{}{
		"type":  "quote_result",
		"quote": quote,
	}); err != nil {
		log.Printf("⚠️  Failed to send quote to client %s: %v", c.ID, err)
	}
}

func channelField(data map[string]interface{}) (string, bool) {
	channel, _ := data["channel"].(string)
	switch channel {
	case ChannelGrid, ChannelPrice, ChannelBets:
		return channel, true
	}
	return "", false
}

// intField reads a JSON number that must hold a whole value.
func intField(data map[string]interface{}, key string) (int, bool) {
	f, ok := data[key].(float64)
	if !ok || f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}
