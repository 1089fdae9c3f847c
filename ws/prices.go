package ws

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"gridServer/db"
	"gridServer/oracle"
)

// PriceMessage is pushed to the price channel for each oracle tick.
type PriceMessage struct {
	Type string           `json:"type"`
	Tick oracle.PriceTick `json:"tick"`
}

// LatestPrice returns the last relayed tick, or nil before the first one.
func (h *Hub) LatestPrice() *oracle.PriceTick {
	h.latestPriceMutex.RLock()
	defer h.latestPriceMutex.RUnlock()
	if h.latestPrice == nil {
		return nil
	}
	tick := h.latestPrice.Tick
	return &tick
}

// RelayPrices records each tick in the Redis price history and broadcasts
// it to the price channel until ticks is closed or ctx is done.
func (h *Hub) RelayPrices(ctx context.Context, ticks <-chan oracle.PriceTick) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case tick, ok := <-ticks:
			if !ok {
				return nil
			}
			h.relayPrice(ctx, tick)
		}
	}
}

func (h *Hub) relayPrice(ctx context.Context, tick oracle.PriceTick) {
	msg := &PriceMessage{Type: "price_update", Tick: tick}

	h.latestPriceMutex.Lock()
	h.latestPrice = msg
	h.latestPriceMutex.Unlock()

	encoded, err := json.Marshal(tick)
	if err != nil {
		log.Printf("❌ Failed to encode price tick: %v", err)
		return
	}

	storeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := db.PushPriceTick(storeCtx, tick.FeedID, encoded); err != nil {
		log.Printf("⚠️  Failed to store price tick: %v", err)
	}

	h.Publish(ChannelPrice, msg)
}
