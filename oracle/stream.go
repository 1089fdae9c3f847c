package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

// PriceTick is one oracle price update.
type PriceTick struct {
	FeedID      string          `json:"feedId"`
	Price       decimal.Decimal `json:"price"`
	Conf        decimal.Decimal `json:"conf"`
	PublishTime int64           `json:"publishTime"`
}

type subscribeMessage struct {
	Type string   `json:"type"`
	IDs  []string `json:"ids"`
}

type rawPrice struct {
	Price       string `json:"price"`
	Conf        string `json:"conf"`
	Expo        int32  `json:"expo"`
	PublishTime int64  `json:"publish_time"`
}

type streamMessage struct {
	Type      string `json:"type"`
	Status    string `json:"status,omitempty"`
	Error     string `json:"error,omitempty"`
	PriceFeed *struct {
		ID    string   `json:"id"`
		Price rawPrice `json:"price"`
	} `json:"price_feed,omitempty"`
}

// NormalizeFeedID lowercases a feed id and strips the 0x prefix, the form the
// stream echoes back.
func NormalizeFeedID(id string) string {
	return strings.TrimPrefix(strings.ToLower(id), "0x")
}

// DecodeMessage parses one stream frame. ok is false for frames that carry no
// price, such as subscription acknowledgements.
func DecodeMessage(raw []byte) (tick PriceTick, ok bool, err error) {
	var msg streamMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return PriceTick{}, false, fmt.Errorf("failed to parse oracle message: %w", err)
	}

	switch msg.Type {
	case "price_update":
	case "response":
		if msg.Status == "error" {
			return PriceTick{}, false, fmt.Errorf("oracle rejected subscription: %s", msg.Error)
		}
		return PriceTick{}, false, nil
	default:
		return PriceTick{}, false, nil
	}

	if msg.PriceFeed == nil {
		return PriceTick{}, false, fmt.Errorf("price_update without price_feed")
	}

	p := msg.PriceFeed.Price
	price, err := decimal.NewFromString(p.Price)
	if err != nil {
		return PriceTick{}, false, fmt.Errorf("bad price %q: %w", p.Price, err)
	}
	conf, err := decimal.NewFromString(p.Conf)
	if err != nil {
		return PriceTick{}, false, fmt.Errorf("bad conf %q: %w", p.Conf, err)
	}

	return PriceTick{
		FeedID:      NormalizeFeedID(msg.PriceFeed.ID),
		Price:       price.Shift(p.Expo),
		Conf:        conf.Shift(p.Expo),
		PublishTime: p.PublishTime,
	}, true, nil
}

// Stream relays price updates from an oracle websocket. It does not
// reconnect; the caller decides what to do when Run returns.
type Stream struct {
	url     string
	feedIDs []string
	dialer  *websocket.Dialer
}

// NewStream creates a stream for the given feeds.
func NewStream(url string, feedIDs ...string) *Stream {
	return &Stream{
		url:     url,
		feedIDs: feedIDs,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// Run subscribes and delivers ticks to out until ctx is done or the
// connection fails.
func (s *Stream) Run(ctx context.Context, out chan<- PriceTick) error {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial oracle %s: %w", s.url, err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(subscribeMessage{Type: "subscribe", IDs: s.feedIDs}); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	log.Printf("📈 Oracle stream connected - %s (%d feeds)", s.url, len(s.feedIDs))

	// Unblock ReadMessage on shutdown.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("oracle read failed: %w", err)
		}

		tick, ok, err := DecodeMessage(raw)
		if err != nil {
			log.Printf("⚠️  %v", err)
			continue
		}
		if !ok {
			continue
		}

		select {
		case out <- tick:
		case <-ctx.Done():
			return nil
		}
	}
}
