// Package poller consumes order events and drops cart state that checkout made
// obsolete.
package poller

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/segmentio/kafka-go"

	"github.com/fjod/go_cart/storefront/internal/cartcache"
	"github.com/fjod/go_cart/storefront/internal/logger"
)

const (
	DefaultTopic   = "order-events"
	DefaultGroupID = "storefront-consumer"

	EventOrderCompleted = "order.completed"
)

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// CartResetter clears the in-memory cart of every live session of a user.
type CartResetter interface {
	ResetUserCart(ctx context.Context, userID string) int
}

type orderEvent struct {
	Type    string `json:"type"`
	UserID  string `json:"user_id"`
	OrderID string `json:"order_id"`
}

type Poller struct {
	reader   messageReader
	cache    cartcache.CartCache
	sessions CartResetter
}

func NewPoller(cache cartcache.CartCache, sessions CartResetter, topic, groupID string, brokers ...string) *Poller {
	if topic == "" {
		topic = DefaultTopic
	}
	if groupID == "" {
		groupID = DefaultGroupID
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MaxBytes: 10e6, // 10MB
	})
	return &Poller{reader: reader, cache: cache, sessions: sessions}
}

// Run reads until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		p.poll(ctx)
	}
}

func (p *Poller) Close() {
	if err := p.reader.Close(); err != nil {
		logger.Printf(context.Background(), "error closing reader: %v", err)
	}
}

func (p *Poller) poll(ctx context.Context) {
	m, err := p.reader.ReadMessage(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			logger.Printf(ctx, "error reading message: %v", err)
		}
		return
	}
	p.handle(ctx, m)
}

func (p *Poller) handle(ctx context.Context, m kafka.Message) {
	var ev orderEvent
	if err := json.Unmarshal(m.Value, &ev); err != nil {
		logger.Printf(ctx, "error parsing message: %v", err)
		return
	}
	if ev.Type == "" {
		ev.Type = headerValue(m.Headers, "event_type")
	}
	if ev.Type != EventOrderCompleted {
		return
	}
	if ev.UserID == "" {
		logger.Printf(ctx, "missing or invalid user_id in order %s", ev.OrderID)
		return
	}

	if p.cache != nil {
		if err := p.cache.Delete(ctx, ev.UserID); err != nil {
			logger.Printf(ctx, "failed to delete cart snapshot: %v", err)
		}
	}
	n := p.sessions.ResetUserCart(ctx, ev.UserID)
	logger.Printf(ctx, "order %s completed, reset cart in %d sessions of user %s", ev.OrderID, n, ev.UserID)
}

func headerValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
