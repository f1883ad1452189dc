package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cartwheel/storefront/pkg/events"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// CartPruner drops the items an order was placed from. Items added after
// cutoff belong to the next order and stay.
type CartPruner interface {
	PruneItems(ctx context.Context, owner string, cutoff time.Time) error
}

type CacheInvalidator interface {
	Delete(ctx context.Context, owner string) error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Poller removes ordered items from a cart once the order is committed.
type Poller struct {
	carts  CartPruner
	cache  CacheInvalidator
	reader messageReader
	log    *zap.Logger
}

func NewPoller(carts CartPruner, cache CacheInvalidator, log *zap.Logger, brokers ...string) *Poller {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    events.TopicOrderEvents,
		GroupID:  "cart-service-consumer",
		MaxBytes: 10e6, // 10MB
	})
	return newPoller(carts, cache, reader, log)
}

func newPoller(carts CartPruner, cache CacheInvalidator, reader messageReader, log *zap.Logger) *Poller {
	return &Poller{
		carts:  carts,
		cache:  cache,
		reader: reader,
		log:    log,
	}
}

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
		p.log.Warn("error closing reader", zap.Error(err))
	}
}

func (p *Poller) poll(ctx context.Context) {
	m, err := p.reader.FetchMessage(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.log.Warn("error reading message", zap.Error(err))
		}
		return
	}

	if err := p.handle(ctx, m); err != nil {
		// not committed, the message is redelivered
		p.log.Error("failed to handle order event",
			zap.Int64("offset", m.Offset),
			zap.Error(err),
		)
		return
	}

	if err := p.reader.CommitMessages(ctx, m); err != nil {
		p.log.Warn("failed to commit message", zap.Int64("offset", m.Offset), zap.Error(err))
	}
}

func (p *Poller) handle(ctx context.Context, m kafka.Message) error {
	if eventType(m) != events.TypeOrderCreated {
		return nil
	}

	var evt events.OrderCreated
	if err := json.Unmarshal(m.Value, &evt); err != nil {
		// poison message, skip it
		p.log.Error("error parsing message", zap.Error(err))
		return nil
	}
	if evt.CartOwner == "" {
		p.log.Warn("order event without cart owner", zap.Int64("order_id", evt.OrderID))
		return nil
	}

	if evt.CreatedAt.IsZero() {
		p.log.Warn("order event without creation time", zap.Int64("order_id", evt.OrderID))
		return nil
	}

	if err := p.carts.PruneItems(ctx, evt.CartOwner, evt.CreatedAt); err != nil {
		return fmt.Errorf("prune cart: %w", err)
	}
	if err := p.cache.Delete(ctx, evt.CartOwner); err != nil {
		p.log.Warn("failed to delete cache", zap.String("owner", evt.CartOwner), zap.Error(err))
	}

	p.log.Info("ordered items removed from cart",
		zap.Int64("order_id", evt.OrderID),
		zap.String("owner", evt.CartOwner),
	)
	return nil
}

func eventType(m kafka.Message) string {
	for _, h := range m.Headers {
		if h.Key == events.HeaderEventType {
			return string(h.Value)
		}
	}
	return ""
}
