package publisher

import (
	"context"
	"time"

	"github.com/cartwheel/storefront/orders-service/internal/repository"
	"github.com/cartwheel/storefront/pkg/events"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	batchSize       = 100
	processedMaxAge = 7 * 24 * time.Hour
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// OutboxPoller relays committed outbox rows to Kafka and periodically drops
// rows that were published long ago.
type OutboxPoller struct {
	eventTick time.Duration
	purgeTick time.Duration
	repo      repository.OutboxRepository
	writer    messageWriter
	log       *zap.Logger
}

func NewOutboxPoller(repo repository.OutboxRepository, log *zap.Logger, brokers ...string) *OutboxPoller {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  events.TopicOrderEvents,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	return newOutboxPoller(repo, w, log)
}

func newOutboxPoller(repo repository.OutboxRepository, w messageWriter, log *zap.Logger) *OutboxPoller {
	return &OutboxPoller{
		eventTick: time.Second,
		purgeTick: time.Hour,
		repo:      repo,
		writer:    w,
		log:       log.Named("outbox"),
	}
}

func (p *OutboxPoller) Run(ctx context.Context) {
	eventTicker := time.NewTicker(p.eventTick)
	purgeTicker := time.NewTicker(p.purgeTick)
	defer eventTicker.Stop()
	defer purgeTicker.Stop()
	for {
		select {
		case <-eventTicker.C:
			p.processUnpublishedEvents(ctx)
		case <-purgeTicker.C:
			p.purgeProcessedEvents(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *OutboxPoller) Close() error {
	return p.writer.Close()
}

func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) {
	pending, err := p.repo.GetUnprocessedEvents(ctx, batchSize)
	if err != nil {
		p.log.Error("failed to fetch outbox events", zap.Error(err))
		return
	}

	for _, event := range pending {
		// stop at the first failure so a later event for the same order
		// never overtakes an earlier one
		if err := p.publish(ctx, event); err != nil {
			p.log.Warn("failed to publish event", zap.Int64("event_id", event.ID), zap.Error(err))
			return
		}

		if err := p.repo.MarkEventAsProcessed(ctx, event.ID); err != nil {
			p.log.Error("failed to mark event as processed", zap.Int64("event_id", event.ID), zap.Error(err))
			return
		}
	}
}

func (p *OutboxPoller) purgeProcessedEvents(ctx context.Context) {
	n, err := p.repo.PurgeProcessedEvents(ctx, processedMaxAge)
	if err != nil {
		p.log.Error("failed to purge outbox events", zap.Error(err))
		return
	}
	if n > 0 {
		p.log.Info("purged outbox events", zap.Int64("count", n))
	}
}

func (p *OutboxPoller) publish(ctx context.Context, event *repository.OutboxEvent) error {
	msg := kafka.Message{
		Key:   []byte(event.AggregateID), // order id keeps one order on one partition
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: events.HeaderEventType, Value: []byte(event.EventType)},
		},
	}
	return p.writer.WriteMessages(ctx, msg)
}
