package services

import (
	"context"
	"fmt"

	"expenses/internal/amqp"
	"expenses/internal/core"
	"expenses/internal/log"
	"expenses/internal/store"
	"expenses/internal/worker"
)

// Publisher sends store event messages to the broker.
type Publisher interface {
	PublishStoreEvent(ctx context.Context, msg *amqp.StoreEventMessage) error
}

// EventPublisher is a store observer that forwards every committed change to
// a Publisher from a background queue, in commit order.
type EventPublisher struct {
	publisher Publisher
	queue     *worker.Queue[*amqp.StoreEventMessage]
	logger    *log.Logger
}

func NewEventPublisher(publisher Publisher, logger *log.Logger) *EventPublisher {
	p := &EventPublisher{
		publisher: publisher,
		logger:    logger.WithComponent(log.ComponentAMQP),
	}
	cfg := worker.DefaultQueueConfig("store-events")
	cfg.OnError = func(err error) {
		p.logger.Warn("Publishing store event failed",
			log.FieldOperation, log.OpPublish,
			log.FieldError, err)
	}
	p.queue = worker.NewQueue(p.publish, cfg)
	return p
}

func (p *EventPublisher) Start(ctx context.Context) error {
	return p.queue.Start(ctx)
}

// Stop drains queued messages.
func (p *EventPublisher) Stop(ctx context.Context) error {
	return p.queue.Stop(ctx)
}

// Flush waits until every queued message has been handed to the publisher.
func (p *EventPublisher) Flush(ctx context.Context) error {
	return p.queue.Flush(ctx)
}

// OnStoreEvent implements store.Observer.
func (p *EventPublisher) OnStoreEvent(e store.Event) {
	msg, err := MessageFromEvent(e)
	if err != nil {
		p.logger.Warn("Dropping store event", log.FieldEventKind, string(e.Kind), log.FieldError, err)
		return
	}
	if err := p.queue.Enqueue(msg); err != nil {
		p.logger.Warn("Dropping store event", log.FieldEventKind, string(e.Kind), log.FieldError, err)
	}
}

func (p *EventPublisher) publish(ctx context.Context, msg *amqp.StoreEventMessage) error {
	if err := p.publisher.PublishStoreEvent(ctx, msg); err != nil {
		return fmt.Errorf("publish %s event: %w", msg.Kind, err)
	}
	return nil
}

// MessageFromEvent builds the broker message for e. Load events carry the
// whole sequence; add and remove events carry only the changed records.
func MessageFromEvent(e store.Event) (*amqp.StoreEventMessage, error) {
	changed := e.Changed
	if e.Kind == store.EventLoaded {
		changed = e.Records
	}
	var payload []byte
	if len(changed) > 0 {
		var err error
		payload, err = core.EncodeRecords(changed)
		if err != nil {
			return nil, err
		}
	}
	return amqp.NewStoreEventMessage(string(e.Kind), e.Key, e.Offsets, payload, len(e.Records)), nil
}
