package services

import (
	"context"
	"fmt"

	"expenses/internal/amqp"
	"expenses/internal/kv/sqlite"
	"expenses/internal/log"
	"expenses/internal/store"
)

// EventAppender stores one audit row.
type EventAppender interface {
	AppendEvent(ctx context.Context, ev sqlite.StoredEvent) (int64, error)
}

// AuditRecorder turns consumed broker messages into audit rows.
type AuditRecorder struct {
	events EventAppender
	logger *log.Logger
}

func NewAuditRecorder(events EventAppender, logger *log.Logger) *AuditRecorder {
	return &AuditRecorder{events: events, logger: logger.WithComponent(log.ComponentWorker)}
}

// HandleStoreEvent matches the handler signature of amqp.Client.ConsumeStoreEvents.
func (r *AuditRecorder) HandleStoreEvent(ctx context.Context, msg *amqp.StoreEventMessage) error {
	ev := sqlite.StoredEvent{
		StoreKey:    msg.Key,
		Kind:        msg.Kind,
		RecordCount: msg.Count,
		Payload:     string(msg.Records),
		OccurredAt:  msg.Timestamp,
	}
	id, err := r.events.AppendEvent(ctx, ev)
	if err != nil {
		return fmt.Errorf("append %s event: %w", msg.Kind, err)
	}
	r.logger.DebugContext(ctx, "Store event recorded",
		log.FieldOperation, log.OpConsume,
		"event_id", id,
		log.FieldEventKind, msg.Kind,
		log.FieldStoreKey, msg.Key,
		log.FieldCount, msg.Count)
	return nil
}

// Observer records store events in-process, for when no broker sits between
// the store and the audit table. Failures are logged and dropped.
func (r *AuditRecorder) Observer(ctx context.Context) store.Observer {
	return store.ObserverFunc(func(e store.Event) {
		msg, err := MessageFromEvent(e)
		if err == nil {
			err = r.HandleStoreEvent(ctx, msg)
		}
		if err != nil {
			r.logger.WarnContext(ctx, "Dropping audit event",
				log.FieldEventKind, string(e.Kind),
				log.FieldError, err)
		}
	})
}
