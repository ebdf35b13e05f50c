package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAcker struct {
	acks, nacks, requeues int
}

func (a *fakeAcker) Ack(uint64, bool) error { a.acks++; return nil }
func (a *fakeAcker) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacks++
	if requeue {
		a.requeues++
	}
	return nil
}
func (a *fakeAcker) Reject(uint64, bool) error { return nil }

type fakeChannel struct {
	declareErr error
	publishErr error
	published  []amqp091.Publishing
	keys       []string
	deliveries chan amqp091.Delivery
	closed     bool
}

func (f *fakeChannel) ExchangeDeclare(string, string, bool, bool, bool, bool, amqp091.Table) error {
	return f.declareErr
}

func (f *fakeChannel) QueueDeclare(name string, _, _, _, _ bool, _ amqp091.Table) (amqp091.Queue, error) {
	return amqp091.Queue{Name: name}, nil
}

func (f *fakeChannel) QueueBind(string, string, string, bool, amqp091.Table) error { return nil }

func (f *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp091.Publishing) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.keys = append(f.keys, key)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Consume(string, string, bool, bool, bool, bool, amqp091.Table) (<-chan amqp091.Delivery, error) {
	return f.deliveries, nil
}

func (f *fakeChannel) Close() error { f.closed = true; return nil }

func TestSetupFailure(t *testing.T) {
	_, err := newClientWithChannel(&fakeChannel{declareErr: errors.New("access refused")}, "expenses", "store_events")
	assert.ErrorContains(t, err, "declare exchange")
}

func TestPublishStoreEvent(t *testing.T) {
	ch := &fakeChannel{}
	c, err := newClientWithChannel(ch, "expenses", "store_events")
	require.NoError(t, err)

	msg := NewStoreEventMessage("added", "Items", []int{0}, json.RawMessage(`[]`), 1)
	require.NoError(t, c.PublishStoreEvent(context.Background(), msg))

	require.Len(t, ch.published, 1)
	assert.Equal(t, "store_events", ch.keys[0])
	assert.Equal(t, "application/json", ch.published[0].ContentType)
	assert.Equal(t, "added", ch.published[0].Type)
	assert.Equal(t, amqp091.Persistent, ch.published[0].DeliveryMode)

	parsed, err := StoreEventMessageFromJSON(ch.published[0].Body)
	require.NoError(t, err)
	assert.Equal(t, "Items", parsed.Key)
	assert.Equal(t, []int{0}, parsed.Offsets)

	require.NoError(t, c.Close())
	assert.True(t, ch.closed)
}

func TestPublishRespectsContextAndErrors(t *testing.T) {
	ch := &fakeChannel{}
	c, err := newClientWithChannel(ch, "expenses", "store_events")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = c.PublishStoreEvent(ctx, NewStoreEventMessage("added", "Items", nil, nil, 0))
	assert.ErrorIs(t, err, context.Canceled)

	ch.publishErr = errors.New("channel closed")
	err = c.PublishStoreEvent(context.Background(), NewStoreEventMessage("added", "Items", nil, nil, 0))
	assert.ErrorContains(t, err, "publish message")
}

func TestConsumeStoreEvents(t *testing.T) {
	ch := &fakeChannel{deliveries: make(chan amqp091.Delivery, 4)}
	c, err := newClientWithChannel(ch, "expenses", "store_events")
	require.NoError(t, err)

	acker := &fakeAcker{}
	good, _ := NewStoreEventMessage("added", "Items", []int{0}, nil, 1).ToJSON()
	failing, _ := NewStoreEventMessage("removed", "Items", []int{0}, nil, 0).ToJSON()
	ch.deliveries <- amqp091.Delivery{Acknowledger: acker, Body: good}
	ch.deliveries <- amqp091.Delivery{Acknowledger: acker, Body: []byte("not json")}
	ch.deliveries <- amqp091.Delivery{Acknowledger: acker, Body: failing}
	close(ch.deliveries)

	var handled []string
	err = c.ConsumeStoreEvents(context.Background(), func(_ context.Context, m *StoreEventMessage) error {
		handled = append(handled, m.Kind)
		if m.Kind == "removed" {
			return errors.New("db locked")
		}
		return nil
	})
	assert.EqualError(t, err, "message channel closed")
	assert.Equal(t, []string{"added", "removed"}, handled)
	assert.Equal(t, 1, acker.acks)
	assert.Equal(t, 2, acker.nacks)
	assert.Equal(t, 1, acker.requeues)
}

func TestConsumeStopsOnCancel(t *testing.T) {
	ch := &fakeChannel{deliveries: make(chan amqp091.Delivery)}
	c, err := newClientWithChannel(ch, "expenses", "store_events")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err = c.ConsumeStoreEvents(ctx, func(context.Context, *StoreEventMessage) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStoreEventMessageJSON(t *testing.T) {
	ts := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	msg := &StoreEventMessage{Kind: "removed", Key: "Items", Offsets: []int{1, 3}, Count: 2, Timestamp: ts}
	data, err := msg.ToJSON()
	require.NoError(t, err)

	parsed, err := StoreEventMessageFromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, msg.Offsets, parsed.Offsets)
	assert.True(t, parsed.Timestamp.Equal(ts))

	_, err = StoreEventMessageFromJSON([]byte(`{"count":"two"}`))
	assert.Error(t, err)
}
