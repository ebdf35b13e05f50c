package amqp

import (
	"encoding/json"
	"time"
)

// StoreEventMessage mirrors one committed store mutation. Records carries the
// changed records in the same JSON layout the store persists.
type StoreEventMessage struct {
	Kind      string          `json:"kind"`
	Key       string          `json:"key"`
	Offsets   []int           `json:"offsets,omitempty"`
	Records   json.RawMessage `json:"records,omitempty"`
	Count     int             `json:"count"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewStoreEventMessage stamps a message with the current time.
func NewStoreEventMessage(kind, key string, offsets []int, records json.RawMessage, count int) *StoreEventMessage {
	return &StoreEventMessage{
		Kind:      kind,
		Key:       key,
		Offsets:   offsets,
		Records:   records,
		Count:     count,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *StoreEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// StoreEventMessageFromJSON creates a message from JSON bytes
func StoreEventMessageFromJSON(data []byte) (*StoreEventMessage, error) {
	var msg StoreEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
