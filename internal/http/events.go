package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"expenses/internal/core"
	"expenses/internal/log"
	"expenses/internal/store"
)

// streamBuffer is how many events a slow client may lag behind before
// events are dropped for it.
const streamBuffer = 16

type streamEvent struct {
	Kind    string `json:"kind"`
	Offsets []int  `json:"offsets,omitempty"`
	Count   int    `json:"count"`
	Total   string `json:"total"`
}

// Broadcaster is a store observer that fans events out to SSE clients.
type Broadcaster struct {
	mu      sync.Mutex
	clients map[chan streamEvent]struct{}
	closed  bool
	logger  *log.Logger
}

func NewBroadcaster(logger *log.Logger) *Broadcaster {
	return &Broadcaster{
		clients: make(map[chan streamEvent]struct{}),
		logger:  logger.WithComponent(log.ComponentHTTP),
	}
}

// OnStoreEvent implements store.Observer. It never blocks the store.
func (b *Broadcaster) OnStoreEvent(e store.Event) {
	ev := streamEvent{
		Kind:    string(e.Kind),
		Offsets: e.Offsets,
		Count:   len(e.Records),
		Total:   core.FormatAmount(core.Total(e.Records)),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.clients {
		select {
		case ch <- ev:
		default:
			b.logger.Warn("Dropping event for slow stream client", log.FieldEventKind, ev.Kind)
		}
	}
}

func (b *Broadcaster) subscribe() (chan streamEvent, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, false
	}
	ch := make(chan streamEvent, streamBuffer)
	b.clients[ch] = struct{}{}
	return ch, true
}

func (b *Broadcaster) unsubscribe(ch chan streamEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[ch]; ok {
		delete(b.clients, ch)
		close(ch)
	}
}

// Clients returns the number of connected streams.
func (b *Broadcaster) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Close ends every open stream.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.clients {
		delete(b.clients, ch)
		close(ch)
	}
}

// ServeHTTP streams events as text/event-stream until the client goes away.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		InternalServerError("streaming unsupported").Write(w)
		return
	}
	ch, ok := b.subscribe()
	if !ok {
		ErrorResponse(http.StatusServiceUnavailable, "shutting down").Write(w)
		return
	}
	defer b.unsubscribe(ch)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
