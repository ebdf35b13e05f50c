package store

import (
	"sync"

	"expenses/internal/core"
)

// EventKind names the mutation that produced an Event.
type EventKind string

const (
	EventLoaded  EventKind = "loaded"
	EventAdded   EventKind = "added"
	EventRemoved EventKind = "removed"
)

// Event describes one committed change. Records is a copy of the whole
// sequence after the change; Changed holds the added or removed records and
// Offsets their positions (post-insert for adds, pre-removal for removes).
type Event struct {
	Kind    EventKind
	Key     string
	Offsets []int
	Changed []core.Record
	Records []core.Record
}

// Observer receives store events synchronously, before the mutating call
// returns. Implementations must not call Add, RemoveAt, Load or Persist.
type Observer interface {
	OnStoreEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnStoreEvent(e Event) { f(e) }

type subscribers struct {
	mu   sync.Mutex
	next int
	subs map[int]Observer
	// order keeps delivery in subscription order.
	order []int
}

func (s *subscribers) add(o Observer) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs == nil {
		s.subs = map[int]Observer{}
	}
	id := s.next
	s.next++
	s.subs[id] = o
	s.order = append(s.order, id)

	var once sync.Once
	return func() {
		once.Do(func() { s.remove(id) })
	}
}

func (s *subscribers) remove(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *subscribers) snapshot() []Observer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Observer, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.subs[id])
	}
	return out
}

func (s *subscribers) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}
