package cache

import (
	"container/list"
	"sync"
	"time"
)

// Blobs holds byte values under string keys. It keeps at most maxEntries
// values, evicting the least recently read, and forgets values older than ttl.
// Values are copied on the way in and on the way out.
type Blobs struct {
	mu         sync.Mutex
	maxEntries int
	ttl        time.Duration
	now        func() time.Time

	entries map[string]*list.Element
	order   *list.List // front is most recently used

	bytes     int
	hits      int64
	misses    int64
	evictions int64
}

// Stats is a point-in-time view of a Blobs cache.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Entries   int
	Bytes     int
}

type blob struct {
	key     string
	value   []byte
	expires time.Time
}

var _ Cleaner = (*Blobs)(nil)

func NewBlobs(maxEntries int, ttl time.Duration) *Blobs {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &Blobs{
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
		entries:    make(map[string]*list.Element),
		order:      list.New(),
	}
}

// Get returns a copy of the value under key.
func (b *Blobs) Get(key string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	el, ok := b.entries[key]
	if !ok {
		b.misses++
		return nil, false
	}
	e := el.Value.(*blob)
	if !b.now().Before(e.expires) {
		b.drop(el)
		b.misses++
		return nil, false
	}
	b.order.MoveToFront(el)
	b.hits++
	return clone(e.value), true
}

// Put stores a copy of value under key and refreshes its age.
func (b *Blobs) Put(key string, value []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := &blob{key: key, value: clone(value), expires: b.now().Add(b.ttl)}
	if el, ok := b.entries[key]; ok {
		b.bytes += len(e.value) - len(el.Value.(*blob).value)
		el.Value = e
		b.order.MoveToFront(el)
		return
	}

	b.entries[key] = b.order.PushFront(e)
	b.bytes += len(e.value)
	for b.order.Len() > b.maxEntries {
		b.drop(b.order.Back())
		b.evictions++
	}
}

// Forget removes key if present.
func (b *Blobs) Forget(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if el, ok := b.entries[key]; ok {
		b.drop(el)
	}
}

// CleanExpired drops every expired value and returns how many went.
func (b *Blobs) CleanExpired() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	n := 0
	// Walk from the back so dropping does not disturb the iteration.
	for el := b.order.Back(); el != nil; {
		prev := el.Prev()
		if !now.Before(el.Value.(*blob).expires) {
			b.drop(el)
			n++
		}
		el = prev
	}
	return n
}

func (b *Blobs) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Hits:      b.hits,
		Misses:    b.misses,
		Evictions: b.evictions,
		Entries:   len(b.entries),
		Bytes:     b.bytes,
	}
}

func (b *Blobs) drop(el *list.Element) {
	e := el.Value.(*blob)
	delete(b.entries, e.key)
	b.order.Remove(el)
	b.bytes -= len(e.value)
}

func clone(v []byte) []byte {
	if v == nil {
		return nil
	}
	return append([]byte{}, v...)
}
