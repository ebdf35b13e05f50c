// Package store owns the canonical, ordered list of expense records. It loads
// the list from a kv.Store on creation, writes it back after every mutation
// and tells subscribed observers about each committed change.
package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/shopspring/decimal"

	"expenses/internal/core"
	"expenses/internal/kv"
	"expenses/internal/log"
	"expenses/internal/worker"
)

// DefaultKey is the fixed key the serialized sequence lives under.
const DefaultKey = "Items"

// ErrOutOfRange is returned by RemoveAt for offsets outside the sequence.
var ErrOutOfRange = errors.New("offset out of range")

// LoadResult reports what Load found. Err is informational only: the store
// falls back to an empty sequence whatever it holds.
type LoadResult struct {
	Found bool
	Count int
	Err   error
}

type write struct {
	key  string
	data []byte
}

type Store struct {
	backend        kv.Store
	key            string
	logger         *log.Logger
	strict         bool
	onPersistError func(error)
	asyncSize      int
	writes         *worker.Queue[write]

	// mutMu serializes mutations together with their notification so that
	// observers never see two mutations interleaved.
	mutMu   sync.Mutex
	mu      sync.RWMutex
	records []core.Record

	subs subscribers
}

// Option configures a Store.
type Option func(*Store)

// WithKey overrides DefaultKey.
func WithKey(key string) Option {
	return func(s *Store) { s.key = key }
}

func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.logger = l.WithComponent(log.ComponentStore) }
}

// WithStrictOffsets makes RemoveAt panic on out-of-range offsets instead of
// returning ErrOutOfRange.
func WithStrictOffsets(strict bool) Option {
	return func(s *Store) { s.strict = strict }
}

// WithPersistErrorHandler registers a hook for encode and write failures.
// Mutations still succeed when persistence fails.
func WithPersistErrorHandler(fn func(error)) Option {
	return func(s *Store) { s.onPersistError = fn }
}

// WithAsyncPersist moves write-backs onto an ordered background queue of the
// given size. The write for a mutation is queued before the mutation returns.
func WithAsyncPersist(size int) Option {
	return func(s *Store) { s.asyncSize = size }
}

// New creates the store and loads whatever backend holds under the key.
func New(ctx context.Context, backend kv.Store, opts ...Option) (*Store, error) {
	s := &Store{
		backend: backend,
		key:     DefaultKey,
		logger:  log.FromContext(ctx).WithComponent(log.ComponentStore),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.key == "" {
		return nil, errors.New("store key cannot be empty")
	}

	if s.asyncSize > 0 {
		cfg := worker.DefaultQueueConfig("store-writes")
		cfg.Size = s.asyncSize
		cfg.OnError = s.reportPersistError
		s.writes = worker.NewQueue(s.writeHandler, cfg)
		if err := s.writes.Start(ctx); err != nil {
			return nil, fmt.Errorf("start write queue: %w", err)
		}
	}

	res := s.Load(ctx)
	s.logger.InfoContext(ctx, "Expense store ready",
		log.FieldStoreKey, s.key,
		log.FieldCount, res.Count,
		"found", res.Found,
		"async_persist", s.writes != nil)
	return s, nil
}

// Load replaces the in-memory sequence with the persisted one. A missing key
// or undecodable bytes leave the store empty.
func (s *Store) Load(ctx context.Context) LoadResult {
	s.mutMu.Lock()
	defer s.mutMu.Unlock()

	var res LoadResult
	// Queued write-backs must land before the backend is read.
	if s.writes != nil {
		if err := s.writes.Flush(ctx); err != nil && !errors.Is(err, worker.ErrNotRunning) {
			res.Err = fmt.Errorf("drain pending writes: %w", err)
			s.logger.WarnContext(ctx, "Keeping the in-memory expense list",
				log.FieldStoreKey, s.key,
				log.FieldError, res.Err)
			res.Count = s.Len()
			return res
		}
	}

	var recs []core.Record
	data, err := s.backend.Get(ctx, s.key)
	switch {
	case errors.Is(err, kv.ErrNotFound):
	case err != nil:
		res.Err = err
	default:
		res.Found = true
		recs, err = core.DecodeRecords(data)
		if err != nil {
			res.Err = err
			recs = nil
		}
	}
	if res.Err != nil {
		s.logger.DebugContext(ctx, "Starting with an empty expense list",
			log.FieldStoreKey, s.key,
			log.FieldError, res.Err)
	}
	res.Count = len(recs)

	s.mu.Lock()
	s.records = recs
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(Event{Kind: EventLoaded, Key: s.key, Records: snap})
	return res
}

// Add appends rec to the end of the sequence. Invalid records are rejected
// because they would make the persisted sequence undecodable.
func (s *Store) Add(ctx context.Context, rec core.Record) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("add record: %w", err)
	}

	s.mutMu.Lock()
	defer s.mutMu.Unlock()

	s.mu.Lock()
	s.records = append(s.records, rec)
	offset := len(s.records) - 1
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.persist(ctx, snap)
	s.logger.DebugContext(ctx, "Expense added",
		log.FieldRecordID, rec.ID.String(),
		log.FieldCategory, rec.Category.String(),
		log.FieldAmount, rec.Amount.String(),
		log.FieldCount, len(snap))

	s.notify(Event{
		Kind:    EventAdded,
		Key:     s.key,
		Offsets: []int{offset},
		Changed: []core.Record{rec},
		Records: snap,
	})
	return nil
}

// RemoveAt removes the records at the given zero-based offsets in one step.
// Offsets refer to the sequence as it was before the call; duplicates are
// ignored. If any offset is out of range nothing is removed.
func (s *Store) RemoveAt(ctx context.Context, offsets ...int) error {
	if len(offsets) == 0 {
		return nil
	}

	s.mutMu.Lock()
	defer s.mutMu.Unlock()

	s.mu.Lock()
	n := len(s.records)
	sorted := slices.Clone(offsets)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	for _, o := range sorted {
		if o < 0 || o >= n {
			s.mu.Unlock()
			if s.strict {
				panic(fmt.Sprintf("store: remove offset %d out of range [0,%d)", o, n))
			}
			return fmt.Errorf("%w: %d not in [0,%d)", ErrOutOfRange, o, n)
		}
	}

	removed := make([]core.Record, 0, len(sorted))
	kept := make([]core.Record, 0, n-len(sorted))
	next := 0
	for i, r := range s.records {
		if next < len(sorted) && sorted[next] == i {
			removed = append(removed, r)
			next++
			continue
		}
		kept = append(kept, r)
	}
	s.records = kept
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.persist(ctx, snap)
	s.logger.DebugContext(ctx, "Expenses removed",
		log.FieldOffsets, sorted,
		log.FieldCount, len(snap))

	s.notify(Event{
		Kind:    EventRemoved,
		Key:     s.key,
		Offsets: sorted,
		Changed: removed,
		Records: snap,
	})
	return nil
}

// Persist writes the current sequence back under the key. Mutations call it
// implicitly; the returned error is what the optional hook also receives.
func (s *Store) Persist(ctx context.Context) error {
	s.mutMu.Lock()
	defer s.mutMu.Unlock()
	return s.persist(ctx, s.Items())
}

func (s *Store) persist(ctx context.Context, recs []core.Record) error {
	data, err := core.EncodeRecords(recs)
	if err != nil {
		s.reportPersistError(err)
		return err
	}
	if s.writes != nil {
		if err := s.writes.Enqueue(write{key: s.key, data: data}); err != nil {
			s.reportPersistError(err)
			return err
		}
		return nil
	}
	if err := s.backend.Set(ctx, s.key, data); err != nil {
		s.reportPersistError(err)
		return err
	}
	return nil
}

func (s *Store) writeHandler(ctx context.Context, w write) error {
	if err := s.backend.Set(ctx, w.key, w.data); err != nil {
		return fmt.Errorf("write %q: %w", w.key, err)
	}
	return nil
}

func (s *Store) reportPersistError(err error) {
	s.logger.Warn("Persisting expenses failed",
		log.FieldStoreKey, s.key,
		log.FieldOperation, log.OpPersist,
		log.FieldError, err)
	if s.onPersistError != nil {
		s.onPersistError(err)
	}
}

// Flush waits for queued write-backs. It is a no-op for synchronous stores.
func (s *Store) Flush(ctx context.Context) error {
	if s.writes == nil {
		return nil
	}
	return s.writes.Flush(ctx)
}

// Close drains pending write-backs. The backend is owned by the caller.
func (s *Store) Close(ctx context.Context) error {
	if s.writes == nil {
		return nil
	}
	return s.writes.Stop(ctx)
}

// Subscribe registers o and returns a function that unsubscribes it.
func (s *Store) Subscribe(o Observer) func() {
	return s.subs.add(o)
}

// Observers returns the number of current subscribers.
func (s *Store) Observers() int {
	return s.subs.count()
}

func (s *Store) notify(e Event) {
	for _, o := range s.subs.snapshot() {
		o.OnStoreEvent(e)
	}
}

// Items returns a copy of the sequence in display order.
func (s *Store) Items() []core.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() []core.Record {
	return slices.Clone(s.records)
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Total sums all amounts.
func (s *Store) Total() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return core.Total(s.records)
}

// Key returns the key the sequence is persisted under.
func (s *Store) Key() string {
	return s.key
}
