package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expenses/internal/core"
	"expenses/internal/kv"
	"expenses/internal/kv/memory"
)

func rec(name string) core.Record {
	return core.Record{ID: uuid.New(), Name: name, Category: core.Personal, Amount: decimal.RequireFromString("1.50")}
}

func names(recs []core.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Name
	}
	return out
}

func newStore(t *testing.T, backend kv.Store, opts ...Option) *Store {
	t.Helper()
	s, err := New(context.Background(), backend, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

type flakyKV struct {
	kv.Store
	mu     sync.Mutex
	setErr   error
	setDelay time.Duration
	sets     int
}

func (f *flakyKV) Set(ctx context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	time.Sleep(f.setDelay)
	if f.setErr != nil {
		return f.setErr
	}
	return f.Store.Set(ctx, key, value)
}

type failingGetKV struct{ kv.Store }

func (failingGetKV) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("disk unreadable")
}

func TestLoadOnMissing(t *testing.T) {
	s := newStore(t, memory.New())
	assert.Empty(t, s.Items())
	assert.Equal(t, 0, s.Len())

	res := s.Load(context.Background())
	assert.False(t, res.Found)
	assert.NoError(t, res.Err)
}

func TestLoadOnCorrupt(t *testing.T) {
	for name, data := range map[string]string{
		"garbage":   "{{{not json",
		"empty":     "",
		"bad field": `[{"id":"x","name":"a","category":"Business","amount":1}]`,
	} {
		t.Run(name, func(t *testing.T) {
			backend := memory.New()
			require.NoError(t, backend.Set(context.Background(), DefaultKey, []byte(data)))

			s := newStore(t, backend)
			assert.Empty(t, s.Items())

			res := s.Load(context.Background())
			assert.True(t, res.Found)
			assert.ErrorIs(t, res.Err, core.ErrDecode)
		})
	}
}

func TestLoadOnUnreadableBackend(t *testing.T) {
	s := newStore(t, failingGetKV{memory.New()})
	assert.Empty(t, s.Items())
	assert.Error(t, s.Load(context.Background()).Err)
}

func TestAddPreservesOrder(t *testing.T) {
	s := newStore(t, memory.New())
	r1, r2 := rec("R1"), rec("R2")
	require.NoError(t, s.Add(context.Background(), r1))
	require.NoError(t, s.Add(context.Background(), r2))

	items := s.Items()
	require.Len(t, items, 2)
	assert.True(t, items[0].Equal(r1))
	assert.True(t, items[1].Equal(r2))
}

func TestAddAllowsDuplicates(t *testing.T) {
	s := newStore(t, memory.New())
	r := rec("Coffee")
	dup := r
	dup.ID = uuid.New()
	require.NoError(t, s.Add(context.Background(), r))
	require.NoError(t, s.Add(context.Background(), dup))
	assert.Equal(t, []string{"Coffee", "Coffee"}, names(s.Items()))
}

func TestAddRejectsInvalidRecord(t *testing.T) {
	s := newStore(t, memory.New())
	bad := rec("x")
	bad.Category = "Travel"
	assert.ErrorIs(t, s.Add(context.Background(), bad), core.ErrInvalidCategory)
	assert.Equal(t, 0, s.Len())
}

func TestRemoveAtIsAtomicAndOrderStable(t *testing.T) {
	s := newStore(t, memory.New())
	for _, n := range []string{"A", "B", "C", "D"} {
		require.NoError(t, s.Add(context.Background(), rec(n)))
	}

	require.NoError(t, s.RemoveAt(context.Background(), 3, 1))
	assert.Equal(t, []string{"A", "C"}, names(s.Items()))
}

func TestRemoveAtCollapsesDuplicateOffsets(t *testing.T) {
	s := newStore(t, memory.New())
	for _, n := range []string{"A", "B", "C"} {
		require.NoError(t, s.Add(context.Background(), rec(n)))
	}
	require.NoError(t, s.RemoveAt(context.Background(), 0, 0))
	assert.Equal(t, []string{"B", "C"}, names(s.Items()))
}

func TestRemoveAtOutOfRange(t *testing.T) {
	s := newStore(t, memory.New())
	for _, n := range []string{"A", "B"} {
		require.NoError(t, s.Add(context.Background(), rec(n)))
	}

	var events int
	s.Subscribe(ObserverFunc(func(Event) { events++ }))

	for _, offsets := range [][]int{{2}, {-1}, {0, 5}} {
		err := s.RemoveAt(context.Background(), offsets...)
		assert.ErrorIs(t, err, ErrOutOfRange, "offsets %v", offsets)
	}
	assert.Equal(t, []string{"A", "B"}, names(s.Items()), "invalid removal must not touch the sequence")
	assert.Equal(t, 0, events)
}

func TestRemoveAtStrictPanics(t *testing.T) {
	s := newStore(t, memory.New(), WithStrictOffsets(true))
	require.NoError(t, s.Add(context.Background(), rec("A")))
	assert.Panics(t, func() { _ = s.RemoveAt(context.Background(), 1) })
	assert.Equal(t, 1, s.Len())
}

func TestRemoveAtNoOffsetsIsNoop(t *testing.T) {
	s := newStore(t, memory.New())
	var events int
	s.Subscribe(ObserverFunc(func(Event) { events++ }))
	require.NoError(t, s.RemoveAt(context.Background()))
	assert.Equal(t, 0, events)
}

func TestPersistenceFollowsMutation(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	s := newStore(t, backend)

	a, b, c := rec("A"), rec("B"), rec("C")
	for _, r := range []core.Record{a, b, c} {
		require.NoError(t, s.Add(ctx, r))
	}
	reloaded := newStore(t, backend)
	assert.Equal(t, []string{"A", "B", "C"}, names(reloaded.Items()))

	require.NoError(t, s.RemoveAt(ctx, 1))
	reloaded = newStore(t, backend)
	items := reloaded.Items()
	require.Len(t, items, 2)
	assert.True(t, items[0].Equal(a))
	assert.True(t, items[1].Equal(c))
}

func TestCustomKey(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	s := newStore(t, backend, WithKey("Trips"))
	require.NoError(t, s.Add(ctx, rec("A")))
	assert.Equal(t, "Trips", s.Key())

	_, err := backend.Get(ctx, DefaultKey)
	assert.ErrorIs(t, err, kv.ErrNotFound)
	_, err = backend.Get(ctx, "Trips")
	assert.NoError(t, err)

	_, err = New(ctx, backend, WithKey(""))
	assert.Error(t, err)
}

func TestWriteFailureIsSilentButObservable(t *testing.T) {
	ctx := context.Background()
	backend := &flakyKV{Store: memory.New(), setErr: errors.New("quota exceeded")}
	var hooked []error
	s := newStore(t, backend, WithPersistErrorHandler(func(err error) { hooked = append(hooked, err) }))

	require.NoError(t, s.Add(ctx, rec("A")), "write failure must not fail the mutation")
	assert.Equal(t, 1, s.Len(), "memory stays authoritative")
	require.Len(t, hooked, 1)
	assert.EqualError(t, hooked[0], "quota exceeded")
	assert.Equal(t, 1, backend.sets, "no retries")

	assert.Error(t, s.Persist(ctx))
}

func TestObserverFiresOncePerMutationAfterCommit(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, memory.New())

	var got []Event
	var lens []int
	unsubscribe := s.Subscribe(ObserverFunc(func(e Event) {
		got = append(got, e)
		lens = append(lens, s.Len())
	}))

	require.NoError(t, s.Add(ctx, rec("A")))
	require.NoError(t, s.Add(ctx, rec("B")))
	require.NoError(t, s.RemoveAt(ctx, 0))

	require.Len(t, got, 3)
	assert.Equal(t, []int{1, 2, 1}, lens, "observer sees committed state")

	assert.Equal(t, EventAdded, got[0].Kind)
	assert.Equal(t, []int{0}, got[0].Offsets)
	assert.Equal(t, EventAdded, got[1].Kind)
	assert.Equal(t, []int{1}, got[1].Offsets)
	assert.Equal(t, EventRemoved, got[2].Kind)
	assert.Equal(t, []string{"A"}, names(got[2].Changed))
	assert.Equal(t, []string{"B"}, names(got[2].Records))

	unsubscribe()
	unsubscribe()
	require.NoError(t, s.Add(ctx, rec("C")))
	assert.Len(t, got, 3)
	assert.Equal(t, 0, s.Observers())
}

func TestObserverOrderAndLoadEvent(t *testing.T) {
	s := newStore(t, memory.New())
	var calls []string
	s.Subscribe(ObserverFunc(func(Event) { calls = append(calls, "first") }))
	s.Subscribe(ObserverFunc(func(e Event) { calls = append(calls, "second:"+string(e.Kind)) }))

	s.Load(context.Background())
	assert.Equal(t, []string{"first", "second:loaded"}, calls)
}

func TestEventRecordsAreCopies(t *testing.T) {
	s := newStore(t, memory.New())
	s.Subscribe(ObserverFunc(func(e Event) {
		e.Records[0].Name = "mutated"
	}))
	require.NoError(t, s.Add(context.Background(), rec("A")))
	assert.Equal(t, "A", s.Items()[0].Name)
}

func TestAsyncPersistKeepsOrder(t *testing.T) {
	ctx := context.Background()
	backend := &flakyKV{Store: memory.New()}
	s := newStore(t, backend, WithAsyncPersist(2))

	var want []string
	for i := 0; i < 20; i++ {
		r := rec(string(rune('a' + i)))
		want = append(want, r.Name)
		require.NoError(t, s.Add(ctx, r))
	}
	require.NoError(t, s.RemoveAt(ctx, 0, 19))
	want = want[1:19]
	require.NoError(t, s.Flush(ctx))

	assert.Equal(t, 21, backend.sets)
	reloaded := newStore(t, backend.Store)
	assert.Equal(t, want, names(reloaded.Items()))
}

func TestAsyncPersistReloadSeesQueuedWrites(t *testing.T) {
	ctx := context.Background()
	backend := &flakyKV{Store: memory.New(), setDelay: 20 * time.Millisecond}
	s := newStore(t, backend, WithAsyncPersist(8))

	require.NoError(t, s.Add(ctx, rec("A")))
	require.NoError(t, s.Add(ctx, rec("B")))
	res := s.Load(ctx)
	require.NoError(t, res.Err)
	assert.True(t, res.Found)
	assert.Equal(t, []string{"A", "B"}, names(s.Items()))

	require.NoError(t, s.Add(ctx, rec("C")))
	require.NoError(t, s.Flush(ctx))
	reloaded := newStore(t, backend.Store)
	assert.Equal(t, []string{"A", "B", "C"}, names(reloaded.Items()))
}

func TestLoadKeepsStateWhenDrainIsCancelled(t *testing.T) {
	backend := &flakyKV{Store: memory.New(), setDelay: 50 * time.Millisecond}
	s := newStore(t, backend, WithAsyncPersist(8))
	require.NoError(t, s.Add(context.Background(), rec("A")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := s.Load(ctx)
	require.ErrorIs(t, res.Err, context.Canceled)
	assert.Equal(t, []string{"A"}, names(s.Items()))
	require.NoError(t, s.Flush(context.Background()))
}

func TestAsyncPersistReportsErrors(t *testing.T) {
	ctx := context.Background()
	backend := &flakyKV{Store: memory.New(), setErr: errors.New("offline")}
	errs := make(chan error, 1)
	s := newStore(t, backend, WithAsyncPersist(4), WithPersistErrorHandler(func(err error) { errs <- err }))

	require.NoError(t, s.Add(ctx, rec("A")))
	require.NoError(t, s.Close(ctx))
	err := <-errs
	assert.ErrorContains(t, err, "offline")
}

func TestConcurrentMutationsAreSerialized(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, memory.New())
	var mu sync.Mutex
	var sizes []int
	s.Subscribe(ObserverFunc(func(e Event) {
		mu.Lock()
		sizes = append(sizes, len(e.Records))
		mu.Unlock()
	}))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Add(ctx, rec("x"))
		}()
	}
	wg.Wait()

	require.Len(t, sizes, 16)
	for i, n := range sizes {
		assert.Equal(t, i+1, n)
	}
}

func TestTotal(t *testing.T) {
	s := newStore(t, memory.New())
	require.NoError(t, s.Add(context.Background(), rec("A")))
	require.NoError(t, s.Add(context.Background(), rec("B")))
	assert.True(t, s.Total().Equal(decimal.NewFromInt(3)))
}
