package sheets_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expenses/internal/core"
	"expenses/internal/kv/memory"
	"expenses/internal/log"
	"expenses/internal/sheets"
	sheetmem "expenses/internal/sheets/memory"
	"expenses/internal/store"
)

type brokenSheet struct{ calls int }

func (b *brokenSheet) ReplaceRows(context.Context, [][]string) error {
	b.calls++
	return errors.New("permission denied")
}

func TestMirrorFollowsStore(t *testing.T) {
	ctx := context.Background()
	sheet := sheetmem.New()
	m := sheets.NewMirror(sheet, log.Discard())
	require.NoError(t, m.Start(ctx))
	defer m.Stop(ctx)

	s, err := store.New(ctx, memory.New())
	require.NoError(t, err)
	defer s.Subscribe(m)()

	taxi, err := core.NewRecord("Taxi", core.Business, decimal.RequireFromString("12.5"))
	require.NoError(t, err)
	rent, err := core.NewRecord("Rent", core.Personal, decimal.RequireFromString("900"))
	require.NoError(t, err)

	require.NoError(t, s.Add(ctx, taxi))
	require.NoError(t, s.Add(ctx, rent))
	require.NoError(t, s.RemoveAt(ctx, 0))
	require.NoError(t, m.Flush(ctx))

	assert.Equal(t, 3, sheet.Writes())
	assert.Equal(t, [][]string{
		sheets.Header,
		{rent.ID.String(), "Rent", "Personal", "900.00"},
	}, sheet.Rows())
}

func TestMirrorErrorsDoNotStopQueue(t *testing.T) {
	ctx := context.Background()
	broken := &brokenSheet{}
	m := sheets.NewMirror(broken, log.Discard())
	require.NoError(t, m.Start(ctx))

	m.OnStoreEvent(store.Event{Kind: store.EventAdded})
	m.OnStoreEvent(store.Event{Kind: store.EventRemoved})
	require.NoError(t, m.Stop(ctx))
	assert.Equal(t, 2, broken.calls)
}

func TestRowsEmpty(t *testing.T) {
	assert.Equal(t, [][]string{sheets.Header}, sheets.Rows(nil))
}
