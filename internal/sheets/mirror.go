// Package sheets keeps a spreadsheet in step with the expense store.
package sheets

import (
	"context"
	"fmt"

	"expenses/internal/core"
	"expenses/internal/log"
	"expenses/internal/store"
	"expenses/internal/worker"
)

// Header is the first mirrored row.
var Header = []string{"ID", "Name", "Category", "Amount"}

// Mirror is a store observer that rewrites the sheet with the whole sequence
// after each committed change. Writes happen on a background queue.
type Mirror struct {
	writer RowWriter
	queue  *worker.Queue[[]core.Record]
	logger *log.Logger
}

func NewMirror(writer RowWriter, logger *log.Logger) *Mirror {
	m := &Mirror{writer: writer, logger: logger.WithComponent(log.ComponentSheets)}
	cfg := worker.DefaultQueueConfig("sheet-mirror")
	cfg.OnError = func(err error) {
		m.logger.Warn("Mirroring expenses failed",
			log.FieldOperation, log.OpMirror,
			log.FieldError, err)
	}
	m.queue = worker.NewQueue(m.write, cfg)
	return m
}

func (m *Mirror) Start(ctx context.Context) error {
	return m.queue.Start(ctx)
}

func (m *Mirror) Stop(ctx context.Context) error {
	return m.queue.Stop(ctx)
}

func (m *Mirror) Flush(ctx context.Context) error {
	return m.queue.Flush(ctx)
}

// OnStoreEvent implements store.Observer.
func (m *Mirror) OnStoreEvent(e store.Event) {
	if err := m.queue.Enqueue(e.Records); err != nil {
		m.logger.Warn("Skipping sheet mirror", log.FieldEventKind, string(e.Kind), log.FieldError, err)
	}
}

func (m *Mirror) write(ctx context.Context, recs []core.Record) error {
	if err := m.writer.ReplaceRows(ctx, Rows(recs)); err != nil {
		return fmt.Errorf("replace %d rows: %w", len(recs), err)
	}
	m.logger.DebugContext(ctx, "Sheet mirrored", log.FieldCount, len(recs))
	return nil
}

// Rows renders recs below Header.
func Rows(recs []core.Record) [][]string {
	rows := make([][]string, 0, len(recs)+1)
	rows = append(rows, Header)
	for _, r := range recs {
		rows = append(rows, []string{
			r.ID.String(),
			r.Name,
			r.Category.String(),
			core.FormatAmount(r.Amount),
		})
	}
	return rows
}
