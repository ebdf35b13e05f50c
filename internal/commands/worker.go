package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"expenses/internal/amqp"
	"expenses/internal/cli"
	"expenses/internal/kv/sqlite"
	"expenses/internal/log"
	"expenses/internal/services"
)

func newWorkerCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Record store events from the broker into the audit table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !rt.cfg.EventsEnabled() {
				return errors.New("AMQP_URL is required for the worker")
			}
			ctx, stop := cli.GracefulShutdown(cmd.Context(), rt.logger)
			defer stop()
			return rt.work(log.NewContext(ctx, rt.logger))
		},
	}
}

func (rt *runtime) work(ctx context.Context) error {
	logger := rt.logger.WithComponent(log.ComponentWorker)

	events, closeEvents, err := rt.openEventLog()
	if err != nil {
		return err
	}
	defer closeEvents()

	client, err := amqp.NewClient(rt.cfg.AMQPURL, rt.cfg.AMQPExchange, rt.cfg.AMQPQueue)
	if err != nil {
		return fmt.Errorf("connect to AMQP: %w", err)
	}
	defer client.Close()

	recorder := services.NewAuditRecorder(events, rt.logger)
	logger.Info("Starting expenses worker",
		"queue", rt.cfg.AMQPQueue,
		"db_path", rt.cfg.SQLiteDBPath,
		log.FieldOperation, log.OpStartup)

	err = client.ConsumeStoreEvents(ctx, recorder.HandleStoreEvent)
	if errors.Is(err, context.Canceled) {
		logger.Info("Worker stopped gracefully", log.FieldOperation, log.OpShutdown)
		return nil
	}
	return err
}

// openEventLog opens the SQLite database that holds the audit table.
func (rt *runtime) openEventLog() (*sqlite.Store, func() error, error) {
	db, err := sqlite.New(rt.cfg.SQLiteDBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open event log: %w", err)
	}
	return db, db.Close, nil
}
