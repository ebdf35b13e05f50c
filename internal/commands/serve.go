package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"expenses/internal/amqp"
	"expenses/internal/backend"
	"expenses/internal/cli"
	apphttp "expenses/internal/http"
	"expenses/internal/log"
	"expenses/internal/services"
	"expenses/internal/sheets"
	gsheet "expenses/internal/sheets/google"
	"expenses/internal/store"
)

func newServeCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the expense API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := cli.GracefulShutdown(cmd.Context(), rt.logger)
			defer stop()
			return rt.serve(log.NewContext(ctx, rt.logger))
		},
	}
}

// background is a store observer with its own queue.
type background interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

func (rt *runtime) serve(ctx context.Context) error {
	st, res, closeStore, err := rt.openStore(ctx)
	if err != nil {
		return err
	}

	var (
		workers  []background
		closers  []func() error
		shutdown = func() {
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rt.cfg.ShutdownTimeout)
			defer cancel()
			if err := closeStore(sctx); err != nil {
				rt.logger.Warn("Closing store", log.FieldError, err)
			}
			for _, w := range workers {
				if err := w.Stop(sctx); err != nil {
					rt.logger.Warn("Stopping background worker", log.FieldError, err)
				}
			}
			for _, c := range closers {
				_ = c()
			}
		}
	)
	defer shutdown()

	if rt.cfg.EventsEnabled() {
		client, err := amqp.NewClient(rt.cfg.AMQPURL, rt.cfg.AMQPExchange, rt.cfg.AMQPQueue)
		if err != nil {
			rt.logger.Warn("Failed to initialize AMQP client, continuing without events", log.FieldError, err)
		} else {
			closers = append(closers, client.Close)
			pub := services.NewEventPublisher(client, rt.logger)
			if err := pub.Start(ctx); err != nil {
				return err
			}
			workers = append(workers, pub)
			st.Subscribe(pub)
			rt.logger.Info("Publishing store events",
				"exchange", rt.cfg.AMQPExchange,
				"queue", rt.cfg.AMQPQueue)
		}
	}

	if !rt.cfg.EventsEnabled() {
		if events, err := backend.Events(res); err == nil {
			st.Subscribe(services.NewAuditRecorder(events, rt.logger).Observer(context.WithoutCancel(ctx)))
			rt.logger.Info("Recording store events locally", log.FieldBackend, rt.cfg.KVBackend)
		}
	}

	if rt.cfg.SheetsEnabled() {
		client, err := gsheet.NewClient(ctx, gsheet.Config{
			SpreadsheetID:   rt.cfg.GoogleSpreadsheetID,
			SheetName:       rt.cfg.GoogleSheetName,
			CredentialsJSON: rt.cfg.GoogleServiceAccountJSON,
			CredentialsFile: rt.cfg.GoogleServiceAccountFile,
		})
		if err != nil {
			rt.logger.Warn("Failed to initialize Google Sheets client, continuing without mirror", log.FieldError, err)
		} else {
			mirror := sheets.NewMirror(client, rt.logger)
			if err := mirror.Start(ctx); err != nil {
				return err
			}
			workers = append(workers, mirror)
			st.Subscribe(mirror)
			// Bring the sheet in line with what was loaded.
			mirror.OnStoreEvent(initialSnapshot(st))
		}
	}

	srv := apphttp.NewServer(":"+rt.cfg.Port, st, rt.logger, apphttp.Options{RequestsPerMinute: rt.cfg.RateLimit})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rt.logger.Info("Starting expenses server",
			"port", rt.cfg.Port,
			log.FieldBackend, rt.cfg.KVBackend,
			log.FieldStoreKey, st.Key(),
			log.FieldOperation, log.OpStartup)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rt.cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		rt.logger.Info("Server stopped gracefully", log.FieldOperation, log.OpShutdown)
		return nil
	})

	return g.Wait()
}

func initialSnapshot(st *store.Store) store.Event {
	return store.Event{Kind: store.EventLoaded, Key: st.Key(), Records: st.Items()}
}
