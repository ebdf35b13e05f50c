package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"expenses/internal/backend"
	"expenses/internal/buildinfo"
	"expenses/internal/cli"
	"expenses/internal/config"
	"expenses/internal/log"
	"expenses/internal/store"
)

// runtime is what every subcommand needs once flags are parsed.
type runtime struct {
	cfg    *config.Config
	logger *log.Logger
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	rt := &runtime{}
	var envFile string

	rootCmd := &cobra.Command{
		Use:     "expenses",
		Short:   "Keep an ordered, persisted list of expenses",
		Version: buildinfo.String(),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return rt.init(envFile)
		},
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load (default .env)")

	rootCmd.AddCommand(
		newServeCommand(rt),
		newAddCommand(rt),
		newListCommand(rt),
		newRemoveCommand(rt),
		newHistoryCommand(rt),
		newWorkerCommand(rt),
		newVersionCommand(),
	)

	return rootCmd
}

// NewWorkerRootCommand is the entry point of the standalone worker binary.
func NewWorkerRootCommand() *cobra.Command {
	rt := &runtime{}
	var envFile string

	cmd := newWorkerCommand(rt)
	cmd.Use = "expenses-worker"
	cmd.Version = buildinfo.String()
	cmd.SilenceUsage = true
	cmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load (default .env)")
	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return rt.init(envFile)
	}
	return cmd
}

func (rt *runtime) init(envFile string) error {
	if envFile != "" {
		cli.LoadEnvFile(envFile)
	} else {
		cli.LoadEnvFile()
	}

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		return err
	}
	rt.cfg = cfg
	rt.logger = cli.SetupLogger(cfg.LogLevel)
	return nil
}

// openStore creates the configured backend and loads the store from it.
// close drains pending writes and releases the backend.
func (rt *runtime) openStore(ctx context.Context) (*store.Store, *backend.BackendResult, func(context.Context) error, error) {
	bcfg, err := backend.FromAppConfig(rt.cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	res, err := backend.NewFactory(rt.logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, nil, nil, err
	}

	opts := []store.Option{
		store.WithKey(rt.cfg.StoreKey),
		store.WithLogger(rt.logger),
		store.WithStrictOffsets(rt.cfg.StoreStrictOffsets),
	}
	if rt.cfg.StoreAsyncPersist {
		opts = append(opts, store.WithAsyncPersist(64))
	}

	st, err := store.New(log.NewContext(ctx, rt.logger), res.Store, opts...)
	if err != nil {
		_ = res.Close()
		return nil, nil, nil, err
	}

	closeFn := func(ctx context.Context) error {
		var firstErr error
		if err := st.Close(ctx); err != nil {
			firstErr = fmt.Errorf("drain store writes: %w", err)
		}
		if err := res.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close backend: %w", err)
		}
		return firstErr
	}
	return st, res, closeFn, nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), buildinfo.String())
			return err
		},
	}
}
