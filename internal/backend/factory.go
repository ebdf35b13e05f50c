package backend

import (
	"context"
	"errors"
	"fmt"

	"expenses/internal/cache"
	"expenses/internal/kv"
	"expenses/internal/kv/memory"
	"expenses/internal/kv/postgres"
	"expenses/internal/kv/sqlite"
	"expenses/internal/log"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		res *BackendResult
		err error
	)
	switch config.Type {
	case SQLiteBackend:
		res, err = f.createSQLiteBackend(config)
	case PostgresBackend:
		res, err = f.createPostgresBackend(ctx, config)
	case MemoryBackend:
		res = f.createMemoryBackend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	if config.CacheTTL > 0 {
		f.wrapWithCache(res, config)
	}
	return res, nil
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	store, err := sqlite.New(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
	}

	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)

	return &BackendResult{
		Store:   store,
		Cleanup: store.Close,
	}, nil
}

func (f *DefaultFactory) createPostgresBackend(ctx context.Context, config Config) (*BackendResult, error) {
	store, err := postgres.New(ctx, config.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Postgres store: %w", err)
	}

	f.logger.Info("Initialized Postgres backend")

	return &BackendResult{
		Store:   store,
		Cleanup: store.Close,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) *BackendResult {
	var store *memory.Store
	if config.DataDirectory == "" {
		store = memory.New()
	} else {
		store = memory.NewFromDir(config.DataDirectory)
	}

	f.logger.Info("Initialized memory backend",
		"data_directory", config.DataDirectory,
		"seeded_keys", store.Keys())

	return &BackendResult{Store: store}
}

// wrapWithCache puts a read-through LRU in front of res.Store. The cache
// manager sweeps expired entries every TTL and stops on cleanup.
func (f *DefaultFactory) wrapWithCache(res *BackendResult, config Config) {
	cached := kv.NewCached(res.Store, config.CacheSize, config.CacheTTL)

	manager := cache.NewManager(f.logger.Logger)
	manager.Register(cached.Cache())
	manager.StartCleanup(config.CacheTTL)

	inner := res.Cleanup
	res.Store = cached
	res.Cleanup = func() error {
		manager.Stop()
		if inner != nil {
			return inner()
		}
		return nil
	}

	f.logger.Info("Enabled backend read cache",
		"cache_size", config.CacheSize,
		"cache_ttl", config.CacheTTL)
}

// Events returns the audit log of a SQLite backend, unwrapping any cache.
func Events(res *BackendResult) (*sqlite.Store, error) {
	store := res.Store
	if c, ok := store.(*kv.Cached); ok {
		store = c.Backend()
	}
	if s, ok := store.(*sqlite.Store); ok {
		return s, nil
	}
	return nil, errors.New("backend does not keep an event log")
}
