package backend

import (
	"fmt"
	"time"

	"expenses/internal/config"
)

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// Memory backend seed directory
	DataDirectory string

	// SQLite specific
	SQLiteDBPath string

	// Postgres specific
	PostgresURL string

	// Read cache; a zero TTL disables it
	CacheTTL  time.Duration
	CacheSize int
}

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.KVBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.KVBackend)
	}

	return Config{
		Type:          backendType,
		DataDirectory: appConfig.KVDataDir,
		SQLiteDBPath:  appConfig.SQLiteDBPath,
		PostgresURL:   appConfig.PostgresURL,
		CacheTTL:      appConfig.CacheTTL,
		CacheSize:     appConfig.CacheSize,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	switch c.Type {
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return fmt.Errorf("SQLite database path is required for sqlite backend")
		}
	case PostgresBackend:
		if c.PostgresURL == "" {
			return fmt.Errorf("Postgres URL is required for postgres backend")
		}
	case MemoryBackend:
		// An empty DataDirectory means no seed files
	}

	if c.CacheTTL > 0 && c.CacheSize < 1 {
		return fmt.Errorf("cache size must be positive when cache TTL is set")
	}
	return nil
}

// GetBackendTypeStrings returns all valid backend type strings
func GetBackendTypeStrings() []string {
	return []string{MemoryBackend.String(), SQLiteBackend.String(), PostgresBackend.String()}
}
