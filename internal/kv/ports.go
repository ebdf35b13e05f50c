// Package kv defines the host-provided persistent byte store the expense store
// writes its serialized sequence to, plus a read-through cache wrapper.
package kv

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when nothing was ever stored under a key.
var ErrNotFound = errors.New("kv: key not found")

// Ports for outbound adapters.
type (
	// Store is a string-keyed store of opaque byte blobs.
	Store interface {
		Get(ctx context.Context, key string) ([]byte, error)
		Set(ctx context.Context, key string, value []byte) error
	}

	// Closer is implemented by backends that hold connections.
	Closer interface {
		Close() error
	}
)
