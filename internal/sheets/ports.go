package sheets

import "context"

// Ports for outbound adapters.
type (
	// RowWriter replaces every mirrored row of a sheet in one call.
	RowWriter interface {
		ReplaceRows(ctx context.Context, rows [][]string) error
	}
)
