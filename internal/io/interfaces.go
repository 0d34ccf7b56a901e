package io

import (
	"context"

	"github.com/google/uuid"
)

// Row is one raw row keyed by column name, as the driver returned it.
type Row map[string]any

// RowCursor is a forward-only read over one table.
type RowCursor interface {
	// Fetch returns up to n rows. An empty result with a nil error means the
	// cursor is exhausted. Every call is bounded by the store's statement
	// timeout.
	Fetch(ctx context.Context, n int) ([]Row, error)

	// Close releases the underlying query. It is safe to call more than once.
	Close() error
}

// SourceStore is the read-only store rows are migrated from.
type SourceStore interface {
	// OpenCursor starts a full-table read of table.
	OpenCursor(ctx context.Context, table string) (RowCursor, error)
	// Count returns the number of rows in table.
	Count(ctx context.Context, table string) (int64, error)
	// Sample returns the first limit rows of table ordered by orderBy.
	Sample(ctx context.Context, table, orderBy string, limit int) ([]Row, error)
	Close() error
}

// Statement is a single parameterized statement sent to a TargetStore.
// Rows is the number of records the statement carries, for logging.
type Statement struct {
	SQL  string
	Args []any
	Rows int
}

// TargetStore is the store rows are upserted into.
type TargetStore interface {
	Dialect() Dialect
	// Exec runs stmt in its own transaction and commits it; it returns the
	// number of rows the store reports as affected.
	Exec(ctx context.Context, stmt Statement) (int64, error)
	// Count returns the number of rows in table.
	Count(ctx context.Context, table string) (int64, error)
	// Lookup returns the rows of table whose id is in ids, restricted to
	// columns. Missing ids are simply absent from the result.
	Lookup(ctx context.Context, table string, columns []string, ids []uuid.UUID) ([]Row, error)
	Close() error
}
