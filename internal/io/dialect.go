package io

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"moviemigrate/internal/etlerr"
)

// Dialect covers the SQL differences between target stores.
type Dialect interface {
	Name() string
	// Placeholder returns the bind marker for the n-th (1-based) argument.
	Placeholder(n int) string
	// QuoteIdent quotes a column or table identifier.
	QuoteIdent(name string) string
	// Table returns the quoted, schema-qualified name of table.
	Table(name string) string
}

// PostgresDialect uses $n placeholders and qualifies tables with Schema.
type PostgresDialect struct {
	Schema string
}

func (PostgresDialect) Name() string               { return "postgres" }
func (PostgresDialect) Placeholder(n int) string   { return "$" + strconv.Itoa(n) }
func (PostgresDialect) QuoteIdent(s string) string { return quoteIdent(s) }

func (d PostgresDialect) Table(name string) string {
	if d.Schema == "" {
		return quoteIdent(name)
	}
	return quoteIdent(d.Schema) + "." + quoteIdent(name)
}

// SQLiteDialect uses ? placeholders and unqualified tables.
type SQLiteDialect struct{}

func (SQLiteDialect) Name() string               { return "sqlite" }
func (SQLiteDialect) Placeholder(int) string     { return "?" }
func (SQLiteDialect) QuoteIdent(s string) string { return quoteIdent(s) }
func (SQLiteDialect) Table(name string) string   { return quoteIdent(name) }

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// lookupQuery builds SELECT columns FROM table WHERE id IN (...).
func lookupQuery(d Dialect, table string, columns []string, n int) string {
	var b strings.Builder
	b.WriteString("SELECT ")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.QuoteIdent(c))
	}
	b.WriteString(" FROM ")
	b.WriteString(d.Table(table))
	b.WriteString(" WHERE ")
	b.WriteString(d.QuoteIdent("id"))
	b.WriteString(" IN (")
	for i := 1; i <= n; i++ {
		if i > 1 {
			b.WriteString(", ")
		}
		b.WriteString(d.Placeholder(i))
	}
	b.WriteString(")")
	return b.String()
}

// withTimeout derives a context bounded by d; d <= 0 means no bound.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// classify maps a failed call to the error taxonomy: a deadline hit by the
// call's own timeout becomes ErrTimeout, cancellation of the parent context
// stays a cancellation, anything else is wrapped with op.
func classify(parent, callCtx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if parent.Err() != nil {
		return fmt.Errorf("%s: %w: %w", op, etlerr.ErrCanceled, parent.Err())
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) || errors.Is(err, etlerr.ErrTimeout) {
		return etlerr.Timeout(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
