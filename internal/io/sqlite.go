package io

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"moviemigrate/internal/etlerr"
	"moviemigrate/internal/logging"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver
)

const sqliteBusyTimeoutMS = 5000

// sqlOpenFunc allows overriding sql.Open for testing.
var sqlOpenFunc = sql.Open

// openSQLite opens dsn and pings it. maxConns > 0 caps the pool; the
// target uses a single connection so writers are serialized, while the
// read-only source needs one connection per open cursor.
func openSQLite(ctx context.Context, dsn string, maxConns int, connectTimeout time.Duration) (*sql.DB, error) {
	db, err := sqlOpenFunc("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
	}

	pingCtx, cancel := withTimeout(ctx, connectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, classify(ctx, pingCtx, "sqlite: ping", err)
	}
	return db, nil
}

// --- Source ---

// SQLiteSource reads the movies tables from a SQLite file opened read-only.
type SQLiteSource struct {
	db      *sql.DB
	path    string
	timeout time.Duration
}

// NewSQLiteSource opens path read-only. statementTimeout bounds every
// query and every cursor fetch.
func NewSQLiteSource(ctx context.Context, path string, connectTimeout, statementTimeout time.Duration) (*SQLiteSource, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite source: path must not be empty")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("sqlite source: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?mode=ro&_pragma=busy_timeout(%d)", path, sqliteBusyTimeoutMS)
	db, err := openSQLite(ctx, dsn, 0, connectTimeout)
	if err != nil {
		return nil, err
	}
	logging.Logf(logging.Debug, "Opened SQLite source '%s' (read-only)", path)
	return &SQLiteSource{db: db, path: path, timeout: statementTimeout}, nil
}

// OpenCursor issues SELECT * FROM table once; rows are then pulled page by
// page through Fetch.
func (s *SQLiteSource) OpenCursor(ctx context.Context, table string) (RowCursor, error) {
	qctx, cancel := context.WithCancelCause(ctx)
	c := &sqliteCursor{table: table, cancel: cancel, timeout: s.timeout}

	var rows *sql.Rows
	err := c.guard(ctx, func() error {
		var qerr error
		rows, qerr = s.db.QueryContext(qctx, "SELECT * FROM "+quoteIdent(table))
		return qerr
	})
	if err != nil {
		cancel(nil)
		return nil, c.classify(ctx, qctx, "open cursor on "+table, err)
	}
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		cancel(nil)
		return nil, fmt.Errorf("open cursor on %s: columns: %w", table, err)
	}
	c.rows, c.cols, c.qctx = rows, cols, qctx
	return c, nil
}

// Count returns the row count of table.
func (s *SQLiteSource) Count(ctx context.Context, table string) (int64, error) {
	return countRows(ctx, s.db, SQLiteDialect{}, table, s.timeout)
}

// Sample returns the first limit rows of table ordered by orderBy.
func (s *SQLiteSource) Sample(ctx context.Context, table, orderBy string, limit int) ([]Row, error) {
	if limit <= 0 {
		return nil, nil
	}
	cctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	q := fmt.Sprintf("SELECT * FROM %s ORDER BY %s LIMIT ?", quoteIdent(table), quoteIdent(orderBy))
	rows, err := s.db.QueryContext(cctx, q, limit)
	if err != nil {
		return nil, classify(ctx, cctx, "sample "+table, err)
	}
	defer rows.Close()
	out, err := scanRows(rows, 0)
	return out, classify(ctx, cctx, "sample "+table, err)
}

// Close closes the database handle.
func (s *SQLiteSource) Close() error {
	return s.db.Close()
}

// sqliteCursor streams one table. Each Fetch runs under a watchdog that
// cancels the whole query with ErrTimeout if the fetch overruns.
type sqliteCursor struct {
	table   string
	rows    *sql.Rows
	cols    []string
	qctx    context.Context
	cancel  context.CancelCauseFunc
	timeout time.Duration

	mu     sync.Mutex
	closed bool
}

func (c *sqliteCursor) Fetch(ctx context.Context, n int) ([]Row, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("fetch %s: %w: %w", c.table, etlerr.ErrCanceled, err)
	}
	if n <= 0 {
		return nil, fmt.Errorf("fetch %s: page size must be positive, got %d", c.table, n)
	}

	var out []Row
	err := c.guard(ctx, func() error {
		var ferr error
		out, ferr = scanRowsWithColumns(c.rows, c.cols, n)
		return ferr
	})
	if err != nil {
		c.closeLocked()
		return nil, c.classify(ctx, c.qctx, "fetch "+c.table, err)
	}
	if len(out) < n {
		// Short page: the result set is drained.
		c.closeLocked()
	}
	return out, nil
}

func (c *sqliteCursor) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *sqliteCursor) closeLocked() error {
	if c.closed {
		return nil
	}
	c.closed = true
	var err error
	if c.rows != nil {
		err = c.rows.Close()
	}
	c.cancel(nil)
	return err
}

// guard runs fn with the fetch watchdog armed, and forwards cancellation
// of ctx to the query.
func (c *sqliteCursor) guard(ctx context.Context, fn func() error) error {
	stop := context.AfterFunc(ctx, func() { c.cancel(context.Cause(ctx)) })
	defer stop()
	if c.timeout > 0 {
		timer := time.AfterFunc(c.timeout, func() { c.cancel(etlerr.ErrTimeout) })
		defer timer.Stop()
	}
	return fn()
}

func (c *sqliteCursor) classify(parent, qctx context.Context, op string, err error) error {
	if parent.Err() == nil && errors.Is(context.Cause(qctx), etlerr.ErrTimeout) {
		return etlerr.Timeout(op, err)
	}
	return classify(parent, qctx, op, err)
}

// --- Target ---

// SQLiteTarget is a TargetStore on a writable SQLite file. Foreign keys are
// enforced so that join rows fail the same way they do on Postgres.
type SQLiteTarget struct {
	db      *sql.DB
	timeout time.Duration
}

// NewSQLiteTarget opens (or creates) path. The tables must already exist.
func NewSQLiteTarget(ctx context.Context, path string, connectTimeout, statementTimeout time.Duration) (*SQLiteTarget, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite target: path must not be empty")
	}
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)", path, sqliteBusyTimeoutMS)
	db, err := openSQLite(ctx, dsn, 1, connectTimeout)
	if err != nil {
		return nil, err
	}
	logging.Logf(logging.Debug, "Opened SQLite target '%s'", path)
	return &SQLiteTarget{db: db, timeout: statementTimeout}, nil
}

func (t *SQLiteTarget) Dialect() Dialect { return SQLiteDialect{} }

// Exec runs stmt inside its own transaction.
func (t *SQLiteTarget) Exec(ctx context.Context, stmt Statement) (int64, error) {
	cctx, cancel := withTimeout(ctx, t.timeout)
	defer cancel()

	tx, err := t.db.BeginTx(cctx, nil)
	if err != nil {
		return 0, classify(ctx, cctx, "sqlite: begin", err)
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				logging.Logf(logging.Error, "SQLiteTarget: failed to rollback transaction: %v", rbErr)
			}
		}
	}()

	res, err := tx.ExecContext(cctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return 0, classify(ctx, cctx, "sqlite: exec", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, classify(ctx, cctx, "sqlite: commit", err)
	}
	committed = true
	n, err := res.RowsAffected()
	if err != nil {
		return int64(stmt.Rows), nil
	}
	return n, nil
}

func (t *SQLiteTarget) Count(ctx context.Context, table string) (int64, error) {
	return countRows(ctx, t.db, SQLiteDialect{}, table, t.timeout)
}

func (t *SQLiteTarget) Lookup(ctx context.Context, table string, columns []string, ids []uuid.UUID) ([]Row, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cctx, cancel := withTimeout(ctx, t.timeout)
	defer cancel()
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id.String()
	}
	rows, err := t.db.QueryContext(cctx, lookupQuery(SQLiteDialect{}, table, columns, len(ids)), args...)
	if err != nil {
		return nil, classify(ctx, cctx, "lookup "+table, err)
	}
	defer rows.Close()
	out, err := scanRows(rows, 0)
	return out, classify(ctx, cctx, "lookup "+table, err)
}

func (t *SQLiteTarget) Close() error {
	return t.db.Close()
}

// --- shared database/sql helpers ---

func countRows(ctx context.Context, db *sql.DB, d Dialect, table string, timeout time.Duration) (int64, error) {
	cctx, cancel := withTimeout(ctx, timeout)
	defer cancel()
	var n int64
	if err := db.QueryRowContext(cctx, "SELECT COUNT(*) FROM "+d.Table(table)).Scan(&n); err != nil {
		return 0, classify(ctx, cctx, "count "+table, err)
	}
	return n, nil
}

// scanRows reads up to limit rows (0 = all).
func scanRows(rows *sql.Rows, limit int) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	return scanRowsWithColumns(rows, cols, limit)
}

func scanRowsWithColumns(rows *sql.Rows, cols []string, limit int) ([]Row, error) {
	out := make([]Row, 0)
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for (limit <= 0 || len(out) < limit) && rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		r := make(Row, len(cols))
		for i, c := range cols {
			r[c] = vals[i]
		}
		out = append(out, r)
	}
	if len(out) == limit && limit > 0 {
		return out, nil
	}
	return out, rows.Err()
}
