package io

import (
	"context"
	"errors"
	"fmt"
	"time"

	"moviemigrate/internal/logging"
	"moviemigrate/internal/util"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgxPoolNewFunc allows overriding pgxpool.NewWithConfig for testing.
var pgxPoolNewFunc = pgxpool.NewWithConfig

// rollbackTimeout bounds the deferred rollback, which runs on a fresh
// context so it still happens after the statement context expired.
const rollbackTimeout = 5 * time.Second

// pgPool is the subset of *pgxpool.Pool the target uses.
type pgPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresTarget is a TargetStore backed by a pgx connection pool. Every
// Exec runs in its own transaction and is committed once.
type PostgresTarget struct {
	pool    pgPool
	dialect PostgresDialect
	timeout time.Duration
}

// PostgresOptions configures NewPostgresTarget.
type PostgresOptions struct {
	ConnString       string
	Schema           string
	MaxConns         int32
	ConnectTimeout   time.Duration
	StatementTimeout time.Duration
}

// NewPostgresTarget builds the pool and verifies connectivity with a ping
// bounded by the connect timeout.
func NewPostgresTarget(ctx context.Context, opts PostgresOptions) (*PostgresTarget, error) {
	masked := util.MaskDSN(opts.ConnString)
	poolCfg, err := pgxpool.ParseConfig(opts.ConnString)
	if err != nil {
		// pgx echoes the connection string in parse errors.
		return nil, fmt.Errorf("PostgresTarget: invalid connection string (%s)", masked)
	}
	if opts.MaxConns > 0 {
		poolCfg.MaxConns = opts.MaxConns
	}
	if opts.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = opts.ConnectTimeout
	}

	pool, err := pgxPoolNewFunc(ctx, poolCfg)
	if err != nil {
		logging.Logf(logging.Error, "PostgresTarget failed to create connection pool: %s", masked)
		return nil, fmt.Errorf("PostgresTarget failed to create connection pool (using %s): %w", masked, err)
	}

	pingCtx, cancel := withTimeout(ctx, opts.ConnectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		logging.Logf(logging.Error, "PostgresTarget failed to connect: %s", masked)
		return nil, classify(ctx, pingCtx, fmt.Sprintf("PostgresTarget connect (using %s)", masked), err)
	}
	logging.Logf(logging.Info, "Connected to PostgreSQL target %s (schema '%s', pool size %d)", masked, opts.Schema, poolCfg.MaxConns)
	return newPostgresTarget(pool, opts.Schema, opts.StatementTimeout), nil
}

func newPostgresTarget(pool pgPool, schema string, timeout time.Duration) *PostgresTarget {
	return &PostgresTarget{pool: pool, dialect: PostgresDialect{Schema: schema}, timeout: timeout}
}

func (pt *PostgresTarget) Dialect() Dialect { return pt.dialect }

// Exec runs stmt in a transaction of its own. The transaction is rolled
// back on any failure, so a rejected batch leaves nothing behind.
func (pt *PostgresTarget) Exec(ctx context.Context, stmt Statement) (int64, error) {
	cctx, cancel := withTimeout(ctx, pt.timeout)
	defer cancel()

	tx, err := pt.pool.Begin(cctx)
	if err != nil {
		return 0, classify(ctx, cctx, "PostgresTarget: begin transaction", err)
	}
	committed := false
	defer func() {
		if !committed {
			rbCtx, rbCancel := context.WithTimeout(context.Background(), rollbackTimeout)
			defer rbCancel()
			if rbErr := tx.Rollback(rbCtx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				logging.Logf(logging.Error, "PostgresTarget: failed to rollback transaction: %v", rbErr)
			} else if rbErr == nil {
				logging.Logf(logging.Debug, "PostgresTarget: transaction rolled back.")
			}
		}
	}()

	logging.Logf(logging.Debug, "PostgresTarget: executing %d-row statement: %s", stmt.Rows, util.Snippet(stmt.SQL))
	tag, err := tx.Exec(cctx, stmt.SQL, stmt.Args...)
	if err != nil {
		logPgError("exec", err)
		return 0, classify(ctx, cctx, "PostgresTarget: exec", err)
	}
	if err := tx.Commit(cctx); err != nil {
		logPgError("commit", err)
		return 0, classify(ctx, cctx, "PostgresTarget: commit", err)
	}
	committed = true
	return tag.RowsAffected(), nil
}

// Count returns the row count of table.
func (pt *PostgresTarget) Count(ctx context.Context, table string) (int64, error) {
	cctx, cancel := withTimeout(ctx, pt.timeout)
	defer cancel()
	var n int64
	if err := pt.pool.QueryRow(cctx, "SELECT COUNT(*) FROM "+pt.dialect.Table(table)).Scan(&n); err != nil {
		return 0, classify(ctx, cctx, "PostgresTarget: count "+table, err)
	}
	return n, nil
}

// Lookup reads columns of the rows of table whose id is in ids.
func (pt *PostgresTarget) Lookup(ctx context.Context, table string, columns []string, ids []uuid.UUID) ([]Row, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cctx, cancel := withTimeout(ctx, pt.timeout)
	defer cancel()

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := pt.pool.Query(cctx, lookupQuery(pt.dialect, table, columns, len(ids)), args...)
	if err != nil {
		return nil, classify(ctx, cctx, "PostgresTarget: lookup "+table, err)
	}
	defer rows.Close()

	fieldDescriptions := rows.FieldDescriptions()
	out := make([]Row, 0, len(ids))
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("PostgresTarget: scan %s row: %w", table, err)
		}
		r := make(Row, len(fieldDescriptions))
		for i, fd := range fieldDescriptions {
			r[fd.Name] = values[i]
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(ctx, cctx, "PostgresTarget: lookup "+table, err)
	}
	return out, nil
}

// Close releases the pool.
func (pt *PostgresTarget) Close() error {
	pt.pool.Close()
	return nil
}

// logPgError logs the server-side detail of a PostgreSQL error, which the
// wrapped error message alone does not carry.
func logPgError(op string, err error) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		logging.Logf(logging.Error, "PostgresTarget (%s) failed. PG Error Code: %s, Message: %s, Detail: %s", op, pgErr.Code, pgErr.Message, pgErr.Detail)
		return
	}
	logging.Logf(logging.Error, "PostgresTarget (%s) failed: %v", op, err)
}
