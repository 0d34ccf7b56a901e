// Package load writes batches of records to the target store with one
// multi-row upsert statement per batch.
package load

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"moviemigrate/internal/config"
	"moviemigrate/internal/etlerr"
	etlio "moviemigrate/internal/io"
	"moviemigrate/internal/logging"
	"moviemigrate/internal/records"
)

// Upsert modes.
const (
	// ModeTouch keeps the existing row on conflict.
	ModeTouch = config.UpsertModeTouch
	// ModeOverwrite replaces every non-key column on conflict.
	ModeOverwrite = config.UpsertModeOverwrite
)

// ErrEmptyBatch is returned for a batch with no records.
var ErrEmptyBatch = errors.New("load: empty batch")

// Loader upserts batches into a TargetStore. It does not retry; a retry
// policy, if any, wraps a whole entity.
type Loader struct {
	tgt  etlio.TargetStore
	mode string
}

// New returns a Loader. An empty mode means ModeTouch.
func New(tgt etlio.TargetStore, mode string) (*Loader, error) {
	switch mode {
	case "":
		mode = ModeTouch
	case ModeTouch, ModeOverwrite:
	default:
		return nil, fmt.Errorf("load: unknown upsert mode '%s'", mode)
	}
	return &Loader{tgt: tgt, mode: mode}, nil
}

// UpsertBatch writes recs, all of kind, in a single statement and returns
// the number of rows the store reports as written. The batch is atomic: a
// rejected statement writes nothing and yields a LoadError.
func (l *Loader) UpsertBatch(ctx context.Context, kind records.Kind, batchIndex int, recs []records.Record) (int64, error) {
	if len(recs) == 0 {
		return 0, ErrEmptyBatch
	}
	if err := records.SameKind(kind, recs); err != nil {
		return 0, fmt.Errorf("load %s batch %d: %w", kind, batchIndex, err)
	}

	stmt := etlio.Statement{
		SQL:  BuildUpsert(l.tgt.Dialect(), kind, len(recs), l.mode),
		Args: make([]any, 0, len(recs)*len(records.Columns(kind))),
		Rows: len(recs),
	}
	for _, r := range recs {
		stmt.Args = append(stmt.Args, records.Values(r)...)
	}

	n, err := l.tgt.Exec(ctx, stmt)
	if err != nil {
		logging.For(kind.String()).Logf(logging.Error, "batch %d (%d rows) rejected: %v", batchIndex, len(recs), err)
		return 0, &etlerr.LoadError{Entity: kind.String(), BatchIndex: batchIndex, Cause: err}
	}
	return n, nil
}

// BuildUpsert returns the INSERT ... ON CONFLICT (id) statement for n rows
// of kind. Column order is the record type's field order.
func BuildUpsert(d etlio.Dialect, kind records.Kind, n int, mode string) string {
	cols := records.ColumnNames(kind)
	var b strings.Builder

	b.WriteString("INSERT INTO ")
	b.WriteString(d.Table(kind.Table()))
	b.WriteString(" (")
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.QuoteIdent(c))
	}
	b.WriteString(") VALUES ")

	arg := 1
	for r := 0; r < n; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for i := range cols {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(d.Placeholder(arg))
			arg++
		}
		b.WriteByte(')')
	}

	id := d.QuoteIdent("id")
	b.WriteString(" ON CONFLICT (")
	b.WriteString(id)
	b.WriteString(") DO UPDATE SET ")
	if mode == ModeOverwrite {
		first := true
		for _, c := range cols {
			if c == "id" {
				continue
			}
			if !first {
				b.WriteString(", ")
			}
			first = false
			q := d.QuoteIdent(c)
			b.WriteString(q + " = EXCLUDED." + q)
		}
	} else {
		b.WriteString(id + " = EXCLUDED." + id)
	}
	return b.String()
}
