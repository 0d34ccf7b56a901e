// Package extract streams source rows page by page and turns them into
// records. Nothing is buffered beyond the current page.
package extract

import (
	"context"
	"errors"
	"fmt"

	"moviemigrate/internal/etlerr"
	etlio "moviemigrate/internal/io"
	"moviemigrate/internal/logging"
	"moviemigrate/internal/mapping"
	"moviemigrate/internal/records"
)

// ErrClosed is returned by Next on a cursor closed before it was drained.
var ErrClosed = errors.New("extract: cursor closed")

// Extractor reads entities from a SourceStore through the Schema Mapping
// Table.
type Extractor struct {
	src     etlio.SourceStore
	mapping *mapping.Mapping
}

// New returns an Extractor over src. A nil mapping means the built-in one.
func New(src etlio.SourceStore, m *mapping.Mapping) *Extractor {
	if m == nil {
		m = mapping.Default()
	}
	return &Extractor{src: src, mapping: m}
}

// Stream opens a lazy, forward-only cursor over every row of kind. The
// cursor cannot be rewound; a second pass needs a second Stream.
func (e *Extractor) Stream(ctx context.Context, kind records.Kind, pageSize int) (*Cursor, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("extract: invalid kind %d", int(kind))
	}
	if pageSize < 1 {
		return nil, fmt.Errorf("extract: page size must be >= 1, got %d", pageSize)
	}
	rc, err := e.src.OpenCursor(ctx, kind.Table())
	if err != nil {
		return nil, &etlerr.ExtractError{Entity: kind.String(), Page: 0, Cause: err}
	}
	return &Cursor{
		kind:     kind,
		rc:       rc,
		mapping:  e.mapping,
		pageSize: pageSize,
		log:      logging.For(kind.String()),
	}, nil
}

// Cursor yields pages of at most pageSize records.
type Cursor struct {
	kind     records.Kind
	rc       etlio.RowCursor
	mapping  *mapping.Mapping
	pageSize int
	log      logging.Scoped

	page     int
	rowsRead int64
	done     bool
	closed   bool
}

// Next returns the next page of records, or nil once the source is
// exhausted. A fetch failure is an ExtractError; a row that does not fit
// the mapping or record type fails the page with a SchemaMismatch.
func (c *Cursor) Next(ctx context.Context) ([]records.Record, error) {
	if c.closed && !c.done {
		return nil, ErrClosed
	}
	if c.done {
		return nil, nil
	}

	rows, err := c.rc.Fetch(ctx, c.pageSize)
	if err != nil {
		c.finish()
		return nil, &etlerr.ExtractError{Entity: c.kind.String(), Page: c.page, Cause: err}
	}
	if len(rows) == 0 {
		c.log.Logf(logging.Debug, "source exhausted after %d page(s), %d row(s)", c.page, c.rowsRead)
		c.finish()
		return nil, nil
	}

	out := make([]records.Record, 0, len(rows))
	for i, row := range rows {
		rec, err := Decode(c.mapping, c.kind, row)
		if err != nil {
			c.finish()
			return nil, &etlerr.ExtractError{
				Entity: c.kind.String(),
				Page:   c.page,
				Cause:  fmt.Errorf("row %d: %w", c.rowsRead+int64(i), err),
			}
		}
		out = append(out, rec)
	}
	c.page++
	c.rowsRead += int64(len(rows))
	c.log.Logf(logging.Debug, "page %d: %d row(s)", c.page, len(rows))
	return out, nil
}

// Pages is the number of non-empty pages returned so far.
func (c *Cursor) Pages() int { return c.page }

// RowsRead is the number of source rows returned so far.
func (c *Cursor) RowsRead() int64 { return c.rowsRead }

// Close releases the source cursor. It is safe to call more than once.
func (c *Cursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.rc.Close()
}

func (c *Cursor) finish() {
	c.done = true
	if err := c.Close(); err != nil {
		c.log.Logf(logging.Warning, "closing source cursor: %v", err)
	}
}

// Decode maps one raw source row of kind through m and binds it to the
// kind's record type.
func Decode(m *mapping.Mapping, kind records.Kind, row etlio.Row) (records.Record, error) {
	remapped, err := m.Remap(kind.Table(), row)
	if err != nil {
		return nil, err
	}
	return records.Bind(kind, remapped)
}
