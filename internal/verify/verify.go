// Package verify compares the source and target stores after a load. It
// only reads from both stores.
package verify

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"moviemigrate/internal/etlerr"
	"moviemigrate/internal/extract"
	etlio "moviemigrate/internal/io"
	"moviemigrate/internal/logging"
	"moviemigrate/internal/mapping"
	"moviemigrate/internal/records"

	"github.com/google/uuid"
)

// fallbackOrder is used when a table has no source column feeding "id".
const fallbackOrder = "rowid"

// Result is the row-count comparison for one entity.
type Result struct {
	Entity      string `json:"-" yaml:"-"`
	CountSource int64  `json:"count_source" yaml:"count_source"`
	CountTarget int64  `json:"count_target" yaml:"count_target"`
	Match       bool   `json:"match" yaml:"match"`
}

// Err returns a VerificationMismatch error when the counts differ.
func (r Result) Err() error {
	if r.Match {
		return nil
	}
	return fmt.Errorf("%s: source has %d row(s), target has %d: %w", r.Entity, r.CountSource, r.CountTarget, etlerr.ErrVerificationMismatch)
}

// SampleResult is the field-by-field comparison of the first rows of an
// entity.
type SampleResult struct {
	Compared        int    `json:"compared" yaml:"compared"`
	Match           bool   `json:"match" yaml:"match"`
	FirstMismatchID string `json:"first_mismatch_id,omitempty" yaml:"first_mismatch_id,omitempty"`
	Detail          string `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// Err returns a VerificationMismatch error naming the first diverging id.
func (s SampleResult) Err() error {
	if s.Match {
		return nil
	}
	return fmt.Errorf("row %s: %s: %w", s.FirstMismatchID, s.Detail, etlerr.ErrVerificationMismatch)
}

// Verifier checks one entity at a time.
type Verifier struct {
	src     etlio.SourceStore
	tgt     etlio.TargetStore
	mapping *mapping.Mapping
}

// New returns a Verifier. A nil mapping means the built-in one.
func New(src etlio.SourceStore, tgt etlio.TargetStore, m *mapping.Mapping) *Verifier {
	if m == nil {
		m = mapping.Default()
	}
	return &Verifier{src: src, tgt: tgt, mapping: m}
}

// Verify compares the row counts of kind in both stores.
func (v *Verifier) Verify(ctx context.Context, kind records.Kind) (Result, error) {
	res := Result{Entity: kind.String()}
	var err error
	if res.CountSource, err = v.src.Count(ctx, kind.Table()); err != nil {
		return res, fmt.Errorf("verify %s: source count: %w", kind, err)
	}
	if res.CountTarget, err = v.tgt.Count(ctx, kind.Table()); err != nil {
		return res, fmt.Errorf("verify %s: target count: %w", kind, err)
	}
	res.Match = res.CountSource == res.CountTarget
	if !res.Match {
		logging.For(kind.String()).Logf(logging.Warning, "row count mismatch: source=%d target=%d", res.CountSource, res.CountTarget)
	}
	return res, nil
}

// SampleEquality reads the first limit source rows of kind ordered by id,
// fetches the same ids from the target and compares every column.
// Timestamps compare at whole-second precision in UTC. The first diverging
// row stops the comparison.
func (v *Verifier) SampleEquality(ctx context.Context, kind records.Kind, limit int) (SampleResult, error) {
	res := SampleResult{Match: true}
	if limit <= 0 {
		return res, nil
	}
	table := kind.Table()
	orderBy, ok := v.mapping.SourceColumn(table, "id")
	if !ok {
		orderBy = fallbackOrder
	}

	rows, err := v.src.Sample(ctx, table, orderBy, limit)
	if err != nil {
		return res, fmt.Errorf("verify %s: source sample: %w", kind, err)
	}
	if len(rows) == 0 {
		return res, nil
	}
	want := make([]records.Record, len(rows))
	ids := make([]uuid.UUID, len(rows))
	for i, row := range rows {
		rec, err := extract.Decode(v.mapping, kind, row)
		if err != nil {
			return res, fmt.Errorf("verify %s: sample row %d: %w", kind, i, err)
		}
		want[i] = rec
		ids[i] = rec.Identifier()
	}

	found, err := v.tgt.Lookup(ctx, table, records.ColumnNames(kind), ids)
	if err != nil {
		return res, fmt.Errorf("verify %s: target lookup: %w", kind, err)
	}
	got := make(map[uuid.UUID]map[string]any, len(found))
	unreadable := make(map[uuid.UUID]error)
	for _, row := range found {
		rec, err := records.Bind(kind, row)
		if err != nil {
			if id, idErr := records.ParseID(row["id"]); idErr == nil {
				unreadable[id] = err
			}
			continue
		}
		got[rec.Identifier()] = records.ToMap(rec)
	}

	for _, rec := range want {
		res.Compared++
		id := rec.Identifier()
		if err, ok := unreadable[id]; ok {
			res.Match, res.FirstMismatchID, res.Detail = false, id.String(), fmt.Sprintf("target row unreadable: %v", err)
			break
		}
		actual, ok := got[id]
		if !ok {
			res.Match, res.FirstMismatchID, res.Detail = false, id.String(), "missing in target"
			break
		}
		if detail := Diff(kind, records.ToMap(rec), actual); detail != "" {
			res.Match, res.FirstMismatchID, res.Detail = false, id.String(), detail
			break
		}
	}
	if !res.Match {
		logging.For(kind.String()).Logf(logging.Warning, "sample mismatch at %s: %s", res.FirstMismatchID, res.Detail)
	}
	return res, nil
}

// Diff returns a description of the first column, in record field order,
// whose value differs between want and got, or "" when they agree.
func Diff(kind records.Kind, want, got map[string]any) string {
	for _, col := range records.ColumnNames(kind) {
		if !Equal(want[col], got[col]) {
			return fmt.Sprintf("%s: source=%v target=%v", col, want[col], got[col])
		}
	}
	return ""
}

// Equal compares two column values. time.Time values are equal when they
// name the same UTC second.
func Equal(a, b any) bool {
	ta, aok := a.(time.Time)
	tb, bok := b.(time.Time)
	if aok || bok {
		return aok && bok && ta.UTC().Truncate(time.Second).Equal(tb.UTC().Truncate(time.Second))
	}
	return reflect.DeepEqual(a, b)
}
