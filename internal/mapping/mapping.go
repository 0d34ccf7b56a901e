// Package mapping holds the Schema Mapping Table: for every source table, the
// target column each source column lands in, or a marker that the column is
// dropped. The table is total; a source column it does not mention is a
// schema mismatch, never silently ignored.
package mapping

import (
	"fmt"
	"sort"
	"strings"

	"moviemigrate/internal/etlerr"
	"moviemigrate/internal/records"
)

// Drop is the canonical marker for a source column that has no target.
// "-" is accepted as an alias in configuration.
const Drop = ""

// Table maps source column names to target column names for one table.
type Table map[string]string

// Mapping is the full Schema Mapping Table, keyed by source table name.
// A Mapping is not modified after construction and is safe to share
// between goroutines.
type Mapping struct {
	tables map[string]Table
}

// defaultTables mirrors the column layout of the admin app's SQLite export:
// created_at/updated_at are renamed and file_path has no target.
var defaultTables = map[string]Table{
	"film_work": {
		"id":            "id",
		"title":         "title",
		"description":   "description",
		"creation_date": "creation_date",
		"file_path":     Drop,
		"rating":        "rating",
		"type":          "type",
		"created_at":    "created",
		"updated_at":    "modified",
	},
	"genre": {
		"id":          "id",
		"name":        "name",
		"description": "description",
		"created_at":  "created",
		"updated_at":  "modified",
	},
	"person": {
		"id":         "id",
		"full_name":  "full_name",
		"created_at": "created",
		"updated_at": "modified",
	},
	"genre_film_work": {
		"id":           "id",
		"film_work_id": "film_work_id",
		"genre_id":     "genre_id",
		"created_at":   "created",
	},
	"person_film_work": {
		"id":           "id",
		"film_work_id": "film_work_id",
		"person_id":    "person_id",
		"role":         "role",
		"created_at":   "created",
	},
}

// Default returns the built-in mapping.
func Default() *Mapping {
	m := &Mapping{tables: make(map[string]Table, len(defaultTables))}
	for name, t := range defaultTables {
		m.tables[name] = cloneTable(t)
	}
	return m
}

// FromConfig starts from the default mapping and replaces every table named
// in overrides wholesale. Target names are trimmed and "-" is normalized to
// Drop. The result is validated before it is returned.
func FromConfig(overrides map[string]map[string]string) (*Mapping, error) {
	m := Default()
	for table, cols := range overrides {
		t := make(Table, len(cols))
		for src, dst := range cols {
			dst = strings.TrimSpace(dst)
			if dst == "-" {
				dst = Drop
			}
			t[strings.TrimSpace(src)] = dst
		}
		m.tables[strings.TrimSpace(table)] = t
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks that every table names an entity kind, that no two source
// columns land in the same target column, and that every target column
// exists on the kind's record type.
func (m *Mapping) Validate() error {
	var errs []string
	for _, table := range m.Tables() {
		kind, err := records.ParseKind(table)
		if err != nil || kind.Table() != table {
			errs = append(errs, fmt.Sprintf("table '%s' is not a known entity table", table))
			continue
		}
		seen := make(map[string]string)
		for _, src := range sortedKeys(m.tables[table]) {
			dst := m.tables[table][src]
			if dst == Drop {
				continue
			}
			if prev, dup := seen[dst]; dup {
				errs = append(errs, fmt.Sprintf("table '%s': columns '%s' and '%s' both map to '%s'", table, prev, src, dst))
				continue
			}
			seen[dst] = src
			if !records.HasColumn(kind, dst) {
				errs = append(errs, fmt.Sprintf("table '%s': target column '%s' (from '%s') is not a field of %s", table, dst, src, kind))
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid schema mapping:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Resolve returns the target column for (table, column). dropped is true
// when the column is explicitly excluded. A column absent from the mapping
// yields a SchemaMismatchError.
func (m *Mapping) Resolve(table, column string) (target string, dropped bool, err error) {
	t, ok := m.tables[table]
	if !ok {
		return "", false, &etlerr.SchemaMismatchError{Table: table, Reason: "table has no mapping"}
	}
	dst, ok := t[column]
	if !ok {
		return "", false, &etlerr.SchemaMismatchError{Table: table, Column: column, Reason: "unmapped source column"}
	}
	if dst == Drop {
		return "", true, nil
	}
	return dst, false, nil
}

// Remap rewrites a source row into a target-keyed row, dropping excluded
// columns. The first unmapped column (in name order) fails the whole row.
func (m *Mapping) Remap(table string, row map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(row))
	for _, col := range sortedKeys(row) {
		dst, dropped, err := m.Resolve(table, col)
		if err != nil {
			return nil, err
		}
		if dropped {
			continue
		}
		out[dst] = row[col]
	}
	return out, nil
}

// SourceColumn is the inverse lookup: the source column that feeds target
// column dst, if any.
func (m *Mapping) SourceColumn(table, dst string) (string, bool) {
	for src, d := range m.tables[table] {
		if d != Drop && d == dst {
			return src, true
		}
	}
	return "", false
}

// Tables returns the mapped source table names, sorted.
func (m *Mapping) Tables() []string {
	return sortedKeys(m.tables)
}

// Table returns a copy of the column mapping for one table.
func (m *Mapping) Table(name string) (Table, bool) {
	t, ok := m.tables[name]
	if !ok {
		return nil, false
	}
	return cloneTable(t), true
}

func cloneTable(t Table) Table {
	out := make(Table, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
