package records

import (
	"fmt"
	"reflect"
	"strings"
)

// Column describes one mapped field of a record type.
type Column struct {
	Name     string
	Optional bool // may be absent or NULL in a source row
	index    int
}

// layouts is computed once from the struct tags; it is the single source of
// column order for statements, values, and comparisons.
var layouts = func() map[Kind][]Column {
	m := make(map[Kind][]Column, len(kindTables))
	for _, k := range Kinds() {
		m[k] = layoutOf(reflect.TypeOf(New(k)).Elem())
	}
	return m
}()

func layoutOf(t reflect.Type) []Column {
	cols := make([]Column, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		tag, ok := t.Field(i).Tag.Lookup("db")
		if !ok || tag == "-" {
			continue
		}
		parts := strings.Split(tag, ",")
		col := Column{Name: parts[0], index: i}
		for _, opt := range parts[1:] {
			if opt == "optional" {
				col.Optional = true
			}
		}
		cols = append(cols, col)
	}
	return cols
}

// Columns returns the column layout of kind k in declaration order. The
// returned slice must not be modified.
func Columns(k Kind) []Column { return layouts[k] }

// ColumnNames returns the column names of kind k in declaration order.
func ColumnNames(k Kind) []string {
	cols := layouts[k]
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

// HasColumn reports whether kind k declares column name.
func HasColumn(k Kind, name string) bool {
	for _, c := range layouts[k] {
		if c.Name == name {
			return true
		}
	}
	return false
}

// Values returns the field values of rec in column order.
func Values(rec Record) []any {
	v := reflect.ValueOf(rec).Elem()
	cols := layouts[rec.Kind()]
	out := make([]any, len(cols))
	for i, c := range cols {
		out[i] = v.Field(c.index).Interface()
	}
	return out
}

// ToMap returns the field values of rec keyed by column name.
func ToMap(rec Record) map[string]any {
	v := reflect.ValueOf(rec).Elem()
	cols := layouts[rec.Kind()]
	out := make(map[string]any, len(cols))
	for _, c := range cols {
		out[c.Name] = v.Field(c.index).Interface()
	}
	return out
}

// SameKind checks that every record in recs is of kind k.
func SameKind(k Kind, recs []Record) error {
	for i, r := range recs {
		if r == nil {
			return fmt.Errorf("record %d is nil", i)
		}
		if r.Kind() != k {
			return fmt.Errorf("record %d is %s, expected %s", i, r.Kind(), k)
		}
	}
	return nil
}
