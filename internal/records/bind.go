package records

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"moviemigrate/internal/etlerr"

	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
)

// idNamespace seeds identifiers generated for rows that arrive without one.
var idNamespace = uuid.MustParse("6f0b7f5e-3c59-4d8e-9a43-2a1d7c3b9e10")

// timestampLayouts covers what SQLite files produced by the admin app and
// by hand-written fixtures contain, plus time.Time's String form that the
// SQLite driver writes by default. Zone-less values are read as UTC.
var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999-07",
	"2006-01-02 15:04:05.999999999Z07:00",
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

var (
	uuidType = reflect.TypeOf(uuid.UUID{})
	timeType = reflect.TypeOf(time.Time{})
)

// Bind turns a target-keyed row (column name → value) into a record of kind
// k. Every key must name a field of the record type and every mandatory
// field must be present and non-NULL; otherwise a SchemaMismatchError is
// returned. A missing identifier is derived from the record's natural key.
func Bind(k Kind, row map[string]any) (Record, error) {
	rec := New(k)
	if rec == nil {
		return nil, fmt.Errorf("bind: invalid kind %d", int(k))
	}
	table := k.Table()

	unknown := make([]string, 0)
	for key := range row {
		if !HasColumn(k, key) {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, &etlerr.SchemaMismatchError{Table: table, Column: unknown[0], Reason: fmt.Sprintf("no field on %s for column(s) %v", k, unknown)}
	}
	for _, c := range Columns(k) {
		if c.Optional {
			continue
		}
		v, ok := row[c.Name]
		if !ok {
			return nil, &etlerr.SchemaMismatchError{Table: table, Column: c.Name, Reason: "missing mandatory field"}
		}
		if v == nil {
			return nil, &etlerr.SchemaMismatchError{Table: table, Column: c.Name, Reason: "NULL in mandatory field"}
		}
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:     "db",
		ErrorUnused: true,
		Result:      rec,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			uuidHook,
			timeHook,
			intHook,
			stringHook,
		),
	})
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", k, err)
	}
	if err := dec.Decode(row); err != nil {
		return nil, &etlerr.SchemaMismatchError{Table: table, Reason: err.Error()}
	}

	if rec.Identifier() == uuid.Nil {
		rec.setIdentifier(uuid.NewSHA1(idNamespace, []byte(table+":"+rec.naturalKey())))
	}
	rec.normalize()
	return rec, nil
}

// ParseTimestamp parses the timestamp text forms found in source rows.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp '%s'", s)
}

func uuidHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != uuidType {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		return uuid.Parse(strings.TrimSpace(v))
	case []byte:
		if len(v) == 16 {
			return uuid.FromBytes(v)
		}
		return uuid.ParseBytes(v)
	case [16]byte:
		return uuid.UUID(v), nil
	}
	return data, nil
}

func timeHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != timeType {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		return ParseTimestamp(v)
	case []byte:
		return ParseTimestamp(string(v))
	}
	return data, nil
}

// intHook rounds fractional ratings instead of truncating them.
func intHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to.Kind() != reflect.Int {
		return data, nil
	}
	switch v := data.(type) {
	case float64:
		return int(math.Round(v)), nil
	case float32:
		return int(math.Round(float64(v))), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("not a number: '%s'", v)
		}
		return int(math.Round(f)), nil
	}
	return data, nil
}

func stringHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to.Kind() != reflect.String {
		return data, nil
	}
	if b, ok := data.([]byte); ok {
		return string(b), nil
	}
	return data, nil
}

// ParseID converts a driver value holding an identifier (text, bytes or a
// 16-byte array) to a uuid.UUID.
func ParseID(v any) (uuid.UUID, error) {
	out, err := uuidHook(nil, uuidType, v)
	if err != nil {
		return uuid.Nil, err
	}
	id, ok := out.(uuid.UUID)
	if !ok {
		return uuid.Nil, fmt.Errorf("not an identifier: %T", v)
	}
	return id, nil
}
