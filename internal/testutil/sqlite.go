// Package testutil builds throwaway SQLite databases for tests: a source
// laid out like the admin app's export and a target laid out like the
// content schema.
package testutil

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	_ "modernc.org/sqlite"
)

// SourceDDL is the SQLite export layout: created_at/updated_at columns,
// film_work.file_path, free-form rating.
const SourceDDL = `
CREATE TABLE film_work (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    description TEXT,
    creation_date DATE,
    file_path TEXT,
    rating FLOAT,
    type TEXT NOT NULL,
    created_at timestamp with time zone,
    updated_at timestamp with time zone
);
CREATE TABLE genre (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    created_at timestamp with time zone,
    updated_at timestamp with time zone
);
CREATE TABLE person (
    id TEXT PRIMARY KEY,
    full_name TEXT NOT NULL,
    created_at timestamp with time zone,
    updated_at timestamp with time zone
);
CREATE TABLE genre_film_work (
    id TEXT PRIMARY KEY,
    film_work_id TEXT NOT NULL,
    genre_id TEXT NOT NULL,
    created_at timestamp with time zone
);
CREATE TABLE person_film_work (
    id TEXT PRIMARY KEY,
    film_work_id TEXT NOT NULL,
    person_id TEXT NOT NULL,
    role TEXT NOT NULL,
    created_at timestamp with time zone
);
`

// SlowGenreDDL defines genre as a view that walks a long recursive CTE
// before producing its only row, so any read of it outlasts a short
// statement timeout.
const SlowGenreDDL = `
CREATE VIEW genre AS
WITH RECURSIVE n(x) AS (SELECT 1 UNION ALL SELECT x + 1 FROM n WHERE x < 1000000000)
SELECT '11111111-1111-1111-1111-111111111111' AS id, 'Drama' AS name, NULL AS description,
       '2021-06-16 20:14:09+00' AS created_at, '2021-06-16 20:14:09+00' AS updated_at
FROM n WHERE x = 1000000000
`

// TargetDDL mirrors the content schema, foreign keys included.
const TargetDDL = `
CREATE TABLE film_work (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    description TEXT,
    creation_date DATE,
    rating INTEGER,
    type TEXT NOT NULL,
    created TIMESTAMP,
    modified TIMESTAMP
);
CREATE TABLE genre (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    created TIMESTAMP,
    modified TIMESTAMP
);
CREATE TABLE person (
    id TEXT PRIMARY KEY,
    full_name TEXT NOT NULL,
    created TIMESTAMP,
    modified TIMESTAMP
);
CREATE TABLE genre_film_work (
    id TEXT PRIMARY KEY,
    film_work_id TEXT NOT NULL REFERENCES film_work (id),
    genre_id TEXT NOT NULL REFERENCES genre (id),
    created TIMESTAMP,
    UNIQUE (film_work_id, genre_id)
);
CREATE TABLE person_film_work (
    id TEXT PRIMARY KEY,
    film_work_id TEXT NOT NULL REFERENCES film_work (id),
    person_id TEXT NOT NULL REFERENCES person (id),
    role TEXT NOT NULL,
    created TIMESTAMP,
    UNIQUE (film_work_id, person_id, role)
);
`

// NewDB creates name in a fresh temp dir, applies ddl and returns the path.
func NewDB(t testing.TB, name, ddl string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	db := open(t, path)
	defer db.Close()
	for _, stmt := range strings.Split(ddl, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("apply DDL to %s: %v\n%s", path, err, stmt)
		}
	}
	return path
}

// Insert writes rows into table. Every row must have the same keys.
func Insert(t testing.TB, path, table string, rows ...map[string]any) {
	t.Helper()
	if len(rows) == 0 {
		return
	}
	cols := make([]string, 0, len(rows[0]))
	for c := range rows[0] {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), marks)

	db := open(t, path)
	defer db.Close()
	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	for i, r := range rows {
		args := make([]any, len(cols))
		for j, c := range cols {
			args[j] = r[c]
		}
		if _, err := tx.Exec(q, args...); err != nil {
			tx.Rollback()
			t.Fatalf("insert %s row %d: %v", table, i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

// Count returns the row count of table.
func Count(t testing.TB, path, table string) int64 {
	t.Helper()
	db := open(t, path)
	defer db.Close()
	var n int64
	if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

// Exec runs a single statement against path.
func Exec(t testing.TB, path, query string, args ...any) {
	t.Helper()
	db := open(t, path)
	defer db.Close()
	if _, err := db.Exec(query, args...); err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}

func open(t testing.TB, path string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	return db
}
