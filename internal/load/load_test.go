package load

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"moviemigrate/internal/etlerr"
	etlio "moviemigrate/internal/io"
	"moviemigrate/internal/logging"
	"moviemigrate/internal/records"
	"moviemigrate/internal/testutil"

	"github.com/google/uuid"
)

func TestMain(m *testing.M) {
	logging.SetLevel(logging.None)
	os.Exit(m.Run())
}

type recordingTarget struct {
	dialect etlio.Dialect
	stmts   []etlio.Statement
	err     error
}

func (r *recordingTarget) Dialect() etlio.Dialect { return r.dialect }
func (r *recordingTarget) Exec(_ context.Context, s etlio.Statement) (int64, error) {
	r.stmts = append(r.stmts, s)
	if r.err != nil {
		return 0, r.err
	}
	return int64(s.Rows), nil
}
func (r *recordingTarget) Count(context.Context, string) (int64, error) { return 0, nil }
func (r *recordingTarget) Lookup(context.Context, string, []string, []uuid.UUID) ([]etlio.Row, error) {
	return nil, nil
}
func (r *recordingTarget) Close() error { return nil }

var ts = time.Date(2021, 6, 16, 20, 14, 9, 0, time.UTC)

func genres(names ...string) []records.Record {
	out := make([]records.Record, len(names))
	for i, n := range names {
		out[i] = &records.Genre{ID: uuid.New(), Name: n, Created: ts, Modified: ts}
	}
	return out
}

func TestBuildUpsert_Postgres(t *testing.T) {
	got := BuildUpsert(etlio.PostgresDialect{Schema: "content"}, records.KindGenre, 2, ModeTouch)
	want := `INSERT INTO "content"."genre" ("id", "name", "description", "created", "modified") VALUES ` +
		`($1, $2, $3, $4, $5), ($6, $7, $8, $9, $10) ON CONFLICT ("id") DO UPDATE SET "id" = EXCLUDED."id"`
	if got != want {
		t.Errorf("BuildUpsert() =\n%s\nwant\n%s", got, want)
	}
}

func TestBuildUpsert_Overwrite(t *testing.T) {
	got := BuildUpsert(etlio.SQLiteDialect{}, records.KindPerson, 1, ModeOverwrite)
	want := `INSERT INTO "person" ("id", "full_name", "created", "modified") VALUES (?, ?, ?, ?) ` +
		`ON CONFLICT ("id") DO UPDATE SET "full_name" = EXCLUDED."full_name", "created" = EXCLUDED."created", "modified" = EXCLUDED."modified"`
	if got != want {
		t.Errorf("BuildUpsert() =\n%s\nwant\n%s", got, want)
	}
}

func TestBuildUpsert_ColumnOrderFollowsRecordType(t *testing.T) {
	for _, k := range records.Kinds() {
		stmt := BuildUpsert(etlio.SQLiteDialect{}, k, 1, ModeTouch)
		cols := make([]string, 0)
		for _, c := range records.ColumnNames(k) {
			cols = append(cols, `"`+c+`"`)
		}
		if !strings.Contains(stmt, "("+strings.Join(cols, ", ")+")") {
			t.Errorf("%s: statement column list does not follow field order:\n%s", k, stmt)
		}
	}
}

func TestUpsertBatch_OneStatementPerBatch(t *testing.T) {
	tgt := &recordingTarget{dialect: etlio.PostgresDialect{Schema: "content"}}
	l, err := New(tgt, "")
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	recs := genres("Drama", "Comedy", "Horror")
	n, err := l.UpsertBatch(context.Background(), records.KindGenre, 0, recs)
	if err != nil {
		t.Fatalf("UpsertBatch() error: %v", err)
	}
	if n != 3 {
		t.Errorf("rows written = %d, want 3", n)
	}
	if len(tgt.stmts) != 1 {
		t.Fatalf("Exec calls = %d, want 1", len(tgt.stmts))
	}
	s := tgt.stmts[0]
	if len(s.Args) != 3*5 || s.Rows != 3 {
		t.Errorf("args=%d rows=%d, want 15/3", len(s.Args), s.Rows)
	}
	if s.Args[5] != recs[1].Identifier() || s.Args[6] != "Comedy" {
		t.Errorf("second row args = %v", s.Args[5:10])
	}
}

func TestUpsertBatch_Errors(t *testing.T) {
	tgt := &recordingTarget{dialect: etlio.SQLiteDialect{}}
	l, _ := New(tgt, ModeTouch)
	ctx := context.Background()

	if _, err := l.UpsertBatch(ctx, records.KindGenre, 0, nil); !errors.Is(err, ErrEmptyBatch) {
		t.Errorf("empty batch error = %v", err)
	}
	mixed := append(genres("Drama"), &records.Person{ID: uuid.New(), FullName: "Ann"})
	if _, err := l.UpsertBatch(ctx, records.KindGenre, 0, mixed); err == nil {
		t.Error("mixed batch expected error")
	}
	if len(tgt.stmts) != 0 {
		t.Errorf("invalid batches reached the store: %d", len(tgt.stmts))
	}

	tgt.err = errors.New("duplicate key value violates unique constraint")
	_, err := l.UpsertBatch(ctx, records.KindGenre, 7, genres("Drama"))
	var le *etlerr.LoadError
	if !errors.As(err, &le) || le.BatchIndex != 7 || le.Entity != "Genre" {
		t.Errorf("store rejection error = %#v, want LoadError batch 7", err)
	}
}

func TestNew_InvalidMode(t *testing.T) {
	if _, err := New(&recordingTarget{}, "merge"); err == nil {
		t.Error("New() with unknown mode expected error")
	}
}

func TestUpsertBatch_SQLiteIdempotent(t *testing.T) {
	path := testutil.NewDB(t, "target.db", testutil.TargetDDL)
	ctx := context.Background()
	tgt, err := etlio.NewSQLiteTarget(ctx, path, time.Second, 5*time.Second)
	if err != nil {
		t.Fatalf("NewSQLiteTarget() error: %v", err)
	}
	defer tgt.Close()

	recs := genres("Drama", "Comedy")
	touch, _ := New(tgt, ModeTouch)
	for run := 0; run < 2; run++ {
		if _, err := touch.UpsertBatch(ctx, records.KindGenre, 0, recs); err != nil {
			t.Fatalf("run %d: UpsertBatch() error: %v", run, err)
		}
	}
	if n := testutil.Count(t, path, "genre"); n != 2 {
		t.Fatalf("count after replay = %d, want 2", n)
	}

	// touch keeps the stored row, overwrite replaces it
	recs[0].(*records.Genre).Name = "Drama (renamed)"
	if _, err := touch.UpsertBatch(ctx, records.KindGenre, 1, recs[:1]); err != nil {
		t.Fatalf("touch UpsertBatch() error: %v", err)
	}
	rows, _ := tgt.Lookup(ctx, "genre", []string{"name"}, []uuid.UUID{recs[0].Identifier()})
	if len(rows) != 1 || rows[0]["name"] != "Drama" {
		t.Errorf("touch mode changed the row: %v", rows)
	}
	over, _ := New(tgt, ModeOverwrite)
	if _, err := over.UpsertBatch(ctx, records.KindGenre, 2, recs[:1]); err != nil {
		t.Fatalf("overwrite UpsertBatch() error: %v", err)
	}
	rows, _ = tgt.Lookup(ctx, "genre", []string{"name"}, []uuid.UUID{recs[0].Identifier()})
	if len(rows) != 1 || rows[0]["name"] != "Drama (renamed)" {
		t.Errorf("overwrite mode did not replace the row: %v", rows)
	}
}
