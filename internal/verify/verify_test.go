package verify

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"moviemigrate/internal/etlerr"
	"moviemigrate/internal/extract"
	etlio "moviemigrate/internal/io"
	"moviemigrate/internal/load"
	"moviemigrate/internal/logging"
	"moviemigrate/internal/records"
	"moviemigrate/internal/testutil"

	"github.com/google/uuid"
)

func TestMain(m *testing.M) {
	logging.SetLevel(logging.None)
	os.Exit(m.Run())
}

type fakeSource struct {
	counts  map[string]int64
	samples map[string][]etlio.Row
	orderBy string
	err     error
}

func (f *fakeSource) OpenCursor(context.Context, string) (etlio.RowCursor, error) {
	return nil, errors.New("not used")
}
func (f *fakeSource) Count(_ context.Context, table string) (int64, error) {
	return f.counts[table], f.err
}
func (f *fakeSource) Sample(_ context.Context, table, orderBy string, limit int) ([]etlio.Row, error) {
	f.orderBy = orderBy
	rows := f.samples[table]
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, f.err
}
func (f *fakeSource) Close() error { return nil }

type fakeTarget struct {
	counts map[string]int64
	rows   map[string][]etlio.Row
}

func (f *fakeTarget) Dialect() etlio.Dialect                               { return etlio.SQLiteDialect{} }
func (f *fakeTarget) Exec(context.Context, etlio.Statement) (int64, error) { return 0, nil }
func (f *fakeTarget) Count(_ context.Context, table string) (int64, error) {
	return f.counts[table], nil
}
func (f *fakeTarget) Lookup(_ context.Context, table string, _ []string, ids []uuid.UUID) ([]etlio.Row, error) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id.String()] = true
	}
	var out []etlio.Row
	for _, r := range f.rows[table] {
		if want[r["id"].(string)] {
			out = append(out, r)
		}
	}
	return out, nil
}
func (f *fakeTarget) Close() error { return nil }

var (
	g1 = "11111111-1111-1111-1111-111111111111"
	g2 = "22222222-2222-2222-2222-222222222222"
)

func sourceGenre(id, name, created string) etlio.Row {
	return etlio.Row{"id": id, "name": name, "description": nil, "created_at": created, "updated_at": created}
}

func targetGenre(id, name string, created time.Time) etlio.Row {
	return etlio.Row{"id": id, "name": name, "description": nil, "created": created, "modified": created}
}

func TestVerify_Counts(t *testing.T) {
	src := &fakeSource{counts: map[string]int64{"genre": 2, "person": 3}}
	tgt := &fakeTarget{counts: map[string]int64{"genre": 2, "person": 1}}
	v := New(src, tgt, nil)

	res, err := v.Verify(context.Background(), records.KindGenre)
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if !res.Match || res.CountSource != 2 || res.CountTarget != 2 || res.Err() != nil {
		t.Errorf("genre result = %+v", res)
	}

	res, _ = v.Verify(context.Background(), records.KindPerson)
	if res.Match {
		t.Errorf("person result = %+v, want mismatch", res)
	}
	if !errors.Is(res.Err(), etlerr.ErrVerificationMismatch) {
		t.Errorf("Err() = %v, want VerificationMismatch", res.Err())
	}
}

func TestVerify_SourceError(t *testing.T) {
	v := New(&fakeSource{err: errors.New("database is locked")}, &fakeTarget{}, nil)
	if _, err := v.Verify(context.Background(), records.KindGenre); err == nil || !strings.Contains(err.Error(), "source count") {
		t.Errorf("Verify() error = %v", err)
	}
}

func TestSampleEquality(t *testing.T) {
	created := time.Date(2021, 6, 16, 20, 14, 9, 0, time.UTC)
	src := &fakeSource{samples: map[string][]etlio.Row{"genre": {
		sourceGenre(g1, "Drama", "2021-06-16 20:14:09.221838+00"),
		sourceGenre(g2, "Comedy", "2021-06-16 20:14:09.9+00"),
	}}}

	testCases := []struct {
		name       string
		target     []etlio.Row
		wantMatch  bool
		wantID     string
		wantDetail string
	}{
		{
			name:      "sub-second differences are equal",
			target:    []etlio.Row{targetGenre(g1, "Drama", created), targetGenre(g2, "Comedy", created.Add(500*time.Millisecond))},
			wantMatch: true,
		},
		{
			name:       "first diverging id",
			target:     []etlio.Row{targetGenre(g1, "Drama", created), targetGenre(g2, "Komedie", created)},
			wantID:     g2,
			wantDetail: "name: source=Comedy target=Komedie",
		},
		{
			name:       "timestamp a second off",
			target:     []etlio.Row{targetGenre(g1, "Drama", created.Add(time.Second)), targetGenre(g2, "Comedy", created)},
			wantID:     g1,
			wantDetail: "created:",
		},
		{
			name:       "missing in target",
			target:     []etlio.Row{targetGenre(g2, "Comedy", created)},
			wantID:     g1,
			wantDetail: "missing in target",
		},
		{
			name:       "unreadable target row",
			target:     []etlio.Row{{"id": g1, "name": nil, "created": created, "modified": created}},
			wantID:     g1,
			wantDetail: "target row unreadable",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			v := New(src, &fakeTarget{rows: map[string][]etlio.Row{"genre": tc.target}}, nil)
			res, err := v.SampleEquality(context.Background(), records.KindGenre, 10)
			if err != nil {
				t.Fatalf("SampleEquality() error: %v", err)
			}
			if res.Match != tc.wantMatch {
				t.Fatalf("Match = %v, want %v (%+v)", res.Match, tc.wantMatch, res)
			}
			if tc.wantMatch {
				if res.Compared != 2 || res.Err() != nil {
					t.Errorf("result = %+v", res)
				}
				return
			}
			if res.FirstMismatchID != tc.wantID {
				t.Errorf("FirstMismatchID = %s, want %s", res.FirstMismatchID, tc.wantID)
			}
			if !strings.Contains(res.Detail, tc.wantDetail) {
				t.Errorf("Detail = %q, want it to contain %q", res.Detail, tc.wantDetail)
			}
			if !errors.Is(res.Err(), etlerr.ErrVerificationMismatch) {
				t.Errorf("Err() = %v", res.Err())
			}
		})
	}
	if src.orderBy != "id" {
		t.Errorf("sample ordered by %q, want id", src.orderBy)
	}
}

func TestSampleEquality_LimitAndEmpty(t *testing.T) {
	v := New(&fakeSource{}, &fakeTarget{}, nil)
	res, err := v.SampleEquality(context.Background(), records.KindGenre, 0)
	if err != nil || !res.Match || res.Compared != 0 {
		t.Errorf("limit 0 = %+v, %v", res, err)
	}
	res, err = v.SampleEquality(context.Background(), records.KindGenre, 5)
	if err != nil || !res.Match || res.Compared != 0 {
		t.Errorf("empty source = %+v, %v", res, err)
	}
}

func TestEqual(t *testing.T) {
	ts := time.Date(2021, 1, 1, 12, 0, 0, 0, time.UTC)
	berlin := time.FixedZone("CET", 3600)
	testCases := []struct {
		a, b any
		want bool
	}{
		{ts, ts.Add(999 * time.Millisecond), true},
		{ts, ts.In(berlin), true},
		{ts, ts.Add(time.Second), false},
		{ts, "2021-01-01", false},
		{"a", "a", true},
		{9, 9, true},
		{9, int64(9), false},
		{uuid.MustParse(g1), uuid.MustParse(g1), true},
	}
	for i, tc := range testCases {
		if got := Equal(tc.a, tc.b); got != tc.want {
			t.Errorf("case %d: Equal(%v, %v) = %v, want %v", i, tc.a, tc.b, got, tc.want)
		}
	}
}

func TestVerify_SQLiteGenres(t *testing.T) {
	ctx := context.Background()
	srcPath := testutil.NewDB(t, "source.db", testutil.SourceDDL)
	tgtPath := testutil.NewDB(t, "target.db", testutil.TargetDDL)
	testutil.Insert(t, srcPath, "genre",
		map[string]any{"id": g1, "name": "Drama", "description": nil, "created_at": "2021-06-16 20:14:09.221838+00", "updated_at": "2021-06-16 20:14:09.221855+00"},
		map[string]any{"id": g2, "name": "Comedy", "description": nil, "created_at": "2021-06-16 20:14:09.221838+00", "updated_at": "2021-06-16 20:14:09.221855+00"},
	)

	src, err := etlio.NewSQLiteSource(ctx, srcPath, time.Second, 5*time.Second)
	if err != nil {
		t.Fatalf("NewSQLiteSource() error: %v", err)
	}
	defer src.Close()
	tgt, err := etlio.NewSQLiteTarget(ctx, tgtPath, time.Second, 5*time.Second)
	if err != nil {
		t.Fatalf("NewSQLiteTarget() error: %v", err)
	}
	defer tgt.Close()

	cur, err := extract.New(src, nil).Stream(ctx, records.KindGenre, 500)
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}
	page, err := cur.Next(ctx)
	if err != nil {
		t.Fatalf("Next() error: %v", err)
	}
	l, _ := load.New(tgt, load.ModeTouch)
	if _, err := l.UpsertBatch(ctx, records.KindGenre, 0, page); err != nil {
		t.Fatalf("UpsertBatch() error: %v", err)
	}

	v := New(src, tgt, nil)
	res, err := v.Verify(ctx, records.KindGenre)
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if res.CountSource != 2 || res.CountTarget != 2 || !res.Match {
		t.Errorf("Verify() = %+v, want 2/2 match", res)
	}
	sample, err := v.SampleEquality(ctx, records.KindGenre, 100)
	if err != nil {
		t.Fatalf("SampleEquality() error: %v", err)
	}
	if !sample.Match || sample.Compared != 2 {
		t.Errorf("SampleEquality() = %+v", sample)
	}

	testutil.Exec(t, tgtPath, `UPDATE genre SET name = 'Tragedy' WHERE id = ?`, g1)
	sample, _ = v.SampleEquality(ctx, records.KindGenre, 100)
	if sample.Match || sample.FirstMismatchID != g1 {
		t.Errorf("after edit SampleEquality() = %+v, want mismatch at %s", sample, g1)
	}
}
