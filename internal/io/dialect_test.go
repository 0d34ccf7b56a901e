package io

import (
	"context"
	"errors"
	"testing"
	"time"

	"moviemigrate/internal/etlerr"
)

func TestDialects(t *testing.T) {
	pg := PostgresDialect{Schema: "content"}
	if got := pg.Table("film_work"); got != `"content"."film_work"` {
		t.Errorf("PostgresDialect.Table() = %s", got)
	}
	if got := (PostgresDialect{}).Table("genre"); got != `"genre"` {
		t.Errorf("PostgresDialect{}.Table() = %s", got)
	}
	if pg.Placeholder(12) != "$12" {
		t.Errorf("PostgresDialect.Placeholder(12) = %s", pg.Placeholder(12))
	}
	lite := SQLiteDialect{}
	if lite.Placeholder(12) != "?" || lite.Table("genre") != `"genre"` {
		t.Error("SQLiteDialect placeholders/table wrong")
	}
	if got := quoteIdent(`we"ird`); got != `"we""ird"` {
		t.Errorf("quoteIdent() = %s", got)
	}
}

func TestLookupQuery(t *testing.T) {
	got := lookupQuery(PostgresDialect{Schema: "content"}, "genre", []string{"id", "name"}, 3)
	want := `SELECT "id", "name" FROM "content"."genre" WHERE "id" IN ($1, $2, $3)`
	if got != want {
		t.Errorf("lookupQuery(pg) =\n%s\nwant\n%s", got, want)
	}
	got = lookupQuery(SQLiteDialect{}, "genre", []string{"id"}, 2)
	want = `SELECT "id" FROM "genre" WHERE "id" IN (?, ?)`
	if got != want {
		t.Errorf("lookupQuery(sqlite) =\n%s\nwant\n%s", got, want)
	}
}

func TestClassify(t *testing.T) {
	boom := errors.New("boom")
	bg := context.Background()

	if classify(bg, bg, "op", nil) != nil {
		t.Error("classify(nil) should be nil")
	}
	if err := classify(bg, bg, "op", boom); !errors.Is(err, boom) || errors.Is(err, etlerr.ErrTimeout) {
		t.Errorf("plain error misclassified: %v", err)
	}

	expired, cancel := context.WithTimeout(bg, time.Nanosecond)
	defer cancel()
	<-expired.Done()
	if err := classify(bg, expired, "op", context.DeadlineExceeded); !errors.Is(err, etlerr.ErrTimeout) {
		t.Errorf("own deadline should be ErrTimeout, got %v", err)
	}

	parent, stop := context.WithCancel(bg)
	stop()
	if err := classify(parent, parent, "op", context.Canceled); !errors.Is(err, etlerr.ErrCanceled) {
		t.Errorf("parent cancellation should be ErrCanceled, got %v", err)
	}
}
