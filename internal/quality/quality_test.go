package quality

import (
	"os"
	"reflect"
	"strings"
	"testing"
	"time"

	"moviemigrate/internal/config"
	"moviemigrate/internal/logging"
	"moviemigrate/internal/records"

	"github.com/google/uuid"
)

func TestMain(m *testing.M) {
	logging.SetLevel(logging.None)
	os.Exit(m.Run())
}

var created = time.Date(2021, 6, 16, 20, 14, 9, 0, time.UTC)

func film(title, typ string, rating int) *records.FilmWork {
	return &records.FilmWork{ID: uuid.New(), Title: title, Type: typ, Rating: rating, Created: created, Modified: created}
}

func ruleNames(issues []Issue) []string {
	var names []string
	for _, i := range issues {
		names = append(names, i.Rule)
	}
	return names
}

func TestCheck_Builtins(t *testing.T) {
	c, err := New(nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	testCases := []struct {
		name string
		rec  records.Record
		want []string
	}{
		{"valid film", film("Star Wars", records.TypeMovie, 86), nil},
		{"rating out of range", film("Star Wars", records.TypeMovie, 150), []string{"rating_range"}},
		{"unknown type", film("Star Wars", "cartoon", 50), []string{"film_work_type"}},
		{"blank title", film("  ", records.TypeTVShow, 50), []string{"title_present"}},
		{"valid role", &records.PersonFilmWork{ID: uuid.New(), Role: records.RoleDirector}, nil},
		{"unknown role", &records.PersonFilmWork{ID: uuid.New(), Role: "producer"}, []string{"person_role"}},
		{"genre name", &records.Genre{ID: uuid.New()}, []string{"genre_name_present"}},
		{"no rules for kind", &records.GenreFilmWork{ID: uuid.New()}, nil},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := ruleNames(c.Check(tc.rec))
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("Check() failed rules = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestNew_ExtraRules(t *testing.T) {
	c, err := New([]config.QualityRule{
		{Name: "rating_range", Table: "film_work", Expression: "rating >= 10"},
		{Name: "recent", Table: "FilmWork", Expression: "created > '2020-01-01'"},
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	want := []string{"film_work_type", "rating_range", "recent", "title_present"}
	if got := c.Rules(records.KindFilmWork); !reflect.DeepEqual(got, want) {
		t.Errorf("Rules() = %v, want %v", got, want)
	}

	if got := ruleNames(c.Check(film("Old", records.TypeMovie, 150))); len(got) != 0 {
		t.Errorf("overridden rating_range still applied: %v", got)
	}
	old := film("Old", records.TypeMovie, 5)
	old.Created = time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := ruleNames(c.Check(old)); !reflect.DeepEqual(got, []string{"rating_range", "recent"}) {
		t.Errorf("Check() = %v", got)
	}
}

func TestNew_InvalidRules(t *testing.T) {
	testCases := []struct {
		name    string
		rule    config.QualityRule
		wantErr string
	}{
		{"unknown table", config.QualityRule{Name: "x", Table: "studio", Expression: "true"}, "unknown entity kind"},
		{"bad syntax", config.QualityRule{Name: "x", Table: "genre", Expression: "name =="}, "invalid expression"},
		{"unknown column", config.QualityRule{Name: "x", Table: "genre", Expression: "title != ''"}, "unknown column 'title'"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New([]config.QualityRule{tc.rule})
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("New() error = %v, want %q", err, tc.wantErr)
			}
		})
	}
}

func TestCheck_NonBooleanExpression(t *testing.T) {
	c, err := New([]config.QualityRule{{Name: "sum", Table: "film_work", Expression: "rating + 1"}})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	issues := c.Check(film("Star Wars", records.TypeMovie, 10))
	if len(issues) != 1 || issues[0].Err == nil || issues[0].Rule != "sum" {
		t.Errorf("Check() = %v, want one evaluation error for 'sum'", issues)
	}
}

func TestCheckPage(t *testing.T) {
	c, _ := New(nil)
	page := make([]records.Record, 0, 10)
	for i := 0; i < 10; i++ {
		page = append(page, film("", "cartoon", 10))
	}
	if n := c.CheckPage(records.KindFilmWork, page); n != 20 {
		t.Errorf("CheckPage() = %d, want 20", n)
	}
	if n := c.CheckPage(records.KindGenreFilmWork, []records.Record{&records.GenreFilmWork{}}); n != 0 {
		t.Errorf("CheckPage() without rules = %d", n)
	}
}

func TestParameters(t *testing.T) {
	f := film(" Star Wars ", records.TypeMovie, 9)
	p := Parameters(f)
	if p["rating"] != float64(9) {
		t.Errorf("rating = %#v", p["rating"])
	}
	if p["id"] != f.ID.String() {
		t.Errorf("id = %#v", p["id"])
	}
	if p["created"] != float64(created.Unix()) {
		t.Errorf("created = %#v", p["created"])
	}
	if p["title"] != "Star Wars" {
		t.Errorf("title = %#v", p["title"])
	}
}
