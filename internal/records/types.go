// Package records holds the per-entity value objects moved by the migrator
// and the field metadata derived from them. Column order for every SQL
// statement comes from the struct field order declared here.
package records

import (
	"time"

	"github.com/google/uuid"
)

// Record is a single row of one entity kind. The method set is sealed to
// this package, so the five types below are the only implementations.
type Record interface {
	Kind() Kind
	Identifier() uuid.UUID

	naturalKey() string
	setIdentifier(id uuid.UUID)
	normalize()
}

// FilmWork types.
const (
	TypeMovie  = "movie"
	TypeTVShow = "tv_show"
)

// PersonFilmWork roles.
const (
	RoleActor    = "actor"
	RoleDirector = "director"
	RoleWriter   = "writer"
)

type FilmWork struct {
	ID           uuid.UUID `db:"id,optional"`
	Title        string    `db:"title"`
	Description  string    `db:"description,optional"`
	CreationDate time.Time `db:"creation_date,optional"`
	Rating       int       `db:"rating,optional"`
	Type         string    `db:"type"`
	Created      time.Time `db:"created"`
	Modified     time.Time `db:"modified"`
}

func (r *FilmWork) Kind() Kind                 { return KindFilmWork }
func (r *FilmWork) Identifier() uuid.UUID      { return r.ID }
func (r *FilmWork) setIdentifier(id uuid.UUID) { r.ID = id }
func (r *FilmWork) naturalKey() string {
	return r.Title + "|" + r.Type + "|" + r.Created.UTC().Format(time.RFC3339Nano)
}

// CreationDate is a calendar date (DATE in the content schema). A missing
// one takes the day the row was created so that replays write the same
// value.
func (r *FilmWork) normalize() {
	if r.CreationDate.IsZero() {
		r.CreationDate = r.Created
	}
	if !r.CreationDate.IsZero() {
		r.CreationDate = Day(r.CreationDate)
	}
}

// Day truncates t to midnight UTC of its UTC date.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type Genre struct {
	ID          uuid.UUID `db:"id,optional"`
	Name        string    `db:"name"`
	Description string    `db:"description,optional"`
	Created     time.Time `db:"created"`
	Modified    time.Time `db:"modified"`
}

func (r *Genre) Kind() Kind                 { return KindGenre }
func (r *Genre) Identifier() uuid.UUID      { return r.ID }
func (r *Genre) setIdentifier(id uuid.UUID) { r.ID = id }
func (r *Genre) naturalKey() string {
	return r.Name + "|" + r.Created.UTC().Format(time.RFC3339Nano)
}
func (r *Genre) normalize() {}

type Person struct {
	ID       uuid.UUID `db:"id,optional"`
	FullName string    `db:"full_name"`
	Created  time.Time `db:"created"`
	Modified time.Time `db:"modified"`
}

func (r *Person) Kind() Kind                 { return KindPerson }
func (r *Person) Identifier() uuid.UUID      { return r.ID }
func (r *Person) setIdentifier(id uuid.UUID) { r.ID = id }
func (r *Person) naturalKey() string {
	return r.FullName + "|" + r.Created.UTC().Format(time.RFC3339Nano)
}
func (r *Person) normalize() {}

type GenreFilmWork struct {
	ID         uuid.UUID `db:"id,optional"`
	FilmWorkID uuid.UUID `db:"film_work_id"`
	GenreID    uuid.UUID `db:"genre_id"`
	Created    time.Time `db:"created"`
}

func (r *GenreFilmWork) Kind() Kind                 { return KindGenreFilmWork }
func (r *GenreFilmWork) Identifier() uuid.UUID      { return r.ID }
func (r *GenreFilmWork) setIdentifier(id uuid.UUID) { r.ID = id }
func (r *GenreFilmWork) naturalKey() string {
	return r.FilmWorkID.String() + "|" + r.GenreID.String()
}
func (r *GenreFilmWork) normalize() {}

type PersonFilmWork struct {
	ID         uuid.UUID `db:"id,optional"`
	FilmWorkID uuid.UUID `db:"film_work_id"`
	PersonID   uuid.UUID `db:"person_id"`
	Role       string    `db:"role"`
	Created    time.Time `db:"created"`
}

func (r *PersonFilmWork) Kind() Kind                 { return KindPersonFilmWork }
func (r *PersonFilmWork) Identifier() uuid.UUID      { return r.ID }
func (r *PersonFilmWork) setIdentifier(id uuid.UUID) { r.ID = id }
func (r *PersonFilmWork) naturalKey() string {
	return r.FilmWorkID.String() + "|" + r.PersonID.String() + "|" + r.Role
}
func (r *PersonFilmWork) normalize() {}

// New returns a zero record of kind k, or nil for an invalid kind.
func New(k Kind) Record {
	switch k {
	case KindFilmWork:
		return &FilmWork{}
	case KindGenre:
		return &Genre{}
	case KindPerson:
		return &Person{}
	case KindGenreFilmWork:
		return &GenreFilmWork{}
	case KindPersonFilmWork:
		return &PersonFilmWork{}
	default:
		return nil
	}
}
