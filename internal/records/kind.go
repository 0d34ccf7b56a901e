package records

import (
	"fmt"
	"strings"
)

// Kind is one of the five entity kinds moved by the migrator. The set is
// closed; there is no registry keyed by arbitrary strings.
type Kind int

const (
	KindFilmWork Kind = iota
	KindGenre
	KindPerson
	KindGenreFilmWork
	KindPersonFilmWork
)

var kindNames = [...]string{"FilmWork", "Genre", "Person", "GenreFilmWork", "PersonFilmWork"}

var kindTables = [...]string{"film_work", "genre", "person", "genre_film_work", "person_film_work"}

// Kinds returns every entity kind in dependency order: the three
// independent entities first, then the join tables.
func Kinds() []Kind {
	return []Kind{KindFilmWork, KindGenre, KindPerson, KindGenreFilmWork, KindPersonFilmWork}
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool { return k >= KindFilmWork && k <= KindPersonFilmWork }

func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Table is the table name, identical in source and target stores.
func (k Kind) Table() string {
	if !k.Valid() {
		return ""
	}
	return kindTables[k]
}

// Dependencies lists the kinds whose rows must exist in the target before
// k can be loaded (foreign keys).
func Dependencies(k Kind) []Kind {
	switch k {
	case KindGenreFilmWork:
		return []Kind{KindFilmWork, KindGenre}
	case KindPersonFilmWork:
		return []Kind{KindFilmWork, KindPerson}
	default:
		return nil
	}
}

// ParseKind accepts a table name ("genre_film_work") or a kind name
// ("GenreFilmWork"), case-insensitively.
func ParseKind(s string) (Kind, error) {
	needle := strings.TrimSpace(s)
	for _, k := range Kinds() {
		if strings.EqualFold(needle, k.Table()) || strings.EqualFold(needle, k.String()) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown entity kind '%s'", s)
}
