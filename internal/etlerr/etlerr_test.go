package etlerr

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestKind(t *testing.T) {
	cause := errors.New("boom")
	testCases := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"plain", cause, "error"},
		{"schema", &SchemaMismatchError{Table: "genre", Column: "x", Reason: "unmapped"}, "SchemaMismatch"},
		{"schema inside extract", &ExtractError{Entity: "genre", Page: 2, Cause: &SchemaMismatchError{Table: "genre"}}, "SchemaMismatch"},
		{"extract", &ExtractError{Entity: "genre", Cause: cause}, "ExtractFailure"},
		{"extract timeout", &ExtractError{Entity: "genre", Cause: Timeout("fetch", nil)}, "ExtractFailure/Timeout"},
		{"load", &LoadError{Entity: "person", BatchIndex: 3, Cause: cause}, "LoadFailure"},
		{"load timeout", &LoadError{Entity: "person", Cause: Timeout("exec", cause)}, "LoadFailure/Timeout"},
		{"dependency", fmt.Errorf("skip: %w", ErrDependencyFailed), "DependencyFailed"},
		{"canceled", fmt.Errorf("stop: %w", ErrCanceled), "Canceled"},
		{"canceled mid extract", &ExtractError{Entity: "genre", Cause: fmt.Errorf("fetch: %w", ErrCanceled)}, "Canceled"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Kind(tc.err); got != tc.want {
				t.Errorf("Kind(%v) = %q, want %q", tc.err, got, tc.want)
			}
		})
	}
}

func TestLoadError_UnwrapAndMessage(t *testing.T) {
	cause := errors.New("duplicate key value violates unique constraint")
	err := &LoadError{Entity: "genre_film_work", BatchIndex: 4, Cause: cause}
	if !errors.Is(err, ErrLoadFailure) {
		t.Error("LoadError should match ErrLoadFailure")
	}
	if !errors.Is(err, cause) {
		t.Error("LoadError should unwrap to its cause")
	}
	if !strings.Contains(err.Error(), "batch 4") || !strings.Contains(err.Error(), "genre_film_work") {
		t.Errorf("unexpected message: %q", err.Error())
	}
}

func TestTimeout(t *testing.T) {
	err := Timeout("count genre", errors.New("context deadline exceeded"))
	if !errors.Is(err, ErrTimeout) {
		t.Fatal("Timeout() result must match ErrTimeout")
	}
	if !strings.Contains(err.Error(), "count genre") {
		t.Errorf("message lost operation: %q", err.Error())
	}
}
