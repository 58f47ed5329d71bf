package annotation

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is matched by NotFoundError
	ErrNotFound = errors.New("annotation not found")
	// ErrDuplicate is matched by DuplicateError
	ErrDuplicate = errors.New("duplicate annotation")
	// ErrAmbiguous is matched by AmbiguousError
	ErrAmbiguous = errors.New("ambiguous annotation")
	// ErrTypeMismatch is matched by TypeMismatchError
	ErrTypeMismatch = errors.New("annotation type mismatch")
)

// NotFoundError is returned by Get when a declaration carries no annotation of the kind
type NotFoundError struct {
	Kind        string
	Declaration Declaration
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s annotation not found on %s", e.Kind, e.Declaration)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// DuplicateError is returned by Attach under PolicyStrict
type DuplicateError struct {
	Kind        string
	Declaration Declaration
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s annotation already attached to %s", e.Kind, e.Declaration)
}

func (e *DuplicateError) Unwrap() error { return ErrDuplicate }

// AmbiguousError is returned when a single-valued query matches more than one declaration
type AmbiguousError struct {
	Kind       string
	Candidates []Declaration
}

func (e *AmbiguousError) Error() string {
	names := make([]string, len(e.Candidates))
	for i, d := range e.Candidates {
		names[i] = d.Name()
	}
	return fmt.Sprintf("%s annotation is ambiguous: matched %s", e.Kind, strings.Join(names, ", "))
}

func (e *AmbiguousError) Unwrap() error { return ErrAmbiguous }

// TypeMismatchError is returned by typed kinds when the stored metadata has another type
type TypeMismatchError struct {
	Kind string
	Want string
	Got  string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("%s annotation holds %s, want %s", e.Kind, e.Got, e.Want)
}

func (e *TypeMismatchError) Unwrap() error { return ErrTypeMismatch }

// IsNotFound reports whether err is an absence error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
