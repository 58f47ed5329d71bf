package annotation

import (
	"fmt"
	"iter"
	"reflect"
)

// Kind is a typed view of one annotation kind. The zero store binding means
// the process-wide Default store.
//
// Example:
//
//	var Routes = annotation.NewKind[Route]("Route")
//
//	func init() {
//	    Routes.Attach(annotation.TypeOf[UserHandler](), Route{Path: "/users"})
//	}
type Kind[M any] struct {
	name  string
	store *Store
}

// NewKind creates a kind named name bound to the default store
func NewKind[M any](name string) Kind[M] {
	return Kind[M]{name: name}
}

// Name returns the kind name
func (k Kind[M]) Name() string {
	return k.name
}

// In returns the same kind bound to s
func (k Kind[M]) In(s *Store) Kind[M] {
	k.store = s
	return k
}

// Store returns the store the kind reads and writes
func (k Kind[M]) Store() *Store {
	if k.store != nil {
		return k.store
	}
	return Default()
}

// Attach records meta for d
func (k Kind[M]) Attach(d Declaration, meta M) error {
	return k.Store().Attach(k.name, d, meta)
}

// GetOrNone returns the metadata attached to exactly d. Metadata of a
// different Go type is reported as absent; use Get to see the mismatch.
func (k Kind[M]) GetOrNone(d Declaration) (M, bool) {
	raw, ok := k.Store().GetOrNone(k.name, d)
	if !ok {
		var zero M
		return zero, false
	}
	meta, ok := raw.(M)
	return meta, ok
}

// Get returns the metadata attached to d or a NotFoundError
func (k Kind[M]) Get(d Declaration) (M, error) {
	raw, err := k.Store().Get(k.name, d)
	if err != nil {
		var zero M
		return zero, err
	}
	return k.cast(raw)
}

// Resolve is Store.Resolve for this kind
func (k Kind[M]) Resolve(subject any) Match {
	return k.Store().Resolve(k.name, subject)
}

// SingleOrNone is Store.SingleOrNone with typed metadata
func (k Kind[M]) SingleOrNone(subject any) (M, bool, error) {
	var zero M

	raw, ok, err := k.Store().SingleOrNone(k.name, subject)
	if err != nil || !ok {
		return zero, ok, err
	}
	meta, err := k.cast(raw)
	if err != nil {
		return zero, false, err
	}
	return meta, true, nil
}

// All yields declarations and typed metadata in registration order,
// skipping entries whose metadata has a different Go type
func (k Kind[M]) All() iter.Seq2[Declaration, M] {
	return func(yield func(Declaration, M) bool) {
		for d, raw := range k.Store().All(k.name) {
			meta, ok := raw.(M)
			if !ok {
				continue
			}
			if !yield(d, meta) {
				return
			}
		}
	}
}

// Len returns the number of declarations annotated with this kind
func (k Kind[M]) Len() int {
	return k.Store().Len(k.name)
}

func (k Kind[M]) cast(raw any) (M, error) {
	meta, ok := raw.(M)
	if !ok {
		var zero M
		return zero, &TypeMismatchError{
			Kind: k.name,
			Want: reflect.TypeFor[M]().String(),
			Got:  fmt.Sprintf("%T", raw),
		}
	}
	return meta, nil
}
