// Package stereotype declares the architectural roles application types and
// functions can be tagged with, recorded in the annotation store.
//
// Declarations are made at initialization time and leave the declared type
// or function untouched:
//
//	var _ = stereotype.Declare[*UserRepository](stereotype.Repository{Entity: "User"})
//	var _ = stereotype.Declare[*UserController](stereotype.Controller{Prefix: "/users"})
//
//	var Authenticate = stereotype.Func(authenticate, stereotype.UseCase{Name: "authenticate"})
package stereotype

import (
	"fmt"

	"github.com/conduit-lang/stereotype/internal/annotation"
)

// Stereotype is the metadata attached by a role declaration
type Stereotype interface {
	Kind() string
}

// Kind names
const (
	KindService       = "Service"
	KindRepository    = "Repository"
	KindController    = "Controller"
	KindUseCase       = "UseCase"
	KindConfiguration = "Configuration"
)

// Service marks a domain or application service
type Service struct {
	Name string
}

func (Service) Kind() string { return KindService }

// Repository marks a persistence gateway for an entity
type Repository struct {
	Name   string
	Entity string
}

func (Repository) Kind() string { return KindRepository }

// Controller marks an HTTP controller mounted under Prefix
type Controller struct {
	Prefix string
}

func (Controller) Kind() string { return KindController }

// UseCase marks an application use case
type UseCase struct {
	Name string
}

func (UseCase) Kind() string { return KindUseCase }

// Configuration marks a factory of configured components
type Configuration struct {
	Name string
}

func (Configuration) Kind() string { return KindConfiguration }

// Typed views of each kind over the default store. Use In to query another store.
var (
	ServiceKind       = annotation.NewKind[Service](KindService)
	RepositoryKind    = annotation.NewKind[Repository](KindRepository)
	ControllerKind    = annotation.NewKind[Controller](KindController)
	UseCaseKind       = annotation.NewKind[UseCase](KindUseCase)
	ConfigurationKind = annotation.NewKind[Configuration](KindConfiguration)
)

// kinds lists the built-in kinds in the order Of reports them
var kinds = []string{
	KindService,
	KindRepository,
	KindController,
	KindUseCase,
	KindConfiguration,
}

// Kinds returns the names of the built-in kinds
func Kinds() []string {
	out := make([]string, len(kinds))
	copy(out, kinds)
	return out
}

// Declare annotates type T in the default store and panics if the store
// rejects it. It is meant for package-level var blocks and init functions.
func Declare[T any](s Stereotype) annotation.Declaration {
	d, err := DeclareIn[T](annotation.Default(), s)
	if err != nil {
		panic(err)
	}
	return d
}

// DeclareIn annotates type T in store
func DeclareIn[T any](store *annotation.Store, s Stereotype) (annotation.Declaration, error) {
	d := annotation.TypeOf[T]()
	if err := attach(store, d, s); err != nil {
		return annotation.Declaration{}, err
	}
	return d, nil
}

// Func annotates fn in the default store and returns fn unchanged. It panics
// if fn is not a function or the store rejects the declaration.
func Func[F any](fn F, s Stereotype) F {
	out, err := FuncIn(annotation.Default(), fn, s)
	if err != nil {
		panic(err)
	}
	return out
}

// FuncIn annotates fn in store and returns fn unchanged. Closures from the
// same func literal are one declaration (see annotation.Of), so annotating a
// second one replaces or duplicates the first according to the store policy.
func FuncIn[F any](store *annotation.Store, fn F, s Stereotype) (F, error) {
	d := annotation.Of(fn)
	if !d.IsFunc() {
		return fn, fmt.Errorf("stereotype %s: %T is not a non-nil function", kindOf(s), fn)
	}
	if err := attach(store, d, s); err != nil {
		return fn, err
	}
	return fn, nil
}

// Of returns every built-in stereotype attached to d
func Of(store *annotation.Store, d annotation.Declaration) []Stereotype {
	var out []Stereotype
	for _, kind := range kinds {
		meta, ok := store.GetOrNone(kind, d)
		if !ok {
			continue
		}
		if s, ok := meta.(Stereotype); ok {
			out = append(out, s)
		}
	}
	return out
}

// IsComponent reports whether d carries at least one built-in stereotype
func IsComponent(store *annotation.Store, d annotation.Declaration) bool {
	return len(Of(store, d)) > 0
}

func attach(store *annotation.Store, d annotation.Declaration, s Stereotype) error {
	if s == nil {
		return fmt.Errorf("stereotype: nil stereotype for %s", d)
	}
	if err := store.Attach(s.Kind(), d, s); err != nil {
		return fmt.Errorf("stereotype %s on %s: %w", s.Kind(), d, err)
	}
	return nil
}

func kindOf(s Stereotype) string {
	if s == nil {
		return "<nil>"
	}
	return s.Kind()
}
