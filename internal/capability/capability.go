// Package capability describes structural roles a value can play (copying,
// logger injection, lifecycle, route mounting) and answers, at runtime,
// whether an arbitrary value plays them.
package capability

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Capability names a structural role
type Capability string

const (
	Copy       Capability = "copy"
	SetLogger  Capability = "set_logger"
	Initialize Capability = "initialize"
	Dispose    Capability = "dispose"
	Routes     Capability = "routes"
)

// all lists capabilities in the order Infer reports them
var all = []Capability{Copy, SetLogger, Initialize, Dispose, Routes}

// Copier is satisfied by values that can produce an independent copy of themselves
type Copier[T any] interface {
	Copy() T
}

// anyCopier is the erased form used for runtime checks
type anyCopier interface {
	Copy() any
}

// LoggerSetter is satisfied by components that accept an injected logger
type LoggerSetter interface {
	SetLogger(logger *zap.Logger)
}

// Initializer is satisfied by values with an initialization step
type Initializer interface {
	Initialize(ctx context.Context) error
}

// Disposer is satisfied by values that release resources
type Disposer interface {
	Dispose(ctx context.Context) error
}

// RouteMounter is satisfied by controllers that register HTTP routes
type RouteMounter interface {
	Routes(r chi.Router)
}

// Table records capabilities declared explicitly for types that cannot
// satisfy the interfaces above (for example, types from other packages)
type Table struct {
	mu      sync.RWMutex
	entries map[reflect.Type]map[Capability]struct{}
}

// NewTable creates an empty capability table
func NewTable() *Table {
	return &Table{
		entries: make(map[reflect.Type]map[Capability]struct{}),
	}
}

var global = NewTable()

// Register declares capabilities for the dynamic type of v in the global table.
//
// Example:
//
//	func init() {
//	    capability.Register(legacy.Pool{}, capability.Dispose)
//	}
func Register(v any, caps ...Capability) error {
	return global.Register(reflect.TypeOf(v), caps...)
}

// Register declares capabilities for t
func (t *Table) Register(typ reflect.Type, caps ...Capability) error {
	if typ == nil {
		return fmt.Errorf("capability: cannot register nil type")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	set, ok := t.entries[typ]
	if !ok {
		set = make(map[Capability]struct{}, len(caps))
		t.entries[typ] = set
	}
	for _, c := range caps {
		set[c] = struct{}{}
	}
	return nil
}

// Declared reports whether typ was registered with c
func (t *Table) Declared(typ reflect.Type, c Capability) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	_, ok := t.entries[typ][c]
	return ok
}

// Has reports whether v plays role c, checking interface conformance first
// and the global table second
func Has(v any, c Capability) bool {
	return global.Has(v, c)
}

// Has reports whether v plays role c, consulting this table as the fallback
func (t *Table) Has(v any, c Capability) bool {
	if v == nil {
		return false
	}
	if satisfies(v, c) {
		return true
	}
	return t.Declared(reflect.TypeOf(v), c)
}

// Infer returns every capability v plays, in a fixed order
func Infer(v any) []Capability {
	return global.Infer(v)
}

// Infer returns every capability v plays according to this table
func (t *Table) Infer(v any) []Capability {
	var caps []Capability
	for _, c := range all {
		if t.Has(v, c) {
			caps = append(caps, c)
		}
	}
	return caps
}

func satisfies(v any, c Capability) bool {
	switch c {
	case Copy:
		if _, ok := v.(anyCopier); ok {
			return true
		}
		return hasCopyMethod(v)
	case SetLogger:
		_, ok := v.(LoggerSetter)
		return ok
	case Initialize:
		_, ok := v.(Initializer)
		return ok
	case Dispose:
		_, ok := v.(Disposer)
		return ok
	case Routes:
		_, ok := v.(RouteMounter)
		return ok
	}
	return false
}

// hasCopyMethod accepts Copy methods with any single result, since
// Copier[T] cannot be asserted without knowing T
func hasCopyMethod(v any) bool {
	m, ok := reflect.TypeOf(v).MethodByName("Copy")
	if !ok {
		return false
	}
	// receiver is the first input
	return m.Type.NumIn() == 1 && m.Type.NumOut() == 1
}
