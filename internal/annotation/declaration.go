package annotation

import (
	"fmt"
	"reflect"
	"runtime"
)

// Declaration identifies an annotated program entity: a Go type or a
// function. Identity is the entity itself, never its name, so two types
// called User in different packages are different declarations.
type Declaration struct {
	typ reflect.Type
	pc  uintptr // function entry point; zero for types
}

// TypeOf returns the declaration of type T
func TypeOf[T any]() Declaration {
	return Declaration{typ: reflect.TypeFor[T]()}
}

// Of returns the declaration for v.
//
// Functions are identified by their entry point, reflect.Type values by the
// type they describe, Declarations by themselves, and any other value by its
// dynamic type.
//
// An entry point names code, not a closure instance. Every closure built from
// one func literal shares a declaration, whatever it captured, and so does
// every method value of one method regardless of its receiver.
func Of(v any) Declaration {
	switch x := v.(type) {
	case nil:
		return Declaration{}
	case Declaration:
		return x
	case reflect.Type:
		return Declaration{typ: x}
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Func {
		if rv.IsNil() {
			return Declaration{}
		}
		return Declaration{typ: rv.Type(), pc: rv.Pointer()}
	}
	return Declaration{typ: rv.Type()}
}

// IsZero reports whether d identifies nothing
func (d Declaration) IsZero() bool {
	return d.typ == nil
}

// IsFunc reports whether d identifies a function
func (d Declaration) IsFunc() bool {
	return d.pc != 0
}

// Type returns the declared type, or the signature for functions
func (d Declaration) Type() reflect.Type {
	return d.typ
}

// Name renders a human readable name
func (d Declaration) Name() string {
	switch {
	case d.typ == nil:
		return "<nil>"
	case d.pc != 0:
		if fn := runtime.FuncForPC(d.pc); fn != nil {
			return fn.Name()
		}
		return fmt.Sprintf("func@%#x", d.pc)
	case d.typ.Name() != "" && d.typ.PkgPath() != "":
		return d.typ.PkgPath() + "." + d.typ.Name()
	default:
		return d.typ.String()
	}
}

// String implements fmt.Stringer
func (d Declaration) String() string {
	return d.Name()
}

// candidates expands a query subject into the declarations it may refer to.
// A pointer value may be annotated through its pointer type or its element
// type, so both are returned.
func candidates(subject any) []Declaration {
	switch subject.(type) {
	case nil:
		return nil
	case Declaration, reflect.Type:
		d := Of(subject)
		if d.IsZero() {
			return nil
		}
		return []Declaration{d}
	}

	d := Of(subject)
	if d.IsZero() {
		return nil
	}
	if !d.IsFunc() && d.typ.Kind() == reflect.Pointer {
		return []Declaration{d, {typ: d.typ.Elem()}}
	}
	return []Declaration{d}
}
