// Package container registers stereotyped components and manages their
// lifecycle.
package container

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/conduit-lang/stereotype/internal/annotation"
	"github.com/conduit-lang/stereotype/internal/capability"
	"github.com/conduit-lang/stereotype/internal/stereotype"
)

var (
	// ErrNotComponent is returned when registering a value without a stereotype
	ErrNotComponent = errors.New("not a component")
	// ErrAlreadyRegistered is returned when a component is registered twice
	ErrAlreadyRegistered = errors.New("component already registered")
	// ErrComponentNotFound is returned by Get when no component matches
	ErrComponentNotFound = errors.New("component not found")
)

// CannotRegisterNonComponentError reports a registration of a value whose
// declaration carries no stereotype
type CannotRegisterNonComponentError struct {
	Declaration annotation.Declaration
}

func (e *CannotRegisterNonComponentError) Error() string {
	return fmt.Sprintf("cannot register %s: no stereotype attached", e.Declaration)
}

func (e *CannotRegisterNonComponentError) Unwrap() error { return ErrNotComponent }

// Registration is one managed component
type Registration struct {
	ID           uuid.UUID
	Declaration  annotation.Declaration
	Stereotypes  []stereotype.Stereotype
	Capabilities []capability.Capability
	Component    any
}

// Name returns the component's name: the first named stereotype, or the
// declaration name
func (r Registration) Name() string {
	for _, s := range r.Stereotypes {
		switch s := s.(type) {
		case stereotype.Service:
			if s.Name != "" {
				return s.Name
			}
		case stereotype.Repository:
			if s.Name != "" {
				return s.Name
			}
		case stereotype.UseCase:
			if s.Name != "" {
				return s.Name
			}
		case stereotype.Configuration:
			if s.Name != "" {
				return s.Name
			}
		}
	}
	return r.Declaration.Name()
}

// Is reports whether the registration carries a stereotype of kind
func (r Registration) Is(kind string) bool {
	for _, s := range r.Stereotypes {
		if s.Kind() == kind {
			return true
		}
	}
	return false
}

// Container holds managed components in registration order
type Container struct {
	store  *annotation.Store
	logger *zap.Logger

	mu            sync.RWMutex
	registrations []Registration
	seen          map[annotation.Declaration]struct{}
	initialized   int
}

// New creates a container reading stereotypes from store (the default store
// if nil)
func New(store *annotation.Store, logger *zap.Logger) *Container {
	if store == nil {
		store = annotation.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Container{
		store:  store,
		logger: logger,
		seen:   make(map[annotation.Declaration]struct{}),
	}
}

// RegisterManagedComponent adds component to the container. The component
// must be a function or a value whose type (or pointed-to type) carries at
// least one stereotype. Components accepting a logger receive a named child
// of the container's logger.
func (c *Container) RegisterManagedComponent(component any) error {
	if component == nil {
		return &CannotRegisterNonComponentError{}
	}

	decl, stereotypes, err := c.resolve(component)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if _, dup := c.seen[decl]; dup {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, decl)
	}
	id, ok := c.store.ID(decl)
	if !ok {
		id = uuid.New()
	}
	reg := Registration{
		ID:           id,
		Declaration:  decl,
		Stereotypes:  stereotypes,
		Capabilities: capability.Infer(component),
		Component:    component,
	}
	c.seen[decl] = struct{}{}
	c.registrations = append(c.registrations, reg)
	c.mu.Unlock()

	if setter, ok := component.(capability.LoggerSetter); ok {
		setter.SetLogger(c.logger.Named(reg.Name()))
	}

	c.logger.Debug("registered component",
		zap.String("name", reg.Name()),
		zap.String("declaration", decl.String()),
		zap.Int("stereotypes", len(stereotypes)),
	)
	return nil
}

// resolve finds the single annotated declaration behind component
func (c *Container) resolve(component any) (annotation.Declaration, []stereotype.Stereotype, error) {
	var (
		decl  annotation.Declaration
		found []stereotype.Stereotype
	)
	for _, kind := range stereotype.Kinds() {
		m := c.store.Resolve(kind, component)
		switch m.State {
		case annotation.Ambiguous:
			return annotation.Declaration{}, nil, &annotation.AmbiguousError{Kind: kind, Candidates: m.Candidates}
		case annotation.Present:
			s, ok := m.Metadata.(stereotype.Stereotype)
			if !ok {
				continue
			}
			if !decl.IsZero() && decl != m.Declaration {
				return annotation.Declaration{}, nil, &annotation.AmbiguousError{
					Kind:       kind,
					Candidates: []annotation.Declaration{decl, m.Declaration},
				}
			}
			decl = m.Declaration
			found = append(found, s)
		}
	}

	if len(found) == 0 {
		return annotation.Declaration{}, nil, &CannotRegisterNonComponentError{Declaration: annotation.Of(component)}
	}
	return decl, found, nil
}

// Components returns every registration in registration order
func (c *Container) Components() []Registration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.registrations)
}

// ByKind returns the registrations carrying a stereotype of kind
func (c *Container) ByKind(kind string) []Registration {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []Registration
	for _, r := range c.registrations {
		if r.Is(kind) {
			out = append(out, r)
		}
	}
	return out
}

// Get returns the single registered component assignable to T
func Get[T any](c *Container) (T, error) {
	var zero T
	want := reflect.TypeFor[T]()

	c.mu.RLock()
	defer c.mu.RUnlock()

	var matches []Registration
	for _, r := range c.registrations {
		if reflect.TypeOf(r.Component).AssignableTo(want) {
			matches = append(matches, r)
		}
	}

	switch len(matches) {
	case 0:
		return zero, fmt.Errorf("%w: %s", ErrComponentNotFound, want)
	case 1:
		return matches[0].Component.(T), nil
	}

	decls := make([]annotation.Declaration, len(matches))
	for i, m := range matches {
		decls[i] = m.Declaration
	}
	return zero, &annotation.AmbiguousError{Kind: want.String(), Candidates: decls}
}

// MountControllers mounts every registered Controller that provides routes
// under its prefix
func (c *Container) MountControllers(r chi.Router) int {
	mounted := 0
	for _, reg := range c.ByKind(stereotype.KindController) {
		mounter, ok := reg.Component.(capability.RouteMounter)
		if !ok {
			c.logger.Warn("controller has no routes", zap.String("name", reg.Name()))
			continue
		}

		prefix := ""
		for _, s := range reg.Stereotypes {
			if ctl, ok := s.(stereotype.Controller); ok {
				prefix = ctl.Prefix
			}
		}
		if prefix == "" || prefix == "/" {
			r.Group(mounter.Routes)
		} else {
			r.Route(prefix, mounter.Routes)
		}
		mounted++
		c.logger.Info("mounted controller", zap.String("name", reg.Name()), zap.String("prefix", prefix))
	}
	return mounted
}

// Initialize initializes components in registration order. If one fails,
// those already initialized are disposed in reverse order.
func (c *Container) Initialize(ctx context.Context) error {
	regs := c.Components()
	for i, reg := range regs {
		initializer, ok := reg.Component.(capability.Initializer)
		if !ok {
			continue
		}
		if err := initializer.Initialize(ctx); err != nil {
			c.disposeRange(ctx, regs[:i])
			return fmt.Errorf("initialize %s: %w", reg.Name(), err)
		}
	}

	c.mu.Lock()
	c.initialized = len(regs)
	c.mu.Unlock()
	return nil
}

// Dispose disposes initialized components in reverse registration order,
// continuing past failures
func (c *Container) Dispose(ctx context.Context) error {
	c.mu.Lock()
	n := c.initialized
	c.initialized = 0
	regs := slices.Clone(c.registrations[:n])
	c.mu.Unlock()

	return c.disposeRange(ctx, regs)
}

func (c *Container) disposeRange(ctx context.Context, regs []Registration) error {
	var errs []error
	for i := len(regs) - 1; i >= 0; i-- {
		d, ok := regs[i].Component.(capability.Disposer)
		if !ok {
			continue
		}
		if err := d.Dispose(ctx); err != nil {
			c.logger.Error("failed to dispose component", zap.String("name", regs[i].Name()), zap.Error(err))
			errs = append(errs, fmt.Errorf("dispose %s: %w", regs[i].Name(), err))
		}
	}
	return errors.Join(errs...)
}
