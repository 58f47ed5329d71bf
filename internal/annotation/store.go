// Package annotation keeps structured metadata about declarations outside
// the declarations themselves, partitioned by annotation kind and queryable
// by declaration identity or by kind.
package annotation

import (
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Policy decides what happens when a kind is attached twice to one declaration
type Policy int

const (
	// PolicyOverwrite replaces the metadata and keeps the original registration position
	PolicyOverwrite Policy = iota
	// PolicyStrict rejects the second attach with a DuplicateError
	PolicyStrict
)

// String returns the configuration name of the policy
func (p Policy) String() string {
	switch p {
	case PolicyStrict:
		return "strict"
	default:
		return "overwrite"
	}
}

// ParsePolicy parses a configuration value ("overwrite" or "strict")
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "overwrite":
		return PolicyOverwrite, nil
	case "strict":
		return PolicyStrict, nil
	default:
		return PolicyOverwrite, fmt.Errorf("unknown annotation policy %q", s)
	}
}

// Option configures a Store
type Option func(*Store)

// WithPolicy sets the re-attach policy
func WithPolicy(p Policy) Option {
	return func(s *Store) { s.policy = p }
}

// WithLogger sets the logger used for attach diagnostics
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

type entry struct {
	decl Declaration
	meta any
}

// partition holds one kind's annotations in registration order
type partition struct {
	mu      sync.RWMutex
	index   map[Declaration]int
	entries []entry
}

// Store maps (kind, declaration) pairs to metadata.
//
// Writes to a kind serialize on that kind's partition lock. Reads copy out
// under a read lock, so concurrent readers never observe a torn entry.
type Store struct {
	mu         sync.RWMutex
	partitions map[string]*partition
	kinds      []string
	ids        map[Declaration]uuid.UUID

	policy Policy
	logger *zap.Logger
}

// NewStore creates an empty store
func NewStore(opts ...Option) *Store {
	s := &Store{
		partitions: make(map[string]*partition),
		ids:        make(map[Declaration]uuid.UUID),
		policy:     PolicyOverwrite,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy returns the store's re-attach policy
func (s *Store) Policy() Policy {
	return s.policy
}

// Attach records metadata for d under kind
func (s *Store) Attach(kind string, d Declaration, meta any) error {
	if kind == "" {
		return errors.New("annotation kind must not be empty")
	}
	if d.IsZero() {
		return fmt.Errorf("cannot attach %s annotation to a nil declaration", kind)
	}

	p := s.partition(kind, true)

	p.mu.Lock()
	if i, exists := p.index[d]; exists {
		if s.policy == PolicyStrict {
			p.mu.Unlock()
			s.logger.Warn("rejected duplicate annotation",
				zap.String("kind", kind),
				zap.Stringer("declaration", d),
			)
			return &DuplicateError{Kind: kind, Declaration: d}
		}
		p.entries[i].meta = meta
	} else {
		p.index[d] = len(p.entries)
		p.entries = append(p.entries, entry{decl: d, meta: meta})
	}
	p.mu.Unlock()

	s.assignID(d)

	s.logger.Debug("attached annotation",
		zap.String("kind", kind),
		zap.Stringer("declaration", d),
	)
	return nil
}

// GetOrNone returns the metadata attached to exactly d, if any
func (s *Store) GetOrNone(kind string, d Declaration) (any, bool) {
	p := s.partition(kind, false)
	if p == nil {
		return nil, false
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	i, ok := p.index[d]
	if !ok {
		return nil, false
	}
	return p.entries[i].meta, true
}

// Get is GetOrNone that fails with a NotFoundError when absent
func (s *Store) Get(kind string, d Declaration) (any, error) {
	meta, ok := s.GetOrNone(kind, d)
	if !ok {
		return nil, &NotFoundError{Kind: kind, Declaration: d}
	}
	return meta, nil
}

// Resolve looks up subject, which may be a declaration, a type, a function,
// or a value whose type (or pointed-to type) is annotated
func (s *Store) Resolve(kind string, subject any) Match {
	var found []Match
	for _, d := range candidates(subject) {
		if meta, ok := s.GetOrNone(kind, d); ok {
			found = append(found, Match{State: Present, Declaration: d, Metadata: meta})
		}
	}

	switch len(found) {
	case 0:
		return Match{State: Absent}
	case 1:
		return found[0]
	}

	decls := make([]Declaration, len(found))
	for i, m := range found {
		decls[i] = m.Declaration
	}
	return Match{State: Ambiguous, Candidates: decls}
}

// SingleOrNone returns the one matching annotation for subject. Absence is
// reported as ok == false; more than one match is an AmbiguousError.
func (s *Store) SingleOrNone(kind string, subject any) (any, bool, error) {
	m := s.Resolve(kind, subject)
	switch m.State {
	case Present:
		return m.Metadata, true, nil
	case Ambiguous:
		return nil, false, &AmbiguousError{Kind: kind, Candidates: m.Candidates}
	default:
		return nil, false, nil
	}
}

// All yields every declaration annotated with kind in registration order.
// Each iteration reads a fresh snapshot, so the sequence can be ranged over
// repeatedly.
func (s *Store) All(kind string) iter.Seq2[Declaration, any] {
	return func(yield func(Declaration, any) bool) {
		for _, e := range s.snapshot(kind) {
			if !yield(e.decl, e.meta) {
				return
			}
		}
	}
}

// Len returns the number of declarations annotated with kind
func (s *Store) Len(kind string) int {
	p := s.partition(kind, false)
	if p == nil {
		return 0
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

// Kinds returns every kind that has been attached, in first-use order
func (s *Store) Kinds() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	kinds := make([]string, len(s.kinds))
	copy(kinds, s.kinds)
	return kinds
}

// ID returns the stable identifier assigned to d on its first attach
func (s *Store) ID(d Declaration) (uuid.UUID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.ids[d]
	return id, ok
}

func (s *Store) snapshot(kind string) []entry {
	p := s.partition(kind, false)
	if p == nil {
		return nil
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]entry, len(p.entries))
	copy(out, p.entries)
	return out
}

func (s *Store) partition(kind string, create bool) *partition {
	s.mu.RLock()
	p, ok := s.partitions[kind]
	s.mu.RUnlock()
	if ok || !create {
		return p
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check after acquiring the write lock
	if p, ok := s.partitions[kind]; ok {
		return p
	}
	p = &partition{index: make(map[Declaration]int)}
	s.partitions[kind] = p
	s.kinds = append(s.kinds, kind)
	return p
}

func (s *Store) assignID(d Declaration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[d]; !ok {
		s.ids[d] = uuid.New()
	}
}
