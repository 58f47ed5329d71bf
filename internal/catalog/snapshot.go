// Package catalog publishes a snapshot of an annotation store so other
// processes can see which components are declared.
package catalog

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/conduit-lang/stereotype/internal/annotation"
)

// Entry is one annotation in a snapshot
type Entry struct {
	ID          string          `json:"id"`
	Kind        string          `json:"kind"`
	Name        string          `json:"name"`
	Declaration string          `json:"declaration"`
	Func        bool            `json:"func"`
	Metadata    json.RawMessage `json:"metadata"`
}

// Snapshot is the content of a store at one point in time
type Snapshot struct {
	ID          uuid.UUID `json:"id"`
	GeneratedAt time.Time `json:"generated_at"`
	Policy      string    `json:"policy"`
	Entries     []Entry   `json:"entries"`
}

// Take captures store. Entries are grouped by kind, in kind creation order,
// and ordered by attach order within a kind.
func Take(store *annotation.Store) (*Snapshot, error) {
	snap := &Snapshot{
		ID:          uuid.New(),
		GeneratedAt: time.Now().UTC(),
		Policy:      store.Policy().String(),
		Entries:     []Entry{},
	}

	for _, kind := range store.Kinds() {
		for d, meta := range store.All(kind) {
			raw, err := json.Marshal(meta)
			if err != nil {
				return nil, fmt.Errorf("failed to encode %s metadata for %s: %w", kind, d, err)
			}

			var id string
			if u, ok := store.ID(d); ok {
				id = u.String()
			}
			snap.Entries = append(snap.Entries, Entry{
				ID:          id,
				Kind:        kind,
				Name:        d.Name(),
				Declaration: d.Type().String(),
				Func:        d.IsFunc(),
				Metadata:    raw,
			})
		}
	}
	return snap, nil
}

// ByKind returns the entries of kind
func (s *Snapshot) ByKind(kind string) []Entry {
	var out []Entry
	for _, e := range s.Entries {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}
