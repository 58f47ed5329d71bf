package annotation

import (
	"errors"
	"testing"

	"pgregory.net/rapid"
)

// TestStore_AttachOrderProperty checks, for random attach sequences with
// repeats, that All has one entry per distinct declaration in first-attach
// order and that every read observes the last value attached to that key.
func TestStore_AttachOrderProperty(t *testing.T) {
	rapid.Check(t, func(r *rapid.T) {
		s := NewStore()
		keys := rapid.SliceOfN(rapid.IntRange(0, 15), 1, 60).Draw(r, "keys")

		var order []int
		last := make(map[int]int)
		for i, k := range keys {
			if _, seen := last[k]; !seen {
				order = append(order, k)
			}
			last[k] = i
			if err := s.Attach("Repository", declN(k), i); err != nil {
				r.Fatalf("attach: %v", err)
			}
		}

		if s.Len("Repository") != len(order) {
			r.Fatalf("Len = %d, want %d", s.Len("Repository"), len(order))
		}

		pos := 0
		for d, meta := range s.All("Repository") {
			want := declN(order[pos])
			if d != want {
				r.Fatalf("position %d: got %s, want %s", pos, d, want)
			}
			if meta != last[order[pos]] {
				r.Fatalf("%s: got %v, want %v", d, meta, last[order[pos]])
			}
			pos++
		}

		for k, v := range last {
			got, ok := s.GetOrNone("Repository", declN(k))
			if !ok || got != v {
				r.Fatalf("GetOrNone(%d) = %v, %v; want %v", k, got, ok, v)
			}
			single, ok, err := s.SingleOrNone("Repository", declN(k))
			if err != nil || !ok || single != v {
				r.Fatalf("SingleOrNone(%d) = %v, %v, %v", k, single, ok, err)
			}
		}

		// Keys never attached stay absent
		if _, ok := s.GetOrNone("Repository", declN(99)); ok {
			r.Fatal("unattached declaration reported present")
		}
	})
}

// TestStore_StrictKeepsFirstProperty checks that strict mode never replaces
// metadata and rejects exactly the repeated attaches.
func TestStore_StrictKeepsFirstProperty(t *testing.T) {
	rapid.Check(t, func(r *rapid.T) {
		s := NewStore(WithPolicy(PolicyStrict))
		keys := rapid.SliceOfN(rapid.IntRange(0, 10), 1, 40).Draw(r, "keys")

		first := make(map[int]int)
		for i, k := range keys {
			err := s.Attach("Service", declN(k), i)
			if _, seen := first[k]; seen {
				if !errors.Is(err, ErrDuplicate) {
					r.Fatalf("repeat attach of %d: got %v, want ErrDuplicate", k, err)
				}
				continue
			}
			if err != nil {
				r.Fatalf("first attach of %d: %v", k, err)
			}
			first[k] = i
		}

		for k, v := range first {
			got, _ := s.GetOrNone("Service", declN(k))
			if got != v {
				r.Fatalf("GetOrNone(%d) = %v, want %v", k, got, v)
			}
		}
	})
}
