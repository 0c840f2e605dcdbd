// Package manifest owns the persisted collection of overrides and the
// batch operations over it: loading and saving the on-disk records,
// structural invariant checks, and the validate/upgrade passes that keep
// every override reconciled against the upstream tree.
package manifest

import (
	"errors"
	"fmt"
	"sort"

	"overtrack/internal/override"
	"overtrack/internal/validate"
)

var (
	// ErrDuplicateName marks two overrides claiming the same normalized
	// downstream path. The manifest's bookkeeping is name-keyed, so
	// this aborts the whole operation rather than proceed corrupted.
	ErrDuplicateName = errors.New("duplicate override name")
	// ErrOverlappingScopes marks two overrides whose claimed paths
	// overlap (a file override inside a tracked directory subtree).
	ErrOverlappingScopes = errors.New("overlapping override scopes")
	// ErrUnknownOverride marks an operation on a name the manifest does
	// not track.
	ErrUnknownOverride = errors.New("unknown override")
)

// Manifest exclusively owns a set of overrides keyed by name. Insertion
// order is irrelevant; every listing is name-sorted for determinism.
type Manifest struct {
	entries []override.Override
	byName  map[string]int
}

// New returns an empty manifest.
func New() *Manifest {
	return &Manifest{byName: make(map[string]int)}
}

// FromRecords rehydrates a record list into typed overrides. Any
// malformed record or duplicate name fails the whole load.
func FromRecords(recs []override.Record) (*Manifest, error) {
	m := New()
	for i, rec := range recs {
		ov, err := override.FromRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		if err := m.Add(ov); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}
	return m, nil
}

// Add inserts a new override.
func (m *Manifest) Add(ov override.Override) error {
	name := ov.Name()
	if _, exists := m.byName[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}
	m.byName[name] = len(m.entries)
	m.entries = append(m.entries, ov)
	return nil
}

// Replace swaps the entry with the same name for a fresh instance, the
// only way an override ever changes.
func (m *Manifest) Replace(ov override.Override) error {
	idx, exists := m.byName[ov.Name()]
	if !exists {
		return fmt.Errorf("%w: %q", ErrUnknownOverride, ov.Name())
	}
	m.entries[idx] = ov
	return nil
}

// Remove deletes the named override. Removal is always explicit; nothing
// else ever drops an entry.
func (m *Manifest) Remove(name string) error {
	idx, exists := m.byName[name]
	if !exists {
		return fmt.Errorf("%w: %q", ErrUnknownOverride, name)
	}
	m.entries = append(m.entries[:idx], m.entries[idx+1:]...)
	delete(m.byName, name)
	for n, i := range m.byName {
		if i > idx {
			m.byName[n] = i - 1
		}
	}
	return nil
}

// Get returns the override with the given name.
func (m *Manifest) Get(name string) (override.Override, bool) {
	idx, ok := m.byName[name]
	if !ok {
		return nil, false
	}
	return m.entries[idx], true
}

// Len reports the number of tracked overrides.
func (m *Manifest) Len() int { return len(m.entries) }

// All returns the overrides sorted by name.
func (m *Manifest) All() []override.Override {
	out := make([]override.Override, len(m.entries))
	copy(out, m.entries)
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Owner returns the override whose scope includes the given path, if
// any.
func (m *Manifest) Owner(path string) (override.Override, bool) {
	for _, ov := range m.entries {
		if ov.IncludesFile(path) {
			return ov, true
		}
	}
	return nil, false
}

// Records serializes the manifest, sorted by name so the persisted form
// is stable regardless of insertion order.
func (m *Manifest) Records() []override.Record {
	all := m.All()
	out := make([]override.Record, 0, len(all))
	for _, ov := range all {
		out = append(out, ov.Serialize())
	}
	return out
}

// Check verifies manifest-wide invariants that no single override can
// see: claimed scopes must not overlap. Duplicate names are impossible
// to insert, so overlap is the remaining way bookkeeping could corrupt.
// All violations are aggregated into one error.
func (m *Manifest) Check() error {
	var errs validate.ErrList
	all := m.All()
	for i, a := range all {
		for _, b := range all[i+1:] {
			if a.IncludesFile(b.Name()) || b.IncludesFile(a.Name()) {
				errs.Add("%q and %q", a.Name(), b.Name())
			}
		}
	}
	if errs.Empty() {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrOverlappingScopes, errs.Err())
}
