package migration

import (
	"fmt"
	"sort"
	"strings"
)

// Set is an ordered, validated collection of units: strictly ascending by
// version, no duplicate versions, no duplicate names. A Set owns its units
// and is immutable once constructed - discovery and validation are the only
// producers of a Set.
type Set struct {
	units []Unit
}

// NewSet validates and sorts units into a Set. It fails on a duplicate
// version, a duplicate name (case-insensitive), or a unit that fails
// Unit.Validate.
func NewSet(units []Unit) (*Set, error) {
	sorted := make([]Unit, len(units))
	copy(sorted, units)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })

	byVersion := make(map[Version]struct{}, len(sorted))
	byName := make(map[string]struct{}, len(sorted))

	for _, u := range sorted {
		if err := u.Validate(); err != nil {
			return nil, fmt.Errorf("migration %s: %w", u.Version, err)
		}
		if _, ok := byVersion[u.Version]; ok {
			return nil, fmt.Errorf("migration: duplicate version %s", u.Version)
		}
		byVersion[u.Version] = struct{}{}

		lower := strings.ToLower(u.Name)
		if _, ok := byName[lower]; ok {
			return nil, fmt.Errorf("migration: duplicate name %q", u.Name)
		}
		byName[lower] = struct{}{}
	}

	return &Set{units: sorted}, nil
}

// Units returns the ordered units. Callers must not mutate the result.
func (s *Set) Units() []Unit {
	return s.units
}

// Len returns the number of units in the set.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.units)
}

// Get looks up a unit by version.
func (s *Set) Get(v Version) (Unit, bool) {
	for _, u := range s.units {
		if u.Version == v {
			return u, true
		}
	}
	return Unit{}, false
}

// MaxVersion returns the highest version in the set, or Zero if empty.
func (s *Set) MaxVersion() Version {
	if s.Len() == 0 {
		return Zero
	}
	return s.units[len(s.units)-1].Version
}
