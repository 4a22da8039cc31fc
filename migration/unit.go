package migration

import (
	"errors"
	"regexp"
)

// nameRe is the grammar a unit's Name must match: lowercase-snake.
var nameRe = regexp.MustCompile(`^[a-z0-9_]+$`)

// ValidName reports whether name matches the grammar a unit's Name must
// follow. Shared by discovery (to decide whether a filename names a
// migration at all) and Unit.Validate.
func ValidName(name string) bool {
	return nameRe.MatchString(name)
}

// ErrInvalidVersion is returned when a unit's version is not strictly positive.
var ErrInvalidVersion = errors.New("migration: version must be strictly positive")

// ErrInvalidName is returned when a unit's name does not match [a-z0-9_]+.
var ErrInvalidName = errors.New("migration: name must match [a-z0-9_]+")

// SourceKind distinguishes where a unit's bodies came from.
type SourceKind int

const (
	// FileBacked units were discovered on disk; PathUp/PathDown record where.
	FileBacked SourceKind = iota
	// Programmatic units were registered in code; their checksum is a
	// caller-supplied stable identifier rather than a content hash.
	Programmatic
)

// Origin describes where a unit came from.
type Origin struct {
	Kind     SourceKind
	PathUp   string // set only when Kind == FileBacked
	PathDown string // set only when Kind == FileBacked and a down file exists
}

// Unit is an immutable, versioned migration: a forward body and an optional
// reverse body, plus the checksum of the forward body. Units are created at
// discovery time and never mutated afterward.
//
// A unit's forward/reverse body is expressed one of two ways: as opaque SQL
// text (UpBody/DownBody, used by every file-backed unit), or as a Go
// function run directly against the connection (UpFunc/DownFunc, used only
// by programmatic units built with a function body). Exactly one
// representation is populated per direction; UpFunc/DownFunc are typed any
// (rather than a named func type) because this package cannot import
// package driver, which itself imports this package for Version - package
// executor is what type-asserts them back to driver.Func.
type Unit struct {
	Version  Version
	Name     string
	UpBody   string
	DownBody *string // nil means no down body was supplied at all
	UpFunc   any     // nil unless this unit's forward body is a driver.Func
	DownFunc any     // nil unless this unit's reverse body is a driver.Func
	Checksum string
	Origin   Origin
}

// Reversible reports whether the unit declares a usable reverse direction:
// either a non-empty down body or a down function.
func (u Unit) Reversible() bool {
	return (u.DownBody != nil && *u.DownBody != "") || u.DownFunc != nil
}

// ErrMissingBody is returned when a unit has neither UpBody nor UpFunc set.
var ErrMissingBody = errors.New("migration: unit must have an up body or an up function")

// Validate checks the invariants from the data model: version > 0, name
// matches the grammar, and at least one forward-body representation is
// populated. Checksum is not re-verified here - for file-backed units it is
// a pure function of UpBody and is trusted once computed by discovery; for
// programmatic units it is a caller-supplied stable identifier.
func (u Unit) Validate() error {
	if !u.Version.Valid() {
		return ErrInvalidVersion
	}
	if !ValidName(u.Name) {
		return ErrInvalidName
	}
	if u.UpBody == "" && u.UpFunc == nil {
		return ErrMissingBody
	}
	return nil
}

// Description is the read-only identity of a unit, without its bodies -
// what discovery reports and what status/validation operate over.
type Description struct {
	Version  Version
	Name     string
	CanUndo  bool
	Checksum string
	Origin   Origin
}

// Describe reduces a Unit to its Description.
func (u Unit) Describe() Description {
	return Description{
		Version:  u.Version,
		Name:     u.Name,
		CanUndo:  u.Reversible(),
		Checksum: u.Checksum,
		Origin:   u.Origin,
	}
}
