// Package source defines the discovery capability (C3): producing an
// unordered collection of migration units from wherever they live.
package source

import (
	"github.com/parsql-io/henka/migration"
)

// Source discovers migration units. Implementations live under
// source/<kind> - source/files reads a directory, source/programmatic
// reads an in-code registry.
type Source interface {
	// GetAvailableMigrations returns every migration unit it can find, in
	// no particular order. Callers feed the result to migration.NewSet for
	// ordering and validation.
	GetAvailableMigrations() ([]migration.Unit, error)
}
