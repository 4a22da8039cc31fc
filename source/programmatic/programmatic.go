// Package programmatic implements source.Source over units registered in
// code rather than read from files - for callers who want to generate
// DDL/DML in Go instead of maintaining .sql files.
package programmatic

import (
	"errors"
	"fmt"

	"github.com/parsql-io/henka/driver"
	"github.com/parsql-io/henka/migration"
)

// ErrEmptyChecksum is returned when a registered unit has no checksum: a
// programmatic unit's checksum is not derived, so the caller must supply a
// stable one.
var ErrEmptyChecksum = errors.New("programmatic: checksum must not be empty")

// ErrBothBodiesSet is returned when a registration supplies both a SQL body
// and a function body for the same direction - exactly one is allowed.
var ErrBothBodiesSet = errors.New("programmatic: only one of SQL body or function body may be set per direction")

// Registration is one caller-supplied unit. A direction's body is either
// opaque SQL text (UpBody/DownBody, interpreted by whatever driver
// eventually executes it) or a driver.Func run directly against the
// connection (UpFunc/DownFunc) - set at most one per direction. Checksum is
// a caller-chosen stable identifier, not a content hash.
type Registration struct {
	Version  migration.Version
	Name     string
	UpBody   string
	DownBody *string
	UpFunc   driver.Func
	DownFunc driver.Func
	Checksum string
}

// Source is a fixed, in-memory collection of registered units.
type Source struct {
	units []migration.Unit
}

// New validates every registration and returns a Source over them.
func New(regs ...Registration) (*Source, error) {
	units := make([]migration.Unit, 0, len(regs))
	for _, r := range regs {
		if r.Checksum == "" {
			return nil, fmt.Errorf("programmatic: version %s: %w", r.Version, ErrEmptyChecksum)
		}
		if r.UpBody != "" && r.UpFunc != nil {
			return nil, fmt.Errorf("programmatic: version %s: up: %w", r.Version, ErrBothBodiesSet)
		}
		if r.DownBody != nil && *r.DownBody != "" && r.DownFunc != nil {
			return nil, fmt.Errorf("programmatic: version %s: down: %w", r.Version, ErrBothBodiesSet)
		}

		u := migration.Unit{
			Version:  r.Version,
			Name:     r.Name,
			UpBody:   r.UpBody,
			DownBody: r.DownBody,
			Checksum: r.Checksum,
			Origin:   migration.Origin{Kind: migration.Programmatic},
		}
		if r.UpFunc != nil {
			u.UpFunc = r.UpFunc
		}
		if r.DownFunc != nil {
			u.DownFunc = r.DownFunc
		}
		if err := u.Validate(); err != nil {
			return nil, fmt.Errorf("programmatic: version %s: %w", r.Version, err)
		}
		units = append(units, u)
	}

	return &Source{units: units}, nil
}

// GetAvailableMigrations returns the registered units.
func (s *Source) GetAvailableMigrations() ([]migration.Unit, error) {
	return s.units, nil
}
