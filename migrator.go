package henka

import (
	"context"
	"fmt"

	"github.com/parsql-io/henka/config"
	"github.com/parsql-io/henka/driver"
	"github.com/parsql-io/henka/executor"
	"github.com/parsql-io/henka/migration"
	"github.com/parsql-io/henka/plan"
	"github.com/parsql-io/henka/source"
	"github.com/parsql-io/henka/validate"
)

// Migrator bundles a Source and a Driver behind the three operations a
// caller typically wants: Validate, Upgrade, Downgrade.
type Migrator struct {
	source source.Source
	driver driver.Driver
	config config.Config
}

// New builds a Migrator over src and drv using cfg (config.Default() if
// the caller has no overrides).
func New(src source.Source, drv driver.Driver, cfg config.Config) *Migrator {
	return &Migrator{source: src, driver: drv, config: cfg}
}

// Validate discovers the migration set and runs the validator's online
// checks against the driver.
func (m *Migrator) Validate(ctx context.Context) (*validate.Report, error) {
	set, err := Discover(m.source)
	if err != nil {
		return nil, fmt.Errorf("migrator: validate: %w", err)
	}
	return Validate(ctx, set, m.driver, m.config)
}

// Upgrade discovers the migration set and runs every pending unit up to
// and including target. A nil target runs everything pending.
func (m *Migrator) Upgrade(ctx context.Context, target *migration.Version) (*executor.Report, error) {
	set, err := Discover(m.source)
	if err != nil {
		return nil, fmt.Errorf("migrator: upgrade: %w", err)
	}
	return Run(ctx, set, m.driver, plan.RunPending(target), m.config, nil)
}

// Downgrade discovers the migration set and reverses every applied record
// with a version strictly greater than target. target = migration.Zero
// rolls back everything.
func (m *Migrator) Downgrade(ctx context.Context, target migration.Version) (*executor.Report, error) {
	set, err := Discover(m.source)
	if err != nil {
		return nil, fmt.Errorf("migrator: downgrade: %w", err)
	}
	return Run(ctx, set, m.driver, plan.RollbackTo(target), m.config, nil)
}
