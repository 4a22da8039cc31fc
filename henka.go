// Package henka is a database schema migration engine: it discovers
// versioned migration units, plans which ones need to run against a given
// database, executes that plan, and validates the result.
package henka

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/parsql-io/henka/bookkeeping"
	"github.com/parsql-io/henka/config"
	"github.com/parsql-io/henka/driver"
	"github.com/parsql-io/henka/executor"
	"github.com/parsql-io/henka/internal/diagnostics"
	"github.com/parsql-io/henka/migration"
	"github.com/parsql-io/henka/plan"
	"github.com/parsql-io/henka/source"
	"github.com/parsql-io/henka/validate"
)

// Discover reads every migration unit src can find and returns them as a
// validated, ordered Set.
func Discover(src source.Source) (*migration.Set, error) {
	units, err := src.GetAvailableMigrations()
	if err != nil {
		return nil, fmt.Errorf("henka: discover: %w", err)
	}

	set, err := migration.NewSet(units)
	if err != nil {
		return nil, fmt.Errorf("henka: discover: %w", err)
	}
	return set, nil
}

// UnitStatus reports one unit's relationship to the bookkeeping store.
type UnitStatus struct {
	Version     migration.Version
	Name        string
	Applied     bool
	ChecksumOK  bool
	AppliedAt   string
}

// Status reports, for every unit in set, whether it is applied and whether
// its recorded checksum still matches.
func Status(ctx context.Context, set *migration.Set, drv driver.Driver, cfg config.Config) ([]UnitStatus, error) {
	store := bookkeeping.New(drv, cfg)
	if err := store.EnsureTable(ctx); err != nil {
		return nil, fmt.Errorf("henka: status: %w", err)
	}

	applied, err := store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("henka: status: %w", err)
	}

	byVersion := make(map[migration.Version]bookkeeping.AppliedRecord, len(applied))
	for _, rec := range applied {
		byVersion[rec.Version] = rec
	}

	result := make([]UnitStatus, 0, set.Len())
	for _, u := range set.Units() {
		rec, ok := byVersion[u.Version]
		status := UnitStatus{Version: u.Version, Name: u.Name}
		if ok {
			status.Applied = true
			status.ChecksumOK = rec.Checksum == u.Checksum
			status.AppliedAt = rec.AppliedAt.Format("2006-01-02T15:04:05Z07:00")
		}
		result = append(result, status)
	}
	return result, nil
}

// Plan computes a plan.Plan for req against set and drv's current
// bookkeeping state, without executing anything.
func Plan(ctx context.Context, set *migration.Set, drv driver.Driver, req plan.Request, cfg config.Config) (*plan.Plan, error) {
	store := bookkeeping.New(drv, cfg)
	if err := store.EnsureTable(ctx); err != nil {
		return nil, fmt.Errorf("henka: plan: %w", err)
	}

	applied, err := store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("henka: plan: %w", err)
	}

	p, err := plan.Build(set, applied, req, cfg)
	if err != nil {
		return nil, fmt.Errorf("henka: plan: %w", err)
	}
	return p, nil
}

// Run computes and executes a plan for req against set and drv, reporting
// per-step outcomes through sink (which may be nil).
func Run(ctx context.Context, set *migration.Set, drv driver.Driver, req plan.Request, cfg config.Config, sink executor.Sink) (*executor.Report, error) {
	log := diagnostics.New(slog.LevelInfo).WithComponent("henka").WithDriver(drv.Kind().String())

	store := bookkeeping.New(drv, cfg)
	if err := store.EnsureTable(ctx); err != nil {
		return nil, fmt.Errorf("henka: run: %w", err)
	}

	applied, err := store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("henka: run: %w", err)
	}

	p, err := plan.Build(set, applied, req, cfg)
	if err != nil {
		log.Error("planning failed", "error", err)
		return nil, fmt.Errorf("henka: run: %w", err)
	}
	log.Info("plan computed", "steps", len(p.Steps), "dry_run", p.DryRun)

	report, err := executor.Run(ctx, drv, store, p, cfg, sink)
	if err != nil {
		log.Error("execution failed", "error", err)
		return report, fmt.Errorf("henka: run: %w", err)
	}
	log.Info("execution finished", "outcomes", len(report.Outcomes))
	return report, nil
}

// Validate runs the validator's checks: offline checks always, online
// checks (checksum verification, orphaned-applied detection) when drv is
// non-nil.
func Validate(ctx context.Context, set *migration.Set, drv driver.Driver, cfg config.Config) (*validate.Report, error) {
	if drv == nil {
		return validate.Offline(set), nil
	}

	store := bookkeeping.New(drv, cfg)
	if err := store.EnsureTable(ctx); err != nil {
		return nil, fmt.Errorf("henka: validate: %w", err)
	}

	report, err := validate.Online(ctx, set, store)
	if err != nil {
		return nil, fmt.Errorf("henka: validate: %w", err)
	}
	return report, nil
}
