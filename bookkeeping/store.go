// Package bookkeeping implements the bookkeeping store (C4): the record of
// which migration versions have been applied, kept in a table inside the
// target database itself.
package bookkeeping

import (
	"context"
	"fmt"

	"github.com/parsql-io/henka/config"
	"github.com/parsql-io/henka/driver"
	"github.com/parsql-io/henka/migration"
)

// AppliedRecord mirrors driver.AppliedRecord - kept as a distinct type so
// callers of this package never need to import driver directly.
type AppliedRecord = driver.AppliedRecord

// Store wraps a driver.Driver with the table naming from config.Config.
type Store struct {
	drv   driver.Driver
	table driver.Table
}

// New builds a Store over drv using cfg's table naming.
func New(drv driver.Driver, cfg config.Config) *Store {
	return &Store{
		drv: drv,
		table: driver.Table{
			Name:              cfg.TableName,
			VersionColumn:     cfg.VersionColumn,
			NameColumn:        cfg.NameColumn,
			AppliedAtColumn:   cfg.AppliedAtColumn,
			ChecksumColumn:    cfg.ChecksumColumn,
			ExecutionMSColumn: cfg.ExecutionTimeColumn,
		},
	}
}

// EnsureTable creates the bookkeeping table if it does not already exist.
func (s *Store) EnsureTable(ctx context.Context) error {
	if err := s.drv.EnsureBookkeeping(ctx, s.table); err != nil {
		return fmt.Errorf("bookkeeping: ensure table: %w", err)
	}
	return nil
}

// List returns every applied record, ordered ascending by version.
func (s *Store) List(ctx context.Context) ([]AppliedRecord, error) {
	records, err := s.drv.QueryApplied(ctx, s.table)
	if err != nil {
		return nil, fmt.Errorf("bookkeeping: list applied: %w", err)
	}
	return records, nil
}

// Record upserts rec inside tx.
func (s *Store) Record(ctx context.Context, tx driver.Tx, rec AppliedRecord) error {
	if err := s.drv.UpsertApplied(ctx, tx, s.table, rec); err != nil {
		return fmt.Errorf("bookkeeping: record %s: %w", rec.Version, err)
	}
	return nil
}

// Forget removes version's applied record inside tx.
func (s *Store) Forget(ctx context.Context, tx driver.Tx, version migration.Version) error {
	if err := s.drv.DeleteApplied(ctx, tx, s.table, version); err != nil {
		return fmt.Errorf("bookkeeping: forget %s: %w", version, err)
	}
	return nil
}

// Begin starts a transaction on the underlying driver.
func (s *Store) Begin(ctx context.Context) (driver.Tx, error) {
	tx, err := s.drv.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("bookkeeping: begin transaction: %w", err)
	}
	return tx, nil
}
