// Package driver defines the connection capability (C1) that the rest of
// the engine builds on: running migration bodies against a target database
// and maintaining its bookkeeping table.
package driver

import (
	"context"
	"errors"
	"time"

	"github.com/parsql-io/henka/migration"
)

// Kind identifies the SQL dialect a Driver speaks. The planner and executor
// are dialect-agnostic; only a Driver's DDL/DML generation varies by Kind.
type Kind int

const (
	Other Kind = iota
	MySQL
	Postgres
	SQLite
)

func (k Kind) String() string {
	switch k {
	case MySQL:
		return "mysql"
	case Postgres:
		return "postgres"
	case SQLite:
		return "sqlite"
	default:
		return "other"
	}
}

// AppliedRecord is one row of the bookkeeping table: the record of a unit
// having been applied.
type AppliedRecord struct {
	Version         migration.Version
	Name            string
	Checksum        string
	AppliedAt       time.Time
	ExecutionTimeMS int64
}

// ErrInvalidBookkeepingTable is returned when the bookkeeping table exists
// but its shape does not match what the driver expects.
var ErrInvalidBookkeepingTable = errors.New("driver: bookkeeping table has an unexpected shape")

// ErrNotFound is returned by DeleteApplied when the target version has no
// bookkeeping row.
var ErrNotFound = errors.New("driver: no bookkeeping row for that version")

// Tx is an in-flight transaction handle. Begin returns a fresh Tx on every
// call; the executor uses one Tx per step or one Tx for the whole batch,
// depending on config.Config.TransactionPerMigration.
type Tx interface {
	// Exec runs a single migration body (already selected for direction) as
	// part of this transaction.
	Exec(ctx context.Context, body string) error
	Commit() error
	Rollback() error
}

// Driver is the connection capability (C1): the seam between the
// dialect-agnostic engine and a concrete SQL database. Implementations live
// under driver/<dialect>.
type Driver interface {
	// Kind reports the dialect. The engine uses it only to label log
	// output; each driver generates its own bookkeeping DDL and placeholders.
	Kind() Kind

	// EnsureBookkeeping creates the bookkeeping table if absent, using the
	// column names from config.Config. It is idempotent.
	EnsureBookkeeping(ctx context.Context, table Table) error

	// QueryApplied returns every bookkeeping row, ordered ascending by
	// version.
	QueryApplied(ctx context.Context, table Table) ([]AppliedRecord, error)

	// Begin starts a transaction that Exec/UpsertApplied/DeleteApplied
	// calls can be chained onto before Commit or Rollback.
	Begin(ctx context.Context) (Tx, error)

	// Exec runs statement directly against the connection, outside of any
	// Tx started by Begin. This is the capability a Func migration body
	// runs against: it may call Exec as many times as it needs, with
	// whatever Go control flow it wants, instead of a single opaque
	// statement.
	Exec(ctx context.Context, statement string) error

	// UpsertApplied records that a version was applied (or updates its
	// checksum/timing if already present), inside tx. AppliedAt is stamped
	// by the database itself (its own "now"), not by rec.AppliedAt.
	UpsertApplied(ctx context.Context, tx Tx, table Table, rec AppliedRecord) error

	// DeleteApplied removes a version's bookkeeping row, inside tx.
	DeleteApplied(ctx context.Context, tx Tx, table Table, version migration.Version) error

	// Close releases the underlying connection.
	Close() error
}

// Func is a migration body expressed as Go code run directly against a
// Driver's connection capability, instead of an opaque SQL string - for
// programmatic units whose logic goes beyond a single statement (loops,
// conditionals, calls out to other services). Stored on migration.Unit as
// an untyped interface value (package migration cannot import package
// driver, which itself depends on migration.Version); package executor is
// the only place that type-asserts it back to Func.
type Func func(ctx context.Context, d Driver) error

// Table names the bookkeeping table and its columns, mirroring
// config.Config's naming fields so drivers never import config directly.
type Table struct {
	Name              string
	VersionColumn     string
	NameColumn        string
	AppliedAtColumn   string
	ChecksumColumn    string
	ExecutionMSColumn string
}
