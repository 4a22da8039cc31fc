// Package sqlite implements driver.Driver against SQLite using the
// pure-Go, cgo-free modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/parsql-io/henka/driver"
	"github.com/parsql-io/henka/migration"
)

const timeLayout = time.RFC3339Nano

type sqliteDriver struct {
	conn *sql.DB
}

// Open opens path (a file path, or ":memory:") with modernc.org/sqlite and
// wraps it as a driver.Driver.
func Open(path string) (driver.Driver, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}

	// SQLite serializes writers; a single connection avoids SQLITE_BUSY
	// under concurrent use from this process.
	db.SetMaxOpenConns(1)

	return NewDriver(db), nil
}

// NewDriver wraps an already-open *sql.DB using the modernc.org/sqlite driver.
func NewDriver(conn *sql.DB) driver.Driver {
	return &sqliteDriver{conn: conn}
}

func (d *sqliteDriver) Kind() driver.Kind {
	return driver.SQLite
}

func (d *sqliteDriver) Close() error {
	return d.conn.Close()
}

func (d *sqliteDriver) EnsureBookkeeping(ctx context.Context, t driver.Table) error {
	ddl := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s ("+
			"%s INTEGER PRIMARY KEY, "+
			"%s TEXT NOT NULL, "+
			"%s TEXT NOT NULL DEFAULT (strftime('%%Y-%%m-%%dT%%H:%%M:%%fZ', 'now')), "+
			"%s TEXT NOT NULL, "+
			"%s INTEGER NOT NULL"+
			")",
		quoteIdent(t.Name),
		quoteIdent(t.VersionColumn), quoteIdent(t.NameColumn), quoteIdent(t.AppliedAtColumn),
		quoteIdent(t.ChecksumColumn), quoteIdent(t.ExecutionMSColumn),
	)

	if _, err := d.conn.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("sqlite: create bookkeeping table %s: %w", t.Name, err)
	}
	return nil
}

func (d *sqliteDriver) QueryApplied(ctx context.Context, t driver.Table) ([]driver.AppliedRecord, error) {
	query := fmt.Sprintf(
		"SELECT %s, %s, %s, %s, %s FROM %s ORDER BY %s ASC",
		quoteIdent(t.VersionColumn), quoteIdent(t.NameColumn), quoteIdent(t.AppliedAtColumn),
		quoteIdent(t.ChecksumColumn), quoteIdent(t.ExecutionMSColumn), quoteIdent(t.Name),
		quoteIdent(t.VersionColumn),
	)

	rows, err := d.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query bookkeeping table %s: %w", t.Name, err)
	}
	defer rows.Close()

	var result []driver.AppliedRecord
	for rows.Next() {
		var rec driver.AppliedRecord
		var version int64
		var appliedAt string
		if err := rows.Scan(&version, &rec.Name, &appliedAt, &rec.Checksum, &rec.ExecutionTimeMS); err != nil {
			return nil, fmt.Errorf("sqlite: scan bookkeeping row: %w", err)
		}
		rec.Version = migration.Version(version)
		parsed, err := time.Parse(timeLayout, appliedAt)
		if err != nil {
			return nil, fmt.Errorf("sqlite: parse applied_at %q: %w", appliedAt, err)
		}
		rec.AppliedAt = parsed
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate bookkeeping rows: %w", err)
	}

	return result, nil
}

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) Exec(ctx context.Context, body string) error {
	if _, err := t.tx.ExecContext(ctx, body); err != nil {
		return fmt.Errorf("sqlite: exec migration body: %w", err)
	}
	return nil
}

func (t *sqliteTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

func (t *sqliteTx) Rollback() error {
	if err := t.tx.Rollback(); err != nil {
		return fmt.Errorf("sqlite: rollback: %w", err)
	}
	return nil
}

func (d *sqliteDriver) Begin(ctx context.Context) (driver.Tx, error) {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: begin transaction: %w", err)
	}
	return &sqliteTx{tx: tx}, nil
}

func (d *sqliteDriver) Exec(ctx context.Context, statement string) error {
	if _, err := d.conn.ExecContext(ctx, statement); err != nil {
		return fmt.Errorf("sqlite: exec: %w", err)
	}
	return nil
}

func (d *sqliteDriver) UpsertApplied(ctx context.Context, tx driver.Tx, t driver.Table, rec driver.AppliedRecord) error {
	stx, ok := tx.(*sqliteTx)
	if !ok {
		return fmt.Errorf("sqlite: unexpected transaction handle %T", tx)
	}

	now := "strftime('%Y-%m-%dT%H:%M:%fZ', 'now')"
	query := fmt.Sprintf(
		"INSERT INTO %s (%s, %s, %s, %s, %s) VALUES (?, ?, %s, ?, ?) "+
			"ON CONFLICT(%s) DO UPDATE SET %s = %s, %s = excluded.%s, %s = excluded.%s",
		quoteIdent(t.Name),
		quoteIdent(t.VersionColumn), quoteIdent(t.NameColumn), quoteIdent(t.AppliedAtColumn),
		quoteIdent(t.ChecksumColumn), quoteIdent(t.ExecutionMSColumn), now,
		quoteIdent(t.VersionColumn),
		quoteIdent(t.AppliedAtColumn), now,
		quoteIdent(t.ChecksumColumn), quoteIdent(t.ChecksumColumn),
		quoteIdent(t.ExecutionMSColumn), quoteIdent(t.ExecutionMSColumn),
	)

	_, err := stx.tx.ExecContext(ctx, query, int64(rec.Version), rec.Name, rec.Checksum, rec.ExecutionTimeMS)
	if err != nil {
		return fmt.Errorf("sqlite: record version %s: %w", rec.Version, err)
	}
	return nil
}

func (d *sqliteDriver) DeleteApplied(ctx context.Context, tx driver.Tx, t driver.Table, version migration.Version) error {
	stx, ok := tx.(*sqliteTx)
	if !ok {
		return fmt.Errorf("sqlite: unexpected transaction handle %T", tx)
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", quoteIdent(t.Name), quoteIdent(t.VersionColumn))
	res, err := stx.tx.ExecContext(ctx, query, int64(version))
	if err != nil {
		return fmt.Errorf("sqlite: forget version %s: %w", version, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("sqlite: forget version %s: %w", version, driver.ErrNotFound)
	}
	return nil
}

// quoteIdent double-quotes a SQLite identifier, doubling any embedded
// double-quote.
func quoteIdent(ident string) string {
	dest := make([]rune, 0, len(ident)+2)
	dest = append(dest, '"')
	for _, r := range ident {
		if r == '"' {
			dest = append(dest, '"', '"')
		} else {
			dest = append(dest, r)
		}
	}
	dest = append(dest, '"')
	return string(dest)
}
