// Package postgres implements driver.Driver against PostgreSQL using
// github.com/jackc/pgx/v5 registered as a database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/parsql-io/henka/driver"
	"github.com/parsql-io/henka/migration"
)

type postgresDriver struct {
	conn *sql.DB
}

// Open opens a pgx-backed *sql.DB for dsn and wraps it as a driver.Driver.
func Open(dsn string) (driver.Driver, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	return NewDriver(db), nil
}

// NewDriver wraps an already-open *sql.DB using the pgx driver.
func NewDriver(conn *sql.DB) driver.Driver {
	return &postgresDriver{conn: conn}
}

func (d *postgresDriver) Kind() driver.Kind {
	return driver.Postgres
}

func (d *postgresDriver) Close() error {
	return d.conn.Close()
}

func (d *postgresDriver) EnsureBookkeeping(ctx context.Context, t driver.Table) error {
	ddl := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s ("+
			"%s BIGINT PRIMARY KEY, "+
			"%s TEXT NOT NULL, "+
			"%s TIMESTAMPTZ NOT NULL DEFAULT NOW(), "+
			"%s TEXT NOT NULL, "+
			"%s BIGINT NOT NULL"+
			")",
		quoteIdent(t.Name),
		quoteIdent(t.VersionColumn), quoteIdent(t.NameColumn), quoteIdent(t.AppliedAtColumn),
		quoteIdent(t.ChecksumColumn), quoteIdent(t.ExecutionMSColumn),
	)

	if _, err := d.conn.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("postgres: create bookkeeping table %s: %w", t.Name, err)
	}
	return nil
}

func (d *postgresDriver) QueryApplied(ctx context.Context, t driver.Table) ([]driver.AppliedRecord, error) {
	query := fmt.Sprintf(
		"SELECT %s, %s, %s, %s, %s FROM %s ORDER BY %s ASC",
		quoteIdent(t.VersionColumn), quoteIdent(t.NameColumn), quoteIdent(t.AppliedAtColumn),
		quoteIdent(t.ChecksumColumn), quoteIdent(t.ExecutionMSColumn), quoteIdent(t.Name),
		quoteIdent(t.VersionColumn),
	)

	rows, err := d.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: query bookkeeping table %s: %w", t.Name, err)
	}
	defer rows.Close()

	var result []driver.AppliedRecord
	for rows.Next() {
		var rec driver.AppliedRecord
		var version int64
		var appliedAt time.Time
		if err := rows.Scan(&version, &rec.Name, &appliedAt, &rec.Checksum, &rec.ExecutionTimeMS); err != nil {
			return nil, fmt.Errorf("postgres: scan bookkeeping row: %w", err)
		}
		rec.Version = migration.Version(version)
		rec.AppliedAt = appliedAt
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate bookkeeping rows: %w", err)
	}

	return result, nil
}

type postgresTx struct {
	tx *sql.Tx
}

func (t *postgresTx) Exec(ctx context.Context, body string) error {
	if _, err := t.tx.ExecContext(ctx, body); err != nil {
		return fmt.Errorf("postgres: exec migration body: %w", err)
	}
	return nil
}

func (t *postgresTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

func (t *postgresTx) Rollback() error {
	if err := t.tx.Rollback(); err != nil {
		return fmt.Errorf("postgres: rollback: %w", err)
	}
	return nil
}

func (d *postgresDriver) Begin(ctx context.Context) (driver.Tx, error) {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("postgres: begin transaction: %w", err)
	}
	return &postgresTx{tx: tx}, nil
}

func (d *postgresDriver) Exec(ctx context.Context, statement string) error {
	if _, err := d.conn.ExecContext(ctx, statement); err != nil {
		return fmt.Errorf("postgres: exec: %w", err)
	}
	return nil
}

func (d *postgresDriver) UpsertApplied(ctx context.Context, tx driver.Tx, t driver.Table, rec driver.AppliedRecord) error {
	ptx, ok := tx.(*postgresTx)
	if !ok {
		return fmt.Errorf("postgres: unexpected transaction handle %T", tx)
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s, %s, %s, %s, %s) VALUES ($1, $2, NOW(), $3, $4) "+
			"ON CONFLICT (%s) DO UPDATE SET %s = NOW(), %s = EXCLUDED.%s, %s = EXCLUDED.%s",
		quoteIdent(t.Name),
		quoteIdent(t.VersionColumn), quoteIdent(t.NameColumn), quoteIdent(t.AppliedAtColumn),
		quoteIdent(t.ChecksumColumn), quoteIdent(t.ExecutionMSColumn),
		quoteIdent(t.VersionColumn),
		quoteIdent(t.AppliedAtColumn),
		quoteIdent(t.ChecksumColumn), quoteIdent(t.ChecksumColumn),
		quoteIdent(t.ExecutionMSColumn), quoteIdent(t.ExecutionMSColumn),
	)

	_, err := ptx.tx.ExecContext(ctx, query, int64(rec.Version), rec.Name, rec.Checksum, rec.ExecutionTimeMS)
	if err != nil {
		return fmt.Errorf("postgres: record version %s: %w", rec.Version, err)
	}
	return nil
}

func (d *postgresDriver) DeleteApplied(ctx context.Context, tx driver.Tx, t driver.Table, version migration.Version) error {
	ptx, ok := tx.(*postgresTx)
	if !ok {
		return fmt.Errorf("postgres: unexpected transaction handle %T", tx)
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE %s = $1", quoteIdent(t.Name), quoteIdent(t.VersionColumn))
	res, err := ptx.tx.ExecContext(ctx, query, int64(version))
	if err != nil {
		return fmt.Errorf("postgres: forget version %s: %w", version, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("postgres: forget version %s: %w", version, driver.ErrNotFound)
	}
	return nil
}

// quoteIdent double-quotes a Postgres identifier, doubling any embedded
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
