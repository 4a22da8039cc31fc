// Package mysql implements driver.Driver against a MySQL/MariaDB
// *sql.DB using github.com/go-sql-driver/mysql.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/parsql-io/henka/driver"
	"github.com/parsql-io/henka/migration"
)

type mysqlDriver struct {
	conn *sql.DB
}

// NewDriver wraps an already-open *sql.DB. The caller owns conn's lifecycle
// up to the point Close is called on the returned Driver.
func NewDriver(conn *sql.DB) driver.Driver {
	return &mysqlDriver{conn: conn}
}

func (d *mysqlDriver) Kind() driver.Kind {
	return driver.MySQL
}

func (d *mysqlDriver) Close() error {
	return d.conn.Close()
}

func (d *mysqlDriver) EnsureBookkeeping(ctx context.Context, t driver.Table) error {
	ddl := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s ("+
			"%s bigint not null primary key, "+
			"%s varchar(255) not null, "+
			"%s datetime not null default current_timestamp, "+
			"%s char(64) not null, "+
			"%s bigint not null"+
			") default charset utf8mb4",
		escapeMysqlIdent(t.Name),
		escapeMysqlIdent(t.VersionColumn),
		escapeMysqlIdent(t.NameColumn),
		escapeMysqlIdent(t.AppliedAtColumn),
		escapeMysqlIdent(t.ChecksumColumn),
		escapeMysqlIdent(t.ExecutionMSColumn),
	)

	if _, err := d.conn.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("mysql: create bookkeeping table %s: %w", t.Name, err)
	}
	return nil
}

func (d *mysqlDriver) QueryApplied(ctx context.Context, t driver.Table) ([]driver.AppliedRecord, error) {
	query := fmt.Sprintf(
		"SELECT %s, %s, %s, %s, %s FROM %s ORDER BY %s ASC",
		escapeMysqlIdent(t.VersionColumn),
		escapeMysqlIdent(t.NameColumn),
		escapeMysqlIdent(t.AppliedAtColumn),
		escapeMysqlIdent(t.ChecksumColumn),
		escapeMysqlIdent(t.ExecutionMSColumn),
		escapeMysqlIdent(t.Name),
		escapeMysqlIdent(t.VersionColumn),
	)

	rows, err := d.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("mysql: query bookkeeping table %s: %w", t.Name, err)
	}
	defer rows.Close()

	var result []driver.AppliedRecord
	for rows.Next() {
		var rec driver.AppliedRecord
		var version int64
		var appliedAt time.Time
		if err := rows.Scan(&version, &rec.Name, &appliedAt, &rec.Checksum, &rec.ExecutionTimeMS); err != nil {
			return nil, fmt.Errorf("mysql: scan bookkeeping row: %w", err)
		}
		rec.Version = migration.Version(version)
		rec.AppliedAt = appliedAt
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mysql: iterate bookkeeping rows: %w", err)
	}

	return result, nil
}

type mysqlTx struct {
	tx *sql.Tx
}

func (t *mysqlTx) Exec(ctx context.Context, body string) error {
	if _, err := t.tx.ExecContext(ctx, body); err != nil {
		return fmt.Errorf("mysql: exec migration body: %w", err)
	}
	return nil
}

func (t *mysqlTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("mysql: commit: %w", err)
	}
	return nil
}

func (t *mysqlTx) Rollback() error {
	if err := t.tx.Rollback(); err != nil {
		return fmt.Errorf("mysql: rollback: %w", err)
	}
	return nil
}

func (d *mysqlDriver) Begin(ctx context.Context) (driver.Tx, error) {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("mysql: begin transaction: %w", err)
	}
	return &mysqlTx{tx: tx}, nil
}

func (d *mysqlDriver) Exec(ctx context.Context, statement string) error {
	if _, err := d.conn.ExecContext(ctx, statement); err != nil {
		return fmt.Errorf("mysql: exec: %w", err)
	}
	return nil
}

func (d *mysqlDriver) UpsertApplied(ctx context.Context, tx driver.Tx, t driver.Table, rec driver.AppliedRecord) error {
	mtx, ok := tx.(*mysqlTx)
	if !ok {
		return fmt.Errorf("mysql: unexpected transaction handle %T", tx)
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s, %s, %s, %s, %s) VALUES (?, ?, current_timestamp(), ?, ?) "+
			"ON DUPLICATE KEY UPDATE %s = current_timestamp(), %s = VALUES(%s), %s = VALUES(%s)",
		escapeMysqlIdent(t.Name),
		escapeMysqlIdent(t.VersionColumn), escapeMysqlIdent(t.NameColumn), escapeMysqlIdent(t.AppliedAtColumn),
		escapeMysqlIdent(t.ChecksumColumn), escapeMysqlIdent(t.ExecutionMSColumn),
		escapeMysqlIdent(t.AppliedAtColumn),
		escapeMysqlIdent(t.ChecksumColumn), escapeMysqlIdent(t.ChecksumColumn),
		escapeMysqlIdent(t.ExecutionMSColumn), escapeMysqlIdent(t.ExecutionMSColumn),
	)

	_, err := mtx.tx.ExecContext(ctx, query, int64(rec.Version), rec.Name, rec.Checksum, rec.ExecutionTimeMS)
	if err != nil {
		return fmt.Errorf("mysql: record version %s: %w", rec.Version, err)
	}
	return nil
}

func (d *mysqlDriver) DeleteApplied(ctx context.Context, tx driver.Tx, t driver.Table, version migration.Version) error {
	mtx, ok := tx.(*mysqlTx)
	if !ok {
		return fmt.Errorf("mysql: unexpected transaction handle %T", tx)
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", escapeMysqlIdent(t.Name), escapeMysqlIdent(t.VersionColumn))
	res, err := mtx.tx.ExecContext(ctx, query, int64(version))
	if err != nil {
		return fmt.Errorf("mysql: forget version %s: %w", version, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("mysql: forget version %s: %w", version, driver.ErrNotFound)
	}
	return nil
}

// escapeMysqlIdent backtick-quotes a MySQL identifier, doubling any
// embedded backtick. Table/column names come from config.Config, not user
// input, but this keeps the generated DDL/DML well-formed regardless.
func escapeMysqlIdent(ident string) string {
	dest := make([]rune, 0, len(ident)+2)
	dest = append(dest, '`')
	for _, r := range ident {
		if r == '`' {
			dest = append(dest, '`', '`')
		} else {
			dest = append(dest, r)
		}
	}
	dest = append(dest, '`')
	return string(dest)
}
