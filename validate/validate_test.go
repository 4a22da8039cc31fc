package validate_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parsql-io/henka/bookkeeping"
	"github.com/parsql-io/henka/config"
	"github.com/parsql-io/henka/driver"
	"github.com/parsql-io/henka/migration"
	"github.com/parsql-io/henka/validate"
)

type fakeDriver struct {
	rows []driver.AppliedRecord
}

func (f *fakeDriver) Kind() driver.Kind                                     { return driver.Other }
func (f *fakeDriver) Close() error                                          { return nil }
func (f *fakeDriver) EnsureBookkeeping(context.Context, driver.Table) error { return nil }
func (f *fakeDriver) Exec(context.Context, string) error                   { return nil }
func (f *fakeDriver) QueryApplied(context.Context, driver.Table) ([]driver.AppliedRecord, error) {
	return f.rows, nil
}
func (f *fakeDriver) Begin(context.Context) (driver.Tx, error) { return nil, nil }
func (f *fakeDriver) UpsertApplied(context.Context, driver.Tx, driver.Table, driver.AppliedRecord) error {
	return nil
}
func (f *fakeDriver) DeleteApplied(context.Context, driver.Tx, driver.Table, migration.Version) error {
	return nil
}

// Duplicate names (case-insensitive) never reach Offline: migration.NewSet
// already rejects them. This checks that a set of unique names is clean.
func TestOffline_NoErrorsForUniqueNames(t *testing.T) {
	t.Parallel()

	down := "DROP TABLE a;"
	set, err := migration.NewSet([]migration.Unit{
		{Version: 1, Name: "add_users", UpBody: "x", Checksum: "c1"},
	})
	require.NoError(t, err)
	_ = down

	report := validate.Offline(set)
	assert.False(t, report.HasErrors())
}

func TestOffline_WarnsOnEmptyDownBody(t *testing.T) {
	t.Parallel()

	empty := ""
	set, err := migration.NewSet([]migration.Unit{
		{Version: 1, Name: "add_users", UpBody: "x", DownBody: &empty, Checksum: "c1"},
	})
	require.NoError(t, err)

	report := validate.Offline(set)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, validate.SeverityWarning, report.Issues[0].Severity)
}

func TestOnline_DetectsChecksumMismatchAndOrphan(t *testing.T) {
	t.Parallel()

	set, err := migration.NewSet([]migration.Unit{
		{Version: 1, Name: "add_users", UpBody: "x", Checksum: "current"},
	})
	require.NoError(t, err)

	drv := &fakeDriver{rows: []driver.AppliedRecord{
		{Version: 1, Name: "add_users", Checksum: "stale"},
		{Version: 2, Name: "ghost", Checksum: "whatever"},
	}}
	store := bookkeeping.New(drv, config.Default())

	report, err := validate.Online(context.Background(), set, store)
	require.NoError(t, err)
	require.True(t, report.HasErrors())

	var sawMismatch, sawOrphan bool
	for _, issue := range report.Issues {
		if issue.Version == 1 && issue.Severity == validate.SeverityError {
			sawMismatch = true
		}
		if issue.Version == 2 && issue.Severity == validate.SeverityWarning {
			sawOrphan = true
		}
	}
	assert.True(t, sawMismatch)
	assert.True(t, sawOrphan)
}
