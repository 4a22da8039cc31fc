package henka_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parsql-io/henka"
	"github.com/parsql-io/henka/config"
	"github.com/parsql-io/henka/driver"
	"github.com/parsql-io/henka/migration"
)

type sourceMock struct {
	units []migration.Unit
	err   error
}

func (m *sourceMock) GetAvailableMigrations() ([]migration.Unit, error) {
	return m.units, m.err
}

func unit(version migration.Version, name, up string) migration.Unit {
	return migration.Unit{Version: version, Name: name, UpBody: up, Checksum: migration.Checksum([]byte(up))}
}

func TestDiscover(t *testing.T) {
	t.Parallel()

	src := &sourceMock{units: []migration.Unit{
		unit(2, "second", "CREATE TABLE b(x INT);"),
		unit(1, "first", "CREATE TABLE a(x INT);"),
	}}

	set, err := henka.Discover(src)
	require.NoError(t, err)
	require.Equal(t, 2, set.Len())

	got, ok := set.Get(1)
	require.True(t, ok)
	assert.Equal(t, "first", got.Name)
}

func TestDiscover_PropagatesSourceError(t *testing.T) {
	t.Parallel()

	src := &sourceMock{err: errors.New("boom")}
	_, err := henka.Discover(src)
	assert.Error(t, err)
}

func TestDiscover_RejectsDuplicateVersion(t *testing.T) {
	t.Parallel()

	src := &sourceMock{units: []migration.Unit{
		unit(1, "first", "a"),
		unit(1, "also_first", "b"),
	}}
	_, err := henka.Discover(src)
	assert.Error(t, err)
}

// fakeDriver is a minimal in-memory driver.Driver for exercising Status
// and Validate without a real database.
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

func TestStatus_ReportsAppliedAndChecksumMatch(t *testing.T) {
	t.Parallel()

	a := unit(1, "first", "CREATE TABLE a(x INT);")
	b := unit(2, "second", "CREATE TABLE b(x INT);")
	set, err := migration.NewSet([]migration.Unit{a, b})
	require.NoError(t, err)

	drv := &fakeDriver{rows: []driver.AppliedRecord{
		{Version: 1, Name: "first", Checksum: a.Checksum},
	}}

	statuses, err := henka.Status(context.Background(), set, drv, config.Default())
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.True(t, statuses[0].Applied)
	assert.True(t, statuses[0].ChecksumOK)
	assert.False(t, statuses[1].Applied)
}

func TestValidate_OfflineOnlyWhenNoDriver(t *testing.T) {
	t.Parallel()

	a := unit(1, "first", "CREATE TABLE a(x INT);")
	set, err := migration.NewSet([]migration.Unit{a})
	require.NoError(t, err)

	report, err := henka.Validate(context.Background(), set, nil, config.Default())
	require.NoError(t, err)
	assert.False(t, report.HasErrors())
}
