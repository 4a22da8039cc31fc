package executor_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parsql-io/henka/bookkeeping"
	"github.com/parsql-io/henka/config"
	"github.com/parsql-io/henka/driver"
	"github.com/parsql-io/henka/executor"
	"github.com/parsql-io/henka/migration"
	"github.com/parsql-io/henka/plan"
)

// fakeDriver is an in-memory driver.Driver for exercising the executor
// without a real database - it can be told to fail on a specific body.
type fakeDriver struct {
	applied    map[migration.Version]driver.AppliedRecord
	failOnBody string
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{applied: make(map[migration.Version]driver.AppliedRecord)}
}

func (f *fakeDriver) Kind() driver.Kind                                     { return driver.Other }
func (f *fakeDriver) Close() error                                          { return nil }
func (f *fakeDriver) EnsureBookkeeping(context.Context, driver.Table) error { return nil }

func (f *fakeDriver) Exec(ctx context.Context, statement string) error {
	if f.failOnBody != "" && statement == f.failOnBody {
		return errors.New("fake: statement failed")
	}
	return nil
}

func (f *fakeDriver) QueryApplied(context.Context, driver.Table) ([]driver.AppliedRecord, error) {
	result := make([]driver.AppliedRecord, 0, len(f.applied))
	for _, rec := range f.applied {
		result = append(result, rec)
	}
	return result, nil
}

type fakeTx struct {
	drv     *fakeDriver
	pending map[migration.Version]*driver.AppliedRecord
	deleted map[migration.Version]bool
	failed  bool
}

func (f *fakeDriver) Begin(context.Context) (driver.Tx, error) {
	return &fakeTx{
		drv:     f,
		pending: make(map[migration.Version]*driver.AppliedRecord),
		deleted: make(map[migration.Version]bool),
	}, nil
}

func (tx *fakeTx) Exec(ctx context.Context, body string) error {
	if tx.drv.failOnBody != "" && body == tx.drv.failOnBody {
		tx.failed = true
		return errors.New("fake: statement failed")
	}
	return nil
}

func (tx *fakeTx) Commit() error {
	if tx.failed {
		return errors.New("fake: cannot commit a failed transaction")
	}
	for v, rec := range tx.pending {
		tx.drv.applied[v] = *rec
	}
	for v := range tx.deleted {
		delete(tx.drv.applied, v)
	}
	return nil
}

func (tx *fakeTx) Rollback() error { return nil }

func (f *fakeDriver) UpsertApplied(ctx context.Context, tx driver.Tx, t driver.Table, rec driver.AppliedRecord) error {
	ftx := tx.(*fakeTx)
	ftx.pending[rec.Version] = &rec
	return nil
}

func (f *fakeDriver) DeleteApplied(ctx context.Context, tx driver.Tx, t driver.Table, version migration.Version) error {
	ftx := tx.(*fakeTx)
	if _, ok := f.applied[version]; !ok {
		return driver.ErrNotFound
	}
	ftx.deleted[version] = true
	return nil
}

func reversible(version migration.Version, name, up, down string) migration.Unit {
	d := down
	return migration.Unit{Version: version, Name: name, UpBody: up, DownBody: &d, Checksum: migration.Checksum([]byte(up))}
}

func TestRun_CleanForwardRun(t *testing.T) {
	t.Parallel()

	a := reversible(1, "a", "CREATE TABLE a(x INT);", "DROP TABLE a;")
	b := reversible(2, "b", "CREATE TABLE b(y INT);", "DROP TABLE b;")
	set, err := migration.NewSet([]migration.Unit{a, b})
	require.NoError(t, err)

	drv := newFakeDriver()
	store := bookkeeping.New(drv, config.Default())

	pl, err := plan.Build(set, nil, plan.RunPending(nil), config.Default())
	require.NoError(t, err)

	report, err := executor.Run(context.Background(), drv, store, pl, config.Default(), nil)
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 2)
	assert.True(t, report.AllApplied())
	assert.Len(t, drv.applied, 2)
}

func TestRun_DryRun_TouchesNothing(t *testing.T) {
	t.Parallel()

	a := reversible(1, "a", "CREATE TABLE a(x INT);", "DROP TABLE a;")
	set, err := migration.NewSet([]migration.Unit{a})
	require.NoError(t, err)

	drv := newFakeDriver()
	store := bookkeeping.New(drv, config.Default())

	pl, err := plan.Build(set, nil, plan.DryRun(plan.RunPending(nil)), config.Default())
	require.NoError(t, err)

	report, err := executor.Run(context.Background(), drv, store, pl, config.Default(), nil)
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, executor.Skipped, report.Outcomes[0].Outcome)
	assert.Equal(t, executor.SkipDryRun, report.Outcomes[0].SkipReason)
	assert.Empty(t, drv.applied)
}

// Scenario F — per-step atomicity: a failing step rolls back only itself;
// prior steps remain committed.
func TestRun_PerStepFailure_PriorStepsRemainDurable(t *testing.T) {
	t.Parallel()

	a := reversible(1, "a", "CREATE TABLE a(x INT);", "DROP TABLE a;")
	b := reversible(2, "b", "BAD SQL", "DROP TABLE b;")
	set, err := migration.NewSet([]migration.Unit{a, b})
	require.NoError(t, err)

	drv := newFakeDriver()
	drv.failOnBody = "BAD SQL"
	store := bookkeeping.New(drv, config.Default())

	pl, err := plan.Build(set, nil, plan.RunPending(nil), config.Default())
	require.NoError(t, err)

	report, err := executor.Run(context.Background(), drv, store, pl, config.Default(), nil)
	require.Error(t, err)
	require.Len(t, report.Outcomes, 2)
	assert.Equal(t, executor.Applied, report.Outcomes[0].Outcome)
	assert.Equal(t, executor.Failed, report.Outcomes[1].Outcome)
	assert.Equal(t, executor.FailStatement, report.Outcomes[1].FailReason)

	// version 1 remains applied despite version 2's failure.
	_, ok := drv.applied[1]
	assert.True(t, ok)
	_, ok = drv.applied[2]
	assert.False(t, ok)
}

// Batch mode: a failing step aborts the whole batch; every other step is
// reported AbortedByBatch and nothing is durable.
func TestRun_BatchFailure_AbortsEverything(t *testing.T) {
	t.Parallel()

	a := reversible(1, "a", "CREATE TABLE a(x INT);", "DROP TABLE a;")
	b := reversible(2, "b", "BAD SQL", "DROP TABLE b;")
	c := reversible(3, "c", "CREATE TABLE c(z INT);", "DROP TABLE c;")
	set, err := migration.NewSet([]migration.Unit{a, b, c})
	require.NoError(t, err)

	drv := newFakeDriver()
	drv.failOnBody = "BAD SQL"
	store := bookkeeping.New(drv, config.Default())

	cfg := config.New(config.WithTransactionPerMigration(false))
	pl, err := plan.Build(set, nil, plan.RunPending(nil), cfg)
	require.NoError(t, err)

	report, err := executor.Run(context.Background(), drv, store, pl, cfg, nil)
	require.Error(t, err)
	require.Len(t, report.Outcomes, 3)
	assert.Equal(t, executor.Failed, report.Outcomes[0].Outcome)
	assert.Equal(t, executor.FailAbortedByBatch, report.Outcomes[0].FailReason)
	assert.Equal(t, executor.Failed, report.Outcomes[1].Outcome)
	assert.Equal(t, executor.FailStatement, report.Outcomes[1].FailReason)
	assert.Equal(t, executor.Failed, report.Outcomes[2].Outcome)
	assert.Equal(t, executor.FailAbortedByBatch, report.Outcomes[2].FailReason)

	assert.Empty(t, drv.applied)
}

// Scenario C — rollback ordering via the executor.
func TestRun_RollbackOrdering(t *testing.T) {
	t.Parallel()

	a := reversible(1, "a", "CREATE TABLE a(x INT);", "DROP TABLE a;")
	b := reversible(2, "b", "CREATE TABLE b(y INT);", "DROP TABLE b;")
	set, err := migration.NewSet([]migration.Unit{a, b})
	require.NoError(t, err)

	drv := newFakeDriver()
	drv.applied[1] = driver.AppliedRecord{Version: 1, Name: "a", Checksum: a.Checksum}
	drv.applied[2] = driver.AppliedRecord{Version: 2, Name: "b", Checksum: b.Checksum}
	store := bookkeeping.New(drv, config.Default())

	applied, err := store.List(context.Background())
	require.NoError(t, err)

	pl, err := plan.Build(set, applied, plan.RollbackTo(migration.Zero), config.Default())
	require.NoError(t, err)

	report, err := executor.Run(context.Background(), drv, store, pl, config.Default(), nil)
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 2)
	assert.Equal(t, migration.Version(2), report.Outcomes[0].Version)
	assert.Equal(t, migration.Version(1), report.Outcomes[1].Version)
	assert.Empty(t, drv.applied)
}

// An applied version with no matching unit in the set still rolls back: it
// only deletes the bookkeeping row, since there is no down body to run.
func TestRun_RollbackDeleteOnly_NoMatchingUnit(t *testing.T) {
	t.Parallel()

	set, err := migration.NewSet(nil)
	require.NoError(t, err)

	drv := newFakeDriver()
	drv.applied[9] = driver.AppliedRecord{Version: 9, Name: "orphan", Checksum: "x"}
	store := bookkeeping.New(drv, config.Default())

	applied, err := store.List(context.Background())
	require.NoError(t, err)

	pl, err := plan.Build(set, applied, plan.RollbackTo(migration.Zero), config.Default())
	require.NoError(t, err)
	require.Len(t, pl.Steps, 1)
	assert.True(t, pl.Steps[0].DeleteOnly)

	report, err := executor.Run(context.Background(), drv, store, pl, config.Default(), nil)
	require.NoError(t, err)
	assert.True(t, report.AllApplied())
	assert.Empty(t, drv.applied)
}

// A programmatic unit's function body runs directly against the driver,
// not through tx.Exec.
func TestRun_FuncBodiedStep_RunsAgainstDriver(t *testing.T) {
	t.Parallel()

	var called bool
	fn := driver.Func(func(ctx context.Context, d driver.Driver) error {
		called = true
		return d.Exec(ctx, "CREATE TABLE fn_table(x INT);")
	})

	u := migration.Unit{Version: 1, Name: "fn_unit", UpFunc: fn, Checksum: "stable-checksum"}
	set, err := migration.NewSet([]migration.Unit{u})
	require.NoError(t, err)

	drv := newFakeDriver()
	store := bookkeeping.New(drv, config.Default())

	pl, err := plan.Build(set, nil, plan.RunPending(nil), config.Default())
	require.NoError(t, err)

	report, err := executor.Run(context.Background(), drv, store, pl, config.Default(), nil)
	require.NoError(t, err)
	assert.True(t, report.AllApplied())
	assert.True(t, called)
}
