// Package executor implements the executor (C6): running a Plan's steps
// against a driver.Driver and recording the outcome in the bookkeeping
// store.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/parsql-io/henka/bookkeeping"
	"github.com/parsql-io/henka/config"
	"github.com/parsql-io/henka/driver"
	"github.com/parsql-io/henka/migration"
	"github.com/parsql-io/henka/plan"
)

// Outcome classifies how a step ended.
type Outcome int

const (
	Applied Outcome = iota
	Skipped
	Failed
)

// SkipReason explains a Skipped outcome.
type SkipReason int

const (
	SkipNone SkipReason = iota
	SkipDryRun
)

// FailReason explains a Failed outcome.
type FailReason int

const (
	FailNone FailReason = iota
	FailStatement
	FailAbortedByBatch
	FailCommit
)

// StepOutcome is one step's result, produced in plan order.
type StepOutcome struct {
	Version         migration.Version
	Name            string
	Direction       plan.Direction
	Outcome         Outcome
	SkipReason      SkipReason
	FailReason      FailReason
	Cause           error
	ExecutionTimeMS int64
}

// Report is always returned once execution begins, even on partial
// failure - the caller distinguishes full success (all Applied), partial
// (some Applied, one Failed, rest absent) and dry-run (all Skipped) by
// inspecting Outcomes.
type Report struct {
	Outcomes []StepOutcome
}

// AllApplied reports whether every outcome in r succeeded.
func (r *Report) AllApplied() bool {
	for _, o := range r.Outcomes {
		if o.Outcome != Applied {
			return false
		}
	}
	return true
}

// Sink receives step lifecycle events. It is purely observational: it
// cannot abort execution.
type Sink interface {
	StepStarted(version migration.Version, dir plan.Direction)
	StepFinished(outcome StepOutcome)
}

// NopSink implements Sink by discarding every event.
type NopSink struct{}

func (NopSink) StepStarted(migration.Version, plan.Direction) {}
func (NopSink) StepFinished(StepOutcome)                      {}

// Sentinel errors for the executor's error kinds (spec §7 ExecutionError).
var (
	ErrStatementFailed = errors.New("executor: migration statement failed")
	ErrAbortedByBatch  = errors.New("executor: step aborted because its batch failed")
	ErrCommitFailed    = errors.New("executor: transaction commit failed")
)

// Run executes pl against drv, recording outcomes through store, honoring
// cfg's transaction mode. sink may be nil, in which case a NopSink is used.
func Run(ctx context.Context, drv driver.Driver, store *bookkeeping.Store, pl *plan.Plan, cfg config.Config, sink Sink) (*Report, error) {
	if sink == nil {
		sink = NopSink{}
	}

	if pl.DryRun {
		return runDryRun(pl, sink), nil
	}

	if cfg.TransactionPerMigration {
		return runPerStep(ctx, drv, store, pl, sink)
	}
	return runBatch(ctx, drv, store, pl, sink)
}

func runDryRun(pl *plan.Plan, sink Sink) *Report {
	report := &Report{Outcomes: make([]StepOutcome, 0, len(pl.Steps))}
	for _, step := range pl.Steps {
		sink.StepStarted(step.Version, step.Direction)
		outcome := StepOutcome{
			Version:    step.Version,
			Name:       step.Name,
			Direction:  step.Direction,
			Outcome:    Skipped,
			SkipReason: SkipDryRun,
		}
		sink.StepFinished(outcome)
		report.Outcomes = append(report.Outcomes, outcome)
	}
	return report
}

func runPerStep(ctx context.Context, drv driver.Driver, store *bookkeeping.Store, pl *plan.Plan, sink Sink) (*Report, error) {
	report := &Report{Outcomes: make([]StepOutcome, 0, len(pl.Steps))}

	for _, step := range pl.Steps {
		sink.StepStarted(step.Version, step.Direction)

		tx, err := store.Begin(ctx)
		if err != nil {
			outcome := failOutcome(step, FailStatement, err)
			sink.StepFinished(outcome)
			report.Outcomes = append(report.Outcomes, outcome)
			return report, fmt.Errorf("executor: version %s: %w", step.Version, err)
		}

		outcome, err := runStep(ctx, drv, tx, store, step)
		if err != nil {
			_ = tx.Rollback()
			sink.StepFinished(outcome)
			report.Outcomes = append(report.Outcomes, outcome)
			return report, fmt.Errorf("executor: version %s: %w", step.Version, err)
		}

		if err := tx.Commit(); err != nil {
			outcome.Outcome = Failed
			outcome.FailReason = FailCommit
			outcome.Cause = err
			sink.StepFinished(outcome)
			report.Outcomes = append(report.Outcomes, outcome)
			return report, fmt.Errorf("executor: version %s: %w: %w", step.Version, ErrCommitFailed, err)
		}

		sink.StepFinished(outcome)
		report.Outcomes = append(report.Outcomes, outcome)
	}

	return report, nil
}

func runBatch(ctx context.Context, drv driver.Driver, store *bookkeeping.Store, pl *plan.Plan, sink Sink) (*Report, error) {
	tx, err := store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("executor: begin batch: %w", err)
	}

	report := &Report{Outcomes: make([]StepOutcome, 0, len(pl.Steps))}
	failedIndex := -1
	var failErr error

	for i, step := range pl.Steps {
		sink.StepStarted(step.Version, step.Direction)

		outcome, stepErr := runStep(ctx, drv, tx, store, step)
		if stepErr != nil {
			failedIndex = i
			failErr = stepErr
			sink.StepFinished(outcome)
			report.Outcomes = append(report.Outcomes, outcome)
			break
		}

		sink.StepFinished(outcome)
		report.Outcomes = append(report.Outcomes, outcome)
	}

	if failedIndex >= 0 {
		_ = tx.Rollback()

		for i := 0; i < failedIndex; i++ {
			report.Outcomes[i].Outcome = Failed
			report.Outcomes[i].FailReason = FailAbortedByBatch
			report.Outcomes[i].Cause = ErrAbortedByBatch
		}
		for _, step := range pl.Steps[failedIndex+1:] {
			outcome := StepOutcome{
				Version:    step.Version,
				Name:       step.Name,
				Direction:  step.Direction,
				Outcome:    Failed,
				FailReason: FailAbortedByBatch,
				Cause:      ErrAbortedByBatch,
			}
			report.Outcomes = append(report.Outcomes, outcome)
		}

		return report, fmt.Errorf("executor: batch aborted: %w", failErr)
	}

	if err := tx.Commit(); err != nil {
		for i := range report.Outcomes {
			report.Outcomes[i].Outcome = Failed
			report.Outcomes[i].FailReason = FailCommit
			report.Outcomes[i].Cause = err
		}
		return report, fmt.Errorf("executor: %w: %w", ErrCommitFailed, err)
	}

	return report, nil
}

// runStep runs a single step's body and bookkeeping write inside tx,
// without committing. The caller commits or rolls back. drv is passed
// alongside tx so a Func-bodied step can run directly against the
// connection capability instead of a single opaque statement; it is not
// used for SQL-bodied or delete-only steps.
func runStep(ctx context.Context, drv driver.Driver, tx driver.Tx, store *bookkeeping.Store, step plan.Step) (StepOutcome, error) {
	start := time.Now()

	if !step.DeleteOnly {
		if err := execStepBody(ctx, drv, tx, step); err != nil {
			return StepOutcome{
				Version: step.Version, Name: step.Name, Direction: step.Direction,
				Outcome: Failed, FailReason: FailStatement, Cause: err,
			}, fmt.Errorf("%w: %w", ErrStatementFailed, err)
		}
	}

	var bkErr error
	switch step.Direction {
	case plan.Up:
		bkErr = store.Record(ctx, tx, bookkeeping.AppliedRecord{
			Version:         step.Version,
			Name:            step.Name,
			Checksum:        step.Checksum,
			ExecutionTimeMS: time.Since(start).Milliseconds(),
		})
	case plan.Down:
		bkErr = store.Forget(ctx, tx, step.Version)
	}
	if bkErr != nil {
		return StepOutcome{
			Version: step.Version, Name: step.Name, Direction: step.Direction,
			Outcome: Failed, FailReason: FailStatement, Cause: bkErr,
		}, fmt.Errorf("%w: %w", ErrStatementFailed, bkErr)
	}

	return StepOutcome{
		Version:         step.Version,
		Name:            step.Name,
		Direction:       step.Direction,
		Outcome:         Applied,
		ExecutionTimeMS: time.Since(start).Milliseconds(),
	}, nil
}

// execStepBody runs step's body: a driver.Func, if step.Func holds one,
// run directly against drv; otherwise step.Body as a SQL statement run
// through tx.
func execStepBody(ctx context.Context, drv driver.Driver, tx driver.Tx, step plan.Step) error {
	if step.Func != nil {
		fn, ok := step.Func.(driver.Func)
		if !ok {
			return fmt.Errorf("executor: version %s: step.Func holds unexpected type %T", step.Version, step.Func)
		}
		return fn(ctx, drv)
	}
	return tx.Exec(ctx, step.Body)
}

func failOutcome(step plan.Step, reason FailReason, cause error) StepOutcome {
	return StepOutcome{
		Version: step.Version, Name: step.Name, Direction: step.Direction,
		Outcome: Failed, FailReason: reason, Cause: cause,
	}
}
