// Package plan implements the planner (C5): a pure function from a
// migration set, the database's current bookkeeping state and a request,
// to an ordered sequence of steps to execute. The planner never touches a
// database connection.
package plan

import (
	"errors"
	"fmt"
	"sort"

	"github.com/parsql-io/henka/bookkeeping"
	"github.com/parsql-io/henka/config"
	"github.com/parsql-io/henka/migration"
)

// Direction of a single step.
type Direction int

const (
	Up Direction = iota
	Down
)

func (d Direction) String() string {
	if d == Down {
		return "down"
	}
	return "up"
}

// Request is a closed sum type: exactly one of RunPending, RollbackTo,
// DryRun is meaningful per call to Build.
type Request struct {
	kind     requestKind
	target   *migration.Version // RunPending's optional ceiling
	rollback migration.Version  // RollbackTo's floor (exclusive)
	inner    *Request           // DryRun's wrapped request
}

type requestKind int

const (
	kindRunPending requestKind = iota
	kindRollbackTo
	kindDryRun
)

// RunPending builds a request to apply every pending unit up to an optional
// target version (nil means no ceiling).
func RunPending(target *migration.Version) Request {
	return Request{kind: kindRunPending, target: target}
}

// RollbackTo builds a request to reverse every applied record with a
// version strictly greater than target. migration.Zero means "roll back
// everything".
func RollbackTo(target migration.Version) Request {
	return Request{kind: kindRollbackTo, rollback: target}
}

// DryRun wraps inner so Build still computes steps, but callers signal the
// executor to skip them.
func DryRun(inner Request) Request {
	return Request{kind: kindDryRun, inner: &inner}
}

// IsDryRun reports whether r is a DryRun request.
func (r Request) IsDryRun() bool {
	return r.kind == kindDryRun
}

// Step is one unit of work: a direction and the unit to run it against.
type Step struct {
	Version  migration.Version
	Name     string
	Body     string
	// Func, when non-nil, holds a driver.Func to run directly against the
	// connection instead of Body - set for programmatic units registered
	// with a Go function body. Typed any because this package does not
	// import package driver; package executor type-asserts it back.
	Func     any
	Checksum string
	Direction Direction
	// OutOfOrder marks a step whose version is below the current max
	// applied version, admitted only because allow_out_of_order = true.
	OutOfOrder bool
	// DeleteOnly marks a Down step whose applied record has no matching
	// unit in the set: there is no down body to run, so the executor only
	// deletes the bookkeeping row.
	DeleteOnly bool
}

// Plan is an ordered, already-validated sequence of steps.
type Plan struct {
	Steps   []Step
	DryRun  bool
	Request Request
}

// Sentinel errors for the planner's error kinds (spec §7 PlanError).
var (
	ErrGapDetected        = errors.New("plan: gap detected in applied sequence")
	ErrUnknownApplied     = errors.New("plan: applied version has no matching unit")
	ErrChecksumMismatch   = errors.New("plan: recorded checksum does not match current checksum")
	ErrIrreversibleApplied = errors.New("plan: applied version has no down body")
)

// GapError carries the missing version for ErrGapDetected.
type GapError struct {
	MissingVersion migration.Version
}

func (e *GapError) Error() string {
	return fmt.Sprintf("plan: gap detected: version %s is not applied but is below the max applied version", e.MissingVersion)
}
func (e *GapError) Unwrap() error  { return ErrGapDetected }
func (e *GapError) Is(target error) bool { return target == ErrGapDetected }

// UnknownAppliedError carries the orphaned applied version.
type UnknownAppliedError struct {
	Version migration.Version
}

func (e *UnknownAppliedError) Error() string {
	return fmt.Sprintf("plan: applied version %s has no matching unit in the set", e.Version)
}
func (e *UnknownAppliedError) Unwrap() error  { return ErrUnknownApplied }
func (e *UnknownAppliedError) Is(target error) bool { return target == ErrUnknownApplied }

// ChecksumMismatchError carries both checksums for ErrChecksumMismatch.
type ChecksumMismatchError struct {
	Version  migration.Version
	Recorded string
	Current  string
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("plan: version %s: recorded checksum %q does not match current checksum %q",
		e.Version, e.Recorded, e.Current)
}
func (e *ChecksumMismatchError) Unwrap() error  { return ErrChecksumMismatch }
func (e *ChecksumMismatchError) Is(target error) bool { return target == ErrChecksumMismatch }

// IrreversibleAppliedError carries the version that cannot be rolled back.
type IrreversibleAppliedError struct {
	Version migration.Version
}

func (e *IrreversibleAppliedError) Error() string {
	return fmt.Sprintf("plan: version %s was applied but has no down body", e.Version)
}
func (e *IrreversibleAppliedError) Unwrap() error  { return ErrIrreversibleApplied }
func (e *IrreversibleAppliedError) Is(target error) bool { return target == ErrIrreversibleApplied }

// Build computes a Plan for req against set and the database's current
// applied records, honoring cfg's gap and checksum policy. Build performs
// no I/O.
func Build(set *migration.Set, applied []bookkeeping.AppliedRecord, req Request, cfg config.Config) (*Plan, error) {
	if req.kind == kindDryRun {
		inner, err := Build(set, applied, *req.inner, cfg)
		if err != nil {
			return nil, err
		}
		inner.DryRun = true
		inner.Request = req
		return inner, nil
	}

	appliedByVersion := make(map[migration.Version]bookkeeping.AppliedRecord, len(applied))
	var maxApplied migration.Version
	for _, rec := range applied {
		appliedByVersion[rec.Version] = rec
		if rec.Version > maxApplied {
			maxApplied = rec.Version
		}
	}

	if err := checkChecksums(set, applied, cfg); err != nil {
		return nil, err
	}

	switch req.kind {
	case kindRunPending:
		return buildRunPending(set, appliedByVersion, maxApplied, req, cfg)
	case kindRollbackTo:
		return buildRollbackTo(set, appliedByVersion, req, cfg)
	default:
		return nil, fmt.Errorf("plan: unknown request kind %d", req.kind)
	}
}

func checkChecksums(set *migration.Set, applied []bookkeeping.AppliedRecord, cfg config.Config) error {
	if !cfg.VerifyChecksums {
		return nil
	}
	for _, rec := range applied {
		unit, ok := set.Get(rec.Version)
		if !ok {
			continue
		}
		if rec.Checksum != unit.Checksum {
			return &ChecksumMismatchError{Version: rec.Version, Recorded: rec.Checksum, Current: unit.Checksum}
		}
	}
	return nil
}

func buildRunPending(
	set *migration.Set,
	appliedByVersion map[migration.Version]bookkeeping.AppliedRecord,
	maxApplied migration.Version,
	req Request,
	cfg config.Config,
) (*Plan, error) {
	for _, rec := range appliedByVersion {
		if _, ok := set.Get(rec.Version); !ok {
			return nil, &UnknownAppliedError{Version: rec.Version}
		}
	}

	units := set.Units()
	var steps []Step
	for _, u := range units {
		_, isApplied := appliedByVersion[u.Version]
		if isApplied {
			continue
		}

		if u.Version <= maxApplied {
			if !cfg.AllowOutOfOrder {
				return nil, &GapError{MissingVersion: u.Version}
			}
			steps = append(steps, newStep(u, Up, true))
			continue
		}

		if req.target != nil && u.Version > *req.target {
			continue
		}
		steps = append(steps, newStep(u, Up, false))
	}

	sort.Slice(steps, func(i, j int) bool { return steps[i].Version < steps[j].Version })

	return &Plan{Steps: steps, Request: req}, nil
}

func buildRollbackTo(
	set *migration.Set,
	appliedByVersion map[migration.Version]bookkeeping.AppliedRecord,
	req Request,
	cfg config.Config,
) (*Plan, error) {
	var steps []Step
	for version := range appliedByVersion {
		if version <= req.rollback {
			continue
		}

		unit, ok := set.Get(version)
		if !ok {
			// No matching unit: there is no down body to run, but spec
			// still permits the rollback to proceed - it only deletes the
			// bookkeeping row for this version.
			rec := appliedByVersion[version]
			steps = append(steps, Step{
				Version:    version,
				Name:       rec.Name,
				Direction:  Down,
				DeleteOnly: true,
			})
			continue
		}
		if !unit.Reversible() {
			return nil, &IrreversibleAppliedError{Version: version}
		}

		steps = append(steps, newStep(unit, Down, false))
	}

	sort.Slice(steps, func(i, j int) bool { return steps[i].Version > steps[j].Version })

	return &Plan{Steps: steps, Request: req}, nil
}

func newStep(u migration.Unit, dir Direction, outOfOrder bool) Step {
	body := u.UpBody
	fn := u.UpFunc
	if dir == Down {
		body = ""
		if u.DownBody != nil {
			body = *u.DownBody
		}
		fn = u.DownFunc
	}
	return Step{
		Version:    u.Version,
		Name:       u.Name,
		Body:       body,
		Func:       fn,
		Checksum:   u.Checksum,
		Direction:  dir,
		OutOfOrder: outOfOrder,
	}
}
