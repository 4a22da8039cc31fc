// Package validate implements the validator (C7): offline structural
// checks over a migration set, and online checks that cross-reference the
// bookkeeping store.
package validate

import (
	"context"
	"fmt"
	"strings"

	"github.com/parsql-io/henka/bookkeeping"
	"github.com/parsql-io/henka/migration"
)

// Severity classifies an Issue.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "error"
}

// Issue is one finding from a validation pass.
type Issue struct {
	Severity Severity
	Version  migration.Version // Zero when not tied to a specific version
	Message  string
}

// Report is the result of a validation pass: a flat list of issues.
type Report struct {
	Issues []Issue
}

// HasErrors reports whether any issue in r is an Error.
func (r *Report) HasErrors() bool {
	for _, i := range r.Issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

func (r *Report) add(sev Severity, version migration.Version, format string, args ...interface{}) {
	r.Issues = append(r.Issues, Issue{Severity: sev, Version: version, Message: fmt.Sprintf(format, args...)})
}

// Offline runs the checks that require no database connection: name
// uniqueness (case-insensitive) and the reversible/down-body partner
// check. Duplicate versions are already rejected by migration.NewSet, so
// they cannot appear in a valid *migration.Set.
func Offline(set *migration.Set) *Report {
	report := &Report{}

	seen := make(map[string]migration.Version)
	for _, u := range set.Units() {
		lower := strings.ToLower(u.Name)
		if prior, ok := seen[lower]; ok {
			report.add(SeverityError, u.Version, "name %q is also used by version %s", u.Name, prior)
		} else {
			seen[lower] = u.Version
		}

		if u.DownBody != nil && *u.DownBody == "" {
			report.add(SeverityWarning, u.Version, "down body is declared but empty; treated as irreversible")
		}
	}

	return report
}

// Online runs the checks that require the bookkeeping store: checksum
// verification for every applied unit, and detection of applied versions
// with no corresponding unit (orphaned applied).
func Online(ctx context.Context, set *migration.Set, store *bookkeeping.Store) (*Report, error) {
	report := Offline(set)

	applied, err := store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("validate: list applied: %w", err)
	}

	for _, rec := range applied {
		unit, ok := set.Get(rec.Version)
		if !ok {
			report.add(SeverityWarning, rec.Version, "version %s is applied but has no matching unit", rec.Version)
			continue
		}
		if rec.Checksum != unit.Checksum {
			report.add(SeverityError, rec.Version, "recorded checksum %q does not match current checksum %q", rec.Checksum, unit.Checksum)
		}
	}

	return report, nil
}
