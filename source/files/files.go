// Package files implements source.Source by scanning a directory of SQL
// files named <version>_<name>.<direction>.sql.
package files

import (
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"

	"github.com/parsql-io/henka/internal/diagnostics"
	"github.com/parsql-io/henka/migration"
)

// ErrNotADirectory is returned when dir exists but is not a directory.
var ErrNotADirectory = errors.New("files: not a directory")

// ErrDuplicateUp is returned when two files claim the same version with an
// up body.
var ErrDuplicateUp = errors.New("files: duplicate up migration for version")

// ErrNameMismatch is returned when a version's up and down files disagree
// on name.
var ErrNameMismatch = errors.New("files: up and down file names disagree for version")

type filesSource struct {
	fsys fs.FS
	dir  string
	log  *diagnostics.Logger
}

// NewFilesSource validates that dir exists and is a directory in fsys, and
// returns a source.Source that scans it lazily on every call to
// GetAvailableMigrations.
func NewFilesSource(fsys fs.FS, dir string) (*filesSource, error) {
	info, err := fs.Stat(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("files: stat %q: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("files: %q: %w", dir, ErrNotADirectory)
	}

	return &filesSource{fsys: fsys, dir: dir, log: diagnostics.Nop().WithComponent("files")}, nil
}

// WithLogger attaches a diagnostics logger for discovery warnings
// (unrecognized filenames, orphaned down files, empty up bodies). Discovery
// works without one - it defaults to a logger that discards everything.
func (s *filesSource) WithLogger(log *diagnostics.Logger) *filesSource {
	s.log = log.WithComponent("files")
	return s
}

// parsed is one filename's worth of information, before pairing.
type parsed struct {
	version   migration.Version
	name      string
	direction string // "up" or "down"
}

// parseFileName parses "<version>_<name>.<direction>.sql", returning ok=false
// for anything that doesn't match - unrecognized files are skipped rather
// than treated as an error.
func parseFileName(name string) (parsed, bool) {
	const suffix = ".sql"
	if !strings.HasSuffix(name, suffix) {
		return parsed{}, false
	}
	trimmed := strings.TrimSuffix(name, suffix)

	dot := strings.LastIndexByte(trimmed, '.')
	if dot < 0 {
		return parsed{}, false
	}
	direction := trimmed[dot+1:]
	if direction != "up" && direction != "down" {
		return parsed{}, false
	}
	rest := trimmed[:dot]

	us := strings.IndexByte(rest, '_')
	if us <= 0 || us == len(rest)-1 {
		return parsed{}, false
	}
	versionStr := rest[:us]
	migName := rest[us+1:]

	for _, r := range versionStr {
		if r < '0' || r > '9' {
			return parsed{}, false
		}
	}
	v, err := strconv.ParseInt(versionStr, 10, 64)
	if err != nil || v <= 0 {
		return parsed{}, false
	}

	if !migration.ValidName(migName) {
		return parsed{}, false
	}

	return parsed{version: migration.Version(v), name: migName, direction: direction}, true
}

// GetAvailableMigrations walks the directory once and returns the paired
// units it finds, sorted by version.
func (s *filesSource) GetAvailableMigrations() ([]migration.Unit, error) {
	entries, err := fs.ReadDir(s.fsys, s.dir)
	if err != nil {
		return nil, fmt.Errorf("files: read dir %q: %w", s.dir, err)
	}

	type halves struct {
		name     string
		upPath   string
		downPath string
	}
	byVersion := make(map[migration.Version]*halves)
	order := make([]migration.Version, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		p, ok := parseFileName(entry.Name())
		if !ok {
			s.log.Warn("ignoring file that does not match <version>_<name>.<up|down>.sql", "file", entry.Name())
			continue
		}

		h, seen := byVersion[p.version]
		if !seen {
			h = &halves{name: p.name}
			byVersion[p.version] = h
			order = append(order, p.version)
		} else if h.name != p.name {
			if p.direction == "up" && h.upPath != "" {
				return nil, fmt.Errorf("files: version %s: %w", p.version, ErrDuplicateUp)
			}
			return nil, fmt.Errorf("files: version %s: %w (%q vs %q)", p.version, ErrNameMismatch, h.name, p.name)
		}

		path := s.dir + "/" + entry.Name()
		switch p.direction {
		case "up":
			if h.upPath != "" {
				return nil, fmt.Errorf("files: version %s: %w", p.version, ErrDuplicateUp)
			}
			h.upPath = path
		case "down":
			h.downPath = path
		}
	}

	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	units := make([]migration.Unit, 0, len(order))
	for _, v := range order {
		h := byVersion[v]
		if h.upPath == "" {
			// A down file with no matching up file is not a usable unit;
			// skip it rather than fail the whole scan.
			s.log.Warn("ignoring down file with no matching up file", "version", v.String(), "file", h.downPath)
			continue
		}

		upBody, err := fs.ReadFile(s.fsys, h.upPath)
		if err != nil {
			return nil, fmt.Errorf("files: read %q: %w", h.upPath, err)
		}
		if len(strings.TrimSpace(string(upBody))) == 0 {
			s.log.Warn("up body is empty", "version", v.String(), "file", h.upPath)
		}

		var downBody *string
		if h.downPath != "" {
			raw, err := fs.ReadFile(s.fsys, h.downPath)
			if err != nil {
				return nil, fmt.Errorf("files: read %q: %w", h.downPath, err)
			}
			body := string(raw)
			downBody = &body
		}

		units = append(units, migration.Unit{
			Version:  v,
			Name:     h.name,
			UpBody:   string(upBody),
			DownBody: downBody,
			Checksum: migration.Checksum(upBody),
			Origin: migration.Origin{
				Kind:     migration.FileBacked,
				PathUp:   h.upPath,
				PathDown: h.downPath,
			},
		})
	}

	return units, nil
}
