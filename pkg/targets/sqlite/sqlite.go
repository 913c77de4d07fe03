// Package sqlite implements the file based targets. Two drivers are offered:
// the cgo driver (mattn/go-sqlite3, registered as "sqlite3") and the pure Go
// translation (modernc.org/sqlite, registered as "sqlite"). Both read the same
// file format, so a fixture built by one can be read by the other.
package sqlite

import (
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/timescale/sqlreadbench/pkg/targets"
	"github.com/timescale/sqlreadbench/pkg/targets/constants"
)

type target struct {
	name   string
	driver string
	opts   targets.Options
}

// NewTarget returns the cgo backed target.
func NewTarget(opts targets.Options) targets.ImplementedTarget {
	return &target{name: constants.FormatSQLite, driver: "sqlite3", opts: opts}
}

// NewPureTarget returns the target backed by the pure Go driver.
func NewPureTarget(opts targets.Options) targets.ImplementedTarget {
	return &target{name: constants.FormatSQLitePure, driver: "sqlite", opts: opts}
}

func (t *target) TargetName() string { return t.name }

func (t *target) DriverName() string { return t.driver }

func (t *target) ReaderDSN() string {
	return "file:" + t.opts.DBPath + "?mode=ro"
}

func (t *target) WriterDSN() string {
	return "file:" + t.opts.DBPath
}

func (t *target) SessionStatements() []string {
	return SessionPragmas(t.opts.Tunables)
}

func (t *target) LookupQuery() string {
	return targets.LookupSQL("?")
}

func (t *target) InsertQuery() string {
	return targets.InsertSQL([5]string{"?", "?", "?", "?", "?"})
}

func (t *target) DBCreator() targets.DBCreator {
	return &dbCreator{driver: t.driver, path: t.opts.DBPath, dsn: t.WriterDSN()}
}

// SessionPragmas turns the tunables into the statements every reader runs. A
// zero value leaves the corresponding engine default in place.
func SessionPragmas(tun targets.Tunables) []string {
	var out []string
	if tun.BusyTimeout > 0 {
		out = append(out, fmt.Sprintf("PRAGMA busy_timeout = %d", tun.BusyTimeout.Milliseconds()))
	}
	if tun.CacheSizeKiB > 0 {
		// negative means KiB rather than pages
		out = append(out, fmt.Sprintf("PRAGMA cache_size = -%d", tun.CacheSizeKiB))
	}
	if tun.MmapSizeBytes > 0 {
		out = append(out, fmt.Sprintf("PRAGMA mmap_size = %d", tun.MmapSizeBytes))
	}
	if tun.Synchronous != "" {
		out = append(out, "PRAGMA synchronous = "+strings.ToUpper(tun.Synchronous))
	}
	if tun.TempStore != "" {
		out = append(out, "PRAGMA temp_store = "+strings.ToUpper(tun.TempStore))
	}
	out = append(out, "PRAGMA query_only = 1")
	return out
}
