// Package targets describes the data stores a read benchmark can run against.
// A target knows how to reach the store, which statements tune a freshly
// opened reader connection and which SQL implements the point lookup.
package targets

import (
	"fmt"
	"time"
)

const (
	TableName = "table1"

	// The lookup column carries no index unless explicitly requested, so every
	// lookup scans the table, matching the workload the numbers are compared to.
	LookupColumn = "x"
	IndexName    = "idx_table1_x"
)

// Tunables are the per-connection resource knobs. Every reader applies the same
// values once, right after it opens its private connection.
type Tunables struct {
	CacheSizeKiB  int64         `yaml:"cache-size-kib" mapstructure:"cache-size-kib" json:"cache-size-kib"`
	MmapSizeBytes int64         `yaml:"mmap-size" mapstructure:"mmap-size" json:"mmap-size"`
	Synchronous   string        `yaml:"synchronous" mapstructure:"synchronous" json:"synchronous"`
	TempStore     string        `yaml:"temp-store" mapstructure:"temp-store" json:"temp-store"`
	BusyTimeout   time.Duration `yaml:"busy-timeout" mapstructure:"busy-timeout" json:"busy-timeout"`
}

func DefaultTunables() Tunables {
	return Tunables{
		CacheSizeKiB:  256000,
		MmapSizeBytes: 1 << 30,
		Synchronous:   "NORMAL",
		TempStore:     "MEMORY",
		BusyTimeout:   30 * time.Second,
	}
}

// Options locate the store. DBPath is used by file based targets, the postgres
// fields by server based ones.
type Options struct {
	DBPath          string
	DBName          string
	PostgresConnect string
	ForceTextFormat bool
	Tunables        Tunables
}

type ImplementedTarget interface {
	TargetName() string
	DriverName() string

	// ReaderDSN opens a connection that cannot modify the store.
	ReaderDSN() string
	WriterDSN() string

	// SessionStatements run once on every reader connection before the lookup
	// is prepared.
	SessionStatements() []string

	LookupQuery() string
	InsertQuery() string

	DBCreator() DBCreator
}

// SelectColumns is the projection of the point lookup.
const SelectColumns = "a, b, c, d"

func LookupSQL(placeholder string) string {
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s", SelectColumns, TableName, LookupColumn, placeholder)
}

func InsertSQL(placeholders [5]string) string {
	return fmt.Sprintf("INSERT INTO %s (x, a, b, c, d) VALUES (%s, %s, %s, %s, %s)",
		TableName, placeholders[0], placeholders[1], placeholders[2], placeholders[3], placeholders[4])
}

func CreateIndexSQL() string {
	return fmt.Sprintf("CREATE INDEX %s ON %s (%s)", IndexName, TableName, LookupColumn)
}
