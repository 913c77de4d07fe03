package query

import (
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/pflag"

	"github.com/timescale/sqlreadbench/internal/utils"
	"github.com/timescale/sqlreadbench/pkg/targets"
	"github.com/timescale/sqlreadbench/pkg/targets/constants"
	"github.com/timescale/sqlreadbench/pkg/workload"
)

const (
	defaultDBPath    = "test_reads.sqlite3"
	defaultBatchSize = 10000
)

var (
	synchronousModes = []string{"OFF", "NORMAL", "FULL", "EXTRA"}
	tempStores       = []string{"DEFAULT", "FILE", "MEMORY"}
)

// flagAliases maps the names used by the single process variants of the tool
// onto the canonical flags.
var flagAliases = map[string]string{
	"threads":             "threads-per-proc",
	"queries-per-process": "queries-per-thread",
}

// BenchmarkConfig is fixed before the fixture is built and never changes while
// the run is in flight. Worker processes receive it verbatim.
type BenchmarkConfig struct {
	Target          string `yaml:"target" mapstructure:"target" json:"target"`
	DBPath          string `yaml:"db-path" mapstructure:"db-path" json:"db-path"`
	DBName          string `yaml:"db-name" mapstructure:"db-name" json:"db-name"`
	PostgresConnect string `yaml:"postgres" mapstructure:"postgres" json:"postgres"`
	ForceTextFormat bool   `yaml:"force-text-format" mapstructure:"force-text-format" json:"force-text-format"`

	Rows             uint64 `yaml:"rows" mapstructure:"rows" json:"rows"`
	XRange           int64  `yaml:"x-range" mapstructure:"x-range" json:"x-range"`
	Processes        uint   `yaml:"processes" mapstructure:"processes" json:"processes"`
	ThreadsPerProc   uint   `yaml:"threads-per-proc" mapstructure:"threads-per-proc" json:"threads-per-proc"`
	QueriesPerThread uint64 `yaml:"queries-per-thread" mapstructure:"queries-per-thread" json:"queries-per-thread"`
	PinCPUs          bool   `yaml:"pin-cpus" mapstructure:"pin-cpus" json:"pin-cpus"`
	Distribution     string `yaml:"distribution" mapstructure:"distribution" json:"distribution"`

	BatchSize       uint          `yaml:"batch-size" mapstructure:"batch-size" json:"batch-size"`
	CreateIndex     bool          `yaml:"create-index" mapstructure:"create-index" json:"create-index"`
	ReportingPeriod time.Duration `yaml:"reporting-period" mapstructure:"reporting-period" json:"reporting-period"`

	MaxQPS           uint64 `yaml:"max-qps" mapstructure:"max-qps" json:"max-qps"`
	HDRLatenciesFile string `yaml:"hdr-latencies" mapstructure:"hdr-latencies" json:"hdr-latencies"`
	ResultsFile      string `yaml:"results-file" mapstructure:"results-file" json:"results-file"`
	MemProfile       string `yaml:"memprofile" mapstructure:"memprofile" json:"memprofile"`

	targets.Tunables `yaml:",inline" mapstructure:",squash"`
}

// DefaultConfig mirrors the flag defaults.
func DefaultConfig() BenchmarkConfig {
	return BenchmarkConfig{
		Target:           constants.FormatSQLite,
		DBPath:           defaultDBPath,
		DBName:           "benchmark",
		PostgresConnect:  "host=localhost user=postgres sslmode=disable",
		Rows:             2000,
		XRange:           1000,
		Processes:        2,
		ThreadsPerProc:   16,
		QueriesPerThread: 50000,
		Distribution:     workload.DistributionUniform,
		BatchSize:        defaultBatchSize,
		ReportingPeriod:  10 * time.Second,
		Tunables:         targets.DefaultTunables(),
	}
}

func (c BenchmarkConfig) AddToFlagSet(fs *pflag.FlagSet) {
	d := DefaultConfig()
	fs.SetNormalizeFunc(normalizeFlagName)

	fs.String("target", d.Target, "Store to benchmark: "+strings.Join(constants.SupportedFormats(), ", "))
	fs.String("db-path", d.DBPath, "Path to the SQLite file (will be overwritten)")
	fs.String("db-name", d.DBName, "PostgreSQL database holding the fixture table")
	fs.String("postgres", d.PostgresConnect, "PostgreSQL connection parameters, e.g. 'host=localhost user=postgres sslmode=disable'")
	fs.Bool("force-text-format", false, "Use the text protocol (lib/pq) instead of pgx for PostgreSQL")

	fs.Uint64("rows", d.Rows, "Number of rows to insert")
	fs.Int64("x-range", d.XRange, "Random x range: [0, x-range)")
	fs.Uint("processes", d.Processes, "Number of worker processes")
	fs.Uint("threads-per-proc", d.ThreadsPerProc, "Number of execution units (goroutines with their own connection) per process")
	fs.Uint64("queries-per-thread", d.QueriesPerThread, "Queries each execution unit will execute")
	fs.Bool("pin-cpus", false, "Best-effort: pin each process to a separate CPU")
	fs.String("distribution", d.Distribution, "Key distribution: "+strings.Join(workload.Distributions(), ", "))

	fs.Uint("batch-size", d.BatchSize, "Number of rows inserted per transaction while building the fixture")
	fs.Bool("create-index", false, "Create an index on the lookup column (default lookups scan the table)")
	fs.Duration("reporting-period", d.ReportingPeriod, "Period to report insert progress while building the fixture, 0 to disable")

	fs.Uint64("max-qps", 0, "Limit the rate of queries per second of every execution unit, 0 = no limit")
	fs.String("hdr-latencies", "", "Record per-query latencies and write the HDR histogram percentiles to this file")
	fs.String("results-file", "", "Write the run summary to this file (.json, .yaml or .yml)")
	fs.String("memprofile", "", "Write a memory profile to this file.")

	fs.Int64("cache-size-kib", d.CacheSizeKiB, "Page cache per connection in KiB")
	fs.Int64("mmap-size", d.MmapSizeBytes, "Memory-mapped I/O size per connection in bytes")
	fs.String("synchronous", d.Synchronous, "Durability mode of every connection (OFF, NORMAL, FULL, EXTRA)")
	fs.String("temp-store", d.TempStore, "Temporary storage of every connection (DEFAULT, FILE, MEMORY)")
	fs.Duration("busy-timeout", d.BusyTimeout, "How long a connection waits on a locked store")
}

func normalizeFlagName(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	if canonical, ok := flagAliases[name]; ok {
		name = canonical
	}
	return pflag.NormalizedName(name)
}

// TotalUnits is the number of execution units across all processes.
func (c BenchmarkConfig) TotalUnits() uint64 {
	return uint64(c.Processes) * uint64(c.ThreadsPerProc)
}

// TotalQueries is the number of lookups a successful run performs.
func (c BenchmarkConfig) TotalQueries() uint64 {
	return c.TotalUnits() * c.QueriesPerThread
}

func (c BenchmarkConfig) TargetOptions() targets.Options {
	return targets.Options{
		DBPath:          c.DBPath,
		DBName:          c.DBName,
		PostgresConnect: c.PostgresConnect,
		ForceTextFormat: c.ForceTextFormat,
		Tunables:        c.Tunables,
	}
}

func (c BenchmarkConfig) isFileTarget() bool {
	return c.Target == constants.FormatSQLite || c.Target == constants.FormatSQLitePure
}

// Validate reports every invalid field at once. The returned error is a
// ConfigError.
func (c BenchmarkConfig) Validate() error {
	var result *multierror.Error
	add := func(format string, args ...interface{}) {
		result = multierror.Append(result, fmt.Errorf(format, args...))
	}

	if !utils.IsIn(c.Target, constants.SupportedFormats()) {
		add("unknown target %q", c.Target)
	}
	if c.isFileTarget() && c.DBPath == "" {
		add("--db-path is required for target %s", c.Target)
	}
	if c.Target == constants.FormatPostgres && c.PostgresConnect == "" {
		add("--postgres is required for target %s", c.Target)
	}
	if c.Rows == 0 {
		add("--rows must be at least 1")
	}
	if c.XRange < 1 {
		add("--x-range must be at least 1, got %d", c.XRange)
	}
	if c.Processes == 0 {
		add("--processes must be at least 1")
	}
	if c.ThreadsPerProc == 0 {
		add("--threads-per-proc must be at least 1")
	}
	if c.QueriesPerThread == 0 {
		add("--queries-per-thread must be at least 1")
	}
	if !workload.ValidDistribution(c.Distribution) {
		add("unknown distribution %q", c.Distribution)
	}
	if c.BatchSize == 0 {
		add("--batch-size must be at least 1")
	}
	if c.CacheSizeKiB < 0 {
		add("--cache-size-kib cannot be negative")
	}
	if c.MmapSizeBytes < 0 {
		add("--mmap-size cannot be negative")
	}
	if c.BusyTimeout < 0 {
		add("--busy-timeout cannot be negative")
	}
	if c.Synchronous != "" && !utils.IsInFold(c.Synchronous, synchronousModes) {
		add("unknown synchronous mode %q", c.Synchronous)
	}
	if c.TempStore != "" && !utils.IsInFold(c.TempStore, tempStores) {
		add("unknown temp store %q", c.TempStore)
	}

	if err := result.ErrorOrNil(); err != nil {
		return NewError(ConfigError, err)
	}
	return nil
}

// Describe is a one line summary for logs.
func (c BenchmarkConfig) Describe() string {
	return fmt.Sprintf("%s: %d processes x %d units x %d queries (x in [0,%d), %d rows)",
		c.Target, c.Processes, c.ThreadsPerProc, c.QueriesPerThread, c.XRange, c.Rows)
}
