package query

import (
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	c := DefaultConfig()
	require.NoError(t, c.Validate())
	assert.EqualValues(t, 32, c.TotalUnits())
	assert.EqualValues(t, 1600000, c.TotalQueries())
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	c := DefaultConfig()
	c.Processes = 0
	c.ThreadsPerProc = 0
	c.QueriesPerThread = 0
	c.XRange = 0
	c.Distribution = "gaussian"

	err := c.Validate()
	require.Error(t, err)
	assert.Equal(t, ConfigError, KindOf(err))

	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 5)
}

func TestValidateTargetSpecifics(t *testing.T) {
	c := DefaultConfig()
	c.DBPath = ""
	assert.Error(t, c.Validate())

	c = DefaultConfig()
	c.Target = "postgres"
	c.DBPath = ""
	assert.NoError(t, c.Validate())
	c.PostgresConnect = ""
	assert.Error(t, c.Validate())

	c = DefaultConfig()
	c.Target = "influx"
	assert.Error(t, c.Validate())

	c = DefaultConfig()
	c.Synchronous = "sometimes"
	assert.Error(t, c.Validate())
	c.Synchronous = "off"
	assert.NoError(t, c.Validate())
}

func TestFlagAliases(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BenchmarkConfig{}.AddToFlagSet(fs)

	require.NoError(t, fs.Parse([]string{"--threads=4", "--queries-per-process=10", "--processes=1"}))

	threads, err := fs.GetUint("threads-per-proc")
	require.NoError(t, err)
	assert.EqualValues(t, 4, threads)

	queries, err := fs.GetUint64("queries-per-thread")
	require.NoError(t, err)
	assert.EqualValues(t, 10, queries)
}

func TestTargetOptions(t *testing.T) {
	c := DefaultConfig()
	c.DBPath = "/data/x.sqlite3"
	c.CacheSizeKiB = 1
	opts := c.TargetOptions()
	assert.Equal(t, "/data/x.sqlite3", opts.DBPath)
	assert.EqualValues(t, 1, opts.Tunables.CacheSizeKiB)
}
