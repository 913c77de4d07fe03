package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timescale/sqlreadbench/pkg/query"
)

const helperWorkerEnv = "SQLREADBENCH_TEST_WORKER"

// TestMain lets the test binary act as a worker process when re-executed by
// the exec spawner.
func TestMain(m *testing.M) {
	if os.Getenv(helperWorkerEnv) == "1" {
		if err := ServeWorker(context.Background(), os.Stdin, os.Stdout, NewPinner(), nil); err != nil {
			os.Exit(1)
		}
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func helperSpawner() *ExecSpawner {
	return &ExecSpawner{
		Path:   os.Args[0],
		Env:    append(os.Environ(), helperWorkerEnv+"=1"),
		Stderr: os.Stderr,
	}
}

func TestExecWorkers(t *testing.T) {
	c := testConfig(t)
	c.PinCPUs = true

	out, err := New(c, helperSpawner(), nil, nil).Run(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, c.TotalQueries(), out.Stats.TotalQueries)
	assert.Greater(t, out.Stats.GlobalQPS, 0.0)
}

func TestExecWorkerFailure(t *testing.T) {
	c := testConfig(t)
	c.Target = "sqlite"

	spawner := &failingDBSpawner{ExecSpawner: helperSpawner(), path: filepath.Join(t.TempDir(), "gone.sqlite3")}
	o := New(c, spawner, nil, nil)
	_, err := o.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, query.ConnectionError, query.KindOf(err))
	assert.Equal(t, Terminated, o.State())
}

// failingDBSpawner points every worker at a store that does not exist.
type failingDBSpawner struct {
	*ExecSpawner
	path string
}

func (s *failingDBSpawner) Spawn(ctx context.Context, req WorkerRequest) (Process, error) {
	req.Config.DBPath = s.path
	return s.ExecSpawner.Spawn(ctx, req)
}

// TestExecScenario is the reference workload: 2 processes of 3 units, 50000
// queries each, against 2000 rows with keys in [0, 1000).
func TestExecScenario(t *testing.T) {
	if testing.Short() {
		t.Skip("full size scenario")
	}
	c := query.DefaultConfig()
	c.DBPath = filepath.Join(t.TempDir(), "scenario.sqlite3")
	c.Rows = 2000
	c.XRange = 1000
	c.Processes = 2
	c.ThreadsPerProc = 3
	c.QueriesPerThread = 50000
	c.ReportingPeriod = 0

	out, err := New(c, helperSpawner(), nil, nil).Run(context.Background())
	require.NoError(t, err)

	assert.EqualValues(t, 300000, out.Stats.TotalQueries)
	var elapsedSum float64
	for _, p := range out.Processes {
		for _, u := range p.Units {
			assert.Greater(t, u.QPS(), 0.0)
			elapsedSum += u.ElapsedSeconds
		}
	}
	assert.GreaterOrEqual(t, out.Stats.GlobalWallSeconds, elapsedSum/6)
	assert.InDelta(t, float64(out.Stats.TotalQueries)/out.Stats.GlobalWallSeconds, out.Stats.GlobalQPS, 1e-6)
}
