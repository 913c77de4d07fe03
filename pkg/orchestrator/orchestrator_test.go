package orchestrator

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timescale/sqlreadbench/pkg/query"
)

// pipeProcess runs ServeWorker on a goroutine and exposes its output through a
// pipe, standing in for a real worker process.
type pipeProcess struct {
	out    *io.PipeReader
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func (p *pipeProcess) Output() io.Reader { return p.out }

func (p *pipeProcess) Kill() error {
	p.cancel()
	return p.out.Close()
}

func (p *pipeProcess) Wait() error {
	<-p.done
	return p.err
}

type inProcessSpawner struct {
	mutate func(*WorkerRequest)

	mu       sync.Mutex
	requests []WorkerRequest
}

func (s *inProcessSpawner) Spawn(ctx context.Context, req WorkerRequest) (Process, error) {
	if s.mutate != nil {
		s.mutate(&req)
	}
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	var in bytes.Buffer
	if err := writeJSON(&in, req); err != nil {
		return nil, err
	}
	r, w := io.Pipe()
	ctx, cancel := context.WithCancel(ctx)
	p := &pipeProcess{out: r, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(p.done)
		p.err = ServeWorker(ctx, &in, w, noopPinner{}, nil)
		w.Close()
	}()
	return p, nil
}

type staticProcess struct{ out io.Reader }

func (p staticProcess) Output() io.Reader { return p.out }
func (staticProcess) Kill() error         { return nil }
func (staticProcess) Wait() error         { return nil }

// staticSpawner hands out canned worker output by process index.
type staticSpawner struct {
	outputs  map[int]string
	spawnErr map[int]error
}

func (s staticSpawner) Spawn(_ context.Context, req WorkerRequest) (Process, error) {
	if err, ok := s.spawnErr[req.ProcessIndex]; ok {
		return nil, err
	}
	return staticProcess{out: strings.NewReader(s.outputs[req.ProcessIndex])}, nil
}

func testConfig(t *testing.T) query.BenchmarkConfig {
	c := query.DefaultConfig()
	c.DBPath = filepath.Join(t.TempDir(), "bench.sqlite3")
	c.Rows = 500
	c.XRange = 100
	c.Processes = 2
	c.ThreadsPerProc = 3
	c.QueriesPerThread = 40
	c.ReportingPeriod = 0
	return c
}

func TestRunCollectsEveryProcess(t *testing.T) {
	c := testConfig(t)
	spawner := &inProcessSpawner{}
	var reported *Outcome
	o := New(c, spawner, nil, nil)
	o.Report = func(out Outcome) error {
		reported = &out
		return nil
	}

	out, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.EqualValues(t, 240, out.Stats.TotalQueries)
	assert.Equal(t, 6, out.Stats.Units)
	require.Len(t, out.Processes, 2)
	for i, p := range out.Processes {
		assert.Equal(t, i, p.ProcessIndex)
		require.Len(t, p.Units, 3)
		for _, u := range p.Units {
			assert.Greater(t, u.QPS(), 0.0)
		}
	}
	assert.LessOrEqual(t, out.Stats.UnitQPS.Min, out.Stats.UnitQPS.Median)
	assert.LessOrEqual(t, out.Stats.UnitQPS.Median, out.Stats.UnitQPS.Max)
	assert.Nil(t, out.Latencies)
	assert.EqualValues(t, 500, out.Fixture.Rows)

	require.NotNil(t, reported)
	assert.Equal(t, out.Stats, reported.Stats)
	assert.Equal(t, []RunState{Configured, FixtureBuilt, Running, Collecting, Aggregated, Reported}, o.History())

	require.Len(t, spawner.requests, 2)
	for _, req := range spawner.requests {
		assert.Equal(t, c, req.Config)
	}
}

func TestRunMergesLatencies(t *testing.T) {
	c := testConfig(t)
	c.HDRLatenciesFile = filepath.Join(t.TempDir(), "latencies.txt")

	out, err := New(c, &inProcessSpawner{}, nil, nil).Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, out.Latencies)
	assert.EqualValues(t, 240, out.Latencies.Count())
}

func TestRunInline(t *testing.T) {
	c := testConfig(t)
	c.Processes = 1
	c.ThreadsPerProc = 1
	c.QueriesPerThread = 1
	c.PinCPUs = true

	o := New(c, nil, nil, nil)
	out, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.EqualValues(t, 1, out.Stats.TotalQueries)
	assert.Equal(t, out.Stats.UnitQPS.Min, out.Stats.UnitQPS.Max)
	assert.Equal(t, out.Stats.UnitQPS.Min, out.Stats.UnitQPS.Median)
	assert.Equal(t, out.Stats.UnitQPS.Min, out.Stats.UnitQPS.Mean)
	assert.Equal(t, Reported, o.State())
}

func TestRunFailsOnUnitConnectionError(t *testing.T) {
	c := testConfig(t)
	missing := filepath.Join(t.TempDir(), "missing.sqlite3")
	spawner := &inProcessSpawner{mutate: func(req *WorkerRequest) {
		if req.ProcessIndex == 1 {
			req.Config.DBPath = missing
		}
	}}
	reportCalled := false
	o := New(c, spawner, nil, nil)
	o.Report = func(Outcome) error {
		reportCalled = true
		return nil
	}

	out, err := o.Run(context.Background())
	require.Error(t, err)

	e := query.AsError(err)
	assert.Equal(t, query.ConnectionError, e.Kind)
	assert.Equal(t, 1, e.ProcessIndex)
	assert.NotEqual(t, query.NoIndex, e.UnitIndex)
	assert.Contains(t, err.Error(), "process 1")

	assert.False(t, reportCalled)
	assert.Empty(t, out.Processes)
	assert.Equal(t, Terminated, o.State())
}

func TestRunFailsOnSpawnError(t *testing.T) {
	c := testConfig(t)
	good, err := encodeMessage(resultMessage(query.NewProcessResult(0, nil, time.Second)))
	require.NoError(t, err)
	spawner := staticSpawner{
		outputs:  map[int]string{0: good},
		spawnErr: map[int]error{1: errors.New("fork: resource temporarily unavailable")},
	}

	_, err = New(c, spawner, nil, nil).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, query.SpawnError, query.KindOf(err))
	assert.Equal(t, 1, query.AsError(err).ProcessIndex)
}

func TestRunFailsOnMalformedMessage(t *testing.T) {
	c := testConfig(t)
	spawner := staticSpawner{outputs: map[int]string{0: "not json", 1: ""}}

	o := New(c, spawner, nil, nil)
	_, err := o.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, query.ProtocolError, query.KindOf(err))
	assert.Equal(t, []RunState{Configured, FixtureBuilt, Running, Collecting, Terminated}, o.History())
}

func TestRunNamesWorkerThatFailedBeforeItsRequest(t *testing.T) {
	c := testConfig(t)
	good, err := encodeMessage(resultMessage(query.NewProcessResult(0, nil, time.Second)))
	require.NoError(t, err)
	bad, err := encodeMessage(failureMessage(query.NoIndex, query.NewError(query.ProtocolError, errors.New("decode worker request: EOF"))))
	require.NoError(t, err)

	_, err = New(c, staticSpawner{outputs: map[int]string{0: good, 1: bad}}, nil, nil).Run(context.Background())
	require.Error(t, err)
	e := query.AsError(err)
	assert.Equal(t, query.ProtocolError, e.Kind)
	assert.Equal(t, 1, e.ProcessIndex)
	assert.Contains(t, err.Error(), "process 1")
}

func TestRunRejectsShortResults(t *testing.T) {
	c := testConfig(t)
	short := query.NewProcessResult(0, []query.UnitResult{{UnitIndex: 0, QueryCount: 1, ElapsedSeconds: 1}}, 1)
	msg, err := encodeMessage(resultMessage(short))
	require.NoError(t, err)

	_, err = New(c, staticSpawner{outputs: map[int]string{0: msg, 1: msg}}, nil, nil).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, query.ProtocolError, query.KindOf(err))
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	c := testConfig(t)
	c.QueriesPerThread = 0
	spawner := &inProcessSpawner{}

	o := New(c, spawner, nil, nil)
	_, err := o.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, query.ConfigError, query.KindOf(err))
	assert.Empty(t, spawner.requests)
	assert.Equal(t, []RunState{Configured, Terminated}, o.History())
}

func TestRunReportFailure(t *testing.T) {
	c := testConfig(t)
	c.Processes = 1
	o := New(c, nil, nil, nil)
	o.Report = func(Outcome) error { return errors.New("disk full") }

	_, err := o.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, Terminated, o.State())
}

func encodeMessage(m WorkerMessage) (string, error) {
	var b bytes.Buffer
	err := writeJSON(&b, m)
	return b.String(), err
}
