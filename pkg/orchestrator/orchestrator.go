// Package orchestrator drives a benchmark run: it builds the fixture, spreads
// the execution units over worker processes, collects one result per process
// and aggregates them. Any failure ends the run without statistics.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/timescale/sqlreadbench/load"
	"github.com/timescale/sqlreadbench/pkg/query"
	"github.com/timescale/sqlreadbench/pkg/targets"
	"github.com/timescale/sqlreadbench/pkg/targets/initializers"
)

// Outcome is everything known about a successful run.
type Outcome struct {
	Config    query.BenchmarkConfig
	Fixture   load.FixtureSummary
	Processes []query.ProcessResult
	Stats     query.GlobalStats
	// Latencies is nil unless per-query latencies were recorded.
	Latencies *query.LatencyStats
	CPUs      int
	Start     time.Time
	End       time.Time
}

type Orchestrator struct {
	Config  query.BenchmarkConfig
	Spawner Spawner
	Pinner  Pinner
	// Report is called once the run is aggregated.
	Report func(Outcome) error

	log     *logrus.Entry
	history []RunState
}

func New(config query.BenchmarkConfig, spawner Spawner, pinner Pinner, log *logrus.Entry) *Orchestrator {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if pinner == nil {
		pinner = noopPinner{}
	}
	return &Orchestrator{
		Config:  config,
		Spawner: spawner,
		Pinner:  pinner,
		log:     log,
		history: []RunState{Configured},
	}
}

func (o *Orchestrator) State() RunState {
	return o.history[len(o.history)-1]
}

// History lists every state the run went through, starting with Configured.
func (o *Orchestrator) History() []RunState {
	return append([]RunState(nil), o.history...)
}

func (o *Orchestrator) transition(to RunState) {
	from := o.State()
	if !canTransition(from, to) {
		panic(fmt.Sprintf("invalid run state transition %s -> %s", from, to))
	}
	o.history = append(o.history, to)
	o.log.WithField("state", to).Debug("run state")
}

func (o *Orchestrator) fail(err error) error {
	o.transition(Terminated)
	return err
}

// Run executes the whole run. On failure no Outcome is produced and the error
// is a *query.Error naming the failing process and unit where known.
func (o *Orchestrator) Run(ctx context.Context) (Outcome, error) {
	if o.State() != Configured {
		return Outcome{}, errors.Errorf("run already in state %s", o.State())
	}
	cfg := o.Config
	if err := cfg.Validate(); err != nil {
		return Outcome{}, o.fail(err)
	}
	target, err := initializers.GetTarget(cfg.Target, cfg.TargetOptions())
	if err != nil {
		return Outcome{}, o.fail(query.NewError(query.ConfigError, err))
	}
	if cfg.Processes > 1 && o.Spawner == nil {
		return Outcome{}, o.fail(query.NewError(query.SpawnError, errors.New("no spawner for worker processes")))
	}

	fixture, err := load.BuildFixture(ctx, target, load.FixtureConfig{
		Rows:            cfg.Rows,
		XRange:          cfg.XRange,
		BatchSize:       cfg.BatchSize,
		CreateIndex:     cfg.CreateIndex,
		ReportingPeriod: cfg.ReportingPeriod,
	}, o.log)
	if err != nil {
		return Outcome{}, o.fail(query.NewError(query.FixtureError, err))
	}
	o.transition(FixtureBuilt)

	cpus := LogicalCPUs()
	o.log.WithFields(logrus.Fields{
		"units":   cfg.TotalUnits(),
		"queries": cfg.TotalQueries(),
	}).Info(cfg.Describe())

	start := time.Now()
	o.transition(Running)
	var processes []query.ProcessResult
	if cfg.Processes == 1 {
		processes, err = o.runInline(ctx, target, cpus)
	} else {
		processes, err = o.runWorkers(ctx, cpus)
	}
	end := time.Now()
	if err != nil {
		return Outcome{}, o.fail(err)
	}

	stats, err := query.Aggregate(processes, end.Sub(start))
	if err != nil {
		return Outcome{}, o.fail(query.NewError(query.ProtocolError, err))
	}
	if stats.TotalQueries != cfg.TotalQueries() {
		return Outcome{}, o.fail(query.NewError(query.ProtocolError,
			errors.Errorf("collected %d queries, expected %d", stats.TotalQueries, cfg.TotalQueries())))
	}

	outcome := Outcome{
		Config:    cfg,
		Fixture:   fixture,
		Processes: processes,
		Stats:     stats,
		CPUs:      cpus,
		Start:     start,
		End:       end,
	}
	if len(cfg.HDRLatenciesFile) > 0 {
		outcome.Latencies = query.NewLatencyStats()
		for _, p := range processes {
			outcome.Latencies.AddSnapshot(p.Latencies)
		}
	}
	o.transition(Aggregated)

	if o.Report != nil {
		if err := o.Report(outcome); err != nil {
			return outcome, o.fail(errors.Wrap(err, "report"))
		}
	}
	o.transition(Reported)
	return outcome, nil
}

func (o *Orchestrator) runInline(ctx context.Context, target targets.ImplementedTarget, cpus int) ([]query.ProcessResult, error) {
	if o.Config.PinCPUs {
		pin(o.Pinner, PinTarget(0, cpus), o.log)
	}
	res, err := query.NewBenchmarkRunner(o.Config, target, o.log).RunProcess(ctx, 0)
	if err != nil {
		return nil, err
	}
	o.transition(Collecting)
	return []query.ProcessResult{res}, nil
}

type workerOutput struct {
	index int
	msg   WorkerMessage
	err   error
}

// runWorkers spawns one worker per process and collects their messages. It
// returns on the first failure; every worker is killed and reaped before it
// returns either way.
func (o *Orchestrator) runWorkers(ctx context.Context, cpus int) ([]query.ProcessResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	n := int(o.Config.Processes)
	procs := make([]Process, 0, n)
	defer func() { o.shutdown(procs) }()

	outputs := make(chan workerOutput, n)
	for i := 0; i < n; i++ {
		req := WorkerRequest{ProcessIndex: i, CPU: PinTarget(i, cpus), Config: o.Config}
		p, err := o.Spawner.Spawn(ctx, req)
		if err != nil {
			return nil, query.NewError(query.SpawnError, err).WithProcess(i)
		}
		procs = append(procs, p)
		go func(i int, p Process) {
			m, err := readMessage(p.Output(), i)
			outputs <- workerOutput{index: i, msg: m, err: err}
		}(i, p)
	}
	o.transition(Collecting)

	results := make([]query.ProcessResult, n)
	for received := 0; received < n; received++ {
		var out workerOutput
		select {
		case out = <-outputs:
		case <-ctx.Done():
			return nil, query.NewError(query.UnknownError, ctx.Err())
		}
		if out.err != nil {
			return nil, out.err
		}
		if err := out.msg.Err(); err != nil {
			// A worker that failed before reading its request does not know its index.
			if e := query.AsError(err); e.ProcessIndex == query.NoIndex {
				return nil, e.WithProcess(out.index)
			}
			return nil, err
		}
		res := *out.msg.Result
		res.ProcessIndex = out.index
		results[out.index] = res
		o.log.WithFields(logrus.Fields{
			"process": out.index,
			"qps":     fmt.Sprintf("%0.2f", res.ProcessQPS),
		}).Debug("process done")
	}
	return results, nil
}

func (o *Orchestrator) shutdown(procs []Process) {
	for _, p := range procs {
		if err := p.Kill(); err != nil {
			o.log.WithError(err).Debug("killing worker")
		}
	}
	var g errgroup.Group
	for _, p := range procs {
		g.Go(p.Wait)
	}
	if err := g.Wait(); err != nil {
		o.log.WithError(err).Debug("reaping workers")
	}
}
