package query

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/timescale/sqlreadbench/pkg/targets"
)

// BenchmarkRunner runs the execution units of one process concurrently.
type BenchmarkRunner struct {
	BenchmarkConfig
	target targets.ImplementedTarget
	open   openFunc
	log    *logrus.Entry
}

func NewBenchmarkRunner(config BenchmarkConfig, target targets.ImplementedTarget, log *logrus.Entry) *BenchmarkRunner {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &BenchmarkRunner{BenchmarkConfig: config, target: target, log: log}
}

func (b *BenchmarkRunner) recordLatencies() bool {
	return len(b.HDRLatenciesFile) > 0
}

// RunProcess starts ThreadsPerProc units and waits for all of them. Process
// wall time runs from just before the first unit starts until the last result
// arrives. The first unit failure is returned immediately, attributed to
// processIndex, and the remaining units are abandoned.
func (b *BenchmarkRunner) RunProcess(ctx context.Context, processIndex int) (ProcessResult, error) {
	if b.ThreadsPerProc == 0 {
		return ProcessResult{}, NewError(ConfigError, errors.New("must have at least one execution unit")).WithProcess(processIndex)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	n := int(b.ThreadsPerProc)
	ch := make(chan unitOutcome, n)
	log := b.log.WithField("process", processIndex)

	wallStart := time.Now()
	for i := 0; i < n; i++ {
		u := &Unit{
			Index:           i,
			Config:          b.BenchmarkConfig,
			Target:          b.target,
			RecordLatencies: b.recordLatencies(),
			open:            b.open,
			log:             log.WithField("unit", i),
		}
		go func() {
			res, hist, err := u.Run(ctx)
			ch <- unitOutcome{result: res, latencies: hist, err: err}
		}()
	}

	units := make([]UnitResult, n)
	var latencies *LatencyStats
	if b.recordLatencies() {
		latencies = NewLatencyStats()
	}
	for received := 0; received < n; received++ {
		var out unitOutcome
		select {
		case out = <-ch:
		case <-ctx.Done():
			return ProcessResult{}, NewError(UnknownError, ctx.Err()).WithProcess(processIndex)
		}
		if out.err != nil {
			return ProcessResult{}, AsError(out.err).WithProcess(processIndex)
		}
		units[out.result.UnitIndex] = out.result
		if latencies != nil {
			latencies.Add(out.latencies)
		}
		log.WithFields(logrus.Fields{
			"unit": out.result.UnitIndex,
			"qps":  out.result.QPS(),
		}).Debug("unit done")
	}
	wall := time.Since(wallStart)

	res := NewProcessResult(processIndex, units, wall)
	if latencies != nil {
		res.Latencies = latencies.Snapshot()
	}
	return res, nil
}
