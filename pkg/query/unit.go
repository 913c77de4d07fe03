package query

import (
	"context"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/timescale/sqlreadbench/pkg/targets"
	"github.com/timescale/sqlreadbench/pkg/workload"
)

// Unit is one execution unit: a private connection and a fixed list of keys.
type Unit struct {
	Index  int
	Config BenchmarkConfig
	Target targets.ImplementedTarget

	// RecordLatencies times every lookup individually.
	RecordLatencies bool

	open openFunc
	log  *logrus.Entry
}

// lookuper is what a unit needs from its connection.
type lookuper interface {
	Lookup(key int64) (int, error)
	Close() error
}

type openFunc func(ctx context.Context, t targets.ImplementedTarget, unitIndex int) (lookuper, error)

func openTargetReader(ctx context.Context, t targets.ImplementedTarget, _ int) (lookuper, error) {
	r, err := targets.OpenReader(ctx, t)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// unitOutcome is sent back to the process once a unit is done.
type unitOutcome struct {
	result    UnitResult
	latencies *hdrhistogram.Histogram
	err       error
}

// Run generates the keys, opens the connection and then times only the lookup
// loop. The connection is released before Run returns.
func (u *Unit) Run(ctx context.Context) (UnitResult, *hdrhistogram.Histogram, error) {
	fail := func(kind ErrorKind, err error) (UnitResult, *hdrhistogram.Histogram, error) {
		e := NewError(kind, err)
		e.UnitIndex = u.Index
		return UnitResult{}, nil, e
	}

	keys, err := workload.Keys(int(u.Config.QueriesPerThread), u.Config.XRange, u.Config.Distribution)
	if err != nil {
		return fail(ConfigError, err)
	}

	if err := ctx.Err(); err != nil {
		return fail(ConnectionError, err)
	}
	open := u.open
	if open == nil {
		open = openTargetReader
	}
	reader, err := open(ctx, u.Target, u.Index)
	if err != nil {
		return fail(ConnectionError, err)
	}
	defer func() {
		if err := reader.Close(); err != nil && u.log != nil {
			u.log.WithError(err).Debug("closing reader")
		}
	}()

	var hist *hdrhistogram.Histogram
	if u.RecordLatencies {
		hist = NewLatencyHistogram()
	}
	limiter := newRateLimiter(u.Config.MaxQPS)

	var elapsed time.Duration
	if hist == nil && limiter == nil {
		elapsed, err = lookupAll(reader, keys)
	} else {
		elapsed, err = lookupInstrumented(reader, keys, limiter, hist)
	}
	if err != nil {
		return fail(QueryError, err)
	}

	return UnitResult{
		UnitIndex:      u.Index,
		QueryCount:     uint64(len(keys)),
		ElapsedSeconds: elapsed.Seconds(),
	}, hist, nil
}

func lookupAll(r lookuper, keys []int64) (time.Duration, error) {
	start := time.Now()
	for _, k := range keys {
		if _, err := r.Lookup(k); err != nil {
			return 0, errors.Wrapf(err, "lookup x = %d", k)
		}
	}
	return time.Since(start), nil
}

// lookupInstrumented waits on the limiter before each lookup. The wait is part
// of the unit's elapsed time but not of the recorded latency.
func lookupInstrumented(r lookuper, keys []int64, limiter *rate.Limiter, hist *hdrhistogram.Histogram) (time.Duration, error) {
	start := time.Now()
	for _, k := range keys {
		if limiter != nil {
			time.Sleep(limiter.Reserve().Delay())
		}
		qStart := time.Now()
		if _, err := r.Lookup(k); err != nil {
			return 0, errors.Wrapf(err, "lookup x = %d", k)
		}
		if hist != nil {
			recordLatency(hist, time.Since(qStart))
		}
	}
	return time.Since(start), nil
}

// newRateLimiter returns nil when limitQPS is 0.
func newRateLimiter(limitQPS uint64) *rate.Limiter {
	if limitQPS == 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(limitQPS), 1)
}
