package query

import (
	"fmt"
	"io"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Latencies are recorded in nanoseconds and printed in milliseconds.
const (
	hdrScaleFactor = 1e6

	latencyLowest  = 1
	latencyHighest = int64(time.Minute)
	latencySigFigs = 3
)

func NewLatencyHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(latencyLowest, latencyHighest, latencySigFigs)
}

func recordLatency(h *hdrhistogram.Histogram, d time.Duration) {
	v := int64(d)
	if v > latencyHighest {
		v = latencyHighest
	}
	// The value is clamped into range, so the error can not happen.
	_ = h.RecordValue(v)
}

// LatencyStats merges the latency histograms of many units and processes.
type LatencyStats struct {
	hist *hdrhistogram.Histogram
}

func NewLatencyStats() *LatencyStats {
	return &LatencyStats{hist: NewLatencyHistogram()}
}

func (s *LatencyStats) Add(h *hdrhistogram.Histogram) {
	if h != nil {
		s.hist.Merge(h)
	}
}

func (s *LatencyStats) AddSnapshot(snap *hdrhistogram.Snapshot) {
	if snap != nil {
		s.hist.Merge(hdrhistogram.Import(snap))
	}
}

func (s *LatencyStats) Snapshot() *hdrhistogram.Snapshot {
	return s.hist.Export()
}

func (s *LatencyStats) Count() int64 { return s.hist.TotalCount() }

func (s *LatencyStats) Median() float64 {
	return float64(s.hist.ValueAtQuantile(50.0)) / hdrScaleFactor
}

func (s *LatencyStats) Mean() float64 {
	return s.hist.Mean() / hdrScaleFactor
}

func (s *LatencyStats) Max() float64 {
	return float64(s.hist.Max()) / hdrScaleFactor
}

func (s *LatencyStats) Min() float64 {
	return float64(s.hist.Min()) / hdrScaleFactor
}

func (s *LatencyStats) StdDev() float64 {
	return s.hist.StdDev() / hdrScaleFactor
}

func (s *LatencyStats) String() string {
	return fmt.Sprintf("min: %8.3fms, med: %8.3fms, mean: %8.3fms, max: %8.3fms, stddev: %8.3fms, count: %d",
		s.Min(), s.Median(), s.Mean(), s.Max(), s.StdDev(), s.Count())
}

// Quantiles are in milliseconds, keyed like q50 or q999.
func (s *LatencyStats) Quantiles() map[string]float64 {
	qs := map[string]float64{"q0": 0, "q50": 0, "q95": 0, "q99": 0, "q999": 0, "q100": 0}
	if s.Count() == 0 {
		return qs
	}
	for key, q := range map[string]float64{
		"q0": 0.0, "q50": 50.0, "q95": 95.0, "q99": 99.0, "q999": 99.9, "q100": 100.0,
	} {
		qs[key] = float64(s.hist.ValueAtQuantile(q)) / hdrScaleFactor
	}
	return qs
}

// WritePercentiles writes the percentile distribution table in milliseconds.
func (s *LatencyStats) WritePercentiles(w io.Writer) error {
	_, err := s.hist.PercentilesPrint(w, 10, hdrScaleFactor)
	return err
}
