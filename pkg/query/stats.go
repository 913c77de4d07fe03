package query

import (
	"sort"
	"time"

	"github.com/pkg/errors"
)

// Summary describes a set of per-unit throughputs.
type Summary struct {
	Min    float64 `json:"min" yaml:"min"`
	Median float64 `json:"median" yaml:"median"`
	Mean   float64 `json:"mean" yaml:"mean"`
	Max    float64 `json:"max" yaml:"max"`
}

// GlobalStats is the outcome of a complete, successful run.
type GlobalStats struct {
	Units             int     `json:"units" yaml:"units"`
	TotalQueries      uint64  `json:"totalQueries" yaml:"totalQueries"`
	GlobalWallSeconds float64 `json:"globalWallSeconds" yaml:"globalWallSeconds"`
	GlobalQPS         float64 `json:"globalQps" yaml:"globalQps"`
	UnitQPS           Summary `json:"unitQps" yaml:"unitQps"`
}

var errNoUnits = errors.New("no unit results to aggregate")

// Summarize computes min, median, mean and max of values. The median of an
// even count is the mean of the two middle values. values is not modified.
func Summarize(values []float64) (Summary, error) {
	n := len(values)
	if n == 0 {
		return Summary{}, errNoUnits
	}
	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	s := Summary{
		Min:  sorted[0],
		Max:  sorted[n-1],
		Mean: sum / float64(n),
	}
	if n%2 == 1 {
		s.Median = sorted[n/2]
	} else {
		s.Median = (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return s, nil
}

// UnitQPS flattens the throughput of every unit, processes in the order given.
func UnitQPS(processes []ProcessResult) []float64 {
	var qps []float64
	for _, p := range processes {
		for _, u := range p.Units {
			qps = append(qps, u.QPS())
		}
	}
	return qps
}

// Aggregate combines the results of every process with the wall time measured
// around the whole run.
func Aggregate(processes []ProcessResult, globalWall time.Duration) (GlobalStats, error) {
	qps := UnitQPS(processes)
	summary, err := Summarize(qps)
	if err != nil {
		return GlobalStats{}, err
	}

	var total uint64
	for _, p := range processes {
		total += p.TotalQueries()
	}
	return GlobalStats{
		Units:             len(qps),
		TotalQueries:      total,
		GlobalWallSeconds: globalWall.Seconds(),
		GlobalQPS:         perSecond(total, globalWall.Seconds()),
		UnitQPS:           summary,
	}, nil
}
