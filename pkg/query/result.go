package query

import (
	"math"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// UnitResult is what one execution unit reports after its timed loop.
type UnitResult struct {
	UnitIndex      int     `json:"unitIndex" yaml:"unitIndex"`
	QueryCount     uint64  `json:"queryCount" yaml:"queryCount"`
	ElapsedSeconds float64 `json:"elapsedSeconds" yaml:"elapsedSeconds"`
}

// QPS is QueryCount / ElapsedSeconds, +Inf when no time was measured.
func (u UnitResult) QPS() float64 {
	return perSecond(u.QueryCount, u.ElapsedSeconds)
}

// ProcessResult holds every unit of one process, ordered by unit index.
type ProcessResult struct {
	ProcessIndex       int          `json:"processIndex" yaml:"processIndex"`
	Units              []UnitResult `json:"units" yaml:"units"`
	ProcessWallSeconds float64      `json:"processWallSeconds" yaml:"processWallSeconds"`
	ProcessQPS         float64      `json:"processQps" yaml:"processQps"`

	// Latencies is only set when per-query latencies are recorded.
	Latencies *hdrhistogram.Snapshot `json:"latencies,omitempty" yaml:"-"`
}

func NewProcessResult(processIndex int, units []UnitResult, wall time.Duration) ProcessResult {
	p := ProcessResult{
		ProcessIndex:       processIndex,
		Units:              units,
		ProcessWallSeconds: wall.Seconds(),
	}
	p.ProcessQPS = perSecond(p.TotalQueries(), p.ProcessWallSeconds)
	return p
}

func (p ProcessResult) TotalQueries() uint64 {
	var total uint64
	for _, u := range p.Units {
		total += u.QueryCount
	}
	return total
}

func perSecond(count uint64, seconds float64) float64 {
	if seconds <= 0 {
		return math.Inf(1)
	}
	return float64(count) / seconds
}
