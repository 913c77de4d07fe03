package report

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/timescale/sqlreadbench/pkg/orchestrator"
	"github.com/timescale/sqlreadbench/pkg/query"
)

const BenchmarkTestResultVersion = "0.2"

// TestResult is the machine readable summary of a run.
type TestResult struct {
	ResultFormatVersion string `json:"ResultFormatVersion" yaml:"ResultFormatVersion"`

	RunnerConfig query.BenchmarkConfig `json:"RunnerConfig" yaml:"RunnerConfig"`
	Host         Host                  `json:"Host" yaml:"Host"`

	StartTime      int64 `json:"StartTime" yaml:"StartTime"`
	EndTime        int64 `json:"EndTime" yaml:"EndTime"`
	DurationMillis int64 `json:"DurationMillis" yaml:"DurationMillis"`

	Totals map[string]interface{} `json:"Totals" yaml:"Totals"`
}

func NewTestResult(h Host, out orchestrator.Outcome) TestResult {
	totals := map[string]interface{}{
		"totalQueries":      out.Stats.TotalQueries,
		"globalWallSeconds": out.Stats.GlobalWallSeconds,
		"globalQps":         out.Stats.GlobalQPS,
		"unitQps":           out.Stats.UnitQPS,
		"processes":         out.Processes,
		"fixtureRowRate":    out.Fixture.RowRate(),
	}
	if out.Latencies != nil {
		totals["overallQuantiles"] = out.Latencies.Quantiles()
	}
	return TestResult{
		ResultFormatVersion: BenchmarkTestResultVersion,
		RunnerConfig:        out.Config,
		Host:                h,
		StartTime:           out.Start.UTC().UnixMilli(),
		EndTime:             out.End.UTC().UnixMilli(),
		DurationMillis:      out.End.Sub(out.Start).Milliseconds(),
		Totals:              totals,
	}
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// SaveResults writes the summary as YAML when path ends in .yaml or .yml and
// as indented JSON otherwise.
func SaveResults(path string, h Host, out orchestrator.Outcome) error {
	testResult := NewTestResult(h, out)
	var (
		file []byte
		err  error
	)
	if isYAML(path) {
		file, err = yaml.Marshal(testResult)
	} else {
		file, err = json.MarshalIndent(testResult, "", " ")
	}
	if err != nil {
		return errors.Wrap(err, "encode results")
	}
	return errors.Wrapf(os.WriteFile(path, file, 0644), "write results to %s", path)
}

// WriteLatencies writes the HDR percentile distribution of every recorded
// query to path.
func WriteLatencies(path string, stats *query.LatencyStats) error {
	if stats == nil {
		return errors.New("no latencies were recorded")
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create latencies file")
	}
	bw := bufio.NewWriter(f)
	if err := stats.WritePercentiles(bw); err != nil {
		f.Close()
		return errors.Wrap(err, "write latencies")
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return errors.Wrap(err, "write latencies")
	}
	return f.Close()
}
