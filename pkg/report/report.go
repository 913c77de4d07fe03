// Package report renders the outcome of a run for people and for machines.
package report

import (
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/host"

	"github.com/timescale/sqlreadbench/pkg/orchestrator"
)

// Host describes the machine the run happened on.
type Host struct {
	Hostname    string `json:"hostname" yaml:"hostname"`
	Platform    string `json:"platform" yaml:"platform"`
	CPUModel    string `json:"cpuModel" yaml:"cpuModel"`
	LogicalCPUs int    `json:"logicalCpus" yaml:"logicalCpus"`
}

// HostInfo inspects the current machine. Fields that can not be read are left
// empty.
func HostInfo() Host {
	h := Host{LogicalCPUs: runtime.NumCPU()}
	if info, err := host.Info(); err == nil {
		h.Hostname = info.Hostname
		h.Platform = strings.TrimSpace(info.Platform + " " + info.PlatformVersion)
	}
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		h.LogicalCPUs = n
	}
	if infos, err := cpu.Info(); err == nil && len(infos) > 0 {
		h.CPUModel = strings.TrimSpace(infos[0].ModelName)
	}
	return h
}

func (h Host) String() string {
	parts := []string{}
	if h.Hostname != "" {
		parts = append(parts, h.Hostname)
	}
	if h.Platform != "" {
		parts = append(parts, h.Platform)
	}
	parts = append(parts, fmt.Sprintf("%d logical CPUs", h.LogicalCPUs))
	if h.CPUModel != "" {
		parts = append(parts, h.CPUModel)
	}
	return strings.Join(parts, ", ")
}

// errWriter keeps the first write error so the report reads top to bottom.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...interface{}) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

// Write renders the report. It depends only on its arguments.
func Write(w io.Writer, h Host, out orchestrator.Outcome) error {
	ew := &errWriter{w: w}
	writeHeader(ew, h, out)
	writeProcesses(ew, out)
	writeUnitResults(ew, out)
	writeUnits(ew, out)
	if out.Latencies != nil {
		ew.printf("\n--- Latencies (all queries) ---\n")
		ew.printf("%s\n", out.Latencies.String())
	}
	writeGlobal(ew, out)
	return ew.err
}

func writeHeader(ew *errWriter, h Host, out orchestrator.Outcome) {
	c := out.Config
	ew.printf("Target: %s\n", c.Target)
	ew.printf("Host: %s\n", h)
	ew.printf("Fixture: %d rows (x in [0,%d)) loaded in %0.3fsec\n", out.Fixture.Rows, c.XRange, out.Fixture.Took.Seconds())
	ew.printf("Running benchmark with %d processes x %d threads\n", c.Processes, c.ThreadsPerProc)
	ew.printf("Total threads: %d\n", c.TotalUnits())
	ew.printf("Queries per thread: %d\n", c.QueriesPerThread)
	ew.printf("Total queries: %d\n", c.TotalQueries())
	if c.PinCPUs {
		cpus := make([]string, 0, c.Processes)
		for i := 0; i < int(c.Processes); i++ {
			cpus = append(cpus, fmt.Sprint(orchestrator.PinTarget(i, out.CPUs)))
		}
		ew.printf("Attempting to pin processes to CPUs: [%s]\n", strings.Join(cpus, ", "))
	}
}

func writeProcesses(ew *errWriter, out orchestrator.Outcome) {
	ew.printf("\n--- Per-process stats ---\n")
	for _, p := range out.Processes {
		ew.printf("Process %d:\n", p.ProcessIndex)
		ew.printf("  Wall time: %0.4f s\n", p.ProcessWallSeconds)
		ew.printf("  Queries:   %d\n", p.TotalQueries())
		ew.printf("  QPS:       %0.2f\n", p.ProcessQPS)
	}
}

func writeUnitResults(ew *errWriter, out orchestrator.Outcome) {
	ew.printf("\n--- Per-thread stats ---\n")
	for _, p := range out.Processes {
		for _, u := range p.Units {
			ew.printf("Process %d thread %d:\n", p.ProcessIndex, u.UnitIndex)
			ew.printf("  Wall time: %0.4f s\n", u.ElapsedSeconds)
			ew.printf("  Queries:   %d\n", u.QueryCount)
			ew.printf("  QPS:       %0.2f\n", u.QPS())
		}
	}
}

func writeUnits(ew *errWriter, out orchestrator.Outcome) {
	s := out.Stats.UnitQPS
	ew.printf("\n--- Per-thread QPS (over all processes) ---\n")
	ew.printf("Threads total: %d\n", out.Stats.Units)
	ew.printf("Min QPS:    %0.2f\n", s.Min)
	ew.printf("Median QPS: %0.2f\n", s.Median)
	ew.printf("Mean QPS:   %0.2f\n", s.Mean)
	ew.printf("Max QPS:    %0.2f\n", s.Max)
}

func writeGlobal(ew *errWriter, out orchestrator.Outcome) {
	g := out.Stats
	ew.printf("\n--- Global stats ---\n")
	ew.printf("Total queries:        %d\n", g.TotalQueries)
	ew.printf("Global wall time:     %0.4f s (includes process startup/teardown)\n", g.GlobalWallSeconds)
	ew.printf("Global effective QPS: %0.2f\n", g.GlobalQPS)
}
