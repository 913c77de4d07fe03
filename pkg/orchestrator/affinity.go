package orchestrator

import (
	"runtime"

	"github.com/shirou/gopsutil/cpu"
)

// Pinner restricts the calling process to one CPU. Pinning is best effort:
// callers log a failure and carry on.
type Pinner interface {
	Pin(cpu int) error
}

type noopPinner struct{}

func (noopPinner) Pin(int) error { return nil }

// LogicalCPUs falls back to the runtime's view when the host can not be
// inspected.
func LogicalCPUs() int {
	n, err := cpu.Counts(true)
	if err != nil || n < 1 {
		return runtime.NumCPU()
	}
	return n
}

// PinTarget wraps process indexes around the available CPUs.
func PinTarget(processIndex, cpus int) int {
	if cpus < 1 {
		return 0
	}
	return processIndex % cpus
}
