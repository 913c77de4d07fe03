//go:build linux

package orchestrator

import (
	"os"
	"strconv"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

type linuxPinner struct{}

// NewPinner returns the pinner for this platform.
func NewPinner() Pinner { return linuxPinner{} }

// Pin applies the mask to every thread of the process; the Go runtime may
// already be running on several of them.
func (linuxPinner) Pin(cpu int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)

	tasks, err := os.ReadDir("/proc/self/task")
	if err != nil {
		return unix.SchedSetaffinity(0, &set)
	}
	for _, t := range tasks {
		tid, err := strconv.Atoi(t.Name())
		if err != nil {
			continue
		}
		if err := unix.SchedSetaffinity(tid, &set); err != nil {
			return errors.Wrapf(err, "pin thread %d to cpu %d", tid, cpu)
		}
	}
	return nil
}
