package orchestrator

import "fmt"

type RunState int

const (
	Configured RunState = iota
	FixtureBuilt
	Running
	Collecting
	Aggregated
	Reported
	Terminated
)

var stateNames = [...]string{
	Configured:   "CONFIGURED",
	FixtureBuilt: "FIXTURE_BUILT",
	Running:      "RUNNING",
	Collecting:   "COLLECTING",
	Aggregated:   "AGGREGATED",
	Reported:     "REPORTED",
	Terminated:   "TERMINATED",
}

func (s RunState) String() string {
	if int(s) >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("RunState(%d)", int(s))
}

// canTransition allows the happy path one step at a time. Terminated is
// reachable from every state before Reported.
func canTransition(from, to RunState) bool {
	if to == Terminated {
		return from != Reported && from != Terminated
	}
	return to == from+1 && to <= Reported
}
