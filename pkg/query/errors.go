package query

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrorKind classifies a failure by the stage it happened in.
type ErrorKind int

const (
	UnknownError ErrorKind = iota
	ConfigError
	FixtureError
	ConnectionError
	QueryError
	SpawnError
	AffinityError
	ProtocolError
)

var errorKindNames = map[ErrorKind]string{
	UnknownError:    "unknown",
	ConfigError:     "config",
	FixtureError:    "fixture",
	ConnectionError: "connection",
	QueryError:      "query",
	SpawnError:      "spawn",
	AffinityError:   "affinity",
	ProtocolError:   "protocol",
}

func (k ErrorKind) String() string {
	if name, ok := errorKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// ParseErrorKind is the inverse of String. Unrecognised names map to
// UnknownError.
func ParseErrorKind(s string) ErrorKind {
	for k, name := range errorKindNames {
		if strings.EqualFold(s, name) {
			return k
		}
	}
	return UnknownError
}

// NoIndex marks an Error that is not tied to a process or execution unit.
const NoIndex = -1

// Error carries the kind of a failure and where it happened. ProcessIndex and
// UnitIndex are NoIndex when unknown.
type Error struct {
	Kind         ErrorKind
	ProcessIndex int
	UnitIndex    int
	Err          error
}

func NewError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, ProcessIndex: NoIndex, UnitIndex: NoIndex, Err: err}
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.ProcessIndex != NoIndex {
		fmt.Fprintf(&b, "process %d: ", e.ProcessIndex)
	}
	if e.UnitIndex != NoIndex {
		fmt.Fprintf(&b, "unit %d: ", e.UnitIndex)
	}
	fmt.Fprintf(&b, "%s error", e.Kind)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Cause lets errors.Cause walk through an Error.
func (e *Error) Cause() error { return e.Err }

// WithProcess returns a copy attributed to the given process.
func (e *Error) WithProcess(processIndex int) *Error {
	c := *e
	c.ProcessIndex = processIndex
	return &c
}

// AsError finds the first *Error in err's chain. Anything else is wrapped as
// an UnknownError.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return NewError(UnknownError, err)
}

// KindOf reports the kind of err, UnknownError if it carries none.
func KindOf(err error) ErrorKind {
	if err == nil {
		return UnknownError
	}
	return AsError(err).Kind
}
