package orchestrator

import (
	"encoding/json"
	"io"

	"github.com/pkg/errors"

	"github.com/timescale/sqlreadbench/pkg/query"
)

// WorkerRequest is everything a worker process needs, written once on its
// stdin.
type WorkerRequest struct {
	ProcessIndex int                   `json:"processIndex"`
	CPU          int                   `json:"cpu"`
	Config       query.BenchmarkConfig `json:"config"`
}

// WorkerMessage is the single message a worker writes on its stdout. Exactly
// one of Result and Error is set.
type WorkerMessage struct {
	Result *query.ProcessResult `json:"result,omitempty"`

	Error        string `json:"error,omitempty"`
	Kind         string `json:"kind,omitempty"`
	ProcessIndex int    `json:"processIndex"`
	UnitIndex    int    `json:"unitIndex"`
}

func resultMessage(res query.ProcessResult) WorkerMessage {
	return WorkerMessage{Result: &res, ProcessIndex: res.ProcessIndex, UnitIndex: query.NoIndex}
}

func failureMessage(processIndex int, err error) WorkerMessage {
	e := query.AsError(err)
	m := WorkerMessage{
		Kind:         e.Kind.String(),
		ProcessIndex: processIndex,
		UnitIndex:    e.UnitIndex,
	}
	if e.Err != nil {
		m.Error = e.Err.Error()
	} else {
		m.Error = e.Error()
	}
	return m
}

// Err rebuilds the typed error carried by a failure message.
func (m WorkerMessage) Err() error {
	if m.Result != nil && m.Error == "" {
		return nil
	}
	return &query.Error{
		Kind:         query.ParseErrorKind(m.Kind),
		ProcessIndex: m.ProcessIndex,
		UnitIndex:    m.UnitIndex,
		Err:          errors.New(m.Error),
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	return json.NewEncoder(w).Encode(v)
}

func ReadRequest(r io.Reader) (WorkerRequest, error) {
	var req WorkerRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return req, query.NewError(query.ProtocolError, errors.Wrap(err, "decode worker request"))
	}
	return req, nil
}

// readMessage decodes the one message a worker sends. A worker that exits
// without a well formed message is reported as a ProtocolError.
func readMessage(r io.Reader, processIndex int) (WorkerMessage, error) {
	var m WorkerMessage
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		e := query.NewError(query.ProtocolError, errors.Wrap(err, "read worker message")).WithProcess(processIndex)
		return m, e
	}
	if m.Result == nil && m.Error == "" {
		return m, query.NewError(query.ProtocolError, errors.New("empty worker message")).WithProcess(processIndex)
	}
	return m, nil
}
