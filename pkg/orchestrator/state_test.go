package orchestrator

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timescale/sqlreadbench/pkg/query"
)

func TestTransitions(t *testing.T) {
	path := []RunState{Configured, FixtureBuilt, Running, Collecting, Aggregated, Reported}
	for i := 0; i+1 < len(path); i++ {
		assert.True(t, canTransition(path[i], path[i+1]), "%s -> %s", path[i], path[i+1])
		assert.True(t, canTransition(path[i], Terminated), "%s -> TERMINATED", path[i])
	}
	assert.False(t, canTransition(Configured, Running))
	assert.False(t, canTransition(Reported, Terminated))
	assert.False(t, canTransition(Terminated, Running))
	assert.False(t, canTransition(Aggregated, Collecting))
	assert.Equal(t, "FIXTURE_BUILT", FixtureBuilt.String())
}

func TestFailureMessageRoundTrip(t *testing.T) {
	e := query.NewError(query.QueryError, errors.New("database is locked"))
	e.UnitIndex = 2

	var b bytes.Buffer
	require.NoError(t, writeJSON(&b, failureMessage(3, e.WithProcess(3))))

	m, err := readMessage(&b, 3)
	require.NoError(t, err)
	got := query.AsError(m.Err())
	assert.Equal(t, query.QueryError, got.Kind)
	assert.Equal(t, 3, got.ProcessIndex)
	assert.Equal(t, 2, got.UnitIndex)
	assert.Equal(t, "database is locked", got.Err.Error())
}

func TestResultMessageRoundTrip(t *testing.T) {
	res := query.NewProcessResult(1, []query.UnitResult{{UnitIndex: 0, QueryCount: 5, ElapsedSeconds: 0.5}}, 1e9)

	var b bytes.Buffer
	require.NoError(t, writeJSON(&b, resultMessage(res)))
	m, err := readMessage(&b, 1)
	require.NoError(t, err)
	require.NoError(t, m.Err())
	assert.Equal(t, res, *m.Result)
}

func TestReadMessageRejectsEmptyOutput(t *testing.T) {
	_, err := readMessage(strings.NewReader(""), 0)
	assert.Equal(t, query.ProtocolError, query.KindOf(err))

	_, err = readMessage(strings.NewReader("{}"), 0)
	assert.Equal(t, query.ProtocolError, query.KindOf(err))
}

func TestServeWorkerBadRequest(t *testing.T) {
	var out bytes.Buffer
	err := ServeWorker(context.Background(), strings.NewReader("garbage"), &out, noopPinner{}, nil)
	require.Error(t, err)

	m, rerr := readMessage(&out, query.NoIndex)
	require.NoError(t, rerr)
	assert.Equal(t, query.ProtocolError, query.KindOf(m.Err()))
}

func TestPinTarget(t *testing.T) {
	assert.Equal(t, 0, PinTarget(4, 4))
	assert.Equal(t, 3, PinTarget(7, 4))
	assert.Equal(t, 0, PinTarget(3, 0))
	assert.GreaterOrEqual(t, LogicalCPUs(), 1)
}
