package feedback

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holidai/agentcore/internal/agentstate"
	"github.com/holidai/agentcore/internal/model"
)

type fakeModel struct {
	text string
	err  error
}

func (f *fakeModel) Complete(_ context.Context, _ *model.Request) (*model.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &model.Response{Text: f.text}, nil
}

func TestNewWorkerNode_PassClearsFeedbackAndAdvances(t *testing.T) {
	m := &fakeModel{text: `{"validation_status":"pass"}`}
	fn := NewFlightNode(m, WorkerRoutes{Worker: "flight", Next: "next"})

	state := &agentstate.AgentState{FlightResult: map[string]any{"price": 400}}
	delta, err := fn(context.Background(), state)

	require.NoError(t, err)
	assert.Equal(t, []string{"next"}, delta[agentstate.FieldRoute])
	assert.Equal(t, agentstate.Clear{}, delta[agentstate.FieldFeedbackMessage])
	assert.Equal(t, 0, delta[agentstate.WorkerFeedbackRetryField(agentstate.WorkerFlight)])
}

func TestNewWorkerNode_NeedRetryRoutesBackToWorker(t *testing.T) {
	m := &fakeModel{text: `{"validation_status":"need_retry","feedback_message":"missing price"}`}
	fn := NewFlightNode(m, WorkerRoutes{Worker: "flight", Next: "next"})

	state := &agentstate.AgentState{FlightResult: map[string]any{"tool": "search_flights"}}
	delta, err := fn(context.Background(), state)

	require.NoError(t, err)
	assert.Equal(t, []string{"flight"}, delta[agentstate.FieldRoute])
	assert.Equal(t, "missing price", delta[agentstate.FieldFeedbackMessage])
	assert.Equal(t, agentstate.Clear{}, delta[agentstate.WorkerResultField(agentstate.WorkerFlight)])
}

func TestNewWorkerNode_ValidationErrorIsAlwaysRetriable(t *testing.T) {
	m := &fakeModel{text: `{"validation_status":"pass"}`} // model says pass, but envelope wins first
	fn := NewFlightNode(m, WorkerRoutes{Worker: "flight", Next: "next"})

	state := &agentstate.AgentState{FlightResult: map[string]any{"error": true, "error_code": "VALIDATION_ERROR", "error_message": "bad date"}}
	delta, err := fn(context.Background(), state)

	require.NoError(t, err)
	assert.Equal(t, []string{"flight"}, delta[agentstate.FieldRoute])
	assert.Contains(t, delta[agentstate.FieldFeedbackMessage], "bad date")
}

func TestNewWorkerNode_NoResultPassesThroughWithoutTouchingRetryCount(t *testing.T) {
	m := &fakeModel{text: `{"validation_status":"pass"}`}
	fn := NewFlightNode(m, WorkerRoutes{Worker: "flight", Next: "next"})

	delta, err := fn(context.Background(), &agentstate.AgentState{})

	require.NoError(t, err)
	assert.Equal(t, []string{"next"}, delta[agentstate.FieldRoute])
	_, touched := delta[agentstate.WorkerFeedbackRetryField(agentstate.WorkerFlight)]
	assert.False(t, touched)
}

func TestNewWorkerNode_ForcePassesAtRetryCeiling(t *testing.T) {
	m := &fakeModel{text: `{"validation_status":"need_retry"}`}
	fn := NewFlightNode(m, WorkerRoutes{Worker: "flight", Next: "next"})

	state := &agentstate.AgentState{
		FlightResult:            map[string]any{"tool": "search_flights"},
		FlightFeedbackRetryCount: agentstate.MaxFeedbackRetries,
	}
	delta, err := fn(context.Background(), state)

	require.NoError(t, err)
	assert.Equal(t, []string{"next"}, delta[agentstate.FieldRoute], "must force-pass once the retry ceiling is hit")
}

func TestNewWorkerNode_ModelErrorAcceptsResultRatherThanBlocking(t *testing.T) {
	m := &fakeModel{err: assertErr("provider down")}
	fn := NewFlightNode(m, WorkerRoutes{Worker: "flight", Next: "next"})

	state := &agentstate.AgentState{FlightResult: map[string]any{"tool": "search_flights"}}
	delta, err := fn(context.Background(), state)

	require.NoError(t, err)
	assert.Equal(t, []string{"next"}, delta[agentstate.FieldRoute])
}

type assertErrType string

func (e assertErrType) Error() string { return string(e) }

func assertErr(msg string) error { return assertErrType(msg) }
