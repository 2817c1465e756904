package worker

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holidai/agentcore/internal/agentstate"
	"github.com/holidai/agentcore/internal/model"
	"github.com/holidai/agentcore/internal/toolclient"
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

type fakeTools struct {
	results map[string]string // tool -> raw JSON result
	err     error
	calls   []string
}

func (f *fakeTools) CallTool(_ context.Context, _ string, req toolclient.CallRequest) (toolclient.CallResponse, error) {
	f.calls = append(f.calls, req.Tool)
	if f.err != nil {
		return toolclient.CallResponse{}, f.err
	}
	return toolclient.CallResponse{Result: json.RawMessage(f.results[req.Tool])}, nil
}

func (f *fakeTools) ListTools(_ context.Context, _ string) ([]string, error) { return nil, nil }

var testSpec = Spec{
	Name:         agentstate.WorkerFlight,
	SystemPrompt: "you search flights",
	AllowedTools: []string{"search_flights"},
}

func TestNewNode_SingleCallSuccess(t *testing.T) {
	m := &fakeModel{text: `{"calls":[{"tool":"search_flights","parameters":{"from":"JFK"}}]}`}
	tools := &fakeTools{results: map[string]string{"search_flights": `{"price":400}`}}

	fn := NewNode(testSpec, Deps{Model: m, Tools: tools})
	delta, err := fn(context.Background(), &agentstate.AgentState{UserMessage: "find me a flight"})

	require.NoError(t, err)
	result, ok := delta[agentstate.WorkerResultField(agentstate.WorkerFlight)].(*Result)
	require.True(t, ok)
	assert.False(t, result.Error)
	assert.Equal(t, "search_flights", result.Tool)
	assert.Equal(t, []string{"search_flights"}, tools.calls)
}

func TestNewNode_MissingParametersBecomesValidationError(t *testing.T) {
	m := &fakeModel{text: `{"calls":[],"missing_parameters":"need a destination"}`}
	tools := &fakeTools{}

	fn := NewNode(testSpec, Deps{Model: m, Tools: tools})
	delta, err := fn(context.Background(), &agentstate.AgentState{UserMessage: "find me a flight"})

	require.NoError(t, err)
	result := delta[agentstate.WorkerResultField(agentstate.WorkerFlight)].(*Result)
	assert.True(t, result.Error)
	assert.Equal(t, agentstate.ErrCodeValidation, result.ErrorCode)
	assert.Equal(t, "need a destination", result.ErrorMessage)
	assert.Empty(t, tools.calls, "no tool should be invoked when the model reports missing parameters")
}

func TestNewNode_DedupesRepeatedCallAgainstExistingSlot(t *testing.T) {
	m := &fakeModel{text: `{"calls":[{"tool":"search_flights","parameters":{"from":"JFK"}}]}`}
	tools := &fakeTools{results: map[string]string{"search_flights": `{"price":400}`}}

	existing := &Result{Tool: "search_flights", Parameters: map[string]any{"from": "JFK"}, Data: map[string]any{"price": 400.0}}
	state := &agentstate.AgentState{UserMessage: "find me a flight", FlightResult: existing}

	fn := NewNode(testSpec, Deps{Model: m, Tools: tools})
	_, err := fn(context.Background(), state)

	require.NoError(t, err)
	assert.Empty(t, tools.calls, "identical tool+args call should be served from the existing result, not re-invoked")
}

func TestNewNode_SingleToUpstreamErrorOnModelFailure(t *testing.T) {
	m := &fakeModel{err: assertErr("boom")}
	fn := NewNode(testSpec, Deps{Model: m, Tools: &fakeTools{}})

	delta, err := fn(context.Background(), &agentstate.AgentState{UserMessage: "x"})

	require.NoError(t, err)
	result := delta[agentstate.WorkerResultField(agentstate.WorkerFlight)].(*Result)
	assert.True(t, result.Error)
	assert.Equal(t, agentstate.ErrCodeUpstream, result.ErrorCode)
}

func TestNewNode_MultiCallKeepsAllOutcomes(t *testing.T) {
	spec := Spec{Name: agentstate.WorkerUtilities, SystemPrompt: "utilities", AllowedTools: []string{"holidays", "esim"}, MultiCall: true}
	m := &fakeModel{text: `{"calls":[{"tool":"holidays","parameters":{}},{"tool":"esim","parameters":{}}]}`}
	tools := &fakeTools{results: map[string]string{"holidays": `{"days":["2026-01-01"]}`, "esim": `{"plan":"5GB"}`}}

	fn := NewNode(spec, Deps{Model: m, Tools: tools})
	delta, err := fn(context.Background(), &agentstate.AgentState{UserMessage: "holidays and esim"})

	require.NoError(t, err)
	result := delta[agentstate.WorkerResultField(agentstate.WorkerUtilities)].(*Result)
	assert.Len(t, result.Calls, 2)
	assert.ElementsMatch(t, []string{"holidays", "esim"}, tools.calls)
}

func TestArgsKey_OrderIndependent(t *testing.T) {
	a := argsKey("search_flights", map[string]any{"from": "JFK", "to": "LAX"})
	b := argsKey("search_flights", map[string]any{"to": "LAX", "from": "JFK"})
	assert.Equal(t, a, b)
}

type assertErrType string

func (e assertErrType) Error() string { return string(e) }

func assertErr(msg string) error { return assertErrType(msg) }

func TestRewriteFlightPlaceholders_ReplacesInOrder(t *testing.T) {
	result := &Result{Data: map[string]any{
		"outbound": []any{
			map[string]any{"airline": "AA", "booking_url": "https://book/aa"},
			map[string]any{"airline": "UA", "google_flights_url": "https://flights/ua"},
		},
	}}

	out := rewriteFlightPlaceholders("I found two options: F1 and F2.", result)

	assert.Equal(t, "I found two options: [Book flight 1](https://book/aa) and [Book flight 2](https://flights/ua).", out)
}

func TestRewriteFlightPlaceholders_OutOfRangeLeftAlone(t *testing.T) {
	result := &Result{Data: map[string]any{
		"outbound": []any{map[string]any{"booking_url": "https://book/aa"}},
	}}

	out := rewriteFlightPlaceholders("See F1 and F2.", result)

	assert.Equal(t, "See [Book flight 1](https://book/aa) and F2.", out)
}

func TestRewriteFlightPlaceholders_NoDataLeavesTextUnchanged(t *testing.T) {
	out := rewriteFlightPlaceholders("See F1.", nil)
	assert.Equal(t, "See F1.", out)

	errored := &Result{Error: true, ErrorCode: agentstate.ErrCodeUpstream}
	out = rewriteFlightPlaceholders("See F1.", errored)
	assert.Equal(t, "See F1.", out)
}
