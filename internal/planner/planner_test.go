package planner

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

func TestNewNode_EmptyPlanRoutesToConversational(t *testing.T) {
	m := &fakeModel{text: `{"execution_plan":[]}`}
	fn := NewNode(Deps{Model: m}, Routes{Feedback: "feedback", Conversational: "conversational"})

	delta, err := fn(context.Background(), &agentstate.AgentState{UserMessage: "hi there"})

	require.NoError(t, err)
	assert.Equal(t, []string{"conversational"}, delta[agentstate.FieldRoute])
	assert.Equal(t, true, delta[agentstate.FieldReadyForResponse])
}

func TestNewNode_NonEmptyPlanRoutesToFeedback(t *testing.T) {
	m := &fakeModel{text: `{"execution_plan":[{"step_number":1,"agents":["flight","hotel"]}]}`}
	fn := NewNode(Deps{Model: m}, Routes{Feedback: "feedback", Conversational: "conversational"})

	delta, err := fn(context.Background(), &agentstate.AgentState{UserMessage: "book me a flight and hotel to Rome"})

	require.NoError(t, err)
	assert.Equal(t, []string{"feedback"}, delta[agentstate.FieldRoute])
	assert.Equal(t, true, delta[agentstate.FieldNeedsFlight])
	assert.Equal(t, true, delta[agentstate.FieldNeedsHotel])
	assert.Equal(t, false, delta[agentstate.FieldNeedsVisa])
}

func TestNewNode_StripsTripAdvisorWithoutKeywordMatch(t *testing.T) {
	m := &fakeModel{text: `{"execution_plan":[{"step_number":1,"agents":["tripadvisor","flight"]}]}`}
	fn := NewNode(Deps{Model: m}, Routes{Feedback: "feedback", Conversational: "conversational"})

	delta, err := fn(context.Background(), &agentstate.AgentState{UserMessage: "book me a flight to Rome"})

	require.NoError(t, err)
	plan := delta[agentstate.FieldExecutionPlan].([]agentstate.Step)
	require.Len(t, plan, 1)
	assert.Equal(t, []string{"flight"}, plan[0].Agents)
	assert.Equal(t, false, delta[agentstate.FieldNeedsTripAdvisor])
}

func TestNewNode_KeepsTripAdvisorWithKeywordMatch(t *testing.T) {
	m := &fakeModel{text: `{"execution_plan":[{"step_number":1,"agents":["tripadvisor"]}]}`}
	fn := NewNode(Deps{Model: m}, Routes{Feedback: "feedback", Conversational: "conversational"})

	delta, err := fn(context.Background(), &agentstate.AgentState{UserMessage: "find me a good restaurant in Rome"})

	require.NoError(t, err)
	plan := delta[agentstate.FieldExecutionPlan].([]agentstate.Step)
	require.Len(t, plan, 1)
	assert.Equal(t, []string{"tripadvisor"}, plan[0].Agents)
}

func TestNewNode_ClearsStaleResultForAgentDroppedFromPlan(t *testing.T) {
	m := &fakeModel{text: `{"execution_plan":[{"step_number":1,"agents":["flight"]}]}`}
	fn := NewNode(Deps{Model: m}, Routes{Feedback: "feedback", Conversational: "conversational"})

	state := &agentstate.AgentState{UserMessage: "just the flight now", HotelResult: map[string]any{"stale": true}}
	delta, err := fn(context.Background(), state)

	require.NoError(t, err)
	assert.Equal(t, agentstate.Clear{}, delta[agentstate.FieldHotelResult])
	_, flightCleared := delta[agentstate.FieldFlightResult]
	assert.False(t, flightCleared, "the agent kept in the plan must not have its result slot cleared")
}

func TestNewNode_ModelErrorFallsBackToEmptyPlan(t *testing.T) {
	m := &fakeModel{err: assertErr("provider down")}
	fn := NewNode(Deps{Model: m}, Routes{Feedback: "feedback", Conversational: "conversational"})

	delta, err := fn(context.Background(), &agentstate.AgentState{UserMessage: "book a flight"})

	require.NoError(t, err)
	assert.Equal(t, []string{"conversational"}, delta[agentstate.FieldRoute])
}

type assertErrType string

func (e assertErrType) Error() string { return string(e) }

func assertErr(msg string) error { return assertErrType(msg) }
