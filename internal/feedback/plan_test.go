package feedback

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holidai/agentcore/internal/agentstate"
)

func TestNewPlanLogicNode_NeedFixClearsPlanAndRoutesToPlanner(t *testing.T) {
	m := &fakeModel{text: `{"validation_status":"need_plan_fix","feedback_message":"currency step before price step"}`}
	fn := NewPlanLogicNode(m, PlanLogicRoutes{Next: "structure", Planner: "planner"})

	state := &agentstate.AgentState{ExecutionPlan: []agentstate.Step{{Number: 1, Agents: []string{"flight"}}}}
	delta, err := fn(context.Background(), state)

	require.NoError(t, err)
	assert.Equal(t, []string{"planner"}, delta[agentstate.FieldRoute])
	assert.Equal(t, []agentstate.Step{}, delta[agentstate.FieldExecutionPlan])
	assert.Equal(t, "currency step before price step", delta[agentstate.FieldFeedbackMessage])
}

func TestNewPlanLogicNode_PassAdvancesToStructureValidator(t *testing.T) {
	m := &fakeModel{text: `{"validation_status":"pass"}`}
	fn := NewPlanLogicNode(m, PlanLogicRoutes{Next: "structure", Planner: "planner"})

	delta, err := fn(context.Background(), &agentstate.AgentState{})

	require.NoError(t, err)
	assert.Equal(t, []string{"structure"}, delta[agentstate.FieldRoute])
}

func TestNewPlanLogicNode_ForcePassesAtCeiling(t *testing.T) {
	m := &fakeModel{text: `{"validation_status":"need_plan_fix"}`}
	fn := NewPlanLogicNode(m, PlanLogicRoutes{Next: "structure", Planner: "planner"})

	state := &agentstate.AgentState{FeedbackRetryCount: agentstate.MaxFeedbackRetries}
	delta, err := fn(context.Background(), state)

	require.NoError(t, err)
	assert.Equal(t, []string{"structure"}, delta[agentstate.FieldRoute])
}

func TestNewPlanStructureNode_MechanicalCheckSkipsLLMWhenValid(t *testing.T) {
	m := &fakeModel{err: assertErr("must not be called")}
	fn := NewPlanStructureNode(m, PlanStructureRoutes{Next: "executor", Planner: "planner"})

	state := &agentstate.AgentState{ExecutionPlan: []agentstate.Step{{Number: 1, Agents: []string{agentstate.WorkerFlight}}}}
	delta, err := fn(context.Background(), state)

	require.NoError(t, err)
	assert.Equal(t, []string{"executor"}, delta[agentstate.FieldRoute])
}

func TestNewPlanStructureNode_UnknownAgentFailsMechanicalCheckAndAsksLLM(t *testing.T) {
	m := &fakeModel{text: `{"validation_status":"need_fix","feedback_message":"unknown agent"}`}
	fn := NewPlanStructureNode(m, PlanStructureRoutes{Next: "executor", Planner: "planner"})

	state := &agentstate.AgentState{ExecutionPlan: []agentstate.Step{{Number: 1, Agents: []string{"not_a_worker"}}}}
	delta, err := fn(context.Background(), state)

	require.NoError(t, err)
	assert.Equal(t, []string{"planner"}, delta[agentstate.FieldRoute])
}

func TestNewResponseNode_NeedRegenerateClearsResponseAndRoutesBack(t *testing.T) {
	m := &fakeModel{text: `{"validation_status":"need_regenerate","feedback_message":"leaked raw JSON"}`}
	fn := NewResponseNode(m, ResponseRoutes{Next: "persist", Conversational: "conversational"})

	state := &agentstate.AgentState{LastResponse: `{"price":400}`}
	delta, err := fn(context.Background(), state)

	require.NoError(t, err)
	assert.Equal(t, []string{"conversational"}, delta[agentstate.FieldRoute])
	assert.Equal(t, agentstate.Clear{}, delta[agentstate.FieldLastResponse])
}

func TestNewResponseNode_EmptyResponsePassesThrough(t *testing.T) {
	m := &fakeModel{err: assertErr("must not be called")}
	fn := NewResponseNode(m, ResponseRoutes{Next: "persist", Conversational: "conversational"})

	delta, err := fn(context.Background(), &agentstate.AgentState{})

	require.NoError(t, err)
	assert.Equal(t, []string{"persist"}, delta[agentstate.FieldRoute])
}

func TestNewResponseNode_PassAdvancesToPersist(t *testing.T) {
	m := &fakeModel{text: `{"validation_status":"pass"}`}
	fn := NewResponseNode(m, ResponseRoutes{Next: "persist", Conversational: "conversational"})

	state := &agentstate.AgentState{LastResponse: "Here is your itinerary."}
	delta, err := fn(context.Background(), state)

	require.NoError(t, err)
	assert.Equal(t, []string{"persist"}, delta[agentstate.FieldRoute])
}
