package plan

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holidai/agentcore/internal/agentstate"
	"github.com/holidai/agentcore/internal/graph"
)

func TestNewExecutorNode_EmptyPlanRoutesToResponder(t *testing.T) {
	fn := NewExecutorNode(Routes{Dispatcher: "dispatcher", Planner: "planner", Responder: "responder"})

	delta, err := fn(context.Background(), &agentstate.AgentState{})

	require.NoError(t, err)
	assert.Equal(t, []string{"responder"}, delta[agentstate.FieldRoute])
	assert.Equal(t, true, delta[agentstate.FieldReadyForResponse])
}

func TestNewExecutorNode_AdvancesStepAndDispatches(t *testing.T) {
	fn := NewExecutorNode(Routes{Dispatcher: "dispatcher", Planner: "planner", Responder: "responder"})
	state := &agentstate.AgentState{
		ExecutionPlan: []agentstate.Step{
			{Number: 1, Agents: []string{"flight", "hotel"}},
			{Number: 2, Agents: []string{"visa"}},
		},
	}

	delta, err := fn(context.Background(), state)

	require.NoError(t, err)
	assert.Equal(t, []string{"dispatcher"}, delta[agentstate.FieldRoute])
	assert.Equal(t, []string{"flight", "hotel"}, delta[agentstate.FieldPendingNodes])
	assert.Equal(t, 1, delta[agentstate.FieldCurrentStep])
	assert.Equal(t, true, delta[agentstate.FieldParallelMode])
}

func TestNewExecutorNode_CurrentStepPastEndRoutesToResponder(t *testing.T) {
	fn := NewExecutorNode(Routes{Dispatcher: "dispatcher", Planner: "planner", Responder: "responder"})
	state := &agentstate.AgentState{
		ExecutionPlan: []agentstate.Step{{Number: 1, Agents: []string{"flight"}}},
		CurrentStep:   1,
	}

	delta, err := fn(context.Background(), state)

	require.NoError(t, err)
	assert.Equal(t, []string{"responder"}, delta[agentstate.FieldRoute])
}

func TestNewDispatcherNode_FansOutAndMergesIndependentSlots(t *testing.T) {
	workers := map[string]graph.Func{
		"flight": func(_ context.Context, _ *agentstate.AgentState) (agentstate.Delta, error) {
			return agentstate.Delta{agentstate.FieldFlightResult: map[string]any{"ok": true}}, nil
		},
		"hotel": func(_ context.Context, _ *agentstate.AgentState) (agentstate.Delta, error) {
			return agentstate.Delta{agentstate.FieldHotelResult: map[string]any{"ok": true}}, nil
		},
	}
	fn := NewDispatcherNode(workers, Routes{Dispatcher: "dispatcher", Planner: "planner", Responder: "responder"})
	state := &agentstate.AgentState{PendingNodes: []string{"flight", "hotel"}, CurrentStep: 1}

	delta, err := fn(context.Background(), state)

	require.NoError(t, err)
	assert.Equal(t, []string{"planner"}, delta[agentstate.FieldRoute])
	assert.NotNil(t, delta[agentstate.FieldFlightResult])
	assert.NotNil(t, delta[agentstate.FieldHotelResult])
	assert.Equal(t, agentstate.Clear{}, delta[agentstate.FieldPendingNodes])
	assert.Equal(t, []int{1}, delta[agentstate.FieldFinishedSteps])
}

func TestNewDispatcherNode_NoPendingNodesRoutesBackToPlanner(t *testing.T) {
	fn := NewDispatcherNode(map[string]graph.Func{}, Routes{Dispatcher: "dispatcher", Planner: "planner", Responder: "responder"})

	delta, err := fn(context.Background(), &agentstate.AgentState{})

	require.NoError(t, err)
	assert.Equal(t, []string{"planner"}, delta[agentstate.FieldRoute])
}

func TestNewDispatcherNode_StragglerGetsTimeoutEnvelope(t *testing.T) {
	workers := map[string]graph.Func{
		"flight": func(_ context.Context, _ *agentstate.AgentState) (agentstate.Delta, error) {
			return agentstate.Delta{agentstate.FieldFlightResult: map[string]any{"ok": true}}, nil
		},
		"hotel": func(ctx context.Context, _ *agentstate.AgentState) (agentstate.Delta, error) {
			// Blocks forever rather than returning on ctx.Done(), so it never
			// reaches the results channel and is a deterministic straggler —
			// a worker that itself returns ctx.Err() would race the join
			// deadline and could land in either the timeout or the failed
			// bucket depending on scheduling.
			select {}
		},
	}
	fn := NewDispatcherNode(workers, Routes{Dispatcher: "dispatcher", Planner: "planner", Responder: "responder"})
	state := &agentstate.AgentState{PendingNodes: []string{"flight", "hotel"}}

	start := time.Now()
	delta, err := fn(context.Background(), state)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.NotNil(t, delta[agentstate.FieldFlightResult])
	env, ok := delta[agentstate.FieldHotelResult].(*agentstate.ErrorEnvelope)
	require.True(t, ok)
	assert.Equal(t, agentstate.ErrCodeTimeout, env.ErrorCode)
	assert.Less(t, elapsed, agentstate.MaxJoinPolls*agentstate.JoinPollInterval+time.Second)
}

func TestNewDispatcherNode_WorkerErrorGetsUpstreamEnvelope(t *testing.T) {
	workers := map[string]graph.Func{
		"flight": func(_ context.Context, _ *agentstate.AgentState) (agentstate.Delta, error) {
			return agentstate.Delta{agentstate.FieldFlightResult: map[string]any{"ok": true}}, nil
		},
		"hotel": func(_ context.Context, _ *agentstate.AgentState) (agentstate.Delta, error) {
			return nil, assert.AnError
		},
	}
	fn := NewDispatcherNode(workers, Routes{Dispatcher: "dispatcher", Planner: "planner", Responder: "responder"})
	state := &agentstate.AgentState{PendingNodes: []string{"flight", "hotel"}}

	delta, err := fn(context.Background(), state)

	require.NoError(t, err)
	env, ok := delta[agentstate.FieldHotelResult].(*agentstate.ErrorEnvelope)
	require.True(t, ok)
	assert.Equal(t, agentstate.ErrCodeUpstream, env.ErrorCode)
}

func TestNewDispatcherNode_WorkerPanicGetsUpstreamEnvelope(t *testing.T) {
	workers := map[string]graph.Func{
		"flight": func(_ context.Context, _ *agentstate.AgentState) (agentstate.Delta, error) {
			panic("boom")
		},
	}
	fn := NewDispatcherNode(workers, Routes{Dispatcher: "dispatcher", Planner: "planner", Responder: "responder"})
	state := &agentstate.AgentState{PendingNodes: []string{"flight"}}

	delta, err := fn(context.Background(), state)

	require.NoError(t, err)
	env, ok := delta[agentstate.FieldFlightResult].(*agentstate.ErrorEnvelope)
	require.True(t, ok)
	assert.Equal(t, agentstate.ErrCodeUpstream, env.ErrorCode)
}
