package graph_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holidai/agentcore/internal/agentstate"
	"github.com/holidai/agentcore/internal/graph"
)

func TestScheduler_SingleNodeRoute(t *testing.T) {
	nodes := map[string]graph.Func{
		"a": func(_ context.Context, s *agentstate.AgentState) (agentstate.Delta, error) {
			return agentstate.Delta{
				agentstate.FieldLastResponse: "hello",
				agentstate.FieldRoute:        []string{"b"},
			}, nil
		},
		"b": func(_ context.Context, s *agentstate.AgentState) (agentstate.Delta, error) {
			require.Equal(t, "hello", s.LastResponse)
			return agentstate.Delta{agentstate.FieldLastResponse: "world"}, nil
		},
	}
	sched := graph.New(nodes)

	out, err := sched.Run(context.Background(), &agentstate.AgentState{Route: []string{"a"}})

	require.NoError(t, err)
	assert.Equal(t, "world", out.LastResponse)
	assert.Empty(t, out.Route)
}

func TestScheduler_ParallelFanOutMergesIndependentSlots(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]bool{}

	nodes := map[string]graph.Func{
		"dispatch": func(_ context.Context, s *agentstate.AgentState) (agentstate.Delta, error) {
			return agentstate.Delta{agentstate.FieldRoute: []string{"flight", "hotel"}}, nil
		},
		"flight": func(_ context.Context, s *agentstate.AgentState) (agentstate.Delta, error) {
			mu.Lock()
			seen["flight"] = true
			mu.Unlock()
			return agentstate.Delta{agentstate.FieldFlightResult: map[string]any{"ok": true}}, nil
		},
		"hotel": func(_ context.Context, s *agentstate.AgentState) (agentstate.Delta, error) {
			mu.Lock()
			seen["hotel"] = true
			mu.Unlock()
			return agentstate.Delta{agentstate.FieldHotelResult: map[string]any{"ok": true}}, nil
		},
	}
	sched := graph.New(nodes)

	out, err := sched.Run(context.Background(), &agentstate.AgentState{Route: []string{"dispatch"}})

	require.NoError(t, err)
	assert.True(t, seen["flight"])
	assert.True(t, seen["hotel"])
	assert.NotNil(t, out.FlightResult)
	assert.NotNil(t, out.HotelResult)
	assert.Empty(t, out.Route)
}

func TestScheduler_StopsOnTerminalRoute(t *testing.T) {
	nodes := map[string]graph.Func{
		"a": func(_ context.Context, s *agentstate.AgentState) (agentstate.Delta, error) {
			return agentstate.Delta{agentstate.FieldRoute: []string{graph.Terminal}}, nil
		},
	}
	sched := graph.New(nodes)

	out, err := sched.Run(context.Background(), &agentstate.AgentState{Route: []string{"a"}})

	require.NoError(t, err)
	assert.Empty(t, out.Route)
}

func TestScheduler_RecursionBudgetExhausted(t *testing.T) {
	nodes := map[string]graph.Func{
		"loop": func(_ context.Context, s *agentstate.AgentState) (agentstate.Delta, error) {
			return agentstate.Delta{agentstate.FieldRoute: []string{"loop"}}, nil
		},
	}
	sched := graph.New(nodes, graph.WithRecursionBudget(5))

	out, err := sched.Run(context.Background(), &agentstate.AgentState{Route: []string{"loop"}})

	require.NoError(t, err)
	assert.Empty(t, out.Route)
	assert.NotEmpty(t, out.LastResponse)
}

func TestScheduler_DeadlineExceeded(t *testing.T) {
	nodes := map[string]graph.Func{
		"slow": func(ctx context.Context, s *agentstate.AgentState) (agentstate.Delta, error) {
			select {
			case <-time.After(200 * time.Millisecond):
			case <-ctx.Done():
			}
			return agentstate.Delta{agentstate.FieldRoute: []string{"slow"}}, nil
		},
	}
	sched := graph.New(nodes, graph.WithRequestDeadline(20*time.Millisecond))

	out, err := sched.Run(context.Background(), &agentstate.AgentState{Route: []string{"slow"}})

	require.NoError(t, err)
	assert.NotEmpty(t, out.LastResponse)
}

func TestScheduler_UnknownNodeEndsTurnGracefully(t *testing.T) {
	sched := graph.New(map[string]graph.Func{})

	out, err := sched.Run(context.Background(), &agentstate.AgentState{Route: []string{"missing"}})

	require.NoError(t, err)
	assert.Empty(t, out.Route)
	assert.NotEmpty(t, out.LastResponse)
}
