// Package plan implements the plan-execution pipeline (spec §4.2, C10): the
// plan executor that walks execution_plan one step at a time, and the
// dispatcher that fans a step's agents out concurrently and joins on their
// completion, grounded on plan_executor_node.py, parallel_dispatcher_node.py,
// and join_node.py.
package plan

import (
	"context"
	"fmt"

	"github.com/holidai/agentcore/internal/agentstate"
	"github.com/holidai/agentcore/internal/graph"
	"github.com/holidai/agentcore/internal/node"
)

// Routes names the nodes the plan-execution pipeline hands off to.
type Routes struct {
	Dispatcher string
	Planner    string
	Responder  string
}

// NewExecutorNode builds the plan executor (spec §4.2: "given execution_plan,
// if current_step >= len(plan), routes to join_node with
// ready_for_response=true; otherwise writes route := plan[current_step].agents,
// increments current_step, and hands off to the dispatcher"). The agent list
// is carried in pending_nodes rather than route directly, since in this
// scheduler route names nodes, and the dispatcher — not the individual
// workers — is the node route should name next.
func NewExecutorNode(routes Routes) func(ctx context.Context, state *agentstate.AgentState) (agentstate.Delta, error) {
	return func(ctx context.Context, state *agentstate.AgentState) (agentstate.Delta, error) {
		plan := state.ExecutionPlan
		if len(plan) == 0 || state.CurrentStep >= len(plan) {
			return agentstate.Delta{
				agentstate.FieldReadyForResponse: true,
				agentstate.FieldRoute:            []string{routes.Responder},
			}, nil
		}
		step := plan[state.CurrentStep]
		return agentstate.Delta{
			agentstate.FieldPendingNodes: append([]string(nil), step.Agents...),
			agentstate.FieldParallelMode: true,
			agentstate.FieldCurrentStep: state.CurrentStep + 1,
			agentstate.FieldRoute:       []string{routes.Dispatcher},
		}, nil
	}
}

// NewDispatcherNode builds the combined dispatcher+join node. workers maps
// each agent name the planner can emit to its node function.
//
// In the reference engine the dispatcher only records pending_nodes and lets
// graph edges fan out to the workers; join_node is a separate node that
// polls shared state every 500ms (up to MAX_JOIN_POLLS) because the workers
// run as independent tasks the join has no direct handle to. This scheduler
// already gives a node a synchronous barrier for free — step() blocks on a
// WaitGroup until every concurrently-invoked node returns — so the
// dispatcher performs the fan-out itself and joins inline: no edges, no
// polling loop. It still honors the spec's bounded wait
// (MAX_JOIN_POLLS*JoinPollInterval, ~10s) as a single deadline on the whole
// fan-out, synthesizing a timeout error envelope for any worker still
// outstanding when it elapses, exactly as join_node does for stragglers.
func NewDispatcherNode(workers map[string]graph.Func, routes Routes) func(ctx context.Context, state *agentstate.AgentState) (agentstate.Delta, error) {
	return func(ctx context.Context, state *agentstate.AgentState) (agentstate.Delta, error) {
		agents := state.PendingNodes
		if len(agents) == 0 {
			return agentstate.Delta{
				agentstate.FieldParallelMode: false,
				agentstate.FieldRoute:        []string{routes.Planner},
			}, nil
		}

		joinCtx, cancel := context.WithTimeout(ctx, agentstate.MaxJoinPolls*agentstate.JoinPollInterval)
		defer cancel()

		type outcome struct {
			agent string
			delta agentstate.Delta
			err   error
		}
		results := make(chan outcome, len(agents))
		for _, name := range agents {
			fn, ok := workers[name]
			if !ok {
				results <- outcome{agent: name, err: fmt.Errorf("plan: no worker registered for %q", name)}
				continue
			}
			// Workers run on their own goroutine with no scheduler-level
			// node.Wrap above them (the dispatcher invokes them directly, not
			// through the graph's node table), so a panicking worker is
			// recovered right here rather than crashing the whole process —
			// converted into the same kind of failure a returned error would
			// produce (spec §7).
			go func(name string, fn graph.Func) {
				defer func() {
					if r := recover(); r != nil {
						results <- outcome{agent: name, err: fmt.Errorf("worker %s panicked: %v", name, r)}
					}
				}()
				delta, err := fn(joinCtx, state)
				results <- outcome{agent: name, delta: delta, err: err}
			}(name, fn)
		}

		deltas := make([]agentstate.Delta, 0, len(agents))
		completed := map[string]bool{}
		failed := map[string]error{}
		timedOut := false
	collect:
		for i := 0; i < len(agents); i++ {
			select {
			case r := <-results:
				if r.err != nil {
					failed[r.agent] = r.err
				} else {
					deltas = append(deltas, r.delta)
				}
				completed[r.agent] = true
			case <-joinCtx.Done():
				timedOut = true
				break collect
			}
		}

		merged := agentstate.MergeDeltas(deltas...)
		applied := agentstate.Apply(state, merged)

		for _, name := range agents {
			if completed[name] && resultSlot(applied, name) != nil {
				continue
			}
			field := agentstate.WorkerResultField(name)
			if field == "" {
				continue
			}
			if err, ok := failed[name]; ok {
				merged[field] = node.AsErrorEnvelope(agentstate.ErrCodeUpstream, err)
				continue
			}
			merged[field] = agentstate.NewErrorEnvelope(agentstate.ErrCodeTimeout, fmt.Sprintf("%s did not complete", name))
		}

		merged[agentstate.FieldPendingNodes] = agentstate.Clear{}
		merged[agentstate.FieldParallelMode] = false
		if timedOut {
			merged[agentstate.FieldJoinRetryCount] = agentstate.MaxJoinPolls
		} else {
			merged[agentstate.FieldJoinRetryCount] = 0
		}
		merged[agentstate.FieldFinishedSteps] = append(append([]int(nil), state.FinishedSteps...), state.CurrentStep)
		merged[agentstate.FieldRoute] = []string{routes.Planner}
		return merged, nil
	}
}

func resultSlot(state *agentstate.AgentState, agent string) any {
	switch agent {
	case agentstate.WorkerFlight:
		return state.FlightResult
	case agentstate.WorkerHotel:
		return state.HotelResult
	case agentstate.WorkerVisa:
		return state.VisaResult
	case agentstate.WorkerTripAdvisor:
		return state.TripAdvisorResult
	case agentstate.WorkerUtilities:
		return state.UtilitiesResult
	}
	return nil
}
