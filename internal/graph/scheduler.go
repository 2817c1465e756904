// Package graph implements the Graph Scheduler (spec §4.1): it compiles a
// node table into an executable traversal driven by AgentState.Route,
// applies per-field reducers when parallel branches merge, and enforces a
// recursion budget and a request-level deadline.
//
// Unlike the reference engine this module is adapted from — a durable,
// replay-safe workflow engine built for Temporal — this scheduler is
// intentionally a single-process, non-durable loop: the spec's concurrency
// model (§5) explicitly scopes out distributed coordination across
// replicas, so there is nothing here to make deterministic or replayable.
package graph

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/holidai/agentcore/internal/agentstate"
	"github.com/holidai/agentcore/internal/telemetry"
)

// ErrNodeNotFound is returned when a route names a node absent from the
// table.
var ErrNodeNotFound = errors.New("graph: node not found")

// Terminal is the sentinel route name that ends a traversal.
const Terminal = "__terminal__"

// Scheduler drives AgentState transitions across a fixed node table.
type Scheduler struct {
	nodes            map[string]Func
	logger           telemetry.Logger
	metrics          telemetry.Metrics
	tracer           telemetry.Tracer
	recursionBudget  int
	requestDeadline  time.Duration
}

// Func is re-exported from node.Func's shape to avoid an import cycle
// between graph and node; the two packages describe the same contract.
type Func func(ctx context.Context, state *agentstate.AgentState) (agentstate.Delta, error)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithRecursionBudget overrides the default transition budget (50, §4.1/§8).
func WithRecursionBudget(n int) Option {
	return func(s *Scheduler) { s.recursionBudget = n }
}

// WithRequestDeadline overrides the default request-level deadline (120s, §5).
func WithRequestDeadline(d time.Duration) Option {
	return func(s *Scheduler) { s.requestDeadline = d }
}

// WithTelemetry overrides the no-op logger/metrics/tracer.
func WithTelemetry(logger telemetry.Logger, metrics telemetry.Metrics, tracer telemetry.Tracer) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
		if metrics != nil {
			s.metrics = metrics
		}
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// New builds a Scheduler over the given node table.
func New(nodes map[string]Func, opts ...Option) *Scheduler {
	s := &Scheduler{
		nodes:           nodes,
		logger:          telemetry.NewNoopLogger(),
		metrics:         telemetry.NewNoopMetrics(),
		tracer:          telemetry.NewNoopTracer(),
		recursionBudget: agentstate.DefaultRecursionBudget,
		requestDeadline: agentstate.DefaultRequestDeadline,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run drives state from its current Route until Route is empty/Terminal,
// the recursion budget is exhausted, or the request deadline elapses.
//
// On deadline, Run stops the traversal, writes a timeout message into the
// returned state's LastResponse if LastResponse is still empty, and
// returns without error — §4.1's cancellation contract treats a deadline as
// a terminal condition the caller observes via the returned state, not as a
// Go error.
func (s *Scheduler) Run(ctx context.Context, start *agentstate.AgentState) (*agentstate.AgentState, error) {
	ctx, cancel := context.WithTimeout(ctx, s.requestDeadline)
	defer cancel()

	ctx, span := s.tracer.Start(ctx, "graph.run")
	defer span.End()

	state := start
	transitions := 0

	for {
		if len(state.Route) == 0 {
			return state, nil
		}
		if isTerminal(state.Route) {
			state = agentstate.Apply(state, agentstate.Delta{agentstate.FieldRoute: agentstate.Clear{}})
			return state, nil
		}

		select {
		case <-ctx.Done():
			s.logger.Warn(ctx, "graph deadline exceeded", "session_id", state.SessionID, "transitions", transitions)
			s.metrics.IncCounter("graph.deadline_exceeded", 1)
			return s.onDeadline(state), nil
		default:
		}

		transitions++
		if transitions > s.recursionBudget {
			s.logger.Warn(ctx, "graph recursion budget exhausted", "session_id", state.SessionID, "budget", s.recursionBudget)
			s.metrics.IncCounter("graph.budget_exhausted", 1)
			return s.onBudgetExhausted(state), nil
		}

		delta, err := s.step(ctx, state)
		if err != nil {
			// Every node registered through node.Wrap already converts its own
			// failures into a delta (spec §7); reaching here means an
			// unwrapped or misconfigured node (e.g. an unknown route name)
			// slipped through. Rather than surface that as a fatal Go error
			// across the scheduler boundary, end the turn the same way a
			// deadline or budget exhaustion does.
			s.logger.Error(ctx, "node error", "session_id", state.SessionID, "error", err.Error())
			s.metrics.IncCounter("graph.node_error", 1)
			return s.onNodeError(state), nil
		}
		routeSet := routeWasSet(delta)
		state = agentstate.Apply(state, delta)
		if !routeSet {
			state = agentstate.Apply(state, agentstate.Delta{agentstate.FieldRoute: agentstate.Clear{}})
		}
	}
}

// step invokes every node named in the current route concurrently (a
// single name is the degenerate one-node case) and returns the merged delta.
func (s *Scheduler) step(ctx context.Context, state *agentstate.AgentState) (agentstate.Delta, error) {
	route := append([]string(nil), state.Route...)
	snapshot := state.Clone()

	if len(route) == 1 {
		delta, err := s.invoke(ctx, route[0], snapshot)
		if err != nil {
			return nil, err
		}
		return delta, nil
	}

	type result struct {
		delta agentstate.Delta
		err   error
	}
	results := make([]result, len(route))
	var wg sync.WaitGroup
	for i, name := range route {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			delta, err := s.invoke(ctx, name, snapshot)
			results[i] = result{delta: delta, err: err}
		}(i, name)
	}
	wg.Wait()

	deltas := make([]agentstate.Delta, 0, len(results))
	for i, r := range results {
		if r.err != nil {
			return nil, fmt.Errorf("node %q: %w", route[i], r.err)
		}
		deltas = append(deltas, r.delta)
	}
	return agentstate.MergeDeltas(deltas...), nil
}

func (s *Scheduler) invoke(ctx context.Context, name string, state *agentstate.AgentState) (agentstate.Delta, error) {
	fn, ok := s.nodes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNodeNotFound, name)
	}
	return fn(ctx, state)
}

func (s *Scheduler) onDeadline(state *agentstate.AgentState) *agentstate.AgentState {
	delta := agentstate.Delta{agentstate.FieldRoute: agentstate.Clear{}}
	if state.LastResponse == "" {
		delta[agentstate.FieldLastResponse] = "I wasn't able to finish that in time. Please try again, or narrow down your request."
	}
	return agentstate.Apply(state, delta)
}

func (s *Scheduler) onBudgetExhausted(state *agentstate.AgentState) *agentstate.AgentState {
	delta := agentstate.Delta{agentstate.FieldRoute: agentstate.Clear{}}
	if state.LastResponse == "" {
		delta[agentstate.FieldLastResponse] = "This request needed more steps than I'm allowed to take. Please try rephrasing it."
	}
	return agentstate.Apply(state, delta)
}

// onNodeError is the terminal fallback for a node failure that reached the
// scheduler as a Go error instead of the delta node.Wrap normally converts
// failures into (spec §7). It never aborts the turn with an error return;
// it ends it with whatever reply is already available.
func (s *Scheduler) onNodeError(state *agentstate.AgentState) *agentstate.AgentState {
	delta := agentstate.Delta{agentstate.FieldRoute: agentstate.Clear{}}
	if state.LastResponse == "" {
		delta[agentstate.FieldLastResponse] = "Something went wrong while handling that request. Please try again."
	}
	return agentstate.Apply(state, delta)
}

func isTerminal(route []string) bool {
	return len(route) == 1 && route[0] == Terminal
}

func routeWasSet(delta agentstate.Delta) bool {
	_, ok := delta[agentstate.FieldRoute]
	return ok
}
