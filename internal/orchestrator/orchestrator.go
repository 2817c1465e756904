// Package orchestrator assembles the graph scheduler's node table and
// routing edges into the single inbound entrypoint (spec §6: handle_turn)
// the transport layer calls once per user message. It owns no business
// logic of its own beyond wiring: every node it registers is built by
// another package (rfi, planner, plan, feedback, worker) and this package
// only decides names and routes.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/holidai/agentcore/internal/agentstate"
	"github.com/holidai/agentcore/internal/feedback"
	"github.com/holidai/agentcore/internal/graph"
	"github.com/holidai/agentcore/internal/ltm"
	"github.com/holidai/agentcore/internal/model"
	"github.com/holidai/agentcore/internal/node"
	"github.com/holidai/agentcore/internal/plan"
	"github.com/holidai/agentcore/internal/planner"
	"github.com/holidai/agentcore/internal/rfi"
	"github.com/holidai/agentcore/internal/session"
	"github.com/holidai/agentcore/internal/stm"
	"github.com/holidai/agentcore/internal/telemetry"
	"github.com/holidai/agentcore/internal/toolclient"
	"github.com/holidai/agentcore/internal/tripplan"
	"github.com/holidai/agentcore/internal/worker"
)

// Node names. Kept as constants so the wiring below reads as a routing
// table rather than a maze of string literals.
const (
	nodePII = "pii"
	nodeMemory = "memory"
	nodeRFI = "rfi"
	nodePlanner = "planner"
	nodeFeedbackPlanLogic = "feedback_plan_logic"
	nodeFeedbackPlanStructure = "feedback_plan_structure"
	nodePlanExecutor = "plan_executor"
	nodeDispatcher = "dispatcher"
	nodeFeedbackFlight = "feedback_flight"
	nodeFeedbackHotel = "feedback_hotel"
	nodeFeedbackVisa = "feedback_visa"
	nodeFeedbackTripAdvisor = "feedback_tripadvisor"
	nodeFeedbackUtilities = "feedback_utilities"
	nodeFlightRetry = "flight_retry"
	nodeHotelRetry = "hotel_retry"
	nodeVisaRetry = "visa_retry"
	nodeTripAdvisorRetry = "tripadvisor_retry"
	nodeUtilitiesRetry = "utilities_retry"
	nodeTripPlanGate = "trip_plan_gate"
	nodeConversational = "conversational"
	nodeFeedbackResponse = "feedback_response"
	nodePersist = "persist"
)

// piiClient is the transport the PII redaction node talks to, mirrored here
// so callers can supply rfi.HTTPPIIClient (or a fake) without this package
// importing rfi's unexported interface.
type piiClient interface {
	Chat(ctx context.Context, systemPrompt, userMessage string) (string, error)
}

// Deps are every external collaborator the orchestration graph needs.
type Deps struct {
	Model      model.Client
	PIIClient  piiClient
	Tools      toolclient.Caller
	STM        *stm.Store
	LTM        *ltm.Store
	TripPlan   *tripplan.Store
	Sessions   session.Store

	Logger  telemetry.Logger
	Metrics telemetry.Metrics
	Tracer  telemetry.Tracer

	RecursionBudget int
	RequestDeadline time.Duration // zero uses the scheduler default
}

// Response is the shape handle_turn returns to its caller (spec §6).
type Response struct {
	Response     string   `json:"response"`
	AgentsCalled []string `json:"agents_called"`
	SessionID    string   `json:"session_id"`
}

// Orchestrator drives one turn through the full node graph.
type Orchestrator struct {
	scheduler *graph.Scheduler
	sessions  session.Store
}

// New builds the node table and compiles it into a Scheduler.
func New(deps Deps) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer = telemetry.NewNoopTracer()
	}
	sessions := deps.Sessions
	if sessions == nil {
		sessions = session.NewStore()
	}

	wrap := func(name string, fn graph.Func) graph.Func {
		return graph.Func(node.Wrap(name, logger, metrics, node.Options{}, node.Func(fn)))
	}
	// wrapResult is used for the nodes that own a worker's result slot (the
	// per-worker feedback-retry nodes): a panic or error there surfaces as
	// an error envelope in that slot, routed on to onErrorRoute (the same
	// feedback validator the node would have routed to on success), rather
	// than aborting the turn (spec §7).
	wrapResult := func(name, resultField, onErrorRoute string, fn graph.Func) graph.Func {
		return graph.Func(node.Wrap(name, logger, metrics, node.Options{
			ResultField:  resultField,
			OnErrorRoute: onErrorRoute,
		}, node.Func(fn)))
	}

	workerDeps := worker.Deps{Model: deps.Model, Tools: deps.Tools}
	flightFn := worker.NewFlightNode(workerDeps)
	hotelFn := worker.NewHotelNode(workerDeps)
	visaFn := worker.NewVisaNode(workerDeps)
	tripAdvisorFn := worker.NewTripAdvisorNode(workerDeps)
	utilitiesFn := worker.NewUtilitiesNode(workerDeps)
	conversationalFn := worker.NewConversationalNode(deps.Model, deps.STM)
	tripPlannerFn := worker.NewTripPlannerNode(worker.TripPlannerDeps{
		Model: deps.Model, Store: deps.TripPlan, STM: deps.STM,
	})

	// The dispatcher fans out to these directly (spec §4.2/§4.6): it invokes
	// the raw worker function, never the scheduler's route machinery, so the
	// map below never needs a feedback-aware variant.
	workers := map[string]graph.Func{
		agentstate.WorkerFlight:      flightFn,
		agentstate.WorkerHotel:       hotelFn,
		agentstate.WorkerVisa:        visaFn,
		agentstate.WorkerTripAdvisor: tripAdvisorFn,
		agentstate.WorkerUtilities:   utilitiesFn,
	}

	// planRoutes.Planner is the loop-back target after a dispatched step
	// finishes: the start of the per-worker feedback chain, which eventually
	// lands back on plan_executor for the next step.
	planRoutes := plan.Routes{
		Dispatcher: nodeDispatcher,
		Planner:    nodeFeedbackFlight,
		Responder:  nodeTripPlanGate,
	}

	nodes := map[string]graph.Func{
		nodePII: wrap(nodePII, rfi.NewPIIRedactorNode(deps.PIIClient, nodeMemory)),
		nodeMemory: wrap(nodeMemory, rfi.NewMemoryNode(deps.Model, deps.LTM, nodeRFI)),
		nodeRFI: wrap(nodeRFI, rfi.NewRFINode(deps.Model, deps.STM, rfi.Routes{Planner: nodePlanner})),

		nodePlanner: wrap(nodePlanner, planner.NewNode(planner.Deps{Model: deps.Model}, planner.Routes{
			Feedback:       nodeFeedbackPlanLogic,
			Conversational: nodeTripPlanGate,
		})),
		nodeFeedbackPlanLogic: wrap(nodeFeedbackPlanLogic, feedback.NewPlanLogicNode(deps.Model, feedback.PlanLogicRoutes{
			Next: nodeFeedbackPlanStructure, Planner: nodePlanner,
		})),
		nodeFeedbackPlanStructure: wrap(nodeFeedbackPlanStructure, feedback.NewPlanStructureNode(deps.Model, feedback.PlanStructureRoutes{
			Next: nodePlanExecutor, Planner: nodePlanner,
		})),

		nodePlanExecutor: wrap(nodePlanExecutor, plan.NewExecutorNode(planRoutes)),
		nodeDispatcher:    wrap(nodeDispatcher, trackDispatchedAgents(plan.NewDispatcherNode(workers, planRoutes))),

		nodeFeedbackFlight: wrap(nodeFeedbackFlight, feedback.NewFlightNode(deps.Model, feedback.WorkerRoutes{
			Worker: nodeFlightRetry, Next: nodeFeedbackHotel,
		})),
		nodeFlightRetry: wrapResult(nodeFlightRetry, agentstate.FieldFlightResult, nodeFeedbackFlight, withRoute(flightFn, nodeFeedbackFlight)),

		nodeFeedbackHotel: wrap(nodeFeedbackHotel, feedback.NewHotelNode(deps.Model, feedback.WorkerRoutes{
			Worker: nodeHotelRetry, Next: nodeFeedbackVisa,
		})),
		nodeHotelRetry: wrapResult(nodeHotelRetry, agentstate.FieldHotelResult, nodeFeedbackHotel, withRoute(hotelFn, nodeFeedbackHotel)),

		nodeFeedbackVisa: wrap(nodeFeedbackVisa, feedback.NewVisaNode(deps.Model, feedback.WorkerRoutes{
			Worker: nodeVisaRetry, Next: nodeFeedbackTripAdvisor,
		})),
		nodeVisaRetry: wrapResult(nodeVisaRetry, agentstate.FieldVisaResult, nodeFeedbackVisa, withRoute(visaFn, nodeFeedbackVisa)),

		nodeFeedbackTripAdvisor: wrap(nodeFeedbackTripAdvisor, feedback.NewTripAdvisorNode(deps.Model, feedback.WorkerRoutes{
			Worker: nodeTripAdvisorRetry, Next: nodeFeedbackUtilities,
		})),
		nodeTripAdvisorRetry: wrapResult(nodeTripAdvisorRetry, agentstate.FieldTripAdvisorResult, nodeFeedbackTripAdvisor, withRoute(tripAdvisorFn, nodeFeedbackTripAdvisor)),

		nodeFeedbackUtilities: wrap(nodeFeedbackUtilities, feedback.NewUtilitiesNode(deps.Model, feedback.WorkerRoutes{
			Worker: nodeUtilitiesRetry, Next: nodePlanExecutor,
		})),
		nodeUtilitiesRetry: wrapResult(nodeUtilitiesRetry, agentstate.FieldUtilitiesResult, nodeFeedbackUtilities, withRoute(utilitiesFn, nodeFeedbackUtilities)),

		nodeTripPlanGate: wrap(nodeTripPlanGate, newTripPlanGateNode(tripPlannerFn, nodeConversational)),
		nodeConversational: wrap(nodeConversational, withRoute(conversationalFn, nodeFeedbackResponse)),
		nodeFeedbackResponse: wrap(nodeFeedbackResponse, feedback.NewResponseNode(deps.Model, feedback.ResponseRoutes{
			Next: nodePersist, Conversational: nodeConversational,
		})),
		nodePersist: wrap(nodePersist, newPersistNode(deps.STM)),
	}

	var opts []graph.Option
	if deps.RecursionBudget > 0 {
		opts = append(opts, graph.WithRecursionBudget(deps.RecursionBudget))
	}
	if deps.RequestDeadline > 0 {
		opts = append(opts, graph.WithRequestDeadline(deps.RequestDeadline))
	}
	opts = append(opts, graph.WithTelemetry(logger, metrics, tracer))

	return &Orchestrator{
		scheduler: graph.New(nodes, opts...),
		sessions:  sessions,
	}
}

// HandleTurn drives a single user message through the graph and returns the
// final reply, the ordered agents invoked, and the session id (spec §6).
func (o *Orchestrator) HandleTurn(ctx context.Context, userEmail, sessionID, userMessage string) (Response, error) {
	if _, err := o.sessions.StartTurn(ctx, sessionID, userEmail); err != nil {
		return Response{}, fmt.Errorf("orchestrator: start turn: %w", err)
	}

	start := &agentstate.AgentState{
		UserMessage:   userMessage,
		UserEmail:     userEmail,
		SessionID:     sessionID,
		CollectedInfo: map[string]any{},
		Route:         []string{nodePII},
	}

	final, err := o.scheduler.Run(ctx, start)
	if err != nil {
		_, _ = o.sessions.FinishTurn(ctx, sessionID, session.StatusFailed)
		return Response{}, fmt.Errorf("orchestrator: run: %w", err)
	}

	for _, agent := range final.AgentsCalled {
		_ = o.sessions.RecordAgentCalled(ctx, sessionID, agent)
	}
	_, _ = o.sessions.FinishTurn(ctx, sessionID, session.StatusCompleted)

	return Response{
		Response:     final.LastResponse,
		AgentsCalled: final.AgentsCalled,
		SessionID:    sessionID,
	}, nil
}

// withRoute wraps a worker node (which never sets route on its own, per
// spec §4.3) so it can be registered standalone for a feedback retry and
// still chain back into the validator that dispatched it.
func withRoute(fn graph.Func, nextRoute string) graph.Func {
	return func(ctx context.Context, state *agentstate.AgentState) (agentstate.Delta, error) {
		delta, err := fn(ctx, state)
		if err != nil {
			return nil, err
		}
		if delta == nil {
			delta = agentstate.Delta{}
		}
		delta[agentstate.FieldRoute] = []string{nextRoute}
		return delta, nil
	}
}

// trackDispatchedAgents records the step's dispatched worker names into
// AgentsCalled. This lives here rather than in plan.NewDispatcherNode
// because a parallel step's workers share one pre-step snapshot (spec §4.2
// ordering guarantee) — unioning them against that snapshot has to happen
// once, outside the per-worker deltas the dispatcher already merges, or
// concurrent writers would silently clobber each other's AgentsCalled entry.
func trackDispatchedAgents(fn graph.Func) graph.Func {
	return func(ctx context.Context, state *agentstate.AgentState) (agentstate.Delta, error) {
		dispatched := append([]string(nil), state.PendingNodes...)
		delta, err := fn(ctx, state)
		if err != nil {
			return nil, err
		}
		if len(dispatched) > 0 {
			delta[agentstate.FieldAgentsCalled] = append(append([]string(nil), state.AgentsCalled...), dispatched...)
		}
		return delta, nil
	}
}

// newTripPlanGateNode runs the trip-plan worker only when the message
// plausibly carries plan-management intent (spec §4.6: trip_plan "is never
// part of a plan" — it fires off its own keyword check, independent of the
// planner's execution plan), then always continues to nextRoute.
func newTripPlanGateNode(tripPlannerFn graph.Func, nextRoute string) graph.Func {
	return func(ctx context.Context, state *agentstate.AgentState) (agentstate.Delta, error) {
		if !worker.HasPlanIntent(state.UserMessage) {
			return agentstate.Delta{agentstate.FieldRoute: []string{nextRoute}}, nil
		}
		delta, err := tripPlannerFn(ctx, state)
		if err != nil {
			return nil, err
		}
		if delta == nil {
			delta = agentstate.Delta{}
		}
		delta[agentstate.FieldRoute] = []string{nextRoute}
		return delta, nil
	}
}

// newPersistNode folds the turn's final response and worker results into
// Short-Term Memory once a reply has cleared the response validator (spec
// §4.9: "rolling window", "last-results cache"). Like every STM write this
// is fail-soft — a persistence failure must not turn a successful turn into
// a failed one.
func newPersistNode(stmStore *stm.Store) graph.Func {
	return func(ctx context.Context, state *agentstate.AgentState) (agentstate.Delta, error) {
		if stmStore == nil || state.SessionID == "" {
			return agentstate.Delta{}, nil
		}
		_ = stmStore.AddMessage(ctx, state.SessionID, state.UserEmail, "user", state.UserMessage)
		if state.LastResponse != "" {
			_ = stmStore.AddMessage(ctx, state.SessionID, state.UserEmail, "agent", state.LastResponse)
		}
		if len(state.CollectedInfo) > 0 {
			_ = stmStore.SetLastResults(ctx, state.SessionID, state.CollectedInfo)
		}
		return agentstate.Delta{}, nil
	}
}
