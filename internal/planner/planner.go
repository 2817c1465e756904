// Package planner implements the LLM planning node (spec §4.6, C9): the
// single LLM call that turns a user's travel request into an ordered,
// dependency-aware execution plan over the fixed worker set, grounded on
// main_agent_node.py.
package planner

import (
	"context"
	"strings"

	"github.com/holidai/agentcore/internal/agentstate"
	"github.com/holidai/agentcore/internal/model"
)

const systemPrompt = `You are the Planner, an orchestrator that creates multi-step execution plans for specialized travel agents.

Your role:
- Analyze the user's request and create a sequential execution plan.
- Use reasoning to check whether the data needed already exists in the state or memory below before planning a call — if it already exists, do NOT include that agent in the plan.
- Identify dependencies: if one step's agents need another step's results, put them in separate, ordered steps. Group only truly independent agents into the same step so they run in parallel.

CRITICAL DEPENDENCY RULES:
1. Holidays affect booking dates, so a holiday lookup must come before a flight/hotel step that needs to avoid them.
2. Weather, currency conversion, and eSIM lookups do not depend on bookings and can run alongside them.
3. The utilities agent can resolve multiple utility requests (holidays, weather, currency, eSIM, date/time) in a single call — group them into one step rather than separate ones.
4. Currency conversion of a booking price must come after the step that produced that price.

Available agents: flight, hotel, visa, tripadvisor, utilities.
Never include trip_plan or conversational in the execution plan — trip-plan management and the final reply are handled automatically after the plan finishes.

Respond with JSON:
{"execution_plan": [{"step_number": 1, "agents": ["flight", "hotel"], "description": "..."}]}

If all requested data already exists in state, or the request needs no agent calls, return an empty execution_plan array.`

// Deps are the planner node's collaborators.
type Deps struct {
	Model model.Client
}

// Routes names where the planner sends the turn next: Feedback when the
// plan is non-empty (spec §4.6: "routes to the plan-logic feedback
// validator before any worker runs"), Conversational directly when no
// agent calls are needed.
type Routes struct {
	Feedback       string
	Conversational string
}

type planResponse struct {
	ExecutionPlan []agentstate.Step `json:"execution_plan"`
}

// tripadvisorKeywords gates the tripadvisor agent out of a plan unless the
// user explicitly asked for it, mirroring main_agent_node.py's
// wants_tripadvisor heuristic guard against the model over-eagerly
// including it.
var tripadvisorKeywords = []string{
	"restaurant", "food", "dining", "eat", "cuisine",
	"attraction", "things to do", "places to visit", "places to go",
	"recommendation", "sightseeing", "activities", "nightlife",
	"coffee shop", "bar", "museum",
}

func wantsTripAdvisor(msg string) bool {
	lower := strings.ToLower(msg)
	for _, kw := range tripadvisorKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// NewNode builds the planner node. It emits an execution plan restricted to
// the fixed agent set, strips tripadvisor unless the message explicitly
// wants it, records the Needs* flags on the state (the join waits on each
// step's agent list, not on these flags),
// and clears result slots for agents that fell out of the plan so a stale
// previous-turn result doesn't leak into a request that no longer needs it.
func NewNode(deps Deps, routes Routes) func(ctx context.Context, state *agentstate.AgentState) (agentstate.Delta, error) {
	return func(ctx context.Context, state *agentstate.AgentState) (agentstate.Delta, error) {
		plan, err := createPlan(ctx, deps.Model, state)
		if err != nil {
			plan = nil
		}

		if !wantsTripAdvisor(state.UserMessage) {
			plan = stripAgent(plan, agentstate.WorkerTripAdvisor)
		}
		plan = renumber(plan)

		allAgents := map[string]bool{}
		for _, step := range plan {
			for _, a := range step.Agents {
				allAgents[a] = true
			}
		}

		delta := agentstate.Delta{
			agentstate.FieldExecutionPlan: plan,
			agentstate.FieldCurrentStep:   0,
			agentstate.FieldNeedsFlight:      allAgents[agentstate.WorkerFlight],
			agentstate.FieldNeedsHotel:       allAgents[agentstate.WorkerHotel],
			agentstate.FieldNeedsVisa:        allAgents[agentstate.WorkerVisa],
			agentstate.FieldNeedsTripAdvisor: allAgents[agentstate.WorkerTripAdvisor],
			agentstate.FieldNeedsUtilities:   allAgents[agentstate.WorkerUtilities],
		}
		if !allAgents[agentstate.WorkerFlight] {
			delta[agentstate.FieldFlightResult] = agentstate.Clear{}
		}
		if !allAgents[agentstate.WorkerHotel] {
			delta[agentstate.FieldHotelResult] = agentstate.Clear{}
		}
		if !allAgents[agentstate.WorkerVisa] {
			delta[agentstate.FieldVisaResult] = agentstate.Clear{}
		}
		if !allAgents[agentstate.WorkerTripAdvisor] {
			delta[agentstate.FieldTripAdvisorResult] = agentstate.Clear{}
		}
		if !allAgents[agentstate.WorkerUtilities] {
			delta[agentstate.FieldUtilitiesResult] = agentstate.Clear{}
		}

		if len(plan) == 0 {
			delta[agentstate.FieldReadyForResponse] = true
			delta[agentstate.FieldRoute] = []string{routes.Conversational}
		} else {
			delta[agentstate.FieldRoute] = []string{routes.Feedback}
		}
		return delta, nil
	}
}

func stripAgent(plan []agentstate.Step, agent string) []agentstate.Step {
	filtered := make([]agentstate.Step, 0, len(plan))
	for _, step := range plan {
		agents := make([]string, 0, len(step.Agents))
		for _, a := range step.Agents {
			if a != agent {
				agents = append(agents, a)
			}
		}
		if len(agents) > 0 {
			step.Agents = agents
			filtered = append(filtered, step)
		}
	}
	return filtered
}

func renumber(plan []agentstate.Step) []agentstate.Step {
	for i := range plan {
		plan[i].Number = i + 1
	}
	return plan
}

func createPlan(ctx context.Context, client model.Client, state *agentstate.AgentState) ([]agentstate.Step, error) {
	var sb strings.Builder
	sb.WriteString("User's message: ")
	sb.WriteString(state.UserMessage)

	if len(state.RelevantMemories) > 0 {
		sb.WriteString("\n\nRelevant memories:\n- ")
		sb.WriteString(strings.Join(state.RelevantMemories, "\n- "))
	}

	sb.WriteString("\n\nExisting data in state (do not re-fetch if already available and not an error):\n")
	writeAvailability(&sb, "flight", state.FlightResult)
	writeAvailability(&sb, "hotel", state.HotelResult)
	writeAvailability(&sb, "visa", state.VisaResult)
	writeAvailability(&sb, "tripadvisor", state.TripAdvisorResult)
	writeAvailability(&sb, "utilities", state.UtilitiesResult)

	if state.FeedbackMessage != "" {
		sb.WriteString("\n\nFeedback from the plan validator on your previous attempt, revise accordingly:\n")
		sb.WriteString(state.FeedbackMessage)
	}

	req := &model.Request{
		Temperature: 0.2,
		Messages: []model.Message{
			{Role: model.RoleSystem, Text: systemPrompt},
			{Role: model.RoleUser, Text: sb.String()},
		},
	}
	var resp planResponse
	if err := model.CompleteJSON(ctx, client, req, &resp); err != nil {
		return nil, err
	}
	return resp.ExecutionPlan, nil
}

func writeAvailability(sb *strings.Builder, name string, result any) bool {
	available := resultHasData(result)
	if available {
		sb.WriteString("- " + name + ": AVAILABLE\n")
	} else {
		sb.WriteString("- " + name + ": NOT AVAILABLE\n")
	}
	return available
}

// resultHasData reports whether a worker's result slot holds usable data
// rather than being empty or an error envelope.
func resultHasData(result any) bool {
	if result == nil {
		return false
	}
	if env, ok := result.(*agentstate.ErrorEnvelope); ok {
		return env == nil || !env.Error
	}
	return true
}
