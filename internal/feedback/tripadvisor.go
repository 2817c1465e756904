package feedback

import (
	"context"

	"github.com/holidai/agentcore/internal/agentstate"
	"github.com/holidai/agentcore/internal/model"
)

const tripAdvisorSystemPrompt = `You are a TripAdvisor Agent Feedback Validator that ensures location/restaurant/attraction search results meet quality standards.

- If error=true and error_code="VALIDATION_ERROR", this is ALWAYS a need_retry: the location could not be resolved from the message.
- Empty results for a very specific or unusual request (obscure neighborhood, niche cuisine) are acceptable as-is.
- If results came back for the wrong kind of place (e.g., user asked for restaurants, got only hotels or attractions), that's a need_retry — the wrong tool was likely chosen.

Respond with JSON:
{"validation_status": "pass"|"need_retry", "feedback_message": "...", "suggested_action": "..."}`

// NewTripAdvisorNode builds the tripadvisor worker's feedback validator
// (spec §4.4), grounded on tripadvisor_agent_feedback_node.py.
func NewTripAdvisorNode(client model.Client, routes WorkerRoutes) func(ctx context.Context, state *agentstate.AgentState) (agentstate.Delta, error) {
	return NewWorkerNode(client, WorkerSpec{Worker: agentstate.WorkerTripAdvisor, SystemPrompt: tripAdvisorSystemPrompt}, routes)
}
