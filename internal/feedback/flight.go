package feedback

import (
	"context"

	"github.com/holidai/agentcore/internal/agentstate"
	"github.com/holidai/agentcore/internal/model"
)

const flightSystemPrompt = `You are a Flight Agent Feedback Validator that ensures flight search results meet quality standards.

Check the user's request against the result before judging:
- If the user did not provide travel dates, empty outbound/return arrays are EXPECTED and acceptable — the search tool requires dates.
- If error=true and error_code="VALIDATION_ERROR", this is ALWAYS a need_retry: the tool parameters were wrong (bad trip_type, bad date format, missing required field).
- Other error codes (no flights found, upstream timeout) are acceptable as-is.
- If the user gave complete dates and the result is empty with no error, or flights are missing price/airline/route, that's a need_retry.

Respond with JSON:
{"validation_status": "pass"|"need_retry", "feedback_message": "...", "suggested_action": "..."}`

// NewFlightNode builds the flight worker's feedback validator (spec §4.4),
// grounded on flight_agent_feedback_node.py.
func NewFlightNode(client model.Client, routes WorkerRoutes) func(ctx context.Context, state *agentstate.AgentState) (agentstate.Delta, error) {
	return NewWorkerNode(client, WorkerSpec{Worker: agentstate.WorkerFlight, SystemPrompt: flightSystemPrompt}, routes)
}
