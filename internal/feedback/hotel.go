package feedback

import (
	"context"

	"github.com/holidai/agentcore/internal/agentstate"
	"github.com/holidai/agentcore/internal/model"
)

const hotelSystemPrompt = `You are a Hotel Agent Feedback Validator that ensures hotel search results meet quality standards.

Check the user's request against the result before judging:
- A listing-only search (no check-in/out dates) legitimately omits prices — that is not a defect.
- If error=true and error_code="VALIDATION_ERROR", this is ALWAYS a need_retry: required parameters (check-in/out, location) were missing or malformed.
- Other error codes (no availability, upstream timeout) are acceptable as-is.
- If the user gave a full date range and the result is empty with no error, or hotels are missing name/price, that's a need_retry.
- A booking result never completes a purchase directly — a secure URL for payment is expected, not raw card handling.

Respond with JSON:
{"validation_status": "pass"|"need_retry", "feedback_message": "...", "suggested_action": "..."}`

// NewHotelNode builds the hotel worker's feedback validator (spec §4.4),
// grounded on hotel_agent_feedback_node.py.
func NewHotelNode(client model.Client, routes WorkerRoutes) func(ctx context.Context, state *agentstate.AgentState) (agentstate.Delta, error) {
	return NewWorkerNode(client, WorkerSpec{Worker: agentstate.WorkerHotel, SystemPrompt: hotelSystemPrompt}, routes)
}
