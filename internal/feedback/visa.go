package feedback

import (
	"context"

	"github.com/holidai/agentcore/internal/agentstate"
	"github.com/holidai/agentcore/internal/model"
)

const visaSystemPrompt = `You are a Visa Agent Feedback Validator that ensures visa requirement results meet quality standards.

- If error=true and error_code="VALIDATION_ERROR", this is ALWAYS a need_retry: nationality, leaving_from, or going_to was missing or unresolvable from the message.
- A clear requirement_text answer (even "visa on arrival" or "no visa required") is a pass.
- Other error codes (upstream timeout, country not covered) are acceptable as-is.

Respond with JSON:
{"validation_status": "pass"|"need_retry", "feedback_message": "...", "suggested_action": "..."}`

// NewVisaNode builds the visa worker's feedback validator (spec §4.4),
// grounded on visa_agent_feedback_node.py.
func NewVisaNode(client model.Client, routes WorkerRoutes) func(ctx context.Context, state *agentstate.AgentState) (agentstate.Delta, error) {
	return NewWorkerNode(client, WorkerSpec{Worker: agentstate.WorkerVisa, SystemPrompt: visaSystemPrompt}, routes)
}
