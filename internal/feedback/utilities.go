package feedback

import (
	"context"

	"github.com/holidai/agentcore/internal/agentstate"
	"github.com/holidai/agentcore/internal/model"
)

const utilitiesSystemPrompt = `You are a Utilities Agent Feedback Validator that ensures weather/currency/date-time/eSIM/holiday results meet quality standards.

- The result may contain a "calls" array with one entry per tool invoked in this pass — check each one individually; one call failing with VALIDATION_ERROR does not invalidate the others.
- Any call with error=true and error_code="VALIDATION_ERROR" is a need_retry: a required parameter (country, location, currency code) was missing or malformed.
- Other error codes on individual calls (upstream timeout, unsupported country) are acceptable as-is.
- A currency conversion that lacks a source amount to convert is a need_retry only if the user actually asked for conversion and supplied or implied a price.

Respond with JSON:
{"validation_status": "pass"|"need_retry", "feedback_message": "...", "suggested_action": "..."}`

// NewUtilitiesNode builds the utilities worker's feedback validator (spec
// §4.4), grounded on a generalized reading of the domain validators (no
// dedicated utilities_agent_feedback_node.py file exists in the reference
// source; this follows the same contract as the other four).
func NewUtilitiesNode(client model.Client, routes WorkerRoutes) func(ctx context.Context, state *agentstate.AgentState) (agentstate.Delta, error) {
	return NewWorkerNode(client, WorkerSpec{Worker: agentstate.WorkerUtilities, SystemPrompt: utilitiesSystemPrompt}, routes)
}
