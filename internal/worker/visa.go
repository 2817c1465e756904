package worker

import (
	"context"

	"github.com/holidai/agentcore/internal/agentstate"
	"github.com/holidai/agentcore/internal/model"
)

// VisaTools is the visa worker's single tool (spec §4.3: "single tool
// (nationality, leaving_from, going_to) → requirement_text; deduplicates
// on the triple"), grounded on visa/visa_agent_node.py.
var VisaTools = []string{"get_traveldoc_requirement"}

const visaSystemPrompt = `You are the Visa Agent, a specialized worker that checks visa and travel-document requirements.

Call get_traveldoc_requirement with nationality, leaving_from, and going_to determined from the user's message and, when present, their stored nationality preference. Always attempt the call unless the traveler's nationality truly cannot be determined from the message or memories.`

// NewVisaNode builds the visa worker node (spec §4.3, C6).
func NewVisaNode(deps Deps) func(ctx context.Context, state *agentstate.AgentState) (agentstate.Delta, error) {
	return NewNode(Spec{
		Name:         agentstate.WorkerVisa,
		SystemPrompt: visaSystemPrompt,
		AllowedTools: VisaTools,
		ModelClass:   model.ModelClassDefault,
	}, deps)
}
