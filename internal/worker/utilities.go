package worker

import (
	"context"

	"github.com/holidai/agentcore/internal/agentstate"
	"github.com/holidai/agentcore/internal/model"
)

// UtilitiesTools is the utilities worker's tool allow-list (spec §4.3:
// holidays, weather, currency, date/time, eSIM bundles).
var UtilitiesTools = []string{
	"get_public_holidays",
	"get_weather",
	"convert_currency",
	"get_date_time",
	"search_esim_bundles",
}

const utilitiesSystemPrompt = `You are the Utilities Agent, a specialized worker for holidays, weather, currency conversion, date/time lookups, and eSIM bundles.

You may call more than one tool in a single pass when the request needs it (for example, holidays plus an eSIM bundle for the same trip). Only call tools the request actually needs.`

// NewUtilitiesNode builds the utilities worker node (spec §4.3, C6). It is
// the one worker with MultiCall set, per spec §4.3: "may call multiple tools
// in one pass (multiple_results=true)".
func NewUtilitiesNode(deps Deps) func(ctx context.Context, state *agentstate.AgentState) (agentstate.Delta, error) {
	return NewNode(Spec{
		Name:         agentstate.WorkerUtilities,
		SystemPrompt: utilitiesSystemPrompt,
		AllowedTools: UtilitiesTools,
		MultiCall:    true,
		ModelClass:   model.ModelClassDefault,
	}, deps)
}
