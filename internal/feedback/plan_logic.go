package feedback

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/holidai/agentcore/internal/agentstate"
	"github.com/holidai/agentcore/internal/model"
)

const planLogicSystemPrompt = `You are a Feedback Validator that checks whether an execution plan is LOGICAL before it runs. You do not check for missing user information — each worker handles that itself.

VALIDATION RULES (plan logic only):
1. If the user wants to avoid holidays, a holidays lookup must come before the booking step it protects.
2. Currency conversion must come after the step that produces the price being converted.
3. If a city/location search feeds a booking step, the search must come first.
4. Independent tasks may share a step; dependent tasks must be in separate, ordered steps.

Respond with JSON:
{"validation_status": "pass"|"need_plan_fix", "feedback_message": "explanation of the issue, if any"}`

type planLogicVerdict struct {
	Status          string `json:"validation_status"`
	FeedbackMessage string `json:"feedback_message"`
}

// PlanLogicRoutes names where the plan-logic validator sends the turn:
// Next on pass (the plan-structure validator), Planner on need_plan_fix
// (back to the planner with the plan cleared and the reason attached).
type PlanLogicRoutes struct {
	Next    string
	Planner string
}

// NewPlanLogicNode builds the first graph-level validator (spec §4.4),
// grounded on feedback_node.py. At MAX_FEEDBACK_RETRIES it force-passes.
func NewPlanLogicNode(client model.Client, routes PlanLogicRoutes) func(ctx context.Context, state *agentstate.AgentState) (agentstate.Delta, error) {
	return func(ctx context.Context, state *agentstate.AgentState) (agentstate.Delta, error) {
		if state.FeedbackRetryCount >= agentstate.MaxFeedbackRetries {
			return agentstate.Delta{
				agentstate.FieldFeedbackRetryCount: state.FeedbackRetryCount + 1,
				agentstate.FieldRoute:              []string{routes.Next},
			}, nil
		}

		b, _ := json.Marshal(state.ExecutionPlan)
		var sb strings.Builder
		sb.WriteString("User's request: ")
		sb.WriteString(state.UserMessage)
		sb.WriteString("\n\nValidate this execution plan:\n")
		sb.Write(b)

		req := &model.Request{
			Temperature: 0.3,
			Messages: []model.Message{
				{Role: model.RoleSystem, Text: planLogicSystemPrompt},
				{Role: model.RoleUser, Text: sb.String()},
			},
		}
		var v planLogicVerdict
		if err := model.CompleteJSON(ctx, client, req, &v); err != nil {
			// On error, proceed to avoid blocking (spec §7).
			return agentstate.Delta{
				agentstate.FieldFeedbackRetryCount: state.FeedbackRetryCount + 1,
				agentstate.FieldFeedbackMessage:     agentstate.Clear{},
				agentstate.FieldRoute:               []string{routes.Next},
			}, nil
		}

		if v.Status == "need_plan_fix" {
			return agentstate.Delta{
				agentstate.FieldExecutionPlan:       []agentstate.Step{},
				agentstate.FieldFeedbackMessage:      v.FeedbackMessage,
				agentstate.FieldFeedbackRetryCount:   state.FeedbackRetryCount + 1,
				agentstate.FieldRoute:                []string{routes.Planner},
			}, nil
		}

		return agentstate.Delta{
			agentstate.FieldFeedbackMessage:     agentstate.Clear{},
			agentstate.FieldFeedbackRetryCount:   0,
			agentstate.FieldRoute:                []string{routes.Next},
		}, nil
	}
}
