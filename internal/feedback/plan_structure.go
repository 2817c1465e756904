package feedback

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/holidai/agentcore/internal/agentstate"
	"github.com/holidai/agentcore/internal/model"
)

const planStructureSystemPrompt = `You are a Feedback Validator that checks an execution plan's STRUCTURE, independent of whether its logic is sound (a separate validator already checked that).

VALIDATION RULES:
1. Every step must have a step_number and a non-empty agents array.
2. Every agent name must be one of: flight, hotel, visa, tripadvisor, utilities. trip_plan and conversational must never appear — they are wired automatically after the plan finishes.
3. Step numbers should be sequential starting at 1.

Respond with JSON:
{"validation_status": "pass"|"need_fix", "feedback_message": "explanation of the issue, if any", "suggested_fix": "..."}`

type planStructureVerdict struct {
	Status          string `json:"validation_status"`
	FeedbackMessage string `json:"feedback_message"`
	SuggestedFix    string `json:"suggested_fix"`
}

// PlanStructureRoutes names where the plan-structure validator sends the
// turn: Next on pass (the plan executor), Planner on need_fix.
type PlanStructureRoutes struct {
	Next    string
	Planner string
}

// NewPlanStructureNode builds the second graph-level validator (spec
// §4.4), grounded on plan_executor_feedback_node.py.
func NewPlanStructureNode(client model.Client, routes PlanStructureRoutes) func(ctx context.Context, state *agentstate.AgentState) (agentstate.Delta, error) {
	return func(ctx context.Context, state *agentstate.AgentState) (agentstate.Delta, error) {
		if state.PlanExecutorRetryCount >= agentstate.MaxFeedbackRetries {
			return agentstate.Delta{
				agentstate.FieldPlanExecutorRetryCount: state.PlanExecutorRetryCount + 1,
				agentstate.FieldRoute:                  []string{routes.Next},
			}, nil
		}
		if structurallyValid(state.ExecutionPlan) {
			return agentstate.Delta{
				agentstate.FieldPlanExecutorRetryCount: 0,
				agentstate.FieldRoute:                  []string{routes.Next},
			}, nil
		}

		b, _ := json.Marshal(state.ExecutionPlan)
		var sb strings.Builder
		sb.WriteString("Validate this execution plan's structure:\n")
		sb.Write(b)

		req := &model.Request{
			Temperature: 0.2,
			Messages: []model.Message{
				{Role: model.RoleSystem, Text: planStructureSystemPrompt},
				{Role: model.RoleUser, Text: sb.String()},
			},
		}
		var v planStructureVerdict
		if err := model.CompleteJSON(ctx, client, req, &v); err != nil {
			return agentstate.Delta{
				agentstate.FieldPlanExecutorRetryCount: state.PlanExecutorRetryCount + 1,
				agentstate.FieldRoute:                  []string{routes.Next},
			}, nil
		}

		if v.Status == "need_fix" {
			msg := v.FeedbackMessage
			if v.SuggestedFix != "" {
				msg += "\n\n" + v.SuggestedFix
			}
			return agentstate.Delta{
				agentstate.FieldExecutionPlan:          []agentstate.Step{},
				agentstate.FieldFeedbackMessage:          msg,
				agentstate.FieldPlanExecutorRetryCount:   state.PlanExecutorRetryCount + 1,
				agentstate.FieldRoute:                    []string{routes.Planner},
			}, nil
		}

		return agentstate.Delta{
			agentstate.FieldPlanExecutorRetryCount: 0,
			agentstate.FieldRoute:                  []string{routes.Next},
		}, nil
	}
}

// structurallyValid performs the cheap, purely mechanical checks in Go
// directly rather than spending an LLM call on them: non-empty agents,
// known agent names, sequential numbering. Only a genuinely malformed plan
// reaches the LLM-backed check above.
func structurallyValid(plan []agentstate.Step) bool {
	known := map[string]bool{
		agentstate.WorkerFlight: true, agentstate.WorkerHotel: true,
		agentstate.WorkerVisa: true, agentstate.WorkerTripAdvisor: true,
		agentstate.WorkerUtilities: true,
	}
	for i, step := range plan {
		if step.Number != i+1 || len(step.Agents) == 0 {
			return false
		}
		for _, a := range step.Agents {
			if !known[a] {
				return false
			}
		}
	}
	return true
}
