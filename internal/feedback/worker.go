// Package feedback implements the bounded-retry validator nodes (spec
// §4.4, C7): one per domain worker plus three graph-level validators (plan
// logic, plan structure, final response), grounded on feedback_node.py,
// plan_executor_feedback_node.py, conversational_agent_feedback_node.py,
// and the five per-domain *_agent_feedback_node.py files.
package feedback

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/holidai/agentcore/internal/agentstate"
	"github.com/holidai/agentcore/internal/model"
)

// verdict is the shape a domain validator's LLM call returns (spec §4.4:
// "{status, feedback_message, suggested_action}"), with status pass or
// need_retry. The three graph-level validators decode into their own
// verdict types (planLogicVerdict, planStructureVerdict, responseVerdict).
type verdict struct {
	Status           string `json:"validation_status"`
	FeedbackMessage  string `json:"feedback_message"`
	SuggestedAction  string `json:"suggested_action"`
}

// WorkerSpec configures one domain worker's validator. All five domain
// validators (flight, hotel, visa, tripadvisor, utilities) share the same
// need_retry/pass contract and only differ in their system prompt's
// domain-specific quality checks, so one constructor parameterizes all
// five rather than five near-duplicate files (spec §4.4's "common
// contract" plus per-domain notes in §4.3).
type WorkerSpec struct {
	Worker       string
	SystemPrompt string
}

// NewWorkerNode builds a domain worker's feedback validator (spec §4.4):
// on need_retry it nulls the worker's own result slot, stashes the
// feedback message for the worker to read on its next attempt, and routes
// directly back to the worker (bypassing the dispatcher, so current_step
// is not re-advanced). At MAX_FEEDBACK_RETRIES it force-passes to
// guarantee progress.
func NewWorkerNode(client model.Client, spec WorkerSpec, routes WorkerRoutes) func(ctx context.Context, state *agentstate.AgentState) (agentstate.Delta, error) {
	return func(ctx context.Context, state *agentstate.AgentState) (agentstate.Delta, error) {
		retries := state.WorkerFeedbackRetryCount(spec.Worker)
		retryField := agentstate.WorkerFeedbackRetryField(spec.Worker)
		result := state.ResultSlot(spec.Worker)

		if retries >= agentstate.MaxFeedbackRetries {
			return agentstate.Delta{
				retryField:                      retries + 1,
				agentstate.FieldFeedbackMessage: agentstate.Clear{},
				agentstate.FieldRoute:            []string{routes.Next},
			}, nil
		}
		if result == nil {
			// Nothing to validate yet (the plan never called this worker this
			// step); pass through without touching the retry counter.
			return agentstate.Delta{agentstate.FieldRoute: []string{routes.Next}}, nil
		}

		if envelope, ok := resultValidationError(result); ok {
			msg := "Tool validation error: " + envelope.ErrorMessage
			if envelope.Suggestion != "" {
				msg += "\n\nSuggestion: " + envelope.Suggestion
			}
			return agentstate.Delta{
				agentstate.WorkerResultField(spec.Worker): agentstate.Clear{},
				agentstate.FieldFeedbackMessage:            msg,
				retryField:                                 retries + 1,
				agentstate.FieldRoute:                       []string{routes.Worker},
			}, nil
		}

		v, err := classify(ctx, client, spec.SystemPrompt, result)
		if err != nil {
			// On error, accept results to avoid blocking (spec §7).
			return agentstate.Delta{
				retryField:                      retries + 1,
				agentstate.FieldFeedbackMessage: agentstate.Clear{},
				agentstate.FieldRoute:            []string{routes.Next},
			}, nil
		}

		if v.Status == "need_retry" {
			msg := v.FeedbackMessage
			if v.SuggestedAction != "" {
				msg += "\n\n" + v.SuggestedAction
			}
			return agentstate.Delta{
				agentstate.WorkerResultField(spec.Worker): agentstate.Clear{},
				agentstate.FieldFeedbackMessage:            msg,
				retryField:                                 retries + 1,
				agentstate.FieldRoute:                       []string{routes.Worker},
			}, nil
		}

		return agentstate.Delta{
			retryField:                      0,
			agentstate.FieldFeedbackMessage: agentstate.Clear{},
			agentstate.FieldRoute:            []string{routes.Next},
		}, nil
	}
}

// WorkerRoutes names where a domain validator sends the turn: Worker on
// need_retry (straight back to the worker node, spec §4.4: "not through the
// dispatcher"), Next (the dispatcher's join result, or another validator)
// on pass.
type WorkerRoutes struct {
	Worker string
	Next   string
}

type errorEnvelopeView struct {
	Error        bool   `json:"error"`
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
	Suggestion   string `json:"suggestion"`
}

// resultValidationError inspects a worker.Result-shaped value without
// importing the worker package (feedback sits above worker in the
// dependency graph; the reverse import would cycle). It decodes via JSON
// since every worker result marshals to the same envelope shape.
func resultValidationError(result any) (errorEnvelopeView, bool) {
	b, err := json.Marshal(result)
	if err != nil {
		return errorEnvelopeView{}, false
	}
	var env errorEnvelopeView
	if err := json.Unmarshal(b, &env); err != nil {
		return errorEnvelopeView{}, false
	}
	if env.Error && env.ErrorCode == agentstate.ErrCodeValidation {
		return env, true
	}
	return errorEnvelopeView{}, false
}

func classify(ctx context.Context, client model.Client, systemPrompt string, result any) (*verdict, error) {
	b, _ := json.Marshal(result)
	var sb strings.Builder
	sb.WriteString("Validate this result:\n\n")
	sb.Write(b)

	req := &model.Request{
		Temperature: 0.3,
		Messages: []model.Message{
			{Role: model.RoleSystem, Text: systemPrompt},
			{Role: model.RoleUser, Text: sb.String()},
		},
	}
	var v verdict
	if err := model.CompleteJSON(ctx, client, req, &v); err != nil {
		return nil, err
	}
	return &v, nil
}
