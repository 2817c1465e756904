package feedback

import (
	"context"
	"strings"

	"github.com/holidai/agentcore/internal/agentstate"
	"github.com/holidai/agentcore/internal/model"
)

const responseSystemPrompt = `You are a Feedback Validator that ensures the final reply to the user meets quality standards before it is sent.

VALIDATION RULES:
1. Completeness: the reply should address the user's request and reflect the collected data provided below; no critical result (flights, hotels, visa info) should be silently dropped.
2. Presentation: no raw JSON or field names should leak into the reply; eSIM links must be markdown links; flight links must be placeholders (F1, F2, ...), never raw URLs.
3. Accuracy: prices, dates, and names in the reply must not contradict the collected data.
4. Tone: conversational and helpful, not a data dump.

Respond with JSON:
{"validation_status": "pass"|"need_regenerate", "feedback_message": "explanation of the issue, if any"}`

type responseVerdict struct {
	Status          string `json:"validation_status"`
	FeedbackMessage string `json:"feedback_message"`
}

// sampleDraft mirrors conversational_agent_feedback_node.py's behavior of
// judging only head+tail of long drafts rather than the full text: a draft
// over 2,500 runes is sampled down to its first 2,000 and last 500 runes
// with a truncation marker in between (spec §9 open question, resolved for
// parity with the legacy validator rather than a structural check).
func sampleDraft(draft string) string {
	runes := []rune(draft)
	if len(runes) <= 2500 {
		return draft
	}
	return string(runes[:2000]) + "\n...[truncated]...\n" + string(runes[len(runes)-500:])
}

// ResponseRoutes names where the final-response validator sends the turn:
// Next on pass (persistence), Conversational on need_regenerate.
type ResponseRoutes struct {
	Next           string
	Conversational string
}

// NewResponseNode builds the third graph-level validator (spec §4.4),
// grounded on conversational_agent_feedback_node.py. On need_regenerate it
// clears last_response and routes back to the conversational worker.
func NewResponseNode(client model.Client, routes ResponseRoutes) func(ctx context.Context, state *agentstate.AgentState) (agentstate.Delta, error) {
	return func(ctx context.Context, state *agentstate.AgentState) (agentstate.Delta, error) {
		if state.ConversationalFeedbackRetryCount >= agentstate.MaxFeedbackRetries {
			return agentstate.Delta{
				agentstate.FieldConversationalFeedbackRetryCount: state.ConversationalFeedbackRetryCount + 1,
				agentstate.FieldRoute:                             []string{routes.Next},
			}, nil
		}
		if state.LastResponse == "" {
			return agentstate.Delta{agentstate.FieldRoute: []string{routes.Next}}, nil
		}

		var sb strings.Builder
		sb.WriteString("User's request: ")
		sb.WriteString(state.UserMessage)
		sb.WriteString("\n\nDraft reply to validate:\n")
		sb.WriteString(sampleDraft(state.LastResponse))

		req := &model.Request{
			Temperature: 0.3,
			Messages: []model.Message{
				{Role: model.RoleSystem, Text: responseSystemPrompt},
				{Role: model.RoleUser, Text: sb.String()},
			},
		}
		var v responseVerdict
		if err := model.CompleteJSON(ctx, client, req, &v); err != nil {
			return agentstate.Delta{
				agentstate.FieldConversationalFeedbackRetryCount: state.ConversationalFeedbackRetryCount + 1,
				agentstate.FieldRoute:                             []string{routes.Next},
			}, nil
		}

		if v.Status == "need_regenerate" {
			return agentstate.Delta{
				agentstate.FieldLastResponse:                      agentstate.Clear{},
				agentstate.FieldFeedbackMessage:                    v.FeedbackMessage,
				agentstate.FieldConversationalFeedbackRetryCount:   state.ConversationalFeedbackRetryCount + 1,
				agentstate.FieldRoute:                              []string{routes.Conversational},
			}, nil
		}

		return agentstate.Delta{
			agentstate.FieldConversationalFeedbackRetryCount: 0,
			agentstate.FieldFeedbackMessage:                   agentstate.Clear{},
			agentstate.FieldRoute:                              []string{routes.Next},
		}, nil
	}
}
