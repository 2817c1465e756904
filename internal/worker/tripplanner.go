package worker

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/holidai/agentcore/internal/agentstate"
	"github.com/holidai/agentcore/internal/model"
	"github.com/holidai/agentcore/internal/stm"
	"github.com/holidai/agentcore/internal/tripplan"
)

// planIntentKeywords triggers the trip-plan worker on a user turn (grounded
// on trip_planner_node.py's ADD/UPDATE/DELETE/VIEW intent phrase list).
var planIntentKeywords = []string{
	"save", "select", "choose", "want", "like",
	"add to plan", "add to my plan",
	"remove", "delete", "cancel",
	"update", "change", "modify",
	"show my plan", "what's in my plan", "my plan", "travel plan",
}

// HasPlanIntent reports whether msg plausibly asks to mutate or view the
// trip plan, the cheap pre-check before invoking the LLM-backed worker.
func HasPlanIntent(msg string) bool {
	lower := strings.ToLower(msg)
	for _, kw := range planIntentKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// planDecision is the structured action the model chooses for this turn.
type planDecision struct {
	Action string `json:"action"` // "add", "update", "delete", "list", "none"
	Item   struct {
		Title     string         `json:"title"`
		Type      string         `json:"type"`
		Details   map[string]any `json:"details"`
		EventTime string         `json:"event_time"`
		Status    string         `json:"status"`
	} `json:"item"`
	TargetNormalizedKey string `json:"target_normalized_key,omitempty"`
	Message             string `json:"message"`
}

const tripPlannerSystemPrompt = `You are the Trip Planner Agent. You decide whether the user's message asks to add, update, delete, or list items in their saved trip plan, driven by selection language like "option 2", "the cheapest one", "instead of the hotel I picked", "remove the visa step", or "what's in my plan".

Resolve any ordinal or superlative reference ("option 2", "the cheapest") against the candidate results given below before deciding the item to act on. If the user is not asking about their saved plan at all, set action to "none".

Respond with JSON:
{"action": "add|update|delete|list|none", "item": {"title": "...", "type": "flight|hotel|visa|activity|esim|other", "details": {...}, "event_time": "ISO-8601 or empty", "status": "not_booked|booked|cancelled"}, "target_normalized_key": "<only for update/delete, if you can identify the existing item from context>", "message": "<one short sentence confirming the action, to surface to the user>"}`

// TripPlannerDeps are the trip-plan worker's collaborators: the Postgres
// store it mutates directly (not via toolclient — this worker talks to the
// system of record, not an external MCP tool) and the STM reader it uses to
// resolve "the cheapest one" against last turn's results.
type TripPlannerDeps struct {
	Model model.Client
	Store *tripplan.Store
	STM   stmReader
}

// NewTripPlannerNode builds the trip-plan worker (spec §4.3: "Planner
// worker: performs add/update/delete on the trip-plan store driven by the
// user's selection intent"), grounded on trip_planner_node.py. Unlike the
// other five domain workers it is never part of a planner-emitted execution
// step; it runs once the intent keywords fire, independent of the parallel
// worker graph (spec §4.6: "never part of a plan").
func NewTripPlannerNode(deps TripPlannerDeps) func(ctx context.Context, state *agentstate.AgentState) (agentstate.Delta, error) {
	return func(ctx context.Context, state *agentstate.AgentState) (agentstate.Delta, error) {
		if state.UserEmail == "" || state.SessionID == "" {
			// Spec §4.3: both identifiers are required or the worker is skipped
			// entirely rather than guessing a session-less write.
			return agentstate.Delta{}, nil
		}
		if !HasPlanIntent(state.UserMessage) {
			return agentstate.Delta{}, nil
		}

		candidates := collectedInfo(state)
		var record *stm.Record
		if deps.STM != nil {
			record, _ = deps.STM.Get(ctx, state.SessionID)
			if record != nil {
				for k, v := range record.LastResults {
					if _, ok := candidates[k]; !ok {
						candidates[k] = v
					}
				}
			}
		}

		existingItems, err := deps.Store.List(ctx, state.UserEmail, state.SessionID)
		if err != nil {
			// Fail open: a store read failure should not block the turn, it
			// just means "update"/"delete" can't resolve a target key.
			existingItems = nil
		}

		decision, err := decidePlanAction(ctx, deps.Model, state, candidates, existingItems, record)
		if err != nil {
			return agentstate.Delta{
				agentstate.FieldAdvisoryMessage: "I couldn't update your trip plan just now.",
			}, nil
		}

		switch decision.Action {
		case "add", "update":
			item := tripplan.Item{
				Email:     state.UserEmail,
				SessionID: state.SessionID,
				Title:     decision.Item.Title,
				Type:      decision.Item.Type,
				Details:   decision.Item.Details,
				EventTime: decision.Item.EventTime,
				Status:    decision.Item.Status,
			}
			if decision.TargetNormalizedKey != "" {
				item.NormalizedKey = decision.TargetNormalizedKey
			}
			if err := deps.Store.Upsert(ctx, item); err != nil {
				return agentstate.Delta{
					agentstate.FieldAdvisoryMessage: "I couldn't save that to your trip plan.",
				}, nil
			}
		case "delete":
			if decision.TargetNormalizedKey != "" {
				_ = deps.Store.DeleteItem(ctx, state.UserEmail, state.SessionID, decision.TargetNormalizedKey)
			}
		case "list", "none":
			// No mutation; "list" surfaces the plan via AdvisoryMessage below,
			// "none" means the pre-check keyword matched but the model found no
			// actual plan intent once it saw the full message.
		}

		delta := agentstate.Delta{
			agentstate.FieldAgentsCalled: append(append([]string(nil), state.AgentsCalled...), agentstate.WorkerPlanner),
		}
		if decision.Message != "" {
			delta[agentstate.FieldAdvisoryMessage] = decision.Message
		}
		if decision.Action == "list" {
			items, err := deps.Store.List(ctx, state.UserEmail, state.SessionID)
			if err == nil {
				b, _ := json.Marshal(items)
				delta[agentstate.FieldAdvisoryMessage] = decision.Message + " " + string(b)
			}
		}
		if deps.STM != nil {
			steps := make([]stm.PlanStep, 0)
			items, err := deps.Store.List(ctx, state.UserEmail, state.SessionID)
			if err == nil {
				for _, it := range items {
					steps = append(steps, stm.PlanStep{
						ID: it.NormalizedKey, Type: it.Type, Title: it.Title,
						EventTime: it.EventTime, Status: it.Status,
					})
				}
				_ = deps.STM.SetTripPlanSummary(ctx, state.SessionID, steps)
			}
		}
		return delta, nil
	}
}

func decidePlanAction(ctx context.Context, client model.Client, state *agentstate.AgentState, candidates map[string]any, existing []tripplan.Item, record *stm.Record) (*planDecision, error) {
	var sb strings.Builder
	sb.WriteString(tripPlannerSystemPrompt)

	if len(candidates) > 0 {
		b, _ := json.Marshal(candidates)
		sb.WriteString("\n\nCandidate results from this conversation (resolve selections against these):\n")
		sb.Write(b)
	}
	if len(existing) > 0 {
		b, _ := json.Marshal(existing)
		sb.WriteString("\n\nExisting saved trip-plan items (for update/delete target resolution):\n")
		sb.Write(b)
	}
	if record != nil && record.Summary != "" {
		sb.WriteString("\n\nConversation summary: ")
		sb.WriteString(record.Summary)
	}

	req := &model.Request{
		Temperature: 0.1,
		Messages: []model.Message{
			{Role: model.RoleSystem, Text: sb.String()},
			{Role: model.RoleUser, Text: state.UserMessage},
		},
	}
	var decision planDecision
	if err := model.CompleteJSON(ctx, client, req, &decision); err != nil {
		return nil, err
	}
	return &decision, nil
}
