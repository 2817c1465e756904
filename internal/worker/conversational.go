package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/holidai/agentcore/internal/agentstate"
	"github.com/holidai/agentcore/internal/model"
	"github.com/holidai/agentcore/internal/stm"
)

const conversationalSystemPrompt = `You are the Conversational Agent, the final step that turns collected travel data into a natural-language reply.

FORMATTING RULES (mandatory):
1. Never show raw JSON, field names like "collected_info", or any JSON structure in your reply — the data below is for your reference only.
2. For each flight result, use its index as a placeholder in the form F1, F2, ... (one per flight, first occurrence only) instead of a URL; these are rewritten into booking links before the reply is sent. Never print a flight URL directly.
3. Never propose to book a hotel directly; if hotel booking intent is detected, say a secure booking link will be provided and let the caller append it.
4. For eSIM bundles, always render the purchase link as a markdown link: [Plan name]($link) style.
5. If the user asked to select from a previous list ("the cheapest one", "option 2"), respond with that single selection, not a re-listing of every option — use last_results below to resolve the reference.
6. Keep the reply conversational and concise; do not invent data not present in the collected information.`

// stmReader is the subset of stm.Store the responder needs, kept as an
// interface so tests can substitute a fake without a live Redis instance.
type stmReader interface {
	Get(ctx context.Context, sessionID string) (*stm.Record, error)
	SetTripPlanSummary(ctx context.Context, sessionID string, steps []stm.PlanStep) error
}

// NewConversationalNode builds the conversational worker (spec §4.3: it
// "consumes collected_info + memories + trip-plan summary + user message").
// Unlike the tool-calling workers it has no tool allow-list and always
// writes LastResponse, never a result slot.
func NewConversationalNode(client model.Client, stmStore stmReader) func(ctx context.Context, state *agentstate.AgentState) (agentstate.Delta, error) {
	return func(ctx context.Context, state *agentstate.AgentState) (agentstate.Delta, error) {
		var record *stm.Record
		if stmStore != nil && state.SessionID != "" {
			record, _ = stmStore.Get(ctx, state.SessionID)
		}

		var sb strings.Builder
		sb.WriteString(conversationalSystemPrompt)

		if len(state.RelevantMemories) > 0 {
			sb.WriteString("\n\nUser preferences:\n- ")
			sb.WriteString(strings.Join(state.RelevantMemories, "\n- "))
		}
		if state.FeedbackMessage != "" {
			sb.WriteString("\n\nThe previous draft was rejected for this reason — fix it: ")
			sb.WriteString(state.FeedbackMessage)
		}
		if state.AdvisoryMessage != "" {
			sb.WriteString("\n\nPrepend this advisory to your reply: ")
			sb.WriteString(state.AdvisoryMessage)
		}
		if record != nil && len(record.TripPlanSummary) > 0 {
			b, _ := json.Marshal(record.TripPlanSummary)
			sb.WriteString("\n\nCurrent trip plan (reference only):\n")
			sb.Write(b)
		}

		collected := collectedInfo(state)
		if record != nil && len(record.LastResults) > 0 {
			for k, v := range record.LastResults {
				if _, ok := collected[k]; !ok {
					collected[k] = v
				}
			}
			b, _ := json.Marshal(record.LastResults)
			sb.WriteString("\n\nlast_results from the previous turn (use to resolve back-references):\n")
			sb.Write(b)
		}
		if len(collected) > 0 {
			b, _ := json.Marshal(collected)
			sb.WriteString("\n\nCollected information for this turn (reference only, never shown verbatim):\n")
			sb.Write(b)
		}

		req := &model.Request{
			Temperature: 0.4,
			Messages: []model.Message{
				{Role: model.RoleSystem, Text: sb.String()},
				{Role: model.RoleUser, Text: state.UserMessage},
			},
		}
		resp, err := client.Complete(ctx, req)
		if err != nil {
			return agentstate.Delta{
				agentstate.FieldLastResponse: "I ran into a problem putting together a response. Please try again.",
			}, nil
		}

		return agentstate.Delta{
			agentstate.FieldLastResponse:    rewriteFlightPlaceholders(resp.Text, state.FlightResult),
			agentstate.FieldCollectedInfo:   collected,
			agentstate.FieldFeedbackMessage: agentstate.Clear{},
		}, nil
	}
}

// flightPlaceholder matches the F1, F2, ... tokens the conversational
// prompt is instructed to emit in place of a raw flight URL.
var flightPlaceholder = regexp.MustCompile(`\bF(\d+)\b`)

// rewriteFlightPlaceholders closes the placeholder contract rule 2 commits
// to: it walks the flight worker's raw tool data in the same outbound/return,
// in-list order the model was shown it in, and swaps each F<n> token for a
// markdown booking link to the nth flight's URL. A token with no
// corresponding flight (out of range, or the flight call errored) is left
// as-is rather than guessed at.
func rewriteFlightPlaceholders(text string, flightResult any) string {
	result, ok := flightResult.(*Result)
	if !ok || result == nil || result.Error {
		return text
	}
	urls := flightBookingURLs(result.Data)
	if len(urls) == 0 {
		return text
	}
	return flightPlaceholder.ReplaceAllStringFunc(text, func(match string) string {
		n, err := strconv.Atoi(match[1:])
		if err != nil || n < 1 || n > len(urls) {
			return match
		}
		return fmt.Sprintf("[Book flight %d](%s)", n, urls[n-1])
	})
}

// flightBookingURLs extracts one URL per flight option from the flight
// tool's decoded JSON, in "outbound" then "return" order (spec §4.3: "each
// result item carries ... optional booking or Google-Flights URLs, under
// outbound and, for round trips, return"). An option with neither URL
// populated is skipped, shifting later placeholders down — the model only
// numbers the flights it was actually shown a URL for.
func flightBookingURLs(data any) []string {
	m, ok := data.(map[string]any)
	if !ok {
		return nil
	}
	var urls []string
	for _, leg := range []string{"outbound", "return"} {
		items, ok := m[leg].([]any)
		if !ok {
			continue
		}
		for _, item := range items {
			option, ok := item.(map[string]any)
			if !ok {
				continue
			}
			for _, key := range []string{"booking_url", "google_flights_url", "url"} {
				if v, ok := option[key].(string); ok && v != "" {
					urls = append(urls, v)
					break
				}
			}
		}
	}
	return urls
}

// collectedInfo snapshots the populated worker result slots into the
// map the responder (and, after persistence, STM.LastResults) consumes
// (spec §3: "collected_info: {worker → result}; mirrors the slots").
func collectedInfo(state *agentstate.AgentState) map[string]any {
	out := map[string]any{}
	add := func(worker string, v any) {
		if v != nil {
			out[fmt.Sprintf("%s_result", worker)] = v
		}
	}
	add(agentstate.WorkerFlight, state.FlightResult)
	add(agentstate.WorkerHotel, state.HotelResult)
	add(agentstate.WorkerVisa, state.VisaResult)
	add(agentstate.WorkerTripAdvisor, state.TripAdvisorResult)
	add(agentstate.WorkerUtilities, state.UtilitiesResult)
	return out
}
