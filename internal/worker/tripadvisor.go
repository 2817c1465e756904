package worker

import (
	"context"

	"github.com/holidai/agentcore/internal/agentstate"
	"github.com/holidai/agentcore/internal/model"
)

// TripAdvisorTools is the tripadvisor worker's fifteen read-only
// search/detail tools (spec §4.3).
var TripAdvisorTools = []string{
	"search_locations",
	"search_restaurants",
	"search_attractions",
	"search_hotels_nearby",
	"get_location_details",
	"get_restaurant_details",
	"get_attraction_details",
	"get_location_photos",
	"get_location_reviews",
	"search_by_keyword",
	"search_nearby",
	"get_location_reviews_summary",
	"search_things_to_do",
	"get_restaurant_menu",
	"get_opening_hours",
}

const tripAdvisorSystemPrompt = `You are the TripAdvisor Agent, a specialized worker that searches for restaurants, attractions, and points of interest.

Use the search tools to find candidates by location and keyword, and the detail tools to enrich a specific result the user asked more about. Results can vary in structure — include whatever fields TripAdvisor returned without inventing missing ones.`

// NewTripAdvisorNode builds the tripadvisor worker node (spec §4.3, C6).
func NewTripAdvisorNode(deps Deps) func(ctx context.Context, state *agentstate.AgentState) (agentstate.Delta, error) {
	return NewNode(Spec{
		Name:         agentstate.WorkerTripAdvisor,
		SystemPrompt: tripAdvisorSystemPrompt,
		AllowedTools: TripAdvisorTools,
		ModelClass:   model.ModelClassDefault,
	}, deps)
}
