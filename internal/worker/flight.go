package worker

import (
	"context"

	"github.com/holidai/agentcore/internal/agentstate"
	"github.com/holidai/agentcore/internal/model"
)

// FlightTools is the flight worker's tool allow-list (spec §4.3: one-way,
// round-trip, and flexible ±N-day searches, grounded on
// flights/flight_agent_tools.py).
var FlightTools = []string{
	"search_flights_one_way",
	"search_flights_round_trip",
	"search_flights_flexible",
}

const flightSystemPrompt = `You are the Flight Agent, a specialized worker that searches for flights.

Use the available tools to search flights based on the user's origin, destination, dates, and trip type. search_flights_flexible accepts a date range of up to 7 days either side of the requested date when the user's dates are approximate.

Each result item carries airline, segments, total duration, price, and optional booking or Google-Flights URLs, under "outbound" and, for round trips, "return".

If the user did not provide enough information (origin, destination, or at least approximate dates), do not guess — report what is missing via missing_parameters instead of calling a tool.`

// NewFlightNode builds the flight worker node (spec §4.3, C6).
func NewFlightNode(deps Deps) func(ctx context.Context, state *agentstate.AgentState) (agentstate.Delta, error) {
	return NewNode(Spec{
		Name:         agentstate.WorkerFlight,
		SystemPrompt: flightSystemPrompt,
		AllowedTools: FlightTools,
		ModelClass:   model.ModelClassDefault,
	}, deps)
}
