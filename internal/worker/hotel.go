package worker

import (
	"context"

	"github.com/holidai/agentcore/internal/agentstate"
	"github.com/holidai/agentcore/internal/model"
)

// HotelTools is the hotel worker's tool allow-list (spec §4.3: listing,
// priced rates, details, and a booking mutation never initiated from chat).
var HotelTools = []string{
	"list_hotels",
	"get_hotel_rates",
	"get_hotel_details",
	"book_hotel",
}

const hotelSystemPrompt = `You are the Hotel Agent, a specialized worker that searches for and prices hotels.

list_hotels returns options without price. get_hotel_rates requires check-in and check-out dates and returns priced rates. get_hotel_details returns amenities and policies for a specific property.

Never call book_hotel from a chat turn: booking requires PCI payment fields the conversational layer collects through a secure URL, not through this worker. If the user asks to book, select list_hotels or get_hotel_rates instead and let the response layer hand back a booking link.

If check-in/check-out dates are missing, prefer list_hotels over guessing dates.`

// NewHotelNode builds the hotel worker node (spec §4.3, C6).
func NewHotelNode(deps Deps) func(ctx context.Context, state *agentstate.AgentState) (agentstate.Delta, error) {
	return NewNode(Spec{
		Name:         agentstate.WorkerHotel,
		SystemPrompt: hotelSystemPrompt,
		AllowedTools: HotelTools,
		ModelClass:   model.ModelClassDefault,
	}, deps)
}
