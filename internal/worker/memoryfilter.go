// Package worker implements the per-domain Worker Nodes (spec §4.3): flight,
// hotel, visa, tripadvisor, and utilities. Each follows the same template —
// filter memories, call the model with a domain-restricted tool allow-list,
// invoke the chosen tool, dedup against an already-satisfying result, write
// the result slot — generalized here into a single Spec-driven node
// constructor (worker.go) rather than one near-duplicate file per domain.
package worker

import "strings"

// relevanceKeywords buckets long-term memories by domain relevance, grounded
// on memory_filter.py's filter_memories_for_agent: each worker's prompt is
// enriched only with the memories that plausibly apply to it.
var relevanceKeywords = map[string][]string{
	"flight": {
		"flight", "airline", "morning", "evening", "departure", "arrival",
		"time", "prefers", "prefer", "seat", "class", "business", "economy",
		"direct", "layover", "stopover", "airport", "luggage", "baggage",
	},
	"hotel": {
		"hotel", "budget", "price", "star", "rating", "amenity", "amenities",
		"wifi", "pool", "gym", "breakfast", "location", "prefers", "prefer",
		"room", "suite", "pet", "parking", "beach", "city", "downtown",
	},
	"tripadvisor": {
		"restaurant", "food", "cuisine", "vegetarian", "vegan", "allergic",
		"allergy", "dietary", "diet", "prefers", "prefer", "meal", "dining",
		"attraction", "activity", "museum", "park", "beach", "tour",
	},
	"visa": {
		"visa", "passport", "nationality", "citizen", "citizenship", "country",
		"travel document", "entry", "requirement", "prefers", "prefer",
	},
	"utilities": {
		"currency", "weather", "temperature", "esim", "sim", "data", "holiday",
		"time", "timezone", "convert", "prefers", "prefer",
	},
}

// FilterMemories keeps only the memories plausibly relevant to agentType's
// domain (spec §4.3 step 1). An unrecognized agentType gets every memory
// unfiltered, matching the reference implementation's fallback.
func FilterMemories(memories []string, agentType string) []string {
	keywords, ok := relevanceKeywords[agentType]
	if !ok {
		return memories
	}
	var filtered []string
	for _, m := range memories {
		lower := strings.ToLower(m)
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				filtered = append(filtered, m)
				break
			}
		}
	}
	return filtered
}
