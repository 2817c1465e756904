package rfi

import (
	"context"
	"strings"

	"github.com/holidai/agentcore/internal/agentstate"
	"github.com/holidai/agentcore/internal/ltm"
	"github.com/holidai/agentcore/internal/model"
)

const memoryAnalysisPrompt = `You analyze a single user message from a travel assistant conversation to decide whether it should change what is remembered about the user long-term.

Remember stable facts: preferences (aisle seat, budget airline, 5-star hotels), nationality, frequent destinations, dietary restrictions, loyalty programs. Do not remember one-off requests ("find flights to Paris tomorrow") or transient details (specific dates, specific flight numbers).

If the user is correcting or retracting a previously stated preference, treat it as an update (is_update=true, old_memory_text=<best guess at the prior fact's wording>) or a deletion (is_deletion=true, old_memory_text=<...>) rather than an addition.

Respond with JSON:
{"should_write_memory": true|false, "memory_to_write": "<fact text, third person, e.g. 'Prefers aisle seats'>", "importance": 1-5, "is_update": true|false, "is_deletion": true|false, "old_memory_text": "<only for update/deletion>"}`

type memoryAnalysis struct {
	ShouldWriteMemory bool   `json:"should_write_memory"`
	MemoryToWrite     string `json:"memory_to_write"`
	Importance        int    `json:"importance"`
	IsUpdate          bool   `json:"is_update"`
	IsDeletion        bool   `json:"is_deletion"`
	OldMemoryText     string `json:"old_memory_text"`
}

// deletionSimilarityThreshold is looser than the write-time dedup threshold
// (0.8) because a deletion reference is often paraphrased further from the
// original wording than a near-duplicate write would be (grounded on
// memory_node.py's own 0.7 vs 0.8 split between delete and store lookups).
const deletionSimilarityThreshold = 0.7

const memoryTopK = 5

// NewMemoryNode builds the combined retrieve/store node (spec §4.5 step 2).
// It analyzes the message for explicit memory-changing intent, stores,
// updates, or deletes a fact accordingly, then retrieves the top-K relevant
// facts for the (possibly just-written) message. Every sub-step is
// fail-soft: a failed analysis or write is skipped and retrieval still
// runs, and a failed retrieval degrades to an empty memory list, so none of
// them blocks the turn (spec §4.5: "analyzed by a small LLM call").
func NewMemoryNode(client model.Client, store *ltm.Store, nextRoute string) func(ctx context.Context, state *agentstate.AgentState) (agentstate.Delta, error) {
	return func(ctx context.Context, state *agentstate.AgentState) (agentstate.Delta, error) {
		if state.UserEmail == "" {
			return agentstate.Delta{
				agentstate.FieldRelevantMemories: []string{},
				agentstate.FieldRoute:            []string{nextRoute},
			}, nil
		}

		analysis, err := analyzeForMemory(ctx, client, state.UserMessage)
		if err == nil && analysis.ShouldWriteMemory && analysis.MemoryToWrite != "" {
			applyMemoryWrite(ctx, store, state.UserEmail, analysis)
		}

		memories, err := store.GetRelevant(ctx, state.UserEmail, state.UserMessage, memoryTopK)
		if err != nil {
			memories = []string{}
		}

		return agentstate.Delta{
			agentstate.FieldRelevantMemories: memories,
			agentstate.FieldRoute:            []string{nextRoute},
		}, nil
	}
}

func analyzeForMemory(ctx context.Context, client model.Client, userMessage string) (*memoryAnalysis, error) {
	req := &model.Request{
		ModelClass:  model.ModelClassSmall,
		Temperature: 0.1,
		Messages: []model.Message{
			{Role: model.RoleSystem, Text: memoryAnalysisPrompt},
			{Role: model.RoleUser, Text: userMessage},
		},
	}
	var analysis memoryAnalysis
	if err := model.CompleteJSON(ctx, client, req, &analysis); err != nil {
		return nil, err
	}
	return &analysis, nil
}

// applyMemoryWrite performs the store/update/delete decided by analysis,
// swallowing errors (spec §4.5/§7: memory writes are fail-soft — a write
// failure must not block retrieval or the rest of the turn).
func applyMemoryWrite(ctx context.Context, store *ltm.Store, userEmail string, analysis *memoryAnalysis) {
	switch {
	case analysis.IsDeletion && analysis.OldMemoryText != "":
		if existing, err := store.FindSimilar(ctx, userEmail, analysis.OldMemoryText, deletionSimilarityThreshold); err == nil && existing != nil {
			_ = store.Delete(ctx, userEmail, existing.ID)
		}
	case analysis.IsUpdate && analysis.OldMemoryText != "":
		importance := analysis.Importance
		_ = store.Update(ctx, userEmail, analysis.OldMemoryText, analysis.MemoryToWrite, &importance)
	default:
		// Store already prefers update over insert on a near-duplicate
		// (cosine >= 0.8), per spec §4.5.
		importance := analysis.Importance
		if importance == 0 {
			importance = 3
		}
		_ = store.Store(ctx, userEmail, strings.TrimSpace(analysis.MemoryToWrite), importance)
	}
}
