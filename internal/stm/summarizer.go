package stm

import (
	"context"
	"strings"

	"github.com/holidai/agentcore/internal/model"
)

const summarizePrompt = `Condense the following travel-assistant conversation turns into a 3-4 line summary capturing the traveler's goals, constraints, and any decisions made. Do not invent details not present in the turns.`

// ModelSummarizer implements Summarizer by requesting the small model tier
// (model.ModelClassSmall); whether that tier is a different model from the
// planner/worker one depends on how the client is configured (spec §4.9).
type ModelSummarizer struct {
	Client model.Client
}

// NewModelSummarizer builds a Summarizer over client, requesting
// model.ModelClassSmall on every call.
func NewModelSummarizer(client model.Client) *ModelSummarizer {
	return &ModelSummarizer{Client: client}
}

func (s *ModelSummarizer) Summarize(ctx context.Context, messages []Message) (string, error) {
	var sb strings.Builder
	for _, m := range messages {
		sb.WriteString(m.Role)
		sb.WriteString(": ")
		sb.WriteString(m.Text)
		sb.WriteString("\n")
	}
	req := &model.Request{
		ModelClass:  model.ModelClassSmall,
		Temperature: 0.2,
		Messages: []model.Message{
			{Role: model.RoleSystem, Text: summarizePrompt},
			{Role: model.RoleUser, Text: sb.String()},
		},
	}
	resp, err := s.Client.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text), nil
}
