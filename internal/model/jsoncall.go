package model

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// CompleteJSON issues req with JSONMode forced on and unmarshals the
// response text into out. Every planner, feedback, and tool-calling worker
// node in this system asks the model for a single structured verdict (only
// the conversational worker asks for a free reply), so this helper
// centralizes the "ask for JSON, trim
// stray fences, decode" dance instead of repeating it per node.
func CompleteJSON(ctx context.Context, client Client, req *Request, out any) error {
	req.JSONMode = true
	resp, err := client.Complete(ctx, req)
	if err != nil {
		return fmt.Errorf("model: complete: %w", err)
	}
	text := extractJSONObject(resp.Text)
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("model: decode json response: %w (raw: %.200s)", err, resp.Text)
	}
	return nil
}

// extractJSONObject trims markdown code fences and leading/trailing
// narration some providers still emit even under JSON mode, keeping only
// the outermost {...} span.
func extractJSONObject(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return text
}
