// Package model defines the provider-agnostic LLM request/response contract
// used by the planner, workers, and feedback nodes. It is deliberately
// narrower than a full multimodal/tool-calling transcript type: every node
// in this system issues single-turn text completions (optionally
// constrained to JSON output) and never streams partial output back to a
// caller mid-turn.
package model

import (
	"context"
	"errors"
)

// Role is the speaker of a message in a completion request.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ModelClass selects a model tier when Request.Model is unset, so callers
// can ask for "the cheap model" or "the strong model" without hardcoding a
// provider-specific identifier (STM summarization and memory analysis ask
// for ModelClassSmall).
type ModelClass string

const (
	ModelClassDefault ModelClass = ""
	ModelClassSmall   ModelClass = "small"
)

// Message is one turn in the prompt.
type Message struct {
	Role Role
	Text string
}

// Request is a single-turn completion request.
type Request struct {
	Model       string
	ModelClass  ModelClass
	Messages    []Message
	MaxTokens   int
	Temperature float64
	// JSONMode requests the provider constrain output to valid JSON, used by
	// the planner (execution plan) and feedback nodes (validation verdict).
	JSONMode bool
}

// Response is a single-turn completion result.
type Response struct {
	Text string
	// StopReason is provider-specific ("end_turn", "max_tokens", ...),
	// surfaced for logging rather than branching logic.
	StopReason string
}

// ErrRateLimited is returned by Client.Complete when the provider reports a
// rate-limit response, so callers can distinguish it from other failures
// for retry/backoff decisions.
var ErrRateLimited = errors.New("model: rate limited")

// Client completes a single-turn request against a specific LLM provider.
type Client interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
}
