// Package rfi implements the PII / Memory / RFI pipeline (spec §4.5, C8):
// three sequential single-node validators that run between the graph
// scheduler's entry point and the planner — redacting personal data,
// folding in long-term memory, and gating on safety, scope, and logical
// completeness before any worker is invoked.
package rfi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/holidai/agentcore/internal/agentstate"
)

const piiRedactionPrompt = `You are a data-sanitization layer for an AI travel agent.

Your job is to remove ONLY confidential personal information and replace it with placeholders, while keeping all travel-relevant details intact.

YOU MUST REMOVE (replace with placeholders like <NAME_1>, <EMAIL_1>, <PHONE_1>, <ADDRESS_1>, <ID_1>):
full names, email addresses, phone numbers, exact street addresses, passport/national ID/account/booking/receipt numbers, credit card or other financial details, API keys or tokens, any unique personal identifier.

YOU MUST KEEP: countries, cities, airports, airlines, hotel names, dates and times, durations, budgets, nationalities, number of travelers, travel preferences, activities/interests/trip types.

Do not remove or hide geographic/travel info. Do not invent new details. Do not rewrite meaning beyond sanitizing the personal parts. Return the same message, with confidential data replaced by placeholders.`

// piiClient is the transport to the local redaction model endpoint, kept as
// an interface so tests substitute a fake without a network call.
type piiClient interface {
	Chat(ctx context.Context, systemPrompt, userMessage string) (string, error)
}

// HTTPPIIClient talks to a local chat-style endpoint (spec §6: "PII model
// (outbound): chat-style endpoint taking {model, messages, stream:false};
// parses either OpenAI- or Ollama-shaped responses"). The transport is the
// same retryablehttp client toolclient uses for tool calls: the redaction
// model runs on the same flaky local network path, and a dropped connection
// shouldn't fail the turn open on the first hiccup when a couple of quick
// retries would recover it.
type HTTPPIIClient struct {
	BaseURL string
	Model   string
	HTTP    *retryablehttp.Client
}

// NewHTTPPIIClient builds an HTTPPIIClient with a 30s timeout and 2 retries,
// matching the reference endpoint's own client timeout while staying well
// inside the PII node's fail-open budget.
func NewHTTPPIIClient(baseURL, model string) *HTTPPIIClient {
	hc := retryablehttp.NewClient()
	hc.RetryMax = 2
	hc.RetryWaitMin = 200 * time.Millisecond
	hc.RetryWaitMax = 400 * time.Millisecond
	hc.Logger = nil
	hc.HTTPClient.Timeout = 30 * time.Second
	return &HTTPPIIClient{
		BaseURL: baseURL,
		Model:   model,
		HTTP:    hc,
	}
}

func (c *HTTPPIIClient) Chat(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	payload := map[string]any{
		"model": c.Model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userMessage},
		},
		"stream": false,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("pii endpoint: status %d", resp.StatusCode)
	}

	var decoded struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Content string `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", err
	}

	if len(decoded.Choices) > 0 && decoded.Choices[0].Message.Content != "" {
		return strings.TrimSpace(decoded.Choices[0].Message.Content), nil
	}
	if decoded.Message.Content != "" {
		return strings.TrimSpace(decoded.Message.Content), nil
	}
	if decoded.Content != "" {
		return strings.TrimSpace(decoded.Content), nil
	}
	return "", fmt.Errorf("pii endpoint: could not extract sanitized message from response")
}

// NewPIIRedactorNode builds the PII redaction node (spec §4.5 step 1): it
// sends the raw message to a local small-model endpoint and rewrites
// user_message with the sanitized text. On timeout or error it fails open,
// passing the original message through unchanged rather than blocking the
// turn.
func NewPIIRedactorNode(client piiClient, nextRoute string) func(ctx context.Context, state *agentstate.AgentState) (agentstate.Delta, error) {
	return func(ctx context.Context, state *agentstate.AgentState) (agentstate.Delta, error) {
		if state.UserMessage == "" {
			return agentstate.Delta{agentstate.FieldRoute: []string{nextRoute}}, nil
		}
		sanitized, err := client.Chat(ctx, piiRedactionPrompt, state.UserMessage)
		if err != nil || sanitized == "" {
			return agentstate.Delta{agentstate.FieldRoute: []string{nextRoute}}, nil
		}
		return agentstate.Delta{
			agentstate.FieldUserMessage: sanitized,
			agentstate.FieldRoute:       []string{nextRoute},
		}, nil
	}
}
