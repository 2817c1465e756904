// Package toolclient is a permissioned RPC facade over the external tool
// registry workers call into (flights, hotels, visas, trip advisor listings,
// currency/weather utilities). It enforces a per-agent allow-list before any
// call reaches the wire, and retries connection-class failures with bounded
// backoff (spec §4/§5: per-tool deadline 60s, retry budget, transparent pool
// recreation on detected breakage).
package toolclient

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
	"github.com/holidai/agentcore/internal/toolerrors"
)

// CallRequest describes a single tool invocation.
type CallRequest struct {
	Tool    string
	Payload json.RawMessage
}

// CallResponse captures a tool's JSON result.
type CallResponse struct {
	Result json.RawMessage
}

// Caller is the transport-agnostic contract workers invoke tools through.
type Caller interface {
	CallTool(ctx context.Context, agent string, req CallRequest) (CallResponse, error)
	ListTools(ctx context.Context, agent string) ([]string, error)
}

// Registry maps an agent name to the tool names it is permitted to call
// (spec §4: allow-list enforcement is per calling agent, not global).
type Registry map[string][]string

// Allowed reports whether agent may call tool.
func (r Registry) Allowed(agent, tool string) bool {
	for _, t := range r[agent] {
		if t == tool {
			return true
		}
	}
	return false
}

// Client is the production Caller: an HTTP-JSON transport over
// retryablehttp with allow-list enforcement in front of every call.
type Client struct {
	http     *retryablehttp.Client
	baseURL  string
	registry Registry
	timeout  time.Duration
}

// Options configures a Client.
type Options struct {
	BaseURL  string
	Registry Registry
	// Timeout bounds one tool call end to end (spec §5: 60s default).
	Timeout time.Duration
	// RetryMax bounds connection-class retries (spec §5/§12: 3 attempts,
	// backoff 0.5s * attempt).
	RetryMax int
}

// New builds a Client. An empty Registry allows no tools for any agent —
// callers must configure allow-lists explicitly.
func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	retryMax := opts.RetryMax
	if retryMax <= 0 {
		retryMax = 3
	}
	hc := retryablehttp.NewClient()
	hc.RetryMax = retryMax
	hc.RetryWaitMin = 500 * time.Millisecond
	hc.RetryWaitMax = time.Duration(retryMax) * 500 * time.Millisecond
	hc.Logger = nil
	hc.HTTPClient.Timeout = timeout
	hc.CheckRetry = retryOnConnectionErrors

	return &Client{
		http:     hc,
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		registry: opts.Registry,
		timeout:  timeout,
	}
}

// CallTool invokes a tool on behalf of agent, after verifying the agent's
// allow-list permits it (spec §4: permissioned facade).
func (c *Client) CallTool(ctx context.Context, agent string, req CallRequest) (CallResponse, error) {
	if !c.registry.Allowed(agent, req.Tool) {
		return CallResponse{}, toolerrors.Coded(agentstate.ErrCodePermission, fmt.Sprintf("tool %q is not allowed for agent %q", req.Tool, agent))
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(map[string]json.RawMessage{"args": req.Payload})
	if err != nil {
		return CallResponse{}, toolerrors.FromError(err).WithCode(agentstate.ErrCodeValidation)
	}
	url := fmt.Sprintf("%s/tools/%s", c.baseURL, req.Tool)
	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return CallResponse{}, toolerrors.FromError(err).WithCode(agentstate.ErrCodeValidation)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return CallResponse{}, toolerrors.NewWithCause(fmt.Sprintf("tool %q call failed", req.Tool), toolerrors.FromError(err)).WithCode(agentstate.ErrCodeUpstream)
	}
	defer resp.Body.Close()

	var decoded struct {
		Result json.RawMessage `json:"result"`
		Error  string          `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return CallResponse{}, toolerrors.NewWithCause("decode tool response", toolerrors.FromError(err)).WithCode(agentstate.ErrCodeUpstream)
	}
	if resp.StatusCode >= 400 || decoded.Error != "" {
		return CallResponse{}, toolerrors.New(fmt.Sprintf("tool %q returned error: %s", req.Tool, decoded.Error)).WithCode(agentstate.ErrCodeUpstream)
	}
	return CallResponse{Result: decoded.Result}, nil
}

// ListTools returns the subset of the registry's tools an agent may call
// (spec §4.6: the planner only offers tools an agent is permitted to use).
func (c *Client) ListTools(_ context.Context, agent string) ([]string, error) {
	return append([]string(nil), c.registry[agent]...), nil
}

// retryOnConnectionErrors limits retries to connection-class failures and
// 5xx responses, leaving 4xx (bad request/unauthorized/not-allowed) to fail
// fast rather than burn the retry budget on a non-transient error.
func retryOnConnectionErrors(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return true, nil
	}
	if resp != nil && resp.StatusCode >= 500 {
		return true, nil
	}
	return false, nil
}
