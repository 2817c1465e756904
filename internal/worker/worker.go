package worker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"github.com/holidai/agentcore/internal/agentstate"
	"github.com/holidai/agentcore/internal/model"
	"github.com/holidai/agentcore/internal/toolclient"
)

// CallOutcome is one tool invocation's recorded shape, used both as the
// single-call result and as an element of a multi-call result (utilities
// worker: "may call multiple tools in one pass", spec §4.3).
type CallOutcome struct {
	Tool         string         `json:"tool"`
	Parameters   map[string]any `json:"parameters,omitempty"`
	Data         any            `json:"data,omitempty"`
	Error        bool           `json:"error,omitempty"`
	ErrorCode    string         `json:"error_code,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Suggestion   string         `json:"suggestion,omitempty"`
	argsKey      string
}

// Result is the typed-or-error envelope a worker writes into its result
// slot (spec §3: "Typed result or {error, error_code, error_message,
// suggestion}; null means not yet produced"). A single-tool worker (visa,
// one-way flight search, ...) populates the top-level fields directly; a
// multi-call worker (utilities) populates Calls and leaves the top level
// empty.
type Result struct {
	Error        bool           `json:"error,omitempty"`
	ErrorCode    string         `json:"error_code,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Suggestion   string         `json:"suggestion,omitempty"`
	Tool         string         `json:"tool,omitempty"`
	Parameters   map[string]any `json:"parameters,omitempty"`
	Data         any            `json:"data,omitempty"`
	Calls        []CallOutcome  `json:"calls,omitempty"`
}

// toolDecision is the JSON shape the model is asked to emit: one or more
// tool calls, or an explanation of what is missing when it can't proceed
// (spec §4.3 step 3: "write a structured error indicating missing
// parameters").
type toolDecision struct {
	Calls []struct {
		Tool       string         `json:"tool"`
		Parameters map[string]any `json:"parameters"`
	} `json:"calls"`
	MissingParameters string `json:"missing_parameters,omitempty"`
}

// Spec configures one domain worker; NewNode turns it into a node.Func.
type Spec struct {
	// Name is the worker name used for state field lookup (agentstate.WorkerX).
	Name string
	// SystemPrompt describes the worker's domain, its tools, and output
	// contract, in the teacher's style of prompt-as-constant.
	SystemPrompt string
	// AllowedTools restricts the model's tool choices; also enforced by the
	// tool client's own allow-list (defense in depth, spec §4.7/§9).
	AllowedTools []string
	// MultiCall allows the worker to invoke more than one tool in a single
	// pass (utilities: holidays + eSIM together, spec §4.3).
	MultiCall bool
	ModelClass model.ModelClass
}

// Deps are the external collaborators every worker needs.
type Deps struct {
	Model model.Client
	Tools toolclient.Caller
}

// NewNode builds the node.Func for spec, implementing the worker template
// from spec §4.3 steps 1-5.
func NewNode(spec Spec, deps Deps) func(ctx context.Context, state *agentstate.AgentState) (agentstate.Delta, error) {
	return func(ctx context.Context, state *agentstate.AgentState) (agentstate.Delta, error) {
		memories := FilterMemories(state.RelevantMemories, spec.Name)

		existing, _ := state.ResultSlot(spec.Name).(*Result)

		decision, err := decide(ctx, deps.Model, spec, state, memories)
		if err != nil {
			return errorDelta(spec.Name, agentstate.ErrCodeUpstream, err.Error())
		}

		if len(decision.Calls) == 0 {
			msg := decision.MissingParameters
			if msg == "" {
				msg = "the model did not select a tool for this request"
			}
			return errorDelta(spec.Name, agentstate.ErrCodeValidation, msg)
		}
		if !spec.MultiCall && len(decision.Calls) > 1 {
			decision.Calls = decision.Calls[:1]
		}

		var outcomes []CallOutcome
		for _, c := range decision.Calls {
			key := argsKey(c.Tool, c.Parameters)
			if outcome, ok := satisfiedBy(existing, c.Tool, key); ok {
				outcomes = append(outcomes, outcome)
				continue
			}
			outcomes = append(outcomes, invoke(ctx, deps.Tools, spec.Name, c.Tool, c.Parameters, key))
		}

		result := &Result{}
		if spec.MultiCall {
			result.Calls = outcomes
		} else {
			o := outcomes[0]
			result.Tool, result.Parameters, result.Data = o.Tool, o.Parameters, o.Data
			result.Error, result.ErrorCode, result.ErrorMessage, result.Suggestion = o.Error, o.ErrorCode, o.ErrorMessage, o.Suggestion
		}
		return agentstate.Delta{agentstate.WorkerResultField(spec.Name): result}, nil
	}
}

func decide(ctx context.Context, client model.Client, spec Spec, state *agentstate.AgentState, memories []string) (*toolDecision, error) {
	var sb strings.Builder
	sb.WriteString(spec.SystemPrompt)
	sb.WriteString("\n\nAvailable tools: ")
	sb.WriteString(strings.Join(spec.AllowedTools, ", "))
	sb.WriteString("\n\nRespond with JSON: {\"calls\": [{\"tool\": \"<name>\", \"parameters\": {...}}], \"missing_parameters\": \"<explanation if you cannot call a tool>\"}")
	if spec.MultiCall {
		sb.WriteString("\nYou may include more than one call in \"calls\" when the request needs multiple tools.")
	} else {
		sb.WriteString("\nInclude at most one call.")
	}
	if len(memories) > 0 {
		sb.WriteString("\n\nRelevant user preferences:\n- ")
		sb.WriteString(strings.Join(memories, "\n- "))
	}
	if state.FeedbackMessage != "" {
		sb.WriteString("\n\nA validator rejected your previous attempt for this reason — correct it: ")
		sb.WriteString(state.FeedbackMessage)
	}

	req := &model.Request{
		ModelClass:  spec.ModelClass,
		Temperature: 0.2,
		Messages: []model.Message{
			{Role: model.RoleSystem, Text: sb.String()},
			{Role: model.RoleUser, Text: state.UserMessage},
		},
	}
	var decision toolDecision
	if err := model.CompleteJSON(ctx, client, req, &decision); err != nil {
		return nil, err
	}
	return &decision, nil
}

// satisfiedBy implements spec §4.3 step 4 (deduplication): if the existing
// slot already holds a non-errored outcome for this exact tool+argsKey, skip
// the call and reuse it.
func satisfiedBy(existing *Result, tool, key string) (CallOutcome, bool) {
	if existing == nil {
		return CallOutcome{}, false
	}
	candidates := existing.Calls
	if existing.Tool != "" {
		candidates = append(candidates, CallOutcome{
			Tool: existing.Tool, Parameters: existing.Parameters, Data: existing.Data,
			Error: existing.Error, ErrorCode: existing.ErrorCode, ErrorMessage: existing.ErrorMessage,
			Suggestion: existing.Suggestion, argsKey: argsKey(existing.Tool, existing.Parameters),
		})
	}
	for _, c := range candidates {
		if c.Tool == tool && c.argsKey == key && !c.Error {
			return c, true
		}
	}
	return CallOutcome{}, false
}

func invoke(ctx context.Context, tools toolclient.Caller, agent, tool string, params map[string]any, key string) CallOutcome {
	payload, err := json.Marshal(params)
	if err != nil {
		return CallOutcome{Tool: tool, Parameters: params, Error: true, ErrorCode: agentstate.ErrCodeValidation, ErrorMessage: err.Error(), argsKey: key}
	}
	resp, err := tools.CallTool(ctx, agent, toolclient.CallRequest{Tool: tool, Payload: payload})
	if err != nil {
		return CallOutcome{Tool: tool, Parameters: params, Error: true, ErrorCode: classifyToolError(err), ErrorMessage: err.Error(), argsKey: key}
	}

	var envelope struct {
		Error        bool   `json:"error"`
		ErrorCode    string `json:"error_code"`
		ErrorMessage string `json:"error_message"`
		Suggestion   string `json:"suggestion"`
	}
	_ = json.Unmarshal(resp.Result, &envelope)
	if envelope.Error {
		return CallOutcome{Tool: tool, Parameters: params, Error: true, ErrorCode: envelope.ErrorCode,
			ErrorMessage: envelope.ErrorMessage, Suggestion: envelope.Suggestion, argsKey: key}
	}

	var data any
	_ = json.Unmarshal(resp.Result, &data)
	return CallOutcome{Tool: tool, Parameters: params, Data: data, argsKey: key}
}

// classifyToolError maps a tool-client failure to a result error_code.
// Permission and validation failures surface distinctly because feedback
// nodes treat VALIDATION_ERROR as always-retriable (spec §7).
func classifyToolError(err error) string {
	msg := strings.ToUpper(err.Error())
	switch {
	case strings.Contains(msg, "VALIDATION_ERROR"):
		return agentstate.ErrCodeValidation
	case strings.Contains(msg, "NOT ALLOWED") || strings.Contains(msg, "PERMISSION"):
		return agentstate.ErrCodePermission
	default:
		return agentstate.ErrCodeUpstream
	}
}

func errorDelta(worker, code, message string) (agentstate.Delta, error) {
	return agentstate.Delta{
		agentstate.WorkerResultField(worker): &Result{Error: true, ErrorCode: code, ErrorMessage: message},
	}, nil
}

// argsKey is a deterministic fingerprint of tool+parameters used for
// dedup (spec §4.3 step 4) independent of map key ordering.
func argsKey(tool string, params map[string]any) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	h := sha256.New()
	h.Write([]byte(tool))
	for _, k := range keys {
		h.Write([]byte(k))
		b, _ := json.Marshal(params[k])
		h.Write(b)
	}
	return hex.EncodeToString(h.Sum(nil))
}
