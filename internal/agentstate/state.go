// Package agentstate defines AgentState, the record threaded through every
// node in the orchestration graph, its per-field reducer, and the shared
// error envelope used at node and API boundaries.
package agentstate

import "time"

// Step is a single entry in an execution plan: a set of worker-node names
// that run in parallel, plus a human-readable description used by the
// planner and surfaced in logs.
type Step struct {
	Number      int      `json:"step_number"`
	Agents      []string `json:"agents"`
	Description string   `json:"description"`
}

// ErrorEnvelope is the shared, JSON-serializable error shape (spec §6/§7).
// It crosses node and API boundaries in result slots; it is never a Go
// error value — node code converts to/from it at the boundary.
type ErrorEnvelope struct {
	Error            bool   `json:"error"`
	ErrorCode        string `json:"error_code"`
	ErrorMessage     string `json:"error_message"`
	Suggestion       string `json:"suggestion,omitempty"`
	APIErrorDetails  any    `json:"api_error_details,omitempty"`
}

// NewErrorEnvelope builds a populated error envelope.
func NewErrorEnvelope(code, message string) *ErrorEnvelope {
	return &ErrorEnvelope{Error: true, ErrorCode: code, ErrorMessage: message}
}

// Known error codes (spec §6/§7).
const (
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeUpstream        = "UPSTREAM_ERROR"
	ErrCodeAPIKeyMissing   = "API_KEY_MISSING"
	ErrCodePermission      = "PERMISSION_DENIED"
	ErrCodeTimeout         = "TIMEOUT"
	ErrCodeIncomplete      = "INCOMPLETE"
)

// RFIStatus is the gate result of the PII/Safety/RFI pipeline (§4.5).
type RFIStatus string

const (
	RFIComplete     RFIStatus = "complete"
	RFIMissingInfo  RFIStatus = "missing_info"
	RFIUnsafe       RFIStatus = "unsafe"
	RFIOutOfScope   RFIStatus = "out_of_scope"
	RFIError        RFIStatus = "error"
)

// Worker names, the fixed set the planner draws from (§4.6) plus the
// conversational and trip-plan workers, which are never part of a plan.
const (
	WorkerFlight         = "flight"
	WorkerHotel          = "hotel"
	WorkerVisa           = "visa"
	WorkerTripAdvisor    = "tripadvisor"
	WorkerUtilities      = "utilities"
	WorkerConversational = "conversational"
	WorkerPlanner        = "trip_plan"
)

// MaxFeedbackRetries bounds every feedback validator's retry loop (§4.4, §8).
const MaxFeedbackRetries = 2

// MaxJoinPolls bounds the join node's bounded poll (§4.2).
const MaxJoinPolls = 20

// JoinPollInterval is the bounded sleep between join polls (§4.2).
const JoinPollInterval = 500 * time.Millisecond

// DefaultRecursionBudget bounds total node invocations per request (§4.1, §8).
const DefaultRecursionBudget = 50

// DefaultRequestDeadline bounds the whole scheduler traversal (§5).
const DefaultRequestDeadline = 120 * time.Second

// AgentState is the shared record the graph threads through every node.
// Fields are documented against the invariants in spec §3. Nodes never
// mutate a state in place; they return a Delta that the scheduler applies
// with Apply (after combining a parallel step's deltas with MergeDeltas).
type AgentState struct {
	UserMessage string `json:"user_message"`
	UserEmail   string `json:"user_email"`
	SessionID   string `json:"session_id"`

	// Route holds the next node name, a list of names when fanning out, or
	// nil/empty when the scheduler should stop. The scheduler clears it after
	// consuming it unless the invoked node rewrote it.
	Route []string `json:"route,omitempty"`

	ExecutionPlan []Step `json:"execution_plan,omitempty"`
	CurrentStep   int    `json:"current_step"`
	PendingNodes  []string `json:"pending_nodes,omitempty"`
	FinishedSteps []int    `json:"finished_steps,omitempty"`
	ParallelMode  bool     `json:"parallel_mode"`
	ReadyForResponse bool  `json:"ready_for_response"`

	FlightResult      any `json:"flight_result,omitempty"`
	HotelResult       any `json:"hotel_result,omitempty"`
	VisaResult        any `json:"visa_result,omitempty"`
	TripAdvisorResult any `json:"tripadvisor_result,omitempty"`
	UtilitiesResult   any `json:"utilities_result,omitempty"`

	CollectedInfo map[string]any `json:"collected_info,omitempty"`

	RelevantMemories []string  `json:"relevant_memories,omitempty"`
	RFIStatus        RFIStatus `json:"rfi_status,omitempty"`
	RFIContext       string    `json:"rfi_context,omitempty"`
	AdvisoryMessage  string    `json:"advisory_message,omitempty"`

	LastResponse string `json:"last_response,omitempty"`
	AgentsCalled []string `json:"agents_called,omitempty"`

	NeedsFlight      bool `json:"needs_flight"`
	NeedsHotel       bool `json:"needs_hotel"`
	NeedsVisa        bool `json:"needs_visa"`
	NeedsTripAdvisor bool `json:"needs_tripadvisor"`
	NeedsUtilities   bool `json:"needs_utilities"`

	FeedbackMessage string `json:"feedback_message,omitempty"`

	FeedbackRetryCount             int `json:"feedback_retry_count"`
	PlanExecutorRetryCount         int `json:"plan_executor_retry_count"`
	FlightFeedbackRetryCount       int `json:"flight_feedback_retry_count"`
	HotelFeedbackRetryCount        int `json:"hotel_feedback_retry_count"`
	VisaFeedbackRetryCount         int `json:"visa_feedback_retry_count"`
	TripAdvisorFeedbackRetryCount  int `json:"tripadvisor_feedback_retry_count"`
	UtilitiesFeedbackRetryCount    int `json:"utilities_feedback_retry_count"`
	ConversationalFeedbackRetryCount int `json:"conversational_feedback_retry_count"`
	JoinRetryCount                 int `json:"join_retry_count"`
}

// WorkerFeedbackRetryCount returns the retry counter for the named worker.
func (s *AgentState) WorkerFeedbackRetryCount(worker string) int {
	switch worker {
	case WorkerFlight:
		return s.FlightFeedbackRetryCount
	case WorkerHotel:
		return s.HotelFeedbackRetryCount
	case WorkerVisa:
		return s.VisaFeedbackRetryCount
	case WorkerTripAdvisor:
		return s.TripAdvisorFeedbackRetryCount
	case WorkerUtilities:
		return s.UtilitiesFeedbackRetryCount
	case WorkerConversational:
		return s.ConversationalFeedbackRetryCount
	default:
		return 0
	}
}

// ResultSlot returns the current value of the named worker's result slot.
func (s *AgentState) ResultSlot(worker string) any {
	switch worker {
	case WorkerFlight:
		return s.FlightResult
	case WorkerHotel:
		return s.HotelResult
	case WorkerVisa:
		return s.VisaResult
	case WorkerTripAdvisor:
		return s.TripAdvisorResult
	case WorkerUtilities:
		return s.UtilitiesResult
	default:
		return nil
	}
}

// Clone returns a shallow copy of s suitable as the pre-step snapshot every
// worker in a parallel step observes (§4.2 ordering guarantee).
func (s *AgentState) Clone() *AgentState {
	clone := *s
	clone.Route = append([]string(nil), s.Route...)
	clone.ExecutionPlan = append([]Step(nil), s.ExecutionPlan...)
	clone.PendingNodes = append([]string(nil), s.PendingNodes...)
	clone.FinishedSteps = append([]int(nil), s.FinishedSteps...)
	clone.RelevantMemories = append([]string(nil), s.RelevantMemories...)
	clone.AgentsCalled = append([]string(nil), s.AgentsCalled...)
	clone.CollectedInfo = make(map[string]any, len(s.CollectedInfo))
	for k, v := range s.CollectedInfo {
		clone.CollectedInfo[k] = v
	}
	return &clone
}
