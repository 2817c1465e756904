package agentstate

// Delta is the partial update a node returns: a map from AgentState field
// name to new value. A key absent from the map means the node did not touch
// that field. A key present with the Clear sentinel is a deliberate request
// to clear the field — used by feedback nodes that null a worker's result
// slot to force a retry (spec §4.4). Any other value is the new value for
// that field ("latest write wins").
//
// This mirrors the reference implementation's per-field reducer
// ("if right is None, keep left; otherwise use right") with one addition:
// since that reducer treats nil as "keep left", clearing a slot is an
// explicit act (Clear) rather than indistinguishable from "not touched".
type Delta map[string]any

// Clear is the sentinel value that forces a field to nil even though the
// generic reducer would otherwise prefer to keep a non-null existing value.
type Clear struct{}

// Known field names used in Delta maps. Using constants keeps worker/node
// code from typo-ing a field name that the merger silently ignores.
const (
	FieldUserMessage     = "user_message"
	FieldRoute           = "route"
	FieldExecutionPlan   = "execution_plan"
	FieldCurrentStep     = "current_step"
	FieldPendingNodes    = "pending_nodes"
	FieldFinishedSteps   = "finished_steps"
	FieldParallelMode    = "parallel_mode"
	FieldReadyForResponse = "ready_for_response"

	FieldFlightResult      = "flight_result"
	FieldHotelResult       = "hotel_result"
	FieldVisaResult        = "visa_result"
	FieldTripAdvisorResult = "tripadvisor_result"
	FieldUtilitiesResult   = "utilities_result"

	FieldCollectedInfo    = "collected_info"
	FieldRelevantMemories = "relevant_memories"
	FieldRFIStatus        = "rfi_status"
	FieldRFIContext       = "rfi_context"
	FieldAdvisoryMessage  = "advisory_message"
	FieldLastResponse     = "last_response"
	FieldAgentsCalled     = "agents_called"

	FieldNeedsFlight      = "needs_flight"
	FieldNeedsHotel       = "needs_hotel"
	FieldNeedsVisa        = "needs_visa"
	FieldNeedsTripAdvisor = "needs_tripadvisor"
	FieldNeedsUtilities   = "needs_utilities"

	FieldFeedbackMessage = "feedback_message"

	FieldFeedbackRetryCount               = "feedback_retry_count"
	FieldPlanExecutorRetryCount           = "plan_executor_retry_count"
	FieldFlightFeedbackRetryCount         = "flight_feedback_retry_count"
	FieldHotelFeedbackRetryCount          = "hotel_feedback_retry_count"
	FieldVisaFeedbackRetryCount           = "visa_feedback_retry_count"
	FieldTripAdvisorFeedbackRetryCount    = "tripadvisor_feedback_retry_count"
	FieldUtilitiesFeedbackRetryCount      = "utilities_feedback_retry_count"
	FieldConversationalFeedbackRetryCount = "conversational_feedback_retry_count"
	FieldJoinRetryCount                   = "join_retry_count"
)

// WorkerResultField returns the Delta key that owns the named worker's
// result slot.
func WorkerResultField(worker string) string {
	switch worker {
	case WorkerFlight:
		return FieldFlightResult
	case WorkerHotel:
		return FieldHotelResult
	case WorkerVisa:
		return FieldVisaResult
	case WorkerTripAdvisor:
		return FieldTripAdvisorResult
	case WorkerUtilities:
		return FieldUtilitiesResult
	default:
		return ""
	}
}

// WorkerFeedbackRetryField returns the Delta key for the named worker's
// feedback retry counter.
func WorkerFeedbackRetryField(worker string) string {
	switch worker {
	case WorkerFlight:
		return FieldFlightFeedbackRetryCount
	case WorkerHotel:
		return FieldHotelFeedbackRetryCount
	case WorkerVisa:
		return FieldVisaFeedbackRetryCount
	case WorkerTripAdvisor:
		return FieldTripAdvisorFeedbackRetryCount
	case WorkerUtilities:
		return FieldUtilitiesFeedbackRetryCount
	case WorkerConversational:
		return FieldConversationalFeedbackRetryCount
	default:
		return ""
	}
}

// MergeDeltas combines concurrent deltas (written by workers in the same
// parallel step) into one delta using the field reducer: "prefer non-null
// right over null left; otherwise latest write wins." Deltas are merged in
// the order given, which is the order workers complete in.
func MergeDeltas(deltas ...Delta) Delta {
	merged := Delta{}
	for _, d := range deltas {
		for k, v := range d {
			if existing, ok := merged[k]; ok {
				merged[k] = reduceField(existing, v)
				continue
			}
			merged[k] = v
		}
	}
	return merged
}

// reduceField implements "if right is None, keep left; otherwise right
// wins" with Clear always taking precedence (an explicit request to null a
// field is itself a "latest write", never superseded by a concurrent
// sibling that didn't touch the field).
func reduceField(left, right any) any {
	if _, ok := right.(Clear); ok {
		return right
	}
	if right == nil {
		return left
	}
	return right
}

// Apply merges delta onto state, returning a new state. Clear sentinels
// reset the field to its zero value. A nil-valued entry leaves scalar fields
// untouched, but resets route, execution_plan, pending_nodes, collected_info
// and the worker result slots just as Clear does (MergeDeltas keeps a later
// nil from overwriting an earlier value, but a nil from the first delta that
// carries the key passes through unchanged).
func Apply(state *AgentState, delta Delta) *AgentState {
	next := state.Clone()
	for field, value := range delta {
		applyField(next, field, value)
	}
	return next
}

func applyField(s *AgentState, field string, value any) {
	cleared := false
	if _, ok := value.(Clear); ok {
		cleared = true
		value = nil
	}
	switch field {
	case FieldUserMessage:
		if v, ok := value.(string); ok {
			s.UserMessage = v
		} else if cleared {
			s.UserMessage = ""
		}
	case FieldRoute:
		if cleared || value == nil {
			s.Route = nil
		} else if v, ok := value.([]string); ok {
			s.Route = v
		}
	case FieldExecutionPlan:
		if cleared || value == nil {
			s.ExecutionPlan = nil
		} else if v, ok := value.([]Step); ok {
			s.ExecutionPlan = v
		}
	case FieldCurrentStep:
		if v, ok := value.(int); ok {
			s.CurrentStep = v
		} else if cleared {
			s.CurrentStep = 0
		}
	case FieldPendingNodes:
		if cleared || value == nil {
			s.PendingNodes = nil
		} else if v, ok := value.([]string); ok {
			s.PendingNodes = v
		}
	case FieldFinishedSteps:
		if v, ok := value.([]int); ok {
			s.FinishedSteps = v
		}
	case FieldParallelMode:
		if v, ok := value.(bool); ok {
			s.ParallelMode = v
		} else if cleared {
			s.ParallelMode = false
		}
	case FieldReadyForResponse:
		if v, ok := value.(bool); ok {
			s.ReadyForResponse = v
		}
	case FieldFlightResult:
		s.FlightResult = value
	case FieldHotelResult:
		s.HotelResult = value
	case FieldVisaResult:
		s.VisaResult = value
	case FieldTripAdvisorResult:
		s.TripAdvisorResult = value
	case FieldUtilitiesResult:
		s.UtilitiesResult = value
	case FieldCollectedInfo:
		if cleared || value == nil {
			s.CollectedInfo = map[string]any{}
		} else if v, ok := value.(map[string]any); ok {
			s.CollectedInfo = v
		}
	case FieldRelevantMemories:
		if v, ok := value.([]string); ok {
			s.RelevantMemories = v
		}
	case FieldRFIStatus:
		if v, ok := value.(RFIStatus); ok {
			s.RFIStatus = v
		}
	case FieldRFIContext:
		if v, ok := value.(string); ok {
			s.RFIContext = v
		} else if cleared {
			s.RFIContext = ""
		}
	case FieldAdvisoryMessage:
		if v, ok := value.(string); ok {
			s.AdvisoryMessage = v
		}
	case FieldLastResponse:
		if v, ok := value.(string); ok {
			s.LastResponse = v
		} else if cleared {
			s.LastResponse = ""
		}
	case FieldAgentsCalled:
		if v, ok := value.([]string); ok {
			s.AgentsCalled = v
		}
	case FieldNeedsFlight:
		if v, ok := value.(bool); ok {
			s.NeedsFlight = v
		}
	case FieldNeedsHotel:
		if v, ok := value.(bool); ok {
			s.NeedsHotel = v
		}
	case FieldNeedsVisa:
		if v, ok := value.(bool); ok {
			s.NeedsVisa = v
		}
	case FieldNeedsTripAdvisor:
		if v, ok := value.(bool); ok {
			s.NeedsTripAdvisor = v
		}
	case FieldNeedsUtilities:
		if v, ok := value.(bool); ok {
			s.NeedsUtilities = v
		}
	case FieldFeedbackMessage:
		if v, ok := value.(string); ok {
			s.FeedbackMessage = v
		} else if cleared {
			s.FeedbackMessage = ""
		}
	case FieldFeedbackRetryCount:
		if v, ok := value.(int); ok {
			s.FeedbackRetryCount = v
		}
	case FieldPlanExecutorRetryCount:
		if v, ok := value.(int); ok {
			s.PlanExecutorRetryCount = v
		}
	case FieldFlightFeedbackRetryCount:
		if v, ok := value.(int); ok {
			s.FlightFeedbackRetryCount = v
		}
	case FieldHotelFeedbackRetryCount:
		if v, ok := value.(int); ok {
			s.HotelFeedbackRetryCount = v
		}
	case FieldVisaFeedbackRetryCount:
		if v, ok := value.(int); ok {
			s.VisaFeedbackRetryCount = v
		}
	case FieldTripAdvisorFeedbackRetryCount:
		if v, ok := value.(int); ok {
			s.TripAdvisorFeedbackRetryCount = v
		}
	case FieldUtilitiesFeedbackRetryCount:
		if v, ok := value.(int); ok {
			s.UtilitiesFeedbackRetryCount = v
		}
	case FieldConversationalFeedbackRetryCount:
		if v, ok := value.(int); ok {
			s.ConversationalFeedbackRetryCount = v
		}
	case FieldJoinRetryCount:
		if v, ok := value.(int); ok {
			s.JoinRetryCount = v
		}
	}
}
