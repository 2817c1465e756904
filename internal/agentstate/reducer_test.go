package agentstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeDeltas_PreferNonNullRight(t *testing.T) {
	flight := Delta{FieldFlightResult: map[string]any{"outbound": []any{"LH123"}}}
	hotel := Delta{FieldHotelResult: map[string]any{"name": "Hilton"}}

	merged := MergeDeltas(flight, hotel)

	assert.NotNil(t, merged[FieldFlightResult])
	assert.NotNil(t, merged[FieldHotelResult])
}

func TestMergeDeltas_LatestWinsOnSameField(t *testing.T) {
	first := Delta{FieldCurrentStep: 1}
	second := Delta{FieldCurrentStep: 2}

	merged := MergeDeltas(first, second)

	assert.Equal(t, 2, merged[FieldCurrentStep])
}

func TestMergeDeltas_NilRightKeepsLeft(t *testing.T) {
	first := Delta{FieldLastResponse: "draft"}
	second := Delta{FieldLastResponse: nil}

	merged := MergeDeltas(first, second)

	assert.Equal(t, "draft", merged[FieldLastResponse])
}

func TestMergeDeltas_ClearAlwaysWins(t *testing.T) {
	first := Delta{FieldFlightResult: map[string]any{"outbound": []any{"LH123"}}}
	second := Delta{FieldFlightResult: Clear{}}

	merged := MergeDeltas(first, second)

	_, isClear := merged[FieldFlightResult].(Clear)
	assert.True(t, isClear)
}

func TestApply_ClearResetsToZeroValue(t *testing.T) {
	state := &AgentState{LastResponse: "old draft", FeedbackMessage: "fix your tone"}

	next := Apply(state, Delta{
		FieldLastResponse:    Clear{},
		FieldFeedbackMessage: Clear{},
	})

	assert.Empty(t, next.LastResponse)
	assert.Empty(t, next.FeedbackMessage)
	assert.Equal(t, "old draft", state.LastResponse, "Apply must not mutate the input state")
}

func TestApply_UntouchedFieldsSurvive(t *testing.T) {
	state := &AgentState{UserEmail: "a@b.com", SessionID: "sess-1", CurrentStep: 3}

	next := Apply(state, Delta{FieldCurrentStep: 4})

	require.Equal(t, "a@b.com", next.UserEmail)
	require.Equal(t, "sess-1", next.SessionID)
	assert.Equal(t, 4, next.CurrentStep)
}

func TestApply_ResultSlotOwnedByOneWorker(t *testing.T) {
	state := &AgentState{}

	next := Apply(state, Delta{
		FieldFlightResult: map[string]any{"outbound": []any{"AA1"}},
		FieldHotelResult:  map[string]any{"name": "Hilton"},
	})

	assert.NotNil(t, next.FlightResult)
	assert.NotNil(t, next.HotelResult)
	assert.Nil(t, next.VisaResult)
}
