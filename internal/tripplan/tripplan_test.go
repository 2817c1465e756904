package tripplan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizedKey_CanonicalizesCaseAndOrder(t *testing.T) {
	a := NormalizedKey("flight", map[string]any{"From": "SFO", "To": "JFK"})
	b := NormalizedKey("flight", map[string]any{"to": "jfk", "from": "sfo"})

	assert.Equal(t, a, b, "key order and casing must not affect the normalized key")
}

func TestNormalizedKey_DiffersByType(t *testing.T) {
	details := map[string]any{"from": "sfo", "to": "jfk"}

	a := NormalizedKey("flight", details)
	b := NormalizedKey("hotel", details)

	assert.NotEqual(t, a, b)
}

func TestNormalizedKey_EmptyDetailsFallsBackToTitle(t *testing.T) {
	a := normalizedKeyWithTitle("note", nil, "Book the window seat")
	b := normalizedKeyWithTitle("note", nil, "Book the aisle seat")

	assert.NotEqual(t, a, b)
}

func TestNormalizedKey_ArrayOrderNormalized(t *testing.T) {
	a := NormalizedKey("hotel", map[string]any{"amenities": []any{"pool", "gym"}})
	b := NormalizedKey("hotel", map[string]any{"amenities": []any{"gym", "pool"}})

	assert.Equal(t, a, b)
}
