package core

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequestTypesValid(t *testing.T) {
	raw := `[
		{"request_type": "Fee Payment", "sub_request_type": "Ongoing Fee", "confidence": 0.85, "reasoning": "Invoice attached", "is_primary": true}
	]`

	results, err := ParseRequestTypes(raw)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Fee Payment", results[0].RequestType)
	assert.Equal(t, "Ongoing Fee", results[0].SubRequestType)
	assert.Equal(t, 0.85, results[0].Confidence)
	assert.True(t, results[0].IsPrimary)
}

func TestParseRequestTypesRepairsWrappedJSON(t *testing.T) {
	raw := "Here is the classification:\n```json\n" +
		`[{"request_type": "Adjustment", "sub_request_type": "Reallocation", "confidence": 0.7, "reasoning": "ok", "is_primary": true}]` +
		"\n```\nLet me know if you need anything else."

	results, err := ParseRequestTypes(raw)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Adjustment", results[0].RequestType)
}

func TestParseRequestTypesSkipsIncompleteEntries(t *testing.T) {
	raw := `[
		{"request_type": "Adjustment", "confidence": 0.7},
		{"request_type": "Fee Payment", "sub_request_type": "Ongoing Fee", "confidence": 0.6, "reasoning": "ok", "is_primary": true}
	]`

	results, err := ParseRequestTypes(raw)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Fee Payment", results[0].RequestType)
}

func TestParseRequestTypesClampsConfidence(t *testing.T) {
	raw := `[{"request_type": "A", "sub_request_type": "B", "confidence": 1.7, "reasoning": "ok", "is_primary": true}]`

	results, err := ParseRequestTypes(raw)
	require.NoError(t, err)
	assert.Equal(t, 1.0, results[0].Confidence)
}

func TestParseRequestTypesMalformed(t *testing.T) {
	_, err := ParseRequestTypes("I cannot classify this email.")
	assert.ErrorIs(t, err, ErrMalformedModelResponse)

	_, err = ParseRequestTypes(`[{"confidence": 0.5}]`)
	assert.ErrorIs(t, err, ErrMalformedModelResponse)

	_, err = ParseRequestTypes(`[]`)
	assert.ErrorIs(t, err, ErrMalformedModelResponse)
}

func TestExtractJSONArray(t *testing.T) {
	got, ok := ExtractJSONArray(`prose [1, 2] trailer`)
	assert.True(t, ok)
	assert.Equal(t, "[1, 2]", got)

	_, ok = ExtractJSONArray("no array here")
	assert.False(t, ok)

	_, ok = ExtractJSONArray("] before [")
	assert.False(t, ok)
}

func TestClampConfidence(t *testing.T) {
	assert.Equal(t, 0.0, ClampConfidence(-0.2))
	assert.Equal(t, 0.42, ClampConfidence(0.42))
	assert.Equal(t, 1.0, ClampConfidence(2.0))
	assert.Equal(t, 0.0, ClampConfidence(math.NaN()))
}
