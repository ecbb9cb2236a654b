package core

import (
	"encoding/json"
	"fmt"
	"math"
)

// requestTypePayload mirrors the JSON the classification model is asked to
// produce. It is validated before anything downstream sees it.
type requestTypePayload struct {
	RequestType    *string  `json:"request_type"`
	SubRequestType *string  `json:"sub_request_type"`
	Confidence     *float64 `json:"confidence"`
	Reasoning      *string  `json:"reasoning"`
	IsPrimary      bool     `json:"is_primary"`
}

// ParseRequestTypes parses the raw model output into validated request type
// results. If the output is not directly parseable it attempts to extract
// the outermost JSON array from the surrounding text before giving up with
// ErrMalformedModelResponse.
func ParseRequestTypes(raw string) ([]RequestTypeResult, error) {
	var payload []requestTypePayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		repaired, ok := ExtractJSONArray(raw)
		if !ok {
			return nil, fmt.Errorf("%w: no JSON array in model output: %v", ErrMalformedModelResponse, err)
		}
		if err := json.Unmarshal([]byte(repaired), &payload); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedModelResponse, err)
		}
	}

	results := make([]RequestTypeResult, 0, len(payload))
	for _, item := range payload {
		if item.RequestType == nil || item.SubRequestType == nil || item.Confidence == nil || item.Reasoning == nil {
			continue
		}
		results = append(results, RequestTypeResult{
			RequestType:    *item.RequestType,
			SubRequestType: *item.SubRequestType,
			Confidence:     ClampConfidence(*item.Confidence),
			Reasoning:      *item.Reasoning,
			IsPrimary:      item.IsPrimary,
		})
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("%w: no valid request type entries", ErrMalformedModelResponse)
	}
	return results, nil
}

// ExtractJSONArray returns the outermost JSON array embedded in text, for
// model responses that wrap their JSON in prose or code fences.
func ExtractJSONArray(text string) (string, bool) {
	start := -1
	for i := 0; i < len(text); i++ {
		if text[i] == '[' {
			start = i
			break
		}
	}
	end := -1
	for i := len(text) - 1; i >= 0; i-- {
		if text[i] == ']' {
			end = i + 1
			break
		}
	}
	if start < 0 || end <= start {
		return "", false
	}
	return text[start:end], true
}

// ClampConfidence bounds a model-reported confidence to [0, 1].
func ClampConfidence(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
