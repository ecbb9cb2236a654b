package core

import (
	"time"
)

// InboundEmail represents a normalized email handed to the classification
// pipeline: plain text plus the metadata used for duplicate detection.
type InboundEmail struct {
	Sender      string
	Recipient   string
	Subject     string
	Body        string
	ReceivedAt  time.Time
	MessageID   string
	InReplyTo   string
	References  []string
	ThreadID    string
	SourceIP    string
	Source      string
	Attachments []Attachment
}

// Attachment carries already-extracted attachment text. Raw document parsing
// (PDF/Word/OCR) happens upstream of this service.
type Attachment struct {
	Index       int
	Filename    string
	ContentType string
	Text        string
}

// ProcessedEmailRecord is one entry in the duplicate cache. Records are
// created once at the end of classification and never mutated; they only
// disappear through time-window or capacity eviction.
type ProcessedEmailRecord struct {
	ID               string
	Sender           string
	Recipient        string
	ThreadID         string
	MessageID        string
	InReplyTo        string
	References       []string
	SourceIP         string
	SubjectText      string
	BodyText         string
	SubjectEmbedding []float32
	BodyEmbedding    []float32
	ReceivedAt       time.Time
	Snapshot         *ClassificationResult
}

// DuplicateMatch is the outcome of a duplicate cache lookup.
type DuplicateMatch struct {
	IsDuplicate bool
	Confidence  float64
	MatchedID   string
	Reason      string
}

// CacheStats describes the current duplicate cache state.
type CacheStats struct {
	Size              int     `json:"size"`
	Capacity          int     `json:"capacity"`
	RetentionDays     int     `json:"retention_days"`
	SemanticThreshold float64 `json:"semantic_threshold"`
	MetadataWeight    float64 `json:"metadata_weight"`
	SubjectWeight     float64 `json:"subject_weight"`
	ContentWeight     float64 `json:"content_weight"`
	TimeWindowHours   float64 `json:"time_window_hours"`
}

// RequestTypeResult is a single request-type classification entry.
type RequestTypeResult struct {
	RequestType    string  `json:"request_type"`
	SubRequestType string  `json:"sub_request_type"`
	Confidence     float64 `json:"confidence"`
	Reasoning      string  `json:"reasoning"`
	IsPrimary      bool    `json:"is_primary"`
}

// ExtractedField is a single structured field pulled from the email.
type ExtractedField struct {
	FieldName  string  `json:"field_name"`
	Value      any     `json:"value"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

// ClassificationResult is the complete response for one processed email.
// Failures never surface as bare errors; they populate the Error field
// alongside whatever best-effort data was produced.
type ClassificationResult struct {
	RequestTypes        []RequestTypeResult `json:"request_types"`
	ExtractedFields     []ExtractedField    `json:"extracted_fields"`
	SupportGroup        string              `json:"support_group"`
	IsDuplicate         bool                `json:"is_duplicate"`
	DuplicateReason     *string             `json:"duplicate_reason"`
	DuplicateConfidence float64             `json:"duplicate_confidence"`
	DuplicateID         *string             `json:"duplicate_id"`
	ProcessingTimeMs    float64             `json:"processing_time_ms"`
	Error               *string             `json:"error"`
}

// Primary returns the entry marked is_primary, or nil for an empty result.
func (r *ClassificationResult) Primary() *RequestTypeResult {
	for i := range r.RequestTypes {
		if r.RequestTypes[i].IsPrimary {
			return &r.RequestTypes[i]
		}
	}
	return nil
}

// SubRequestType is one sub-request type within a request type definition.
type SubRequestType struct {
	Name               string   `json:"name"`
	Definition         string   `json:"definition"`
	RequiredAttributes []string `json:"required_attributes"`
}

// RequestType is one entry of the request-type taxonomy. The taxonomy is
// supplied by an external collaborator and read-only to this service.
type RequestType struct {
	Name            string           `json:"name"`
	Definition      string           `json:"definition"`
	SupportGroup    string           `json:"support_group"`
	SubRequestTypes []SubRequestType `json:"sub_request_types"`
}
