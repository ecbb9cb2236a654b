package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const classifierOutput = `[
  {"request_type": "Money Movement - Inbound", "sub_request_type": "Principal", "confidence": 0.92, "reasoning": "Sender asks to remit funds", "is_primary": true},
  {"request_type": "Fee Payment", "sub_request_type": "Ongoing Fee", "confidence": 0.41, "reasoning": "Mentions an ongoing fee", "is_primary": false}
]`

type stubLLM struct {
	responses []string
	errs      []error
	calls     int
}

func (s *stubLLM) Complete(_ context.Context, _, _ string) (string, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	return s.responses[len(s.responses)-1], nil
}

type stubEmbedder struct {
	vec []float32
	err error
}

func (s *stubEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return s.vec, s.err
}

type stubCache struct {
	match         DuplicateMatch
	lookupSubject []float32
	lookupBody    []float32
	lookupCalls   int
	inserted      []*ProcessedEmailRecord
}

func (s *stubCache) Lookup(_ *InboundEmail, subjectEmb, bodyEmb []float32) DuplicateMatch {
	s.lookupCalls++
	s.lookupSubject = subjectEmb
	s.lookupBody = bodyEmb
	return s.match
}

func (s *stubCache) Insert(record *ProcessedEmailRecord) { s.inserted = append(s.inserted, record) }
func (s *stubCache) Stats() CacheStats                   { return CacheStats{} }

type stubExtractor struct {
	fields        []ExtractedField
	err           error
	calls         int
	gotPrimary    RequestTypeResult
	gotAttributes []string
}

func (s *stubExtractor) ExtractFields(_ context.Context, _ *InboundEmail, primary RequestTypeResult, requiredAttributes []string) ([]ExtractedField, error) {
	s.calls++
	s.gotPrimary = primary
	s.gotAttributes = requiredAttributes
	return s.fields, s.err
}

type stubTaxonomy struct {
	types []RequestType
	err   error
}

func (s *stubTaxonomy) GetRequestTypes() ([]RequestType, error) { return s.types, s.err }

type stubSink struct {
	results []*ClassificationResult
}

func (s *stubSink) Record(_ context.Context, _ *InboundEmail, result *ClassificationResult) error {
	s.results = append(s.results, result)
	return nil
}
func (s *stubSink) Stop() {}

func testTaxonomy() []RequestType {
	return []RequestType{
		{
			Name:         "Money Movement - Inbound",
			Definition:   "Funds coming into the bank",
			SupportGroup: "payments",
			SubRequestTypes: []SubRequestType{
				{Name: "Principal", RequiredAttributes: []string{"deal_name", "amount", "value_date"}},
			},
		},
		{
			Name:         "Fee Payment",
			Definition:   "Payment of fees",
			SupportGroup: "fees",
			SubRequestTypes: []SubRequestType{
				{Name: "Ongoing Fee", RequiredAttributes: []string{"amount"}},
			},
		},
	}
}

func testInbound() *InboundEmail {
	return &InboundEmail{
		Sender:     "ops@client.example.com",
		Recipient:  "servicing@bank.example.com",
		Subject:    "Funding request for deal ABC",
		Body:       "Please remit USD 50,000 to the facility account by Friday.",
		MessageID:  "<msg-1@client.example.com>",
		ReceivedAt: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
	}
}

type testFixture struct {
	llm       *stubLLM
	embedder  *stubEmbedder
	cache     *stubCache
	extractor *stubExtractor
	sink      *stubSink
	service   *ClassifierService
}

func newFixture() *testFixture {
	f := &testFixture{
		llm:       &stubLLM{responses: []string{classifierOutput}},
		embedder:  &stubEmbedder{vec: []float32{0.1, 0.2, 0.3}},
		cache:     &stubCache{},
		extractor: &stubExtractor{fields: []ExtractedField{{FieldName: "amount", Value: 50000.0, Confidence: 0.9, Source: "llm"}}},
		sink:      &stubSink{},
	}
	f.service = NewClassifierService(f.llm, f.embedder, f.cache, f.extractor,
		&stubTaxonomy{types: testTaxonomy()}, f.sink, zap.NewNop())
	return f
}

func TestProcessEmailSuccess(t *testing.T) {
	f := newFixture()

	result, err := f.service.ProcessEmail(context.Background(), testInbound())
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Nil(t, result.Error)
	require.Len(t, result.RequestTypes, 2)
	assert.Equal(t, "Money Movement - Inbound", result.Primary().RequestType)
	assert.Equal(t, "payments", result.SupportGroup)
	require.Len(t, result.ExtractedFields, 1)
	assert.Equal(t, "amount", result.ExtractedFields[0].FieldName)

	assert.Equal(t, "Principal", f.extractor.gotPrimary.SubRequestType)
	assert.Equal(t, []string{"deal_name", "amount", "value_date"}, f.extractor.gotAttributes)

	require.Len(t, f.cache.inserted, 1)
	assert.Equal(t, recordID("<msg-1@client.example.com>"), f.cache.inserted[0].ID)
	require.Len(t, f.sink.results, 1)
	assert.Same(t, result, f.sink.results[0])
}

func TestProcessEmailRejectsInvalidInput(t *testing.T) {
	f := newFixture()

	email := testInbound()
	email.Sender = "  "
	_, err := f.service.ProcessEmail(context.Background(), email)
	assert.ErrorIs(t, err, ErrInvalidInput)

	email = testInbound()
	email.Body = ""
	_, err = f.service.ProcessEmail(context.Background(), email)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.service.ProcessEmail(context.Background(), nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	assert.Zero(t, f.cache.lookupCalls)
	assert.Empty(t, f.cache.inserted)
}

func TestProcessEmailClassificationFailureLabels(t *testing.T) {
	cases := []struct {
		name  string
		errs  []error
		label string
	}{
		{"exhausted", []error{ErrUpstreamExhausted, ErrUpstreamExhausted}, "UpstreamExhausted"},
		{"timeout", []error{ErrUpstreamTimeout, ErrUpstreamTimeout}, "UpstreamTimeout"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			f.llm.errs = tc.errs

			result, err := f.service.ProcessEmail(context.Background(), testInbound())
			require.NoError(t, err)
			require.NotNil(t, result.Error)
			assert.Equal(t, tc.label, *result.Error)
			assert.Empty(t, result.RequestTypes)
			assert.Zero(t, f.extractor.calls)

			// The email is still remembered for future duplicate checks.
			assert.Len(t, f.cache.inserted, 1)
		})
	}
}

func TestProcessEmailMalformedResponseLabel(t *testing.T) {
	f := newFixture()
	f.llm.responses = []string{"I am unable to classify this email."}

	result, err := f.service.ProcessEmail(context.Background(), testInbound())
	require.NoError(t, err)
	require.NotNil(t, result.Error)
	assert.Equal(t, "MalformedModelResponse", *result.Error)
}

func TestProcessEmailRetriesOnceOnRetryableFailure(t *testing.T) {
	f := newFixture()
	f.llm.errs = []error{ErrUpstreamTimeout, nil}
	f.llm.responses = []string{"", classifierOutput}

	result, err := f.service.ProcessEmail(context.Background(), testInbound())
	require.NoError(t, err)
	assert.Nil(t, result.Error)
	assert.Equal(t, 2, f.llm.calls)
	assert.Len(t, result.RequestTypes, 2)
}

func TestProcessEmailNoRetryOnOtherFailure(t *testing.T) {
	f := newFixture()
	f.llm.errs = []error{errors.New("connection refused")}

	result, err := f.service.ProcessEmail(context.Background(), testInbound())
	require.NoError(t, err)
	assert.Equal(t, 1, f.llm.calls)
	require.NotNil(t, result.Error)
	assert.Equal(t, "connection refused", *result.Error)
}

func TestProcessEmailDuplicateStillClassified(t *testing.T) {
	f := newFixture()
	f.cache.match = DuplicateMatch{
		IsDuplicate: true,
		Confidence:  0.93,
		MatchedID:   "earlier-record",
		Reason:      "Duplicate email from ops@client.example.com",
	}

	result, err := f.service.ProcessEmail(context.Background(), testInbound())
	require.NoError(t, err)

	assert.True(t, result.IsDuplicate)
	assert.Equal(t, 0.93, result.DuplicateConfidence)
	require.NotNil(t, result.DuplicateID)
	assert.Equal(t, "earlier-record", *result.DuplicateID)
	require.NotNil(t, result.DuplicateReason)

	// Duplicates are classified anyway and inserted into the cache.
	assert.Len(t, result.RequestTypes, 2)
	assert.Len(t, f.cache.inserted, 1)
}

func TestProcessEmailExtractionFailureKeepsClassification(t *testing.T) {
	f := newFixture()
	f.extractor.err = ErrMalformedModelResponse
	f.extractor.fields = nil

	result, err := f.service.ProcessEmail(context.Background(), testInbound())
	require.NoError(t, err)

	assert.Len(t, result.RequestTypes, 2)
	assert.Equal(t, "payments", result.SupportGroup)
	require.NotNil(t, result.Error)
	assert.Equal(t, "MalformedModelResponse", *result.Error)
	assert.Empty(t, result.ExtractedFields)
}

func TestProcessEmailDegradesWhenEmbeddingUnavailable(t *testing.T) {
	f := newFixture()
	f.embedder.vec = nil
	f.embedder.err = ErrEmbeddingUnavailable

	result, err := f.service.ProcessEmail(context.Background(), testInbound())
	require.NoError(t, err)

	assert.Nil(t, result.Error)
	assert.Equal(t, 1, f.cache.lookupCalls)
	assert.Nil(t, f.cache.lookupSubject)
	assert.Nil(t, f.cache.lookupBody)
}

func TestNormalizePrimary(t *testing.T) {
	t.Run("no primary marked", func(t *testing.T) {
		results := normalizePrimary([]RequestTypeResult{
			{RequestType: "A", Confidence: 0.5},
			{RequestType: "B", Confidence: 0.9},
		})
		assert.False(t, results[0].IsPrimary)
		assert.True(t, results[1].IsPrimary)
	})

	t.Run("several primaries marked", func(t *testing.T) {
		results := normalizePrimary([]RequestTypeResult{
			{RequestType: "A", Confidence: 0.8, IsPrimary: true},
			{RequestType: "B", Confidence: 0.6, IsPrimary: true},
		})
		assert.True(t, results[0].IsPrimary)
		assert.False(t, results[1].IsPrimary)
	})

	t.Run("confidence tie keeps first listed", func(t *testing.T) {
		results := normalizePrimary([]RequestTypeResult{
			{RequestType: "A", Confidence: 0.7},
			{RequestType: "B", Confidence: 0.7},
		})
		assert.True(t, results[0].IsPrimary)
		assert.False(t, results[1].IsPrimary)
	})
}

func TestDeriveThreadID(t *testing.T) {
	assert.Equal(t, "t1", DeriveThreadID(&InboundEmail{ThreadID: "t1", References: []string{"r1"}, InReplyTo: "p1"}))
	assert.Equal(t, "r1", DeriveThreadID(&InboundEmail{References: []string{"r1", "r2"}, InReplyTo: "p1"}))
	assert.Equal(t, "p1", DeriveThreadID(&InboundEmail{InReplyTo: "p1"}))
	assert.Equal(t, "", DeriveThreadID(&InboundEmail{}))
}

func TestRecordIDStableForMessageID(t *testing.T) {
	a := recordID("<msg-1@client.example.com>")
	b := recordID("<msg-1@client.example.com>")
	assert.Equal(t, a, b)
	assert.Len(t, a, 32)

	x := recordID("")
	y := recordID("")
	assert.NotEmpty(t, x)
	assert.NotEqual(t, x, y)
}

func TestFormatAttachmentsOrdersByIndex(t *testing.T) {
	out := FormatAttachments([]Attachment{
		{Index: 2, Filename: "b.csv", Text: "second"},
		{Index: 1, Filename: "a.txt", Text: "first"},
	})
	assert.Less(t, strings.Index(out, "ATTACHMENT 1"), strings.Index(out, "ATTACHMENT 2"))
	assert.Contains(t, out, "a.txt")
	assert.Empty(t, FormatAttachments(nil))
}
