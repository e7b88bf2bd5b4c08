package chat

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGenerator scripts persona runs for tests.
type fakeGenerator struct {
	calls   int
	text    string
	err     error
	lastRun *Persona
}

func (f *fakeGenerator) Run(_ context.Context, persona *Persona, _ History) (*RunResult, error) {
	f.calls++
	f.lastRun = persona
	if f.err != nil {
		return nil, f.err
	}
	return &RunResult{Text: f.text, NewTurns: []Turn{AssistantTurn(f.text)}}, nil
}

func TestPatternStagePriority(t *testing.T) {
	cases := []struct {
		text string
		want IntentCategory
	}{
		{"I want to book a consultation", IntentBookingRequest},
		{"What is the price for social media management?", IntentPricingInquiry},
		{"Can you schedule me for the social media package?", IntentBookingRequest},
		{"How much does graphic design cost?", IntentPricingInquiry},
		{"Tell me about your graphic design work", IntentServiceInquiry},
		{"Do you handle company incorporation?", IntentServiceInquiry},
	}
	for _, tc := range cases {
		got, ok := MatchPattern(tc.text)
		require.True(t, ok, "expected a pattern match for %q", tc.text)
		assert.Equal(t, tc.want, got, "text %q", tc.text)
	}
}

func TestPatternStageDeterministic(t *testing.T) {
	const text = "Can I book the social media package and get a price quote?"
	first, ok := MatchPattern(text)
	require.True(t, ok)
	for i := 0; i < 50; i++ {
		got, ok := MatchPattern(text)
		require.True(t, ok)
		require.Equal(t, first, got)
	}
	assert.Equal(t, IntentBookingRequest, first, "booking keywords outrank pricing and service")
}

func TestClassifyPatternSkipsModel(t *testing.T) {
	gen := &fakeGenerator{}
	c := NewClassifier(gen, true)
	history := NewHistory("I want to book a consultation")

	cat, err := c.Classify(context.Background(), "I want to book a consultation", &history)
	require.NoError(t, err)
	assert.Equal(t, IntentBookingRequest, cat)
	assert.Zero(t, gen.calls, "pattern match must short-circuit the model fallback")
	assert.Len(t, history, 1, "no turns appended without a model call")
}

func TestClassifyFallbackAppendsTurns(t *testing.T) {
	gen := &fakeGenerator{text: `{"classification":"get_information","confidence":0.92}`}
	c := NewClassifier(gen, true)
	history := NewHistory("hello there")

	cat, err := c.Classify(context.Background(), "hello there", &history)
	require.NoError(t, err)
	assert.Equal(t, IntentGetInformation, cat)
	assert.Equal(t, 1, gen.calls)
	require.Len(t, history, 2, "fallback turns are appended before returning")
	assert.Equal(t, RoleAssistant, history[1].Role)
}

func TestClassifyFallbackUnparseable(t *testing.T) {
	gen := &fakeGenerator{text: "not json"}
	c := NewClassifier(gen, true)
	history := NewHistory("hello there")

	_, err := c.Classify(context.Background(), "hello there", &history)
	assert.ErrorIs(t, err, ErrClassificationFailed)
}

func TestClassifyFallbackOutsideEnum(t *testing.T) {
	gen := &fakeGenerator{text: `{"classification":"smalltalk"}`}
	c := NewClassifier(gen, true)
	history := NewHistory("hello there")

	_, err := c.Classify(context.Background(), "hello there", &history)
	assert.ErrorIs(t, err, ErrClassificationFailed)
}

func TestClassifyPropagatesGeneratorError(t *testing.T) {
	genErr := errors.New("boom")
	gen := &fakeGenerator{err: genErr}
	c := NewClassifier(gen, true)
	history := NewHistory("hello there")

	_, err := c.Classify(context.Background(), "hello there", &history)
	assert.ErrorIs(t, err, genErr)
}

func TestClassificationSchemaSatisfiesStrictMode(t *testing.T) {
	// Strict structured output rejects schemas whose required list does
	// not cover every declared property.
	var schema struct {
		Properties           map[string]json.RawMessage `json:"properties"`
		Required             []string                   `json:"required"`
		AdditionalProperties bool                       `json:"additionalProperties"`
	}
	require.NoError(t, json.Unmarshal(ClassificationPersona().OutputSchema, &schema))

	assert.False(t, schema.AdditionalProperties)
	require.Len(t, schema.Required, len(schema.Properties))
	for name := range schema.Properties {
		assert.Contains(t, schema.Required, name)
	}
}

func TestClassifyFallbackToleratesNullOptionalFields(t *testing.T) {
	gen := &fakeGenerator{text: `{"classification":"general_question","confidence":null,"entities":null}`}
	c := NewClassifier(gen, true)
	history := NewHistory("hmm")

	cat, err := c.Classify(context.Background(), "hmm", &history)
	require.NoError(t, err)
	assert.Equal(t, IntentGeneralQuestion, cat)
}
