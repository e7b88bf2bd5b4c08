package chat

import (
	"context"
	"encoding/json"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type PartKind string

const (
	PartInputText  PartKind = "input_text"
	PartOutputText PartKind = "output_text"
)

// TextPart is one typed text fragment of a conversation turn.
type TextPart struct {
	Kind PartKind `json:"type"`
	Text string   `json:"text"`
}

// Turn is one message in the conversation, used as generation context.
type Turn struct {
	Role    Role       `json:"role"`
	Content []TextPart `json:"content"`
}

// History is the ordered, append-only turn sequence for one pipeline run.
// It is seeded with the inbound user turn and lives only for that run.
type History []Turn

func NewHistory(userText string) History {
	return History{{
		Role:    RoleUser,
		Content: []TextPart{{Kind: PartInputText, Text: userText}},
	}}
}

func UserTurn(text string) Turn {
	return Turn{Role: RoleUser, Content: []TextPart{{Kind: PartInputText, Text: text}}}
}

func AssistantTurn(text string) Turn {
	return Turn{Role: RoleAssistant, Content: []TextPart{{Kind: PartOutputText, Text: text}}}
}

// IntentCategory is the closed classification label routing a request
// to a persona. Assigned once per request, never revised downstream.
type IntentCategory string

const (
	IntentServiceInquiry  IntentCategory = "service_inquiry"
	IntentPricingInquiry  IntentCategory = "pricing_inquiry"
	IntentBookingRequest  IntentCategory = "booking_request"
	IntentGetInformation  IntentCategory = "get_information"
	IntentGeneralQuestion IntentCategory = "general_question"
)

func (c IntentCategory) Valid() bool {
	switch c {
	case IntentServiceInquiry, IntentPricingInquiry, IntentBookingRequest,
		IntentGetInformation, IntentGeneralQuestion:
		return true
	}
	return false
}

// DecodingParams are the sampling settings a persona is invoked with.
type DecodingParams struct {
	Temperature float32
	TopP        float32
	MaxTokens   int
}

// Tool is a deterministic callable a persona may invoke mid-generation.
type Tool struct {
	Name        string
	Description string
	// Parameters is the JSON schema for the tool's arguments.
	Parameters json.RawMessage
	// Call validates args and returns a fixed output shape. It must not
	// fail for recognized-but-unpriced items.
	Call func(ctx context.Context, args json.RawMessage) (any, error)
}

// Persona is an immutable bundle of instructions, decoding parameters
// and declared tools, defined at process start.
type Persona struct {
	Name         string
	Instructions string
	Decoding     DecodingParams
	Tools        []Tool
	// OutputSchema, when set, constrains the model to a JSON object of
	// this shape (used by the fallback classifier).
	OutputSchemaName string
	OutputSchema     json.RawMessage
}

// RunResult is one completed persona invocation: the final text plus
// the turns it produced, in call order.
type RunResult struct {
	Text     string
	NewTurns []Turn
}

// Generator produces a response for a persona over the accumulated
// history, resolving any nested tool calls before returning.
type Generator interface {
	Run(ctx context.Context, persona *Persona, history History) (*RunResult, error)
}

// ScreenResult is the outcome of the safety screen. FailOutput is the
// normalized per-rule failure payload and is the only screen detail
// callers may expose.
type ScreenResult struct {
	Tripped    bool
	FailOutput any
	SafeText   string
}

// Workflow carries the auxiliary request fields the screen may scrub.
type Workflow struct {
	InputAsText string `json:"input_as_text"`
	InputText   string `json:"input_text,omitempty"`
}

// SafetyScreen checks raw input against the configured rule-set and may
// redact sensitive spans from history and workflow fields in place.
type SafetyScreen interface {
	Screen(ctx context.Context, text string, history History, wf *Workflow) (*ScreenResult, error)
}

// ChatRequest is the user's raw input for one turn.
type ChatRequest struct {
	Text string
}

// PipelineResult is the terminal outcome of one pipeline run. When the
// safety screen trips, ScreenFailure replaces the response and no
// classification is present.
type PipelineResult struct {
	Response       string         `json:"response"`
	Classification IntentCategory `json:"classification"`
	ElapsedMs      int64          `json:"elapsed_ms"`
	ScreenFailure  any            `json:"-"`
}

// Service runs the full request pipeline.
type Service interface {
	Process(ctx context.Context, req ChatRequest) (*PipelineResult, error)
}
