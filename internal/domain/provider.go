package domain

import (
	"context"
	"errors"
)

// Provider-level failures the conversation layer turns into user-facing
// fallback replies. Wrapped errors carry detail; classification goes
// through errors.Is.
var (
	ErrMissingAPIKey  = errors.New("api key missing or placeholder")
	ErrQuotaExhausted = errors.New("provider quota exhausted")
	ErrUnavailable    = errors.New("provider unavailable")
)

// Provider is the generative AI backend.
type Provider interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
	Name() string
	Healthy(ctx context.Context) error
}

// Content is one conversational turn as the backend sees it.
type Content struct {
	Role  string // user | model | function
	Parts []Part
}

// Part is a single content fragment. Exactly one field is set.
type Part struct {
	Text             string
	InlineData       *Blob
	FunctionCall     *ToolCall
	FunctionResponse *ToolResult
}

// Blob is base64-encoded inline media.
type Blob struct {
	MimeType string
	Data     string
}

type GenerateRequest struct {
	Contents          []Content
	SystemInstruction string
	Temperature       float64
	Tools             []ToolDefinition
}

type GenerateResponse struct {
	Text         string
	ToolCalls    []ToolCall
	Grounding    []GroundingChunk
	FinishReason string
	Usage        Usage
	LatencyMs    int64
}

func (r *GenerateResponse) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// ToolCall is a function invocation requested by the backend. ID may be
// empty for backends that correlate results by name and order.
type ToolCall struct {
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ToolResult carries a resolved tool payload back to the backend. Failures
// travel inside Payload, never as Go errors, so one bad tool cannot sink
// the turn.
type ToolResult struct {
	ID      string         `json:"id,omitempty"`
	Name    string         `json:"name"`
	Payload map[string]any `json:"payload"`
}

type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// GroundingChunk is a raw web source reference from the backend. Title may
// be empty; presentation-level defaulting is the caller's job.
type GroundingChunk struct {
	URI   string
	Title string
}

type Usage struct {
	PromptTokens int `json:"prompt_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}
