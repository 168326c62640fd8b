// Package model defines the provider-agnostic contract for LLM clients used
// by the tool loop. It abstracts chat completion APIs (OpenAI, Anthropic,
// etc.) so the loop can invoke models without coupling to specific SDKs;
// adapters under features/model translate these normalized types into
// provider formats.
package model

import (
	"context"
	"errors"
)

type (
	// Client is the contract the tool loop uses to invoke LLM calls.
	// Implementations wrap provider SDKs and must be safe for reuse across
	// invocations.
	Client interface {
		// Complete sends a chat completion request and returns the generated
		// response, including any tool calls the model requested.
		Complete(ctx context.Context, req *Request) (*Response, error)

		// Stream sends a chat completion request and returns a Streamer that
		// yields incremental chunks (text, tool calls, usage, stop). The
		// returned Streamer must be closed by the caller. Providers without
		// streaming support return ErrStreamingUnsupported.
		Stream(ctx context.Context, req *Request) (Streamer, error)
	}

	// Streamer delivers incremental model output. Successive Recv calls
	// return chunks until io.EOF. Streamers are single-goroutine objects and
	// must release underlying resources on Close.
	Streamer interface {
		// Recv returns the next chunk from the stream.
		Recv() (Chunk, error)
		// Close closes the stream.
		Close() error
	}

	// Request captures the normalized parameters for one model invocation.
	Request struct {
		// Model is the provider-specific model identifier. Empty selects the
		// adapter's configured default.
		Model string

		// Messages is the ordered conversation history, including system
		// prompts, user input, assistant turns and tool results.
		Messages []*Message

		// Tools describes the tool schemas exposed to the model for function
		// calling. Empty disables tool use for the request.
		Tools []*ToolDefinition

		// Temperature controls sampling temperature. Zero means the provider
		// default.
		Temperature float32

		// MaxTokens caps completion tokens. Zero means the adapter default.
		MaxTokens int
	}

	// Response wraps generated content and requested tool calls.
	Response struct {
		// Content contains the assistant messages returned by the model.
		// Empty when the model only requested tool calls.
		Content []Message

		// ToolCalls lists tool invocations requested by the model. Empty when
		// the model produced a final text response.
		ToolCalls []ToolCall

		// Usage reports token usage when the provider makes it available.
		Usage TokenUsage

		// StopReason explains why generation stopped; values are
		// provider-specific (for example "end_turn", "tool_use", "max_tokens").
		StopReason string
	}

	// Message is one conversation turn composed of typed parts.
	Message struct {
		// Role is the turn role.
		Role ConversationRole

		// Parts holds the ordered message content: text, tool use requests
		// and tool results.
		Parts []Part
	}

	// Part is one element of message content. Concrete types are TextPart,
	// ToolUsePart and ToolResultPart.
	Part interface{ part() }

	// TextPart is plain message text.
	TextPart struct {
		Text string
	}

	// ToolUsePart records a tool invocation inside an assistant turn so the
	// provider can correlate the subsequent tool result.
	ToolUsePart struct {
		// ID is the provider-assigned call identifier.
		ID string
		// Name is the invoked tool name.
		Name string
		// Input is the JSON-serializable tool arguments.
		Input any
	}

	// ToolResultPart feeds a tool outcome back into the conversation.
	ToolResultPart struct {
		// ToolUseID correlates the result with the originating call.
		ToolUseID string
		// Content is the JSON-serializable tool output, or a failure
		// description when IsError is set.
		Content any
		// IsError marks the result as a failure the model should recover
		// from.
		IsError bool
	}

	// ToolDefinition describes a tool schema passed to the provider.
	ToolDefinition struct {
		// Name is the identifier presented to the model.
		Name string
		// Description documents the tool for prompting purposes.
		Description string
		// InputSchema is the JSON Schema describing the tool's parameters,
		// typically a map[string]any or json.RawMessage.
		InputSchema any
	}

	// ToolCall is a tool invocation requested by the model.
	ToolCall struct {
		// ID is the opaque provider call identifier used to correlate the
		// result back into the conversation.
		ID string
		// Name identifies the requested tool.
		Name string
		// Payload carries the JSON arguments generated by the model.
		Payload any
	}

	// Chunk is one streaming event. Type indicates which fields are
	// populated.
	Chunk struct {
		// Type is one of ChunkTypeText, ChunkTypeToolCall, ChunkTypeUsage or
		// ChunkTypeStop.
		Type string
		// Text is the text delta when Type is ChunkTypeText.
		Text string
		// ToolCall is the requested invocation when Type is ChunkTypeToolCall.
		ToolCall *ToolCall
		// UsageDelta reports incremental usage when Type is ChunkTypeUsage.
		UsageDelta *TokenUsage
		// StopReason explains termination when Type is ChunkTypeStop.
		StopReason string
	}

	// TokenUsage records token counts when the provider reports them.
	TokenUsage struct {
		// InputTokens counts tokens consumed by the prompt and history.
		InputTokens int
		// OutputTokens counts tokens produced by the completion.
		OutputTokens int
		// TotalTokens is the aggregate when reported by the provider.
		TotalTokens int
	}

	// ConversationRole is the role of a conversation turn.
	ConversationRole string
)

const (
	// ConversationRoleSystem marks instruction/context turns.
	ConversationRoleSystem ConversationRole = "system"
	// ConversationRoleUser marks end-user turns.
	ConversationRoleUser ConversationRole = "user"
	// ConversationRoleAssistant marks model turns.
	ConversationRoleAssistant ConversationRole = "assistant"
)

// Chunk type constants populate Chunk.Type.
const (
	ChunkTypeText     = "text"
	ChunkTypeToolCall = "tool_call"
	ChunkTypeUsage    = "usage"
	ChunkTypeStop     = "stop"
)

func (TextPart) part()       {}
func (ToolUsePart) part()    {}
func (ToolResultPart) part() {}

// ErrStreamingUnsupported indicates the provider does not implement streaming
// for the requested model or parameters.
var ErrStreamingUnsupported = errors.New("model: streaming not supported")

// ErrRateLimited indicates the provider rejected the request due to rate
// limiting. Adapters wrap provider errors with this sentinel so callers can
// match with errors.Is.
var ErrRateLimited = errors.New("model: rate limited")

// Text concatenates the text parts of the response content into one string.
func (r *Response) Text() string {
	var out string
	for _, m := range r.Content {
		for _, p := range m.Parts {
			if tp, ok := p.(TextPart); ok {
				out += tp.Text
			}
		}
	}
	return out
}
