// Package llm defines the Provider interface for conversational Large
// Language Model backends with server-side conversation state.
//
// An LLM provider wraps a remote model API (e.g., OpenAI's Responses API) and
// exposes a uniform interface for the voice session: create a conversation
// once per call, then stream a response for each caller turn. Conversation
// history lives on the provider side, keyed by the conversation ID, so the
// session never replays the transcript.
//
// Implementations must be safe for concurrent use. Channels returned by
// StreamResponse must be closed by the implementation when the stream ends or
// when the supplied context is cancelled.
package llm

import "context"

// Message is a single conversation message submitted as input.
type Message struct {
	// Role is one of "user", "assistant", "system", or "developer".
	Role string

	// Content is the text content of the message.
	Content string
}

// ToolCall represents a function invocation requested by the model.
type ToolCall struct {
	// CallID is the provider-assigned identifier linking this call to its
	// output item.
	CallID string

	// Name is the function name.
	Name string

	// Arguments is the JSON-encoded arguments string.
	Arguments string
}

// FunctionCallOutput carries the result of an executed tool call back to the
// model.
type FunctionCallOutput struct {
	// CallID identifies which tool call this output answers.
	CallID string

	// Output is the JSON-encoded result of the tool execution.
	Output string
}

// InputItem is one element of a response request's input list. Exactly one
// field is non-nil.
type InputItem struct {
	Message            *Message
	FunctionCallOutput *FunctionCallOutput
}

// MessageInput builds an InputItem carrying a conversation message.
func MessageInput(role, content string) InputItem {
	return InputItem{Message: &Message{Role: role, Content: content}}
}

// FunctionCallOutputInput builds an InputItem carrying a tool result.
func FunctionCallOutputInput(callID, output string) InputItem {
	return InputItem{FunctionCallOutput: &FunctionCallOutput{CallID: callID, Output: output}}
}

// ToolDefinition describes a function that can be offered to the model.
type ToolDefinition struct {
	// Name is the function's unique identifier.
	Name string

	// Description explains what the function does (included in model prompts).
	Description string

	// Parameters is the JSON Schema describing the function's input.
	Parameters map[string]any

	// Strict requests schema-validated arguments from providers that support
	// structured outputs.
	Strict bool
}

// StreamEventType classifies a StreamEvent.
type StreamEventType int

const (
	// EventTextDelta carries an incremental text fragment of the reply.
	EventTextDelta StreamEventType = iota

	// EventToolCall carries a complete function invocation request. The
	// caller executes it and continues the turn with a FunctionCallOutput
	// input item.
	EventToolCall

	// EventCompleted signals that the response finished normally. Always the
	// last event before the channel closes on the happy path.
	EventCompleted

	// EventError reports a stream failure. Always the last event before the
	// channel closes on the failure path.
	EventError
)

// StreamEvent is a single event from a streaming response.
type StreamEvent struct {
	// Type classifies the event; the remaining fields are meaningful only for
	// the types documented on each.
	Type StreamEventType

	// Delta is the text fragment for EventTextDelta.
	Delta string

	// ToolCall is the requested invocation for EventToolCall.
	ToolCall ToolCall

	// Err is the failure for EventError.
	Err error
}

// ResponseRequest carries everything the model needs to produce one response
// within an existing conversation.
type ResponseRequest struct {
	// ConversationID threads this response into server-side history. Must be
	// an ID previously returned by CreateConversation.
	ConversationID string

	// Instructions is the system prompt applied to this response.
	Instructions string

	// Input is the ordered list of new items for this turn: typically a
	// single user message, or tool outputs when continuing after
	// EventToolCall.
	Input []InputItem

	// Tools is the set of function definitions offered to the model.
	Tools []ToolDefinition
}

// Provider is the abstraction over any conversational LLM backend.
//
// Implementations must be safe for concurrent use from multiple goroutines.
// Each method should propagate context cancellation promptly: when ctx is
// cancelled the method must return (or close its channel) as quickly as
// possible.
type Provider interface {
	// CreateConversation allocates server-side conversation state and returns
	// its ID. Called once per phone call, before the first response.
	CreateConversation(ctx context.Context) (string, error)

	// StreamResponse sends req to the model and returns a read-only channel
	// that emits StreamEvent values as they arrive. The channel is closed by
	// the implementation when the response finishes or when ctx is cancelled.
	//
	// Callers must drain the channel to avoid goroutine leaks. Errors that
	// occur after the channel is opened are surfaced as a final EventError;
	// the initial error return is non-nil only for failures that prevent the
	// stream from starting (e.g., invalid credentials, malformed request).
	//
	// The returned channel must never be nil when error is nil.
	StreamResponse(ctx context.Context, req ResponseRequest) (<-chan StreamEvent, error)
}
