// Package provider describes the streaming-chat contract the Chat
// Compressor and the orchestrator consume from the model provider adapter. The adapter itself
// (wire protocol, retries, model management) is out of scope for this
// module; only the interface it must satisfy is specified here.
package provider

import (
	"context"

	"github.com/jg-phare/ollm/pkg/chattypes"
)

// EventType discriminates a streamed chat Event.
type EventType string

const (
	EventText     EventType = "text"
	EventToolCall EventType = "tool_call"
	EventFinish   EventType = "finish"
	EventError    EventType = "error"
)

// ToolCallRequest is the provider's request to invoke a tool, prior to
// the core resolving it and feeding back a ToolResult.
type ToolCallRequest struct {
	ID   string
	Name string
	Args map[string]any
}

// Event is one tagged-union item from a ChatStream.
type Event struct {
	Type         EventType
	Text         string          // set when Type == EventText
	ToolCall     ToolCallRequest // set when Type == EventToolCall
	FinishReason string          // set when Type == EventFinish
	Err          error           // set when Type == EventError
}

// Request describes a single completion call.
type Request struct {
	Model    string
	Messages []chattypes.Message
}

// Provider streams chat completion events for a request. Implementations
// are supplied by the model provider adapter; the compressor's summary
// path and the orchestrator's RunTurn consume them.
type Provider interface {
	ChatStream(ctx context.Context, req Request) (<-chan Event, error)
}
