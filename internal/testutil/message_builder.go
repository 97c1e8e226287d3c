package testutil

import (
	"github.com/hupe1980/agentkernel/core"
)

// MessageBuilder provides a fluent helper for constructing bus messages in tests.
//
//	msg := NewMessageBuilder("coordinator_01", "analyzer_01").Type("analyze_request").Conversation("cv1").Build()
type MessageBuilder struct {
	from, to, typ, conversation string
	payload                     map[string]any
}

// NewMessageBuilder creates a builder for a message from -> to with type "note".
func NewMessageBuilder(from, to string) *MessageBuilder {
	return &MessageBuilder{from: from, to: to, typ: "note", payload: map[string]any{}}
}

// Type sets the message type tag (chainable).
func (b *MessageBuilder) Type(t string) *MessageBuilder { b.typ = t; return b }

// Conversation sets the conversation id (chainable).
func (b *MessageBuilder) Conversation(id string) *MessageBuilder { b.conversation = id; return b }

// Payload sets a payload entry (chainable).
func (b *MessageBuilder) Payload(key string, val any) *MessageBuilder {
	b.payload[key] = val
	return b
}

// Build finalizes and returns the message.
func (b *MessageBuilder) Build() core.Message {
	return core.NewMessage(b.from, b.to, b.typ, b.payload).InConversation(b.conversation)
}

// Event builds a reactive event with the given type, priority and path payload.
func Event(typ core.EventType, priority float64, path string) core.ReactiveEvent {
	return core.NewReactiveEvent(typ, "test-sensor", priority, map[string]any{"path": path})
}
