package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessage_Reply(t *testing.T) {
	req := NewMessage("coordinator", "analyzer", "analysis_request", map[string]any{"task": "review"}).
		InConversation("conv-1")

	resp := req.Reply("analysis_response", map[string]any{"analysis": "ok"})

	assert.Equal(t, "analyzer", resp.From)
	assert.Equal(t, "coordinator", resp.To)
	assert.Equal(t, "conv-1", resp.ConversationID)
	assert.NotEqual(t, req.ID, resp.ID)
	assert.Equal(t, "ok", resp.PayloadString("analysis"))
	assert.Empty(t, resp.PayloadString("missing"))
}

func TestNewMessage_NilPayload(t *testing.T) {
	m := NewMessage("a", "b", "ping", nil)
	assert.NotNil(t, m.Payload)
	assert.False(t, m.Timestamp.IsZero())
}

func TestNewReactiveEvent_CopiesPayload(t *testing.T) {
	payload := map[string]any{"path": "main.go"}
	ev := NewReactiveEvent(EventChanged, "fs", 1.5, payload)

	payload["path"] = "other.go"

	assert.Equal(t, "main.go", ev.PayloadString("path"))
	assert.Equal(t, 1.0, ev.Priority)
	assert.NotEmpty(t, ev.ID)
}
