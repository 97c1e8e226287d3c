package core

import "time"

// Message is the unit of communication on the message bus. A request and its
// responses share a ConversationID; the pair (ConversationID, From) is what a
// waiting caller filters on.
type Message struct {
	ID             string         `json:"id"`
	From           string         `json:"from"`
	To             string         `json:"to"`
	Type           string         `json:"type"`
	Payload        map[string]any `json:"payload,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
	ConversationID string         `json:"conversation_id,omitempty"`
}

// NewMessage creates a message with a fresh id and the current timestamp.
func NewMessage(from, to, typ string, payload map[string]any) Message {
	if payload == nil {
		payload = map[string]any{}
	}

	return Message{
		ID:        NewID(),
		From:      from,
		To:        to,
		Type:      typ,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// InConversation returns a copy of m bound to conversation id.
func (m Message) InConversation(id string) Message {
	m.ConversationID = id
	return m
}

// Reply builds a response addressed back to m's sender in the same conversation.
func (m Message) Reply(typ string, payload map[string]any) Message {
	return NewMessage(m.To, m.From, typ, payload).InConversation(m.ConversationID)
}

// PayloadString returns payload[key] when it is a string.
func (m Message) PayloadString(key string) string {
	s, _ := m.Payload[key].(string)
	return s
}
