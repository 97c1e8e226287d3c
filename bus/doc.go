// Package bus is an in-process publish/subscribe message bus for agents that
// cooperate through asynchronous request/response exchanges.
//
// Send appends the message to an audit log and then calls type subscribers
// followed by recipient subscribers, each in registration order, on the
// sender's goroutine. A Mailbox collects the messages addressed to one agent
// and lets it wait for the reply belonging to a conversation.
package bus
