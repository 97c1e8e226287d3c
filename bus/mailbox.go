package bus

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/agentkernel/core"
)

// DefaultResponseTimeout bounds WaitForResponse when callers pass zero.
const DefaultResponseTimeout = 30 * time.Second

// DefaultMailboxLimit caps the unconsumed messages a mailbox keeps.
const DefaultMailboxLimit = 1024

// MailboxOptions configure a Mailbox.
type MailboxOptions struct {
	// Limit is the number of unconsumed messages kept; the oldest are
	// dropped beyond it. It also bounds the discarded conversation ids.
	Limit int
}

// Mailbox holds the messages addressed to one agent.
type Mailbox struct {
	owner string
	limit int

	mu        sync.Mutex
	msgs      []core.Message
	discarded map[string]struct{}
	order     []string
	changed   chan struct{}

	unsubscribe func()
}

// NewMailbox subscribes a mailbox for owner on b.
func NewMailbox(b *Bus, owner string, optFns ...func(o *MailboxOptions)) *Mailbox {
	opts := MailboxOptions{Limit: DefaultMailboxLimit}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Limit < 1 {
		opts.Limit = DefaultMailboxLimit
	}

	m := &Mailbox{
		owner:     owner,
		limit:     opts.Limit,
		discarded: make(map[string]struct{}),
		changed:   make(chan struct{}),
	}
	m.unsubscribe = b.SubscribeRecipient(owner, m.deliver)

	return m
}

// Owner returns the agent id the mailbox belongs to.
func (m *Mailbox) Owner() string { return m.owner }

func (m *Mailbox) deliver(_ context.Context, msg core.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, gone := m.discarded[msg.ConversationID]; gone && msg.ConversationID != "" {
		return
	}

	m.msgs = append(m.msgs, msg)
	if over := len(m.msgs) - m.limit; over > 0 {
		m.msgs = append([]core.Message(nil), m.msgs[over:]...)
	}

	close(m.changed)
	m.changed = make(chan struct{})
}

// Messages returns the messages not yet consumed, oldest first.
func (m *Mailbox) Messages() []core.Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]core.Message(nil), m.msgs...)
}

// WaitForResponse returns the oldest unconsumed message of conversationID
// sent by someone other than the owner, removing it from the mailbox. It
// returns at once when such a message is already pending and otherwise
// blocks until one is delivered, ctx ends, or timeout elapses. A timeout
// yields *core.ResponseTimeoutError.
func (m *Mailbox) WaitForResponse(ctx context.Context, conversationID string, timeout time.Duration) (core.Message, error) {
	if timeout <= 0 {
		timeout = DefaultResponseTimeout
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		m.mu.Lock()
		msg, ok := m.take(conversationID)
		changed := m.changed
		m.mu.Unlock()

		if ok {
			return msg, nil
		}

		select {
		case <-changed:
		case <-timer.C:
			return core.Message{}, &core.ResponseTimeoutError{ConversationID: conversationID, Timeout: timeout}
		case <-ctx.Done():
			return core.Message{}, ctx.Err()
		}
	}
}

func (m *Mailbox) take(conversationID string) (core.Message, bool) {
	for i, msg := range m.msgs {
		if msg.ConversationID == conversationID && msg.From != m.owner {
			m.msgs = append(m.msgs[:i:i], m.msgs[i+1:]...)
			return msg, true
		}
	}

	return core.Message{}, false
}

// Discard drops the pending messages of conversationID and any that arrive
// for it later, such as replies that missed their wait.
func (m *Mailbox) Discard(conversationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := make([]core.Message, 0, len(m.msgs))
	for _, msg := range m.msgs {
		if msg.ConversationID != conversationID {
			kept = append(kept, msg)
		}
	}

	m.msgs = kept

	if _, ok := m.discarded[conversationID]; ok {
		return
	}

	m.discarded[conversationID] = struct{}{}
	m.order = append(m.order, conversationID)

	if len(m.order) > m.limit {
		delete(m.discarded, m.order[0])
		m.order = m.order[1:]
	}
}

// Close detaches the mailbox from the bus.
func (m *Mailbox) Close() { m.unsubscribe() }
