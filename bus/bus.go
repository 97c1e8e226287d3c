package bus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/agentkernel/core"
	"github.com/hupe1980/agentkernel/logging"
	"github.com/hupe1980/agentkernel/metrics"
)

// Handler receives a delivered message. Handlers run on the sender's
// goroutine and must not block; long work belongs in a goroutine of its own.
type Handler func(ctx context.Context, msg core.Message)

// Options configure a Bus.
type Options struct {
	// Audit records every sent message. Defaults to a MemoryAuditLog.
	Audit   AuditLog
	Metrics *metrics.Metrics
	Logger  logging.Logger
}

type subscription struct {
	id uint64
	h  Handler
}

// Bus routes messages to subscribers.
type Bus struct {
	mu          sync.RWMutex
	byType      map[string][]subscription
	byRecipient map[string][]subscription
	nextID      uint64

	sent atomic.Int64
	opts Options
}

// New creates a bus.
func New(optFns ...func(o *Options)) *Bus {
	opts := Options{}

	for _, fn := range optFns {
		fn(&opts)
	}

	opts.Logger = logging.OrNoOp(opts.Logger)

	if opts.Audit == nil {
		opts.Audit = NewMemoryAuditLog()
	}

	return &Bus{
		byType:      make(map[string][]subscription),
		byRecipient: make(map[string][]subscription),
		opts:        opts,
	}
}

// SubscribeType registers h for every message of type typ. The returned
// func removes the subscription.
func (b *Bus) SubscribeType(typ string, h Handler) func() {
	return b.subscribe(b.byType, typ, h)
}

// SubscribeRecipient registers h for every message addressed to id.
func (b *Bus) SubscribeRecipient(id string, h Handler) func() {
	return b.subscribe(b.byRecipient, id, h)
}

func (b *Bus) subscribe(table map[string][]subscription, key string, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	table[key] = append(table[key], subscription{id: id, h: h})

	var once sync.Once

	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()

			subs := table[key]
			for i, s := range subs {
				if s.id == id {
					table[key] = append(subs[:i:i], subs[i+1:]...)
					break
				}
			}

			if len(table[key]) == 0 {
				delete(table, key)
			}
		})
	}
}

// Send records msg in the audit log and delivers it. Type subscribers are
// notified before recipient subscribers. A failed audit append aborts the
// send.
func (b *Bus) Send(ctx context.Context, msg core.Message) error {
	if err := b.opts.Audit.Append(ctx, msg); err != nil {
		return fmt.Errorf("audit message %s: %w", msg.ID, err)
	}

	b.sent.Add(1)
	b.opts.Metrics.MessageSent(msg.Type)
	b.opts.Logger.Debug("bus.send", "from", msg.From, "to", msg.To, "type", msg.Type, "conversation", msg.ConversationID)

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.byType[msg.Type])+len(b.byRecipient[msg.To]))

	for _, s := range b.byType[msg.Type] {
		handlers = append(handlers, s.h)
	}

	for _, s := range b.byRecipient[msg.To] {
		handlers = append(handlers, s.h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, msg)
	}

	return nil
}

// Sent returns the number of messages sent so far.
func (b *Bus) Sent() int { return int(b.sent.Load()) }

// Audit returns the audit log.
func (b *Bus) Audit() AuditLog { return b.opts.Audit }
