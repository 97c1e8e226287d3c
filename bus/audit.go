package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/agentkernel/core"
	"github.com/redis/go-redis/v9"
)

// AuditLog is the append-only record of every message sent on a bus.
type AuditLog interface {
	Append(ctx context.Context, msg core.Message) error
	// List returns all recorded messages in send order.
	List(ctx context.Context) ([]core.Message, error)
}

// MemoryAuditLog keeps the audit trail in process memory.
type MemoryAuditLog struct {
	mu   sync.RWMutex
	msgs []core.Message
}

// NewMemoryAuditLog creates an empty in-memory audit log.
func NewMemoryAuditLog() *MemoryAuditLog {
	return &MemoryAuditLog{}
}

// Append implements AuditLog.
func (l *MemoryAuditLog) Append(_ context.Context, msg core.Message) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.msgs = append(l.msgs, msg)

	return nil
}

// List implements AuditLog.
func (l *MemoryAuditLog) List(_ context.Context) ([]core.Message, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return append([]core.Message(nil), l.msgs...), nil
}

// RedisAuditLog stores messages as JSON in a Redis list at
// "<namespace>:bus:audit". An optional TTL is refreshed on every append.
type RedisAuditLog struct {
	rdb       redis.UniversalClient
	namespace string
	ttl       time.Duration
}

// NewRedisAuditLog creates a Redis-backed audit log. namespace must not be
// empty.
func NewRedisAuditLog(rdb redis.UniversalClient, namespace string, ttl time.Duration) (*RedisAuditLog, error) {
	if namespace == "" {
		return nil, fmt.Errorf("namespace cannot be empty")
	}

	return &RedisAuditLog{rdb: rdb, namespace: namespace, ttl: ttl}, nil
}

// Key returns the list key.
func (l *RedisAuditLog) Key() string {
	return l.namespace + ":bus:audit"
}

// Append implements AuditLog.
func (l *RedisAuditLog) Append(ctx context.Context, msg core.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	pipe := l.rdb.TxPipeline()
	pipe.RPush(ctx, l.Key(), data)

	if l.ttl > 0 {
		pipe.Expire(ctx, l.Key(), l.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append to audit log: %w", err)
	}

	return nil
}

// List implements AuditLog.
func (l *RedisAuditLog) List(ctx context.Context) ([]core.Message, error) {
	raw, err := l.rdb.LRange(ctx, l.Key(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}

	out := make([]core.Message, 0, len(raw))

	for _, r := range raw {
		var msg core.Message
		if err := json.Unmarshal([]byte(r), &msg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal audit entry: %w", err)
		}

		out = append(out, msg)
	}

	return out, nil
}
