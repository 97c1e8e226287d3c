package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrSnapshotNotFound is returned by Load for unknown agent ids.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// SnapshotStore persists agent snapshots so external tools can poll a run.
type SnapshotStore interface {
	Save(ctx context.Context, sn Snapshot) error
	Load(ctx context.Context, agentID string) (Snapshot, error)
	Delete(ctx context.Context, agentID string) error
}

// MemoryStore is a process-local SnapshotStore. Snapshots are stored as JSON
// so loads never alias live state.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Save implements SnapshotStore.
func (m *MemoryStore) Save(_ context.Context, sn Snapshot) error {
	b, err := json.Marshal(sn)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[sn.ID] = b

	return nil
}

// Load implements SnapshotStore.
func (m *MemoryStore) Load(_ context.Context, agentID string) (Snapshot, error) {
	m.mu.RLock()
	b, ok := m.data[agentID]
	m.mu.RUnlock()

	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrSnapshotNotFound, agentID)
	}

	var sn Snapshot
	if err := json.Unmarshal(b, &sn); err != nil {
		return Snapshot{}, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	return sn, nil
}

// Delete implements SnapshotStore.
func (m *MemoryStore) Delete(_ context.Context, agentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, agentID)

	return nil
}

// RedisStore keeps snapshots as JSON strings under
// "<namespace>:agent:<id>:state".
type RedisStore struct {
	rdb       redis.UniversalClient
	namespace string
	ttl       time.Duration
}

// NewRedisStore creates a store on rdb. A zero ttl keeps snapshots forever.
func NewRedisStore(rdb redis.UniversalClient, namespace string, ttl time.Duration) (*RedisStore, error) {
	if namespace == "" {
		return nil, fmt.Errorf("namespace cannot be empty")
	}

	return &RedisStore{rdb: rdb, namespace: namespace, ttl: ttl}, nil
}

// Key returns the Redis key holding agentID's snapshot.
func (r *RedisStore) Key(agentID string) string {
	return fmt.Sprintf("%s:agent:%s:state", r.namespace, agentID)
}

// Save implements SnapshotStore.
func (r *RedisStore) Save(ctx context.Context, sn Snapshot) error {
	b, err := json.Marshal(sn)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := r.rdb.Set(ctx, r.Key(sn.ID), b, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write snapshot to Redis: %w", err)
	}

	return nil
}

// Load implements SnapshotStore.
func (r *RedisStore) Load(ctx context.Context, agentID string) (Snapshot, error) {
	b, err := r.rdb.Get(ctx, r.Key(agentID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrSnapshotNotFound, agentID)
	}

	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read snapshot from Redis: %w", err)
	}

	var sn Snapshot
	if err := json.Unmarshal(b, &sn); err != nil {
		return Snapshot{}, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	return sn, nil
}

// Delete implements SnapshotStore.
func (r *RedisStore) Delete(ctx context.Context, agentID string) error {
	if err := r.rdb.Del(ctx, r.Key(agentID)).Err(); err != nil {
		return fmt.Errorf("failed to delete snapshot from Redis: %w", err)
	}

	return nil
}
