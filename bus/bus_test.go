package bus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hupe1980/agentkernel/core"
	"github.com/hupe1980/agentkernel/internal/testutil"
	"github.com/hupe1980/agentkernel/metrics"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ AuditLog = (*MemoryAuditLog)(nil)
	_ AuditLog = (*RedisAuditLog)(nil)
)

func TestBus_DeliveryOrder(t *testing.T) {
	b := New()

	var got []string

	b.SubscribeRecipient("bob", func(_ context.Context, m core.Message) { got = append(got, "recipient1:"+m.Type) })
	b.SubscribeType("ping", func(_ context.Context, m core.Message) { got = append(got, "type1:"+m.Type) })
	b.SubscribeType("ping", func(_ context.Context, m core.Message) { got = append(got, "type2:"+m.Type) })
	b.SubscribeRecipient("bob", func(_ context.Context, m core.Message) { got = append(got, "recipient2:"+m.Type) })

	ctx := context.Background()
	require.NoError(t, b.Send(ctx, testutil.NewMessageBuilder("alice", "bob").Type("ping").Build()))
	require.NoError(t, b.Send(ctx, testutil.NewMessageBuilder("alice", "bob").Type("pong").Build()))

	assert.Equal(t, []string{
		"type1:ping", "type2:ping", "recipient1:ping", "recipient2:ping",
		"recipient1:pong", "recipient2:pong",
	}, got)
	assert.Equal(t, 2, b.Sent())
}

func TestBus_Unsubscribe(t *testing.T) {
	b := New()
	calls := 0

	unsub := b.SubscribeType("ping", func(context.Context, core.Message) { calls++ })
	require.NoError(t, b.Send(context.Background(), core.NewMessage("a", "b", "ping", nil)))

	unsub()
	unsub()
	require.NoError(t, b.Send(context.Background(), core.NewMessage("a", "b", "ping", nil)))

	assert.Equal(t, 1, calls)
}

type failingAudit struct{}

func (failingAudit) Append(context.Context, core.Message) error     { return errors.New("disk full") }
func (failingAudit) List(context.Context) ([]core.Message, error) { return nil, nil }

func TestBus_AuditFailureAbortsSend(t *testing.T) {
	b := New(func(o *Options) { o.Audit = failingAudit{} })
	delivered := false
	b.SubscribeType("ping", func(context.Context, core.Message) { delivered = true })

	err := b.Send(context.Background(), core.NewMessage("a", "b", "ping", nil))
	require.Error(t, err)
	assert.False(t, delivered)
	assert.Equal(t, 0, b.Sent())
}

func TestBus_AuditAndMetrics(t *testing.T) {
	m := metrics.New("test")
	b := New(func(o *Options) { o.Metrics = m })

	msg := core.NewMessage("a", "b", "ping", map[string]any{"n": 1})
	require.NoError(t, b.Send(context.Background(), msg))

	list, err := b.Audit().List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, msg.ID, list[0].ID)

	n, err := promtest.GatherAndCount(m.Registry(), "test_messages_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMailbox_WaitTimesOut(t *testing.T) {
	b := New()
	mb := NewMailbox(b, "coordinator")

	start := time.Now()
	_, err := mb.WaitForResponse(context.Background(), "cv-missing", 100*time.Millisecond)

	var rt *core.ResponseTimeoutError
	require.ErrorAs(t, err, &rt)
	assert.Equal(t, "cv-missing", rt.ConversationID)
	assert.True(t, core.IsResponseTimeout(err))
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestMailbox_PendingMessageReturnsImmediately(t *testing.T) {
	b := New()
	mb := NewMailbox(b, "coordinator")

	reply := testutil.NewMessageBuilder("analyzer", "coordinator").Type("result").Conversation("cv1").Build()
	require.NoError(t, b.Send(context.Background(), reply))

	start := time.Now()
	got, err := mb.WaitForResponse(context.Background(), "cv1", time.Second)
	require.NoError(t, err)
	assert.Equal(t, reply.ID, got.ID)
	assert.Less(t, time.Since(start), 50*time.Millisecond)
	assert.Empty(t, mb.Messages())
}

func TestMailbox_IgnoresOwnMessagesAndOtherConversations(t *testing.T) {
	b := New()
	mb := NewMailbox(b, "coordinator")
	ctx := context.Background()

	require.NoError(t, b.Send(ctx, testutil.NewMessageBuilder("coordinator", "coordinator").Conversation("cv1").Build()))
	require.NoError(t, b.Send(ctx, testutil.NewMessageBuilder("analyzer", "coordinator").Conversation("cv2").Build()))

	_, err := mb.WaitForResponse(ctx, "cv1", 20*time.Millisecond)
	assert.True(t, core.IsResponseTimeout(err))
	assert.Len(t, mb.Messages(), 2)
}

func TestMailbox_WakesOnDelivery(t *testing.T) {
	b := New()
	mb := NewMailbox(b, "coordinator")

	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		time.Sleep(20 * time.Millisecond)
		_ = b.Send(context.Background(), testutil.NewMessageBuilder("x", "coordinator").Conversation("cv2").Build())
		_ = b.Send(context.Background(), testutil.NewMessageBuilder("x", "coordinator").Conversation("cv1").Payload("n", 1).Build())
	}()

	got, err := mb.WaitForResponse(context.Background(), "cv1", 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Payload["n"])

	wg.Wait()
}

func TestMailbox_DiscardDropsLateReplies(t *testing.T) {
	b := New()
	mb := NewMailbox(b, "coordinator")
	ctx := context.Background()

	require.NoError(t, b.Send(ctx, testutil.NewMessageBuilder("analyzer", "coordinator").Conversation("cv1").Build()))
	require.NoError(t, b.Send(ctx, testutil.NewMessageBuilder("analyzer", "coordinator").Conversation("cv2").Build()))

	mb.Discard("cv1")
	require.NoError(t, b.Send(ctx, testutil.NewMessageBuilder("reviewer", "coordinator").Conversation("cv1").Build()))

	msgs := mb.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "cv2", msgs[0].ConversationID)
}

func TestMailbox_LimitDropsOldest(t *testing.T) {
	b := New()
	mb := NewMailbox(b, "coordinator", func(o *MailboxOptions) { o.Limit = 2 })
	ctx := context.Background()

	for _, cv := range []string{"cv1", "cv2", "cv3"} {
		require.NoError(t, b.Send(ctx, testutil.NewMessageBuilder("x", "coordinator").Conversation(cv).Build()))
	}

	msgs := mb.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "cv2", msgs[0].ConversationID)
	assert.Equal(t, "cv3", msgs[1].ConversationID)
}

func TestMailbox_ContextCancel(t *testing.T) {
	mb := NewMailbox(New(), "c")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := mb.WaitForResponse(ctx, "cv", time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRedisAuditLog(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	log, err := NewRedisAuditLog(rdb, "test", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "test:bus:audit", log.Key())

	b := New(func(o *Options) { o.Audit = log })
	ctx := context.Background()

	first := core.NewMessage("a", "b", "ping", nil)
	second := core.NewMessage("b", "a", "pong", nil)
	require.NoError(t, b.Send(ctx, first))
	require.NoError(t, b.Send(ctx, second))

	list, err := log.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, "pong", list[1].Type)
	assert.Equal(t, time.Hour, mr.TTL(log.Key()))

	_, err = NewRedisAuditLog(rdb, "", 0)
	assert.Error(t, err)
}
