package worker

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/homecare-api/internal/model"
	"github.com/jwalitptl/homecare-api/internal/repository/memory"
	"github.com/jwalitptl/homecare-api/pkg/logger"
	"github.com/jwalitptl/homecare-api/pkg/messaging"
	"github.com/jwalitptl/homecare-api/pkg/metrics"
)

type fakeBroker struct {
	mu        sync.Mutex
	fail      error
	published []messaging.Message
}

func (b *fakeBroker) Publish(ctx context.Context, channel string, message interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail != nil {
		return b.fail
	}
	b.published = append(b.published, messaging.Message{Channel: channel, Payload: message.([]byte)})
	return nil
}

func (b *fakeBroker) Subscribe(ctx context.Context, channels ...string) (<-chan messaging.Message, error) {
	return nil, errors.New("not supported")
}

func (b *fakeBroker) Close() error { return nil }

func newProcessor(t *testing.T, store *memory.Store, broker messaging.Broker, attempts int) *OutboxProcessor {
	t.Helper()
	return NewOutboxProcessor(store, store.Outbox(), broker, OutboxProcessorConfig{
		BatchSize:     10,
		PollInterval:  time.Second,
		RetryAttempts: attempts,
		RetryDelay:    time.Minute,
		ChannelPrefix: "homecare",
	}, logger.NewLogger(&logger.Config{Output: &bytes.Buffer{}}), metrics.New("test", prometheus.NewRegistry()))
}

func addEvent(t *testing.T, store *memory.Store, eventType string) *model.OutboxEvent {
	t.Helper()
	now := time.Now()
	ev := &model.OutboxEvent{
		ID:          uuid.New(),
		EventType:   eventType,
		AggregateID: uuid.New(),
		Payload:     []byte(`{"type":"` + eventType + `"}`),
		Status:      model.OutboxStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, store.Outbox().Create(context.Background(), ev))
	return ev
}

func TestOutboxProcessor_PublishesOnPrefixedChannel(t *testing.T) {
	store := memory.NewStore()
	broker := &fakeBroker{}
	ev := addEvent(t, store, "booking.created")

	n, err := newProcessor(t, store, broker, 3).ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Len(t, broker.published, 1)
	assert.Equal(t, "homecare.booking.created", broker.published[0].Channel)
	assert.JSONEq(t, string(ev.Payload), string(broker.published[0].Payload))

	pending, err := store.Outbox().GetPendingEvents(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestOutboxProcessor_FailureSchedulesRetry(t *testing.T) {
	store := memory.NewStore()
	broker := &fakeBroker{fail: errors.New("redis down")}
	addEvent(t, store, "rejection.approved")
	p := newProcessor(t, store, broker, 3)

	n, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	// Not due until the retry delay passes.
	pending, err := store.Outbox().GetPendingEvents(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestOutboxProcessor_GivesUpAfterAttempts(t *testing.T) {
	store := memory.NewStore()
	broker := &fakeBroker{fail: errors.New("redis down")}
	addEvent(t, store, "rejection.approved")
	p := newProcessor(t, store, broker, 1)

	_, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)

	assert.Nil(t, p.nextAttempt(0))
	broker.fail = nil
	n, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "a permanently failed event is not retried")
	assert.Empty(t, broker.published)
}

func TestOutboxProcessor_BackoffDoubles(t *testing.T) {
	p := newProcessor(t, memory.NewStore(), &fakeBroker{}, 4)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	assert.Equal(t, now.Add(time.Minute), *p.nextAttempt(0))
	assert.Equal(t, now.Add(2*time.Minute), *p.nextAttempt(1))
	assert.Equal(t, now.Add(4*time.Minute), *p.nextAttempt(2))
	assert.Nil(t, p.nextAttempt(3))
}
