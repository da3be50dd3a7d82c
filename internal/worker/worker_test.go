package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/homecare-api/internal/email"
	"github.com/jwalitptl/homecare-api/internal/model"
	"github.com/jwalitptl/homecare-api/internal/repository/memory"
	"github.com/jwalitptl/homecare-api/pkg/event"
	"github.com/jwalitptl/homecare-api/pkg/messaging"
	"github.com/jwalitptl/homecare-api/pkg/metrics"
)

type fakeMailer struct {
	mu   sync.Mutex
	err  error
	sent []email.Message
}

func (m *fakeMailer) Send(ctx context.Context, msg email.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

type chanBroker struct {
	ch       chan messaging.Message
	channels []string
}

func (b *chanBroker) Publish(ctx context.Context, channel string, message interface{}) error {
	b.ch <- messaging.Message{Channel: channel, Payload: message.([]byte)}
	return nil
}

func (b *chanBroker) Subscribe(ctx context.Context, channels ...string) (<-chan messaging.Message, error) {
	b.channels = channels
	return b.ch, nil
}

func (b *chanBroker) Close() error { return nil }

type dispatcherFixture struct {
	store      *memory.Store
	mailer     *fakeMailer
	broker     *chanBroker
	metrics    *metrics.Metrics
	dispatcher *NotificationDispatcher
	provider   *model.Provider
	service    *model.Service
}

func newDispatcherFixture(t *testing.T) *dispatcherFixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	provider := &model.Provider{Base: model.NewBase(time.Now()), FullName: "Asha Rao", Email: "asha@example.com", Available: true}
	require.NoError(t, store.Providers().Create(ctx, provider))
	service := &model.Service{Base: model.NewBase(time.Now()), Name: "Physiotherapy", DurationMinutes: 45, Price: 50, Active: true}
	require.NoError(t, store.Catalog().Create(ctx, service))

	logger := zerolog.New(&bytes.Buffer{})
	m := metrics.New("test", prometheus.NewRegistry())
	mailer := &fakeMailer{}
	broker := &chanBroker{ch: make(chan messaging.Message, 4)}
	d := NewNotificationDispatcher(broker, store.Providers(), store.Catalog(), mailer, "homecare", time.UTC, &logger, m)

	return &dispatcherFixture{store: store, mailer: mailer, broker: broker, metrics: m, dispatcher: d, provider: provider, service: service}
}

func envelope(t *testing.T, eventType event.EventType, data interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	payload, err := json.Marshal(event.Envelope{ID: uuid.New(), Type: eventType, AggregateID: uuid.New(), OccurredAt: time.Now(), Data: raw})
	require.NoError(t, err)
	return payload
}

func TestNotificationDispatcher_RejectionDecision(t *testing.T) {
	f := newDispatcherFixture(t)
	bookingID := uuid.New()

	err := f.dispatcher.Handle(context.Background(), envelope(t, event.RejectionApproved, event.RejectionChanged{
		RequestID:  uuid.New(),
		BookingID:  bookingID,
		ProviderID: f.provider.ID,
		Status:     "APPROVED",
		AdminNotes: "reassigned",
	}))
	require.NoError(t, err)

	require.Len(t, f.mailer.sent, 1)
	msg := f.mailer.sent[0]
	assert.Equal(t, "asha@example.com", msg.To)
	assert.Equal(t, "Rejection request approved", msg.Subject)
	assert.Contains(t, msg.Body, "Hello Asha Rao,")
	assert.Contains(t, msg.Body, bookingID.String())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.NotificationsSent.WithLabelValues("rejection.approved", "sent")))
}

func TestNotificationDispatcher_ServiceRequestUsesServiceName(t *testing.T) {
	f := newDispatcherFixture(t)

	err := f.dispatcher.Handle(context.Background(), envelope(t, event.ServiceRequestRejected, event.ServiceRequestChanged{
		RequestID:       uuid.New(),
		ProviderID:      f.provider.ID,
		ServiceID:       f.service.ID,
		Type:            "REMOVE",
		Status:          "REJECTED",
		RejectionReason: "still needed this month",
	}))
	require.NoError(t, err)

	require.Len(t, f.mailer.sent, 1)
	assert.Contains(t, f.mailer.sent[0].Body, "remove service Physiotherapy was rejected")
	assert.Contains(t, f.mailer.sent[0].Body, "Reason: still needed this month")
}

func TestNotificationDispatcher_BookingAssigned(t *testing.T) {
	f := newDispatcherFixture(t)
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	err := f.dispatcher.Handle(context.Background(), envelope(t, event.BookingAssigned, event.BookingChanged{
		BookingID:   uuid.New(),
		ServiceID:   f.service.ID,
		ProviderID:  &f.provider.ID,
		Status:      "CONFIRMED",
		ScheduledAt: at,
	}))
	require.NoError(t, err)

	require.Len(t, f.mailer.sent, 1)
	assert.Contains(t, f.mailer.sent[0].Body, "Mon 2 Mar 2026 10:00 UTC")
}

func TestNotificationDispatcher_IgnoresOtherEvents(t *testing.T) {
	f := newDispatcherFixture(t)

	err := f.dispatcher.Handle(context.Background(), envelope(t, event.ConsentAccepted, event.ConsentChanged{UserID: uuid.New()}))
	require.NoError(t, err)
	assert.Empty(t, f.mailer.sent)
}

func TestNotificationDispatcher_ErrorsAreCounted(t *testing.T) {
	f := newDispatcherFixture(t)
	f.mailer.err = errors.New("smtp unavailable")

	err := f.dispatcher.Handle(context.Background(), envelope(t, event.RejectionDenied, event.RejectionChanged{ProviderID: f.provider.ID}))
	assert.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.NotificationsSent.WithLabelValues("rejection.denied", "error")))

	err = f.dispatcher.Handle(context.Background(), envelope(t, event.RejectionDenied, event.RejectionChanged{ProviderID: uuid.New()}))
	assert.Error(t, err)
}

func TestNotificationDispatcher_RunSubscribesAndStops(t *testing.T) {
	f := newDispatcherFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.dispatcher.Run(ctx) }()

	f.broker.ch <- messaging.Message{
		Channel: "homecare.rejection.denied",
		Payload: envelope(t, event.RejectionDenied, event.RejectionChanged{ProviderID: f.provider.ID}),
	}
	require.Eventually(t, func() bool {
		f.mailer.mu.Lock()
		defer f.mailer.mu.Unlock()
		return len(f.mailer.sent) == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	close(f.broker.ch)
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Contains(t, f.broker.channels, "homecare.booking.assigned")
}

func TestOutboxCleanupWorker_DeletesOnlyOldProcessedEvents(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	now := time.Now()

	for _, age := range []time.Duration{48 * time.Hour, time.Hour} {
		ev := &model.OutboxEvent{ID: uuid.New(), EventType: "booking.created", Payload: []byte(`{}`), Status: model.OutboxStatusPending, CreatedAt: now}
		require.NoError(t, store.Outbox().Create(ctx, ev))
		require.NoError(t, store.Outbox().MarkProcessed(ctx, ev.ID, now.Add(-age)))
	}
	pending := &model.OutboxEvent{ID: uuid.New(), EventType: "booking.created", Payload: []byte(`{}`), Status: model.OutboxStatusPending, CreatedAt: now}
	require.NoError(t, store.Outbox().Create(ctx, pending))

	logger := zerolog.New(&bytes.Buffer{})
	m := metrics.New("test", prometheus.NewRegistry())
	w := NewOutboxCleanupWorker(store.Outbox(), 24*time.Hour, time.Hour, &logger, m)

	n, err := w.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OutboxEventsDeleted))

	left, err := store.Outbox().GetPendingEvents(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, left, 1)
}
