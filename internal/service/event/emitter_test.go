package event

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/homecare-api/internal/model"
	"github.com/jwalitptl/homecare-api/internal/repository/memory"
	"github.com/jwalitptl/homecare-api/pkg/auth"
	"github.com/jwalitptl/homecare-api/pkg/event"
)

func TestOutboxEmitter_WritesEnvelope(t *testing.T) {
	store := memory.NewStore()
	emitter := NewOutboxEmitter(store.Outbox())
	fixed := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	emitter.now = func() time.Time { return fixed }

	actor := auth.Actor{ID: uuid.New(), Role: auth.RoleAdmin}
	ctx := auth.WithActor(context.Background(), actor)
	bookingID := uuid.New()

	err := emitter.Emit(ctx, event.BookingCancelled, bookingID, event.BookingChanged{
		BookingID: bookingID,
		Status:    string(model.BookingStatusCancelled),
	})
	require.NoError(t, err)

	pending, err := store.Outbox().GetPendingEvents(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, string(event.BookingCancelled), pending[0].EventType)
	assert.Equal(t, bookingID, pending[0].AggregateID)

	var env event.Envelope
	require.NoError(t, json.Unmarshal(pending[0].Payload, &env))
	assert.Equal(t, pending[0].ID, env.ID)
	require.NotNil(t, env.ActorID)
	assert.Equal(t, actor.ID, *env.ActorID)
	assert.True(t, fixed.Equal(env.OccurredAt))

	var data event.BookingChanged
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "CANCELLED", data.Status)
}

func TestOutboxEmitter_RolledBackWithTransaction(t *testing.T) {
	store := memory.NewStore()
	emitter := NewOutboxEmitter(store.Outbox())

	err := store.WithinTx(context.Background(), func(ctx context.Context) error {
		require.NoError(t, emitter.Emit(ctx, event.BookingCreated, uuid.New(), struct{}{}))
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	pending, err := store.Outbox().GetPendingEvents(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
