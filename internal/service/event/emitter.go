// Package event writes domain events to the transactional outbox.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/homecare-api/internal/model"
	"github.com/jwalitptl/homecare-api/internal/repository"
	"github.com/jwalitptl/homecare-api/pkg/auth"
	"github.com/jwalitptl/homecare-api/pkg/event"
)

// Emitter records events in the outbox. Callers pass the ctx of their
// transaction so the event commits or rolls back with the state change.
type Emitter interface {
	Emit(ctx context.Context, eventType event.EventType, aggregateID uuid.UUID, data interface{}) error
}

type OutboxEmitter struct {
	outboxRepo repository.OutboxRepository
	now        func() time.Time
}

func NewOutboxEmitter(outboxRepo repository.OutboxRepository) *OutboxEmitter {
	return &OutboxEmitter{
		outboxRepo: outboxRepo,
		now:        time.Now,
	}
}

func (e *OutboxEmitter) Emit(ctx context.Context, eventType event.EventType, aggregateID uuid.UUID, data interface{}) error {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	now := e.now().UTC()
	envelope := event.Envelope{
		ID:          uuid.New(),
		Type:        eventType,
		AggregateID: aggregateID,
		OccurredAt:  now,
		Data:        dataJSON,
	}
	if actor, ok := auth.ActorFromContext(ctx); ok {
		envelope.ActorID = &actor.ID
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal event envelope: %w", err)
	}

	outboxEvent := &model.OutboxEvent{
		ID:          envelope.ID,
		EventType:   string(eventType),
		AggregateID: aggregateID,
		Payload:     payload,
		Status:      model.OutboxStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.outboxRepo.Create(ctx, outboxEvent); err != nil {
		return fmt.Errorf("failed to create outbox event: %w", err)
	}
	return nil
}

// Nop discards events.
type Nop struct{}

func (Nop) Emit(context.Context, event.EventType, uuid.UUID, interface{}) error { return nil }
