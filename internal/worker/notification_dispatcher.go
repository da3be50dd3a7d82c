package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/homecare-api/internal/email"
	"github.com/jwalitptl/homecare-api/internal/model"
	"github.com/jwalitptl/homecare-api/internal/repository"
	"github.com/jwalitptl/homecare-api/pkg/event"
	"github.com/jwalitptl/homecare-api/pkg/messaging"
	"github.com/jwalitptl/homecare-api/pkg/metrics"
)

// notified lists the events that concern a single provider.
var notified = []event.EventType{
	event.RejectionApproved,
	event.RejectionDenied,
	event.ServiceRequestApproved,
	event.ServiceRequestRejected,
	event.BookingAssigned,
}

// NotificationDispatcher e-mails providers about decisions that concern them.
type NotificationDispatcher struct {
	broker    messaging.Broker
	providers repository.ProviderRepository
	catalog   repository.CatalogRepository
	mailer    email.Service
	prefix    string
	location  *time.Location
	logger    *zerolog.Logger
	metrics   *metrics.Metrics
}

func NewNotificationDispatcher(
	broker messaging.Broker,
	providers repository.ProviderRepository,
	catalog repository.CatalogRepository,
	mailer email.Service,
	prefix string,
	location *time.Location,
	logger *zerolog.Logger,
	m *metrics.Metrics,
) *NotificationDispatcher {
	if location == nil {
		location = time.UTC
	}
	return &NotificationDispatcher{
		broker:    broker,
		providers: providers,
		catalog:   catalog,
		mailer:    mailer,
		prefix:    prefix,
		location:  location,
		logger:    logger,
		metrics:   m,
	}
}

// Run consumes notifications until ctx is done or the subscription closes.
func (d *NotificationDispatcher) Run(ctx context.Context) error {
	channels := make([]string, len(notified))
	for i, t := range notified {
		channels[i] = event.Channel(d.prefix, t)
	}

	messages, err := d.broker.Subscribe(ctx, channels...)
	if err != nil {
		return fmt.Errorf("failed to subscribe to notifications: %w", err)
	}

	for msg := range messages {
		if err := d.Handle(ctx, msg.Payload); err != nil {
			d.logger.Error().Err(err).Str("channel", msg.Channel).Msg("failed to dispatch notification")
		}
	}
	return ctx.Err()
}

// Handle sends the e-mail for one published envelope. Events that need no
// notification are ignored.
func (d *NotificationDispatcher) Handle(ctx context.Context, payload []byte) error {
	var env event.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return fmt.Errorf("failed to decode envelope: %w", err)
	}

	providerID, data, err := d.notificationData(ctx, env)
	if err != nil {
		d.metrics.NotificationsSent.WithLabelValues(string(env.Type), "error").Inc()
		return err
	}
	if providerID == uuid.Nil {
		return nil
	}

	provider, err := d.providers.Get(ctx, providerID)
	if err != nil {
		d.metrics.NotificationsSent.WithLabelValues(string(env.Type), "error").Inc()
		return fmt.Errorf("failed to get provider %s: %w", providerID, err)
	}
	data.Name = provider.FullName

	msg, err := email.Render(string(env.Type), provider.Email, data)
	if err != nil {
		d.metrics.NotificationsSent.WithLabelValues(string(env.Type), "error").Inc()
		return err
	}
	if err := d.mailer.Send(ctx, msg); err != nil {
		d.metrics.NotificationsSent.WithLabelValues(string(env.Type), "error").Inc()
		return err
	}

	d.metrics.NotificationsSent.WithLabelValues(string(env.Type), "sent").Inc()
	d.logger.Debug().Str("event_type", string(env.Type)).Str("provider_id", providerID.String()).Msg("notification sent")
	return nil
}

func (d *NotificationDispatcher) notificationData(ctx context.Context, env event.Envelope) (uuid.UUID, email.NotificationData, error) {
	var data email.NotificationData

	switch env.Type {
	case event.RejectionApproved, event.RejectionDenied:
		var c event.RejectionChanged
		if err := json.Unmarshal(env.Data, &c); err != nil {
			return uuid.Nil, data, fmt.Errorf("failed to decode %s: %w", env.Type, err)
		}
		data.BookingID = c.BookingID.String()
		data.Notes = c.AdminNotes
		return c.ProviderID, data, nil

	case event.ServiceRequestApproved, event.ServiceRequestRejected:
		var c event.ServiceRequestChanged
		if err := json.Unmarshal(env.Data, &c); err != nil {
			return uuid.Nil, data, fmt.Errorf("failed to decode %s: %w", env.Type, err)
		}
		data.ServiceName = d.serviceName(ctx, c.ServiceID)
		data.RequestType = requestVerb(c.Type)
		data.Notes = c.RejectionReason
		return c.ProviderID, data, nil

	case event.BookingAssigned:
		var c event.BookingChanged
		if err := json.Unmarshal(env.Data, &c); err != nil {
			return uuid.Nil, data, fmt.Errorf("failed to decode %s: %w", env.Type, err)
		}
		if c.ProviderID == nil {
			return uuid.Nil, data, nil
		}
		data.BookingID = c.BookingID.String()
		data.ServiceName = d.serviceName(ctx, c.ServiceID)
		data.ScheduledAt = c.ScheduledAt.In(d.location).Format("Mon 2 Jan 2006 15:04 MST")
		return *c.ProviderID, data, nil
	}
	return uuid.Nil, data, nil
}

// serviceName falls back to the id so a deleted service does not block the
// notification.
func (d *NotificationDispatcher) serviceName(ctx context.Context, id uuid.UUID) string {
	svc, err := d.catalog.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			d.logger.Warn().Err(err).Str("service_id", id.String()).Msg("service lookup failed")
		}
		return id.String()
	}
	return svc.Name
}

func requestVerb(t string) string {
	if model.ServiceRequestType(t) == model.ServiceRequestRemove {
		return "remove"
	}
	return "add"
}
