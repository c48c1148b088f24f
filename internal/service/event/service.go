package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/pkg/logger"
	"github.com/jwalitptl/hospital-api/pkg/messaging"
)

// DefaultChannel carries change events to live-query hubs.
const DefaultChannel = "changes"

// Emitter is what writers call after a successful change.
type Emitter interface {
	Emit(ctx context.Context, change model.ChangeEvent)
}

// OutboxWriter is the part of the outbox repository the service needs.
type OutboxWriter interface {
	Create(ctx context.Context, event *model.OutboxEvent) error
}

type EventService struct {
	outbox  OutboxWriter
	broker  messaging.Broker
	channel string
	logger  *logger.Logger
	now     func() time.Time
}

// NewEventService publishes directly on broker when it is set and falls back
// to the outbox so the worker can replay the change later.
func NewEventService(outbox OutboxWriter, broker messaging.Broker, channel string, log *logger.Logger) *EventService {
	if channel == "" {
		channel = DefaultChannel
	}
	if log == nil {
		log = logger.Nop()
	}
	return &EventService{
		outbox:  outbox,
		broker:  broker,
		channel: channel,
		logger:  log.With("events"),
		now:     time.Now,
	}
}

func (s *EventService) Emit(ctx context.Context, change model.ChangeEvent) {
	if change.At.IsZero() {
		change.At = s.now().UTC()
	}

	if s.broker != nil {
		err := s.broker.Publish(ctx, s.channel, change)
		if err == nil {
			return
		}
		s.logger.Warn("publish failed, deferring to outbox",
			"collection", change.Collection, "id", change.ID.String(), "error", err.Error())
	}

	if s.outbox == nil {
		return
	}
	if err := s.enqueue(ctx, change); err != nil {
		s.logger.Error(err, "failed to enqueue change event",
			"collection", change.Collection, "id", change.ID.String())
	}
}

func (s *EventService) enqueue(ctx context.Context, change model.ChangeEvent) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("failed to marshal change: %w", err)
	}
	return s.outbox.Create(ctx, &model.OutboxEvent{
		EventType: EventType(change),
		Payload:   payload,
	})
}

// EventType names the outbox event for a change.
func EventType(change model.ChangeEvent) string {
	switch {
	case change.Collection == model.CollectionDoctors && change.Op == model.OpDelete:
		return model.EventDoctorDeleted
	case change.Collection == model.CollectionDoctors:
		return model.EventDoctorChanged
	default:
		return model.EventAppointmentChanged
	}
}

func DoctorChanged(id uuid.UUID, op string, prev, next model.DoctorStatus) model.ChangeEvent {
	return model.ChangeEvent{
		Collection: model.CollectionDoctors,
		Op:         op,
		ID:         id,
		Topics:     model.DoctorTopics(id, prev, next),
	}
}

func AppointmentChanged(a *model.Appointment, op string) model.ChangeEvent {
	return model.ChangeEvent{
		Collection: model.CollectionAppointments,
		Op:         op,
		ID:         a.ID,
		Topics:     model.AppointmentTopics(a),
	}
}

// Nop discards every change.
type Nop struct{}

func (Nop) Emit(context.Context, model.ChangeEvent) {}
