package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/pkg/logger"
	"github.com/jwalitptl/hospital-api/pkg/validator"
)

// OutboxWriter is the part of the outbox repository the service needs.
type OutboxWriter interface {
	Create(ctx context.Context, event *model.OutboxEvent) error
}

// Service queues email notices. Delivery happens in the outbox worker.
type Service interface {
	Enqueue(ctx context.Context, notice *model.EmailNotice) error
	NotifyCancellation(ctx context.Context, appt *model.Appointment, cancelledBy model.Role) error
}

type service struct {
	outbox OutboxWriter
	logger *logger.Logger
}

func NewService(outbox OutboxWriter, log *logger.Logger) Service {
	if log == nil {
		log = logger.Nop()
	}
	return &service{outbox: outbox, logger: log.With("notification")}
}

func (s *service) Enqueue(ctx context.Context, notice *model.EmailNotice) error {
	notice.To = strings.TrimSpace(notice.To)
	if err := validator.Validate(notice); err != nil {
		return err
	}

	payload, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("failed to marshal notice: %w", err)
	}
	if err := s.outbox.Create(ctx, &model.OutboxEvent{
		EventType: model.EventEmailNotice,
		Payload:   payload,
	}); err != nil {
		return fmt.Errorf("failed to enqueue notice: %w", err)
	}

	s.logger.Debug("notice enqueued", "subject", notice.Subject)
	return nil
}

// NotifyCancellation tells the counterpart of the cancelling party.
func (s *service) NotifyCancellation(ctx context.Context, appt *model.Appointment, cancelledBy model.Role) error {
	notice := CancellationNotice(appt, cancelledBy)
	if notice == nil {
		return nil
	}
	return s.Enqueue(ctx, notice)
}

// CancellationNotice builds the email for a cancelled appointment, or nil
// when the recipient has no address on record.
func CancellationNotice(appt *model.Appointment, cancelledBy model.Role) *model.EmailNotice {
	when := fmt.Sprintf("%s at %s", appt.Date, appt.Time)

	if cancelledBy == model.RoleDoctor {
		if appt.PatientEmail == "" {
			return nil
		}
		return &model.EmailNotice{
			To:      appt.PatientEmail,
			Subject: "Your appointment has been cancelled",
			Text: fmt.Sprintf(
				"Dear %s,\n\nYour appointment with %s on %s has been cancelled by the doctor.\n"+
					"Please book another slot at your convenience.\n",
				appt.PatientName, appt.DoctorName, when),
		}
	}

	if appt.DoctorEmail == "" {
		return nil
	}
	return &model.EmailNotice{
		To:      appt.DoctorEmail,
		Subject: "Appointment cancelled by patient",
		Text: fmt.Sprintf(
			"Dear %s,\n\n%s has cancelled the appointment on %s.\nReason for visit: %s\n",
			appt.DoctorName, appt.PatientName, when, appt.Reason),
	}
}
