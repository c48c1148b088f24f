package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/repository"
	"github.com/jwalitptl/hospital-api/internal/service/event"
	"github.com/jwalitptl/hospital-api/internal/service/notification"
	apperrors "github.com/jwalitptl/hospital-api/pkg/errors"
	"github.com/jwalitptl/hospital-api/pkg/logger"
	"github.com/jwalitptl/hospital-api/pkg/validator"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrDoctorUnavailable   = errors.New("doctor is not accepting appointments")
	ErrNotParticipant      = errors.New("not a participant of this appointment")
	ErrPatientsOnly        = errors.New("only patients can book appointments")
	ErrInvalidTransition   = errors.New("appointment status change not allowed")
)

// DirectoryCache is the cached doctor directory, which lists open slots.
type DirectoryCache interface {
	InvalidateDirectory()
}

type Service struct {
	repo      repository.AppointmentRepository
	doctors   repository.DoctorRepository
	directory DirectoryCache
	accounts  repository.AccountRepository
	notifSvc  notification.Service
	events    event.Emitter
	logger    *logger.Logger
	now       func() time.Time
}

func NewService(
	repo repository.AppointmentRepository,
	doctors repository.DoctorRepository,
	directory DirectoryCache,
	accounts repository.AccountRepository,
	notifSvc notification.Service,
	events event.Emitter,
	log *logger.Logger,
) *Service {
	if events == nil {
		events = event.Nop{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		repo:      repo,
		doctors:   doctors,
		directory: directory,
		accounts:  accounts,
		notifSvc:  notifSvc,
		events:    events,
		logger:    log.With("appointments"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Book records a pending appointment for the calling patient. Nothing is
// written unless the request is complete and the doctor is approved.
// Booking a slot that is already taken is allowed.
func (s *Service) Book(ctx context.Context, actor model.Principal, req *model.BookAppointmentRequest) (*model.Appointment, error) {
	if actor.Role != model.RolePatient {
		return nil, ErrPatientsOnly
	}
	req.Normalize()
	if err := validator.Validate(req); err != nil {
		return nil, err
	}

	doctor, err := s.doctors.Get(ctx, req.DoctorID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrDoctorNotFound
		}
		return nil, fmt.Errorf("failed to get doctor: %w", err)
	}
	if !doctor.Bookable() {
		return nil, ErrDoctorUnavailable
	}

	email := actor.Email
	if patient, err := s.accounts.Get(ctx, actor.AccountID); err == nil {
		email = patient.Email
	}

	apt := &model.Appointment{
		Base:          model.Base{ID: uuid.New()},
		PatientID:     actor.AccountID,
		PatientName:   req.Name,
		PatientPhone:  req.Phone,
		PatientEmail:  email,
		PatientAge:    req.Age,
		PatientGender: req.Gender,
		DoctorID:      doctor.ID,
		DoctorName:    doctor.Name,
		DoctorEmail:   doctor.Email,
		Specialty:     doctor.Specialty,
		Date:          req.Date,
		Time:          req.Time,
		Reason:        req.Reason,
		Status:        model.AppointmentStatusPending,
	}
	if req.Address != "" {
		addr := req.Address
		apt.PatientAddress = &addr
	}

	if err := s.repo.Create(ctx, apt); err != nil {
		return nil, fmt.Errorf("failed to create appointment: %w", err)
	}

	if err := s.doctors.RemoveSlot(ctx, doctor.ID, apt.SlotKey()); err != nil {
		s.logger.Warn("failed to take slot", "doctor_id", doctor.ID.String(), "slot", apt.SlotKey(), "error", err.Error())
	} else {
		s.slotsChanged(ctx, doctor)
	}
	s.events.Emit(ctx, event.AppointmentChanged(apt, model.OpCreate))

	s.logger.Info("appointment booked",
		"appointment_id", apt.ID.String(), "doctor_id", doctor.ID.String(), "slot", apt.SlotKey())
	return apt, nil
}

func (s *Service) Confirm(ctx context.Context, actor model.Principal, id uuid.UUID) (*model.Appointment, error) {
	return s.decide(ctx, actor, id, model.AppointmentStatusConfirmed)
}

func (s *Service) Reject(ctx context.Context, actor model.Principal, id uuid.UUID) (*model.Appointment, error) {
	return s.decide(ctx, actor, id, model.AppointmentStatusRejected)
}

// Complete closes a confirmed appointment once the visit has happened.
func (s *Service) Complete(ctx context.Context, actor model.Principal, id uuid.UUID) (*model.Appointment, error) {
	return s.decide(ctx, actor, id, model.AppointmentStatusCompleted)
}

func (s *Service) decide(ctx context.Context, actor model.Principal, id uuid.UUID, next model.AppointmentStatus) (*model.Appointment, error) {
	apt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != model.RoleDoctor || apt.DoctorID != actor.AccountID {
		return nil, ErrNotParticipant
	}
	if err := s.transition(apt, next); err != nil {
		return nil, err
	}

	now := s.now()
	switch next {
	case model.AppointmentStatusConfirmed:
		apt.ConfirmedAt = &now
	case model.AppointmentStatusRejected:
		apt.RejectedAt = &now
	case model.AppointmentStatusCompleted:
		apt.CompletedAt = &now
	}
	if next != model.AppointmentStatusCompleted {
		by := actor.AccountID
		apt.DecidedBy = &by
	}

	if err := s.save(ctx, apt); err != nil {
		return nil, err
	}
	s.logger.Info("appointment updated", "appointment_id", id.String(), "status", string(next))
	return apt, nil
}

// Cancel is open to both participants while the appointment is pending or
// confirmed. The slot goes back to the doctor and the other party gets an
// email; neither side effect can fail the cancellation.
func (s *Service) Cancel(ctx context.Context, actor model.Principal, id uuid.UUID) (*model.Appointment, error) {
	apt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	isPatient := actor.Role == model.RolePatient && apt.PatientID == actor.AccountID
	isDoctor := actor.Role == model.RoleDoctor && apt.DoctorID == actor.AccountID
	if !isPatient && !isDoctor {
		return nil, ErrNotParticipant
	}
	if err := s.transition(apt, model.AppointmentStatusCancelled); err != nil {
		return nil, err
	}

	now := s.now()
	by := actor.AccountID
	apt.CancelledAt = &now
	apt.CancelledBy = &by
	if err := s.save(ctx, apt); err != nil {
		return nil, err
	}

	s.releaseSlot(ctx, apt)
	if s.notifSvc != nil {
		if err := s.notifSvc.NotifyCancellation(ctx, apt, actor.Role); err != nil {
			s.logger.Error(err, "failed to queue cancellation email", "appointment_id", id.String())
		}
	}

	s.logger.Info("appointment cancelled", "appointment_id", id.String(), "by", string(actor.Role))
	return apt, nil
}

func (s *Service) releaseSlot(ctx context.Context, apt *model.Appointment) {
	doctor, err := s.doctors.Get(ctx, apt.DoctorID)
	if err != nil {
		s.logger.Warn("slot not returned, doctor missing", "doctor_id", apt.DoctorID.String())
		return
	}
	if err := s.doctors.AddSlot(ctx, apt.DoctorID, apt.SlotKey()); err != nil {
		s.logger.Warn("failed to return slot", "doctor_id", apt.DoctorID.String(), "slot", apt.SlotKey(), "error", err.Error())
		return
	}
	s.slotsChanged(ctx, doctor)
}

func (s *Service) slotsChanged(ctx context.Context, doctor *model.DoctorProfile) {
	if s.directory != nil {
		s.directory.InvalidateDirectory()
	}
	s.events.Emit(ctx, event.DoctorChanged(doctor.ID, model.OpUpdate, doctor.Status, doctor.Status))
}

// Get returns the appointment to its patient, its doctor or an admin.
func (s *Service) Get(ctx context.Context, actor model.Principal, id uuid.UUID) (*model.Appointment, error) {
	apt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	switch {
	case actor.Role == model.RoleAdmin,
		actor.Role == model.RolePatient && apt.PatientID == actor.AccountID,
		actor.Role == model.RoleDoctor && apt.DoctorID == actor.AccountID:
		return apt, nil
	}
	return nil, ErrNotParticipant
}

func (s *Service) ListForPatient(ctx context.Context, patientID uuid.UUID, status model.AppointmentStatus) ([]*model.Appointment, error) {
	return s.list(ctx, &model.AppointmentFilters{PatientID: patientID, Status: status})
}

func (s *Service) ListForDoctor(ctx context.Context, doctorID uuid.UUID, status model.AppointmentStatus) ([]*model.Appointment, error) {
	return s.list(ctx, &model.AppointmentFilters{DoctorID: doctorID, Status: status})
}

func (s *Service) ListAll(ctx context.Context, status model.AppointmentStatus) ([]*model.Appointment, error) {
	return s.list(ctx, &model.AppointmentFilters{Status: status})
}

func (s *Service) list(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error) {
	if filters.Status != "" && !filters.Status.IsValid() {
		return nil, apperrors.BadRequest(fmt.Sprintf("unknown appointment status %q", filters.Status), nil)
	}
	appointments, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	for _, apt := range appointments {
		apt.Status = apt.Status.Normalize()
	}
	return appointments, nil
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	apt, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAppointmentNotFound
		}
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	apt.Status = apt.Status.Normalize()
	return apt, nil
}

func (s *Service) transition(apt *model.Appointment, next model.AppointmentStatus) error {
	if !apt.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, apt.Status, next)
	}
	apt.Status = next
	return nil
}

func (s *Service) save(ctx context.Context, apt *model.Appointment) error {
	if err := s.repo.Update(ctx, apt); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrAppointmentNotFound
		}
		return fmt.Errorf("failed to update appointment: %w", err)
	}
	s.events.Emit(ctx, event.AppointmentChanged(apt, model.OpUpdate))
	return nil
}
