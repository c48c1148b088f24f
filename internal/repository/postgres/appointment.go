package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/repository"
)

const appointmentColumns = `
	id, patient_id, patient_name, patient_phone, patient_email, patient_age,
	patient_gender, patient_address, doctor_id, doctor_name, doctor_email, specialty,
	date, time, reason, status, confirmed_at, rejected_at, cancelled_at,
	completed_at, decided_by, cancelled_by, created_at, updated_at`

type appointmentRepository struct {
	BaseRepository
}

func NewAppointmentRepository(base BaseRepository) repository.AppointmentRepository {
	return &appointmentRepository{base}
}

func (r *appointmentRepository) Create(ctx context.Context, appointment *model.Appointment) error {
	now := time.Now().UTC()
	if appointment.ID == uuid.Nil {
		appointment.ID = uuid.New()
	}
	appointment.CreatedAt = now
	appointment.UpdatedAt = now

	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO appointments (
			id, patient_id, patient_name, patient_phone, patient_email, patient_age,
			patient_gender, patient_address, doctor_id, doctor_name, doctor_email, specialty,
			date, time, reason, status, created_at, updated_at
		) VALUES (
			:id, :patient_id, :patient_name, :patient_phone, :patient_email, :patient_age,
			:patient_gender, :patient_address, :doctor_id, :doctor_name, :doctor_email, :specialty,
			:date, :time, :reason, :status, :created_at, :updated_at
		)`, appointment)
	if err != nil {
		return translate(err, "create appointment")
	}
	return nil
}

func (r *appointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	var appointment model.Appointment
	err := r.db.GetContext(ctx, &appointment, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	if err != nil {
		return nil, translate(err, "get appointment")
	}
	return &appointment, nil
}

// Update persists status transitions. Snapshot columns are never rewritten.
func (r *appointmentRepository) Update(ctx context.Context, appointment *model.Appointment) error {
	appointment.UpdatedAt = time.Now().UTC()
	res, err := r.db.NamedExecContext(ctx, `
		UPDATE appointments SET
			status = :status,
			confirmed_at = :confirmed_at,
			rejected_at = :rejected_at,
			cancelled_at = :cancelled_at,
			completed_at = :completed_at,
			decided_by = :decided_by,
			cancelled_by = :cancelled_by,
			updated_at = :updated_at
		WHERE id = :id`, appointment)
	if err != nil {
		return translate(err, "update appointment")
	}
	return expectRows(res, "update appointment")
}

func (r *appointmentRepository) List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error) {
	var (
		conditions []string
		args       []interface{}
	)
	if filters != nil {
		if filters.PatientID != uuid.Nil {
			args = append(args, filters.PatientID)
			conditions = append(conditions, fmt.Sprintf("patient_id = $%d", len(args)))
		}
		if filters.DoctorID != uuid.Nil {
			args = append(args, filters.DoctorID)
			conditions = append(conditions, fmt.Sprintf("doctor_id = $%d", len(args)))
		}
		if filters.Status != "" {
			args = append(args, filters.Status)
			conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
		}
	}

	query := `SELECT ` + appointmentColumns + ` FROM appointments`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY date DESC, time DESC, created_at DESC`

	appointments := []*model.Appointment{}
	if err := r.db.SelectContext(ctx, &appointments, query, args...); err != nil {
		return nil, translate(err, "list appointments")
	}
	return appointments, nil
}
