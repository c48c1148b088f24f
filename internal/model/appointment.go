package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// AppointmentStatus follows:
//
//	pending → confirmed | rejected    (doctor decision)
//	pending | confirmed → cancelled   (patient or doctor)
//	confirmed → completed             (doctor)
type AppointmentStatus string

const (
	AppointmentStatusPending   AppointmentStatus = "pending"
	AppointmentStatusConfirmed AppointmentStatus = "confirmed"
	AppointmentStatusRejected  AppointmentStatus = "rejected"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
	AppointmentStatusCompleted AppointmentStatus = "completed"
)

func (s AppointmentStatus) IsValid() bool {
	switch s {
	case AppointmentStatusPending, AppointmentStatusConfirmed, AppointmentStatusRejected,
		AppointmentStatusCancelled, AppointmentStatusCompleted:
		return true
	}
	return false
}

// Normalize reads an unset status as pending.
func (s AppointmentStatus) Normalize() AppointmentStatus {
	if s == "" {
		return AppointmentStatusPending
	}
	return s
}

func (s AppointmentStatus) IsTerminal() bool {
	switch s.Normalize() {
	case AppointmentStatusCancelled, AppointmentStatusCompleted, AppointmentStatusRejected:
		return true
	}
	return false
}

var appointmentTransitions = map[AppointmentStatus][]AppointmentStatus{
	AppointmentStatusPending:   {AppointmentStatusConfirmed, AppointmentStatusRejected, AppointmentStatusCancelled},
	AppointmentStatusConfirmed: {AppointmentStatusCancelled, AppointmentStatusCompleted},
}

func (s AppointmentStatus) CanTransitionTo(next AppointmentStatus) bool {
	for _, allowed := range appointmentTransitions[s.Normalize()] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Appointment is one booking. Patient and doctor details are snapshots taken
// at booking time and are not refreshed by later profile edits.
type Appointment struct {
	Base
	PatientID      uuid.UUID         `json:"patient_id" db:"patient_id"`
	PatientName    string            `json:"patient_name" db:"patient_name"`
	PatientPhone   string            `json:"patient_phone" db:"patient_phone"`
	PatientEmail   string            `json:"patient_email" db:"patient_email"`
	PatientAge     int               `json:"patient_age" db:"patient_age"`
	PatientGender  string            `json:"patient_gender" db:"patient_gender"`
	PatientAddress *string           `json:"patient_address,omitempty" db:"patient_address"`
	DoctorID       uuid.UUID         `json:"doctor_id" db:"doctor_id"`
	DoctorName     string            `json:"doctor_name" db:"doctor_name"`
	DoctorEmail    string            `json:"doctor_email" db:"doctor_email"`
	Specialty      string            `json:"specialty" db:"specialty"`
	Date           string            `json:"date" db:"date"`
	Time           string            `json:"time" db:"time"`
	Reason         string            `json:"reason" db:"reason"`
	Status         AppointmentStatus `json:"status" db:"status"`
	ConfirmedAt    *time.Time        `json:"confirmed_at,omitempty" db:"confirmed_at"`
	RejectedAt     *time.Time        `json:"rejected_at,omitempty" db:"rejected_at"`
	CancelledAt    *time.Time        `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CompletedAt    *time.Time        `json:"completed_at,omitempty" db:"completed_at"`
	DecidedBy      *uuid.UUID        `json:"decided_by,omitempty" db:"decided_by"`
	CancelledBy    *uuid.UUID        `json:"cancelled_by,omitempty" db:"cancelled_by"`
}

// SlotKey is the doctor slot this appointment occupies.
func (a *Appointment) SlotKey() string {
	return SlotKey(a.Date, a.Time)
}

// BookAppointmentRequest is everything a patient submits to book.
type BookAppointmentRequest struct {
	DoctorID uuid.UUID `json:"doctor_id" validate:"required"`
	Date     string    `json:"date" validate:"required,datetime=2006-01-02"`
	Time     string    `json:"time" validate:"required,datetime=15:04"`
	Reason   string    `json:"reason" validate:"required,notblank,max=2000"`
	Name     string    `json:"name" validate:"required,notblank,max=200"`
	Phone    string    `json:"phone" validate:"required,notblank,max=50"`
	Age      int       `json:"age" validate:"required,gt=0,lte=150"`
	Gender   string    `json:"gender" validate:"required,notblank,max=50"`
	Address  string    `json:"address" validate:"max=500"`
}

// Normalize trims surrounding whitespace from every text field.
func (r *BookAppointmentRequest) Normalize() {
	for _, f := range []*string{&r.Date, &r.Time, &r.Reason, &r.Name, &r.Phone, &r.Gender, &r.Address} {
		*f = strings.TrimSpace(*f)
	}
}

type AppointmentFilters struct {
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	Status    AppointmentStatus
}
