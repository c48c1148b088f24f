package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// DoctorStatus is the approval lifecycle of a doctor profile:
//
//	pending → pending-review → approved | rejected
//	pending → approved | rejected
//	rejected → pending-review
type DoctorStatus string

const (
	DoctorStatusPending       DoctorStatus = "pending"
	DoctorStatusPendingReview DoctorStatus = "pending-review"
	DoctorStatusApproved      DoctorStatus = "approved"
	DoctorStatusRejected      DoctorStatus = "rejected"
)

func (s DoctorStatus) IsValid() bool {
	switch s {
	case DoctorStatusPending, DoctorStatusPendingReview, DoctorStatusApproved, DoctorStatusRejected:
		return true
	}
	return false
}

var doctorTransitions = map[DoctorStatus][]DoctorStatus{
	DoctorStatusPending:       {DoctorStatusPendingReview, DoctorStatusApproved, DoctorStatusRejected},
	DoctorStatusPendingReview: {DoctorStatusPendingReview, DoctorStatusApproved, DoctorStatusRejected},
	DoctorStatusRejected:      {DoctorStatusPendingReview},
	DoctorStatusApproved:      {},
}

// CanTransitionTo reports whether the approval lifecycle allows moving to next.
func (s DoctorStatus) CanTransitionTo(next DoctorStatus) bool {
	for _, allowed := range doctorTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// DoctorProfile is an entry of the doctor directory. ID equals the owning account ID.
type DoctorProfile struct {
	Base
	Slug              string         `json:"slug" db:"slug"`
	Name              string         `json:"name" db:"name"`
	Specialty         string         `json:"specialty" db:"specialty"`
	Phone             string         `json:"phone" db:"phone"`
	Email             string         `json:"email" db:"email"`
	Address           string         `json:"address" db:"address"`
	Qualifications    string         `json:"qualifications" db:"qualifications"`
	ExperienceYears   *int           `json:"experience_years,omitempty" db:"experience_years"`
	ConsultationFee   *float64       `json:"consultation_fee,omitempty" db:"consultation_fee"`
	Bio               string         `json:"bio" db:"bio"`
	Status            DoctorStatus   `json:"status" db:"status"`
	ReviewRequestedAt *time.Time     `json:"review_requested_at,omitempty" db:"review_requested_at"`
	ApprovedAt        *time.Time     `json:"approved_at,omitempty" db:"approved_at"`
	RejectedAt        *time.Time     `json:"rejected_at,omitempty" db:"rejected_at"`
	RejectionReason   *string        `json:"rejection_reason,omitempty" db:"rejection_reason"`
	AvailableSlots    pq.StringArray `json:"available_slots" db:"available_slots"`
}

// Bookable is true only for approved doctors.
func (d *DoctorProfile) Bookable() bool {
	return d.Status == DoctorStatusApproved
}

// UpdateDoctorProfileRequest carries the fields a doctor may edit on their own profile.
type UpdateDoctorProfileRequest struct {
	Name            *string  `json:"name" validate:"omitnil,notblank,min=2,max=200"`
	Specialty       *string  `json:"specialty" validate:"omitempty,max=200"`
	Phone           *string  `json:"phone" validate:"omitempty,max=50"`
	Email           *string  `json:"email" validate:"omitempty,email"`
	Address         *string  `json:"address" validate:"omitempty,max=500"`
	Qualifications  *string  `json:"qualifications" validate:"omitempty,max=500"`
	ExperienceYears *int     `json:"experience_years" validate:"omitempty,gte=0"`
	ConsultationFee *float64 `json:"consultation_fee" validate:"omitempty,gte=0"`
	Bio             *string  `json:"bio" validate:"omitempty,max=4000"`
}

type SetSlotsRequest struct {
	Slots []string `json:"slots" validate:"dive,required,datetime=2006-01-02 15:04"`
}

type RejectDoctorRequest struct {
	Reason string `json:"reason" validate:"max=1000"`
}

// SlotKey is the canonical "YYYY-MM-DD HH:MM" form stored in AvailableSlots.
func SlotKey(date, clock string) string {
	return date + " " + clock
}

type DoctorFilters struct {
	Status DoctorStatus
}

// DoctorDeletion reports which steps of a doctor deletion were committed.
type DoctorDeletion struct {
	DoctorID          uuid.UUID `json:"doctor_id"`
	ProfileDeleted    bool      `json:"profile_deleted"`
	AccountDeleted    bool      `json:"account_deleted"`
	CredentialDeleted bool      `json:"credential_deleted"`
}
