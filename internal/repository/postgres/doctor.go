package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/repository"
)

const doctorColumns = `
	id, slug, name, specialty, phone, email, address, qualifications,
	experience_years, consultation_fee, bio, status, review_requested_at,
	approved_at, rejected_at, rejection_reason, available_slots,
	created_at, updated_at`

type doctorRepository struct {
	BaseRepository
}

func NewDoctorRepository(base BaseRepository) repository.DoctorRepository {
	return &doctorRepository{base}
}

func (r *doctorRepository) Get(ctx context.Context, id uuid.UUID) (*model.DoctorProfile, error) {
	var profile model.DoctorProfile
	err := r.db.GetContext(ctx, &profile, `SELECT `+doctorColumns+` FROM doctor_profiles WHERE id = $1`, id)
	if err != nil {
		return nil, translate(err, "get doctor profile")
	}
	return &profile, nil
}

func (r *doctorRepository) GetBySlug(ctx context.Context, slug string) (*model.DoctorProfile, error) {
	var profile model.DoctorProfile
	err := r.db.GetContext(ctx, &profile, `SELECT `+doctorColumns+` FROM doctor_profiles WHERE slug = $1`, slug)
	if err != nil {
		return nil, translate(err, "get doctor profile by slug")
	}
	return &profile, nil
}

func (r *doctorRepository) List(ctx context.Context, filters *model.DoctorFilters) ([]*model.DoctorProfile, error) {
	query := `SELECT ` + doctorColumns + ` FROM doctor_profiles`
	var args []interface{}
	if filters != nil && filters.Status != "" {
		query += ` WHERE status = $1`
		args = append(args, filters.Status)
	}
	query += ` ORDER BY name ASC`

	profiles := []*model.DoctorProfile{}
	if err := r.db.SelectContext(ctx, &profiles, query, args...); err != nil {
		return nil, translate(err, "list doctor profiles")
	}
	return profiles, nil
}

// Update writes every mutable column except the slot list.
func (r *doctorRepository) Update(ctx context.Context, profile *model.DoctorProfile) error {
	profile.UpdatedAt = time.Now().UTC()
	res, err := r.db.NamedExecContext(ctx, `
		UPDATE doctor_profiles SET
			name = :name,
			specialty = :specialty,
			phone = :phone,
			email = :email,
			address = :address,
			qualifications = :qualifications,
			experience_years = :experience_years,
			consultation_fee = :consultation_fee,
			bio = :bio,
			status = :status,
			review_requested_at = :review_requested_at,
			approved_at = :approved_at,
			rejected_at = :rejected_at,
			rejection_reason = :rejection_reason,
			updated_at = :updated_at
		WHERE id = :id`, profile)
	if err != nil {
		return translate(err, "update doctor profile")
	}
	return expectRows(res, "update doctor profile")
}

func (r *doctorRepository) SetSlots(ctx context.Context, id uuid.UUID, slots []string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE doctor_profiles SET available_slots = $1, updated_at = NOW()
		WHERE id = $2`, pq.StringArray(slots), id)
	if err != nil {
		return translate(err, "set available slots")
	}
	return expectRows(res, "set available slots")
}

// AddSlot appends slot unless it is already present.
func (r *doctorRepository) AddSlot(ctx context.Context, id uuid.UUID, slot string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE doctor_profiles
		SET available_slots = CASE
				WHEN $1 = ANY(available_slots) THEN available_slots
				ELSE array_append(available_slots, $1)
			END,
			updated_at = NOW()
		WHERE id = $2`, slot, id)
	if err != nil {
		return translate(err, "add available slot")
	}
	return expectRows(res, "add available slot")
}

func (r *doctorRepository) RemoveSlot(ctx context.Context, id uuid.UUID, slot string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE doctor_profiles
		SET available_slots = array_remove(available_slots, $1), updated_at = NOW()
		WHERE id = $2`, slot, id)
	if err != nil {
		return translate(err, "remove available slot")
	}
	return expectRows(res, "remove available slot")
}

func (r *doctorRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM doctor_profiles WHERE id = $1`, id)
	if err != nil {
		return translate(err, "delete doctor profile")
	}
	return expectRows(res, "delete doctor profile")
}
