package doctor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/repository"
	"github.com/jwalitptl/hospital-api/internal/service/event"
	apperrors "github.com/jwalitptl/hospital-api/pkg/errors"
	"github.com/jwalitptl/hospital-api/pkg/logger"
	"github.com/jwalitptl/hospital-api/pkg/slug"
	"github.com/jwalitptl/hospital-api/pkg/validator"
)

var (
	ErrDoctorNotFound    = errors.New("doctor not found")
	ErrAmbiguousDoctor   = errors.New("more than one doctor matches")
	ErrNotOwner          = errors.New("only the doctor can change this profile")
	ErrInvalidTransition = errors.New("status change not allowed")
)

// Deletion steps, in the order they run.
const (
	StepProfile    = "profile"
	StepAccount    = "account"
	StepCredential = "credential"
)

// DeletionError reports a doctor deletion that stopped part way. Steps
// before Step were committed and are not rolled back.
type DeletionError struct {
	Deletion model.DoctorDeletion
	Step     string
	Err      error
}

func (e *DeletionError) Error() string {
	return fmt.Sprintf("doctor deletion failed at %s step: %v", e.Step, e.Err)
}

func (e *DeletionError) Unwrap() error { return e.Err }

const approvedKey = "approved"

type Config struct {
	DirectoryTTL time.Duration
}

type Service struct {
	doctors  repository.DoctorRepository
	accounts repository.AccountRepository
	creds    repository.CredentialRepository
	events   event.Emitter
	cache    *cache.Cache
	logger   *logger.Logger
	now      func() time.Time
}

func NewService(
	doctors repository.DoctorRepository,
	accounts repository.AccountRepository,
	creds repository.CredentialRepository,
	events event.Emitter,
	cfg Config,
	log *logger.Logger,
) *Service {
	if cfg.DirectoryTTL <= 0 {
		cfg.DirectoryTTL = time.Minute
	}
	if events == nil {
		events = event.Nop{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		doctors:  doctors,
		accounts: accounts,
		creds:    creds,
		events:   events,
		cache:    cache.New(cfg.DirectoryTTL, 2*cfg.DirectoryTTL),
		logger:   log.With("doctors"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ListApproved is the patient-facing directory: approved profiles only.
func (s *Service) ListApproved(ctx context.Context) ([]*model.DoctorProfile, error) {
	if cached, ok := s.cache.Get(approvedKey); ok {
		return cached.([]*model.DoctorProfile), nil
	}
	profiles, err := s.doctors.List(ctx, &model.DoctorFilters{Status: model.DoctorStatusApproved})
	if err != nil {
		return nil, fmt.Errorf("failed to list approved doctors: %w", err)
	}
	s.cache.SetDefault(approvedKey, profiles)
	return profiles, nil
}

func (s *Service) ListByStatus(ctx context.Context, status model.DoctorStatus) ([]*model.DoctorProfile, error) {
	if status != "" && !status.IsValid() {
		return nil, apperrors.BadRequest(fmt.Sprintf("unknown doctor status %q", status), nil)
	}
	profiles, err := s.doctors.List(ctx, &model.DoctorFilters{Status: status})
	if err != nil {
		return nil, fmt.Errorf("failed to list doctors: %w", err)
	}
	return profiles, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.DoctorProfile, error) {
	profile, err := s.doctors.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrDoctorNotFound
		}
		return nil, fmt.Errorf("failed to get doctor: %w", err)
	}
	return profile, nil
}

// GetBySlug resolves a stable slug. Unknown slugs fall back to the legacy
// name match over approved doctors, which must be unambiguous.
func (s *Service) GetBySlug(ctx context.Context, value string) (*model.DoctorProfile, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	profile, err := s.doctors.GetBySlug(ctx, value)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to get doctor by slug: %w", err)
	}

	query := slug.FromLegacy(value)
	if query == "" {
		return nil, ErrDoctorNotFound
	}
	approved, err := s.ListApproved(ctx)
	if err != nil {
		return nil, err
	}

	var matches []*model.DoctorProfile
	for _, p := range approved {
		if slug.LooseMatch(query, p.Name) {
			matches = append(matches, p)
		}
	}
	switch len(matches) {
	case 0:
		return nil, ErrDoctorNotFound
	case 1:
		s.logger.Debug("legacy slug resolved", "slug", value, "doctor_id", matches[0].ID.String())
		return matches[0], nil
	default:
		return nil, ErrAmbiguousDoctor
	}
}

func (s *Service) owned(ctx context.Context, actor model.Principal, id uuid.UUID) (*model.DoctorProfile, error) {
	if actor.Role != model.RoleDoctor || actor.AccountID != id {
		return nil, ErrNotOwner
	}
	return s.Get(ctx, id)
}

func (s *Service) UpdateProfile(ctx context.Context, actor model.Principal, id uuid.UUID, req *model.UpdateDoctorProfileRequest) (*model.DoctorProfile, error) {
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		req.Name = &name
	}
	if err := validator.Validate(req); err != nil {
		return nil, err
	}
	profile, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		profile.Name = *req.Name
	}
	if req.Specialty != nil {
		profile.Specialty = *req.Specialty
	}
	if req.Phone != nil {
		profile.Phone = *req.Phone
	}
	if req.Email != nil {
		profile.Email = strings.ToLower(strings.TrimSpace(*req.Email))
	}
	if req.Address != nil {
		profile.Address = *req.Address
	}
	if req.Qualifications != nil {
		profile.Qualifications = *req.Qualifications
	}
	if req.ExperienceYears != nil {
		profile.ExperienceYears = req.ExperienceYears
	}
	if req.ConsultationFee != nil {
		profile.ConsultationFee = req.ConsultationFee
	}
	if req.Bio != nil {
		profile.Bio = *req.Bio
	}

	if err := s.save(ctx, profile, profile.Status); err != nil {
		return nil, err
	}
	return profile, nil
}

// SetAvailableSlots replaces the slot list. Duplicates are dropped and the
// result is kept in chronological order.
func (s *Service) SetAvailableSlots(ctx context.Context, actor model.Principal, id uuid.UUID, req *model.SetSlotsRequest) (*model.DoctorProfile, error) {
	if err := validator.Validate(req); err != nil {
		return nil, err
	}
	profile, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(req.Slots))
	slots := make([]string, 0, len(req.Slots))
	for _, slot := range req.Slots {
		if !seen[slot] {
			seen[slot] = true
			slots = append(slots, slot)
		}
	}
	sort.Strings(slots)

	if err := s.doctors.SetSlots(ctx, id, slots); err != nil {
		return nil, fmt.Errorf("failed to set slots: %w", err)
	}
	profile.AvailableSlots = slots
	s.changed(ctx, id, model.OpUpdate, profile.Status, profile.Status)
	return profile, nil
}

// RequestReview asks an admin to look at the profile again. It can be
// repeated and is how a rejected doctor re-applies.
func (s *Service) RequestReview(ctx context.Context, actor model.Principal, id uuid.UUID) (*model.DoctorProfile, error) {
	profile, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	prev := profile.Status
	if !prev.CanTransitionTo(model.DoctorStatusPendingReview) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, prev, model.DoctorStatusPendingReview)
	}

	now := s.now()
	profile.Status = model.DoctorStatusPendingReview
	profile.ReviewRequestedAt = &now
	profile.RejectedAt = nil
	profile.RejectionReason = nil

	if err := s.save(ctx, profile, prev); err != nil {
		return nil, err
	}
	return profile, nil
}

func (s *Service) Approve(ctx context.Context, id uuid.UUID) (*model.DoctorProfile, error) {
	profile, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	prev := profile.Status
	if !prev.CanTransitionTo(model.DoctorStatusApproved) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, prev, model.DoctorStatusApproved)
	}

	now := s.now()
	profile.Status = model.DoctorStatusApproved
	profile.ApprovedAt = &now
	profile.RejectedAt = nil
	profile.RejectionReason = nil

	if err := s.save(ctx, profile, prev); err != nil {
		return nil, err
	}
	s.logger.Info("doctor approved", "doctor_id", id.String())
	return profile, nil
}

func (s *Service) Reject(ctx context.Context, id uuid.UUID, req *model.RejectDoctorRequest) (*model.DoctorProfile, error) {
	if err := validator.Validate(req); err != nil {
		return nil, err
	}
	profile, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	prev := profile.Status
	if !prev.CanTransitionTo(model.DoctorStatusRejected) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, prev, model.DoctorStatusRejected)
	}

	now := s.now()
	profile.Status = model.DoctorStatusRejected
	profile.RejectedAt = &now
	profile.RejectionReason = nil
	if reason := strings.TrimSpace(req.Reason); reason != "" {
		profile.RejectionReason = &reason
	}

	if err := s.save(ctx, profile, prev); err != nil {
		return nil, err
	}
	s.logger.Info("doctor rejected", "doctor_id", id.String())
	return profile, nil
}

// Delete removes the profile, then the account record, then the credential.
// The steps are independent writes; a failure leaves earlier steps in place
// and is reported as a *DeletionError. Records already gone count as
// deleted, so a failed deletion can be retried.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) (*model.DoctorDeletion, error) {
	result := &model.DoctorDeletion{DoctorID: id}
	prev := model.DoctorStatus("")
	if profile, err := s.doctors.Get(ctx, id); err == nil {
		prev = profile.Status
	}

	missing := 0
	steps := []struct {
		name string
		run  func(context.Context, uuid.UUID) error
		done *bool
	}{
		{StepProfile, s.doctors.Delete, &result.ProfileDeleted},
		{StepAccount, s.accounts.Delete, &result.AccountDeleted},
		{StepCredential, s.creds.Delete, &result.CredentialDeleted},
	}

	for _, step := range steps {
		err := step.run(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			missing++
			err = nil
		}
		if err != nil {
			s.afterDelete(ctx, id, prev, result)
			s.logger.Error(err, "doctor deletion incomplete",
				"doctor_id", id.String(), "step", step.name,
				"profile_deleted", result.ProfileDeleted, "account_deleted", result.AccountDeleted)
			return result, &DeletionError{Deletion: *result, Step: step.name, Err: err}
		}
		*step.done = true
	}

	if missing == len(steps) {
		return nil, ErrDoctorNotFound
	}
	s.afterDelete(ctx, id, prev, result)
	s.logger.Info("doctor deleted", "doctor_id", id.String())
	return result, nil
}

func (s *Service) afterDelete(ctx context.Context, id uuid.UUID, prev model.DoctorStatus, result *model.DoctorDeletion) {
	if result.ProfileDeleted {
		s.changed(ctx, id, model.OpDelete, prev, "")
	}
}

func (s *Service) save(ctx context.Context, profile *model.DoctorProfile, prev model.DoctorStatus) error {
	if err := s.doctors.Update(ctx, profile); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrDoctorNotFound
		}
		return fmt.Errorf("failed to update doctor: %w", err)
	}
	s.changed(ctx, profile.ID, model.OpUpdate, prev, profile.Status)
	return nil
}

func (s *Service) changed(ctx context.Context, id uuid.UUID, op string, prev, next model.DoctorStatus) {
	s.cache.Delete(approvedKey)
	s.events.Emit(ctx, event.DoctorChanged(id, op, prev, next))
}

// InvalidateDirectory drops the cached approved list. Live-query hubs call
// it when they see changes made by other instances.
func (s *Service) InvalidateDirectory() {
	s.cache.Delete(approvedKey)
}
