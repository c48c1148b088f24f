package doctor

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/repository/memory"
	"github.com/jwalitptl/hospital-api/pkg/slug"
	"github.com/jwalitptl/hospital-api/pkg/validator"
)

type recorder struct {
	mu      sync.Mutex
	changes []model.ChangeEvent
}

func (r *recorder) Emit(_ context.Context, change model.ChangeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, change)
}

func (r *recorder) last() model.ChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.changes[len(r.changes)-1]
}

func setup(t *testing.T) (*Service, *memory.Store, *recorder) {
	t.Helper()
	store := memory.NewStore()
	rec := &recorder{}
	svc := NewService(store.Doctors(), store.Accounts(), store.Credentials(), rec, Config{}, nil)
	return svc, store, rec
}

func registerDoctor(t *testing.T, store *memory.Store, name, email string, status model.DoctorStatus) *model.DoctorProfile {
	t.Helper()
	id := uuid.New()
	account := &model.Account{Base: model.Base{ID: id}, Name: name, Email: email, Role: model.RoleDoctor}
	profile := &model.DoctorProfile{
		Slug:           slug.ForDoctor(name, id),
		Name:           name,
		Email:          email,
		Specialty:      "General Medicine",
		Status:         status,
		AvailableSlots: pq.StringArray{},
	}
	err := store.Accounts().Register(context.Background(), account,
		&model.Credential{Email: email, PasswordHash: "x"}, profile)
	require.NoError(t, err)
	return profile
}

func owner(p *model.DoctorProfile) model.Principal {
	return model.Principal{AccountID: p.ID, Role: model.RoleDoctor}
}

func TestListApproved_OnlyApproved(t *testing.T) {
	svc, store, _ := setup(t)
	ctx := context.Background()

	approved := registerDoctor(t, store, "Dr. Asha Rao", "asha@example.com", model.DoctorStatusApproved)
	registerDoctor(t, store, "Dr. Ben Ode", "ben@example.com", model.DoctorStatusPending)
	registerDoctor(t, store, "Dr. Cy Lam", "cy@example.com", model.DoctorStatusRejected)
	registerDoctor(t, store, "Dr. Di Ng", "di@example.com", model.DoctorStatusPendingReview)

	list, err := svc.ListApproved(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, approved.ID, list[0].ID)
}

func TestListApproved_CacheInvalidatedOnApproval(t *testing.T) {
	svc, store, _ := setup(t)
	ctx := context.Background()

	p := registerDoctor(t, store, "Dr. Asha Rao", "asha@example.com", model.DoctorStatusPending)

	list, err := svc.ListApproved(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = svc.Approve(ctx, p.ID)
	require.NoError(t, err)

	list, err = svc.ListApproved(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.NotNil(t, list[0].ApprovedAt)
}

func TestListByStatus(t *testing.T) {
	svc, store, _ := setup(t)
	ctx := context.Background()

	registerDoctor(t, store, "Dr. Asha Rao", "asha@example.com", model.DoctorStatusPending)
	registerDoctor(t, store, "Dr. Ben Ode", "ben@example.com", model.DoctorStatusPendingReview)

	list, err := svc.ListByStatus(ctx, model.DoctorStatusPendingReview)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Dr. Ben Ode", list[0].Name)

	all, err := svc.ListByStatus(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = svc.ListByStatus(ctx, "archived")
	assert.Error(t, err)
}

func TestGetBySlug(t *testing.T) {
	svc, store, _ := setup(t)
	ctx := context.Background()

	asha := registerDoctor(t, store, "Dr. Asha Rao, MBBS", "asha@example.com", model.DoctorStatusApproved)
	registerDoctor(t, store, "Dr. Ravi Kumar", "ravi@example.com", model.DoctorStatusApproved)
	registerDoctor(t, store, "Dr. Ravi Kumar Shah", "shah@example.com", model.DoctorStatusApproved)
	registerDoctor(t, store, "Dr. Hidden Pending", "hidden@example.com", model.DoctorStatusPending)

	t.Run("stable slug", func(t *testing.T) {
		got, err := svc.GetBySlug(ctx, asha.Slug)
		require.NoError(t, err)
		assert.Equal(t, asha.ID, got.ID)
	})

	t.Run("legacy name slug", func(t *testing.T) {
		got, err := svc.GetBySlug(ctx, "dr-asha-rao")
		require.NoError(t, err)
		assert.Equal(t, asha.ID, got.ID)
	})

	t.Run("ambiguous legacy slug", func(t *testing.T) {
		_, err := svc.GetBySlug(ctx, "dr-ravi-kumar")
		assert.ErrorIs(t, err, ErrAmbiguousDoctor)
	})

	t.Run("legacy match ignores unapproved doctors", func(t *testing.T) {
		_, err := svc.GetBySlug(ctx, "dr-hidden-pending")
		assert.ErrorIs(t, err, ErrDoctorNotFound)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := svc.GetBySlug(ctx, "dr-nobody")
		assert.ErrorIs(t, err, ErrDoctorNotFound)
	})
}

func TestApprovalLifecycle(t *testing.T) {
	svc, store, rec := setup(t)
	ctx := context.Background()

	p := registerDoctor(t, store, "Dr. Asha Rao", "asha@example.com", model.DoctorStatusPending)

	rejected, err := svc.Reject(ctx, p.ID, &model.RejectDoctorRequest{Reason: "  licence number missing "})
	require.NoError(t, err)
	assert.Equal(t, model.DoctorStatusRejected, rejected.Status)
	require.NotNil(t, rejected.RejectionReason)
	assert.Equal(t, "licence number missing", *rejected.RejectionReason)
	assert.Contains(t, rec.last().Topics, model.TopicDoctorsByStatus(model.DoctorStatusRejected))

	_, err = svc.Approve(ctx, p.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition, "rejected doctors must re-apply first")

	review, err := svc.RequestReview(ctx, owner(p), p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DoctorStatusPendingReview, review.Status)
	assert.NotNil(t, review.ReviewRequestedAt)
	assert.Nil(t, review.RejectionReason)
	assert.Nil(t, review.RejectedAt)

	approved, err := svc.Approve(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DoctorStatusApproved, approved.Status)
	assert.True(t, approved.Bookable())
	assert.Contains(t, rec.last().Topics, model.TopicDoctorsApproved)
	assert.Contains(t, rec.last().Topics, model.TopicDoctorsByStatus(model.DoctorStatusPendingReview))

	_, err = svc.Reject(ctx, p.ID, &model.RejectDoctorRequest{})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = svc.RequestReview(ctx, owner(p), p.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRequestReview_Repeatable(t *testing.T) {
	svc, store, _ := setup(t)
	ctx := context.Background()

	p := registerDoctor(t, store, "Dr. Asha Rao", "asha@example.com", model.DoctorStatusPending)

	_, err := svc.RequestReview(ctx, owner(p), p.ID)
	require.NoError(t, err)
	_, err = svc.RequestReview(ctx, owner(p), p.ID)
	require.NoError(t, err)
}

func TestOwnerOnlyOperations(t *testing.T) {
	svc, store, _ := setup(t)
	ctx := context.Background()

	p := registerDoctor(t, store, "Dr. Asha Rao", "asha@example.com", model.DoctorStatusPending)
	other := registerDoctor(t, store, "Dr. Ben Ode", "ben@example.com", model.DoctorStatusPending)
	admin := model.Principal{AccountID: uuid.New(), Role: model.RoleAdmin}

	for _, actor := range []model.Principal{owner(other), admin} {
		_, err := svc.RequestReview(ctx, actor, p.ID)
		assert.ErrorIs(t, err, ErrNotOwner)
		_, err = svc.SetAvailableSlots(ctx, actor, p.ID, &model.SetSlotsRequest{})
		assert.ErrorIs(t, err, ErrNotOwner)
		_, err = svc.UpdateProfile(ctx, actor, p.ID, &model.UpdateDoctorProfileRequest{})
		assert.ErrorIs(t, err, ErrNotOwner)
	}
}

func TestUpdateProfile(t *testing.T) {
	svc, store, _ := setup(t)
	ctx := context.Background()

	p := registerDoctor(t, store, "Dr. Asha Rao", "asha@example.com", model.DoctorStatusApproved)
	fee := 500.0
	specialty := "Cardiology"

	updated, err := svc.UpdateProfile(ctx, owner(p), p.ID, &model.UpdateDoctorProfileRequest{
		Specialty:       &specialty,
		ConsultationFee: &fee,
	})
	require.NoError(t, err)
	assert.Equal(t, "Cardiology", updated.Specialty)
	assert.Equal(t, model.DoctorStatusApproved, updated.Status)

	stored, err := store.Doctors().Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Slug, stored.Slug, "slug is stable across edits")
	require.NotNil(t, stored.ConsultationFee)
	assert.Equal(t, 500.0, *stored.ConsultationFee)
}

func TestUpdateProfile_BlankName(t *testing.T) {
	svc, store, _ := setup(t)
	ctx := context.Background()

	p := registerDoctor(t, store, "Dr. Asha Rao", "asha@example.com", model.DoctorStatusApproved)

	blank := "   "
	_, err := svc.UpdateProfile(ctx, owner(p), p.ID, &model.UpdateDoctorProfileRequest{Name: &blank})
	var verr *validator.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "name", verr.Fields[0].Field)

	padded := "  Dr. Asha R. Rao  "
	updated, err := svc.UpdateProfile(ctx, owner(p), p.ID, &model.UpdateDoctorProfileRequest{Name: &padded})
	require.NoError(t, err)
	assert.Equal(t, "Dr. Asha R. Rao", updated.Name)

	stored, err := store.Doctors().Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dr. Asha R. Rao", stored.Name)
}

func TestSetAvailableSlots(t *testing.T) {
	svc, store, _ := setup(t)
	ctx := context.Background()

	p := registerDoctor(t, store, "Dr. Asha Rao", "asha@example.com", model.DoctorStatusApproved)

	got, err := svc.SetAvailableSlots(ctx, owner(p), p.ID, &model.SetSlotsRequest{
		Slots: []string{"2026-11-02 10:00", "2026-11-01 09:30", "2026-11-02 10:00"},
	})
	require.NoError(t, err)
	assert.Equal(t, pq.StringArray{"2026-11-01 09:30", "2026-11-02 10:00"}, got.AvailableSlots)

	stored, err := store.Doctors().Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, got.AvailableSlots, stored.AvailableSlots)

	_, err = svc.SetAvailableSlots(ctx, owner(p), p.ID, &model.SetSlotsRequest{Slots: []string{"tomorrow at ten"}})
	var verr *validator.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestDelete(t *testing.T) {
	svc, store, rec := setup(t)
	ctx := context.Background()

	p := registerDoctor(t, store, "Dr. Asha Rao", "asha@example.com", model.DoctorStatusApproved)

	result, err := svc.Delete(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, result.ProfileDeleted)
	assert.True(t, result.AccountDeleted)
	assert.True(t, result.CredentialDeleted)
	assert.Equal(t, model.OpDelete, rec.last().Op)
	assert.Contains(t, rec.last().Topics, model.TopicDoctorsApproved)

	_, err = store.Credentials().GetByEmail(ctx, "asha@example.com")
	assert.Error(t, err)

	_, err = svc.Delete(ctx, p.ID)
	assert.ErrorIs(t, err, ErrDoctorNotFound)
}

func TestDelete_PartialFailureIsReportedAndRetryable(t *testing.T) {
	svc, store, _ := setup(t)
	ctx := context.Background()

	p := registerDoctor(t, store, "Dr. Asha Rao", "asha@example.com", model.DoctorStatusApproved)
	boom := errors.New("connection reset")
	store.Fail(memory.OpAccountDelete, boom)

	result, err := svc.Delete(ctx, p.ID)
	var derr *DeletionError
	require.ErrorAs(t, err, &derr)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StepAccount, derr.Step)
	assert.True(t, result.ProfileDeleted)
	assert.False(t, result.AccountDeleted)
	assert.False(t, result.CredentialDeleted)

	_, err = store.Doctors().Get(ctx, p.ID)
	assert.Error(t, err, "profile deletion is not rolled back")
	_, err = store.Accounts().Get(ctx, p.ID)
	assert.NoError(t, err)

	store.Fail(memory.OpAccountDelete, nil)
	result, err = svc.Delete(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, result.AccountDeleted)
	assert.True(t, result.CredentialDeleted)
}
