package appointment

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/repository/memory"
	"github.com/jwalitptl/hospital-api/internal/service/notification"
	"github.com/jwalitptl/hospital-api/pkg/validator"
)

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Enqueue(ctx context.Context, notice *model.EmailNotice) error {
	return m.Called(ctx, notice).Error(0)
}

func (m *mockNotifier) NotifyCancellation(ctx context.Context, appt *model.Appointment, cancelledBy model.Role) error {
	return m.Called(ctx, appt, cancelledBy).Error(0)
}

type countingDirectory struct {
	invalidated int
}

func (d *countingDirectory) InvalidateDirectory() { d.invalidated++ }

type fixture struct {
	svc       *Service
	store     *memory.Store
	directory *countingDirectory
	doctor    *model.DoctorProfile
	patient   model.Principal
}

func newFixture(t *testing.T, notifier notification.Service) *fixture {
	t.Helper()
	store := memory.NewStore()
	ctx := context.Background()

	patientID := uuid.New()
	require.NoError(t, store.Accounts().Register(ctx,
		&model.Account{Base: model.Base{ID: patientID}, Name: "Pat Kumar", Email: "pat@example.com", Role: model.RolePatient},
		&model.Credential{Email: "pat@example.com", PasswordHash: "x"}, nil))

	doctorID := uuid.New()
	doctor := &model.DoctorProfile{
		Slug:           "dr-asha-rao-00000000",
		Name:           "Dr. Asha Rao",
		Email:          "asha@example.com",
		Specialty:      "Cardiology",
		Status:         model.DoctorStatusApproved,
		AvailableSlots: pq.StringArray{"2026-11-01 10:00", "2026-11-01 10:30"},
	}
	require.NoError(t, store.Accounts().Register(ctx,
		&model.Account{Base: model.Base{ID: doctorID}, Name: doctor.Name, Email: doctor.Email, Role: model.RoleDoctor},
		&model.Credential{Email: doctor.Email, PasswordHash: "x"}, doctor))

	if notifier == nil {
		notifier = notification.NewService(store.Outbox(), nil)
	}
	directory := &countingDirectory{}
	return &fixture{
		svc:       NewService(store.Appointments(), store.Doctors(), directory, store.Accounts(), notifier, nil, nil),
		store:     store,
		directory: directory,
		doctor:    doctor,
		patient:   model.Principal{AccountID: patientID, Email: "pat@example.com", Role: model.RolePatient},
	}
}

func (f *fixture) doctorActor() model.Principal {
	return model.Principal{AccountID: f.doctor.ID, Email: f.doctor.Email, Role: model.RoleDoctor}
}

func (f *fixture) bookRequest() *model.BookAppointmentRequest {
	return &model.BookAppointmentRequest{
		DoctorID: f.doctor.ID,
		Date:     "2026-11-01",
		Time:     "10:00",
		Reason:   "Chest pain",
		Name:     "Pat Kumar",
		Phone:    "+91 98765 43210",
		Age:      42,
		Gender:   "female",
	}
}

func TestBook(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	apt, err := f.svc.Book(ctx, f.patient, f.bookRequest())
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusPending, apt.Status)
	assert.Equal(t, "pat@example.com", apt.PatientEmail)
	assert.Equal(t, "Dr. Asha Rao", apt.DoctorName)
	assert.Equal(t, "Cardiology", apt.Specialty)
	assert.Nil(t, apt.PatientAddress)

	stored, err := f.store.Appointments().Get(ctx, apt.ID)
	require.NoError(t, err)
	assert.Equal(t, apt.PatientID, stored.PatientID)

	doctor, err := f.store.Doctors().Get(ctx, f.doctor.ID)
	require.NoError(t, err)
	assert.Equal(t, pq.StringArray{"2026-11-01 10:30"}, doctor.AvailableSlots)
}

func TestSlotChangesInvalidateDirectory(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	apt, err := f.svc.Book(ctx, f.patient, f.bookRequest())
	require.NoError(t, err)
	assert.Equal(t, 1, f.directory.invalidated)

	_, err = f.svc.Cancel(ctx, f.patient, apt.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, f.directory.invalidated)

	doctor, err := f.store.Doctors().Get(ctx, f.doctor.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"2026-11-01 10:00", "2026-11-01 10:30"}, []string(doctor.AvailableSlots))
}

func TestBook_InvalidRequestWritesNothing(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.BookAppointmentRequest)
		field  string
	}{
		{"missing reason", func(r *model.BookAppointmentRequest) { r.Reason = "  " }, "reason"},
		{"zero age", func(r *model.BookAppointmentRequest) { r.Age = 0 }, "age"},
		{"negative age", func(r *model.BookAppointmentRequest) { r.Age = -3 }, "age"},
		{"bad date", func(r *model.BookAppointmentRequest) { r.Date = "01/11/2026" }, "date"},
		{"bad time", func(r *model.BookAppointmentRequest) { r.Time = "10am" }, "time"},
		{"missing gender", func(r *model.BookAppointmentRequest) { r.Gender = "" }, "gender"},
		{"missing phone", func(r *model.BookAppointmentRequest) { r.Phone = "" }, "phone"},
		{"blank phone", func(r *model.BookAppointmentRequest) { r.Phone = "   " }, "phone"},
		{"blank gender", func(r *model.BookAppointmentRequest) { r.Gender = "\t " }, "gender"},
		{"missing name", func(r *model.BookAppointmentRequest) { r.Name = "" }, "name"},
		{"empty date", func(r *model.BookAppointmentRequest) { r.Date = "" }, "date"},
		{"empty time", func(r *model.BookAppointmentRequest) { r.Time = " " }, "time"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			before := f.store.Writes()

			req := f.bookRequest()
			tt.mutate(req)
			_, err := f.svc.Book(context.Background(), f.patient, req)

			var verr *validator.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Fields[0].Field)
			assert.Equal(t, before, f.store.Writes())
		})
	}
}

func TestBook_DoctorMustBeApproved(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	pending := *f.doctor
	pending.Status = model.DoctorStatusPending
	require.NoError(t, f.store.Doctors().Update(ctx, &pending))
	before := f.store.Writes()

	_, err := f.svc.Book(ctx, f.patient, f.bookRequest())
	assert.ErrorIs(t, err, ErrDoctorUnavailable)
	assert.Equal(t, before, f.store.Writes())

	req := f.bookRequest()
	req.DoctorID = uuid.New()
	_, err = f.svc.Book(ctx, f.patient, req)
	assert.ErrorIs(t, err, ErrDoctorNotFound)
}

func TestBook_OnlyPatients(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Book(context.Background(), f.doctorActor(), f.bookRequest())
	assert.ErrorIs(t, err, ErrPatientsOnly)
}

func TestBook_SameSlotTwice(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first, err := f.svc.Book(ctx, f.patient, f.bookRequest())
	require.NoError(t, err)
	second, err := f.svc.Book(ctx, f.patient, f.bookRequest())
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, first.SlotKey(), second.SlotKey())
}

func TestBook_SlotRemovalFailureIgnored(t *testing.T) {
	f := newFixture(t, nil)
	f.store.Fail(memory.OpDoctorRemoveSlot, errors.New("timeout"))

	apt, err := f.svc.Book(context.Background(), f.patient, f.bookRequest())
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusPending, apt.Status)
}

func TestDecisions(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	apt, err := f.svc.Book(ctx, f.patient, f.bookRequest())
	require.NoError(t, err)

	_, err = f.svc.Confirm(ctx, f.patient, apt.ID)
	assert.ErrorIs(t, err, ErrNotParticipant)
	otherDoctor := model.Principal{AccountID: uuid.New(), Role: model.RoleDoctor}
	_, err = f.svc.Confirm(ctx, otherDoctor, apt.ID)
	assert.ErrorIs(t, err, ErrNotParticipant)

	_, err = f.svc.Complete(ctx, f.doctorActor(), apt.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition, "pending cannot complete")

	confirmed, err := f.svc.Confirm(ctx, f.doctorActor(), apt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusConfirmed, confirmed.Status)
	assert.NotNil(t, confirmed.ConfirmedAt)
	require.NotNil(t, confirmed.DecidedBy)
	assert.Equal(t, f.doctor.ID, *confirmed.DecidedBy)

	_, err = f.svc.Reject(ctx, f.doctorActor(), apt.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	completed, err := f.svc.Complete(ctx, f.doctorActor(), apt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCompleted, completed.Status)

	_, err = f.svc.Cancel(ctx, f.patient, apt.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition, "completed is terminal")
}

func TestReject(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	apt, err := f.svc.Book(ctx, f.patient, f.bookRequest())
	require.NoError(t, err)

	rejected, err := f.svc.Reject(ctx, f.doctorActor(), apt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusRejected, rejected.Status)
	assert.NotNil(t, rejected.RejectedAt)

	_, err = f.svc.Confirm(ctx, f.doctorActor(), apt.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCancel_ByPatientNotifiesDoctorAndReturnsSlot(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	apt, err := f.svc.Book(ctx, f.patient, f.bookRequest())
	require.NoError(t, err)

	cancelled, err := f.svc.Cancel(ctx, f.patient, apt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledBy)
	assert.Equal(t, f.patient.AccountID, *cancelled.CancelledBy)

	doctor, err := f.store.Doctors().Get(ctx, f.doctor.ID)
	require.NoError(t, err)
	assert.Contains(t, doctor.AvailableSlots, "2026-11-01 10:00")

	events := f.store.OutboxEvents()
	require.Len(t, events, 1)
	assert.Equal(t, model.EventEmailNotice, events[0].EventType)
	assert.Contains(t, string(events[0].Payload), "asha@example.com")

	_, err = f.svc.Cancel(ctx, f.patient, apt.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCancel_NotificationFailureDoesNotAbort(t *testing.T) {
	notifier := &mockNotifier{}
	notifier.On("NotifyCancellation", mock.Anything, mock.Anything, model.RoleDoctor).
		Return(errors.New("outbox unavailable"))
	f := newFixture(t, notifier)
	ctx := context.Background()

	apt, err := f.svc.Book(ctx, f.patient, f.bookRequest())
	require.NoError(t, err)

	cancelled, err := f.svc.Cancel(ctx, f.doctorActor(), apt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCancelled, cancelled.Status)

	stored, err := f.store.Appointments().Get(ctx, apt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCancelled, stored.Status)
	notifier.AssertExpectations(t)
}

func TestCancel_Strangers(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	apt, err := f.svc.Book(ctx, f.patient, f.bookRequest())
	require.NoError(t, err)

	stranger := model.Principal{AccountID: uuid.New(), Role: model.RolePatient}
	_, err = f.svc.Cancel(ctx, stranger, apt.ID)
	assert.ErrorIs(t, err, ErrNotParticipant)

	admin := model.Principal{AccountID: uuid.New(), Role: model.RoleAdmin}
	_, err = f.svc.Cancel(ctx, admin, apt.ID)
	assert.ErrorIs(t, err, ErrNotParticipant)
}

func TestGetAndList(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	apt, err := f.svc.Book(ctx, f.patient, f.bookRequest())
	require.NoError(t, err)
	req := f.bookRequest()
	req.Time = "10:30"
	second, err := f.svc.Book(ctx, f.patient, req)
	require.NoError(t, err)
	_, err = f.svc.Confirm(ctx, f.doctorActor(), second.ID)
	require.NoError(t, err)

	admin := model.Principal{AccountID: uuid.New(), Role: model.RoleAdmin}
	for _, actor := range []model.Principal{f.patient, f.doctorActor(), admin} {
		got, err := f.svc.Get(ctx, actor, apt.ID)
		require.NoError(t, err)
		assert.Equal(t, apt.ID, got.ID)
	}
	_, err = f.svc.Get(ctx, model.Principal{AccountID: uuid.New(), Role: model.RolePatient}, apt.ID)
	assert.ErrorIs(t, err, ErrNotParticipant)
	_, err = f.svc.Get(ctx, admin, uuid.New())
	assert.ErrorIs(t, err, ErrAppointmentNotFound)

	mine, err := f.svc.ListForPatient(ctx, f.patient.AccountID, "")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, second.ID, mine[0].ID, "latest slot first")

	pending, err := f.svc.ListForDoctor(ctx, f.doctor.ID, model.AppointmentStatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, apt.ID, pending[0].ID)

	all, err := f.svc.ListAll(ctx, model.AppointmentStatusConfirmed)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = f.svc.ListAll(ctx, "lost")
	assert.Error(t, err)
}
