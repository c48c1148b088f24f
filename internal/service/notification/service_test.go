package notification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/repository/memory"
	"github.com/jwalitptl/hospital-api/pkg/validator"
)

func sampleAppointment() *model.Appointment {
	return &model.Appointment{
		Base:         model.Base{ID: uuid.New()},
		PatientID:    uuid.New(),
		PatientName:  "Pat Kumar",
		PatientEmail: "pat@example.com",
		DoctorID:     uuid.New(),
		DoctorName:   "Dr. Asha Rao",
		DoctorEmail:  "asha@example.com",
		Date:         "2025-12-25",
		Time:         "10:00",
		Reason:       "Checkup",
	}
}

func TestEnqueue(t *testing.T) {
	store := memory.NewStore()
	svc := NewService(store.Outbox(), nil)

	err := svc.Enqueue(context.Background(), &model.EmailNotice{To: " a@example.com ", Subject: "Hi", Text: "Body"})
	require.NoError(t, err)

	events := store.OutboxEvents()
	require.Len(t, events, 1)
	assert.Equal(t, model.EventEmailNotice, events[0].EventType)
	var notice model.EmailNotice
	require.NoError(t, json.Unmarshal(events[0].Payload, &notice))
	assert.Equal(t, "a@example.com", notice.To)
}

func TestEnqueue_Invalid(t *testing.T) {
	store := memory.NewStore()
	svc := NewService(store.Outbox(), nil)

	err := svc.Enqueue(context.Background(), &model.EmailNotice{To: "nope", Subject: "", Text: "x"})
	var verr *validator.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 2)
	assert.Empty(t, store.OutboxEvents())
}

func TestEnqueue_OutboxFailure(t *testing.T) {
	store := memory.NewStore()
	boom := errors.New("db down")
	store.Fail(memory.OpOutboxCreate, boom)
	svc := NewService(store.Outbox(), nil)

	err := svc.Enqueue(context.Background(), &model.EmailNotice{To: "a@example.com", Subject: "s", Text: "t"})
	assert.ErrorIs(t, err, boom)
}

func TestCancellationNotice_Recipient(t *testing.T) {
	appt := sampleAppointment()

	byPatient := CancellationNotice(appt, model.RolePatient)
	require.NotNil(t, byPatient)
	assert.Equal(t, "asha@example.com", byPatient.To)
	assert.Contains(t, byPatient.Text, "Pat Kumar")
	assert.Contains(t, byPatient.Text, "2025-12-25 at 10:00")

	byDoctor := CancellationNotice(appt, model.RoleDoctor)
	require.NotNil(t, byDoctor)
	assert.Equal(t, "pat@example.com", byDoctor.To)

	appt.DoctorEmail = ""
	assert.Nil(t, CancellationNotice(appt, model.RolePatient))
}
