package live

import (
	"context"
	"errors"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/service/appointment"
	"github.com/jwalitptl/hospital-api/internal/service/doctor"
)

var (
	ErrUnknownTopic = errors.New("unknown topic")
	ErrForbidden    = errors.New("not allowed to watch this topic")
)

// Querier produces the current result set of a topic for a caller.
type Querier interface {
	Query(ctx context.Context, p model.Principal, topic model.Topic) (interface{}, error)
	// Changed runs before a change is fanned out to subscribers.
	Changed(change model.ChangeEvent)
}

// Authorize decides from the caller's claims alone whether a topic may be
// watched. Single-doctor topics are further checked by the query.
func Authorize(p model.Principal, t model.Topic) error {
	switch t.Kind {
	case model.TopicKindDoctorsApproved, model.TopicKindDoctor:
		return nil
	case model.TopicKindDoctorsByStatus, model.TopicKindAllAppointments:
		if p.Is(model.RoleAdmin) {
			return nil
		}
	case model.TopicKindPatientAppointments:
		if p.Is(model.RoleAdmin) || (p.Is(model.RolePatient) && p.AccountID == t.ID) {
			return nil
		}
	case model.TopicKindDoctorAppointments:
		if p.Is(model.RoleAdmin) || (p.Is(model.RoleDoctor) && p.AccountID == t.ID) {
			return nil
		}
	default:
		return ErrUnknownTopic
	}
	return ErrForbidden
}

type ServiceQuerier struct {
	doctors      *doctor.Service
	appointments *appointment.Service
}

func NewServiceQuerier(doctors *doctor.Service, appointments *appointment.Service) *ServiceQuerier {
	return &ServiceQuerier{doctors: doctors, appointments: appointments}
}

func (q *ServiceQuerier) Query(ctx context.Context, p model.Principal, t model.Topic) (interface{}, error) {
	if err := Authorize(p, t); err != nil {
		return nil, err
	}

	switch t.Kind {
	case model.TopicKindDoctorsApproved:
		return q.doctors.ListApproved(ctx)
	case model.TopicKindDoctorsByStatus:
		return q.doctors.ListByStatus(ctx, t.Status)
	case model.TopicKindDoctor:
		profile, err := q.doctors.Get(ctx, t.ID)
		if errors.Is(err, doctor.ErrDoctorNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if !profile.Bookable() && !p.Is(model.RoleAdmin) && p.AccountID != profile.ID {
			return nil, ErrForbidden
		}
		return profile, nil
	case model.TopicKindPatientAppointments:
		return q.appointments.ListForPatient(ctx, t.ID, "")
	case model.TopicKindDoctorAppointments:
		return q.appointments.ListForDoctor(ctx, t.ID, "")
	case model.TopicKindAllAppointments:
		return q.appointments.ListAll(ctx, "")
	}
	return nil, ErrUnknownTopic
}

func (q *ServiceQuerier) Changed(change model.ChangeEvent) {
	if change.Collection == model.CollectionDoctors {
		q.doctors.InvalidateDirectory()
	}
}
