package model

import (
	"strings"

	"github.com/google/uuid"
)

// Live-query topics.
const (
	TopicDoctorsApproved     = "doctors.approved"
	TopicAppointmentsAll     = "appointments.all"
	topicDoctorsStatusPrefix = "doctors.status."
	topicDoctorPrefix        = "doctors."
	topicPatientApptPrefix   = "appointments.patient."
	topicDoctorApptPrefix    = "appointments.doctor."
)

func TopicDoctorsByStatus(s DoctorStatus) string {
	return topicDoctorsStatusPrefix + string(s)
}

func TopicDoctor(id uuid.UUID) string {
	return topicDoctorPrefix + id.String()
}

func TopicPatientAppointments(id uuid.UUID) string {
	return topicPatientApptPrefix + id.String()
}

func TopicDoctorAppointments(id uuid.UUID) string {
	return topicDoctorApptPrefix + id.String()
}

// TopicKind classifies a topic string.
type TopicKind int

const (
	TopicInvalid TopicKind = iota
	TopicKindDoctorsApproved
	TopicKindDoctorsByStatus
	TopicKindDoctor
	TopicKindPatientAppointments
	TopicKindDoctorAppointments
	TopicKindAllAppointments
)

// Topic is a parsed live-query topic.
type Topic struct {
	Kind   TopicKind
	Status DoctorStatus
	ID     uuid.UUID
}

func ParseTopic(s string) Topic {
	switch {
	case s == TopicDoctorsApproved:
		return Topic{Kind: TopicKindDoctorsApproved}
	case s == TopicAppointmentsAll:
		return Topic{Kind: TopicKindAllAppointments}
	case strings.HasPrefix(s, topicDoctorsStatusPrefix):
		st := DoctorStatus(strings.TrimPrefix(s, topicDoctorsStatusPrefix))
		if !st.IsValid() {
			return Topic{}
		}
		return Topic{Kind: TopicKindDoctorsByStatus, Status: st}
	case strings.HasPrefix(s, topicPatientApptPrefix):
		return withID(TopicKindPatientAppointments, strings.TrimPrefix(s, topicPatientApptPrefix))
	case strings.HasPrefix(s, topicDoctorApptPrefix):
		return withID(TopicKindDoctorAppointments, strings.TrimPrefix(s, topicDoctorApptPrefix))
	case strings.HasPrefix(s, topicDoctorPrefix):
		return withID(TopicKindDoctor, strings.TrimPrefix(s, topicDoctorPrefix))
	}
	return Topic{}
}

func withID(kind TopicKind, raw string) Topic {
	id, err := uuid.Parse(raw)
	if err != nil {
		return Topic{}
	}
	return Topic{Kind: kind, ID: id}
}

// DoctorTopics lists the topics affected by a doctor moving from one status
// to another. prev is empty for creations.
func DoctorTopics(id uuid.UUID, prev, next DoctorStatus) []string {
	topics := []string{TopicDoctor(id)}
	seen := map[DoctorStatus]bool{}
	for _, s := range []DoctorStatus{prev, next} {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		topics = append(topics, TopicDoctorsByStatus(s))
		if s == DoctorStatusApproved {
			topics = append(topics, TopicDoctorsApproved)
		}
	}
	return topics
}

func AppointmentTopics(a *Appointment) []string {
	return []string{
		TopicPatientAppointments(a.PatientID),
		TopicDoctorAppointments(a.DoctorID),
		TopicAppointmentsAll,
	}
}
