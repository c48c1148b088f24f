package model

import (
	"time"

	"github.com/google/uuid"
)

// EmailNotice is the payload of a notification.email outbox event.
type EmailNotice struct {
	To      string `json:"to" validate:"required,email"`
	Subject string `json:"subject" validate:"required,max=300"`
	Text    string `json:"text" validate:"required,max=20000"`
}

// ChangeEvent tells live-query subscribers that a record of a collection changed.
// Topics lists every live topic whose result set may be affected.
type ChangeEvent struct {
	Collection string    `json:"collection"`
	Op         string    `json:"op"`
	ID         uuid.UUID `json:"id"`
	Topics     []string  `json:"topics"`
	At         time.Time `json:"at"`
}

const (
	CollectionDoctors      = "doctors"
	CollectionAppointments = "appointments"
	CollectionUsers        = "users"

	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)
