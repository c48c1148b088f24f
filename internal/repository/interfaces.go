package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/hospital-api/internal/model"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
)

// All repository interfaces in one file
type (
	AccountRepository interface {
		// Register writes the account, its credential and (for doctors) the
		// initial profile in one transaction.
		Register(ctx context.Context, account *model.Account, cred *model.Credential, profile *model.DoctorProfile) error
		Get(ctx context.Context, id uuid.UUID) (*model.Account, error)
		GetByEmail(ctx context.Context, email string) (*model.Account, error)
		List(ctx context.Context, filters *model.AccountFilters) ([]*model.Account, error)
		Delete(ctx context.Context, id uuid.UUID) error
	}

	CredentialRepository interface {
		GetByEmail(ctx context.Context, email string) (*model.Credential, error)
		Delete(ctx context.Context, accountID uuid.UUID) error
	}

	DoctorRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.DoctorProfile, error)
		GetBySlug(ctx context.Context, slug string) (*model.DoctorProfile, error)
		List(ctx context.Context, filters *model.DoctorFilters) ([]*model.DoctorProfile, error)
		Update(ctx context.Context, profile *model.DoctorProfile) error
		SetSlots(ctx context.Context, id uuid.UUID, slots []string) error
		AddSlot(ctx context.Context, id uuid.UUID, slot string) error
		RemoveSlot(ctx context.Context, id uuid.UUID, slot string) error
		Delete(ctx context.Context, id uuid.UUID) error
	}

	AppointmentRepository interface {
		Create(ctx context.Context, appointment *model.Appointment) error
		Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
		Update(ctx context.Context, appointment *model.Appointment) error
		List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		GetPendingEventsWithLock(ctx context.Context, tx *sql.Tx, limit int) ([]*model.OutboxEvent, error)
		BeginTx(ctx context.Context) (*sql.Tx, error)
		UpdateStatusTx(ctx context.Context, tx *sql.Tx, id uuid.UUID, status model.OutboxStatus, errorMessage *string, retryCount int, retryAt *time.Time) error
		MoveToDeadLetter(ctx context.Context, tx *sql.Tx, event *model.OutboxEvent) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}

	// SessionStore tracks revoked session ids until their tokens expire.
	SessionStore interface {
		Revoke(ctx context.Context, sessionID string, ttl time.Duration) error
		IsRevoked(ctx context.Context, sessionID string) (bool, error)
	}
)
