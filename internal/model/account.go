package model

import (
	"time"

	"github.com/google/uuid"
)

// Role is fixed at signup; nothing changes it afterwards.
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

func (r Role) IsValid() bool {
	switch r {
	case RolePatient, RoleDoctor, RoleAdmin:
		return true
	}
	return false
}

// Account is an entry of the account/role directory.
type Account struct {
	Base
	Name  string  `json:"name" db:"name"`
	Email string  `json:"email" db:"email"`
	Role  Role    `json:"role" db:"role"`
	Phone *string `json:"phone,omitempty" db:"phone"`
}

// Credential is the identity provider's record for an account.
type Credential struct {
	AccountID    uuid.UUID `db:"account_id"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
}

type AccountFilters struct {
	Role Role
}
