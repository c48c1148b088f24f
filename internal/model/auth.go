package model

import (
	"time"

	"github.com/google/uuid"
)

type SignUpRequest struct {
	Name     string `json:"name" binding:"required" validate:"required,min=2,max=200"`
	Email    string `json:"email" binding:"required,email" validate:"required,email"`
	Password string `json:"password" binding:"required"`
	Role     Role   `json:"role" binding:"required,oneof=patient doctor" validate:"required,oneof=patient doctor"`
	Phone    string `json:"phone" validate:"max=50"`

	// Doctor signup only.
	Specialty       string   `json:"specialty" validate:"max=200"`
	Qualifications  string   `json:"qualifications" validate:"max=500"`
	ExperienceYears *int     `json:"experience_years" validate:"omitempty,gte=0"`
	ConsultationFee *float64 `json:"consultation_fee" validate:"omitempty,gte=0"`
	Address         string   `json:"address" validate:"max=500"`
	Bio             string   `json:"bio" validate:"max=4000"`
}

type SignInRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Session is what sign-in returns.
type Session struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	AccountID   uuid.UUID `json:"account_id"`
	Role        Role      `json:"role"`
}

// Principal is the verified caller of a request.
type Principal struct {
	AccountID uuid.UUID
	Email     string
	Role      Role
	SessionID string
}

func (p Principal) Is(role Role) bool {
	return p.Role == role
}
