package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTService_RoundTrip(t *testing.T) {
	svc := NewJWTService("secret", "hospital-api", time.Hour)
	sub := Subject{AccountID: uuid.New(), Email: "p@example.com", Role: "patient"}

	token, issued, err := svc.GenerateAccessToken(sub)
	require.NoError(t, err)
	require.NotEmpty(t, issued.ID)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, sub.AccountID, claims.AccountID)
	assert.Equal(t, "patient", claims.Role)
	assert.Equal(t, issued.ID, claims.ID)
}

func TestJWTService_RejectsOtherSecret(t *testing.T) {
	a := NewJWTService("secret-a", "hospital-api", time.Hour)
	b := NewJWTService("secret-b", "hospital-api", time.Hour)

	token, _, err := a.GenerateAccessToken(Subject{AccountID: uuid.New(), Role: "admin"})
	require.NoError(t, err)

	_, err = b.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTService_Expired(t *testing.T) {
	svc := NewJWTService("secret", "hospital-api", time.Minute).(*jwtService)
	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	token, _, err := svc.GenerateAccessToken(Subject{AccountID: uuid.New(), Role: "doctor"})
	require.NoError(t, err)

	svc.now = time.Now
	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}
