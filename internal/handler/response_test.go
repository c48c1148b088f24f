package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/service/appointment"
	"github.com/jwalitptl/hospital-api/internal/service/auth"
	"github.com/jwalitptl/hospital-api/internal/service/doctor"
	"github.com/jwalitptl/hospital-api/pkg/validator"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func render(t *testing.T, err error) (int, Response) {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	Error(c, err)

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w.Code, resp
}

func TestError_StatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid credentials", auth.ErrInvalidCredentials, http.StatusUnauthorized},
		{"weak password", auth.ErrWeakPassword, http.StatusBadRequest},
		{"email in use", auth.ErrEmailInUse, http.StatusConflict},
		{"rate limited", auth.ErrTooManyAttempts, http.StatusTooManyRequests},
		{"doctor missing", fmt.Errorf("load: %w", doctor.ErrDoctorNotFound), http.StatusNotFound},
		{"ambiguous slug", doctor.ErrAmbiguousDoctor, http.StatusConflict},
		{"not owner", doctor.ErrNotOwner, http.StatusForbidden},
		{"bad transition", appointment.ErrInvalidTransition, http.StatusConflict},
		{"unapproved doctor", appointment.ErrDoctorUnavailable, http.StatusBadRequest},
		{"stranger", appointment.ErrNotParticipant, http.StatusForbidden},
		{"unknown", errors.New("connection reset"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := render(t, tt.err)
			assert.Equal(t, tt.want, code)
			assert.Equal(t, "error", resp.Status)
		})
	}
}

func TestError_FixedAuthMessages(t *testing.T) {
	_, resp := render(t, auth.ErrEmailInUse)
	assert.Equal(t, "This email is already registered.", resp.Message)

	_, resp = render(t, errors.New("pq: password authentication failed"))
	assert.Equal(t, "internal server error", resp.Message)
}

func TestError_ValidationFields(t *testing.T) {
	err := validator.Validate(&model.BookAppointmentRequest{})
	require.Error(t, err)

	code, resp := render(t, err)
	assert.Equal(t, http.StatusBadRequest, code)
	fields, ok := resp.Errors.([]interface{})
	require.True(t, ok)
	assert.NotEmpty(t, fields)
}
