package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/hospital-api/internal/live"
	"github.com/jwalitptl/hospital-api/internal/service/account"
	"github.com/jwalitptl/hospital-api/internal/service/appointment"
	"github.com/jwalitptl/hospital-api/internal/service/auth"
	"github.com/jwalitptl/hospital-api/internal/service/doctor"
	apperrors "github.com/jwalitptl/hospital-api/pkg/errors"
	"github.com/jwalitptl/hospital-api/pkg/validator"
)

type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Errors  interface{} `json:"errors,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

func NewErrorResponse(message string) *Response {
	return &Response{
		Status:  "error",
		Message: message,
	}
}

func Success(c *gin.Context, status int, data interface{}) {
	c.JSON(status, NewSuccessResponse(data))
}

// Error writes err as a JSON error response. Unknown errors become a 500
// and are logged; their text is not sent to the client.
func Error(c *gin.Context, err error) {
	var verr *validator.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, &Response{
			Status:  "error",
			Message: "validation failed",
			Errors:  verr.Fields,
		})
		return
	}

	appErr := ToAppError(err)
	status := appErr.StatusCode()
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).
			Str("path", c.Request.URL.Path).
			Str("request_id", c.GetString(ContextRequestID)).
			Msg("request failed")
	}
	c.JSON(status, NewErrorResponse(appErr.Message))
}

// ToAppError maps domain errors onto API error codes.
func ToAppError(err error) *apperrors.AppError {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrSessionRevoked),
		errors.Is(err, auth.ErrInvalidSession):
		return apperrors.Unauthorized(auth.UserMessage(err), err)
	case errors.Is(err, auth.ErrWeakPassword):
		return apperrors.BadRequest(auth.UserMessage(err), err)
	case errors.Is(err, auth.ErrEmailInUse):
		return apperrors.Conflict(auth.UserMessage(err), err)
	case errors.Is(err, auth.ErrTooManyAttempts):
		return apperrors.TooManyRequests(auth.UserMessage(err), err)
	case errors.Is(err, auth.ErrAdminSignUp):
		return apperrors.Forbidden(auth.UserMessage(err), err)

	case errors.Is(err, account.ErrAccountNotFound):
		return apperrors.NotFound("account", err)

	case errors.Is(err, doctor.ErrDoctorNotFound),
		errors.Is(err, appointment.ErrDoctorNotFound):
		return apperrors.NotFound("doctor", err)
	case errors.Is(err, doctor.ErrAmbiguousDoctor):
		return apperrors.Conflict("more than one doctor matches this name; use the profile link", err)
	case errors.Is(err, doctor.ErrNotOwner):
		return apperrors.Forbidden(err.Error(), err)
	case errors.Is(err, doctor.ErrInvalidTransition),
		errors.Is(err, appointment.ErrInvalidTransition):
		return apperrors.Conflict(err.Error(), err)

	case errors.Is(err, appointment.ErrAppointmentNotFound):
		return apperrors.NotFound("appointment", err)
	case errors.Is(err, appointment.ErrDoctorUnavailable):
		return apperrors.BadRequest(err.Error(), err)
	case errors.Is(err, appointment.ErrNotParticipant),
		errors.Is(err, appointment.ErrPatientsOnly),
		errors.Is(err, live.ErrForbidden):
		return apperrors.Forbidden(err.Error(), err)
	}

	return apperrors.Internal(err)
}
