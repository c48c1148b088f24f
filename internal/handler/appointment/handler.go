package appointment

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/hospital-api/internal/handler"
	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/service/appointment"
)

type Handler struct {
	service *appointment.Service
}

func NewHandler(service *appointment.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(g handler.Groups) {
	appointments := g.Authed.Group("/appointments")
	{
		appointments.POST("", h.Book)
		appointments.GET("", h.ListAppointments)
		appointments.GET("/:id", h.GetAppointment)
		appointments.POST("/:id/cancel", h.Cancel)
	}

	decisions := g.Doctor.Group("/appointments/:id")
	{
		decisions.POST("/confirm", h.decide(h.service.Confirm))
		decisions.POST("/reject", h.decide(h.service.Reject))
		decisions.POST("/complete", h.decide(h.service.Complete))
	}

	g.Admin.GET("/appointments", h.ListAll)
}

func (h *Handler) Book(c *gin.Context) {
	principal, ok := handler.MustPrincipal(c)
	if !ok {
		return
	}
	var req model.BookAppointmentRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	apt, err := h.service.Book(c.Request.Context(), principal, &req)
	if err != nil {
		handler.Error(c, err)
		return
	}
	handler.Success(c, http.StatusCreated, apt)
}

func (h *Handler) GetAppointment(c *gin.Context) {
	principal, ok := handler.MustPrincipal(c)
	if !ok {
		return
	}
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	apt, err := h.service.Get(c.Request.Context(), principal, id)
	if err != nil {
		handler.Error(c, err)
		return
	}
	handler.Success(c, http.StatusOK, apt)
}

// ListAppointments returns the caller's own appointments: a patient's
// bookings, a doctor's schedule, or everything for an admin.
func (h *Handler) ListAppointments(c *gin.Context) {
	principal, ok := handler.MustPrincipal(c)
	if !ok {
		return
	}
	status := model.AppointmentStatus(c.Query("status"))

	var (
		list []*model.Appointment
		err  error
	)
	switch principal.Role {
	case model.RoleAdmin:
		list, err = h.service.ListAll(c.Request.Context(), status)
	case model.RoleDoctor:
		list, err = h.service.ListForDoctor(c.Request.Context(), principal.AccountID, status)
	default:
		list, err = h.service.ListForPatient(c.Request.Context(), principal.AccountID, status)
	}
	if err != nil {
		handler.Error(c, err)
		return
	}
	handler.Success(c, http.StatusOK, list)
}

func (h *Handler) ListAll(c *gin.Context) {
	list, err := h.service.ListAll(c.Request.Context(), model.AppointmentStatus(c.Query("status")))
	if err != nil {
		handler.Error(c, err)
		return
	}
	handler.Success(c, http.StatusOK, list)
}

func (h *Handler) Cancel(c *gin.Context) {
	h.decide(h.service.Cancel)(c)
}

type action func(ctx context.Context, actor model.Principal, id uuid.UUID) (*model.Appointment, error)

func (h *Handler) decide(fn action) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := handler.MustPrincipal(c)
		if !ok {
			return
		}
		id, ok := handler.ParseID(c, "id")
		if !ok {
			return
		}

		apt, err := fn(c.Request.Context(), principal, id)
		if err != nil {
			handler.Error(c, err)
			return
		}
		handler.Success(c, http.StatusOK, apt)
	}
}
