package doctor

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/hospital-api/internal/handler"
	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/service/doctor"
)

type Handler struct {
	service *doctor.Service
}

func NewHandler(service *doctor.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(g handler.Groups) {
	public := g.Public.Group("/doctors")
	{
		public.GET("", h.ListApproved)
		public.GET("/slug/:slug", h.GetBySlug)
		public.GET("/:id", h.GetApproved)
	}

	own := g.Doctor.Group("")
	{
		own.GET("/profile", h.GetOwnProfile)
		own.PUT("/profile", h.UpdateProfile)
		own.PUT("/slots", h.SetAvailableSlots)
		own.POST("/review-request", h.RequestReview)
	}

	admin := g.Admin.Group("/doctors")
	{
		admin.GET("", h.ListByStatus)
		admin.GET("/:id", h.Get)
		admin.POST("/:id/approve", h.Approve)
		admin.POST("/:id/reject", h.Reject)
		admin.DELETE("/:id", h.Delete)
	}
}

func (h *Handler) ListApproved(c *gin.Context) {
	doctors, err := h.service.ListApproved(c.Request.Context())
	if err != nil {
		handler.Error(c, err)
		return
	}
	handler.Success(c, http.StatusOK, doctors)
}

// GetApproved hides profiles that are not yet approved from the public
// directory.
func (h *Handler) GetApproved(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	profile, err := h.service.Get(c.Request.Context(), id)
	if err == nil && !profile.Bookable() {
		err = doctor.ErrDoctorNotFound
	}
	if err != nil {
		handler.Error(c, err)
		return
	}
	handler.Success(c, http.StatusOK, profile)
}

func (h *Handler) GetBySlug(c *gin.Context) {
	profile, err := h.service.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err == nil && !profile.Bookable() {
		err = doctor.ErrDoctorNotFound
	}
	if err != nil {
		handler.Error(c, err)
		return
	}
	handler.Success(c, http.StatusOK, profile)
}

func (h *Handler) GetOwnProfile(c *gin.Context) {
	principal, ok := handler.MustPrincipal(c)
	if !ok {
		return
	}

	profile, err := h.service.Get(c.Request.Context(), principal.AccountID)
	if err != nil {
		handler.Error(c, err)
		return
	}
	handler.Success(c, http.StatusOK, profile)
}

func (h *Handler) UpdateProfile(c *gin.Context) {
	principal, ok := handler.MustPrincipal(c)
	if !ok {
		return
	}
	var req model.UpdateDoctorProfileRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	profile, err := h.service.UpdateProfile(c.Request.Context(), principal, principal.AccountID, &req)
	if err != nil {
		handler.Error(c, err)
		return
	}
	handler.Success(c, http.StatusOK, profile)
}

func (h *Handler) SetAvailableSlots(c *gin.Context) {
	principal, ok := handler.MustPrincipal(c)
	if !ok {
		return
	}
	var req model.SetSlotsRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	profile, err := h.service.SetAvailableSlots(c.Request.Context(), principal, principal.AccountID, &req)
	if err != nil {
		handler.Error(c, err)
		return
	}
	handler.Success(c, http.StatusOK, profile)
}

func (h *Handler) RequestReview(c *gin.Context) {
	principal, ok := handler.MustPrincipal(c)
	if !ok {
		return
	}

	profile, err := h.service.RequestReview(c.Request.Context(), principal, principal.AccountID)
	if err != nil {
		handler.Error(c, err)
		return
	}
	handler.Success(c, http.StatusOK, profile)
}

func (h *Handler) ListByStatus(c *gin.Context) {
	doctors, err := h.service.ListByStatus(c.Request.Context(), model.DoctorStatus(c.Query("status")))
	if err != nil {
		handler.Error(c, err)
		return
	}
	handler.Success(c, http.StatusOK, doctors)
}

func (h *Handler) Get(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	profile, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		handler.Error(c, err)
		return
	}
	handler.Success(c, http.StatusOK, profile)
}

func (h *Handler) Approve(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	profile, err := h.service.Approve(c.Request.Context(), id)
	if err != nil {
		handler.Error(c, err)
		return
	}
	handler.Success(c, http.StatusOK, profile)
}

func (h *Handler) Reject(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}
	// The reason is optional, so an empty body is accepted.
	var req model.RejectDoctorRequest
	if c.Request.ContentLength > 0 && !handler.BindJSON(c, &req) {
		return
	}

	profile, err := h.service.Reject(c.Request.Context(), id, &req)
	if err != nil {
		handler.Error(c, err)
		return
	}
	handler.Success(c, http.StatusOK, profile)
}

// Delete reports the committed steps alongside the error when a deletion
// stops part way, so the caller can retry.
func (h *Handler) Delete(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	result, err := h.service.Delete(c.Request.Context(), id)
	var delErr *doctor.DeletionError
	if errors.As(err, &delErr) {
		log.Error().Err(err).Str("doctor_id", id.String()).Str("step", delErr.Step).Msg("doctor deletion incomplete")
		c.JSON(http.StatusInternalServerError, &handler.Response{
			Status:  "error",
			Message: "doctor deletion incomplete at " + delErr.Step + " step",
			Data:    delErr.Deletion,
		})
		return
	}
	if err != nil {
		handler.Error(c, err)
		return
	}
	handler.Success(c, http.StatusOK, result)
}
