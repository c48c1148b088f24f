package notice

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/hospital-api/internal/handler"
	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/service/notification"
)

type Handler struct {
	service notification.Service
}

func NewHandler(service notification.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(g handler.Groups) {
	g.Authed.POST("/notices", h.Send)
}

// Send queues the notice; delivery happens in the outbox worker.
func (h *Handler) Send(c *gin.Context) {
	var req model.EmailNotice
	if !handler.BindJSON(c, &req) {
		return
	}

	if err := h.service.Enqueue(c.Request.Context(), &req); err != nil {
		handler.Error(c, err)
		return
	}
	handler.Success(c, http.StatusAccepted, gin.H{"queued": true})
}
