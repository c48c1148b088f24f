package account

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/hospital-api/internal/handler"
	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/service/account"
)

type Handler struct {
	service account.AccountServicer
}

func NewHandler(service account.AccountServicer) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(g handler.Groups) {
	g.Authed.GET("/me", h.Me)

	accounts := g.Admin.Group("/accounts")
	{
		accounts.GET("", h.ListAccounts)
		accounts.GET("/:id", h.GetAccount)
	}
}

func (h *Handler) Me(c *gin.Context) {
	principal, ok := handler.MustPrincipal(c)
	if !ok {
		return
	}

	profile, err := h.service.Me(c.Request.Context(), principal)
	if err != nil {
		handler.Error(c, err)
		return
	}
	handler.Success(c, http.StatusOK, profile)
}

func (h *Handler) GetAccount(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	account, err := h.service.GetAccount(c.Request.Context(), id)
	if err != nil {
		handler.Error(c, err)
		return
	}
	handler.Success(c, http.StatusOK, account)
}

func (h *Handler) ListAccounts(c *gin.Context) {
	filters := &model.AccountFilters{Role: model.Role(c.Query("role"))}

	accounts, err := h.service.ListAccounts(c.Request.Context(), filters)
	if err != nil {
		handler.Error(c, err)
		return
	}
	handler.Success(c, http.StatusOK, accounts)
}
