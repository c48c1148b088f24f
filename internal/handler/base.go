package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/hospital-api/internal/model"
	apperrors "github.com/jwalitptl/hospital-api/pkg/errors"
)

// Context keys set by middleware.
const (
	ContextRequestID = "request_id"
	ContextPrincipal = "principal"
	ContextToken     = "access_token"
)

// CurrentPrincipal returns the caller verified by the auth middleware.
func CurrentPrincipal(c *gin.Context) (model.Principal, bool) {
	v, ok := c.Get(ContextPrincipal)
	if !ok {
		return model.Principal{}, false
	}
	p, ok := v.(model.Principal)
	return p, ok
}

// MustPrincipal writes a 401 and returns false when no caller is attached.
func MustPrincipal(c *gin.Context) (model.Principal, bool) {
	p, ok := CurrentPrincipal(c)
	if !ok {
		Error(c, apperrors.Unauthorized("", nil))
	}
	return p, ok
}

// ParseID reads a uuid path parameter, writing a 400 on failure.
func ParseID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		Error(c, apperrors.BadRequest("invalid "+name, err))
		return uuid.Nil, false
	}
	return id, true
}

// BindJSON decodes the body, writing a 400 on failure.
func BindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		Error(c, apperrors.BadRequest("invalid request body", err))
		return false
	}
	return true
}

// Groups are the route groups handlers register on. Authed requires a
// session; Doctor and Admin additionally require the role.
type Groups struct {
	Public *gin.RouterGroup
	Authed *gin.RouterGroup
	Doctor *gin.RouterGroup
	Admin  *gin.RouterGroup
}
