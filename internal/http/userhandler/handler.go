package userhandler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chatrelay/internal/relay"
)

type Handler struct {
	registry relay.RegistryHandle
}

func New(registry relay.RegistryHandle) *Handler { return &Handler{registry: registry} }

func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/users", h.list)
}

// list returns a snapshot of the currently connected user names. The snapshot
// may already be stale by the time the client reads it.
func (h *Handler) list(ginCtx *gin.Context) {
	users, err := h.registry.ListUsers(ginCtx.Request.Context())
	if err != nil {
		ginCtx.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	if users == nil {
		users = []string{}
	}
	ginCtx.JSON(http.StatusOK, users)
}
