package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/carehub/clinic-api/internal/transport/http/middleware"
)

// SessionHandler reports the caller's session after it passed the revocation gate.
type SessionHandler struct{}

// NewSessionHandler constructs a session handler.
func NewSessionHandler() *SessionHandler {
	return &SessionHandler{}
}

// Current godoc
// @Summary Current session
// @Tags Sessions
// @Produce json
// @Success 200 {object} APIResponse
// @Failure 401 {object} APIResponse
// @Router /api/session [get]
func (h *SessionHandler) Current(c *gin.Context) {
	identity, ok := middleware.GetIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	c.JSON(http.StatusOK, NewDataResponse(SessionResponse{
		UserID:    identity.UserID,
		SessionID: identity.SessionID,
		Roles:     identity.Roles,
	}))
}
