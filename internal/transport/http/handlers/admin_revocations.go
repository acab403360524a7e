package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/carehub/clinic-api/internal/core/domain"
	"github.com/carehub/clinic-api/internal/transport/http/middleware"
	"github.com/carehub/clinic-api/internal/usecase"
)

// RevocationAdminHandler exposes the administrative revocation triggers.
type RevocationAdminHandler struct {
	revocations *usecase.RevocationService
	roles       *usecase.RoleChangeService
	sweeper     *usecase.ExpirySweeper
}

// NewRevocationAdminHandler constructs the handler.
func NewRevocationAdminHandler(revocations *usecase.RevocationService, roles *usecase.RoleChangeService, sweeper *usecase.ExpirySweeper) *RevocationAdminHandler {
	return &RevocationAdminHandler{revocations: revocations, roles: roles, sweeper: sweeper}
}

// RegisterRoutes binds admin revocation routes to the provided router group.
func (h *RevocationAdminHandler) RegisterRoutes(r *gin.RouterGroup) {
	if r == nil {
		return
	}

	r.POST("/sessions/:sessionId/revoke", h.RevokeSession)
	r.GET("/sessions/:sessionId/status", h.SessionStatus)
	r.POST("/users/:userId/sessions/revoke", h.RevokeUserSessions)
	r.POST("/users/:userId/reinstate", h.ReinstateUser)
	r.POST("/users/:userId/role-change", h.ChangeRole)
	r.POST("/revocations/sweep", h.Sweep)
}

// RevokeSession godoc
// @Summary Blacklist a single session
// @Tags Admin
// @Accept json
// @Produce json
// @Param sessionId path string true "Session ID"
// @Param request body RevokeSessionRequest false "Reason and owning user"
// @Success 201 {object} APIResponse
// @Failure 400 {object} APIResponse
// @Failure 503 {object} APIResponse
// @Router /api/admin/sessions/{sessionId}/revoke [post]
func (h *RevocationAdminHandler) RevokeSession(c *gin.Context) {
	var req RevokeSessionRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	entry, err := h.revocations.BlacklistSession(
		c.Request.Context(),
		c.Param("sessionId"),
		domain.ParseRevocationReason(req.Reason),
		usecase.ForUser(req.UserID),
		usecase.RevokedBy(actorID(c)),
	)
	if err != nil {
		RespondWithMappedError(c, err, revocationErrorCases, http.StatusInternalServerError, "failed to revoke session")
		return
	}

	c.JSON(http.StatusCreated, NewDataResponse(newRevocationEntryResponse(entry)))
}

// RevokeUserSessions godoc
// @Summary Blacklist every session of a user
// @Tags Admin
// @Accept json
// @Produce json
// @Param userId path string true "User ID"
// @Param request body RevokeUserSessionsRequest false "Reason"
// @Success 201 {object} APIResponse
// @Failure 503 {object} APIResponse
// @Router /api/admin/users/{userId}/sessions/revoke [post]
func (h *RevocationAdminHandler) RevokeUserSessions(c *gin.Context) {
	var req RevokeUserSessionsRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	entry, err := h.revocations.BlacklistAllUserSessions(
		c.Request.Context(),
		c.Param("userId"),
		domain.ParseRevocationReason(req.Reason),
		usecase.RevokedBy(actorID(c)),
	)
	if err != nil {
		RespondWithMappedError(c, err, revocationErrorCases, http.StatusInternalServerError, "failed to revoke user sessions")
		return
	}

	c.JSON(http.StatusCreated, NewDataResponse(newRevocationEntryResponse(entry)))
}

// ReinstateUser godoc
// @Summary Lift a user's revocations
// @Tags Admin
// @Produce json
// @Param userId path string true "User ID"
// @Success 200 {object} APIResponse
// @Failure 503 {object} APIResponse
// @Router /api/admin/users/{userId}/reinstate [post]
func (h *RevocationAdminHandler) ReinstateUser(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("userId"))
	removed, err := h.revocations.ReinstateUser(c.Request.Context(), userID)
	if err != nil {
		RespondWithMappedError(c, err, revocationErrorCases, http.StatusInternalServerError, "failed to reinstate user")
		return
	}

	c.JSON(http.StatusOK, NewDataResponse(ReinstateResponse{UserID: userID, EntriesRemoved: removed}))
}

// ChangeRole godoc
// @Summary Record a role change and force re-authentication
// @Tags Admin
// @Accept json
// @Produce json
// @Param userId path string true "User ID"
// @Param request body RoleChangeRequest true "Previous and new role"
// @Success 201 {object} APIResponse
// @Failure 400 {object} APIResponse
// @Failure 422 {object} APIResponse
// @Failure 503 {object} APIResponse
// @Router /api/admin/users/{userId}/role-change [post]
func (h *RevocationAdminHandler) ChangeRole(c *gin.Context) {
	var req RoleChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "from and to roles are required"))
		return
	}

	userID := strings.TrimSpace(c.Param("userId"))
	result, err := h.roles.ChangeRole(c.Request.Context(), userID, req.From, req.To, actorID(c))
	if err != nil {
		RespondWithMappedError(c, err, revocationErrorCases, http.StatusInternalServerError, "failed to apply role change")
		return
	}

	c.JSON(http.StatusCreated, NewDataResponse(RoleChangeResponse{
		UserID:  userID,
		Reason:  string(result.Reason),
		Message: result.Reason.Message(),
		Entry:   newRevocationEntryResponse(result.Entry),
	}))
}

// SessionStatus godoc
// @Summary Inspect a session's revocation status
// @Tags Admin
// @Produce json
// @Param sessionId path string true "Session ID"
// @Param user_id query string false "Owning user ID"
// @Success 200 {object} APIResponse
// @Failure 503 {object} APIResponse
// @Router /api/admin/sessions/{sessionId}/status [get]
func (h *RevocationAdminHandler) SessionStatus(c *gin.Context) {
	sessionID := strings.TrimSpace(c.Param("sessionId"))
	userID := strings.TrimSpace(c.Query("user_id"))

	reason, err := h.revocations.GetReason(c.Request.Context(), sessionID, userID)
	if err != nil {
		RespondWithMappedError(c, err, revocationErrorCases, http.StatusInternalServerError, "failed to read revocation status")
		return
	}

	resp := RevocationStatusResponse{SessionID: sessionID, UserID: userID}
	if reason != "" {
		resp.Revoked = true
		resp.Reason = reason
		resp.Message = domain.RevocationReason(reason).Message()
	}
	c.JSON(http.StatusOK, NewDataResponse(resp))
}

// Sweep godoc
// @Summary Remove expired revocation entries now
// @Tags Admin
// @Produce json
// @Success 200 {object} APIResponse
// @Failure 503 {object} APIResponse
// @Router /api/admin/revocations/sweep [post]
func (h *RevocationAdminHandler) Sweep(c *gin.Context) {
	var (
		result usecase.SweepResult
		err    error
	)
	if h.sweeper != nil {
		result, err = h.sweeper.RunOnce(c.Request.Context())
	} else {
		result.Removed, err = h.revocations.SweepExpired(c.Request.Context())
	}
	if err != nil {
		RespondWithMappedError(c, err, revocationErrorCases, http.StatusInternalServerError, "failed to sweep revocations")
		return
	}

	c.JSON(http.StatusOK, NewDataResponse(SweepResponse{Removed: result.Removed, Skipped: result.Skipped}))
}

// bindOptionalJSON accepts an empty body; it writes a 400 and returns false on malformed JSON.
func bindOptionalJSON(c *gin.Context, dst any) bool {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request body"))
		return false
	}
	return true
}

func actorID(c *gin.Context) string {
	if identity, ok := middleware.GetIdentity(c); ok {
		return identity.UserID
	}
	return ""
}
