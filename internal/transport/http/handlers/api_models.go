package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/carehub/clinic-api/internal/core/domain"
)

// APIResponse is the clinic API envelope shared by every JSON response.
type APIResponse struct {
	Success bool     `json:"success"`
	Data    any      `json:"data,omitempty"`
	Errors  []string `json:"errors,omitempty"`
	TraceID string   `json:"trace_id,omitempty"`
}

// NewErrorResponse creates a failure envelope carrying the trace ID from context.
func NewErrorResponse(c *gin.Context, messages ...string) APIResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return APIResponse{
		Success: false,
		Errors:  messages,
		TraceID: traceIDStr,
	}
}

// NewDataResponse wraps a successful payload.
func NewDataResponse(data any) APIResponse {
	return APIResponse{Success: true, Data: data}
}

// RevokeSessionRequest is the body of POST /api/admin/sessions/:sessionId/revoke.
type RevokeSessionRequest struct {
	Reason string `json:"reason"`
	UserID string `json:"user_id"`
}

// RevokeUserSessionsRequest is the body of POST /api/admin/users/:userId/sessions/revoke.
type RevokeUserSessionsRequest struct {
	Reason string `json:"reason"`
}

// RoleChangeRequest is the body of POST /api/admin/users/:userId/role-change.
type RoleChangeRequest struct {
	From string `json:"from" binding:"required"`
	To   string `json:"to" binding:"required"`
}

// RevocationEntryResponse describes a stored blacklist entry.
type RevocationEntryResponse struct {
	Key       string    `json:"key"`
	Reason    string    `json:"reason"`
	Message   string    `json:"message"`
	UserID    string    `json:"user_id,omitempty"`
	RevokedBy string    `json:"revoked_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RevocationStatusResponse answers GET /api/admin/sessions/:sessionId/status.
type RevocationStatusResponse struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id,omitempty"`
	Revoked   bool   `json:"revoked"`
	Reason    string `json:"reason,omitempty"`
	Message   string `json:"message,omitempty"`
}

// RoleChangeResponse reports the revocation applied for a role change.
type RoleChangeResponse struct {
	UserID  string                   `json:"user_id"`
	Reason  string                   `json:"reason"`
	Message string                   `json:"message"`
	Entry   *RevocationEntryResponse `json:"entry,omitempty"`
}

// ReinstateResponse reports how many entries were lifted.
type ReinstateResponse struct {
	UserID         string `json:"user_id"`
	EntriesRemoved int    `json:"entries_removed"`
}

// SweepResponse reports the result of a manual sweep.
type SweepResponse struct {
	Removed int  `json:"removed"`
	Skipped bool `json:"skipped"`
}

// SessionResponse describes the caller's authenticated identity.
type SessionResponse struct {
	UserID    string   `json:"user_id"`
	SessionID string   `json:"session_id,omitempty"`
	Roles     []string `json:"roles,omitempty"`
}

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse describes readiness check results with dependency checks.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

func newRevocationEntryResponse(entry *domain.RevocationEntry) *RevocationEntryResponse {
	if entry == nil {
		return nil
	}
	return &RevocationEntryResponse{
		Key:       entry.Key,
		Reason:    string(entry.Reason),
		Message:   entry.Reason.Message(),
		UserID:    entry.UserID,
		RevokedBy: entry.RevokedBy,
		CreatedAt: entry.CreatedAt,
		ExpiresAt: entry.ExpiresAt,
	}
}
