package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/carehub/clinic-api/internal/core/domain"
)

// RevocationReasonKey is the context key set when the gate rejects a request.
const RevocationReasonKey = "revocation_reason"

// MessageRevocationUnverifiable is returned in strict mode when the store cannot be read.
const MessageRevocationUnverifiable = "Unable to verify your session right now. Please try again shortly."

// DefaultBypassPaths are never checked; login and signup must work for revoked users.
var DefaultBypassPaths = []string{
	"/api/clinics/users/login",
	"/api/clinics/super-admins",
	"/api/clinics/signup",
	"/api/clinics/login",
	"/api/auth",
	"/api/health",
	"/api/public",
}

// RevocationChecker decides whether an identity's session has been revoked.
type RevocationChecker interface {
	Check(ctx context.Context, identity domain.Identity) (domain.RevocationStatus, error)
}

// RevocationGateOptions configures RevocationGate.
type RevocationGateOptions struct {
	// BypassPaths are matched as case-insensitive prefixes. Nil selects DefaultBypassPaths.
	BypassPaths []string
	Policy      domain.DegradationPolicy
	Logger      *zap.Logger
}

// RevocationFailure is the body written when the gate rejects a request.
type RevocationFailure struct {
	Success bool     `json:"success"`
	Errors  []string `json:"errors"`
}

// RevocationGate rejects requests whose session was revoked after the token was issued.
// It must run after Authenticate.
func RevocationGate(checker RevocationChecker, opts RevocationGateOptions) gin.HandlerFunc {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	paths := opts.BypassPaths
	if paths == nil {
		paths = DefaultBypassPaths
	}
	bypass := normalizeBypassPaths(paths)
	policy := opts.Policy

	return func(c *gin.Context) {
		if checker == nil || isBypassed(bypass, c.Request.URL.Path) {
			c.Next()
			return
		}

		identity, ok := GetIdentity(c)
		if !ok || !identity.Authenticated {
			c.Next()
			return
		}
		if !identity.HasSession() {
			c.Next()
			return
		}

		status, err := checker.Check(c.Request.Context(), identity)
		if err != nil {
			logger.Warn("revocation check failed",
				zap.String("trace_id", GetTraceID(c)),
				zap.String("user_id", identity.UserID),
				zap.String("policy", string(policy.Mode())),
				zap.Error(err),
			)
			reason := domain.DegradationReasonStoreUnavailable
			if errors.Is(err, context.DeadlineExceeded) {
				reason = domain.DegradationReasonStoreTimeout
			}
			if policy.AllowsFallback(reason) {
				c.Next()
				return
			}
			abortRevocation(c, http.StatusServiceUnavailable, MessageRevocationUnverifiable)
			return
		}

		if status.Revoked {
			c.Set(RevocationReasonKey, string(status.Reason))
			logger.Info("request rejected for revoked session",
				zap.String("trace_id", GetTraceID(c)),
				zap.String("user_id", identity.UserID),
				zap.String("reason", string(status.Reason)),
				zap.Bool("wildcard", domain.IsUserWildcardKey(status.MatchedKey)),
			)
			abortRevocation(c, http.StatusUnauthorized, status.Message())
			return
		}

		c.Next()
	}
}

func abortRevocation(c *gin.Context, code int, message string) {
	c.AbortWithStatusJSON(code, RevocationFailure{Success: false, Errors: []string{message}})
}

func normalizeBypassPaths(paths []string) []string {
	normalized := make([]string, 0, len(paths))
	for _, p := range paths {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			normalized = append(normalized, p)
		}
	}
	return normalized
}

func isBypassed(prefixes []string, path string) bool {
	lowered := strings.ToLower(path)
	for _, prefix := range prefixes {
		if strings.HasPrefix(lowered, prefix) {
			return true
		}
	}
	return false
}
