package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/carehub/clinic-api/internal/infra/security"
)

const authErrorKey = "auth_error"

// AccessTokenParser verifies a bearer token.
type AccessTokenParser interface {
	ParseAccessToken(raw string) (*security.AccessTokenClaims, error)
}

// Authenticate attaches the identity from a valid bearer token. Requests without a valid
// token continue unauthenticated; RequireAuth rejects them on protected routes.
func Authenticate(parser AccessTokenParser, log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		token, err := bearerToken(c.GetHeader("Authorization"))
		if err != nil {
			c.Set(authErrorKey, err.Error())
			c.Next()
			return
		}
		if token == "" || parser == nil {
			c.Next()
			return
		}

		claims, err := parser.ParseAccessToken(token)
		if err != nil {
			switch {
			case errors.Is(err, security.ErrExpiredAccessToken):
				c.Set(authErrorKey, "access token expired")
			default:
				c.Set(authErrorKey, "invalid access token")
			}
			log.Debug("bearer token rejected", zap.String("trace_id", GetTraceID(c)), zap.Error(err))
			c.Next()
			return
		}

		SetIdentity(c, claims.Identity())
		c.Next()
	}
}

// RequireAuth rejects requests that Authenticate did not attach an identity to.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := GetIdentity(c)
		if !ok || !identity.Authenticated {
			message := "authentication required"
			if reason := c.GetString(authErrorKey); reason != "" {
				message = reason
			}
			abortRevocation(c, http.StatusUnauthorized, message)
			return
		}
		c.Next()
	}
}

// RequireRole checks if the authenticated user has any of the specified roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := GetIdentity(c)
		if !ok || !identity.Authenticated {
			abortRevocation(c, http.StatusUnauthorized, "authentication required")
			return
		}

		if !identity.HasRole(roles...) {
			abortRevocation(c, http.StatusForbidden, "insufficient permissions")
			return
		}

		c.Next()
	}
}

var errMalformedAuthorization = errors.New("invalid authorization format: expected 'Bearer <token>'")

func bearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", nil
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errMalformedAuthorization
	}
	return strings.TrimSpace(parts[1]), nil
}
