package domain

import (
	"fmt"
	"strings"
	"time"
)

// RevocationReason enumerates why a session or user was forced to re-authenticate.
type RevocationReason string

const (
	// RevocationReasonRoleChanged marks a generic role update.
	RevocationReasonRoleChanged RevocationReason = "role_changed"
	// RevocationReasonPromoted marks a promotion to super admin.
	RevocationReasonPromoted RevocationReason = "promoted_to_super_admin"
	// RevocationReasonDemoted marks a demotion from super admin.
	RevocationReasonDemoted RevocationReason = "demoted_from_super_admin"
	// RevocationReasonSecurityLogout marks an administrative security logout.
	RevocationReasonSecurityLogout RevocationReason = "security_logout"
	// RevocationReasonGeneric is used when no specific cause is supplied.
	RevocationReasonGeneric RevocationReason = "session_revoked"
)

const (
	MessageDemoted        = "You have been demoted from Super Admin. Please login again with your new Admin credentials."
	MessagePromoted       = "Congratulations! You have been promoted to Super Admin. Please login again with your new credentials."
	MessageRoleChanged    = "Your role has been updated. Please login again for security purposes."
	MessageSecurityLogout = "You have been logged out for security reasons. Please login again."
	MessageSessionExpired = "Your session has expired. Please login again."
)

var revocationMessages = map[RevocationReason]string{
	RevocationReasonDemoted:        MessageDemoted,
	RevocationReasonPromoted:       MessagePromoted,
	RevocationReasonRoleChanged:    MessageRoleChanged,
	RevocationReasonSecurityLogout: MessageSecurityLogout,
}

// ParseRevocationReason normalises free-form input into a reason, defaulting to the generic reason.
func ParseRevocationReason(value string) RevocationReason {
	normalized := strings.ToLower(strings.TrimSpace(value))
	normalized = strings.ReplaceAll(normalized, " ", "_")
	normalized = strings.ReplaceAll(normalized, "-", "_")
	if normalized == "" {
		return RevocationReasonGeneric
	}
	return RevocationReason(normalized)
}

// Message returns the user-facing text shown when a request is rejected for this reason.
func (r RevocationReason) Message() string {
	if msg, ok := revocationMessages[ParseRevocationReason(string(r))]; ok {
		return msg
	}
	return MessageSessionExpired
}

// String implements fmt.Stringer.
func (r RevocationReason) String() string {
	return string(r)
}

const (
	userWildcardPrefix = "USER_"
	userWildcardSuffix = "_ALL_TOKENS"
)

// UserWildcardKey builds the synthetic key that revokes every session of a user.
func UserWildcardKey(userID string) string {
	trimmed := strings.TrimSpace(userID)
	if trimmed == "" {
		return ""
	}
	return fmt.Sprintf("%s%s%s", userWildcardPrefix, trimmed, userWildcardSuffix)
}

// IsUserWildcardKey reports whether key was produced by UserWildcardKey.
func IsUserWildcardKey(key string) bool {
	return strings.HasPrefix(key, userWildcardPrefix) && strings.HasSuffix(key, userWildcardSuffix) &&
		len(key) > len(userWildcardPrefix)+len(userWildcardSuffix)
}

// RevocationEntry records that a session (or every session of a user) is no longer valid.
type RevocationEntry struct {
	Key       string           `json:"key"`
	Reason    RevocationReason `json:"reason"`
	UserID    string           `json:"user_id,omitempty"`
	RevokedBy string           `json:"revoked_by,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	ExpiresAt time.Time        `json:"expires_at"`
}

// IsExpired reports whether the entry is logically absent at the supplied moment.
func (e RevocationEntry) IsExpired(at time.Time) bool {
	return !e.ExpiresAt.After(at)
}

// TTL returns the remaining lifetime of the entry relative to at.
func (e RevocationEntry) TTL(at time.Time) time.Duration {
	remaining := e.ExpiresAt.Sub(at)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// RevocationStatus is the outcome of a revocation lookup for one request.
type RevocationStatus struct {
	Revoked bool
	Reason  RevocationReason
	// MatchedKey is the session id or wildcard key that produced the hit.
	MatchedKey string
}

// Message returns the user-facing text for a revoked status.
func (s RevocationStatus) Message() string {
	return s.Reason.Message()
}

// RevocationSnapshot is a serialised copy of an in-memory revocation store used for warm starts.
type RevocationSnapshot struct {
	SnapshotID  string
	GeneratedAt time.Time
	Payload     []byte
	Checksum    string
}
