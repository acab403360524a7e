package domain

import "time"

// RevocationEventKind distinguishes the administrative actions broadcast to peer instances.
type RevocationEventKind string

const (
	// RevocationEventSessionRevoked is emitted when a single session is blacklisted.
	RevocationEventSessionRevoked RevocationEventKind = "session.revoked"
	// RevocationEventUserSessionsRevoked is emitted when every session of a user is blacklisted.
	RevocationEventUserSessionsRevoked RevocationEventKind = "user.sessions.revoked"
	// RevocationEventUserReinstated is emitted when a user's revocations are lifted.
	RevocationEventUserReinstated RevocationEventKind = "user.reinstated"
)

// RevocationEvent is the payload for clinic.revocation.* messages.
type RevocationEvent struct {
	EventID    string              `json:"event_id"`
	Kind       RevocationEventKind `json:"kind"`
	Key        string              `json:"key,omitempty"`
	SessionID  string              `json:"session_id,omitempty"`
	UserID     string              `json:"user_id,omitempty"`
	Reason     RevocationReason    `json:"reason,omitempty"`
	RevokedBy  string              `json:"revoked_by,omitempty"`
	OccurredAt time.Time           `json:"occurred_at"`
	ExpiresAt  time.Time           `json:"expires_at,omitempty"`
	Origin     string              `json:"origin,omitempty"`
	Metadata   map[string]string   `json:"metadata,omitempty"`
}

// Entry converts a revoke event back into the store entry it describes.
func (e RevocationEvent) Entry() RevocationEntry {
	return RevocationEntry{
		Key:       e.Key,
		Reason:    e.Reason,
		UserID:    e.UserID,
		RevokedBy: e.RevokedBy,
		CreatedAt: e.OccurredAt,
		ExpiresAt: e.ExpiresAt,
	}
}
