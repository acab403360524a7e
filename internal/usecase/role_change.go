package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/carehub/clinic-api/internal/core/domain"
)

// ErrRoleUnchanged is returned when a role change keeps the user's role as is.
var ErrRoleUnchanged = errors.New("role unchanged")

// UserSessionRevoker is the subset of RevocationService used by role administration.
type UserSessionRevoker interface {
	BlacklistAllUserSessions(ctx context.Context, userID string, reason domain.RevocationReason, opts ...BlacklistOption) (*domain.RevocationEntry, error)
	ReinstateUser(ctx context.Context, userID string) (int, error)
}

// RoleChangeResult reports the revocation applied for a role change.
type RoleChangeResult struct {
	Reason domain.RevocationReason
	Entry  *domain.RevocationEntry
}

// RoleChangeService forces re-authentication after privilege changes.
type RoleChangeService struct {
	revoker UserSessionRevoker
	logger  *zap.Logger
}

// NewRoleChangeService constructs a RoleChangeService.
func NewRoleChangeService(revoker UserSessionRevoker, logger *zap.Logger) *RoleChangeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoleChangeService{revoker: revoker, logger: logger}
}

// RevocationReasonForRoleChange picks the user-facing reason for a transition between roles.
func RevocationReasonForRoleChange(from, to string) domain.RevocationReason {
	from = canonicalRole(from)
	to = canonicalRole(to)

	switch {
	case from == domain.RoleSuperAdmin && to != domain.RoleSuperAdmin:
		return domain.RevocationReasonDemoted
	case to == domain.RoleSuperAdmin && from != domain.RoleSuperAdmin:
		return domain.RevocationReasonPromoted
	default:
		return domain.RevocationReasonRoleChanged
	}
}

// ChangeRole revokes every session of the user so the new role takes effect on the next login.
func (s *RoleChangeService) ChangeRole(ctx context.Context, userID, fromRole, toRole, actor string) (*RoleChangeResult, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id: %w", ErrInvalidRevocationTarget)
	}
	if canonicalRole(fromRole) == canonicalRole(toRole) {
		return nil, ErrRoleUnchanged
	}

	reason := RevocationReasonForRoleChange(fromRole, toRole)
	entry, err := s.revoker.BlacklistAllUserSessions(ctx, userID, reason, RevokedBy(actor))
	if err != nil {
		return nil, err
	}

	s.logger.Info("role change forced re-authentication",
		zap.String("user_id", userID),
		zap.String("from_role", canonicalRole(fromRole)),
		zap.String("to_role", canonicalRole(toRole)),
		zap.String("reason", string(reason)),
	)
	return &RoleChangeResult{Reason: reason, Entry: entry}, nil
}

// RestoreRole lifts the user's revocations once the administrator has re-enabled the account.
func (s *RoleChangeService) RestoreRole(ctx context.Context, userID string) (int, error) {
	return s.revoker.ReinstateUser(ctx, userID)
}

func canonicalRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}
