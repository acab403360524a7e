package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"

	"github.com/carehub/clinic-api/internal/core/domain"
)

var (
	// ErrInvalidAccessToken indicates a malformed, tampered or foreign token.
	ErrInvalidAccessToken = errors.New("jwt: invalid access token")
	// ErrExpiredAccessToken indicates the token's exp claim has passed.
	ErrExpiredAccessToken = errors.New("jwt: access token expired")
	// ErrSecretMissing indicates the signing secret was not configured.
	ErrSecretMissing = errors.New("jwt: signing secret is required")
)

const (
	defaultAccessTokenTTL = 15 * time.Minute
	minSecretLength       = 32
)

// AccessTokenClaims carries the identity consulted by the revocation gate.
type AccessTokenClaims struct {
	Roles     []string `json:"roles,omitempty"`
	UserID    string   `json:"uid"`
	SessionID string   `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// Identity converts verified claims into the request principal.
func (c *AccessTokenClaims) Identity() domain.Identity {
	if c == nil {
		return domain.Identity{}
	}
	userID := strings.TrimSpace(c.UserID)
	if userID == "" {
		userID = strings.TrimSpace(c.Subject)
	}
	identity := domain.Identity{
		UserID:        userID,
		SessionID:     strings.TrimSpace(c.SessionID),
		Roles:         append([]string(nil), c.Roles...),
		Authenticated: true,
	}
	if c.IssuedAt != nil {
		identity.IssuedAt = c.IssuedAt.Time.UTC()
	}
	return identity
}

// AccessTokenOptions configures creation of access token claims.
type AccessTokenOptions struct {
	UserID    string
	SessionID string
	Roles     []string
	Audience  []string
	TTL       time.Duration
	IssuedAt  time.Time
	JTI       string
}

// JWTManager signs and verifies HS256 access tokens shared with the clinic login service.
type JWTManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewJWTManager constructs a manager for the shared secret and issuer.
func NewJWTManager(secret, issuer string, ttl time.Duration) (*JWTManager, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, ErrSecretMissing
	}
	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("jwt: signing secret must be at least %d bytes", minSecretLength)
	}
	if ttl <= 0 {
		ttl = defaultAccessTokenTTL
	}

	mgr := &JWTManager{
		secret: []byte(secret),
		issuer: strings.TrimSpace(issuer),
		ttl:    ttl,
	}
	mgr.now = func() time.Time { return time.Now().UTC() }
	return mgr, nil
}

// WithClock overrides the clock used for issuing and validating tokens.
func (m *JWTManager) WithClock(clock func() time.Time) *JWTManager {
	if clock != nil {
		m.now = clock
	}
	return m
}

// NewAccessTokenClaims constructs standardized access token claims.
func (m *JWTManager) NewAccessTokenClaims(opts AccessTokenOptions) (*AccessTokenClaims, error) {
	userID := strings.TrimSpace(opts.UserID)
	if userID == "" {
		return nil, fmt.Errorf("jwt: user id is required")
	}

	now := opts.IssuedAt
	if now.IsZero() {
		now = m.now()
	}
	now = now.UTC()

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = m.ttl
	}

	jti := strings.TrimSpace(opts.JTI)
	if jti == "" {
		jti = uuid.NewString()
	}

	return &AccessTokenClaims{
		Roles:     normalizeRoles(opts.Roles),
		UserID:    userID,
		SessionID: strings.TrimSpace(opts.SessionID),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    m.issuer,
			Audience:  opts.Audience,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        jti,
		},
	}, nil
}

// SignAccessToken signs the provided claims with the shared secret.
func (m *JWTManager) SignAccessToken(claims *AccessTokenClaims) (string, error) {
	if claims == nil {
		return "", fmt.Errorf("jwt: access token claims required")
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("jwt: sign token: %w", err)
	}
	return signed, nil
}

// MintAccessToken builds and signs a token in one step.
func (m *JWTManager) MintAccessToken(opts AccessTokenOptions) (string, *AccessTokenClaims, error) {
	claims, err := m.NewAccessTokenClaims(opts)
	if err != nil {
		return "", nil, err
	}
	token, err := m.SignAccessToken(claims)
	if err != nil {
		return "", nil, err
	}
	return token, claims, nil
}

// ParseAccessToken verifies signature, issuer and lifetime, returning the claims.
func (m *JWTManager) ParseAccessToken(raw string) (*AccessTokenClaims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidAccessToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithIssuedAt(),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	claims := &AccessTokenClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredAccessToken
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidAccessToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidAccessToken
	}
	if strings.TrimSpace(claims.UserID) == "" && strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidAccessToken)
	}
	return claims, nil
}

func normalizeRoles(input []string) []string {
	if len(input) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(input))
	result := make([]string, 0, len(input))
	for _, role := range input {
		role = strings.ToLower(strings.TrimSpace(role))
		if role == "" {
			continue
		}
		if _, exists := seen[role]; exists {
			continue
		}
		seen[role] = struct{}{}
		result = append(result, role)
	}

	if len(result) == 0 {
		return nil
	}

	return result
}
