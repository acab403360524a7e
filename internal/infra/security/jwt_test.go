package security

import (
	"errors"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestJWTManager_MintAndParse(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	mgr, err := NewJWTManager(testSecret, "clinic-api", time.Hour)
	if err != nil {
		t.Fatalf("NewJWTManager returned error: %v", err)
	}
	mgr.WithClock(func() time.Time { return now })

	token, _, err := mgr.MintAccessToken(AccessTokenOptions{
		UserID:    "42",
		SessionID: "abc123",
		Roles:     []string{"Admin", "admin", " doctor "},
	})
	if err != nil {
		t.Fatalf("MintAccessToken returned error: %v", err)
	}

	claims, err := mgr.ParseAccessToken(token)
	if err != nil {
		t.Fatalf("ParseAccessToken returned error: %v", err)
	}

	identity := claims.Identity()
	if identity.UserID != "42" || identity.SessionID != "abc123" || !identity.Authenticated {
		t.Fatalf("unexpected identity: %+v", identity)
	}
	if !identity.IssuedAt.Equal(now) {
		t.Fatalf("expected identity issued at %s, got %s", now, identity.IssuedAt)
	}
	if len(identity.Roles) != 2 || !identity.HasRole("admin") || !identity.HasRole("doctor") {
		t.Fatalf("expected normalized roles, got %v", identity.Roles)
	}
}

func TestJWTManager_RejectsExpired(t *testing.T) {
	issued := time.Now().UTC().Add(-2 * time.Hour).Truncate(time.Second)
	mgr, _ := NewJWTManager(testSecret, "clinic-api", time.Hour)

	token, _, err := mgr.MintAccessToken(AccessTokenOptions{UserID: "42", SessionID: "abc", IssuedAt: issued})
	if err != nil {
		t.Fatalf("MintAccessToken returned error: %v", err)
	}

	if _, err := mgr.ParseAccessToken(token); !errors.Is(err, ErrExpiredAccessToken) {
		t.Fatalf("expected ErrExpiredAccessToken, got %v", err)
	}
}

func TestJWTManager_RejectsForeignTokens(t *testing.T) {
	mgr, _ := NewJWTManager(testSecret, "clinic-api", time.Hour)
	other, _ := NewJWTManager("fedcba9876543210fedcba9876543210", "clinic-api", time.Hour)
	wrongIssuer, _ := NewJWTManager(testSecret, "someone-else", time.Hour)

	foreign, _, _ := other.MintAccessToken(AccessTokenOptions{UserID: "42"})
	if _, err := mgr.ParseAccessToken(foreign); !errors.Is(err, ErrInvalidAccessToken) {
		t.Fatalf("expected signature mismatch to be invalid, got %v", err)
	}

	misissued, _, _ := wrongIssuer.MintAccessToken(AccessTokenOptions{UserID: "42"})
	if _, err := mgr.ParseAccessToken(misissued); !errors.Is(err, ErrInvalidAccessToken) {
		t.Fatalf("expected issuer mismatch to be invalid, got %v", err)
	}

	if _, err := mgr.ParseAccessToken("not.a.jwt"); !errors.Is(err, ErrInvalidAccessToken) {
		t.Fatalf("expected garbage to be invalid, got %v", err)
	}
}

func TestNewJWTManager_ValidatesSecret(t *testing.T) {
	if _, err := NewJWTManager("", "clinic-api", 0); !errors.Is(err, ErrSecretMissing) {
		t.Fatalf("expected ErrSecretMissing, got %v", err)
	}
	if _, err := NewJWTManager("short", "clinic-api", 0); err == nil {
		t.Fatalf("expected short secret to be rejected")
	}
}
