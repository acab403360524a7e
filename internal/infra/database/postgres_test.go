package database

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/carehub/clinic-api/internal/infra/config"
)

func TestDSN(t *testing.T) {
	got := DSN(config.PostgresSettings{
		Host:     "db",
		Port:     5432,
		User:     "clinic",
		Password: "secret",
		Database: "clinic",
		SSLMode:  "disable",
	})
	want := "postgres://clinic:secret@db:5432/clinic?sslmode=disable"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestDSNEscapesCredentials(t *testing.T) {
	got := DSN(config.PostgresSettings{
		Host:     "db",
		Port:     5432,
		User:     "clinic",
		Password: "p@ss/word",
		Database: "clinic",
	})
	want := "postgres://clinic:p%40ss%2Fword@db:5432/clinic"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestNewPostgresPoolRejectsBadConfig(t *testing.T) {
	_, err := NewPostgresPool(context.Background(), config.PostgresSettings{
		Host:     "db",
		Port:     -1,
		Database: "clinic",
		SSLMode:  "disable",
	}, zap.NewNop())
	if err == nil {
		t.Fatalf("expected invalid port to be rejected")
	}
}
