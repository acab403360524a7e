package logger

import (
	"context"
	"testing"
)

func TestMaskIP(t *testing.T) {
	cases := []struct{ in, want string }{
		{"192.168.1.100", "192.168.*.*"},
		{"2001:0db8:85a3:0000:0000:8a2e:0370:7334", "2001:0db8:85a3:0000:*:*:*:*"},
		{"", ""},
		{"not-an-ip", "***"},
	}
	for _, tc := range cases {
		if got := MaskIP(tc.in); got != tc.want {
			t.Fatalf("MaskIP(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMaskToken(t *testing.T) {
	if got := MaskToken("abc123def"); got != "ab***ef" {
		t.Fatalf("unexpected mask %q", got)
	}
	if got := MaskToken("abc"); got != "***" {
		t.Fatalf("expected short values to be fully masked, got %q", got)
	}
}

func TestRequestIDFromContext(t *testing.T) {
	ctx := context.WithValue(context.Background(), RequestIDKey{}, "req-1")
	if got := RequestIDFromContext(ctx); got != "req-1" {
		t.Fatalf("expected req-1, got %q", got)
	}
	if got := RequestIDFromContext(context.Background()); got != "" {
		t.Fatalf("expected empty id, got %q", got)
	}
}
