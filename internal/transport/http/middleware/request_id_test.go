package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/carehub/clinic-api/internal/infra/logger"
)

func TestRequestIDPropagatesValidHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var seen string
	router := gin.New()
	router.Use(RequestID())
	router.GET("/api/session", func(c *gin.Context) {
		seen = logger.RequestIDFromContext(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.Header.Set(RequestIDHeader, "req-42.a")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if seen != "req-42.a" {
		t.Fatalf("expected request id in context, got %q", seen)
	}
	if got := rr.Header().Get(RequestIDHeader); got != "req-42.a" {
		t.Fatalf("expected echoed request id, got %q", got)
	}
}

func TestRequestIDReplacesUnsafeHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID())
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, inbound := range []string{"bad id\nforged=1", strings.Repeat("a", maxRequestIDLength+1)} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, inbound)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		got := rr.Header().Get(RequestIDHeader)
		if got == "" || got == inbound {
			t.Fatalf("expected generated request id for %q, got %q", inbound, got)
		}
	}
}
