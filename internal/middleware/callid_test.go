package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/codevet/codevet/internal/logger"
)

func TestCallIDGenerated(t *testing.T) {
	var seen string
	handler := CallID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = logger.CallID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if seen == "" {
		t.Fatal("no call ID in context")
	}
	if got := rec.Header().Get("X-Call-ID"); got != seen {
		t.Errorf("response header = %q, context = %q", got, seen)
	}
}

func TestCallIDPassedThrough(t *testing.T) {
	var seen string
	handler := CallID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = logger.CallID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Call-ID", "call-123")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if seen != "call-123" {
		t.Errorf("call ID = %q, want call-123", seen)
	}
}
