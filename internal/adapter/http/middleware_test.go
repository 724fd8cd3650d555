package http

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/codevet/codevet/internal/logger"
)

func TestLoggerEmitsCallID(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	handler := Logger(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/lsp/status", nil)
	req = req.WithContext(logger.WithCallID(req.Context(), "call-42"))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var record struct {
		Msg    string `json:"msg"`
		Method string `json:"method"`
		Path   string `json:"path"`
		Status int    `json:"status"`
		CallID string `json:"call_id"`
	}
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if record.Msg != "http request" {
		t.Errorf("msg = %q", record.Msg)
	}
	if record.Method != http.MethodGet || record.Path != "/api/v1/lsp/status" {
		t.Errorf("record = %+v", record)
	}
	if record.Status != http.StatusTeapot {
		t.Errorf("status = %d, want 418", record.Status)
	}
	if record.CallID != "call-42" {
		t.Errorf("call_id = %q, want call-42", record.CallID)
	}
}
