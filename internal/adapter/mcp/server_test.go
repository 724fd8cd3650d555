package mcp_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	cvmcp "github.com/codevet/codevet/internal/adapter/mcp"
	lspdomain "github.com/codevet/codevet/internal/domain/lsp"
	"github.com/codevet/codevet/internal/service"
)

// --- Mocks ---

type mockValidator struct {
	dirReport     *service.DirectoryReport
	contentReport *service.ContentReport
	updateReport  string
	err           error

	lastLanguage string
	lastPath     string
}

func (m *mockValidator) CheckDirectory(_ context.Context, dir, language string) (*service.DirectoryReport, error) {
	m.lastLanguage = language
	m.lastPath = dir
	return m.dirReport, m.err
}

func (m *mockValidator) CheckCodeContent(_ context.Context, _, language, filePath string) (*service.ContentReport, error) {
	m.lastLanguage = language
	m.lastPath = filePath
	return m.contentReport, m.err
}

func (m *mockValidator) UpdateAndCheck(_ context.Context, filePath, _, language string) (string, error) {
	m.lastLanguage = language
	m.lastPath = filePath
	return m.updateReport, m.err
}

func newTestServer(v cvmcp.Validator) *cvmcp.Server {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return cvmcp.NewServer(
		cvmcp.ServerConfig{Name: "test", Version: "0.1.0"},
		cvmcp.ServerDeps{Validator: v},
		log,
	)
}

func callTool(t *testing.T, s *cvmcp.Server, name string, args map[string]any) *mcplib.CallToolResult {
	t.Helper()
	tools := s.MCPServer().ListTools()
	tool, ok := tools[name]
	if !ok {
		t.Fatalf("%s tool not found", name)
	}
	result, err := tool.Handler(context.Background(), mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{Name: name, Arguments: args},
	})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	return result
}

func resultText(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("empty result content")
	}
	text, ok := result.Content[0].(mcplib.TextContent)
	if !ok {
		t.Fatal("expected TextContent")
	}
	return text.Text
}

// --- Tests ---

func TestToolRegistration(t *testing.T) {
	s := newTestServer(&mockValidator{})
	tools := s.MCPServer().ListTools()
	for _, name := range []string{"check_directory", "check_code_content", "update_and_check"} {
		if _, ok := tools[name]; !ok {
			t.Errorf("%s tool not registered", name)
		}
	}
}

func TestHandleCheckDirectory(t *testing.T) {
	mock := &mockValidator{
		dirReport: &service.DirectoryReport{
			Directory:       "/src",
			Language:        "typescript",
			FileCount:       3,
			FilesWithIssues: 1,
			Diagnostics: []service.FileIssues{
				{File: "bad.ts", Issues: []lspdomain.Report{{Severity: "Error", Message: "boom", Line: 2, Column: 1}}},
			},
		},
	}
	s := newTestServer(mock)

	result := callTool(t, s, "check_directory", map[string]any{
		"directory": "/src", "language": "ts",
	})
	if result.IsError {
		t.Fatalf("tool returned error: %v", result.Content)
	}

	var report service.DirectoryReport
	if err := json.Unmarshal([]byte(resultText(t, result)), &report); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if report.FilesWithIssues != 1 || report.Diagnostics[0].File != "bad.ts" {
		t.Errorf("report = %+v", report)
	}
	if mock.lastLanguage != "ts" {
		t.Errorf("language = %q, want raw ts passed through", mock.lastLanguage)
	}
}

func TestHandleCheckDirectoryMissingArgs(t *testing.T) {
	s := newTestServer(&mockValidator{})

	result := callTool(t, s, "check_directory", map[string]any{"language": "ts"})
	if !result.IsError {
		t.Fatal("expected error result for missing directory")
	}
	result = callTool(t, s, "check_directory", map[string]any{"directory": "/src"})
	if !result.IsError {
		t.Fatal("expected error result for missing language")
	}
}

func TestHandleCheckDirectoryStartFailure(t *testing.T) {
	mock := &mockValidator{err: errors.New("Failed to start LSP server for python")}
	s := newTestServer(mock)

	result := callTool(t, s, "check_directory", map[string]any{
		"directory": "/src", "language": "python",
	})
	if !result.IsError {
		t.Fatal("expected error result")
	}
	if text := resultText(t, result); !strings.Contains(text, "Failed to start LSP server for python") {
		t.Errorf("text = %q", text)
	}
}

func TestHandleCheckCodeContent(t *testing.T) {
	mock := &mockValidator{
		contentReport: &service.ContentReport{
			Language:        "python",
			HasErrors:       true,
			DiagnosticCount: 1,
			Diagnostics:     []lspdomain.Report{{Severity: "Error", Message: "bad", Line: 1, Column: 1}},
		},
	}
	s := newTestServer(mock)

	result := callTool(t, s, "check_code_content", map[string]any{
		"content": "x = ", "language": "python",
	})
	if result.IsError {
		t.Fatalf("tool returned error: %v", result.Content)
	}

	var report service.ContentReport
	if err := json.Unmarshal([]byte(resultText(t, result)), &report); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !report.HasErrors || report.DiagnosticCount != 1 {
		t.Errorf("report = %+v", report)
	}
}

func TestHandleUpdateAndCheck(t *testing.T) {
	mock := &mockValidator{updateReport: "Line 5: Cannot find name 'foo'"}
	s := newTestServer(mock)

	result := callTool(t, s, "update_and_check", map[string]any{
		"file_path": "app.ts", "content": "foo()", "language": "ts",
	})
	if result.IsError {
		t.Fatalf("tool returned error: %v", result.Content)
	}
	if text := resultText(t, result); text != "Line 5: Cannot find name 'foo'" {
		t.Errorf("text = %q", text)
	}
}

func TestHandleUpdateAndCheckClean(t *testing.T) {
	s := newTestServer(&mockValidator{updateReport: ""})

	result := callTool(t, s, "update_and_check", map[string]any{
		"file_path": "app.ts", "content": "const a = 1", "language": "ts",
	})
	if result.IsError {
		t.Fatalf("tool returned error: %v", result.Content)
	}
	if text := resultText(t, result); !strings.Contains(text, "No errors found") {
		t.Errorf("text = %q", text)
	}
}

func TestHandleNilDeps(t *testing.T) {
	s := newTestServer(nil)

	result := callTool(t, s, "check_code_content", map[string]any{
		"content": "x", "language": "ts",
	})
	if !result.IsError {
		t.Fatal("expected error result when deps are nil")
	}
}
