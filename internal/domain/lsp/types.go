// Package lsp defines domain types for Language Server Protocol integration.
// These types represent LSP concepts (diagnostics, positions, session state)
// in a transport-independent way for use across the service, adapter, and
// tool-surface layers.
package lsp

import "encoding/json"

// Position in a text document (0-based line and character).
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range in a text document.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// DiagnosticSeverity mirrors LSP DiagnosticSeverity.
const (
	SeverityError   = 1
	SeverityWarning = 2
	SeverityInfo    = 3
	SeverityHint    = 4
)

// Diagnostic represents a compiler/linter diagnostic as published by a
// language server (0-based positions, numeric severity).
type Diagnostic struct {
	Range    Range  `json:"range"`
	Severity int    `json:"severity"` // 1=Error, 2=Warning, 3=Info, 4=Hint
	Source   string `json:"source"`
	Message  string `json:"message"`
	Code     Code   `json:"code,omitempty"`
}

// Code is a diagnostic code. Servers send either a string ("no-unused-vars")
// or a number (tsserver's 2304), so it accepts both on the wire.
type Code string

// UnmarshalJSON accepts a JSON string, number, or null.
func (c *Code) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		*c = ""
		return nil
	}
	if len(s) >= 2 && s[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*c = Code(str)
		return nil
	}
	*c = Code(s) // numeric code kept as its decimal text
	return nil
}

// Report is the normalized external diagnostic shape returned to callers:
// named severity and 1-based line/column.
type Report struct {
	Severity string `json:"severity"` // "Error" | "Warning" | "Information" | "Hint"
	Message  string `json:"message"`
	Line     int    `json:"line"`   // 1-based
	Column   int    `json:"column"` // 1-based
	Source   string `json:"source"`
	Code     string `json:"code"`
}

// SessionState represents the lifecycle state of a language-server session.
type SessionState string

const (
	StateNotStarted  SessionState = "not_started"
	StateStarting    SessionState = "starting"
	StateInitialized SessionState = "initialized"
	StateFailed      SessionState = "failed" // terminal for the session instance
	StateStopped     SessionState = "stopped"
)

// SessionInfo describes a running language-server session.
type SessionInfo struct {
	Language    string       `json:"language"`
	State       SessionState `json:"state"`
	Command     string       `json:"command"`
	PID         int          `json:"pid,omitempty"`
	Error       string       `json:"error,omitempty"`
	Diagnostics int          `json:"diagnostics"` // count of cached diagnostics
}
