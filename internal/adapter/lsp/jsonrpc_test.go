package lsp

import (
	"errors"
	"io"
	"strconv"
	"strings"
	"testing"
)

// pipeConn is one end of an in-memory duplex connection.
type pipeConn struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func (p pipeConn) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p pipeConn) Write(b []byte) (int, error) { return p.w.Write(b) }
func (p pipeConn) Close() error {
	_ = p.r.Close()
	return p.w.Close()
}

// newConnPair returns two connected Conns, client and server.
func newConnPair() (*Conn, *Conn) {
	clientReads, serverWrites := io.Pipe()
	serverReads, clientWrites := io.Pipe()
	client := NewConn(pipeConn{r: clientReads, w: clientWrites})
	server := NewConn(pipeConn{r: serverReads, w: serverWrites})
	return client, server
}

func TestSendAndReadRoundTrip(t *testing.T) {
	client, server := newConnPair()
	defer client.Close()
	defer server.Close()

	errCh := make(chan error, 1)
	go func() {
		errCh <- client.Send(7, "initialize", map[string]any{"processId": 42})
	}()

	msg, err := server.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("Send: %v", err)
	}
	if msg.ID == nil || *msg.ID != 7 {
		t.Errorf("id = %v, want 7", msg.ID)
	}
	if msg.Method != "initialize" {
		t.Errorf("method = %q, want initialize", msg.Method)
	}
	if !strings.Contains(string(msg.Params), "42") {
		t.Errorf("params = %s, want processId 42", msg.Params)
	}
}

func TestNotifyHasNoID(t *testing.T) {
	client, server := newConnPair()
	defer client.Close()
	defer server.Close()

	go func() {
		_ = client.Notify("initialized", map[string]any{})
	}()

	msg, err := server.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if msg.ID != nil {
		t.Errorf("notification carried id %d", *msg.ID)
	}
	if msg.Method != "initialized" {
		t.Errorf("method = %q, want initialized", msg.Method)
	}
}

type readOnlyConn struct{ io.Reader }

func (readOnlyConn) Write(b []byte) (int, error) { return len(b), nil }
func (readOnlyConn) Close() error                { return nil }

func TestReadMessageMissingContentLength(t *testing.T) {
	conn := NewConn(readOnlyConn{strings.NewReader("X-Custom: 1\r\n\r\n{}")})
	if _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected error for frame without Content-Length")
	}
}

func TestReadMessageMalformedLength(t *testing.T) {
	conn := NewConn(readOnlyConn{strings.NewReader("Content-Length: abc\r\n\r\n{}")})
	if _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected error for malformed Content-Length")
	}
}

func TestReadMessageEOF(t *testing.T) {
	conn := NewConn(readOnlyConn{strings.NewReader("")})
	if _, err := conn.ReadMessage(); !errors.Is(err, io.EOF) {
		t.Fatalf("err = %v, want io.EOF", err)
	}
}

func TestReadMessageIgnoresExtraHeaders(t *testing.T) {
	body := `{"jsonrpc":"2.0","method":"ping"}`
	framed := "Content-Type: application/vscode-jsonrpc\r\nContent-Length: " +
		strconv.Itoa(len(body)) + "\r\n\r\n" + body
	conn := NewConn(readOnlyConn{strings.NewReader(framed)})
	msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if msg.Method != "ping" {
		t.Errorf("method = %q, want ping", msg.Method)
	}
}
