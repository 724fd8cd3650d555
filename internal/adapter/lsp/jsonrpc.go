package lsp

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

// Message represents a JSON-RPC 2.0 message (request, response, or
// notification). Requests carry ID+Method, responses ID+(Result|Error),
// notifications Method only.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int            `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Conn wraps the stdio pipes of a language-server process and implements
// the LSP base protocol: JSON-RPC 2.0 with Content-Length header framing.
// Writes are serialized by a mutex; reads must come from a single reader
// (the session's background read loop).
type Conn struct {
	rwc    io.ReadWriteCloser
	reader *bufio.Reader
	mu     sync.Mutex // protects writes
}

// NewConn creates a new JSON-RPC connection over the given stream.
func NewConn(rwc io.ReadWriteCloser) *Conn {
	return &Conn{
		rwc:    rwc,
		reader: bufio.NewReaderSize(rwc, 64*1024),
	}
}

// Send sends a JSON-RPC request with the given id, method, and params.
func (c *Conn) Send(id int, method string, params any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}

	msg := Message{
		JSONRPC: "2.0",
		ID:      &id,
		Method:  method,
		Params:  raw,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return c.writeMessage(data)
}

// Notify sends a JSON-RPC notification (no ID, no response expected).
func (c *Conn) Notify(method string, params any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}

	msg := Message{
		JSONRPC: "2.0",
		Method:  method,
		Params:  raw,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return c.writeMessage(data)
}

// ReadMessage reads one JSON-RPC message from the connection.
// Blocks until a full message is available or the connection is closed.
// This is the single point where raw bytes become messages; a malformed
// header or body surfaces here as a transport error that the caller must
// absorb rather than propagate.
func (c *Conn) ReadMessage() (*Message, error) {
	data, err := c.readFrame()
	if err != nil {
		return nil, err
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal message: %w", err)
	}

	return &msg, nil
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.rwc.Close()
}

// writeMessage writes a JSON-RPC message with Content-Length header framing.
func (c *Conn) writeMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(data))
	if _, err := io.WriteString(c.rwc, header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := c.rwc.Write(data); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	return nil
}

// readFrame reads one Content-Length-framed message body.
func (c *Conn) readFrame() ([]byte, error) {
	// Read headers until empty line.
	contentLength := -1
	for {
		line, err := c.reader.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("read header: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break // End of headers
		}
		if name, val, ok := strings.Cut(line, ":"); ok {
			if strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
				n, err := strconv.Atoi(strings.TrimSpace(val))
				if err != nil {
					return nil, fmt.Errorf("parse Content-Length %q: %w", val, err)
				}
				contentLength = n
			}
			// Ignore other headers (e.g. Content-Type).
		}
	}

	if contentLength < 0 {
		return nil, fmt.Errorf("missing Content-Length header")
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(c.reader, body); err != nil {
		return nil, fmt.Errorf("read body (%d bytes): %w", contentLength, err)
	}

	return body, nil
}

// stdioPipe combines a stdin (writer) and stdout (reader) into an
// io.ReadWriteCloser.
type stdioPipe struct {
	stdin  io.WriteCloser
	stdout io.ReadCloser
}

func (p stdioPipe) Read(b []byte) (int, error)  { return p.stdout.Read(b) }
func (p stdioPipe) Write(b []byte) (int, error) { return p.stdin.Write(b) }
func (p stdioPipe) Close() error {
	_ = p.stdin.Close()
	return p.stdout.Close()
}
