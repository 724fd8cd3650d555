// Package lsp manages language-server subprocesses over JSON-RPC 2.0 stdio.
// Each Session owns one process for one normalized language, performs the
// initialize handshake, and runs a dedicated background reader that
// demultiplexes responses (by request id) from server notifications, so
// request/response traffic and diagnostics collection never compete for the
// same byte stream.
package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codevet/codevet/internal/config"
	lspdomain "github.com/codevet/codevet/internal/domain/lsp"
	"github.com/codevet/codevet/internal/port/cache"
)

// Session manages a single language-server process and its protocol state.
type Session struct {
	language  lspdomain.Language
	config    lspdomain.ServerConfig
	lspCfg    *config.LSP
	workspace string
	store     cache.Cache
	cacheTTL  time.Duration
	log       *slog.Logger

	cmd      *exec.Cmd
	conn     *Conn
	state    lspdomain.SessionState
	stateErr error
	mu       sync.Mutex

	nextID  atomic.Int64
	pending map[int]chan *Message
	pendMu  sync.Mutex

	diagCounts map[string]int // uri -> cached record count, doubles as the set of cache keys owned by this session
	waiters    map[string][]chan []lspdomain.Diagnostic
	diagMu     sync.Mutex

	done chan struct{} // closed when readLoop exits
}

// NewSession creates a session for the given normalized language. The store
// receives every published diagnostics batch keyed "language|uri" and is the
// fallback when a fresh batch does not arrive in time.
func NewSession(language lspdomain.Language, cfg lspdomain.ServerConfig, lspCfg *config.LSP, workspace string, store cache.Cache, cacheTTL time.Duration, log *slog.Logger) *Session {
	return &Session{
		language:   language,
		config:     cfg,
		lspCfg:     lspCfg,
		workspace:  workspace,
		store:      store,
		cacheTTL:   cacheTTL,
		log:        log.With("language", string(language)),
		state:      lspdomain.StateNotStarted,
		pending:    make(map[int]chan *Message),
		diagCounts: make(map[string]int),
		waiters:    make(map[string][]chan []lspdomain.Diagnostic),
		done:       make(chan struct{}),
	}
}

// Language returns the normalized language this session serves.
func (s *Session) Language() string {
	return string(s.language)
}

// State returns the current session state.
func (s *Session) State() lspdomain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error that moved the session to StateFailed, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateErr
}

// Command returns the server command line for status reporting.
func (s *Session) Command() string {
	return strings.Join(s.config.Command, " ")
}

// PID returns the process ID of the language server, or 0 if not running.
func (s *Session) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd != nil && s.cmd.Process != nil {
		return s.cmd.Process.Pid
	}
	return 0
}

// DiagnosticCount returns the total number of cached diagnostics.
func (s *Session) DiagnosticCount() int {
	s.diagMu.Lock()
	defer s.diagMu.Unlock()
	count := 0
	for _, n := range s.diagCounts {
		count += n
	}
	return count
}

// Start probes the toolchain, spawns the language-server process, and
// performs the LSP initialize handshake. A missing toolchain or failed
// handshake moves the session to StateFailed, which is terminal for this
// instance: the pool treats the language as unavailable and never retries.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case lspdomain.StateStarting, lspdomain.StateInitialized:
		return nil
	case lspdomain.StateFailed:
		return fmt.Errorf("session previously failed: %w", s.stateErr)
	case lspdomain.StateStopped:
		return errors.New("session stopped")
	}

	s.state = lspdomain.StateStarting

	if len(s.config.Command) == 0 {
		return s.fail(fmt.Errorf("no command configured for language %s", s.language))
	}

	if err := s.probeToolchain(ctx); err != nil {
		return s.fail(err)
	}

	if _, err := exec.LookPath(s.config.Command[0]); err != nil {
		return s.fail(fmt.Errorf("language server binary not found: %s", s.config.Command[0]))
	}

	// The process outlives the Start context; Stop owns its termination.
	cmd := exec.Command(s.config.Command[0], s.config.Command[1:]...) //nolint:gosec // command from trusted server table
	cmd.Dir = s.workspace
	cmd.Stderr = os.Stderr // let server stderr pass through for debugging

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return s.fail(fmt.Errorf("stdin pipe: %w", err))
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return s.fail(fmt.Errorf("stdout pipe: %w", err))
	}

	if err := cmd.Start(); err != nil {
		return s.fail(fmt.Errorf("start process: %w", err))
	}

	s.cmd = cmd
	s.conn = NewConn(stdioPipe{stdin: stdin, stdout: stdout})
	s.done = make(chan struct{})

	// Start the read loop before sending initialize. It holds its own
	// reference to the connection; Stop may clear the field while the
	// loop is still draining.
	go s.readLoop(s.conn)

	if err := s.initialize(ctx); err != nil {
		_ = cmd.Process.Kill()
		return s.fail(fmt.Errorf("initialize: %w", err))
	}

	s.state = lspdomain.StateInitialized
	s.log.Info("lsp session started", "pid", cmd.Process.Pid, "workspace", s.workspace)
	return nil
}

// fail records the startup error and moves the session to its terminal
// failed state. Caller must hold s.mu.
func (s *Session) fail(err error) error {
	s.state = lspdomain.StateFailed
	s.stateErr = err
	s.log.Warn("lsp session failed", "error", err)
	return err
}

// probeToolchain runs the configured version probe (e.g. "tsc --version")
// with a bounded budget. A probe that is absent from the config is skipped.
func (s *Session) probeToolchain(ctx context.Context) error {
	if len(s.config.Probe) == 0 {
		return nil
	}
	probeCtx, cancel := context.WithTimeout(ctx, s.lspCfg.ProbeTimeout)
	defer cancel()

	probe := exec.CommandContext(probeCtx, s.config.Probe[0], s.config.Probe[1:]...) //nolint:gosec // probe from trusted server table
	probe.Stdout = io.Discard
	probe.Stderr = io.Discard
	if err := probe.Run(); err != nil {
		return fmt.Errorf("toolchain probe %q failed: %w", strings.Join(s.config.Probe, " "), err)
	}
	return nil
}

// Stop performs a graceful LSP shutdown (shutdown + exit) with a grace
// period, force-killing on timeout. Always best-effort: failures are logged
// and the session still ends up stopped. The session's cache entries are
// removed; the diagnostics cache lives and dies with its session.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == lspdomain.StateStopped || s.state == lspdomain.StateNotStarted {
		s.state = lspdomain.StateStopped
		return nil
	}
	// A session that failed before spawning has no process and no read loop.
	if s.cmd == nil && s.conn == nil {
		s.state = lspdomain.StateStopped
		return nil
	}

	s.log.Info("lsp session stopping")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.lspCfg.ShutdownTimeout)
	defer cancel()

	if s.conn != nil {
		if _, err := s.call(shutdownCtx, "shutdown", nil); err != nil {
			s.log.Warn("lsp shutdown request failed", "error", err)
		}
		_ = s.conn.Notify("exit", nil)
		_ = s.conn.Close()
	}

	if s.cmd != nil && s.cmd.Process != nil {
		exited := make(chan error, 1)
		go func() { exited <- s.cmd.Wait() }()
		select {
		case <-exited:
		case <-shutdownCtx.Done():
			s.log.Warn("lsp server did not exit gracefully, killing")
			_ = s.cmd.Process.Kill()
		}
	}

	s.state = lspdomain.StateStopped

	// Wait for readLoop to finish before releasing the connection.
	<-s.done
	s.conn = nil
	s.cmd = nil

	s.dropCacheEntries(ctx)

	s.log.Info("lsp session stopped")
	return nil
}

// dropCacheEntries removes every cache entry this session wrote.
func (s *Session) dropCacheEntries(ctx context.Context) {
	s.diagMu.Lock()
	uris := make([]string, 0, len(s.diagCounts))
	for uri := range s.diagCounts {
		uris = append(uris, uri)
	}
	s.diagCounts = make(map[string]int)
	s.diagMu.Unlock()

	for _, uri := range uris {
		if err := s.store.Delete(ctx, s.cacheKey(uri)); err != nil {
			s.log.Debug("cache delete failed", "uri", uri, "error", err)
		}
	}
}

// OpenDocument sends a textDocument/didOpen notification (fire-and-forget).
func (s *Session) OpenDocument(uri, languageID, content string) error {
	return s.notify("textDocument/didOpen", map[string]any{
		"textDocument": map[string]any{
			"uri":        uri,
			"languageId": languageID,
			"version":    1,
			"text":       content,
		},
	})
}

// UpdateDocument sends a textDocument/didChange with full content replacement.
// The caller supplies the monotonically increasing version; no acknowledgment
// is awaited.
func (s *Session) UpdateDocument(uri, content string, version int) error {
	return s.notify("textDocument/didChange", map[string]any{
		"textDocument": map[string]any{
			"uri":     uri,
			"version": version,
		},
		"contentChanges": []map[string]any{{"text": content}},
	})
}

// CloseDocument sends a textDocument/didClose notification. Cached
// diagnostics for the document are intentionally retained.
func (s *Session) CloseDocument(uri string) error {
	return s.notify("textDocument/didClose", map[string]any{
		"textDocument": map[string]any{"uri": uri},
	})
}

func (s *Session) notify(method string, params any) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return errors.New("session not running")
	}
	return conn.Notify(method, params)
}

// Diagnostics waits up to wait+poll budget for a fresh publishDiagnostics
// batch naming uri. Every batch the server publishes meanwhile updates the
// cache for whatever uri it names. On a fresh hit the batch is returned
// immediately; otherwise, when useCache is set and a cached batch exists,
// the stale batch is returned; otherwise the result is empty. An empty
// result and "file confirmed clean" are indistinguishable at this layer.
// Records whose code contains "unused" (case-insensitive) are always
// dropped. The second return reports whether the batch came from the cache.
func (s *Session) Diagnostics(ctx context.Context, uri string, wait time.Duration, useCache bool) ([]lspdomain.Diagnostic, bool) {
	ch := s.addWaiter(uri)
	defer s.removeWaiter(uri, ch)

	deadline := time.NewTimer(wait + s.lspCfg.PollTimeout)
	defer deadline.Stop()

	select {
	case diags := <-ch:
		return filterUnused(diags), false
	case <-deadline.C:
	case <-ctx.Done():
	case <-s.done:
	}

	if useCache {
		if data, ok, err := s.store.Get(ctx, s.cacheKey(uri)); err == nil && ok {
			var diags []lspdomain.Diagnostic
			if err := json.Unmarshal(data, &diags); err == nil {
				s.log.Debug("using cached diagnostics", "uri", uri)
				return filterUnused(diags), true
			}
		}
	}

	s.log.Debug("no diagnostics available", "uri", uri)
	return []lspdomain.Diagnostic{}, false
}

func (s *Session) addWaiter(uri string) chan []lspdomain.Diagnostic {
	ch := make(chan []lspdomain.Diagnostic, 1)
	s.diagMu.Lock()
	s.waiters[uri] = append(s.waiters[uri], ch)
	s.diagMu.Unlock()
	return ch
}

func (s *Session) removeWaiter(uri string, ch chan []lspdomain.Diagnostic) {
	s.diagMu.Lock()
	defer s.diagMu.Unlock()
	list := s.waiters[uri]
	for i, w := range list {
		if w == ch {
			s.waiters[uri] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(s.waiters[uri]) == 0 {
		delete(s.waiters, uri)
	}
}

// cacheKey namespaces cache entries per language so sessions never read
// each other's batches.
func (s *Session) cacheKey(uri string) string {
	return string(s.language) + "|" + uri
}

// --- Internal protocol methods ---

// initialize performs the LSP initialize/initialized handshake, then sleeps
// through a bounded settle window while the background reader absorbs the
// server's startup chatter, so "server starting" notifications are never
// mistaken for the first diagnostics batch.
func (s *Session) initialize(ctx context.Context) error {
	workspaceAbs, err := filepath.Abs(s.workspace)
	if err != nil {
		workspaceAbs = s.workspace
	}
	params := map[string]any{
		"processId": os.Getpid(),
		"rootUri":   lspdomain.FileURI(workspaceAbs),
		"capabilities": map[string]any{
			"textDocument": map[string]any{
				"publishDiagnostics": map[string]any{},
				"synchronization": map[string]any{
					"didOpen":   true,
					"didChange": true,
					"didClose":  true,
				},
			},
		},
	}
	if s.config.InitOpts != nil {
		params["initializationOptions"] = s.config.InitOpts
	}

	startCtx, cancel := context.WithTimeout(ctx, s.lspCfg.StartTimeout)
	defer cancel()

	if _, err := s.call(startCtx, "initialize", params); err != nil {
		return fmt.Errorf("initialize request: %w", err)
	}

	if err := s.conn.Notify("initialized", map[string]any{}); err != nil {
		return fmt.Errorf("initialized notification: %w", err)
	}

	time.Sleep(s.lspCfg.SettleDelay)
	return nil
}

// call sends a JSON-RPC request and waits for the matching response. Ids
// are allocated from an atomic counter, so they are unique and monotonically
// increasing within the session.
func (s *Session) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, s.lspCfg.RequestTimeout)
	defer cancel()

	id := int(s.nextID.Add(1))
	ch := make(chan *Message, 1)

	s.pendMu.Lock()
	s.pending[id] = ch
	s.pendMu.Unlock()

	defer func() {
		s.pendMu.Lock()
		delete(s.pending, id)
		s.pendMu.Unlock()
	}()

	if err := s.conn.Send(id, method, params); err != nil {
		return nil, fmt.Errorf("send %s: %w", method, err)
	}

	select {
	case msg := <-ch:
		if msg.Error != nil {
			return nil, msg.Error
		}
		return msg.Result, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: no response: %w", method, ctx.Err())
	case <-s.done:
		return nil, errors.New("connection closed")
	}
}

// readLoop is the session's single reader. It continuously reads messages
// from the server and demultiplexes them: responses go to the pending table
// by id, publishDiagnostics goes to the cache and any waiters, everything
// else is logged and dropped.
func (s *Session) readLoop(conn *Conn) {
	defer close(s.done)

	for {
		msg, err := conn.ReadMessage()
		if err != nil {
			// EOF or closed pipe is normal during shutdown; a framing
			// error means the stream is unrecoverable either way.
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) && !errors.Is(err, io.ErrClosedPipe) {
				s.log.Warn("lsp transport read failed", "error", err)
			}
			return
		}

		if msg.ID != nil {
			s.pendMu.Lock()
			ch, ok := s.pending[*msg.ID]
			s.pendMu.Unlock()
			if !ok {
				// Response for a request nobody is waiting on. Dropped, not raised.
				s.log.Debug("orphan response discarded", "id", *msg.ID)
				continue
			}
			ch <- msg
			continue
		}

		switch msg.Method {
		case "textDocument/publishDiagnostics":
			s.handlePublishDiagnostics(msg.Params)
		default:
			s.log.Debug("lsp notification ignored", "method", msg.Method)
		}
	}
}

// handlePublishDiagnostics replaces the cache entry for whatever uri the
// notification names (wholesale, never diffed) and hands the fresh batch to
// any waiters for that uri.
func (s *Session) handlePublishDiagnostics(raw json.RawMessage) {
	var params struct {
		URI         string                 `json:"uri"`
		Diagnostics []lspdomain.Diagnostic `json:"diagnostics"`
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		s.log.Warn("failed to unmarshal diagnostics", "error", err)
		return
	}

	diags := params.Diagnostics
	if s.lspCfg.MaxDiagnostics > 0 && len(diags) > s.lspCfg.MaxDiagnostics {
		diags = diags[:s.lspCfg.MaxDiagnostics]
	}

	if data, err := json.Marshal(diags); err == nil {
		if err := s.store.Set(context.Background(), s.cacheKey(params.URI), data, s.cacheTTL); err != nil {
			s.log.Debug("cache set failed", "uri", params.URI, "error", err)
		}
	}

	s.diagMu.Lock()
	s.diagCounts[params.URI] = len(diags)
	list := s.waiters[params.URI]
	s.diagMu.Unlock()

	for _, ch := range list {
		batch := make([]lspdomain.Diagnostic, len(diags))
		copy(batch, diags)
		select {
		case ch <- batch:
		default:
		}
	}
}

// filterUnused drops records whose code field contains "unused", matching
// the noise policy for generated-code validation (unused-symbol hints are
// expected mid-generation).
func filterUnused(diags []lspdomain.Diagnostic) []lspdomain.Diagnostic {
	out := make([]lspdomain.Diagnostic, 0, len(diags))
	for _, d := range diags {
		if strings.Contains(strings.ToLower(string(d.Code)), "unused") {
			continue
		}
		out = append(out, d)
	}
	return out
}
