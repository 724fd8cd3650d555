package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	lspAdapter "github.com/codevet/codevet/internal/adapter/lsp"
	otelx "github.com/codevet/codevet/internal/adapter/otel"
	"github.com/codevet/codevet/internal/config"
	lspdomain "github.com/codevet/codevet/internal/domain/lsp"
	"github.com/codevet/codevet/internal/port/cache"
)

// session is the per-language server surface the checker drives. The real
// implementation is lspAdapter.Session; the indirection exists so the
// checker can be exercised without spawning processes.
type session interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	State() lspdomain.SessionState
	Err() error
	Language() string
	Command() string
	PID() int
	DiagnosticCount() int
	OpenDocument(uri, languageID, content string) error
	UpdateDocument(uri, content string, version int) error
	CloseDocument(uri string) error
	Diagnostics(ctx context.Context, uri string, wait time.Duration, useCache bool) ([]lspdomain.Diagnostic, bool)
}

type sessionFactory func(lang lspdomain.Language) (session, error)

// trackedDoc is the checker's view of one open document.
type trackedDoc struct {
	state lspdomain.DocumentState
	lang  lspdomain.Language
	uri   string
}

// Checker validates generated code by driving one language-server session
// per language. It owns the session registry for its lifetime; a language
// whose server fails to start stays unavailable until the checker is torn
// down (no re-probe).
type Checker struct {
	cfg     *config.Config
	log     *slog.Logger
	metrics *otelx.Metrics

	newSession sessionFactory

	mu       sync.Mutex
	sessions map[lspdomain.Language]session
	docs     map[string]*trackedDoc // absolute path -> document state
}

// NewChecker creates a checker backed by the given diagnostics cache.
func NewChecker(cfg *config.Config, store cache.Cache, metrics *otelx.Metrics, log *slog.Logger) *Checker {
	c := &Checker{
		cfg:      cfg,
		log:      log,
		metrics:  metrics,
		sessions: make(map[lspdomain.Language]session),
		docs:     make(map[string]*trackedDoc),
	}
	c.newSession = func(lang lspdomain.Language) (session, error) {
		serverCfg, err := serverConfigFor(lang, cfg.Checker.Workspace)
		if err != nil {
			return nil, err
		}
		return lspAdapter.NewSession(lang, serverCfg, &cfg.LSP, cfg.Checker.Workspace, store, cfg.Cache.TTL, log), nil
	}
	return c
}

// serverConfigFor resolves the server command for a language. Java needs
// filesystem probing for jdtls; everything else comes from the static table.
func serverConfigFor(lang lspdomain.Language, workspace string) (lspdomain.ServerConfig, error) {
	if lang == lspdomain.LangJava {
		return lspdomain.JavaServerConfig(workspace)
	}
	cfg, ok := lspdomain.DefaultServers[lang]
	if !ok {
		return lspdomain.ServerConfig{}, fmt.Errorf("no server configured for language %s", lang)
	}
	return cfg, nil
}

// FileIssues groups the formatted diagnostics of one file.
type FileIssues struct {
	File   string             `json:"file"`
	Issues []lspdomain.Report `json:"issues"`
}

// DirectoryReport is the result of CheckDirectory.
type DirectoryReport struct {
	Directory       string       `json:"directory"`
	Language        string       `json:"language"`
	FileCount       int          `json:"file_count"`
	FilesWithIssues int          `json:"files_with_issues"`
	Diagnostics     []FileIssues `json:"diagnostics"`
	Message         string       `json:"message,omitempty"`
}

// ContentReport is the result of CheckCodeContent.
type ContentReport struct {
	Language        string             `json:"language"`
	HasErrors       bool               `json:"has_errors"`
	DiagnosticCount int                `json:"diagnostic_count"`
	Diagnostics     []lspdomain.Report `json:"diagnostics"`
}

// getOrCreateSession returns the live session for a language, starting one
// on first use. A session that previously failed to start is returned as an
// error immediately: "diagnostics unknown" must never degrade into "no
// errors", so the caller gets a hard failure instead of an empty result.
func (c *Checker) getOrCreateSession(ctx context.Context, language string) (session, lspdomain.Language, error) {
	lang, err := lspdomain.Normalize(language)
	if err != nil {
		return nil, "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if sess, ok := c.sessions[lang]; ok {
		if sess.State() == lspdomain.StateFailed {
			return nil, lang, startFailure(lang)
		}
		return sess, lang, nil
	}

	sess, err := c.newSession(lang)
	if err != nil {
		c.log.Warn("no usable server", "language", string(lang), "error", err)
		c.metrics.SessionsFailed.Add(ctx, 1)
		c.sessions[lang] = unavailableSession{lang: lang, err: err}
		return nil, lang, startFailure(lang)
	}

	c.sessions[lang] = sess
	if err := sess.Start(ctx); err != nil {
		c.metrics.SessionsFailed.Add(ctx, 1)
		return nil, lang, startFailure(lang)
	}

	c.metrics.SessionsStarted.Add(ctx, 1)
	return sess, lang, nil
}

func startFailure(lang lspdomain.Language) error {
	return fmt.Errorf("Failed to start LSP server for %s", lang)
}

// CheckDirectory opens every matching file under dir and aggregates the
// files that have diagnostics. Files on the skip list (build configs,
// dotfiles, vendor trees) are not checked.
func (c *Checker) CheckDirectory(ctx context.Context, dir, language string) (*DirectoryReport, error) {
	sess, lang, err := c.getOrCreateSession(ctx, language)
	if err != nil {
		return nil, err
	}

	c.metrics.ToolCalls.Add(ctx, 1)

	// Relative directories are workspace-relative, same as the file paths
	// the other tools take.
	absDir := dir
	if !filepath.IsAbs(absDir) {
		absDir = filepath.Join(c.workspaceAbs(), absDir)
	}
	if info, err := os.Stat(absDir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", dir)
	}

	files, err := collectFiles(absDir, lang)
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}

	report := &DirectoryReport{
		Directory:   dir,
		Language:    string(lang),
		FileCount:   len(files),
		Diagnostics: []FileIssues{},
	}
	if len(files) == 0 {
		report.Message = fmt.Sprintf("No %s files found in %s", lang, dir)
		return report, nil
	}

	for _, path := range files {
		content, err := os.ReadFile(path) //nolint:gosec // path from the walked directory
		if err != nil {
			c.log.Warn("skipping unreadable file", "path", path, "error", err)
			continue
		}

		uri := lspdomain.FileURI(path)
		if err := sess.OpenDocument(uri, lang.LanguageID(path), string(content)); err != nil {
			c.log.Warn("didOpen failed", "path", path, "error", err)
			continue
		}

		reports := c.collect(ctx, sess, uri)
		if len(reports) == 0 {
			continue
		}

		rel, relErr := filepath.Rel(absDir, path)
		if relErr != nil {
			rel = path
		}
		report.Diagnostics = append(report.Diagnostics, FileIssues{File: rel, Issues: reports})
	}

	report.FilesWithIssues = len(report.Diagnostics)
	return report, nil
}

// collectFiles walks dir and returns files matching the language's
// extension allowlist, excluding skip-listed names and prefixed trees.
func collectFiles(absDir string, lang lspdomain.Language) ([]string, error) {
	exts := make(map[string]bool)
	for _, e := range lang.Extensions() {
		exts[e] = true
	}

	var files []string
	err := filepath.WalkDir(absDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(absDir, path)
		if relErr != nil || rel == "." {
			return nil
		}
		if d.IsDir() {
			if lspdomain.SkipPath(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if lspdomain.SkipPath(rel) {
			return nil
		}
		if exts[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// CheckCodeContent validates a code snippet without requiring it on disk.
// When filePath is empty a scratch path is synthesized purely so the server
// has a plausible document identity.
func (c *Checker) CheckCodeContent(ctx context.Context, content, language, filePath string) (*ContentReport, error) {
	sess, lang, err := c.getOrCreateSession(ctx, language)
	if err != nil {
		return nil, err
	}

	c.metrics.ToolCalls.Add(ctx, 1)

	scratch := filePath == ""
	if scratch {
		filePath = fmt.Sprintf("scratch_%s%s", uuid.NewString()[:8], lang.TempExtension())
	}
	if !filepath.IsAbs(filePath) {
		filePath = filepath.Join(c.workspaceAbs(), filePath)
	}

	uri := lspdomain.FileURI(filePath)
	if err := sess.OpenDocument(uri, lang.LanguageID(filePath), content); err != nil {
		return nil, fmt.Errorf("didOpen: %w", err)
	}

	reports := c.collect(ctx, sess, uri)

	if scratch {
		if err := sess.CloseDocument(uri); err != nil {
			c.log.Debug("didClose failed", "uri", uri, "error", err)
		}
	}

	hasErrors := false
	for _, r := range reports {
		if r.Severity == "Error" {
			hasErrors = true
			break
		}
	}

	return &ContentReport{
		Language:        string(lang),
		HasErrors:       hasErrors,
		DiagnosticCount: len(reports),
		Diagnostics:     reports,
	}, nil
}

// UpdateAndCheck synchronizes one file's content with the server and
// returns a short human-readable report of the error-severity diagnostics,
// or "" when nothing qualifies. The per-file document state decides between
// didOpen (first sight), close+reopen at version 1 (the file vanished from
// disk since the last call), and didChange with the next version.
func (c *Checker) UpdateAndCheck(ctx context.Context, filePath, content, language string) (string, error) {
	sess, lang, err := c.getOrCreateSession(ctx, language)
	if err != nil {
		return "", err
	}

	c.metrics.ToolCalls.Add(ctx, 1)

	if !filepath.IsAbs(filePath) {
		filePath = filepath.Join(c.workspaceAbs(), filePath)
	}
	uri := lspdomain.FileURI(filePath)

	_, statErr := os.Stat(filePath)
	existsOnDisk := statErr == nil

	c.mu.Lock()
	doc, ok := c.docs[filePath]
	if !ok {
		doc = &trackedDoc{lang: lang, uri: uri}
		c.docs[filePath] = doc
	}
	action, next := doc.state.Next(existsOnDisk)
	doc.state = next
	c.mu.Unlock()

	switch action {
	case lspdomain.ActionOpen:
		err = sess.OpenDocument(uri, lang.LanguageID(filePath), content)
	case lspdomain.ActionReopen:
		if closeErr := sess.CloseDocument(uri); closeErr != nil {
			c.log.Debug("didClose before reopen failed", "uri", uri, "error", closeErr)
		}
		err = sess.OpenDocument(uri, lang.LanguageID(filePath), content)
	case lspdomain.ActionUpdate:
		err = sess.UpdateDocument(uri, content, next.Version)
	}
	if err != nil {
		return "", fmt.Errorf("sync document: %w", err)
	}

	reports := c.collect(ctx, sess, uri)

	var lines []string
	for _, r := range reports {
		if r.Severity != "Error" {
			continue
		}
		if c.ignored(r.Message) {
			continue
		}
		lines = append(lines, fmt.Sprintf("Line %d: %s", r.Line, r.Message))
	}
	return strings.Join(lines, "\n"), nil
}

// collect waits for a diagnostics batch and formats it, recording the wait
// duration and whether the cache had to stand in.
func (c *Checker) collect(ctx context.Context, sess session, uri string) []lspdomain.Report {
	start := time.Now()
	diags, fromCache := sess.Diagnostics(ctx, uri, c.cfg.LSP.DiagnosticsWait, true)
	c.metrics.DiagnosticsWait.Record(ctx, time.Since(start).Seconds())
	if fromCache {
		c.metrics.CacheFallbacks.Add(ctx, 1)
	} else if len(diags) > 0 {
		c.metrics.DiagnosticsReceived.Add(ctx, 1)
	}
	return formatReports(diags)
}

// ignored reports whether a diagnostic message matches the configured
// ignore-list. Matching is case-insensitive substring, the same policy the
// generation pipeline tunes via checker.ignore_substrings.
func (c *Checker) ignored(message string) bool {
	msg := strings.ToLower(message)
	for _, sub := range c.cfg.Checker.IgnoreSubstrings {
		if strings.Contains(msg, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}

func (c *Checker) workspaceAbs() string {
	abs, err := filepath.Abs(c.cfg.Checker.Workspace)
	if err != nil {
		return c.cfg.Checker.Workspace
	}
	return abs
}

// Status returns one SessionInfo per registered session, failed ones
// included.
func (c *Checker) Status() []lspdomain.SessionInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	infos := make([]lspdomain.SessionInfo, 0, len(c.sessions))
	for _, sess := range c.sessions {
		info := lspdomain.SessionInfo{
			Language:    sess.Language(),
			State:       sess.State(),
			Command:     sess.Command(),
			PID:         sess.PID(),
			Diagnostics: sess.DiagnosticCount(),
		}
		if err := sess.Err(); err != nil {
			info.Error = err.Error()
		}
		infos = append(infos, info)
	}
	return infos
}

// Cleanup closes all tracked documents and stops every session
// concurrently. Best-effort: failures are logged, never returned, and the
// registry is cleared regardless.
func (c *Checker) Cleanup(ctx context.Context) {
	c.mu.Lock()
	sessions := make(map[lspdomain.Language]session, len(c.sessions))
	for lang, sess := range c.sessions {
		sessions[lang] = sess
	}
	docs := make([]*trackedDoc, 0, len(c.docs))
	for _, doc := range c.docs {
		docs = append(docs, doc)
	}
	c.sessions = make(map[lspdomain.Language]session)
	c.docs = make(map[string]*trackedDoc)
	c.mu.Unlock()

	for _, doc := range docs {
		sess, ok := sessions[doc.lang]
		if !ok || !doc.state.Open {
			continue
		}
		if err := sess.CloseDocument(doc.uri); err != nil {
			c.log.Debug("didClose during cleanup failed", "uri", doc.uri, "error", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for lang, sess := range sessions {
		g.Go(func() error {
			if err := sess.Stop(gctx); err != nil {
				c.log.Warn("session stop failed", "language", string(lang), "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	c.log.Info("checker cleaned up", "sessions", len(sessions), "documents", len(docs))
}

// unavailableSession stands in for a language whose server command could
// not even be resolved, so the failure is memoized like any other.
type unavailableSession struct {
	lang lspdomain.Language
	err  error
}

func (u unavailableSession) Start(context.Context) error { return u.err }
func (u unavailableSession) Stop(context.Context) error  { return nil }
func (u unavailableSession) State() lspdomain.SessionState {
	return lspdomain.StateFailed
}
func (u unavailableSession) Err() error                              { return u.err }
func (u unavailableSession) Language() string                        { return string(u.lang) }
func (u unavailableSession) Command() string                         { return "" }
func (u unavailableSession) PID() int                                { return 0 }
func (u unavailableSession) DiagnosticCount() int                    { return 0 }
func (u unavailableSession) OpenDocument(_, _, _ string) error       { return u.err }
func (u unavailableSession) UpdateDocument(_, _ string, _ int) error { return u.err }
func (u unavailableSession) CloseDocument(string) error              { return u.err }
func (u unavailableSession) Diagnostics(context.Context, string, time.Duration, bool) ([]lspdomain.Diagnostic, bool) {
	return nil, false
}
