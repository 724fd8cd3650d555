package http

import (
	"encoding/json"
	"net/http"

	lspdomain "github.com/codevet/codevet/internal/domain/lsp"
	"github.com/codevet/codevet/internal/port/cache"
)

// StatusProvider reports the state of the live language-server sessions.
type StatusProvider interface {
	Status() []lspdomain.SessionInfo
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	status StatusProvider
	store  cache.Cache
}

// NewHandlers creates the handler set.
func NewHandlers(status StatusProvider, store cache.Cache) *Handlers {
	return &Handlers{status: status, store: store}
}

// Healthz reports process liveness.
func (h *Handlers) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// LSPStatus lists every registered session, failed ones included.
func (h *Handlers) LSPStatus(w http.ResponseWriter, _ *http.Request) {
	infos := h.status.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": infos,
		"count":    len(infos),
	})
}

// LSPDiagnostics returns the cached diagnostics batch for one document.
// A miss is 404: the cache only holds what a server has published.
func (h *Handlers) LSPDiagnostics(w http.ResponseWriter, r *http.Request) {
	language := r.URL.Query().Get("language")
	uri := r.URL.Query().Get("uri")
	if language == "" || uri == "" {
		writeError(w, http.StatusBadRequest, "language and uri are required")
		return
	}

	lang, err := lspdomain.Normalize(language)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	data, ok, err := h.store.Get(r.Context(), string(lang)+"|"+uri)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "cache read failed")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "no cached diagnostics for document")
		return
	}

	var diags []lspdomain.Diagnostic
	if err := json.Unmarshal(data, &diags); err != nil {
		writeError(w, http.StatusInternalServerError, "corrupt cache entry")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"language":    string(lang),
		"uri":         uri,
		"diagnostics": diags,
	})
}
