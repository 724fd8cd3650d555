package http

import (
	"github.com/go-chi/chi/v5"

	"github.com/codevet/codevet/internal/middleware"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Use(middleware.CallID)
	r.Use(Logger)

	r.Get("/healthz", h.Healthz)

	r.Route("/api/v1/lsp", func(r chi.Router) {
		r.Get("/status", h.LSPStatus)
		r.Get("/diagnostics", h.LSPDiagnostics)
	})
}
