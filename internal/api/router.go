package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Public auth endpoints
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/refresh", s.handleRefresh)
		r.Post("/auth/forgot-password", s.handleForgotPassword)
		r.Post("/auth/reset-password/{token}", s.handleResetPassword)

		// Admin session + bootstrap (bootstrap fails once an admin exists)
		r.Post("/admin/login", s.handleAdminLogin)
		r.Post("/admin", s.handleAdminBootstrap)

		// Authenticated routes (user or admin)
		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			r.Post("/auth/logout", s.handleLogout)
			r.Get("/auth/me", s.handleMe)
			r.Post("/auth/change-password", s.handleChangePassword)

			// WS ticket requires authentication - caller must be logged in
			r.Post("/auth/ws-ticket", s.handleWSTicket)

			// Notice board reads
			r.Route("/notices", func(r chi.Router) {
				r.Get("/", s.handleListNotices)
				r.Get("/recent", s.handleRecentNotices)
				r.Get("/category/{category}", s.handleNoticesByCategory)
				r.Get("/{id}", s.handleGetNotice)

				// Notice mutations are admin-only
				r.Group(func(r chi.Router) {
					r.Use(s.requireAdmin)
					r.Post("/", s.handleCreateNotice)
					r.Patch("/{id}", s.handleUpdateNotice)
					r.Delete("/{id}", s.handleDeleteNotice)
				})
			})

			// Admin-only management surface
			r.Group(func(r chi.Router) {
				r.Use(s.requireAdmin)

				r.Post("/admin/replace", s.handleAdminReplace)

				r.Route("/admin/employees", func(r chi.Router) {
					r.Get("/", s.handleListEmployees)
					r.Post("/", s.handleCreateEmployee)
					r.Get("/{id}", s.handleGetEmployee)
					r.Delete("/{id}", s.handleDeleteEmployee)
				})

				r.Get("/admin/audit", s.handleListAuditLogs)
			})
		})

		// WebSocket (auth via ticket, validated in handler)
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
