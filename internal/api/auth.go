package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shivsys/noticeboard/internal/audit"
	"github.com/shivsys/noticeboard/internal/auth"
)

// ticketTTL is how long a WebSocket ticket is valid.
const ticketTTL = 60 * time.Second

// tokenResponse is the response body for login and refresh.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

func (s *Server) tokenResponseFor(pair *auth.TokenPair) tokenResponse {
	return tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.tokens.AccessTTL().Seconds()),
	}
}

// handleRegister creates an employee account. Registration is gated on
// the company roster: the email must already be provisioned by the admin.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	user, employeeID, err := s.auth.Register(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	s.recordAudit(r.Context(), &audit.AuditLog{
		Action:     "register",
		EntityType: "user",
		EntityID:   user.ID,
		ActorID:    user.ID,
		ActorKind:  string(auth.KindUser),
		Source:     "api",
	})

	writeJSON(w, http.StatusCreated, map[string]any{
		"user":        user,
		"employee_id": employeeID,
	})
}

// loginRequest is the request body for POST /auth/login.
// Identifier accepts a username or an email address.
type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// handleLogin authenticates an employee and returns a token pair.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	user, pair, err := s.auth.Login(r.Context(), req.Identifier, req.Password)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	s.recordAudit(r.Context(), &audit.AuditLog{
		Action:     "login",
		EntityType: "user",
		EntityID:   user.ID,
		ActorID:    user.ID,
		ActorKind:  string(auth.KindUser),
		Source:     "api",
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"user":   user,
		"tokens": s.tokenResponseFor(pair),
	})
}

// refreshRequest is the request body for POST /auth/refresh.
type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// handleRefresh rotates a refresh token and returns a fresh pair.
// A replayed or superseded token is rejected with 401.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.RefreshToken == "" {
		writeBadRequest(w, "refresh_token is required")
		return
	}

	pair, err := s.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, s.tokenResponseFor(pair))
}

// handleLogout clears the caller's stored refresh token.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r.Context())

	if err := s.auth.Logout(r.Context(), principal.ID, principal.Kind); err != nil {
		writeDomainError(w, err)
		return
	}

	s.recordAudit(r.Context(), &audit.AuditLog{
		Action:     "logout",
		EntityType: string(principal.Kind),
		EntityID:   principal.ID,
		ActorID:    principal.ID,
		ActorKind:  string(principal.Kind),
		Source:     "api",
	})

	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

// handleMe returns the authenticated principal.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"id":        principal.ID,
		"kind":      principal.Kind,
		"username":  principal.Username,
		"email":     principal.Email,
		"full_name": principal.FullName,
	})
}

// changePasswordRequest is the request body for POST /auth/change-password.
type changePasswordRequest struct {
	OldPassword     string `json:"old_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

// handleChangePassword updates the caller's password after verifying the
// current one. Admin principals have no password-change endpoint; the
// account is swapped via /admin/replace instead.
func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r.Context())
	if principal.Kind != auth.KindUser {
		writeForbidden(w, "password change is for employee accounts")
		return
	}

	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	err := s.auth.ChangePassword(r.Context(), principal.ID,
		req.OldPassword, req.NewPassword, req.ConfirmPassword)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	s.recordAudit(r.Context(), &audit.AuditLog{
		Action:     "change_password",
		EntityType: "user",
		EntityID:   principal.ID,
		ActorID:    principal.ID,
		ActorKind:  string(auth.KindUser),
		Source:     "api",
	})

	writeJSON(w, http.StatusOK, map[string]string{"status": "password changed"})
}

// forgotPasswordRequest is the request body for POST /auth/forgot-password.
type forgotPasswordRequest struct {
	Email string `json:"email"`
}

// handleForgotPassword issues a reset ticket and emails the reset link.
func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.auth.ForgotPassword(r.Context(), req.Email); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "reset email sent"})
}

// resetPasswordRequest is the request body for POST /auth/reset-password/{token}.
type resetPasswordRequest struct {
	Password string `json:"password"`
}

// handleResetPassword consumes a reset ticket and sets a new password.
func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	var req resetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.auth.ResetPassword(r.Context(), token, req.Password); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "password reset"})
}

// recordAudit writes an audit entry, logging rather than failing the
// request if the trail is unavailable.
func (s *Server) recordAudit(ctx context.Context, entry *audit.AuditLog) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Create(ctx, entry); err != nil {
		s.logger.Warn("audit write failed", "action", entry.Action, "error", err)
	}
}

// ticketStore holds pending WebSocket authentication tickets.
// Tickets are single-use and expire after ticketTTL.
type ticketStore struct {
	tickets map[string]ticketEntry
	mu      sync.Mutex
}

// ticketEntry carries the principal identity from the issuing request to
// the WebSocket upgrade.
type ticketEntry struct {
	principalID string
	kind        auth.Kind
	expiresAt   time.Time
}

func newTicketStore() *ticketStore {
	return &ticketStore{tickets: make(map[string]ticketEntry)}
}

// handleWSTicket generates a single-use WebSocket authentication ticket.
// The client uses this ticket to authenticate the WebSocket connection
// without exposing the JWT in the URL.
func (s *Server) handleWSTicket(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r.Context())
	ticket := generateTicket()

	s.tickets.mu.Lock()
	s.tickets.tickets[ticket] = ticketEntry{
		principalID: principal.ID,
		kind:        principal.Kind,
		expiresAt:   time.Now().Add(ticketTTL),
	}
	s.tickets.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":     ticket,
		"expires_in": int(ticketTTL.Seconds()),
	})
}

// validateTicket checks if a ticket is valid and consumes it (single-use).
func (s *Server) validateTicket(ticket string) (ticketEntry, bool) {
	s.tickets.mu.Lock()
	defer s.tickets.mu.Unlock()

	entry, ok := s.tickets.tickets[ticket]
	if !ok {
		return ticketEntry{}, false
	}

	// Remove ticket (single-use)
	delete(s.tickets.tickets, ticket)

	if time.Now().After(entry.expiresAt) {
		return ticketEntry{}, false
	}
	return entry, true
}

// ticketBytes is the number of random bytes used for WebSocket tickets.
const ticketBytes = 32

// generateTicket creates a cryptographically random ticket string.
func generateTicket() string {
	b := make([]byte, ticketBytes)
	//nolint:errcheck // crypto/rand.Read always returns len(b) on supported platforms
	rand.Read(b)
	return hex.EncodeToString(b)
}

// cleanExpiredTickets removes expired tickets from the store.
func (s *Server) cleanExpiredTickets() {
	s.tickets.mu.Lock()
	defer s.tickets.mu.Unlock()

	now := time.Now()
	for ticket, entry := range s.tickets.tickets {
		if now.After(entry.expiresAt) {
			delete(s.tickets.tickets, ticket)
		}
	}
}

// cleanTicketsLoop runs cleanExpiredTickets periodically until the context is cancelled.
func (s *Server) cleanTicketsLoop(ctx context.Context) {
	ticker := time.NewTicker(ticketTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanExpiredTickets()
		}
	}
}
