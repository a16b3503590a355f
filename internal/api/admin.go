package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/shivsys/noticeboard/internal/audit"
	"github.com/shivsys/noticeboard/internal/auth"
	"github.com/shivsys/noticeboard/internal/roster"
)

// adminCredentials is the request body for admin login, bootstrap, and replace.
type adminCredentials struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

// handleAdminLogin authenticates the administrator and returns a token pair.
func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var req adminCredentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	admin, pair, err := s.auth.AdminLogin(r.Context(), req.Name, req.Password)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	s.recordAudit(r.Context(), &audit.AuditLog{
		Action:     "login",
		EntityType: "admin",
		EntityID:   admin.ID,
		ActorID:    admin.ID,
		ActorKind:  string(auth.KindAdmin),
		Source:     "api",
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"admin":  admin,
		"tokens": s.tokenResponseFor(pair),
	})
}

// handleAdminBootstrap creates the administrator account. It only succeeds
// while no admin exists; after that it returns 409 and the account can only
// be changed through the authenticated replace endpoint.
func (s *Server) handleAdminBootstrap(w http.ResponseWriter, r *http.Request) {
	var req adminCredentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	admin, err := s.auth.AddAdmin(r.Context(), req.Name, req.Password)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	s.recordAudit(r.Context(), &audit.AuditLog{
		Action:     "create",
		EntityType: "admin",
		EntityID:   admin.ID,
		Source:     "api",
	})

	writeJSON(w, http.StatusCreated, admin)
}

// handleAdminReplace atomically swaps the administrator account for a new
// one. Only the current admin can invoke it; their session dies with the row.
func (s *Server) handleAdminReplace(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r.Context())

	var req adminCredentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	admin, err := s.auth.ReplaceSoleAdmin(r.Context(), req.Name, req.Password)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	s.recordAudit(r.Context(), &audit.AuditLog{
		Action:     "replace",
		EntityType: "admin",
		EntityID:   admin.ID,
		ActorID:    principal.ID,
		ActorKind:  string(auth.KindAdmin),
		Source:     "api",
	})

	writeJSON(w, http.StatusOK, admin)
}

// createEmployeeRequest is the request body for POST /admin/employees.
type createEmployeeRequest struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
}

// handleCreateEmployee adds an employee to the roster, opening
// registration for that email address.
func (s *Server) handleCreateEmployee(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r.Context())

	var req createEmployeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.FullName == "" || req.Email == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "full_name and email are required")
		return
	}
	if !auth.IsValidEmail(req.Email) {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "invalid email format")
		return
	}

	rec := &roster.EmployeeRecord{FullName: req.FullName, Email: req.Email}
	if err := s.roster.Create(r.Context(), rec); err != nil {
		writeDomainError(w, err)
		return
	}

	s.recordAudit(r.Context(), &audit.AuditLog{
		Action:     "create",
		EntityType: "employee",
		EntityID:   rec.ID,
		ActorID:    principal.ID,
		ActorKind:  string(auth.KindAdmin),
		Source:     "api",
	})

	writeJSON(w, http.StatusCreated, rec)
}

// handleListEmployees returns the full roster.
func (s *Server) handleListEmployees(w http.ResponseWriter, r *http.Request) {
	records, err := s.roster.List(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"employees": records,
		"count":     len(records),
	})
}

// handleGetEmployee returns a single roster entry.
func (s *Server) handleGetEmployee(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := s.roster.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// handleDeleteEmployee removes a roster entry. Existing accounts are not
// touched; removal only blocks future registrations for that email.
func (s *Server) handleDeleteEmployee(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r.Context())
	id := chi.URLParam(r, "id")

	if err := s.roster.Delete(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}

	s.recordAudit(r.Context(), &audit.AuditLog{
		Action:     "delete",
		EntityType: "employee",
		EntityID:   id,
		ActorID:    principal.ID,
		ActorKind:  string(auth.KindAdmin),
		Source:     "api",
	})

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleListAuditLogs returns the audit trail, filtered via query parameters.
func (s *Server) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeNotFound(w, "audit log not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:     q.Get("action"),
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
		ActorID:    q.Get("actor_id"),
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil {
			writeBadRequest(w, "limit must be an integer")
			return
		}
		filter.Limit = n
	}
	if offset := q.Get("offset"); offset != "" {
		n, err := strconv.Atoi(offset)
		if err != nil {
			writeBadRequest(w, "offset must be an integer")
			return
		}
		filter.Offset = n
	}

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
