package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shivsys/noticeboard/internal/audit"
	"github.com/shivsys/noticeboard/internal/auth"
	"github.com/shivsys/noticeboard/internal/notice"
)

// Notice feed broadcast channels.
const (
	channelNoticeCreated = "notice.created"
	channelNoticeUpdated = "notice.updated"
	channelNoticeDeleted = "notice.deleted"
)

// handleListNotices returns all active notices, newest first.
func (s *Server) handleListNotices(w http.ResponseWriter, r *http.Request) {
	notices, err := s.notices.ListActive(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"notices": notices,
		"count":   len(notices),
	})
}

// handleRecentNotices returns active notices posted within the last week.
func (s *Server) handleRecentNotices(w http.ResponseWriter, r *http.Request) {
	since := time.Now().Add(-notice.RecentWindow)
	notices, err := s.notices.ListRecent(r.Context(), since)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"notices": notices,
		"count":   len(notices),
	})
}

// handleNoticesByCategory returns active notices of one category.
func (s *Server) handleNoticesByCategory(w http.ResponseWriter, r *http.Request) {
	category := notice.Category(chi.URLParam(r, "category"))

	notices, err := s.notices.ListByCategory(r.Context(), category)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"notices": notices,
		"count":   len(notices),
	})
}

// handleGetNotice returns a single notice.
func (s *Server) handleGetNotice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	n, err := s.notices.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, n)
}

// createNoticeRequest is the request body for POST /notices.
type createNoticeRequest struct {
	Title       string          `json:"title"`
	Content     string          `json:"content"`
	Category    notice.Category `json:"category"`
	Attachments []string        `json:"attachments"`
}

// handleCreateNotice posts a new notice and broadcasts it to the live feed.
func (s *Server) handleCreateNotice(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r.Context())

	var req createNoticeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Title == "" || req.Content == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "title and content are required")
		return
	}

	n := &notice.Notice{
		Title:       req.Title,
		Content:     req.Content,
		Category:    req.Category,
		Attachments: req.Attachments,
		PostedBy:    principal.ID,
	}
	if err := s.notices.Create(r.Context(), n); err != nil {
		writeDomainError(w, err)
		return
	}

	s.recordAudit(r.Context(), &audit.AuditLog{
		Action:     "create",
		EntityType: "notice",
		EntityID:   n.ID,
		ActorID:    principal.ID,
		ActorKind:  string(auth.KindAdmin),
		Source:     "api",
	})
	s.broadcast(channelNoticeCreated, n)

	writeJSON(w, http.StatusCreated, n)
}

// updateNoticeRequest is the request body for PATCH /notices/{id}.
// Pointer fields distinguish "not sent" from zero values.
type updateNoticeRequest struct {
	Title       *string          `json:"title"`
	Content     *string          `json:"content"`
	Category    *notice.Category `json:"category"`
	Attachments *[]string        `json:"attachments"`
	IsActive    *bool            `json:"is_active"`
}

// handleUpdateNotice applies a partial update and broadcasts the result.
func (s *Server) handleUpdateNotice(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r.Context())
	id := chi.URLParam(r, "id")

	var req updateNoticeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	n, err := s.notices.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if req.Title != nil {
		n.Title = *req.Title
	}
	if req.Content != nil {
		n.Content = *req.Content
	}
	if req.Category != nil {
		n.Category = *req.Category
	}
	if req.Attachments != nil {
		n.Attachments = *req.Attachments
	}
	if req.IsActive != nil {
		n.IsActive = *req.IsActive
	}

	if err := s.notices.Update(r.Context(), n); err != nil {
		writeDomainError(w, err)
		return
	}

	s.recordAudit(r.Context(), &audit.AuditLog{
		Action:     "update",
		EntityType: "notice",
		EntityID:   n.ID,
		ActorID:    principal.ID,
		ActorKind:  string(auth.KindAdmin),
		Source:     "api",
	})
	s.broadcast(channelNoticeUpdated, n)

	writeJSON(w, http.StatusOK, n)
}

// handleDeleteNotice removes a notice and broadcasts the removal.
func (s *Server) handleDeleteNotice(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r.Context())
	id := chi.URLParam(r, "id")

	if err := s.notices.Delete(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}

	s.recordAudit(r.Context(), &audit.AuditLog{
		Action:     "delete",
		EntityType: "notice",
		EntityID:   id,
		ActorID:    principal.ID,
		ActorKind:  string(auth.KindAdmin),
		Source:     "api",
	})
	s.broadcast(channelNoticeDeleted, map[string]string{"id": id})

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// broadcast relays an event to the WebSocket hub if it is running.
func (s *Server) broadcast(channel string, payload any) {
	if s.hub == nil {
		return
	}
	s.hub.Broadcast(channel, payload)
}
