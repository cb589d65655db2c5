package handler

import (
	"encoding/json"
	"errors"
	"liveclass/internal/model"
	"liveclass/internal/service"
	"liveclass/internal/transport/rest/middleware"
	"net/http"

	"github.com/gorilla/mux"
)

// SessionHandler handles the session lifecycle and admission endpoints.
type SessionHandler struct {
	lifecycleSvc *service.LifecycleService
	admissionSvc *service.AdmissionService
	querySvc     *service.QueryService
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(
	lifecycleSvc *service.LifecycleService,
	admissionSvc *service.AdmissionService,
	querySvc *service.QueryService,
) *SessionHandler {
	return &SessionHandler{
		lifecycleSvc: lifecycleSvc,
		admissionSvc: admissionSvc,
		querySvc:     querySvc,
	}
}

// CreateSessionRequest is the request body for creating a session.
type CreateSessionRequest struct {
	Title           string `json:"title"`
	Description     string `json:"description,omitempty"`
	Subject         string `json:"subject,omitempty"`
	MaxParticipants int    `json:"maxParticipants,omitempty"`
	Password        string `json:"password,omitempty"`
}

// UpdateSessionRequest is the request body for updating session metadata.
// Omitted fields are left unchanged.
type UpdateSessionRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Subject     *string `json:"subject,omitempty"`
}

// JoinRequest is the request body for joining a session.
type JoinRequest struct {
	Password string `json:"password,omitempty"`
}

// Create handles POST /v1/sessions
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.lifecycleSvc.Create(r.Context(), middleware.GetCaller(r.Context()), service.CreateSessionParams{
		Title:           req.Title,
		Description:     req.Description,
		Subject:         req.Subject,
		MaxParticipants: req.MaxParticipants,
		Password:        req.Password,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"id":       session.ID,
		"roomCode": session.RoomCode,
	})
}

// List handles GET /v1/sessions
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.querySvc.ListActive(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionList(sessions))
}

// ListMine handles GET /v1/sessions/mine
func (h *SessionHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetCaller(r.Context())
	sessions, err := h.querySvc.ListOwnedBy(r.Context(), caller.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionList(sessions))
}

// ResolveCode handles GET /v1/sessions/code/{code}
func (h *SessionHandler) ResolveCode(w http.ResponseWriter, r *http.Request) {
	summary, err := h.querySvc.ResolveCode(r.Context(), mux.Vars(r)["code"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Get handles GET /v1/sessions/{id}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	session, err := h.querySvc.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// Update handles PATCH /v1/sessions/{id}
func (h *SessionHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.lifecycleSvc.UpdateInfo(r.Context(), mux.Vars(r)["id"], middleware.GetCaller(r.Context()), service.UpdateSessionParams{
		Title:       req.Title,
		Description: req.Description,
		Subject:     req.Subject,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// Join handles POST /v1/sessions/{id}/join
func (h *SessionHandler) Join(w http.ResponseWriter, r *http.Request) {
	var req JoinRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	participant, err := h.admissionSvc.Join(r.Context(),
		service.SessionRef{ID: mux.Vars(r)["id"]},
		middleware.GetCaller(r.Context()),
		req.Password,
	)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, participant)
}

// Start handles POST /v1/sessions/{id}/start
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	session, err := h.lifecycleSvc.Start(r.Context(), mux.Vars(r)["id"], middleware.GetCaller(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// End handles POST /v1/sessions/{id}/end
func (h *SessionHandler) End(w http.ResponseWriter, r *http.Request) {
	session, err := h.lifecycleSvc.End(r.Context(), mux.Vars(r)["id"], middleware.GetCaller(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// Leave handles POST /v1/sessions/{id}/leave
func (h *SessionHandler) Leave(w http.ResponseWriter, r *http.Request) {
	if err := h.admissionSvc.Leave(r.Context(), mux.Vars(r)["id"], middleware.GetCaller(r.Context())); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func sessionList(sessions []*model.Session) []*model.Session {
	if sessions == nil {
		return []*model.Session{}
	}
	return sessions
}

// Helper functions
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeServiceError maps the service error taxonomy onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrCapacityExceeded), errors.Is(err, service.ErrInvalidState):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
