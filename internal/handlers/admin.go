package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rmvisser/gatehouse/internal/middleware"
	"github.com/rmvisser/gatehouse/internal/models"
	"github.com/rmvisser/gatehouse/internal/security"
	"github.com/rmvisser/gatehouse/internal/services"
	pkghttp "github.com/rmvisser/gatehouse/pkg/http"
)

// AdminHandler serves the moderation dashboard endpoints
type AdminHandler struct {
	auth     *services.AuthService
	comments *services.CommentService
	guard    *security.SessionGuard
	tokens   *security.TokenStore
	logger   *slog.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(
	auth *services.AuthService,
	comments *services.CommentService,
	guard *security.SessionGuard,
	tokens *security.TokenStore,
	logger *slog.Logger,
) *AdminHandler {
	return &AdminHandler{
		auth:     auth,
		comments: comments,
		guard:    guard,
		tokens:   tokens,
		logger:   logger,
	}
}

type loginRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	TOTPCode  string `json:"totp_code"`
	CSRFToken string `json:"csrf_token"`
}

type loginResponse struct {
	Username  string     `json:"username"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

// Login authenticates a moderator and promotes the session
func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())
	if session == nil {
		pkghttp.WriteInternalError(w, "session unavailable")
		return
	}

	var req loginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "invalid request body")
		return
	}

	admin, err := h.auth.Login(r.Context(), session, services.LoginRequest{
		Username:  req.Username,
		Password:  req.Password,
		TOTPCode:  req.TOTPCode,
		CSRFToken: req.CSRFToken,
		IPAddress: pkghttp.ExtractClientIP(r),
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, loginResponse{
		Username:  admin.Username,
		LastLogin: admin.LastLogin,
	})
}

// Logout destroys the session server-side and clears the cookie
func (h *AdminHandler) Logout(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())
	if session == nil {
		pkghttp.WriteInternalError(w, "session unavailable")
		return
	}

	if err := h.guard.Destroy(r.Context(), w, r, session); err != nil {
		h.logger.Error("failed to destroy session", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "an unexpected error occurred")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type sessionStatusResponse struct {
	Authenticated bool    `json:"authenticated"`
	Username      *string `json:"username,omitempty"`
}

// SessionStatus tells the dashboard whether its session is still logged in
func (h *AdminHandler) SessionStatus(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())
	if session == nil {
		pkghttp.WriteInternalError(w, "session unavailable")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, sessionStatusResponse{
		Authenticated: session.Authenticated,
		Username:      session.AdminUsername,
	})
}

type pendingResponse struct {
	Comments []adminComment `json:"comments"`
}

// ListPending returns the moderation queue
func (h *AdminHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}

	comments, err := h.comments.ListPending(r.Context(), limit)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	resp := pendingResponse{Comments: make([]adminComment, 0, len(comments))}
	for _, c := range comments {
		resp.Comments = append(resp.Comments, toAdminComment(c))
	}

	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// QueueCounts returns comment counts per status
func (h *AdminHandler) QueueCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.comments.QueueCounts(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, counts)
}

// Approve publishes a pending comment
func (h *AdminHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.moderate(w, r, h.comments.Approve)
}

// Reject hides a pending comment
func (h *AdminHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.moderate(w, r, h.comments.Reject)
}

func (h *AdminHandler) moderate(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, id, moderator string) error) {
	_, moderator, ok := h.requireModerator(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "commentID")
	if _, err := uuid.Parse(id); err != nil {
		pkghttp.WriteNotFound(w, "resource not found")
		return
	}

	if err := action(r.Context(), id, moderator); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Delete removes a comment permanently
func (h *AdminHandler) Delete(w http.ResponseWriter, r *http.Request) {
	_, moderator, ok := h.requireModerator(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "commentID")
	if _, err := uuid.Parse(id); err != nil {
		pkghttp.WriteNotFound(w, "resource not found")
		return
	}

	if err := h.comments.Delete(r.Context(), id, moderator); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// requireModerator validates the CSRF header on mutating moderation calls and
// returns the acting moderator's username
func (h *AdminHandler) requireModerator(w http.ResponseWriter, r *http.Request) (*models.Session, string, bool) {
	session := middleware.SessionFromContext(r.Context())
	if session == nil || !session.Authenticated || session.AdminUsername == nil {
		pkghttp.WriteUnauthorized(w, "authentication required")
		return nil, "", false
	}

	if !h.tokens.Validate(session, r.Header.Get("X-CSRF-Token")) {
		pkghttp.WriteForbidden(w, "security validation failed, please reload the page and try again")
		return nil, "", false
	}

	return session, *session.AdminUsername, true
}

type totpSetupRequest struct {
	CSRFToken string `json:"csrf_token"`
}

type totpSetupResponse struct {
	Secret string `json:"secret"`
	QRCode string `json:"qr_code"`
}

// SetupTOTP enrolls a second-factor secret for the logged-in moderator
func (h *AdminHandler) SetupTOTP(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())
	if session == nil || !session.Authenticated || session.AdminID == nil || session.AdminUsername == nil {
		pkghttp.WriteUnauthorized(w, "authentication required")
		return
	}

	var req totpSetupRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "invalid request body")
		return
	}

	if !h.tokens.Validate(session, req.CSRFToken) {
		pkghttp.WriteForbidden(w, "security validation failed, please reload the page and try again")
		return
	}

	secret, qr, err := h.auth.SetupTOTP(r.Context(), *session.AdminID, *session.AdminUsername)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, totpSetupResponse{Secret: secret, QRCode: qr})
}

type totpEnableRequest struct {
	Code      string `json:"code"`
	CSRFToken string `json:"csrf_token"`
}

// EnableTOTP activates the enrolled second factor after code confirmation
func (h *AdminHandler) EnableTOTP(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())
	if session == nil || !session.Authenticated || session.AdminID == nil {
		pkghttp.WriteUnauthorized(w, "authentication required")
		return
	}

	var req totpEnableRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "invalid request body")
		return
	}

	if !h.tokens.Validate(session, req.CSRFToken) {
		pkghttp.WriteForbidden(w, "security validation failed, please reload the page and try again")
		return
	}

	if err := h.auth.EnableTOTP(r.Context(), *session.AdminID, req.Code); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
