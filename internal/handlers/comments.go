package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rmvisser/gatehouse/internal/middleware"
	"github.com/rmvisser/gatehouse/internal/models"
	"github.com/rmvisser/gatehouse/internal/security"
	"github.com/rmvisser/gatehouse/internal/services"
	pkghttp "github.com/rmvisser/gatehouse/pkg/http"
)

const maxSubmissionBytes = 64 << 10 // 64 KiB request body cap

// CommentHandler serves the public comment endpoints
type CommentHandler struct {
	service       *services.CommentService
	tokens        *security.TokenStore
	honeypotField string
	logger        *slog.Logger
}

// NewCommentHandler creates a new CommentHandler
func NewCommentHandler(service *services.CommentService, tokens *security.TokenStore, honeypotField string, logger *slog.Logger) *CommentHandler {
	return &CommentHandler{
		service:       service,
		tokens:        tokens,
		honeypotField: honeypotField,
		logger:        logger,
	}
}

// csrfTokenResponse carries a freshly issued token for the comment form
type csrfTokenResponse struct {
	CSRFToken string `json:"csrf_token"`
}

// GetCSRFToken issues a fresh anti-forgery token bound to the caller's
// session. The comment widget fetches this before rendering its form.
func (h *CommentHandler) GetCSRFToken(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())
	if session == nil {
		pkghttp.WriteInternalError(w, "session unavailable")
		return
	}

	token, err := h.tokens.Issue(r.Context(), session)
	if err != nil {
		h.logger.Error("failed to issue csrf token", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "an unexpected error occurred")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, csrfTokenResponse{CSRFToken: token})
}

// submitResponse is deliberately the same shape for every accepted
// submission, honeypot catches included, so automation cannot tell a stored
// comment from a silently discarded one
type submitResponse struct {
	Message string `json:"message"`
}

// Submit runs a comment submission through the defense gate
func (h *CommentHandler) Submit(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())
	if session == nil {
		pkghttp.WriteInternalError(w, "session unavailable")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxSubmissionBytes)

	// The honeypot field name is configurable, so the body is decoded as a
	// generic map and picked apart by key
	var raw map[string]string
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		pkghttp.WriteBadRequest(w, "invalid request body")
		return
	}

	sub := services.CommentSubmission{
		BlogID:      raw["blog_id"],
		AuthorName:  raw["author_name"],
		AuthorEmail: raw["author_email"],
		Body:        raw["comment"],
		Honeypot:    raw[h.honeypotField],
		CSRFToken:   raw["csrf_token"],
		IPAddress:   pkghttp.ExtractClientIP(r),
		UserAgent:   r.UserAgent(),
	}

	if _, err := h.service.Submit(r.Context(), session, sub); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusAccepted, submitResponse{
		Message: "thank you, your comment has been received",
	})
}

// publicComment is the visitor-facing view of an approved comment. Email, IP
// and moderation metadata stay server-side.
type publicComment struct {
	ID         string    `json:"id"`
	AuthorName string    `json:"author_name"`
	Comment    string    `json:"comment"`
	CreatedAt  time.Time `json:"created_at"`
}

type listCommentsResponse struct {
	Comments []publicComment `json:"comments"`
}

// GetComments returns the approved comments for a blog post, oldest first
func (h *CommentHandler) GetComments(w http.ResponseWriter, r *http.Request) {
	blogID := chi.URLParam(r, "blogID")

	comments, err := h.service.ListApproved(r.Context(), blogID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	resp := listCommentsResponse{Comments: make([]publicComment, 0, len(comments))}
	for _, c := range comments {
		resp.Comments = append(resp.Comments, publicComment{
			ID:         c.ID,
			AuthorName: c.AuthorName,
			Comment:    c.Body,
			CreatedAt:  c.CreatedAt,
		})
	}

	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// adminComment is the moderator-facing view, including the defense signals
type adminComment struct {
	ID          string     `json:"id"`
	BlogID      string     `json:"blog_id"`
	AuthorName  string     `json:"author_name"`
	AuthorEmail string     `json:"author_email"`
	Comment     string     `json:"comment"`
	Status      string     `json:"status"`
	SpamScore   float64    `json:"spam_score"`
	IPAddress   *string    `json:"ip_address,omitempty"`
	ModeratedBy *string    `json:"moderated_by,omitempty"`
	ModeratedAt *time.Time `json:"moderated_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func toAdminComment(c *models.Comment) adminComment {
	return adminComment{
		ID:          c.ID,
		BlogID:      c.BlogID,
		AuthorName:  c.AuthorName,
		AuthorEmail: c.AuthorEmail,
		Comment:     c.Body,
		Status:      c.Status,
		SpamScore:   c.SpamScore,
		IPAddress:   c.IPAddress,
		ModeratedBy: c.ModeratedBy,
		ModeratedAt: c.ModeratedAt,
		CreatedAt:   c.CreatedAt,
	}
}
