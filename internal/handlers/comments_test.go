package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmvisser/gatehouse/internal/config"
	"github.com/rmvisser/gatehouse/internal/middleware"
	"github.com/rmvisser/gatehouse/internal/models"
	"github.com/rmvisser/gatehouse/internal/security"
	"github.com/rmvisser/gatehouse/internal/services"
	"github.com/rmvisser/gatehouse/internal/spam"
	pkglogger "github.com/rmvisser/gatehouse/pkg/logger"
)

// stubSessionStore backs the session guard for handler tests
type stubSessionStore struct {
	sessions map[string]*models.Session
}

func newStubSessionStore() *stubSessionStore {
	return &stubSessionStore{sessions: make(map[string]*models.Session)}
}

func (s *stubSessionStore) Get(_ context.Context, id string) (*models.Session, error) {
	sess, ok := s.sessions[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	clone := *sess
	return &clone, nil
}

func (s *stubSessionStore) Create(_ context.Context, session *models.Session) error {
	clone := *session
	s.sessions[session.ID] = &clone
	return nil
}

func (s *stubSessionStore) Touch(_ context.Context, id string, at time.Time) error {
	if sess, ok := s.sessions[id]; ok {
		sess.LastSeenAt = at
	}
	return nil
}

func (s *stubSessionStore) RotateID(_ context.Context, oldID, newID string, createdAt time.Time) error {
	sess, ok := s.sessions[oldID]
	if !ok {
		return models.ErrNotFound
	}
	delete(s.sessions, oldID)
	sess.ID = newID
	sess.CreatedAt = createdAt
	s.sessions[newID] = sess
	return nil
}

func (s *stubSessionStore) SetCSRFToken(_ context.Context, sessionID, token string, issuedAt time.Time) error {
	sess, ok := s.sessions[sessionID]
	if !ok {
		return models.ErrNotFound
	}
	sess.CSRFToken = &token
	sess.CSRFIssuedAt = &issuedAt
	return nil
}

func (s *stubSessionStore) SetAuthenticated(_ context.Context, sessionID, adminID, username string) error {
	return nil
}

func (s *stubSessionStore) Delete(_ context.Context, id string) error {
	delete(s.sessions, id)
	return nil
}

// stubCommentStore records created comments
type stubCommentStore struct {
	created []*models.Comment
}

func (s *stubCommentStore) Create(_ context.Context, comment *models.Comment) error {
	comment.ID = "generated-id"
	comment.CreatedAt = time.Now()
	s.created = append(s.created, comment)
	return nil
}

func (s *stubCommentStore) GetByID(_ context.Context, id string) (*models.Comment, error) {
	return nil, models.ErrNotFound
}

func (s *stubCommentStore) ListApprovedByBlog(_ context.Context, blogID string) ([]*models.Comment, error) {
	var out []*models.Comment
	for _, c := range s.created {
		if c.BlogID == blogID && c.Status == models.CommentStatusApproved {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *stubCommentStore) ListByStatus(_ context.Context, status string, limit int) ([]*models.Comment, error) {
	return nil, nil
}

func (s *stubCommentStore) UpdateStatus(_ context.Context, id, fromStatus, toStatus, moderator string, at time.Time) error {
	return models.ErrNotFound
}

func (s *stubCommentStore) Delete(_ context.Context, id string) error { return nil }

func (s *stubCommentStore) CountByStatus(_ context.Context) (map[string]int, error) {
	return map[string]int{}, nil
}

// stubRateLimitStore always allows
type stubRateLimitStore struct {
	increments int
}

func (s *stubRateLimitStore) Get(_ context.Context, ip string) (*models.RateLimitRecord, error) {
	return nil, models.ErrNotFound
}

func (s *stubRateLimitStore) IncrementAttempt(_ context.Context, ip string, kind models.AttemptKind, now, windowStart time.Time) (*models.RateLimitRecord, error) {
	s.increments++
	return &models.RateLimitRecord{IPAddress: ip, CommentAttempts: 1, LastAttempt: now}, nil
}

func (s *stubRateLimitStore) Lock(_ context.Context, ip string, until time.Time) error { return nil }

type handlerFixture struct {
	router     *chi.Mux
	comments   *stubCommentStore
	rateLimits *stubRateLimitStore
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))

	sessionStore := newStubSessionStore()
	guard := security.NewSessionGuard(sessionStore, security.GuardConfig{
		CookieName:  "gatehouse_session",
		Lifetime:    time.Hour,
		RotateAfter: 30 * time.Minute,
	}, discard)
	tokens := security.NewTokenStore(sessionStore, 2*time.Hour)

	commentStore := &stubCommentStore{}
	rateLimitStore := &stubRateLimitStore{}

	spamCfg := config.SpamConfig{
		Keywords:        []string{"viagra"},
		MaxLinksAllowed: 1,
		HoneypotField:   "website_url",
		RejectThreshold: 0.8,
		CommentMinLen:   10,
		CommentMaxLen:   1000,
	}
	secCfg := config.SecurityConfig{
		CommentMaxAttempts: 3,
		CommentWindow:      10 * time.Minute,
		LoginMaxAttempts:   5,
		LoginWindow:        15 * time.Minute,
		LockoutDuration:    time.Hour,
	}

	service := services.NewCommentService(
		commentStore,
		services.NewRateLimitService(rateLimitStore, secCfg, discard),
		tokens,
		spam.NewScorer(spamCfg.Keywords, spamCfg.MaxLinksAllowed),
		nil,
		spamCfg,
		pkglogger.NewAuditLogger(discard),
		discard,
	)
	handler := NewCommentHandler(service, tokens, spamCfg.HoneypotField, discard)

	router := chi.NewRouter()
	router.Use(middleware.Session(guard, discard))
	router.Get("/csrf-token", handler.GetCSRFToken)
	router.Post("/comments", handler.Submit)
	router.Get("/comments/{blogID}", handler.GetComments)

	return &handlerFixture{router: router, comments: commentStore, rateLimits: rateLimitStore}
}

// fetchToken performs the token bootstrap a comment widget would do and
// returns the session cookie plus the issued token
func (f *handlerFixture) fetchToken(t *testing.T) (*http.Cookie, string) {
	t.Helper()

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/csrf-token", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		CSRFToken string `json:"csrf_token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	for _, c := range w.Result().Cookies() {
		if c.Name == "gatehouse_session" {
			return c, resp.CSRFToken
		}
	}
	t.Fatal("session cookie not set")
	return nil, ""
}

func (f *handlerFixture) submit(t *testing.T, cookie *http.Cookie, body map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodPost, "/comments", bytes.NewReader(payload))
	r.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		r.AddCookie(cookie)
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, r)
	return w
}

func validBody(token string) map[string]string {
	return map[string]string{
		"blog_id":      "first-post",
		"author_name":  "Alice",
		"author_email": "alice@example.com",
		"comment":      "This was a really helpful article, thank you.",
		"csrf_token":   token,
	}
}

func TestCommentSubmit_Accepted(t *testing.T) {
	f := newHandlerFixture(t)
	cookie, token := f.fetchToken(t)

	w := f.submit(t, cookie, validBody(token))
	assert.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, f.comments.created, 1)
	assert.Equal(t, models.CommentStatusPending, f.comments.created[0].Status)
}

func TestCommentSubmit_HoneypotResponseIndistinguishable(t *testing.T) {
	f := newHandlerFixture(t)
	cookie, token := f.fetchToken(t)

	clean := f.submit(t, cookie, validBody(token))

	trapped := validBody(token)
	trapped["website_url"] = "https://bot.example"
	caught := f.submit(t, cookie, trapped)

	// Status and body match the genuine acceptance exactly
	assert.Equal(t, clean.Code, caught.Code)
	assert.Equal(t, clean.Body.String(), caught.Body.String())

	// Only the clean submission was stored or counted
	assert.Len(t, f.comments.created, 1)
	assert.Equal(t, 1, f.rateLimits.increments)
}

func TestCommentSubmit_MissingCSRFForbidden(t *testing.T) {
	f := newHandlerFixture(t)
	cookie, _ := f.fetchToken(t)

	body := validBody("")
	w := f.submit(t, cookie, body)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, f.comments.created)
}

func TestCommentSubmit_TokenFromOtherSessionRejected(t *testing.T) {
	f := newHandlerFixture(t)
	_, stolenToken := f.fetchToken(t)
	otherCookie, _ := f.fetchToken(t)

	w := f.submit(t, otherCookie, validBody(stolenToken))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCommentSubmit_ValidationErrorsListed(t *testing.T) {
	f := newHandlerFixture(t)
	cookie, token := f.fetchToken(t)

	body := validBody(token)
	body["author_name"] = ""
	body["author_email"] = "not-an-email"
	body["comment"] = "short"

	w := f.submit(t, cookie, body)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp struct {
		Errors []string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Errors, 3)
}

func TestGetComments_OnlyApprovedVisible(t *testing.T) {
	f := newHandlerFixture(t)

	ip := "198.51.100.7"
	f.comments.created = []*models.Comment{
		{ID: "c1", BlogID: "first-post", AuthorName: "Alice", AuthorEmail: "alice@example.com", Body: "Nice", Status: models.CommentStatusApproved, IPAddress: &ip},
		{ID: "c2", BlogID: "first-post", AuthorName: "Bob", AuthorEmail: "bob@example.com", Body: "Spam", Status: models.CommentStatusRejected},
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/comments/first-post", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Comments []map[string]any `json:"comments"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Comments, 1)
	assert.Equal(t, "Alice", resp.Comments[0]["author_name"])

	// The public payload never carries email or IP
	_, hasEmail := resp.Comments[0]["author_email"]
	_, hasIP := resp.Comments[0]["ip_address"]
	assert.False(t, hasEmail)
	assert.False(t, hasIP)
}
