package security

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/rmvisser/gatehouse/internal/models"
)

// TokenStore issues and validates anti-forgery tokens bound to a session.
// A session holds at most one live token: issuing a new one invalidates the
// previous value immediately. Tokens expire after a fixed lifetime
// independent of the session's own lifetime.
type TokenStore struct {
	store    SessionStore
	lifetime time.Duration
	nowFunc  func() time.Time
}

// NewTokenStore creates a token store with the given token lifetime
func NewTokenStore(store SessionStore, lifetime time.Duration) *TokenStore {
	return &TokenStore{
		store:    store,
		lifetime: lifetime,
		nowFunc:  time.Now,
	}
}

// Issue generates a fresh 256-bit token for the session, persisting it and
// overwriting any prior token. The session struct is updated in place so the
// caller sees the new token without a reload.
func (ts *TokenStore) Issue(ctx context.Context, session *models.Session) (string, error) {
	randomBytes := make([]byte, 32)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate csrf token: %w", err)
	}

	token := hex.EncodeToString(randomBytes)
	issuedAt := ts.nowFunc()

	if err := ts.store.SetCSRFToken(ctx, session.ID, token, issuedAt); err != nil {
		return "", fmt.Errorf("failed to store csrf token: %w", err)
	}

	session.CSRFToken = &token
	session.CSRFIssuedAt = &issuedAt

	return token, nil
}

// Validate fails closed: false when no token is stored, when the stored
// token's age exceeds the lifetime, or when the candidate does not match
// under a constant-time comparison. Validation does not consume the token;
// a fresh token is issued on the next page render instead (form-scoped, not
// one-shot).
func (ts *TokenStore) Validate(session *models.Session, candidate string) bool {
	if session == nil || session.CSRFToken == nil || candidate == "" {
		return false
	}

	if session.CSRFIssuedAt == nil || ts.nowFunc().Sub(*session.CSRFIssuedAt) > ts.lifetime {
		return false
	}

	// Length leaks nothing useful here: token length is public
	if len(*session.CSRFToken) != len(candidate) {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(*session.CSRFToken), []byte(candidate)) == 1
}
