package security

import (
	"context"
	"time"

	"github.com/rmvisser/gatehouse/internal/models"
)

// memSessionStore is an in-memory SessionStore for tests
type memSessionStore struct {
	sessions map[string]*models.Session
	getErr   error
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{sessions: make(map[string]*models.Session)}
}

func (m *memSessionStore) Get(_ context.Context, id string) (*models.Session, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	s, ok := m.sessions[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	clone := *s
	return &clone, nil
}

func (m *memSessionStore) Create(_ context.Context, session *models.Session) error {
	clone := *session
	m.sessions[session.ID] = &clone
	return nil
}

func (m *memSessionStore) Touch(_ context.Context, id string, at time.Time) error {
	s, ok := m.sessions[id]
	if !ok {
		return models.ErrNotFound
	}
	s.LastSeenAt = at
	return nil
}

func (m *memSessionStore) RotateID(_ context.Context, oldID, newID string, createdAt time.Time) error {
	s, ok := m.sessions[oldID]
	if !ok {
		return models.ErrNotFound
	}
	delete(m.sessions, oldID)
	s.ID = newID
	s.CreatedAt = createdAt
	m.sessions[newID] = s
	return nil
}

func (m *memSessionStore) SetCSRFToken(_ context.Context, sessionID, token string, issuedAt time.Time) error {
	s, ok := m.sessions[sessionID]
	if !ok {
		return models.ErrNotFound
	}
	s.CSRFToken = &token
	s.CSRFIssuedAt = &issuedAt
	return nil
}

func (m *memSessionStore) SetAuthenticated(_ context.Context, sessionID, adminID, username string) error {
	s, ok := m.sessions[sessionID]
	if !ok {
		return models.ErrNotFound
	}
	s.Authenticated = true
	s.AdminID = &adminID
	s.AdminUsername = &username
	return nil
}

func (m *memSessionStore) Delete(_ context.Context, id string) error {
	delete(m.sessions, id)
	return nil
}
