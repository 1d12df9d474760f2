package identity

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brodesk/brodesk/internal/shared"
)

// MemoryRepository is an in-process Repository used by tests and local tooling.
type MemoryRepository struct {
	mu         sync.Mutex
	identities map[uuid.UUID]Identity
	sessions   map[string]Session
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		identities: make(map[uuid.UUID]Identity),
		sessions:   make(map[string]Session),
	}
}

func (m *MemoryRepository) CreateIdentity(_ context.Context, email, passwordHash string, metadata map[string]string) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ident := range m.identities {
		if ident.Email == email {
			return uuid.Nil, ErrEmailTaken
		}
	}
	id := uuid.New()
	m.identities[id] = Identity{ID: id, Email: email, PasswordHash: passwordHash, Metadata: metadata, CreatedAt: time.Now()}
	return id, nil
}

func (m *MemoryRepository) FindByEmail(_ context.Context, email string) (*Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ident := range m.identities {
		if ident.Email == email {
			found := ident
			return &found, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *MemoryRepository) DeleteIdentity(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.identities[id]; !ok {
		return shared.ErrNotFound
	}
	delete(m.identities, id)
	for sid, sess := range m.sessions {
		if sess.UserID == id {
			delete(m.sessions, sid)
		}
	}
	return nil
}

func (m *MemoryRepository) CreateSession(_ context.Context, sess Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.ID] = sess
	return nil
}

func (m *MemoryRepository) FindSession(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &sess, nil
}

func (m *MemoryRepository) ExtendSession(_ context.Context, id string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return shared.ErrNotFound
	}
	sess.ExpiresAt = expiresAt
	m.sessions[id] = sess
	return nil
}

func (m *MemoryRepository) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// Identities reports how many identities are stored.
func (m *MemoryRepository) Identities() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.identities)
}

// Sessions reports how many sessions are stored.
func (m *MemoryRepository) Sessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

var _ Repository = (*MemoryRepository)(nil)
