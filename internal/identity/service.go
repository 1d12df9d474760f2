package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/brodesk/brodesk/internal/shared"
)

// Service implements Provider on top of a Repository.
type Service struct {
	repo   Repository
	logger *slog.Logger
	ttl    time.Duration
	cost   int
	now    func() time.Time

	mu        sync.RWMutex
	nextID    int
	listeners []listenerEntry
}

type listenerEntry struct {
	id int
	fn Listener
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithHashCost overrides the bcrypt cost.
func WithHashCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

// NewService constructs a new Service issuing sessions valid for ttl.
func NewService(repo Repository, logger *slog.Logger, ttl time.Duration, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		repo:   repo,
		logger: logger,
		ttl:    ttl,
		cost:   bcrypt.DefaultCost,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SignUp creates an identity and signs it in.
func (s *Service) SignUp(ctx context.Context, email, password string, metadata map[string]string) (*SignUpResult, error) {
	email = normaliseEmail(email)
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("identity: hash password: %w", err)
	}
	id, err := s.repo.CreateIdentity(ctx, email, string(hash), metadata)
	if err != nil {
		return nil, err
	}
	sess, err := s.openSession(ctx, id, Client{})
	if err != nil {
		// The email must stay free for a retry.
		if delErr := s.repo.DeleteIdentity(ctx, id); delErr != nil {
			s.logger.Error("discard identity", slog.String("user_id", id.String()), slog.Any("error", delErr))
		}
		return nil, err
	}
	return &SignUpResult{UserID: id, Session: sess}, nil
}

// SignIn validates email/password credentials and opens a session.
func (s *Service) SignIn(ctx context.Context, email, password string, client Client) (*Session, error) {
	ident, err := s.repo.FindByEmail(ctx, normaliseEmail(email))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(ident.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return s.openSession(ctx, ident.ID, client)
}

// SignOut ends a session. Unknown sessions are ignored.
func (s *Service) SignOut(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	sess, err := s.repo.FindSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil
		}
		return err
	}
	if err := s.repo.DeleteSession(ctx, sessionID); err != nil {
		return err
	}
	return s.emit(ctx, Event{Kind: EventSignedOut, Session: *sess})
}

// Refresh extends a live session. Expired sessions are removed and reported
// as unauthorized.
func (s *Service) Refresh(ctx context.Context, sessionID string) (*Session, error) {
	sess, err := s.repo.FindSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrUnauthorized
		}
		return nil, err
	}
	now := s.now()
	if !sess.ExpiresAt.After(now) {
		if err := s.SignOut(ctx, sessionID); err != nil {
			s.logger.Warn("sign out expired session", slog.Any("error", err))
		}
		return nil, shared.ErrUnauthorized
	}
	sess.ExpiresAt = now.Add(s.ttl)
	if err := s.repo.ExtendSession(ctx, sessionID, sess.ExpiresAt); err != nil {
		return nil, err
	}
	if err := s.emit(ctx, Event{Kind: EventRefreshed, Session: *sess}); err != nil {
		return nil, err
	}
	return sess, nil
}

// DeleteIdentity removes an identity and all of its sessions.
func (s *Service) DeleteIdentity(ctx context.Context, userID uuid.UUID) error {
	return s.repo.DeleteIdentity(ctx, userID)
}

// OnSessionChange registers listener and returns a function removing it.
func (s *Service) OnSessionChange(listener Listener) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, listenerEntry{id: id, fn: listener})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, entry := range s.listeners {
				if entry.id == id {
					s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

func (s *Service) openSession(ctx context.Context, userID uuid.UUID, client Client) (*Session, error) {
	sess := Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		ExpiresAt: s.now().Add(s.ttl),
		IP:        client.IP,
		UserAgent: client.UserAgent,
	}
	if err := s.repo.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	if err := s.emit(ctx, Event{Kind: EventSignedIn, Session: sess}); err != nil {
		if delErr := s.repo.DeleteSession(ctx, sess.ID); delErr != nil {
			s.logger.Warn("discard session", slog.Any("error", delErr))
		}
		return nil, err
	}
	return &sess, nil
}

func (s *Service) emit(ctx context.Context, ev Event) error {
	s.mu.RLock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, entry := range s.listeners {
		listeners = append(listeners, entry.fn)
	}
	s.mu.RUnlock()

	var errs []error
	for _, fn := range listeners {
		if err := fn(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var _ Provider = (*Service)(nil)
