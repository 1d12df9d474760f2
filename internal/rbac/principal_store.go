package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/brodesk/brodesk/internal/identity"
	"github.com/brodesk/brodesk/internal/shared"
)

// Resolver turns an identity into a principal. It returns shared.ErrNotFound
// for identities that must not hold a principal.
type Resolver interface {
	ResolvePrincipal(ctx context.Context, userID uuid.UUID) (*shared.Principal, error)
}

// PrincipalStore caches the principal behind each live identity session. It
// is written only from identity session-change events.
type PrincipalStore struct {
	client   *redis.Client
	resolver Resolver
	logger   *slog.Logger
	now      func() time.Time
}

// NewPrincipalStore constructs a PrincipalStore.
func NewPrincipalStore(client *redis.Client, resolver Resolver, logger *slog.Logger) *PrincipalStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PrincipalStore{client: client, resolver: resolver, logger: logger, now: time.Now}
}

// Subscribe attaches the store to provider and returns the unsubscribe func.
func (s *PrincipalStore) Subscribe(provider identity.Provider) func() {
	return provider.OnSessionChange(s.HandleSessionChange)
}

// HandleSessionChange applies a session event.
func (s *PrincipalStore) HandleSessionChange(ctx context.Context, ev identity.Event) error {
	switch ev.Kind {
	case identity.EventSignedIn, identity.EventRefreshed:
		return s.store(ctx, ev.Session)
	case identity.EventSignedOut:
		return s.remove(ctx, ev.Session.ID)
	}
	return nil
}

// Lookup returns the principal for sessionID, or nil when none is held.
func (s *PrincipalStore) Lookup(ctx context.Context, sessionID string) (*shared.Principal, error) {
	if sessionID == "" {
		return nil, nil
	}
	raw, err := s.client.Get(ctx, key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("rbac: load principal: %w", err)
	}
	var p shared.Principal
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("rbac: decode principal: %w", err)
	}
	p.SessionID = sessionID
	return &p, nil
}

func (s *PrincipalStore) store(ctx context.Context, sess identity.Session) error {
	p, err := s.resolver.ResolvePrincipal(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return s.remove(ctx, sess.ID)
		}
		return fmt.Errorf("rbac: resolve principal: %w", err)
	}
	ttl := sess.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return s.remove(ctx, sess.ID)
	}
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, key(sess.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("rbac: store principal: %w", err)
	}
	s.logger.Debug("principal stored", slog.String("user_id", p.UserID.String()), slog.String("role", string(p.Role)))
	return nil
}

func (s *PrincipalStore) remove(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, key(sessionID)).Err(); err != nil {
		return fmt.Errorf("rbac: remove principal: %w", err)
	}
	return nil
}

func key(sessionID string) string {
	return "principal:" + sessionID
}
