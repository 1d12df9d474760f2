// Package identity issues credentials and sessions for BroDesk accounts.
package identity

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/brodesk/brodesk/internal/shared"
)

// ErrEmailTaken is returned by SignUp when the email already has an identity.
var ErrEmailTaken = shared.NewConflict("User already registered")

// Identity is a credential record.
type Identity struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	Metadata     map[string]string
	CreatedAt    time.Time
}

// Session is a signed-in identity.
type Session struct {
	ID        string    `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	IP        string    `json:"-"`
	UserAgent string    `json:"-"`
}

// Client describes where a sign-in came from.
type Client struct {
	IP        string
	UserAgent string
}

// SignUpResult is returned by a successful SignUp.
type SignUpResult struct {
	UserID  uuid.UUID
	Session *Session
}

// EventKind identifies a session state change.
type EventKind string

const (
	EventSignedIn  EventKind = "signed_in"
	EventSignedOut EventKind = "signed_out"
	EventRefreshed EventKind = "refreshed"
)

// Event is delivered to session-change listeners.
type Event struct {
	Kind    EventKind
	Session Session
}

// Listener observes session changes. Listeners run synchronously inside the
// operation that caused the change.
type Listener func(ctx context.Context, ev Event) error

// Provider is the identity capability used by the rest of the service.
type Provider interface {
	SignUp(ctx context.Context, email, password string, metadata map[string]string) (*SignUpResult, error)
	SignIn(ctx context.Context, email, password string, client Client) (*Session, error)
	SignOut(ctx context.Context, sessionID string) error
	Refresh(ctx context.Context, sessionID string) (*Session, error)
	DeleteIdentity(ctx context.Context, userID uuid.UUID) error
	OnSessionChange(listener Listener) (unsubscribe func())
}
