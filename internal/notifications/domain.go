// Package notifications stores one-way messages addressed to accounts and
// fans them out as email jobs.
package notifications

import (
	"time"

	"github.com/google/uuid"
)

// Type classifies the event behind a notification.
type Type string

const (
	TypeSignup     Type = "signup"
	TypeApproval   Type = "approval"
	TypeRejection  Type = "rejection"
	TypeAssignment Type = "assignment"
	TypeStatus     Type = "status"
)

// Message is the content of a notification before it is addressed.
type Message struct {
	Title   string
	Message string
	Type    Type
}

// Notification is a stored, write-once message for one account.
type Notification struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Type      Type      `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}

// Recipient is an account notifications can be addressed to.
type Recipient struct {
	ID    uuid.UUID
	Email string
	Name  string
}

// Email is handed to the Dispatcher after a notification is stored.
type Email struct {
	To      string
	Subject string
	Body    string
}
