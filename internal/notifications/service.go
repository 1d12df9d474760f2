package notifications

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/brodesk/brodesk/internal/shared"
)

const defaultListLimit = 50

// Directory resolves who notifications go to.
type Directory interface {
	AdminRecipients(ctx context.Context) ([]Recipient, error)
	RecipientByID(ctx context.Context, id uuid.UUID) (Recipient, error)
}

// Dispatcher delivers an email for a stored notification.
type Dispatcher interface {
	DispatchEmail(ctx context.Context, email Email) error
}

// Service writes notifications and queues their emails.
type Service struct {
	repo       Repository
	directory  Directory
	dispatcher Dispatcher
	logger     *slog.Logger
}

// NewService constructs a Service. dispatcher may be nil.
func NewService(repo Repository, directory Directory, dispatcher Dispatcher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, directory: directory, dispatcher: dispatcher, logger: logger}
}

// Notify stores msg for userID and queues its email.
func (s *Service) Notify(ctx context.Context, userID uuid.UUID, msg Message) error {
	if userID == uuid.Nil {
		return shared.NewValidationError("user_id", "notification recipient required")
	}
	if _, err := s.repo.Insert(ctx, userID, msg); err != nil {
		return fmt.Errorf("notify %s: %w", userID, err)
	}
	recipient, err := s.directory.RecipientByID(ctx, userID)
	if err != nil {
		s.logger.Warn("resolve notification recipient", slog.String("user_id", userID.String()), slog.Any("error", err))
		return nil
	}
	s.dispatch(ctx, recipient, msg)
	return nil
}

// NotifyAdmins stores msg once per admin account and reports how many rows
// were written.
func (s *Service) NotifyAdmins(ctx context.Context, msg Message) (int, error) {
	admins, err := s.directory.AdminRecipients(ctx)
	if err != nil {
		return 0, fmt.Errorf("notify admins: %w", err)
	}
	if len(admins) == 0 {
		return 0, nil
	}
	ids := make([]uuid.UUID, len(admins))
	for i, admin := range admins {
		ids[i] = admin.ID
	}
	stored, err := s.repo.InsertMany(ctx, ids, msg)
	if err != nil {
		return 0, fmt.Errorf("notify admins: %w", err)
	}
	for _, admin := range admins {
		s.dispatch(ctx, admin, msg)
	}
	return len(stored), nil
}

// ListForUser returns the newest notifications addressed to userID.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID) ([]Notification, error) {
	return s.repo.ListForUser(ctx, userID, defaultListLimit)
}

func (s *Service) dispatch(ctx context.Context, to Recipient, msg Message) {
	if s.dispatcher == nil || to.Email == "" {
		return
	}
	email := Email{
		To:      to.Email,
		Subject: "BroDesk: " + msg.Title,
		Body:    fmt.Sprintf("Hi %s,\n\n%s\n\n- BroDesk", to.Name, msg.Message),
	}
	if err := s.dispatcher.DispatchEmail(ctx, email); err != nil {
		s.logger.Warn("enqueue notification email",
			slog.String("to", to.Email),
			slog.String("type", string(msg.Type)),
			slog.Any("error", err),
		)
	}
}
