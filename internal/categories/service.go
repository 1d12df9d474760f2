package categories

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/brodesk/brodesk/internal/shared"
)

// AuditRecorder persists category audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

type Service struct {
	repo   Repository
	audit  AuditRecorder
	logger *slog.Logger
}

func NewService(repo Repository, audit AuditRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger}
}

// List returns every category ordered by name.
func (s *Service) List(ctx context.Context) ([]Category, error) {
	return s.repo.List(ctx)
}

// Exists reports whether name is a known category.
func (s *Service) Exists(ctx context.Context, name string) (bool, error) {
	return s.repo.Exists(ctx, name)
}

func (s *Service) Create(ctx context.Context, actor *shared.Principal, name, description string) (Category, error) {
	if !actor.IsAdmin() {
		return Category{}, shared.ErrForbidden
	}
	name, description, err := normalise(name, description)
	if err != nil {
		return Category{}, err
	}
	c, err := s.repo.Create(ctx, name, description)
	if err != nil {
		return Category{}, err
	}
	s.record(ctx, actor, "category.create", c)
	return c, nil
}

func (s *Service) Delete(ctx context.Context, actor *shared.Principal, id uuid.UUID) error {
	if !actor.IsAdmin() {
		return shared.ErrForbidden
	}
	c, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	s.record(ctx, actor, "category.delete", c)
	return nil
}

func (s *Service) record(ctx context.Context, actor *shared.Principal, action string, c Category) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.UserID,
		Action:   action,
		Entity:   "category",
		EntityID: c.ID.String(),
		Meta:     map[string]any{"name": c.Name},
	}); err != nil {
		s.logger.Warn("record category audit", slog.String("action", action), slog.Any("error", err))
	}
}
