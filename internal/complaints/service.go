package complaints

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/brodesk/brodesk/internal/notifications"
	"github.com/brodesk/brodesk/internal/observability"
	"github.com/brodesk/brodesk/internal/shared"
)

// Notifier is the subset of the notifications service used here.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, msg notifications.Message) error
	NotifyAdmins(ctx context.Context, msg notifications.Message) (int, error)
}

// ProfileDirectory resolves display names for account ids.
type ProfileDirectory interface {
	DisplayNames(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error)
}

// StaffDirectory confirms an account may receive assignments.
type StaffDirectory interface {
	IsApprovedStaff(ctx context.Context, id uuid.UUID) (bool, error)
}

// CategoryCatalog confirms a category name exists.
type CategoryCatalog interface {
	Exists(ctx context.Context, name string) (bool, error)
}

// AccountCounter reports the number of registered accounts.
type AccountCounter interface {
	CountAccounts(ctx context.Context) (int, error)
}

// AuditRecorder persists complaint audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyGuard claims client supplied request keys.
type IdempotencyGuard interface {
	Claim(ctx context.Context, scope, key string) error
	Release(ctx context.Context, scope, key string) error
}

// ErrDuplicateSubmission reports a replayed submission key.
var ErrDuplicateSubmission = shared.NewConflict("Complaint already submitted")

// Deps groups Service collaborators.
type Deps struct {
	Repo        Repository
	Profiles    ProfileDirectory
	Staff       StaffDirectory
	Categories  CategoryCatalog
	Accounts    AccountCounter
	Notifier    Notifier
	Audit       AuditRecorder
	Idempotency IdempotencyGuard
	Metrics     *observability.Metrics
	Logger      *slog.Logger
}

// Service implements the complaint lifecycle.
type Service struct {
	repo       Repository
	profiles   ProfileDirectory
	staff      StaffDirectory
	categories CategoryCatalog
	accounts   AccountCounter
	notifier   Notifier
	audit      AuditRecorder
	guard      IdempotencyGuard
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewService constructs a Service.
func NewService(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:       deps.Repo,
		profiles:   deps.Profiles,
		staff:      deps.Staff,
		categories: deps.Categories,
		accounts:   deps.Accounts,
		notifier:   deps.Notifier,
		audit:      deps.Audit,
		guard:      deps.Idempotency,
		metrics:    deps.Metrics,
		logger:     logger,
	}
}

// Submit files a new pending, unassigned complaint for studentID. A non-empty
// IdempotencyKey is claimed per student so a replayed request files nothing.
func (s *Service) Submit(ctx context.Context, studentID uuid.UUID, in SubmitInput) (Complaint, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Category = strings.ToLower(strings.TrimSpace(in.Category))
	in.Priority = strings.ToLower(strings.TrimSpace(in.Priority))
	switch {
	case in.Title == "":
		return Complaint{}, shared.NewValidationError("title", "Title is required")
	case in.Description == "":
		return Complaint{}, shared.NewValidationError("description", "Description is required")
	case in.Category == "":
		return Complaint{}, shared.NewValidationError("category", "Category is required")
	case !Priority(in.Priority).Valid():
		return Complaint{}, shared.NewValidationError("priority", "Priority must be low, medium or high")
	}
	if s.categories != nil {
		ok, err := s.categories.Exists(ctx, in.Category)
		if err != nil {
			return Complaint{}, err
		}
		if !ok {
			return Complaint{}, shared.NewValidationError("category", "Please select a valid category")
		}
	}

	key := strings.TrimSpace(in.IdempotencyKey)
	scope := "complaints:" + studentID.String()
	if key != "" && s.guard != nil {
		if err := s.guard.Claim(ctx, scope, key); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return Complaint{}, ErrDuplicateSubmission
			}
			return Complaint{}, err
		}
	}

	c, err := s.repo.Insert(ctx, studentID, in)
	if err != nil {
		if key != "" && s.guard != nil {
			if relErr := s.guard.Release(ctx, scope, key); relErr != nil {
				s.logger.Warn("release idempotency key", slog.Any("error", relErr))
			}
		}
		return Complaint{}, err
	}
	s.metrics.RecordComplaint("submitted")
	s.logger.Info("complaint submitted", slog.String("complaint_id", c.ID.String()), slog.String("student_id", studentID.String()))
	return c, nil
}

// Assign hands a complaint to an approved staff member.
func (s *Service) Assign(ctx context.Context, actor *shared.Principal, complaintID, staffID uuid.UUID) (Complaint, error) {
	if !actor.IsAdmin() {
		return Complaint{}, shared.ErrForbidden
	}
	ok, err := s.staff.IsApprovedStaff(ctx, staffID)
	if err != nil {
		return Complaint{}, err
	}
	if !ok {
		return Complaint{}, shared.NewValidationError("staff_id", "Complaints can only be assigned to approved staff")
	}

	c, err := s.repo.Assign(ctx, complaintID, staffID)
	if err != nil {
		return Complaint{}, err
	}
	names, err := s.profiles.DisplayNames(ctx, []uuid.UUID{c.StudentID, staffID})
	if err != nil {
		s.logger.Warn("resolve assignment names", slog.Any("error", err))
	}
	c.StudentName = names[c.StudentID]
	c.AssigneeName = names[staffID]

	logger := s.logger.With(slog.String("complaint_id", c.ID.String()), slog.String("staff_id", staffID.String()))
	if err := s.notifier.Notify(ctx, staffID, notifications.Message{
		Title:   "New Complaint Assigned",
		Message: fmt.Sprintf("Complaint %q has been assigned to you.", c.Title),
		Type:    notifications.TypeAssignment,
	}); err != nil {
		logger.Warn("notify assignee", slog.Any("error", err))
	}
	if _, err := s.notifier.NotifyAdmins(ctx, notifications.Message{
		Title:   "Complaint Assigned",
		Message: fmt.Sprintf("Complaint %q was assigned to %s.", c.Title, displayName(c.AssigneeName)),
		Type:    notifications.TypeAssignment,
	}); err != nil {
		logger.Warn("notify admins of assignment", slog.Any("error", err))
	}
	s.record(ctx, actor, "complaint.assign", c.ID, map[string]any{"staff_id": staffID.String()})
	s.metrics.RecordComplaint("assigned")
	logger.Info("complaint assigned")
	return c, nil
}

func displayName(name string) string {
	if name == "" {
		return "a staff member"
	}
	return name
}

// ListForAssignee lists complaints assigned to staffID, newest first.
func (s *Service) ListForAssignee(ctx context.Context, staffID uuid.UUID) ([]Complaint, error) {
	return s.list(ctx, ListFilter{AssignedTo: &staffID})
}

// ListAll lists every complaint, newest first.
func (s *Service) ListAll(ctx context.Context) ([]Complaint, error) {
	return s.list(ctx, ListFilter{})
}

// ListForStudent lists complaints filed by studentID, newest first.
func (s *Service) ListForStudent(ctx context.Context, studentID uuid.UUID) ([]Complaint, error) {
	return s.list(ctx, ListFilter{StudentID: &studentID})
}

func (s *Service) list(ctx context.Context, filter ListFilter) ([]Complaint, error) {
	items, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if err := s.attachNames(ctx, items); err != nil {
		return nil, err
	}
	return items, nil
}

// attachNames fills display names with one id-list lookup merged by key.
func (s *Service) attachNames(ctx context.Context, items []Complaint) error {
	if len(items) == 0 || s.profiles == nil {
		return nil
	}
	seen := make(map[uuid.UUID]struct{}, len(items))
	ids := make([]uuid.UUID, 0, len(items))
	add := func(id uuid.UUID) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	for _, c := range items {
		add(c.StudentID)
		if c.AssignedTo != nil {
			add(*c.AssignedTo)
		}
	}
	names, err := s.profiles.DisplayNames(ctx, ids)
	if err != nil {
		return err
	}
	for i := range items {
		items[i].StudentName = names[items[i].StudentID]
		if items[i].AssignedTo != nil {
			items[i].AssigneeName = names[*items[i].AssignedTo]
		}
	}
	return nil
}

// Get returns a complaint the actor may see: admins see all, staff their
// assignments and students their own.
func (s *Service) Get(ctx context.Context, actor *shared.Principal, complaintID uuid.UUID) (Complaint, error) {
	if !actor.Authenticated() {
		return Complaint{}, shared.ErrUnauthorized
	}
	c, err := s.repo.Get(ctx, complaintID)
	if err != nil {
		return Complaint{}, err
	}
	if !canView(actor, c) {
		return Complaint{}, shared.ErrForbidden
	}
	items := []Complaint{c}
	if err := s.attachNames(ctx, items); err != nil {
		return Complaint{}, err
	}
	return items[0], nil
}

func canView(actor *shared.Principal, c Complaint) bool {
	switch actor.Role {
	case shared.RoleAdmin:
		return true
	case shared.RoleStaff:
		return c.IsAssignedTo(actor.UserID)
	case shared.RoleStudent:
		return c.StudentID == actor.UserID
	}
	return false
}

// Advance moves a complaint exactly one step forward. Only the assigned
// staff member or an admin may advance it.
func (s *Service) Advance(ctx context.Context, actor *shared.Principal, complaintID uuid.UUID, to Status) (Complaint, error) {
	if !actor.Authenticated() {
		return Complaint{}, shared.ErrUnauthorized
	}
	if !to.Valid() {
		return Complaint{}, shared.NewValidationError("status", "Status must be pending, in_progress or resolved")
	}
	c, err := s.repo.Get(ctx, complaintID)
	if err != nil {
		return Complaint{}, err
	}
	if !actor.IsAdmin() && !(actor.Role == shared.RoleStaff && c.IsAssignedTo(actor.UserID)) {
		return Complaint{}, shared.ErrForbidden
	}
	next, ok := c.Status.Next()
	if !ok || next != to {
		return Complaint{}, fmt.Errorf("advance %s to %s: %w", c.Status, to, shared.ErrInvalidTransition)
	}
	changed, err := s.repo.TransitionStatus(ctx, c.ID, c.Status, to)
	if err != nil {
		return Complaint{}, err
	}
	if !changed {
		return Complaint{}, fmt.Errorf("advance %s to %s: %w", c.Status, to, shared.ErrInvalidTransition)
	}
	from := c.Status
	c.Status = to

	logger := s.logger.With(slog.String("complaint_id", c.ID.String()), slog.String("status", string(to)))
	if err := s.notifier.Notify(ctx, c.StudentID, notifications.Message{
		Title:   "Complaint Status Updated",
		Message: fmt.Sprintf("Your complaint %q is now %s.", c.Title, to.Label()),
		Type:    notifications.TypeStatus,
	}); err != nil {
		logger.Warn("notify student of status", slog.Any("error", err))
	}
	s.record(ctx, actor, "complaint.status", c.ID, map[string]any{"from": string(from), "to": string(to)})
	s.metrics.RecordComplaint(string(to))
	logger.Info("complaint advanced")
	return c, nil
}

// Stats counts complaints by status. Staff see their assignments; admins see
// every complaint plus the number of registered accounts.
func (s *Service) Stats(ctx context.Context, actor *shared.Principal) (Stats, error) {
	switch {
	case actor.IsAdmin():
	case actor.Authenticated() && actor.Role == shared.RoleStaff:
		counts, err := s.repo.CountByStatus(ctx, ListFilter{AssignedTo: &actor.UserID})
		if err != nil {
			return Stats{}, err
		}
		return statsFrom(counts), nil
	default:
		return Stats{}, shared.ErrForbidden
	}

	var (
		counts map[Status]int
		users  int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		counts, err = s.repo.CountByStatus(gctx, ListFilter{})
		return err
	})
	g.Go(func() error {
		var err error
		users, err = s.accounts.CountAccounts(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}
	stats := statsFrom(counts)
	stats.TotalUsers = &users
	return stats, nil
}

func (s *Service) record(ctx context.Context, actor *shared.Principal, action string, id uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.UserID,
		Action:   action,
		Entity:   "complaint",
		EntityID: id.String(),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("record complaint audit", slog.String("action", action), slog.Any("error", err))
	}
}
