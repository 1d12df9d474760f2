package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/brodesk/brodesk/internal/identity"
	"github.com/brodesk/brodesk/internal/notifications"
	"github.com/brodesk/brodesk/internal/observability"
	"github.com/brodesk/brodesk/internal/shared"
)

const approvalModule = "accounts"

// Notifier is the subset of the notifications service used here.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, msg notifications.Message) error
	NotifyAdmins(ctx context.Context, msg notifications.Message) (int, error)
}

// ApprovalRecorder persists admin decisions.
type ApprovalRecorder interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
}

// AssignmentCounter reports how many complaints each staff id carries.
type AssignmentCounter interface {
	CountAssigned(ctx context.Context, staffIDs []uuid.UUID) (map[uuid.UUID]int, error)
}

// Service implements registration, sign-in gating and admin approval.
type Service struct {
	repo      Repository
	identity  identity.Provider
	notifier  Notifier
	approvals ApprovalRecorder
	counter   AssignmentCounter
	validate  *validator.Validate
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// Deps groups Service collaborators.
type Deps struct {
	Repo      Repository
	Identity  identity.Provider
	Notifier  Notifier
	Approvals ApprovalRecorder
	Counter   AssignmentCounter
	Metrics   *observability.Metrics
	Logger    *slog.Logger
}

// NewService constructs a Service.
func NewService(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      deps.Repo,
		identity:  deps.Identity,
		notifier:  deps.Notifier,
		approvals: deps.Approvals,
		counter:   deps.Counter,
		validate:  NewValidator(),
		metrics:   deps.Metrics,
		logger:    logger,
	}
}

// Register creates a pending student or staff account. Each write after the
// identity sign-up is compensated if a later step fails.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Account, error) {
	in = normaliseRegistration(in)
	if err := validateRegistration(s.validate, in); err != nil {
		return Account{}, err
	}
	role := shared.Role(in.Role)
	profile := Profile{
		FullName:       in.FullName,
		Email:          in.Email,
		Phone:          in.Phone,
		BatchType:      in.BatchType,
		BatchNumber:    in.BatchNumber,
		Course:         in.Course,
		StudentID:      in.StudentID,
		Category:       in.Category,
		Specialization: in.Specialization,
	}
	if role == shared.RoleStaff {
		profile.BatchType, profile.BatchNumber, profile.Course, profile.StudentID = "", "", "", ""
	} else {
		profile.Category, profile.Specialization = "", ""
	}

	signup, err := s.identity.SignUp(ctx, in.Email, in.Password, map[string]string{
		"full_name":    in.FullName,
		"phone_number": in.Phone,
		"role":         in.Role,
	})
	if err != nil {
		return Account{}, fmt.Errorf("register: %w", err)
	}
	logger := s.logger.With(slog.String("user_id", signup.UserID.String()), slog.String("role", in.Role))

	if err := s.repo.InsertProfile(ctx, signup.UserID, profile, StatusPending); err != nil {
		logger.Error("insert profile", slog.Any("error", err))
		s.compensate(ctx, logger, signup.UserID, false)
		return Account{}, fmt.Errorf("register: %w", err)
	}
	if err := s.repo.InsertRole(ctx, signup.UserID, role); err != nil {
		logger.Error("insert role", slog.Any("error", err))
		s.compensate(ctx, logger, signup.UserID, true)
		return Account{}, fmt.Errorf("register: %w", err)
	}

	if _, err := s.notifier.NotifyAdmins(ctx, notifications.Message{
		Title:   "New User Registration",
		Message: fmt.Sprintf("New %s registration: %s (%s) - Pending approval", role, in.FullName, in.Email),
		Type:    notifications.TypeSignup,
	}); err != nil {
		logger.Warn("notify admins of registration", slog.Any("error", err))
	}

	if signup.Session != nil {
		if err := s.identity.SignOut(ctx, signup.Session.ID); err != nil {
			logger.Warn("sign out after registration", slog.Any("error", err))
		}
	}

	s.metrics.RecordRegistration(string(role))
	logger.Info("account registered")
	return Account{
		ID:             signup.UserID,
		Role:           role,
		ApprovalStatus: StatusPending,
		Profile:        profile,
	}, nil
}

func (s *Service) compensate(ctx context.Context, logger *slog.Logger, id uuid.UUID, profileWritten bool) {
	if profileWritten {
		if err := s.repo.DeleteProfile(ctx, id); err != nil {
			logger.Error("compensate profile", slog.Any("error", err))
		}
	}
	if err := s.identity.DeleteIdentity(ctx, id); err != nil {
		logger.Error("compensate identity", slog.Any("error", err))
	}
}

// Authenticate signs in and keeps the session only for approved accounts.
func (s *Service) Authenticate(ctx context.Context, email, password string, client identity.Client) (*identity.Session, Account, error) {
	sess, err := s.identity.SignIn(ctx, email, password, client)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidCredentials) {
			s.metrics.RecordLogin("invalid_credentials")
		}
		return nil, Account{}, err
	}

	acct, err := s.repo.Get(ctx, sess.UserID)
	if err != nil {
		s.signOut(ctx, sess.ID)
		s.metrics.RecordLogin("error")
		if errors.Is(err, shared.ErrNotFound) {
			err = &shared.StoreError{Op: "load account", Err: errors.New("account profile not found")}
		}
		return nil, Account{}, shared.WrapStore("load account", err)
	}

	switch acct.ApprovalStatus {
	case StatusApproved:
		s.metrics.RecordLogin("success")
		return sess, acct, nil
	case StatusRejected:
		s.signOut(ctx, sess.ID)
		s.metrics.RecordLogin("rejected")
		return nil, Account{}, shared.ErrRejected
	default:
		s.signOut(ctx, sess.ID)
		s.metrics.RecordLogin("pending")
		return nil, Account{}, shared.ErrPendingApproval
	}
}

func (s *Service) signOut(ctx context.Context, sessionID string) {
	if err := s.identity.SignOut(ctx, sessionID); err != nil {
		s.logger.Warn("sign out", slog.Any("error", err))
	}
}

// DecideApproval applies an admin decision to a pending account. Repeating the
// decision already in effect is a no-op.
func (s *Service) DecideApproval(ctx context.Context, actor *shared.Principal, accountID uuid.UUID, outcome ApprovalStatus) (Account, error) {
	if !actor.IsAdmin() {
		return Account{}, shared.ErrForbidden
	}
	if _, err := ParseDecision(string(outcome)); err != nil {
		return Account{}, err
	}
	acct, err := s.repo.Get(ctx, accountID)
	if err != nil {
		return Account{}, err
	}
	if acct.ApprovalStatus == outcome {
		return acct, nil
	}
	if acct.ApprovalStatus != StatusPending {
		return Account{}, shared.ErrInvalidTransition
	}

	changed, err := s.repo.TransitionStatus(ctx, accountID, StatusPending, outcome)
	if err != nil {
		return Account{}, err
	}
	if !changed {
		// Another decision landed between the read and the update.
		current, err := s.repo.Get(ctx, accountID)
		if err != nil {
			return Account{}, err
		}
		if current.ApprovalStatus == outcome {
			return current, nil
		}
		return Account{}, shared.ErrInvalidTransition
	}
	acct.ApprovalStatus = outcome

	logger := s.logger.With(slog.String("account_id", accountID.String()), slog.String("outcome", string(outcome)))
	if err := s.notifier.Notify(ctx, accountID, decisionMessage(acct.Role, outcome)); err != nil {
		logger.Warn("notify approval decision", slog.Any("error", err))
	}
	action := shared.ApprovalApprove
	if outcome == StatusRejected {
		action = shared.ApprovalReject
	}
	if s.approvals != nil {
		if err := s.approvals.Record(ctx, shared.ApprovalLog{
			Module:  approvalModule,
			RefID:   accountID,
			ActorID: actor.UserID,
			Action:  action,
		}); err != nil {
			logger.Warn("record approval", slog.Any("error", err))
		}
	}
	s.metrics.RecordApproval(string(outcome))
	logger.Info("approval decided")
	return acct, nil
}

func decisionMessage(role shared.Role, outcome ApprovalStatus) notifications.Message {
	subject := "Your account"
	if role == shared.RoleStaff {
		subject = "Your staff account"
	}
	if outcome == StatusApproved {
		return notifications.Message{
			Title:   "Account Approved",
			Message: subject + " has been approved by admin. You can now login.",
			Type:    notifications.TypeApproval,
		}
	}
	return notifications.Message{
		Title:   "Account Rejected",
		Message: subject + " registration has been rejected by admin.",
		Type:    notifications.TypeRejection,
	}
}

// BootstrapAdmin provisions the approved admin account described by seed.
// It returns the existing account when the email is already registered.
func (s *Service) BootstrapAdmin(ctx context.Context, seed AdminSeed) (Account, bool, error) {
	seed.Email = strings.ToLower(strings.TrimSpace(seed.Email))
	if !emailPattern.MatchString(seed.Email) {
		return Account{}, false, shared.NewValidationError("email", "Please enter a valid email address")
	}
	if len(seed.Password) < 6 {
		return Account{}, false, shared.NewValidationError("password", "Password must be at least 6 characters")
	}
	existing, err := s.repo.FindByEmail(ctx, seed.Email)
	if err == nil {
		if existing.Role != shared.RoleAdmin {
			return Account{}, false, fmt.Errorf("bootstrap admin: %s belongs to a %s account: %w", seed.Email, existing.Role, shared.ErrDuplicate)
		}
		return existing, false, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return Account{}, false, err
	}

	signup, err := s.identity.SignUp(ctx, seed.Email, seed.Password, map[string]string{
		"full_name":    seed.FullName,
		"phone_number": seed.Phone,
		"role":         string(shared.RoleAdmin),
	})
	if err != nil {
		return Account{}, false, fmt.Errorf("bootstrap admin: %w", err)
	}
	logger := s.logger.With(slog.String("user_id", signup.UserID.String()))
	if err := s.repo.InsertProfile(ctx, signup.UserID, Profile{
		FullName: seed.FullName,
		Email:    seed.Email,
		Phone:    seed.Phone,
	}, StatusApproved); err != nil {
		s.compensate(ctx, logger, signup.UserID, false)
		return Account{}, false, fmt.Errorf("bootstrap admin: %w", err)
	}
	if err := s.repo.InsertRole(ctx, signup.UserID, shared.RoleAdmin); err != nil {
		s.compensate(ctx, logger, signup.UserID, true)
		return Account{}, false, fmt.Errorf("bootstrap admin: %w", err)
	}
	if signup.Session != nil {
		s.signOut(ctx, signup.Session.ID)
	}
	acct, err := s.repo.Get(ctx, signup.UserID)
	if err != nil {
		return Account{}, false, err
	}
	logger.Info("admin account created")
	return acct, true, nil
}

// Account returns a single account.
func (s *Service) Account(ctx context.Context, id uuid.UUID) (Account, error) {
	return s.repo.Get(ctx, id)
}

// ListAccounts lists accounts in the given status, newest first. An empty
// status lists every account.
func (s *Service) ListAccounts(ctx context.Context, status ApprovalStatus) ([]Account, error) {
	switch status {
	case "", StatusPending, StatusApproved, StatusRejected:
	default:
		return nil, shared.NewValidationError("status", "Status must be pending, approved or rejected")
	}
	return s.repo.List(ctx, ListFilter{Status: status})
}

// ListStaff lists staff accounts newest first with their assignment counts.
func (s *Service) ListStaff(ctx context.Context) ([]StaffMember, error) {
	staff, err := s.repo.List(ctx, ListFilter{Role: shared.RoleStaff})
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, len(staff))
	for i, a := range staff {
		ids[i] = a.ID
	}
	counts := map[uuid.UUID]int{}
	if s.counter != nil && len(ids) > 0 {
		counts, err = s.counter.CountAssigned(ctx, ids)
		if err != nil {
			return nil, err
		}
	}
	out := make([]StaffMember, len(staff))
	for i, a := range staff {
		out[i] = StaffMember{Account: a, AssignedComplaints: counts[a.ID]}
	}
	return out, nil
}

// ApprovedStaff lists staff accounts that may receive assignments.
func (s *Service) ApprovedStaff(ctx context.Context) ([]Account, error) {
	return s.repo.List(ctx, ListFilter{Status: StatusApproved, Role: shared.RoleStaff})
}

// CountAccounts returns the number of registered accounts.
func (s *Service) CountAccounts(ctx context.Context) (int, error) {
	return s.repo.CountAccounts(ctx)
}

// ResolvePrincipal builds the request principal for an approved account.
// Accounts that are missing or not approved resolve to ErrNotFound.
func (s *Service) ResolvePrincipal(ctx context.Context, userID uuid.UUID) (*shared.Principal, error) {
	acct, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if acct.ApprovalStatus != StatusApproved || !acct.Role.Valid() {
		return nil, shared.ErrNotFound
	}
	return &shared.Principal{
		UserID: acct.ID,
		Role:   acct.Role,
		Name:   acct.FullName,
		Email:  acct.Email,
	}, nil
}
