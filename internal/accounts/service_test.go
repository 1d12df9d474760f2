package accounts_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/brodesk/brodesk/internal/accounts"
	"github.com/brodesk/brodesk/internal/identity"
	"github.com/brodesk/brodesk/internal/notifications"
	"github.com/brodesk/brodesk/internal/shared"
	_ "github.com/brodesk/brodesk/testing"
)

type memRepo struct {
	mu            sync.Mutex
	accounts      map[uuid.UUID]accounts.Account
	failRole      bool
	deleted       []uuid.UUID
	transitionHit func()
}

func newMemRepo() *memRepo {
	return &memRepo{accounts: map[uuid.UUID]accounts.Account{}}
}

func (m *memRepo) InsertProfile(_ context.Context, id uuid.UUID, p accounts.Profile, status accounts.ApprovalStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.Email == p.Email {
			return shared.ErrDuplicate
		}
	}
	now := time.Now()
	m.accounts[id] = accounts.Account{ID: id, ApprovalStatus: status, Profile: p, CreatedAt: now, UpdatedAt: now}
	return nil
}

func (m *memRepo) DeleteProfile(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.accounts, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *memRepo) InsertRole(_ context.Context, id uuid.UUID, role shared.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failRole {
		return &shared.StoreError{Op: "insert role", Err: errors.New("connection reset")}
	}
	a := m.accounts[id]
	a.Role = role
	m.accounts[id] = a
	return nil
}

func (m *memRepo) Get(_ context.Context, id uuid.UUID) (accounts.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return accounts.Account{}, shared.ErrNotFound
	}
	return a, nil
}

func (m *memRepo) FindByEmail(_ context.Context, email string) (accounts.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.Email == email {
			return a, nil
		}
	}
	return accounts.Account{}, shared.ErrNotFound
}

func (m *memRepo) TransitionStatus(_ context.Context, id uuid.UUID, from, to accounts.ApprovalStatus) (bool, error) {
	if m.transitionHit != nil {
		m.transitionHit()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok || a.ApprovalStatus != from {
		return false, nil
	}
	a.ApprovalStatus = to
	m.accounts[id] = a
	return true, nil
}

func (m *memRepo) List(_ context.Context, f accounts.ListFilter) ([]accounts.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []accounts.Account
	for _, a := range m.accounts {
		if f.Status != "" && a.ApprovalStatus != f.Status {
			continue
		}
		if f.Role != "" && a.Role != f.Role {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memRepo) CountAccounts(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.accounts), nil
}

func (m *memRepo) set(id uuid.UUID, status accounts.ApprovalStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.accounts[id]
	a.ApprovalStatus = status
	m.accounts[id] = a
}

type sentNotification struct {
	to  uuid.UUID
	msg notifications.Message
}

type recordingNotifier struct {
	mu     sync.Mutex
	direct []sentNotification
	admins []notifications.Message
}

func (n *recordingNotifier) Notify(_ context.Context, id uuid.UUID, msg notifications.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.direct = append(n.direct, sentNotification{to: id, msg: msg})
	return nil
}

func (n *recordingNotifier) NotifyAdmins(_ context.Context, msg notifications.Message) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.admins = append(n.admins, msg)
	return 1, nil
}

type recordingApprovals struct {
	logs []shared.ApprovalLog
}

func (r *recordingApprovals) Record(_ context.Context, log shared.ApprovalLog) error {
	r.logs = append(r.logs, log)
	return nil
}

type staticCounter map[uuid.UUID]int

func (c staticCounter) CountAssigned(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]int, error) {
	out := make(map[uuid.UUID]int, len(ids))
	for _, id := range ids {
		out[id] = c[id]
	}
	return out, nil
}

type fixture struct {
	svc       *accounts.Service
	repo      *memRepo
	idRepo    *identity.MemoryRepository
	identity  *identity.Service
	notifier  *recordingNotifier
	approvals *recordingApprovals
	counter   staticCounter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:      newMemRepo(),
		idRepo:    identity.NewMemoryRepository(),
		notifier:  &recordingNotifier{},
		approvals: &recordingApprovals{},
		counter:   staticCounter{},
	}
	f.identity = identity.NewService(f.idRepo, nil, time.Hour, identity.WithHashCost(bcrypt.MinCost))
	f.svc = accounts.NewService(accounts.Deps{
		Repo:      f.repo,
		Identity:  f.identity,
		Notifier:  f.notifier,
		Approvals: f.approvals,
		Counter:   f.counter,
	})
	return f
}

func studentInput() accounts.RegisterInput {
	return accounts.RegisterInput{
		Role:            "student",
		FullName:        "Asha",
		Email:           "asha@x.com",
		Phone:           "9876543210",
		Password:        "secret1",
		ConfirmPassword: "secret1",
		BatchType:       "Remote",
		BatchNumber:     "B7",
		Course:          "CS",
	}
}

func staffInput() accounts.RegisterInput {
	return accounts.RegisterInput{
		Role:     "staff",
		FullName: "Ravi",
		Email:    "ravi@x.com",
		Phone:    "9123456780",
		Password: "secret2",
		Category: "technical",
	}
}

var admin = &shared.Principal{UserID: uuid.New(), Role: shared.RoleAdmin}

func TestRegisterStudent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	acct, err := f.svc.Register(ctx, studentInput())
	require.NoError(t, err)
	assert.Equal(t, shared.RoleStudent, acct.Role)
	assert.Equal(t, accounts.StatusPending, acct.ApprovalStatus)
	assert.Equal(t, "B7", acct.BatchNumber)

	stored, err := f.repo.Get(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, accounts.StatusPending, stored.ApprovalStatus)
	assert.Equal(t, shared.RoleStudent, stored.Role)

	require.Len(t, f.notifier.admins, 1)
	assert.Equal(t, "New User Registration", f.notifier.admins[0].Title)
	assert.Equal(t, "New student registration: Asha (asha@x.com) - Pending approval", f.notifier.admins[0].Message)
	assert.Equal(t, notifications.TypeSignup, f.notifier.admins[0].Type)
	assert.Equal(t, 0, f.idRepo.Sessions(), "registration must not leave a session open")
}

func TestRegisterStaffDropsStudentFields(t *testing.T) {
	f := newFixture(t)
	in := staffInput()
	in.BatchNumber = "B1"
	in.Course = "CS"

	acct, err := f.svc.Register(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, shared.RoleStaff, acct.Role)
	assert.Empty(t, acct.BatchNumber)
	assert.Empty(t, acct.Course)
	assert.Equal(t, "technical", acct.Category)
}

func TestRegisterValidationOrder(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*accounts.RegisterInput)
		field  string
		msg    string
	}{
		{"missing name", func(in *accounts.RegisterInput) { in.FullName = " " }, "full_name", "Name is required"},
		{"short phone", func(in *accounts.RegisterInput) { in.Phone = "12345" }, "phone", "Phone number must be exactly 10 digits"},
		{"password mismatch", func(in *accounts.RegisterInput) { in.ConfirmPassword = "other1" }, "confirm_password", "Passwords do not match"},
		{"missing batch type", func(in *accounts.RegisterInput) { in.BatchType = "" }, "batch_type", "Batch type is required for students"},
		{"bad batch type", func(in *accounts.RegisterInput) { in.BatchType = "Hybrid" }, "batch_type", "Batch type must be Remote or Offline"},
		{"missing course", func(in *accounts.RegisterInput) { in.Course = "" }, "course", "Course is required for students"},
		{"bad email", func(in *accounts.RegisterInput) { in.Email = "asha@x" }, "email", "Please enter a valid email address"},
		{"short password", func(in *accounts.RegisterInput) { in.Password, in.ConfirmPassword = "abc", "abc" }, "password", "Password must be at least 6 characters"},
		{"name before phone", func(in *accounts.RegisterInput) { in.FullName, in.Phone = "", "1" }, "full_name", "Name is required"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			in := studentInput()
			tc.mutate(&in)
			_, err := f.svc.Register(context.Background(), in)
			var vErr *shared.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tc.field, vErr.Field)
			assert.Equal(t, tc.msg, vErr.Message)
			assert.Equal(t, 0, f.idRepo.Identities(), "no identity may be created on validation failure")
		})
	}
}

func TestRegisterStaffRequiresCategory(t *testing.T) {
	f := newFixture(t)
	in := staffInput()
	in.Category = ""
	_, err := f.svc.Register(context.Background(), in)
	var vErr *shared.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "Category is required for staff", vErr.Message)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Register(ctx, studentInput())
	require.NoError(t, err)

	_, err = f.svc.Register(ctx, studentInput())
	require.ErrorIs(t, err, shared.ErrConflict)
	assert.Equal(t, "User already registered", shared.UserSafeMessage(err))
}

func TestRegisterCompensatesOnRoleFailure(t *testing.T) {
	f := newFixture(t)
	f.repo.failRole = true
	ctx := context.Background()

	_, err := f.svc.Register(ctx, studentInput())
	var storeErr *shared.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "connection reset", shared.UserSafeMessage(err))

	assert.Len(t, f.repo.deleted, 1)
	assert.Equal(t, 0, f.idRepo.Identities())
	count, err := f.repo.CountAccounts(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, f.notifier.admins)

	f.repo.failRole = false
	_, err = f.svc.Register(ctx, studentInput())
	require.NoError(t, err, "compensated email must be registrable again")
}

func TestRegisterRetriesAfterSessionListenerFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	failing := true
	f.identity.OnSessionChange(func(_ context.Context, ev identity.Event) error {
		if failing && ev.Kind == identity.EventSignedIn {
			return errors.New("redis: connection refused")
		}
		return nil
	})

	_, err := f.svc.Register(ctx, studentInput())
	require.Error(t, err)
	assert.Equal(t, 0, f.idRepo.Identities())
	assert.Empty(t, f.notifier.admins)

	failing = false
	_, err = f.svc.Register(ctx, studentInput())
	require.NoError(t, err, "email must be registrable after a failed sign-up")
}

func TestAuthenticateGatesOnApproval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acct, err := f.svc.Register(ctx, studentInput())
	require.NoError(t, err)

	_, _, err = f.svc.Authenticate(ctx, "asha@x.com", "secret1", identity.Client{})
	require.ErrorIs(t, err, shared.ErrPendingApproval)
	assert.Equal(t, "Your account is pending approval by admin. Please wait for approval.", err.Error())
	assert.Equal(t, 0, f.idRepo.Sessions())

	_, _, err = f.svc.Authenticate(ctx, "asha@x.com", "wrong!", identity.Client{})
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, err = f.svc.DecideApproval(ctx, admin, acct.ID, accounts.StatusApproved)
	require.NoError(t, err)

	sess, got, err := f.svc.Authenticate(ctx, "asha@x.com", "secret1", identity.Client{})
	require.NoError(t, err)
	assert.Equal(t, acct.ID, sess.UserID)
	assert.Equal(t, accounts.StatusApproved, got.ApprovalStatus)
	assert.Equal(t, 1, f.idRepo.Sessions())
}

func TestAuthenticateRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acct, err := f.svc.Register(ctx, staffInput())
	require.NoError(t, err)
	_, err = f.svc.DecideApproval(ctx, admin, acct.ID, accounts.StatusRejected)
	require.NoError(t, err)

	_, _, err = f.svc.Authenticate(ctx, "ravi@x.com", "secret2", identity.Client{})
	require.ErrorIs(t, err, shared.ErrRejected)
	assert.Equal(t, 0, f.idRepo.Sessions())
}

func TestAuthenticateMissingProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.identity.SignUp(ctx, "ghost@x.com", "secret1", nil)
	require.NoError(t, err)
	require.NoError(t, f.identity.SignOut(ctx, res.Session.ID))

	_, _, err = f.svc.Authenticate(ctx, "ghost@x.com", "secret1", identity.Client{})
	var storeErr *shared.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.NotErrorIs(t, err, shared.ErrNotFound)
	assert.Equal(t, 0, f.idRepo.Sessions())
}

func TestDecideApproval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acct, err := f.svc.Register(ctx, staffInput())
	require.NoError(t, err)

	got, err := f.svc.DecideApproval(ctx, admin, acct.ID, accounts.StatusApproved)
	require.NoError(t, err)
	assert.Equal(t, accounts.StatusApproved, got.ApprovalStatus)

	require.Len(t, f.notifier.direct, 1)
	assert.Equal(t, acct.ID, f.notifier.direct[0].to)
	assert.Equal(t, "Account Approved", f.notifier.direct[0].msg.Title)
	assert.Equal(t, "Your staff account has been approved by admin. You can now login.", f.notifier.direct[0].msg.Message)
	require.Len(t, f.approvals.logs, 1)
	assert.Equal(t, shared.ApprovalApprove, f.approvals.logs[0].Action)
	assert.Equal(t, admin.UserID, f.approvals.logs[0].ActorID)

	again, err := f.svc.DecideApproval(ctx, admin, acct.ID, accounts.StatusApproved)
	require.NoError(t, err, "repeating a decision is a no-op")
	assert.Equal(t, accounts.StatusApproved, again.ApprovalStatus)
	assert.Len(t, f.notifier.direct, 1)

	_, err = f.svc.DecideApproval(ctx, admin, acct.ID, accounts.StatusRejected)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestDecideApprovalGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acct, err := f.svc.Register(ctx, studentInput())
	require.NoError(t, err)

	staff := &shared.Principal{UserID: uuid.New(), Role: shared.RoleStaff}
	_, err = f.svc.DecideApproval(ctx, staff, acct.ID, accounts.StatusApproved)
	assert.ErrorIs(t, err, shared.ErrForbidden)

	_, err = f.svc.DecideApproval(ctx, nil, acct.ID, accounts.StatusApproved)
	assert.ErrorIs(t, err, shared.ErrForbidden)

	_, err = f.svc.DecideApproval(ctx, admin, acct.ID, accounts.StatusPending)
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.DecideApproval(ctx, admin, uuid.New(), accounts.StatusApproved)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDecideApprovalLosesRace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acct, err := f.svc.Register(ctx, studentInput())
	require.NoError(t, err)

	f.repo.transitionHit = func() { f.repo.set(acct.ID, accounts.StatusRejected) }
	_, err = f.svc.DecideApproval(ctx, admin, acct.ID, accounts.StatusApproved)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)
	assert.Empty(t, f.notifier.direct)
}

func TestBootstrapAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seed := accounts.AdminSeed{Email: "Admin@Gmail.com", Password: "admin123", FullName: "Admin User", Phone: "1234567890"}

	acct, created, err := f.svc.BootstrapAdmin(ctx, seed)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, shared.RoleAdmin, acct.Role)
	assert.Equal(t, accounts.StatusApproved, acct.ApprovalStatus)
	assert.Equal(t, "admin@gmail.com", acct.Email)

	again, created, err := f.svc.BootstrapAdmin(ctx, seed)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, acct.ID, again.ID)

	sess, _, err := f.svc.Authenticate(ctx, "admin@gmail.com", "admin123", identity.Client{})
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)

	p, err := f.svc.ResolvePrincipal(ctx, acct.ID)
	require.NoError(t, err)
	assert.True(t, p.IsAdmin())
}

func TestBootstrapAdminRefusesForeignAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Register(ctx, studentInput())
	require.NoError(t, err)

	_, _, err = f.svc.BootstrapAdmin(ctx, accounts.AdminSeed{Email: "asha@x.com", Password: "admin123"})
	assert.ErrorIs(t, err, shared.ErrDuplicate)

	_, _, err = f.svc.BootstrapAdmin(ctx, accounts.AdminSeed{Email: "root@x.com", Password: "123"})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestResolvePrincipalRequiresApproval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acct, err := f.svc.Register(ctx, studentInput())
	require.NoError(t, err)

	_, err = f.svc.ResolvePrincipal(ctx, acct.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	_, err = f.svc.DecideApproval(ctx, admin, acct.ID, accounts.StatusApproved)
	require.NoError(t, err)
	p, err := f.svc.ResolvePrincipal(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, shared.RoleStudent, p.Role)
	assert.Equal(t, "Asha", p.Name)
}

func TestListStaffCountsAssignments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ravi, err := f.svc.Register(ctx, staffInput())
	require.NoError(t, err)
	_, err = f.svc.Register(ctx, studentInput())
	require.NoError(t, err)
	f.counter[ravi.ID] = 3

	staff, err := f.svc.ListStaff(ctx)
	require.NoError(t, err)
	require.Len(t, staff, 1)
	assert.Equal(t, 3, staff[0].AssignedComplaints)

	approved, err := f.svc.ApprovedStaff(ctx)
	require.NoError(t, err)
	assert.Empty(t, approved)

	_, err = f.svc.ListAccounts(ctx, "archived")
	assert.ErrorIs(t, err, shared.ErrValidation)
	pending, err := f.svc.ListAccounts(ctx, accounts.StatusPending)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}
