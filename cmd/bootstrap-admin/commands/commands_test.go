package commands

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brodesk/brodesk/internal/accounts"
	"github.com/brodesk/brodesk/internal/shared"
)

type fakeBootstrapper struct {
	acct    accounts.Account
	created bool
	err     error
	seed    accounts.AdminSeed
}

func (f *fakeBootstrapper) BootstrapAdmin(_ context.Context, seed accounts.AdminSeed) (accounts.Account, bool, error) {
	f.seed = seed
	return f.acct, f.created, f.err
}

type fakeLister struct {
	accounts []accounts.Account
	status   accounts.ApprovalStatus
}

func (f *fakeLister) ListAccounts(_ context.Context, status accounts.ApprovalStatus) ([]accounts.Account, error) {
	f.status = status
	return f.accounts, nil
}

func adminAccount() accounts.Account {
	return accounts.Account{
		ID:             uuid.MustParse("7a4f3b8e-52c1-4b1e-9a55-1d3c8f0d2e61"),
		Role:           shared.RoleAdmin,
		ApprovalStatus: accounts.StatusApproved,
		Profile:        accounts.Profile{FullName: "Admin User", Email: "admin@gmail.com"},
	}
}

func TestRunBootstrap(t *testing.T) {
	seed := accounts.AdminSeed{Email: "admin@gmail.com", Password: "admin123", FullName: "Admin User"}

	t.Run("created", func(t *testing.T) {
		var out bytes.Buffer
		svc := &fakeBootstrapper{acct: adminAccount(), created: true}
		require.NoError(t, runBootstrap(context.Background(), &out, svc, seed))
		assert.Equal(t, seed, svc.seed)
		assert.Contains(t, out.String(), "created admin admin@gmail.com")
	})

	t.Run("existing", func(t *testing.T) {
		var out bytes.Buffer
		svc := &fakeBootstrapper{acct: adminAccount()}
		require.NoError(t, runBootstrap(context.Background(), &out, svc, seed))
		assert.Contains(t, out.String(), "already exists")
	})

	t.Run("error", func(t *testing.T) {
		var out bytes.Buffer
		svc := &fakeBootstrapper{err: shared.ErrDuplicate}
		err := runBootstrap(context.Background(), &out, svc, seed)
		assert.True(t, errors.Is(err, shared.ErrDuplicate))
		assert.Empty(t, out.String())
	})
}

func TestListPending(t *testing.T) {
	var out bytes.Buffer
	lister := &fakeLister{}
	require.NoError(t, listPending(context.Background(), &out, lister))
	assert.Equal(t, accounts.StatusPending, lister.status)
	assert.Equal(t, "no accounts awaiting approval\n", out.String())

	out.Reset()
	lister.accounts = []accounts.Account{{
		ID:             uuid.New(),
		Role:           shared.RoleStudent,
		ApprovalStatus: accounts.StatusPending,
		Profile:        accounts.Profile{FullName: "Asha Rao", Email: "asha@example.com"},
		CreatedAt:      time.Date(2026, 3, 4, 9, 30, 0, 0, time.UTC),
	}}
	require.NoError(t, listPending(context.Background(), &out, lister))
	assert.Contains(t, out.String(), "asha@example.com")
	assert.Contains(t, out.String(), "2026-03-04 09:30")
	assert.Contains(t, out.String(), "EMAIL")
}
