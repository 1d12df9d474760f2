package identity_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/brodesk/brodesk/internal/identity"
	"github.com/brodesk/brodesk/internal/shared"
	_ "github.com/brodesk/brodesk/testing"
)

func newService(t *testing.T) (*identity.Service, *identity.MemoryRepository, *time.Time) {
	t.Helper()
	repo := identity.NewMemoryRepository()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc := identity.NewService(repo, nil, time.Hour,
		identity.WithHashCost(bcrypt.MinCost),
		identity.WithClock(func() time.Time { return now }),
	)
	return svc, repo, &now
}

func TestSignUpAndSignIn(t *testing.T) {
	svc, repo, _ := newService(t)
	ctx := context.Background()

	res, err := svc.SignUp(ctx, " Asha@X.com ", "secret1", map[string]string{"role": "student"})
	require.NoError(t, err)
	require.NotNil(t, res.Session)
	assert.Equal(t, res.UserID, res.Session.UserID)

	sess, err := svc.SignIn(ctx, "asha@x.com", "secret1", identity.Client{IP: "10.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, res.UserID, sess.UserID)
	assert.Equal(t, 2, repo.Sessions())

	_, err = svc.SignIn(ctx, "asha@x.com", "wrong", identity.Client{})
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, err = svc.SignIn(ctx, "nobody@x.com", "secret1", identity.Client{})
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestSignUpDuplicateEmail(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	_, err := svc.SignUp(ctx, "asha@x.com", "secret1", nil)
	require.NoError(t, err)
	_, err = svc.SignUp(ctx, "asha@x.com", "secret2", nil)
	assert.ErrorIs(t, err, shared.ErrConflict)
}

func TestSessionChangeListeners(t *testing.T) {
	svc, _, now := newService(t)
	ctx := context.Background()

	var kinds []identity.EventKind
	unsubscribe := svc.OnSessionChange(func(_ context.Context, ev identity.Event) error {
		kinds = append(kinds, ev.Kind)
		return nil
	})

	res, err := svc.SignUp(ctx, "asha@x.com", "secret1", nil)
	require.NoError(t, err)

	*now = now.Add(30 * time.Minute)
	refreshed, err := svc.Refresh(ctx, res.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), refreshed.ExpiresAt)

	require.NoError(t, svc.SignOut(ctx, res.Session.ID))
	require.NoError(t, svc.SignOut(ctx, res.Session.ID))

	unsubscribe()
	_, err = svc.SignIn(ctx, "asha@x.com", "secret1", identity.Client{})
	require.NoError(t, err)

	assert.Equal(t, []identity.EventKind{identity.EventSignedIn, identity.EventRefreshed, identity.EventSignedOut}, kinds)
}

func TestRefreshExpiredSession(t *testing.T) {
	svc, repo, now := newService(t)
	ctx := context.Background()

	res, err := svc.SignUp(ctx, "asha@x.com", "secret1", nil)
	require.NoError(t, err)

	*now = now.Add(2 * time.Hour)
	_, err = svc.Refresh(ctx, res.Session.ID)
	assert.ErrorIs(t, err, shared.ErrUnauthorized)
	assert.Equal(t, 0, repo.Sessions())
}

func TestListenerFailureDiscardsSession(t *testing.T) {
	svc, repo, _ := newService(t)
	ctx := context.Background()

	_, err := svc.SignUp(ctx, "asha@x.com", "secret1", nil)
	require.NoError(t, err)

	boom := errors.New("cache unavailable")
	svc.OnSessionChange(func(context.Context, identity.Event) error { return boom })

	before := repo.Sessions()
	_, err = svc.SignIn(ctx, "asha@x.com", "secret1", identity.Client{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, before, repo.Sessions())
}

func TestSignUpListenerFailureDiscardsIdentity(t *testing.T) {
	svc, repo, _ := newService(t)
	ctx := context.Background()

	boom := errors.New("redis: connection refused")
	failing := true
	svc.OnSessionChange(func(_ context.Context, ev identity.Event) error {
		if failing && ev.Kind == identity.EventSignedIn {
			return boom
		}
		return nil
	})

	_, err := svc.SignUp(ctx, "asha@x.com", "secret1", nil)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, repo.Identities())
	assert.Equal(t, 0, repo.Sessions())

	failing = false
	res, err := svc.SignUp(ctx, "asha@x.com", "secret1", nil)
	require.NoError(t, err)
	assert.NotNil(t, res.Session)
	assert.Equal(t, 1, repo.Identities())
}

func TestDeleteIdentityRemovesSessions(t *testing.T) {
	svc, repo, _ := newService(t)
	ctx := context.Background()

	res, err := svc.SignUp(ctx, "asha@x.com", "secret1", nil)
	require.NoError(t, err)
	require.NoError(t, svc.DeleteIdentity(ctx, res.UserID))
	assert.Equal(t, 0, repo.Identities())
	assert.Equal(t, 0, repo.Sessions())
	assert.ErrorIs(t, svc.DeleteIdentity(ctx, res.UserID), shared.ErrNotFound)
}
