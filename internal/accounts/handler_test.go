package accounts_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brodesk/brodesk/internal/accounts"
	"github.com/brodesk/brodesk/internal/rbac"
	"github.com/brodesk/brodesk/internal/shared"
)

type authHarness struct {
	*fixture
	router     http.Handler
	session    *shared.Session
	principals *rbac.PrincipalStore
}

func newAuthHarness(t *testing.T) *authHarness {
	t.Helper()
	f := newFixture(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	principals := rbac.NewPrincipalStore(client, f.svc, nil)
	t.Cleanup(principals.Subscribe(f.identity))
	sessions := shared.NewSessionManager(client, "brodesk_session", 0, false)
	sess, err := sessions.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)

	mw := rbac.Middleware{Principals: principals}
	h := accounts.NewAuthHandler(nil, f.svc, f.identity, sessions, shared.NewCSRFManager("test-secret"), mw)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(shared.ContextWithSession(req.Context(), sess)))
		})
	})
	r.Use(mw.Authenticate)
	r.Route("/auth", h.MountRoutes)
	return &authHarness{fixture: f, router: r, session: sess, principals: principals}
}

func (h *authHarness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestAuthHandlerLifecycle(t *testing.T) {
	h := newAuthHarness(t)
	ctx := context.Background()

	rec := h.do(t, http.MethodPost, "/auth/register", studentInput())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody(t, rec)
	assert.Equal(t, "Account created successfully. Pending admin approval.", created["message"])

	login := map[string]string{"email": "asha@x.com", "password": "secret1"}
	rec = h.do(t, http.MethodPost, "/auth/login", login)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Your account is pending approval by admin. Please wait for approval.", decodeBody(t, rec)["detail"])
	assert.Empty(t, h.session.Get(shared.IdentitySessionKey))

	acct, err := h.repo.FindByEmail(ctx, "asha@x.com")
	require.NoError(t, err)
	_, err = h.svc.DecideApproval(ctx, admin, acct.ID, accounts.StatusApproved)
	require.NoError(t, err)

	anonymousID := h.session.ID
	rec = h.do(t, http.MethodPost, "/auth/login", login)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEqual(t, anonymousID, h.session.ID, "login must move the cookie session to a new id")
	body := decodeBody(t, rec)
	assert.Equal(t, "/student/home", body["home"])
	assert.NotEmpty(t, body["csrf_token"])
	sessionID := h.session.Get(shared.IdentitySessionKey)
	require.NotEmpty(t, sessionID)
	assert.Equal(t, acct.ID.String(), h.session.User())

	p, err := h.principals.Lookup(ctx, sessionID)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, shared.RoleStudent, p.Role)

	rec = h.do(t, http.MethodGet, "/auth/me", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decodeBody(t, rec)
	assert.Equal(t, "Asha", me["account"].(map[string]any)["full_name"])

	rec = h.do(t, http.MethodPost, "/auth/logout", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, rbac.EntryPath, decodeBody(t, rec)["redirect"])

	p, err = h.principals.Lookup(ctx, sessionID)
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.Equal(t, 0, h.idRepo.Sessions())

	rec = h.do(t, http.MethodGet, "/auth/me", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthHandlerLoginValidation(t *testing.T) {
	h := newAuthHarness(t)

	rec := h.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "nope", "password": "secret1"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Please enter a valid email address", decodeBody(t, rec)["detail"])

	rec = h.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "a@b.co", "password": "abc"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Password must be at least 6 characters", decodeBody(t, rec)["detail"])

	rec = h.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "a@b.co", "password": "secret1"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthHandlerRegisterRejectsUnknownFields(t *testing.T) {
	h := newAuthHarness(t)
	rec := h.do(t, http.MethodPost, "/auth/register", map[string]string{"role": "admin", "is_admin": "true"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminHandlerDecisions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acct, err := f.svc.Register(ctx, staffInput())
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(shared.ContextWithPrincipal(req.Context(), admin)))
		})
	})
	accounts.NewAdminHandler(nil, f.svc).MountRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["accounts"], 1)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/users/"+acct.ID.String()+"/approve", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/users/"+acct.ID.String()+"/reject", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/users/not-a-uuid/approve", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/staff/approved", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["staff"], 1)
}
