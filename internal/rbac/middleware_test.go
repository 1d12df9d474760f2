package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/brodesk/brodesk/internal/shared"
)

type mapLookup map[string]*shared.Principal

func (m mapLookup) Lookup(_ context.Context, sessionID string) (*shared.Principal, error) {
	return m[sessionID], nil
}

func serve(mw Middleware, roles []shared.Role, sess *shared.Session, accept string) *httptest.ResponseRecorder {
	handler := mw.Authenticate(mw.RequireRoles(roles...)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))
	req := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if sess != nil {
		req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRequireRoles(t *testing.T) {
	admin := principal(shared.RoleAdmin)
	student := principal(shared.RoleStudent)
	mw := Middleware{Principals: mapLookup{"admin-session": admin, "student-session": student}}

	adminSess := &shared.Session{ID: "cookie-1"}
	adminSess.Set(shared.IdentitySessionKey, "admin-session")
	studentSess := &shared.Session{ID: "cookie-2"}
	studentSess.Set(shared.IdentitySessionKey, "student-session")

	roles := []shared.Role{shared.RoleAdmin}

	assert.Equal(t, http.StatusNoContent, serve(mw, roles, adminSess, "").Code)
	assert.Equal(t, http.StatusForbidden, serve(mw, roles, studentSess, "application/json").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(mw, roles, &shared.Session{ID: "anon"}, "").Code)

	rec := serve(mw, roles, nil, "text/html")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/auth", rec.Header().Get("Location"))

	rec = serve(mw, roles, studentSess, "text/html,application/xhtml+xml")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	assert.Equal(t, http.StatusNoContent, serve(mw, nil, studentSess, "").Code)
}
