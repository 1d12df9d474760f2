package rbac

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/brodesk/brodesk/internal/platform/httpx"
	"github.com/brodesk/brodesk/internal/shared"
)

// PrincipalLookup reads the principal bound to an identity session.
type PrincipalLookup interface {
	Lookup(ctx context.Context, sessionID string) (*shared.Principal, error)
}

// Middleware wires role authorization helpers for HTTP handlers.
type Middleware struct {
	Principals PrincipalLookup
	Logger     *slog.Logger
}

// Authenticate resolves the request principal from the cookie session and
// stores it in the request context. Anonymous requests pass through.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		if sess == nil || m.Principals == nil {
			next.ServeHTTP(w, r)
			return
		}
		sessionID := sess.Get(shared.IdentitySessionKey)
		if sessionID == "" {
			next.ServeHTTP(w, r)
			return
		}
		p, err := m.Principals.Lookup(r.Context(), sessionID)
		if err != nil {
			m.logError("rbac authenticate", err)
			httpx.RespondError(w, shared.WrapStore("load principal", err))
			return
		}
		if p == nil {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), p)))
	})
}

// RequireRoles ensures the current principal is signed in and holds one of
// roles. No roles means any signed-in principal.
func (m Middleware) RequireRoles(roles ...shared.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision := Gate(shared.PrincipalFromContext(r.Context()), roles...)
			if decision == Allow {
				next.ServeHTTP(w, r)
				return
			}
			if httpx.WantsHTML(r) {
				http.Redirect(w, r, RedirectFor(decision), http.StatusSeeOther)
				return
			}
			if decision == DenyNotAuthenticated {
				httpx.RespondError(w, shared.ErrUnauthorized)
				return
			}
			httpx.RespondError(w, shared.ErrForbidden)
		})
	}
}

func (m Middleware) logError(msg string, err error) {
	if m.Logger != nil {
		m.Logger.Error(msg, slog.Any("error", err))
	}
}
