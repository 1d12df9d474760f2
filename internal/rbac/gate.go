// Package rbac decides which roles may reach which screens and routes.
package rbac

import "github.com/brodesk/brodesk/internal/shared"

// Decision is the outcome of a role gate check.
type Decision int

const (
	Allow Decision = iota
	DenyNotAuthenticated
	DenyWrongRole
)

const (
	// EntryPath is where unauthenticated visitors are sent.
	EntryPath = "/auth"
	// LandingPath is where signed-in visitors without the right role are sent.
	LandingPath = "/"
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case DenyNotAuthenticated:
		return "not_authenticated"
	case DenyWrongRole:
		return "wrong_role"
	}
	return "unknown"
}

// Gate allows p when it is authenticated and, if any roles are required,
// holds one of them. An unauthenticated principal is always reported as
// DenyNotAuthenticated, never DenyWrongRole.
func Gate(p *shared.Principal, required ...shared.Role) Decision {
	if !p.Authenticated() {
		return DenyNotAuthenticated
	}
	if len(required) == 0 {
		return Allow
	}
	for _, role := range required {
		if p.Role == role {
			return Allow
		}
	}
	return DenyWrongRole
}

// RedirectFor returns the path a denied visitor is sent to, or "" for Allow.
func RedirectFor(d Decision) string {
	switch d {
	case DenyNotAuthenticated:
		return EntryPath
	case DenyWrongRole:
		return LandingPath
	}
	return ""
}

// HomePath is the dashboard a role lands on after signing in.
func HomePath(role shared.Role) string {
	switch role {
	case shared.RoleAdmin:
		return "/admin/dashboard"
	case shared.RoleStaff:
		return "/staff/home"
	case shared.RoleStudent:
		return "/student/home"
	}
	return LandingPath
}
