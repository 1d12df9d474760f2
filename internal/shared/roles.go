package shared

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Role determines which screens and actions an account may use.
type Role string

const (
	RoleStudent Role = "student"
	RoleStaff   Role = "staff"
	RoleAdmin   Role = "admin"
)

// ParseRole normalises raw input into a Role.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	if !role.Valid() {
		return "", NewValidationError("role", fmt.Sprintf("unknown role %q", raw))
	}
	return role, nil
}

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleStaff, RoleAdmin:
		return true
	}
	return false
}

// Principal describes the authenticated actor of a request.
type Principal struct {
	UserID    uuid.UUID `json:"user_id"`
	SessionID string    `json:"-"`
	Role      Role      `json:"role"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
}

// Authenticated reports whether p refers to a signed-in account.
func (p *Principal) Authenticated() bool {
	return p != nil && p.UserID != uuid.Nil
}

// IsAdmin reports whether p carries the admin role.
func (p *Principal) IsAdmin() bool {
	return p.Authenticated() && p.Role == RoleAdmin
}
