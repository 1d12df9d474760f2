// Package accounts owns BroDesk account records and the approval state
// machine that decides whether an account may sign in.
package accounts

import (
	"time"

	"github.com/google/uuid"

	"github.com/brodesk/brodesk/internal/shared"
)

// ApprovalStatus gates whether an account's credentials yield a usable session.
type ApprovalStatus string

const (
	StatusPending  ApprovalStatus = "pending"
	StatusApproved ApprovalStatus = "approved"
	StatusRejected ApprovalStatus = "rejected"
)

// ParseDecision validates an admin decision outcome.
func ParseDecision(raw string) (ApprovalStatus, error) {
	switch ApprovalStatus(raw) {
	case StatusApproved, StatusRejected:
		return ApprovalStatus(raw), nil
	}
	return "", shared.NewValidationError("outcome", "Outcome must be approved or rejected")
}

// Profile holds the descriptive fields of an account.
type Profile struct {
	FullName       string `json:"full_name"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	BatchType      string `json:"batch_type,omitempty"`
	BatchNumber    string `json:"batch_number,omitempty"`
	Course         string `json:"course,omitempty"`
	StudentID      string `json:"student_id,omitempty"`
	Category       string `json:"category,omitempty"`
	Specialization string `json:"specialization,omitempty"`
}

// Account is one registered identity with exactly one role and one status.
type Account struct {
	ID             uuid.UUID      `json:"id"`
	Role           shared.Role    `json:"role"`
	ApprovalStatus ApprovalStatus `json:"approval_status"`
	Profile
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StaffMember is a staff account with its current assignment load.
type StaffMember struct {
	Account
	AssignedComplaints int `json:"assigned_complaints"`
}

// RegisterInput carries a self-registration request. Field order is the
// order validation failures are reported in.
type RegisterInput struct {
	Role            string `json:"role" validate:"required,oneof=student staff"`
	FullName        string `json:"full_name" validate:"required"`
	Phone           string `json:"phone" validate:"phone10"`
	ConfirmPassword string `json:"confirm_password" validate:"omitempty,eqfield=Password"`
	BatchType       string `json:"batch_type" validate:"required_if=Role student,omitempty,oneof=Remote Offline"`
	BatchNumber     string `json:"batch_number" validate:"required_if=Role student"`
	Course          string `json:"course" validate:"required_if=Role student"`
	StudentID       string `json:"student_id"`
	Category        string `json:"category" validate:"required_if=Role staff"`
	Specialization  string `json:"specialization"`
	Email           string `json:"email" validate:"brodesk_email"`
	Password        string `json:"password" validate:"min=6"`
}

// AdminSeed describes the account created by BootstrapAdmin.
type AdminSeed struct {
	Email    string
	Password string
	FullName string
	Phone    string
}
