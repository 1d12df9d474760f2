// Package complaints tracks student complaints through assignment and the
// pending, in progress, resolved lifecycle.
package complaints

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Status is a complaint lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
)

var lifecycle = []Status{StatusPending, StatusInProgress, StatusResolved}

// Valid reports whether s is a known state.
func (s Status) Valid() bool {
	for _, st := range lifecycle {
		if st == s {
			return true
		}
	}
	return false
}

// Next returns the single state s may advance to. Resolved has none.
func (s Status) Next() (Status, bool) {
	for i, st := range lifecycle {
		if st == s && i+1 < len(lifecycle) {
			return lifecycle[i+1], true
		}
	}
	return "", false
}

// Label renders s for people, e.g. "In Progress".
func (s Status) Label() string {
	return cases.Title(language.English).String(strings.ReplaceAll(string(s), "_", " "))
}

// Priority ranks a complaint.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Complaint is a ticket submitted by a student.
type Complaint struct {
	ID           uuid.UUID  `json:"id"`
	StudentID    uuid.UUID  `json:"student_id"`
	StudentName  string     `json:"student_name,omitempty"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Category     string     `json:"category"`
	Priority     Priority   `json:"priority"`
	Status       Status     `json:"status"`
	AssignedTo   *uuid.UUID `json:"assigned_to"`
	AssigneeName string     `json:"assignee_name,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// IsAssignedTo reports whether c is assigned to staffID.
func (c Complaint) IsAssignedTo(staffID uuid.UUID) bool {
	return c.AssignedTo != nil && *c.AssignedTo == staffID
}

// SubmitInput carries a new complaint from a student.
type SubmitInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Priority    string `json:"priority"`

	IdempotencyKey string `json:"-"`
}

// Stats counts complaints by status. TotalUsers is only filled for admins.
type Stats struct {
	Total      int  `json:"total"`
	Pending    int  `json:"pending"`
	InProgress int  `json:"in_progress"`
	Resolved   int  `json:"resolved"`
	TotalUsers *int `json:"total_users,omitempty"`
}

func statsFrom(counts map[Status]int) Stats {
	s := Stats{
		Pending:    counts[StatusPending],
		InProgress: counts[StatusInProgress],
		Resolved:   counts[StatusResolved],
	}
	s.Total = s.Pending + s.InProgress + s.Resolved
	return s
}
