package rbac

import (
	"sync"

	"github.com/google/uuid"

	"github.com/brodesk/brodesk/internal/shared"
)

// OutcomeKind tells a view boundary what to do.
type OutcomeKind int

const (
	// OutcomeLoading renders a placeholder while auth state resolves.
	OutcomeLoading OutcomeKind = iota
	// OutcomeRender renders the protected view.
	OutcomeRender
	// OutcomeRedirect navigates away; reported once per resolution.
	OutcomeRedirect
	// OutcomeHold keeps the current screen after a redirect was reported.
	OutcomeHold
)

// Snapshot is the auth state observed at a view boundary.
type Snapshot struct {
	Principal *shared.Principal
	Loading   bool
}

// Outcome is the evaluator's instruction for one observation.
type Outcome struct {
	Kind     OutcomeKind
	Target   string
	Decision Decision
}

type snapshotKey struct {
	userID  uuid.UUID
	role    shared.Role
	loading bool
}

// Evaluator wraps Gate for a single protected view. It re-evaluates only
// when the principal, its role or the loading flag change.
type Evaluator struct {
	required []shared.Role

	mu         sync.Mutex
	seen       bool
	last       snapshotKey
	outcome    Outcome
	redirected bool
}

// NewEvaluator builds an Evaluator for a view requiring any of roles.
func NewEvaluator(roles ...shared.Role) *Evaluator {
	return &Evaluator{required: roles}
}

// Observe reports what the view should do for snap.
func (e *Evaluator) Observe(snap Snapshot) Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := snapshotKey{loading: snap.Loading}
	if snap.Principal.Authenticated() {
		key.userID = snap.Principal.UserID
		key.role = snap.Principal.Role
	}
	if e.seen && key == e.last {
		if e.outcome.Kind == OutcomeRedirect && e.redirected {
			return Outcome{Kind: OutcomeHold, Target: e.outcome.Target, Decision: e.outcome.Decision}
		}
		return e.outcome
	}
	e.seen = true
	e.last = key
	e.redirected = false

	if snap.Loading {
		e.outcome = Outcome{Kind: OutcomeLoading}
		return e.outcome
	}
	decision := Gate(snap.Principal, e.required...)
	if decision == Allow {
		e.outcome = Outcome{Kind: OutcomeRender, Decision: Allow}
		return e.outcome
	}
	e.outcome = Outcome{Kind: OutcomeRedirect, Target: RedirectFor(decision), Decision: decision}
	e.redirected = true
	return e.outcome
}
