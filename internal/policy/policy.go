// Package policy gates workflow operations by acting role, company
// membership, and current step status. The acting role is always an explicit
// parameter; nothing here reads ambient session state.
package policy

import (
	"fmt"

	"orgforge/internal/domain"
)

// Operation names a gated workflow action.
type Operation string

const (
	OpView            Operation = "view"
	OpEdit            Operation = "edit"
	OpSubmit          Operation = "submit"
	OpVerify          Operation = "verify"
	OpRequestRevision Operation = "request_revision"
)

// UnauthorizedError indicates the actor's role or membership does not permit
// the operation. It is a hard rejection, never a silent no-op.
type UnauthorizedError struct {
	Role      domain.Role
	Operation Operation
	Step      domain.StepKey
}

func (e UnauthorizedError) Error() string {
	if e.Step != "" {
		return fmt.Sprintf("role %s may not %s step %s", e.Role, e.Operation, e.Step)
	}
	return fmt.Sprintf("role %s may not %s", e.Role, e.Operation)
}

// Actor is the per-request acting identity: one user exercising one role on
// one company. A user holding several roles picks one per request.
type Actor struct {
	UserID string
	Role   domain.Role
}

// CanView reports read access. Consultants and admins read every company;
// other roles need membership.
func CanView(role domain.Role, member bool) bool {
	if role == domain.RoleConsultant || role == domain.RoleAdmin {
		return true
	}
	return member
}

// Owns reports whether role is the authoring role for the step, regardless
// of status. A status failure for the owner is an invalid transition, not an
// authorization failure.
func Owns(role domain.Role, step domain.StepKey) bool {
	return domain.OwnerRole(step) == role
}

// Reviews reports whether role verifies submissions of the step.
func Reviews(role domain.Role, step domain.StepKey) bool {
	reviewer := domain.ReviewerRole(step)
	return reviewer != "" && reviewer == role
}

// CanEdit reports whether role may write the step payload at its current
// status. Owners edit while the step is editable; the CEO may additionally
// amend an HR step under review (status submitted) without changing status.
func CanEdit(role domain.Role, step domain.StepKey, status domain.StepStatus) bool {
	if Owns(role, step) {
		return status.CanEdit()
	}
	if role == domain.RoleCEO && step != domain.StepCeoPhilosophy {
		return status == domain.StatusSubmitted
	}
	return false
}

// CanSubmit reports whether role may submit the step. Only the owning role
// submits, and only from in_progress.
func CanSubmit(role domain.Role, step domain.StepKey, status domain.StepStatus) bool {
	return Owns(role, step) && status == domain.StatusInProgress
}

// CanVerify reports whether role may approve the submitted step.
func CanVerify(role domain.Role, step domain.StepKey, status domain.StepStatus) bool {
	return Reviews(role, step) && status == domain.StatusSubmitted
}

// CanRequestRevision reports whether role may push the submitted step back
// to in_progress. Same gate as verification.
func CanRequestRevision(role domain.Role, step domain.StepKey, status domain.StepStatus) bool {
	return CanVerify(role, step, status)
}

// AllowedOperations lists exactly the operations role may perform on the
// step at its current status. The API layer exposes this so clients never
// offer an action the policy would reject.
func AllowedOperations(role domain.Role, step domain.StepKey, status domain.StepStatus, member bool) []Operation {
	var ops []Operation
	if CanView(role, member) {
		ops = append(ops, OpView)
	}
	if !member {
		return ops
	}
	if CanEdit(role, step, status) {
		ops = append(ops, OpEdit)
	}
	if CanSubmit(role, step, status) {
		ops = append(ops, OpSubmit)
	}
	if CanVerify(role, step, status) {
		ops = append(ops, OpVerify)
	}
	if CanRequestRevision(role, step, status) {
		ops = append(ops, OpRequestRevision)
	}
	return ops
}
