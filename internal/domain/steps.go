package domain

// StepKey identifies one of the fixed design phases.
type StepKey string

const (
	StepDiagnosis     StepKey = "diagnosis"
	StepCeoPhilosophy StepKey = "ceo_philosophy"
	StepOrganization  StepKey = "organization" // job analysis internally
	StepPerformance   StepKey = "performance"
	StepCompensation  StepKey = "compensation"
	StepHrPolicyOS    StepKey = "hr_policy_os"
)

// StepOrder is the unlock chain. ceo_philosophy sits outside it: the CEO
// works on it in parallel with diagnosis and it never gates downstream steps.
var StepOrder = []StepKey{
	StepDiagnosis,
	StepOrganization,
	StepPerformance,
	StepCompensation,
	StepHrPolicyOS,
}

// AllSteps is every step record a project carries, ordered chain first.
var AllSteps = []StepKey{
	StepDiagnosis,
	StepCeoPhilosophy,
	StepOrganization,
	StepPerformance,
	StepCompensation,
	StepHrPolicyOS,
}

// ValidStep reports whether k names a known step.
func ValidStep(k StepKey) bool {
	for _, s := range AllSteps {
		if s == k {
			return true
		}
	}
	return false
}

// StepIndex returns the position of k in the ordered chain, or -1 when k is
// not part of it (ceo_philosophy, unknown keys).
func StepIndex(k StepKey) int {
	for i, s := range StepOrder {
		if s == k {
			return i
		}
	}
	return -1
}

// StepStatus is the per-step lifecycle state.
type StepStatus string

const (
	StatusNotStarted StepStatus = "not_started"
	StatusInProgress StepStatus = "in_progress"
	StatusSubmitted  StepStatus = "submitted"
	StatusApproved   StepStatus = "approved"
	StatusLocked     StepStatus = "locked"
)

// CanEdit reports whether the owning role may still write the step payload.
func (s StepStatus) CanEdit() bool {
	return s == StatusNotStarted || s == StatusInProgress
}

// IsLocked reports the terminal immutable state.
func (s StepStatus) IsLocked() bool { return s == StatusLocked }

// IsDone reports whether the step counts as finished for locking purposes.
func (s StepStatus) IsDone() bool {
	return s == StatusApproved || s == StatusLocked
}

// AtLeastSubmitted reports whether the step grants downstream access under
// the default (non-strict) unlock rule.
func (s StepStatus) AtLeastSubmitted() bool {
	return s == StatusSubmitted || s == StatusApproved || s == StatusLocked
}

// ValidStatus reports whether s is a known lifecycle state.
func ValidStatus(s StepStatus) bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusSubmitted, StatusApproved, StatusLocked:
		return true
	}
	return false
}

// Role tags a user's membership in a company.
type Role string

const (
	RoleHRManager  Role = "hr_manager"
	RoleCEO        Role = "ceo"
	RoleConsultant Role = "consultant"
	RoleAdmin      Role = "admin"
)

// ValidRole reports whether r is an assignable membership role. Admin is a
// platform role and is never stored as a membership.
func ValidRole(r Role) bool {
	return r == RoleHRManager || r == RoleCEO || r == RoleConsultant
}

// OwnerRole returns the role allowed to author a step.
func OwnerRole(k StepKey) Role {
	if k == StepCeoPhilosophy {
		return RoleCEO
	}
	return RoleHRManager
}

// ReviewerRole returns the role that verifies a submitted step, or "" when
// the step has no reviewer (ceo_philosophy stays at submitted).
func ReviewerRole(k StepKey) Role {
	if k == StepCeoPhilosophy {
		return ""
	}
	return RoleCEO
}
