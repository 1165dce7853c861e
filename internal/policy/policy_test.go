package policy

import (
	"testing"

	"orgforge/internal/domain"
)

func TestCanEdit(t *testing.T) {
	cases := []struct {
		role   domain.Role
		step   domain.StepKey
		status domain.StepStatus
		want   bool
	}{
		{domain.RoleHRManager, domain.StepDiagnosis, domain.StatusNotStarted, true},
		{domain.RoleHRManager, domain.StepDiagnosis, domain.StatusInProgress, true},
		{domain.RoleHRManager, domain.StepDiagnosis, domain.StatusSubmitted, false},
		{domain.RoleHRManager, domain.StepDiagnosis, domain.StatusApproved, false},
		{domain.RoleHRManager, domain.StepDiagnosis, domain.StatusLocked, false},
		{domain.RoleHRManager, domain.StepCeoPhilosophy, domain.StatusInProgress, false},
		{domain.RoleCEO, domain.StepCeoPhilosophy, domain.StatusInProgress, true},
		// the CEO may amend an HR step while it sits under review
		{domain.RoleCEO, domain.StepDiagnosis, domain.StatusSubmitted, true},
		{domain.RoleCEO, domain.StepDiagnosis, domain.StatusInProgress, false},
		{domain.RoleCEO, domain.StepDiagnosis, domain.StatusApproved, false},
		{domain.RoleConsultant, domain.StepDiagnosis, domain.StatusInProgress, false},
		{domain.RoleAdmin, domain.StepDiagnosis, domain.StatusInProgress, false},
	}
	for _, c := range cases {
		if got := CanEdit(c.role, c.step, c.status); got != c.want {
			t.Errorf("CanEdit(%s,%s,%s) = %v, want %v", c.role, c.step, c.status, got, c.want)
		}
	}
}

func TestCanSubmitAndVerify(t *testing.T) {
	if !CanSubmit(domain.RoleHRManager, domain.StepDiagnosis, domain.StatusInProgress) {
		t.Error("hr_manager must submit its in-progress step")
	}
	if CanSubmit(domain.RoleHRManager, domain.StepDiagnosis, domain.StatusSubmitted) {
		t.Error("double submit must not pass the policy gate")
	}
	if CanSubmit(domain.RoleCEO, domain.StepDiagnosis, domain.StatusInProgress) {
		t.Error("ceo does not author HR steps")
	}
	if !CanSubmit(domain.RoleCEO, domain.StepCeoPhilosophy, domain.StatusInProgress) {
		t.Error("ceo must submit the philosophy step")
	}
	if !CanVerify(domain.RoleCEO, domain.StepDiagnosis, domain.StatusSubmitted) {
		t.Error("ceo must verify a submitted HR step")
	}
	if CanVerify(domain.RoleCEO, domain.StepDiagnosis, domain.StatusInProgress) {
		t.Error("nothing to verify before submission")
	}
	if CanVerify(domain.RoleCEO, domain.StepCeoPhilosophy, domain.StatusSubmitted) {
		t.Error("the philosophy step has no reviewer")
	}
	if CanVerify(domain.RoleHRManager, domain.StepDiagnosis, domain.StatusSubmitted) {
		t.Error("hr_manager does not review its own work")
	}
	if CanRequestRevision(domain.RoleCEO, domain.StepDiagnosis, domain.StatusSubmitted) != CanVerify(domain.RoleCEO, domain.StepDiagnosis, domain.StatusSubmitted) {
		t.Error("revision requests share the verify gate")
	}
}

func TestCanView(t *testing.T) {
	if !CanView(domain.RoleConsultant, false) {
		t.Error("consultants read without membership")
	}
	if !CanView(domain.RoleAdmin, false) {
		t.Error("admins read without membership")
	}
	if CanView(domain.RoleCEO, false) {
		t.Error("a ceo without membership has no visibility")
	}
	if !CanView(domain.RoleHRManager, true) {
		t.Error("members read their company")
	}
}

func TestAllowedOperations(t *testing.T) {
	ops := AllowedOperations(domain.RoleCEO, domain.StepDiagnosis, domain.StatusSubmitted, true)
	want := map[Operation]bool{OpView: true, OpEdit: true, OpVerify: true, OpRequestRevision: true}
	if len(ops) != len(want) {
		t.Fatalf("ops = %v, want %v", ops, want)
	}
	for _, op := range ops {
		if !want[op] {
			t.Fatalf("unexpected op %s", op)
		}
	}
	if ops := AllowedOperations(domain.RoleConsultant, domain.StepDiagnosis, domain.StatusSubmitted, false); len(ops) != 1 || ops[0] != OpView {
		t.Fatalf("consultant ops = %v, want view only", ops)
	}
}
