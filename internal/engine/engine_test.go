package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"orgforge/internal/config"
	"orgforge/internal/db"
	"orgforge/internal/domain"
	"orgforge/internal/engine"
	"orgforge/internal/migrate"
	"orgforge/internal/policy"
	"orgforge/internal/repo"
)

type testEnv struct {
	Engine  *engine.Engine
	Ctx     context.Context
	Company domain.Company
	Project domain.HrProject
	HR      policy.Actor
	CEO     policy.Actor
	Clock   *time.Time
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	eng := engine.New(conn)
	eng.Now = func() time.Time { return clock }
	eng.Events.Now = eng.Now
	eng.Repo.Now = eng.Now
	ctx := context.Background()

	hr := policy.Actor{UserID: "hana", Role: domain.RoleHRManager}
	ceo := policy.Actor{UserID: "carl", Role: domain.RoleCEO}

	company, err := eng.CreateCompany(ctx, "Acme", hr)
	if err != nil {
		t.Fatalf("create company: %v", err)
	}
	inv, err := eng.InviteMember(ctx, company.ID, "carl@acme.test", domain.RoleCEO, hr)
	if err != nil {
		t.Fatalf("invite ceo: %v", err)
	}
	if _, err := eng.AcceptInvitation(ctx, inv.Token, ceo.UserID, "carl@acme.test"); err != nil {
		t.Fatalf("accept invitation: %v", err)
	}
	project, err := eng.CreateProject(ctx, company.ID, hr)
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx, Company: company, Project: project, HR: hr, CEO: ceo, Clock: &clock}
}

func (env testEnv) edit(t *testing.T, actor policy.Actor, step domain.StepKey, payload map[string]any) domain.StepRecord {
	t.Helper()
	rec, err := env.Engine.StartOrUpdate(env.Ctx, env.Project.ID, step, actor, payload)
	if err != nil {
		t.Fatalf("edit %s: %v", step, err)
	}
	return rec
}

func (env testEnv) submit(t *testing.T, actor policy.Actor, step domain.StepKey) domain.StepRecord {
	t.Helper()
	rec, err := env.Engine.Submit(env.Ctx, env.Project.ID, step, actor)
	if err != nil {
		t.Fatalf("submit %s: %v", step, err)
	}
	return rec
}

func (env testEnv) verify(t *testing.T, step domain.StepKey) domain.StepRecord {
	t.Helper()
	rec, err := env.Engine.Verify(env.Ctx, env.Project.ID, step, env.CEO)
	if err != nil {
		t.Fatalf("verify %s: %v", step, err)
	}
	return rec
}

func TestStepLifecycle(t *testing.T) {
	env := newTestEnv(t)
	rec := env.edit(t, env.HR, domain.StepDiagnosis, map[string]any{"growth_stage": "early"})
	if rec.Status != domain.StatusInProgress {
		t.Fatalf("status after first edit = %s, want in_progress", rec.Status)
	}
	// editing again is idempotent with respect to status
	rec = env.edit(t, env.HR, domain.StepDiagnosis, map[string]any{"growth_stage": "early", "headcount": "12"})
	if rec.Status != domain.StatusInProgress {
		t.Fatalf("status after re-edit = %s, want in_progress", rec.Status)
	}
	rec = env.submit(t, env.HR, domain.StepDiagnosis)
	if rec.Status != domain.StatusSubmitted || rec.SubmittedAt == nil {
		t.Fatalf("after submit: status=%s submitted_at=%v", rec.Status, rec.SubmittedAt)
	}
	rec = env.verify(t, domain.StepDiagnosis)
	if rec.Status != domain.StatusApproved || rec.CompletedAt == nil {
		t.Fatalf("after verify: status=%s completed_at=%v", rec.Status, rec.CompletedAt)
	}
	// approved steps are closed to the owner
	_, err := env.Engine.StartOrUpdate(env.Ctx, env.Project.ID, domain.StepDiagnosis, env.HR, map[string]any{"growth_stage": "expansion"})
	var ite engine.InvalidTransitionError
	if !errors.As(err, &ite) {
		t.Fatalf("edit after approve: got %v, want InvalidTransitionError", err)
	}
}

func TestUnlockChain(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.StartOrUpdate(env.Ctx, env.Project.ID, domain.StepOrganization, env.HR, map[string]any{"structure_type": "team"})
	var ite engine.InvalidTransitionError
	if !errors.As(err, &ite) {
		t.Fatalf("organization before diagnosis submit: got %v, want InvalidTransitionError", err)
	}
	env.edit(t, env.HR, domain.StepDiagnosis, map[string]any{"growth_stage": "early"})
	env.submit(t, env.HR, domain.StepDiagnosis)
	// a pending submission already opens the next step
	rec := env.edit(t, env.HR, domain.StepOrganization, map[string]any{"structure_type": "team"})
	if rec.Status != domain.StatusInProgress {
		t.Fatalf("organization after diagnosis submit: %s", rec.Status)
	}
}

func TestStrictUnlock(t *testing.T) {
	env := newTestEnv(t)
	cfg := config.Default(env.Project.ID)
	cfg.Workflow.StrictUnlock = true
	if err := env.Engine.ImportConfig(env.Ctx, env.Project.ID, env.HR, cfg); err != nil {
		t.Fatalf("import config: %v", err)
	}
	env.edit(t, env.HR, domain.StepDiagnosis, map[string]any{"growth_stage": "early"})
	env.submit(t, env.HR, domain.StepDiagnosis)
	_, err := env.Engine.StartOrUpdate(env.Ctx, env.Project.ID, domain.StepOrganization, env.HR, map[string]any{"structure_type": "team"})
	var ite engine.InvalidTransitionError
	if !errors.As(err, &ite) {
		t.Fatalf("strict unlock on submitted prior step: got %v, want InvalidTransitionError", err)
	}
	env.verify(t, domain.StepDiagnosis)
	env.edit(t, env.HR, domain.StepOrganization, map[string]any{"structure_type": "team"})
}

func TestRevisionRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	env.edit(t, env.HR, domain.StepDiagnosis, map[string]any{"growth_stage": "early", "notes": "draft"})
	env.submit(t, env.HR, domain.StepDiagnosis)
	rec, err := env.Engine.RequestRevision(env.Ctx, env.Project.ID, domain.StepDiagnosis, env.CEO)
	if err != nil {
		t.Fatalf("request revision: %v", err)
	}
	if rec.Status != domain.StatusInProgress {
		t.Fatalf("status after revision = %s, want in_progress", rec.Status)
	}
	if rec.SubmittedAt != nil {
		t.Fatalf("submitted_at not cleared: %v", *rec.SubmittedAt)
	}
	if rec.PayloadJSON == nil {
		t.Fatalf("payload lost across revision")
	}
	// owner reworks and resubmits
	env.edit(t, env.HR, domain.StepDiagnosis, map[string]any{"growth_stage": "early", "notes": "reworked"})
	rec = env.submit(t, env.HR, domain.StepDiagnosis)
	if rec.Status != domain.StatusSubmitted {
		t.Fatalf("resubmit: %s", rec.Status)
	}
}

func TestRoleGates(t *testing.T) {
	env := newTestEnv(t)
	env.edit(t, env.HR, domain.StepDiagnosis, map[string]any{"growth_stage": "early"})

	// the CEO does not author HR steps
	_, err := env.Engine.Submit(env.Ctx, env.Project.ID, domain.StepDiagnosis, env.CEO)
	var ue policy.UnauthorizedError
	if !errors.As(err, &ue) {
		t.Fatalf("ceo submit of diagnosis: got %v, want UnauthorizedError", err)
	}
	env.submit(t, env.HR, domain.StepDiagnosis)

	// the HR manager does not review its own work
	_, err = env.Engine.Verify(env.Ctx, env.Project.ID, domain.StepDiagnosis, env.HR)
	if !errors.As(err, &ue) {
		t.Fatalf("hr verify: got %v, want UnauthorizedError", err)
	}

	// a CEO with no membership on this company is rejected outright
	outsider := policy.Actor{UserID: "stranger", Role: domain.RoleCEO}
	_, err = env.Engine.Verify(env.Ctx, env.Project.ID, domain.StepDiagnosis, outsider)
	if !errors.As(err, &ue) {
		t.Fatalf("outsider verify: got %v, want UnauthorizedError", err)
	}
}

func TestDoubleVerify(t *testing.T) {
	env := newTestEnv(t)
	env.edit(t, env.HR, domain.StepDiagnosis, map[string]any{"growth_stage": "early"})
	env.submit(t, env.HR, domain.StepDiagnosis)
	env.verify(t, domain.StepDiagnosis)
	_, err := env.Engine.Verify(env.Ctx, env.Project.ID, domain.StepDiagnosis, env.CEO)
	var ite engine.InvalidTransitionError
	if !errors.As(err, &ite) {
		t.Fatalf("second verify: got %v, want InvalidTransitionError", err)
	}
	if ite.Current != domain.StatusApproved {
		t.Fatalf("second verify current = %s, want approved", ite.Current)
	}
}

func TestConcurrentVerifySingleWinner(t *testing.T) {
	env := newTestEnv(t)
	env.edit(t, env.HR, domain.StepDiagnosis, map[string]any{"growth_stage": "early"})
	env.submit(t, env.HR, domain.StepDiagnosis)

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.Engine.Verify(env.Ctx, env.Project.ID, domain.StepDiagnosis, env.CEO)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var wins, losses int
	for err := range errs {
		if err == nil {
			wins++
			continue
		}
		var ite engine.InvalidTransitionError
		if !errors.As(err, &ite) {
			t.Fatalf("loser error = %v, want InvalidTransitionError", err)
		}
		losses++
	}
	if wins != 1 || losses != 1 {
		t.Fatalf("wins=%d losses=%d, want exactly one of each", wins, losses)
	}
	rec, err := env.Engine.Step(env.Ctx, env.Project.ID, domain.StepDiagnosis, env.HR)
	if err != nil || rec.Status != domain.StatusApproved {
		t.Fatalf("step after racing verifies = %s (%v), want approved", rec.Status, err)
	}
}

func TestSubmitValidationBlocks(t *testing.T) {
	env := newTestEnv(t)
	env.edit(t, env.HR, domain.StepDiagnosis, map[string]any{"growth_stage": "early"})
	env.submit(t, env.HR, domain.StepDiagnosis)
	env.edit(t, env.HR, domain.StepOrganization, map[string]any{"structure_type": "team"})
	env.submit(t, env.HR, domain.StepOrganization)

	// balanced scorecards are incompatible with a team structure
	env.edit(t, env.HR, domain.StepPerformance, map[string]any{"performance_method": "bsc"})
	_, err := env.Engine.Submit(env.Ctx, env.Project.ID, domain.StepPerformance, env.HR)
	var ve engine.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("bsc on team structure: got %v, want ValidationError", err)
	}
	rec, err := env.Engine.Step(env.Ctx, env.Project.ID, domain.StepPerformance, env.HR)
	if err != nil || rec.Status != domain.StatusInProgress {
		t.Fatalf("failed submit must leave step in_progress, got %s (%v)", rec.Status, err)
	}

	// a compatible method goes through
	env.edit(t, env.HR, domain.StepPerformance, map[string]any{"performance_method": "okr"})
	env.submit(t, env.HR, domain.StepPerformance)
}

func TestCompensationRequiresPerformanceMethod(t *testing.T) {
	env := newTestEnv(t)
	env.edit(t, env.HR, domain.StepDiagnosis, map[string]any{"growth_stage": "early"})
	env.submit(t, env.HR, domain.StepDiagnosis)
	env.edit(t, env.HR, domain.StepOrganization, map[string]any{"structure_type": "team"})
	env.submit(t, env.HR, domain.StepOrganization)
	env.edit(t, env.HR, domain.StepPerformance, map[string]any{"performance_method": "okr"})
	env.submit(t, env.HR, domain.StepPerformance)

	// the CEO amends the submitted performance step, dropping the method;
	// performance-based pay then has nothing to hang off
	if _, err := env.Engine.StartOrUpdate(env.Ctx, env.Project.ID, domain.StepPerformance, env.CEO, map[string]any{"notes": "rethink"}); err != nil {
		t.Fatalf("ceo amend under review: %v", err)
	}
	env.edit(t, env.HR, domain.StepCompensation, map[string]any{"compensation_structure": "performance_based"})
	_, err := env.Engine.Submit(env.Ctx, env.Project.ID, domain.StepCompensation, env.HR)
	var ve engine.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("performance_based without method: got %v, want ValidationError", err)
	}
}

func TestCeoPhilosophyParallel(t *testing.T) {
	env := newTestEnv(t)
	// available before diagnosis has even started
	rec := env.edit(t, env.CEO, domain.StepCeoPhilosophy, map[string]any{"philosophy_trait": "democratic"})
	if rec.Status != domain.StatusInProgress {
		t.Fatalf("philosophy edit: %s", rec.Status)
	}
	rec = env.submit(t, env.CEO, domain.StepCeoPhilosophy)
	if rec.Status != domain.StatusSubmitted {
		t.Fatalf("philosophy submit: %s", rec.Status)
	}
	// nobody reviews the philosophy step
	_, err := env.Engine.Verify(env.Ctx, env.Project.ID, domain.StepCeoPhilosophy, env.CEO)
	var ue policy.UnauthorizedError
	if !errors.As(err, &ue) {
		t.Fatalf("verify philosophy: got %v, want UnauthorizedError", err)
	}
}

func completeChain(t *testing.T, env testEnv) {
	t.Helper()
	answers := map[domain.StepKey]map[string]any{
		domain.StepDiagnosis:    {"growth_stage": "early"},
		domain.StepOrganization: {"structure_type": "team"},
		domain.StepPerformance:  {"performance_method": "okr"},
		domain.StepCompensation: {"compensation_structure": "performance_based"},
		domain.StepHrPolicyOS:   {"review_cycle": "quarterly"},
	}
	for _, step := range domain.StepOrder {
		env.edit(t, env.HR, step, answers[step])
		env.submit(t, env.HR, step)
		env.verify(t, step)
	}
}

func TestLockProject(t *testing.T) {
	env := newTestEnv(t)
	env.edit(t, env.CEO, domain.StepCeoPhilosophy, map[string]any{"philosophy_trait": "democratic"})
	env.submit(t, env.CEO, domain.StepCeoPhilosophy)

	_, err := env.Engine.LockProject(env.Ctx, env.Project.ID, env.HR)
	var ite engine.InvalidTransitionError
	if !errors.As(err, &ite) {
		t.Fatalf("lock before approvals: got %v, want InvalidTransitionError", err)
	}
	completeChain(t, env)

	p, err := env.Engine.Project(env.Ctx, env.Project.ID, env.HR)
	if err != nil || p.Status != domain.ProjectCompleted {
		t.Fatalf("project after final verify = %s (%v), want completed", p.Status, err)
	}
	locked, err := env.Engine.IsFullyLocked(env.Ctx, env.Project.ID, env.HR)
	if err != nil || locked {
		t.Fatalf("fully locked before lock = %v (%v), want false", locked, err)
	}
	p, err = env.Engine.LockProject(env.Ctx, env.Project.ID, env.HR)
	if err != nil || p.Status != domain.ProjectLocked {
		t.Fatalf("lock: %s (%v)", p.Status, err)
	}
	// the injected clock stamps the status change, not the wall clock
	if want := env.Clock.UTC().Format(time.RFC3339); p.UpdatedAt != want {
		t.Fatalf("lock updated_at = %s, want %s", p.UpdatedAt, want)
	}
	locked, err = env.Engine.IsFullyLocked(env.Ctx, env.Project.ID, env.HR)
	if err != nil || !locked {
		t.Fatalf("fully locked after lock = %v (%v), want true", locked, err)
	}
	rec, err := env.Engine.Step(env.Ctx, env.Project.ID, domain.StepCeoPhilosophy, env.HR)
	if err != nil || rec.Status != domain.StatusLocked {
		t.Fatalf("philosophy after lock = %s (%v), want locked", rec.Status, err)
	}
	_, err = env.Engine.StartOrUpdate(env.Ctx, env.Project.ID, domain.StepDiagnosis, env.HR, map[string]any{"growth_stage": "expansion"})
	if !errors.As(err, &ite) {
		t.Fatalf("edit after lock: got %v, want InvalidTransitionError", err)
	}
}

func TestOneProjectPerCompany(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateProject(env.Ctx, env.Company.ID, env.HR)
	var ce engine.ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("second project: got %v, want ConflictError", err)
	}
	// only the creating HR manager deletes
	err = env.Engine.DeleteProject(env.Ctx, env.Project.ID, env.CEO)
	var ue policy.UnauthorizedError
	if !errors.As(err, &ue) {
		t.Fatalf("ceo delete: got %v, want UnauthorizedError", err)
	}
	if err := env.Engine.DeleteProject(env.Ctx, env.Project.ID, env.HR); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.Engine.CreateProject(env.Ctx, env.Company.ID, env.HR); err != nil {
		t.Fatalf("recreate after delete: %v", err)
	}
}

func TestInvitationSingleUse(t *testing.T) {
	env := newTestEnv(t)
	inv, err := env.Engine.InviteMember(env.Ctx, env.Company.ID, "second@acme.test", domain.RoleConsultant, env.HR)
	if err != nil {
		t.Fatalf("invite: %v", err)
	}
	if _, err := env.Engine.AcceptInvitation(env.Ctx, inv.Token, "second", "second@acme.test"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	_, err = env.Engine.AcceptInvitation(env.Ctx, inv.Token, "third", "third@acme.test")
	var ce engine.ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("second accept: got %v, want ConflictError", err)
	}
}

func TestInvitationExpiry(t *testing.T) {
	env := newTestEnv(t)
	inv, err := env.Engine.InviteMember(env.Ctx, env.Company.ID, "late@acme.test", domain.RoleCEO, env.HR)
	if err != nil {
		t.Fatalf("invite: %v", err)
	}
	*env.Clock = env.Clock.Add(8 * 24 * time.Hour) // past the 7-day default TTL
	_, err = env.Engine.AcceptInvitation(env.Ctx, inv.Token, "late", "late@acme.test")
	var ce engine.ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("expired accept: got %v, want ConflictError", err)
	}
}

func TestInviteValidation(t *testing.T) {
	env := newTestEnv(t)
	var ve engine.ValidationError
	if _, err := env.Engine.InviteMember(env.Ctx, env.Company.ID, "not-an-email", domain.RoleCEO, env.HR); !errors.As(err, &ve) {
		t.Fatalf("bad email: got %v, want ValidationError", err)
	}
	if _, err := env.Engine.InviteMember(env.Ctx, env.Company.ID, "x@acme.test", domain.RoleHRManager, env.HR); !errors.As(err, &ve) {
		t.Fatalf("hr_manager invite: got %v, want ValidationError", err)
	}
}

func TestVisibility(t *testing.T) {
	env := newTestEnv(t)
	consultant := policy.Actor{UserID: "vera", Role: domain.RoleConsultant}
	if _, err := env.Engine.Progress(env.Ctx, env.Project.ID, consultant); err != nil {
		t.Fatalf("consultant progress: %v", err)
	}
	outsider := policy.Actor{UserID: "stranger", Role: domain.RoleCEO}
	_, err := env.Engine.Progress(env.Ctx, env.Project.ID, outsider)
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("outsider progress: got %v, want ErrNotFound", err)
	}
}

func TestProgressOperations(t *testing.T) {
	env := newTestEnv(t)
	env.edit(t, env.HR, domain.StepDiagnosis, map[string]any{"growth_stage": "early"})
	env.submit(t, env.HR, domain.StepDiagnosis)

	prog, err := env.Engine.Progress(env.Ctx, env.Project.ID, env.CEO)
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if prog.Total != 6 {
		t.Fatalf("total = %d, want 6", prog.Total)
	}
	byStep := map[domain.StepKey]engine.StepProgress{}
	for _, sp := range prog.Steps {
		byStep[sp.Step] = sp
	}
	diag := byStep[domain.StepDiagnosis]
	wantOps := map[policy.Operation]bool{policy.OpVerify: true, policy.OpRequestRevision: true, policy.OpEdit: true, policy.OpView: true}
	for _, op := range diag.Operations {
		if !wantOps[op] {
			t.Fatalf("unexpected ceo operation %s on submitted diagnosis", op)
		}
		delete(wantOps, op)
	}
	if len(wantOps) != 0 {
		t.Fatalf("missing ceo operations on submitted diagnosis: %v", wantOps)
	}
	if !byStep[domain.StepOrganization].Unlocked {
		t.Fatalf("organization should unlock once diagnosis is submitted")
	}
	if byStep[domain.StepPerformance].Unlocked {
		t.Fatalf("performance should stay locked")
	}
}

func TestRecommendationsFromSteps(t *testing.T) {
	env := newTestEnv(t)
	env.edit(t, env.HR, domain.StepDiagnosis, map[string]any{"growth_stage": "early"})
	env.edit(t, env.CEO, domain.StepCeoPhilosophy, map[string]any{"philosophy_trait": "democratic"})

	set, err := env.Engine.Recommendations(env.Ctx, env.Project.ID, env.HR)
	if err != nil {
		t.Fatalf("recommendations: %v", err)
	}
	top := set.Structures[0]
	if top.Option != "team" || top.Weight != 8 {
		t.Fatalf("top structure = %s (%d), want team (8)", top.Option, top.Weight)
	}
	if len(top.Reasons) != 2 {
		t.Fatalf("team reasons = %d, want 2", len(top.Reasons))
	}
}
