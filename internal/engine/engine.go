// Package engine implements the workflow core: the per-step state machine,
// the submit-time compatibility checks, and the company/project aggregate
// operations. All mutations run in a single transaction together with their
// audit event, and every status transition is a conditional update so that
// concurrent submits or verifies cannot both win.
package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"orgforge/internal/config"
	"orgforge/internal/domain"
	"orgforge/internal/events"
	"orgforge/internal/policy"
	"orgforge/internal/repo"
	"orgforge/internal/rules"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	// Config supplies defaults for newly created projects. Per-project
	// overrides live in project_configs.
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB) *Engine {
	return &Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db, Now: time.Now},
		Events: events.Writer{DB: db},
		Config: config.Default(""),
		Now:    time.Now,
	}
}

func (e *Engine) now() string {
	if e.Now == nil {
		return time.Now().UTC().Format(time.RFC3339)
	}
	return e.Now().UTC().Format(time.RFC3339)
}

// projectConfig loads the stored config for a project, falling back to the
// engine defaults when none was seeded.
func (e *Engine) projectConfig(ctx context.Context, projectID string) *config.Config {
	cfg, err := e.Repo.GetProjectConfig(ctx, projectID)
	if err != nil || cfg == nil {
		if e.Config != nil {
			return e.Config
		}
		return config.Default(projectID)
	}
	return cfg
}

// requireActingRole enforces that the actor actually holds the role it claims
// on the company. A missing membership or a role mismatch is an authorization
// failure, never a silent fallback to some other role the user happens to
// hold.
func (e *Engine) requireActingRole(ctx context.Context, companyID string, actor policy.Actor, op policy.Operation, step domain.StepKey) error {
	role, err := e.Repo.MembershipRole(ctx, companyID, actor.UserID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return policy.UnauthorizedError{Role: actor.Role, Operation: op, Step: step}
		}
		return err
	}
	if role != actor.Role {
		return policy.UnauthorizedError{Role: actor.Role, Operation: op, Step: step}
	}
	return nil
}

// requireView gates reads. An actor without visibility gets ErrNotFound,
// identical to a project that does not exist, so probing cannot distinguish
// the two.
func (e *Engine) requireView(ctx context.Context, companyID string, actor policy.Actor) error {
	member := false
	role, err := e.Repo.MembershipRole(ctx, companyID, actor.UserID)
	if err == nil && role == actor.Role {
		member = true
	} else if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return err
	}
	if !policy.CanView(actor.Role, member) {
		return repo.ErrNotFound
	}
	return nil
}

// Unlocked reports whether a step may be worked on given the statuses of its
// siblings. ceo_philosophy sits outside the chain and is always available.
// Under strict unlocking the prior step must be approved; otherwise a pending
// submission already opens the next step.
func Unlocked(steps map[domain.StepKey]domain.StepRecord, step domain.StepKey, strict bool) bool {
	if step == domain.StepCeoPhilosophy {
		return true
	}
	i := domain.StepIndex(step)
	if i < 0 {
		return false
	}
	if i == 0 {
		return true
	}
	prev := steps[domain.StepOrder[i-1]]
	if strict {
		return prev.Status.IsDone()
	}
	return prev.Status.AtLeastSubmitted()
}

// stepAnswers decodes the opaque payload into a key lookup. A nil or broken
// payload reads as empty.
func stepAnswers(rec domain.StepRecord) map[string]any {
	if rec.PayloadJSON == nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(*rec.PayloadJSON), &m); err != nil {
		return nil
	}
	return m
}

func answerString(rec domain.StepRecord, key string) string {
	v, _ := stepAnswers(rec)[key].(string)
	return v
}

// StartOrUpdate writes the step payload for the acting role, moving the step
// from not_started to in_progress on first touch. Calling it again while the
// step is in progress only replaces the payload: the operation is idempotent
// with respect to status. The CEO may additionally amend an HR-owned step
// while it sits under review, without changing its status.
func (e *Engine) StartOrUpdate(ctx context.Context, projectID string, step domain.StepKey, actor policy.Actor, payload map[string]any) (domain.StepRecord, error) {
	if !domain.ValidStep(step) {
		return domain.StepRecord{}, ValidationError{Step: step, Message: "unknown step"}
	}
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return domain.StepRecord{}, err
	}
	if err := e.requireActingRole(ctx, p.CompanyID, actor, policy.OpEdit, step); err != nil {
		return domain.StepRecord{}, err
	}
	steps, err := e.Repo.ListSteps(ctx, projectID)
	if err != nil {
		return domain.StepRecord{}, err
	}
	cur, ok := steps[step]
	if !ok {
		return domain.StepRecord{}, repo.ErrNotFound
	}
	if !policy.CanEdit(actor.Role, step, cur.Status) {
		if policy.Owns(actor.Role, step) {
			return domain.StepRecord{}, InvalidTransitionError{Step: step, Current: cur.Status, Requested: domain.StatusInProgress}
		}
		return domain.StepRecord{}, policy.UnauthorizedError{Role: actor.Role, Operation: policy.OpEdit, Step: step}
	}
	cfg := e.projectConfig(ctx, projectID)
	if cur.Status.CanEdit() && !Unlocked(steps, step, cfg.Workflow.StrictUnlock) {
		prev := domain.StepOrder[domain.StepIndex(step)-1]
		return domain.StepRecord{}, InvalidTransitionError{
			Step:      step,
			Current:   cur.Status,
			Requested: domain.StatusInProgress,
			Reason:    fmt.Sprintf("step %s is not unlocked yet (%s is %s)", step, prev, steps[prev].Status),
		}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return domain.StepRecord{}, fmt.Errorf("marshal step payload: %w", err)
	}
	ts := e.now()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.StepRecord{}, err
	}
	defer tx.Rollback()

	if cur.Status == domain.StatusNotStarted {
		won, err := e.Repo.TransitionStep(ctx, tx, projectID, step, domain.StatusNotStarted, domain.StatusInProgress, ts)
		if err != nil {
			return domain.StepRecord{}, err
		}
		if !won {
			// Lost the first-touch race. Re-read and carry on only if the
			// winner left the step editable.
			cur, err = e.Repo.GetStepTx(ctx, tx, projectID, step)
			if err != nil {
				return domain.StepRecord{}, err
			}
			if !policy.CanEdit(actor.Role, step, cur.Status) {
				return domain.StepRecord{}, InvalidTransitionError{Step: step, Current: cur.Status, Requested: domain.StatusInProgress}
			}
		}
	}
	if err := e.Repo.UpdateStepPayload(ctx, tx, projectID, step, string(data), ts); err != nil {
		return domain.StepRecord{}, err
	}
	if err := e.Events.Append(ctx, tx, events.TypeStepUpdated, p.CompanyID, "step", projectID+"/"+string(step), actor.UserID, events.EventPayload{
		"step": string(step),
	}); err != nil {
		return domain.StepRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.StepRecord{}, err
	}
	return e.Repo.GetStep(ctx, projectID, step)
}

// Submit moves an in-progress step to submitted after running the step's
// compatibility checks. A failed check leaves the step untouched in
// in_progress. Only the owning role submits.
func (e *Engine) Submit(ctx context.Context, projectID string, step domain.StepKey, actor policy.Actor) (domain.StepRecord, error) {
	if !domain.ValidStep(step) {
		return domain.StepRecord{}, ValidationError{Step: step, Message: "unknown step"}
	}
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return domain.StepRecord{}, err
	}
	if err := e.requireActingRole(ctx, p.CompanyID, actor, policy.OpSubmit, step); err != nil {
		return domain.StepRecord{}, err
	}
	if !policy.Owns(actor.Role, step) {
		return domain.StepRecord{}, policy.UnauthorizedError{Role: actor.Role, Operation: policy.OpSubmit, Step: step}
	}
	steps, err := e.Repo.ListSteps(ctx, projectID)
	if err != nil {
		return domain.StepRecord{}, err
	}
	cur, ok := steps[step]
	if !ok {
		return domain.StepRecord{}, repo.ErrNotFound
	}
	if cur.Status != domain.StatusInProgress {
		return domain.StepRecord{}, InvalidTransitionError{Step: step, Current: cur.Status, Requested: domain.StatusSubmitted}
	}
	if res := checkSubmit(step, steps); !res.Valid {
		return domain.StepRecord{}, ValidationError{Step: step, Message: res.Message}
	}
	ts := e.now()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.StepRecord{}, err
	}
	defer tx.Rollback()

	won, err := e.Repo.TransitionStep(ctx, tx, projectID, step, domain.StatusInProgress, domain.StatusSubmitted, ts)
	if err != nil {
		return domain.StepRecord{}, err
	}
	if !won {
		cur, err = e.Repo.GetStepTx(ctx, tx, projectID, step)
		if err != nil {
			return domain.StepRecord{}, err
		}
		return domain.StepRecord{}, InvalidTransitionError{Step: step, Current: cur.Status, Requested: domain.StatusSubmitted}
	}
	if err := e.Repo.SetStepSubmittedAt(ctx, tx, projectID, step, &ts); err != nil {
		return domain.StepRecord{}, err
	}
	if err := e.Events.Append(ctx, tx, events.TypeStepSubmitted, p.CompanyID, "step", projectID+"/"+string(step), actor.UserID, events.EventPayload{
		"step":     string(step),
		"reviewer": string(domain.ReviewerRole(step)),
	}); err != nil {
		return domain.StepRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.StepRecord{}, err
	}
	return e.Repo.GetStep(ctx, projectID, step)
}

// Verify approves a submitted step. The transition is a conditional update on
// status=submitted, so two concurrent verifies (or a verify racing a revision
// request) resolve to exactly one winner. Once every chain step is approved
// the project itself moves to completed.
func (e *Engine) Verify(ctx context.Context, projectID string, step domain.StepKey, actor policy.Actor) (domain.StepRecord, error) {
	return e.review(ctx, projectID, step, actor, true)
}

// RequestRevision pushes a submitted step back to in_progress so the owner
// can rework it. The payload survives; submitted_at is cleared.
func (e *Engine) RequestRevision(ctx context.Context, projectID string, step domain.StepKey, actor policy.Actor) (domain.StepRecord, error) {
	return e.review(ctx, projectID, step, actor, false)
}

func (e *Engine) review(ctx context.Context, projectID string, step domain.StepKey, actor policy.Actor, approve bool) (domain.StepRecord, error) {
	op := policy.OpVerify
	target := domain.StatusApproved
	evtType := events.TypeStepVerified
	if !approve {
		op = policy.OpRequestRevision
		target = domain.StatusInProgress
		evtType = events.TypeRevisionRequested
	}
	if !domain.ValidStep(step) {
		return domain.StepRecord{}, ValidationError{Step: step, Message: "unknown step"}
	}
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return domain.StepRecord{}, err
	}
	if err := e.requireActingRole(ctx, p.CompanyID, actor, op, step); err != nil {
		return domain.StepRecord{}, err
	}
	if !policy.Reviews(actor.Role, step) {
		return domain.StepRecord{}, policy.UnauthorizedError{Role: actor.Role, Operation: op, Step: step}
	}
	ts := e.now()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.StepRecord{}, err
	}
	defer tx.Rollback()

	won, err := e.Repo.TransitionStep(ctx, tx, projectID, step, domain.StatusSubmitted, target, ts)
	if err != nil {
		return domain.StepRecord{}, err
	}
	if !won {
		cur, err := e.Repo.GetStepTx(ctx, tx, projectID, step)
		if err != nil {
			return domain.StepRecord{}, err
		}
		return domain.StepRecord{}, InvalidTransitionError{Step: step, Current: cur.Status, Requested: target}
	}
	if approve {
		if err := e.Repo.SetStepCompletedAt(ctx, tx, projectID, step, ts); err != nil {
			return domain.StepRecord{}, err
		}
	} else {
		if err := e.Repo.SetStepSubmittedAt(ctx, tx, projectID, step, nil); err != nil {
			return domain.StepRecord{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, evtType, p.CompanyID, "step", projectID+"/"+string(step), actor.UserID, events.EventPayload{
		"step": string(step),
	}); err != nil {
		return domain.StepRecord{}, err
	}
	if approve {
		done, err := e.chainApprovedTx(ctx, tx, projectID)
		if err != nil {
			return domain.StepRecord{}, err
		}
		if done && p.Status == domain.ProjectActive {
			if err := e.Repo.UpdateProjectStatus(ctx, tx, projectID, domain.ProjectCompleted); err != nil {
				return domain.StepRecord{}, err
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.StepRecord{}, err
	}
	return e.Repo.GetStep(ctx, projectID, step)
}

// chainApprovedTx reports whether every ordered chain step is approved or
// locked, reading through the open transaction so the just-written approval
// counts.
func (e *Engine) chainApprovedTx(ctx context.Context, tx *sql.Tx, projectID string) (bool, error) {
	for _, step := range domain.StepOrder {
		rec, err := e.Repo.GetStepTx(ctx, tx, projectID, step)
		if err != nil {
			return false, err
		}
		if !rec.Status.IsDone() {
			return false, nil
		}
	}
	return true, nil
}

// checkSubmit runs the per-step compatibility checks against the current
// payloads. diagnosis and ceo_philosophy validate their own well-known answer
// when present; the three design steps additionally cross-check upstream
// choices.
func checkSubmit(step domain.StepKey, steps map[domain.StepKey]domain.StepRecord) rules.CompatibilityResult {
	switch step {
	case domain.StepDiagnosis:
		if stage := answerString(steps[step], "growth_stage"); stage != "" && !rules.ValidGrowthStage(rules.GrowthStage(stage)) {
			return rules.CompatibilityResult{Message: fmt.Sprintf("unknown growth_stage %q", stage)}
		}
	case domain.StepCeoPhilosophy:
		if trait := answerString(steps[step], "philosophy_trait"); trait != "" && !rules.ValidPhilosophyTrait(rules.PhilosophyTrait(trait)) {
			return rules.CompatibilityResult{Message: fmt.Sprintf("unknown philosophy_trait %q", trait)}
		}
	case domain.StepOrganization:
		return rules.ValidateOrganization(
			rules.StructureType(answerString(steps[step], "structure_type")),
			rules.GrowthStage(answerString(steps[domain.StepDiagnosis], "growth_stage")),
		)
	case domain.StepPerformance:
		return rules.ValidatePerformance(
			rules.PerformanceMethod(answerString(steps[step], "performance_method")),
			rules.StructureType(answerString(steps[domain.StepOrganization], "structure_type")),
		)
	case domain.StepCompensation:
		return rules.ValidateCompensation(
			rules.CompensationStructure(answerString(steps[step], "compensation_structure")),
			rules.PerformanceMethod(answerString(steps[domain.StepPerformance], "performance_method")),
			steps[domain.StepOrganization].Status.AtLeastSubmitted(),
		)
	}
	return rules.CompatibilityResult{Valid: true}
}
