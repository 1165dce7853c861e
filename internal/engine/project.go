package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"orgforge/internal/config"
	"orgforge/internal/domain"
	"orgforge/internal/events"
	"orgforge/internal/policy"
	"orgforge/internal/recommend"
	"orgforge/internal/repo"
	"orgforge/internal/rules"
)

// CreateProject opens a design cycle for the company. A company carries at
// most one project; deletion is the only way to free the slot. All six step
// rows are created up front in not_started, so later status reads never have
// to special-case missing rows.
func (e *Engine) CreateProject(ctx context.Context, companyID string, actor policy.Actor) (domain.HrProject, error) {
	if _, err := e.Repo.GetCompany(ctx, companyID); err != nil {
		return domain.HrProject{}, err
	}
	if err := e.requireActingRole(ctx, companyID, actor, "create_project", ""); err != nil {
		return domain.HrProject{}, err
	}
	if actor.Role != domain.RoleHRManager {
		return domain.HrProject{}, policy.UnauthorizedError{Role: actor.Role, Operation: "create_project"}
	}
	if _, err := e.Repo.ActiveProject(ctx, companyID); err == nil {
		return domain.HrProject{}, ConflictError{Message: fmt.Sprintf("company %s already has a project", companyID)}
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.HrProject{}, err
	}
	ts := e.now()
	p := domain.HrProject{
		ID:        uuid.NewString(),
		CompanyID: companyID,
		Status:    domain.ProjectActive,
		CreatedBy: actor.UserID,
		CreatedAt: ts,
		UpdatedAt: ts,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.HrProject{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
		return domain.HrProject{}, err
	}
	if err := e.Repo.InitStepRows(ctx, tx, p.ID, domain.AllSteps, ts); err != nil {
		return domain.HrProject{}, err
	}
	cfg := config.Default(p.ID)
	if e.Config != nil {
		seeded := *e.Config
		seeded.Project.ID = p.ID
		cfg = &seeded
	}
	if err := e.Repo.UpsertProjectConfigTx(ctx, tx, p.ID, cfg); err != nil {
		return domain.HrProject{}, err
	}
	if err := e.Events.Append(ctx, tx, events.TypeProjectCreated, companyID, "project", p.ID, actor.UserID, nil); err != nil {
		return domain.HrProject{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.HrProject{}, err
	}
	return p, nil
}

// Project returns the project after a visibility check. No access reads the
// same as no project.
func (e *Engine) Project(ctx context.Context, projectID string, actor policy.Actor) (domain.HrProject, error) {
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return domain.HrProject{}, err
	}
	if err := e.requireView(ctx, p.CompanyID, actor); err != nil {
		return domain.HrProject{}, err
	}
	return p, nil
}

// Step returns one step record after a visibility check.
func (e *Engine) Step(ctx context.Context, projectID string, step domain.StepKey, actor policy.Actor) (domain.StepRecord, error) {
	if !domain.ValidStep(step) {
		return domain.StepRecord{}, repo.ErrNotFound
	}
	if _, err := e.Project(ctx, projectID, actor); err != nil {
		return domain.StepRecord{}, err
	}
	return e.Repo.GetStep(ctx, projectID, step)
}

// LockProject freezes a finished cycle. Every chain step must already be
// approved; then all step rows, ceo_philosophy included, move to locked and
// no further edits or reviews are possible.
func (e *Engine) LockProject(ctx context.Context, projectID string, actor policy.Actor) (domain.HrProject, error) {
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return domain.HrProject{}, err
	}
	if err := e.requireActingRole(ctx, p.CompanyID, actor, "lock_project", ""); err != nil {
		return domain.HrProject{}, err
	}
	if actor.Role != domain.RoleHRManager {
		return domain.HrProject{}, policy.UnauthorizedError{Role: actor.Role, Operation: "lock_project"}
	}
	steps, err := e.Repo.ListSteps(ctx, projectID)
	if err != nil {
		return domain.HrProject{}, err
	}
	for _, key := range domain.StepOrder {
		if !steps[key].Status.IsDone() {
			return domain.HrProject{}, InvalidTransitionError{
				Step:      key,
				Current:   steps[key].Status,
				Requested: domain.StatusLocked,
				Reason:    fmt.Sprintf("step %s is %s, locking requires every step approved", key, steps[key].Status),
			}
		}
	}
	ts := e.now()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.HrProject{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.LockSteps(ctx, tx, projectID, ts); err != nil {
		return domain.HrProject{}, err
	}
	if err := e.Repo.UpdateProjectStatus(ctx, tx, projectID, domain.ProjectLocked); err != nil {
		return domain.HrProject{}, err
	}
	if err := e.Events.Append(ctx, tx, events.TypeProjectLocked, p.CompanyID, "project", projectID, actor.UserID, nil); err != nil {
		return domain.HrProject{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.HrProject{}, err
	}
	return e.Repo.GetProject(ctx, projectID)
}

// IsFullyLocked reports whether every step of the project, the philosophy
// record included, has been frozen by a project lock. View-gated like the
// other aggregate reads.
func (e *Engine) IsFullyLocked(ctx context.Context, projectID string, actor policy.Actor) (bool, error) {
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return false, err
	}
	if err := e.requireView(ctx, p.CompanyID, actor); err != nil {
		return false, err
	}
	steps, err := e.Repo.ListSteps(ctx, projectID)
	if err != nil {
		return false, err
	}
	return allStepsLocked(steps), nil
}

func allStepsLocked(steps map[domain.StepKey]domain.StepRecord) bool {
	for _, key := range domain.AllSteps {
		if steps[key].Status != domain.StatusLocked {
			return false
		}
	}
	return true
}

// DeleteProject removes the project and everything hanging off it. Only the
// HR manager who created it may delete; a locked project is still deletable,
// deletion being the way to start over.
func (e *Engine) DeleteProject(ctx context.Context, projectID string, actor policy.Actor) error {
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	if err := e.requireActingRole(ctx, p.CompanyID, actor, "delete_project", ""); err != nil {
		return err
	}
	if actor.Role != domain.RoleHRManager || p.CreatedBy != actor.UserID {
		return policy.UnauthorizedError{Role: actor.Role, Operation: "delete_project"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.DeleteProject(ctx, tx, projectID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.TypeProjectDeleted, p.CompanyID, "project", projectID, actor.UserID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// ImportConfig replaces the project's stored configuration.
func (e *Engine) ImportConfig(ctx context.Context, projectID string, actor policy.Actor, cfg *config.Config) error {
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	if err := e.requireActingRole(ctx, p.CompanyID, actor, "configure_project", ""); err != nil {
		return err
	}
	if actor.Role != domain.RoleHRManager {
		return policy.UnauthorizedError{Role: actor.Role, Operation: "configure_project"}
	}
	cfg.Project.ID = projectID
	if err := cfg.Validate(); err != nil {
		return err
	}
	return e.Repo.UpsertProjectConfig(ctx, projectID, cfg)
}

// StepProgress is one row of the aggregate progress view.
type StepProgress struct {
	Step        domain.StepKey     `json:"step" enum:"diagnosis,ceo_philosophy,organization,performance,compensation,hr_policy_os"`
	Status      domain.StepStatus  `json:"status" enum:"not_started,in_progress,submitted,approved,locked"`
	Unlocked    bool               `json:"unlocked"`
	Operations  []policy.Operation `json:"operations,omitempty"`
	SubmittedAt *string            `json:"submitted_at,omitempty" format:"date-time"`
	CompletedAt *string            `json:"completed_at,omitempty" format:"date-time"`
}

// Progress is the aggregate view of a design cycle for one acting role: per
// step, its status plus exactly the operations that role may perform on it
// right now.
type Progress struct {
	ProjectID string         `json:"project_id"`
	CompanyID string         `json:"company_id"`
	Status    string         `json:"status" enum:"draft,active,completed,locked"`
	Steps     []StepProgress `json:"steps"`
	Done      int            `json:"done"`
	Total     int            `json:"total"`
	// FullyLocked is true once a project lock has frozen every step.
	FullyLocked bool `json:"fully_locked"`
}

// Progress builds the aggregate view. Steps appear in chain order with
// ceo_philosophy after diagnosis, mirroring the timeline they are worked in.
func (e *Engine) Progress(ctx context.Context, projectID string, actor policy.Actor) (Progress, error) {
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return Progress{}, err
	}
	if err := e.requireView(ctx, p.CompanyID, actor); err != nil {
		return Progress{}, err
	}
	member := false
	if role, err := e.Repo.MembershipRole(ctx, p.CompanyID, actor.UserID); err == nil && role == actor.Role {
		member = true
	}
	steps, err := e.Repo.ListSteps(ctx, projectID)
	if err != nil {
		return Progress{}, err
	}
	cfg := e.projectConfig(ctx, projectID)
	out := Progress{ProjectID: projectID, CompanyID: p.CompanyID, Status: p.Status, Total: len(domain.AllSteps), FullyLocked: allStepsLocked(steps)}
	for _, key := range domain.AllSteps {
		rec := steps[key]
		sp := StepProgress{
			Step:        key,
			Status:      rec.Status,
			Unlocked:    Unlocked(steps, key, cfg.Workflow.StrictUnlock),
			Operations:  policy.AllowedOperations(actor.Role, key, rec.Status, member),
			SubmittedAt: rec.SubmittedAt,
			CompletedAt: rec.CompletedAt,
		}
		if rec.Status.IsDone() || (key == domain.StepCeoPhilosophy && rec.Status.AtLeastSubmitted()) {
			out.Done++
		}
		out.Steps = append(out.Steps, sp)
	}
	return out, nil
}

// RecommendationSet bundles the three rankings computed from whatever
// upstream answers exist. Draft answers count: a recommendation is a planning
// aid, not a gate, so it reflects the payloads as written.
type RecommendationSet struct {
	Structures             []recommend.Recommendation `json:"structures"`
	PerformanceMethods     []recommend.Recommendation `json:"performance_methods"`
	CompensationStructures []recommend.Recommendation `json:"compensation_structures"`
}

// Recommendations ranks structure, performance, and compensation options for
// the project from its current step payloads.
func (e *Engine) Recommendations(ctx context.Context, projectID string, actor policy.Actor) (RecommendationSet, error) {
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return RecommendationSet{}, err
	}
	if err := e.requireView(ctx, p.CompanyID, actor); err != nil {
		return RecommendationSet{}, err
	}
	steps, err := e.Repo.ListSteps(ctx, projectID)
	if err != nil {
		return RecommendationSet{}, err
	}
	in := recommend.Input{
		GrowthStage:       rules.GrowthStage(answerString(steps[domain.StepDiagnosis], "growth_stage")),
		PhilosophyTrait:   rules.PhilosophyTrait(answerString(steps[domain.StepCeoPhilosophy], "philosophy_trait")),
		StructureType:     rules.StructureType(answerString(steps[domain.StepOrganization], "structure_type")),
		PerformanceMethod: rules.PerformanceMethod(answerString(steps[domain.StepPerformance], "performance_method")),
	}
	return RecommendationSet{
		Structures:             recommend.Structures(in),
		PerformanceMethods:     recommend.PerformanceMethods(in),
		CompensationStructures: recommend.CompensationStructures(in),
	}, nil
}
