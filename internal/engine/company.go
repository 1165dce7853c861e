package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"orgforge/internal/config"
	"orgforge/internal/domain"
	"orgforge/internal/events"
	"orgforge/internal/policy"
)

// A single cached validator instance, per the library's guidance.
var validate = validator.New()

// CreateCompany registers a company and makes the creator its HR manager.
// Company creation is how an HR manager enters the system, so there is no
// pre-existing membership to check.
func (e *Engine) CreateCompany(ctx context.Context, name string, actor policy.Actor) (domain.Company, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Company{}, ValidationError{Message: "company name is required"}
	}
	if actor.Role != domain.RoleHRManager {
		return domain.Company{}, policy.UnauthorizedError{Role: actor.Role, Operation: "create_company"}
	}
	ts := e.now()
	c := domain.Company{ID: uuid.NewString(), Name: name, CreatedBy: actor.UserID, CreatedAt: ts}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Company{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.EnsureUser(ctx, tx, actor.UserID, ""); err != nil {
		return domain.Company{}, err
	}
	if err := e.Repo.InsertCompany(ctx, tx, c); err != nil {
		return domain.Company{}, err
	}
	if err := e.Repo.UpsertMembership(ctx, tx, domain.Membership{
		CompanyID: c.ID,
		UserID:    actor.UserID,
		Role:      domain.RoleHRManager,
		CreatedAt: ts,
	}); err != nil {
		return domain.Company{}, err
	}
	if err := e.Events.Append(ctx, tx, events.TypeCompanyCreated, c.ID, "company", c.ID, actor.UserID, events.EventPayload{
		"name": name,
	}); err != nil {
		return domain.Company{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Company{}, err
	}
	return c, nil
}

// Company returns the company after a visibility check.
func (e *Engine) Company(ctx context.Context, companyID string, actor policy.Actor) (domain.Company, error) {
	c, err := e.Repo.GetCompany(ctx, companyID)
	if err != nil {
		return domain.Company{}, err
	}
	if err := e.requireView(ctx, companyID, actor); err != nil {
		return domain.Company{}, err
	}
	return c, nil
}

// Companies lists what the actor can see: consultants and admins see every
// company, members see theirs.
func (e *Engine) Companies(ctx context.Context, actor policy.Actor) ([]domain.Company, error) {
	if actor.Role == domain.RoleConsultant || actor.Role == domain.RoleAdmin {
		return e.Repo.ListCompanies(ctx)
	}
	return e.Repo.ListCompaniesForUser(ctx, actor.UserID)
}

// InviteMember issues a token inviting an email address into the company
// under a fixed role. Only the HR manager invites, and only ceo or consultant
// are grantable. The invitation lands in the event log, where notification
// sinks pick it up for delivery.
func (e *Engine) InviteMember(ctx context.Context, companyID, email string, role domain.Role, actor policy.Actor) (domain.Invitation, error) {
	if _, err := e.Repo.GetCompany(ctx, companyID); err != nil {
		return domain.Invitation{}, err
	}
	if err := e.requireActingRole(ctx, companyID, actor, "invite", ""); err != nil {
		return domain.Invitation{}, err
	}
	if actor.Role != domain.RoleHRManager {
		return domain.Invitation{}, policy.UnauthorizedError{Role: actor.Role, Operation: "invite"}
	}
	if role != domain.RoleCEO && role != domain.RoleConsultant {
		return domain.Invitation{}, ValidationError{Message: fmt.Sprintf("role %s is not invitable", role)}
	}
	email = strings.TrimSpace(email)
	if err := validate.Var(email, "required,email"); err != nil {
		return domain.Invitation{}, ValidationError{Message: fmt.Sprintf("invalid email %q", email)}
	}
	ttl := time.Duration(e.projectConfigForCompany(ctx, companyID).InvitationTTLHours()) * time.Hour
	ts := e.now()
	created, _ := time.Parse(time.RFC3339, ts)
	inv := domain.Invitation{
		Token:     uuid.NewString(),
		CompanyID: companyID,
		Email:     email,
		Role:      role,
		InvitedBy: actor.UserID,
		ExpiresAt: created.Add(ttl).UTC().Format(time.RFC3339),
		CreatedAt: ts,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Invitation{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertInvitation(ctx, tx, inv); err != nil {
		return domain.Invitation{}, err
	}
	if err := e.Events.Append(ctx, tx, events.TypeInviteCreated, companyID, "invitation", inv.Token, actor.UserID, events.EventPayload{
		"email": email,
		"role":  string(role),
	}); err != nil {
		return domain.Invitation{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Invitation{}, err
	}
	return inv, nil
}

// projectConfigForCompany resolves invitation settings through the company's
// current project, falling back to engine defaults when there is none.
func (e *Engine) projectConfigForCompany(ctx context.Context, companyID string) *config.Config {
	p, err := e.Repo.ActiveProject(ctx, companyID)
	if err != nil {
		return e.Config
	}
	return e.projectConfig(ctx, p.ID)
}

// AcceptInvitation redeems a token for the given user and grants the invited
// role as a membership. Consumption is a conditional update, so a token can
// be redeemed exactly once and never after expiry.
func (e *Engine) AcceptInvitation(ctx context.Context, token, userID, email string) (domain.Invitation, error) {
	inv, err := e.Repo.GetInvitation(ctx, token)
	if err != nil {
		return domain.Invitation{}, err
	}
	ts := e.now()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Invitation{}, err
	}
	defer tx.Rollback()

	consumed, err := e.Repo.ConsumeInvitation(ctx, tx, token, userID, ts)
	if err != nil {
		return domain.Invitation{}, err
	}
	if !consumed {
		return domain.Invitation{}, ConflictError{Message: "invitation already accepted or expired"}
	}
	if err := e.Repo.EnsureUser(ctx, tx, userID, email); err != nil {
		return domain.Invitation{}, err
	}
	if err := e.Repo.UpsertMembership(ctx, tx, domain.Membership{
		CompanyID: inv.CompanyID,
		UserID:    userID,
		Role:      inv.Role,
		CreatedAt: ts,
	}); err != nil {
		return domain.Invitation{}, err
	}
	if err := e.Events.Append(ctx, tx, events.TypeInviteAccepted, inv.CompanyID, "invitation", token, userID, events.EventPayload{
		"role": string(inv.Role),
	}); err != nil {
		return domain.Invitation{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Invitation{}, err
	}
	return e.Repo.GetInvitation(ctx, token)
}

// Invitations lists a company's invitations for its HR manager.
func (e *Engine) Invitations(ctx context.Context, companyID string, actor policy.Actor) ([]domain.Invitation, error) {
	if _, err := e.Repo.GetCompany(ctx, companyID); err != nil {
		return nil, err
	}
	if err := e.requireActingRole(ctx, companyID, actor, "list_invitations", ""); err != nil {
		return nil, err
	}
	if actor.Role != domain.RoleHRManager {
		return nil, policy.UnauthorizedError{Role: actor.Role, Operation: "list_invitations"}
	}
	return e.Repo.ListInvitations(ctx, companyID)
}

// Memberships lists a company's members after a visibility check.
func (e *Engine) Memberships(ctx context.Context, companyID string, actor policy.Actor) ([]domain.Membership, error) {
	if _, err := e.Repo.GetCompany(ctx, companyID); err != nil {
		return nil, err
	}
	if err := e.requireView(ctx, companyID, actor); err != nil {
		return nil, err
	}
	return e.Repo.ListMemberships(ctx, companyID)
}
