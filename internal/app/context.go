// Package app holds the glue the CLI uses to turn flags into a concrete
// company and project before calling the engine.
package app

import (
	"context"
	"errors"
	"fmt"

	"orgforge/internal/domain"
	"orgforge/internal/repo"
)

// ResolveProject picks the project a CLI invocation operates on. An explicit
// --project id wins; otherwise --company narrows to that company's cycle; and
// with neither, a workspace containing exactly one company resolves to its
// project.
func ResolveProject(ctx context.Context, r repo.Repo, projectOverride, companyOverride string) (domain.HrProject, error) {
	if projectOverride != "" {
		return r.GetProject(ctx, projectOverride)
	}
	companyID := companyOverride
	if companyID == "" {
		companies, err := r.ListCompanies(ctx)
		if err != nil {
			return domain.HrProject{}, err
		}
		switch len(companies) {
		case 0:
			return domain.HrProject{}, fmt.Errorf("no companies in workspace; run 'orgforge company create' first")
		case 1:
			companyID = companies[0].ID
		default:
			return domain.HrProject{}, fmt.Errorf("multiple companies in workspace; use --company or --project")
		}
	}
	p, err := r.ActiveProject(ctx, companyID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.HrProject{}, fmt.Errorf("company %s has no project; run 'orgforge project create'", companyID)
		}
		return domain.HrProject{}, err
	}
	return p, nil
}

// ResolveCompany picks the company a CLI invocation operates on, with the
// same single-company fallback.
func ResolveCompany(ctx context.Context, r repo.Repo, companyOverride string) (domain.Company, error) {
	if companyOverride != "" {
		return r.GetCompany(ctx, companyOverride)
	}
	companies, err := r.ListCompanies(ctx)
	if err != nil {
		return domain.Company{}, err
	}
	switch len(companies) {
	case 0:
		return domain.Company{}, fmt.Errorf("no companies in workspace; run 'orgforge company create' first")
	case 1:
		return companies[0], nil
	default:
		return domain.Company{}, fmt.Errorf("multiple companies in workspace; use --company")
	}
}
