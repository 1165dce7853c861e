package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"orgforge/internal/domain"
)

type Repo struct {
	DB *sql.DB
	// Now is the timestamp source; nil falls back to the wall clock.
	Now func() time.Time
}

var ErrNotFound = errors.New("not found")

func (r Repo) now() string {
	if r.Now != nil {
		return r.Now().UTC().Format(time.RFC3339)
	}
	return time.Now().UTC().Format(time.RFC3339)
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

// --- companies ---

func (r Repo) InsertCompany(ctx context.Context, tx *sql.Tx, c domain.Company) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO companies(id,name,created_by,created_at) VALUES (?,?,?,?)`,
		c.ID, c.Name, c.CreatedBy, c.CreatedAt)
	return err
}

func (r Repo) GetCompany(ctx context.Context, id string) (domain.Company, error) {
	var c domain.Company
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,created_by,created_at FROM companies WHERE id=?`, id).
		Scan(&c.ID, &c.Name, &c.CreatedBy, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

func (r Repo) ListCompanies(ctx context.Context) ([]domain.Company, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,created_by,created_at FROM companies ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Company
	for rows.Next() {
		var c domain.Company
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedBy, &c.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// ListCompaniesForUser returns the companies the user is a member of.
func (r Repo) ListCompaniesForUser(ctx context.Context, userID string) ([]domain.Company, error) {
	rows, err := r.DB.QueryContext(ctx, `
SELECT c.id,c.name,c.created_by,c.created_at FROM companies c
JOIN memberships m ON m.company_id=c.id
WHERE m.user_id=? ORDER BY c.created_at DESC, c.id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Company
	for rows.Next() {
		var c domain.Company
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedBy, &c.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// --- users ---

func (r Repo) EnsureUser(ctx context.Context, tx *sql.Tx, userID, email string) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO users(id,email,created_at) VALUES (?,?,?)`,
		userID, nullable(email), r.now())
	return err
}

// --- memberships ---

func (r Repo) UpsertMembership(ctx context.Context, tx *sql.Tx, m domain.Membership) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO memberships(company_id,user_id,role,created_at) VALUES (?,?,?,?)
ON CONFLICT(company_id,user_id) DO UPDATE SET role=excluded.role`,
		m.CompanyID, m.UserID, string(m.Role), m.CreatedAt)
	return err
}

// MembershipRole returns the user's role on the company, or ErrNotFound when
// the pairing does not exist.
func (r Repo) MembershipRole(ctx context.Context, companyID, userID string) (domain.Role, error) {
	var role string
	err := r.DB.QueryRowContext(ctx, `SELECT role FROM memberships WHERE company_id=? AND user_id=?`, companyID, userID).Scan(&role)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return domain.Role(role), err
}

func (r Repo) ListMemberships(ctx context.Context, companyID string) ([]domain.Membership, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT company_id,user_id,role,created_at FROM memberships WHERE company_id=? ORDER BY created_at ASC, user_id ASC`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Membership
	for rows.Next() {
		var m domain.Membership
		var role string
		if err := rows.Scan(&m.CompanyID, &m.UserID, &role, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Role = domain.Role(role)
		res = append(res, m)
	}
	return res, rows.Err()
}

// UserHoldsRole reports whether the user holds the role on at least one
// company.
func (r Repo) UserHoldsRole(ctx context.Context, userID string, role domain.Role) (bool, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM memberships WHERE user_id=? AND role=?`, userID, string(role)).Scan(&n)
	return n > 0, err
}

// RolesByCompany returns the user's role per company id.
func (r Repo) RolesByCompany(ctx context.Context, userID string) (map[string]domain.Role, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT company_id,role FROM memberships WHERE user_id=?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]domain.Role{}
	for rows.Next() {
		var companyID, role string
		if err := rows.Scan(&companyID, &role); err != nil {
			return nil, err
		}
		res[companyID] = domain.Role(role)
	}
	return res, rows.Err()
}

// --- projects ---

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.HrProject) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO hr_projects(id,company_id,status,created_by,created_at,updated_at) VALUES (?,?,?,?,?,?)`,
		p.ID, p.CompanyID, p.Status, p.CreatedBy, p.CreatedAt, p.UpdatedAt)
	return err
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.HrProject, error) {
	var p domain.HrProject
	err := r.DB.QueryRowContext(ctx, `SELECT id,company_id,status,created_by,created_at,updated_at FROM hr_projects WHERE id=?`, id).
		Scan(&p.ID, &p.CompanyID, &p.Status, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

// ActiveProject returns the company's current project, if any. Completed and
// locked projects still count as the active cycle; only deletion frees the
// slot for a new one.
func (r Repo) ActiveProject(ctx context.Context, companyID string) (domain.HrProject, error) {
	var p domain.HrProject
	err := r.DB.QueryRowContext(ctx, `SELECT id,company_id,status,created_by,created_at,updated_at FROM hr_projects WHERE company_id=? ORDER BY created_at DESC LIMIT 1`, companyID).
		Scan(&p.ID, &p.CompanyID, &p.Status, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

func (r Repo) UpdateProjectStatus(ctx context.Context, tx *sql.Tx, id, status string) error {
	res, err := tx.ExecContext(ctx, `UPDATE hr_projects SET status=?, updated_at=? WHERE id=?`, status, r.now(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteProject(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM hr_projects WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
