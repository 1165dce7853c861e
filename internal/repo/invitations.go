package repo

import (
	"context"
	"database/sql"

	"orgforge/internal/domain"
)

func (r Repo) InsertInvitation(ctx context.Context, tx *sql.Tx, inv domain.Invitation) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO invitations(token,company_id,email,role,invited_by,expires_at,created_at) VALUES (?,?,?,?,?,?,?)`,
		inv.Token, inv.CompanyID, inv.Email, string(inv.Role), inv.InvitedBy, inv.ExpiresAt, inv.CreatedAt)
	return err
}

func scanInvitation(scan func(dest ...any) error) (domain.Invitation, error) {
	var inv domain.Invitation
	var role string
	var acceptedAt, acceptedBy sql.NullString
	err := scan(&inv.Token, &inv.CompanyID, &inv.Email, &role, &inv.InvitedBy, &inv.ExpiresAt, &acceptedAt, &acceptedBy, &inv.CreatedAt)
	if err == sql.ErrNoRows {
		return inv, ErrNotFound
	}
	if err != nil {
		return inv, err
	}
	inv.Role = domain.Role(role)
	if acceptedAt.Valid {
		inv.AcceptedAt = &acceptedAt.String
	}
	if acceptedBy.Valid {
		inv.AcceptedBy = &acceptedBy.String
	}
	return inv, nil
}

const invitationColumns = `token,company_id,email,role,invited_by,expires_at,accepted_at,accepted_by,created_at`

func (r Repo) GetInvitation(ctx context.Context, token string) (domain.Invitation, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE token=?`, token)
	return scanInvitation(row.Scan)
}

func (r Repo) ListInvitations(ctx context.Context, companyID string) ([]domain.Invitation, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE company_id=? ORDER BY created_at DESC, token DESC`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, inv)
	}
	return res, rows.Err()
}

// ConsumeInvitation marks the invitation accepted, conditionally on it still
// being pending and unexpired. Reports whether this call consumed it.
func (r Repo) ConsumeInvitation(ctx context.Context, tx *sql.Tx, token, userID, ts string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE invitations SET accepted_at=?, accepted_by=? WHERE token=? AND accepted_at IS NULL AND expires_at > ?`,
		ts, userID, token, ts)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
