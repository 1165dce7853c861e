package repo

import (
	"context"
	"database/sql"

	"orgforge/internal/domain"
)

func scanStep(scan func(dest ...any) error) (domain.StepRecord, error) {
	var s domain.StepRecord
	var step, status string
	var payload, submittedAt, completedAt sql.NullString
	err := scan(&s.ProjectID, &step, &status, &payload, &submittedAt, &completedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	s.Step = domain.StepKey(step)
	s.Status = domain.StepStatus(status)
	if payload.Valid {
		s.PayloadJSON = &payload.String
	}
	if submittedAt.Valid {
		s.SubmittedAt = &submittedAt.String
	}
	if completedAt.Valid {
		s.CompletedAt = &completedAt.String
	}
	return s, nil
}

const stepColumns = `project_id,step_key,status,payload_json,submitted_at,completed_at,updated_at`

func (r Repo) GetStep(ctx context.Context, projectID string, step domain.StepKey) (domain.StepRecord, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+stepColumns+` FROM project_steps WHERE project_id=? AND step_key=?`, projectID, string(step))
	return scanStep(row.Scan)
}

func (r Repo) GetStepTx(ctx context.Context, tx *sql.Tx, projectID string, step domain.StepKey) (domain.StepRecord, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+stepColumns+` FROM project_steps WHERE project_id=? AND step_key=?`, projectID, string(step))
	return scanStep(row.Scan)
}

// ListSteps returns all step rows of a project keyed for aggregate reads.
func (r Repo) ListSteps(ctx context.Context, projectID string) (map[domain.StepKey]domain.StepRecord, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+stepColumns+` FROM project_steps WHERE project_id=?`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[domain.StepKey]domain.StepRecord{}
	for rows.Next() {
		s, err := scanStep(rows.Scan)
		if err != nil {
			return nil, err
		}
		res[s.Step] = s
	}
	return res, rows.Err()
}

// InitStepRows fills missing step rows with not_started. Idempotent: existing
// rows are never overwritten.
func (r Repo) InitStepRows(ctx context.Context, tx *sql.Tx, projectID string, steps []domain.StepKey, ts string) error {
	for _, step := range steps {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO project_steps(project_id,step_key,status,updated_at) VALUES (?,?,?,?)`,
			projectID, string(step), string(domain.StatusNotStarted), ts); err != nil {
			return err
		}
	}
	return nil
}

// UpdateStepPayload writes the payload without touching status.
func (r Repo) UpdateStepPayload(ctx context.Context, tx *sql.Tx, projectID string, step domain.StepKey, payloadJSON string, ts string) error {
	res, err := tx.ExecContext(ctx, `UPDATE project_steps SET payload_json=?, updated_at=? WHERE project_id=? AND step_key=?`,
		payloadJSON, ts, projectID, string(step))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// TransitionStep performs the conditional status update that closes the
// double-submit/double-verify race: the write succeeds only when the row
// still holds the expected status. It reports whether it won the race.
func (r Repo) TransitionStep(ctx context.Context, tx *sql.Tx, projectID string, step domain.StepKey, from, to domain.StepStatus, ts string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE project_steps SET status=?, updated_at=? WHERE project_id=? AND step_key=? AND status=?`,
		string(to), ts, projectID, string(step), string(from))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r Repo) SetStepSubmittedAt(ctx context.Context, tx *sql.Tx, projectID string, step domain.StepKey, submittedAt *string) error {
	_, err := tx.ExecContext(ctx, `UPDATE project_steps SET submitted_at=? WHERE project_id=? AND step_key=?`,
		nullableStringPtr(submittedAt), projectID, string(step))
	return err
}

func (r Repo) SetStepCompletedAt(ctx context.Context, tx *sql.Tx, projectID string, step domain.StepKey, completedAt string) error {
	_, err := tx.ExecContext(ctx, `UPDATE project_steps SET completed_at=? WHERE project_id=? AND step_key=?`,
		completedAt, projectID, string(step))
	return err
}

// LockSteps marks every step row locked regardless of prior status. Used only
// by project locking, after the engine has verified all steps are approved.
func (r Repo) LockSteps(ctx context.Context, tx *sql.Tx, projectID string, ts string) error {
	_, err := tx.ExecContext(ctx, `UPDATE project_steps SET status=?, completed_at=COALESCE(completed_at,?), updated_at=? WHERE project_id=?`,
		string(domain.StatusLocked), ts, ts, projectID)
	return err
}

// CountStepsByStatus returns per-status counts for aggregate progress views.
func (r Repo) CountStepsByStatus(ctx context.Context, projectID string) (map[domain.StepStatus]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM project_steps WHERE project_id=? GROUP BY status`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[domain.StepStatus]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[domain.StepStatus(status)] = count
	}
	return res, rows.Err()
}
