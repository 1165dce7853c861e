package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"orgforge/internal/config"
)

func (r Repo) UpsertProjectConfig(ctx context.Context, projectID string, cfg *config.Config) error {
	return upsertProjectConfig(ctx, r.DB, nil, projectID, cfg, r.now())
}

func (r Repo) UpsertProjectConfigTx(ctx context.Context, tx *sql.Tx, projectID string, cfg *config.Config) error {
	return upsertProjectConfig(ctx, nil, tx, projectID, cfg, r.now())
}

func upsertProjectConfig(ctx context.Context, db *sql.DB, tx *sql.Tx, projectID string, cfg *config.Config, ts string) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	cfg.Project.ID = projectID
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	exec := func(query string, args ...any) (sql.Result, error) {
		if tx != nil {
			return tx.ExecContext(ctx, query, args...)
		}
		return db.ExecContext(ctx, query, args...)
	}
	_, err = exec(`INSERT INTO project_configs(project_id,config_json,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(project_id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`, projectID, string(payload), ts, ts)
	return err
}

// ListProjectConfigs returns every stored per-project config. Rows that no
// longer parse are skipped rather than failing the whole listing; the webhook
// dispatcher resolves its sinks from this set on every pass.
func (r Repo) ListProjectConfigs(ctx context.Context) ([]*config.Config, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT project_id, config_json FROM project_configs ORDER BY project_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []*config.Config
	for rows.Next() {
		var projectID, payload string
		if err := rows.Scan(&projectID, &payload); err != nil {
			return nil, err
		}
		var cfg config.Config
		if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
			continue
		}
		if cfg.Project.ID == "" {
			cfg.Project.ID = projectID
		}
		res = append(res, &cfg)
	}
	return res, rows.Err()
}

func (r Repo) GetProjectConfig(ctx context.Context, projectID string) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM project_configs WHERE project_id=?`, projectID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, err
	}
	if cfg.Project.ID == "" {
		cfg.Project.ID = projectID
	}
	return &cfg, cfg.Validate()
}
