package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"shopfloor/internal/config"
)

func (r Repo) UpsertSiteConfig(ctx context.Context, siteID string, cfg *config.Config) error {
	return upsertSiteConfig(ctx, r.DB, nil, siteID, cfg)
}

func (r Repo) UpsertSiteConfigTx(ctx context.Context, tx *sql.Tx, siteID string, cfg *config.Config) error {
	return upsertSiteConfig(ctx, nil, tx, siteID, cfg)
}

func upsertSiteConfig(ctx context.Context, db *sql.DB, tx *sql.Tx, siteID string, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	cfg.Site.ID = siteID
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	exec := func(query string, args ...any) (sql.Result, error) {
		if tx != nil {
			return tx.ExecContext(ctx, query, args...)
		}
		return db.ExecContext(ctx, query, args...)
	}
	_, err = exec(`INSERT INTO site_configs(site_id,config_json,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(site_id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`, siteID, string(payload), now, now)
	return err
}

func (r Repo) GetSiteConfig(ctx context.Context, siteID string) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM site_configs WHERE site_id=?`, siteID).Scan(&payload)
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
	if cfg.Site.ID == "" {
		cfg.Site.ID = siteID
	}
	return &cfg, cfg.Validate()
}

// SingleSite returns the only configured site, or an error when zero or many
// exist and the caller must specify one.
func (r Repo) SingleSite(ctx context.Context) (string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT site_id FROM site_configs`)
	if err != nil {
		return "", err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", err
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return "", ErrNotFound
	}
	if len(ids) > 1 {
		return "", fmt.Errorf("multiple sites exist; specify --site")
	}
	return ids[0], nil
}
