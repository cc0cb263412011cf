package app

import (
	"context"
	"errors"
	"fmt"

	"shopfloor/internal/config"
	"shopfloor/internal/repo"
)

// ResolveSiteAndConfig picks the active site and ensures its config exists in
// the DB, seeding defaults if missing. It prefers the override, then the
// single configured site.
func ResolveSiteAndConfig(ctx context.Context, siteOverride string, r repo.Repo) (string, *config.Config, error) {
	siteID := siteOverride
	if siteID == "" {
		id, err := r.SingleSite(ctx)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				siteID = "default"
			} else {
				return "", nil, err
			}
		} else {
			siteID = id
		}
	}
	cfg, err := r.GetSiteConfig(ctx, siteID)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		cfg = config.Default(siteID)
		if err := r.UpsertSiteConfig(ctx, siteID, cfg); err != nil {
			return "", nil, fmt.Errorf("seed site config: %w", err)
		}
	}
	cfg.Site.ID = siteID
	return siteID, cfg, nil
}
