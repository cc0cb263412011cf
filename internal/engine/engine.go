package engine

import (
	"context"
	"database/sql"
	"time"

	"shopfloor/internal/config"
	"shopfloor/internal/domain"
	"shopfloor/internal/events"
	"shopfloor/internal/repo"
)

// Engine owns the Shift Ledger, the Work-Session Ledger and the Efficiency
// Aggregator. All mutating calls for one actor serialize through a per-actor
// lock; aggregator reads take no locks.
type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time

	locks *actorLocks
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		locks:  newActorLocks(),
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

const dateLayout = "2006-01-02"

func dateOf(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

func (e Engine) lateGrace() time.Duration {
	minutes := 15
	if e.Config != nil {
		minutes = e.Config.Attendance.LateGraceMinutes
	}
	return time.Duration(minutes) * time.Minute
}

// ResolveQRPoint maps an opaque scan token to its registered point.
func (e Engine) ResolveQRPoint(ctx context.Context, token string) (domain.QRPoint, error) {
	return e.Repo.GetQRPointByToken(ctx, token)
}
