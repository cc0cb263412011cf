package repo

import (
	"context"
	"database/sql"
	"strings"

	"shopfloor/internal/domain"
)

const workLogCols = `id,actor_id,task_id,start_time,end_time,quantity_produced,defect_quantity`

func scanWorkLog(row shiftScanner) (domain.WorkLog, error) {
	var w domain.WorkLog
	var start string
	var end sql.NullString
	err := row.Scan(&w.ID, &w.ActorID, &w.TaskID, &start, &end, &w.QuantityProduced, &w.DefectQuantity)
	if err == sql.ErrNoRows {
		return w, ErrNotFound
	}
	if err != nil {
		return w, err
	}
	if w.StartTime, err = parseTime(start); err != nil {
		return w, err
	}
	if w.EndTime, err = parseTimeCol(end); err != nil {
		return w, err
	}
	return w, nil
}

func (r Repo) InsertWorkLog(ctx context.Context, tx *sql.Tx, w domain.WorkLog) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO work_logs(`+workLogCols+`) VALUES (?,?,?,?,?,?,?)`,
		w.ID, w.ActorID, w.TaskID, fmtTime(w.StartTime), fmtTimePtr(w.EndTime), w.QuantityProduced, w.DefectQuantity)
	return err
}

// CloseWorkLog sets the end timestamp and final quantities.
func (r Repo) CloseWorkLog(ctx context.Context, tx *sql.Tx, w domain.WorkLog) error {
	res, err := tx.ExecContext(ctx, `UPDATE work_logs SET end_time=?, quantity_produced=?, defect_quantity=? WHERE id=?`,
		fmtTimePtr(w.EndTime), w.QuantityProduced, w.DefectQuantity, w.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetWorkLog(ctx context.Context, id string) (domain.WorkLog, error) {
	w, err := scanWorkLog(r.DB.QueryRowContext(ctx, `SELECT `+workLogCols+` FROM work_logs WHERE id=?`, id))
	if err != nil {
		return w, err
	}
	w.Pauses, err = r.listPauses(ctx, r.DB.QueryContext, id)
	return w, err
}

func (r Repo) GetWorkLogTx(ctx context.Context, tx *sql.Tx, id string) (domain.WorkLog, error) {
	w, err := scanWorkLog(tx.QueryRowContext(ctx, `SELECT `+workLogCols+` FROM work_logs WHERE id=?`, id))
	if err != nil {
		return w, err
	}
	w.Pauses, err = r.listPauses(ctx, tx.QueryContext, id)
	return w, err
}

// GetOpenWorkLog returns the actor's open session; the partial unique index
// guarantees at most one.
func (r Repo) GetOpenWorkLog(ctx context.Context, actorID string) (domain.WorkLog, error) {
	w, err := scanWorkLog(r.DB.QueryRowContext(ctx, `SELECT `+workLogCols+` FROM work_logs WHERE actor_id=? AND end_time IS NULL`, actorID))
	if err != nil {
		return w, err
	}
	w.Pauses, err = r.listPauses(ctx, r.DB.QueryContext, w.ID)
	return w, err
}

func (r Repo) GetOpenWorkLogTx(ctx context.Context, tx *sql.Tx, actorID string) (domain.WorkLog, error) {
	w, err := scanWorkLog(tx.QueryRowContext(ctx, `SELECT `+workLogCols+` FROM work_logs WHERE actor_id=? AND end_time IS NULL`, actorID))
	if err != nil {
		return w, err
	}
	w.Pauses, err = r.listPauses(ctx, tx.QueryContext, w.ID)
	return w, err
}

type queryFn func(ctx context.Context, query string, args ...any) (*sql.Rows, error)

func (r Repo) listPauses(ctx context.Context, query queryFn, workLogID string) ([]domain.WorkLogPause, error) {
	rows, err := query(ctx, `SELECT id,work_log_id,pause_start,pause_end FROM work_log_pauses WHERE work_log_id=? ORDER BY pause_start ASC, id ASC`, workLogID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.WorkLogPause
	for rows.Next() {
		var p domain.WorkLogPause
		var start string
		var end sql.NullString
		if err := rows.Scan(&p.ID, &p.WorkLogID, &start, &end); err != nil {
			return nil, err
		}
		if p.PauseStart, err = parseTime(start); err != nil {
			return nil, err
		}
		if p.PauseEnd, err = parseTimeCol(end); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) InsertPause(ctx context.Context, tx *sql.Tx, p domain.WorkLogPause) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO work_log_pauses(id,work_log_id,pause_start,pause_end) VALUES (?,?,?,?)`,
		p.ID, p.WorkLogID, fmtTime(p.PauseStart), fmtTimePtr(p.PauseEnd))
	return err
}

func (r Repo) ClosePause(ctx context.Context, tx *sql.Tx, p domain.WorkLogPause) error {
	res, err := tx.ExecContext(ctx, `UPDATE work_log_pauses SET pause_end=? WHERE id=?`, fmtTimePtr(p.PauseEnd), p.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type WorkLogFilters struct {
	ActorID     string
	TaskID      string
	StartFrom   string // inclusive bound on start_time, RFC3339
	StartBefore string // exclusive bound on start_time, RFC3339
	ClosedOnly  bool
}

// ListWorkLogs returns sessions matching the filters with pauses attached,
// ordered by start time.
func (r Repo) ListWorkLogs(ctx context.Context, f WorkLogFilters) ([]domain.WorkLog, error) {
	var clauses []string
	var args []any
	if f.ActorID != "" {
		clauses = append(clauses, "actor_id=?")
		args = append(args, f.ActorID)
	}
	if f.TaskID != "" {
		clauses = append(clauses, "task_id=?")
		args = append(args, f.TaskID)
	}
	if f.StartFrom != "" {
		clauses = append(clauses, "start_time>=?")
		args = append(args, f.StartFrom)
	}
	if f.StartBefore != "" {
		clauses = append(clauses, "start_time<?")
		args = append(args, f.StartBefore)
	}
	if f.ClosedOnly {
		clauses = append(clauses, "end_time IS NOT NULL")
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+workLogCols+` FROM work_logs `+where+` ORDER BY start_time ASC, id ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.WorkLog
	for rows.Next() {
		w, err := scanWorkLog(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		res[i].Pauses, err = r.listPauses(ctx, r.DB.QueryContext, res[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}
