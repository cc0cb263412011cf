package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"shopfloor/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// Timestamps are stored as RFC3339 TEXT; dates as YYYY-MM-DD TEXT.

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

func parseTimeCol(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, fmt.Errorf("parse timestamp %q: %w", ns.String, err)
	}
	return &t, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

const shiftCols = `id,actor_id,date,planned_start,time_in,time_out,lunch_state,lunch_start,lunch_end,is_late,created_at,updated_at`

type shiftScanner interface {
	Scan(dest ...any) error
}

func scanShift(row shiftScanner) (domain.Shift, error) {
	var s domain.Shift
	var planned, timeIn, timeOut, lunchStart, lunchEnd sql.NullString
	var lunchState, createdAt, updatedAt string
	var isLate int
	err := row.Scan(&s.ID, &s.ActorID, &s.Date, &planned, &timeIn, &timeOut, &lunchState, &lunchStart, &lunchEnd, &isLate, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	s.LunchState = domain.LunchState(lunchState)
	s.IsLate = isLate != 0
	if s.PlannedStart, err = parseTimeCol(planned); err != nil {
		return s, err
	}
	if s.TimeIn, err = parseTimeCol(timeIn); err != nil {
		return s, err
	}
	if s.TimeOut, err = parseTimeCol(timeOut); err != nil {
		return s, err
	}
	if s.LunchStart, err = parseTimeCol(lunchStart); err != nil {
		return s, err
	}
	if s.LunchEnd, err = parseTimeCol(lunchEnd); err != nil {
		return s, err
	}
	if s.CreatedAt, err = parseTime(createdAt); err != nil {
		return s, err
	}
	if s.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return s, err
	}
	return s, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (r Repo) InsertShift(ctx context.Context, tx *sql.Tx, s domain.Shift) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO shifts(`+shiftCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		s.ID, s.ActorID, s.Date, fmtTimePtr(s.PlannedStart), fmtTimePtr(s.TimeIn), fmtTimePtr(s.TimeOut),
		string(s.LunchState), fmtTimePtr(s.LunchStart), fmtTimePtr(s.LunchEnd), boolToInt(s.IsLate),
		fmtTime(s.CreatedAt), fmtTime(s.UpdatedAt))
	return err
}

func (r Repo) UpdateShift(ctx context.Context, tx *sql.Tx, s domain.Shift) error {
	res, err := tx.ExecContext(ctx, `UPDATE shifts SET planned_start=?, time_in=?, time_out=?, lunch_state=?, lunch_start=?, lunch_end=?, is_late=?, updated_at=? WHERE id=?`,
		fmtTimePtr(s.PlannedStart), fmtTimePtr(s.TimeIn), fmtTimePtr(s.TimeOut), string(s.LunchState),
		fmtTimePtr(s.LunchStart), fmtTimePtr(s.LunchEnd), boolToInt(s.IsLate), fmtTime(s.UpdatedAt), s.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetShift(ctx context.Context, id string) (domain.Shift, error) {
	return scanShift(r.DB.QueryRowContext(ctx, `SELECT `+shiftCols+` FROM shifts WHERE id=?`, id))
}

func (r Repo) GetShiftTx(ctx context.Context, tx *sql.Tx, id string) (domain.Shift, error) {
	return scanShift(tx.QueryRowContext(ctx, `SELECT `+shiftCols+` FROM shifts WHERE id=?`, id))
}

// GetShiftForDate returns the actor's shift for a calendar day.
func (r Repo) GetShiftForDate(ctx context.Context, tx *sql.Tx, actorID, date string) (domain.Shift, error) {
	return scanShift(tx.QueryRowContext(ctx, `SELECT `+shiftCols+` FROM shifts WHERE actor_id=? AND date=?`, actorID, date))
}

// GetOpenShift returns the actor's clocked-in, not-yet-clocked-out shift.
// The partial unique index guarantees at most one row qualifies.
func (r Repo) GetOpenShift(ctx context.Context, tx *sql.Tx, actorID string) (domain.Shift, error) {
	return scanShift(tx.QueryRowContext(ctx, `SELECT `+shiftCols+` FROM shifts WHERE actor_id=? AND time_in IS NOT NULL AND time_out IS NULL`, actorID))
}

func (r Repo) DeleteShift(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM shifts WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type ShiftFilters struct {
	ActorID  string
	DateFrom string
	DateTo   string
}

// ListShifts returns shifts matching the filters, newest day first.
func (r Repo) ListShifts(ctx context.Context, f ShiftFilters) ([]domain.Shift, error) {
	var clauses []string
	var args []any
	if f.ActorID != "" {
		clauses = append(clauses, "actor_id=?")
		args = append(args, f.ActorID)
	}
	if f.DateFrom != "" {
		clauses = append(clauses, "date>=?")
		args = append(args, f.DateFrom)
	}
	if f.DateTo != "" {
		clauses = append(clauses, "date<=?")
		args = append(args, f.DateTo)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+shiftCols+` FROM shifts `+where+` ORDER BY date DESC, actor_id ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Shift
	for rows.Next() {
		s, err := scanShift(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}
