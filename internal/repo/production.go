package repo

import (
	"context"
	"database/sql"

	"shopfloor/internal/domain"
)

func (r Repo) InsertMachine(ctx context.Context, tx *sql.Tx, m domain.Machine) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO machines(id,name,efficiency_norm_per_hour,created_at) VALUES (?,?,?,?)`,
		m.ID, m.Name, m.EfficiencyNormHour, fmtTime(m.CreatedAt))
	return err
}

func (r Repo) GetMachine(ctx context.Context, id string) (domain.Machine, error) {
	var m domain.Machine
	var created string
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,efficiency_norm_per_hour,created_at FROM machines WHERE id=?`, id).
		Scan(&m.ID, &m.Name, &m.EfficiencyNormHour, &created)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	if err != nil {
		return m, err
	}
	m.CreatedAt, err = parseTime(created)
	return m, err
}

func (r Repo) ListMachines(ctx context.Context) ([]domain.Machine, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,efficiency_norm_per_hour,created_at FROM machines ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Machine
	for rows.Next() {
		var m domain.Machine
		var created string
		if err := rows.Scan(&m.ID, &m.Name, &m.EfficiencyNormHour, &created); err != nil {
			return nil, err
		}
		if m.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

const taskCols = `id,machine_id,name,total_quantity,completed_quantity,defect_quantity,created_at`

func scanTask(row shiftScanner) (domain.Task, error) {
	var t domain.Task
	var created string
	err := row.Scan(&t.ID, &t.MachineID, &t.Name, &t.TotalQuantity, &t.CompletedQuantity, &t.DefectQuantity, &created)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	t.CreatedAt, err = parseTime(created)
	return t, err
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(`+taskCols+`) VALUES (?,?,?,?,?,?,?)`,
		t.ID, t.MachineID, t.Name, t.TotalQuantity, t.CompletedQuantity, t.DefectQuantity, fmtTime(t.CreatedAt))
	return err
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return scanTask(r.DB.QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE id=?`, id))
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id string) (domain.Task, error) {
	return scanTask(tx.QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE id=?`, id))
}

func (r Repo) ListTasks(ctx context.Context) ([]domain.Task, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+taskCols+` FROM tasks ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// TaskNorm is the production-task view the aggregator consumes: the owning
// machine's norm plus the task's quantity counters.
type TaskNorm struct {
	TaskID             string
	MachineID          string
	EfficiencyNormHour float64
	TotalQuantity      int
	CompletedQuantity  int
	DefectQuantity     int
}

func (r Repo) GetTaskNorm(ctx context.Context, taskID string) (TaskNorm, error) {
	var n TaskNorm
	err := r.DB.QueryRowContext(ctx, `SELECT t.id, t.machine_id, m.efficiency_norm_per_hour, t.total_quantity, t.completed_quantity, t.defect_quantity
FROM tasks t JOIN machines m ON m.id = t.machine_id WHERE t.id=?`, taskID).
		Scan(&n.TaskID, &n.MachineID, &n.EfficiencyNormHour, &n.TotalQuantity, &n.CompletedQuantity, &n.DefectQuantity)
	if err == sql.ErrNoRows {
		return n, ErrNotFound
	}
	return n, err
}

// AddTaskQuantities atomically bumps a task's completed and defect counters.
func (r Repo) AddTaskQuantities(ctx context.Context, tx *sql.Tx, taskID string, produced, defects int) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET completed_quantity=completed_quantity+?, defect_quantity=defect_quantity+? WHERE id=?`,
		produced, defects, taskID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertQRPoint(ctx context.Context, tx *sql.Tx, p domain.QRPoint) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO qr_points(id,token,type,label,created_at) VALUES (?,?,?,?,?)`,
		p.ID, p.Token, string(p.Type), nullable(p.Label), fmtTime(p.CreatedAt))
	return err
}

// GetQRPointByToken resolves a scan token; unknown tokens are ErrNotFound.
func (r Repo) GetQRPointByToken(ctx context.Context, token string) (domain.QRPoint, error) {
	var p domain.QRPoint
	var label sql.NullString
	var typ, created string
	err := r.DB.QueryRowContext(ctx, `SELECT id,token,type,label,created_at FROM qr_points WHERE token=?`, token).
		Scan(&p.ID, &p.Token, &typ, &label, &created)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.Type = domain.QRPointType(typ)
	if label.Valid {
		p.Label = label.String
	}
	p.CreatedAt, err = parseTime(created)
	return p, err
}

func (r Repo) ListQRPoints(ctx context.Context) ([]domain.QRPoint, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,token,type,label,created_at FROM qr_points ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.QRPoint
	for rows.Next() {
		var p domain.QRPoint
		var label sql.NullString
		var typ, created string
		if err := rows.Scan(&p.ID, &p.Token, &typ, &label, &created); err != nil {
			return nil, err
		}
		p.Type = domain.QRPointType(typ)
		if label.Valid {
			p.Label = label.String
		}
		if p.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}
