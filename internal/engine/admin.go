package engine

import (
	"context"

	"github.com/google/uuid"

	"shopfloor/internal/domain"
	"shopfloor/internal/events"
)

// CreateMachine registers a machine with its efficiency norm.
func (e Engine) CreateMachine(ctx context.Context, name string, normPerHour float64, actorID string) (domain.Machine, error) {
	if name == "" {
		return domain.Machine{}, invalidInputf("name is required")
	}
	if normPerHour < 0 {
		return domain.Machine{}, invalidInputf("efficiency norm must be >= 0")
	}
	m := domain.Machine{
		ID:                 uuid.New().String(),
		Name:               name,
		EfficiencyNormHour: normPerHour,
		CreatedAt:          e.now(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Machine{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertMachine(ctx, tx, m); err != nil {
		return domain.Machine{}, err
	}
	if err := e.Events.Append(ctx, tx, events.MachineCreated, "machine", m.ID, actorID, events.EventPayload{
		"name": name,
		"norm": normPerHour,
	}); err != nil {
		return domain.Machine{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Machine{}, err
	}
	return m, nil
}

// CreateTask registers a production task on a machine.
func (e Engine) CreateTask(ctx context.Context, machineID, name string, totalQuantity int, actorID string) (domain.Task, error) {
	if name == "" {
		return domain.Task{}, invalidInputf("name is required")
	}
	if totalQuantity < 0 {
		return domain.Task{}, invalidInputf("total quantity must be >= 0")
	}
	if _, err := e.Repo.GetMachine(ctx, machineID); err != nil {
		return domain.Task{}, err
	}
	t := domain.Task{
		ID:            uuid.New().String(),
		MachineID:     machineID,
		Name:          name,
		TotalQuantity: totalQuantity,
		CreatedAt:     e.now(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, events.TaskCreated, "task", t.ID, actorID, events.EventPayload{
		"machine_id":     machineID,
		"name":           name,
		"total_quantity": totalQuantity,
	}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// RegisterQRPoint binds a scan token to a point type. Tokens are opaque; a
// blank token gets a generated one.
func (e Engine) RegisterQRPoint(ctx context.Context, token string, pointType domain.QRPointType, label, actorID string) (domain.QRPoint, error) {
	switch pointType {
	case domain.PointEntrance, domain.PointExit, domain.PointBreakArea, domain.PointLunch:
	default:
		return domain.QRPoint{}, invalidInputf("unknown point type %q", pointType)
	}
	if token == "" {
		token = uuid.New().String()
	}
	p := domain.QRPoint{
		ID:        uuid.New().String(),
		Token:     token,
		Type:      pointType,
		Label:     label,
		CreatedAt: e.now(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.QRPoint{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertQRPoint(ctx, tx, p); err != nil {
		return domain.QRPoint{}, err
	}
	if err := e.Events.Append(ctx, tx, events.QRRegistered, "qr_point", p.ID, actorID, events.EventPayload{
		"type":  string(pointType),
		"label": label,
	}); err != nil {
		return domain.QRPoint{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.QRPoint{}, err
	}
	return p, nil
}

// ScanToken resolves a QR token and feeds the scan into the shift ledger.
func (e Engine) ScanToken(ctx context.Context, actorID, token string) (domain.Shift, domain.QRPoint, error) {
	point, err := e.ResolveQRPoint(ctx, token)
	if err != nil {
		return domain.Shift{}, domain.QRPoint{}, err
	}
	s, err := e.ProcessScan(ctx, actorID, point.Type, e.now())
	if err != nil {
		return domain.Shift{}, point, err
	}
	return s, point, nil
}
