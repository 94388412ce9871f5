package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/kilianp07/gridready/core/model"
	"github.com/kilianp07/gridready/core/readiness"
)

type recordRow struct {
	PlantID         string        `db:"plant_id"`
	ScheduleDate    string        `db:"schedule_date"`
	PlantName       string        `db:"plant_name"`
	Status          string        `db:"status"`
	TriggerReason   string        `db:"trigger_reason"`
	RevisionNumber  int           `db:"revision_number"`
	UploadDeadline  sql.NullInt64 `db:"upload_deadline"`
	LastChecked     int64         `db:"last_checked"`
	SignalWatermark int64         `db:"signal_watermark"`
	UpdatedAt       int64         `db:"updated_at"`
	Version         int64         `db:"version"`
}

const recordColumns = `plant_id, schedule_date, plant_name, status, trigger_reason, revision_number,
	upload_deadline, last_checked, signal_watermark, updated_at, version`

func (r recordRow) record() (model.Record, error) {
	date, err := time.Parse(model.DateLayout, r.ScheduleDate)
	if err != nil {
		return model.Record{}, fmt.Errorf("record %s: %w", r.PlantID, err)
	}
	rec := model.Record{
		PlantID:         r.PlantID,
		PlantName:       r.PlantName,
		ScheduleDate:    date,
		Status:          model.Status(r.Status),
		TriggerReason:   model.ParseReasons(r.TriggerReason),
		RevisionNumber:  r.RevisionNumber,
		LastChecked:     fromMillis(r.LastChecked),
		SignalWatermark: fromMillis(r.SignalWatermark),
		UpdatedAt:       fromMillis(r.UpdatedAt),
		Version:         uint64(r.Version),
	}
	if r.UploadDeadline.Valid {
		d := fromMillis(r.UploadDeadline.Int64)
		rec.UploadDeadline = &d
	}
	return rec, nil
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func (s *Store) Get(ctx context.Context, key model.RecordKey) (model.Record, bool, error) {
	var row recordRow
	err := s.db.GetContext(ctx, &row, s.rebind(`SELECT `+recordColumns+` FROM readiness_records
		WHERE plant_id = ? AND schedule_date = ?`), key.PlantID, key.Date.Format(model.DateLayout))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Record{PlantID: key.PlantID, ScheduleDate: key.Date, Status: model.StatusNoAction}, false, nil
	}
	if err != nil {
		return model.Record{}, false, fmt.Errorf("get record %s: %w", key, err)
	}
	rec, err := row.record()
	return rec, err == nil, err
}

func (s *Store) Apply(ctx context.Context, m readiness.Mutation) (model.Record, error) {
	rec := m.Record.Clone()
	key := rec.Key()
	rec.ScheduleDate = key.Date
	rec.Version = m.ExpectedVersion + 1
	date := key.Date.Format(model.DateLayout)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return model.Record{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var res sql.Result
	if m.ExpectedVersion == 0 {
		res, err = tx.ExecContext(ctx, s.rebind(`INSERT INTO readiness_records (`+recordColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (plant_id, schedule_date) DO NOTHING`),
			rec.PlantID, date, rec.PlantName, string(rec.Status), reasonsColumn(rec.TriggerReason), rec.RevisionNumber,
			nullMillis(rec.UploadDeadline), toMillis(rec.LastChecked), toMillis(rec.SignalWatermark),
			toMillis(rec.UpdatedAt), int64(rec.Version))
	} else {
		res, err = tx.ExecContext(ctx, s.rebind(`UPDATE readiness_records SET
			plant_name = ?, status = ?, trigger_reason = ?, revision_number = ?, upload_deadline = ?,
			last_checked = ?, signal_watermark = ?, updated_at = ?, version = ?
			WHERE plant_id = ? AND schedule_date = ? AND version = ?`),
			rec.PlantName, string(rec.Status), reasonsColumn(rec.TriggerReason), rec.RevisionNumber,
			nullMillis(rec.UploadDeadline), toMillis(rec.LastChecked), toMillis(rec.SignalWatermark),
			toMillis(rec.UpdatedAt), int64(rec.Version),
			rec.PlantID, date, int64(m.ExpectedVersion))
	}
	if err != nil {
		return model.Record{}, fmt.Errorf("write record %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.Record{}, err
	}
	if n == 0 {
		return model.Record{}, readiness.ErrVersionMismatch
	}

	if m.ProcessTriggers {
		if _, err := tx.ExecContext(ctx, s.rebind(`UPDATE trigger_events SET processed = 1
			WHERE plant_id = ? AND schedule_date = ? AND processed = 0`), rec.PlantID, date); err != nil {
			return model.Record{}, fmt.Errorf("process triggers %s: %w", key, err)
		}
	}
	for _, ev := range m.Events {
		if err := s.insertTrigger(ctx, tx, ev); err != nil {
			return model.Record{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return model.Record{}, err
	}
	return rec, nil
}

// reasonsColumn stores the set without spaces; ParseReasons trims either way.
func reasonsColumn(r model.ReasonSet) string {
	parts := make([]string, len(r))
	for i, t := range r {
		parts[i] = string(t)
	}
	return strings.Join(parts, ",")
}

func (s *Store) insertTrigger(ctx context.Context, tx *sqlx.Tx, ev model.TriggerEvent) error {
	_, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO trigger_events
		(id, plant_id, schedule_date, trigger_type, severity, description, threshold_value, actual_value, detected_at, processed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		ev.ID, ev.PlantID, model.Day(ev.ScheduleDate).Format(model.DateLayout), string(ev.TriggerType),
		string(ev.Severity), ev.Detail, nullFloat(ev.ThresholdValue), nullFloat(ev.ActualValue),
		toMillis(ev.DetectedAt), boolToInt(ev.Processed))
	if err != nil {
		return fmt.Errorf("insert trigger %s: %w", ev.ID, err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, f readiness.RecordFilter) ([]model.Record, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.PlantID != "" {
		where = append(where, "plant_id = ?")
		args = append(args, f.PlantID)
	}
	if !f.Date.IsZero() {
		where = append(where, "schedule_date = ?")
		args = append(args, model.Day(f.Date).Format(model.DateLayout))
	}
	q := `SELECT ` + recordColumns + ` FROM readiness_records` + whereClause(where) + ` ORDER BY schedule_date, plant_id`
	var rows []recordRow
	if err := s.db.SelectContext(ctx, &rows, s.rebind(q), args...); err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	out := make([]model.Record, 0, len(rows))
	for _, r := range rows {
		rec, err := r.record()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

type triggerRow struct {
	ID             string          `db:"id"`
	PlantID        string          `db:"plant_id"`
	ScheduleDate   string          `db:"schedule_date"`
	TriggerType    string          `db:"trigger_type"`
	Severity       string          `db:"severity"`
	Description    string          `db:"description"`
	ThresholdValue sql.NullFloat64 `db:"threshold_value"`
	ActualValue    sql.NullFloat64 `db:"actual_value"`
	DetectedAt     int64           `db:"detected_at"`
	Processed      int             `db:"processed"`
}

func (r triggerRow) event() model.TriggerEvent {
	date, _ := time.Parse(model.DateLayout, r.ScheduleDate)
	ev := model.TriggerEvent{
		ID:           r.ID,
		PlantID:      r.PlantID,
		ScheduleDate: date,
		TriggerType:  model.TriggerType(r.TriggerType),
		Severity:     model.Severity(r.Severity),
		Detail:       r.Description,
		DetectedAt:   fromMillis(r.DetectedAt),
		Processed:    r.Processed != 0,
	}
	if r.ThresholdValue.Valid {
		v := r.ThresholdValue.Float64
		ev.ThresholdValue = &v
	}
	if r.ActualValue.Valid {
		v := r.ActualValue.Float64
		ev.ActualValue = &v
	}
	return ev
}

func (s *Store) QueryTriggers(ctx context.Context, q readiness.TriggerQuery) ([]model.TriggerEvent, error) {
	var (
		where []string
		args  []any
	)
	if q.PlantID != "" {
		where = append(where, "plant_id = ?")
		args = append(args, q.PlantID)
	}
	if q.TriggerType != "" {
		where = append(where, "trigger_type = ?")
		args = append(args, string(q.TriggerType))
	}
	if q.Processed != nil {
		where = append(where, "processed = ?")
		args = append(args, boolToInt(*q.Processed))
	}
	query := `SELECT id, plant_id, schedule_date, trigger_type, severity, description, threshold_value,
		actual_value, detected_at, processed FROM trigger_events` + whereClause(where) + ` ORDER BY seq DESC`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}
	var rows []triggerRow
	if err := s.db.SelectContext(ctx, &rows, s.rebind(query), args...); err != nil {
		return nil, fmt.Errorf("query triggers: %w", err)
	}
	out := make([]model.TriggerEvent, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.event())
	}
	return out, nil
}

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

var _ readiness.Store = (*Store)(nil)
