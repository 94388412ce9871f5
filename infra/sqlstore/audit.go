package sqlstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kilianp07/gridready/core/audit"
)

// Audit exposes the audit_log table as an audit.Store. Closing it is a
// no-op; the owning Store closes the connection.
func (s *Store) Audit() audit.Store { return auditLog{s} }

type auditLog struct{ s *Store }

func (a auditLog) Append(ctx context.Context, e audit.Entry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = a.s.db.ExecContext(ctx, a.s.rebind(`INSERT INTO audit_log (ts, plant_id, entry) VALUES (?, ?, ?)`),
		toMillis(e.Timestamp), e.PlantID, string(b))
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

func (a auditLog) Query(ctx context.Context, q audit.Query) ([]audit.Entry, error) {
	var (
		where []string
		args  []any
	)
	if !q.Start.IsZero() {
		where = append(where, "ts >= ?")
		args = append(args, toMillis(q.Start))
	}
	if !q.End.IsZero() {
		where = append(where, "ts <= ?")
		args = append(args, toMillis(q.End))
	}
	if q.PlantID != "" {
		where = append(where, "plant_id = ?")
		args = append(args, q.PlantID)
	}
	inner := `SELECT seq, entry FROM audit_log` + whereClause(where) + ` ORDER BY seq DESC`
	if q.Limit > 0 {
		inner += ` LIMIT ?`
		args = append(args, q.Limit)
	}
	var raw []string
	if err := a.s.db.SelectContext(ctx, &raw, a.s.rebind(`SELECT entry FROM (`+inner+`) recent ORDER BY seq`), args...); err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	out := make([]audit.Entry, 0, len(raw))
	for _, r := range raw {
		var e audit.Entry
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (a auditLog) Close() error { return nil }
