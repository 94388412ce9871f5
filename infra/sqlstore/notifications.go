package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kilianp07/gridready/core/model"
	"github.com/kilianp07/gridready/core/notify"
)

type notificationRow struct {
	ID               string        `db:"id"`
	PlantID          string        `db:"plant_id"`
	PlantName        string        `db:"plant_name"`
	NotificationType string        `db:"notification_type"`
	Title            string        `db:"title"`
	Message          string        `db:"message"`
	Priority         string        `db:"priority"`
	IsRead           int           `db:"is_read"`
	ActionRequired   int           `db:"action_required"`
	Deadline         sql.NullInt64 `db:"deadline"`
	CreatedAt        int64         `db:"created_at"`
}

func (r notificationRow) notification() model.Notification {
	n := model.Notification{
		ID:               r.ID,
		PlantID:          r.PlantID,
		PlantName:        r.PlantName,
		NotificationType: model.NotificationType(r.NotificationType),
		Title:            r.Title,
		Message:          r.Message,
		Priority:         model.Priority(r.Priority),
		Read:             r.IsRead != 0,
		ActionRequired:   r.ActionRequired != 0,
		CreatedAt:        fromMillis(r.CreatedAt),
	}
	if r.Deadline.Valid {
		d := fromMillis(r.Deadline.Int64)
		n.Deadline = &d
	}
	return n
}

// Feed exposes the notifications table as a notify.Feed.
func (s *Store) Feed() notify.Feed { return notificationFeed{s} }

type notificationFeed struct{ s *Store }

func (f notificationFeed) Append(ctx context.Context, n model.Notification) error {
	_, err := f.s.db.ExecContext(ctx, f.s.rebind(`INSERT INTO notifications
		(id, plant_id, plant_name, notification_type, title, message, priority, is_read, action_required, deadline, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`),
		n.ID, n.PlantID, n.PlantName, string(n.NotificationType), n.Title, n.Message, string(n.Priority),
		boolToInt(n.Read), boolToInt(n.ActionRequired), nullMillis(n.Deadline), toMillis(n.CreatedAt))
	if err != nil {
		return fmt.Errorf("append notification %s: %w", n.ID, err)
	}
	return nil
}

func (f notificationFeed) List(ctx context.Context, q notify.Query) ([]model.Notification, error) {
	q = q.Normalize()
	var (
		where []string
		args  []any
	)
	if q.UnreadOnly {
		where = append(where, "is_read = 0")
	}
	if q.PlantID != "" {
		where = append(where, "plant_id = ?")
		args = append(args, q.PlantID)
	}
	args = append(args, q.Limit)
	var rows []notificationRow
	err := f.s.db.SelectContext(ctx, &rows, f.s.rebind(`SELECT id, plant_id, plant_name, notification_type, title,
		message, priority, is_read, action_required, deadline, created_at FROM notifications`+
		whereClause(where)+` ORDER BY created_at DESC, seq DESC LIMIT ?`), args...)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	out := make([]model.Notification, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.notification())
	}
	return out, nil
}

func (f notificationFeed) MarkRead(ctx context.Context, id string) error {
	res, err := f.s.db.ExecContext(ctx, f.s.rebind(`UPDATE notifications SET is_read = 1 WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("mark notification %s read: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}
	var count int
	if err := f.s.db.GetContext(ctx, &count, f.s.rebind(`SELECT COUNT(*) FROM notifications WHERE id = ?`), id); err != nil {
		return err
	}
	if count == 0 {
		return notify.ErrNotFound
	}
	return nil
}

func (f notificationFeed) MarkAllRead(ctx context.Context, plantID string) (int, error) {
	q := `UPDATE notifications SET is_read = 1 WHERE is_read = 0`
	var args []any
	if plantID != "" {
		q += ` AND plant_id = ?`
		args = append(args, plantID)
	}
	res, err := f.s.db.ExecContext(ctx, f.s.rebind(q), args...)
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (f notificationFeed) UnreadCount(ctx context.Context, plantID string) (int, error) {
	q := `SELECT COUNT(*) FROM notifications WHERE is_read = 0`
	var args []any
	if plantID != "" {
		q += ` AND plant_id = ?`
		args = append(args, plantID)
	}
	var n int
	if err := f.s.db.GetContext(ctx, &n, f.s.rebind(q), args...); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return n, nil
}
