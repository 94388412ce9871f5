package sqlstore

import (
	"context"
	"fmt"
	"strings"
)

type dialect struct {
	// autoID is the column definition of a monotonically increasing key.
	autoID  string
	pragmas []string
}

var dialects = map[string]dialect{
	DriverSQLite: {
		autoID:  "INTEGER PRIMARY KEY AUTOINCREMENT",
		pragmas: []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"},
	},
	DriverPostgres: {
		autoID: "BIGSERIAL PRIMARY KEY",
	},
}

type migration struct {
	version int
	stmts   []string
}

var migrations = []migration{
	{version: 1, stmts: []string{
		`CREATE TABLE IF NOT EXISTS readiness_records (
			plant_id         TEXT NOT NULL,
			schedule_date    TEXT NOT NULL,
			plant_name       TEXT NOT NULL DEFAULT '',
			status           TEXT NOT NULL,
			trigger_reason   TEXT NOT NULL DEFAULT '',
			revision_number  INTEGER NOT NULL DEFAULT 0,
			upload_deadline  BIGINT,
			last_checked     BIGINT NOT NULL DEFAULT 0,
			signal_watermark BIGINT NOT NULL DEFAULT 0,
			updated_at       BIGINT NOT NULL DEFAULT 0,
			version          BIGINT NOT NULL,
			PRIMARY KEY (plant_id, schedule_date)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_readiness_status ON readiness_records (status)`,
		`CREATE TABLE IF NOT EXISTS trigger_events (
			seq             {{AUTO_ID}},
			id              TEXT NOT NULL UNIQUE,
			plant_id        TEXT NOT NULL,
			schedule_date   TEXT NOT NULL,
			trigger_type    TEXT NOT NULL,
			severity        TEXT NOT NULL,
			description     TEXT NOT NULL DEFAULT '',
			threshold_value DOUBLE PRECISION,
			actual_value    DOUBLE PRECISION,
			detected_at     BIGINT NOT NULL,
			processed       INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trigger_events_key ON trigger_events (plant_id, schedule_date)`,
		`CREATE TABLE IF NOT EXISTS notifications (
			seq               {{AUTO_ID}},
			id                TEXT NOT NULL UNIQUE,
			plant_id          TEXT NOT NULL,
			plant_name        TEXT NOT NULL DEFAULT '',
			notification_type TEXT NOT NULL,
			title             TEXT NOT NULL,
			message           TEXT NOT NULL DEFAULT '',
			priority          TEXT NOT NULL,
			is_read           INTEGER NOT NULL DEFAULT 0,
			action_required   INTEGER NOT NULL DEFAULT 0,
			deadline          BIGINT,
			created_at        BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_plant ON notifications (plant_id, is_read)`,
	}},
	{version: 2, stmts: []string{
		`CREATE TABLE IF NOT EXISTS audit_log (
			seq      {{AUTO_ID}},
			ts       BIGINT NOT NULL,
			plant_id TEXT NOT NULL,
			entry    TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_plant ON audit_log (plant_id, ts)`,
	}},
}

// migrate applies the migrations newer than the recorded schema version.
func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("creating schema_version: %w", err)
	}
	var current int
	if err := s.db.GetContext(ctx, &current, `SELECT COALESCE(MAX(version), 0) FROM schema_version`); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		for _, stmt := range m.stmts {
			stmt = strings.ReplaceAll(stmt, "{{AUTO_ID}}", s.dialect.autoID)
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("applying migration v%d: %w", m.version, err)
			}
		}
		if _, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO schema_version (version) VALUES (?)`), m.version); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}
