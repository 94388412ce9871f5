package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/kilianp07/gridready/config"
	"github.com/kilianp07/gridready/core/audit"
	"github.com/kilianp07/gridready/core/notify"
	"github.com/kilianp07/gridready/core/readiness"
	"github.com/kilianp07/gridready/infra/sqlstore"
)

// stores groups the persistence backends selected by the configuration.
type stores struct {
	records readiness.Store
	feed    notify.Feed
	audit   audit.Store
	sql     *sqlstore.Store
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	st := &stores{}
	switch cfg.Store.Driver {
	case config.StoreSQLite, config.StorePostgres:
		db, err := sqlstore.Open(ctx, cfg.Store.SQL())
		if err != nil {
			return nil, fmt.Errorf("store: %w", err)
		}
		st.sql = db
		st.records = db
		st.feed = db.Feed()
	default:
		st.records = readiness.NewMemoryStore()
		st.feed = notify.NewMemoryFeed()
	}

	switch cfg.Audit.Backend {
	case config.AuditNone:
	case config.AuditSQL:
		if st.sql == nil {
			_ = st.close()
			return nil, fmt.Errorf("audit: backend sql needs a sql store driver")
		}
		st.audit = st.sql.Audit()
	case config.AuditJSONL:
		a, err := audit.NewRotatingJSONLStore(cfg.Audit.Path, cfg.Audit.MaxSizeMB, cfg.Audit.MaxBackups, cfg.Audit.MaxAgeDays)
		if err != nil {
			_ = st.close()
			return nil, fmt.Errorf("audit: %w", err)
		}
		st.audit = a
	default:
		st.audit = audit.NewMemoryStore()
	}
	return st, nil
}

// Ping reports whether the record store is reachable.
func (s *stores) Ping(ctx context.Context) error {
	if s.sql == nil {
		return nil
	}
	return s.sql.Ping(ctx)
}

func (s *stores) close() error {
	var errs []error
	if s.audit != nil {
		errs = append(errs, s.audit.Close())
	}
	if err := s.records.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
