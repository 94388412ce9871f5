// Package audit keeps an append-only history of readiness transitions so an
// operator can reconstruct why a schedule was revised.
package audit

import (
	"context"
	"time"

	"github.com/kilianp07/gridready/core/model"
)

// Entry captures one applied readiness transition.
type Entry struct {
	Timestamp    time.Time       `json:"timestamp"`
	PlantID      string          `json:"plant_id"`
	ScheduleDate string          `json:"schedule_date"`
	Operation    string          `json:"operation"`
	From         model.Status    `json:"from"`
	To           model.Status    `json:"to"`
	Cause        model.ReasonSet `json:"cause"`
	Revision     int             `json:"revision"`
	Version      uint64          `json:"version"`
}

// FromTransition builds the audit entry for t.
func FromTransition(t model.Transition) Entry {
	return Entry{
		Timestamp:    t.At,
		PlantID:      t.Record.PlantID,
		ScheduleDate: t.Record.ScheduleDate.Format(model.DateLayout),
		Operation:    t.Op,
		From:         t.From,
		To:           t.To,
		Cause:        t.Cause.Clone(),
		Revision:     t.Record.RevisionNumber,
		Version:      t.Record.Version,
	}
}

// Query defines filters for retrieving entries.
type Query struct {
	Start   time.Time
	End     time.Time
	PlantID string
	Limit   int
}

// Match reports whether e passes the time and plant filters.
func (q Query) Match(e Entry) bool {
	if !q.Start.IsZero() && e.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && e.Timestamp.After(q.End) {
		return false
	}
	return q.PlantID == "" || e.PlantID == q.PlantID
}

// Store persists entries and supports querying. Query returns entries in
// chronological order, keeping the newest Limit entries when set.
type Store interface {
	Append(ctx context.Context, e Entry) error
	Query(ctx context.Context, q Query) ([]Entry, error)
	Close() error
}

func tail(entries []Entry, limit int) []Entry {
	if limit > 0 && len(entries) > limit {
		return entries[len(entries)-limit:]
	}
	return entries
}
