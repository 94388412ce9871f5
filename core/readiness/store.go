package readiness

import (
	"context"
	"time"

	"github.com/kilianp07/gridready/core/model"
)

// RecordFilter narrows List results. Zero values mean no filter.
type RecordFilter struct {
	Status  model.Status
	PlantID string
	Date    time.Time
}

// TriggerQuery filters trigger events. Results are newest first.
type TriggerQuery struct {
	PlantID     string
	TriggerType model.TriggerType
	Processed   *bool
	Limit       int
}

// Mutation is applied atomically by Store.Apply.
type Mutation struct {
	Record model.Record
	// ExpectedVersion must match the stored version; 0 means the record
	// must not exist yet.
	ExpectedVersion uint64
	// Events are appended together with the record.
	Events []model.TriggerEvent
	// ProcessTriggers marks the unprocessed events of the record's key as
	// processed in the same write.
	ProcessTriggers bool
}

// Store owns readiness records and trigger events.
//
// Get never fails with a not-found error: a missing record is returned as
// the NO_ACTION default with Version 0. Apply is atomic per key and returns
// ErrVersionMismatch when ExpectedVersion is stale.
type Store interface {
	Get(ctx context.Context, key model.RecordKey) (model.Record, bool, error)
	Apply(ctx context.Context, m Mutation) (model.Record, error)
	List(ctx context.Context, f RecordFilter) ([]model.Record, error)
	QueryTriggers(ctx context.Context, q TriggerQuery) ([]model.TriggerEvent, error)
	Close() error
}

// MatchRecord reports whether rec passes f.
func (f RecordFilter) MatchRecord(rec model.Record) bool {
	if f.Status != "" && rec.Status != f.Status {
		return false
	}
	if f.PlantID != "" && rec.PlantID != f.PlantID {
		return false
	}
	if !f.Date.IsZero() && !rec.ScheduleDate.Equal(model.Day(f.Date)) {
		return false
	}
	return true
}

// MatchTrigger reports whether ev passes q, ignoring Limit.
func (q TriggerQuery) MatchTrigger(ev model.TriggerEvent) bool {
	if q.PlantID != "" && ev.PlantID != q.PlantID {
		return false
	}
	if q.TriggerType != "" && ev.TriggerType != q.TriggerType {
		return false
	}
	if q.Processed != nil && ev.Processed != *q.Processed {
		return false
	}
	return true
}
