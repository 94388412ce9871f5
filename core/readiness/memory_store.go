package readiness

import (
	"context"
	"sort"
	"sync"

	"github.com/kilianp07/gridready/core/model"
)

// MemoryStore keeps records and trigger events in memory. It backs tests and
// the "memory" store driver.
type MemoryStore struct {
	mu       sync.RWMutex
	records  map[model.RecordKey]model.Record
	triggers []model.TriggerEvent
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[model.RecordKey]model.Record{}}
}

func (s *MemoryStore) Get(_ context.Context, key model.RecordKey) (model.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key]
	if !ok {
		return model.Record{PlantID: key.PlantID, ScheduleDate: key.Date, Status: model.StatusNoAction}, false, nil
	}
	return rec.Clone(), true, nil
}

func (s *MemoryStore) Apply(_ context.Context, m Mutation) (model.Record, error) {
	key := m.Record.Key()
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.records[key]
	var version uint64
	if ok {
		version = cur.Version
	}
	if version != m.ExpectedVersion {
		return model.Record{}, ErrVersionMismatch
	}
	rec := m.Record.Clone()
	rec.ScheduleDate = key.Date
	rec.Version = version + 1
	s.records[key] = rec
	if m.ProcessTriggers {
		for i := range s.triggers {
			ev := &s.triggers[i]
			if ev.PlantID == key.PlantID && ev.ScheduleDate.Equal(key.Date) {
				ev.Processed = true
			}
		}
	}
	s.triggers = append(s.triggers, m.Events...)
	return rec.Clone(), nil
}

func (s *MemoryStore) List(_ context.Context, f RecordFilter) ([]model.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]model.Record, 0, len(s.records))
	for _, rec := range s.records {
		if f.MatchRecord(rec) {
			res = append(res, rec.Clone())
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].ScheduleDate.Equal(res[j].ScheduleDate) {
			return res[i].ScheduleDate.Before(res[j].ScheduleDate)
		}
		return res[i].PlantID < res[j].PlantID
	})
	return res, nil
}

func (s *MemoryStore) QueryTriggers(_ context.Context, q TriggerQuery) ([]model.TriggerEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := []model.TriggerEvent{}
	for i := len(s.triggers) - 1; i >= 0; i-- {
		ev := s.triggers[i]
		if !q.MatchTrigger(ev) {
			continue
		}
		res = append(res, ev)
		if q.Limit > 0 && len(res) == q.Limit {
			break
		}
	}
	return res, nil
}

func (s *MemoryStore) Close() error { return nil }
