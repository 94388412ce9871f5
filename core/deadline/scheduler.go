// Package deadline tracks upload deadlines of READY schedules and reports
// the ones that passed without an upload confirmation.
package deadline

import (
	"sort"
	"sync"
	"time"

	"github.com/kilianp07/gridready/core/model"
)

// Overdue describes a tracked deadline that has passed.
type Overdue struct {
	Key      model.RecordKey
	Deadline time.Time
	Revision int
	// Escalation counts how many times this miss has been reported,
	// starting at 1.
	Escalation int
}

type entry struct {
	deadline    time.Time
	revision    int
	escalations int
	lastFired   time.Time
	claimed     bool
}

// Scheduler holds the READY records awaiting upload. It is rebuilt from the
// store on startup via Restore.
type Scheduler struct {
	mu       sync.Mutex
	entries  map[model.RecordKey]*entry
	reminder time.Duration
}

// New returns a Scheduler. A positive reminder re-reports a missed deadline
// at that cadence; zero reports it once per revision.
func New(reminder time.Duration) *Scheduler {
	return &Scheduler{entries: make(map[model.RecordKey]*entry), reminder: reminder}
}

// Track registers rec when it is READY with a deadline and cancels it
// otherwise. Re-tracking the same revision and deadline keeps the
// escalation state.
func (s *Scheduler) Track(rec model.Record) {
	key := rec.Key()
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.Status != model.StatusReady || rec.UploadDeadline == nil {
		delete(s.entries, key)
		return
	}
	if e, ok := s.entries[key]; ok && e.revision == rec.RevisionNumber && e.deadline.Equal(*rec.UploadDeadline) {
		return
	}
	s.entries[key] = &entry{deadline: *rec.UploadDeadline, revision: rec.RevisionNumber}
}

// Restore tracks rec like Track and seeds its escalation state with misses
// already reported before a restart, the newest at lastFired. It never lowers
// the count of an entry that is already tracked.
func (s *Scheduler) Restore(rec model.Record, reported int, lastFired time.Time) {
	s.Track(rec)
	if reported <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[rec.Key()]
	if !ok || e.escalations >= reported {
		return
	}
	e.escalations = reported
	if lastFired.After(e.lastFired) {
		e.lastFired = lastFired
	}
}

// Cancel stops tracking key.
func (s *Scheduler) Cancel(key model.RecordKey) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

// Due claims and returns the deadlines that are overdue at now and have not
// been reported within the reminder cadence. Each returned item must be
// settled with Done or Release.
func (s *Scheduler) Due(now time.Time) []Overdue {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Overdue
	for key, e := range s.entries {
		if e.claimed || !now.After(e.deadline) {
			continue
		}
		if e.escalations > 0 && (s.reminder <= 0 || now.Sub(e.lastFired) < s.reminder) {
			continue
		}
		e.claimed = true
		out = append(out, Overdue{Key: key, Deadline: e.deadline, Revision: e.revision, Escalation: e.escalations + 1})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Deadline.Equal(out[j].Deadline) {
			return out[i].Deadline.Before(out[j].Deadline)
		}
		return out[i].Key.PlantID < out[j].Key.PlantID
	})
	return out
}

// Done records that the miss for o was reported at now.
func (s *Scheduler) Done(o Overdue, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[o.Key]
	if !ok || e.revision != o.Revision {
		return
	}
	e.claimed = false
	e.escalations++
	e.lastFired = now
}

// Release returns a claimed item without counting it as reported.
func (s *Scheduler) Release(o Overdue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[o.Key]; ok && e.revision == o.Revision {
		e.claimed = false
	}
}

// Prune drops entries of schedule dates before today that were already
// reported at least once. It returns the number of dropped entries.
func (s *Scheduler) Prune(today time.Time) int {
	day := model.Day(today)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key, e := range s.entries {
		if key.Date.Before(day) && e.escalations > 0 && !e.claimed {
			delete(s.entries, key)
			n++
		}
	}
	return n
}

// Len returns the number of tracked deadlines.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
