package model

import (
	"encoding/json"
	"strings"
	"time"
)

// Status is the readiness classification of a plant schedule.
type Status string

const (
	StatusReady    Status = "READY"
	StatusPending  Status = "PENDING"
	StatusNoAction Status = "NO_ACTION"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusReady, StatusPending, StatusNoAction:
		return true
	}
	return false
}

// ParseStatus converts a query value into a Status. "All" and the empty
// string yield the zero Status, meaning no filter.
func ParseStatus(v string) (Status, bool) {
	if v == "" || strings.EqualFold(v, "all") {
		return "", true
	}
	s := Status(strings.ToUpper(v))
	return s, s.Valid()
}

// DateLayout is the wire and storage format of a schedule date.
const DateLayout = "2006-01-02"

// Day truncates t to midnight in t's location and returns it in UTC, which
// is how schedule dates are keyed.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// RecordKey is the natural key of a ReadinessRecord.
type RecordKey struct {
	PlantID string
	Date    time.Time
}

// Key builds the natural key for plant on the given day.
func Key(plantID string, date time.Time) RecordKey {
	return RecordKey{PlantID: plantID, Date: Day(date)}
}

func (k RecordKey) String() string {
	return k.PlantID + "@" + k.Date.Format(DateLayout)
}

// ReasonSet is an insertion-ordered set of trigger types. It is rendered
// as a comma separated string at the JSON boundary.
type ReasonSet []TriggerType

// Add appends t unless already present and returns the updated set.
func (r ReasonSet) Add(types ...TriggerType) ReasonSet {
	for _, t := range types {
		if !r.Contains(t) {
			r = append(r, t)
		}
	}
	return r
}

// Contains reports whether t is part of the set.
func (r ReasonSet) Contains(t TriggerType) bool {
	for _, v := range r {
		if v == t {
			return true
		}
	}
	return false
}

// Clone returns a copy that does not share the backing array.
func (r ReasonSet) Clone() ReasonSet {
	if len(r) == 0 {
		return nil
	}
	out := make(ReasonSet, len(r))
	copy(out, r)
	return out
}

func (r ReasonSet) String() string {
	parts := make([]string, len(r))
	for i, t := range r {
		parts[i] = string(t)
	}
	return strings.Join(parts, ", ")
}

// ParseReasons is the inverse of ReasonSet.String.
func ParseReasons(s string) ReasonSet {
	var out ReasonSet
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = out.Add(TriggerType(p))
	}
	return out
}

func (r ReasonSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *ReasonSet) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*r = ParseReasons(s)
	return nil
}

// Record is the readiness state of one plant for one scheduling day.
type Record struct {
	PlantID        string     `json:"plant_id"`
	PlantName      string     `json:"plant_name"`
	ScheduleDate   time.Time  `json:"-"`
	Status         Status     `json:"status"`
	TriggerReason  ReasonSet  `json:"trigger_reason"`
	RevisionNumber int        `json:"revision_number"`
	UploadDeadline *time.Time `json:"upload_deadline"`
	LastChecked    time.Time  `json:"last_checked"`
	// SignalWatermark is the observation time of the newest signal already
	// considered for this record. Older or equal signals never fire again.
	SignalWatermark time.Time `json:"-"`
	UpdatedAt       time.Time `json:"updated_at"`
	// Version is bumped by the store on every successful write and is the
	// token for optimistic concurrency.
	Version uint64 `json:"version"`
}

// NewRecord returns the default record for a key: NO_ACTION, revision 0.
func NewRecord(p Plant, date time.Time) Record {
	return Record{
		PlantID:      p.ID,
		PlantName:    p.Name,
		ScheduleDate: Day(date),
		Status:       StatusNoAction,
	}
}

// Key returns the natural key of the record.
func (r Record) Key() RecordKey { return Key(r.PlantID, r.ScheduleDate) }

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	out := r
	out.TriggerReason = r.TriggerReason.Clone()
	if r.UploadDeadline != nil {
		d := *r.UploadDeadline
		out.UploadDeadline = &d
	}
	return out
}

// Consistent checks the record invariants: a deadline exists iff the
// record is READY and reasons exist iff it is PENDING.
func (r Record) Consistent() bool {
	if (r.Status == StatusReady) != (r.UploadDeadline != nil) {
		return false
	}
	if (r.Status == StatusPending) != (len(r.TriggerReason) > 0) {
		return false
	}
	return r.RevisionNumber >= 0
}

// Overdue reports whether a READY record has passed its upload deadline.
func (r Record) Overdue(now time.Time) bool {
	return r.Status == StatusReady && r.UploadDeadline != nil && now.After(*r.UploadDeadline)
}

type plainRecord Record

type recordJSON struct {
	plainRecord
	ScheduleDate string `json:"schedule_date"`
}

func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordJSON{plainRecord: plainRecord(r), ScheduleDate: r.ScheduleDate.Format(DateLayout)})
}

func (r *Record) UnmarshalJSON(b []byte) error {
	var aux recordJSON
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*r = Record(aux.plainRecord)
	if aux.ScheduleDate != "" {
		d, err := time.Parse(DateLayout, aux.ScheduleDate)
		if err != nil {
			return err
		}
		r.ScheduleDate = d
	}
	return nil
}

// Transition describes a change applied to a record by one operation.
type Transition struct {
	Op     string
	From   Status
	To     Status
	Cause  ReasonSet
	Record Record
	At     time.Time
}

// StatusChanged reports whether the transition moved the record to a new
// status. Only such transitions are externally visible.
func (t Transition) StatusChanged() bool { return t.From != t.To }
