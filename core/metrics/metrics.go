package metrics

import (
	"time"

	"github.com/kilianp07/gridready/core/model"
)

// SweepEvent summarizes one trigger sweep across the plant fleet.
type SweepEvent struct {
	PlantsChecked   int
	Ready           int
	Pending         int
	NoAction        int
	Skipped         int
	TriggersCreated int
	DeadlineMisses  int
	Duration        time.Duration
	Time            time.Time
}

// MetricsSink records sweep results for observability purposes.
type MetricsSink interface {
	RecordSweep(ev SweepEvent) error
}

// TransitionEvent captures a state change of a readiness record.
type TransitionEvent struct {
	PlantID   string
	Operation string
	From      model.Status
	To        model.Status
	Revision  int
	Time      time.Time
}

// TransitionRecorder records readiness transitions.
type TransitionRecorder interface {
	RecordTransition(ev TransitionEvent) error
}

// TriggerEvent records a fired revision trigger.
type TriggerEvent struct {
	PlantID  string
	Type     model.TriggerType
	Severity model.Severity
	Actual   float64
	Time     time.Time
}

// TriggerRecorder records fired triggers.
type TriggerRecorder interface {
	RecordTrigger(ev TriggerEvent) error
}

// NotificationEvent records a stored operator notification.
type NotificationEvent struct {
	PlantID  string
	Type     model.NotificationType
	Priority model.Priority
	Time     time.Time
}

// NotificationRecorder records notifications.
type NotificationRecorder interface {
	RecordNotification(ev NotificationEvent) error
}

// PendingGaugeRecorder exposes the current number of records per status.
type PendingGaugeRecorder interface {
	RecordStatusCounts(counts map[model.Status]int) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordSweep(SweepEvent) error                  { return nil }
func (NopSink) RecordTransition(TransitionEvent) error        { return nil }
func (NopSink) RecordTrigger(TriggerEvent) error              { return nil }
func (NopSink) RecordNotification(NotificationEvent) error    { return nil }
func (NopSink) RecordStatusCounts(map[model.Status]int) error { return nil }

// TriggerFromEvent converts a stored trigger event.
func TriggerFromEvent(ev model.TriggerEvent) TriggerEvent {
	out := TriggerEvent{PlantID: ev.PlantID, Type: ev.TriggerType, Severity: ev.Severity, Time: ev.DetectedAt}
	if ev.ActualValue != nil {
		out.Actual = *ev.ActualValue
	}
	return out
}
