package metrics

import "github.com/kilianp07/gridready/core/model"

// MultiSink fans out events to multiple sinks. Optional recorder interfaces
// are forwarded only to sinks implementing them.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordSweep forwards the sweep summary to all sinks, returning the first
// error encountered.
func (m *MultiSink) RecordSweep(ev SweepEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordSweep(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordTransition forwards transition events.
func (m *MultiSink) RecordTransition(ev TransitionEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(TransitionRecorder); ok {
			if err := rec.RecordTransition(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordTrigger forwards trigger events.
func (m *MultiSink) RecordTrigger(ev TriggerEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(TriggerRecorder); ok {
			if err := rec.RecordTrigger(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordNotification forwards notification events.
func (m *MultiSink) RecordNotification(ev NotificationEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(NotificationRecorder); ok {
			if err := rec.RecordNotification(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordStatusCounts forwards status gauges.
func (m *MultiSink) RecordStatusCounts(counts map[model.Status]int) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(PendingGaugeRecorder); ok {
			if err := rec.RecordStatusCounts(counts); err != nil {
				return err
			}
		}
	}
	return nil
}
