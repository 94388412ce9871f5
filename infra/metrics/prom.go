package metrics

import (
	"errors"

	coremetrics "github.com/kilianp07/gridready/core/metrics"
	"github.com/kilianp07/gridready/core/model"
	"github.com/prometheus/client_golang/prometheus"
)

// PromSink records readiness events in Prometheus metrics.
type PromSink struct {
	sweeps        prometheus.Counter
	sweepDuration prometheus.Histogram
	skipped       prometheus.Counter
	transitions   *prometheus.CounterVec
	triggers      *prometheus.CounterVec
	notifications *prometheus.CounterVec
	records       *prometheus.GaugeVec
}

// NewPromSink registers readiness metrics on the default Prometheus registerer.
// The Prometheus server should be started separately with StartPromServer.
func NewPromSink() (coremetrics.MetricsSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		sweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "readiness_sweeps_total",
			Help: "Total number of trigger sweeps",
		}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "readiness_sweep_duration_seconds",
			Help:    "Duration of a trigger sweep",
			Buckets: prometheus.DefBuckets,
		}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "readiness_sweep_skipped_plants_total",
			Help: "Plants skipped by a sweep because their signals were unavailable",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "readiness_transitions_total",
			Help: "Readiness status transitions",
		}, []string{"from", "to", "operation"}),
		triggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "readiness_triggers_total",
			Help: "Revision triggers fired",
		}, []string{"plant_id", "trigger_type", "severity"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "readiness_notifications_total",
			Help: "Operator notifications stored",
		}, []string{"notification_type", "priority"}),
		records: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "readiness_records",
			Help: "Records per status after the last sweep",
		}, []string{"status"}),
	}
	var err error
	if s.sweeps, err = register(reg, s.sweeps); err != nil {
		return nil, err
	}
	if s.sweepDuration, err = register(reg, s.sweepDuration); err != nil {
		return nil, err
	}
	if s.skipped, err = register(reg, s.skipped); err != nil {
		return nil, err
	}
	if s.transitions, err = register(reg, s.transitions); err != nil {
		return nil, err
	}
	if s.triggers, err = register(reg, s.triggers); err != nil {
		return nil, err
	}
	if s.notifications, err = register(reg, s.notifications); err != nil {
		return nil, err
	}
	if s.records, err = register(reg, s.records); err != nil {
		return nil, err
	}
	return s, nil
}

// register reuses an already registered collector of the same type.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordSweep counts the sweep and observes its duration.
func (s *PromSink) RecordSweep(ev coremetrics.SweepEvent) error {
	s.sweeps.Inc()
	s.sweepDuration.Observe(ev.Duration.Seconds())
	s.skipped.Add(float64(ev.Skipped))
	return nil
}

// RecordTransition increments the transition counter.
func (s *PromSink) RecordTransition(ev coremetrics.TransitionEvent) error {
	s.transitions.WithLabelValues(string(ev.From), string(ev.To), ev.Operation).Inc()
	return nil
}

// RecordTrigger increments the trigger counter.
func (s *PromSink) RecordTrigger(ev coremetrics.TriggerEvent) error {
	s.triggers.WithLabelValues(ev.PlantID, string(ev.Type), string(ev.Severity)).Inc()
	return nil
}

// RecordNotification increments the notification counter.
func (s *PromSink) RecordNotification(ev coremetrics.NotificationEvent) error {
	s.notifications.WithLabelValues(string(ev.Type), string(ev.Priority)).Inc()
	return nil
}

// RecordStatusCounts sets the per-status gauge.
func (s *PromSink) RecordStatusCounts(counts map[model.Status]int) error {
	for st, n := range counts {
		s.records.WithLabelValues(string(st)).Set(float64(n))
	}
	return nil
}
