// Package metrics defines interfaces and implementations for collecting
// readiness metrics. Sinks like PromSink and InfluxSink record sweeps,
// transitions, triggers and notifications and can be combined with
// NewMultiSink. The factory helpers return a MultiSink automatically when
// multiple sinks are configured.
package metrics
