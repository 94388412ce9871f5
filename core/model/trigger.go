package model

import "time"

// TriggerType classifies the origin of a revision trigger.
type TriggerType string

const (
	TriggerWeather      TriggerType = "Weather"
	TriggerDeviation    TriggerType = "Deviation"
	TriggerCurtailment  TriggerType = "Curtailment"
	TriggerManual       TriggerType = "Manual"
	TriggerDeadlineMiss TriggerType = "DeadlineMiss"
)

// ParseTriggerType validates a trigger type query value.
func ParseTriggerType(v string) (TriggerType, bool) {
	switch t := TriggerType(v); t {
	case TriggerWeather, TriggerDeviation, TriggerCurtailment, TriggerManual, TriggerDeadlineMiss:
		return t, true
	}
	return "", false
}

// Automatic reports whether the trigger comes from a measured signal rather
// than an operator or the deadline scheduler.
func (t TriggerType) Automatic() bool {
	return t == TriggerWeather || t == TriggerDeviation || t == TriggerCurtailment
}

// Severity grades a trigger event.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// TriggerEvent is an immutable audit entry produced by the evaluator. Only
// Processed changes after creation.
type TriggerEvent struct {
	ID             string      `json:"id"`
	PlantID        string      `json:"plant_id"`
	ScheduleDate   time.Time   `json:"schedule_date"`
	TriggerType    TriggerType `json:"trigger_type"`
	Severity       Severity    `json:"severity"`
	Detail         string      `json:"description"`
	ThresholdValue *float64    `json:"threshold_value,omitempty"`
	ActualValue    *float64    `json:"actual_value,omitempty"`
	DetectedAt     time.Time   `json:"detected_at"`
	Processed      bool        `json:"processed"`
}
