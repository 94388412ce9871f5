package model

import "time"

// Priority orders notifications by urgency.
type Priority string

const (
	PriorityUrgent Priority = "URGENT"
	PriorityHigh   Priority = "HIGH"
	PriorityNormal Priority = "NORMAL"
	PriorityLow    Priority = "LOW"
)

// Rank returns a comparable weight, higher is more urgent.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 3
	case PriorityHigh:
		return 2
	case PriorityNormal:
		return 1
	default:
		return 0
	}
}

// Max returns the more urgent of p and o.
func (p Priority) Max(o Priority) Priority {
	if o.Rank() > p.Rank() {
		return o
	}
	return p
}

// NotificationType is the kind of event a notification reports.
type NotificationType string

const (
	NotificationTriggerAlert   NotificationType = "Trigger Alert"
	NotificationScheduleReady  NotificationType = "Schedule Ready"
	NotificationDeadlineMissed NotificationType = "Deadline Missed"
	NotificationUploaded       NotificationType = "Schedule Uploaded"
)

// Notification is an append-only feed entry. Read is the only mutable field.
type Notification struct {
	ID               string           `json:"id"`
	PlantID          string           `json:"plant_id"`
	PlantName        string           `json:"plant_name"`
	NotificationType NotificationType `json:"notification_type"`
	Title            string           `json:"title"`
	Message          string           `json:"message"`
	Priority         Priority         `json:"priority"`
	Read             bool             `json:"read"`
	ActionRequired   bool             `json:"action_required"`
	Deadline         *time.Time       `json:"deadline,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
}
