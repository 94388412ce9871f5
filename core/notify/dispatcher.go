// Package notify turns readiness transitions into operator notifications,
// stores them in the feed and fans them out to external publishers.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/gridready/core/logger"
	"github.com/kilianp07/gridready/core/model"
	"github.com/kilianp07/gridready/internal/eventbus"
)

const timeLayout = "2006-01-02 15:04 MST"

var reasonTitles = map[model.TriggerType]string{
	model.TriggerWeather:     "Weather Change Detected",
	model.TriggerDeviation:   "Meter Deviation Detected",
	model.TriggerCurtailment: "Curtailment Signal Active",
	model.TriggerManual:      "Manual Revision Requested",
}

// Dispatcher builds notifications from transitions and appends them to the
// feed. Each appended notification is also published on the bus when one
// is configured.
type Dispatcher struct {
	feed         Feed
	bus          *eventbus.TypedBus[model.Notification]
	urgentWindow time.Duration
	newID        func() string
	log          logger.Logger
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithBus publishes every stored notification on bus.
func WithBus(bus *eventbus.TypedBus[model.Notification]) Option {
	return func(d *Dispatcher) { d.bus = bus }
}

// WithLogger sets the dispatcher logger.
func WithLogger(l logger.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.log = l
		}
	}
}

// NewDispatcher creates a Dispatcher writing to feed. A READY notification
// whose deadline is within urgentWindow is raised as URGENT.
func NewDispatcher(feed Feed, urgentWindow time.Duration, opts ...Option) *Dispatcher {
	d := &Dispatcher{feed: feed, urgentWindow: urgentWindow, newID: uuid.NewString, log: logger.Nop{}}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Feed returns the underlying feed.
func (d *Dispatcher) Feed() Feed { return d.feed }

// NotifyTransition stores the notification for t, if the transition calls
// for one, and returns it.
func (d *Dispatcher) NotifyTransition(ctx context.Context, p model.Plant, t model.Transition) (*model.Notification, error) {
	n, ok := d.ForTransition(p, t)
	if !ok {
		return nil, nil
	}
	if err := d.emit(ctx, n); err != nil {
		return nil, err
	}
	return &n, nil
}

// NotifyDeadlineMissed stores an URGENT notification for a missed upload
// deadline.
func (d *Dispatcher) NotifyDeadlineMissed(ctx context.Context, p model.Plant, rec model.Record, escalation int) (*model.Notification, error) {
	n := d.ForDeadlineMiss(p, rec, escalation, rec.LastChecked)
	if err := d.emit(ctx, n); err != nil {
		return nil, err
	}
	return &n, nil
}

// ForTransition builds the notification for t without storing it. Only
// status changes into PENDING or READY and upload confirmations notify.
func (d *Dispatcher) ForTransition(p model.Plant, t model.Transition) (model.Notification, bool) {
	if !t.StatusChanged() {
		return model.Notification{}, false
	}
	rec := t.Record
	n := model.Notification{
		ID:        d.newID(),
		PlantID:   p.ID,
		PlantName: displayName(p, rec),
		CreatedAt: t.At,
	}
	switch t.To {
	case model.StatusPending:
		n.NotificationType = model.NotificationTriggerAlert
		n.Title = pendingTitle(t.Cause)
		n.Message = fmt.Sprintf("Schedule revision may be required for %s. Triggers: %s.", n.PlantName, t.Cause)
		n.Priority = pendingPriority(t.Cause)
		n.ActionRequired = true
	case model.StatusReady:
		if rec.UploadDeadline == nil {
			return model.Notification{}, false
		}
		deadline := *rec.UploadDeadline
		n.NotificationType = model.NotificationScheduleReady
		n.Title = "Schedule Ready for Upload"
		n.Message = fmt.Sprintf("Revision %d for %s is ready. Upload to the grid operator before %s.",
			rec.RevisionNumber, n.PlantName, deadline.Format(timeLayout))
		n.Priority = model.PriorityHigh
		if deadline.Sub(t.At) <= d.urgentWindow {
			n.Priority = model.PriorityUrgent
		}
		n.ActionRequired = true
		n.Deadline = &deadline
	case model.StatusNoAction:
		if t.From != model.StatusReady {
			return model.Notification{}, false
		}
		n.NotificationType = model.NotificationUploaded
		n.Title = "Schedule Uploaded"
		n.Message = fmt.Sprintf("Revision %d for %s was uploaded.", rec.RevisionNumber, n.PlantName)
		n.Priority = model.PriorityLow
	default:
		return model.Notification{}, false
	}
	return n, true
}

// ForDeadlineMiss builds the notification for a missed deadline of rec.
func (d *Dispatcher) ForDeadlineMiss(p model.Plant, rec model.Record, escalation int, at time.Time) model.Notification {
	n := model.Notification{
		ID:               d.newID(),
		PlantID:          p.ID,
		PlantName:        displayName(p, rec),
		NotificationType: model.NotificationDeadlineMissed,
		Title:            "Upload Deadline Missed",
		Priority:         model.PriorityUrgent,
		ActionRequired:   true,
		CreatedAt:        at,
	}
	if rec.UploadDeadline != nil {
		deadline := *rec.UploadDeadline
		n.Deadline = &deadline
		n.Message = fmt.Sprintf("Revision %d for %s was not uploaded before %s.",
			rec.RevisionNumber, n.PlantName, deadline.Format(timeLayout))
	}
	if escalation > 1 {
		n.Message += fmt.Sprintf(" Reminder %d.", escalation-1)
	}
	return n
}

func (d *Dispatcher) emit(ctx context.Context, n model.Notification) error {
	if err := d.feed.Append(ctx, n); err != nil {
		return fmt.Errorf("append notification: %w", err)
	}
	d.log.Debugw("notification stored", map[string]any{
		"id":       n.ID,
		"plant_id": n.PlantID,
		"type":     string(n.NotificationType),
		"priority": string(n.Priority),
	})
	if d.bus != nil {
		d.bus.Publish(n)
	}
	return nil
}

func pendingTitle(cause model.ReasonSet) string {
	if len(cause) == 1 {
		if t, ok := reasonTitles[cause[0]]; ok {
			return t
		}
	}
	return "Schedule Revision Required"
}

func pendingPriority(cause model.ReasonSet) model.Priority {
	p := model.PriorityNormal
	for _, t := range cause {
		if t.Automatic() {
			p = p.Max(model.PriorityHigh)
		}
	}
	return p
}

func displayName(p model.Plant, rec model.Record) string {
	if p.Name != "" {
		return p.Name
	}
	if rec.PlantName != "" {
		return rec.PlantName
	}
	return p.ID
}
