package readiness

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/gridready/core/model"
)

// Operation names used in transitions, audit entries and errors.
const (
	OpEvaluate        = "evaluate"
	OpTriggerRevision = "trigger_revision"
	OpContinue        = "continue_existing"
	OpMarkReady       = "mark_ready"
	OpConfirmUpload   = "confirm_upload"
	OpDeadlineMiss    = "deadline_miss"
)

const defaultManualReason = "Manual trigger from dashboard"

// Decision is the outcome of one state machine step: the record to write,
// the events to append and the transition to report.
type Decision struct {
	Record          model.Record
	Events          []model.TriggerEvent
	ProcessTriggers bool
	Transition      model.Transition
}

// Evaluator holds the pure decision logic of the readiness state machine.
// It never touches storage.
type Evaluator struct {
	cfg   Config
	newID func() string
}

// NewEvaluator returns an Evaluator using cfg, with defaults applied.
func NewEvaluator(cfg Config) Evaluator {
	cfg.SetDefaults()
	return Evaluator{cfg: cfg, newID: uuid.NewString}
}

// Detect returns the trigger events fired by signals observed after
// watermark. A snapshot without fresh signals fires nothing.
func (e Evaluator) Detect(p model.Plant, date time.Time, sig model.PlantSignals, watermark, now time.Time) []model.TriggerEvent {
	var out []model.TriggerEvent
	if w := sig.Weather; w != nil && w.ObservedAt.After(watermark) {
		change := math.Abs(w.ChangePercent)
		if change >= e.cfg.WeatherChangeThresholdPct {
			sev := model.SeverityMedium
			if change >= e.cfg.HighSeverityWeatherPct {
				sev = model.SeverityHigh
			}
			detail := fmt.Sprintf("Significant weather change detected: %s %.1f%%", weatherParam(p, w), w.ChangePercent)
			out = append(out, e.event(p, date, model.TriggerWeather, sev, detail, e.cfg.WeatherChangeThresholdPct, change, now))
		}
	}
	if d := sig.Deviation; d != nil && d.ObservedAt.After(watermark) {
		dev := math.Abs(d.DeviationPercent)
		if dev >= e.cfg.DeviationTolerancePct {
			sev := model.SeverityMedium
			if dev >= e.cfg.HighSeverityDeviationPct {
				sev = model.SeverityHigh
			}
			detail := fmt.Sprintf("Generation deviation in block %d: %.1f%% (actual %.2f MW vs scheduled %.2f MW)",
				d.Block, d.DeviationPercent, d.Generation, d.Scheduled)
			out = append(out, e.event(p, date, model.TriggerDeviation, sev, detail, e.cfg.DeviationTolerancePct, dev, now))
		}
	}
	if c := sig.Curtailment; c != nil && c.Active && c.ObservedAt.After(watermark) {
		detail := "Curtailment signal received from grid operator"
		if c.Reason != "" {
			detail += ": " + c.Reason
		}
		ev := e.event(p, date, model.TriggerCurtailment, model.SeverityCritical, detail, 0, 0, now)
		ev.ThresholdValue, ev.ActualValue = nil, nil
		out = append(out, ev)
	}
	return out
}

// Evaluate applies a signal snapshot to rec. NO_ACTION moves to PENDING when
// anything fires, PENDING accumulates reasons, READY only records events.
func (e Evaluator) Evaluate(p model.Plant, rec model.Record, sig model.PlantSignals, now time.Time) Decision {
	next := rec.Clone()
	next.LastChecked = now
	events := e.Detect(p, rec.ScheduleDate, sig, rec.SignalWatermark, now)
	if newest := sig.Newest(); newest.After(next.SignalWatermark) {
		next.SignalWatermark = newest
	}

	var cause model.ReasonSet
	for _, ev := range events {
		cause = cause.Add(ev.TriggerType)
	}
	switch rec.Status {
	case model.StatusNoAction:
		if len(cause) > 0 {
			next.Status = model.StatusPending
			next.TriggerReason = cause.Clone()
		}
	case model.StatusPending:
		next.TriggerReason = next.TriggerReason.Add(cause...)
	}
	return e.decision(OpEvaluate, rec, next, cause, events, false, now)
}

// TriggerRevision forces the record to PENDING with a Manual reason. From
// READY the prepared revision is abandoned and the deadline cleared.
func (e Evaluator) TriggerRevision(p model.Plant, rec model.Record, reason string, now time.Time) Decision {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = defaultManualReason
	}
	ev := e.event(p, rec.ScheduleDate, model.TriggerManual, model.SeverityMedium, "Manual revision triggered: "+reason, 0, 0, now)
	ev.ThresholdValue, ev.ActualValue = nil, nil

	next := rec.Clone()
	next.LastChecked = now
	switch rec.Status {
	case model.StatusPending:
		next.TriggerReason = next.TriggerReason.Add(model.TriggerManual)
	default:
		next.Status = model.StatusPending
		next.TriggerReason = model.ReasonSet{model.TriggerManual}
		next.UploadDeadline = nil
	}
	return e.decision(OpTriggerRevision, rec, next, model.ReasonSet{model.TriggerManual}, []model.TriggerEvent{ev}, false, now)
}

// ContinueExisting dismisses a PENDING record and keeps the current schedule.
func (e Evaluator) ContinueExisting(rec model.Record, now time.Time) (Decision, error) {
	if rec.Status != model.StatusPending {
		return Decision{}, &InvalidTransitionError{PlantID: rec.PlantID, Op: OpContinue, From: rec.Status}
	}
	next := rec.Clone()
	next.Status = model.StatusNoAction
	next.TriggerReason = nil
	next.UploadDeadline = nil
	next.LastChecked = now
	return e.decision(OpContinue, rec, next, rec.TriggerReason.Clone(), nil, true, now), nil
}

// MarkReady moves a PENDING record to READY with a new revision. A nil
// deadline defaults to now plus the upload window.
func (e Evaluator) MarkReady(rec model.Record, deadline *time.Time, now time.Time) (Decision, error) {
	if rec.Status != model.StatusPending {
		return Decision{}, &InvalidTransitionError{PlantID: rec.PlantID, Op: OpMarkReady, From: rec.Status}
	}
	d := now.Add(e.cfg.uploadWindow())
	if deadline != nil {
		if !deadline.After(now) {
			return Decision{}, fmt.Errorf("%w: upload deadline %s is not in the future", ErrInvalidArgument, deadline.Format(time.RFC3339))
		}
		d = *deadline
	}
	next := rec.Clone()
	next.Status = model.StatusReady
	next.TriggerReason = nil
	next.RevisionNumber = rec.RevisionNumber + 1
	next.UploadDeadline = &d
	next.LastChecked = now
	return e.decision(OpMarkReady, rec, next, rec.TriggerReason.Clone(), nil, true, now), nil
}

// ConfirmUpload acknowledges that the READY revision reached the grid
// operator and closes the cycle.
func (e Evaluator) ConfirmUpload(rec model.Record, now time.Time) (Decision, error) {
	if rec.Status != model.StatusReady {
		return Decision{}, &InvalidTransitionError{PlantID: rec.PlantID, Op: OpConfirmUpload, From: rec.Status}
	}
	next := rec.Clone()
	next.Status = model.StatusNoAction
	next.UploadDeadline = nil
	next.TriggerReason = nil
	next.LastChecked = now
	return e.decision(OpConfirmUpload, rec, next, nil, nil, true, now), nil
}

// DeadlineMissed records a missed upload deadline on a READY record. The
// status is left unchanged.
func (e Evaluator) DeadlineMissed(p model.Plant, rec model.Record, now time.Time) (Decision, error) {
	if !rec.Overdue(now) {
		return Decision{}, &InvalidTransitionError{PlantID: rec.PlantID, Op: OpDeadlineMiss, From: rec.Status}
	}
	late := now.Sub(*rec.UploadDeadline).Truncate(time.Minute)
	detail := fmt.Sprintf("Upload deadline %s for revision %d missed by %s",
		rec.UploadDeadline.Format(time.RFC3339), rec.RevisionNumber, late)
	ev := e.event(p, rec.ScheduleDate, model.TriggerDeadlineMiss, model.SeverityHigh, detail, 0, 0, now)
	ev.ThresholdValue, ev.ActualValue = nil, nil
	next := rec.Clone()
	next.LastChecked = now
	return e.decision(OpDeadlineMiss, rec, next, model.ReasonSet{model.TriggerDeadlineMiss}, []model.TriggerEvent{ev}, false, now), nil
}

func (e Evaluator) decision(op string, prev, next model.Record, cause model.ReasonSet, events []model.TriggerEvent, process bool, now time.Time) Decision {
	next.UpdatedAt = now
	return Decision{
		Record:          next,
		Events:          events,
		ProcessTriggers: process,
		Transition: model.Transition{
			Op:     op,
			From:   prev.Status,
			To:     next.Status,
			Cause:  cause,
			Record: next,
			At:     now,
		},
	}
}

func (e Evaluator) event(p model.Plant, date time.Time, t model.TriggerType, sev model.Severity, detail string, threshold, actual float64, now time.Time) model.TriggerEvent {
	return model.TriggerEvent{
		ID:             e.newID(),
		PlantID:        p.ID,
		ScheduleDate:   date,
		TriggerType:    t,
		Severity:       sev,
		Detail:         detail,
		ThresholdValue: &threshold,
		ActualValue:    &actual,
		DetectedAt:     now,
	}
}

func weatherParam(p model.Plant, w *model.WeatherSignal) string {
	if w.Parameter != "" {
		return strings.ReplaceAll(w.Parameter, "_", " ")
	}
	if p.Type == model.PlantWind {
		return "wind speed"
	}
	return "cloud cover"
}
