package readiness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/gridready/core/model"
)

var (
	evalNow   = time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)
	evalPlant = model.Plant{ID: "p1", Name: "Solar One", Type: model.PlantSolar}
)

func weather(change float64, at time.Time) model.PlantSignals {
	return model.PlantSignals{PlantID: "p1", Weather: &model.WeatherSignal{Parameter: "cloud_cover", ChangePercent: change, ObservedAt: at}}
}

func TestEvaluator_WeatherThreshold(t *testing.T) {
	e := NewEvaluator(Config{})
	rec := model.NewRecord(evalPlant, evalNow)
	obs := evalNow.Add(-time.Minute)

	tests := []struct {
		name     string
		change   float64
		fires    bool
		severity model.Severity
	}{
		{"below", 14.9, false, ""},
		{"at threshold", 15, true, model.SeverityMedium},
		{"negative change", -18, true, model.SeverityMedium},
		{"high", 25, true, model.SeverityHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := e.Evaluate(evalPlant, rec, weather(tt.change, obs), evalNow)
			if !tt.fires {
				assert.Empty(t, dec.Events)
				assert.Equal(t, model.StatusNoAction, dec.Record.Status)
				return
			}
			require.Len(t, dec.Events, 1)
			ev := dec.Events[0]
			assert.Equal(t, model.TriggerWeather, ev.TriggerType)
			assert.Equal(t, tt.severity, ev.Severity)
			require.NotNil(t, ev.ThresholdValue)
			assert.Equal(t, 15.0, *ev.ThresholdValue)
			assert.Equal(t, model.StatusPending, dec.Record.Status)
			assert.Equal(t, model.ReasonSet{model.TriggerWeather}, dec.Record.TriggerReason)
			assert.True(t, dec.Transition.StatusChanged())
		})
	}
}

func TestEvaluator_DeviationAndCurtailment(t *testing.T) {
	e := NewEvaluator(Config{})
	rec := model.NewRecord(evalPlant, evalNow)
	obs := evalNow.Add(-time.Minute)
	sig := model.PlantSignals{
		PlantID:     "p1",
		Deviation:   &model.DeviationSignal{Block: 41, Generation: 78, Scheduled: 100, DeviationPercent: -22, ObservedAt: obs},
		Curtailment: &model.CurtailmentSignal{Active: true, Reason: "line maintenance", ObservedAt: obs},
	}
	dec := e.Evaluate(evalPlant, rec, sig, evalNow)
	require.Len(t, dec.Events, 2)
	assert.Equal(t, model.TriggerDeviation, dec.Events[0].TriggerType)
	assert.Equal(t, model.SeverityHigh, dec.Events[0].Severity)
	assert.Contains(t, dec.Events[0].Detail, "block 41")
	assert.Equal(t, model.TriggerCurtailment, dec.Events[1].TriggerType)
	assert.Equal(t, model.SeverityCritical, dec.Events[1].Severity)
	assert.Nil(t, dec.Events[1].ThresholdValue)
	assert.Equal(t, model.ReasonSet{model.TriggerDeviation, model.TriggerCurtailment}, dec.Record.TriggerReason)

	inactive := model.PlantSignals{Curtailment: &model.CurtailmentSignal{Active: false, ObservedAt: obs}}
	assert.Empty(t, e.Evaluate(evalPlant, rec, inactive, evalNow).Events)
}

func TestEvaluator_Watermark(t *testing.T) {
	e := NewEvaluator(Config{})
	rec := model.NewRecord(evalPlant, evalNow)
	obs := evalNow.Add(-time.Minute)

	first := e.Evaluate(evalPlant, rec, weather(30, obs), evalNow)
	require.Len(t, first.Events, 1)
	assert.True(t, first.Record.SignalWatermark.Equal(obs))

	again := e.Evaluate(evalPlant, first.Record, weather(30, obs), evalNow.Add(time.Minute))
	assert.Empty(t, again.Events, "already considered signal must not fire again")
	assert.Equal(t, model.StatusPending, again.Record.Status)
}

func TestEvaluator_PendingAccumulatesAndReadyHolds(t *testing.T) {
	e := NewEvaluator(Config{})
	rec := model.NewRecord(evalPlant, evalNow)
	rec.Status = model.StatusPending
	rec.TriggerReason = model.ReasonSet{model.TriggerManual}

	sig := model.PlantSignals{Deviation: &model.DeviationSignal{DeviationPercent: 12, ObservedAt: evalNow}}
	dec := e.Evaluate(evalPlant, rec, sig, evalNow)
	assert.Equal(t, model.ReasonSet{model.TriggerManual, model.TriggerDeviation}, dec.Record.TriggerReason)
	assert.False(t, dec.Transition.StatusChanged())

	deadline := evalNow.Add(time.Hour)
	ready := model.NewRecord(evalPlant, evalNow)
	ready.Status = model.StatusReady
	ready.RevisionNumber = 2
	ready.UploadDeadline = &deadline
	dec = e.Evaluate(evalPlant, ready, sig, evalNow)
	require.Len(t, dec.Events, 1)
	assert.Equal(t, model.StatusReady, dec.Record.Status)
	assert.Empty(t, dec.Record.TriggerReason)
	assert.True(t, dec.Record.Consistent())
}

func TestEvaluator_ManualTransitions(t *testing.T) {
	e := NewEvaluator(Config{})
	deadline := evalNow.Add(time.Hour)
	ready := model.NewRecord(evalPlant, evalNow)
	ready.Status = model.StatusReady
	ready.RevisionNumber = 1
	ready.UploadDeadline = &deadline

	dec := e.TriggerRevision(evalPlant, ready, "  ", evalNow)
	assert.Equal(t, model.StatusPending, dec.Record.Status)
	assert.Nil(t, dec.Record.UploadDeadline)
	assert.Equal(t, 1, dec.Record.RevisionNumber)
	require.Len(t, dec.Events, 1)
	assert.Contains(t, dec.Events[0].Detail, defaultManualReason)
	assert.True(t, dec.Record.Consistent())

	pending := dec.Record
	dec = e.TriggerRevision(evalPlant, pending, "operator check", evalNow)
	assert.Equal(t, model.ReasonSet{model.TriggerManual}, dec.Record.TriggerReason, "no duplicate reasons")
	assert.False(t, dec.Transition.StatusChanged())
}

func TestEvaluator_MarkReadyAndContinue(t *testing.T) {
	e := NewEvaluator(Config{})
	rec := model.NewRecord(evalPlant, evalNow)

	_, err := e.MarkReady(rec, nil, evalNow)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = e.ContinueExisting(rec, evalNow)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = e.ConfirmUpload(rec, evalNow)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	rec.Status = model.StatusPending
	rec.TriggerReason = model.ReasonSet{model.TriggerWeather}

	past := evalNow.Add(-time.Minute)
	_, err = e.MarkReady(rec, &past, evalNow)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	dec, err := e.MarkReady(rec, nil, evalNow)
	require.NoError(t, err)
	assert.Equal(t, model.StatusReady, dec.Record.Status)
	assert.Equal(t, 1, dec.Record.RevisionNumber)
	require.NotNil(t, dec.Record.UploadDeadline)
	assert.Equal(t, evalNow.Add(4*time.Hour), *dec.Record.UploadDeadline)
	assert.True(t, dec.ProcessTriggers)
	assert.True(t, dec.Record.Consistent())

	dec, err = e.ContinueExisting(rec, evalNow)
	require.NoError(t, err)
	assert.Equal(t, model.StatusNoAction, dec.Record.Status)
	assert.Empty(t, dec.Record.TriggerReason)
	assert.Equal(t, 0, dec.Record.RevisionNumber)
	assert.True(t, dec.ProcessTriggers)
	assert.Empty(t, dec.Events)
}

func TestEvaluator_DeadlineMissed(t *testing.T) {
	e := NewEvaluator(Config{})
	deadline := evalNow.Add(-90 * time.Minute)
	rec := model.NewRecord(evalPlant, evalNow)
	rec.Status = model.StatusReady
	rec.RevisionNumber = 3
	rec.UploadDeadline = &deadline

	dec, err := e.DeadlineMissed(evalPlant, rec, evalNow)
	require.NoError(t, err)
	require.Len(t, dec.Events, 1)
	assert.Equal(t, model.TriggerDeadlineMiss, dec.Events[0].TriggerType)
	assert.Equal(t, model.SeverityHigh, dec.Events[0].Severity)
	assert.Contains(t, dec.Events[0].Detail, "revision 3")
	assert.Equal(t, model.StatusReady, dec.Record.Status)

	_, err = e.DeadlineMissed(evalPlant, rec, deadline.Add(-time.Minute))
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestConfigDefaultsAndValidate(t *testing.T) {
	var c Config
	c.SetDefaults()
	require.NoError(t, c.Validate())
	assert.Equal(t, 4*time.Hour, c.UrgentWindow())
	assert.Equal(t, time.Duration(0), c.ReminderInterval())

	c.ReminderIntervalMinutes = -1
	assert.Error(t, c.Validate())
}
