// Package readinesstest provides a behavioural test suite shared by every
// readiness.Store implementation.
package readinesstest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/gridready/core/model"
	"github.com/kilianp07/gridready/core/readiness"
)

var (
	day    = time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)
	at     = time.Date(2025, 3, 4, 9, 30, 0, 0, time.UTC)
	plantA = model.Plant{ID: "plant-a", Name: "Plant A", Type: model.PlantSolar}
	plantB = model.Plant{ID: "plant-b", Name: "Plant B", Type: model.PlantWind}
)

func event(id string, p model.Plant, t model.TriggerType, detected time.Time) model.TriggerEvent {
	threshold, actual := 15.0, 22.5
	return model.TriggerEvent{
		ID:             id,
		PlantID:        p.ID,
		ScheduleDate:   day,
		TriggerType:    t,
		Severity:       model.SeverityMedium,
		Detail:         "detail " + id,
		ThresholdValue: &threshold,
		ActualValue:    &actual,
		DetectedAt:     detected,
	}
}

// RunStoreTests exercises s against the Store contract. newStore must return
// an empty store on every call.
func RunStoreTests(t *testing.T, newStore func(t *testing.T) readiness.Store) {
	t.Run("GetMissingReturnsDefault", func(t *testing.T) {
		s := newStore(t)
		rec, ok, err := s.Get(context.Background(), model.Key(plantA.ID, day))
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, model.StatusNoAction, rec.Status)
		assert.Equal(t, plantA.ID, rec.PlantID)
		assert.Equal(t, uint64(0), rec.Version)
	})

	t.Run("ApplyRoundTrip", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		rec := model.NewRecord(plantA, day)
		rec.Status = model.StatusPending
		rec.TriggerReason = model.ReasonSet{model.TriggerWeather, model.TriggerDeviation}
		rec.LastChecked = at
		rec.UpdatedAt = at
		rec.SignalWatermark = at.Add(-time.Minute)

		saved, err := s.Apply(ctx, readiness.Mutation{Record: rec})
		require.NoError(t, err)
		assert.Equal(t, uint64(1), saved.Version)

		got, ok, err := s.Get(ctx, rec.Key())
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, model.StatusPending, got.Status)
		assert.Equal(t, rec.TriggerReason, got.TriggerReason)
		assert.True(t, got.LastChecked.Equal(at))
		assert.True(t, got.SignalWatermark.Equal(rec.SignalWatermark))
		assert.True(t, got.ScheduleDate.Equal(day))
		assert.Equal(t, "Plant A", got.PlantName)
		assert.Nil(t, got.UploadDeadline)

		deadline := at.Add(4 * time.Hour)
		got.Status = model.StatusReady
		got.TriggerReason = nil
		got.RevisionNumber = 1
		got.UploadDeadline = &deadline
		saved, err = s.Apply(ctx, readiness.Mutation{Record: got, ExpectedVersion: got.Version})
		require.NoError(t, err)
		assert.Equal(t, uint64(2), saved.Version)

		got, _, err = s.Get(ctx, rec.Key())
		require.NoError(t, err)
		require.NotNil(t, got.UploadDeadline)
		assert.True(t, got.UploadDeadline.Equal(deadline))
		assert.Empty(t, got.TriggerReason)
		assert.Equal(t, 1, got.RevisionNumber)
	})

	t.Run("ApplyRejectsStaleVersion", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		rec := model.NewRecord(plantA, day)
		_, err := s.Apply(ctx, readiness.Mutation{Record: rec})
		require.NoError(t, err)

		_, err = s.Apply(ctx, readiness.Mutation{Record: rec})
		assert.ErrorIs(t, err, readiness.ErrVersionMismatch, "insert over existing record")

		_, err = s.Apply(ctx, readiness.Mutation{Record: rec, ExpectedVersion: 7})
		assert.ErrorIs(t, err, readiness.ErrVersionMismatch)

		other := model.NewRecord(plantB, day)
		_, err = s.Apply(ctx, readiness.Mutation{Record: other, ExpectedVersion: 1})
		assert.ErrorIs(t, err, readiness.ErrVersionMismatch, "update of missing record")
	})

	t.Run("ConcurrentApplySingleWinner", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		rec := model.NewRecord(plantA, day)
		saved, err := s.Apply(ctx, readiness.Mutation{Record: rec})
		require.NoError(t, err)

		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				next := saved.Clone()
				next.RevisionNumber = i + 1
				if _, err := s.Apply(ctx, readiness.Mutation{Record: next, ExpectedVersion: saved.Version}); err == nil {
					wins.Add(1)
				} else if !errors.Is(err, readiness.ErrVersionMismatch) {
					t.Errorf("unexpected error: %v", err)
				}
			}(i)
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
	})

	t.Run("TriggersAndProcessing", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		rec := model.NewRecord(plantA, day)
		rec.Status = model.StatusPending
		rec.TriggerReason = model.ReasonSet{model.TriggerWeather}
		saved, err := s.Apply(ctx, readiness.Mutation{Record: rec, Events: []model.TriggerEvent{
			event("e1", plantA, model.TriggerWeather, at),
			event("e2", plantA, model.TriggerDeviation, at.Add(time.Minute)),
		}})
		require.NoError(t, err)
		recB := model.NewRecord(plantB, day)
		_, err = s.Apply(ctx, readiness.Mutation{Record: recB, Events: []model.TriggerEvent{
			event("e3", plantB, model.TriggerCurtailment, at.Add(2*time.Minute)),
		}})
		require.NoError(t, err)

		all, err := s.QueryTriggers(ctx, readiness.TriggerQuery{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "e3", all[0].ID, "newest first")
		assert.Equal(t, "detail e1", all[2].Detail)
		require.NotNil(t, all[2].ActualValue)
		assert.Equal(t, 22.5, *all[2].ActualValue)

		onlyA, err := s.QueryTriggers(ctx, readiness.TriggerQuery{PlantID: plantA.ID, TriggerType: model.TriggerDeviation})
		require.NoError(t, err)
		require.Len(t, onlyA, 1)
		assert.Equal(t, "e2", onlyA[0].ID)

		limited, err := s.QueryTriggers(ctx, readiness.TriggerQuery{Limit: 2})
		require.NoError(t, err)
		assert.Len(t, limited, 2)

		saved.Status = model.StatusNoAction
		saved.TriggerReason = nil
		_, err = s.Apply(ctx, readiness.Mutation{Record: saved, ExpectedVersion: saved.Version, ProcessTriggers: true})
		require.NoError(t, err)

		processed := true
		done, err := s.QueryTriggers(ctx, readiness.TriggerQuery{Processed: &processed})
		require.NoError(t, err)
		require.Len(t, done, 2)
		for _, ev := range done {
			assert.Equal(t, plantA.ID, ev.PlantID)
		}
		unprocessed := false
		open, err := s.QueryTriggers(ctx, readiness.TriggerQuery{Processed: &unprocessed})
		require.NoError(t, err)
		require.Len(t, open, 1)
		assert.Equal(t, "e3", open[0].ID)
	})

	t.Run("ListFilters", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		a := model.NewRecord(plantA, day)
		a.Status = model.StatusPending
		a.TriggerReason = model.ReasonSet{model.TriggerManual}
		b := model.NewRecord(plantB, day)
		prev := model.NewRecord(plantA, day.AddDate(0, 0, -1))
		for _, r := range []model.Record{a, b, prev} {
			_, err := s.Apply(ctx, readiness.Mutation{Record: r})
			require.NoError(t, err)
		}

		all, err := s.List(ctx, readiness.RecordFilter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.True(t, all[0].ScheduleDate.Equal(day.AddDate(0, 0, -1)), "ordered by date")

		today, err := s.List(ctx, readiness.RecordFilter{Date: day})
		require.NoError(t, err)
		require.Len(t, today, 2)
		assert.Equal(t, plantA.ID, today[0].PlantID)

		pending, err := s.List(ctx, readiness.RecordFilter{Status: model.StatusPending})
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, model.ReasonSet{model.TriggerManual}, pending[0].TriggerReason)

		byPlant, err := s.List(ctx, readiness.RecordFilter{PlantID: plantA.ID})
		require.NoError(t, err)
		assert.Len(t, byPlant, 2)
	})
}
