package signals

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/gridready/core/model"
)

var solar = model.Plant{ID: "p1", Name: "Solar One", Type: model.PlantSolar, CapacityMW: 50}

func TestMemorySource_MergesObservations(t *testing.T) {
	src := NewMemorySource()
	at := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)
	src.Update(model.PlantSignals{PlantID: "p1", Weather: &model.WeatherSignal{ChangePercent: 20, ObservedAt: at}})
	src.Update(model.PlantSignals{PlantID: "p1", Deviation: &model.DeviationSignal{DeviationPercent: 5, ObservedAt: at}})

	got, err := src.Latest(context.Background(), solar)
	require.NoError(t, err)
	require.NotNil(t, got.Weather)
	require.NotNil(t, got.Deviation)
	assert.Equal(t, 20.0, got.Weather.ChangePercent)
	assert.Equal(t, 5.0, got.Deviation.DeviationPercent)
}

func TestMemorySource_StampsMissingTime(t *testing.T) {
	src := NewMemorySource()
	fixed := time.Date(2025, 3, 4, 9, 0, 0, 0, time.UTC)
	src.now = func() time.Time { return fixed }
	src.Update(model.PlantSignals{PlantID: "p1", Curtailment: &model.CurtailmentSignal{Active: true}})

	got, err := src.Latest(context.Background(), solar)
	require.NoError(t, err)
	assert.Equal(t, fixed, got.Curtailment.ObservedAt)
}

func TestMemorySource_Unavailable(t *testing.T) {
	src := NewMemorySource()
	src.SetUnavailable("p1", errors.New("feed down"))
	_, err := src.Latest(context.Background(), solar)
	assert.ErrorIs(t, err, ErrUnavailable)

	src.SetUnavailable("p1", nil)
	got, err := src.Latest(context.Background(), solar)
	require.NoError(t, err)
	assert.Equal(t, "p1", got.PlantID)
	assert.Nil(t, got.Weather)
}

func TestCachingSource_FallsBackToCache(t *testing.T) {
	src := NewMemorySource()
	at := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)
	src.Update(model.PlantSignals{PlantID: "p1", Weather: &model.WeatherSignal{ChangePercent: 12, ObservedAt: at}})
	cs := NewCachingSource(src, NewMemoryCache(time.Hour), nil)

	_, err := cs.Latest(context.Background(), solar)
	require.NoError(t, err)

	src.SetUnavailable("p1", errors.New("timeout"))
	got, err := cs.Latest(context.Background(), solar)
	require.NoError(t, err)
	assert.Equal(t, 12.0, got.Weather.ChangePercent)

	other := model.Plant{ID: "p2", Type: model.PlantWind}
	src.SetUnavailable("p2", errors.New("timeout"))
	_, err = cs.Latest(context.Background(), other)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	now := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	require.NoError(t, c.Store(context.Background(), model.PlantSignals{PlantID: "p1"}))

	_, ok, err := c.Load(context.Background(), "p1")
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok, err = c.Load(context.Background(), "p1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDerivationHelpers(t *testing.T) {
	assert.Equal(t, ParamWindSpeed, ParameterFor(model.PlantWind))
	assert.Equal(t, ParamCloudCover, ParameterFor(model.PlantSolar))
	assert.InDelta(t, 25.0, ChangePercent(8, 10), 1e-9)
	assert.Equal(t, 0.0, ChangePercent(0, 10))

	w := NewWeatherSignal(model.PlantWind, 12, 9, time.Time{})
	assert.Equal(t, ParamWindSpeed, w.Parameter)
	assert.Equal(t, -25.0, w.ChangePercent)

	assert.Equal(t, 1, BlockIndex(time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 42, BlockIndex(time.Date(2025, 3, 4, 10, 20, 0, 0, time.UTC)))
	assert.Equal(t, BlocksPerDay, BlockIndex(time.Date(2025, 3, 4, 23, 59, 0, 0, time.UTC)))

	assert.InDelta(t, 12.0, BlockDeviation(112, 100), 1e-9)
	assert.Equal(t, 0.0, BlockDeviation(5, 0))
	assert.InDelta(t, 10.0, WindowDeviation([]float64{50, 60, 99}, []float64{50, 50}), 1e-9)

	d := NewDeviationSignal(42, []float64{90, 95}, []float64{100, 100}, time.Time{})
	assert.Equal(t, 42, d.Block)
	assert.Equal(t, 95.0, d.Generation)
	assert.Equal(t, -7.5, d.DeviationPercent)
}
