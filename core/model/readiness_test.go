package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReasonSetUnion(t *testing.T) {
	var r ReasonSet
	r = r.Add(TriggerWeather, TriggerDeviation, TriggerWeather)
	assert.Equal(t, "Weather, Deviation", r.String())
	r = r.Add(TriggerManual)
	assert.Equal(t, ReasonSet{TriggerWeather, TriggerDeviation, TriggerManual}, r)
	assert.Equal(t, r, ParseReasons(r.String()))
	assert.Nil(t, ParseReasons(""))
}

func TestReasonSetCloneIsIndependent(t *testing.T) {
	r := ReasonSet{TriggerWeather}
	c := r.Clone()
	c[0] = TriggerManual
	assert.Equal(t, TriggerWeather, r[0])
}

func TestRecordJSONRoundTrip(t *testing.T) {
	dl := time.Date(2025, 3, 4, 14, 0, 0, 0, time.UTC)
	rec := Record{
		PlantID:        "p1",
		PlantName:      "Plant 1",
		ScheduleDate:   time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC),
		Status:         StatusReady,
		RevisionNumber: 2,
		UploadDeadline: &dl,
	}
	b, err := json.Marshal(rec)
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(b, &raw))
	assert.Equal(t, "2025-03-04", raw["schedule_date"])
	assert.Equal(t, "", raw["trigger_reason"])

	var back Record
	require.NoError(t, json.Unmarshal(b, &back))
	assert.True(t, back.ScheduleDate.Equal(rec.ScheduleDate))
	assert.Equal(t, rec.RevisionNumber, back.RevisionNumber)
	require.NotNil(t, back.UploadDeadline)
	assert.True(t, back.UploadDeadline.Equal(dl))
}

func TestRecordConsistent(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name string
		rec  Record
		want bool
	}{
		{"default", Record{Status: StatusNoAction}, true},
		{"pending", Record{Status: StatusPending, TriggerReason: ReasonSet{TriggerManual}}, true},
		{"pending without reason", Record{Status: StatusPending}, false},
		{"ready", Record{Status: StatusReady, UploadDeadline: &now}, true},
		{"ready without deadline", Record{Status: StatusReady}, false},
		{"deadline while idle", Record{Status: StatusNoAction, UploadDeadline: &now}, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, c.rec.Consistent(), c.name)
	}
}

func TestParseStatus(t *testing.T) {
	s, ok := ParseStatus("pending")
	assert.True(t, ok)
	assert.Equal(t, StatusPending, s)
	s, ok = ParseStatus("All")
	assert.True(t, ok)
	assert.Equal(t, Status(""), s)
	_, ok = ParseStatus("DONE")
	assert.False(t, ok)
}

func TestPriorityMax(t *testing.T) {
	assert.Equal(t, PriorityHigh, PriorityNormal.Max(PriorityHigh))
	assert.Equal(t, PriorityUrgent, PriorityUrgent.Max(PriorityLow))
}

func TestSignalsMergeAndNewest(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	a := PlantSignals{PlantID: "p1", Weather: &WeatherSignal{ObservedAt: t0}}
	b := PlantSignals{Deviation: &DeviationSignal{ObservedAt: t0.Add(time.Minute)}}
	m := a.Merge(b)
	assert.Equal(t, "p1", m.PlantID)
	require.NotNil(t, m.Weather)
	require.NotNil(t, m.Deviation)
	assert.True(t, m.Newest().Equal(t0.Add(time.Minute)))
}
