package readiness

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/gridready/core/audit"
	"github.com/kilianp07/gridready/core/model"
	"github.com/kilianp07/gridready/core/notify"
	core "github.com/kilianp07/gridready/core/readiness"
	"github.com/kilianp07/gridready/core/signals"
)

var now = time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)

type env struct {
	srv *httptest.Server
	src *signals.MemorySource
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func newEnv(t *testing.T, opts ...Option) *env {
	t.Helper()
	dir, err := core.NewStaticDirectory([]model.Plant{
		{ID: "p1", Name: "Solar One", Type: model.PlantSolar},
		{ID: "p2", Name: "Wind Two", Type: model.PlantWind},
	})
	require.NoError(t, err)
	src := signals.NewMemorySource()
	var cfg core.Config
	cfg.SetDefaults()
	svc, err := core.NewService(core.NewMemoryStore(), dir, src,
		notify.NewDispatcher(notify.NewMemoryFeed(), cfg.UrgentWindow()), cfg,
		core.WithClock(func() time.Time { return now }),
		core.WithAudit(audit.NewMemoryStore()))
	require.NoError(t, err)
	srv := httptest.NewServer(NewHandler(svc, opts...))
	t.Cleanup(srv.Close)
	return &env{srv: srv, src: src}
}

func (e *env) do(t *testing.T, method, path string, out any) int {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

type recordJSON struct {
	PlantID        string     `json:"plant_id"`
	PlantName      string     `json:"plant_name"`
	ScheduleDate   string     `json:"schedule_date"`
	Status         string     `json:"status"`
	TriggerReason  string     `json:"trigger_reason"`
	RevisionNumber int        `json:"revision_number"`
	UploadDeadline *time.Time `json:"upload_deadline"`
}

type actionJSON struct {
	Success        bool       `json:"success"`
	Message        string     `json:"message"`
	Status         string     `json:"status"`
	TriggerReason  string     `json:"trigger_reason"`
	RevisionNumber int        `json:"revision_number"`
	UploadDeadline *time.Time `json:"upload_deadline"`
	Record         recordJSON `json:"record"`
}

type errorJSON struct {
	Detail string `json:"detail"`
}

func TestHealth(t *testing.T) {
	e := newEnv(t)
	var body map[string]string
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/health", &body))
	assert.Equal(t, "ok", body["status"])

	e = newEnv(t, WithHealthCheck(pingFunc(func(context.Context) error { return errors.New("db down") })))
	assert.Equal(t, http.StatusServiceUnavailable, e.do(t, http.MethodGet, "/api/health", &body))
	assert.Equal(t, "degraded", body["status"])
}

func TestManualRevisionToUpload(t *testing.T) {
	e := newEnv(t)

	var rec recordJSON
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/schedule-readiness/p1", &rec))
	assert.Equal(t, "NO_ACTION", rec.Status)
	assert.Equal(t, "2025-03-04", rec.ScheduleDate)
	assert.Equal(t, "Solar One", rec.PlantName)

	var act actionJSON
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/api/schedule-readiness/p1/trigger?reason="+url.QueryEscape("Inverter outage"), &act))
	assert.True(t, act.Success)
	assert.Equal(t, "Schedule revision triggered for Solar One", act.Message)
	assert.Equal(t, "PENDING", act.Status)
	assert.Equal(t, "Manual", act.TriggerReason)

	deadline := now.Add(2 * time.Hour).Format(time.RFC3339)
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/api/schedule-readiness/p1/mark-ready?upload_deadline="+url.QueryEscape(deadline), &act))
	assert.Equal(t, "READY", act.Status)
	assert.Equal(t, 1, act.RevisionNumber)
	require.NotNil(t, act.UploadDeadline)
	assert.True(t, act.UploadDeadline.Equal(now.Add(2*time.Hour)))
	assert.Equal(t, "", act.Record.TriggerReason)

	var errBody errorJSON
	assert.Equal(t, http.StatusConflict, e.do(t, http.MethodPost, "/api/schedule-readiness/p1/mark-ready", &errBody))
	assert.Contains(t, errBody.Detail, "READY")

	var sum map[string]int
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/schedule-readiness/summary", &sum))
	assert.Equal(t, map[string]int{"total": 2, "ready": 1, "pending": 0, "no_action": 1}, sum)

	var list struct {
		TotalPlants int          `json:"total_plants"`
		ReadyCount  int          `json:"ready_count"`
		Plants      []recordJSON `json:"plants"`
	}
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/schedule-readiness?status=READY", &list))
	assert.Equal(t, 2, list.TotalPlants)
	require.Len(t, list.Plants, 1)
	assert.Equal(t, "p1", list.Plants[0].PlantID)

	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/api/schedule-readiness/p1/confirm-upload", &act))
	assert.Equal(t, "NO_ACTION", act.Status)
	assert.Nil(t, act.UploadDeadline)

	var hist struct {
		History []audit.Entry `json:"history"`
		Total   int           `json:"total"`
	}
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/schedule-readiness/p1/history", &hist))
	require.Equal(t, 3, hist.Total)
	assert.Equal(t, model.StatusReady, hist.History[2].From)
	assert.Equal(t, model.StatusNoAction, hist.History[2].To)
}

func TestNotifications(t *testing.T) {
	e := newEnv(t)
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/api/schedule-readiness/p1/trigger?reason=check", nil))
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/api/schedule-readiness/p2/trigger?reason=check", nil))

	var page struct {
		Notifications []model.Notification `json:"notifications"`
		Total         int                  `json:"total"`
		UnreadCount   int                  `json:"unread_count"`
	}
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/schedule-readiness/notifications", &page))
	require.Equal(t, 2, page.Total)
	assert.Equal(t, 2, page.UnreadCount)
	id := page.Notifications[0].ID

	var ack map[string]any
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPut, "/api/schedule-readiness/notifications/"+id+"/read", &ack))
	assert.Equal(t, true, ack["success"])
	assert.Equal(t, id, ack["notification_id"])
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPut, "/api/schedule-readiness/notifications/"+id+"/read", nil), "idempotent")
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodPut, "/api/schedule-readiness/notifications/missing/read", nil))

	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/schedule-readiness/notifications?unread_only=true", &page))
	assert.Equal(t, 1, page.Total)

	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/schedule-readiness/notifications?plant_id=p2&limit=1", &page))
	require.Len(t, page.Notifications, 1)
	assert.Equal(t, "p2", page.Notifications[0].PlantID)

	require.Equal(t, http.StatusOK, e.do(t, http.MethodPut, "/api/schedule-readiness/notifications/read-all", &ack))
	assert.Equal(t, float64(1), ack["updated"])

	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodGet, "/api/schedule-readiness/notifications?limit=500", nil))
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodGet, "/api/schedule-readiness/notifications?unread_only=maybe", nil))
}

func TestCheckTriggersAndTriggerEvents(t *testing.T) {
	e := newEnv(t)
	e.src.Update(model.PlantSignals{PlantID: "p1", Weather: &model.WeatherSignal{ChangePercent: 30, ObservedAt: now}})
	e.src.Update(model.PlantSignals{PlantID: "p2", Deviation: &model.DeviationSignal{Block: 41, DeviationPercent: -12, ObservedAt: now}})

	var sweep struct {
		Success       bool   `json:"success"`
		Message       string `json:"message"`
		PlantsChecked int    `json:"plants_checked"`
		PendingCount  int    `json:"pending_count"`
		ReadyCount    int    `json:"ready_count"`
		NoActionCount int    `json:"no_action_count"`
	}
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/api/schedule-readiness/check-triggers", &sweep))
	assert.True(t, sweep.Success)
	assert.Equal(t, "Trigger check completed for all plants", sweep.Message)
	assert.Equal(t, 2, sweep.PlantsChecked)
	assert.Equal(t, 2, sweep.PendingCount)

	var trig struct {
		Triggers []model.TriggerEvent `json:"triggers"`
		Total    int                  `json:"total"`
	}
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/schedule-readiness/triggers", &trig))
	assert.Equal(t, 2, trig.Total)

	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/schedule-readiness/triggers?trigger_type=Weather&processed=false", &trig))
	require.Equal(t, 1, trig.Total)
	assert.Equal(t, model.SeverityHigh, trig.Triggers[0].Severity)
	assert.Equal(t, "p1", trig.Triggers[0].PlantID)

	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodGet, "/api/schedule-readiness/triggers?trigger_type=Solar", nil))
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodGet, "/api/schedule-readiness/triggers?limit=0", nil))
}

func TestErrorMapping(t *testing.T) {
	e := newEnv(t)
	var errBody errorJSON
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/api/schedule-readiness/p9", &errBody))
	assert.Contains(t, errBody.Detail, "p9")
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodPost, "/api/schedule-readiness/p9/trigger?reason=x", nil))
	assert.Equal(t, http.StatusConflict, e.do(t, http.MethodPost, "/api/schedule-readiness/p1/continue", nil))
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodGet, "/api/schedule-readiness?status=LATE", nil))

	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/api/schedule-readiness/p1/trigger?reason=x", nil))
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPost, "/api/schedule-readiness/p1/mark-ready?upload_deadline=tomorrow", nil))
	past := now.Add(-time.Hour).Format(time.RFC3339)
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPost, "/api/schedule-readiness/p1/mark-ready?upload_deadline="+url.QueryEscape(past), nil))

	e.src.SetUnavailable("p2", errors.New("meter gateway timeout"))
	assert.Equal(t, http.StatusServiceUnavailable, e.do(t, http.MethodPost, "/api/schedule-readiness/p2/evaluate", &errBody))
	assert.Contains(t, errBody.Detail, "meter gateway timeout")
}

func TestParseDeadline(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	got, err := parseDeadline("2025-03-04T18:30:00", ist)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2025, 3, 4, 13, 0, 0, 0, time.UTC)))

	got, err = parseDeadline("2025-03-04T18:30:00Z", ist)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2025, 3, 4, 18, 30, 0, 0, time.UTC)))

	_, err = parseDeadline("04/03/2025", ist)
	assert.Error(t, err)
}
