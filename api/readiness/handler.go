// Package readiness exposes the schedule readiness engine over HTTP/JSON
// under /api/schedule-readiness.
package readiness

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/kilianp07/gridready/core/audit"
	"github.com/kilianp07/gridready/core/logger"
	"github.com/kilianp07/gridready/core/model"
	"github.com/kilianp07/gridready/core/notify"
	core "github.com/kilianp07/gridready/core/readiness"
)

// Service is the readiness engine as seen by the HTTP layer.
type Service interface {
	Location() *time.Location
	GetReadiness(ctx context.Context, plantID string) (model.Record, error)
	ListReadiness(ctx context.Context, status model.Status) (core.Summary, error)
	TriggerRevision(ctx context.Context, plantID, reason string) (model.Record, error)
	ContinueExisting(ctx context.Context, plantID string) (model.Record, error)
	MarkReady(ctx context.Context, plantID string, uploadDeadline *time.Time) (model.Record, error)
	ConfirmUpload(ctx context.Context, plantID string) (model.Record, error)
	EvaluatePlant(ctx context.Context, plantID string) (model.Record, error)
	CheckTriggers(ctx context.Context) (core.SweepResult, error)
	ListTriggerEvents(ctx context.Context, q core.TriggerQuery) ([]model.TriggerEvent, error)
	ListNotifications(ctx context.Context, q notify.Query) (notify.Page, error)
	MarkNotificationRead(ctx context.Context, id string) error
	MarkAllNotificationsRead(ctx context.Context, plantID string) (int, error)
	History(ctx context.Context, plantID string, limit int) ([]audit.Entry, error)
}

// Pinger reports backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}

const (
	prefix       = "/api/schedule-readiness"
	triggerLimit = 50
	triggerMax   = 100
)

type handler struct {
	svc    Service
	health Pinger
	log    logger.Logger
}

// Option customizes the handler.
type Option func(*handler)

// WithHealthCheck makes /api/health report the state of p.
func WithHealthCheck(p Pinger) Option { return func(h *handler) { h.health = p } }

// WithLogger sets the request logger.
func WithLogger(l logger.Logger) Option { return func(h *handler) { h.log = logger.OrNop(l) } }

// NewHandler returns the HTTP handler for every readiness route and
// /api/health.
func NewHandler(svc Service, opts ...Option) http.Handler {
	h := &handler{svc: svc, log: logger.Nop{}}
	for _, o := range opts {
		o(h)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", h.healthz)
	mux.HandleFunc("GET "+prefix, h.list)
	mux.HandleFunc("GET "+prefix+"/summary", h.summary)
	mux.HandleFunc("GET "+prefix+"/notifications", h.notifications)
	mux.HandleFunc("PUT "+prefix+"/notifications/read-all", h.markAllRead)
	mux.HandleFunc("PUT "+prefix+"/notifications/{id}/read", h.markRead)
	mux.HandleFunc("GET "+prefix+"/triggers", h.triggers)
	mux.HandleFunc("POST "+prefix+"/check-triggers", h.checkTriggers)
	mux.HandleFunc("GET "+prefix+"/{plant_id}", h.get)
	mux.HandleFunc("GET "+prefix+"/{plant_id}/history", h.history)
	mux.HandleFunc("POST "+prefix+"/{plant_id}/trigger", h.trigger)
	mux.HandleFunc("POST "+prefix+"/{plant_id}/continue", h.continueExisting)
	mux.HandleFunc("POST "+prefix+"/{plant_id}/mark-ready", h.markReady)
	mux.HandleFunc("POST "+prefix+"/{plant_id}/confirm-upload", h.confirmUpload)
	mux.HandleFunc("POST "+prefix+"/{plant_id}/evaluate", h.evaluate)
	return h.logRequests(mux)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (h *handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.log.Debugw("http request", map[string]any{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rec.status,
			"duration_ms": time.Since(start).Milliseconds(),
		})
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Detail string `json:"detail"`
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Detail: msg})
}

// writeError maps engine errors onto status codes.
func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, core.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, core.ErrInvalidTransition), errors.Is(err, core.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, core.ErrSignalUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, core.ErrInvalidArgument):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		h.log.Errorf("%s %s: %v", r.Method, r.URL.Path, err)
	}
	writeJSON(w, status, errorBody{Detail: err.Error()})
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "message": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": "Server is running"})
}

func (h *handler) list(w http.ResponseWriter, r *http.Request) {
	status, ok := model.ParseStatus(r.URL.Query().Get("status"))
	if !ok {
		badRequest(w, "status must be one of READY, PENDING, NO_ACTION, All")
		return
	}
	sum, err := h.svc.ListReadiness(r.Context(), status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (h *handler) summary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.svc.ListReadiness(r.Context(), "")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"total":     sum.TotalPlants,
		"ready":     sum.ReadyCount,
		"pending":   sum.PendingCount,
		"no_action": sum.NoActionCount,
	})
}

func (h *handler) get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.GetReadiness(r.Context(), r.PathValue("plant_id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *handler) history(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 0)
	if err != nil || limit < 0 {
		badRequest(w, "limit must be a non-negative integer")
		return
	}
	entries, err := h.svc.History(r.Context(), r.PathValue("plant_id"), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": entries, "total": len(entries)})
}

type actionResponse struct {
	Success        bool            `json:"success"`
	Message        string          `json:"message"`
	PlantID        string          `json:"plant_id"`
	Status         model.Status    `json:"status"`
	TriggerReason  model.ReasonSet `json:"trigger_reason"`
	RevisionNumber int             `json:"revision_number"`
	UploadDeadline *time.Time      `json:"upload_deadline"`
	Record         model.Record    `json:"record"`
}

func (h *handler) action(w http.ResponseWriter, r *http.Request, msg string, op func(ctx context.Context, plantID string) (model.Record, error)) {
	rec, err := op(r.Context(), r.PathValue("plant_id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	name := rec.PlantName
	if name == "" {
		name = rec.PlantID
	}
	writeJSON(w, http.StatusOK, actionResponse{
		Success:        true,
		Message:        msg + " " + name,
		PlantID:        rec.PlantID,
		Status:         rec.Status,
		TriggerReason:  rec.TriggerReason,
		RevisionNumber: rec.RevisionNumber,
		UploadDeadline: rec.UploadDeadline,
		Record:         rec,
	})
}

func (h *handler) trigger(w http.ResponseWriter, r *http.Request) {
	reason := r.URL.Query().Get("reason")
	h.action(w, r, "Schedule revision triggered for", func(ctx context.Context, id string) (model.Record, error) {
		return h.svc.TriggerRevision(ctx, id, reason)
	})
}

func (h *handler) continueExisting(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, "Continuing existing schedule for", h.svc.ContinueExisting)
}

func (h *handler) markReady(w http.ResponseWriter, r *http.Request) {
	var deadline *time.Time
	if v := r.URL.Query().Get("upload_deadline"); v != "" {
		t, err := parseDeadline(v, h.svc.Location())
		if err != nil {
			badRequest(w, "Invalid date format. Use ISO format")
			return
		}
		deadline = &t
	}
	h.action(w, r, "Schedule marked as ready for", func(ctx context.Context, id string) (model.Record, error) {
		return h.svc.MarkReady(ctx, id, deadline)
	})
}

// parseDeadline accepts RFC 3339 and zone-less ISO timestamps; the latter
// are read in loc.
func parseDeadline(v string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02T15:04"} {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.New("invalid deadline")
}

func (h *handler) confirmUpload(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, "Schedule upload confirmed for", h.svc.ConfirmUpload)
}

func (h *handler) evaluate(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, "Triggers evaluated for", h.svc.EvaluatePlant)
}

type sweepResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	core.SweepResult
}

func (h *handler) checkTriggers(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.CheckTriggers(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sweepResponse{
		Success:     true,
		Message:     "Trigger check completed for all plants",
		SweepResult: res,
	})
}

func (h *handler) notifications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	unread, err := boolParam(q.Get("unread_only"))
	if err != nil {
		badRequest(w, "unread_only must be a boolean")
		return
	}
	limit, err := intParam(r, "limit", notify.DefaultLimit)
	if err != nil || limit < 1 || limit > notify.MaxLimit {
		badRequest(w, "limit must be between 1 and 100")
		return
	}
	page, err := h.svc.ListNotifications(r.Context(), notify.Query{
		UnreadOnly: unread != nil && *unread,
		PlantID:    q.Get("plant_id"),
		Limit:      limit,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *handler) markRead(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.svc.MarkNotificationRead(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"message":         "Notification marked as read",
		"notification_id": id,
	})
}

func (h *handler) markAllRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.MarkAllNotificationsRead(r.Context(), r.URL.Query().Get("plant_id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Notifications marked as read",
		"updated": n,
	})
}

func (h *handler) triggers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := core.TriggerQuery{PlantID: q.Get("plant_id")}
	if v := q.Get("trigger_type"); v != "" {
		t, ok := model.ParseTriggerType(v)
		if !ok {
			badRequest(w, "unknown trigger_type "+v)
			return
		}
		query.TriggerType = t
	}
	processed, err := boolParam(q.Get("processed"))
	if err != nil {
		badRequest(w, "processed must be a boolean")
		return
	}
	query.Processed = processed
	limit, err := intParam(r, "limit", triggerLimit)
	if err != nil || limit < 1 || limit > triggerMax {
		badRequest(w, "limit must be between 1 and 100")
		return
	}
	query.Limit = limit
	events, err := h.svc.ListTriggerEvents(r.Context(), query)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"triggers": events, "total": len(events)})
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func boolParam(v string) (*bool, error) {
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, err
	}
	return &b, nil
}
