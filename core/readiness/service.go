package readiness

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/gridready/core/audit"
	"github.com/kilianp07/gridready/core/deadline"
	"github.com/kilianp07/gridready/core/logger"
	"github.com/kilianp07/gridready/core/metrics"
	"github.com/kilianp07/gridready/core/model"
	"github.com/kilianp07/gridready/core/monitoring"
	"github.com/kilianp07/gridready/core/notify"
	"github.com/kilianp07/gridready/core/signals"
	"github.com/kilianp07/gridready/internal/eventbus"
)

// Notifier turns applied transitions into operator notifications.
type Notifier interface {
	NotifyTransition(ctx context.Context, p model.Plant, t model.Transition) (*model.Notification, error)
	NotifyDeadlineMissed(ctx context.Context, p model.Plant, rec model.Record, escalation int) (*model.Notification, error)
	Feed() notify.Feed
}

// Summary is the dashboard view of today's records.
type Summary struct {
	TotalPlants   int            `json:"total_plants"`
	ReadyCount    int            `json:"ready_count"`
	PendingCount  int            `json:"pending_count"`
	NoActionCount int            `json:"no_action_count"`
	Plants        []model.Record `json:"plants"`
}

func (s *Summary) count(st model.Status) {
	switch st {
	case model.StatusReady:
		s.ReadyCount++
	case model.StatusPending:
		s.PendingCount++
	default:
		s.NoActionCount++
	}
}

// SweepResult reports one CheckTriggers run. Status counts cover the plants
// that were evaluated; skipped plants are listed separately.
type SweepResult struct {
	PlantsChecked   int      `json:"plants_checked"`
	ReadyCount      int      `json:"ready_count"`
	PendingCount    int      `json:"pending_count"`
	NoActionCount   int      `json:"no_action_count"`
	Skipped         int      `json:"skipped"`
	SkippedPlants   []string `json:"skipped_plants,omitempty"`
	TriggersCreated int      `json:"triggers_created"`
	DeadlineMisses  int      `json:"deadline_misses"`
}

// Service is the entry point for every readiness operation. All writes go
// through a read-decide-write cycle guarded by the record version.
type Service struct {
	store     Store
	plants    Directory
	signals   signals.Source
	notifier  Notifier
	deadlines *deadline.Scheduler
	eval      Evaluator
	cfg       Config

	audit       audit.Store
	metrics     metrics.MetricsSink
	transitions *eventbus.TypedBus[model.Transition]
	log         logger.Logger
	tracer      trace.Tracer
	now         func() time.Time
	loc         *time.Location
	workers     int
}

// Option customizes a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithLocation sets the timezone that defines the current schedule date.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithWorkers bounds the number of plants evaluated concurrently.
func WithWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(l logger.Logger) Option { return func(s *Service) { s.log = logger.OrNop(l) } }

// WithMetrics sets the metrics sink.
func WithMetrics(m metrics.MetricsSink) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithAudit records every applied transition in a.
func WithAudit(a audit.Store) Option { return func(s *Service) { s.audit = a } }

// WithTransitionBus publishes every status change on bus.
func WithTransitionBus(bus *eventbus.TypedBus[model.Transition]) Option {
	return func(s *Service) { s.transitions = bus }
}

// WithDeadlines injects the deadline scheduler.
func WithDeadlines(d *deadline.Scheduler) Option {
	return func(s *Service) {
		if d != nil {
			s.deadlines = d
		}
	}
}

// NewService wires the readiness engine.
func NewService(store Store, plants Directory, src signals.Source, notifier Notifier, cfg Config, opts ...Option) (*Service, error) {
	if store == nil || plants == nil || src == nil || notifier == nil {
		return nil, fmt.Errorf("readiness: nil dependency provided to NewService")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("readiness: %w", err)
	}
	s := &Service{
		store:    store,
		plants:   plants,
		signals:  src,
		notifier: notifier,
		eval:     NewEvaluator(cfg),
		cfg:      cfg,
		metrics:  metrics.NopSink{},
		log:      logger.Nop{},
		tracer:   otel.Tracer("github.com/kilianp07/gridready/core/readiness"),
		now:      time.Now,
		loc:      time.UTC,
		workers:  4,
	}
	for _, o := range opts {
		o(s)
	}
	if s.deadlines == nil {
		s.deadlines = deadline.New(cfg.ReminderInterval())
	}
	return s, nil
}

// Location is the timezone schedule dates are computed in.
func (s *Service) Location() *time.Location { return s.loc }

// Today returns the current schedule date.
func (s *Service) Today() time.Time { return model.Day(s.now().In(s.loc)) }

// RestoreDeadlines registers the READY records of the store with the
// deadline scheduler. Misses already stored for a record's current deadline
// count as reported, so a restart does not report them again. It is called
// once on startup.
func (s *Service) RestoreDeadlines(ctx context.Context) (int, error) {
	recs, err := s.store.List(ctx, RecordFilter{Status: model.StatusReady})
	if err != nil {
		return 0, fmt.Errorf("restore deadlines: %w", err)
	}
	misses := make(map[string][]model.TriggerEvent)
	for _, r := range recs {
		if r.UploadDeadline == nil {
			s.deadlines.Track(r)
			continue
		}
		evs, ok := misses[r.PlantID]
		if !ok {
			evs, err = s.store.QueryTriggers(ctx, TriggerQuery{PlantID: r.PlantID, TriggerType: model.TriggerDeadlineMiss})
			if err != nil {
				return 0, fmt.Errorf("restore deadlines: %w", err)
			}
			misses[r.PlantID] = evs
		}
		reported, last := reportedMisses(r, evs)
		s.deadlines.Restore(r, reported, last)
	}
	return len(recs), nil
}

// reportedMisses counts the DeadlineMiss events of rec's current deadline.
// A new deadline always lies after the misses of earlier revisions.
func reportedMisses(rec model.Record, evs []model.TriggerEvent) (int, time.Time) {
	var (
		n    int
		last time.Time
	)
	date := rec.ScheduleDate.Format(model.DateLayout)
	for _, ev := range evs {
		if ev.ScheduleDate.Format(model.DateLayout) != date || !ev.DetectedAt.After(*rec.UploadDeadline) {
			continue
		}
		n++
		if ev.DetectedAt.After(last) {
			last = ev.DetectedAt
		}
	}
	return n, last
}

// GetReadiness returns today's record for plantID. A plant without a stored
// record reports the NO_ACTION default.
func (s *Service) GetReadiness(ctx context.Context, plantID string) (model.Record, error) {
	p, err := s.plants.Plant(ctx, plantID)
	if err != nil {
		return model.Record{}, err
	}
	return s.load(ctx, p, model.Key(p.ID, s.Today()))
}

// ListReadiness returns today's records for every plant. The counts cover
// all plants while the list honours the status filter.
func (s *Service) ListReadiness(ctx context.Context, status model.Status) (Summary, error) {
	plants, err := s.plants.Plants(ctx)
	if err != nil {
		return Summary{}, err
	}
	today := s.Today()
	sum := Summary{TotalPlants: len(plants), Plants: make([]model.Record, 0, len(plants))}
	for _, p := range plants {
		rec, err := s.load(ctx, p, model.Key(p.ID, today))
		if err != nil {
			return Summary{}, err
		}
		sum.count(rec.Status)
		if status == "" || rec.Status == status {
			sum.Plants = append(sum.Plants, rec)
		}
	}
	return sum, nil
}

// TriggerRevision records a manual trigger and moves the record to PENDING.
func (s *Service) TriggerRevision(ctx context.Context, plantID, reason string) (model.Record, error) {
	return s.operate(ctx, plantID, OpTriggerRevision, func(p model.Plant, rec model.Record, now time.Time) (Decision, error) {
		return s.eval.TriggerRevision(p, rec, reason, now), nil
	})
}

// ContinueExisting dismisses the pending triggers and keeps the current
// schedule.
func (s *Service) ContinueExisting(ctx context.Context, plantID string) (model.Record, error) {
	return s.operate(ctx, plantID, OpContinue, func(_ model.Plant, rec model.Record, now time.Time) (Decision, error) {
		return s.eval.ContinueExisting(rec, now)
	})
}

// MarkReady declares the revised schedule ready for upload. A nil deadline
// defaults to now plus the upload window.
func (s *Service) MarkReady(ctx context.Context, plantID string, uploadDeadline *time.Time) (model.Record, error) {
	return s.operate(ctx, plantID, OpMarkReady, func(_ model.Plant, rec model.Record, now time.Time) (Decision, error) {
		return s.eval.MarkReady(rec, uploadDeadline, now)
	})
}

// ConfirmUpload closes a READY cycle once the schedule reached the grid
// operator.
func (s *Service) ConfirmUpload(ctx context.Context, plantID string) (model.Record, error) {
	return s.operate(ctx, plantID, OpConfirmUpload, func(_ model.Plant, rec model.Record, now time.Time) (Decision, error) {
		return s.eval.ConfirmUpload(rec, now)
	})
}

// EvaluatePlant runs the trigger evaluation for a single plant.
func (s *Service) EvaluatePlant(ctx context.Context, plantID string) (model.Record, error) {
	p, err := s.plants.Plant(ctx, plantID)
	if err != nil {
		return model.Record{}, err
	}
	rec, _, err := s.evaluate(ctx, p)
	return rec, err
}

// CheckTriggers evaluates every plant with a bounded worker pool, then
// escalates overdue upload deadlines. A plant whose signals are unavailable
// is skipped without failing the sweep.
func (s *Service) CheckTriggers(ctx context.Context) (SweepResult, error) {
	ctx, span := s.tracer.Start(ctx, "readiness.CheckTriggers")
	defer span.End()
	start := s.now()

	plants, err := s.plants.Plants(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return SweepResult{}, err
	}

	var (
		mu  sync.Mutex
		res SweepResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, p := range plants {
		g.Go(func() error {
			rec, fired, err := s.evaluate(gctx, p)
			if err != nil && gctx.Err() != nil {
				return gctx.Err()
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Skipped++
				res.SkippedPlants = append(res.SkippedPlants, p.ID)
				s.log.Warnf("sweep: skipping plant %s: %v", p.ID, err)
				if !errors.Is(err, ErrSignalUnavailable) {
					monitoring.CaptureException(err, map[string]string{"plant_id": p.ID, "op": OpEvaluate})
				}
				return nil
			}
			res.PlantsChecked++
			res.TriggersCreated += fired
			switch rec.Status {
			case model.StatusReady:
				res.ReadyCount++
			case model.StatusPending:
				res.PendingCount++
			default:
				res.NoActionCount++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}
	sort.Strings(res.SkippedPlants)

	res.DeadlineMisses = s.checkDeadlines(ctx)
	if n := s.deadlines.Prune(s.Today()); n > 0 {
		s.log.Debugf("pruned %d past deadlines", n)
	}

	s.recordSweep(res, s.now().Sub(start))
	span.SetAttributes(
		attribute.Int("plants_checked", res.PlantsChecked),
		attribute.Int("skipped", res.Skipped),
		attribute.Int("triggers_created", res.TriggersCreated),
		attribute.Int("deadline_misses", res.DeadlineMisses),
	)
	s.log.Debugw("sweep completed", map[string]any{
		"plants_checked":   res.PlantsChecked,
		"ready":            res.ReadyCount,
		"pending":          res.PendingCount,
		"no_action":        res.NoActionCount,
		"skipped":          res.Skipped,
		"triggers_created": res.TriggersCreated,
		"deadline_misses":  res.DeadlineMisses,
	})
	return res, nil
}

// Run sweeps on every tick of interval until ctx is canceled.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.sweepOnce(ctx); err != nil && ctx.Err() == nil {
				s.log.Errorf("trigger sweep failed: %v", err)
				monitoring.CaptureException(err, map[string]string{"op": "sweep"})
			}
		}
	}
}

// sweepOnce runs one sweep and turns a panic into an error so the loop
// survives it.
func (s *Service) sweepOnce(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = monitoring.Recovered(r, map[string]string{"op": "sweep"})
		}
	}()
	_, err = s.CheckTriggers(ctx)
	return err
}

// ListTriggerEvents returns trigger events newest first.
func (s *Service) ListTriggerEvents(ctx context.Context, q TriggerQuery) ([]model.TriggerEvent, error) {
	if q.Limit <= 0 || q.Limit > 500 {
		q.Limit = 100
	}
	return s.store.QueryTriggers(ctx, q)
}

// ListNotifications returns a page of the notification feed.
func (s *Service) ListNotifications(ctx context.Context, q notify.Query) (notify.Page, error) {
	return notify.Read(ctx, s.notifier.Feed(), q)
}

// MarkNotificationRead flags a notification as read. Repeating the call is a
// no-op.
func (s *Service) MarkNotificationRead(ctx context.Context, id string) error {
	if err := s.notifier.Feed().MarkRead(ctx, id); err != nil {
		if errors.Is(err, notify.ErrNotFound) {
			return &NotFoundError{Kind: "notification", ID: id}
		}
		return err
	}
	return nil
}

// MarkAllNotificationsRead flags every unread notification, optionally of a
// single plant, and returns how many changed.
func (s *Service) MarkAllNotificationsRead(ctx context.Context, plantID string) (int, error) {
	if plantID != "" {
		if _, err := s.plants.Plant(ctx, plantID); err != nil {
			return 0, err
		}
	}
	return s.notifier.Feed().MarkAllRead(ctx, plantID)
}

// History returns the audited transitions of plantID, oldest first.
func (s *Service) History(ctx context.Context, plantID string, limit int) ([]audit.Entry, error) {
	if _, err := s.plants.Plant(ctx, plantID); err != nil {
		return nil, err
	}
	if s.audit == nil {
		return []audit.Entry{}, nil
	}
	return s.audit.Query(ctx, audit.Query{PlantID: plantID, Limit: limit})
}

type decideFunc func(p model.Plant, rec model.Record, now time.Time) (Decision, error)

func (s *Service) operate(ctx context.Context, plantID, op string, decide decideFunc) (model.Record, error) {
	ctx, span := s.tracer.Start(ctx, "readiness."+op, trace.WithAttributes(attribute.String("plant_id", plantID)))
	defer span.End()
	p, err := s.plants.Plant(ctx, plantID)
	if err != nil {
		return model.Record{}, err
	}
	dec, err := s.mutate(ctx, p, model.Key(p.ID, s.Today()), decide)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return model.Record{}, err
	}
	return dec.Record, nil
}

func (s *Service) evaluate(ctx context.Context, p model.Plant) (model.Record, int, error) {
	sig, err := s.signals.Latest(ctx, p)
	if err != nil {
		return model.Record{}, 0, &SignalUnavailableError{PlantID: p.ID, Err: err}
	}
	dec, err := s.mutate(ctx, p, model.Key(p.ID, s.Today()), func(p model.Plant, rec model.Record, now time.Time) (Decision, error) {
		return s.eval.Evaluate(p, rec, sig, now), nil
	})
	if err != nil {
		return model.Record{}, 0, err
	}
	return dec.Record, len(dec.Events), nil
}

var errStaleDeadline = errors.New("deadline no longer applies")

func (s *Service) checkDeadlines(ctx context.Context) int {
	misses := 0
	for _, o := range s.deadlines.Due(s.now()) {
		p, err := s.plants.Plant(ctx, o.Key.PlantID)
		if err != nil {
			s.deadlines.Cancel(o.Key)
			continue
		}
		dec, err := s.mutate(ctx, p, o.Key, func(p model.Plant, rec model.Record, now time.Time) (Decision, error) {
			if rec.Status != model.StatusReady || rec.RevisionNumber != o.Revision {
				return Decision{}, errStaleDeadline
			}
			return s.eval.DeadlineMissed(p, rec, now)
		})
		switch {
		case errors.Is(err, errStaleDeadline) || errors.Is(err, ErrInvalidTransition):
			s.deadlines.Release(o)
			if rec, lerr := s.load(ctx, p, o.Key); lerr == nil {
				s.deadlines.Track(rec)
			}
			continue
		case err != nil:
			s.deadlines.Release(o)
			s.log.Errorf("deadline miss for %s: %v", o.Key, err)
			monitoring.CaptureException(err, map[string]string{"plant_id": p.ID, "op": OpDeadlineMiss})
			continue
		}
		s.deadlines.Done(o, dec.Transition.At)
		misses++
		n, err := s.notifier.NotifyDeadlineMissed(ctx, p, dec.Record, o.Escalation)
		if err != nil {
			s.log.Errorf("notify deadline miss for %s: %v", o.Key, err)
			continue
		}
		s.recordNotification(n)
	}
	return misses
}

func (s *Service) load(ctx context.Context, p model.Plant, key model.RecordKey) (model.Record, error) {
	rec, ok, err := s.store.Get(ctx, key)
	if err != nil {
		return model.Record{}, fmt.Errorf("load %s: %w", key, err)
	}
	if !ok {
		rec = model.NewRecord(p, key.Date)
	}
	if p.Name != "" {
		rec.PlantName = p.Name
	}
	return rec, nil
}

// mutate runs the read-decide-write cycle for key, retrying on a version
// mismatch up to the configured number of times.
func (s *Service) mutate(ctx context.Context, p model.Plant, key model.RecordKey, decide decideFunc) (Decision, error) {
	attempts := s.cfg.Retries + 1
	for i := 0; i < attempts; i++ {
		rec, err := s.load(ctx, p, key)
		if err != nil {
			return Decision{}, err
		}
		dec, err := decide(p, rec, s.now())
		if err != nil {
			return Decision{}, err
		}
		saved, err := s.store.Apply(ctx, Mutation{
			Record:          dec.Record,
			ExpectedVersion: rec.Version,
			Events:          dec.Events,
			ProcessTriggers: dec.ProcessTriggers,
		})
		if errors.Is(err, ErrVersionMismatch) {
			s.log.Debugf("version mismatch on %s, attempt %d", key, i+1)
			continue
		}
		if err != nil {
			return Decision{}, fmt.Errorf("apply %s: %w", key, err)
		}
		dec.Record = saved
		dec.Transition.Record = saved
		s.afterApply(ctx, p, dec)
		return dec, nil
	}
	return Decision{}, &ConflictError{Key: key, Attempts: attempts}
}

func (s *Service) afterApply(ctx context.Context, p model.Plant, dec Decision) {
	t := dec.Transition
	switch {
	case t.To == model.StatusReady:
		s.deadlines.Track(t.Record)
	case t.From == model.StatusReady:
		s.deadlines.Cancel(t.Record.Key())
	}
	for _, ev := range dec.Events {
		if r, ok := s.metrics.(metrics.TriggerRecorder); ok {
			if err := r.RecordTrigger(metrics.TriggerFromEvent(ev)); err != nil {
				s.log.Warnf("record trigger metrics: %v", err)
			}
		}
	}
	if !t.StatusChanged() && len(dec.Events) == 0 {
		return
	}
	if s.audit != nil {
		if err := s.audit.Append(ctx, audit.FromTransition(t)); err != nil {
			s.log.Warnf("audit %s: %v", t.Record.Key(), err)
		}
	}
	if !t.StatusChanged() {
		return
	}
	s.log.Infof("plant %s: %s -> %s (%s, revision %d)", p.ID, t.From, t.To, t.Op, t.Record.RevisionNumber)
	if r, ok := s.metrics.(metrics.TransitionRecorder); ok {
		if err := r.RecordTransition(metrics.TransitionEvent{
			PlantID:   p.ID,
			Operation: t.Op,
			From:      t.From,
			To:        t.To,
			Revision:  t.Record.RevisionNumber,
			Time:      t.At,
		}); err != nil {
			s.log.Warnf("record transition metrics: %v", err)
		}
	}
	if s.transitions != nil {
		s.transitions.Publish(t)
	}
	n, err := s.notifier.NotifyTransition(ctx, p, t)
	if err != nil {
		s.log.Errorf("notify %s: %v", t.Record.Key(), err)
		monitoring.CaptureException(err, map[string]string{"plant_id": p.ID, "op": t.Op})
		return
	}
	s.recordNotification(n)
}

func (s *Service) recordNotification(n *model.Notification) {
	if n == nil {
		return
	}
	if r, ok := s.metrics.(metrics.NotificationRecorder); ok {
		if err := r.RecordNotification(metrics.NotificationEvent{
			PlantID:  n.PlantID,
			Type:     n.NotificationType,
			Priority: n.Priority,
			Time:     n.CreatedAt,
		}); err != nil {
			s.log.Warnf("record notification metrics: %v", err)
		}
	}
}

func (s *Service) recordSweep(res SweepResult, d time.Duration) {
	if err := s.metrics.RecordSweep(metrics.SweepEvent{
		PlantsChecked:   res.PlantsChecked,
		Ready:           res.ReadyCount,
		Pending:         res.PendingCount,
		NoAction:        res.NoActionCount,
		Skipped:         res.Skipped,
		TriggersCreated: res.TriggersCreated,
		DeadlineMisses:  res.DeadlineMisses,
		Duration:        d,
		Time:            s.now(),
	}); err != nil {
		s.log.Warnf("record sweep metrics: %v", err)
	}
	if r, ok := s.metrics.(metrics.PendingGaugeRecorder); ok {
		if err := r.RecordStatusCounts(map[model.Status]int{
			model.StatusReady:    res.ReadyCount,
			model.StatusPending:  res.PendingCount,
			model.StatusNoAction: res.NoActionCount,
		}); err != nil {
			s.log.Warnf("record status metrics: %v", err)
		}
	}
}
