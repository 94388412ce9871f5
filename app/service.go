package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	api "github.com/kilianp07/gridready/api/readiness"
	"github.com/kilianp07/gridready/config"
	coremetrics "github.com/kilianp07/gridready/core/metrics"
	"github.com/kilianp07/gridready/core/model"
	coremon "github.com/kilianp07/gridready/core/monitoring"
	"github.com/kilianp07/gridready/core/notify"
	"github.com/kilianp07/gridready/core/readiness"
	"github.com/kilianp07/gridready/core/signals"
	"github.com/kilianp07/gridready/infra/kafka"
	"github.com/kilianp07/gridready/infra/logger"
	"github.com/kilianp07/gridready/infra/metrics"
	"github.com/kilianp07/gridready/infra/monitoring"
	"github.com/kilianp07/gridready/infra/mqtt"
	"github.com/kilianp07/gridready/infra/rediscache"
	"github.com/kilianp07/gridready/infra/tracing"
	"github.com/kilianp07/gridready/internal/eventbus"
)

// Service wires the readiness engine to its stores, signal feeds,
// notification channels and the HTTP API.
type Service struct {
	Engine *readiness.Service
	// Signals holds the latest snapshot per plant. The MQTT listener writes
	// to it when enabled.
	Signals *signals.MemorySource

	cfg           *config.Config
	log           logger.Logger
	handler       http.Handler
	store         *stores
	notifications *eventbus.TypedBus[model.Notification]
	transitions   *eventbus.TypedBus[model.Transition]
	publishers    []notify.Publisher
	listener      *mqtt.Listener
	closers       []func() error
	shutdownTrace func(context.Context) error
}

// New creates a Service from the configuration. Close must be called to
// release the connections it opens.
func New(ctx context.Context, cfg *config.Config) (svc *Service, err error) {
	s := &Service{
		cfg:           cfg,
		log:           logger.New("service"),
		Signals:       signals.NewMemorySource(),
		notifications: eventbus.NewTyped[model.Notification](),
		transitions:   eventbus.NewTyped[model.Transition](),
		shutdownTrace: func(context.Context) error { return nil },
	}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	coremon.Init(mon)

	shutdown, err := tracing.Setup(ctx, cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}
	s.shutdownTrace = shutdown

	if s.store, err = openStores(ctx, cfg); err != nil {
		return nil, err
	}
	s.closers = append(s.closers, s.store.close)

	plants, err := readiness.NewStaticDirectory(cfg.Plants)
	if err != nil {
		return nil, fmt.Errorf("plants: %w", err)
	}

	src, err := s.signalSource(ctx)
	if err != nil {
		return nil, err
	}

	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	if c, ok := sink.(interface{ Close() }); ok {
		s.closers = append(s.closers, func() error { c.Close(); return nil })
	}

	if err := s.connectBrokers(plants); err != nil {
		return nil, err
	}

	dispatcher := notify.NewDispatcher(s.store.feed, cfg.Readiness.UrgentWindow(),
		notify.WithBus(s.notifications),
		notify.WithLogger(logger.New("notify")),
	)
	s.Engine, err = readiness.NewService(s.store.records, plants, src, dispatcher, cfg.Readiness,
		readiness.WithLocation(cfg.Service.Location()),
		readiness.WithWorkers(cfg.Service.Workers),
		readiness.WithLogger(logger.New("readiness")),
		readiness.WithMetrics(sink),
		readiness.WithAudit(s.store.audit),
		readiness.WithTransitionBus(s.transitions),
	)
	if err != nil {
		return nil, err
	}
	s.handler = api.NewHandler(s.Engine,
		api.WithHealthCheck(s.store),
		api.WithLogger(logger.New("api")),
	)
	return s, nil
}

// signalSource returns the in-memory source, fronted by the configured
// last-known snapshot cache.
func (s *Service) signalSource(ctx context.Context) (signals.Source, error) {
	var cache signals.Cache
	switch s.cfg.Signals.Cache {
	case config.CacheNone:
		return s.Signals, nil
	case config.CacheRedis:
		rc := s.cfg.Signals.Redis
		rc.TTL = s.cfg.Signals.TTL()
		c, err := rediscache.New(ctx, rc)
		if err != nil {
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		s.closers = append(s.closers, c.Close)
		cache = c
	default:
		cache = signals.NewMemoryCache(s.cfg.Signals.TTL())
	}
	return signals.NewCachingSource(s.Signals, cache, logger.New("signals")), nil
}

// connectBrokers sets up the MQTT signal listener and the notification
// publishers.
func (s *Service) connectBrokers(plants readiness.Directory) error {
	if s.cfg.MQTT.Enabled {
		client, err := mqtt.Connect(s.cfg.MQTT, logger.New("mqtt"))
		if err != nil {
			return fmt.Errorf("mqtt client: %w", err)
		}
		s.closers = append(s.closers, func() error { client.Disconnect(); return nil })
		s.listener = mqtt.NewListener(client, s.cfg.MQTT, plants, s.Signals, logger.New("mqtt-listener"))
		if s.cfg.MQTT.PublishNotifications {
			s.publishers = append(s.publishers, mqtt.NewPublisher(client, s.cfg.MQTT))
		}
	}
	if s.cfg.Kafka.Enabled {
		pub, err := kafka.NewPublisher(s.cfg.Kafka)
		if err != nil {
			return fmt.Errorf("kafka publisher: %w", err)
		}
		s.closers = append(s.closers, pub.Close)
		s.publishers = append(s.publishers, pub)
	}
	return nil
}

// Handler returns the HTTP API.
func (s *Service) Handler() http.Handler { return s.handler }

// Run starts the sweep loop, the signal listener, the notification
// forwarding and the HTTP server, and blocks until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	if n, err := s.Engine.RestoreDeadlines(ctx); err != nil {
		return fmt.Errorf("restore deadlines: %w", err)
	} else if n > 0 {
		s.log.Infof("tracking %d upload deadlines", n)
	}
	if s.listener != nil {
		if err := s.listener.Start(); err != nil {
			return fmt.Errorf("mqtt listener: %w", err)
		}
	}
	notify.Forward(ctx, s.notifications, logger.New("forward"), s.publishers...)
	s.logTransitions(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.Engine.Run(gctx, s.cfg.Service.SweepInterval())
		return nil
	})
	if addr := s.cfg.Metrics.PrometheusAddress; addr != "" {
		g.Go(func() error {
			if err := metrics.StartPromServer(gctx, addr, nil); err != nil {
				return fmt.Errorf("prom server: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error { return s.serveHTTP(gctx) })
	return g.Wait()
}

func (s *Service) serveHTTP(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.HTTP.Address,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("listening on %s", s.cfg.HTTP.Address)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.HTTP.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func (s *Service) logTransitions(ctx context.Context) {
	sub := s.transitions.Subscribe()
	tlog := logger.New("transitions")
	go func() {
		defer s.transitions.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case t, ok := <-sub:
				if !ok {
					return
				}
				tlog.Debugw("status change", map[string]any{
					"op":       t.Op,
					"plant_id": t.Record.PlantID,
					"from":     t.From,
					"to":       t.To,
					"revision": t.Record.RevisionNumber,
				})
			}
		}
	}()
}

// Sweep restores the deadline state and runs a single trigger sweep.
func (s *Service) Sweep(ctx context.Context) (readiness.SweepResult, error) {
	if _, err := s.Engine.RestoreDeadlines(ctx); err != nil {
		return readiness.SweepResult{}, fmt.Errorf("restore deadlines: %w", err)
	}
	return s.Engine.CheckTriggers(ctx)
}

// Close releases resources held by the service in reverse order of
// acquisition.
func (s *Service) Close() error {
	s.notifications.Close()
	s.transitions.Close()
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.shutdownTrace(ctx); err != nil {
		errs = append(errs, fmt.Errorf("tracing shutdown: %w", err))
	}
	coremon.Flush(2 * time.Second)
	return errors.Join(errs...)
}
