package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/kilianp07/gridready/core/logger"
	"github.com/kilianp07/gridready/core/model"
	"github.com/kilianp07/gridready/core/readiness"
	"github.com/kilianp07/gridready/core/signals"
)

type weatherPayload struct {
	Current       float64   `json:"current"`
	Forecast      float64   `json:"forecast"`
	ChangePercent *float64  `json:"change_percent"`
	ObservedAt    time.Time `json:"observed_at"`
}

type deviationPayload struct {
	Block            int       `json:"block"`
	Generation       float64   `json:"generation"`
	Scheduled        float64   `json:"scheduled"`
	DeviationPercent *float64  `json:"deviation_percent"`
	ObservedAt       time.Time `json:"observed_at"`
}

type blockReading struct {
	block      int
	generation float64
	scheduled  float64
}

// Listener decodes signal messages and feeds them to an Updater.
type Listener struct {
	client  Client
	prefix  string
	qos     byte
	blocks  int
	plants  readiness.Directory
	updater signals.Updater
	log     logger.Logger
	now     func() time.Time

	mu      sync.Mutex
	history map[string][]blockReading
}

// NewListener builds a listener for cfg. Call Start to subscribe.
func NewListener(client Client, cfg Config, plants readiness.Directory, updater signals.Updater, log logger.Logger) *Listener {
	cfg.SetDefaults()
	return &Listener{
		client:  client,
		prefix:  cfg.TopicPrefix,
		qos:     cfg.QoS,
		blocks:  cfg.DeviationWindow,
		plants:  plants,
		updater: updater,
		log:     logger.OrNop(log),
		now:     time.Now,
		history: make(map[string][]blockReading),
	}
}

// Start subscribes to the weather, deviation and curtailment topics.
func (l *Listener) Start() error {
	for _, kind := range []string{KindWeather, KindDeviation, KindCurtailment} {
		if err := l.client.Subscribe(SignalFilter(l.prefix, kind), l.qos, l.handle); err != nil {
			return err
		}
	}
	l.log.Infof("listening for plant signals on %s/+/{weather,deviation,curtailment}", l.prefix)
	return nil
}

func (l *Listener) handle(msg Message) {
	plantID, kind, ok := ParseSignalTopic(l.prefix, msg.Topic())
	if !ok {
		l.log.Warnf("ignoring message on unexpected topic %s", msg.Topic())
		return
	}
	snap, err := l.decode(plantID, kind, msg.Payload())
	if err != nil {
		l.log.Warnf("invalid %s signal for plant %s: %v", kind, plantID, err)
		return
	}
	l.updater.Update(snap)
}

func (l *Listener) decode(plantID, kind string, payload []byte) (model.PlantSignals, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	plant, err := l.plants.Plant(ctx, plantID)
	if err != nil {
		return model.PlantSignals{}, err
	}
	snap := model.PlantSignals{PlantID: plant.ID}
	switch kind {
	case KindWeather:
		var p weatherPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return snap, fmt.Errorf("decode weather: %w", err)
		}
		w := signals.NewWeatherSignal(plant.Type, p.Current, p.Forecast, l.stamp(p.ObservedAt))
		if p.ChangePercent != nil {
			w.ChangePercent = *p.ChangePercent
		}
		snap.Weather = &w
	case KindDeviation:
		var p deviationPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return snap, fmt.Errorf("decode deviation: %w", err)
		}
		at := l.stamp(p.ObservedAt)
		if p.Block <= 0 {
			p.Block = signals.BlockIndex(at)
		}
		if p.Block > signals.BlocksPerDay {
			return snap, fmt.Errorf("block %d out of range", p.Block)
		}
		gen, sched := l.window(plant.ID, blockReading{block: p.Block, generation: p.Generation, scheduled: p.Scheduled})
		d := signals.NewDeviationSignal(p.Block, gen, sched, at)
		if p.DeviationPercent != nil {
			d.DeviationPercent = *p.DeviationPercent
		}
		snap.Deviation = &d
	case KindCurtailment:
		var c model.CurtailmentSignal
		if err := json.Unmarshal(payload, &c); err != nil {
			return snap, fmt.Errorf("decode curtailment: %w", err)
		}
		c.ObservedAt = l.stamp(c.ObservedAt)
		snap.Curtailment = &c
	}
	return snap, nil
}

func (l *Listener) stamp(t time.Time) time.Time {
	if t.IsZero() {
		return l.now()
	}
	return t
}

// window appends r to the plant's trailing readings and returns the
// generation and schedule series to aggregate. A block number that does not
// advance starts a new day.
func (l *Listener) window(plantID string, r blockReading) (gen, sched []float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	h := l.history[plantID]
	if n := len(h); n > 0 && r.block <= h[n-1].block {
		h = h[:0]
	}
	h = append(h, r)
	if len(h) > l.blocks {
		h = h[len(h)-l.blocks:]
	}
	l.history[plantID] = h
	for _, b := range h {
		gen = append(gen, b.generation)
		sched = append(sched, b.scheduled)
	}
	return gen, sched
}
