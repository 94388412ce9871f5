package signals

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kilianp07/gridready/core/model"
)

// ErrUnavailable is returned when no signal snapshot can be produced for a plant.
var ErrUnavailable = errors.New("signal source unavailable")

// Source provides the latest signal snapshot for a plant.
type Source interface {
	Latest(ctx context.Context, plant model.Plant) (model.PlantSignals, error)
}

// Updater accepts new signal observations, typically from a feed listener.
type Updater interface {
	Update(s model.PlantSignals)
}

// MemorySource keeps the most recent observations per plant in memory.
// Observations are merged so a weather update does not drop a previously
// received deviation reading.
type MemorySource struct {
	mu          sync.RWMutex
	snapshots   map[string]model.PlantSignals
	unavailable map[string]error
	now         func() time.Time
}

// NewMemorySource returns an empty MemorySource.
func NewMemorySource() *MemorySource {
	return &MemorySource{
		snapshots:   make(map[string]model.PlantSignals),
		unavailable: make(map[string]error),
		now:         time.Now,
	}
}

// Update merges s into the stored snapshot for s.PlantID. Observations
// without a timestamp are stamped with the receive time.
func (m *MemorySource) Update(s model.PlantSignals) {
	if s.PlantID == "" {
		return
	}
	now := m.now()
	if s.Weather != nil && s.Weather.ObservedAt.IsZero() {
		w := *s.Weather
		w.ObservedAt = now
		s.Weather = &w
	}
	if s.Deviation != nil && s.Deviation.ObservedAt.IsZero() {
		d := *s.Deviation
		d.ObservedAt = now
		s.Deviation = &d
	}
	if s.Curtailment != nil && s.Curtailment.ObservedAt.IsZero() {
		c := *s.Curtailment
		c.ObservedAt = now
		s.Curtailment = &c
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := m.snapshots[s.PlantID]
	cur.PlantID = s.PlantID
	m.snapshots[s.PlantID] = cur.Merge(s)
}

// SetUnavailable marks the feed for plantID as failing with err. A nil err
// clears the failure.
func (m *MemorySource) SetUnavailable(plantID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.unavailable, plantID)
		return
	}
	m.unavailable[plantID] = err
}

// Latest returns the merged snapshot for plant. A plant without any
// observation yields an empty snapshot, which fires no triggers.
func (m *MemorySource) Latest(ctx context.Context, plant model.Plant) (model.PlantSignals, error) {
	if err := ctx.Err(); err != nil {
		return model.PlantSignals{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err, ok := m.unavailable[plant.ID]; ok {
		return model.PlantSignals{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	s, ok := m.snapshots[plant.ID]
	if !ok {
		return model.PlantSignals{PlantID: plant.ID}, nil
	}
	return s, nil
}
