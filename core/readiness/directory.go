package readiness

import (
	"context"
	"fmt"
	"sort"

	"github.com/kilianp07/gridready/core/model"
)

// Directory resolves the plants known to the engine.
type Directory interface {
	Plants(ctx context.Context) ([]model.Plant, error)
	// Plant returns a *NotFoundError for unknown ids.
	Plant(ctx context.Context, id string) (model.Plant, error)
}

// StaticDirectory serves a fixed plant list, typically from configuration.
type StaticDirectory struct {
	plants []model.Plant
	byID   map[string]model.Plant
}

// NewStaticDirectory validates plants and indexes them by id.
func NewStaticDirectory(plants []model.Plant) (*StaticDirectory, error) {
	d := &StaticDirectory{byID: make(map[string]model.Plant, len(plants))}
	for _, p := range plants {
		if p.ID == "" {
			return nil, fmt.Errorf("%w: plant without id", ErrInvalidArgument)
		}
		if p.Type != model.PlantSolar && p.Type != model.PlantWind {
			return nil, fmt.Errorf("%w: plant %s has unknown type %q", ErrInvalidArgument, p.ID, p.Type)
		}
		if _, dup := d.byID[p.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate plant id %s", ErrInvalidArgument, p.ID)
		}
		d.byID[p.ID] = p
		d.plants = append(d.plants, p)
	}
	sort.Slice(d.plants, func(i, j int) bool { return d.plants[i].ID < d.plants[j].ID })
	return d, nil
}

func (d *StaticDirectory) Plants(context.Context) ([]model.Plant, error) {
	out := make([]model.Plant, len(d.plants))
	copy(out, d.plants)
	return out, nil
}

func (d *StaticDirectory) Plant(_ context.Context, id string) (model.Plant, error) {
	p, ok := d.byID[id]
	if !ok {
		return model.Plant{}, &NotFoundError{Kind: "plant", ID: id}
	}
	return p, nil
}
