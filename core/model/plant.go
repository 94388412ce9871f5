package model

// PlantType identifies the generation technology of a plant. It selects which
// weather parameter drives forecast-change triggers.
type PlantType string

const (
	PlantSolar PlantType = "Solar"
	PlantWind  PlantType = "Wind"
)

// Plant is the subset of the plant registry the readiness engine needs.
type Plant struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Type       PlantType `json:"type"`
	CapacityMW float64   `json:"capacity_mw"`
}
