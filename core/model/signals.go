package model

import "time"

// WeatherSignal reports a forecast change for a plant. ChangePercent is the
// relative change of the weather parameter that drives the plant's output.
type WeatherSignal struct {
	Parameter     string    `json:"parameter"`
	Current       float64   `json:"current"`
	Forecast      float64   `json:"forecast"`
	ChangePercent float64   `json:"change_percent"`
	ObservedAt    time.Time `json:"observed_at"`
}

// DeviationSignal reports the meter deviation against the schedule.
type DeviationSignal struct {
	Block            int       `json:"block"`
	Generation       float64   `json:"generation"`
	Scheduled        float64   `json:"scheduled"`
	DeviationPercent float64   `json:"deviation_percent"`
	ObservedAt       time.Time `json:"observed_at"`
}

// CurtailmentSignal reports a curtailment instruction from the grid
// operator.
type CurtailmentSignal struct {
	Active     bool      `json:"active"`
	Reason     string    `json:"reason,omitempty"`
	ObservedAt time.Time `json:"observed_at"`
}

// PlantSignals bundles the latest known signals of one plant. Any member may
// be nil when the upstream pipeline has nothing for the plant.
type PlantSignals struct {
	PlantID     string             `json:"plant_id"`
	Weather     *WeatherSignal     `json:"weather,omitempty"`
	Deviation   *DeviationSignal   `json:"deviation,omitempty"`
	Curtailment *CurtailmentSignal `json:"curtailment,omitempty"`
}

// Newest returns the latest observation time across the bundle.
func (s PlantSignals) Newest() time.Time {
	var t time.Time
	if s.Weather != nil && s.Weather.ObservedAt.After(t) {
		t = s.Weather.ObservedAt
	}
	if s.Deviation != nil && s.Deviation.ObservedAt.After(t) {
		t = s.Deviation.ObservedAt
	}
	if s.Curtailment != nil && s.Curtailment.ObservedAt.After(t) {
		t = s.Curtailment.ObservedAt
	}
	return t
}

// Merge overlays the non-nil members of o onto s.
func (s PlantSignals) Merge(o PlantSignals) PlantSignals {
	if o.Weather != nil {
		s.Weather = o.Weather
	}
	if o.Deviation != nil {
		s.Deviation = o.Deviation
	}
	if o.Curtailment != nil {
		s.Curtailment = o.Curtailment
	}
	if s.PlantID == "" {
		s.PlantID = o.PlantID
	}
	return s
}
