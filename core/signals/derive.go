package signals

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/kilianp07/gridready/core/model"
)

// BlocksPerDay is the number of 15 minute scheduling blocks in a day.
const BlocksPerDay = 96

// Weather parameters that drive plant output.
const (
	ParamWindSpeed  = "wind_speed"
	ParamCloudCover = "cloud_cover"
)

// ParameterFor returns the weather parameter relevant to the plant type.
func ParameterFor(t model.PlantType) string {
	if t == model.PlantWind {
		return ParamWindSpeed
	}
	return ParamCloudCover
}

// ChangePercent returns the relative change from current to forecast in
// percent. A zero current value yields zero.
func ChangePercent(current, forecast float64) float64 {
	if current == 0 {
		return 0
	}
	return (forecast - current) / current * 100
}

// NewWeatherSignal builds a WeatherSignal for plant from a current and a
// forecast reading of its driving parameter.
func NewWeatherSignal(t model.PlantType, current, forecast float64, at time.Time) model.WeatherSignal {
	return model.WeatherSignal{
		Parameter:     ParameterFor(t),
		Current:       current,
		Forecast:      forecast,
		ChangePercent: round2(ChangePercent(current, forecast)),
		ObservedAt:    at,
	}
}

// BlockIndex returns the 1-based 15 minute block containing t, in t's
// location.
func BlockIndex(t time.Time) int {
	return t.Hour()*4 + t.Minute()/15 + 1
}

// BlockDeviation returns the deviation of generation from scheduled in
// percent of scheduled. A zero schedule yields zero.
func BlockDeviation(generation, scheduled float64) float64 {
	if scheduled == 0 {
		return 0
	}
	return (generation - scheduled) / scheduled * 100
}

// WindowDeviation aggregates a run of blocks and returns the deviation of the
// summed generation against the summed schedule. Slices of different length
// are truncated to the shorter one.
func WindowDeviation(generation, scheduled []float64) float64 {
	n := len(generation)
	if len(scheduled) < n {
		n = len(scheduled)
	}
	if n == 0 {
		return 0
	}
	return BlockDeviation(floats.Sum(generation[:n]), floats.Sum(scheduled[:n]))
}

// NewDeviationSignal builds a DeviationSignal for the block ending at the
// last element of the window. block is the index of that block.
func NewDeviationSignal(block int, generation, scheduled []float64, at time.Time) model.DeviationSignal {
	n := len(generation)
	if len(scheduled) < n {
		n = len(scheduled)
	}
	var gen, sched float64
	if n > 0 {
		gen = generation[n-1]
		sched = scheduled[n-1]
	}
	return model.DeviationSignal{
		Block:            block,
		Generation:       gen,
		Scheduled:        sched,
		DeviationPercent: round2(WindowDeviation(generation, scheduled)),
		ObservedAt:       at,
	}
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
