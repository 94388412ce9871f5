package readiness

import (
	"fmt"
	"time"
)

// Config holds the trigger thresholds and deadline windows.
type Config struct {
	WeatherChangeThresholdPct float64 `json:"weather_change_threshold_pct"`
	DeviationTolerancePct     float64 `json:"deviation_tolerance_pct"`
	// HighSeverityWeatherPct and HighSeverityDeviationPct grade events as
	// HIGH instead of MEDIUM.
	HighSeverityWeatherPct   float64 `json:"high_severity_weather_pct"`
	HighSeverityDeviationPct float64 `json:"high_severity_deviation_pct"`
	UploadWindowMinutes      int     `json:"upload_window_minutes"`
	UrgentWindowMinutes      int     `json:"urgent_window_minutes"`
	// ReminderIntervalMinutes re-escalates a missed deadline on this cadence.
	// Zero escalates once.
	ReminderIntervalMinutes int `json:"reminder_interval_minutes"`
	// Retries bounds the optimistic concurrency retries of one operation.
	Retries int `json:"retries"`
}

// SetDefaults fills unset fields with production values.
func (c *Config) SetDefaults() {
	if c.WeatherChangeThresholdPct == 0 {
		c.WeatherChangeThresholdPct = 15
	}
	if c.DeviationTolerancePct == 0 {
		c.DeviationTolerancePct = 10
	}
	if c.HighSeverityWeatherPct == 0 {
		c.HighSeverityWeatherPct = 25
	}
	if c.HighSeverityDeviationPct == 0 {
		c.HighSeverityDeviationPct = 20
	}
	if c.UploadWindowMinutes == 0 {
		c.UploadWindowMinutes = 240
	}
	if c.UrgentWindowMinutes == 0 {
		c.UrgentWindowMinutes = 240
	}
	if c.Retries == 0 {
		c.Retries = 1
	}
}

// Validate checks the configuration values.
func (c Config) Validate() error {
	if c.WeatherChangeThresholdPct <= 0 {
		return fmt.Errorf("weather_change_threshold_pct must be positive")
	}
	if c.DeviationTolerancePct <= 0 {
		return fmt.Errorf("deviation_tolerance_pct must be positive")
	}
	if c.UploadWindowMinutes <= 0 {
		return fmt.Errorf("upload_window_minutes must be positive")
	}
	if c.UrgentWindowMinutes < 0 || c.ReminderIntervalMinutes < 0 || c.Retries < 0 {
		return fmt.Errorf("readiness windows and retries must not be negative")
	}
	return nil
}

func (c Config) uploadWindow() time.Duration {
	return time.Duration(c.UploadWindowMinutes) * time.Minute
}

// UrgentWindow is the remaining time under which a ready notification is
// raised as URGENT.
func (c Config) UrgentWindow() time.Duration {
	return time.Duration(c.UrgentWindowMinutes) * time.Minute
}

// ReminderInterval is the re-escalation cadence for missed deadlines.
func (c Config) ReminderInterval() time.Duration {
	return time.Duration(c.ReminderIntervalMinutes) * time.Minute
}
