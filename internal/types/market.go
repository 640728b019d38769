package types

import "time"

// Bar is one discrete time step of market data, daily or sub-daily.
type Bar struct {
	Time   time.Time `yaml:"time" json:"time"`
	Open   float64   `yaml:"open" json:"open"`
	High   float64   `yaml:"high" json:"high"`
	Low    float64   `yaml:"low" json:"low"`
	Close  float64   `yaml:"close" json:"close"`
	Volume float64   `yaml:"volume" json:"volume"`
}

// Price returns the bar's trade price. Live feeds only carry close/volume,
// so close doubles as the current price everywhere.
func (b Bar) Price() float64 {
	return b.Close
}

// IsZero reports whether the bar carries no price snapshot for this period.
// Gap bars keep their time so the run can still advance the clock.
func (b Bar) IsZero() bool {
	return b.Close == 0
}

// DataFrequency is the cadence of bars fed into a run.
type DataFrequency string

const (
	FrequencyDaily  DataFrequency = "daily"
	FrequencyMinute DataFrequency = "minute"
)
