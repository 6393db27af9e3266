package resourcequota

import (
	"time"
)

// MonitorConfig defines monitoring and analysis cadence for a session
type MonitorConfig struct {
	// SampleInterval is the tick period of the sampling loop
	SampleInterval time.Duration `yaml:"sample_interval,omitempty" json:"sample_interval,omitempty"`

	// RetentionWindow bounds how long history entries are kept
	RetentionWindow time.Duration `yaml:"retention_window,omitempty" json:"retention_window,omitempty"`

	// MaxHistoryEntries bounds history size per resource series
	MaxHistoryEntries int `yaml:"max_history_entries,omitempty" json:"max_history_entries,omitempty"`

	// AnalysisInterval runs pattern analysis every N ticks
	AnalysisInterval int `yaml:"analysis_interval,omitempty" json:"analysis_interval,omitempty"`

	// RetrainInterval hands history to the prediction model every N ticks
	RetrainInterval int `yaml:"retrain_interval,omitempty" json:"retrain_interval,omitempty"`

	// SpikeK is the deviation multiplier for spike detection
	SpikeK float64 `yaml:"spike_k,omitempty" json:"spike_k,omitempty"`

	// MinRetrainSamples gates model training; below it retraining is a no-op
	MinRetrainSamples int `yaml:"min_retrain_samples,omitempty" json:"min_retrain_samples,omitempty"`

	// ForecastHorizon is how far ahead predictions look
	ForecastHorizon time.Duration `yaml:"forecast_horizon,omitempty" json:"forecast_horizon,omitempty"`
}

// DefaultMonitorConfig returns the standard monitoring cadence
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		SampleInterval:    1 * time.Second,
		RetentionWindow:   1 * time.Hour,
		MaxHistoryEntries: 1000,
		AnalysisInterval:  30,
		RetrainInterval:   300,
		SpikeK:            2.0,
		MinRetrainSamples: 100,
		ForecastHorizon:   5 * time.Minute,
	}
}

// ApplyDefaults fills unset fields with their defaults
func (c *MonitorConfig) ApplyDefaults() {
	defaults := DefaultMonitorConfig()
	if c.SampleInterval <= 0 {
		c.SampleInterval = defaults.SampleInterval
	}
	if c.RetentionWindow <= 0 {
		c.RetentionWindow = defaults.RetentionWindow
	}
	if c.MaxHistoryEntries <= 0 {
		c.MaxHistoryEntries = defaults.MaxHistoryEntries
	}
	if c.AnalysisInterval <= 0 {
		c.AnalysisInterval = defaults.AnalysisInterval
	}
	if c.RetrainInterval <= 0 {
		c.RetrainInterval = defaults.RetrainInterval
	}
	if c.SpikeK <= 0 {
		c.SpikeK = defaults.SpikeK
	}
	if c.MinRetrainSamples <= 0 {
		c.MinRetrainSamples = defaults.MinRetrainSamples
	}
	if c.ForecastHorizon <= 0 {
		c.ForecastHorizon = defaults.ForecastHorizon
	}
}
