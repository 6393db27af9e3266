package resourcequota

import (
	"fmt"

	"github.com/core-tools/hsu-governor/pkg/errors"
)

// ValidateQuota validates a resource quota. All field errors are collected
// so callers see every problem at once.
func ValidateQuota(quota *ResourceQuota) error {
	if quota == nil {
		return errors.NewValidationError("resource quota cannot be nil", nil)
	}

	collection := errors.NewErrorCollection()

	limits := []struct {
		name  string
		value float64
	}{
		{"memory_mb", quota.MemoryMB},
		{"cpu_percent", quota.CPUPercent},
		{"disk_io_mbps", quota.DiskIOMBps},
		{"network_io_mbps", quota.NetworkIOMBps},
		{"open_files", float64(quota.OpenFiles)},
		{"max_threads", float64(quota.MaxThreads)},
		{"swap_mb", quota.SwapMB},
		{"iops", quota.IOPS},
		{"gpu_memory_mb", quota.GPUMemoryMB},
	}

	configured := 0
	for _, limit := range limits {
		if limit.value < 0 {
			collection.Add(errors.NewValidationError(
				fmt.Sprintf("%s limit cannot be negative", limit.name), nil).
				WithContext("value", limit.value))
		}
		if limit.value > 0 {
			configured++
		}
	}

	if configured == 0 {
		collection.Add(errors.NewValidationError("quota must configure at least one resource limit", nil))
	}

	if quota.SoftLimitPercent < 0 || quota.SoftLimitPercent > 100 {
		collection.Add(errors.NewValidationError("soft_limit_percent must be between 0 and 100", nil).
			WithContext("value", quota.SoftLimitPercent))
	}

	if quota.ScaleThresholdPercent < 0 || quota.ScaleThresholdPercent > 100 {
		collection.Add(errors.NewValidationError("scale_threshold_percent must be between 0 and 100", nil).
			WithContext("value", quota.ScaleThresholdPercent))
	}

	if quota.Timeout < 0 {
		collection.Add(errors.NewValidationError("timeout cannot be negative", nil).
			WithContext("value", quota.Timeout.String()))
	}

	return collection.ToError()
}

// ValidateMonitorConfig validates monitoring cadence settings
func ValidateMonitorConfig(config *MonitorConfig) error {
	if config == nil {
		return errors.NewValidationError("monitor config cannot be nil", nil)
	}

	collection := errors.NewErrorCollection()

	if config.SampleInterval < 0 {
		collection.Add(errors.NewValidationError("sample_interval cannot be negative", nil))
	}
	if config.RetentionWindow < 0 {
		collection.Add(errors.NewValidationError("retention_window cannot be negative", nil))
	}
	if config.MaxHistoryEntries < 0 {
		collection.Add(errors.NewValidationError("max_history_entries cannot be negative", nil))
	}
	if config.AnalysisInterval < 0 {
		collection.Add(errors.NewValidationError("analysis_interval cannot be negative", nil))
	}
	if config.RetrainInterval < 0 {
		collection.Add(errors.NewValidationError("retrain_interval cannot be negative", nil))
	}
	if config.SpikeK < 0 {
		collection.Add(errors.NewValidationError("spike_k cannot be negative", nil))
	}
	if config.MinRetrainSamples < 0 {
		collection.Add(errors.NewValidationError("min_retrain_samples cannot be negative", nil))
	}
	if config.ForecastHorizon < 0 {
		collection.Add(errors.NewValidationError("forecast_horizon cannot be negative", nil))
	}

	return collection.ToError()
}
