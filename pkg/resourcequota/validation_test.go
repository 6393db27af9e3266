package resourcequota

import (
	"testing"
	"time"

	"github.com/core-tools/hsu-governor/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateQuota_Valid(t *testing.T) {
	tests := []struct {
		name  string
		quota *ResourceQuota
	}{
		{
			name:  "single limit",
			quota: &ResourceQuota{MemoryMB: 512},
		},
		{
			name: "all limits",
			quota: &ResourceQuota{
				MemoryMB:      1024,
				CPUPercent:    80,
				DiskIOMBps:    100,
				NetworkIOMBps: 50,
				OpenFiles:     256,
				MaxThreads:    64,
				SwapMB:        512,
				IOPS:          1000,
				GPUMemoryMB:   4096,
			},
		},
		{
			name: "thresholds and timeout",
			quota: &ResourceQuota{
				MemoryMB:              512,
				SoftLimitPercent:      75,
				ScaleThresholdPercent: 85,
				Timeout:               10 * time.Minute,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NoError(t, ValidateQuota(tt.quota))
		})
	}
}

func TestValidateQuota_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		quota *ResourceQuota
	}{
		{
			name:  "no limits configured",
			quota: &ResourceQuota{},
		},
		{
			name:  "negative memory limit",
			quota: &ResourceQuota{MemoryMB: -1},
		},
		{
			name:  "negative open files",
			quota: &ResourceQuota{MemoryMB: 512, OpenFiles: -10},
		},
		{
			name:  "soft limit percent out of range",
			quota: &ResourceQuota{MemoryMB: 512, SoftLimitPercent: 150},
		},
		{
			name:  "negative scale threshold",
			quota: &ResourceQuota{MemoryMB: 512, ScaleThresholdPercent: -5},
		},
		{
			name:  "negative timeout",
			quota: &ResourceQuota{MemoryMB: 512, Timeout: -time.Second},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateQuota(tt.quota)
			require.Error(t, err)
			assert.True(t, errors.IsValidationError(err) || isCollectionOfValidationErrors(err))
		})
	}
}

func TestValidateQuota_Nil(t *testing.T) {
	err := ValidateQuota(nil)
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))
}

func TestValidateQuota_CollectsAllErrors(t *testing.T) {
	quota := &ResourceQuota{
		MemoryMB:         -1,
		CPUPercent:       -2,
		SoftLimitPercent: 200,
	}

	err := ValidateQuota(quota)
	require.Error(t, err)

	collection, ok := err.(*errors.ErrorCollection)
	require.True(t, ok)
	// Negative limits also count as unconfigured, so the all-unconfigured
	// error joins the field errors.
	assert.GreaterOrEqual(t, len(collection.Errors), 3)
}

func TestValidateMonitorConfig(t *testing.T) {
	config := DefaultMonitorConfig()
	assert.NoError(t, ValidateMonitorConfig(&config))

	bad := MonitorConfig{SampleInterval: -time.Second}
	err := ValidateMonitorConfig(&bad)
	require.Error(t, err)

	assert.Error(t, ValidateMonitorConfig(nil))
}

func isCollectionOfValidationErrors(err error) bool {
	collection, ok := err.(*errors.ErrorCollection)
	if !ok {
		return false
	}
	for _, e := range collection.Errors {
		if !errors.IsValidationError(e) {
			return false
		}
	}
	return len(collection.Errors) > 0
}
