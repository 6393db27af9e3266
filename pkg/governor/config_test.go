package governor

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/core-tools/hsu-governor/pkg/errors"
	"github.com/core-tools/hsu-governor/pkg/resourcequota"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, configYAML string) string {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "governor-config-*.yaml")
	require.NoError(t, err)
	t.Cleanup(func() { os.Remove(tmpFile.Name()) })

	_, err = tmpFile.WriteString(configYAML)
	require.NoError(t, err)
	require.NoError(t, tmpFile.Close())

	return tmpFile.Name()
}

func TestLoadConfigFromFile(t *testing.T) {
	tests := []struct {
		name        string
		configYAML  string
		expectError bool
		validate    func(*testing.T, *GovernorConfig)
	}{
		{
			name: "valid comprehensive config",
			configYAML: `
governor:
  listen_address: "localhost:8899"
  log_level: "debug"
  ledger_capacity: 500
  force_shutdown_timeout: "5s"

defaults:
  sample_interval: "500ms"
  retention_window: "30m"

targets:
  - name: "inference-worker"
    pid: 4242
    quota:
      memory_mb: 2048
      cpu_percent: 75
      timeout: "30m"
      soft_limit_percent: 85
    monitoring:
      sample_interval: "250ms"
      analysis_interval: 10

  - name: "batch-job"
    enabled: false
    quota:
      memory_mb: 512
`,
			expectError: false,
			validate: func(t *testing.T, config *GovernorConfig) {
				assert.Equal(t, "localhost:8899", config.Governor.ListenAddress)
				assert.Equal(t, "debug", config.Governor.LogLevel)
				assert.Equal(t, 500, config.Governor.LedgerCapacity)
				assert.Equal(t, 5*time.Second, config.Governor.ForceShutdownTimeout)

				require.NotNil(t, config.Defaults)
				assert.Equal(t, 500*time.Millisecond, config.Defaults.SampleInterval)
				assert.Equal(t, 30*time.Minute, config.Defaults.RetentionWindow)
				// Unset cadence fields take defaults
				assert.Equal(t, 2.0, config.Defaults.SpikeK)

				require.Len(t, config.Targets, 2)

				worker := config.Targets[0]
				assert.Equal(t, "inference-worker", worker.Name)
				assert.Equal(t, 4242, worker.PID)
				assert.True(t, *worker.Enabled) // Should default to true
				assert.Equal(t, 2048.0, worker.Quota.MemoryMB)
				assert.Equal(t, 75.0, worker.Quota.CPUPercent)
				assert.Equal(t, 30*time.Minute, worker.Quota.Timeout)
				assert.Equal(t, 85.0, worker.Quota.SoftLimitPercent)
				require.NotNil(t, worker.Monitoring)
				assert.Equal(t, 250*time.Millisecond, worker.Monitoring.SampleInterval)
				assert.Equal(t, 10, worker.Monitoring.AnalysisInterval)

				batch := config.Targets[1]
				assert.Equal(t, "batch-job", batch.Name)
				assert.Equal(t, 0, batch.PID) // Host-level target
				assert.False(t, *batch.Enabled)
				assert.Nil(t, batch.Monitoring)
			},
		},
		{
			name: "minimal valid config",
			configYAML: `
targets:
  - name: "simple-target"
    quota:
      memory_mb: 256
`,
			expectError: false,
			validate: func(t *testing.T, config *GovernorConfig) {
				assert.Equal(t, "localhost:50055", config.Governor.ListenAddress)
				assert.Equal(t, "info", config.Governor.LogLevel)
				assert.Equal(t, DefaultLedgerCapacity, config.Governor.LedgerCapacity)

				require.NotNil(t, config.Defaults)
				assert.Equal(t, 1*time.Second, config.Defaults.SampleInterval)
				assert.Equal(t, 1*time.Hour, config.Defaults.RetentionWindow)

				require.Len(t, config.Targets, 1)
				assert.True(t, *config.Targets[0].Enabled) // Should default to true
			},
		},
		{
			name: "empty targets allowed",
			configYAML: `
governor:
  listen_address: "localhost:50055"
`,
			expectError: false,
			validate: func(t *testing.T, config *GovernorConfig) {
				assert.Empty(t, config.Targets)
			},
		},
		{
			name: "invalid YAML",
			configYAML: `
governor:
  listen_address: [unclosed
`,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configFile := writeConfigFile(t, tt.configYAML)

			config, err := LoadConfigFromFile(configFile)

			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, config)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, config)
				if tt.validate != nil {
					tt.validate(t, config)
				}
			}
		})
	}
}

func TestLoadConfigFromFile_MissingFile(t *testing.T) {
	config, err := LoadConfigFromFile("/nonexistent/governor.yaml")
	assert.Error(t, err)
	assert.True(t, errors.IsIOError(err))
	assert.Nil(t, config)
}

func TestValidateConfig(t *testing.T) {
	validConfig := func() *GovernorConfig {
		enabled := true
		return &GovernorConfig{
			Governor: GovernorConfigOptions{
				ListenAddress: "localhost:50055",
				LogLevel:      "info",
			},
			Targets: []TargetConfig{
				{
					Name:    "target-a",
					PID:     100,
					Enabled: &enabled,
					Quota:   resourcequota.ResourceQuota{MemoryMB: 512},
				},
			},
		}
	}

	tests := []struct {
		name        string
		mutate      func(*GovernorConfig)
		expectError bool
	}{
		{
			name:        "valid config",
			mutate:      func(c *GovernorConfig) {},
			expectError: false,
		},
		{
			name: "empty listen address",
			mutate: func(c *GovernorConfig) {
				c.Governor.ListenAddress = ""
			},
			expectError: true,
		},
		{
			name: "malformed listen address",
			mutate: func(c *GovernorConfig) {
				c.Governor.ListenAddress = "no-port-here"
			},
			expectError: true,
		},
		{
			name: "invalid log level",
			mutate: func(c *GovernorConfig) {
				c.Governor.LogLevel = "verbose"
			},
			expectError: true,
		},
		{
			name: "negative ledger capacity",
			mutate: func(c *GovernorConfig) {
				c.Governor.LedgerCapacity = -1
			},
			expectError: true,
		},
		{
			name: "negative force shutdown timeout",
			mutate: func(c *GovernorConfig) {
				c.Governor.ForceShutdownTimeout = -1 * time.Second
			},
			expectError: true,
		},
		{
			name: "duplicate target names",
			mutate: func(c *GovernorConfig) {
				c.Targets = append(c.Targets, TargetConfig{
					Name:  "target-a",
					Quota: resourcequota.ResourceQuota{CPUPercent: 50},
				})
			},
			expectError: true,
		},
		{
			name: "invalid target name",
			mutate: func(c *GovernorConfig) {
				c.Targets[0].Name = "bad name!"
			},
			expectError: true,
		},
		{
			name: "negative target pid",
			mutate: func(c *GovernorConfig) {
				c.Targets[0].PID = -5
			},
			expectError: true,
		},
		{
			name: "quota without limits",
			mutate: func(c *GovernorConfig) {
				c.Targets[0].Quota = resourcequota.ResourceQuota{}
			},
			expectError: true,
		},
		{
			name: "invalid target monitoring",
			mutate: func(c *GovernorConfig) {
				c.Targets[0].Monitoring = &resourcequota.MonitorConfig{SpikeK: -1}
			},
			expectError: true,
		},
		{
			name: "invalid defaults",
			mutate: func(c *GovernorConfig) {
				c.Defaults = &resourcequota.MonitorConfig{SampleInterval: -1 * time.Second}
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			tt.mutate(config)

			err := ValidateConfig(config)

			if tt.expectError {
				assert.Error(t, err)
				assert.True(t, errors.IsValidationError(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateConfig_NilConfig(t *testing.T) {
	err := ValidateConfig(nil)
	assert.Error(t, err)
	assert.True(t, errors.IsValidationError(err))
}

func TestValidateConfigFile(t *testing.T) {
	validFile := writeConfigFile(t, `
targets:
  - name: "target-a"
    quota:
      memory_mb: 512
`)
	assert.NoError(t, ValidateConfigFile(validFile))

	invalidFile := writeConfigFile(t, `
targets:
  - name: "target-a"
    quota:
      memory_mb: -512
`)
	assert.Error(t, ValidateConfigFile(invalidFile))
}

func TestGetConfigSummary(t *testing.T) {
	summary := GetConfigSummary(nil)
	assert.Equal(t, "configuration is nil", summary.Error)

	enabled := true
	disabled := false
	config := &GovernorConfig{
		Governor: GovernorConfigOptions{
			ListenAddress: "localhost:50055",
			LogLevel:      "info",
		},
		Targets: []TargetConfig{
			{
				Name:    "governed",
				PID:     42,
				Enabled: &enabled,
				Quota: resourcequota.ResourceQuota{
					MemoryMB:   1024,
					CPUPercent: 50,
					Timeout:    10 * time.Minute,
				},
			},
			{
				Name:    "dormant",
				Enabled: &disabled,
				Quota:   resourcequota.ResourceQuota{OpenFiles: 100},
			},
		},
	}

	summary = GetConfigSummary(config)
	assert.Empty(t, summary.Error)
	assert.Equal(t, "localhost:50055", summary.ListenAddress)
	assert.Equal(t, 2, summary.TotalTargets)
	assert.Equal(t, 1, summary.EnabledTargets)

	require.Len(t, summary.Targets, 2)
	governed := summary.Targets[0]
	assert.Equal(t, "governed", governed.Name)
	assert.Equal(t, 42, governed.PID)
	assert.True(t, governed.Enabled)
	assert.ElementsMatch(t, []string{"memory", "cpu"}, governed.Governed)
	assert.Equal(t, 10*time.Minute, governed.Timeout)

	dormant := summary.Targets[1]
	assert.False(t, dormant.Enabled)
	assert.Equal(t, []string{"open_files"}, dormant.Governed)
}

func TestStartSessionsFromConfig(t *testing.T) {
	gov := newTestGovernor()
	gov.Start(context.Background())
	defer gov.Stop(context.Background())

	enabled := true
	disabled := false
	config := &GovernorConfig{
		Targets: []TargetConfig{
			{
				Name:    "host-target",
				Enabled: &enabled,
				Quota:   resourcequota.ResourceQuota{MemoryMB: 1 << 20},
			},
			{
				Name:    "disabled-target",
				Enabled: &disabled,
				Quota:   resourcequota.ResourceQuota{MemoryMB: 512},
			},
		},
	}

	ids, err := StartSessionsFromConfig(context.Background(), gov, config)
	assert.NoError(t, err)
	require.Len(t, ids, 1)

	session, err := gov.Session(ids[0])
	require.NoError(t, err)
	assert.Equal(t, "host-target", session.Target().Name)
	assert.Equal(t, EnforcerStateMonitoring, session.State())
}

func TestStartSessionsFromConfig_CollectsFailures(t *testing.T) {
	gov := newTestGovernor()
	gov.Start(context.Background())
	defer gov.Stop(context.Background())

	config := &GovernorConfig{
		Targets: []TargetConfig{
			{
				Name:  "bad name!",
				Quota: resourcequota.ResourceQuota{MemoryMB: 512},
			},
			{
				Name:  "good-target",
				Quota: resourcequota.ResourceQuota{MemoryMB: 1 << 20},
			},
		},
	}

	ids, err := StartSessionsFromConfig(context.Background(), gov, config)

	// The failing target is reported but does not block the others
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "index 0")
	require.Len(t, ids, 1)

	session, lookupErr := gov.Session(ids[0])
	require.NoError(t, lookupErr)
	assert.Equal(t, "good-target", session.Target().Name)
}

func TestStartSessionsFromConfig_NilConfig(t *testing.T) {
	gov := newTestGovernor()
	ids, err := StartSessionsFromConfig(context.Background(), gov, nil)
	assert.Error(t, err)
	assert.True(t, errors.IsValidationError(err))
	assert.Nil(t, ids)
}
