package governor

import (
	"context"
	"fmt"
	"io/ioutil"
	"time"

	"github.com/core-tools/hsu-governor/pkg/errors"
	"github.com/core-tools/hsu-governor/pkg/resourcequota"
	"github.com/core-tools/hsu-governor/pkg/sampling"

	"gopkg.in/yaml.v3"
)

// GovernorConfig represents the top-level configuration file structure
type GovernorConfig struct {
	Governor GovernorConfigOptions        `yaml:"governor"`
	Defaults *resourcequota.MonitorConfig `yaml:"defaults,omitempty"`
	Targets  []TargetConfig               `yaml:"targets"`
}

// GovernorConfigOptions represents governor-level configuration
type GovernorConfigOptions struct {
	ListenAddress        string        `yaml:"listen_address"`
	LogLevel             string        `yaml:"log_level,omitempty"`
	LedgerCapacity       int           `yaml:"ledger_capacity,omitempty"`
	ForceShutdownTimeout time.Duration `yaml:"force_shutdown_timeout,omitempty"`
}

// TargetConfig represents a single governed target configuration
type TargetConfig struct {
	Name    string `yaml:"name"`
	PID     int    `yaml:"pid,omitempty"`     // 0 means the whole host
	Enabled *bool  `yaml:"enabled,omitempty"` // Pointer to distinguish unset from false

	Quota      resourcequota.ResourceQuota  `yaml:"quota"`
	Monitoring *resourcequota.MonitorConfig `yaml:"monitoring,omitempty"`
}

// LoadConfigFromFile loads governor configuration from a YAML file
func LoadConfigFromFile(filename string) (*GovernorConfig, error) {
	data, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, errors.NewIOError("failed to read configuration file", err).WithContext("filename", filename)
	}

	var config GovernorConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.NewValidationError("failed to parse YAML configuration", err).WithContext("filename", filename)
	}

	setConfigDefaults(&config)

	return &config, nil
}

// setConfigDefaults applies default values to configuration
func setConfigDefaults(config *GovernorConfig) {
	// Set governor defaults
	if config.Governor.ListenAddress == "" {
		config.Governor.ListenAddress = "localhost:50055"
	}
	if config.Governor.LogLevel == "" {
		config.Governor.LogLevel = "info"
	}
	if config.Governor.LedgerCapacity == 0 {
		config.Governor.LedgerCapacity = DefaultLedgerCapacity
	}

	// Set monitoring defaults
	if config.Defaults == nil {
		defaults := resourcequota.DefaultMonitorConfig()
		config.Defaults = &defaults
	} else {
		config.Defaults.ApplyDefaults()
	}

	// Set target defaults
	for i := range config.Targets {
		target := &config.Targets[i]

		// Default enabled to true if not specified
		if target.Enabled == nil {
			enabled := true
			target.Enabled = &enabled
		}

		if target.Monitoring != nil {
			target.Monitoring.ApplyDefaults()
		}
	}
}

// ValidateConfig validates the entire configuration structure
func ValidateConfig(config *GovernorConfig) error {
	if config == nil {
		return errors.NewValidationError("configuration cannot be nil", nil)
	}

	if err := validateGovernorOptions(&config.Governor); err != nil {
		return errors.NewValidationError("invalid governor configuration", err)
	}

	if config.Defaults != nil {
		if err := resourcequota.ValidateMonitorConfig(config.Defaults); err != nil {
			return errors.NewValidationError("invalid default monitoring configuration", err)
		}
	}

	if err := validateTargetsConfig(config.Targets); err != nil {
		return errors.NewValidationError("invalid targets configuration", err)
	}

	return nil
}

func validateGovernorOptions(config *GovernorConfigOptions) error {
	if err := ValidateListenAddress(config.ListenAddress); err != nil {
		return err
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if config.LogLevel != "" {
		valid := false
		for _, level := range validLogLevels {
			if config.LogLevel == level {
				valid = true
				break
			}
		}
		if !valid {
			return errors.NewValidationError(
				fmt.Sprintf("invalid log level: %s", config.LogLevel),
				nil,
			).WithContext("valid_levels", "debug, info, warn, error")
		}
	}

	if config.LedgerCapacity < 0 {
		return errors.NewValidationError(
			fmt.Sprintf("ledger capacity cannot be negative: %d", config.LedgerCapacity), nil)
	}

	if config.ForceShutdownTimeout < 0 {
		return errors.NewValidationError("force shutdown timeout cannot be negative", nil)
	}

	return nil
}

func validateTargetsConfig(targets []TargetConfig) error {
	if len(targets) == 0 {
		return nil // Allow empty targets list
	}

	// Check for duplicate target names
	seenNames := make(map[string]int)
	for i, target := range targets {
		if err := ValidateTargetName(target.Name); err != nil {
			return errors.NewValidationError(
				fmt.Sprintf("invalid target name at index %d", i),
				err,
			).WithContext("target_name", target.Name)
		}

		if prevIndex, exists := seenNames[target.Name]; exists {
			return errors.NewValidationError(
				fmt.Sprintf("duplicate target name '%s' found at indices %d and %d", target.Name, prevIndex, i),
				nil,
			)
		}
		seenNames[target.Name] = i

		if target.PID < 0 {
			return errors.NewValidationError(
				fmt.Sprintf("invalid pid %d for target at index %d", target.PID, i),
				nil,
			).WithContext("target_name", target.Name)
		}

		if err := resourcequota.ValidateQuota(&target.Quota); err != nil {
			return errors.NewValidationError(
				fmt.Sprintf("invalid quota for target at index %d", i),
				err,
			).WithContext("target_name", target.Name)
		}

		if target.Monitoring != nil {
			if err := resourcequota.ValidateMonitorConfig(target.Monitoring); err != nil {
				return errors.NewValidationError(
					fmt.Sprintf("invalid monitoring configuration for target at index %d", i),
					err,
				).WithContext("target_name", target.Name)
			}
		}
	}

	return nil
}

// StartSessionsFromConfig starts a session for every enabled target.
// Targets that fail to start (a vanished PID, for one) do not prevent
// the others from starting; their errors are collected and returned
// alongside the IDs that did start.
func StartSessionsFromConfig(ctx context.Context, gov *Governor, config *GovernorConfig) ([]string, error) {
	if config == nil {
		return nil, errors.NewValidationError("configuration cannot be nil", nil)
	}

	var ids []string
	errorCollection := errors.NewErrorCollection()

	for i, target := range config.Targets {
		// Skip disabled targets (only skip if explicitly set to false)
		if target.Enabled != nil && !*target.Enabled {
			gov.logger.Infof("Skipping disabled target, name: %s", target.Name)
			continue
		}

		id, err := gov.StartSession(ctx, SessionRequest{
			Target: sampling.Target{PID: target.PID, Name: target.Name},
			Quota:  &target.Quota,
			Config: target.Monitoring,
		})
		if err != nil {
			gov.logger.Errorf("Failed to start session for target %s: %v", target.Name, err)
			errorCollection.Add(errors.NewInternalError(
				fmt.Sprintf("failed to start session for target at index %d", i),
				err,
			).WithContext("target_name", target.Name))
			continue
		}

		ids = append(ids, id)
	}

	return ids, errorCollection.ToError()
}

// ValidateConfigFile validates a configuration file without running it.
// This is useful for configuration testing and CI/CD validation.
func ValidateConfigFile(configFile string) error {
	config, err := LoadConfigFromFile(configFile)
	if err != nil {
		return errors.NewIOError("failed to load configuration", err).WithContext("config_file", configFile)
	}

	if err := ValidateConfig(config); err != nil {
		return errors.NewValidationError("configuration validation failed", err).WithContext("config_file", configFile)
	}

	return nil
}

// ConfigSummary provides a high-level overview of configuration
type ConfigSummary struct {
	ListenAddress  string          `json:"listen_address"`
	LogLevel       string          `json:"log_level"`
	TotalTargets   int             `json:"total_targets"`
	EnabledTargets int             `json:"enabled_targets"`
	Targets        []TargetSummary `json:"targets"`
	Error          string          `json:"error,omitempty"`
}

// TargetSummary provides a summary of target configuration
type TargetSummary struct {
	Name     string        `json:"name"`
	PID      int           `json:"pid,omitempty"`
	Enabled  bool          `json:"enabled"`
	Governed []string      `json:"governed"`
	Timeout  time.Duration `json:"timeout,omitempty"`
}

// GetConfigSummary returns a human-readable summary of the configuration.
// This is useful for debugging and operational visibility.
func GetConfigSummary(config *GovernorConfig) ConfigSummary {
	if config == nil {
		return ConfigSummary{Error: "configuration is nil"}
	}

	summary := ConfigSummary{
		ListenAddress: config.Governor.ListenAddress,
		LogLevel:      config.Governor.LogLevel,
		Targets:       make([]TargetSummary, 0, len(config.Targets)),
	}

	for _, target := range config.Targets {
		enabled := false
		if target.Enabled != nil {
			enabled = *target.Enabled
		}

		var governed []string
		for _, resourceType := range resourcequota.ResourceTypes() {
			if _, ok := target.Quota.Limit(resourceType); ok {
				governed = append(governed, string(resourceType))
			}
		}

		summary.Targets = append(summary.Targets, TargetSummary{
			Name:     target.Name,
			PID:      target.PID,
			Enabled:  enabled,
			Governed: governed,
			Timeout:  target.Quota.Timeout,
		})
	}

	summary.TotalTargets = len(summary.Targets)
	summary.EnabledTargets = 0
	for _, target := range summary.Targets {
		if target.Enabled {
			summary.EnabledTargets++
		}
	}

	return summary
}
