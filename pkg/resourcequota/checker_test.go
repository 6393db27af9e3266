package resourcequota

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Simple test logger that implements logging.Logger interface
type TestLogger struct{}

func (l *TestLogger) LogLevelf(level int, format string, args ...interface{}) {}
func (l *TestLogger) Debugf(format string, args ...interface{})               {}
func (l *TestLogger) Infof(format string, args ...interface{})                {}
func (l *TestLogger) Warnf(format string, args ...interface{})                {}
func (l *TestLogger) Errorf(format string, args ...interface{})               {}

func TestViolationChecker_SeverityLadder(t *testing.T) {
	checker := NewViolationChecker(&TestLogger{})
	quota := &ResourceQuota{MemoryMB: 100} // soft 80, hard 100, critical 120

	tests := []struct {
		name     string
		memoryMB float64
		severity ViolationSeverity
		expected bool
	}{
		{"well below soft limit", 50.0, "", false},
		{"just below soft limit", 79.9, "", false},
		{"at soft limit", 80.0, ViolationSeverityWarning, true},
		{"between soft and hard", 99.0, ViolationSeverityWarning, true},
		{"at hard limit", 100.0, ViolationSeverityError, true},
		{"between hard and critical", 119.9, ViolationSeverityError, true},
		{"at critical threshold", 120.0, ViolationSeverityCritical, true},
		{"far above critical", 500.0, ViolationSeverityCritical, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			usage := &ResourceUsage{Timestamp: time.Now(), MemoryMB: tt.memoryMB}
			violations := checker.Check(usage, quota)

			if !tt.expected {
				assert.Empty(t, violations)
				return
			}

			require.Len(t, violations, 1)
			violation := violations[0]
			assert.Equal(t, tt.severity, violation.Severity)
			assert.Equal(t, ViolationTypeMemory, violation.Type)
			assert.Equal(t, ResourceTypeMemory, violation.Resource)
			assert.Equal(t, tt.memoryMB, violation.CurrentValue)
			assert.NotEmpty(t, violation.ID)
			assert.NotEmpty(t, violation.Message)
		})
	}
}

func TestViolationChecker_CustomSoftLimit(t *testing.T) {
	checker := NewViolationChecker(&TestLogger{})
	quota := &ResourceQuota{CPUPercent: 100, SoftLimitPercent: 50}

	usage := &ResourceUsage{Timestamp: time.Now(), CPUPercent: 60.0}
	violations := checker.Check(usage, quota)

	require.Len(t, violations, 1)
	assert.Equal(t, ViolationSeverityWarning, violations[0].Severity)
	assert.Equal(t, 50.0, violations[0].LimitValue)
}

func TestViolationChecker_OneViolationPerResource(t *testing.T) {
	checker := NewViolationChecker(&TestLogger{})
	quota := &ResourceQuota{
		MemoryMB:   100,
		CPUPercent: 50,
		OpenFiles:  10,
	}

	// Memory critical, CPU error, open files warning, all in one sample
	usage := &ResourceUsage{
		Timestamp:  time.Now(),
		MemoryMB:   200.0,
		CPUPercent: 55.0,
		OpenFiles:  9,
	}

	violations := checker.Check(usage, quota)
	require.Len(t, violations, 3)

	// Canonical resource order
	assert.Equal(t, ResourceTypeMemory, violations[0].Resource)
	assert.Equal(t, ViolationSeverityCritical, violations[0].Severity)
	assert.Equal(t, ResourceTypeCPU, violations[1].Resource)
	assert.Equal(t, ViolationSeverityError, violations[1].Severity)
	assert.Equal(t, ResourceTypeOpenFiles, violations[2].Resource)
	assert.Equal(t, ViolationSeverityWarning, violations[2].Severity)
}

func TestViolationChecker_UngovernedResourcesIgnored(t *testing.T) {
	checker := NewViolationChecker(&TestLogger{})
	quota := &ResourceQuota{MemoryMB: 100}

	// CPU is over any plausible limit, but no CPU limit is configured
	usage := &ResourceUsage{
		Timestamp:  time.Now(),
		MemoryMB:   10.0,
		CPUPercent: 999.0,
	}

	violations := checker.Check(usage, quota)
	assert.Empty(t, violations)
}

func TestViolationChecker_AbsentGPUSkipped(t *testing.T) {
	checker := NewViolationChecker(&TestLogger{})
	quota := &ResourceQuota{GPUMemoryMB: 1024, MemoryMB: 100}

	// No GPU reading present, so the GPU quota cannot be graded
	usage := &ResourceUsage{Timestamp: time.Now(), MemoryMB: 10.0}

	violations := checker.Check(usage, quota)
	assert.Empty(t, violations)

	// With a GPU reading the quota applies
	usage.HasGPU = true
	usage.GPUMemoryMB = 2048.0
	violations = checker.Check(usage, quota)
	require.Len(t, violations, 1)
	assert.Equal(t, ViolationTypeGPU, violations[0].Type)
}

func TestViolationChecker_NilInputs(t *testing.T) {
	checker := NewViolationChecker(&TestLogger{})

	assert.Nil(t, checker.Check(nil, &ResourceQuota{MemoryMB: 1}))
	assert.Nil(t, checker.Check(&ResourceUsage{}, nil))
}

func TestViolationChecker_TimestampFromSample(t *testing.T) {
	checker := NewViolationChecker(&TestLogger{})
	quota := &ResourceQuota{MemoryMB: 100}

	sampledAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	usage := &ResourceUsage{Timestamp: sampledAt, MemoryMB: 150.0}

	violations := checker.Check(usage, quota)
	require.Len(t, violations, 1)
	assert.Equal(t, sampledAt, violations[0].Timestamp)
}

func TestNewTargetLostViolation(t *testing.T) {
	now := time.Now()
	violation := NewTargetLostViolation(now, assert.AnError)

	assert.Equal(t, ViolationTypeTargetLost, violation.Type)
	assert.Equal(t, ViolationSeverityError, violation.Severity)
	assert.Equal(t, now, violation.Timestamp)
	assert.Contains(t, violation.Message, "gone")
	assert.NotEmpty(t, violation.ID)
}
