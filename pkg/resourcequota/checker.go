package resourcequota

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/core-tools/hsu-governor/pkg/logging"
)

// ViolationChecker grades usage samples against a quota
type ViolationChecker struct {
	logger logging.Logger
}

func NewViolationChecker(logger logging.Logger) *ViolationChecker {
	return &ViolationChecker{
		logger: logger,
	}
}

// resourceLabels drives violation message formatting per resource
var resourceLabels = map[ResourceType]struct {
	name  string
	unit  string
	whole bool // counts format without decimals
}{
	ResourceTypeMemory:    {name: "Memory usage", unit: " MB"},
	ResourceTypeCPU:       {name: "CPU usage", unit: "%"},
	ResourceTypeDiskIO:    {name: "Disk I/O", unit: " MB/s"},
	ResourceTypeNetworkIO: {name: "Network I/O", unit: " MB/s"},
	ResourceTypeOpenFiles: {name: "Open file descriptors", unit: "", whole: true},
	ResourceTypeThreads:   {name: "Thread count", unit: "", whole: true},
	ResourceTypeSwap:      {name: "Swap usage", unit: " MB"},
	ResourceTypeIOPS:      {name: "I/O rate", unit: " ops/s"},
	ResourceTypeGPUMemory: {name: "GPU memory usage", unit: " MB"},
}

// Check grades one usage sample against the quota, producing at most one
// violation per governed resource. Resources are visited in canonical
// order. Absent readings (GPU memory without a GPU) are skipped.
func (vc *ViolationChecker) Check(usage *ResourceUsage, quota *ResourceQuota) []*ResourceViolation {
	if usage == nil || quota == nil {
		return nil
	}

	var violations []*ResourceViolation
	for _, resourceType := range ResourceTypes() {
		hardLimit, governed := quota.Limit(resourceType)
		if !governed {
			continue
		}
		value, present := usage.Value(resourceType)
		if !present {
			continue
		}

		violation := vc.gradeResource(resourceType, value, hardLimit, quota.EffectiveSoftPercent(), usage.Timestamp)
		if violation != nil {
			violations = append(violations, violation)
		}
	}

	return violations
}

// gradeResource applies the severity ladder: critical at CriticalFactor
// times the hard limit, error at the hard limit, warning at the derived
// soft threshold.
func (vc *ViolationChecker) gradeResource(resourceType ResourceType, value, hardLimit, softPercent float64, timestamp time.Time) *ResourceViolation {
	softLimit := hardLimit * (softPercent / 100.0)
	criticalLimit := hardLimit * CriticalFactor

	label := resourceLabels[resourceType]
	format := "%.1f"
	if label.whole {
		format = "%.0f"
	}
	quantity := func(v float64) string {
		return fmt.Sprintf(format+"%s", v, label.unit)
	}

	switch {
	case value >= criticalLimit:
		return &ResourceViolation{
			ID:           uuid.New().String(),
			Type:         ViolationTypeFor(resourceType),
			Resource:     resourceType,
			Severity:     ViolationSeverityCritical,
			CurrentValue: value,
			LimitValue:   hardLimit,
			Timestamp:    timestamp,
			Message:      fmt.Sprintf("%s (%s) exceeds critical threshold (%s)", label.name, quantity(value), quantity(criticalLimit)),
		}
	case value >= hardLimit:
		return &ResourceViolation{
			ID:           uuid.New().String(),
			Type:         ViolationTypeFor(resourceType),
			Resource:     resourceType,
			Severity:     ViolationSeverityError,
			CurrentValue: value,
			LimitValue:   hardLimit,
			Timestamp:    timestamp,
			Message:      fmt.Sprintf("%s (%s) exceeds hard limit (%s)", label.name, quantity(value), quantity(hardLimit)),
		}
	case value >= softLimit:
		return &ResourceViolation{
			ID:           uuid.New().String(),
			Type:         ViolationTypeFor(resourceType),
			Resource:     resourceType,
			Severity:     ViolationSeverityWarning,
			CurrentValue: value,
			LimitValue:   softLimit,
			Timestamp:    timestamp,
			Message:      fmt.Sprintf("%s (%s) exceeds warning threshold (%s)", label.name, quantity(value), quantity(softLimit)),
		}
	}

	return nil
}

// NewTargetLostViolation records the terminal sampling failure of a
// vanished target.
func NewTargetLostViolation(timestamp time.Time, cause error) *ResourceViolation {
	message := "Monitoring target is gone"
	if cause != nil {
		message = fmt.Sprintf("Monitoring target is gone: %v", cause)
	}
	return &ResourceViolation{
		ID:        uuid.New().String(),
		Type:      ViolationTypeTargetLost,
		Severity:  ViolationSeverityError,
		Timestamp: timestamp,
		Message:   message,
	}
}
