package resourcequota

import (
	"time"
)

// ResourceType identifies a governed resource dimension
type ResourceType string

const (
	ResourceTypeMemory    ResourceType = "memory"     // Resident memory, MB
	ResourceTypeCPU       ResourceType = "cpu"        // CPU usage, percent
	ResourceTypeDiskIO    ResourceType = "disk_io"    // Disk throughput, MB/s
	ResourceTypeNetworkIO ResourceType = "network_io" // Network throughput, MB/s
	ResourceTypeOpenFiles ResourceType = "open_files" // Open file descriptors
	ResourceTypeThreads   ResourceType = "threads"    // Thread count
	ResourceTypeSwap      ResourceType = "swap"       // Swap usage, MB
	ResourceTypeIOPS      ResourceType = "iops"       // I/O operations per second
	ResourceTypeGPUMemory ResourceType = "gpu_memory" // GPU memory, MB
)

// ResourceTypes returns all resource types in canonical order.
// Iteration over resources follows this order everywhere so that
// violation and analysis output is deterministic.
func ResourceTypes() []ResourceType {
	return []ResourceType{
		ResourceTypeMemory,
		ResourceTypeCPU,
		ResourceTypeDiskIO,
		ResourceTypeNetworkIO,
		ResourceTypeOpenFiles,
		ResourceTypeThreads,
		ResourceTypeSwap,
		ResourceTypeIOPS,
		ResourceTypeGPUMemory,
	}
}

// ResourceUsage represents one usage sample of a governed target
type ResourceUsage struct {
	Timestamp time.Time `json:"timestamp"`

	// Memory usage
	MemoryMB float64 `json:"memory_mb"` // Resident set size
	SwapMB   float64 `json:"swap_mb"`   // Swap usage

	// CPU usage
	CPUPercent float64 `json:"cpu_percent"` // % CPU usage

	// I/O rates (per second, computed between samples)
	DiskReadMBps  float64 `json:"disk_read_mbps"`
	DiskWriteMBps float64 `json:"disk_write_mbps"`
	IOReadOps     float64 `json:"io_read_ops"`  // Read operations per second
	IOWriteOps    float64 `json:"io_write_ops"` // Write operations per second

	// Network rates (per second, computed between samples)
	NetworkSentMBps float64 `json:"network_sent_mbps"`
	NetworkRecvMBps float64 `json:"network_recv_mbps"`

	// Descriptor/thread usage
	OpenFiles int `json:"open_files"`
	Threads   int `json:"threads"`

	// GPU memory, absent unless a GPU reader is configured
	GPUMemoryMB float64 `json:"gpu_memory_mb"`
	HasGPU      bool    `json:"has_gpu"`
}

// Value returns the sample's reading for a resource type. The second
// return is false when the reading is absent (GPU memory without a GPU).
// Directional rates are combined: disk_io and network_io report the sum
// of both directions, iops the sum of read and write operations.
func (u *ResourceUsage) Value(resourceType ResourceType) (float64, bool) {
	switch resourceType {
	case ResourceTypeMemory:
		return u.MemoryMB, true
	case ResourceTypeCPU:
		return u.CPUPercent, true
	case ResourceTypeDiskIO:
		return u.DiskReadMBps + u.DiskWriteMBps, true
	case ResourceTypeNetworkIO:
		return u.NetworkSentMBps + u.NetworkRecvMBps, true
	case ResourceTypeOpenFiles:
		return float64(u.OpenFiles), true
	case ResourceTypeThreads:
		return float64(u.Threads), true
	case ResourceTypeSwap:
		return u.SwapMB, true
	case ResourceTypeIOPS:
		return u.IOReadOps + u.IOWriteOps, true
	case ResourceTypeGPUMemory:
		if !u.HasGPU {
			return 0, false
		}
		return u.GPUMemoryMB, true
	default:
		return 0, false
	}
}

// ResourceQuota defines hard limits per resource plus grading thresholds.
// A zero limit means the resource is not governed.
type ResourceQuota struct {
	MemoryMB      float64 `yaml:"memory_mb,omitempty" json:"memory_mb,omitempty"`
	CPUPercent    float64 `yaml:"cpu_percent,omitempty" json:"cpu_percent,omitempty"`
	DiskIOMBps    float64 `yaml:"disk_io_mbps,omitempty" json:"disk_io_mbps,omitempty"`
	NetworkIOMBps float64 `yaml:"network_io_mbps,omitempty" json:"network_io_mbps,omitempty"`
	OpenFiles     int     `yaml:"open_files,omitempty" json:"open_files,omitempty"`
	MaxThreads    int     `yaml:"max_threads,omitempty" json:"max_threads,omitempty"`
	SwapMB        float64 `yaml:"swap_mb,omitempty" json:"swap_mb,omitempty"`
	IOPS          float64 `yaml:"iops,omitempty" json:"iops,omitempty"`
	GPUMemoryMB   float64 `yaml:"gpu_memory_mb,omitempty" json:"gpu_memory_mb,omitempty"`

	// SoftLimitPercent derives the warning threshold from each hard
	// limit (0-100%). Zero means the default of 80%.
	SoftLimitPercent float64 `yaml:"soft_limit_percent,omitempty" json:"soft_limit_percent,omitempty"`

	// ScaleThresholdPercent is the predictive-scaling trigger, distinct
	// from the violation thresholds. Zero means the default of 90%.
	ScaleThresholdPercent float64 `yaml:"scale_threshold_percent,omitempty" json:"scale_threshold_percent,omitempty"`

	// Timeout stops the session after this monitoring duration.
	// Zero means no timeout.
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// Limit returns the configured hard limit for a resource type.
// The second return is false when the resource is not governed.
func (q *ResourceQuota) Limit(resourceType ResourceType) (float64, bool) {
	var limit float64
	switch resourceType {
	case ResourceTypeMemory:
		limit = q.MemoryMB
	case ResourceTypeCPU:
		limit = q.CPUPercent
	case ResourceTypeDiskIO:
		limit = q.DiskIOMBps
	case ResourceTypeNetworkIO:
		limit = q.NetworkIOMBps
	case ResourceTypeOpenFiles:
		limit = float64(q.OpenFiles)
	case ResourceTypeThreads:
		limit = float64(q.MaxThreads)
	case ResourceTypeSwap:
		limit = q.SwapMB
	case ResourceTypeIOPS:
		limit = q.IOPS
	case ResourceTypeGPUMemory:
		limit = q.GPUMemoryMB
	}
	if limit <= 0 {
		return 0, false
	}
	return limit, true
}

const (
	// DefaultSoftLimitPercent is the warning threshold applied when a
	// quota does not configure its own.
	DefaultSoftLimitPercent = 80.0

	// DefaultScaleThresholdPercent is the predictive-scaling trigger
	// applied when a quota does not configure its own.
	DefaultScaleThresholdPercent = 90.0

	// CriticalFactor grades a violation critical when usage reaches
	// this multiple of the hard limit.
	CriticalFactor = 1.2
)

// EffectiveSoftPercent returns the warning threshold percent with the
// default applied.
func (q *ResourceQuota) EffectiveSoftPercent() float64 {
	if q.SoftLimitPercent > 0 {
		return q.SoftLimitPercent
	}
	return DefaultSoftLimitPercent
}

// EffectiveScalePercent returns the scaling threshold percent with the
// default applied.
func (q *ResourceQuota) EffectiveScalePercent() float64 {
	if q.ScaleThresholdPercent > 0 {
		return q.ScaleThresholdPercent
	}
	return DefaultScaleThresholdPercent
}

// ViolationType tags the kind of quota violation
type ViolationType string

const (
	ViolationTypeMemory    ViolationType = "memory_exceeded"
	ViolationTypeCPU       ViolationType = "cpu_exceeded"
	ViolationTypeDiskIO    ViolationType = "disk_io_exceeded"
	ViolationTypeNetworkIO ViolationType = "network_io_exceeded"
	ViolationTypeOpenFiles ViolationType = "open_files_exceeded"
	ViolationTypeThreads   ViolationType = "threads_exceeded"
	ViolationTypeSwap      ViolationType = "swap_exceeded"
	ViolationTypeIOPS      ViolationType = "iops_exceeded"
	ViolationTypeGPU       ViolationType = "gpu_exceeded"

	// ViolationTypeTargetLost records the terminal sampling failure of a
	// vanished target; it carries no resource values.
	ViolationTypeTargetLost ViolationType = "target_lost"
)

// ViolationTypeFor maps a resource type to its violation tag
func ViolationTypeFor(resourceType ResourceType) ViolationType {
	switch resourceType {
	case ResourceTypeMemory:
		return ViolationTypeMemory
	case ResourceTypeCPU:
		return ViolationTypeCPU
	case ResourceTypeDiskIO:
		return ViolationTypeDiskIO
	case ResourceTypeNetworkIO:
		return ViolationTypeNetworkIO
	case ResourceTypeOpenFiles:
		return ViolationTypeOpenFiles
	case ResourceTypeThreads:
		return ViolationTypeThreads
	case ResourceTypeSwap:
		return ViolationTypeSwap
	case ResourceTypeIOPS:
		return ViolationTypeIOPS
	case ResourceTypeGPUMemory:
		return ViolationTypeGPU
	default:
		return ViolationType(string(resourceType) + "_exceeded")
	}
}

// ViolationSeverity indicates how severe a quota violation is
type ViolationSeverity string

const (
	ViolationSeverityWarning  ViolationSeverity = "warning"
	ViolationSeverityError    ViolationSeverity = "error"
	ViolationSeverityCritical ViolationSeverity = "critical"
)

// ResourceViolation represents a graded quota violation. Violations are
// immutable once created.
type ResourceViolation struct {
	ID           string            `json:"id"`
	Type         ViolationType     `json:"type"`
	Resource     ResourceType      `json:"resource"`
	Severity     ViolationSeverity `json:"severity"`
	CurrentValue float64           `json:"current_value"`
	LimitValue   float64           `json:"limit_value"`
	Timestamp    time.Time         `json:"timestamp"`
	Message      string            `json:"message"`
}

// Callback types
type ResourceUsageCallback func(usage *ResourceUsage)
type ResourceViolationCallback func(violation *ResourceViolation)
