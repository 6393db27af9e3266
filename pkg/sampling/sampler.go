package sampling

import (
	"fmt"
	"time"

	"github.com/core-tools/hsu-governor/pkg/logging"
	"github.com/core-tools/hsu-governor/pkg/resourcequota"
)

// Target identifies what a sampler observes. PID <= 0 selects host-level
// sampling.
type Target struct {
	PID  int    `yaml:"pid,omitempty" json:"pid,omitempty"`
	Name string `yaml:"name,omitempty" json:"name,omitempty"`
}

// String renders the target for logs
func (t Target) String() string {
	if t.PID > 0 {
		if t.Name != "" {
			return fmt.Sprintf("%s (pid %d)", t.Name, t.PID)
		}
		return fmt.Sprintf("pid %d", t.PID)
	}
	if t.Name != "" {
		return fmt.Sprintf("%s (host)", t.Name)
	}
	return "host"
}

// Sampler produces one usage sample per call. A sampler is bound to one
// target at construction because throughput metrics are rates computed
// against the previous call's counters.
type Sampler interface {
	// Sample reads current resource usage. The returned sample carries
	// the given timestamp. A vanished target yields a sample error,
	// which callers treat as terminal.
	Sample(now time.Time) (*resourcequota.ResourceUsage, error)
}

// GPUReader supplies GPU memory readings, typically backed by an external
// metrics collector. Without a reader, GPU memory is reported absent.
type GPUReader interface {
	// GPUMemoryMB returns current GPU memory usage. The second return is
	// false when no GPU reading is available.
	GPUMemoryMB() (float64, bool)
}

// NoGPU is the default GPUReader for targets without GPU visibility
type NoGPU struct{}

func (NoGPU) GPUMemoryMB() (float64, bool) {
	return 0, false
}

// New creates a sampler for the target: a process sampler for PID > 0,
// a host sampler otherwise. A nil gpu reader means no GPU visibility.
func New(target Target, gpu GPUReader, logger logging.Logger) (Sampler, error) {
	if gpu == nil {
		gpu = NoGPU{}
	}
	if target.PID > 0 {
		return NewProcessSampler(target, gpu, logger)
	}
	return NewHostSampler(target, gpu, logger), nil
}

const bytesPerMB = 1024 * 1024
