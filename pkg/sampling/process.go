package sampling

import (
	"time"

	psnet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/core-tools/hsu-governor/pkg/errors"
	"github.com/core-tools/hsu-governor/pkg/logging"
	"github.com/core-tools/hsu-governor/pkg/resourcequota"
)

// ProcessSampler reads resource usage of one process via gopsutil.
// The process handle is kept between calls: CPU percent and I/O rates
// are computed against the previous sample.
type ProcessSampler struct {
	target Target
	proc   *process.Process
	gpu    GPUReader
	logger logging.Logger

	lastIO      *process.IOCountersStat
	lastIOTime  time.Time
	lastNet     *psnet.IOCountersStat
	lastNetTime time.Time
}

// NewProcessSampler binds a sampler to a running process. A PID that does
// not resolve to a live process is a sample error.
func NewProcessSampler(target Target, gpu GPUReader, logger logging.Logger) (*ProcessSampler, error) {
	proc, err := process.NewProcess(int32(target.PID))
	if err != nil {
		return nil, errors.NewSampleError("process not found", err).WithContext("pid", target.PID)
	}
	if gpu == nil {
		gpu = NoGPU{}
	}
	return &ProcessSampler{
		target: target,
		proc:   proc,
		gpu:    gpu,
		logger: logger,
	}, nil
}

// Sample reads current usage of the process. A vanished process yields a
// sample error; individual metric read failures (typically permissions)
// degrade to zero readings so partial visibility still produces a sample.
func (s *ProcessSampler) Sample(now time.Time) (*resourcequota.ResourceUsage, error) {
	running, err := s.proc.IsRunning()
	if err != nil || !running {
		return nil, errors.NewSampleError("process is not running", err).WithContext("pid", s.target.PID)
	}

	usage := &resourcequota.ResourceUsage{Timestamp: now}

	if cpuPercent, err := s.proc.CPUPercent(); err == nil {
		usage.CPUPercent = cpuPercent
	} else {
		s.logger.Debugf("CPU read failed for %s: %v", s.target, err)
	}

	if memInfo, err := s.proc.MemoryInfo(); err == nil && memInfo != nil {
		usage.MemoryMB = float64(memInfo.RSS) / bytesPerMB
		usage.SwapMB = float64(memInfo.Swap) / bytesPerMB
	} else if err != nil {
		s.logger.Debugf("Memory read failed for %s: %v", s.target, err)
	}

	if numFDs, err := s.proc.NumFDs(); err == nil {
		usage.OpenFiles = int(numFDs)
	} else {
		s.logger.Debugf("FD count read failed for %s: %v", s.target, err)
	}

	if numThreads, err := s.proc.NumThreads(); err == nil {
		usage.Threads = int(numThreads)
	} else {
		s.logger.Debugf("Thread count read failed for %s: %v", s.target, err)
	}

	s.collectIORates(usage, now)
	s.collectNetworkRates(usage, now)

	usage.GPUMemoryMB, usage.HasGPU = s.gpu.GPUMemoryMB()

	return usage, nil
}

// collectIORates computes per-second disk byte and operation rates from
// counter deltas. The first call has no previous counters and reports
// zero rates.
func (s *ProcessSampler) collectIORates(usage *resourcequota.ResourceUsage, now time.Time) {
	counters, err := s.proc.IOCounters()
	if err != nil || counters == nil {
		if err != nil {
			s.logger.Debugf("IO counters read failed for %s: %v", s.target, err)
		}
		return
	}

	if s.lastIO != nil {
		elapsed := now.Sub(s.lastIOTime).Seconds()
		if elapsed >= 0.1 {
			usage.DiskReadMBps = counterRate(counters.ReadBytes, s.lastIO.ReadBytes, elapsed) / bytesPerMB
			usage.DiskWriteMBps = counterRate(counters.WriteBytes, s.lastIO.WriteBytes, elapsed) / bytesPerMB
			usage.IOReadOps = counterRate(counters.ReadCount, s.lastIO.ReadCount, elapsed)
			usage.IOWriteOps = counterRate(counters.WriteCount, s.lastIO.WriteCount, elapsed)
		}
	}

	s.lastIO = counters
	s.lastIOTime = now
}

// collectNetworkRates computes per-second network byte rates from counter
// deltas. gopsutil does not expose per-process network counters, so the
// host-wide totals stand in as an upper bound on the target's traffic.
// Failures degrade to zero rates.
func (s *ProcessSampler) collectNetworkRates(usage *resourcequota.ResourceUsage, now time.Time) {
	counters, err := psnet.IOCounters(false)
	if err != nil || len(counters) == 0 {
		if err != nil {
			s.logger.Debugf("Network counters read failed for %s: %v", s.target, err)
		}
		return
	}
	current := counters[0]

	if s.lastNet != nil {
		elapsed := now.Sub(s.lastNetTime).Seconds()
		if elapsed >= 0.1 {
			usage.NetworkSentMBps = counterRate(current.BytesSent, s.lastNet.BytesSent, elapsed) / bytesPerMB
			usage.NetworkRecvMBps = counterRate(current.BytesRecv, s.lastNet.BytesRecv, elapsed) / bytesPerMB
		}
	}

	s.lastNet = &current
	s.lastNetTime = now
}

// counterRate guards against counter resets, which would otherwise produce
// huge unsigned deltas
func counterRate(current, previous uint64, elapsed float64) float64 {
	if current < previous {
		return 0
	}
	return float64(current-previous) / elapsed
}
