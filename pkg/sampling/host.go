package sampling

import (
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	psnet "github.com/shirou/gopsutil/v3/net"

	"github.com/core-tools/hsu-governor/pkg/logging"
	"github.com/core-tools/hsu-governor/pkg/resourcequota"
)

// HostSampler reads system-wide resource usage via gopsutil. Disk and
// network rates are computed from counter deltas between calls; the first
// call reports zero rates. Descriptor and thread counts have no portable
// host-wide source and are reported as zero.
type HostSampler struct {
	target Target
	gpu    GPUReader
	logger logging.Logger

	lastDisk     map[string]disk.IOCountersStat
	lastDiskTime time.Time
	lastNet      *psnet.IOCountersStat
	lastNetTime  time.Time
}

func NewHostSampler(target Target, gpu GPUReader, logger logging.Logger) *HostSampler {
	if gpu == nil {
		gpu = NoGPU{}
	}
	return &HostSampler{
		target: target,
		gpu:    gpu,
		logger: logger,
	}
}

// Sample reads current host usage. The host never vanishes, so Sample only
// degrades readings, it does not fail.
func (s *HostSampler) Sample(now time.Time) (*resourcequota.ResourceUsage, error) {
	usage := &resourcequota.ResourceUsage{Timestamp: now}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		usage.CPUPercent = percents[0]
	} else if err != nil {
		s.logger.Debugf("Host CPU read failed: %v", err)
	}

	if virtualMem, err := mem.VirtualMemory(); err == nil && virtualMem != nil {
		usage.MemoryMB = float64(virtualMem.Used) / bytesPerMB
	} else if err != nil {
		s.logger.Debugf("Host memory read failed: %v", err)
	}

	if swapMem, err := mem.SwapMemory(); err == nil && swapMem != nil {
		usage.SwapMB = float64(swapMem.Used) / bytesPerMB
	} else if err != nil {
		s.logger.Debugf("Host swap read failed: %v", err)
	}

	s.collectDiskRates(usage, now)
	s.collectNetworkRates(usage, now)

	usage.GPUMemoryMB, usage.HasGPU = s.gpu.GPUMemoryMB()

	return usage, nil
}

// collectDiskRates sums byte and operation deltas across all disks
func (s *HostSampler) collectDiskRates(usage *resourcequota.ResourceUsage, now time.Time) {
	diskStats, err := disk.IOCounters()
	if err != nil {
		s.logger.Debugf("Host disk counters read failed: %v", err)
		return
	}

	if s.lastDisk != nil {
		elapsed := now.Sub(s.lastDiskTime).Seconds()
		if elapsed >= 0.1 {
			var readBytes, writeBytes, readOps, writeOps float64
			for name, stat := range diskStats {
				lastStat, ok := s.lastDisk[name]
				if !ok {
					continue
				}
				readBytes += counterRate(stat.ReadBytes, lastStat.ReadBytes, elapsed)
				writeBytes += counterRate(stat.WriteBytes, lastStat.WriteBytes, elapsed)
				readOps += counterRate(stat.ReadCount, lastStat.ReadCount, elapsed)
				writeOps += counterRate(stat.WriteCount, lastStat.WriteCount, elapsed)
			}
			usage.DiskReadMBps = readBytes / bytesPerMB
			usage.DiskWriteMBps = writeBytes / bytesPerMB
			usage.IOReadOps = readOps
			usage.IOWriteOps = writeOps
		}
	}

	s.lastDisk = diskStats
	s.lastDiskTime = now
}

// collectNetworkRates computes byte rates across all interfaces combined
func (s *HostSampler) collectNetworkRates(usage *resourcequota.ResourceUsage, now time.Time) {
	netStats, err := psnet.IOCounters(false)
	if err != nil || len(netStats) == 0 {
		if err != nil {
			s.logger.Debugf("Host network counters read failed: %v", err)
		}
		return
	}
	current := netStats[0]

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
