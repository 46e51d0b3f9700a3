package supervisor

import (
	"context"
	"errors"
	"fmt"

	"github.com/shirou/gopsutil/v3/process"
)

// ErrNoProcess is returned by Stats when no host process is available, either
// because the engine is not running or because the runtime has no host pid.
var ErrNoProcess = errors.New("no engine process")

// ProcessStats describes resource usage of the live engine process.
type ProcessStats struct {
	PID        int
	CPUPercent float64
	RSSBytes   uint64
	Threads    int32
}

// Stats samples the live engine process.
func (s *Supervisor) Stats(ctx context.Context) (ProcessStats, error) {
	pid := s.Snapshot().PID
	if pid <= 0 {
		return ProcessStats{}, ErrNoProcess
	}
	return sampleProcess(ctx, pid)
}

func sampleProcess(ctx context.Context, pid int) (ProcessStats, error) {
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return ProcessStats{}, fmt.Errorf("error getting process %d: %w", pid, err)
	}

	stats := ProcessStats{PID: pid}

	mem, err := p.MemoryInfoWithContext(ctx)
	if err != nil {
		return ProcessStats{}, fmt.Errorf("error getting memory info: %w", err)
	}
	stats.RSSBytes = mem.RSS

	// CPU and thread counts are best effort on some platforms
	if cpu, err := p.CPUPercentWithContext(ctx); err == nil {
		stats.CPUPercent = cpu
	}
	if threads, err := p.NumThreadsWithContext(ctx); err == nil {
		stats.Threads = threads
	}
	return stats, nil
}
