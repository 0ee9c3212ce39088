package launcher

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// Sample is one resource reading of the launched process
type Sample struct {
	RSSBytes   uint64
	CPUPercent float64
	NumThreads int32
}

// sampleProcess reads RSS, CPU and thread count for pid
func sampleProcess(ctx context.Context, proc *process.Process) (Sample, error) {
	var s Sample

	mem, err := proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return s, err
	}
	s.RSSBytes = mem.RSS

	if cpu, err := proc.CPUPercentWithContext(ctx); err == nil {
		s.CPUPercent = cpu
	}
	if threads, err := proc.NumThreadsWithContext(ctx); err == nil {
		s.NumThreads = threads
	}
	return s, nil
}

// sampleLoop samples pid every interval until done is closed, handing
// each reading to record. Sampling errors end the loop quietly; the
// process has usually just exited.
func sampleLoop(pid int, interval time.Duration, done <-chan struct{}, record func(Sample)) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	proc, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s, err := sampleProcess(ctx, proc)
		if err != nil {
			return
		}
		record(s)

		select {
		case <-done:
			return
		case <-ticker.C:
		}
	}
}
