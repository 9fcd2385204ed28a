package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// Usage is a point-in-time resource sample of one compiler process.
type Usage struct {
	PID        int32     `json:"pid"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryRSS  uint64    `json:"memory_rss"`
	NumThreads int32     `json:"num_threads"`
	Timestamp  time.Time `json:"timestamp"`
}

// SampleUsage reads CPU and memory of pid (sass and its group leader only).
func SampleUsage(ctx context.Context, pid int) (Usage, error) {
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return Usage{}, err
	}
	u := Usage{PID: p.Pid, Timestamp: time.Now()}
	if cpu, err := p.CPUPercentWithContext(ctx); err == nil {
		u.CPUPercent = cpu
	}
	if mem, err := p.MemoryInfoWithContext(ctx); err == nil && mem != nil {
		u.MemoryRSS = mem.RSS
	}
	if n, err := p.NumThreadsWithContext(ctx); err == nil {
		u.NumThreads = n
	}
	return u, nil
}

// UsageCollector periodically samples the compilers returned by pids
// (directory -> pid) into the compiler gauges.
type UsageCollector struct {
	Interval time.Duration
	PIDs     func() map[string]int
	Log      *slog.Logger

	seen map[string]struct{}
}

// Run blocks until ctx is done.
func (c *UsageCollector) Run(ctx context.Context) {
	interval := c.Interval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		c.Collect(ctx)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// Collect takes one sample of every compiler.
func (c *UsageCollector) Collect(ctx context.Context) {
	if c.seen == nil {
		c.seen = make(map[string]struct{})
	}
	current := c.PIDs()
	for dir := range c.seen {
		if _, ok := current[dir]; !ok {
			ForgetCompiler(dir)
			delete(c.seen, dir)
		}
	}
	for dir, pid := range current {
		u, err := SampleUsage(ctx, pid)
		if err != nil {
			if c.Log != nil {
				c.Log.Debug("compiler usage sample failed", "dir", dir, "pid", pid, "error", err)
			}
			continue
		}
		SetCompilerUsage(dir, u.CPUPercent, u.MemoryRSS)
		c.seen[dir] = struct{}{}
	}
}
