package server

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostStats is one sample of host resource usage.
type HostStats struct {
	CPUPercent    float64   `json:"cpu_percent" msgpack:"cpu_percent"`
	MemoryPercent float64   `json:"memory_percent" msgpack:"memory_percent"`
	MemoryUsedMB  float64   `json:"memory_used_mb" msgpack:"memory_used_mb"`
	SampledAt     time.Time `json:"sampled_at" msgpack:"sampled_at"`
}

// StatusMonitor periodically samples host CPU and memory so the health
// endpoint never blocks on a CPU measurement.
type StatusMonitor struct {
	log zerolog.Logger

	mu     sync.RWMutex
	latest HostStats
}

// NewStatusMonitor creates a new status monitor
func NewStatusMonitor(log zerolog.Logger) *StatusMonitor {
	return &StatusMonitor{log: log.With().Str("component", "status_monitor").Logger()}
}

// Start samples immediately and then every interval until ctx is done.
func (m *StatusMonitor) Start(ctx context.Context, interval time.Duration) {
	m.sample()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.sample()
			}
		}
	}()
}

// Latest returns the most recent sample (zero before the first).
func (m *StatusMonitor) Latest() HostStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest
}

func (m *StatusMonitor) sample() {
	stats := HostStats{SampledAt: time.Now().UTC()}

	// 100ms keeps the sampling goroutine responsive to shutdown
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		m.log.Warn().Err(err).Msg("Failed to get CPU percentage")
	} else if len(cpuPercent) > 0 {
		stats.CPUPercent = cpuPercent[0]
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		m.log.Warn().Err(err).Msg("Failed to get memory statistics")
	} else {
		stats.MemoryPercent = memStat.UsedPercent
		stats.MemoryUsedMB = float64(memStat.Used) / 1024 / 1024
	}

	m.mu.Lock()
	m.latest = stats
	m.mu.Unlock()
}
