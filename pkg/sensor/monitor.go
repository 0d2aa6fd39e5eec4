// Package sensor watches store disk usage against a configured budget
// and degrades readiness before the volume fills up.
package sensor

import (
	"context"
	"sync/atomic"
	"time"

	"gptchat/pkg/logger"
	"gptchat/pkg/store"
)

// MonitorConfig controls thresholds and intervals for the store monitor.
type MonitorConfig struct {
	PollInterval time.Duration

	// Budget is the byte ceiling for on-disk store size. Zero disables
	// the monitor.
	Budget int64

	HighPct int
	LowPct  int

	// hysteresis window to consider recovery
	RecoveryWindow time.Duration
}

// DefaultMonitorConfig returns sensible defaults.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		PollInterval:   5 * time.Second,
		HighPct:        90,
		LowPct:         75,
		RecoveryWindow: 30 * time.Second,
	}
}

// Monitor polls store disk usage and flips a degraded flag with
// hysteresis so readiness probes shed traffic before writes start
// failing on a full volume.
type Monitor struct {
	cfg      MonitorConfig
	degraded atomic.Bool
	cancel   context.CancelFunc
}

// StartMonitor launches the poll loop. A zero budget returns a no-op
// monitor that never degrades.
func StartMonitor(ctx context.Context, cfg MonitorConfig) *Monitor {
	def := DefaultMonitorConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.HighPct <= 0 || cfg.HighPct > 100 {
		cfg.HighPct = def.HighPct
	}
	if cfg.LowPct <= 0 || cfg.LowPct >= cfg.HighPct {
		cfg.LowPct = def.LowPct
	}
	if cfg.RecoveryWindow <= 0 {
		cfg.RecoveryWindow = def.RecoveryWindow
	}

	ctx, cancel := context.WithCancel(ctx)
	m := &Monitor{cfg: cfg, cancel: cancel}
	if cfg.Budget <= 0 {
		return m
	}
	go m.run(ctx)
	logger.Info("store_monitor_started", "budget", cfg.Budget, "high_pct", cfg.HighPct, "low_pct", cfg.LowPct)
	return m
}

// Degraded reports whether the store is over its disk budget.
func (m *Monitor) Degraded() bool { return m.degraded.Load() }

// Stop terminates the poll loop.
func (m *Monitor) Stop() { m.cancel() }

func (m *Monitor) run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()
	var lastHigh time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			used := int64(store.DiskUsage())
			pct := int(used * 100 / m.cfg.Budget)
			if pct >= m.cfg.HighPct {
				lastHigh = time.Now()
				if m.degraded.CompareAndSwap(false, true) {
					logger.Warn("store_disk_budget_exceeded", "used_bytes", used, "budget", m.cfg.Budget, "pct", pct)
				}
				continue
			}
			if m.degraded.Load() && pct <= m.cfg.LowPct && time.Since(lastHigh) > m.cfg.RecoveryWindow {
				m.degraded.Store(false)
				logger.Info("store_disk_budget_recovered", "used_bytes", used, "pct", pct)
			}
		}
	}
}
