// Package retention purges expired login sessions from the store on a
// cron schedule so stale records do not accumulate between restarts.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"gptchat/pkg/config"
	"gptchat/pkg/logger"
	"gptchat/pkg/store"
)

// RunImmediate triggers a single sweep right away. Exposed so tests and
// operational tooling can force a run without waiting for the schedule.
func RunImmediate() error {
	return runOnce(context.Background())
}

// Start launches the sweep scheduler and returns a cancel func. An empty
// schedule defaults to hourly.
func Start(ctx context.Context, eff config.EffectiveConfigResult) (context.CancelFunc, error) {
	cronExpr := eff.Config.Auth.SweepSchedule
	if cronExpr == "" {
		cronExpr = "0 * * * *"
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("session_sweep_invalid_cron", "cron", cronExpr)
		return nil, fmt.Errorf("invalid session sweep schedule: %s", cronExpr)
	}

	logger.Info("session_sweep_enabled", "cron", cronExpr)
	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, cronExpr)
	return cancel, nil
}

// runScheduler uses gronx to compute the next tick for the configured
// cron expression and sleeps until that time.
func runScheduler(ctx context.Context, cronExpr string) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("session_sweep_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("session_sweep_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				logger.Info("session_sweep_stopping")
				return
			}
			continue
		}

		wait := time.Until(next)
		if wait <= 0 {
			// due now-ish; run immediately
			if err := runOnce(ctx); err != nil {
				logger.Error("session_sweep_error", "error", err)
			}
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				logger.Info("session_sweep_stopping")
				return
			}
			continue
		}

		select {
		case <-time.After(wait):
			if err := runOnce(ctx); err != nil {
				logger.Error("session_sweep_error", "error", err)
			}
		case <-ctx.Done():
			logger.Info("session_sweep_stopping")
			return
		}
	}
}

func runOnce(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	removed, err := store.SweepSessions(time.Now().UnixNano())
	if err != nil {
		return err
	}
	if removed > 0 {
		logger.Info("session_sweep_done", "removed", removed, "took", time.Since(start).String())
	}
	return nil
}
