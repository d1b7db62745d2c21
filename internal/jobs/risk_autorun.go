package jobs

import (
	"context"
	"log"
	"time"

	"github.com/S-Kamath-01/InsightFlow-Edu/internal/config"
	"github.com/S-Kamath-01/InsightFlow-Edu/internal/risk"
)

// StartRiskAutoRun periodically re-runs risk detection. Whether a tick
// actually evaluates is controlled by the persisted rules, so operators can
// toggle auto-run without a restart.
func StartRiskAutoRun(ctx context.Context, cfg config.Config, runner *risk.Runner) {
	interval := cfg.RiskAutoRunInterval
	if interval <= 0 {
		return
	}
	timeout := cfg.RiskAutoRunTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tickCtx, cancel := context.WithTimeout(ctx, timeout)
				report, ran, err := runner.AutoRun(tickCtx)
				cancel()
				if err != nil {
					log.Printf("risk auto-run error: %v", err)
					continue
				}
				if ran && (report.Flagged > 0 || report.Resolved > 0) {
					log.Printf("risk auto-run flagged %d students, resolved %d flags", report.Flagged, report.Resolved)
				}
			}
		}
	}()
}
