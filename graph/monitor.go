package graph

import (
	"context"
	"time"
)

// StaleExecutionTimeout is the wall-clock age at which the monitor
// considers an in-flight execution stuck and cancels it, matching the
// original execution_monitor's 3600s cap.
const StaleExecutionTimeout = time.Hour

// staleCheckInterval is how often the monitor sweeps for stale
// executions, matching the original's 60s tick.
const staleCheckInterval = 60 * time.Second

// MonitorLogger receives a warning when the monitor cancels a stale
// execution. Optional; nil disables logging from the monitor.
type MonitorLogger interface {
	Warnw(msg string, keysAndValues ...interface{})
}

// RunMonitor periodically scans the engine's in-flight executions and
// cancels any older than StaleExecutionTimeout, matching the original
// _execution_monitor background task. It blocks until ctx is done, so
// callers run it in its own goroutine.
func (e *Engine) RunMonitor(ctx context.Context, logger MonitorLogger) {
	ticker := time.NewTicker(staleCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, execID := range e.StaleExecutions(StaleExecutionTimeout) {
				if logger != nil {
					logger.Warnw("cancelling stale execution", "exec_id", execID)
				}
				e.Cancel(execID)
			}
		}
	}
}
