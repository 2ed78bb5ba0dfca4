package handlers

import (
	"context"
	"time"

	"github.com/EchoLayerS/EchoLayer/pkg/logging"
)

// JobManager handles the periodic maintenance jobs: rolling the reward pool
// over to a new period and expiring stale resonance loop state.
type JobManager struct {
	logger logging.Logger
	stopCh chan struct{}

	poolResetEnabled bool
}

// NewJobManager creates a new job manager. When poolResetEnabled is false the
// pool only rolls over through the HTTP reset endpoint.
func NewJobManager(log logging.Logger, poolResetEnabled bool) *JobManager {
	return &JobManager{
		logger:           log,
		stopCh:           make(chan struct{}),
		poolResetEnabled: poolResetEnabled,
	}
}

// Start begins all background jobs
func (jm *JobManager) Start(ctx context.Context) {
	jm.logger.Info("Starting job manager")

	if jm.poolResetEnabled {
		go jm.runPoolReset(ctx)
	}
	go jm.runLoopCleanup(ctx)
}

// Stop stops all background jobs
func (jm *JobManager) Stop() {
	jm.logger.Info("Stopping job manager")
	close(jm.stopCh)
}

// runPoolReset rolls the reward pool over when the UTC day changes. The reset
// drains deferred transactions into the fresh budget.
func (jm *JobManager) runPoolReset(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	jm.logger.Info("Starting pool reset job")

	for {
		select {
		case <-ctx.Done():
			return
		case <-jm.stopCh:
			return
		case <-ticker.C:
			period := time.Now().UTC().Format("2006-01-02")
			if allocator.PoolStatus().Period == period {
				continue
			}
			resetPoolForPeriod(ctx, period)
		}
	}
}

// runLoopCleanup expires resonance loop state that has gone quiet past the
// detection window.
func (jm *JobManager) runLoopCleanup(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	jm.logger.Info("Starting loop cleanup job")

	for {
		select {
		case <-ctx.Done():
			return
		case <-jm.stopCh:
			return
		case <-ticker.C:
			cleaned := propGraph.CleanupExpiredLoops(time.Now())
			if cleaned > 0 {
				jm.logger.WithFields(logging.Fields{
					"cleaned": cleaned,
				}).Info("Expired stale resonance loops")
			}
			metrics.GraphSize.WithLabelValues("content").Set(float64(propGraph.Analytics().TrackedContent))
		}
	}
}
