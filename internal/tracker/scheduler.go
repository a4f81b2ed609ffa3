package tracker

import (
	"context"
	"log/slog"
	"time"

	"armtracker/internal/arm"
	"armtracker/internal/platform/metrics"
	"armtracker/internal/robot"
	"armtracker/internal/store"
)

// saveTimeout bounds the best-effort store write inside a tick.
const saveTimeout = 2 * time.Second

// scheduler drives one robot's periodic recompute-and-publish cycle. Each
// robot gets its own scheduler goroutine, so a slow tick on one robot never
// delays another's.
type scheduler struct {
	state    *robot.State
	store    store.Store
	fanout   *fanout
	interval time.Duration
	log      *slog.Logger
	metrics  *metrics.Metrics
}

// run fires ticks at the configured interval until ctx is cancelled. Ticks
// execute inline in this loop, so at most one is ever in flight per robot;
// a tick that outlasts the interval makes the ticker coalesce the missed
// firings instead of queueing them.
func (s *scheduler) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick snapshots the robot's state, computes the pose, persists it
// best-effort, and hands the result to the fan-out. A cancelled context
// abandons the tick before any store write.
func (s *scheduler) tick(ctx context.Context) {
	start := time.Now()

	angles, version, updatedAt := s.state.Snapshot()
	pose, err := arm.ComputePose(s.state.Topology(), angles)
	if err != nil {
		// Arity is pinned at construction, so this only fires on a bug.
		s.log.Error("forward kinematics failed", slog.String("error", err.Error()))
		return
	}

	if ctx.Err() != nil {
		return
	}

	rec := store.Record{
		RobotID:   s.state.ID(),
		Angles:    angles,
		Version:   version,
		Timestamp: updatedAt,
	}
	saveCtx, cancel := context.WithTimeout(ctx, saveTimeout)
	if err := s.store.Save(saveCtx, rec); err != nil {
		// A stale store is recoverable; a missed pose update is not worth
		// delaying for. Keep publishing.
		s.log.Error("state save failed", slog.String("error", err.Error()))
		s.metrics.IncStoreSaveErrors()
	}
	cancel()

	payload, err := EncodePose(s.state.ID(), pose, version, updatedAt)
	if err != nil {
		s.log.Error("pose encode failed", slog.String("error", err.Error()))
		return
	}
	s.fanout.publish(ctx, s.state.ID(), payload)

	s.metrics.IncTicks()
	if elapsed := time.Since(start); elapsed > s.interval {
		s.log.Warn("tick overran interval",
			slog.Duration("elapsed", elapsed),
			slog.Duration("interval", s.interval))
		s.metrics.IncTickOverruns()
	}
}
