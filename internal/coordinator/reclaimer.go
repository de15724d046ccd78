package coordinator

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/l54808821/swarmpool/pkg/types"
)

// sweepTimeout bounds one reclaim pass against a wedged store.
const sweepTimeout = 30 * time.Second

// CleanupStaleClaims returns expired claims to the pending pool and reports
// how many were reclaimed.
//
// A task is reclaimed only when both hold: its claim is older than
// leaseTimeout AND its owner's heartbeat is absent or older than the same
// window. An agent that heartbeats while grinding on a long task keeps its
// claim. Each reclaim is a single conditional update that re-checks owner,
// status and claim age, so a concurrent complete, fail or re-claim wins
// harmlessly.
func (c *Coordinator) CleanupStaleClaims(ctx context.Context, leaseTimeout time.Duration) (int64, error) {
	cutoff := time.Now().Add(-leaseTimeout)

	expired, err := c.store.ListExpiredClaims(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	var reclaimed int64
	for _, task := range expired {
		last, ok, err := c.registry.LastSeen(ctx, task.ClaimedBy)
		if err != nil {
			// Registry unreachable: do not reclaim on missing evidence.
			c.log.Warn("heartbeat lookup failed, skipping reclaim",
				zap.String("task", task.ID), zap.String("agent", task.ClaimedBy), zap.Error(err))
			continue
		}
		if ok && !last.Before(cutoff) {
			// Owner is slow on this task but still alive.
			continue
		}

		released, err := c.store.Release(ctx, task.ID, task.ClaimedBy, cutoff)
		if err != nil {
			return reclaimed, err
		}
		if released {
			reclaimed++
			c.log.Info("task reclaimed",
				zap.String("task", task.ID),
				zap.String("agent", task.ClaimedBy),
				zap.Duration("claimAge", time.Since(*task.ClaimedAt)))
		}
	}
	return reclaimed, nil
}

// Reclaimer runs CleanupStaleClaims on a fixed schedule and closes the
// session once the swarm completes.
type Reclaimer struct {
	coord *Coordinator
	sched gocron.Scheduler
}

// StartReclaimer starts the periodic sweep using the coordinator's
// cleanup interval and lease timeout.
func (c *Coordinator) StartReclaimer() (*Reclaimer, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	r := &Reclaimer{coord: c, sched: sched}
	_, err = sched.NewJob(
		gocron.DurationJob(c.cfg.CleanupInterval()),
		gocron.NewTask(r.sweep),
	)
	if err != nil {
		return nil, err
	}

	sched.Start()
	c.log.Info("reclaimer started",
		zap.Duration("interval", c.cfg.CleanupInterval()),
		zap.Duration("lease", c.cfg.LeaseTimeout()))
	return r, nil
}

// Stop shuts the scheduler down, waiting for a running sweep to finish.
func (r *Reclaimer) Stop() error {
	return r.sched.Shutdown()
}

func (r *Reclaimer) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	n, err := r.coord.CleanupStaleClaims(ctx, r.coord.cfg.LeaseTimeout())
	if err != nil {
		if types.IsStoreUnavailable(err) {
			r.coord.log.Warn("reclaim sweep skipped, store unavailable", zap.Error(err))
		} else {
			r.coord.log.Error("reclaim sweep failed", zap.Error(err))
		}
		return
	}
	if n > 0 {
		r.coord.log.Info("reclaim sweep finished", zap.Int64("reclaimed", n))
	}

	if _, err := r.coord.CloseSessionIfComplete(ctx); err != nil {
		r.coord.log.Warn("session completion check failed", zap.Error(err))
	}
}
