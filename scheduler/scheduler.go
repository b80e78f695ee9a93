package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/beadswarm/beads/bus"
	"github.com/beadswarm/beads/config"
	"github.com/beadswarm/beads/internal/metrics"
	"github.com/beadswarm/beads/internal/pool"
	"github.com/beadswarm/beads/lease"
	"github.com/beadswarm/beads/registry"
	"github.com/beadswarm/beads/task"
	"github.com/beadswarm/beads/types"
)

// Options bundles the stores and policies a Scheduler runs against.
// Metrics is optional; a nil collector disables instrumentation.
type Options struct {
	Tasks    task.Store
	Leases   lease.Manager
	Bus      bus.Bus
	Registry registry.Registry
	Reaper   *registry.Reaper

	Scheduler config.SchedulerConfig
	Lease     config.LeaseConfig
	BusCfg    config.BusConfig

	Clock   types.Clock
	Logger  *zap.Logger
	Metrics *metrics.Collector

	// MaxWorkers bounds concurrently running agent loops. Defaults to
	// the worker pool's default when zero.
	MaxWorkers int
}

// Scheduler runs the coordinator's background sweeps and hosts the
// per-agent work loops on a bounded worker pool.
type Scheduler struct {
	tasks    task.Store
	leases   lease.Manager
	msgs     bus.Bus
	registry registry.Registry
	reaper   *registry.Reaper

	cfg      config.SchedulerConfig
	leaseCfg config.LeaseConfig
	busCfg   config.BusConfig

	clock   types.Clock
	logger  *zap.Logger
	metrics *metrics.Collector
	workers *pool.WorkerPool
}

// New constructs a Scheduler. Zero-valued intervals fall back to the
// package defaults from config.
func New(opts Options) *Scheduler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := opts.Clock
	if clock == nil {
		clock = types.SystemClock{}
	}
	cfg := opts.Scheduler
	defaults := config.DefaultSchedulerConfig()
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaults.HeartbeatInterval
	}
	if cfg.StaleMultiplier <= 0 {
		cfg.StaleMultiplier = defaults.StaleMultiplier
	}
	if cfg.ReaperInterval <= 0 {
		cfg.ReaperInterval = defaults.ReaperInterval
	}
	if cfg.RetrySweepInterval <= 0 {
		cfg.RetrySweepInterval = defaults.RetrySweepInterval
	}
	if cfg.ClaimBackoffMin <= 0 {
		cfg.ClaimBackoffMin = defaults.ClaimBackoffMin
	}
	if cfg.ClaimBackoffMax <= 0 {
		cfg.ClaimBackoffMax = defaults.ClaimBackoffMax
	}

	poolCfg := pool.DefaultWorkerPoolConfig()
	if opts.MaxWorkers > 0 {
		poolCfg.MaxWorkers = opts.MaxWorkers
	}

	return &Scheduler{
		tasks:    opts.Tasks,
		leases:   opts.Leases,
		msgs:     opts.Bus,
		registry: opts.Registry,
		reaper:   opts.Reaper,
		cfg:      cfg,
		leaseCfg: opts.Lease,
		busCfg:   opts.BusCfg,
		clock:    clock,
		logger:   logger.With(zap.String("component", "scheduler")),
		metrics:  opts.Metrics,
		workers:  pool.NewWorkerPool(poolCfg),
	}
}

// Run starts the background sweeps and blocks until ctx is cancelled.
// Worker loops are started separately via StartAgent and share ctx's
// lifetime through the worker pool.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.reaperLoop(ctx) })
	g.Go(func() error { return s.retrySweepLoop(ctx) })
	if s.msgs != nil {
		g.Go(func() error { return s.messageExpiryLoop(ctx) })
	}
	if s.leases != nil && s.leaseCfg.SweepInterval > 0 {
		g.Go(func() error { return s.leaseSweepLoop(ctx) })
	}

	err := g.Wait()
	s.workers.Close()
	if err == context.Canceled {
		return nil
	}
	return err
}

// StartAgent submits w's work loop to the pool. The loop runs until
// ctx is cancelled.
func (s *Scheduler) StartAgent(ctx context.Context, w *Worker) error {
	return s.workers.Submit(ctx, func(ctx context.Context) error {
		return w.Run(ctx)
	})
}

// StaleThreshold returns the reaper's staleness cutoff in
// milliseconds: heartbeat interval times the stale multiplier.
func (s *Scheduler) StaleThreshold() int64 {
	return int64(s.cfg.StaleMultiplier) * s.cfg.HeartbeatInterval.Milliseconds()
}

// reaperLoop periodically reaps agents whose heartbeats lapsed,
// releasing their leases and resetting their claimed tasks.
func (s *Scheduler) reaperLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.ReaperInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			results, err := s.reaper.Sweep(ctx, s.StaleThreshold())
			if err != nil {
				s.logger.Warn("stale reaper sweep failed", zap.Error(err))
				continue
			}
			for _, r := range results {
				s.logger.Info("reaped stale agent",
					zap.String("agent_id", r.AgentID),
					zap.Int("tasks_reset", r.TasksReset))
				if s.metrics != nil {
					s.metrics.RecordTaskStateTransition(string(task.StatusInProgress), string(task.StatusReady))
				}
			}
		}
	}
}

// retrySweepLoop promotes blocked tasks whose dependencies completed
// and resets retry-eligible tasks back to ready.
func (s *Scheduler) retrySweepLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.RetrySweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.SweepOnce(ctx); err != nil {
				s.logger.Warn("retry sweep failed", zap.Error(err))
			}
		}
	}
}

// SweepOnce performs a single promote-and-reset pass: blocked tasks
// whose dependencies are all complete become ready, and pending_retry
// tasks whose backoff elapsed are reset for re-claim.
func (s *Scheduler) SweepOnce(ctx context.Context) error {
	promoted, err := s.tasks.UpdateBlockedToReady(ctx)
	if err != nil {
		return err
	}
	if promoted > 0 {
		s.logger.Debug("promoted blocked tasks", zap.Int("count", promoted))
	}

	eligible, err := s.tasks.FindRetryEligible(ctx)
	if err != nil {
		return err
	}
	for _, t := range eligible {
		if err := s.tasks.ResetForRetry(ctx, t.ID); err != nil {
			// Another sweeper or worker got there first.
			if types.KindOf(err) == types.ErrPrecondition {
				continue
			}
			return err
		}
		if s.metrics != nil {
			s.metrics.RecordTaskRetry(t.FailureType)
		}
	}
	return nil
}

// messageExpiryLoop deletes expired bus messages on a fixed cadence.
func (s *Scheduler) messageExpiryLoop(ctx context.Context) error {
	interval := s.busCfg.ExpirySweepInterval
	if interval <= 0 {
		interval = config.DefaultBusConfig().ExpirySweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := s.msgs.DeleteExpired(ctx)
			if err != nil {
				s.logger.Warn("message expiry sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				s.logger.Debug("deleted expired messages", zap.Int64("count", n))
			}
		}
	}
}

// leaseSweepLoop force-releases leases whose expiry passed, so a
// crashed holder does not shadow the path until its next acquire.
func (s *Scheduler) leaseSweepLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.leaseCfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			expired, err := s.leases.FindExpired(ctx)
			if err != nil {
				s.logger.Warn("lease sweep failed", zap.Error(err))
				continue
			}
			for _, l := range expired {
				if err := s.leases.ForceRelease(ctx, l.FilePath); err != nil {
					s.logger.Warn("failed to force-release expired lease",
						zap.String("file_path", l.FilePath), zap.Error(err))
					continue
				}
				if s.metrics != nil {
					s.metrics.RecordLeaseExpired()
				}
			}
		}
	}
}
