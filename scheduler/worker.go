package scheduler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/beadswarm/beads/config"
	"github.com/beadswarm/beads/internal/metrics"
	"github.com/beadswarm/beads/internal/pool"
	"github.com/beadswarm/beads/lease"
	"github.com/beadswarm/beads/registry"
	"github.com/beadswarm/beads/task"
	"github.com/beadswarm/beads/types"
)

// CompletionHook runs in the REPORTING phase after a task completes,
// before the agent returns to idle. Typical use is recording a quality
// snapshot and checking it for regressions. A hook error is logged,
// never propagated: the task stays completed.
type CompletionHook func(ctx context.Context, t *task.Task, result *task.Result) error

// WorkerOptions configures a single agent's work loop.
type WorkerOptions struct {
	Agent    *registry.Agent
	Executor task.Executor

	Tasks    task.Store
	Leases   lease.Manager
	Registry registry.Registry

	Scheduler config.SchedulerConfig

	Clock      types.Clock
	Logger     *zap.Logger
	Metrics    *metrics.Collector
	OnComplete CompletionHook
}

// Worker is the per-agent work loop: it claims ready tasks matching the
// agent's skills, drives the executor, and reports outcomes back
// through the task store and registry.
type Worker struct {
	agent    *registry.Agent
	executor task.Executor

	tasks    task.Store
	leases   lease.Manager
	registry registry.Registry

	cfg        config.SchedulerConfig
	limiter    *rate.Limiter
	clock      types.Clock
	logger     *zap.Logger
	metrics    *metrics.Collector
	onComplete CompletionHook

	backoff time.Duration
}

// NewWorker constructs a Worker. The agent must already be registered.
func NewWorker(opts WorkerOptions) *Worker {
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
	if cfg.ClaimBackoffMin <= 0 {
		cfg.ClaimBackoffMin = defaults.ClaimBackoffMin
	}
	if cfg.ClaimBackoffMax <= 0 {
		cfg.ClaimBackoffMax = defaults.ClaimBackoffMax
	}

	var limiter *rate.Limiter
	if cfg.ClaimRateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.ClaimRateLimit), 1)
	}

	return &Worker{
		agent:      opts.Agent,
		executor:   opts.Executor,
		tasks:      opts.Tasks,
		leases:     opts.Leases,
		registry:   opts.Registry,
		cfg:        cfg,
		limiter:    limiter,
		clock:      clock,
		logger:     logger.With(zap.String("component", "worker"), zap.String("agent_id", opts.Agent.ID)),
		metrics:    opts.Metrics,
		onComplete: opts.OnComplete,
		backoff:    cfg.ClaimBackoffMin,
	}
}

// Run drives the work loop until ctx is cancelled. Cancellation is
// cooperative: an in-flight task is released back to ready and the
// agent's leases are dropped before Run returns.
func (w *Worker) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			w.shutdown()
			return err
		}

		claimed, err := w.RunOnce(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				w.shutdown()
				return err
			}
			w.logger.Warn("work loop iteration failed", zap.Error(err))
		}

		if claimed {
			w.backoff = w.cfg.ClaimBackoffMin
			continue
		}

		// Nothing ready: sleep with doubling backoff, capped.
		select {
		case <-ctx.Done():
			w.shutdown()
			return ctx.Err()
		case <-time.After(w.backoff):
		}
		w.backoff *= 2
		if w.backoff > w.cfg.ClaimBackoffMax {
			w.backoff = w.cfg.ClaimBackoffMax
		}
	}
}

// RunOnce performs a single IDLE->CLAIMING->WORKING->REPORTING pass,
// returning whether a task was claimed. Exported so tests and callers
// with their own loop can drive the state machine step by step.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	// IDLE: promote unblocked work and reset elapsed retries before
	// claiming, so this agent can pick them up in the same pass.
	if _, err := w.tasks.UpdateBlockedToReady(ctx); err != nil {
		return false, err
	}
	eligible, err := w.tasks.FindRetryEligible(ctx)
	if err != nil {
		return false, err
	}
	for _, t := range eligible {
		if err := w.tasks.ResetForRetry(ctx, t.ID); err != nil && types.KindOf(err) != types.ErrPrecondition {
			return false, err
		}
	}

	if err := w.heartbeat(ctx, registry.StatusIdle, ""); err != nil {
		w.logger.Warn("idle heartbeat failed", zap.Error(err))
	}

	// CLAIMING.
	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			return false, err
		}
	}

	start := w.clock.Now()
	t, err := w.tasks.Claim(ctx, w.agent.ID, task.Filter{Skills: w.agent.Capabilities.Skills})
	if err != nil {
		if w.metrics != nil {
			w.metrics.RecordTaskClaim(w.agent.ID, "error", w.clock.Now().Sub(start))
		}
		return false, err
	}
	if t == nil {
		if w.metrics != nil {
			w.metrics.RecordTaskClaim(w.agent.ID, "empty", w.clock.Now().Sub(start))
		}
		return false, nil
	}
	if w.metrics != nil {
		w.metrics.RecordTaskClaim(w.agent.ID, "claimed", w.clock.Now().Sub(start))
	}

	env := pool.GlobalTaskEnvelopePool.Get()
	env.TaskID = t.ID
	env.AgentID = w.agent.ID
	env.Attempt = t.RetryCount
	defer pool.GlobalTaskEnvelopePool.Put(env)

	w.runTask(ctx, t)
	return true, nil
}

// runTask is the WORKING and REPORTING/FAILED phases for one claimed
// task.
func (w *Worker) runTask(ctx context.Context, t *task.Task) {
	if err := w.registry.SetCurrentTask(ctx, w.agent.ID, t.ID); err != nil {
		w.logger.Warn("failed to set current task", zap.Error(err))
	}
	if err := w.heartbeat(ctx, registry.StatusBusy, t.ID); err != nil {
		w.logger.Warn("busy heartbeat failed", zap.Error(err))
	}

	started := w.clock.Now()
	hbCtx, stopHeartbeats := context.WithCancel(ctx)
	go w.heartbeatLoop(hbCtx, t.ID)

	result, execErr := w.executor.Execute(ctx, t)
	stopHeartbeats()

	runtimeMin := int64(w.clock.Now().Sub(started) / time.Minute)

	if ctx.Err() != nil && execErr != nil {
		// Shutdown mid-task: hand the claim back instead of burning a
		// retry. The loop context is already cancelled, so use a short
		// grace context for the release.
		graceCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := w.tasks.Release(graceCtx, t.ID, w.agent.ID); err != nil {
			w.logger.Warn("failed to release task on shutdown", zap.String("task_id", t.ID), zap.Error(err))
		}
		return
	}

	if execErr != nil {
		w.reportFailure(ctx, t, execErr, runtimeMin)
	} else {
		w.reportSuccess(ctx, t, result, runtimeMin)
	}

	// Any leases the executor took for this task are done with.
	if err := w.leases.ReleaseAll(ctx, w.agent.ID); err != nil {
		w.logger.Warn("failed to release leases", zap.Error(err))
	}
	if err := w.registry.SetCurrentTask(ctx, w.agent.ID, ""); err != nil {
		w.logger.Warn("failed to clear current task", zap.Error(err))
	}
	if err := w.heartbeat(ctx, registry.StatusIdle, ""); err != nil {
		w.logger.Warn("idle heartbeat failed", zap.Error(err))
	}
}

func (w *Worker) reportSuccess(ctx context.Context, t *task.Task, result *task.Result, runtimeMin int64) {
	res := task.Result{}
	if result != nil {
		res = *result
	}
	if err := w.tasks.Complete(ctx, t.ID, res); err != nil {
		w.logger.Error("failed to complete task", zap.String("task_id", t.ID), zap.Error(err))
		return
	}
	if w.metrics != nil {
		w.metrics.RecordTaskStateTransition(string(task.StatusClaimed), string(task.StatusCompleted))
	}
	if err := w.registry.UpdateStats(ctx, w.agent.ID, true, runtimeMin); err != nil {
		w.logger.Warn("failed to update stats", zap.Error(err))
	}
	if w.onComplete != nil {
		if err := w.onComplete(ctx, t, &res); err != nil {
			w.logger.Warn("completion hook failed", zap.String("task_id", t.ID), zap.Error(err))
		}
	}
	w.logger.Info("task completed", zap.String("task_id", t.ID))
}

func (w *Worker) reportFailure(ctx context.Context, t *task.Task, execErr error, runtimeMin int64) {
	failure := failureFromError(execErr)
	if err := w.tasks.Fail(ctx, t.ID, failure); err != nil {
		w.logger.Error("failed to record task failure", zap.String("task_id", t.ID), zap.Error(err))
		return
	}
	if w.metrics != nil {
		w.metrics.RecordTaskStateTransition(string(task.StatusClaimed), string(task.StatusFailed))
	}
	if err := w.registry.UpdateStats(ctx, w.agent.ID, false, runtimeMin); err != nil {
		w.logger.Warn("failed to update stats", zap.Error(err))
	}
	w.logger.Warn("task failed",
		zap.String("task_id", t.ID),
		zap.String("failure_type", failure.Type),
		zap.Bool("recoverable", failure.Recoverable))
}

// heartbeatLoop emits busy heartbeats while the executor runs, so the
// stale reaper does not mistake a long task for a dead agent.
func (w *Worker) heartbeatLoop(ctx context.Context, taskID string) {
	ticker := time.NewTicker(w.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.heartbeat(ctx, registry.StatusBusy, taskID); err != nil {
				w.logger.Warn("heartbeat failed", zap.Error(err))
			}
		}
	}
}

func (w *Worker) heartbeat(ctx context.Context, status registry.Status, taskID string) error {
	return w.registry.Heartbeat(ctx, w.agent.ID, registry.HeartbeatUpdate{
		Status:        status,
		CurrentTask:   taskID,
		HasTaskUpdate: true,
	})
}

// shutdown drops everything the agent holds, with a short grace window
// independent of the cancelled loop context.
func (w *Worker) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := w.leases.ReleaseAll(ctx, w.agent.ID); err != nil {
		w.logger.Warn("failed to release leases on shutdown", zap.Error(err))
	}
	if err := w.registry.Heartbeat(ctx, w.agent.ID, registry.HeartbeatUpdate{Status: registry.StatusOffline}); err != nil {
		w.logger.Warn("failed to mark agent offline", zap.Error(err))
	}
}

// failureFromError maps an executor error to a task.Failure. A typed
// *types.Error carries its own retryability; anything else is treated
// as recoverable so transient crashes get their retries.
func failureFromError(err error) task.Failure {
	var te *types.Error
	if errors.As(err, &te) {
		return task.Failure{
			Message:     te.Message,
			Type:        string(te.Kind),
			Recoverable: te.Retryable,
		}
	}
	return task.Failure{
		Message:     err.Error(),
		Type:        "execution_error",
		Recoverable: true,
	}
}
