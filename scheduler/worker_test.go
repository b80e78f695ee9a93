package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/beadswarm/beads/config"
	"github.com/beadswarm/beads/registry"
	"github.com/beadswarm/beads/task"
	"github.com/beadswarm/beads/types"
)

func (f *fixture) newWorker(t *testing.T, agent *registry.Agent, exec task.Executor, hook CompletionHook) *Worker {
	t.Helper()
	return NewWorker(WorkerOptions{
		Agent:      agent,
		Executor:   exec,
		Tasks:      f.tasks,
		Leases:     f.leases,
		Registry:   f.registry,
		Scheduler:  config.DefaultSchedulerConfig(),
		Clock:      f.clock,
		Logger:     zaptest.NewLogger(t),
		OnComplete: hook,
	})
}

func TestRunOnce_ClaimsAndCompletes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	agent := f.registerAgent(t, "w1", "go")

	tk, err := f.tasks.Create(ctx, &task.Task{Title: "build it", RequiredSkills: []string{"go"}})
	require.NoError(t, err)

	var hookCalled bool
	exec := task.ExecutorFunc(func(ctx context.Context, t *task.Task) (*task.Result, error) {
		return &task.Result{Payload: `{"ok":true}`}, nil
	})
	hook := func(ctx context.Context, t *task.Task, r *task.Result) error {
		hookCalled = true
		return nil
	}

	w := f.newWorker(t, agent, exec, hook)
	claimed, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.True(t, hookCalled)

	done, err := f.tasks.Get(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, done.Status)
	assert.Equal(t, `{"ok":true}`, done.Result)

	a, err := f.registry.Get(ctx, "w1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, a.TasksCompleted)
	assert.Empty(t, a.CurrentTaskID)
	assert.Equal(t, registry.StatusIdle, a.Status)
}

func TestRunOnce_NothingReady(t *testing.T) {
	f := newFixture(t)
	agent := f.registerAgent(t, "w1")

	w := f.newWorker(t, agent, task.ExecutorFunc(func(ctx context.Context, t *task.Task) (*task.Result, error) {
		return &task.Result{}, nil
	}), nil)

	claimed, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestRunOnce_SkillMismatchNotClaimed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	agent := f.registerAgent(t, "w1", "go")

	_, err := f.tasks.Create(ctx, &task.Task{Title: "rust only", RequiredSkills: []string{"rust"}})
	require.NoError(t, err)

	w := f.newWorker(t, agent, task.ExecutorFunc(func(ctx context.Context, t *task.Task) (*task.Result, error) {
		return &task.Result{}, nil
	}), nil)

	claimed, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestRunOnce_RecoverableFailureSchedulesRetry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	agent := f.registerAgent(t, "w1")

	tk, err := f.tasks.Create(ctx, &task.Task{Title: "flaky"})
	require.NoError(t, err)

	exec := task.ExecutorFunc(func(ctx context.Context, t *task.Task) (*task.Result, error) {
		return nil, errors.New("transient network error")
	})
	w := f.newWorker(t, agent, exec, nil)

	claimed, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.True(t, claimed)

	failed, err := f.tasks.Get(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusPendingRetry, failed.Status)
	assert.Equal(t, 1, failed.RetryCount)

	a, err := f.registry.Get(ctx, "w1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, a.TasksFailed)
}

func TestRunOnce_TypedNonRetryableFailureIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	agent := f.registerAgent(t, "w1")

	tk, err := f.tasks.Create(ctx, &task.Task{Title: "doomed"})
	require.NoError(t, err)

	exec := task.ExecutorFunc(func(ctx context.Context, t *task.Task) (*task.Result, error) {
		return nil, types.NewError(types.ErrValidation, "bad input").WithRetryable(false)
	})
	w := f.newWorker(t, agent, exec, nil)

	claimed, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.True(t, claimed)

	failed, err := f.tasks.Get(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusFailed, failed.Status)
	assert.Equal(t, string(types.ErrValidation), failed.FailureType)
}

func TestRunOnce_ReleasesLeasesAfterTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	agent := f.registerAgent(t, "w1")

	_, err := f.tasks.Create(ctx, &task.Task{Title: "edits files"})
	require.NoError(t, err)

	exec := task.ExecutorFunc(func(execCtx context.Context, t *task.Task) (*task.Result, error) {
		ok, err := f.leases.Acquire(execCtx, "/src/a.go", "w1", t.ID, time.Minute)
		if err != nil || !ok {
			return nil, errors.New("lease acquire failed")
		}
		return &task.Result{}, nil
	})
	w := f.newWorker(t, agent, exec, nil)

	claimed, err := w.RunOnce(ctx)
	require.NoError(t, err)
	require.True(t, claimed)

	held, err := f.leases.GetAgentLeases(ctx, "w1")
	require.NoError(t, err)
	assert.Empty(t, held)
}

func TestRun_ShutdownReleasesInFlightTask(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	agent := f.registerAgent(t, "w1")

	tk, err := f.tasks.Create(context.Background(), &task.Task{Title: "long haul"})
	require.NoError(t, err)

	started := make(chan struct{})
	exec := task.ExecutorFunc(func(execCtx context.Context, t *task.Task) (*task.Result, error) {
		close(started)
		<-execCtx.Done()
		return nil, execCtx.Err()
	})
	w := f.newWorker(t, agent, exec, nil)

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("executor never started")
	}
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}

	released, err := f.tasks.Get(context.Background(), tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusReady, released.Status)
	assert.Empty(t, released.AssignedAgent)

	a, err := f.registry.Get(context.Background(), "w1")
	require.NoError(t, err)
	assert.Equal(t, registry.StatusOffline, a.Status)
}

func TestFailureFromError(t *testing.T) {
	plain := failureFromError(errors.New("boom"))
	assert.True(t, plain.Recoverable)
	assert.Equal(t, "execution_error", plain.Type)

	typed := failureFromError(types.NewError(types.ErrExternalUnavailable, "provider down").WithRetryable(true))
	assert.True(t, typed.Recoverable)
	assert.Equal(t, string(types.ErrExternalUnavailable), typed.Type)

	fatal := failureFromError(types.NewError(types.ErrValidation, "bad").WithRetryable(false))
	assert.False(t, fatal.Recoverable)
}
