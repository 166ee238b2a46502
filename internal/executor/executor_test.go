package executor

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/autopilot/internal/config"
	"github.com/harrison/autopilot/internal/directive"
	"github.com/harrison/autopilot/internal/memory"
	"github.com/harrison/autopilot/internal/models"
)

type stubEvaluator struct {
	allowed    bool
	violations []string
	err        error
}

func (s *stubEvaluator) EvaluateAction(ctx context.Context, description, actionType string, actionCtx map[string]interface{}) (directive.Decision, error) {
	if s.err != nil {
		return directive.Decision{}, s.err
	}
	return directive.Decision{
		Allowed:       s.allowed,
		Confidence:    0.9,
		GoalAlignment: 0.6,
		Violations:    s.violations,
	}, nil
}

func testConfig() config.ExecutionConfig {
	return config.ExecutionConfig{
		MaxRetries:         3,
		RetryDelaySeconds:  0,
		MaxConcurrentTasks: 3,
		TaskTimeoutSeconds: 5,
	}
}

func newTestExecutor(t *testing.T) (*Executor, *memory.InMemoryStore) {
	t.Helper()
	store := memory.NewInMemoryStore()
	exec := New(testConfig(), &stubEvaluator{allowed: true}, store, NewSimBackend(), nil)
	return exec, store
}

func readyTask(id, title, actionType string, priority models.TaskPriority) *models.Task {
	return &models.Task{
		ID:         id,
		Title:      title,
		ActionType: actionType,
		Priority:   priority,
		Status:     models.StatusReady,
		MaxRetries: 3,
		CreatedAt:  time.Now(),
	}
}

func TestExecuteTaskSuccess(t *testing.T) {
	exec, store := newTestExecutor(t)

	task := readyTask("t1", "Validate inputs", "validation", models.PriorityMedium)
	result := exec.ExecuteTask(context.Background(), task)

	require.True(t, result.Success)
	assert.Equal(t, models.StatusCompleted, task.Status)
	assert.Equal(t, 0, result.RetryCount)
	assert.NotNil(t, task.Result)
	require.NotNil(t, task.StartedAt)
	require.NotNil(t, task.CompletedAt)

	entries, err := store.ByType(context.Background(), memory.TypeExecution, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 0.8, entries[0].Importance)
	assert.Contains(t, entries[0].Content, "SUCCESS")
}

func TestExecuteTaskDirectiveDenied(t *testing.T) {
	store := memory.NewInMemoryStore()
	exec := New(testConfig(), &stubEvaluator{allowed: false, violations: []string{"harmful action"}}, store, NewSimBackend(), nil)

	var attempts atomic.Int32
	exec.RegisterHandler("system_command", func(ctx context.Context, task *models.Task) (map[string]interface{}, error) {
		attempts.Add(1)
		return map[string]interface{}{"executed": true}, nil
	})

	task := readyTask("t1", "Wipe disk", "system_command", models.PriorityHigh)
	result := exec.ExecuteTask(context.Background(), task)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "blocked by directive")
	assert.Contains(t, result.Error, "harmful action")
	assert.Equal(t, int32(0), attempts.Load(), "denied task must not invoke its handler")
	assert.Equal(t, 0, result.RetryCount)

	// The task itself is left for the caller to resolve.
	assert.Equal(t, models.StatusReady, task.Status)
	assert.Nil(t, task.StartedAt)
	assert.Nil(t, task.CompletedAt)
	assert.Empty(t, task.Error)
}

func TestExecuteTaskRetriesExhausted(t *testing.T) {
	exec, store := newTestExecutor(t)

	var attempts atomic.Int32
	exec.RegisterHandler("flaky", func(ctx context.Context, task *models.Task) (map[string]interface{}, error) {
		attempts.Add(1)
		return nil, fmt.Errorf("transient failure")
	})

	task := readyTask("t1", "Flaky work", "flaky", models.PriorityMedium)
	task.MaxRetries = 3
	result := exec.ExecuteTask(context.Background(), task)

	assert.False(t, result.Success)
	assert.Equal(t, int32(4), attempts.Load(), "expected first attempt plus three retries")
	assert.Equal(t, 3, result.RetryCount)
	assert.Equal(t, models.StatusFailed, task.Status)
	assert.Contains(t, result.Error, "transient failure")

	entries, err := store.ByType(context.Background(), memory.TypeExecution, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 0.9, entries[0].Importance, "failures are more important to remember")
}

func TestExecuteTaskRecoversAfterRetry(t *testing.T) {
	exec, _ := newTestExecutor(t)

	var attempts atomic.Int32
	exec.RegisterHandler("flaky", func(ctx context.Context, task *models.Task) (map[string]interface{}, error) {
		if attempts.Add(1) < 3 {
			return nil, fmt.Errorf("not yet")
		}
		return map[string]interface{}{"executed": true}, nil
	})

	task := readyTask("t1", "Eventually works", "flaky", models.PriorityMedium)
	result := exec.ExecuteTask(context.Background(), task)

	assert.True(t, result.Success)
	assert.Equal(t, 2, result.RetryCount)
	assert.Equal(t, models.StatusCompleted, task.Status)
}

func TestSequentialCriticalFailureCancelsRemainder(t *testing.T) {
	exec, _ := newTestExecutor(t)

	exec.RegisterHandler("boom", func(ctx context.Context, task *models.Task) (map[string]interface{}, error) {
		return nil, fmt.Errorf("unrecoverable")
	})

	tasks := []*models.Task{
		readyTask("t1", "Step one", "validation", models.PriorityMedium),
		readyTask("t2", "Step two", "boom", models.PriorityCritical),
		readyTask("t3", "Step three", "validation", models.PriorityMedium),
		readyTask("t4", "Step four", "validation", models.PriorityMedium),
	}
	tasks[1].MaxRetries = 0

	results, err := exec.ExecuteTasks(context.Background(), tasks, ModeSequential)
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.True(t, results[2].Skipped)
	assert.True(t, results[3].Skipped)
	assert.Equal(t, models.StatusCancelled, tasks[2].Status)
	assert.Equal(t, models.StatusCancelled, tasks[3].Status)
}

func TestSequentialNonCriticalFailureContinues(t *testing.T) {
	exec, _ := newTestExecutor(t)

	exec.RegisterHandler("boom", func(ctx context.Context, task *models.Task) (map[string]interface{}, error) {
		return nil, fmt.Errorf("unrecoverable")
	})

	tasks := []*models.Task{
		readyTask("t1", "Step one", "boom", models.PriorityHigh),
		readyTask("t2", "Step two", "validation", models.PriorityMedium),
	}
	tasks[0].MaxRetries = 0

	results, err := exec.ExecuteTasks(context.Background(), tasks, ModeSequential)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.False(t, results[0].Success)
	assert.True(t, results[1].Success)
}

func TestParallelResultsAlignedToInputOrder(t *testing.T) {
	exec, _ := newTestExecutor(t)

	tasks := make([]*models.Task, 6)
	for i := range tasks {
		tasks[i] = readyTask(fmt.Sprintf("t%d", i), fmt.Sprintf("Task %d", i), "validation", models.PriorityMedium)
	}

	results, err := exec.ExecuteTasks(context.Background(), tasks, ModeParallel)
	require.NoError(t, err)
	require.Len(t, results, 6)

	for i, result := range results {
		assert.Equal(t, tasks[i].ID, result.TaskID)
		assert.True(t, result.Success)
	}
}

func TestParallelPanicIsolation(t *testing.T) {
	exec, _ := newTestExecutor(t)

	exec.RegisterHandler("explode", func(ctx context.Context, task *models.Task) (map[string]interface{}, error) {
		panic("handler blew up")
	})

	tasks := []*models.Task{
		readyTask("t1", "Fine", "validation", models.PriorityMedium),
		readyTask("t2", "Panics", "explode", models.PriorityMedium),
		readyTask("t3", "Also fine", "validation", models.PriorityMedium),
	}
	tasks[1].MaxRetries = 0

	results, err := exec.ExecuteTasks(context.Background(), tasks, ModeParallel)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.Contains(t, strings.ToLower(results[1].Error), "panic")
	assert.True(t, results[2].Success)
}

func TestParallelSkipsNotReady(t *testing.T) {
	exec, _ := newTestExecutor(t)

	tasks := []*models.Task{
		readyTask("t1", "Ready", "validation", models.PriorityMedium),
		readyTask("t2", "Pending", "validation", models.PriorityMedium),
	}
	tasks[1].Status = models.StatusPending

	results, err := exec.ExecuteTasks(context.Background(), tasks, ModeParallel)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].Success)
	assert.True(t, results[1].Skipped)
}

func TestBatchExecutesAllInChunks(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConcurrentTasks = 2
	exec := New(cfg, &stubEvaluator{allowed: true}, memory.NewInMemoryStore(), NewSimBackend(), nil)

	var running, peak atomic.Int32
	exec.RegisterHandler("tracked", func(ctx context.Context, task *models.Task) (map[string]interface{}, error) {
		cur := running.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		running.Add(-1)
		return map[string]interface{}{"executed": true}, nil
	})

	tasks := make([]*models.Task, 5)
	for i := range tasks {
		tasks[i] = readyTask(fmt.Sprintf("t%d", i), fmt.Sprintf("Task %d", i), "tracked", models.PriorityMedium)
	}

	results, err := exec.ExecuteTasks(context.Background(), tasks, ModeBatch)
	require.NoError(t, err)
	require.Len(t, results, 5)
	for _, result := range results {
		assert.True(t, result.Success)
	}
	assert.LessOrEqual(t, peak.Load(), int32(2), "batch must not exceed configured concurrency")
}

func TestExecuteTasksUnknownMode(t *testing.T) {
	exec, _ := newTestExecutor(t)
	_, err := exec.ExecuteTasks(context.Background(), nil, Mode("streaming"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported execution mode")
}

func TestExecutionStats(t *testing.T) {
	exec, _ := newTestExecutor(t)

	exec.RegisterHandler("boom", func(ctx context.Context, task *models.Task) (map[string]interface{}, error) {
		return nil, fmt.Errorf("nope")
	})

	ok := readyTask("t1", "Works", "validation", models.PriorityMedium)
	bad := readyTask("t2", "Fails", "boom", models.PriorityMedium)
	bad.MaxRetries = 1

	exec.ExecuteTask(context.Background(), ok)
	exec.ExecuteTask(context.Background(), bad)

	stats := exec.ExecutionStats()
	assert.Equal(t, 2, stats.TotalExecutions)
	assert.Equal(t, 1, stats.SuccessfulExecutions)
	assert.InDelta(t, 0.5, stats.SuccessRate, 1e-9)
	assert.Equal(t, 1, stats.TotalRetries)
}

func TestDefaultHandlerFallback(t *testing.T) {
	exec, _ := newTestExecutor(t)

	task := readyTask("t1", "Mystery work", "unregistered_type", models.PriorityMedium)
	result := exec.ExecuteTask(context.Background(), task)

	require.True(t, result.Success)
	assert.Equal(t, true, result.Output["executed"])
	assert.Contains(t, result.Output["message"], "unregistered_type")
}

func TestSimBackendCommand(t *testing.T) {
	b := NewSimBackend()
	ctx := context.Background()

	out, err := b.ExecuteCommand(ctx, "echo hello", "", time.Second)
	require.NoError(t, err)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, 0, out["exit_code"])

	out, err = b.ExecuteCommand(ctx, "always-fail now", "", time.Second)
	require.NoError(t, err)
	assert.Equal(t, false, out["success"])
	assert.Equal(t, 1, out["exit_code"])

	_, err = b.ExecuteCommand(ctx, "", "", time.Second)
	require.Error(t, err)
}

func TestSimBackendFileOperations(t *testing.T) {
	b := NewSimBackend()
	ctx := context.Background()

	_, err := b.ExecuteFileOperation(ctx, "write", "/tmp/a.txt", "hello", nil)
	require.NoError(t, err)

	out, err := b.ExecuteFileOperation(ctx, "read", "/tmp/a.txt", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", out["content"])

	_, err = b.ExecuteFileOperation(ctx, "copy", "/tmp/a.txt", "", map[string]interface{}{"destination": "/tmp/b.txt"})
	require.NoError(t, err)

	_, err = b.ExecuteFileOperation(ctx, "delete", "/tmp/a.txt", "", nil)
	require.NoError(t, err)

	_, err = b.ExecuteFileOperation(ctx, "read", "/tmp/a.txt", "", nil)
	require.Error(t, err)

	out, err = b.ExecuteFileOperation(ctx, "read", "/tmp/b.txt", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", out["content"])
}

func TestSimBackendAPICall(t *testing.T) {
	b := NewSimBackend()
	ctx := context.Background()

	out, err := b.ExecuteAPICall(ctx, "GET", "https://example.com/api", nil, nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 200, out["status_code"])

	_, err = b.ExecuteAPICall(ctx, "GET", "https://unreachable.example.com", nil, nil, time.Second)
	require.Error(t, err)
}
