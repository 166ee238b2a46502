// Package executor runs tasks through registered action handlers with
// retry, timeout and bounded-concurrency semantics.
//
// Every task is checked against the prime directive before its first
// attempt; a denial fails the task immediately without consuming
// retries. Every execution, successful or not, is persisted to memory as
// an execution experience.
package executor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/harrison/autopilot/internal/config"
	"github.com/harrison/autopilot/internal/directive"
	"github.com/harrison/autopilot/internal/logger"
	"github.com/harrison/autopilot/internal/memory"
	"github.com/harrison/autopilot/internal/models"
)

// Mode selects how ExecuteTasks schedules a set of tasks.
type Mode string

// Execution modes.
const (
	ModeSequential Mode = "sequential"
	ModeParallel   Mode = "parallel"
	ModeBatch      Mode = "batch"
)

// Executor runs tasks through the handler registry.
type Executor struct {
	cfg       config.ExecutionConfig
	evaluator directive.Evaluator
	store     memory.Store
	backend   Backend
	log       logger.Logger

	mu       sync.Mutex
	handlers map[string]HandlerFunc
	history  []models.ExecutionResult
}

// New creates an executor with the default handler registry. The logger
// may be nil.
func New(cfg config.ExecutionConfig, evaluator directive.Evaluator, store memory.Store, backend Backend, log logger.Logger) *Executor {
	if log == nil {
		log = logger.NewNopLogger()
	}
	if backend == nil {
		backend = NewSimBackend()
	}
	e := &Executor{
		cfg:       cfg,
		evaluator: evaluator,
		store:     store,
		backend:   backend,
		log:       log,
	}
	e.registerDefaultHandlers()
	return e
}

func (e *Executor) taskTimeout() time.Duration {
	if e.cfg.TaskTimeoutSeconds <= 0 {
		return 300 * time.Second
	}
	return time.Duration(e.cfg.TaskTimeoutSeconds) * time.Second
}

func (e *Executor) retryDelay() time.Duration {
	if e.cfg.RetryDelaySeconds <= 0 {
		return 0
	}
	return time.Duration(e.cfg.RetryDelaySeconds) * time.Second
}

func (e *Executor) concurrency() int {
	if e.cfg.MaxConcurrentTasks <= 0 {
		return 1
	}
	return e.cfg.MaxConcurrentTasks
}

// ExecuteTask runs one task: directive check, then up to MaxRetries+1
// handler attempts with a per-attempt timeout and a fixed delay between
// attempts. The task's status, result and timestamps are updated in
// place.
func (e *Executor) ExecuteTask(ctx context.Context, task *models.Task) models.ExecutionResult {
	start := time.Now()
	result := models.ExecutionResult{
		TaskID:     task.ID,
		Title:      task.Title,
		ActionType: task.ActionType,
		StartedAt:  start,
	}

	e.log.LogInfo(fmt.Sprintf("Starting execution of task %s (%s)", task.ID, task.Title))

	decision, err := e.evaluator.EvaluateAction(ctx,
		fmt.Sprintf("Execute task: %s", task.Title), task.ActionType, task.Parameters)
	// A directive denial fails the execution result but leaves the task
	// untouched; plan-level bookkeeping stays with the caller.
	if err != nil {
		result.Error = fmt.Sprintf("directive evaluation failed: %v", err)
		e.recordResult(task, &result, start)
		return result
	}
	if !decision.Allowed {
		result.Error = fmt.Sprintf("task blocked by directive: %s", strings.Join(decision.Violations, "; "))
		e.log.LogWarn(fmt.Sprintf("Task %s blocked: %s", task.ID, result.Error))
		e.recordResult(task, &result, start)
		return result
	}

	now := time.Now()
	task.Status = models.StatusInProgress
	task.StartedAt = &now

	maxRetries := task.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	for attempt := 0; attempt <= maxRetries; attempt++ {
		result.RetryCount = attempt
		task.RetryCount = attempt

		output, attemptErr := e.runAttempt(ctx, task)
		if attemptErr == nil {
			result.Success = true
			result.Output = output
			break
		}

		e.log.LogWarn(fmt.Sprintf("Task %s attempt %d failed: %v", task.ID, attempt+1, attemptErr))
		result.Error = fmt.Sprintf("task failed after %d attempts: %v", attempt+1, attemptErr)

		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				result.Error = fmt.Sprintf("task aborted: %v", ctx.Err())
				e.finishTask(task, &result, start)
				return result
			case <-time.After(e.retryDelay()):
			}
		}
	}

	e.finishTask(task, &result, start)
	return result
}

// runAttempt invokes the handler under the per-attempt timeout,
// converting handler panics into errors.
func (e *Executor) runAttempt(ctx context.Context, task *models.Task) (output map[string]interface{}, err error) {
	attemptCtx, cancel := context.WithTimeout(ctx, e.taskTimeout())
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			output = nil
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()

	handler := e.handlerFor(task.ActionType)
	return handler(attemptCtx, task)
}

func (e *Executor) finishTask(task *models.Task, result *models.ExecutionResult, start time.Time) {
	e.recordResult(task, result, start)

	end := result.CompletedAt
	task.CompletedAt = &end
	if result.Success {
		task.Status = models.StatusCompleted
		task.Result = result.Output
	} else {
		task.Status = models.StatusFailed
		task.Error = result.Error
	}
}

// recordResult finalizes timing, appends the result to history, persists
// the execution experience and logs the outcome. The task itself is not
// mutated.
func (e *Executor) recordResult(task *models.Task, result *models.ExecutionResult, start time.Time) {
	end := time.Now()
	result.CompletedAt = end
	result.Duration = end.Sub(start)

	e.mu.Lock()
	e.history = append(e.history, *result)
	e.mu.Unlock()

	e.storeExecutionMemory(task, result)

	outcome := "FAILED"
	if result.Success {
		outcome = "SUCCESS"
	}
	e.log.LogInfo(fmt.Sprintf("Task %s completed: %s (%s)",
		task.ID, outcome, logger.FormatDuration(result.Duration)))
}

// storeExecutionMemory persists the execution experience. Failures get
// higher importance because they are more valuable to recall later.
func (e *Executor) storeExecutionMemory(task *models.Task, result *models.ExecutionResult) {
	if e.store == nil {
		return
	}

	outcome := "FAILED"
	importance := 0.9
	if result.Success {
		outcome = "SUCCESS"
		importance = 0.8
	}

	metadata := map[string]interface{}{
		"task_id":        task.ID,
		"task_type":      task.ActionType,
		"success":        result.Success,
		"execution_time": result.Duration.Seconds(),
		"retry_count":    result.RetryCount,
		"task_priority":  string(task.Priority),
	}
	if result.Error != "" {
		metadata["error"] = result.Error
	}
	if len(result.Output) > 0 {
		summary := fmt.Sprint(result.Output)
		if len(summary) > 500 {
			summary = summary[:500]
		}
		metadata["result_summary"] = summary
	}

	entry := memory.NewEntry(memory.TypeExecution,
		fmt.Sprintf("Executed task: %s - %s", task.Title, outcome), metadata, importance)
	if err := e.store.Store(context.Background(), entry); err != nil {
		e.log.LogWarn(fmt.Sprintf("Failed to store execution memory: %v", err))
	}
}

// ExecuteTasks runs the tasks under the given scheduling mode. Results
// are returned in input order for every mode.
func (e *Executor) ExecuteTasks(ctx context.Context, tasks []*models.Task, mode Mode) ([]models.ExecutionResult, error) {
	e.log.LogInfo(fmt.Sprintf("Executing %d tasks in %s mode", len(tasks), mode))

	switch mode {
	case ModeSequential:
		return e.executeSequential(ctx, tasks), nil
	case ModeParallel:
		return e.executeParallel(ctx, tasks), nil
	case ModeBatch:
		return e.executeBatch(ctx, tasks), nil
	default:
		return nil, fmt.Errorf("unsupported execution mode: %s", mode)
	}
}

// executeSequential runs tasks one at a time. When a critical-priority
// task fails, the remaining tasks are cancelled and reported as skipped.
func (e *Executor) executeSequential(ctx context.Context, tasks []*models.Task) []models.ExecutionResult {
	results := make([]models.ExecutionResult, 0, len(tasks))

	for i, task := range tasks {
		if task.Status != models.StatusReady {
			e.log.LogWarn(fmt.Sprintf("Skipping task %s: not ready (status %s)", task.ID, task.Status))
			results = append(results, skippedResult(task, "not ready"))
			continue
		}

		result := e.ExecuteTask(ctx, task)
		results = append(results, result)

		if !result.Success && task.Priority == models.PriorityCritical {
			e.log.LogError(fmt.Sprintf("Critical task %s failed, cancelling remaining tasks", task.ID))
			for _, remaining := range tasks[i+1:] {
				remaining.Status = models.StatusCancelled
				results = append(results, skippedResult(remaining, "cancelled after critical task failure"))
			}
			break
		}
	}

	return results
}

// executeParallel runs ready tasks concurrently, bounded by the
// configured concurrency. Panics inside a task are isolated and reported
// as that task's failure. Results are aligned to input order.
func (e *Executor) executeParallel(ctx context.Context, tasks []*models.Task) []models.ExecutionResult {
	results := make([]models.ExecutionResult, len(tasks))

	semaphore := make(chan struct{}, e.concurrency())
	var wg sync.WaitGroup

	for i, task := range tasks {
		if task.Status != models.StatusReady {
			results[i] = skippedResult(task, "not ready")
			continue
		}

		wg.Add(1)
		semaphore <- struct{}{}

		go func(idx int, task *models.Task) {
			defer wg.Done()
			defer func() { <-semaphore }()
			defer func() {
				if r := recover(); r != nil {
					results[idx] = models.ExecutionResult{
						TaskID:      task.ID,
						Title:       task.Title,
						ActionType:  task.ActionType,
						Error:       fmt.Sprintf("panic during parallel execution: %v", r),
						CompletedAt: time.Now(),
					}
					task.Status = models.StatusFailed
					task.Error = results[idx].Error
				}
			}()

			results[idx] = e.ExecuteTask(ctx, task)
		}(i, task)
	}

	wg.Wait()
	return results
}

// executeBatch runs tasks in consecutive chunks of the configured
// concurrency, parallel within each chunk.
func (e *Executor) executeBatch(ctx context.Context, tasks []*models.Task) []models.ExecutionResult {
	size := e.concurrency()
	results := make([]models.ExecutionResult, 0, len(tasks))

	for start := 0; start < len(tasks); start += size {
		end := min(start+size, len(tasks))
		results = append(results, e.executeParallel(ctx, tasks[start:end])...)
	}

	return results
}

func skippedResult(task *models.Task, reason string) models.ExecutionResult {
	now := time.Now()
	return models.ExecutionResult{
		TaskID:      task.ID,
		Title:       task.Title,
		ActionType:  task.ActionType,
		Skipped:     true,
		Error:       reason,
		StartedAt:   now,
		CompletedAt: now,
	}
}

// Stats summarizes the executor's history.
type Stats struct {
	TotalExecutions      int
	SuccessfulExecutions int
	SuccessRate          float64
	AverageDuration      time.Duration
	TotalRetries         int
}

// History returns a copy of all recorded execution results, oldest
// first.
func (e *Executor) History() []models.ExecutionResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.ExecutionResult, len(e.history))
	copy(out, e.history)
	return out
}

// ExecutionStats computes aggregate statistics over the history.
func (e *Executor) ExecutionStats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	stats := Stats{TotalExecutions: len(e.history)}
	if stats.TotalExecutions == 0 {
		return stats
	}

	var totalDur time.Duration
	for _, r := range e.history {
		if r.Success {
			stats.SuccessfulExecutions++
		}
		totalDur += r.Duration
		stats.TotalRetries += r.RetryCount
	}
	stats.SuccessRate = float64(stats.SuccessfulExecutions) / float64(stats.TotalExecutions)
	stats.AverageDuration = totalDur / time.Duration(stats.TotalExecutions)
	return stats
}
