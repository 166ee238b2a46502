// Package agent drives the adaptive goal-pursuit loop: plan, execute
// ready tasks, evaluate results, replan failures, and report a
// structured outcome.
package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/harrison/autopilot/internal/config"
	"github.com/harrison/autopilot/internal/critic"
	"github.com/harrison/autopilot/internal/executor"
	"github.com/harrison/autopilot/internal/logger"
	"github.com/harrison/autopilot/internal/memory"
	"github.com/harrison/autopilot/internal/models"
	"github.com/harrison/autopilot/internal/observer"
	"github.com/harrison/autopilot/internal/planner"
	"github.com/harrison/autopilot/internal/safety"
)

const (
	// goalSuccessThreshold is the minimum completion rate for a goal to
	// count as achieved. A plan with any failed task is never achieved,
	// regardless of rate.
	goalSuccessThreshold = 0.7

	// maxReplansPerCycle caps how many failed tasks get an alternative in
	// one replanning pass.
	maxReplansPerCycle = 2

	// adaptationThreshold is the evaluation score below which pending
	// tasks of the same type are tuned.
	adaptationThreshold = 0.5

	resourceMonitorInterval = 30 * time.Second
)

// Agent orchestrates planner, executor, critic, observer and safety into
// goal pursuits.
type Agent struct {
	cfg      *config.Config
	planner  *planner.Planner
	executor *executor.Executor
	critic   *critic.Critic
	observer *observer.Observer
	safety   *safety.Manager
	store    memory.Store
	log      logger.Logger

	mu            sync.Mutex
	running       bool
	currentGoal   string
	currentPlanID string
	goalsPursued  int
	goalsAchieved int
	startedAt     time.Time
	stopCh        chan struct{}
	wg            sync.WaitGroup
}

// New wires an agent from its subsystems. The logger may be nil.
func New(cfg *config.Config, pl *planner.Planner, ex *executor.Executor, cr *critic.Critic, ob *observer.Observer, sm *safety.Manager, store memory.Store, log logger.Logger) *Agent {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Agent{
		cfg:      cfg,
		planner:  pl,
		executor: ex,
		critic:   cr,
		observer: ob,
		safety:   sm,
		store:    store,
		log:      log,
	}
}

// Status is a snapshot of the agent's state.
type Status struct {
	Running       bool
	CurrentGoal   string
	CurrentPlanID string
	GoalsPursued  int
	GoalsAchieved int
	Uptime        time.Duration
}

// Status returns the current agent state.
func (a *Agent) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := Status{
		Running:       a.running,
		CurrentGoal:   a.currentGoal,
		CurrentPlanID: a.currentPlanID,
		GoalsPursued:  a.goalsPursued,
		GoalsAchieved: a.goalsAchieved,
	}
	if a.running {
		s.Uptime = time.Since(a.startedAt)
	}
	return s
}

// Start launches the background resource monitor and records the
// agent-started event. It is a no-op if already running.
func (a *Agent) Start(ctx context.Context) {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return
	}
	a.running = true
	a.startedAt = time.Now()
	a.stopCh = make(chan struct{})
	a.mu.Unlock()

	a.observer.Record(ctx, models.EventAgentStarted, "agent", "Agent started", nil)

	a.wg.Add(1)
	go a.monitorLoop(ctx)
}

// Stop halts the background loops and records the agent-stopped event.
func (a *Agent) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	close(a.stopCh)
	a.mu.Unlock()

	a.wg.Wait()
	a.observer.Record(context.Background(), models.EventAgentStopped, "agent", "Agent stopped", nil)
}

func (a *Agent) monitorLoop(ctx context.Context) {
	defer a.wg.Done()

	ticker := time.NewTicker(resourceMonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.safety.MonitorResources(ctx); err != nil {
				a.log.LogWarn(fmt.Sprintf("Resource monitor: %v", err))
			}
		}
	}
}

// PursueGoal creates a plan for the goal and drives it to completion,
// replanning failed tasks within the configured budget. It always
// returns a structured result and never panics outward.
func (a *Agent) PursueGoal(ctx context.Context, goal string, ctxParams map[string]interface{}) (result *models.GoalResult) {
	start := time.Now()
	result = &models.GoalResult{Goal: goal}

	defer func() {
		if r := recover(); r != nil {
			result.Error = fmt.Sprintf("goal pursuit panicked: %v", r)
			result.Achieved = false
			a.log.LogError(result.Error)
		}
		result.Duration = time.Since(start)
		a.finishGoal(result)
	}()

	a.mu.Lock()
	a.currentGoal = goal
	a.mu.Unlock()

	a.log.LogInfo(fmt.Sprintf("Pursuing goal: %s", goal))

	plan, err := a.planner.CreatePlan(ctx, goal, ctxParams)
	if err != nil {
		result.Error = err.Error()
		eventType := models.EventErrorOccurred
		if strings.Contains(err.Error(), "directive") {
			eventType = models.EventDirectiveViolation
		}
		a.observer.Record(ctx, eventType, "agent",
			fmt.Sprintf("Plan creation failed: %v", err), map[string]interface{}{"goal": goal})
		return result
	}

	a.mu.Lock()
	a.currentPlanID = plan.ID
	a.mu.Unlock()

	result.PlanID = plan.ID
	a.observer.Record(ctx, models.EventPlanCreated, "agent",
		fmt.Sprintf("Plan created for goal: %s", goal),
		map[string]interface{}{"plan_id": plan.ID, "task_count": len(plan.Tasks)})

	evaluations := make(map[string]float64)
	maxReplanning := a.cfg.Planning.MaxReplanningAttempts
	if maxReplanning <= 0 {
		maxReplanning = 3
	}

	replanning := 0
	for !plan.AllTerminal() && replanning < maxReplanning {
		if err := ctx.Err(); err != nil {
			result.Error = err.Error()
			break
		}

		ready, err := a.planner.ReadyTasks(plan.ID)
		if err != nil {
			result.Error = err.Error()
			break
		}

		if len(ready) == 0 {
			if failed := failedTasks(plan); len(failed) > 0 {
				for i, task := range failed {
					if i >= maxReplansPerCycle {
						break
					}
					if _, err := a.planner.ReplanTask(plan.ID, task.ID, task.Error); err != nil {
						a.log.LogWarn(fmt.Sprintf("Replan of task %s failed: %v", task.ID, err))
					}
				}
				replanning++
				continue
			}
			break
		}

		mode := executor.ModeSequential
		if len(ready) > 1 {
			mode = executor.ModeParallel
		}

		for _, task := range ready {
			a.observer.Record(ctx, models.EventTaskStarted, "executor",
				fmt.Sprintf("Task started: %s", task.Title), map[string]interface{}{
					"task_id":     task.ID,
					"action_type": task.ActionType,
				})
		}

		results, err := a.executor.ExecuteTasks(ctx, ready, mode)
		if err != nil {
			result.Error = err.Error()
			break
		}

		for i := range results {
			a.applyResult(ctx, plan.ID, ready[i], &results[i], evaluations)
		}
	}

	final, err := a.planner.Plan(plan.ID)
	if err != nil {
		final = plan
	}

	counts := final.CountByStatus()
	result.TasksTotal = len(final.Tasks)
	result.TasksCompleted = counts[models.StatusCompleted]
	result.TasksFailed = counts[models.StatusFailed]
	result.ReplanningAttempts = replanning
	result.SuccessRate = final.SuccessRate()
	result.Achieved = goalAchieved(result.SuccessRate, result.TasksFailed)
	result.Evaluations = evaluations
	if result.TasksFailed > 0 {
		result.FailurePatterns = analyzeFailures(final)
	}

	a.observer.Record(ctx, models.EventPlanCompleted, "agent",
		fmt.Sprintf("Goal pursuit finished: %s", goal),
		map[string]interface{}{
			"plan_id":      plan.ID,
			"achieved":     result.Achieved,
			"success_rate": result.SuccessRate,
		})

	return result
}

// applyResult feeds one execution result back into the planner, the
// observer and the critic, and adapts pending work after a poor score.
func (a *Agent) applyResult(ctx context.Context, planID string, task *models.Task, res *models.ExecutionResult, evaluations map[string]float64) {
	if res.Skipped {
		if task.Status == models.StatusCancelled {
			if err := a.planner.UpdateTaskStatus(planID, task.ID, models.StatusCancelled, nil, res.Error); err != nil {
				a.log.LogWarn(fmt.Sprintf("Status update for %s failed: %v", task.ID, err))
			}
		}
		return
	}

	status := models.StatusFailed
	eventType := models.EventTaskFailed
	message := fmt.Sprintf("Task failed: %s", res.Title)
	if res.Success {
		status = models.StatusCompleted
		eventType = models.EventTaskCompleted
		message = fmt.Sprintf("Task completed: %s", res.Title)
	}

	if err := a.planner.UpdateTaskStatus(planID, task.ID, status, res.Output, res.Error); err != nil {
		a.log.LogWarn(fmt.Sprintf("Status update for %s failed: %v", task.ID, err))
	}

	a.observer.Record(ctx, eventType, "executor", message, map[string]interface{}{
		"task_id":     res.TaskID,
		"action_type": res.ActionType,
		"duration":    res.Duration,
		"retry_count": res.RetryCount,
	})

	evaluation, err := a.critic.Evaluate(ctx, task, res)
	if err != nil {
		a.log.LogWarn(fmt.Sprintf("Evaluation of %s failed: %v", task.ID, err))
		return
	}
	evaluations[task.ID] = evaluation.Overall

	a.observer.Record(ctx, models.EventEvaluationCompleted, "critic",
		fmt.Sprintf("Evaluated task: %s (%s)", res.Title, evaluation.Level),
		map[string]interface{}{
			"task_id": res.TaskID,
			"overall": evaluation.Overall,
			"level":   string(evaluation.Level),
		})

	if evaluation.Overall < adaptationThreshold {
		a.adaptFromRecommendations(planID, task.ActionType, evaluation.Recommendations)
	}
}

// adaptFromRecommendations tunes pending tasks of the same action type
// based on what the critic suggested.
func (a *Agent) adaptFromRecommendations(planID, actionType string, recommendations []string) {
	var extendDuration, raiseRetries bool
	for _, rec := range recommendations {
		lower := strings.ToLower(rec)
		if strings.Contains(lower, "timeout") {
			extendDuration = true
		}
		if strings.Contains(lower, "retry") || strings.Contains(lower, "retries") {
			raiseRetries = true
		}
	}
	if !extendDuration && !raiseRetries {
		return
	}

	adapted, err := a.planner.AdaptPendingTasks(planID, actionType, extendDuration, raiseRetries)
	if err != nil {
		a.log.LogWarn(fmt.Sprintf("Adaptation failed: %v", err))
		return
	}
	if adapted > 0 {
		a.log.LogInfo(fmt.Sprintf("Adapted %d pending %s tasks after poor evaluation", adapted, actionType))
	}
}

// finishGoal persists the goal-pursuit memory and clears pursuit state.
func (a *Agent) finishGoal(result *models.GoalResult) {
	a.mu.Lock()
	a.goalsPursued++
	if result.Achieved {
		a.goalsAchieved++
	}
	a.currentGoal = ""
	a.currentPlanID = ""
	a.mu.Unlock()

	outcome := "NOT ACHIEVED"
	importance := 0.7
	if result.Achieved {
		outcome = "ACHIEVED"
		importance = 0.9
	}

	if a.store != nil {
		entry := memory.NewEntry(memory.TypeGoal,
			fmt.Sprintf("Goal pursuit: %s - %s", result.Goal, outcome),
			map[string]interface{}{
				"goal":                result.Goal,
				"plan_id":             result.PlanID,
				"achieved":            result.Achieved,
				"success_rate":        result.SuccessRate,
				"tasks_completed":     result.TasksCompleted,
				"tasks_failed":        result.TasksFailed,
				"duration_seconds":    result.Duration.Seconds(),
				"replanning_attempts": result.ReplanningAttempts,
			}, importance)
		if err := a.store.Store(context.Background(), entry); err != nil {
			a.log.LogWarn(fmt.Sprintf("Failed to store goal memory: %v", err))
		}
	}

	a.log.LogInfo(fmt.Sprintf("Goal %s: %s (%.0f%% complete, %s)",
		outcome, result.Goal, result.SuccessRate*100, logger.FormatDuration(result.Duration)))
}

// goalAchieved applies the dual success condition: a high enough
// completion rate and no failed tasks at all.
func goalAchieved(successRate float64, failedCount int) bool {
	return successRate >= goalSuccessThreshold && failedCount == 0
}

func failedTasks(plan *models.ExecutionPlan) []*models.Task {
	var failed []*models.Task
	for i := range plan.Tasks {
		if plan.Tasks[i].Status == models.StatusFailed {
			failed = append(failed, &plan.Tasks[i])
		}
	}
	return failed
}

// analyzeFailures buckets failed-task errors into recurring categories.
func analyzeFailures(plan *models.ExecutionPlan) map[string]int {
	patterns := make(map[string]int)
	for i := range plan.Tasks {
		task := &plan.Tasks[i]
		if task.Status != models.StatusFailed {
			continue
		}
		lower := strings.ToLower(task.Error)
		switch {
		case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline"):
			patterns["timeout"]++
		case strings.Contains(lower, "permission") || strings.Contains(lower, "denied"):
			patterns["permission"]++
		case strings.Contains(lower, "not found") || strings.Contains(lower, "no such"):
			patterns["not_found"]++
		default:
			patterns["other"]++
		}
	}
	return patterns
}
