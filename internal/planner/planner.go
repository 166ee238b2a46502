// Package planner decomposes goals into dependency-ordered execution
// plans and adapts them when tasks fail.
//
// Decomposition tries three strategies in order: a learned pattern from
// a previously successful plan for a similar goal, a matching markdown
// playbook, and finally keyword heuristics. The resulting tasks get
// class-based dependencies, per-type duration estimates, consolidation
// when the plan is oversized, and a priority ordering.
package planner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/harrison/autopilot/internal/config"
	"github.com/harrison/autopilot/internal/directive"
	"github.com/harrison/autopilot/internal/logger"
	"github.com/harrison/autopilot/internal/memory"
	"github.com/harrison/autopilot/internal/models"
)

// ErrDirectiveViolation is returned when a goal conflicts with the prime
// directive.
var ErrDirectiveViolation = errors.New("goal conflicts with prime directive")

// ErrPlanNotFound is returned when a plan ID is unknown.
var ErrPlanNotFound = errors.New("plan not found")

// Planner creates and maintains execution plans.
type Planner struct {
	cfg       config.PlanningConfig
	evaluator directive.Evaluator
	store     memory.Store
	playbooks *PlaybookLibrary
	log       logger.Logger

	mu    sync.Mutex
	plans map[string]*models.ExecutionPlan
}

// New creates a planner. The playbook library and logger may be nil.
func New(cfg config.PlanningConfig, evaluator directive.Evaluator, store memory.Store, playbooks *PlaybookLibrary, log logger.Logger) *Planner {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Planner{
		cfg:       cfg,
		evaluator: evaluator,
		store:     store,
		playbooks: playbooks,
		log:       log,
		plans:     make(map[string]*models.ExecutionPlan),
	}
}

func (p *Planner) maxSubtasks() int {
	if p.cfg.MaxSubtasks <= 0 {
		return 10
	}
	return p.cfg.MaxSubtasks
}

// CreatePlan builds an execution plan for the goal. The goal is checked
// against the prime directive first; a denial returns
// ErrDirectiveViolation.
func (p *Planner) CreatePlan(ctx context.Context, goal string, ctxParams map[string]interface{}) (*models.ExecutionPlan, error) {
	p.log.LogInfo(fmt.Sprintf("Creating plan for goal: %s", goal))

	decision, err := p.evaluator.EvaluateAction(ctx,
		fmt.Sprintf("Create plan for goal: %s", goal), "planning", ctxParams)
	if err != nil {
		return nil, fmt.Errorf("directive evaluation failed: %w", err)
	}
	if !decision.Allowed {
		return nil, fmt.Errorf("%w: %s", ErrDirectiveViolation, strings.Join(decision.Violations, "; "))
	}

	tasks := p.decompose(ctx, goal, ctxParams)

	assignDependencies(tasks)
	estimateDurations(tasks)
	if len(tasks) > p.maxSubtasks() {
		tasks = consolidateTasks(tasks, p.maxSubtasks())
	}
	orderTasks(tasks)

	plan := &models.ExecutionPlan{
		ID:        uuid.New().String(),
		Goal:      goal,
		Tasks:     tasks,
		Status:    models.PlanActive,
		CreatedAt: time.Now(),
		Metadata: map[string]interface{}{
			"tags": extractGoalTags(goal),
		},
	}
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("generated plan is invalid: %w", err)
	}

	p.mu.Lock()
	p.plans[plan.ID] = plan
	p.mu.Unlock()

	p.savePlanningExperience(ctx, plan)

	p.log.LogInfo(fmt.Sprintf("Created plan %s with %d tasks", plan.ID, len(tasks)))
	return plan, nil
}

// decompose tries learned patterns, then playbooks, then heuristics.
func (p *Planner) decompose(ctx context.Context, goal string, ctxParams map[string]interface{}) []models.Task {
	if tasks := p.applyLearnedPattern(ctx, goal, ctxParams); len(tasks) > 0 {
		p.log.LogInfo(fmt.Sprintf("Applied learned pattern with %d tasks", len(tasks)))
		return tasks
	}
	if p.playbooks != nil {
		if pb := p.playbooks.Match(goal); pb != nil {
			p.log.LogInfo(fmt.Sprintf("Applied playbook %q with %d tasks", pb.Name, len(pb.Tasks)))
			return pb.Instantiate(goal, ctxParams)
		}
	}
	return heuristicDecompose(goal, ctxParams)
}

// applyLearnedPattern adapts the task list of a previously successful
// plan for a similar goal. Returns nil when no such pattern exists.
func (p *Planner) applyLearnedPattern(ctx context.Context, goal string, ctxParams map[string]interface{}) []models.Task {
	if p.store == nil {
		return nil
	}

	entries, err := p.store.Query(ctx, goal, 5)
	if err != nil {
		p.log.LogWarn(fmt.Sprintf("Pattern lookup failed: %v", err))
		return nil
	}

	for _, entry := range entries {
		if entry.Type != memory.TypePlan {
			continue
		}
		success, _ := entry.Metadata["success"].(bool)
		if !success {
			continue
		}

		templates := templateList(entry.Metadata["tasks"])
		if len(templates) == 0 {
			continue
		}

		tasks := make([]models.Task, 0, len(templates))
		for _, tpl := range templates {
			priority := models.TaskPriority(str(tpl["priority"]))
			if !priority.Valid() {
				priority = models.PriorityMedium
			}

			params := make(map[string]interface{}, len(ctxParams))
			for k, v := range ctxParams {
				params[k] = v
			}

			tasks = append(tasks, models.Task{
				ID:                uuid.New().String(),
				Title:             adaptTitle(str(tpl["title"]), goal),
				Description:       fmt.Sprintf("%s (adapted for: %s)", str(tpl["description"]), goal),
				ActionType:        str(tpl["action_type"]),
				Parameters:        params,
				Priority:          priority,
				Status:            models.StatusPending,
				EstimatedDuration: durationSeconds(tpl["estimated_duration_seconds"]),
				MaxRetries:        3,
				CreatedAt:         time.Now(),
				Tags:              []string{"pattern_based"},
			})
		}
		return tasks
	}
	return nil
}

// adaptTitle substitutes the generic verbs in a template title with the
// goal's leading action word.
func adaptTitle(title, goal string) string {
	words := strings.Fields(goal)
	if len(words) == 0 || title == "" {
		return title
	}
	action := words[0]

	out := strings.Fields(title)
	for i, w := range out {
		if strings.EqualFold(w, "execute") || strings.EqualFold(w, "perform") {
			out[i] = action
		}
	}
	return strings.Join(out, " ")
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}

func durationSeconds(v interface{}) time.Duration {
	switch n := v.(type) {
	case float64:
		return time.Duration(n * float64(time.Second))
	case int:
		return time.Duration(n) * time.Second
	}
	return 0
}

// templateList normalizes the stored task list, which arrives as
// []map[string]interface{} in-process or []interface{} after a JSON
// round trip through the store.
func templateList(v interface{}) []map[string]interface{} {
	switch list := v.(type) {
	case []map[string]interface{}:
		return list
	case []interface{}:
		out := make([]map[string]interface{}, 0, len(list))
		for _, item := range list {
			if m, ok := item.(map[string]interface{}); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

// consolidateTasks merges same-type tasks into one consolidated task
// carrying the originals as a sub-list, then caps the plan size.
func consolidateTasks(tasks []models.Task, maxSubtasks int) []models.Task {
	groups := make(map[string][]models.Task)
	var order []string
	for _, task := range tasks {
		if _, seen := groups[task.ActionType]; !seen {
			order = append(order, task.ActionType)
		}
		groups[task.ActionType] = append(groups[task.ActionType], task)
	}

	consolidated := make([]models.Task, 0, len(order))
	for _, actionType := range order {
		group := groups[actionType]
		if len(group) == 1 {
			consolidated = append(consolidated, group[0])
			continue
		}

		subtasks := make([]map[string]interface{}, 0, len(group))
		var totalDuration time.Duration
		best := group[0].Priority
		for _, t := range group {
			subtasks = append(subtasks, map[string]interface{}{
				"title":       t.Title,
				"description": t.Description,
				"parameters":  t.Parameters,
			})
			totalDuration += t.EstimatedDuration
			if t.Priority.Weight() > best.Weight() {
				best = t.Priority
			}
		}

		consolidated = append(consolidated, models.Task{
			ID:                uuid.New().String(),
			Title:             fmt.Sprintf("Consolidated %s", titleCase(actionType)),
			Description:       fmt.Sprintf("Execute multiple %s operations", actionType),
			ActionType:        actionType,
			Parameters:        map[string]interface{}{"subtasks": subtasks},
			Priority:          best,
			Status:            models.StatusPending,
			EstimatedDuration: totalDuration,
			MaxRetries:        3,
			CreatedAt:         time.Now(),
		})
	}

	if len(consolidated) > maxSubtasks {
		consolidated = consolidated[:maxSubtasks]
	}

	// Consolidation invalidates cross-task dependency IDs; rebuild them
	// from the action-type classes.
	for i := range consolidated {
		consolidated[i].Dependencies = nil
	}
	assignDependencies(consolidated)
	return consolidated
}

func titleCase(actionType string) string {
	words := strings.Split(actionType, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// orderTasks sorts by priority weight, then by dependency count, both
// descending. The sort is stable so template order breaks ties.
func orderTasks(tasks []models.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		wi, wj := tasks[i].Priority.Weight(), tasks[j].Priority.Weight()
		if wi != wj {
			return wi > wj
		}
		return len(tasks[i].Dependencies) > len(tasks[j].Dependencies)
	})
}

func (p *Planner) savePlanningExperience(ctx context.Context, plan *models.ExecutionPlan) {
	if p.store == nil {
		return
	}

	entry := memory.NewEntry(memory.TypePlan,
		fmt.Sprintf("Planning experience for goal: %s", plan.Goal),
		map[string]interface{}{
			"goal":       plan.Goal,
			"plan_id":    plan.ID,
			"task_count": len(plan.Tasks),
			"success":    false,
			"tasks":      taskTemplates(plan.Tasks),
		}, 0.7)
	if err := p.store.Store(ctx, entry); err != nil {
		p.log.LogWarn(fmt.Sprintf("Failed to save planning experience: %v", err))
	}
}

// recordPlanOutcome stores a successful plan as a reusable pattern.
func (p *Planner) recordPlanOutcome(plan *models.ExecutionPlan) {
	if p.store == nil || plan.Status != models.PlanCompleted {
		return
	}

	entry := memory.NewEntry(memory.TypePlan,
		fmt.Sprintf("Successful plan pattern for goal: %s", plan.Goal),
		map[string]interface{}{
			"goal":       plan.Goal,
			"plan_id":    plan.ID,
			"task_count": len(plan.Tasks),
			"success":    true,
			"tasks":      taskTemplates(plan.Tasks),
		}, 0.8)
	if err := p.store.Store(context.Background(), entry); err != nil {
		p.log.LogWarn(fmt.Sprintf("Failed to record plan outcome: %v", err))
	}
}

func taskTemplates(tasks []models.Task) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, map[string]interface{}{
			"title":                      t.Title,
			"description":                t.Description,
			"action_type":                t.ActionType,
			"priority":                   string(t.Priority),
			"estimated_duration_seconds": t.EstimatedDuration.Seconds(),
		})
	}
	return out
}

// Plan returns the plan with the given ID.
func (p *Planner) Plan(planID string) (*models.ExecutionPlan, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	plan, ok := p.plans[planID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPlanNotFound, planID)
	}
	return plan, nil
}

// ReadyTasks recomputes readiness, flipping pending tasks whose
// dependencies are all completed to ready, and returns every ready task.
// Calling it repeatedly without state changes returns the same set.
func (p *Planner) ReadyTasks(planID string) ([]*models.Task, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	plan, ok := p.plans[planID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPlanNotFound, planID)
	}

	completed := plan.CompletedIDs()
	var ready []*models.Task
	for i := range plan.Tasks {
		task := &plan.Tasks[i]
		if task.Status == models.StatusPending && task.IsReady(completed) {
			task.Status = models.StatusReady
		}
		if task.Status == models.StatusReady {
			ready = append(ready, task)
		}
	}
	return ready, nil
}

// UpdateTaskStatus applies an execution outcome to a task and refreshes
// the plan status when every task has reached a terminal state.
func (p *Planner) UpdateTaskStatus(planID, taskID string, status models.TaskStatus, result map[string]interface{}, errMsg string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	plan, ok := p.plans[planID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPlanNotFound, planID)
	}
	task := plan.Task(taskID)
	if task == nil {
		return fmt.Errorf("task %s not found in plan %s", taskID, planID)
	}

	old := task.Status
	task.Status = status

	now := time.Now()
	switch {
	case status == models.StatusInProgress:
		task.StartedAt = &now
	case status.Terminal():
		task.CompletedAt = &now
	}
	if result != nil {
		task.Result = result
	}
	if errMsg != "" {
		task.Error = errMsg
	}

	p.log.LogDebug(fmt.Sprintf("Task %s status: %s -> %s", taskID, old, status))

	if plan.AllTerminal() {
		counts := plan.CountByStatus()
		if counts[models.StatusFailed] == 0 && counts[models.StatusCompleted] > 0 {
			plan.Status = models.PlanCompleted
			p.recordPlanOutcome(plan)
		} else {
			plan.Status = models.PlanFailed
		}
	}
	return nil
}

// ReplanTask cancels a failed task and inserts a safe-mode alternative
// with the same action type and priority. Tasks that depended directly
// on the failed task are rewired to the alternative; transitive
// dependents are left untouched since their direct edges still resolve.
func (p *Planner) ReplanTask(planID, taskID, reason string) ([]*models.Task, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	plan, ok := p.plans[planID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPlanNotFound, planID)
	}
	failed := plan.Task(taskID)
	if failed == nil {
		return nil, fmt.Errorf("task %s not found in plan %s", taskID, planID)
	}

	p.log.LogInfo(fmt.Sprintf("Replanning failed task %s (reason: %s)", taskID, reason))

	params := make(map[string]interface{}, len(failed.Parameters)+1)
	for k, v := range failed.Parameters {
		params[k] = v
	}
	params["safe_mode"] = true

	alternative := models.Task{
		ID:                uuid.New().String(),
		Title:             fmt.Sprintf("Safe Alternative: %s", failed.Title),
		Description:       fmt.Sprintf("Alternative approach for: %s", failed.Description),
		ActionType:        failed.ActionType,
		Parameters:        params,
		Priority:          failed.Priority,
		Status:            models.StatusPending,
		Dependencies:      append([]string(nil), failed.Dependencies...),
		EstimatedDuration: failed.EstimatedDuration,
		MaxRetries:        failed.MaxRetries,
		CreatedAt:         time.Now(),
		Tags:              append(append([]string(nil), failed.Tags...), "alternative", "safe_mode"),
	}
	// Appending may reallocate the task slice, so the failed task must be
	// re-fetched before any mutation below.
	failedID := failed.ID
	plan.Tasks = append(plan.Tasks, alternative)

	for i := range plan.Tasks {
		task := &plan.Tasks[i]
		if task.ID == alternative.ID {
			continue
		}
		for j, dep := range task.Dependencies {
			if dep == failedID {
				task.Dependencies[j] = alternative.ID
			}
		}
	}

	plan.Task(failedID).Status = models.StatusCancelled
	if plan.Status == models.PlanFailed {
		plan.Status = models.PlanActive
	}

	return []*models.Task{plan.Task(alternative.ID)}, nil
}

// AdaptPendingTasks tunes the plan's pending tasks of one action type
// after a poor evaluation: extendDuration raises estimates by 50%,
// raiseRetries bumps the retry cap by one up to 5. Returns the number of
// tasks touched.
func (p *Planner) AdaptPendingTasks(planID, actionType string, extendDuration, raiseRetries bool) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	plan, ok := p.plans[planID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrPlanNotFound, planID)
	}

	adapted := 0
	for i := range plan.Tasks {
		task := &plan.Tasks[i]
		if task.ActionType != actionType || task.Status.Terminal() || task.Status == models.StatusInProgress {
			continue
		}
		touched := false
		if extendDuration {
			task.EstimatedDuration = task.EstimatedDuration * 3 / 2
			touched = true
		}
		if raiseRetries && task.MaxRetries < 5 {
			task.MaxRetries++
			touched = true
		}
		if touched {
			adapted++
		}
	}
	return adapted, nil
}

// CancelTask marks a single task cancelled.
func (p *Planner) CancelTask(planID, taskID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	plan, ok := p.plans[planID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPlanNotFound, planID)
	}
	task := plan.Task(taskID)
	if task == nil {
		return fmt.Errorf("task %s not found in plan %s", taskID, planID)
	}
	if task.Status.Terminal() {
		return fmt.Errorf("task %s is already %s", taskID, task.Status)
	}

	now := time.Now()
	task.Status = models.StatusCancelled
	task.CompletedAt = &now
	return nil
}

// CancelPlan cancels the plan, marking every non-terminal task
// cancelled.
func (p *Planner) CancelPlan(planID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	plan, ok := p.plans[planID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPlanNotFound, planID)
	}

	now := time.Now()
	for i := range plan.Tasks {
		task := &plan.Tasks[i]
		if !task.Status.Terminal() {
			task.Status = models.StatusCancelled
			task.CompletedAt = &now
		}
	}
	plan.Status = models.PlanCancelled
	return nil
}

// Stats summarizes planner activity.
type Stats struct {
	TotalPlans     int
	CompletedPlans int
	FailedPlans    int
	TotalTasks     int
	TasksByStatus  map[models.TaskStatus]int
}

// PlanningStats computes aggregate statistics over all known plans.
func (p *Planner) PlanningStats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := Stats{TasksByStatus: make(map[models.TaskStatus]int)}
	for _, plan := range p.plans {
		stats.TotalPlans++
		switch plan.Status {
		case models.PlanCompleted:
			stats.CompletedPlans++
		case models.PlanFailed:
			stats.FailedPlans++
		}
		stats.TotalTasks += len(plan.Tasks)
		for status, n := range plan.CountByStatus() {
			stats.TasksByStatus[status] += n
		}
	}
	return stats
}
