package agent

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/autopilot/internal/config"
	"github.com/harrison/autopilot/internal/critic"
	"github.com/harrison/autopilot/internal/directive"
	"github.com/harrison/autopilot/internal/executor"
	"github.com/harrison/autopilot/internal/memory"
	"github.com/harrison/autopilot/internal/models"
	"github.com/harrison/autopilot/internal/observer"
	"github.com/harrison/autopilot/internal/planner"
	"github.com/harrison/autopilot/internal/safety"
)

type stubEvaluator struct {
	allowed    bool
	violations []string
}

func (s *stubEvaluator) EvaluateAction(ctx context.Context, description, actionType string, actionCtx map[string]interface{}) (directive.Decision, error) {
	return directive.Decision{
		Allowed:       s.allowed,
		Confidence:    0.9,
		GoalAlignment: 0.7,
		Violations:    s.violations,
	}, nil
}

type harness struct {
	agent    *Agent
	executor *executor.Executor
	observer *observer.Observer
	store    *memory.InMemoryStore
}

func newHarness(t *testing.T, evaluator directive.Evaluator) *harness {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Execution.RetryDelaySeconds = 0
	cfg.Execution.TaskTimeoutSeconds = 5

	store := memory.NewInMemoryStore()
	sampler := safety.NewStaticSampler(safety.ResourceReading{
		CPUPercent:  10,
		UsedMB:      256,
		AvailableMB: 2048,
	})

	pl := planner.New(cfg.Planning, evaluator, store, nil, nil)
	ex := executor.New(cfg.Execution, evaluator, store, executor.NewSimBackend(), nil)
	cr := critic.New(cfg.Evaluation, evaluator, store, nil)
	ob := observer.New(store, sampler, nil)
	sm := safety.NewManager(cfg.Safety, sampler, nil)

	return &harness{
		agent:    New(cfg, pl, ex, cr, ob, sm, store, nil),
		executor: ex,
		observer: ob,
		store:    store,
	}
}

func TestPursueGoalAchieved(t *testing.T) {
	h := newHarness(t, &stubEvaluator{allowed: true})

	result := h.agent.PursueGoal(context.Background(), "organize the workshop", nil)

	assert.True(t, result.Achieved)
	assert.Equal(t, 1.0, result.SuccessRate)
	assert.Equal(t, 3, result.TasksTotal)
	assert.Equal(t, 3, result.TasksCompleted)
	assert.Zero(t, result.TasksFailed)
	assert.Zero(t, result.ReplanningAttempts)
	assert.Len(t, result.Evaluations, 3)
	assert.Empty(t, result.Error)

	// Goal memory is stored with high importance on success.
	entries, err := h.store.ByType(context.Background(), memory.TypeGoal, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 0.9, entries[0].Importance)
	assert.Contains(t, entries[0].Content, "ACHIEVED")

	created := h.observer.Events(observer.Filter{Type: models.EventPlanCreated})
	require.Len(t, created, 1)
	finished := h.observer.Events(observer.Filter{Type: models.EventPlanCompleted})
	require.Len(t, finished, 1)
}

func TestPursueGoalRecordsTaskLifecycleMetrics(t *testing.T) {
	h := newHarness(t, &stubEvaluator{allowed: true})

	result := h.agent.PursueGoal(context.Background(), "organize the workshop", nil)
	require.True(t, result.Achieved)

	// Every executed task was announced before execution.
	started := h.observer.Events(observer.Filter{Type: models.EventTaskStarted})
	assert.Len(t, started, result.TasksTotal)

	// Started/finished pairs balance out, so nothing reads as active.
	metrics := h.observer.Metrics()
	assert.Zero(t, metrics.ActiveTasks)
	assert.Equal(t, result.TasksCompleted, metrics.CompletedTasks)
	assert.Zero(t, metrics.FailedTasks)
}

func TestPursueGoalDirectiveDenied(t *testing.T) {
	h := newHarness(t, &stubEvaluator{allowed: false, violations: []string{"harmful goal"}})

	result := h.agent.PursueGoal(context.Background(), "destroy all the things", nil)

	assert.False(t, result.Achieved)
	assert.Contains(t, result.Error, "directive")
	assert.Empty(t, result.PlanID)

	violations := h.observer.Events(observer.Filter{Type: models.EventDirectiveViolation})
	require.Len(t, violations, 1)

	entries, err := h.store.ByType(context.Background(), memory.TypeGoal, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 0.7, entries[0].Importance)
}

func TestPursueGoalWithPersistentFailures(t *testing.T) {
	h := newHarness(t, &stubEvaluator{allowed: true})

	h.executor.RegisterHandler("execution", func(ctx context.Context, task *models.Task) (map[string]interface{}, error) {
		return nil, fmt.Errorf("execution timeout waiting for resource")
	})

	result := h.agent.PursueGoal(context.Background(), "organize the workshop", nil)

	assert.False(t, result.Achieved)
	assert.Greater(t, result.TasksFailed, 0)
	assert.Greater(t, result.ReplanningAttempts, 0)
	assert.LessOrEqual(t, result.ReplanningAttempts, 3)
	require.NotEmpty(t, result.FailurePatterns)
	assert.Greater(t, result.FailurePatterns["timeout"], 0)

	entries, err := h.store.ByType(context.Background(), memory.TypeGoal, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 0.7, entries[0].Importance)
	assert.Contains(t, entries[0].Content, "NOT ACHIEVED")
}

func TestGoalAchievedDualCondition(t *testing.T) {
	tests := []struct {
		name        string
		successRate float64
		failed      int
		want        bool
	}{
		{"rate above threshold but failures present", 0.8, 2, false},
		{"rate at threshold with no failures", 0.7, 0, true},
		{"rate below threshold", 0.6, 0, false},
		{"full success", 1.0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, goalAchieved(tt.successRate, tt.failed))
		})
	}
}

func TestGoalNotAchievedAtHighSuccessRate(t *testing.T) {
	plan := &models.ExecutionPlan{ID: "p1", Goal: "g"}
	for i := 0; i < 8; i++ {
		plan.Tasks = append(plan.Tasks, models.Task{
			ID: fmt.Sprintf("c%d", i), Status: models.StatusCompleted,
		})
	}
	for i := 0; i < 2; i++ {
		plan.Tasks = append(plan.Tasks, models.Task{
			ID: fmt.Sprintf("f%d", i), Status: models.StatusFailed,
		})
	}

	rate := plan.SuccessRate()
	assert.InDelta(t, 0.8, rate, 1e-9)
	assert.False(t, goalAchieved(rate, 2))
}

func TestAnalyzeFailures(t *testing.T) {
	plan := &models.ExecutionPlan{
		Tasks: []models.Task{
			{ID: "a", Status: models.StatusFailed, Error: "request timeout after 30s"},
			{ID: "b", Status: models.StatusFailed, Error: "permission denied: /etc/passwd"},
			{ID: "c", Status: models.StatusFailed, Error: "file not found: report.txt"},
			{ID: "d", Status: models.StatusFailed, Error: "something odd happened"},
			{ID: "e", Status: models.StatusCompleted},
		},
	}

	patterns := analyzeFailures(plan)
	assert.Equal(t, 1, patterns["timeout"])
	assert.Equal(t, 1, patterns["permission"])
	assert.Equal(t, 1, patterns["not_found"])
	assert.Equal(t, 1, patterns["other"])
}

func TestStatusCounters(t *testing.T) {
	h := newHarness(t, &stubEvaluator{allowed: true})

	before := h.agent.Status()
	assert.False(t, before.Running)
	assert.Zero(t, before.GoalsPursued)

	h.agent.PursueGoal(context.Background(), "organize the workshop", nil)

	after := h.agent.Status()
	assert.Equal(t, 1, after.GoalsPursued)
	assert.Equal(t, 1, after.GoalsAchieved)
	assert.Empty(t, after.CurrentGoal, "goal state is cleared after pursuit")
}

func TestStartStopRecordsEvents(t *testing.T) {
	h := newHarness(t, &stubEvaluator{allowed: true})
	ctx := context.Background()

	h.agent.Start(ctx)
	assert.True(t, h.agent.Status().Running)

	// Idempotent.
	h.agent.Start(ctx)

	h.agent.Stop()
	assert.False(t, h.agent.Status().Running)

	require.Eventually(t, func() bool {
		started := h.observer.Events(observer.Filter{Type: models.EventAgentStarted})
		stopped := h.observer.Events(observer.Filter{Type: models.EventAgentStopped})
		return len(started) == 1 && len(stopped) == 1
	}, 2*time.Second, 10*time.Millisecond)
}
