package critic

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/autopilot/internal/config"
	"github.com/harrison/autopilot/internal/directive"
	"github.com/harrison/autopilot/internal/logger"
	"github.com/harrison/autopilot/internal/memory"
	"github.com/harrison/autopilot/internal/models"
)

// stubEvaluator returns a fixed decision.
type stubEvaluator struct {
	decision directive.Decision
	err      error
}

func (s *stubEvaluator) EvaluateAction(ctx context.Context, description, actionType string, actionCtx map[string]interface{}) (directive.Decision, error) {
	return s.decision, s.err
}

func perfectEvaluator() *stubEvaluator {
	return &stubEvaluator{decision: directive.Decision{Allowed: true, Confidence: 1.0, GoalAlignment: 1.0}}
}

func evalConfig(aggregation string) config.EvaluationConfig {
	return config.EvaluationConfig{Aggregation: aggregation, BaselineSeconds: 120}
}

func testTask() *models.Task {
	return &models.Task{
		ID:         "t1",
		Title:      "Process data",
		ActionType: "data_processing",
		Priority:   models.PriorityHigh,
		Status:     models.StatusCompleted,
	}
}

func richOutput() map[string]interface{} {
	return map[string]interface{}{
		"status":    "ok",
		"records":   42,
		"errors":    0,
		"metadata":  map[string]interface{}{"source": "test"},
		"validated": true,
	}
}

func TestEvaluateExcellent(t *testing.T) {
	c := New(evalConfig("weighted_average"), perfectEvaluator(), memory.NewInMemoryStore(), logger.NewNopLogger())

	result := &models.ExecutionResult{
		TaskID:   "t1",
		Success:  true,
		Output:   richOutput(),
		Duration: 30 * time.Second, // half the 120s baseline
	}

	eval, err := c.Evaluate(context.Background(), testTask(), result)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, eval.Scores[models.CriterionSuccess], 1e-9)
	assert.InDelta(t, 1.0, eval.Scores[models.CriterionEfficiency], 1e-9)
	assert.InDelta(t, 1.0, eval.Scores[models.CriterionQuality], 1e-9)
	assert.InDelta(t, 1.0, eval.Scores[models.CriterionDirectiveAlignment], 1e-9)
	assert.GreaterOrEqual(t, eval.Overall, 0.9)
	assert.Equal(t, models.LevelExcellent, eval.Level)
	assert.Contains(t, eval.Feedback[0], "successfully")
}

func TestScoreSuccess(t *testing.T) {
	tests := []struct {
		name   string
		result models.ExecutionResult
		want   float64
	}{
		{"clean success", models.ExecutionResult{Success: true}, 1.0},
		{"one retry", models.ExecutionResult{Success: true, RetryCount: 1}, 0.9},
		{"two retries", models.ExecutionResult{Success: true, RetryCount: 2}, 0.8},
		{"retry penalty capped", models.ExecutionResult{Success: true, RetryCount: 7}, 0.7},
		{"graceful failure", models.ExecutionResult{Success: false, Error: "shutdown was graceful"}, 0.2},
		{"hard failure", models.ExecutionResult{Success: false, Error: "timeout"}, 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, scoreSuccess(&tt.result), 1e-9)
		})
	}
}

func TestScoreEfficiencyTiers(t *testing.T) {
	c := New(evalConfig("weighted_average"), nil, nil, logger.NewNopLogger())
	task := testTask()

	tests := []struct {
		duration time.Duration
		want     float64
	}{
		{30 * time.Second, 1.0},  // <= 50%
		{60 * time.Second, 1.0},  // exactly 50%
		{100 * time.Second, 0.8}, // <= 100%
		{150 * time.Second, 0.6}, // <= 150%
		{200 * time.Second, 0.4}, // <= 200%
		{300 * time.Second, 0.2}, // beyond
	}
	for _, tt := range tests {
		got := c.scoreEfficiency(task, &models.ExecutionResult{Duration: tt.duration})
		assert.InDelta(t, tt.want, got, 1e-9, "duration %v", tt.duration)
	}
}

func TestScoreQuality(t *testing.T) {
	tests := []struct {
		name   string
		result models.ExecutionResult
		want   float64
	}{
		{"failure scores zero", models.ExecutionResult{Success: false, Output: richOutput()}, 0.0},
		{"bare success", models.ExecutionResult{Success: true}, 0.5},
		{"three fields", models.ExecutionResult{Success: true,
			Output: map[string]interface{}{"a": 1, "b": 2, "c": 3}}, 0.7},
		{"full marks", models.ExecutionResult{Success: true, Output: richOutput()}, 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, scoreQuality(&tt.result), 1e-9)
		})
	}
}

func TestAlignmentNeutralOnEvaluatorError(t *testing.T) {
	c := New(evalConfig("weighted_average"),
		&stubEvaluator{err: assert.AnError}, nil, logger.NewNopLogger())

	got := c.scoreAlignment(context.Background(), testTask())
	assert.InDelta(t, 0.5, got, 1e-9)
}

func TestLearningValueNoveltyDecays(t *testing.T) {
	store := memory.NewInMemoryStore()
	c := New(evalConfig("weighted_average"), nil, store, logger.NewNopLogger())
	ctx := context.Background()
	task := testTask()

	// Empty store: full novelty bonus.
	got := c.scoreLearningValue(ctx, task, &models.ExecutionResult{Success: true})
	assert.InDelta(t, 0.8, got, 1e-9)

	// Seed similar experiences; novelty fades.
	for i := 0; i < 3; i++ {
		require.NoError(t, store.Store(ctx, memory.NewEntry(memory.TypeExecution,
			"task type: data_processing run", nil, 0.8)))
	}
	got = c.scoreLearningValue(ctx, task, &models.ExecutionResult{Success: true})
	assert.InDelta(t, 0.5, got, 1e-9)

	// Failure adds learning value.
	got = c.scoreLearningValue(ctx, task, &models.ExecutionResult{Success: false})
	assert.InDelta(t, 0.7, got, 1e-9)
}

func TestAggregationModes(t *testing.T) {
	scores := map[string]float64{
		models.CriterionSuccess:            1.0,
		models.CriterionEfficiency:         0.8,
		models.CriterionQuality:            0.6,
		models.CriterionDirectiveAlignment: 0.4,
		models.CriterionLearningValue:      0.0,
	}

	t.Run("weighted_average", func(t *testing.T) {
		c := New(evalConfig("weighted_average"), nil, nil, logger.NewNopLogger())
		// 1.0*.4 + 0.8*.2 + 0.6*.2 + 0.4*.1 + 0*.1 = 0.72
		assert.InDelta(t, 0.72, c.aggregate(scores), 1e-9)
	})

	t.Run("minimum", func(t *testing.T) {
		c := New(evalConfig("minimum"), nil, nil, logger.NewNopLogger())
		assert.InDelta(t, 0.0, c.aggregate(scores), 1e-9)
	})

	t.Run("geometric_mean floors zeros", func(t *testing.T) {
		c := New(evalConfig("geometric_mean"), nil, nil, logger.NewNopLogger())
		got := c.aggregate(scores)
		assert.Greater(t, got, 0.0)
		assert.Less(t, got, 0.6)
	})
}

func TestRecommendationsForRetries(t *testing.T) {
	c := New(evalConfig("weighted_average"), perfectEvaluator(), nil, logger.NewNopLogger())

	result := &models.ExecutionResult{
		Success:    true,
		RetryCount: 2,
		Duration:   60 * time.Second,
		Output:     richOutput(),
	}
	eval, err := c.Evaluate(context.Background(), testTask(), result)
	require.NoError(t, err)

	assert.Contains(t, eval.Recommendations, "Investigate root cause of failures to reduce retries")
}

func TestEvaluationPersisted(t *testing.T) {
	store := memory.NewInMemoryStore()
	c := New(evalConfig("weighted_average"), perfectEvaluator(), store, logger.NewNopLogger())
	ctx := context.Background()

	_, err := c.Evaluate(ctx, testTask(), &models.ExecutionResult{
		Success: true, Duration: 30 * time.Second, Output: richOutput()})
	require.NoError(t, err)

	stored, err := store.ByType(ctx, memory.TypeEvaluation, 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.InDelta(t, 0.8, stored[0].Importance, 1e-9)
	assert.Contains(t, stored[0].Content, "Process data")
}

func TestPerformanceTrend(t *testing.T) {
	c := New(evalConfig("weighted_average"), perfectEvaluator(), nil, logger.NewNopLogger())
	ctx := context.Background()

	// One strong and one failed execution.
	_, err := c.Evaluate(ctx, testTask(), &models.ExecutionResult{
		Success: true, Duration: 30 * time.Second, Output: richOutput()})
	require.NoError(t, err)
	_, err = c.Evaluate(ctx, testTask(), &models.ExecutionResult{
		Success: false, Error: "timeout", Duration: 400 * time.Second})
	require.NoError(t, err)

	trend := c.PerformanceTrend(0)
	assert.Equal(t, 2, trend.Evaluations)
	assert.InDelta(t, 0.5, trend.SuccessRate, 1e-9)
	assert.NotEmpty(t, trend.WeakestCriterion)
	assert.Len(t, trend.CriteriaAverages, 5)
}
