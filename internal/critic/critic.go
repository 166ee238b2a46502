// Package critic scores completed task executions on five criteria and
// aggregates them into an overall judgment with feedback and
// recommendations.
package critic

import (
	"context"
	"fmt"
	"math"
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

// criteriaWeights are the fixed weights for the weighted_average
// aggregation.
var criteriaWeights = map[string]float64{
	models.CriterionSuccess:            0.4,
	models.CriterionEfficiency:         0.2,
	models.CriterionQuality:            0.2,
	models.CriterionDirectiveAlignment: 0.1,
	models.CriterionLearningValue:      0.1,
}

// minSamplesForBaseline is how many observed durations of one action type
// are needed before they replace the configured baseline.
const minSamplesForBaseline = 3

// Critic evaluates task executions.
type Critic struct {
	evaluator   directive.Evaluator
	store       memory.Store
	log         logger.Logger
	aggregation string
	baseline    time.Duration

	mu          sync.Mutex
	evaluations []models.Evaluation
	durations   map[string][]time.Duration // observed per action type
}

// New creates a Critic. evaluator and store may be nil; alignment then
// defaults to neutral and nothing is persisted.
func New(cfg config.EvaluationConfig, evaluator directive.Evaluator, store memory.Store, log logger.Logger) *Critic {
	if log == nil {
		log = logger.NewNopLogger()
	}
	baseline := time.Duration(cfg.BaselineSeconds) * time.Second
	if baseline <= 0 {
		baseline = 120 * time.Second
	}
	aggregation := cfg.Aggregation
	if aggregation == "" {
		aggregation = "weighted_average"
	}
	return &Critic{
		evaluator:   evaluator,
		store:       store,
		log:         log,
		aggregation: aggregation,
		baseline:    baseline,
		durations:   make(map[string][]time.Duration),
	}
}

// Evaluate scores one execution. It always returns an evaluation; internal
// collaborator failures degrade single criteria instead of failing the
// whole evaluation.
func (c *Critic) Evaluate(ctx context.Context, task *models.Task, result *models.ExecutionResult) (*models.Evaluation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	scores := map[string]float64{
		models.CriterionSuccess:            scoreSuccess(result),
		models.CriterionEfficiency:         c.scoreEfficiency(task, result),
		models.CriterionQuality:            scoreQuality(result),
		models.CriterionDirectiveAlignment: c.scoreAlignment(ctx, task),
		models.CriterionLearningValue:      c.scoreLearningValue(ctx, task, result),
	}

	overall := c.aggregate(scores)

	eval := models.Evaluation{
		ID:              uuid.New().String(),
		TaskID:          task.ID,
		ActionType:      task.ActionType,
		Scores:          scores,
		Overall:         overall,
		Level:           models.LevelForScore(overall),
		Feedback:        feedback(result, scores),
		Recommendations: recommendations(result, scores),
		EvaluatedAt:     time.Now(),
	}

	c.mu.Lock()
	c.evaluations = append(c.evaluations, eval)
	c.durations[task.ActionType] = append(c.durations[task.ActionType], result.Duration)
	c.mu.Unlock()

	c.log.LogDebug(fmt.Sprintf("evaluated task %s: %s (%.2f)", task.ID, eval.Level, overall))

	c.persist(ctx, task, result, &eval)

	return &eval, nil
}

// scoreSuccess rewards clean completion and penalizes retries; failures
// get partial credit only when they degraded gracefully.
func scoreSuccess(result *models.ExecutionResult) float64 {
	if result.Success {
		penalty := math.Min(0.3, float64(result.RetryCount)*0.1)
		return math.Max(0, 1.0-penalty)
	}
	if strings.Contains(strings.ToLower(result.Error), "graceful") {
		return 0.2
	}
	return 0.0
}

// scoreEfficiency compares actual duration against the baseline for the
// task's action type.
func (c *Critic) scoreEfficiency(task *models.Task, result *models.ExecutionResult) float64 {
	baseline := c.baselineFor(task.ActionType)
	actual := result.Duration

	switch {
	case actual <= baseline/2:
		return 1.0
	case actual <= baseline:
		return 0.8
	case actual <= baseline*3/2:
		return 0.6
	case actual <= baseline*2:
		return 0.4
	default:
		return 0.2
	}
}

// baselineFor returns the observed average duration of the action type
// once enough samples exist, the configured baseline otherwise.
func (c *Critic) baselineFor(actionType string) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	samples := c.durations[actionType]
	if len(samples) < minSamplesForBaseline {
		return c.baseline
	}
	var total time.Duration
	for _, d := range samples {
		total += d
	}
	return total / time.Duration(len(samples))
}

// scoreQuality inspects the result payload for comprehensiveness,
// error-handling, metadata and validation markers.
func scoreQuality(result *models.ExecutionResult) float64 {
	if !result.Success {
		return 0.0
	}

	score := 0.5
	output := result.Output

	if len(output) >= 3 {
		score += 0.2
	}
	if hasAnyKey(output, "error", "errors") {
		score += 0.1
	}
	if hasAnyKey(output, "metadata", "details", "summary") {
		score += 0.1
	}
	if hasAnyKey(output, "validated", "verified", "checks") {
		score += 0.1
	}
	return math.Min(1.0, score)
}

func hasAnyKey(m map[string]interface{}, keys ...string) bool {
	for _, k := range keys {
		if _, ok := m[k]; ok {
			return true
		}
	}
	return false
}

// scoreAlignment asks the directive evaluator about the completed task.
// Evaluator failures yield a neutral 0.5.
func (c *Critic) scoreAlignment(ctx context.Context, task *models.Task) float64 {
	if c.evaluator == nil {
		return 0.5
	}
	decision, err := c.evaluator.EvaluateAction(ctx,
		fmt.Sprintf("Evaluate completed task: %s", task.Title),
		task.ActionType, task.Parameters)
	if err != nil {
		c.log.LogWarn(fmt.Sprintf("alignment evaluation failed for task %s: %v", task.ID, err))
		return 0.5
	}
	return (decision.Confidence + decision.GoalAlignment) / 2
}

// scoreLearningValue rewards novel task types, failures (mistakes teach)
// and rich results.
func (c *Critic) scoreLearningValue(ctx context.Context, task *models.Task, result *models.ExecutionResult) float64 {
	score := 0.5

	similar := 0
	if c.store != nil {
		entries, err := c.store.Query(ctx, fmt.Sprintf("task type: %s", task.ActionType), 5)
		if err != nil {
			c.log.LogWarn(fmt.Sprintf("similar-task lookup failed: %v", err))
		} else {
			similar = len(entries)
		}
	}
	score += math.Max(0, 0.3-float64(similar)*0.1)

	if !result.Success {
		score += 0.2
	}
	if len(result.Output) > 3 {
		score += 0.1
	}
	return math.Min(1.0, score)
}

// aggregate combines criterion scores per the configured model.
func (c *Critic) aggregate(scores map[string]float64) float64 {
	switch c.aggregation {
	case "minimum":
		minScore := 1.0
		for _, s := range scores {
			if s < minScore {
				minScore = s
			}
		}
		return minScore
	case "geometric_mean":
		product := 1.0
		for _, s := range scores {
			product *= math.Max(0.01, s)
		}
		return math.Pow(product, 1.0/float64(len(scores)))
	default: // weighted_average
		total, totalWeight := 0.0, 0.0
		for criterion, s := range scores {
			w := criteriaWeights[criterion]
			total += s * w
			totalWeight += w
		}
		if totalWeight == 0 {
			return 0
		}
		return total / totalWeight
	}
}

func feedback(result *models.ExecutionResult, scores map[string]float64) []string {
	var fb []string

	switch {
	case scores[models.CriterionSuccess] >= 0.8:
		fb = append(fb, "Task completed successfully with minimal issues")
	case scores[models.CriterionSuccess] >= 0.5:
		fb = append(fb, "Task completed but with some difficulties")
	default:
		fb = append(fb, "Task failed to complete successfully")
	}

	if scores[models.CriterionEfficiency] >= 0.8 {
		fb = append(fb, "Task was executed efficiently")
	} else if scores[models.CriterionEfficiency] < 0.5 {
		fb = append(fb, "Task execution was inefficient - took longer than expected")
	}

	if scores[models.CriterionQuality] >= 0.8 {
		fb = append(fb, "High quality results with good detail and validation")
	} else if scores[models.CriterionQuality] < 0.5 {
		fb = append(fb, "Results could be more comprehensive and detailed")
	}

	if result.RetryCount > 0 {
		fb = append(fb, fmt.Sprintf("Required %d retries to complete", result.RetryCount))
	}
	if result.Error != "" {
		fb = append(fb, fmt.Sprintf("Error encountered: %s", result.Error))
	}
	return fb
}

func recommendations(result *models.ExecutionResult, scores map[string]float64) []string {
	var recs []string

	if scores[models.CriterionEfficiency] < 0.6 {
		recs = append(recs,
			"Consider optimizing task parameters for better performance",
			"Review task complexity and break down if needed")
	}
	if scores[models.CriterionQuality] < 0.6 {
		recs = append(recs,
			"Add more validation and error checking",
			"Enhance result formatting and detail")
	}
	if scores[models.CriterionSuccess] < 0.7 {
		recs = append(recs,
			"Review task requirements and constraints",
			"Improve error handling and recovery mechanisms")
	}
	if result.RetryCount > 1 {
		recs = append(recs,
			"Investigate root cause of failures to reduce retries",
			"Consider alternative approaches for this task type")
	}
	if scores[models.CriterionDirectiveAlignment] < 0.6 {
		recs = append(recs,
			"Ensure task aligns better with agent directives",
			"Review goal prioritization and constraints")
	}
	return recs
}

// persist mirrors the evaluation into the memory store.
func (c *Critic) persist(ctx context.Context, task *models.Task, result *models.ExecutionResult, eval *models.Evaluation) {
	if c.store == nil {
		return
	}
	entry := memory.NewEntry(memory.TypeEvaluation,
		fmt.Sprintf("Task evaluation: %s - %s", task.Title, eval.Level),
		map[string]interface{}{
			"task_id":        task.ID,
			"task_type":      task.ActionType,
			"overall_score":  eval.Overall,
			"score_level":    string(eval.Level),
			"criteria":       eval.Scores,
			"execution_time": result.Duration.Seconds(),
			"success":        result.Success,
			"retry_count":    result.RetryCount,
		}, 0.8)
	if err := c.store.Store(ctx, entry); err != nil {
		c.log.LogWarn(fmt.Sprintf("failed to store evaluation memory: %v", err))
	}
}

// Trend summarizes recent evaluations.
type Trend struct {
	Evaluations      int
	AverageScore     float64
	SuccessRate      float64
	CriteriaAverages map[string]float64
	WeakestCriterion string
	Distribution     map[models.EvaluationLevel]int
}

// PerformanceTrend aggregates the last n evaluations (all when n <= 0).
func (c *Critic) PerformanceTrend(n int) Trend {
	c.mu.Lock()
	evals := c.evaluations
	if n > 0 && len(evals) > n {
		evals = evals[len(evals)-n:]
	}
	evals = append([]models.Evaluation(nil), evals...)
	c.mu.Unlock()

	trend := Trend{
		Evaluations:      len(evals),
		CriteriaAverages: make(map[string]float64),
		Distribution:     make(map[models.EvaluationLevel]int),
	}
	if len(evals) == 0 {
		return trend
	}

	var totalScore float64
	good := 0
	criteriaTotals := make(map[string]float64)
	for _, e := range evals {
		totalScore += e.Overall
		if e.Overall >= 0.7 {
			good++
		}
		trend.Distribution[e.Level]++
		for criterion, s := range e.Scores {
			criteriaTotals[criterion] += s
		}
	}

	trend.AverageScore = totalScore / float64(len(evals))
	trend.SuccessRate = float64(good) / float64(len(evals))

	weakest := ""
	weakestAvg := math.Inf(1)
	for criterion, total := range criteriaTotals {
		avg := total / float64(len(evals))
		trend.CriteriaAverages[criterion] = avg
		if avg < weakestAvg {
			weakestAvg = avg
			weakest = criterion
		}
	}
	trend.WeakestCriterion = weakest
	return trend
}
