package cmd

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/autopilot/internal/models"
)

func TestPaintStatusPlain(t *testing.T) {
	assert.Equal(t, "completed", paintStatus("completed", false))
	assert.Equal(t, "failed", paintStatus("failed", false))
	assert.Equal(t, "pending", paintStatus("pending", false))
}

func TestPrintPlanShowsTasksAndDependencies(t *testing.T) {
	first := models.Task{
		ID:                "t1",
		Title:             "Validate Input",
		ActionType:        "validation",
		Priority:          models.PriorityHigh,
		Status:            models.StatusPending,
		EstimatedDuration: 60 * time.Second,
	}
	second := models.Task{
		ID:                "t2",
		Title:             "Process Records",
		Description:       "Transform the input set",
		ActionType:        "data_processing",
		Priority:          models.PriorityMedium,
		Status:            models.StatusPending,
		Dependencies:      []string{"t1"},
		EstimatedDuration: 180 * time.Second,
	}
	plan := &models.ExecutionPlan{
		ID:     "plan-1",
		Goal:   "process the records",
		Status: models.PlanActive,
		Tasks:  []models.Task{first, second},
	}

	buf := new(bytes.Buffer)
	printPlan(buf, plan, false)

	out := buf.String()
	assert.Contains(t, out, "process the records")
	assert.Contains(t, out, "1. Validate Input")
	assert.Contains(t, out, "2. Process Records")
	assert.Contains(t, out, "Transform the input set")
	assert.Contains(t, out, "depends on: [1]")
	assert.Contains(t, out, "~1m0s")
}

func TestPrintGoalResultAchieved(t *testing.T) {
	result := &models.GoalResult{
		Goal:           "ship the release",
		Achieved:       true,
		SuccessRate:    1.0,
		TasksCompleted: 3,
		TasksTotal:     3,
		Duration:       1500 * time.Millisecond,
	}

	buf := new(bytes.Buffer)
	printGoalResult(buf, result, false)

	out := buf.String()
	assert.Contains(t, out, "ACHIEVED")
	assert.NotContains(t, out, "NOT ACHIEVED")
	assert.Contains(t, out, "100%")
	assert.Contains(t, out, "3 completed, 0 failed, 3 total")
}

func TestPrintGoalResultFailurePatterns(t *testing.T) {
	result := &models.GoalResult{
		Goal:            "ship the release",
		Achieved:        false,
		SuccessRate:     0.5,
		TasksCompleted:  1,
		TasksFailed:     1,
		TasksTotal:      2,
		Error:           "plan ended with failed tasks",
		FailurePatterns: map[string]int{"timeout": 1},
	}

	buf := new(bytes.Buffer)
	printGoalResult(buf, result, false)

	out := buf.String()
	require.Contains(t, out, "NOT ACHIEVED")
	assert.Contains(t, out, "Failure Patterns:")
	assert.Contains(t, out, "timeout: 1")
	assert.Contains(t, out, "plan ended with failed tasks")
}
