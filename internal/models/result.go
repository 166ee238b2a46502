package models

import "time"

// ExecutionResult captures the outcome of one task execution, including
// retries that happened inside the attempt loop.
type ExecutionResult struct {
	TaskID      string                 `json:"task_id"`
	Title       string                 `json:"title"`
	ActionType  string                 `json:"action_type"`
	Success     bool                   `json:"success"`
	Output      map[string]interface{} `json:"output,omitempty"`
	Error       string                 `json:"error,omitempty"`
	Duration    time.Duration          `json:"duration"`
	RetryCount  int                    `json:"retry_count"`
	Skipped     bool                   `json:"skipped,omitempty"`
	StartedAt   time.Time              `json:"started_at"`
	CompletedAt time.Time              `json:"completed_at"`
}

// GoalResult is the structured outcome of a full goal pursuit.
type GoalResult struct {
	Goal               string             `json:"goal"`
	PlanID             string             `json:"plan_id,omitempty"`
	Achieved           bool               `json:"achieved"`
	SuccessRate        float64            `json:"success_rate"`
	TasksCompleted     int                `json:"tasks_completed"`
	TasksFailed        int                `json:"tasks_failed"`
	TasksTotal         int                `json:"tasks_total"`
	ReplanningAttempts int                `json:"replanning_attempts"`
	Duration           time.Duration      `json:"duration"`
	Error              string             `json:"error,omitempty"`
	FailurePatterns    map[string]int     `json:"failure_patterns,omitempty"`
	Evaluations        map[string]float64 `json:"evaluations,omitempty"`
}
