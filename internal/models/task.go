// Package models defines the core data structures shared across the
// autopilot engine: tasks, plans, execution results, evaluations, safety
// violations and observation events.
//
// These types carry no behavior beyond validation and small derived
// queries; the planner, executor, critic, observer and safety packages
// operate on them.
package models

import (
	"fmt"
	"time"
)

// TaskPriority represents the urgency of a task.
type TaskPriority string

// Task priority levels, ordered from most to least urgent.
const (
	PriorityCritical TaskPriority = "critical"
	PriorityHigh     TaskPriority = "high"
	PriorityMedium   TaskPriority = "medium"
	PriorityLow      TaskPriority = "low"
)

// Weight returns the numeric ordering weight for the priority.
// Higher weight means the task should run earlier.
func (p TaskPriority) Weight() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 2
	}
}

// Valid reports whether the priority is one of the defined levels.
func (p TaskPriority) Valid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

// Task lifecycle states. A task moves pending -> ready -> in_progress and
// then to exactly one of completed, failed or cancelled.
const (
	StatusPending    TaskStatus = "pending"
	StatusReady      TaskStatus = "ready"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed"
	StatusCancelled  TaskStatus = "cancelled"
)

// Terminal reports whether the status is a final state.
func (s TaskStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Valid reports whether the status is one of the defined states.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusPending, StatusReady, StatusInProgress,
		StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Task is a single unit of work inside an execution plan.
type Task struct {
	ID                string                 `json:"id" yaml:"id"`
	Title             string                 `json:"title" yaml:"title"`
	Description       string                 `json:"description" yaml:"description"`
	ActionType        string                 `json:"action_type" yaml:"action_type"`
	Parameters        map[string]interface{} `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Priority          TaskPriority           `json:"priority" yaml:"priority"`
	Status            TaskStatus             `json:"status" yaml:"status"`
	Dependencies      []string               `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	EstimatedDuration time.Duration          `json:"estimated_duration" yaml:"estimated_duration"`
	MaxRetries        int                    `json:"max_retries" yaml:"max_retries"`
	RetryCount        int                    `json:"retry_count" yaml:"retry_count"`
	CreatedAt         time.Time              `json:"created_at" yaml:"created_at"`
	StartedAt         *time.Time             `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	CompletedAt       *time.Time             `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	Result            map[string]interface{} `json:"result,omitempty" yaml:"result,omitempty"`
	Error             string                 `json:"error,omitempty" yaml:"error,omitempty"`
	Tags              []string               `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Validate checks that the task has the minimum required fields and that
// enum-valued fields hold defined values.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("task ID is required")
	}
	if t.Title == "" {
		return fmt.Errorf("task %s: title is required", t.ID)
	}
	if t.ActionType == "" {
		return fmt.Errorf("task %s: action type is required", t.ID)
	}
	if !t.Priority.Valid() {
		return fmt.Errorf("task %s: invalid priority %q", t.ID, t.Priority)
	}
	if !t.Status.Valid() {
		return fmt.Errorf("task %s: invalid status %q", t.ID, t.Status)
	}
	if t.MaxRetries < 0 {
		return fmt.Errorf("task %s: max retries cannot be negative", t.ID)
	}
	for _, dep := range t.Dependencies {
		if dep == t.ID {
			return fmt.Errorf("task %s: depends on itself", t.ID)
		}
	}
	return nil
}

// IsReady reports whether every dependency of the task appears in the
// completed set. Tasks with no dependencies are always ready.
func (t *Task) IsReady(completed map[string]bool) bool {
	for _, dep := range t.Dependencies {
		if !completed[dep] {
			return false
		}
	}
	return true
}

// HasTag reports whether the task carries the given tag.
func (t *Task) HasTag(tag string) bool {
	for _, tg := range t.Tags {
		if tg == tag {
			return true
		}
	}
	return false
}

// ActualDuration returns the observed wall-clock duration of the task,
// or zero if it has not both started and finished.
func (t *Task) ActualDuration() time.Duration {
	if t.StartedAt == nil || t.CompletedAt == nil {
		return 0
	}
	return t.CompletedAt.Sub(*t.StartedAt)
}

// Node colors for cycle detection.
const (
	colorWhite = iota // unvisited
	colorGray         // in progress
	colorBlack        // fully explored
)

// HasCyclicDependencies detects circular dependencies in a task set using
// DFS with three-color marking. References to unknown task IDs are ignored
// here; Validate catches structural problems per task.
func HasCyclicDependencies(tasks []Task) bool {
	byID := make(map[string]*Task, len(tasks))
	for i := range tasks {
		byID[tasks[i].ID] = &tasks[i]
	}

	colors := make(map[string]int, len(tasks))

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = colorGray
		task := byID[id]
		for _, dep := range task.Dependencies {
			if _, known := byID[dep]; !known {
				continue
			}
			switch colors[dep] {
			case colorGray:
				return true
			case colorWhite:
				if visit(dep) {
					return true
				}
			}
		}
		colors[id] = colorBlack
		return false
	}

	for id := range byID {
		if colors[id] == colorWhite {
			if visit(id) {
				return true
			}
		}
	}
	return false
}
