package models

import (
	"fmt"
	"time"
)

// PlanStatus represents the lifecycle state of an execution plan.
type PlanStatus string

// Plan lifecycle states.
const (
	PlanActive    PlanStatus = "active"
	PlanCompleted PlanStatus = "completed"
	PlanFailed    PlanStatus = "failed"
	PlanCancelled PlanStatus = "cancelled"
)

// ExecutionPlan is an ordered collection of tasks produced by the planner
// for a single goal.
type ExecutionPlan struct {
	ID        string                 `json:"id" yaml:"id"`
	Goal      string                 `json:"goal" yaml:"goal"`
	Tasks     []Task                 `json:"tasks" yaml:"tasks"`
	Status    PlanStatus             `json:"status" yaml:"status"`
	CreatedAt time.Time              `json:"created_at" yaml:"created_at"`
	Metadata  map[string]interface{} `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Validate checks the plan and every task in it, including dependency
// references and acyclicity.
func (p *ExecutionPlan) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("plan ID is required")
	}
	if p.Goal == "" {
		return fmt.Errorf("plan %s: goal is required", p.ID)
	}

	ids := make(map[string]bool, len(p.Tasks))
	for i := range p.Tasks {
		task := &p.Tasks[i]
		if err := task.Validate(); err != nil {
			return fmt.Errorf("plan %s: %w", p.ID, err)
		}
		if ids[task.ID] {
			return fmt.Errorf("plan %s: duplicate task ID %s", p.ID, task.ID)
		}
		ids[task.ID] = true
	}

	for i := range p.Tasks {
		for _, dep := range p.Tasks[i].Dependencies {
			if !ids[dep] {
				return fmt.Errorf("plan %s: task %s depends on unknown task %s",
					p.ID, p.Tasks[i].ID, dep)
			}
		}
	}

	if HasCyclicDependencies(p.Tasks) {
		return fmt.Errorf("plan %s: circular dependency detected", p.ID)
	}
	return nil
}

// Task returns a pointer to the task with the given ID, or nil.
func (p *ExecutionPlan) Task(id string) *Task {
	for i := range p.Tasks {
		if p.Tasks[i].ID == id {
			return &p.Tasks[i]
		}
	}
	return nil
}

// CompletedIDs returns the set of task IDs in completed status.
func (p *ExecutionPlan) CompletedIDs() map[string]bool {
	done := make(map[string]bool)
	for i := range p.Tasks {
		if p.Tasks[i].Status == StatusCompleted {
			done[p.Tasks[i].ID] = true
		}
	}
	return done
}

// CountByStatus tallies tasks by lifecycle state.
func (p *ExecutionPlan) CountByStatus() map[TaskStatus]int {
	counts := make(map[TaskStatus]int)
	for i := range p.Tasks {
		counts[p.Tasks[i].Status]++
	}
	return counts
}

// AllTerminal reports whether every task has reached a final state.
func (p *ExecutionPlan) AllTerminal() bool {
	for i := range p.Tasks {
		if !p.Tasks[i].Status.Terminal() {
			return false
		}
	}
	return len(p.Tasks) > 0
}

// SuccessRate returns completed / total tasks, or 0 for an empty plan.
func (p *ExecutionPlan) SuccessRate() float64 {
	if len(p.Tasks) == 0 {
		return 0
	}
	completed := 0
	for i := range p.Tasks {
		if p.Tasks[i].Status == StatusCompleted {
			completed++
		}
	}
	return float64(completed) / float64(len(p.Tasks))
}
