package models

import "time"

// EventType identifies what happened in an observation event. The set is
// closed; Record calls with unknown types are rejected by the observer.
type EventType string

// Observation event types.
const (
	EventTaskCreated         EventType = "task_created"
	EventTaskStarted         EventType = "task_started"
	EventTaskCompleted       EventType = "task_completed"
	EventTaskFailed          EventType = "task_failed"
	EventTaskCancelled       EventType = "task_cancelled"
	EventPlanCreated         EventType = "plan_created"
	EventPlanCompleted       EventType = "plan_completed"
	EventExecutionStarted    EventType = "execution_started"
	EventExecutionCompleted  EventType = "execution_completed"
	EventEvaluationCompleted EventType = "evaluation_completed"
	EventAgentStarted        EventType = "agent_started"
	EventAgentStopped        EventType = "agent_stopped"
	EventErrorOccurred       EventType = "error_occurred"
	EventDirectiveViolation  EventType = "directive_violation"
	EventMemoryStored        EventType = "memory_stored"
	EventActionExecuted      EventType = "action_executed"
)

// Valid reports whether the event type belongs to the defined set.
func (e EventType) Valid() bool {
	switch e {
	case EventTaskCreated, EventTaskStarted, EventTaskCompleted,
		EventTaskFailed, EventTaskCancelled,
		EventPlanCreated, EventPlanCompleted,
		EventExecutionStarted, EventExecutionCompleted,
		EventEvaluationCompleted,
		EventAgentStarted, EventAgentStopped,
		EventErrorOccurred, EventDirectiveViolation,
		EventMemoryStored, EventActionExecuted:
		return true
	}
	return false
}

// Importance returns the default importance weight for the event type.
func (e EventType) Importance() float64 {
	switch e {
	case EventErrorOccurred, EventDirectiveViolation:
		return 0.9
	case EventTaskFailed:
		return 0.8
	case EventPlanCompleted:
		return 0.7
	case EventEvaluationCompleted:
		return 0.6
	case EventTaskCompleted:
		return 0.5
	case EventTaskStarted:
		return 0.3
	case EventMemoryStored:
		return 0.2
	default:
		return 0.4
	}
}

// Event is a single timestamped observation recorded by the observer.
type Event struct {
	ID         string                 `json:"id"`
	Type       EventType              `json:"type"`
	Source     string                 `json:"source"`
	Message    string                 `json:"message"`
	Data       map[string]interface{} `json:"data,omitempty"`
	Importance float64                `json:"importance"`
	Timestamp  time.Time              `json:"timestamp"`
}
