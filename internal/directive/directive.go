// Package directive decides whether proposed actions align with the
// agent's prime directive, constraints and goals.
package directive

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/harrison/autopilot/internal/models"
)

// Decision is the outcome of evaluating a proposed action.
type Decision struct {
	Allowed         bool
	Confidence      float64
	GoalAlignment   float64
	Violations      []string
	Recommendations []string
}

// Evaluator judges proposed actions. The planner checks plan creation, the
// executor checks each task before running it.
type Evaluator interface {
	EvaluateAction(ctx context.Context, description, actionType string, actionCtx map[string]interface{}) (Decision, error)
}

// Constraint restricts agent behavior. Matching is keyword based.
type Constraint struct {
	Text           string
	Priority       models.TaskPriority
	Active         bool
	ViolationCount int
}

// Goal is something the agent works toward. Alignment scoring weights
// goals by priority.
type Goal struct {
	Text     string
	Priority models.TaskPriority
	Active   bool
}

// Manager is a rule-based Evaluator. Constraints are matched against
// action descriptions with keyword classes; goal alignment comes from
// keyword overlap between the action and active goals.
type Manager struct {
	mu             sync.Mutex
	primeDirective string
	constraints    []Constraint
	goals          []Goal
	evaluations    int
	allowed        int
	lastEvaluation time.Time
}

// NewManager builds a Manager from directive text, constraints and goals.
// Constraint and goal priorities are inferred from their wording.
func NewManager(primeDirective string, constraints, goals []string) *Manager {
	m := &Manager{primeDirective: primeDirective}
	for _, text := range constraints {
		m.constraints = append(m.constraints, Constraint{
			Text:     text,
			Priority: constraintPriority(text),
			Active:   true,
		})
	}
	for _, text := range goals {
		m.goals = append(m.goals, Goal{
			Text:     text,
			Priority: goalPriority(text),
			Active:   true,
		})
	}
	return m
}

func constraintPriority(text string) models.TaskPriority {
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, "harm", "damage", "destroy", "delete", "security"):
		return models.PriorityCritical
	case containsAny(lower, "privacy", "safety", "unauthorized"):
		return models.PriorityHigh
	case containsAny(lower, "resource", "limit", "budget"):
		return models.PriorityMedium
	default:
		return models.PriorityLow
	}
}

func goalPriority(text string) models.TaskPriority {
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, "productivity", "efficiency", "user"):
		return models.PriorityHigh
	case containsAny(lower, "learn", "adapt", "improve"):
		return models.PriorityMedium
	default:
		return models.PriorityLow
	}
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// EvaluateAction checks the proposed action against all active constraints
// and scores its alignment with active goals. When no constraint is
// violated, confidence is goal alignment plus 0.3, capped at 1.
func (m *Manager) EvaluateAction(ctx context.Context, description, actionType string, actionCtx map[string]interface{}) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	decision := Decision{Allowed: true, Confidence: 1.0}

	for i := range m.constraints {
		c := &m.constraints[i]
		if !c.Active {
			continue
		}
		if violation := checkConstraint(c.Text, description, actionType); violation != "" {
			decision.Violations = append(decision.Violations, violation)
			c.ViolationCount++
		}
	}
	if len(decision.Violations) > 0 {
		decision.Allowed = false
		decision.Confidence = 0
	}

	decision.GoalAlignment = m.goalAlignment(description)
	if decision.Allowed {
		decision.Confidence = min(1.0, decision.GoalAlignment+0.3)
	}

	decision.Recommendations = recommendations(decision)

	m.evaluations++
	if decision.Allowed {
		m.allowed++
	}
	m.lastEvaluation = time.Now()

	return decision, nil
}

// checkConstraint returns a violation message when the action trips the
// constraint's keyword class, or empty when it does not.
func checkConstraint(constraint, description, actionType string) string {
	constraintLower := strings.ToLower(constraint)
	actionLower := strings.ToLower(description)

	if strings.Contains(constraintLower, "harm") &&
		containsAny(actionLower, "delete", "remove", "destroy", "kill", "terminate") {
		return "Action may cause harm: " + constraint
	}
	if strings.Contains(constraintLower, "privacy") &&
		containsAny(actionLower, "personal", "private", "confidential", "secret") {
		return "Action may violate privacy: " + constraint
	}
	if strings.Contains(constraintLower, "security") &&
		containsAny(actionLower, "password", "key", "token", "credential") {
		return "Action may compromise security: " + constraint
	}
	if strings.Contains(constraintLower, "resource") &&
		(actionType == "system_command" || actionType == "file_operation") &&
		containsAny(actionLower, "infinite", "unlimited", "maximum") {
		return "Action may exceed resource limits: " + constraint
	}
	return ""
}

// alignmentKeywords maps goal concepts to action keywords that advance them.
var alignmentKeywords = map[string][]string{
	"productivity": {"automate", "optimize", "improve", "enhance", "speed"},
	"learn":        {"analyze", "study", "research", "experiment", "test"},
	"user":         {"help", "assist", "support", "provide", "deliver"},
	"security":     {"protect", "secure", "validate", "verify", "check"},
	"stability":    {"maintain", "monitor", "ensure", "preserve", "backup"},
}

func (m *Manager) goalAlignment(description string) float64 {
	var active []Goal
	for _, g := range m.goals {
		if g.Active {
			active = append(active, g)
		}
	}
	if len(active) == 0 {
		return 0.5 // neutral when no goals are defined
	}

	actionLower := strings.ToLower(description)
	total := 0.0
	for _, goal := range active {
		total += goalScore(goal, actionLower) * priorityWeight(goal.Priority)
	}
	return min(1.0, total/float64(len(active)))
}

func goalScore(goal Goal, actionLower string) float64 {
	goalLower := strings.ToLower(goal.Text)
	score := 0.0
	for concept, keywords := range alignmentKeywords {
		if !strings.Contains(goalLower, concept) {
			continue
		}
		for _, kw := range keywords {
			if strings.Contains(actionLower, kw) {
				score += 0.2
			}
		}
	}
	return min(1.0, score)
}

func priorityWeight(p models.TaskPriority) float64 {
	switch p {
	case models.PriorityCritical:
		return 1.0
	case models.PriorityHigh:
		return 0.8
	case models.PriorityMedium:
		return 0.6
	case models.PriorityLow:
		return 0.4
	default:
		return 0.5
	}
}

func recommendations(d Decision) []string {
	var recs []string
	if !d.Allowed {
		recs = append(recs,
			"Consider alternative approaches that don't violate constraints",
			"Seek approval before proceeding with restricted actions")
	}
	if d.GoalAlignment < 0.5 {
		recs = append(recs,
			"Consider how this action advances primary goals",
			"Add explicit goal-oriented outcomes to the action")
	}
	if d.Confidence < 0.7 {
		recs = append(recs,
			"Gather more context before proceeding",
			"Consider breaking action into smaller, validated steps")
	}
	return recs
}

// Stats summarizes evaluation activity for status reporting.
type Stats struct {
	Evaluations    int
	ApprovalRate   float64
	LastEvaluation time.Time
}

// Stats returns evaluation counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Stats{Evaluations: m.evaluations, LastEvaluation: m.lastEvaluation}
	if m.evaluations > 0 {
		s.ApprovalRate = float64(m.allowed) / float64(m.evaluations)
	}
	return s
}

// AddConstraint registers a new active constraint at runtime.
func (m *Manager) AddConstraint(text string, priority models.TaskPriority) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.constraints = append(m.constraints, Constraint{Text: text, Priority: priority, Active: true})
}

// AddGoal registers a new active goal at runtime.
func (m *Manager) AddGoal(text string, priority models.TaskPriority) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.goals = append(m.goals, Goal{Text: text, Priority: priority, Active: true})
}
