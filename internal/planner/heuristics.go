package planner

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/harrison/autopilot/internal/models"
)

// Base duration estimates per action type, in seconds.
var durationEstimates = map[string]int{
	"validation":        60,
	"planning":          120,
	"setup":             180,
	"file_operation":    90,
	"api_call":          120,
	"analysis":          300,
	"data_processing":   240,
	"execution":         180,
	"verification":      60,
	"testing":           150,
	"report_generation": 120,
}

const defaultDurationSeconds = 120

// Action-type classes driving automatic dependency assignment.
// Preparation tasks run first, execution tasks depend on all earlier
// preparation tasks, and checking tasks depend on all earlier execution
// tasks.
var (
	preparationTypes = map[string]bool{"validation": true, "setup": true, "planning": true}
	executionTypes   = map[string]bool{"execution": true, "api_call": true, "file_operation": true, "analysis": true}
	checkingTypes    = map[string]bool{"verification": true, "testing": true, "report_generation": true}
)

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// extractGoalTags derives category tags from the goal text.
func extractGoalTags(goal string) []string {
	var tags []string
	lower := strings.ToLower(goal)

	if containsAny(lower, "file", "document", "text") {
		tags = append(tags, "file_operation")
	}
	if containsAny(lower, "analyze", "research", "study") {
		tags = append(tags, "analysis")
	}
	if containsAny(lower, "create", "generate", "build") {
		tags = append(tags, "creation")
	}
	if containsAny(lower, "api", "request", "endpoint") {
		tags = append(tags, "api_operation")
	}
	if containsAny(lower, "data", "information", "collect") {
		tags = append(tags, "data_processing")
	}
	if containsAny(lower, "automate", "schedule", "recurring") {
		tags = append(tags, "automation")
	}
	return tags
}

// taskTemplate is one step of a heuristic decomposition.
type taskTemplate struct {
	title       string
	description string
	actionType  string
	priority    models.TaskPriority
	parameters  map[string]interface{}
	useContext  bool
}

// heuristicDecompose turns a goal into a small template of tasks based on
// keyword classes. Each class produces a validate/execute/verify shaped
// sequence.
func heuristicDecompose(goal string, ctxParams map[string]interface{}) []models.Task {
	lower := strings.ToLower(goal)

	var templates []taskTemplate
	switch {
	case containsAny(lower, "create file", "write file", "generate file"):
		templates = []taskTemplate{
			{"Validate File Operation Parameters", "Validate file paths, permissions, and requirements",
				"validation", models.PriorityHigh, map[string]interface{}{"validation_type": "file_operation"}, false},
			{"Execute File Operation", fmt.Sprintf("Perform the file operation: %s", goal),
				"file_operation", models.PriorityMedium, nil, true},
			{"Verify File Operation", "Verify the file operation was successful",
				"verification", models.PriorityMedium, map[string]interface{}{"verification_type": "file_operation"}, false},
		}
	case containsAny(lower, "analyze", "research", "study", "investigate"):
		templates = []taskTemplate{
			{"Gather Information", "Collect relevant data and information for analysis",
				"setup", models.PriorityHigh, nil, true},
			{"Perform Analysis", fmt.Sprintf("Analyze the gathered data: %s", goal),
				"analysis", models.PriorityMedium, nil, true},
			{"Generate Report", "Compile analysis results into a report",
				"report_generation", models.PriorityLow, map[string]interface{}{"format": "text"}, false},
		}
	case containsAny(lower, "api", "request", "endpoint", "call"):
		templates = []taskTemplate{
			{"Validate API Parameters", "Validate API endpoint, authentication, and parameters",
				"validation", models.PriorityHigh, map[string]interface{}{"validation_type": "api_endpoint"}, true},
			{"Execute API Call", fmt.Sprintf("Make the API call: %s", goal),
				"api_call", models.PriorityMedium, nil, true},
			{"Verify API Response", "Verify and check the API response",
				"verification", models.PriorityMedium, nil, false},
		}
	case containsAny(lower, "process data", "transform", "convert"):
		templates = []taskTemplate{
			{"Validate Input Data", "Validate the structure and quality of input data",
				"validation", models.PriorityHigh, nil, true},
			{"Process Data", fmt.Sprintf("Process the data: %s", goal),
				"data_processing", models.PriorityMedium, nil, true},
			{"Verify Output", "Verify the processed data output",
				"verification", models.PriorityMedium, nil, false},
		}
	case containsAny(lower, "automate", "schedule", "monitor"):
		templates = []taskTemplate{
			{"Setup Automation", "Configure automation parameters and triggers",
				"setup", models.PriorityHigh, nil, true},
			{"Implement Automation", fmt.Sprintf("Implement the automation: %s", goal),
				"execution", models.PriorityMedium, nil, true},
			{"Test Automation", "Test the automation to ensure it works correctly",
				"testing", models.PriorityHigh, nil, false},
		}
	default:
		templates = []taskTemplate{
			{"Plan Approach", fmt.Sprintf("Plan the approach to achieve: %s", goal),
				"planning", models.PriorityHigh, nil, true},
			{"Execute Plan", fmt.Sprintf("Execute the planned approach: %s", goal),
				"execution", models.PriorityMedium, nil, true},
			{"Verify Results", "Verify that the goal was achieved",
				"verification", models.PriorityMedium, map[string]interface{}{"verification_type": "goal_achievement"}, false},
		}
	}

	tasks := make([]models.Task, 0, len(templates))
	for _, tpl := range templates {
		params := make(map[string]interface{}, len(tpl.parameters)+len(ctxParams))
		for k, v := range tpl.parameters {
			params[k] = v
		}
		if tpl.useContext {
			for k, v := range ctxParams {
				params[k] = v
			}
		}
		tasks = append(tasks, models.Task{
			ID:          uuid.New().String(),
			Title:       tpl.title,
			Description: tpl.description,
			ActionType:  tpl.actionType,
			Parameters:  params,
			Priority:    tpl.priority,
			Status:      models.StatusPending,
			MaxRetries:  3,
			CreatedAt:   time.Now(),
		})
	}
	return tasks
}

// assignDependencies wires tasks by class: execution tasks depend on all
// earlier preparation tasks, checking tasks on all earlier execution
// tasks. Preparation tasks get no automatic dependencies.
func assignDependencies(tasks []models.Task) {
	for i := range tasks {
		task := &tasks[i]
		switch {
		case preparationTypes[task.ActionType]:
		case executionTypes[task.ActionType]:
			for j := 0; j < i; j++ {
				if preparationTypes[tasks[j].ActionType] && !contains(task.Dependencies, tasks[j].ID) {
					task.Dependencies = append(task.Dependencies, tasks[j].ID)
				}
			}
		case checkingTypes[task.ActionType]:
			for j := 0; j < i; j++ {
				if executionTypes[tasks[j].ActionType] && !contains(task.Dependencies, tasks[j].ID) {
					task.Dependencies = append(task.Dependencies, tasks[j].ID)
				}
			}
		}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// estimateDurations fills in estimates for tasks that have none, using
// the per-type base scaled by description complexity.
func estimateDurations(tasks []models.Task) {
	for i := range tasks {
		task := &tasks[i]
		if task.EstimatedDuration > 0 {
			continue
		}

		base, ok := durationEstimates[task.ActionType]
		if !ok {
			base = defaultDurationSeconds
		}

		factor := 1.0
		desc := strings.ToLower(task.Description)
		if containsAny(desc, "complex", "detailed", "comprehensive") {
			factor = 1.5
		} else if containsAny(desc, "simple", "basic", "quick") {
			factor = 0.7
		}

		task.EstimatedDuration = time.Duration(float64(base)*factor) * time.Second
	}
}
