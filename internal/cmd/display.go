package cmd

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/harrison/autopilot/internal/models"
)

var (
	successColor = color.New(color.FgGreen)
	failureColor = color.New(color.FgRed)
	pendingColor = color.New(color.FgYellow)
)

// colorOutput reports whether stdout is a terminal that can render color.
func colorOutput() bool {
	return isatty.IsTerminal(os.Stdout.Fd())
}

// paintStatus renders a task or plan status, colorized when enabled.
func paintStatus(status string, colorized bool) string {
	if !colorized {
		return status
	}
	switch status {
	case string(models.StatusCompleted):
		return successColor.Sprint(status)
	case string(models.StatusFailed), string(models.StatusCancelled):
		return failureColor.Sprint(status)
	default:
		return pendingColor.Sprint(status)
	}
}

// printPlan writes a plan's task breakdown in dependency-ordered form.
func printPlan(w io.Writer, plan *models.ExecutionPlan, colorized bool) {
	fmt.Fprintf(w, "Plan %s\n", plan.ID)
	fmt.Fprintf(w, "  Goal: %s\n", plan.Goal)
	fmt.Fprintf(w, "  Status: %s\n", paintStatus(string(plan.Status), colorized))
	fmt.Fprintf(w, "  Tasks: %d\n\n", len(plan.Tasks))

	index := make(map[string]int, len(plan.Tasks))
	for i := range plan.Tasks {
		index[plan.Tasks[i].ID] = i + 1
	}

	for i := range plan.Tasks {
		task := &plan.Tasks[i]
		fmt.Fprintf(w, "  %d. %s [%s, %s, ~%s]\n",
			i+1, task.Title, task.ActionType, task.Priority,
			task.EstimatedDuration.Round(time.Second))
		if task.Description != "" {
			fmt.Fprintf(w, "     %s\n", task.Description)
		}
		if len(task.Dependencies) > 0 {
			nums := make([]int, 0, len(task.Dependencies))
			for _, dep := range task.Dependencies {
				if n, ok := index[dep]; ok {
					nums = append(nums, n)
				}
			}
			sort.Ints(nums)
			fmt.Fprintf(w, "     depends on: %v\n", nums)
		}
	}
}

// printGoalResult writes a pursuit summary in the run-summary format.
func printGoalResult(w io.Writer, result *models.GoalResult, colorized bool) {
	outcome := "NOT ACHIEVED"
	paint := failureColor
	if result.Achieved {
		outcome = "ACHIEVED"
		paint = successColor
	}
	if colorized {
		outcome = paint.Sprint(outcome)
	}

	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "Goal Summary:\n")
	fmt.Fprintf(w, "  Goal: %s\n", result.Goal)
	fmt.Fprintf(w, "  Outcome: %s\n", outcome)
	fmt.Fprintf(w, "  Success rate: %.0f%%\n", result.SuccessRate*100)
	fmt.Fprintf(w, "  Tasks: %d completed, %d failed, %d total\n",
		result.TasksCompleted, result.TasksFailed, result.TasksTotal)
	fmt.Fprintf(w, "  Replanning rounds: %d\n", result.ReplanningAttempts)
	fmt.Fprintf(w, "  Duration: %s\n", result.Duration.Round(time.Millisecond))

	if result.Error != "" {
		fmt.Fprintf(w, "  Error: %s\n", result.Error)
	}
	if len(result.FailurePatterns) > 0 {
		fmt.Fprintf(w, "\nFailure Patterns:\n")
		patterns := make([]string, 0, len(result.FailurePatterns))
		for p := range result.FailurePatterns {
			patterns = append(patterns, p)
		}
		sort.Strings(patterns)
		for _, p := range patterns {
			fmt.Fprintf(w, "  - %s: %d\n", p, result.FailurePatterns[p])
		}
	}
}
