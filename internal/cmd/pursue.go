package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/harrison/autopilot/internal/display"
	"github.com/harrison/autopilot/internal/models"
)

// NewPursueCommand creates the pursue command
func NewPursueCommand() *cobra.Command {
	var contextParams []string

	cmd := &cobra.Command{
		Use:   "pursue <goal>",
		Short: "Pursue a goal autonomously",
		Long: `Pursue decomposes the goal into a plan, executes it with adaptive
replanning, and prints a summary of the outcome.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			goal := args[0]

			eng, err := buildEngine(cmd)
			if err != nil {
				return err
			}
			defer eng.Close()

			params, err := parseContextParams(contextParams)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			progress := display.NewTaskProgress(os.Stdout)
			var failedMu sync.Mutex
			var failedTitles []string
			eng.observer.Subscribe(models.EventTaskCompleted, func(event models.Event) {
				progress.TaskDone(strings.TrimPrefix(event.Message, "Task completed: "), true)
			})
			eng.observer.Subscribe(models.EventTaskFailed, func(event models.Event) {
				title := strings.TrimPrefix(event.Message, "Task failed: ")
				progress.TaskDone(title, false)
				failedMu.Lock()
				failedTitles = append(failedTitles, title)
				failedMu.Unlock()
			})

			eng.agent.Start(ctx)
			defer eng.agent.Stop()

			progress.Start(goal)
			result := eng.agent.PursueGoal(ctx, goal, params)
			printGoalResult(os.Stdout, result, colorOutput())

			if !result.Achieved && result.TasksFailed > 0 {
				failedMu.Lock()
				titles := failedTitles
				failedMu.Unlock()
				display.WarnFailedTasks(
					fmt.Sprintf("%d task(s) failed", result.TasksFailed), titles,
				).Display(os.Stdout)
			}

			if !result.Achieved {
				return fmt.Errorf("goal not achieved: %s", goal)
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&contextParams, "param", "p", nil, "context parameter as key=value (repeatable)")

	return cmd
}
