package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// NewPlanCommand creates the plan command
func NewPlanCommand() *cobra.Command {
	var contextParams []string

	cmd := &cobra.Command{
		Use:   "plan <goal>",
		Short: "Decompose a goal into a plan without executing it",
		Args:  cobra.ExactArgs(1),
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

			plan, err := eng.planner.CreatePlan(cmd.Context(), goal, params)
			if err != nil {
				return fmt.Errorf("failed to create plan: %w", err)
			}

			printPlan(os.Stdout, plan, colorOutput())
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&contextParams, "param", "p", nil, "context parameter as key=value (repeatable)")

	return cmd
}

// parseContextParams converts key=value flags into plan context parameters.
func parseContextParams(pairs []string) (map[string]interface{}, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	params := make(map[string]interface{}, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q, expected key=value", pair)
		}
		params[key] = value
	}
	return params, nil
}
