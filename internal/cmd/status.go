package cmd

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/harrison/autopilot/internal/memory"
)

// NewStatusCommand creates the status command
func NewStatusCommand() *cobra.Command {
	var recentLimit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show agent memory and recent goal history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine(cmd)
			if err != nil {
				return err
			}
			defer eng.Close()

			ctx := cmd.Context()
			w := os.Stdout

			counts, err := eng.store.Count(ctx)
			if err != nil {
				return fmt.Errorf("failed to read memory store: %w", err)
			}

			fmt.Fprintf(w, "Memory: %s\n", eng.cfg.Memory.DBPath)
			if len(counts) == 0 {
				fmt.Fprintf(w, "  (empty)\n")
			} else {
				types := make([]string, 0, len(counts))
				for t := range counts {
					types = append(types, t)
				}
				sort.Strings(types)
				for _, t := range types {
					fmt.Fprintf(w, "  %-16s %d\n", t, counts[t])
				}
			}

			goals, err := eng.store.ByType(ctx, memory.TypeGoal, recentLimit)
			if err != nil {
				return fmt.Errorf("failed to read goal history: %w", err)
			}
			if len(goals) > 0 {
				fmt.Fprintf(w, "\nRecent Goals:\n")
				for _, entry := range goals {
					fmt.Fprintf(w, "  [%s] %s\n",
						entry.CreatedAt.Format(time.DateTime), entry.Content)
				}
			}

			return nil
		},
	}

	cmd.Flags().IntVar(&recentLimit, "recent", 5, "number of recent goals to show")

	return cmd
}
