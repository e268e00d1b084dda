package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"scrumgame/internal/domain"
	"scrumgame/internal/engine"
)

const dateLayout = "2006-01-02"

func sprintCmd() *cobra.Command {
	sp := &cobra.Command{Use: "sprint", Short: "Manage sprints"}
	sp.AddCommand(sprintCreateCmd())
	sp.AddCommand(sprintListCmd())
	sp.AddCommand(sprintCurrentCmd())
	sp.AddCommand(sprintStatsCmd())
	return sp
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD or RFC3339", raw)
	}
	return t, nil
}

func printSprints(items []domain.Sprint) error {
	rows := make([]table.Row, 0, len(items))
	for _, s := range items {
		planned := "-"
		if s.StoryPointsPlanned != nil {
			planned = strconv.Itoa(*s.StoryPointsPlanned)
		}
		rows = append(rows, table.Row{s.Number, s.Name, s.StartDate.Format(dateLayout), s.EndDate.Format(dateLayout), planned, s.Goal})
	}
	return printTable(items, table.Row{"#", "Name", "Start", "End", "Planned", "Goal"}, rows)
}

func sprintCreateCmd() *cobra.Command {
	var (
		number     int
		planned    int
		name, goal string
		start, end string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a sprint",
		RunE: func(cmd *cobra.Command, args []string) error {
			startDate, err := parseDate(start)
			if err != nil {
				return err
			}
			endDate, err := parseDate(end)
			if err != nil {
				return err
			}
			opts := engine.SprintCreateOptions{Number: number, Name: name, Goal: goal, StartDate: startDate, EndDate: endDate}
			if cmd.Flags().Changed("planned") {
				opts.StoryPointsPlanned = &planned
			}
			return withProject(cmd.Context(), func(ctx context.Context, e *engine.Engine, id string) error {
				s, err := e.CreateSprint(ctx, id, opts)
				if err != nil {
					return err
				}
				return printSprints([]domain.Sprint{s})
			})
		},
	}
	cmd.Flags().IntVar(&number, "number", 0, "sprint number (next free when 0)")
	cmd.Flags().IntVar(&planned, "planned", 0, "planned story points")
	cmd.Flags().StringVar(&name, "name", "", "sprint name")
	cmd.Flags().StringVar(&goal, "goal", "", "sprint goal")
	cmd.Flags().StringVar(&start, "start", "", "start date (defaults to now)")
	cmd.Flags().StringVar(&end, "end", "", "end date (defaults to start plus the configured length)")
	return cmd
}

func sprintListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sprints",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e *engine.Engine, id string) error {
				items, err := e.Sprints(ctx, id)
				if err != nil {
					return err
				}
				return printSprints(items)
			})
		},
	}
}

func sprintCurrentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "current",
		Short: "Show the current sprint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e *engine.Engine, id string) error {
				s, err := e.CurrentSprint(ctx, id)
				if err != nil {
					return err
				}
				return printSprints([]domain.Sprint{s})
			})
		},
	}
}

func sprintStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats [number]",
		Short: "Show sprint progress (current sprint when no number is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e *engine.Engine, id string) error {
				var number int
				if len(args) == 1 {
					n, err := strconv.Atoi(args[0])
					if err != nil {
						return fmt.Errorf("invalid sprint number %q", args[0])
					}
					number = n
				} else {
					p, err := e.GetProject(ctx, id)
					if err != nil {
						return err
					}
					number = p.CurrentSprintNumber
				}
				stats, err := e.SprintStats(ctx, id, number)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(stats)
				}
				fmt.Printf("Sprint %d: %s (streak %d)\n", stats.Number, stats.SuccessState, stats.Streak)
				fmt.Printf("Story points: %d done, %.0f%% of plan, %.0f%% of time elapsed\n",
					stats.StoryPointsCompleted, stats.PercentageStoryPointsCompleted, stats.PercentageTimeElapsed)
				rows := make([]table.Row, 0, len(stats.UserStats))
				for _, u := range stats.UserStats {
					rows = append(rows, table.Row{u.UserID, u.StoryPointsCompleted, u.IssuesCompleted})
				}
				return printTable(stats, table.Row{"User", "Points", "Issues"}, rows)
			})
		},
	}
}
