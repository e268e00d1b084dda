package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"scrumgame/internal/domain"
	"scrumgame/internal/engine"
)

func printEvents(items []domain.Event) error {
	rows := make([]table.Row, 0, len(items))
	for _, ev := range items {
		rows = append(rows, table.Row{ev.Timestamp.Local().Format("2006-01-02 15:04"), ev.ID, ev.Type, ev.UserID, ev.Message})
	}
	return printTable(items, table.Row{"Time", "ID", "Type", "User", "Message"}, rows)
}

func feedCmd() *cobra.Command {
	fd := &cobra.Command{Use: "feed", Short: "Read and write the project feed"}
	var page, size int
	list := &cobra.Command{
		Use:   "list",
		Short: "Show the feed, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e *engine.Engine, id string) error {
				items, err := e.Feed(ctx, id, domain.Page{Number: page, Size: size})
				if err != nil {
					return err
				}
				return printEvents(items)
			})
		},
	}
	list.Flags().IntVar(&page, "page", 0, "page number")
	list.Flags().IntVar(&size, "size", 20, "page size")
	fd.AddCommand(list)

	var parent string
	post := &cobra.Command{
		Use:   "post <message>",
		Short: "Post a message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e *engine.Engine, id string) error {
				ev, err := e.PostMessage(ctx, id, parent, args[0])
				if err != nil {
					return err
				}
				return printEvents([]domain.Event{ev})
			})
		},
	}
	post.Flags().StringVar(&parent, "reply-to", "", "event to reply to")
	fd.AddCommand(post)

	fd.AddCommand(&cobra.Command{
		Use:   "react <event-id> <reaction>",
		Short: "React to an event",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e *engine.Engine, id string) error {
				ev, err := e.React(ctx, id, args[0], args[1])
				if err != nil {
					return err
				}
				return printEvents([]domain.Event{ev})
			})
		},
	})
	fd.AddCommand(&cobra.Command{
		Use:   "thread <event-id>",
		Short: "Show replies and reactions of an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e *engine.Engine, id string) error {
				items, err := e.Children(ctx, id, args[0])
				if err != nil {
					return err
				}
				return printEvents(items)
			})
		},
	})
	fd.AddCommand(&cobra.Command{
		Use:   "types",
		Short: "List registered event types",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				types := e.EventTypes()
				rows := make([]table.Row, 0, len(types))
				for _, t := range types {
					rows = append(rows, table.Row{t.Identifier, t.DefaultVisibility, t.MessageTemplate})
				}
				return printTable(types, table.Row{"Type", "Visibility", "Template"}, rows)
			})
		},
	})
	return fd
}

func printUserStats(items []domain.UserStats) error {
	rows := make([]table.Row, 0, len(items))
	for _, s := range items {
		medals := fmt.Sprintf("%d/%d/%d", s.GoldMedals, s.SilverMedals, s.BronzeMedals)
		rows = append(rows, table.Row{s.UserID, s.Level, s.XP, s.IssuesCompleted, s.PullRequestsCreated, medals, s.VirtualCurrency})
	}
	return printTable(items, table.Row{"User", "Level", "XP", "Issues", "PRs", "Medals", "Coins"}, rows)
}

func statsCmd() *cobra.Command {
	st := &cobra.Command{
		Use:   "stats [user-id]",
		Short: "Show the leaderboard, or the counters of one user",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e *engine.Engine, id string) error {
				if len(args) == 1 {
					s, err := e.UserStats(ctx, id, args[0])
					if err != nil {
						return err
					}
					return printUserStats([]domain.UserStats{s})
				}
				items, err := e.Leaderboard(ctx, id)
				if err != nil {
					return err
				}
				return printUserStats(items)
			})
		},
	}
	return st
}

func remindersCmd() *cobra.Command {
	rm := &cobra.Command{Use: "reminders", Short: "Daily sprint reminders"}
	rm.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Publish today's reminder for every project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				return e.Reminders.RunAll(ctx)
			})
		},
	})
	rm.AddCommand(&cobra.Command{
		Use:   "next",
		Short: "Show when the scheduler fires next",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				fmt.Println(e.Reminders.NextTrigger(time.Now()).Local().Format(time.RFC1123))
				return nil
			})
		},
	})
	return rm
}
