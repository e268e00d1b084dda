package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"scrumgame/internal/domain"
	"scrumgame/internal/engine"
)

// meetingAction has the shape of the engine's meeting methods as method expressions.
type meetingAction func(e *engine.Engine, ctx context.Context, projectID string) (domain.Meeting, error)

// meetingStep wraps a meeting transition taking no arguments.
func meetingStep(use, short string, action meetingAction) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e *engine.Engine, id string) error {
				m, err := action(e, ctx, id)
				if err != nil {
					return err
				}
				return printMeeting(m)
			})
		},
	}
}

func meetingShowCmd(t domain.MeetingType) *cobra.Command {
	return meetingStep("show", "Show the active meeting", func(e *engine.Engine, ctx context.Context, id string) (domain.Meeting, error) {
		return e.ActiveMeeting(ctx, id, t)
	})
}

func printMeeting(m domain.Meeting) error {
	if viper.GetBool("json") {
		return printJSON(m)
	}
	state := "finished"
	if m.Active {
		state = "active"
	}
	fmt.Printf("%s %s (%s)\n", m.Type, m.ID, state)
	switch {
	case m.Standup != nil:
		if m.Standup.CurrentAttendee != "" {
			fmt.Printf("Speaking: %s\n", m.Standup.CurrentAttendee)
		}
		if len(m.Standup.Order) > 0 {
			fmt.Printf("Order: %s\n", strings.Join(m.Standup.Order, " -> "))
		}
	case m.Retrospective != nil:
		fmt.Printf("Sprint %d, page %s\n", m.Retrospective.SprintNumber, m.Retrospective.CurrentPage)
	case m.Planning != nil:
		fmt.Printf("Goal: %s\n", m.Planning.Goal)
	}
	rows := make([]table.Row, 0, len(m.Attendees))
	for _, a := range m.Attendees {
		rows = append(rows, table.Row{a.UserID, a.Role})
	}
	return printTable(m, table.Row{"Attendee", "Role"}, rows)
}

func standupCmd() *cobra.Command {
	var attendees []string
	st := &cobra.Command{Use: "standup", Short: "Run the daily standup"}
	create := meetingStep("create", "Open the standup", func(e *engine.Engine, ctx context.Context, id string) (domain.Meeting, error) {
		return e.CreateStandup(ctx, id, attendees)
	})
	create.Flags().StringSliceVar(&attendees, "attendee", nil, "attendee user ids")
	st.AddCommand(create)
	st.AddCommand(meetingShowCmd(domain.MeetingStandup))
	st.AddCommand(meetingStep("start", "Shuffle the speaking order and start", (*engine.Engine).StartStandup))
	st.AddCommand(meetingStep("next", "Give the word to the next attendee", (*engine.Engine).NextAttendee))
	st.AddCommand(meetingStep("finish", "Finish the standup and grant experience", (*engine.Engine).FinishStandup))
	st.AddCommand(&cobra.Command{
		Use:   "speaker <user-id>",
		Short: "Give the word to an attendee",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e *engine.Engine, id string) error {
				m, err := e.ChangeCurrentAttendee(ctx, id, args[0])
				if err != nil {
					return err
				}
				return printMeeting(m)
			})
		},
	})
	return st
}

func retroCmd() *cobra.Command {
	var attendees []string
	re := &cobra.Command{Use: "retro", Short: "Run the sprint retrospective"}
	create := meetingStep("create", "Open the retrospective of the current sprint", func(e *engine.Engine, ctx context.Context, id string) (domain.Meeting, error) {
		return e.CreateRetrospective(ctx, id, attendees, nil)
	})
	create.Flags().StringSliceVar(&attendees, "attendee", nil, "attendee user ids")
	re.AddCommand(create)
	re.AddCommand(meetingShowCmd(domain.MeetingRetrospective))
	re.AddCommand(&cobra.Command{
		Use:       "page <page>",
		Short:     "Switch the shared page",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"INFORMATION", "ACTIVITIES", "MEDALS", "REWARDS", "SUMMARY"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e *engine.Engine, id string) error {
				m, err := e.ChangeRetrospectivePage(ctx, id, domain.RetrospectivePage(strings.ToUpper(args[0])))
				if err != nil {
					return err
				}
				return printMeeting(m)
			})
		},
	})
	re.AddCommand(meetingStep("medals", "Award the sprint medals", (*engine.Engine).AwardMedals))
	re.AddCommand(meetingStep("finish", "Close the sprint and grant rewards", (*engine.Engine).FinishRetrospective))
	return re
}

func planningCmd() *cobra.Command {
	var attendees []string
	var goal string
	pl := &cobra.Command{Use: "planning", Short: "Run the sprint planning"}
	create := meetingStep("create", "Open the planning", func(e *engine.Engine, ctx context.Context, id string) (domain.Meeting, error) {
		return e.CreatePlanning(ctx, id, attendees, goal)
	})
	create.Flags().StringSliceVar(&attendees, "attendee", nil, "attendee user ids")
	create.Flags().StringVar(&goal, "goal", "", "sprint goal")
	pl.AddCommand(create)
	pl.AddCommand(meetingShowCmd(domain.MeetingPlanning))
	pl.AddCommand(&cobra.Command{
		Use:   "goal <text>",
		Short: "Set the sprint goal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e *engine.Engine, id string) error {
				m, err := e.ChangePlanningGoal(ctx, id, args[0])
				if err != nil {
					return err
				}
				return printMeeting(m)
			})
		},
	})
	pl.AddCommand(meetingStep("finish", "Finish the planning", (*engine.Engine).FinishPlanning))
	return pl
}
