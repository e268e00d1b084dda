package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"scrumgame/internal/domain"
	"scrumgame/internal/engine"
)

func issueCmd() *cobra.Command {
	is := &cobra.Command{
		Use:   "issue",
		Short: "Work with issues in the IMS",
		Long:  "Issues live in the issue tracker configured by SCRUMGAME_IMS_URL. Without it an in-process tracker is used and issues last for one command.",
	}
	is.AddCommand(issueListCmd())
	is.AddCommand(issueCreateCmd())
	is.AddCommand(issueUpdateCmd())
	is.AddCommand(issueCommentCmd())
	is.AddCommand(issueFinishCmd())
	is.AddCommand(issueEventsCmd())
	is.AddCommand(issueSyncCmd())
	return is
}

func printIssues(items []domain.Issue) error {
	rows := make([]table.Row, 0, len(items))
	for _, i := range items {
		sprint := ""
		if i.SprintNumber != nil {
			sprint = fmt.Sprint(*i.SprintNumber)
		}
		rows = append(rows, table.Row{i.ID, i.Title, i.State, i.AssigneeID, i.StoryPoints, sprint})
	}
	return printTable(items, table.Row{"ID", "Title", "State", "Assignee", "Points", "Sprint"}, rows)
}

func issueListCmd() *cobra.Command {
	var sprint int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List issues",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e *engine.Engine, id string) error {
				var (
					items []domain.Issue
					err   error
				)
				if sprint > 0 {
					items, err = e.SprintIssues(ctx, id, sprint)
				} else {
					items, err = e.Issues(ctx, id)
				}
				if err != nil {
					return err
				}
				return printIssues(items)
			})
		},
	}
	cmd.Flags().IntVar(&sprint, "sprint", 0, "only issues of this sprint")
	return cmd
}

func issueCreateCmd() *cobra.Command {
	var in domain.IssueInput
	var sprint int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an issue",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("sprint") {
				in.SprintNumber = &sprint
			}
			return withProject(cmd.Context(), func(ctx context.Context, e *engine.Engine, id string) error {
				issue, err := e.CreateIssue(ctx, id, in)
				if err != nil {
					return err
				}
				return printIssues([]domain.Issue{issue})
			})
		},
	}
	cmd.Flags().StringVar(&in.Title, "title", "", "issue title")
	cmd.Flags().StringVar(&in.Description, "description", "", "issue description")
	cmd.Flags().StringVar(&in.State, "state", "", "initial state (first NEW state when empty)")
	cmd.Flags().StringVar(&in.Type, "type", "", "issue type")
	cmd.Flags().StringVar(&in.AssigneeID, "assignee", "", "assignee user id")
	cmd.Flags().IntVar(&in.StoryPoints, "points", 0, "story points")
	cmd.Flags().IntVar(&sprint, "sprint", 0, "sprint number")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func issueUpdateCmd() *cobra.Command {
	var title, state, stateType, assignee string
	var points, sprint int
	var clearSprint bool
	cmd := &cobra.Command{
		Use:   "update <issue-id>",
		Short: "Update an issue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.IssueUpdateOptions{
				Title:       optionalString(title),
				State:       optionalString(state),
				AssigneeID:  optionalString(assignee),
				ClearSprint: clearSprint,
			}
			if cmd.Flags().Changed("points") {
				opts.StoryPoints = &points
			}
			if cmd.Flags().Changed("sprint") {
				opts.SprintNumber = &sprint
			}
			return withProject(cmd.Context(), func(ctx context.Context, e *engine.Engine, id string) error {
				issue, err := e.UpdateIssue(ctx, id, args[0], opts)
				if err != nil {
					return err
				}
				if stateType != "" {
					if issue, err = e.ChangeIssueStateType(ctx, id, args[0], domain.IssueStateType(strings.ToUpper(stateType))); err != nil {
						return err
					}
				}
				return printIssues([]domain.Issue{issue})
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&state, "state", "", "new state name")
	cmd.Flags().StringVar(&stateType, "state-type", "", "move to the first state of this type (NEW, IN_PROGRESS, DONE)")
	cmd.Flags().StringVar(&assignee, "assignee", "", "new assignee")
	cmd.Flags().IntVar(&points, "points", 0, "story points")
	cmd.Flags().IntVar(&sprint, "sprint", 0, "sprint number")
	cmd.Flags().BoolVar(&clearSprint, "clear-sprint", false, "remove the issue from its sprint")
	return cmd
}

func issueCommentCmd() *cobra.Command {
	var body, parent string
	cmd := &cobra.Command{
		Use:   "comment <issue-id>",
		Short: "Comment on an issue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e *engine.Engine, id string) error {
				issue, err := e.CommentIssue(ctx, id, args[0], body, parent)
				if err != nil {
					return err
				}
				return printIssues([]domain.Issue{issue})
			})
		},
	}
	cmd.Flags().StringVar(&body, "body", "", "comment text")
	cmd.Flags().StringVar(&parent, "parent", "", "comment to reply to")
	_ = cmd.MarkFlagRequired("body")
	return cmd
}

func issueFinishCmd() *cobra.Command {
	var doneState string
	var checked, explained []string
	cmd := &cobra.Command{
		Use:   "finish <issue-id>",
		Short: "Confirm the Definition of Done and move the issue to a done state",
		Long: `Every required Definition of Done item must be checked or explained.
Use --check "<item>" for checked items and --explain "<item>=<why>" for skipped ones.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dod := make([]domain.DoDConfirmState, 0, len(checked)+len(explained))
			for _, item := range checked {
				dod = append(dod, domain.DoDConfirmState{Item: item, Checked: true})
			}
			for _, raw := range explained {
				item, why, ok := strings.Cut(raw, "=")
				if !ok || strings.TrimSpace(why) == "" {
					return fmt.Errorf("--explain wants <item>=<explanation>, got %q", raw)
				}
				dod = append(dod, domain.DoDConfirmState{Item: item, Explanation: why})
			}
			return withProject(cmd.Context(), func(ctx context.Context, e *engine.Engine, id string) error {
				issue, err := e.FinishIssue(ctx, id, args[0], dod, doneState)
				if err != nil {
					return err
				}
				return printIssues([]domain.Issue{issue})
			})
		},
	}
	cmd.Flags().StringVar(&doneState, "state", "Done", "done state to move to")
	cmd.Flags().StringArrayVar(&checked, "check", nil, "checked Definition of Done item")
	cmd.Flags().StringArrayVar(&explained, "explain", nil, "unchecked item with its explanation")
	return cmd
}

func issueEventsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "events <issue-id>",
		Short: "Show the activity of an issue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e *engine.Engine, id string) error {
				items, err := e.IssueEvents(ctx, id, args[0])
				if err != nil {
					return err
				}
				return printEvents(items)
			})
		},
	}
}

func issueSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Pull the project's IMS activity into the feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e *engine.Engine, id string) error {
				n, err := e.SyncProject(ctx, id)
				if err != nil {
					return err
				}
				fmt.Printf("Synced %d events\n", n)
				return nil
			})
		},
	}
}
