package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"scrumgame/internal/config"
	"scrumgame/internal/domain"
	"scrumgame/internal/engine"
)

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectUpdateCmd())
	prj.AddCommand(projectDeleteCmd())
	prj.AddCommand(projectConfigCmd())
	prj.AddCommand(projectMembersCmd())
	prj.AddCommand(projectAddMemberCmd())
	return prj
}

func printProjects(items []domain.Project) error {
	rows := make([]table.Row, 0, len(items))
	for _, p := range items {
		rows = append(rows, table.Row{p.ID, p.Name, p.CurrentSprintNumber, strings.Join(p.UnlockedAnimals, ", ")})
	}
	return printTable(items, table.Row{"ID", "Name", "Sprint", "Animals"}, rows)
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				items, err := e.ListProjects(ctx)
				if err != nil {
					return err
				}
				return printProjects(items)
			})
		},
	}
}

func projectCreateCmd() *cobra.Command {
	var id, name, desc, configFile string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create project",
		Long:  "Create a project owned by the actor. Without --config the default issue states, roles and rewards apply.",
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg *config.Config
			if configFile != "" {
				var err error
				if cfg, err = config.FromFile(configFile); err != nil {
					return err
				}
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				p, err := e.CreateProject(ctx, engine.ProjectCreateOptions{ID: id, Name: name, Description: desc, Config: cfg})
				if err != nil {
					return err
				}
				return printProjects([]domain.Project{p})
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "project id (generated when empty)")
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&desc, "description", "", "project description")
	cmd.Flags().StringVar(&configFile, "config", "", "path to YAML config")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the selected project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e *engine.Engine, id string) error {
				p, err := e.GetProject(ctx, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				fmt.Printf("Project: %s (%s)\n", p.Name, p.ID)
				if p.Description != "" {
					fmt.Println(p.Description)
				}
				fmt.Printf("Current sprint: %d\n", p.CurrentSprintNumber)
				fmt.Printf("Animals: %s\n", strings.Join(p.UnlockedAnimals, ", "))
				fmt.Printf("Assets: %s\n", strings.Join(p.UnlockedAssets, ", "))
				return nil
			})
		},
	}
}

func projectUpdateCmd() *cobra.Command {
	var name, desc string
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Rename or describe the selected project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e *engine.Engine, id string) error {
				p, err := e.UpdateProject(ctx, id, engine.ProjectUpdateOptions{Name: optionalString(name), Description: optionalString(desc)})
				if err != nil {
					return err
				}
				return printProjects([]domain.Project{p})
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new name")
	cmd.Flags().StringVar(&desc, "description", "", "new description")
	return cmd
}

func projectDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete",
		Short: "Delete the selected project and everything it owns",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e *engine.Engine, id string) error {
				if err := e.DeleteProject(ctx, id); err != nil {
					return err
				}
				fmt.Printf("Deleted project %s\n", id)
				return nil
			})
		},
	}
}

func projectConfigCmd() *cobra.Command {
	cfgCmd := &cobra.Command{Use: "config", Short: "Show or import project config"}
	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the project config as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e *engine.Engine, id string) error {
				cfg, err := e.ProjectConfig(ctx, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(cfg)
				}
				raw, err := cfg.ToYAML()
				if err != nil {
					return err
				}
				_, err = os.Stdout.Write(raw)
				return err
			})
		},
	})
	var filePath string
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Replace the project config from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromFile(filePath)
			if err != nil {
				return err
			}
			return withProject(cmd.Context(), func(ctx context.Context, e *engine.Engine, id string) error {
				if err := e.ImportConfig(ctx, id, cfg); err != nil {
					return err
				}
				fmt.Printf("Imported config into %s\n", id)
				return nil
			})
		},
	}
	importCmd.Flags().StringVar(&filePath, "file", "", "path to YAML config")
	_ = importCmd.MarkFlagRequired("file")
	cfgCmd.AddCommand(importCmd)
	return cfgCmd
}

func printMembers(items []domain.Membership) error {
	rows := make([]table.Row, 0, len(items))
	for _, m := range items {
		rows = append(rows, table.Row{m.UserID, m.Role, m.CurrentBadge, m.JoinedAt})
	}
	return printTable(items, table.Row{"User", "Role", "Badge", "Joined"}, rows)
}

func projectMembersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "members",
		Short: "List project members",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e *engine.Engine, id string) error {
				items, err := e.Members(ctx, id)
				if err != nil {
					return err
				}
				return printMembers(items)
			})
		},
	}
}

func projectAddMemberCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "add-member <user-id>",
		Short: "Add or re-role a project member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e *engine.Engine, id string) error {
				m, err := e.AddMember(ctx, id, args[0], role)
				if err != nil {
					return err
				}
				return printMembers([]domain.Membership{m})
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", engine.DefaultMemberRole, "member role")
	return cmd
}
