package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"scrumgame/internal/config"
	"scrumgame/internal/db"
	"scrumgame/internal/engine"
	"scrumgame/internal/engine/auth"
	"scrumgame/internal/ims"
	"scrumgame/internal/migrate"
)

var rootCmd = &cobra.Command{
	Use:   "sg",
	Short: "Scrumgame CLI",
	Long: `Scrumgame turns a Scrum team's daily work into a game.
Core concepts:
- Workspace: the .scrumgame directory holding the database.
- Project: a team's game. It owns sprints, meetings, the event feed and the unlocked park.
- Sprint: a numbered time box with planned story points. Its outcome is FAILED, SUCCESS or SUCCESS_WITH_GOLD_CHALLENGE; retrospectives award gold, silver and bronze medals to users.
- Issues: work items living in the issue tracker (IMS); their activity flows into the feed.
- Meetings: standup, retrospective and planning sessions that grant experience when finished.
- Feed: every public event, with replies and reactions. Tail it with 'sg feed list'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_, err := db.EnsureWorkspace(viper.GetString("workspace"))
		return err
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("SCRUMGAME")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().StringP("project", "p", "", "project id")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("project", rootCmd.PersistentFlags().Lookup("project"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(sprintCmd())
	rootCmd.AddCommand(issueCmd())
	rootCmd.AddCommand(standupCmd())
	rootCmd.AddCommand(retroCmd())
	rootCmd.AddCommand(planningCmd())
	rootCmd.AddCommand(feedCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(remindersCmd())
}

// --- helpers ---

func loadSettings() (config.Settings, error) {
	s, err := config.LoadSettings()
	if err != nil {
		return config.Settings{}, err
	}
	s.Workspace = viper.GetString("workspace")
	return s, nil
}

func newLogger(s config.Settings) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: s.SlogLevel()}))
}

func openEngine(s config.Settings, logger *slog.Logger) (*engine.Engine, *sql.DB, error) {
	conn, err := db.Open(db.Config{Workspace: s.Workspace})
	if err != nil {
		return nil, nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, nil, err
	}
	opts := engine.Options{
		Logger:        logger,
		SyncInterval:  s.SyncInterval,
		ReminderHour:  &s.ReminderHour,
		HideForbidden: s.HideForbidden,
	}
	if s.IMSURL != "" {
		opts.Adapter = ims.NewHTTPAdapter(s.IMSURL, s.IMSTimeout)
	}
	e, err := engine.New(conn, opts)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	return e, conn, nil
}

// withEngine runs fn as the local actor, who administers every project in
// the workspace.
func withEngine(ctx context.Context, fn func(context.Context, *engine.Engine) error) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}
	e, conn, err := openEngine(s, newLogger(s))
	if err != nil {
		return err
	}
	defer conn.Close()
	defer e.Close()
	ctx = auth.WithPrincipal(ctx, auth.Principal{
		UserID: viper.GetString("actor-id"),
		Roles:  []string{auth.AdminRole},
		Source: "cli",
	})
	if s.IMSToken != "" {
		ctx = ims.WithToken(ctx, s.IMSToken)
	}
	return fn(ctx, e)
}

func projectID() (string, error) {
	id := strings.TrimSpace(viper.GetString("project"))
	if id == "" {
		return "", fmt.Errorf("project not specified; use --project")
	}
	return id, nil
}

// withProject is withEngine plus the selected project id.
func withProject(ctx context.Context, fn func(context.Context, *engine.Engine, string) error) error {
	id, err := projectID()
	if err != nil {
		return err
	}
	return withEngine(ctx, func(ctx context.Context, e *engine.Engine) error {
		return fn(ctx, e, id)
	})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printTable renders rows unless --json is set, in which case v is printed.
func printTable(v any, header table.Row, rows []table.Row) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(header)
	tw.AppendRows(rows)
	tw.Render()
	return nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
