package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"kanban-cli/internal/format"
)

type App struct {
	ConfigDir  string
	Backend    string
	SQLitePath string
	RedisURL   string
	TablesConn string
	Board      string
	LogLevel   string
	PrettyJSON bool
	Format     string
}

func NewRootCmd() *cobra.Command {
	app := &App{}

	cmd := &cobra.Command{
		Use:          "kanban",
		Short:        "Kanban board (TUI, CLI and HTTP API)",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Start the interactive board
  kanban

  # Scriptable commands
  kanban board show --format text
  kanban tasks add --column <column-id> --title "Write docs" --estimate "3 hrs"

  # Serve the HTTP API and websocket feed
  kanban serve --addr 127.0.0.1:8080
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			// No subcommand => interactive TUI.
			if cmd.HasSubCommands() && len(args) == 0 {
				return runTUI(cmd, app)
			}
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringVar(&app.ConfigDir, "config-dir", envOr("KANBAN_CONFIG_DIR", ""), "Directory holding config.json (default: $XDG_CONFIG_HOME/kanban or ~/.kanban)")
	cmd.PersistentFlags().StringVar(&app.Backend, "backend", "", "Storage backend: sqlite|redis|tables|memory (overrides config)")
	cmd.PersistentFlags().StringVar(&app.SQLitePath, "sqlite", "", "SQLite database path (overrides config)")
	cmd.PersistentFlags().StringVar(&app.RedisURL, "redis-url", "", "Redis URL, e.g. redis://localhost:6379/0 (overrides config)")
	cmd.PersistentFlags().StringVar(&app.TablesConn, "tables-conn", "", "Azure Tables connection string (overrides config)")
	cmd.PersistentFlags().StringVar(&app.Board, "board", "", "Board name for shared backends (overrides config)")
	cmd.PersistentFlags().StringVar(&app.LogLevel, "log-level", "", "Log level: debug|info|warn|error (overrides config)")
	cmd.PersistentFlags().BoolVar(&app.PrettyJSON, "pretty", false, "Pretty-print JSON output")
	cmd.PersistentFlags().StringVar(&app.Format, "format", envOr("KANBAN_FORMAT", "json"), "Output format (json|text)")

	cmd.AddCommand(newBoardCmd(app))
	cmd.AddCommand(newColumnsCmd(app))
	cmd.AddCommand(newTasksCmd(app))
	cmd.AddCommand(newDragCmd(app))
	cmd.AddCommand(newServeCmd(app))
	cmd.AddCommand(newConfigCmd(app))
	cmd.AddCommand(newDocsCmd(app))

	return cmd
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

// writeOut wraps v in the {"data": ...} envelope for JSON; text output renders v itself.
func writeOut(cmd *cobra.Command, app *App, v any) error {
	if app.Format == "text" {
		return format.Write(cmd.OutOrStdout(), v, app.Format, app.PrettyJSON)
	}
	return format.Write(cmd.OutOrStdout(), map[string]any{"data": v}, app.Format, app.PrettyJSON)
}

func writeErr(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), err.Error())
	return err
}
