package cli

import (
	"errors"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"kanban-cli/internal/gateway"
)

func newBoardCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "board",
		Short: "Show, import or publish the whole board",
	}
	cmd.AddCommand(newBoardShowCmd(app))
	cmd.AddCommand(newBoardImportCmd(app))
	cmd.AddCommand(newBoardPublishCmd(app))
	return cmd
}

func newBoardShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print every column with its tasks, in board order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), app, cmd.ErrOrStderr())
			if err != nil {
				return writeErr(cmd, err)
			}
			defer s.Close()
			return writeOut(cmd, app, s.ctrl.State().Snapshot())
		},
	}
}

func newBoardImportCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file|->",
		Short: "Import a board exported as JSON (columns with nested tasks)",
		Long: strings.TrimSpace(`
Import a board from a saved "kanbanColumns" document or a {"columns": [...]} export:

  [{"title": "Todo", "tasks": [{"title": "...", "priority": "high", "timeEstimate": {"value": 3, "unit": "hours"}}]}]

Columns and tasks are appended with fresh ids. Existing records are left alone.
`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				raw []byte
				err error
			)
			if args[0] == "-" {
				raw, err = io.ReadAll(cmd.InOrStdin())
			} else {
				raw, err = os.ReadFile(args[0])
			}
			if err != nil {
				return writeErr(cmd, err)
			}
			b, err := gateway.DecodeLegacy(raw)
			if err != nil {
				return writeErr(cmd, err)
			}
			if len(b.Columns) == 0 {
				return writeErr(cmd, errors.New("import: no columns in input"))
			}

			s, err := openSession(cmd.Context(), app, cmd.ErrOrStderr())
			if err != nil {
				return writeErr(cmd, err)
			}
			defer s.Close()

			nc, nt, err := gateway.Import(cmd.Context(), s.gw, b)
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := s.ctrl.Load(cmd.Context()); err != nil {
				return writeErr(cmd, err)
			}
			s.log.WithField("columns", nc).WithField("tasks", nt).Info("board imported")
			if app.Format == "text" {
				return writeOut(cmd, app, s.ctrl.State().Snapshot())
			}
			return writeOut(cmd, app, map[string]any{
				"columns": nc,
				"tasks":   nt,
				"board":   s.ctrl.State().Snapshot(),
			})
		},
	}
}
