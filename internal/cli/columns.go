package cli

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"kanban-cli/internal/board"
)

func newColumnsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "columns",
		Aliases: []string{"column", "cols"},
		Short:   "Create, rename, reorder and delete columns",
	}
	cmd.AddCommand(newColumnsAddCmd(app))
	cmd.AddCommand(newColumnsRenameCmd(app))
	cmd.AddCommand(newColumnsMoveCmd(app))
	cmd.AddCommand(newColumnsDeleteCmd(app))
	return cmd
}

// columnResult reads back a column after its writes settled, following a temporary id.
func columnResult(s *session, id string) (any, error) {
	id = s.ctrl.DurableID(id)
	c, ok := s.ctrl.State().Column(id)
	if !ok {
		return nil, board.NotFoundError{Kind: "column", ID: id}
	}
	return c, nil
}

func newColumnsAddCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "add <title>",
		Short: "Append a column to the right of the board",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), app, cmd.ErrOrStderr())
			if err != nil {
				return writeErr(cmd, err)
			}
			defer s.Close()

			c, pw, err := s.ctrl.CreateColumn(strings.Join(args, " "))
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := s.settle(pw); err != nil {
				return writeErr(cmd, err)
			}
			out, err := columnResult(s, c.ID)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, out)
		},
	}
}

func newColumnsRenameCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <column-id> <title>",
		Short: "Change a column's title",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), app, cmd.ErrOrStderr())
			if err != nil {
				return writeErr(cmd, err)
			}
			defer s.Close()

			pw, err := s.ctrl.RenameColumn(args[0], strings.Join(args[1:], " "))
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := s.settle(pw); err != nil {
				return writeErr(cmd, err)
			}
			out, err := columnResult(s, args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, out)
		},
	}
}

func newColumnsMoveCmd(app *App) *cobra.Command {
	var to int

	cmd := &cobra.Command{
		Use:   "move <column-id> --to <index>",
		Short: "Move a column to a zero-based position (clamped to the board)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("to") {
				return writeErr(cmd, errors.New("missing --to"))
			}
			s, err := openSession(cmd.Context(), app, cmd.ErrOrStderr())
			if err != nil {
				return writeErr(cmd, err)
			}
			defer s.Close()

			pw, err := s.ctrl.MoveColumnTo(args[0], to)
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := s.settle(pw); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, s.ctrl.State().Snapshot())
		},
	}
	cmd.Flags().IntVar(&to, "to", 0, "Destination index (0 = leftmost)")
	return cmd
}

func newColumnsDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <column-id>",
		Short: "Delete a column and every task in it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), app, cmd.ErrOrStderr())
			if err != nil {
				return writeErr(cmd, err)
			}
			defer s.Close()

			col, ok := s.ctrl.State().Column(args[0])
			if !ok {
				return writeErr(cmd, board.NotFoundError{Kind: "column", ID: args[0]})
			}
			pw, err := s.ctrl.DeleteColumn(args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := s.settle(pw); err != nil {
				return writeErr(cmd, err)
			}
			if app.Format == "text" {
				return writeOut(cmd, app, s.ctrl.State().Snapshot())
			}
			return writeOut(cmd, app, map[string]any{"deleted": col.ID, "tasks": len(col.Tasks)})
		},
	}
}
