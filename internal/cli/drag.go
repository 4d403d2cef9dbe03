package cli

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"kanban-cli/internal/model"
	"kanban-cli/internal/reorder"
)

func newDragCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "drag <gesture-json|->",
		Short: "Apply a drag-end gesture exactly as a pointer UI reports it",
		Long: strings.TrimSpace(`
Apply a drag-end gesture. The argument (or stdin with "-") is the JSON a drag-and-drop
UI reports when the pointer is released:

  {"active": {"id": "t1", "kind": "task", "containerId": "col-1", "index": 0},
   "over":   {"id": "t7", "containerId": "col-2", "index": 2}}

Dropping onto a column body (no containerId) appends to that column. A missing "over"
or a drop back onto the start position changes nothing.
`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := []byte(args[0])
			if args[0] == "-" {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return writeErr(cmd, err)
				}
				raw = b
			}
			var g reorder.DragEnd
			if err := json.Unmarshal(raw, &g); err != nil {
				return writeErr(cmd, model.ValidationError{Field: "gesture", Reason: err.Error()})
			}
			if strings.TrimSpace(g.Active.ID) == "" {
				return writeErr(cmd, model.ValidationError{Field: "active", Reason: "dragged element id is required"})
			}

			s, err := openSession(cmd.Context(), app, cmd.ErrOrStderr())
			if err != nil {
				return writeErr(cmd, err)
			}
			defer s.Close()

			pw, applied := s.ctrl.Drag(g)
			if err := s.settle(pw); err != nil {
				return writeErr(cmd, err)
			}
			if app.Format == "text" {
				return writeOut(cmd, app, s.ctrl.State().Snapshot())
			}
			return writeOut(cmd, app, map[string]any{
				"applied": applied,
				"board":   s.ctrl.State().Snapshot(),
			})
		},
	}
}
