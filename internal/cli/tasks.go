package cli

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"kanban-cli/internal/board"
	"kanban-cli/internal/model"
)

func newTasksCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tasks",
		Aliases: []string{"task"},
		Short:   "Create, edit, move and delete tasks",
	}
	cmd.AddCommand(newTasksAddCmd(app))
	cmd.AddCommand(newTasksShowCmd(app))
	cmd.AddCommand(newTasksEditCmd(app))
	cmd.AddCommand(newTasksToggleCmd(app))
	cmd.AddCommand(newTasksMoveCmd(app))
	cmd.AddCommand(newTasksDeleteCmd(app))
	return cmd
}

func taskResult(s *session, id string) (model.Task, error) {
	id = s.ctrl.DurableID(id)
	t, ok := s.ctrl.State().Task(id)
	if !ok {
		return model.Task{}, board.NotFoundError{Kind: "task", ID: id}
	}
	return t, nil
}

func newTasksAddCmd(app *App) *cobra.Command {
	var (
		columnID    string
		title       string
		description string
		priority    string
		due         string
		estimate    string
		assignee    string
		completed   bool
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Append a task to a column",
		Example: strings.TrimSpace(`
kanban tasks add --column col-1 --title "Write docs" --priority high --estimate "3 hrs"
kanban tasks add --column col-1 --title "Release" --due 2025-07-01
`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := model.ParsePriority(priority)
			if err != nil {
				return writeErr(cmd, err)
			}
			sched, err := model.ParseSchedule(due, estimate)
			if err != nil {
				return writeErr(cmd, err)
			}
			n := model.NewTask{
				Title:       title,
				Description: description,
				Completed:   completed,
				Priority:    p,
				Schedule:    sched,
				ColumnID:    strings.TrimSpace(columnID),
			}
			if a := strings.TrimSpace(assignee); a != "" {
				n.Assignee = &model.Assignee{Name: a}
			}
			if err := n.Validate(); err != nil {
				return writeErr(cmd, err)
			}

			s, err := openSession(cmd.Context(), app, cmd.ErrOrStderr())
			if err != nil {
				return writeErr(cmd, err)
			}
			defer s.Close()

			t, pw, err := s.ctrl.CreateTask(n)
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := s.settle(pw); err != nil {
				return writeErr(cmd, err)
			}
			out, err := taskResult(s, t.ID)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, out)
		},
	}

	cmd.Flags().StringVar(&columnID, "column", "", "Column id (required)")
	cmd.Flags().StringVar(&title, "title", "", "Task title (required)")
	cmd.Flags().StringVar(&description, "description", "", "Markdown description")
	cmd.Flags().StringVar(&priority, "priority", "medium", "low|medium|high")
	cmd.Flags().StringVar(&due, "due", "", "Due date (YYYY-MM-DD or RFC3339)")
	cmd.Flags().StringVar(&estimate, "estimate", "", "Time estimate, e.g. 45m, \"3 hrs\", 2d, 1w")
	cmd.Flags().StringVar(&assignee, "assignee", "", "Assignee name (default: You)")
	cmd.Flags().BoolVar(&completed, "completed", false, "Create the task already done")
	return cmd
}

func newTasksShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <task-id>",
		Short: "Print one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), app, cmd.ErrOrStderr())
			if err != nil {
				return writeErr(cmd, err)
			}
			defer s.Close()

			t, err := taskResult(s, args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, t)
		},
	}
}

func newTasksEditCmd(app *App) *cobra.Command {
	var (
		title       string
		description string
		priority    string
		due         string
		estimate    string
		noSchedule  bool
		assignee    string
		noAssignee  bool
		completed   bool
	)

	cmd := &cobra.Command{
		Use:   "edit <task-id>",
		Short: "Change task fields; only flags you pass are changed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			var p model.TaskPatch
			if f.Changed("title") {
				p.Title = model.Ptr(title)
			}
			if f.Changed("description") {
				p.Description = model.Ptr(description)
			}
			if f.Changed("completed") {
				p.Completed = model.Ptr(completed)
			}
			if f.Changed("priority") {
				pr, err := model.ParsePriority(priority)
				if err != nil {
					return writeErr(cmd, err)
				}
				p.Priority = &pr
			}
			switch {
			case noSchedule && (due != "" || estimate != ""):
				return writeErr(cmd, model.ValidationError{Field: "schedule", Reason: "--no-schedule cannot be combined with --due or --estimate"})
			case noSchedule:
				p.Schedule = model.Ptr(model.NoSchedule())
			case due != "" || estimate != "":
				sched, err := model.ParseSchedule(due, estimate)
				if err != nil {
					return writeErr(cmd, err)
				}
				p.Schedule = &sched
			}
			switch {
			case noAssignee && strings.TrimSpace(assignee) != "":
				return writeErr(cmd, errors.New("--no-assignee cannot be combined with --assignee"))
			case noAssignee:
				var none *model.Assignee
				p.Assignee = &none
			case strings.TrimSpace(assignee) != "":
				a := &model.Assignee{Name: strings.TrimSpace(assignee)}
				p.Assignee = &a
			}
			if p.Empty() {
				return writeErr(cmd, errors.New("nothing to change; pass at least one field flag"))
			}

			s, err := openSession(cmd.Context(), app, cmd.ErrOrStderr())
			if err != nil {
				return writeErr(cmd, err)
			}
			defer s.Close()

			pw, err := s.ctrl.UpdateTask(args[0], p)
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := s.settle(pw); err != nil {
				return writeErr(cmd, err)
			}
			t, err := taskResult(s, args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, t)
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "New title")
	cmd.Flags().StringVar(&description, "description", "", "New markdown description (empty clears it)")
	cmd.Flags().StringVar(&priority, "priority", "", "low|medium|high")
	cmd.Flags().StringVar(&due, "due", "", "Due date (YYYY-MM-DD or RFC3339)")
	cmd.Flags().StringVar(&estimate, "estimate", "", "Time estimate, e.g. 45m, \"3 hrs\", 2d, 1w")
	cmd.Flags().BoolVar(&noSchedule, "no-schedule", false, "Clear the due date or estimate")
	cmd.Flags().StringVar(&assignee, "assignee", "", "Assignee name")
	cmd.Flags().BoolVar(&noAssignee, "no-assignee", false, "Remove the assignee")
	cmd.Flags().BoolVar(&completed, "completed", false, "Mark done (--completed=false to reopen)")
	return cmd
}

func newTasksToggleCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <task-id>",
		Short: "Flip a task between done and not done",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), app, cmd.ErrOrStderr())
			if err != nil {
				return writeErr(cmd, err)
			}
			defer s.Close()

			pw, err := s.ctrl.ToggleTask(args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := s.settle(pw); err != nil {
				return writeErr(cmd, err)
			}
			t, err := taskResult(s, args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, t)
		},
	}
}

func newTasksMoveCmd(app *App) *cobra.Command {
	var (
		columnID string
		to       int
	)

	cmd := &cobra.Command{
		Use:   "move <task-id> [--column <column-id>] [--to <index>]",
		Short: "Move a task within its column or into another one",
		Long: strings.TrimSpace(`
Move a task. --column defaults to the task's current column; --to is a zero-based
position in the destination column and defaults to the end. Indexes past either end
are clamped.
`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("column") && !cmd.Flags().Changed("to") {
				return writeErr(cmd, errors.New("missing --column or --to"))
			}
			s, err := openSession(cmd.Context(), app, cmd.ErrOrStderr())
			if err != nil {
				return writeErr(cmd, err)
			}
			defer s.Close()

			t, ok := s.ctrl.State().Task(args[0])
			if !ok {
				return writeErr(cmd, board.NotFoundError{Kind: "task", ID: args[0]})
			}
			dest := strings.TrimSpace(columnID)
			if dest == "" {
				dest = t.ColumnID
			}
			index := to
			if !cmd.Flags().Changed("to") {
				col, ok := s.ctrl.State().Column(dest)
				if !ok {
					return writeErr(cmd, board.NotFoundError{Kind: "column", ID: dest})
				}
				index = len(col.Tasks)
			}
			pw, err := s.ctrl.MoveTaskTo(t.ID, dest, index)
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := s.settle(pw); err != nil {
				return writeErr(cmd, err)
			}
			out, err := taskResult(s, t.ID)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, out)
		},
	}

	cmd.Flags().StringVar(&columnID, "column", "", "Destination column id")
	cmd.Flags().IntVar(&to, "to", 0, "Destination index (0 = top)")
	return cmd
}

func newTasksDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <task-id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), app, cmd.ErrOrStderr())
			if err != nil {
				return writeErr(cmd, err)
			}
			defer s.Close()

			pw, err := s.ctrl.DeleteTask(args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := s.settle(pw); err != nil {
				return writeErr(cmd, err)
			}
			if app.Format == "text" {
				return writeOut(cmd, app, s.ctrl.State().Snapshot())
			}
			return writeOut(cmd, app, map[string]any{"deleted": args[0]})
		},
	}
}
