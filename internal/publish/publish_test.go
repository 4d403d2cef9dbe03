package publish

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"kanban-cli/internal/model"
)

func testBoard() model.Board {
	return model.Board{Columns: []model.Column{
		{ID: "col-1", Title: "Todo", Tasks: []model.Task{
			{ID: "task-1", Title: "Fix [urgent] bug", ColumnID: "col-1", Priority: model.PriorityHigh,
				Description: "Some **markdown**.", Schedule: model.EstimateOf(3, model.UnitHours),
				Assignee: &model.Assignee{Name: "You"}},
		}},
		{ID: "col-2", Title: "Done", Tasks: []model.Task{
			{ID: "task-2", Title: "Ship", ColumnID: "col-2", Priority: model.PriorityLow, Completed: true},
		}},
		{ID: "col-3", Title: "Later", Tasks: []model.Task{}},
	}}
}

func TestRenderBoardMarkdown(t *testing.T) {
	t.Parallel()

	md := RenderBoardMarkdown(testBoard(), "Team")
	for _, want := range []string{
		"# Team",
		"3 columns, 2 tasks.",
		"## Todo (1)",
		`- [ ] [Fix \[urgent\] bug](tasks/task-1.md) ` + "`high`" + " · 3 hrs · @You",
		"- [x] [Ship](tasks/task-2.md)",
		"## Later (0)\n\n_No tasks._",
	} {
		if !strings.Contains(md, want) {
			t.Fatalf("expected %q in:\n%s", want, md)
		}
	}
}

func TestRenderTaskMarkdown_IncludesMetaAndDescription(t *testing.T) {
	t.Parallel()

	md := RenderTaskMarkdown(testBoard().Columns[0].Tasks[0], "Todo")
	for _, want := range []string{"# Fix [urgent] bug", "- Column: Todo (col-1)", "- Priority: high", "- Schedule: 3 hrs", "## Description", "Some **markdown**."} {
		if !strings.Contains(md, want) {
			t.Fatalf("expected %q in:\n%s", want, md)
		}
	}
}

func TestWriteBoard_WritesIndexAndTasks(t *testing.T) {
	t.Parallel()

	to := t.TempDir()
	res, err := WriteBoard(testBoard(), to, WriteOptions{})
	if err != nil {
		t.Fatalf("WriteBoard: %v", err)
	}
	if len(res.Written) != 3 {
		t.Fatalf("expected 3 written files; got %v", res.Written)
	}
	if _, err := os.Stat(filepath.Join(to, "tasks", "task-2.md")); err != nil {
		t.Fatalf("stat task page: %v", err)
	}

	if _, err := WriteBoard(testBoard(), to, WriteOptions{}); err == nil || !strings.Contains(err.Error(), "--overwrite") {
		t.Fatalf("expected existing files to be protected, got %v", err)
	}
	if _, err := WriteBoard(testBoard(), to, WriteOptions{Overwrite: true}); err != nil {
		t.Fatalf("WriteBoard overwrite: %v", err)
	}
}
