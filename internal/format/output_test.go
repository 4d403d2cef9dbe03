package format

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"kanban-cli/internal/model"
)

func sampleBoard() model.Board {
	return model.Board{Columns: []model.Column{
		{ID: "todo", Title: "To Do", Tasks: []model.Task{
			{ID: "t1", Title: "Write docs", Priority: model.PriorityHigh, Schedule: model.EstimateOf(3, model.UnitHours), ColumnID: "todo", Assignee: model.DefaultAssignee()},
			{ID: "t2", Title: "Ship", Completed: true, Priority: model.PriorityLow, Schedule: model.NoSchedule(), ColumnID: "todo", Order: 1},
		}},
		{ID: "done", Title: "Done", Order: 1},
	}}
}

func TestWrite_JSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := Write(&buf, sampleBoard(), "", false); err != nil {
		t.Fatalf("Write: %v", err)
	}
	var got model.Board
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if len(got.Columns) != 2 || got.Columns[0].Tasks[0].Schedule.Label() != "3 hrs" {
		t.Fatalf("unexpected board: %+v", got)
	}
	if strings.Count(buf.String(), "\n") != 1 {
		t.Fatalf("compact JSON should be one line")
	}
}

func TestWrite_Text(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := Write(&buf, sampleBoard(), "text", false); err != nil {
		t.Fatalf("Write: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"To Do (todo, 2)",
		"  [ ] Write docs  high  3 hrs  @You  (t1)",
		"  [x] Ship  low  (t2)",
		"Done (done, 0)",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("expected no ANSI styling for a non-terminal writer: %q", out)
	}
}

func TestWrite_TextFallsBackToJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := Write(&buf, map[string]int{"columns": 2}, "text", false); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !strings.Contains(buf.String(), `"columns": 2`) {
		t.Fatalf("unexpected fallback output: %s", buf.String())
	}
	if err := Write(&buf, nil, "yaml", false); err == nil {
		t.Fatalf("expected unknown format error")
	}
}
