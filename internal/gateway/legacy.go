package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"kanban-cli/internal/model"
)

// legacyColumn and legacyTask mirror the "kanbanColumns" document older browser
// builds kept in local storage.
type legacyColumn struct {
	ID    string       `json:"id"`
	Title string       `json:"title"`
	Order *int         `json:"order"`
	Tasks []legacyTask `json:"tasks"`
}

type legacyTask struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	Completed    bool            `json:"completed"`
	Priority     string          `json:"priority"`
	ColumnID     string          `json:"columnId"`
	Order        *int            `json:"order"`
	DueDate      string          `json:"dueDate"`
	TimeEstimate *legacyEstimate `json:"timeEstimate"`
	Schedule     *model.Schedule `json:"schedule"`
	Assignee     *model.Assignee `json:"assignee"`
}

type legacyEstimate struct {
	Value json.RawMessage `json:"value"`
	Unit  string          `json:"unit"`
}

// DecodeLegacy parses a kanbanColumns document, or a {"columns": [...]} board export.
// Missing orders fall back to array position.
func DecodeLegacy(data []byte) (model.Board, error) {
	data = bytes.TrimSpace(data)
	var cols []legacyColumn
	if len(data) > 0 && data[0] == '{' {
		var wrapped struct {
			Columns []legacyColumn `json:"columns"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return model.Board{}, err
		}
		cols = wrapped.Columns
	} else if err := json.Unmarshal(data, &cols); err != nil {
		return model.Board{}, err
	}

	b := model.Board{Columns: make([]model.Column, 0, len(cols))}
	for ci, lc := range cols {
		col := model.Column{ID: lc.ID, Title: lc.Title, Order: orDefault(lc.Order, ci), Tasks: []model.Task{}}
		if strings.TrimSpace(col.Title) == "" {
			return model.Board{}, model.ValidationError{Field: "title", Reason: fmt.Sprintf("column %d has no title", ci)}
		}
		for ti, lt := range lc.Tasks {
			t, err := lt.task(col.ID, ti)
			if err != nil {
				return model.Board{}, fmt.Errorf("column %q task %d: %w", col.Title, ti, err)
			}
			col.Tasks = append(col.Tasks, t)
		}
		b.Columns = append(b.Columns, col)
	}
	return b, nil
}

func (lt legacyTask) task(columnID string, pos int) (model.Task, error) {
	p, err := model.ParsePriority(lt.Priority)
	if err != nil {
		return model.Task{}, err
	}
	t := model.Task{
		ID:          lt.ID,
		Title:       strings.TrimSpace(lt.Title),
		Description: lt.Description,
		Completed:   lt.Completed,
		Priority:    p,
		Schedule:    model.NoSchedule(),
		ColumnID:    columnID,
		Order:       orDefault(lt.Order, pos),
		Assignee:    lt.Assignee,
	}
	if t.Title == "" {
		return model.Task{}, model.ValidationError{Field: "title", Reason: "title is required"}
	}
	switch {
	case lt.Schedule != nil:
		t.Schedule = lt.Schedule.Clone()
	case lt.DueDate != "":
		due, err := model.ParseDue(lt.DueDate)
		if err != nil {
			return model.Task{}, err
		}
		t.Schedule = model.DueOn(due)
	case lt.TimeEstimate != nil:
		n, err := lt.TimeEstimate.value()
		if err != nil {
			return model.Task{}, err
		}
		if n > 0 {
			t.Schedule = model.EstimateOf(n, model.TimeUnit(lt.TimeEstimate.Unit))
		}
	}
	return t, t.Schedule.Validate()
}

// value accepts both 3 and "3"; the browser form stored the raw input string.
func (e legacyEstimate) value() (int, error) {
	raw := strings.Trim(strings.TrimSpace(string(e.Value)), `"`)
	if raw == "" || raw == "null" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, model.ValidationError{Field: "timeEstimate", Reason: fmt.Sprintf("invalid value %q", raw)}
	}
	return n, nil
}

func orDefault(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

// Import writes every column and task of b through gw, creating fresh ids. It returns
// the number of columns and tasks written.
func Import(ctx context.Context, gw Gateway, b model.Board) (int, int, error) {
	var nc, nt int
	for _, c := range b.Columns {
		id, err := gw.CreateColumn(ctx, model.NewColumn{Title: c.Title, Order: c.Order})
		if err != nil {
			return nc, nt, fmt.Errorf("import column %q: %w", c.Title, err)
		}
		nc++
		for _, t := range c.Tasks {
			n := model.NewTaskFrom(t)
			n.ColumnID = id
			if _, err := gw.CreateTask(ctx, n); err != nil {
				return nc, nt, fmt.Errorf("import task %q: %w", t.Title, err)
			}
			nt++
		}
	}
	return nc, nt, nil
}
