package web

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"kanban-cli/internal/board"
	"kanban-cli/internal/model"
	"kanban-cli/internal/optimistic"
	"kanban-cli/internal/reorder"
)

type errorBody struct {
	Error string       `json:"error"`
	Board *model.Board `json:"board,omitempty"`
}

type columnRequest struct {
	Title string `json:"title"`
}

type moveRequest struct {
	ColumnID string `json:"columnId"`
	To       *int   `json:"to"`
}

// taskRequest is the body of POST /api/tasks and PATCH /api/tasks/:id. Pointer fields
// are optional on PATCH.
type taskRequest struct {
	ColumnID      string          `json:"columnId"`
	Title         *string         `json:"title"`
	Description   *string         `json:"description"`
	Priority      *string         `json:"priority"`
	Completed     *bool           `json:"completed"`
	DueDate       string          `json:"dueDate"`
	Estimate      string          `json:"estimate"`
	ClearSchedule bool            `json:"clearSchedule"`
	Assignee      *model.Assignee `json:"assignee"`
	Unassign      bool            `json:"unassign"`
}

func (r taskRequest) newTask() (model.NewTask, error) {
	n := model.NewTask{ColumnID: r.ColumnID, Assignee: r.Assignee}
	if r.Title != nil {
		n.Title = *r.Title
	}
	if r.Description != nil {
		n.Description = *r.Description
	}
	if r.Completed != nil {
		n.Completed = *r.Completed
	}
	if r.Priority != nil {
		p, err := model.ParsePriority(*r.Priority)
		if err != nil {
			return model.NewTask{}, err
		}
		n.Priority = p
	}
	sched, err := model.ParseSchedule(r.DueDate, r.Estimate)
	if err != nil {
		return model.NewTask{}, err
	}
	n.Schedule = sched
	return n, nil
}

func (r taskRequest) patch() (model.TaskPatch, error) {
	if r.ColumnID != "" {
		return model.TaskPatch{}, model.ValidationError{Field: "columnId", Reason: "use POST /api/tasks/:id/move to change columns"}
	}
	p := model.TaskPatch{Title: r.Title, Description: r.Description, Completed: r.Completed}
	if r.Priority != nil {
		pr, err := model.ParsePriority(*r.Priority)
		if err != nil {
			return model.TaskPatch{}, err
		}
		p.Priority = &pr
	}
	switch {
	case r.ClearSchedule:
		p.Schedule = model.Ptr(model.NoSchedule())
	case r.DueDate != "" || r.Estimate != "":
		sched, err := model.ParseSchedule(r.DueDate, r.Estimate)
		if err != nil {
			return model.TaskPatch{}, err
		}
		p.Schedule = &sched
	}
	switch {
	case r.Unassign:
		var none *model.Assignee
		p.Assignee = &none
	case r.Assignee != nil:
		p.Assignee = &r.Assignee
	}
	return p, nil
}

func decode(c echo.Context, v any) error {
	dec := sonic.ConfigStd.NewDecoder(io.LimitReader(c.Request().Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return model.ValidationError{Reason: "invalid body: " + err.Error()}
	}
	return nil
}

func (s *Server) fail(c echo.Context, err error) error {
	var (
		ve model.ValidationError
		nf board.NotFoundError
		se *optimistic.SyncError
	)
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &ve):
		status = http.StatusBadRequest
	case errors.As(err, &nf):
		status = http.StatusNotFound
	case errors.As(err, &se):
		status = http.StatusBadGateway
		b := s.ctrl.State().Snapshot()
		return c.JSON(status, errorBody{Error: err.Error(), Board: &b})
	default:
		s.log.WithError(err).Error("request failed")
	}
	return c.JSON(status, errorBody{Error: err.Error()})
}

// respond writes body plus the current board. With ?sync=1 it first waits for this
// request's write and reports its rollback as 502.
func (s *Server) respond(c echo.Context, status int, pw *optimistic.Pending, body func() map[string]any) error {
	if ok, _ := strconv.ParseBool(c.QueryParam("sync")); ok {
		if err := pw.WaitContext(c.Request().Context()); err != nil {
			return s.fail(c, err)
		}
	}
	out := map[string]any{}
	if body != nil {
		out = body()
	}
	out["board"] = s.ctrl.State().Snapshot()
	return c.JSON(status, out)
}

func (s *Server) healthz(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

func (s *Server) getBoard(c echo.Context) error {
	return c.JSON(http.StatusOK, s.ctrl.State().Snapshot())
}

func (s *Server) createColumn(c echo.Context) error {
	var req columnRequest
	if err := decode(c, &req); err != nil {
		return s.fail(c, err)
	}
	col, pw, err := s.ctrl.CreateColumn(req.Title)
	if err != nil {
		return s.fail(c, err)
	}
	return s.respond(c, http.StatusCreated, pw, func() map[string]any {
		cur, _ := s.ctrl.State().Column(s.ctrl.DurableID(col.ID))
		return map[string]any{"column": cur}
	})
}

func (s *Server) updateColumn(c echo.Context) error {
	var req columnRequest
	if err := decode(c, &req); err != nil {
		return s.fail(c, err)
	}
	pw, err := s.ctrl.RenameColumn(c.Param("id"), req.Title)
	if err != nil {
		return s.fail(c, err)
	}
	return s.respond(c, http.StatusOK, pw, nil)
}

func (s *Server) deleteColumn(c echo.Context) error {
	pw, err := s.ctrl.DeleteColumn(c.Param("id"))
	if err != nil {
		return s.fail(c, err)
	}
	return s.respond(c, http.StatusOK, pw, nil)
}

func (s *Server) moveColumn(c echo.Context) error {
	var req moveRequest
	if err := decode(c, &req); err != nil {
		return s.fail(c, err)
	}
	if req.To == nil {
		return s.fail(c, model.ValidationError{Field: "to", Reason: "destination index is required"})
	}
	pw, err := s.ctrl.MoveColumnTo(c.Param("id"), *req.To)
	if err != nil {
		return s.fail(c, err)
	}
	return s.respond(c, http.StatusOK, pw, nil)
}

func (s *Server) createTask(c echo.Context) error {
	var req taskRequest
	if err := decode(c, &req); err != nil {
		return s.fail(c, err)
	}
	n, err := req.newTask()
	if err != nil {
		return s.fail(c, err)
	}
	t, pw, err := s.ctrl.CreateTask(n)
	if err != nil {
		return s.fail(c, err)
	}
	return s.respond(c, http.StatusCreated, pw, func() map[string]any {
		cur, _ := s.ctrl.State().Task(s.ctrl.DurableID(t.ID))
		return map[string]any{"task": cur}
	})
}

func (s *Server) getTask(c echo.Context) error {
	id := c.Param("id")
	t, ok := s.ctrl.State().Task(id)
	if !ok {
		return s.fail(c, board.NotFoundError{Kind: "task", ID: id})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"task":            t,
		"descriptionHtml": renderDescription(t.Description),
	})
}

func (s *Server) updateTask(c echo.Context) error {
	var req taskRequest
	if err := decode(c, &req); err != nil {
		return s.fail(c, err)
	}
	p, err := req.patch()
	if err != nil {
		return s.fail(c, err)
	}
	pw, err := s.ctrl.UpdateTask(c.Param("id"), p)
	if err != nil {
		return s.fail(c, err)
	}
	return s.respond(c, http.StatusOK, pw, nil)
}

func (s *Server) deleteTask(c echo.Context) error {
	pw, err := s.ctrl.DeleteTask(c.Param("id"))
	if err != nil {
		return s.fail(c, err)
	}
	return s.respond(c, http.StatusOK, pw, nil)
}

func (s *Server) toggleTask(c echo.Context) error {
	pw, err := s.ctrl.ToggleTask(c.Param("id"))
	if err != nil {
		return s.fail(c, err)
	}
	return s.respond(c, http.StatusOK, pw, nil)
}

func (s *Server) moveTask(c echo.Context) error {
	var req moveRequest
	if err := decode(c, &req); err != nil {
		return s.fail(c, err)
	}
	if req.ColumnID == "" {
		return s.fail(c, model.ValidationError{Field: "columnId", Reason: "destination column is required"})
	}
	if req.To == nil {
		return s.fail(c, model.ValidationError{Field: "to", Reason: "destination index is required"})
	}
	pw, err := s.ctrl.MoveTaskTo(c.Param("id"), req.ColumnID, *req.To)
	if err != nil {
		return s.fail(c, err)
	}
	return s.respond(c, http.StatusOK, pw, nil)
}

func (s *Server) drag(c echo.Context) error {
	var g reorder.DragEnd
	if err := decode(c, &g); err != nil {
		return s.fail(c, err)
	}
	if g.Active.ID == "" {
		return s.fail(c, model.ValidationError{Field: "active", Reason: "dragged element id is required"})
	}
	pw, applied := s.ctrl.Drag(g)
	return s.respond(c, http.StatusOK, pw, func() map[string]any {
		return map[string]any{"applied": applied}
	})
}
