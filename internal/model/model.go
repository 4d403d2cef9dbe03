package model

import (
	"fmt"
	"strings"
	"time"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ParsePriority normalizes a user-supplied priority; empty means medium.
func ParsePriority(s string) (Priority, error) {
	switch Priority(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return PriorityMedium, nil
	case PriorityLow:
		return PriorityLow, nil
	case PriorityMedium:
		return PriorityMedium, nil
	case PriorityHigh:
		return PriorityHigh, nil
	default:
		return "", ValidationError{Field: "priority", Reason: fmt.Sprintf("unknown priority %q", s)}
	}
}

type Assignee struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// DefaultAssignee is attached to tasks created without an explicit assignee.
func DefaultAssignee() *Assignee {
	return &Assignee{Name: "You", Avatar: "/placeholder.svg?height=40&width=40"}
}

type Task struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Completed   bool     `json:"completed"`
	Priority    Priority `json:"priority"`
	Schedule    Schedule `json:"schedule"`
	ColumnID    string   `json:"columnId"`
	Order       int      `json:"order"`

	Assignee *Assignee `json:"assignee,omitempty"`
}

type Column struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Order int    `json:"order"`
	Tasks []Task `json:"tasks"`
}

// Board is the complete set of columns and their tasks.
type Board struct {
	Columns []Column `json:"columns"`
}

// Clone returns a deep copy; mutating the copy never touches b.
func (b Board) Clone() Board {
	out := Board{Columns: make([]Column, len(b.Columns))}
	for i, c := range b.Columns {
		out.Columns[i] = c.Clone()
	}
	return out
}

func (c Column) Clone() Column {
	out := c
	out.Tasks = make([]Task, len(c.Tasks))
	for i, t := range c.Tasks {
		out.Tasks[i] = t.Clone()
	}
	return out
}

func (t Task) Clone() Task {
	out := t
	if t.Assignee != nil {
		a := *t.Assignee
		out.Assignee = &a
	}
	out.Schedule = t.Schedule.Clone()
	return out
}

// ColumnIndex returns the position of the column with id, or -1.
func (b Board) ColumnIndex(id string) int {
	for i := range b.Columns {
		if b.Columns[i].ID == id {
			return i
		}
	}
	return -1
}

func (b *Board) FindColumn(id string) (*Column, bool) {
	i := b.ColumnIndex(id)
	if i < 0 {
		return nil, false
	}
	return &b.Columns[i], true
}

// FindTask returns the column index and task index of the task with id.
func (b Board) FindTask(id string) (col int, idx int, ok bool) {
	for ci := range b.Columns {
		for ti := range b.Columns[ci].Tasks {
			if b.Columns[ci].Tasks[ti].ID == id {
				return ci, ti, true
			}
		}
	}
	return -1, -1, false
}

func (b Board) TaskCount() int {
	n := 0
	for _, c := range b.Columns {
		n += len(c.Tasks)
	}
	return n
}

// NewColumn is the payload for creating a column.
type NewColumn struct {
	Title string `json:"title"`
	Order int    `json:"order"`
}

// NewTask is the payload for creating a task.
type NewTask struct {
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Completed   bool      `json:"completed"`
	Priority    Priority  `json:"priority"`
	Schedule    Schedule  `json:"schedule"`
	ColumnID    string    `json:"columnId"`
	Order       int       `json:"order"`
	Assignee    *Assignee `json:"assignee,omitempty"`
}

// Validate checks the inputs a user supplies when creating a task.
func (n NewTask) Validate() error {
	if strings.TrimSpace(n.Title) == "" {
		return ValidationError{Field: "title", Reason: "title is required"}
	}
	if strings.TrimSpace(n.ColumnID) == "" {
		return ValidationError{Field: "columnId", Reason: "column is required"}
	}
	if _, err := ParsePriority(string(n.Priority)); err != nil {
		return err
	}
	return n.Schedule.Validate()
}

// Task materializes the payload as a task with the given id.
func (n NewTask) Task(id string) Task {
	p, err := ParsePriority(string(n.Priority))
	if err != nil {
		p = PriorityMedium
	}
	t := Task{
		ID:          id,
		Title:       strings.TrimSpace(n.Title),
		Description: n.Description,
		Completed:   n.Completed,
		Priority:    p,
		Schedule:    n.Schedule.Clone(),
		ColumnID:    n.ColumnID,
		Order:       n.Order,
	}
	if n.Assignee != nil {
		a := *n.Assignee
		t.Assignee = &a
	}
	return t
}

// NewTaskFrom is the inverse of NewTask.Task, used when a create is replayed.
func NewTaskFrom(t Task) NewTask {
	n := NewTask{
		Title:       t.Title,
		Description: t.Description,
		Completed:   t.Completed,
		Priority:    t.Priority,
		Schedule:    t.Schedule.Clone(),
		ColumnID:    t.ColumnID,
		Order:       t.Order,
	}
	if t.Assignee != nil {
		a := *t.Assignee
		n.Assignee = &a
	}
	return n
}

// ColumnPatch is a partial column update; nil fields are left unchanged.
type ColumnPatch struct {
	Title *string `json:"title,omitempty"`
	Order *int    `json:"order,omitempty"`
}

func (p ColumnPatch) Empty() bool { return p.Title == nil && p.Order == nil }

func (p ColumnPatch) ApplyTo(c *Column) {
	if p.Title != nil {
		c.Title = *p.Title
	}
	if p.Order != nil {
		c.Order = *p.Order
	}
}

func (p ColumnPatch) Validate() error {
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return ValidationError{Field: "title", Reason: "title is required"}
	}
	return nil
}

// TaskPatch is a partial task update; nil fields are left unchanged.
type TaskPatch struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Completed   *bool      `json:"completed,omitempty"`
	Priority    *Priority  `json:"priority,omitempty"`
	Schedule    *Schedule  `json:"schedule,omitempty"`
	ColumnID    *string    `json:"columnId,omitempty"`
	Order       *int       `json:"order,omitempty"`
	Assignee    **Assignee `json:"-"`
}

func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Completed == nil && p.Priority == nil &&
		p.Schedule == nil && p.ColumnID == nil && p.Order == nil && p.Assignee == nil
}

func (p TaskPatch) ApplyTo(t *Task) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Schedule != nil {
		t.Schedule = p.Schedule.Clone()
	}
	if p.ColumnID != nil {
		t.ColumnID = *p.ColumnID
	}
	if p.Order != nil {
		t.Order = *p.Order
	}
	if p.Assignee != nil {
		if *p.Assignee == nil {
			t.Assignee = nil
		} else {
			a := **p.Assignee
			t.Assignee = &a
		}
	}
}

func (p TaskPatch) Validate() error {
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return ValidationError{Field: "title", Reason: "title is required"}
	}
	if p.Priority != nil {
		if _, err := ParsePriority(string(*p.Priority)); err != nil {
			return err
		}
	}
	if p.Schedule != nil {
		return p.Schedule.Validate()
	}
	return nil
}

// DiffTask returns the patch that turns prev into next.
func DiffTask(prev, next Task) TaskPatch {
	var p TaskPatch
	if prev.Title != next.Title {
		p.Title = &next.Title
	}
	if prev.Description != next.Description {
		p.Description = &next.Description
	}
	if prev.Completed != next.Completed {
		p.Completed = &next.Completed
	}
	if prev.Priority != next.Priority {
		p.Priority = &next.Priority
	}
	if !prev.Schedule.Equal(next.Schedule) {
		s := next.Schedule.Clone()
		p.Schedule = &s
	}
	if prev.ColumnID != next.ColumnID {
		p.ColumnID = &next.ColumnID
	}
	if prev.Order != next.Order {
		p.Order = &next.Order
	}
	if !sameAssignee(prev.Assignee, next.Assignee) {
		a := next.Assignee
		p.Assignee = &a
	}
	return p
}

// Revert returns the patch that undoes p on a task whose prior state was prev. Only the
// fields p sets are restored, so concurrent edits to other fields survive a rollback.
func (p TaskPatch) Revert(prev Task) TaskPatch {
	var r TaskPatch
	if p.Title != nil {
		r.Title = Ptr(prev.Title)
	}
	if p.Description != nil {
		r.Description = Ptr(prev.Description)
	}
	if p.Completed != nil {
		r.Completed = Ptr(prev.Completed)
	}
	if p.Priority != nil {
		r.Priority = Ptr(prev.Priority)
	}
	if p.Schedule != nil {
		r.Schedule = Ptr(prev.Schedule.Clone())
	}
	if p.ColumnID != nil {
		r.ColumnID = Ptr(prev.ColumnID)
	}
	if p.Order != nil {
		r.Order = Ptr(prev.Order)
	}
	if p.Assignee != nil {
		var a *Assignee
		if prev.Assignee != nil {
			cp := *prev.Assignee
			a = &cp
		}
		r.Assignee = &a
	}
	return r
}

func sameAssignee(a, b *Assignee) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func Ptr[T any](v T) *T { return &v }

// ParseDue accepts RFC3339 or a bare YYYY-MM-DD date.
func ParseDue(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, ValidationError{Field: "dueDate", Reason: fmt.Sprintf("invalid date %q (use YYYY-MM-DD)", s)}
	}
	return t.UTC(), nil
}
