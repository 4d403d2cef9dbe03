// Package gateway defines the persistence boundary the sync controller writes through.
// Backends live in subpackages.
package gateway

import (
	"context"
	"errors"

	"kanban-cli/internal/model"
	"kanban-cli/internal/reorder"
)

// ErrNotFound is returned (wrapped) when a backend has no record for an id.
var ErrNotFound = errors.New("not found")

type Gateway interface {
	// LoadBoard returns every column with its tasks, ordered by rank.
	LoadBoard(ctx context.Context) (model.Board, error)

	CreateColumn(ctx context.Context, c model.NewColumn) (string, error)
	UpdateColumn(ctx context.Context, id string, p model.ColumnPatch) error
	// DeleteColumn removes the column and every task referencing it.
	DeleteColumn(ctx context.Context, id string) error

	CreateTask(ctx context.Context, t model.NewTask) (string, error)
	UpdateTask(ctx context.Context, id string, p model.TaskPatch) error
	DeleteTask(ctx context.Context, id string) error

	Close() error
}

// Subscriber is implemented by backends that can push board snapshots. fn receives the
// full board each time the backend observes a change.
type Subscriber interface {
	SubscribeBoard(ctx context.Context, fn func(model.Board)) (unsubscribe func(), err error)
}

// Assemble groups flat column and task rows into a ranked board. Tasks whose column
// is missing are dropped.
func Assemble(cols []model.Column, tasks []model.Task) model.Board {
	b := model.Board{Columns: make([]model.Column, 0, len(cols))}
	idx := make(map[string]int, len(cols))
	for _, c := range cols {
		c.Tasks = []model.Task{}
		idx[c.ID] = len(b.Columns)
		b.Columns = append(b.Columns, c)
	}
	for _, t := range tasks {
		i, ok := idx[t.ColumnID]
		if !ok {
			continue
		}
		b.Columns[i].Tasks = append(b.Columns[i].Tasks, t)
	}
	return reorder.Normalize(b)
}
