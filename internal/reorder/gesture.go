package reorder

import (
	"strings"

	"kanban-cli/internal/model"
)

type ItemKind string

const (
	KindColumn ItemKind = "column"
	KindTask   ItemKind = "task"
)

// Active describes the dragged element at drag start.
type Active struct {
	ID          string   `json:"id"`
	Kind        ItemKind `json:"kind"`
	ContainerID string   `json:"containerId,omitempty"`
	Index       int      `json:"index"`
}

// Over describes the element under the pointer when the drag ended.
// ContainerID is empty when the drop landed on a column body rather than a task;
// Index is nil in that case, meaning "append".
type Over struct {
	ID          string `json:"id"`
	ContainerID string `json:"containerId,omitempty"`
	Index       *int   `json:"index,omitempty"`
}

// DragEnd is a completed pointer gesture. Over is nil when the pointer was released
// outside every drop target.
type DragEnd struct {
	Active Active `json:"active"`
	Over   *Over  `json:"over,omitempty"`
}

// Move is the index-level result of resolving a gesture: a ColumnMove or a TaskMove.
type Move interface {
	isMove()
}

type ColumnMove struct {
	Source int
	Dest   int
}

type TaskMove struct {
	SourceColumnID string
	SourceIndex    int
	DestColumnID   string
	DestIndex      int
}

func (ColumnMove) isMove() {}
func (TaskMove) isMove()   {}

// Resolve converts a drag gesture into a move against b. ok is false when the gesture
// does not describe a move (dropped nowhere, dropped on itself, or referencing ids that
// are no longer on the board).
func Resolve(b model.Board, g DragEnd) (Move, bool) {
	if g.Over == nil {
		return nil, false
	}
	activeID := strings.TrimSpace(g.Active.ID)
	overID := strings.TrimSpace(g.Over.ID)

	switch g.Active.Kind {
	case KindColumn:
		if activeID == overID {
			return nil, false
		}
		from := b.ColumnIndex(activeID)
		to := b.ColumnIndex(overID)
		if from < 0 || to < 0 {
			return nil, false
		}
		return ColumnMove{Source: from, Dest: to}, true

	case KindTask, "":
		srcColID := strings.TrimSpace(g.Active.ContainerID)
		ci, ti, found := b.FindTask(activeID)
		if !found {
			return nil, false
		}
		if srcColID == "" {
			srcColID = b.Columns[ci].ID
		}
		if b.Columns[ci].ID != srcColID {
			// The gesture's container is stale (e.g. a remote snapshot moved the task);
			// trust the board.
			srcColID = b.Columns[ci].ID
		}

		destColID := strings.TrimSpace(g.Over.ContainerID)
		if destColID == "" {
			destColID = overID
		}
		di := b.ColumnIndex(destColID)
		if di < 0 {
			return nil, false
		}
		destIndex := len(b.Columns[di].Tasks)
		if g.Over.Index != nil {
			destIndex = *g.Over.Index
		}
		return TaskMove{
			SourceColumnID: srcColID,
			SourceIndex:    ti,
			DestColumnID:   destColID,
			DestIndex:      destIndex,
		}, true
	}
	return nil, false
}

// Apply runs a resolved move against b.
func Apply(b model.Board, m Move) (model.Board, bool) {
	switch mv := m.(type) {
	case ColumnMove:
		return MoveColumn(b, mv.Source, mv.Dest)
	case TaskMove:
		return MoveTask(b, mv.SourceColumnID, mv.SourceIndex, mv.DestColumnID, mv.DestIndex)
	}
	return b, false
}
