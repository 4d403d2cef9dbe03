// Package reorder turns completed drag gestures into new boards.
//
// Every function here is pure: the input board is never modified and the result is a
// fresh deep copy, so callers can keep the previous board around for rollback.
package reorder

import (
	"sort"

	"kanban-cli/internal/model"
)

// MoveColumn removes the column at sourceIndex and reinserts it at destIndex
// (post-removal indexing), then re-ranks every column to its final position.
// ok is false when either index is out of range; the board is returned unchanged.
func MoveColumn(b model.Board, sourceIndex, destIndex int) (model.Board, bool) {
	n := len(b.Columns)
	if sourceIndex < 0 || sourceIndex >= n || destIndex < 0 || destIndex >= n {
		return b, false
	}
	if sourceIndex == destIndex {
		return b, true
	}

	out := b.Clone()
	out.Columns = splice(out.Columns, sourceIndex, destIndex)
	rankColumns(out.Columns)
	return out, true
}

// MoveTask moves a task within or across columns.
//
// destIndex is clamped into [0, len(dest)] where len(dest) means append; for a
// same-column move the bound is the length after removal. ok is false when a column
// is missing or sourceIndex is invalid.
func MoveTask(b model.Board, sourceColumnID string, sourceIndex int, destColumnID string, destIndex int) (model.Board, bool) {
	si := b.ColumnIndex(sourceColumnID)
	di := b.ColumnIndex(destColumnID)
	if si < 0 || di < 0 {
		return b, false
	}
	src := b.Columns[si]
	if sourceIndex < 0 || sourceIndex >= len(src.Tasks) {
		return b, false
	}

	if si == di {
		if destIndex < 0 {
			destIndex = 0
		}
		if destIndex > len(src.Tasks)-1 {
			destIndex = len(src.Tasks) - 1
		}
		if sourceIndex == destIndex {
			return b, true
		}
		out := b.Clone()
		col := &out.Columns[si]
		col.Tasks = splice(col.Tasks, sourceIndex, destIndex)
		rankTasks(col.Tasks)
		return out, true
	}

	out := b.Clone()
	from := &out.Columns[si]
	to := &out.Columns[di]

	moved := from.Tasks[sourceIndex]
	from.Tasks = append(from.Tasks[:sourceIndex:sourceIndex], from.Tasks[sourceIndex+1:]...)
	moved.ColumnID = to.ID

	if destIndex < 0 {
		destIndex = 0
	}
	if destIndex > len(to.Tasks) {
		destIndex = len(to.Tasks)
	}
	tasks := make([]model.Task, 0, len(to.Tasks)+1)
	tasks = append(tasks, to.Tasks[:destIndex]...)
	tasks = append(tasks, moved)
	tasks = append(tasks, to.Tasks[destIndex:]...)
	to.Tasks = tasks

	rankTasks(from.Tasks)
	rankTasks(to.Tasks)
	return out, true
}

// Normalize sorts columns and tasks by their rank (stable for ties) and re-ranks them
// contiguously. Snapshots loaded from a gateway pass through here once.
func Normalize(b model.Board) model.Board {
	out := b.Clone()
	sort.SliceStable(out.Columns, func(i, j int) bool { return out.Columns[i].Order < out.Columns[j].Order })
	rankColumns(out.Columns)
	for i := range out.Columns {
		col := &out.Columns[i]
		sort.SliceStable(col.Tasks, func(a, b int) bool { return col.Tasks[a].Order < col.Tasks[b].Order })
		rankTasks(col.Tasks)
		for t := range col.Tasks {
			col.Tasks[t].ColumnID = col.ID
		}
	}
	return out
}

// splice moves xs[from] to position to, where to indexes the slice after removal.
// xs is modified; callers pass a copy they own.
func splice[T any](xs []T, from, to int) []T {
	moved := xs[from]
	rest := make([]T, 0, len(xs))
	rest = append(rest, xs[:from]...)
	rest = append(rest, xs[from+1:]...)

	out := make([]T, 0, len(xs))
	out = append(out, rest[:to]...)
	out = append(out, moved)
	out = append(out, rest[to:]...)
	return out
}

func rankColumns(cols []model.Column) {
	for i := range cols {
		cols[i].Order = i
	}
}

func rankTasks(tasks []model.Task) {
	for i := range tasks {
		tasks[i].Order = i
	}
}
