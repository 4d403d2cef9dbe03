package reorder

import "kanban-cli/internal/model"

// ColumnRank is the rank of one column.
type ColumnRank struct {
	ID    string
	Order int
}

// TaskRank is the rank and column of one task.
type TaskRank struct {
	ID       string
	ColumnID string
	Order    int
}

// Changes lists every sibling record touched by a move, in final board order.
type Changes struct {
	Columns []ColumnRank
	Tasks   []TaskRank

	// ColumnIDs are the columns whose task lists changed.
	ColumnIDs []string
}

func (c Changes) Empty() bool { return len(c.Columns) == 0 && len(c.Tasks) == 0 }

// Diff reports the ranks that differ between before and after. Ids present only in
// after are reported as well; ids that vanished are ignored.
func Diff(before, after model.Board) Changes {
	var out Changes

	prevCol := make(map[string]int, len(before.Columns))
	type taskPos struct {
		col   string
		order int
	}
	prevTask := map[string]taskPos{}
	for _, c := range before.Columns {
		prevCol[c.ID] = c.Order
		for _, t := range c.Tasks {
			prevTask[t.ID] = taskPos{col: t.ColumnID, order: t.Order}
		}
	}

	touched := map[string]bool{}
	for _, c := range after.Columns {
		if o, ok := prevCol[c.ID]; !ok || o != c.Order {
			out.Columns = append(out.Columns, ColumnRank{ID: c.ID, Order: c.Order})
		}
		for _, t := range c.Tasks {
			p, ok := prevTask[t.ID]
			if ok && p.col == t.ColumnID && p.order == t.Order {
				continue
			}
			out.Tasks = append(out.Tasks, TaskRank{ID: t.ID, ColumnID: t.ColumnID, Order: t.Order})
			if !touched[t.ColumnID] {
				touched[t.ColumnID] = true
				out.ColumnIDs = append(out.ColumnIDs, t.ColumnID)
			}
			if ok && p.col != t.ColumnID && !touched[p.col] {
				touched[p.col] = true
				out.ColumnIDs = append(out.ColumnIDs, p.col)
			}
		}
	}
	return out
}

// Affected widens Diff to whole sibling lists: every column when any column rank
// changed, and every task of each column whose task list changed. Writing all of them
// back leaves the stored ranks contiguous even when they had gaps before.
func Affected(before, after model.Board) Changes {
	d := Diff(before, after)
	if d.Empty() {
		return d
	}
	out := Changes{ColumnIDs: d.ColumnIDs}
	if len(d.Columns) > 0 {
		for _, c := range after.Columns {
			out.Columns = append(out.Columns, ColumnRank{ID: c.ID, Order: c.Order})
		}
	}
	touched := make(map[string]bool, len(d.ColumnIDs))
	for _, id := range d.ColumnIDs {
		touched[id] = true
	}
	for _, c := range after.Columns {
		if !touched[c.ID] {
			continue
		}
		for _, t := range c.Tasks {
			out.Tasks = append(out.Tasks, TaskRank{ID: t.ID, ColumnID: t.ColumnID, Order: t.Order})
		}
	}
	return out
}
