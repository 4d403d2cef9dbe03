// Package board holds the in-memory board: the single source of truth the views
// render from. All mutations are serialized by a mutex because gateway completions
// land on other goroutines.
package board

import (
	"sort"
	"sync"

	"kanban-cli/internal/model"
	"kanban-cli/internal/reorder"
)

type State struct {
	mu      sync.Mutex
	board   model.Board
	version uint64

	notifyMu     sync.Mutex
	notified     uint64
	nextListener int
	listeners    map[int]func(model.Board)
}

func New(b model.Board) *State {
	return &State{board: reorder.Normalize(b), listeners: map[int]func(model.Board){}}
}

// Snapshot returns a deep copy of the current board.
func (s *State) Snapshot() model.Board {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.board.Clone()
}

// OnChange registers fn to receive a snapshot after every change. Snapshots are
// delivered in version order; a stale snapshot is never delivered after a newer one.
func (s *State) OnChange(fn func(model.Board)) (cancel func()) {
	s.notifyMu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	s.notifyMu.Unlock()
	return func() {
		s.notifyMu.Lock()
		delete(s.listeners, id)
		s.notifyMu.Unlock()
	}
}

// mutate runs fn under the lock. fn reports whether it changed the board.
func (s *State) mutate(fn func(b *model.Board) (bool, error)) error {
	s.mu.Lock()
	changed, err := fn(&s.board)
	if !changed {
		s.mu.Unlock()
		return err
	}
	s.version++
	v := s.version
	snap := s.board.Clone()
	s.mu.Unlock()

	s.notify(v, snap)
	return err
}

func (s *State) notify(v uint64, snap model.Board) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if v <= s.notified {
		return
	}
	s.notified = v
	for _, fn := range s.listeners {
		fn(snap.Clone())
	}
}

// Replace swaps in a whole board, e.g. a snapshot pushed by a gateway subscription.
func (s *State) Replace(b model.Board) {
	nb := reorder.Normalize(b)
	_ = s.mutate(func(cur *model.Board) (bool, error) {
		*cur = nb
		return true, nil
	})
}

func (s *State) HasColumn(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.board.ColumnIndex(id) >= 0
}

func (s *State) Column(id string) (model.Column, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.board.FindColumn(id)
	if !ok {
		return model.Column{}, false
	}
	return c.Clone(), true
}

func (s *State) Task(id string) (model.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ci, ti, ok := s.board.FindTask(id)
	if !ok {
		return model.Task{}, false
	}
	return s.board.Columns[ci].Tasks[ti].Clone(), true
}

// NextColumnOrder is the rank a new column appended at the end receives.
func (s *State) NextColumnOrder() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return nextOrder(len(s.board.Columns), func(i int) int { return s.board.Columns[i].Order })
}

// NextTaskOrder is the rank a new task appended to column id receives.
func (s *State) NextTaskOrder(columnID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.board.FindColumn(columnID)
	if !ok {
		return 0, errColumn(columnID)
	}
	return nextOrder(len(c.Tasks), func(i int) int { return c.Tasks[i].Order }), nil
}

func nextOrder(n int, at func(int) int) int {
	next := n
	for i := 0; i < n; i++ {
		if o := at(i); o >= next {
			next = o + 1
		}
	}
	return next
}

func (s *State) AddColumn(c model.Column) {
	c = c.Clone()
	_ = s.mutate(func(b *model.Board) (bool, error) {
		b.Columns = append(b.Columns, c)
		return true, nil
	})
}

func (s *State) AddTask(t model.Task) error {
	t = t.Clone()
	return s.mutate(func(b *model.Board) (bool, error) {
		c, ok := b.FindColumn(t.ColumnID)
		if !ok {
			return false, errColumn(t.ColumnID)
		}
		c.Tasks = append(c.Tasks, t)
		return true, nil
	})
}

// RemoveColumn deletes a column together with all of its tasks and returns what was removed.
func (s *State) RemoveColumn(id string) (model.Column, error) {
	var removed model.Column
	err := s.mutate(func(b *model.Board) (bool, error) {
		i := b.ColumnIndex(id)
		if i < 0 {
			return false, errColumn(id)
		}
		removed = b.Columns[i].Clone()
		b.Columns = append(b.Columns[:i:i], b.Columns[i+1:]...)
		return true, nil
	})
	return removed, err
}

func (s *State) RemoveTask(id string) (model.Task, error) {
	var removed model.Task
	err := s.mutate(func(b *model.Board) (bool, error) {
		ci, ti, ok := b.FindTask(id)
		if !ok {
			return false, errTask(id)
		}
		c := &b.Columns[ci]
		removed = c.Tasks[ti].Clone()
		c.Tasks = append(c.Tasks[:ti:ti], c.Tasks[ti+1:]...)
		return true, nil
	})
	return removed, err
}

// UpdateColumn applies p and returns the column as it was before.
func (s *State) UpdateColumn(id string, p model.ColumnPatch) (model.Column, error) {
	var prev model.Column
	err := s.mutate(func(b *model.Board) (bool, error) {
		c, ok := b.FindColumn(id)
		if !ok {
			return false, errColumn(id)
		}
		prev = c.Clone()
		p.ApplyTo(c)
		return true, nil
	})
	return prev, err
}

// UpdateTask applies the field edits in p and returns the task as it was before.
// Placement (ColumnID, Order) is owned by the reorder engine and ignored here.
func (s *State) UpdateTask(id string, p model.TaskPatch) (model.Task, error) {
	p.ColumnID = nil
	p.Order = nil
	var prev model.Task
	err := s.mutate(func(b *model.Board) (bool, error) {
		ci, ti, ok := b.FindTask(id)
		if !ok {
			return false, errTask(id)
		}
		t := &b.Columns[ci].Tasks[ti]
		prev = t.Clone()
		p.ApplyTo(t)
		return true, nil
	})
	return prev, err
}

// ToggleTask flips completion and returns the new value.
func (s *State) ToggleTask(id string) (bool, error) {
	var completed bool
	err := s.mutate(func(b *model.Board) (bool, error) {
		ci, ti, ok := b.FindTask(id)
		if !ok {
			return false, errTask(id)
		}
		t := &b.Columns[ci].Tasks[ti]
		t.Completed = !t.Completed
		completed = t.Completed
		return true, nil
	})
	return completed, err
}

// SetTaskCompleted forces completion to v (used to undo a toggle).
func (s *State) SetTaskCompleted(id string, v bool) error {
	return s.mutate(func(b *model.Board) (bool, error) {
		ci, ti, ok := b.FindTask(id)
		if !ok {
			return false, errTask(id)
		}
		t := &b.Columns[ci].Tasks[ti]
		if t.Completed == v {
			return false, nil
		}
		t.Completed = v
		return true, nil
	})
}

// Apply runs a reorder move atomically and returns the boards before and after it.
// ok is false when the move referenced something no longer on the board.
func (s *State) Apply(m reorder.Move) (before, after model.Board, ok bool) {
	_ = s.mutate(func(b *model.Board) (bool, error) {
		before = b.Clone()
		next, moved := reorder.Apply(*b, m)
		if !moved {
			ok = false
			return false, nil
		}
		ok = true
		if reorder.Diff(before, next).Empty() {
			after = before
			return false, nil
		}
		*b = next
		after = next.Clone()
		return true, nil
	})
	return before, after, ok
}

// ApplyGesture resolves a drag gesture against the current board and applies it in one step.
func (s *State) ApplyGesture(g reorder.DragEnd) (before, after model.Board, ok bool) {
	var mv reorder.Move
	s.mu.Lock()
	mv, ok = reorder.Resolve(s.board, g)
	s.mu.Unlock()
	if !ok {
		snap := s.Snapshot()
		return snap, snap, false
	}
	return s.Apply(mv)
}

// ReplaceColumnID swaps a temporary column id for its durable id, including the
// columnId of every task under it.
func (s *State) ReplaceColumnID(tmp, durable string) bool {
	if tmp == durable {
		return false
	}
	var found bool
	_ = s.mutate(func(b *model.Board) (bool, error) {
		c, ok := b.FindColumn(tmp)
		if !ok {
			return false, nil
		}
		found = true
		c.ID = durable
		for i := range c.Tasks {
			c.Tasks[i].ColumnID = durable
		}
		return true, nil
	})
	return found
}

func (s *State) ReplaceTaskID(tmp, durable string) bool {
	if tmp == durable {
		return false
	}
	var found bool
	_ = s.mutate(func(b *model.Board) (bool, error) {
		ci, ti, ok := b.FindTask(tmp)
		if !ok {
			return false, nil
		}
		found = true
		b.Columns[ci].Tasks[ti].ID = durable
		return true, nil
	})
	return found
}

// RestoreColumn puts a deleted column back at the position its order implies,
// unless a column with that id is already present.
func (s *State) RestoreColumn(c model.Column) {
	c = c.Clone()
	_ = s.mutate(func(b *model.Board) (bool, error) {
		if b.ColumnIndex(c.ID) >= 0 {
			return false, nil
		}
		at := len(b.Columns)
		for i := range b.Columns {
			if b.Columns[i].Order > c.Order {
				at = i
				break
			}
		}
		cols := make([]model.Column, 0, len(b.Columns)+1)
		cols = append(cols, b.Columns[:at]...)
		cols = append(cols, c)
		cols = append(cols, b.Columns[at:]...)
		b.Columns = cols
		return true, nil
	})
}

// RestoreTask puts a deleted task back into its column at the position its order implies.
func (s *State) RestoreTask(t model.Task) error {
	t = t.Clone()
	return s.mutate(func(b *model.Board) (bool, error) {
		if _, _, ok := b.FindTask(t.ID); ok {
			return false, nil
		}
		c, ok := b.FindColumn(t.ColumnID)
		if !ok {
			return false, errColumn(t.ColumnID)
		}
		at := len(c.Tasks)
		for i := range c.Tasks {
			if c.Tasks[i].Order > t.Order {
				at = i
				break
			}
		}
		tasks := make([]model.Task, 0, len(c.Tasks)+1)
		tasks = append(tasks, c.Tasks[:at]...)
		tasks = append(tasks, t)
		tasks = append(tasks, c.Tasks[at:]...)
		c.Tasks = tasks
		return true, nil
	})
}

// RestoreRanks moves the listed records back to the ranks (and columns) captured before a
// reorder. Records that disappeared in the meantime are skipped; records not listed keep
// their current rank.
func (s *State) RestoreRanks(cols []reorder.ColumnRank, tasks []reorder.TaskRank) {
	_ = s.mutate(func(b *model.Board) (bool, error) {
		changed := false
		if len(cols) > 0 {
			for _, cr := range cols {
				if c, ok := b.FindColumn(cr.ID); ok && c.Order != cr.Order {
					c.Order = cr.Order
					changed = true
				}
			}
			sort.SliceStable(b.Columns, func(i, j int) bool { return b.Columns[i].Order < b.Columns[j].Order })
		}

		touched := map[string]bool{}
		for _, tr := range tasks {
			ci, ti, ok := b.FindTask(tr.ID)
			if !ok {
				continue
			}
			cur := b.Columns[ci].Tasks[ti]
			if cur.ColumnID == tr.ColumnID && cur.Order == tr.Order {
				continue
			}
			dest, ok := b.FindColumn(tr.ColumnID)
			if !ok {
				continue
			}
			changed = true
			touched[tr.ColumnID] = true
			if cur.ColumnID != tr.ColumnID {
				src := &b.Columns[ci]
				src.Tasks = append(src.Tasks[:ti:ti], src.Tasks[ti+1:]...)
				touched[src.ID] = true
				cur.ColumnID = tr.ColumnID
				cur.Order = tr.Order
				dest.Tasks = append(dest.Tasks, cur)
				continue
			}
			b.Columns[ci].Tasks[ti].Order = tr.Order
		}
		for id := range touched {
			c, ok := b.FindColumn(id)
			if !ok {
				continue
			}
			sort.SliceStable(c.Tasks, func(i, j int) bool { return c.Tasks[i].Order < c.Tasks[j].Order })
		}
		return changed, nil
	})
}
