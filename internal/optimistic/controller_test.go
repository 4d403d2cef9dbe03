package optimistic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"kanban-cli/internal/board"
	"kanban-cli/internal/gateway/memgw"
	"kanban-cli/internal/model"
	"kanban-cli/internal/reorder"
)

var errBackend = errors.New("backend unavailable")

func seed() model.Board {
	return model.Board{Columns: []model.Column{
		{ID: "A", Title: "Todo", Order: 0, Tasks: []model.Task{
			{ID: "t1", Title: "one", ColumnID: "A", Order: 0, Priority: model.PriorityLow},
			{ID: "t2", Title: "two", ColumnID: "A", Order: 1, Priority: model.PriorityMedium},
		}},
		{ID: "B", Title: "Doing", Order: 1, Tasks: []model.Task{}},
	}}
}

type fixture struct {
	gw   *memgw.Gateway
	ctrl *Controller

	mu   sync.Mutex
	errs []*SyncError
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{gw: memgw.New(seed())}
	n := 0
	var idMu sync.Mutex
	f.ctrl = New(board.New(model.Board{}), f.gw, Options{
		NewID: func() string {
			idMu.Lock()
			defer idMu.Unlock()
			n++
			return fmt.Sprintf("tmp-%d", n)
		},
		OnError: func(se *SyncError) {
			f.mu.Lock()
			f.errs = append(f.errs, se)
			f.mu.Unlock()
		},
	})
	if err := f.ctrl.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return f
}

func (f *fixture) reported() []*SyncError {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*SyncError(nil), f.errs...)
}

func taskIDs(b model.Board, col string) string {
	c, ok := b.FindColumn(col)
	if !ok {
		return "<missing>"
	}
	var out []string
	for _, t := range c.Tasks {
		out = append(out, t.ID)
	}
	return strings.Join(out, ",")
}

func columnIDs(b model.Board) string {
	var out []string
	for _, c := range b.Columns {
		out = append(out, c.ID)
	}
	return strings.Join(out, ",")
}

func TestCreateTask_FailureRemovesTaskAndReports(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.gw.FailOn(memgw.OpCreateTask, errBackend)

	task, _, err := f.ctrl.CreateTask(model.NewTask{Title: "X", ColumnID: "B"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if task.ID != "tmp-1" || task.Priority != model.PriorityMedium || task.Assignee == nil || task.Assignee.Name != "You" {
		t.Fatalf("unexpected optimistic task: %+v", task)
	}

	err = f.ctrl.Wait()
	var se *SyncError
	if !errors.As(err, &se) || se.Op != "create" || se.Kind != "task" || se.ID != "tmp-1" {
		t.Fatalf("expected create SyncError, got %v", err)
	}
	if !errors.Is(err, errBackend) {
		t.Fatalf("expected wrapped backend error, got %v", err)
	}
	if got := taskIDs(f.ctrl.State().Snapshot(), "B"); got != "" {
		t.Fatalf("expected B to be empty after rollback, got %q", got)
	}
	if len(f.reported()) != 1 {
		t.Fatalf("expected one reported error, got %d", len(f.reported()))
	}
}

func TestCreateColumn_ReplacesTemporaryID(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	col, _, err := f.ctrl.CreateColumn("  Review ")
	if err != nil {
		t.Fatalf("CreateColumn: %v", err)
	}
	if col.ID != "tmp-1" || col.Title != "Review" || col.Order != 2 {
		t.Fatalf("unexpected optimistic column: %+v", col)
	}
	if err := f.ctrl.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	snap := f.ctrl.State().Snapshot()
	if got := columnIDs(snap); got != "A,B,col-1" {
		t.Fatalf("expected durable id, got %s", got)
	}
}

func TestCreateTask_UnderPendingColumnUsesDurableID(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	release := f.gw.Hold()
	col, _, _ := f.ctrl.CreateColumn("Review")
	task, _, err := f.ctrl.CreateTask(model.NewTask{Title: "draft", ColumnID: col.ID})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if task.ColumnID != "tmp-1" {
		t.Fatalf("expected task under temporary column, got %+v", task)
	}
	release()
	if err := f.ctrl.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	stored, _ := f.gw.LoadBoard(context.Background())
	c, ok := stored.FindColumn("col-1")
	if !ok || len(c.Tasks) != 1 || c.Tasks[0].ColumnID != "col-1" {
		t.Fatalf("task not persisted under durable column: %+v", stored)
	}
	snap := f.ctrl.State().Snapshot()
	got, ok := snap.FindColumn("col-1")
	if !ok || len(got.Tasks) != 1 || got.Tasks[0].ColumnID != "col-1" || got.Tasks[0].ID != c.Tasks[0].ID {
		t.Fatalf("in-memory ids not reconciled: %+v", snap)
	}
}

func TestCreateColumn_FailureDiscardsDependentTasks(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.gw.FailOn(memgw.OpCreateColumn, errBackend)
	release := f.gw.Hold()
	col, _, _ := f.ctrl.CreateColumn("Review")
	if _, _, err := f.ctrl.CreateTask(model.NewTask{Title: "draft", ColumnID: col.ID}); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	release()

	err := f.ctrl.Wait()
	if err == nil || len(f.reported()) != 1 || f.reported()[0].Kind != "column" {
		t.Fatalf("expected a single column SyncError, got %v", err)
	}
	if got := columnIDs(f.ctrl.State().Snapshot()); got != "A,B" {
		t.Fatalf("expected temporary column removed, got %s", got)
	}
	for _, op := range f.gw.Ops() {
		if op == memgw.OpCreateTask {
			t.Fatalf("task create should not reach the gateway")
		}
	}
}

func TestDeleteTask_FailureRestoresPosition(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.gw.FailOn(memgw.OpDeleteTask, errBackend)
	if _, err := f.ctrl.DeleteTask("t1"); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	if got := taskIDs(f.ctrl.State().Snapshot(), "A"); got != "t2" {
		t.Fatalf("expected optimistic removal, got %s", got)
	}
	if err := f.ctrl.Wait(); !IsSyncError(err) {
		t.Fatalf("expected SyncError, got %v", err)
	}
	if got := taskIDs(f.ctrl.State().Snapshot(), "A"); got != "t1,t2" {
		t.Fatalf("expected t1 restored first, got %s", got)
	}
}

func TestDeleteColumn_CascadesAndRestoresOnFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if _, err := f.ctrl.DeleteColumn("A"); err != nil {
		t.Fatalf("DeleteColumn: %v", err)
	}
	if err := f.ctrl.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	stored, _ := f.gw.LoadBoard(context.Background())
	if columnIDs(stored) != "B" || stored.TaskCount() != 0 {
		t.Fatalf("expected cascade in gateway, got %+v", stored)
	}

	g := newFixture(t)
	g.gw.FailOn(memgw.OpDeleteColumn, errBackend)
	_, _ = g.ctrl.DeleteColumn("A")
	if err := g.ctrl.Wait(); !errors.Is(err, errBackend) {
		t.Fatalf("expected backend error, got %v", err)
	}
	snap := g.ctrl.State().Snapshot()
	if columnIDs(snap) != "A,B" || taskIDs(snap, "A") != "t1,t2" {
		t.Fatalf("column not restored: %s / %s", columnIDs(snap), taskIDs(snap, "A"))
	}
}

func TestMoveTask_PersistsEverySibling(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if _, ok := f.ctrl.MoveTask("A", 0, "B", 0); !ok {
		t.Fatalf("expected move")
	}
	if err := f.ctrl.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	stored, _ := f.gw.LoadBoard(context.Background())
	if taskIDs(stored, "A") != "t2" || taskIDs(stored, "B") != "t1" {
		t.Fatalf("unexpected stored board: A=%s B=%s", taskIDs(stored, "A"), taskIDs(stored, "B"))
	}
	a, _ := stored.FindColumn("A")
	if a.Tasks[0].Order != 0 {
		t.Fatalf("sibling rank not persisted: %+v", a.Tasks[0])
	}
}

func TestMoveTask_FailureRestoresRanks(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.gw.FailOn(memgw.OpUpdateTask, errBackend)
	f.ctrl.MoveTask("A", 1, "A", 0)
	if got := taskIDs(f.ctrl.State().Snapshot(), "A"); got != "t2,t1" {
		t.Fatalf("expected optimistic reorder, got %s", got)
	}
	err := f.ctrl.Wait()
	var se *SyncError
	if !errors.As(err, &se) || se.Op != "move" || se.ID != "t2" {
		t.Fatalf("expected move SyncError, got %v", err)
	}
	snap := f.ctrl.State().Snapshot()
	if got := taskIDs(snap, "A"); got != "t1,t2" {
		t.Fatalf("expected rollback, got %s", got)
	}
	a, _ := snap.FindColumn("A")
	if a.Tasks[0].Order != 0 || a.Tasks[1].Order != 1 {
		t.Fatalf("ranks not restored: %+v", a.Tasks)
	}
}

func TestMoveColumn(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if _, ok := f.ctrl.MoveColumn(0, 5); ok {
		t.Fatalf("expected out-of-range move to be rejected")
	}
	if _, ok := f.ctrl.MoveColumn(1, 0); !ok {
		t.Fatalf("expected move")
	}
	if err := f.ctrl.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	stored, _ := f.gw.LoadBoard(context.Background())
	if columnIDs(stored) != "B,A" {
		t.Fatalf("expected B,A stored, got %s", columnIDs(stored))
	}

	f.gw.FailOn(memgw.OpUpdateColumn, errBackend)
	if _, err := f.ctrl.MoveColumnTo("A", 0); err != nil {
		t.Fatalf("MoveColumnTo: %v", err)
	}
	if err := f.ctrl.Wait(); err == nil {
		t.Fatalf("expected failure")
	}
	if got := columnIDs(f.ctrl.State().Snapshot()); got != "B,A" {
		t.Fatalf("expected rollback to B,A, got %s", got)
	}
}

func TestDrag(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, ok := f.ctrl.Drag(reorder.DragEnd{
		Active: reorder.Active{ID: "t2", Kind: reorder.KindTask, ContainerID: "A", Index: 1},
		Over:   &reorder.Over{ID: "B"},
	})
	if !ok {
		t.Fatalf("expected drag to apply")
	}
	if _, ok := f.ctrl.Drag(reorder.DragEnd{Active: reorder.Active{ID: "t1", Kind: reorder.KindTask}}); ok {
		t.Fatalf("expected drop outside to be ignored")
	}
	if err := f.ctrl.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	stored, _ := f.gw.LoadBoard(context.Background())
	if taskIDs(stored, "B") != "t2" {
		t.Fatalf("drag not persisted: %s", taskIDs(stored, "B"))
	}
}

func TestUpdateTask_RollbackRestoresOnlyPatchedFields(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	release := f.gw.Hold()
	f.gw.FailOn(memgw.OpUpdateTask, errBackend)
	if _, err := f.ctrl.UpdateTask("t1", model.TaskPatch{Title: model.Ptr("renamed")}); err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	// A local edit to another field lands before the failure comes back.
	if _, err := f.ctrl.State().UpdateTask("t1", model.TaskPatch{Description: model.Ptr("notes")}); err != nil {
		t.Fatalf("local edit: %v", err)
	}
	release()
	if err := f.ctrl.Wait(); err == nil {
		t.Fatalf("expected failure")
	}
	got, _ := f.ctrl.State().Task("t1")
	if got.Title != "one" || got.Description != "notes" {
		t.Fatalf("unexpected task after rollback: %+v", got)
	}
}

func TestToggleTask(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if _, err := f.ctrl.ToggleTask("t2"); err != nil {
		t.Fatalf("ToggleTask: %v", err)
	}
	if err := f.ctrl.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	stored, _ := f.gw.LoadBoard(context.Background())
	a, _ := stored.FindColumn("A")
	if !a.Tasks[1].Completed {
		t.Fatalf("toggle not persisted")
	}

	f.gw.FailOn(memgw.OpUpdateTask, errBackend)
	_, _ = f.ctrl.ToggleTask("t2")
	_ = f.ctrl.Wait()
	if got, _ := f.ctrl.State().Task("t2"); !got.Completed {
		t.Fatalf("expected failed toggle to be undone")
	}
}

func TestRenameColumn(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if _, err := f.ctrl.RenameColumn("A", "  "); err == nil {
		t.Fatalf("expected validation error")
	}
	f.gw.FailOn(memgw.OpUpdateColumn, errBackend)
	if _, err := f.ctrl.RenameColumn("A", "Backlog"); err != nil {
		t.Fatalf("RenameColumn: %v", err)
	}
	_ = f.ctrl.Wait()
	if c, _ := f.ctrl.State().Column("A"); c.Title != "Todo" {
		t.Fatalf("expected title rolled back, got %q", c.Title)
	}
}

func TestValidationAndNotFound_DoNotTouchState(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	before := f.ctrl.State().Snapshot()

	_, _, err := f.ctrl.CreateTask(model.NewTask{Title: "  ", ColumnID: "A"})
	var ve model.ValidationError
	if !errors.As(err, &ve) || ve.Field != "title" {
		t.Fatalf("expected title ValidationError, got %v", err)
	}
	if _, _, err := f.ctrl.CreateColumn(""); !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	var nf board.NotFoundError
	if _, err := f.ctrl.ToggleTask("nope"); !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if _, err := f.ctrl.DeleteColumn("nope"); !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if _, ok := f.ctrl.MoveTask("nope", 0, "A", 0); ok {
		t.Fatalf("expected move from unknown column to be ignored")
	}
	if err := f.ctrl.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if len(f.gw.Calls()) != 0 {
		t.Fatalf("expected no gateway calls, got %v", f.gw.Ops())
	}
	if columnIDs(f.ctrl.State().Snapshot()) != columnIDs(before) {
		t.Fatalf("board changed")
	}
}

func TestLoad_WrapsGatewayFailure(t *testing.T) {
	t.Parallel()

	gw := memgw.New(seed())
	gw.FailOn(memgw.OpLoadBoard, errBackend)
	c := New(board.New(model.Board{}), gw, Options{})
	err := c.Load(context.Background())
	if !IsSyncError(err) || !errors.Is(err, errBackend) {
		t.Fatalf("expected wrapped SyncError, got %v", err)
	}
}

func TestWatch_AppliesRemoteSnapshots(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	stop, err := f.ctrl.Watch(context.Background())
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer stop()

	// Another client writes straight to the backend.
	if _, err := f.gw.CreateColumn(context.Background(), model.NewColumn{Title: "Remote", Order: 9}); err != nil {
		t.Fatalf("CreateColumn: %v", err)
	}
	if got := columnIDs(f.ctrl.State().Snapshot()); got != "A,B,col-1" {
		t.Fatalf("expected remote column, got %s", got)
	}
}

func columnOf(id string, order int, tasks ...string) model.Column {
	col := model.Column{ID: id, Title: id, Order: order, Tasks: []model.Task{}}
	for i, tid := range tasks {
		col.Tasks = append(col.Tasks, model.Task{ID: tid, Title: tid, ColumnID: id, Order: i, Priority: model.PriorityMedium})
	}
	return col
}

func TestMoveTask_RewritesGappedStoredRanks(t *testing.T) {
	t.Parallel()

	// Stored ranks keep the gaps left by earlier deletes.
	a := columnOf("A", 0, "a0", "a1", "a5", "a6")
	a.Tasks[2].Order, a.Tasks[3].Order = 5, 6
	gw := memgw.New(model.Board{Columns: []model.Column{a, columnOf("B", 1, "x")}})

	c := New(board.New(model.Board{}), gw, Options{})
	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	pw, ok := c.MoveTask("B", 0, "A", 3)
	if !ok {
		t.Fatalf("expected move")
	}
	if err := pw.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	const want = "a0,a1,a5,x,a6"
	if got := taskIDs(c.State().Snapshot(), "A"); got != want {
		t.Fatalf("unexpected in-memory order %s", got)
	}

	reloaded := New(board.New(model.Board{}), gw, Options{})
	if err := reloaded.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := taskIDs(reloaded.State().Snapshot(), "A"); got != want {
		t.Fatalf("stored order %s differs from %s", got, want)
	}
	stored, _ := gw.LoadBoard(context.Background())
	col, _ := stored.FindColumn("A")
	for i, tk := range col.Tasks {
		if tk.Order != i {
			t.Fatalf("stored ranks not contiguous: %s has order %d at %d", tk.ID, tk.Order, i)
		}
	}
}

func TestMoveTask_PartialWriteFailureRestoresStoredRanks(t *testing.T) {
	t.Parallel()

	gw := memgw.New(model.Board{Columns: []model.Column{columnOf("A", 0, "t1", "t2", "t3")}})
	var once sync.Once
	gw.FailWhen(func(call memgw.Call) error {
		if call.Op != memgw.OpUpdateTask || call.ID != "t2" {
			return nil
		}
		var err error
		once.Do(func() { err = errBackend })
		return err
	})
	c := New(board.New(model.Board{}), gw, Options{})
	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	pw, _ := c.MoveTask("A", 2, "A", 0)
	if err := pw.Wait(); !errors.Is(err, errBackend) {
		t.Fatalf("expected backend error, got %v", err)
	}
	if got := taskIDs(c.State().Snapshot(), "A"); got != "t1,t2,t3" {
		t.Fatalf("expected in-memory rollback, got %s", got)
	}
	stored, _ := gw.LoadBoard(context.Background())
	if got := taskIDs(stored, "A"); got != "t1,t2,t3" {
		t.Fatalf("expected stored ranks restored, got %s", got)
	}
}

func TestPending_ReportsOnlyItsOwnFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.gw.FailOn(memgw.OpUpdateTask, errBackend)
	release := f.gw.Hold()
	toggle, err := f.ctrl.ToggleTask("t1")
	if err != nil {
		t.Fatalf("ToggleTask: %v", err)
	}
	_, create, err := f.ctrl.CreateColumn("Later")
	if err != nil {
		t.Fatalf("CreateColumn: %v", err)
	}
	release()

	if err := create.Wait(); err != nil {
		t.Fatalf("create should settle cleanly, got %v", err)
	}
	err = toggle.Wait()
	var se *SyncError
	if !errors.As(err, &se) || se.Op != "toggle" || se.ID != "t1" {
		t.Fatalf("expected toggle SyncError, got %v", err)
	}
	if toggle.Err() == nil {
		t.Fatalf("expected Err after settle")
	}

	if err := f.ctrl.Wait(); !errors.Is(err, errBackend) {
		t.Fatalf("expected backlog to hold the failure, got %v", err)
	}
	if err := f.ctrl.Wait(); err != nil {
		t.Fatalf("expected backlog drained, got %v", err)
	}

	noop, err := f.ctrl.UpdateTask("t2", model.TaskPatch{})
	if err != nil || noop != nil {
		t.Fatalf("expected no write for an empty patch, got %v %v", noop, err)
	}
	select {
	case <-noop.Done():
	default:
		t.Fatalf("nil Pending should be settled")
	}
	if err := noop.Wait(); err != nil {
		t.Fatalf("nil Pending Wait: %v", err)
	}
}

func TestPending_ConcurrentWritersAndWaiters(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	const workers, rounds = 8, 25
	errs := make(chan error, workers*rounds*2)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < rounds; j++ {
				pw, err := f.ctrl.ToggleTask("t1")
				if err != nil {
					errs <- err
					return
				}
				if err := pw.Wait(); err != nil {
					errs <- err
				}
				if err := f.ctrl.Wait(); err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, _ := f.ctrl.State().Task("t1"); got.Completed {
		t.Fatalf("expected an even number of toggles to leave t1 open")
	}
}
