// Package optimistic applies board changes in memory first and persists them in the
// background, rolling the in-memory change back when the gateway rejects it.
package optimistic

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"kanban-cli/internal/board"
	"kanban-cli/internal/gateway"
	"kanban-cli/internal/model"
	"kanban-cli/internal/reorder"
)

// ErrorHandler receives every SyncError after its rollback has been applied.
type ErrorHandler func(*SyncError)

type Options struct {
	Logger  log.FieldLogger
	OnError ErrorHandler

	// NewID generates temporary ids for records that have not been persisted yet.
	NewID func() string

	// Context bounds background writes. Defaults to context.Background().
	Context context.Context
}

type Controller struct {
	state *board.State
	gw    gateway.Gateway
	log   log.FieldLogger
	onErr ErrorHandler
	newID func() string
	ctx   context.Context

	mu       sync.Mutex
	inflight map[*Pending]struct{}
	errs     []error

	idMu sync.Mutex
	ids  map[string]*pendingID
}

// pendingID tracks a temporary id until its create settles.
type pendingID struct {
	done    chan struct{}
	durable string
	err     error
}

func New(state *board.State, gw gateway.Gateway, opts Options) *Controller {
	c := &Controller{
		state: state,
		gw:    gw,
		log:   opts.Logger,
		onErr: opts.OnError,
		newID: opts.NewID,
		ctx:   opts.Context,
		ids:   map[string]*pendingID{},

		inflight: map[*Pending]struct{}{},
	}
	if c.log == nil {
		l := log.New()
		l.SetOutput(io.Discard)
		c.log = l
	}
	if c.newID == nil {
		c.newID = func() string { return "tmp-" + uuid.NewString() }
	}
	if c.ctx == nil {
		c.ctx = context.Background()
	}
	return c
}

func (c *Controller) State() *board.State { return c.state }

// Load replaces the board with the gateway's current contents.
func (c *Controller) Load(ctx context.Context) error {
	b, err := c.gw.LoadBoard(ctx)
	if err != nil {
		return &SyncError{Op: "load", Kind: "board", Err: err}
	}
	c.state.Replace(b)
	c.log.WithFields(log.Fields{"columns": len(b.Columns), "tasks": b.TaskCount()}).Debug("board loaded")
	return nil
}

// Watch feeds remote snapshots into the board. Each snapshot replaces the board
// wholesale. Gateways without a change feed make Watch a no-op.
func (c *Controller) Watch(ctx context.Context) (func(), error) {
	sub, ok := c.gw.(gateway.Subscriber)
	if !ok {
		return func() {}, nil
	}
	return sub.SubscribeBoard(ctx, func(b model.Board) {
		c.state.Replace(b)
		c.log.Debug("remote snapshot applied")
	})
}

// maxBacklog bounds the sync errors kept for Wait.
const maxBacklog = 64

// Wait blocks until every background write started so far has settled and returns
// the sync errors reported since the previous Wait. It suits a single caller such as
// a one-shot command; callers sharing the controller wait on their own Pending.
func (c *Controller) Wait() error {
	c.mu.Lock()
	ps := make([]*Pending, 0, len(c.inflight))
	for p := range c.inflight {
		ps = append(ps, p)
	}
	c.mu.Unlock()
	for _, p := range ps {
		<-p.done
	}

	c.mu.Lock()
	errs := c.errs
	c.errs = nil
	c.mu.Unlock()
	return errors.Join(errs...)
}

func (c *Controller) start() *Pending {
	p := newPending()
	c.mu.Lock()
	c.inflight[p] = struct{}{}
	c.mu.Unlock()
	return p
}

// finish settles p. A non-nil se is also handed to the error handler.
func (c *Controller) finish(p *Pending, se *SyncError) {
	c.mu.Lock()
	delete(c.inflight, p)
	if se != nil {
		if len(c.errs) >= maxBacklog {
			c.errs = c.errs[1:]
		}
		c.errs = append(c.errs, se)
		p.err = se
	}
	c.mu.Unlock()
	close(p.done)
	if se != nil && c.onErr != nil {
		c.onErr(se)
	}
}

func (c *Controller) track(tmp string) {
	c.idMu.Lock()
	c.ids[tmp] = &pendingID{done: make(chan struct{})}
	c.idMu.Unlock()
}

func (c *Controller) settle(tmp, durable string, err error) {
	c.idMu.Lock()
	p, ok := c.ids[tmp]
	c.idMu.Unlock()
	if !ok {
		return
	}
	select {
	case <-p.done:
		return
	default:
	}
	p.durable, p.err = durable, err
	close(p.done)
}

// resolve returns the durable id for id, waiting for its create when id is temporary.
func (c *Controller) resolve(ctx context.Context, id string) (string, error) {
	c.idMu.Lock()
	p, ok := c.ids[id]
	c.idMu.Unlock()
	if !ok {
		return id, nil
	}
	select {
	case <-p.done:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	if p.err != nil {
		return "", errDiscarded
	}
	return p.durable, nil
}

// current maps id to the id the board uses right now, without waiting.
func (c *Controller) current(id string) string {
	c.idMu.Lock()
	p, ok := c.ids[id]
	c.idMu.Unlock()
	if !ok {
		return id
	}
	select {
	case <-p.done:
		if p.err == nil {
			return p.durable
		}
	default:
	}
	return id
}

// DurableID returns the id a record created as id is known by now. It is id itself
// until the create succeeds, and forever when the create fails.
func (c *Controller) DurableID(id string) string { return c.current(id) }

// write is one background persistence step.
type write[T any] struct {
	op, kind, id string

	persist  func(ctx context.Context) (T, error)
	commit   func(T)
	rollback func()
	// discard runs instead of rollback when the target's create already failed.
	discard func()
}

func run[T any](c *Controller, w write[T]) *Pending {
	p := c.start()
	go func() {
		var se *SyncError
		defer func() { c.finish(p, se) }()

		entry := c.log.WithFields(log.Fields{"op": w.op, w.kind: w.id})
		v, err := w.persist(c.ctx)
		switch {
		case errors.Is(err, errDiscarded):
			if w.discard != nil {
				w.discard()
			}
			entry.Debug("write skipped, record was discarded")
		case err != nil:
			if w.rollback != nil {
				w.rollback()
			}
			entry.WithError(err).Warn("sync failed, change rolled back")
			se = &SyncError{Op: w.op, Kind: w.kind, ID: w.id, Err: err}
		default:
			if w.commit != nil {
				w.commit(v)
			}
			entry.Debug("synced")
		}
	}()
	return p
}

func (c *Controller) CreateColumn(title string) (model.Column, *Pending, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return model.Column{}, nil, model.ValidationError{Field: "title", Reason: "title is required"}
	}
	col := model.Column{ID: c.newID(), Title: title, Order: c.state.NextColumnOrder(), Tasks: []model.Task{}}
	tmp := col.ID
	c.track(tmp)
	c.state.AddColumn(col)

	pw := run(c, write[string]{
		op: "create", kind: "column", id: tmp,
		persist: func(ctx context.Context) (string, error) {
			return c.gw.CreateColumn(ctx, model.NewColumn{Title: col.Title, Order: col.Order})
		},
		commit: func(id string) {
			c.state.ReplaceColumnID(tmp, id)
			c.settle(tmp, id, nil)
		},
		rollback: func() {
			_, _ = c.state.RemoveColumn(tmp)
			c.settle(tmp, "", errDiscarded)
		},
	})
	return col, pw, nil
}

// CreateTask appends a task to n.ColumnID. Priority defaults to medium and the
// assignee to the current user.
func (c *Controller) CreateTask(n model.NewTask) (model.Task, *Pending, error) {
	n.Title = strings.TrimSpace(n.Title)
	if n.Priority == "" {
		n.Priority = model.PriorityMedium
	}
	if n.Assignee == nil {
		n.Assignee = model.DefaultAssignee()
	}
	if err := n.Validate(); err != nil {
		return model.Task{}, nil, err
	}
	order, err := c.state.NextTaskOrder(n.ColumnID)
	if err != nil {
		return model.Task{}, nil, err
	}
	n.Order = order
	t := n.Task(c.newID())
	tmp := t.ID
	if err := c.state.AddTask(t); err != nil {
		return model.Task{}, nil, err
	}
	c.track(tmp)

	drop := func() {
		_, _ = c.state.RemoveTask(tmp)
		c.settle(tmp, "", errDiscarded)
	}
	pw := run(c, write[string]{
		op: "create", kind: "task", id: tmp,
		persist: func(ctx context.Context) (string, error) {
			payload := n
			if cur, ok := c.state.Task(tmp); ok {
				payload = model.NewTaskFrom(cur)
			}
			colID, err := c.resolve(ctx, payload.ColumnID)
			if err != nil {
				return "", err
			}
			payload.ColumnID = colID
			return c.gw.CreateTask(ctx, payload)
		},
		commit: func(id string) {
			c.state.ReplaceTaskID(tmp, id)
			c.settle(tmp, id, nil)
		},
		rollback: drop,
		discard:  drop,
	})
	return t, pw, nil
}

func (c *Controller) RenameColumn(id, title string) (*Pending, error) {
	p := model.ColumnPatch{Title: model.Ptr(strings.TrimSpace(title))}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	prev, err := c.state.UpdateColumn(id, p)
	if err != nil {
		return nil, err
	}
	pw := run(c, write[struct{}]{
		op: "update", kind: "column", id: id,
		persist: func(ctx context.Context) (struct{}, error) {
			rid, err := c.resolve(ctx, id)
			if err != nil {
				return struct{}{}, err
			}
			return struct{}{}, c.gw.UpdateColumn(ctx, rid, p)
		},
		rollback: func() {
			_, _ = c.state.UpdateColumn(c.current(id), model.ColumnPatch{Title: model.Ptr(prev.Title)})
		},
	})
	return pw, nil
}

// UpdateTask edits task fields. Placement changes go through MoveTask.
func (c *Controller) UpdateTask(id string, p model.TaskPatch) (*Pending, error) {
	p.ColumnID = nil
	p.Order = nil
	if p.Title != nil {
		p.Title = model.Ptr(strings.TrimSpace(*p.Title))
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.Empty() {
		return nil, nil
	}
	prev, err := c.state.UpdateTask(id, p)
	if err != nil {
		return nil, err
	}
	pw := run(c, write[struct{}]{
		op: "update", kind: "task", id: id,
		persist: func(ctx context.Context) (struct{}, error) {
			rid, err := c.resolve(ctx, id)
			if err != nil {
				return struct{}{}, err
			}
			return struct{}{}, c.gw.UpdateTask(ctx, rid, p)
		},
		rollback: func() {
			_, _ = c.state.UpdateTask(c.current(id), p.Revert(prev))
		},
	})
	return pw, nil
}

func (c *Controller) ToggleTask(id string) (*Pending, error) {
	v, err := c.state.ToggleTask(id)
	if err != nil {
		return nil, err
	}
	p := model.TaskPatch{Completed: model.Ptr(v)}
	pw := run(c, write[struct{}]{
		op: "toggle", kind: "task", id: id,
		persist: func(ctx context.Context) (struct{}, error) {
			rid, err := c.resolve(ctx, id)
			if err != nil {
				return struct{}{}, err
			}
			return struct{}{}, c.gw.UpdateTask(ctx, rid, p)
		},
		rollback: func() {
			_ = c.state.SetTaskCompleted(c.current(id), !v)
		},
	})
	return pw, nil
}

// DeleteColumn removes a column and its tasks. On failure the column comes back at
// the position its order implies.
func (c *Controller) DeleteColumn(id string) (*Pending, error) {
	removed, err := c.state.RemoveColumn(id)
	if err != nil {
		return nil, err
	}
	pw := run(c, write[struct{}]{
		op: "delete", kind: "column", id: id,
		persist: func(ctx context.Context) (struct{}, error) {
			rid, err := c.resolve(ctx, id)
			if err != nil {
				return struct{}{}, err
			}
			return struct{}{}, c.gw.DeleteColumn(ctx, rid)
		},
		rollback: func() {
			c.state.RestoreColumn(c.currentColumn(removed))
		},
	})
	return pw, nil
}

func (c *Controller) DeleteTask(id string) (*Pending, error) {
	removed, err := c.state.RemoveTask(id)
	if err != nil {
		return nil, err
	}
	pw := run(c, write[struct{}]{
		op: "delete", kind: "task", id: id,
		persist: func(ctx context.Context) (struct{}, error) {
			rid, err := c.resolve(ctx, id)
			if err != nil {
				return struct{}{}, err
			}
			return struct{}{}, c.gw.DeleteTask(ctx, rid)
		},
		rollback: func() {
			t := removed.Clone()
			t.ID = c.current(t.ID)
			t.ColumnID = c.current(t.ColumnID)
			_ = c.state.RestoreTask(t)
		},
	})
	return pw, nil
}

func (c *Controller) currentColumn(col model.Column) model.Column {
	out := col.Clone()
	out.ID = c.current(col.ID)
	for i := range out.Tasks {
		out.Tasks[i].ID = c.current(out.Tasks[i].ID)
		out.Tasks[i].ColumnID = out.ID
	}
	return out
}

// MoveColumn moves the column at from to position to. It reports false when either
// index is out of range.
func (c *Controller) MoveColumn(from, to int) (*Pending, bool) {
	before, after, ok := c.state.Apply(reorder.ColumnMove{Source: from, Dest: to})
	if !ok {
		return nil, false
	}
	return c.syncRanks("move", "column", before.Columns[from].ID, before, after), true
}

// MoveColumnTo moves the column with id to index.
func (c *Controller) MoveColumnTo(id string, index int) (*Pending, error) {
	b := c.state.Snapshot()
	from := b.ColumnIndex(id)
	if from < 0 {
		return nil, board.NotFoundError{Kind: "column", ID: id}
	}
	if index < 0 {
		index = 0
	}
	if index >= len(b.Columns) {
		index = len(b.Columns) - 1
	}
	pw, _ := c.MoveColumn(from, index)
	return pw, nil
}

// MoveTask moves a task between (or within) columns. It reports false when the source
// is unknown.
func (c *Controller) MoveTask(srcColumnID string, srcIndex int, destColumnID string, destIndex int) (*Pending, bool) {
	mv := reorder.TaskMove{SourceColumnID: srcColumnID, SourceIndex: srcIndex, DestColumnID: destColumnID, DestIndex: destIndex}
	before, after, ok := c.state.Apply(mv)
	if !ok {
		return nil, false
	}
	src, _ := before.FindColumn(srcColumnID)
	return c.syncRanks("move", "task", src.Tasks[srcIndex].ID, before, after), true
}

// MoveTaskTo moves the task with id into destColumnID at index.
func (c *Controller) MoveTaskTo(id, destColumnID string, index int) (*Pending, error) {
	b := c.state.Snapshot()
	ci, ti, ok := b.FindTask(id)
	if !ok {
		return nil, board.NotFoundError{Kind: "task", ID: id}
	}
	if b.ColumnIndex(destColumnID) < 0 {
		return nil, board.NotFoundError{Kind: "column", ID: destColumnID}
	}
	pw, _ := c.MoveTask(b.Columns[ci].ID, ti, destColumnID, index)
	return pw, nil
}

// Drag applies a drag-end gesture. Gestures that resolve to nothing are ignored.
func (c *Controller) Drag(g reorder.DragEnd) (*Pending, bool) {
	before, after, ok := c.state.ApplyGesture(g)
	if !ok {
		return nil, false
	}
	kind := "task"
	if g.Active.Kind == reorder.KindColumn {
		kind = "column"
	}
	return c.syncRanks("drag", kind, g.Active.ID, before, after), true
}

// syncRanks persists the order (and column) of every sibling in the columns the move
// touched, whether or not its in-memory rank changed, so durable ranks with gaps end up
// contiguous. On failure only those siblings are put back, in memory and in the store.
func (c *Controller) syncRanks(op, kind, id string, before, after model.Board) *Pending {
	ch := reorder.Affected(before, after)
	if ch.Empty() {
		return nil
	}
	prior := priorRanks(before, ch)
	return run(c, write[struct{}]{
		op: op, kind: kind, id: id,
		persist: func(ctx context.Context) (struct{}, error) {
			wrote, err := c.writeRanks(ctx, ch)
			if err != nil && wrote > 0 {
				c.compensate(ctx, prior)
			}
			return struct{}{}, err
		},
		rollback: func() {
			cols := make([]reorder.ColumnRank, len(prior.Columns))
			for i, cr := range prior.Columns {
				cols[i] = reorder.ColumnRank{ID: c.current(cr.ID), Order: cr.Order}
			}
			tasks := make([]reorder.TaskRank, len(prior.Tasks))
			for i, tr := range prior.Tasks {
				tasks[i] = reorder.TaskRank{ID: c.current(tr.ID), ColumnID: c.current(tr.ColumnID), Order: tr.Order}
			}
			c.state.RestoreRanks(cols, tasks)
		},
	})
}

// writeRanks writes every rank in ch and reports how many writes succeeded.
func (c *Controller) writeRanks(ctx context.Context, ch reorder.Changes) (int, error) {
	var (
		g     errgroup.Group
		wrote atomic.Int32
	)
	g.SetLimit(4)
	for _, cr := range ch.Columns {
		g.Go(func() error {
			id, err := c.resolve(ctx, cr.ID)
			if err != nil {
				return skipDiscarded(err)
			}
			if err := c.gw.UpdateColumn(ctx, id, model.ColumnPatch{Order: model.Ptr(cr.Order)}); err != nil {
				return err
			}
			wrote.Add(1)
			return nil
		})
	}
	for _, tr := range ch.Tasks {
		g.Go(func() error {
			id, err := c.resolve(ctx, tr.ID)
			if err != nil {
				return skipDiscarded(err)
			}
			col, err := c.resolve(ctx, tr.ColumnID)
			if err != nil {
				return skipDiscarded(err)
			}
			if err := c.gw.UpdateTask(ctx, id, model.TaskPatch{Order: model.Ptr(tr.Order), ColumnID: model.Ptr(col)}); err != nil {
				return err
			}
			wrote.Add(1)
			return nil
		})
	}
	err := g.Wait()
	return int(wrote.Load()), err
}

// compensate puts the prior ranks back in the store after a partly applied rank write.
// All prior ranks are rewritten so the siblings stay in their former relative order.
// Failures are logged; the in-memory rollback happens regardless.
func (c *Controller) compensate(ctx context.Context, prior reorder.Changes) {
	if _, err := c.writeRanks(ctx, prior); err != nil {
		c.log.WithError(err).Warn("could not restore ranks in the store after a failed reorder")
	}
}

func skipDiscarded(err error) error {
	if errors.Is(err, errDiscarded) {
		return nil
	}
	return err
}

// priorRanks captures, from before, the ranks of the records listed in ch.
func priorRanks(before model.Board, ch reorder.Changes) reorder.Changes {
	wantCol := map[string]bool{}
	for _, cr := range ch.Columns {
		wantCol[cr.ID] = true
	}
	wantTask := map[string]bool{}
	for _, tr := range ch.Tasks {
		wantTask[tr.ID] = true
	}
	var out reorder.Changes
	for _, col := range before.Columns {
		if wantCol[col.ID] {
			out.Columns = append(out.Columns, reorder.ColumnRank{ID: col.ID, Order: col.Order})
		}
		for _, t := range col.Tasks {
			if wantTask[t.ID] {
				out.Tasks = append(out.Tasks, reorder.TaskRank{ID: t.ID, ColumnID: t.ColumnID, Order: t.Order})
			}
		}
	}
	out.ColumnIDs = ch.ColumnIDs
	return out
}
