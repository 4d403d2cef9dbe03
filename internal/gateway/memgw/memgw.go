// Package memgw is an in-memory gateway. It backs tests and `--backend memory`, and can be
// told to fail or stall specific operations.
package memgw

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"kanban-cli/internal/gateway"
	"kanban-cli/internal/model"
)

const (
	OpLoadBoard    = "loadBoard"
	OpCreateColumn = "createColumn"
	OpUpdateColumn = "updateColumn"
	OpDeleteColumn = "deleteColumn"
	OpCreateTask   = "createTask"
	OpUpdateTask   = "updateTask"
	OpDeleteTask   = "deleteTask"
)

// Call records one gateway invocation.
type Call struct {
	Op   string
	ID   string
	Args any
}

type Gateway struct {
	mu    sync.Mutex
	cols  map[string]model.Column
	tasks map[string]model.Task
	seq   int
	fail  map[string]error
	hook  func(Call) error
	calls []Call
	gate  chan struct{}

	feed gateway.Fanout
}

var (
	_ gateway.Gateway    = (*Gateway)(nil)
	_ gateway.Subscriber = (*Gateway)(nil)
)

func New(seed model.Board) *Gateway {
	g := &Gateway{
		cols:  map[string]model.Column{},
		tasks: map[string]model.Task{},
		fail:  map[string]error{},
	}
	for _, c := range seed.Columns {
		for _, t := range c.Tasks {
			t.ColumnID = c.ID
			g.tasks[t.ID] = t.Clone()
		}
		c.Tasks = nil
		g.cols[c.ID] = c
	}
	return g
}

// FailOn makes every later call to op return err. A nil err clears the failure.
func (g *Gateway) FailOn(op string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err == nil {
		delete(g.fail, op)
		return
	}
	g.fail[op] = err
}

// FailWhen consults fn for every write after FailOn failures. A non-nil result fails
// that one call. A nil fn removes the hook.
func (g *Gateway) FailWhen(fn func(Call) error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.hook = fn
}

// Hold stalls every write until the returned release func is called.
func (g *Gateway) Hold() (release func()) {
	g.mu.Lock()
	gate := make(chan struct{})
	g.gate = gate
	g.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			if g.gate == gate {
				g.gate = nil
			}
			g.mu.Unlock()
			close(gate)
		})
	}
}

// Calls returns the recorded write calls in arrival order.
func (g *Gateway) Calls() []Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Call(nil), g.calls...)
}

// Ops returns only the op names of Calls.
func (g *Gateway) Ops() []string {
	var out []string
	for _, c := range g.Calls() {
		out = append(out, c.Op)
	}
	return out
}

// begin records the call, waits on any hold and reports an injected failure.
func (g *Gateway) begin(ctx context.Context, op, id string, args any) error {
	call := Call{Op: op, ID: id, Args: args}
	g.mu.Lock()
	g.calls = append(g.calls, call)
	gate := g.gate
	g.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	g.mu.Lock()
	err, hook := g.fail[op], g.hook
	g.mu.Unlock()
	if err == nil && hook != nil {
		err = hook(call)
	}
	return err
}

func (g *Gateway) LoadBoard(ctx context.Context) (model.Board, error) {
	g.mu.Lock()
	err := g.fail[OpLoadBoard]
	g.mu.Unlock()
	if err != nil {
		return model.Board{}, err
	}
	return g.snapshot(), nil
}

func (g *Gateway) snapshot() model.Board {
	g.mu.Lock()
	defer g.mu.Unlock()
	cols := make([]model.Column, 0, len(g.cols))
	for _, c := range g.cols {
		cols = append(cols, c)
	}
	sort.Slice(cols, func(i, j int) bool {
		if cols[i].Order != cols[j].Order {
			return cols[i].Order < cols[j].Order
		}
		return cols[i].ID < cols[j].ID
	})
	tasks := make([]model.Task, 0, len(g.tasks))
	for _, t := range g.tasks {
		tasks = append(tasks, t.Clone())
	}
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].Order != tasks[j].Order {
			return tasks[i].Order < tasks[j].Order
		}
		return tasks[i].ID < tasks[j].ID
	})
	return gateway.Assemble(cols, tasks)
}

func (g *Gateway) publish() { g.feed.Publish(g.snapshot()) }

func (g *Gateway) CreateColumn(ctx context.Context, c model.NewColumn) (string, error) {
	if err := g.begin(ctx, OpCreateColumn, "", c); err != nil {
		return "", err
	}
	g.mu.Lock()
	g.seq++
	id := fmt.Sprintf("col-%d", g.seq)
	g.cols[id] = model.Column{ID: id, Title: c.Title, Order: c.Order}
	g.mu.Unlock()
	g.publish()
	return id, nil
}

func (g *Gateway) UpdateColumn(ctx context.Context, id string, p model.ColumnPatch) error {
	if err := g.begin(ctx, OpUpdateColumn, id, p); err != nil {
		return err
	}
	g.mu.Lock()
	c, ok := g.cols[id]
	if !ok {
		g.mu.Unlock()
		return fmt.Errorf("column %s: %w", id, gateway.ErrNotFound)
	}
	p.ApplyTo(&c)
	g.cols[id] = c
	g.mu.Unlock()
	g.publish()
	return nil
}

func (g *Gateway) DeleteColumn(ctx context.Context, id string) error {
	if err := g.begin(ctx, OpDeleteColumn, id, nil); err != nil {
		return err
	}
	g.mu.Lock()
	delete(g.cols, id)
	for tid, t := range g.tasks {
		if t.ColumnID == id {
			delete(g.tasks, tid)
		}
	}
	g.mu.Unlock()
	g.publish()
	return nil
}

func (g *Gateway) CreateTask(ctx context.Context, n model.NewTask) (string, error) {
	if err := g.begin(ctx, OpCreateTask, "", n); err != nil {
		return "", err
	}
	g.mu.Lock()
	if _, ok := g.cols[n.ColumnID]; !ok {
		g.mu.Unlock()
		return "", fmt.Errorf("column %s: %w", n.ColumnID, gateway.ErrNotFound)
	}
	g.seq++
	id := fmt.Sprintf("task-%d", g.seq)
	g.tasks[id] = n.Task(id)
	g.mu.Unlock()
	g.publish()
	return id, nil
}

func (g *Gateway) UpdateTask(ctx context.Context, id string, p model.TaskPatch) error {
	if err := g.begin(ctx, OpUpdateTask, id, p); err != nil {
		return err
	}
	g.mu.Lock()
	t, ok := g.tasks[id]
	if !ok {
		g.mu.Unlock()
		return fmt.Errorf("task %s: %w", id, gateway.ErrNotFound)
	}
	p.ApplyTo(&t)
	g.tasks[id] = t
	g.mu.Unlock()
	g.publish()
	return nil
}

func (g *Gateway) DeleteTask(ctx context.Context, id string) error {
	if err := g.begin(ctx, OpDeleteTask, id, nil); err != nil {
		return err
	}
	g.mu.Lock()
	delete(g.tasks, id)
	g.mu.Unlock()
	g.publish()
	return nil
}

func (g *Gateway) SubscribeBoard(ctx context.Context, fn func(model.Board)) (func(), error) {
	return g.feed.Subscribe(fn), nil
}

func (g *Gateway) Close() error { return nil }
