// Package tablegw stores the board in Azure Table Storage. Columns and tasks live in
// two tables partitioned by board name; nested task fields are kept as JSON strings.
package tablegw

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"kanban-cli/internal/gateway"
	"kanban-cli/internal/model"
)

const (
	ColumnsTable = "KanbanColumns"
	TasksTable   = "KanbanTasks"

	DefaultPollInterval = 5 * time.Second
)

// table is the subset of *aztables.Client the gateway uses.
type table interface {
	CreateTable(ctx context.Context, options *aztables.CreateTableOptions) (aztables.CreateTableResponse, error)
	AddEntity(ctx context.Context, entity []byte, options *aztables.AddEntityOptions) (aztables.AddEntityResponse, error)
	GetEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.GetEntityOptions) (aztables.GetEntityResponse, error)
	UpdateEntity(ctx context.Context, entity []byte, options *aztables.UpdateEntityOptions) (aztables.UpdateEntityResponse, error)
	DeleteEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.DeleteEntityOptions) (aztables.DeleteEntityResponse, error)
	NewListEntitiesPager(options *aztables.ListEntitiesOptions) *runtime.Pager[aztables.ListEntitiesResponse]
}

type Gateway struct {
	columns table
	tasks   table
	board   string
	poll    time.Duration
	log     log.FieldLogger
}

var (
	_ gateway.Gateway    = (*Gateway)(nil)
	_ gateway.Subscriber = (*Gateway)(nil)
)

// Open connects with a storage account connection string and makes sure both tables exist.
func Open(ctx context.Context, connStr, board string, poll time.Duration, logger log.FieldLogger) (*Gateway, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: 15 * time.Second,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	g := newGateway(svc.NewClient(ColumnsTable), svc.NewClient(TasksTable), board, poll, logger)
	if err := g.ensureTables(ctx); err != nil {
		return nil, err
	}
	return g, nil
}

func newGateway(columns, tasks table, board string, poll time.Duration, logger log.FieldLogger) *Gateway {
	if board == "" {
		board = "default"
	}
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Gateway{
		columns: columns,
		tasks:   tasks,
		board:   board,
		poll:    poll,
		log:     logger.WithFields(log.Fields{"backend": "tables", "board": board}),
	}
}

func (g *Gateway) ensureTables(ctx context.Context) error {
	for _, t := range []table{g.columns, g.tasks} {
		if _, err := t.CreateTable(ctx, nil); err != nil {
			var respErr *azcore.ResponseError
			if !(errors.As(err, &respErr) && respErr.ErrorCode == string(aztables.TableAlreadyExists)) {
				return err
			}
		}
	}
	return nil
}

func (g *Gateway) Close() error { return nil }

type columnEntity struct {
	aztables.Entity
	Title string `json:"Title"`
	Order int    `json:"Order"`
}

type taskEntity struct {
	aztables.Entity
	ColumnID    string `json:"ColumnId"`
	Title       string `json:"Title"`
	Description string `json:"Description"`
	Completed   bool   `json:"Completed"`
	Priority    string `json:"Priority"`
	Order       int    `json:"Order"`
	Schedule    string `json:"Schedule"`
	Assignee    string `json:"Assignee"`
}

func (e columnEntity) column() model.Column {
	return model.Column{ID: e.RowKey, Title: e.Title, Order: e.Order}
}

func (e taskEntity) task() (model.Task, error) {
	t := model.Task{
		ID:          e.RowKey,
		ColumnID:    e.ColumnID,
		Title:       e.Title,
		Description: e.Description,
		Completed:   e.Completed,
		Priority:    model.Priority(e.Priority),
		Order:       e.Order,
		Schedule:    model.NoSchedule(),
	}
	if e.Schedule != "" {
		if err := json.Unmarshal([]byte(e.Schedule), &t.Schedule); err != nil {
			return model.Task{}, fmt.Errorf("task %s schedule: %w", e.RowKey, err)
		}
	}
	if e.Assignee != "" {
		var a model.Assignee
		if err := json.Unmarshal([]byte(e.Assignee), &a); err != nil {
			return model.Task{}, fmt.Errorf("task %s assignee: %w", e.RowKey, err)
		}
		t.Assignee = &a
	}
	return t, nil
}

func newTaskEntity(board string, t model.Task) (taskEntity, error) {
	sched, err := json.Marshal(t.Schedule)
	if err != nil {
		return taskEntity{}, err
	}
	e := taskEntity{
		Entity:      aztables.Entity{PartitionKey: board, RowKey: t.ID},
		ColumnID:    t.ColumnID,
		Title:       t.Title,
		Description: t.Description,
		Completed:   t.Completed,
		Priority:    string(t.Priority),
		Order:       t.Order,
		Schedule:    string(sched),
	}
	if t.Assignee != nil {
		raw, err := json.Marshal(t.Assignee)
		if err != nil {
			return taskEntity{}, err
		}
		e.Assignee = string(raw)
	}
	return e, nil
}

// taskMerge builds the merge payload for the fields p sets.
func taskMerge(board, id string, p model.TaskPatch) (map[string]any, error) {
	m := map[string]any{"PartitionKey": board, "RowKey": id}
	if p.Title != nil {
		m["Title"] = *p.Title
	}
	if p.Description != nil {
		m["Description"] = *p.Description
	}
	if p.Completed != nil {
		m["Completed"] = *p.Completed
	}
	if p.Priority != nil {
		m["Priority"] = string(*p.Priority)
	}
	if p.ColumnID != nil {
		m["ColumnId"] = *p.ColumnID
	}
	if p.Order != nil {
		m["Order"] = *p.Order
	}
	if p.Schedule != nil {
		raw, err := json.Marshal(*p.Schedule)
		if err != nil {
			return nil, err
		}
		m["Schedule"] = string(raw)
	}
	if p.Assignee != nil {
		m["Assignee"] = ""
		if *p.Assignee != nil {
			raw, err := json.Marshal(*p.Assignee)
			if err != nil {
				return nil, err
			}
			m["Assignee"] = string(raw)
		}
	}
	return m, nil
}

func quote(s string) string { return "'" + strings.ReplaceAll(s, "'", "''") + "'" }

func (g *Gateway) partitionFilter() string { return "PartitionKey eq " + quote(g.board) }

func listAll[T any](ctx context.Context, t table, filter string) ([]T, error) {
	pager := t.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	var out []T
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var v T
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, err
			}
			out = append(out, v)
		}
	}
	return out, nil
}

func (g *Gateway) LoadBoard(ctx context.Context) (model.Board, error) {
	ces, err := listAll[columnEntity](ctx, g.columns, g.partitionFilter())
	if err != nil {
		return model.Board{}, err
	}
	tes, err := listAll[taskEntity](ctx, g.tasks, g.partitionFilter())
	if err != nil {
		return model.Board{}, err
	}
	cols := make([]model.Column, 0, len(ces))
	for _, e := range ces {
		cols = append(cols, e.column())
	}
	tasks := make([]model.Task, 0, len(tes))
	for _, e := range tes {
		t, err := e.task()
		if err != nil {
			return model.Board{}, err
		}
		tasks = append(tasks, t)
	}
	// Ties fall back to id so every backend orders equal ranks the same way.
	sort.Slice(cols, func(i, j int) bool {
		if cols[i].Order != cols[j].Order {
			return cols[i].Order < cols[j].Order
		}
		return cols[i].ID < cols[j].ID
	})
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].Order != tasks[j].Order {
			return tasks[i].Order < tasks[j].Order
		}
		return tasks[i].ID < tasks[j].ID
	})
	return gateway.Assemble(cols, tasks), nil
}

func (g *Gateway) CreateColumn(ctx context.Context, c model.NewColumn) (string, error) {
	id := uuid.NewString()
	raw, err := json.Marshal(columnEntity{
		Entity: aztables.Entity{PartitionKey: g.board, RowKey: id},
		Title:  c.Title,
		Order:  c.Order,
	})
	if err != nil {
		return "", err
	}
	if _, err := g.columns.AddEntity(ctx, raw, nil); err != nil {
		return "", err
	}
	g.log.WithFields(log.Fields{"op": "createColumn", "id": id}).Debug("write committed")
	return id, nil
}

func (g *Gateway) UpdateColumn(ctx context.Context, id string, p model.ColumnPatch) error {
	m := map[string]any{"PartitionKey": g.board, "RowKey": id}
	if p.Title != nil {
		m["Title"] = *p.Title
	}
	if p.Order != nil {
		m["Order"] = *p.Order
	}
	return g.merge(ctx, g.columns, "column", id, m)
}

// DeleteColumn deletes the column's tasks first, then the column. Records already gone
// are skipped.
func (g *Gateway) DeleteColumn(ctx context.Context, id string) error {
	filter := g.partitionFilter() + " and ColumnId eq " + quote(id)
	tes, err := listAll[taskEntity](ctx, g.tasks, filter)
	if err != nil {
		return err
	}
	for _, e := range tes {
		if err := g.remove(ctx, g.tasks, e.RowKey); err != nil {
			return err
		}
	}
	if err := g.remove(ctx, g.columns, id); err != nil {
		return err
	}
	g.log.WithFields(log.Fields{"op": "deleteColumn", "id": id, "tasks": len(tes)}).Debug("write committed")
	return nil
}

func (g *Gateway) CreateTask(ctx context.Context, n model.NewTask) (string, error) {
	if _, err := g.columns.GetEntity(ctx, g.board, n.ColumnID, nil); err != nil {
		return "", notFound(err, "column", n.ColumnID)
	}
	t := n.Task(uuid.NewString())
	e, err := newTaskEntity(g.board, t)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	if _, err := g.tasks.AddEntity(ctx, raw, nil); err != nil {
		return "", err
	}
	g.log.WithFields(log.Fields{"op": "createTask", "id": t.ID}).Debug("write committed")
	return t.ID, nil
}

func (g *Gateway) UpdateTask(ctx context.Context, id string, p model.TaskPatch) error {
	m, err := taskMerge(g.board, id, p)
	if err != nil {
		return err
	}
	return g.merge(ctx, g.tasks, "task", id, m)
}

func (g *Gateway) DeleteTask(ctx context.Context, id string) error {
	return g.remove(ctx, g.tasks, id)
}

func (g *Gateway) merge(ctx context.Context, t table, kind, id string, m map[string]any) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = t.UpdateEntity(ctx, raw, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeMerge})
	if err != nil {
		return notFound(err, kind, id)
	}
	g.log.WithFields(log.Fields{"op": "update", kind: id}).Debug("write committed")
	return nil
}

func (g *Gateway) remove(ctx context.Context, t table, id string) error {
	_, err := t.DeleteEntity(ctx, g.board, id, nil)
	if err != nil && !isStatus(err, 404) {
		return err
	}
	return nil
}

func isStatus(err error, code int) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == code
}

func notFound(err error, kind, id string) error {
	if isStatus(err, 404) {
		return fmt.Errorf("%s %s: %w", kind, id, gateway.ErrNotFound)
	}
	return err
}

// SubscribeBoard polls the tables and calls fn whenever the board differs from the last
// one seen. Table Storage has no change feed.
func (g *Gateway) SubscribeBoard(ctx context.Context, fn func(model.Board)) (func(), error) {
	b, err := g.LoadBoard(ctx)
	if err != nil {
		return nil, err
	}
	last := fingerprint(b)
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		tick := time.NewTicker(g.poll)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
			}
			b, err := g.LoadBoard(ctx)
			if err != nil {
				if ctx.Err() == nil {
					g.log.WithError(err).Warn("poll failed")
				}
				continue
			}
			if fp := fingerprint(b); fp != last {
				last = fp
				fn(b)
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}, nil
}

func fingerprint(b model.Board) uint64 {
	raw, _ := json.Marshal(b)
	h := fnv.New64a()
	_, _ = h.Write(raw)
	return h.Sum64()
}
