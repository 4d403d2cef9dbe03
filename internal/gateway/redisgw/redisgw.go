// Package redisgw stores the board in Redis. Every record is a JSON string; set keys
// index the columns, the tasks and each column's tasks. Writes announce themselves on
// a pub/sub channel so other clients can reload.
package redisgw

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"kanban-cli/internal/gateway"
	"kanban-cli/internal/model"
)

type Gateway struct {
	rc     *redis.Client
	prefix string
	log    log.FieldLogger
	owned  bool
}

var (
	_ gateway.Gateway    = (*Gateway)(nil)
	_ gateway.Subscriber = (*Gateway)(nil)
)

// ParseOptions accepts a redis:// URL or the "host:port,password=...,ssl=true" form
// cloud consoles hand out.
func ParseOptions(conn string) (*redis.Options, error) {
	conn = strings.TrimSpace(conn)
	if conn == "" {
		return nil, errors.New("missing redis connection string")
	}
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts, nil
	}
	parts := strings.Split(conn, ",")
	opts := &redis.Options{Addr: strings.TrimSpace(parts[0])}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			}
		}
	}
	return opts, nil
}

// Open connects to conn and checks the server answers.
func Open(ctx context.Context, conn, board string, logger log.FieldLogger) (*Gateway, error) {
	opts, err := ParseOptions(conn)
	if err != nil {
		return nil, err
	}
	rc := redis.NewClient(opts)
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	g := New(rc, board, logger)
	g.owned = true
	return g, nil
}

// New wraps an existing client. Keys are namespaced by board.
func New(rc *redis.Client, board string, logger log.FieldLogger) *Gateway {
	if board == "" {
		board = "default"
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Gateway{
		rc:     rc,
		prefix: "kanban:" + board,
		log:    logger.WithFields(log.Fields{"backend": "redis", "board": board}),
	}
}

func (g *Gateway) Close() error {
	if g.owned {
		return g.rc.Close()
	}
	return nil
}

func (g *Gateway) columnKey(id string) string      { return g.prefix + ":column:" + id }
func (g *Gateway) taskKey(id string) string        { return g.prefix + ":task:" + id }
func (g *Gateway) columnTasksKey(id string) string { return g.prefix + ":column:" + id + ":tasks" }
func (g *Gateway) columnsKey() string              { return g.prefix + ":columns" }
func (g *Gateway) tasksKey() string                { return g.prefix + ":tasks" }
func (g *Gateway) changesChannel() string          { return g.prefix + ":changes" }

type change struct {
	Op string `json:"op"`
	ID string `json:"id"`
}

func (g *Gateway) LoadBoard(ctx context.Context) (model.Board, error) {
	cols, err := loadAll[model.Column](ctx, g.rc, g.columnsKey(), g.columnKey)
	if err != nil {
		return model.Board{}, err
	}
	tasks, err := loadAll[model.Task](ctx, g.rc, g.tasksKey(), g.taskKey)
	if err != nil {
		return model.Board{}, err
	}
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

// loadAll reads every record whose id is a member of the index set.
func loadAll[T any](ctx context.Context, rc *redis.Client, index string, key func(string) string) ([]T, error) {
	ids, err := rc.SMembers(ctx, index).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = key(id)
	}
	vals, err := rc.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(vals))
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var rec T
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (g *Gateway) CreateColumn(ctx context.Context, c model.NewColumn) (string, error) {
	col := model.Column{ID: uuid.NewString(), Title: c.Title, Order: c.Order}
	raw, err := json.Marshal(col)
	if err != nil {
		return "", err
	}
	_, err = g.rc.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, g.columnKey(col.ID), raw, 0)
		p.SAdd(ctx, g.columnsKey(), col.ID)
		return nil
	})
	if err != nil {
		return "", err
	}
	g.announce(ctx, "createColumn", col.ID)
	return col.ID, nil
}

func (g *Gateway) UpdateColumn(ctx context.Context, id string, p model.ColumnPatch) error {
	key := g.columnKey(id)
	err := g.rc.Watch(ctx, func(tx *redis.Tx) error {
		col, err := getJSON[model.Column](ctx, tx, key)
		if err != nil {
			return missing(err, "column", id)
		}
		p.ApplyTo(&col)
		raw, err := json.Marshal(col)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, 0)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return err
	}
	g.announce(ctx, "updateColumn", id)
	return nil
}

// DeleteColumn removes the column, its task index and every task listed in it.
func (g *Gateway) DeleteColumn(ctx context.Context, id string) error {
	taskIDs, err := g.rc.SMembers(ctx, g.columnTasksKey(id)).Result()
	if err != nil {
		return err
	}
	_, err = g.rc.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, tid := range taskIDs {
			p.Del(ctx, g.taskKey(tid))
			p.SRem(ctx, g.tasksKey(), tid)
		}
		p.Del(ctx, g.columnTasksKey(id), g.columnKey(id))
		p.SRem(ctx, g.columnsKey(), id)
		return nil
	})
	if err != nil {
		return err
	}
	g.announce(ctx, "deleteColumn", id)
	return nil
}

func (g *Gateway) CreateTask(ctx context.Context, n model.NewTask) (string, error) {
	ok, err := g.rc.SIsMember(ctx, g.columnsKey(), n.ColumnID).Result()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("column %s: %w", n.ColumnID, gateway.ErrNotFound)
	}
	t := n.Task(uuid.NewString())
	raw, err := json.Marshal(t)
	if err != nil {
		return "", err
	}
	_, err = g.rc.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, g.taskKey(t.ID), raw, 0)
		p.SAdd(ctx, g.tasksKey(), t.ID)
		p.SAdd(ctx, g.columnTasksKey(t.ColumnID), t.ID)
		return nil
	})
	if err != nil {
		return "", err
	}
	g.announce(ctx, "createTask", t.ID)
	return t.ID, nil
}

// UpdateTask applies p under WATCH; a concurrent write to the same task fails with
// redis.TxFailedErr. A column change moves the task between column indexes.
func (g *Gateway) UpdateTask(ctx context.Context, id string, p model.TaskPatch) error {
	key := g.taskKey(id)
	err := g.rc.Watch(ctx, func(tx *redis.Tx) error {
		t, err := getJSON[model.Task](ctx, tx, key)
		if err != nil {
			return missing(err, "task", id)
		}
		from := t.ColumnID
		p.ApplyTo(&t)
		raw, err := json.Marshal(t)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, 0)
			if from != t.ColumnID {
				pipe.SRem(ctx, g.columnTasksKey(from), id)
				pipe.SAdd(ctx, g.columnTasksKey(t.ColumnID), id)
			}
			return nil
		})
		return err
	}, key)
	if err != nil {
		return err
	}
	g.announce(ctx, "updateTask", id)
	return nil
}

func (g *Gateway) DeleteTask(ctx context.Context, id string) error {
	t, err := getJSON[model.Task](ctx, g.rc, g.taskKey(id))
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = g.rc.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, g.taskKey(id))
		p.SRem(ctx, g.tasksKey(), id)
		p.SRem(ctx, g.columnTasksKey(t.ColumnID), id)
		return nil
	})
	if err != nil {
		return err
	}
	g.announce(ctx, "deleteTask", id)
	return nil
}

func (g *Gateway) announce(ctx context.Context, op, id string) {
	entry := g.log.WithFields(log.Fields{"op": op, "id": id})
	raw, _ := json.Marshal(change{Op: op, ID: id})
	if err := g.rc.Publish(ctx, g.changesChannel(), raw).Err(); err != nil {
		entry.WithError(err).Warn("publish change failed")
		return
	}
	entry.Debug("write committed")
}

// SubscribeBoard reloads the board whenever any client announces a write, and hands the
// full board to fn. The subscription is live when SubscribeBoard returns.
func (g *Gateway) SubscribeBoard(ctx context.Context, fn func(model.Board)) (func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	sub := g.rc.Subscribe(ctx, g.changesChannel())
	if _, err := sub.Receive(ctx); err != nil {
		cancel()
		_ = sub.Close()
		return nil, err
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		g.listen(ctx, sub, fn)
	}()
	return func() {
		cancel()
		<-done
	}, nil
}

func (g *Gateway) listen(ctx context.Context, sub *redis.PubSub, fn func(model.Board)) {
	for {
		ch := sub.Channel()
	recv:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				var c change
				if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
					g.log.WithError(err).Warn("unable to parse change notice")
					continue
				}
				b, err := g.LoadBoard(ctx)
				if err != nil {
					g.log.WithError(err).Warn("reload after change failed")
					continue
				}
				fn(b)
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		g.log.Error("pubsub channel closed, reconnecting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
		sub = g.rc.Subscribe(ctx, g.changesChannel())
	}
}

// getter is satisfied by *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func getJSON[T any](ctx context.Context, rc getter, key string) (T, error) {
	var v T
	raw, err := rc.Get(ctx, key).Bytes()
	if err != nil {
		return v, err
	}
	err = json.Unmarshal(raw, &v)
	return v, err
}

func missing(err error, kind, id string) error {
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("%s %s: %w", kind, id, gateway.ErrNotFound)
	}
	return err
}
