// Package sqlitegw persists the board in a local SQLite file. Each row keeps a few
// indexed scalars next to the full record as a JSON blob.
package sqlitegw

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"kanban-cli/internal/gateway"
	"kanban-cli/internal/model"

	_ "modernc.org/sqlite"
)

type Gateway struct {
	db   *sql.DB
	log  log.FieldLogger
	feed gateway.Fanout
}

var (
	_ gateway.Gateway    = (*Gateway)(nil)
	_ gateway.Subscriber = (*Gateway)(nil)
)

// Open opens (creating if needed) the database at path and applies the schema.
func Open(ctx context.Context, path string, logger log.FieldLogger) (*Gateway, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	// modernc.org/sqlite driver name is "sqlite".
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// WAL allows one writer with many readers; busy_timeout covers a second process.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Gateway{db: db, log: logger.WithField("backend", "sqlite")}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS columns (
			id TEXT PRIMARY KEY,
			ord INTEGER NOT NULL,
			json TEXT NOT NULL,
			updated_at_unixms INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			column_id TEXT NOT NULL REFERENCES columns(id) ON DELETE CASCADE,
			ord INTEGER NOT NULL,
			json TEXT NOT NULL,
			updated_at_unixms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_column ON tasks(column_id, ord);`,
	}
	for _, st := range stmts {
		if _, err := db.ExecContext(ctx, st); err != nil {
			return err
		}
	}
	return nil
}

func (g *Gateway) Close() error { return g.db.Close() }

func (g *Gateway) LoadBoard(ctx context.Context) (model.Board, error) {
	cols, err := readJSONRows[model.Column](ctx, g.db, `SELECT json FROM columns ORDER BY ord, id`)
	if err != nil {
		return model.Board{}, err
	}
	tasks, err := readJSONRows[model.Task](ctx, g.db, `SELECT json FROM tasks ORDER BY ord, id`)
	if err != nil {
		return model.Board{}, err
	}
	return gateway.Assemble(cols, tasks), nil
}

func (g *Gateway) CreateColumn(ctx context.Context, c model.NewColumn) (string, error) {
	col := model.Column{ID: uuid.NewString(), Title: c.Title, Order: c.Order}
	if err := g.putColumn(ctx, g.db, col); err != nil {
		return "", err
	}
	g.changed(ctx, "createColumn", col.ID)
	return col.ID, nil
}

func (g *Gateway) UpdateColumn(ctx context.Context, id string, p model.ColumnPatch) error {
	err := g.inTx(ctx, func(tx *sql.Tx) error {
		col, err := getJSON[model.Column](ctx, tx, `SELECT json FROM columns WHERE id = ?`, id)
		if err != nil {
			return wrapMissing(err, "column", id)
		}
		p.ApplyTo(&col)
		return g.putColumn(ctx, tx, col)
	})
	if err != nil {
		return err
	}
	g.changed(ctx, "updateColumn", id)
	return nil
}

// DeleteColumn removes the column and its tasks in one transaction.
func (g *Gateway) DeleteColumn(ctx context.Context, id string) error {
	err := g.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE column_id = ?`, id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM columns WHERE id = ?`, id)
		return err
	})
	if err != nil {
		return err
	}
	g.changed(ctx, "deleteColumn", id)
	return nil
}

func (g *Gateway) CreateTask(ctx context.Context, n model.NewTask) (string, error) {
	t := n.Task(uuid.NewString())
	if err := g.putTask(ctx, g.db, t); err != nil {
		return "", err
	}
	g.changed(ctx, "createTask", t.ID)
	return t.ID, nil
}

func (g *Gateway) UpdateTask(ctx context.Context, id string, p model.TaskPatch) error {
	err := g.inTx(ctx, func(tx *sql.Tx) error {
		t, err := getJSON[model.Task](ctx, tx, `SELECT json FROM tasks WHERE id = ?`, id)
		if err != nil {
			return wrapMissing(err, "task", id)
		}
		p.ApplyTo(&t)
		return g.putTask(ctx, tx, t)
	})
	if err != nil {
		return err
	}
	g.changed(ctx, "updateTask", id)
	return nil
}

func (g *Gateway) DeleteTask(ctx context.Context, id string) error {
	if _, err := g.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id); err != nil {
		return err
	}
	g.changed(ctx, "deleteTask", id)
	return nil
}

// SubscribeBoard delivers a fresh board after every write made through this gateway.
func (g *Gateway) SubscribeBoard(ctx context.Context, fn func(model.Board)) (func(), error) {
	return g.feed.Subscribe(fn), nil
}

func (g *Gateway) changed(ctx context.Context, op, id string) {
	g.log.WithFields(log.Fields{"op": op, "id": id}).Debug("write committed")
	if g.feed.Len() == 0 {
		return
	}
	b, err := g.LoadBoard(ctx)
	if err != nil {
		g.log.WithError(err).Warn("reload after write failed")
		return
	}
	g.feed.Publish(b)
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (g *Gateway) putColumn(ctx context.Context, db execer, c model.Column) error {
	c.Tasks = nil
	raw, err := json.Marshal(c)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `INSERT INTO columns(id, ord, json, updated_at_unixms) VALUES(?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET ord = excluded.ord, json = excluded.json, updated_at_unixms = excluded.updated_at_unixms`,
		c.ID, c.Order, string(raw), time.Now().UTC().UnixMilli())
	return err
}

func (g *Gateway) putTask(ctx context.Context, db execer, t model.Task) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `INSERT INTO tasks(id, column_id, ord, json, updated_at_unixms) VALUES(?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET column_id = excluded.column_id, ord = excluded.ord, json = excluded.json, updated_at_unixms = excluded.updated_at_unixms`,
		t.ID, t.ColumnID, t.Order, string(raw), time.Now().UTC().UnixMilli())
	return err
}

func (g *Gateway) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func wrapMissing(err error, kind, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", kind, id, gateway.ErrNotFound)
	}
	return err
}

func getJSON[T any](ctx context.Context, db querier, query string, args ...any) (T, error) {
	var v T
	var js string
	if err := db.QueryRowContext(ctx, query, args...).Scan(&js); err != nil {
		return v, err
	}
	err := json.Unmarshal([]byte(js), &v)
	return v, err
}

func readJSONRows[T any](ctx context.Context, db *sql.DB, query string) ([]T, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var js string
		if err := rows.Scan(&js); err != nil {
			return nil, err
		}
		var v T
		if err := json.Unmarshal([]byte(js), &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
