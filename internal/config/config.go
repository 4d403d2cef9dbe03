// Package config loads and saves the CLI configuration and opens the configured backend.
package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"kanban-cli/internal/gateway"
	"kanban-cli/internal/gateway/memgw"
	"kanban-cli/internal/gateway/redisgw"
	"kanban-cli/internal/gateway/sqlitegw"
	"kanban-cli/internal/gateway/tablegw"
	"kanban-cli/internal/model"
)

const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendTables = "tables"
	BackendMemory = "memory"

	DefaultBoard      = "default"
	DefaultListenAddr = ":8080"
	DefaultLogLevel   = "info"
)

// Duration is a time.Duration that reads and writes as "5s" in JSON.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

type Config struct {
	Backend                string   `json:"backend,omitempty"`
	SQLitePath             string   `json:"sqlitePath,omitempty"`
	RedisURL               string   `json:"redisUrl,omitempty"`
	TablesConnectionString string   `json:"tablesConnectionString,omitempty"`
	Board                  string   `json:"board,omitempty"`
	LogLevel               string   `json:"logLevel,omitempty"`
	PollInterval           Duration `json:"pollInterval,omitempty"`
	ListenAddr             string   `json:"listenAddr,omitempty"`

	// dir is where the file was loaded from; it anchors the default SQLite path.
	dir string
}

func Dir() (string, error) {
	// Test/advanced override (keeps unit tests from touching ~/.kanban).
	if v := strings.TrimSpace(os.Getenv("KANBAN_CONFIG_DIR")); v != "" {
		return v, nil
	}
	if v := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); v != "" {
		return filepath.Join(v, "kanban"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".kanban"), nil
}

func Path(dir string) string { return filepath.Join(dir, "config.json") }

// Load reads config.json from dir (Dir() when empty) and applies environment overrides.
// A missing file is not an error.
func Load(dir string) (*Config, error) {
	cfg, err := LoadFile(dir)
	if err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads only the file, for callers that write it back.
func LoadFile(dir string) (*Config, error) {
	if dir == "" {
		d, err := Dir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	cfg := &Config{dir: dir}
	b, err := os.ReadFile(Path(dir))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := json.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", Path(dir), err)
		}
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	str := map[string]*string{
		"KANBAN_BACKEND":                  &c.Backend,
		"KANBAN_SQLITE_PATH":              &c.SQLitePath,
		"KANBAN_REDIS_URL":                &c.RedisURL,
		"KANBAN_TABLES_CONNECTION_STRING": &c.TablesConnectionString,
		"KANBAN_BOARD":                    &c.Board,
		"KANBAN_LOG_LEVEL":                &c.LogLevel,
		"KANBAN_LISTEN_ADDR":              &c.ListenAddr,
	}
	for env, dst := range str {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			*dst = v
		}
	}
	if v := strings.TrimSpace(os.Getenv("KANBAN_POLL_INTERVAL")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("KANBAN_POLL_INTERVAL: %w", err)
		}
		c.PollInterval = Duration(d)
	}
	return nil
}

// Resolved returns a copy with defaults filled in.
func (c Config) Resolved() Config {
	if c.Backend == "" {
		c.Backend = BackendSQLite
	}
	if c.Board == "" {
		c.Board = DefaultBoard
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.PollInterval <= 0 {
		c.PollInterval = Duration(tablegw.DefaultPollInterval)
	}
	if c.SQLitePath == "" && c.dir != "" {
		c.SQLitePath = filepath.Join(c.dir, "board.sqlite")
	}
	return c
}

func (c Config) Validate() error {
	r := c.Resolved()
	switch r.Backend {
	case BackendSQLite:
		if r.SQLitePath == "" {
			return errors.New("sqlite backend: sqlitePath is not set")
		}
	case BackendRedis:
		if strings.TrimSpace(r.RedisURL) == "" {
			return errors.New("redis backend: redisUrl is not set (KANBAN_REDIS_URL)")
		}
	case BackendTables:
		if strings.TrimSpace(r.TablesConnectionString) == "" {
			return errors.New("tables backend: tablesConnectionString is not set (KANBAN_TABLES_CONNECTION_STRING)")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown backend %q (expected sqlite, redis, tables or memory)", r.Backend)
	}
	if _, err := log.ParseLevel(r.LogLevel); err != nil {
		return err
	}
	return nil
}

// Keys lists the settable keys in a stable order.
func Keys() []string {
	keys := make([]string, 0, len(setters))
	for k := range setters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var setters = map[string]func(c *Config, v string) error{
	"backend":                func(c *Config, v string) error { c.Backend = v; return nil },
	"sqlitePath":             func(c *Config, v string) error { c.SQLitePath = v; return nil },
	"redisUrl":               func(c *Config, v string) error { c.RedisURL = v; return nil },
	"tablesConnectionString": func(c *Config, v string) error { c.TablesConnectionString = v; return nil },
	"board":                  func(c *Config, v string) error { c.Board = v; return nil },
	"logLevel":               func(c *Config, v string) error { c.LogLevel = v; return nil },
	"listenAddr":             func(c *Config, v string) error { c.ListenAddr = v; return nil },
	"pollInterval": func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		c.PollInterval = Duration(d)
		return nil
	},
}

func (c *Config) Set(key, value string) error {
	set, ok := setters[key]
	if !ok {
		return fmt.Errorf("unknown config key %q (expected one of %s)", key, strings.Join(Keys(), ", "))
	}
	return set(c, strings.TrimSpace(value))
}

func atomicWriteFile(dir, tmpPattern, path string, b []byte, perm os.FileMode) error {
	f, err := os.CreateTemp(dir, tmpPattern)
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	_ = os.Chmod(tmp, perm)
	return os.Rename(tmp, path)
}

// Save writes the file-backed settings to the directory the config was loaded from.
func (c *Config) Save() error {
	dir := c.dir
	if dir == "" {
		d, err := Dir()
		if err != nil {
			return err
		}
		dir = d
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	// The file can carry connection secrets.
	return atomicWriteFile(dir, "config.json.*.tmp", Path(dir), b, 0o600)
}

// OpenGateway constructs the configured backend. Every backend also implements
// gateway.Subscriber.
func OpenGateway(ctx context.Context, c Config, logger log.FieldLogger) (gateway.Gateway, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	r := c.Resolved()
	var (
		gw  gateway.Gateway
		err error
	)
	switch r.Backend {
	case BackendRedis:
		gw, err = openOrNil(redisgw.Open(ctx, r.RedisURL, r.Board, logger))
	case BackendTables:
		gw, err = openOrNil(tablegw.Open(ctx, r.TablesConnectionString, r.Board, time.Duration(r.PollInterval), logger))
	case BackendMemory:
		gw = memgw.New(model.Board{})
	default:
		gw, err = openOrNil(sqlitegw.Open(ctx, r.SQLitePath, logger))
	}
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", r.Backend, err)
	}
	return gw, nil
}

// openOrNil keeps a failed constructor from yielding a non-nil interface around a nil pointer.
func openOrNil[G gateway.Gateway](g G, err error) (gateway.Gateway, error) {
	if err != nil {
		return nil, err
	}
	return g, nil
}
