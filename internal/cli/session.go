package cli

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"kanban-cli/internal/board"
	"kanban-cli/internal/config"
	"kanban-cli/internal/gateway"
	"kanban-cli/internal/logging"
	"kanban-cli/internal/model"
	"kanban-cli/internal/optimistic"
)

// session is one command's view of the board: resolved config, logger, backend and the
// sync controller loaded with the current board.
type session struct {
	cfg  config.Config
	log  *log.Logger
	gw   gateway.Gateway
	ctrl *optimistic.Controller

	logFile *os.File

	mu    sync.Mutex
	sinks []optimistic.ErrorHandler
}

// loadConfig reads config.json and the environment, then applies flag overrides.
func loadConfig(app *App) (config.Config, error) {
	cfg, err := config.Load(strings.TrimSpace(app.ConfigDir))
	if err != nil {
		return config.Config{}, err
	}
	overlay := map[string]string{
		"backend":                app.Backend,
		"sqlitePath":             app.SQLitePath,
		"redisUrl":               app.RedisURL,
		"tablesConnectionString": app.TablesConn,
		"board":                  app.Board,
		"logLevel":               app.LogLevel,
	}
	for k, v := range overlay {
		if strings.TrimSpace(v) == "" {
			continue
		}
		if err := cfg.Set(k, v); err != nil {
			return config.Config{}, err
		}
	}
	r := cfg.Resolved()
	if err := r.Validate(); err != nil {
		return config.Config{}, err
	}
	return r, nil
}

// openSession connects to the configured backend and loads the board. Logs go to
// logOut; a nil logOut sends them to kanban.log next to the config file.
func openSession(ctx context.Context, app *App, logOut io.Writer) (*session, error) {
	cfg, err := loadConfig(app)
	if err != nil {
		return nil, err
	}

	s := &session{cfg: cfg}
	if logOut == nil {
		logOut, err = s.openLogFile(app)
		if err != nil {
			return nil, err
		}
	}
	s.log, err = logging.New(cfg.LogLevel, logOut)
	if err != nil {
		s.closeLog()
		return nil, err
	}

	s.gw, err = config.OpenGateway(ctx, cfg, s.log)
	if err != nil {
		s.closeLog()
		return nil, err
	}
	s.ctrl = optimistic.New(board.New(model.Board{}), s.gw, optimistic.Options{
		Logger:  s.log,
		OnError: s.reportSyncError,
		Context: ctx,
	})
	if err := s.ctrl.Load(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *session) openLogFile(app *App) (io.Writer, error) {
	dir := strings.TrimSpace(app.ConfigDir)
	if dir == "" {
		d, err := config.Dir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(dir, "kanban.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	s.logFile = f
	return f, nil
}

// onSyncError adds a handler for rolled-back writes.
func (s *session) onSyncError(fn optimistic.ErrorHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks = append(s.sinks, fn)
}

func (s *session) reportSyncError(se *optimistic.SyncError) {
	s.log.WithFields(log.Fields{"op": se.Op, "kind": se.Kind, "id": se.ID}).WithError(se.Err).Warn("write rolled back")
	s.mu.Lock()
	sinks := append([]optimistic.ErrorHandler(nil), s.sinks...)
	s.mu.Unlock()
	for _, fn := range sinks {
		fn(se)
	}
}

// settle waits for the command's write and returns its rollback as an error.
func (s *session) settle(pw *optimistic.Pending) error {
	return pw.Wait()
}

func (s *session) Close() {
	if s.ctrl != nil {
		_ = s.ctrl.Wait()
	}
	if s.gw != nil {
		if err := s.gw.Close(); err != nil {
			s.log.WithError(err).Warn("close backend")
		}
	}
	s.closeLog()
}

func (s *session) closeLog() {
	if s.logFile != nil {
		_ = s.logFile.Close()
		s.logFile = nil
	}
}
