// Package web serves the board over a JSON HTTP API and pushes every change to
// websocket clients.
package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"

	"kanban-cli/internal/model"
	"kanban-cli/internal/optimistic"
)

// maxBodySize bounds request bodies; boards are small.
const maxBodySize = 1 << 20

type Server struct {
	ctrl *optimistic.Controller
	log  log.FieldLogger
	e    *echo.Echo
	hub  *hub

	stopWatch func()
}

// New builds the server and starts relaying board changes to websocket clients.
// Call Close to stop relaying.
func New(ctrl *optimistic.Controller, logger log.FieldLogger) *Server {
	if logger == nil {
		logger = log.StandardLogger()
	}
	s := &Server{
		ctrl: ctrl,
		log:  logger.WithField("component", "web"),
		e:    echo.New(),
		hub:  newHub(),
	}
	s.e.HideBanner = true
	s.e.HidePort = true
	s.e.Use(middleware.Recover())
	s.e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))
	s.e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod: true,
		LogURI:    true,
		LogStatus: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.log.WithFields(log.Fields{"method": v.Method, "uri": v.URI, "status": v.Status}).Debug("request")
			return nil
		},
	}))
	s.register()

	s.stopWatch = ctrl.State().OnChange(func(b model.Board) {
		s.hub.broadcast(boardMessage(b))
	})
	return s
}

func (s *Server) register() {
	s.e.GET("/healthz", s.healthz)
	s.e.GET("/ws", s.handleWS)

	api := s.e.Group("/api")
	api.GET("/board", s.getBoard)
	api.POST("/columns", s.createColumn)
	api.PATCH("/columns/:id", s.updateColumn)
	api.DELETE("/columns/:id", s.deleteColumn)
	api.POST("/columns/:id/move", s.moveColumn)
	api.POST("/tasks", s.createTask)
	api.GET("/tasks/:id", s.getTask)
	api.PATCH("/tasks/:id", s.updateTask)
	api.DELETE("/tasks/:id", s.deleteTask)
	api.POST("/tasks/:id/toggle", s.toggleTask)
	api.POST("/tasks/:id/move", s.moveTask)
	api.POST("/drag", s.drag)
}

func (s *Server) Handler() http.Handler { return s.e }

// ReportSyncError forwards a rolled-back write to websocket clients. It is meant to be
// the controller's OnError handler.
func (s *Server) ReportSyncError(se *optimistic.SyncError) {
	s.hub.broadcast(errorMessage(se))
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.e.Start(addr) }()
	s.log.WithField("addr", addr).Info("listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.e.Shutdown(shutdownCtx)
}

// Close stops relaying changes and disconnects websocket clients.
func (s *Server) Close() {
	s.stopWatch()
	s.hub.close()
}
