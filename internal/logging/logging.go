// Package logging builds the logrus logger shared by the CLI, TUI and HTTP server.
package logging

import (
	"io"
	"strings"

	log "github.com/sirupsen/logrus"
)

// New returns a text logger at the named level. An empty level means info.
func New(level string, out io.Writer) (*log.Logger, error) {
	lvl := log.InfoLevel
	if s := strings.TrimSpace(level); s != "" {
		parsed, err := log.ParseLevel(s)
		if err != nil {
			return nil, err
		}
		lvl = parsed
	}
	logger := log.New()
	logger.SetOutput(out)
	logger.SetLevel(lvl)
	logger.SetFormatter(&log.TextFormatter{
		DisableColors:    true,
		FullTimestamp:    true,
		QuoteEmptyFields: true,
	})
	return logger, nil
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger
}
