// Package logging builds the process logger. The TUI owns the terminal, so
// logs normally go to a file.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// Component names used for the "component" field.
const (
	ComponentApp     = "app"
	ComponentBackend = "backend"
	ComponentMCP     = "mcp"
)

// New returns a logger writing to file at the given level. File "-" logs to
// stderr; an empty file discards output. The returned closer releases the
// file.
func New(level, file string) (*logrus.Logger, io.Closer, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, nil, fmt.Errorf("log level: %w", err)
	}

	log := logrus.New()
	log.SetLevel(lvl)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: true})

	switch file {
	case "":
		log.SetOutput(io.Discard)
		return log, io.NopCloser(nil), nil
	case "-":
		log.SetOutput(os.Stderr)
		return log, io.NopCloser(nil), nil
	}

	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	log.SetOutput(f)
	return log, f, nil
}

// For returns a child logger tagged with component.
func For(log logrus.FieldLogger, component string) logrus.FieldLogger {
	return log.WithField("component", component)
}
