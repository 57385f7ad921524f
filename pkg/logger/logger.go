// Package logger provides the process-wide logging facade.
//
// Components log through package-level printf-style functions and never
// carry a logger value. The sink is a file configured once at startup so
// the TUI never competes with log output for the terminal.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	mu   sync.Mutex
	log  = logrus.New()
	sink *os.File
)

func init() {
	// Until InitLog runs, logs are discarded rather than corrupting the
	// terminal the TUI owns.
	log.SetOutput(io.Discard)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
}

// InitLog opens the log file at path and routes all subsequent output to it.
func InitLog(path string) error {
	mu.Lock()
	defer mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file %q: %w", path, err)
	}
	if sink != nil {
		sink.Close()
	}
	sink = f
	log.SetOutput(f)
	return nil
}

// SetDebug toggles debug-level logging.
func SetDebug(enabled bool) {
	if enabled {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}
}

// FlushLog syncs and closes the log file. Call on shutdown.
func FlushLog() {
	mu.Lock()
	defer mu.Unlock()
	if sink != nil {
		sink.Sync()
		sink.Close()
		sink = nil
		log.SetOutput(io.Discard)
	}
}

// Debug logs a debug-level message.
func Debug(format string, args ...interface{}) {
	log.Debugf(format, args...)
}

// Info logs an info-level message.
func Info(format string, args ...interface{}) {
	log.Infof(format, args...)
}

// Warn logs a warning-level message.
func Warn(format string, args ...interface{}) {
	log.Warnf(format, args...)
}

// Error logs an error-level message.
func Error(format string, args ...interface{}) {
	log.Errorf(format, args...)
}
