package logger

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

// Environment variables configuring the log file path and level.
const (
	envLogPath  = "WEB_MCP_LOG"
	envLogLevel = "WEB_MCP_LOG_LEVEL"
)

var (
	std           = logrus.New()
	logFile       *os.File
	isInitialized bool
	mu            sync.Mutex
)

// InitFromEnv initializes the logger using WEB_MCP_LOG or a default path.
func InitFromEnv() error {
	path := os.Getenv(envLogPath)
	if path == "" {
		// Default to the directory where the executable is located
		if exePath, err := os.Executable(); err == nil {
			path = filepath.Join(filepath.Dir(exePath), "web-mcp.log")
		} else {
			path = "./web-mcp.log"
		}
	}
	if err := Init(path); err != nil {
		return err
	}
	if lvl := os.Getenv(envLogLevel); lvl != "" {
		return SetLevel(lvl)
	}
	return nil
}

// EnableVerbose lowers the level to debug so verbose cache diagnostics are
// written. An explicit WEB_MCP_LOG_LEVEL wins.
func EnableVerbose() error {
	if os.Getenv(envLogLevel) != "" {
		return nil
	}
	return SetLevel("debug")
}

// Init initializes the logger to write to the provided file path.
// It creates parent directories if needed and opens the file in append mode.
func Init(path string) error {
	mu.Lock()
	defer mu.Unlock()
	if isInitialized {
		return nil
	}
	if err := ensureParentDir(path); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	logFile = f
	setOutput(f, isatty.IsTerminal(f.Fd()))
	isInitialized = true
	return nil
}

// SetOutput sends log lines to w instead of a file. Useful for CLIs and tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	tty := false
	if f, ok := w.(*os.File); ok {
		tty = isatty.IsTerminal(f.Fd())
	}
	setOutput(w, tty)
	isInitialized = true
}

func setOutput(w io.Writer, tty bool) {
	std.SetOutput(w)
	std.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006/01/02 15:04:05.000000",
		DisableColors:   !tty,
	})
}

// SetLevel parses a logrus level name ("debug", "info", ...) and applies it.
func SetLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	std.SetLevel(lvl)
	return nil
}

// Close closes the underlying log file, if open.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		err := logFile.Close()
		logFile = nil
		isInitialized = false
		std.SetOutput(io.Discard)
		return err
	}
	return nil
}

// Named returns a logger whose lines carry the given component name.
func Named(name string) *logrus.Entry {
	ensure()
	return std.WithField("logger", name)
}

// Printf logs a formatted message at info level.
func Printf(format string, args ...any) { ensure(); std.Infof(format, args...) }

// Debugf logs diagnostics hidden at the default level.
func Debugf(format string, args ...any) { ensure(); std.Debugf(format, args...) }

// Infof logs informational messages.
func Infof(format string, args ...any) { ensure(); std.Infof(format, args...) }

// Warnf logs warnings.
func Warnf(format string, args ...any) { ensure(); std.Warnf(format, args...) }

// Errorf logs errors.
func Errorf(format string, args ...any) { ensure(); std.Errorf(format, args...) }

func ensure() {
	mu.Lock()
	ready := isInitialized
	mu.Unlock()
	if !ready {
		// Fallback: initialize with default if not already.
		_ = InitFromEnv()
	}
}

func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
