// Package logger provides structured logging functionality based on zerolog.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// LogConfig holds logger configuration.
type LogConfig struct {
	Level  string `json:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `json:"format" mapstructure:"format"` // auto, console, json
	File   string `json:"file" mapstructure:"file"`     // log file path, empty means no file
}

// TimeFormat is used by every console writer in the shell.
const TimeFormat = "2006-01-02T15:04:05-07:00"

var (
	globalLogger zerolog.Logger
	globalFilter *levelFilter
	logFile      *os.File
	mu           sync.RWMutex
	initialized  bool

	// isTerminal is swapped in tests.
	isTerminal = func(f *os.File) bool { return term.IsTerminal(int(f.Fd())) }
)

// parseLevel converts string level to zerolog.Level.
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// ParseLevel is the exported form of the level parser; unknown names map to info.
func ParseLevel(level string) zerolog.Level {
	return parseLevel(level)
}

// useConsole reports whether the given format resolves to human readable output.
// "auto" picks console output when stderr is attached to a terminal.
func useConsole(format string) bool {
	switch strings.ToLower(format) {
	case "console":
		return true
	case "json":
		return false
	default:
		return isTerminal(os.Stderr)
	}
}

// levelFilter drops events below a level shared by the global logger and
// every logger derived from it, so SetLevel reaches all of them.
type levelFilter struct {
	w     io.Writer
	level atomic.Int32
}

func newLevelFilter(w io.Writer, level zerolog.Level) *levelFilter {
	f := &levelFilter{w: w}
	f.level.Store(int32(level))
	return f
}

func (f *levelFilter) Write(p []byte) (int, error) {
	return f.w.Write(p)
}

// WriteLevel implements zerolog.LevelWriter.
func (f *levelFilter) WriteLevel(l zerolog.Level, p []byte) (int, error) {
	if l < zerolog.Level(f.level.Load()) {
		return len(p), nil
	}
	return f.w.Write(p)
}

// Init initializes the global logger with the given configuration.
// The level is applied to the global logger's output only, so loggers built
// elsewhere (the relay sink in particular) are not filtered by it.
func Init(config LogConfig) error {
	mu.Lock()
	defer mu.Unlock()

	var writers []io.Writer

	if useConsole(config.Format) {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: TimeFormat,
		})
	} else {
		writers = append(writers, os.Stderr)
	}

	if config.File != "" {
		f, err := os.OpenFile(config.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return fmt.Errorf("open log file %s: %w", config.File, err)
		}
		if logFile != nil {
			_ = logFile.Close()
		}
		logFile = f
		writers = append(writers, f)
	}

	var output io.Writer
	if len(writers) == 1 {
		output = writers[0]
	} else {
		output = io.MultiWriter(writers...)
	}

	globalFilter = newLevelFilter(output, parseLevel(config.Level))
	globalLogger = zerolog.New(globalFilter).
		With().Timestamp().Caller().Logger()
	initialized = true
	return nil
}

// SetLevel changes the level of the global logger and of every logger
// derived from it.
func SetLevel(level string) {
	mu.RLock()
	defer mu.RUnlock()
	if globalFilter != nil {
		globalFilter.level.Store(int32(parseLevel(level)))
	}
}

// Get returns the global logger instance.
func Get() *zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if !initialized {
		// Return a default logger if not initialized
		l := zerolog.New(os.Stderr).With().Timestamp().Logger()
		return &l
	}
	l := globalLogger
	return &l
}

// With creates a new logger with additional fields.
func With(fields map[string]any) *zerolog.Logger {
	ctx := Get().With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	l := ctx.Logger()
	return &l
}

// Close closes the log file if opened.
func Close() error {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		err := logFile.Close()
		logFile = nil
		return err
	}
	return nil
}

// Debug returns a debug level event.
func Debug() *zerolog.Event {
	return Get().Debug()
}

// Info returns an info level event.
func Info() *zerolog.Event {
	return Get().Info()
}

// Warn returns a warn level event.
func Warn() *zerolog.Event {
	return Get().Warn()
}

// Error returns an error level event.
func Error() *zerolog.Event {
	return Get().Error()
}

// Debugf logs a formatted debug message.
func Debugf(format string, args ...any) {
	Get().Debug().Msgf(format, args...)
}

// Infof logs a formatted info message.
func Infof(format string, args ...any) {
	Get().Info().Msgf(format, args...)
}

// Warnf logs a formatted warn message.
func Warnf(format string, args ...any) {
	Get().Warn().Msgf(format, args...)
}

// Errorf logs a formatted error message.
func Errorf(format string, args ...any) {
	Get().Error().Msgf(format, args...)
}
