package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

// DefaultSinkFile is the file name of the relay sink in packaged builds.
const DefaultSinkFile = "sidecar.log"

// SinkConfig controls where relayed backend output is written.
type SinkConfig struct {
	// Packaged selects the append-only file under Dir instead of the console.
	Packaged bool

	// Dir is the per-user log directory, created on demand.
	Dir string

	// File overrides DefaultSinkFile.
	File string

	// Console receives lines in development builds; defaults to stdout.
	Console io.Writer
}

// Sink is the durable, append-only destination for backend output and
// client log lines. It is safe for concurrent producers.
type Sink struct {
	logger zerolog.Logger
	file   *fileWriter
	path   string
}

// fileWriter serializes writes to the sink file. Writes after Close fail with
// os.ErrClosed instead of racing the close.
type fileWriter struct {
	mu sync.Mutex
	f  *os.File
}

func (w *fileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return 0, os.ErrClosed
	}
	return w.f.Write(p)
}

func (w *fileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}

// NewSink opens the sink described by cfg.
func NewSink(cfg SinkConfig) (*Sink, error) {
	if !cfg.Packaged {
		out := cfg.Console
		if out == nil {
			out = os.Stdout
		}
		return &Sink{
			logger: zerolog.New(zerolog.ConsoleWriter{
				Out:        zerolog.SyncWriter(out),
				TimeFormat: TimeFormat,
			}).With().Timestamp().Logger(),
		}, nil
	}

	if cfg.Dir == "" {
		return nil, fmt.Errorf("log directory is required for a packaged sink")
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create log dir %s: %w", cfg.Dir, err)
	}

	name := cfg.File
	if name == "" {
		name = DefaultSinkFile
	}
	path := filepath.Join(cfg.Dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open sink %s: %w", path, err)
	}

	fw := &fileWriter{f: f}
	return &Sink{
		logger: zerolog.New(fw).With().Timestamp().Logger(),
		file:   fw,
		path:   path,
	}, nil
}

// NewWriterSink builds a sink over an arbitrary writer, one JSON object per line.
func NewWriterSink(w io.Writer) *Sink {
	return &Sink{logger: zerolog.New(zerolog.SyncWriter(w)).With().Timestamp().Logger()}
}

// Logger returns the zerolog logger backing the sink.
func (s *Sink) Logger() zerolog.Logger {
	return s.logger
}

// Path returns the sink file path, empty for console sinks.
func (s *Sink) Path() string {
	return s.path
}

// Close closes the sink file if one was opened. Lines logged afterwards are
// dropped.
func (s *Sink) Close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}
