package backend

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"faltas/internal/config"
	"faltas/pkg/logger"
)

// LogFile is the shell's own log in packaged builds.
const LogFile = "gui.log"

// Logger is the global logger for the GUI application.
var Logger = zerolog.Nop()

// InitLogger initializes the GUI logger. Packaged builds log to gui.log in
// the log directory unless log.file is set.
func InitLogger(cfg *config.Config) error {
	file := cfg.Log.File
	if file == "" && cfg.Shell.Packaged {
		dir, err := cfg.Log.ResolveDir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
		file = filepath.Join(dir, LogFile)
	}

	if err := logger.Init(logger.LogConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   file,
	}); err != nil {
		return err
	}

	Logger = logger.Get().With().Str("component", "gui").Logger()
	return nil
}

// LogInfo logs an info message.
func LogInfo(msg string) {
	Logger.Info().Msg(msg)
}

// LogError logs an error message.
func LogError(err error, msg string) {
	Logger.Error().Err(err).Msg(msg)
}

// LogStatus logs a backend status change.
func LogStatus(s Status) {
	event := Logger.Info()
	if s.State == StateDegraded || s.State == StateUnavailable {
		event = Logger.Warn()
	}
	event.Str("state", string(s.State)).
		Str("url", s.URL).
		Int("pid", s.PID).
		Str("message", s.Message).
		Msg("Backend status changed")
}
