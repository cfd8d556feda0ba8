// Package main contains the application lifecycle management.
package main

import (
	"context"
	"errors"
	"os"
	"sync"

	"faltas/gui/internal/backend"
	"faltas/internal/config"
	"faltas/internal/sidecar"
	"faltas/pkg/logger"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
	"github.com/wailsapp/wails/v2/pkg/runtime"
)

// App struct holds the application state and dependencies.
type App struct {
	ctx        context.Context
	cancel     context.CancelFunc
	cfg        *config.Config
	configPath string
	logger     zerolog.Logger

	sink        *logger.Sink
	supervisor  *sidecar.Supervisor
	coordinator *sidecar.Coordinator
	watcher     *config.Watcher
	status      *backend.StatusBoard
	launches    conc.WaitGroup

	readyOnce    sync.Once
	shutdownOnce sync.Once
}

// NewApp loads the configuration and prepares the backend supervisor.
// Nothing is launched until the window starts.
func NewApp(configPath string) (*App, error) {
	if configPath == "" {
		var err error
		configPath, err = config.DefaultConfigPath()
		if err != nil {
			return nil, err
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if err := backend.InitLogger(cfg); err != nil {
		return nil, err
	}
	log := backend.Logger

	sink, err := cfg.OpenSink()
	if err != nil {
		return nil, err
	}

	coordinator := sidecar.NewCoordinator(sidecar.NewProcessSlot(),
		sidecar.WithCoordinatorLogger(log.With().Str("component", "lifecycle").Logger()),
		sidecar.WithReapTimeout(cfg.Backend.ReapTimeout),
	)

	app := &App{
		ctx:        context.Background(),
		cfg:        cfg,
		configPath: configPath,
		logger:     log,
		sink:       sink,
		// The process enters the slot before the readiness probe, so a close
		// during the probe still terminates it.
		supervisor: sidecar.NewSupervisor(cfg.Backend.Sidecar(),
			sidecar.WithLogger(log.With().Str("component", "sidecar").Logger()),
			sidecar.WithSink(sink.Logger()),
			sidecar.WithOnSpawn(coordinator.Adopt),
		),
		coordinator: coordinator,
	}
	app.status = backend.NewStatusBoard(app.emitStatus)

	log.Info().
		Str("config", configPath).
		Bool("packaged", cfg.Shell.Packaged).
		Str("sink", sink.Path()).
		Msg("Faltas shell initialized")
	return app, nil
}

// startup is called when the app starts.
func (a *App) startup(ctx context.Context) {
	a.ctx, a.cancel = context.WithCancel(ctx)

	a.coordinator.WatchSignals(a.ctx, func(os.Signal) {
		runtime.Quit(a.ctx)
	})

	a.startConfigWatcher()

	// Launch blocks for up to the readiness timeout; the window stays responsive.
	a.launches.Go(a.launchBackend)
}

// launchBackend runs on its own goroutine.
func (a *App) launchBackend() {
	a.status.Set(backend.Status{State: backend.StateStarting})

	h, err := a.supervisor.Launch()
	if errors.Is(err, sidecar.ErrSlotSealed) {
		// The window is already closing; the backend has been killed.
		a.logger.Warn().Err(err).Msg("Backend launched after shutdown began")
		return
	}
	if a.coordinator.Slot().Sealed() {
		return
	}

	a.status.Set(backend.StatusFromLaunch(h, err, a.cfg.Shell.DevURL))
}

func (a *App) startConfigWatcher() {
	w, err := config.NewWatcher(a.configPath, func(cfg *config.Config) {
		logger.SetLevel(cfg.Log.Level)
		a.logger.Info().Str("level", cfg.Log.Level).Msg("Log level updated")
	})
	if err != nil {
		a.logger.Warn().Err(err).Msg("Config watcher unavailable")
		return
	}
	if err := w.Start(); err != nil {
		a.logger.Warn().Err(err).Msg("Config watcher unavailable")
		w.Stop()
		return
	}
	a.watcher = w
}

// domReady is called once the loading page has loaded.
func (a *App) domReady(ctx context.Context) {
	a.status.Republish()
}

// beforeClose is called when the user tries to close the window.
// The backend is terminated before the window is allowed to close.
func (a *App) beforeClose(ctx context.Context) (prevent bool) {
	return a.coordinator.BeforeClose(ctx)
}

// shutdown is called when the app terminates.
func (a *App) shutdown(ctx context.Context) {
	a.shutdownOnce.Do(func() {
		a.logger.Info().Msg("Faltas shell shutting down")

		a.coordinator.Shutdown(ctx)
		if a.cancel != nil {
			a.cancel()
		}
		if a.watcher != nil {
			a.watcher.Stop()
		}

		// The launch ends promptly once the slot is sealed: either its
		// process was just killed or it kills the one it spawns next.
		if rec := a.launches.WaitAndRecover(); rec != nil {
			a.logger.Error().Err(rec.AsError()).Msg("Backend launch panicked")
		}
		if err := a.sink.Close(); err != nil {
			a.logger.Error().Err(err).Msg("Failed to close backend log")
		}

		a.logger.Info().Msg("Faltas shell shutdown complete")
		_ = logger.Close()
	})
}

func (a *App) emitStatus(s backend.Status) {
	if a.cancel == nil {
		// Not started yet; domReady republishes.
		return
	}
	runtime.EventsEmit(a.ctx, backend.StatusEvent, s)
}

// Ready is called by the web UI once it has rendered.
func (a *App) Ready() {
	a.readyOnce.Do(func() {
		a.logger.Info().Msg("UI ready")
	})
}

// OpenExternalURL opens an http(s) URL in the system browser.
func (a *App) OpenExternalURL(rawURL string) error {
	u, err := backend.ValidateExternalURL(rawURL)
	if err != nil {
		a.logger.Warn().Err(err).Str("url", rawURL).Msg("Refused to open URL")
		return err
	}
	runtime.BrowserOpenURL(a.ctx, u)
	return nil
}

// LogClient forwards a log line from the web UI to the backend log.
func (a *App) LogClient(level, message string) {
	backend.LogClient(a.sink.Logger(), level, message)
}

// BackendStatus returns the latest backend status.
func (a *App) BackendStatus() backend.Status {
	return a.status.Get()
}
