package cli

import (
	"faltas/internal/config"
	"faltas/internal/sidecar"
	"faltas/pkg/logger"

	"github.com/rs/zerolog"
)

// CLIContext carries what every command needs.
type CLIContext struct {
	Config     *config.Config
	ConfigPath string
	Logger     *zerolog.Logger
	Verbose    bool
	Quiet      bool

	sink *logger.Sink
}

// NewCLIContext creates a CLI context.
func NewCLIContext(cfg *config.Config, configPath string, log *zerolog.Logger, verbose, quiet bool) *CLIContext {
	return &CLIContext{
		Config:     cfg,
		ConfigPath: configPath,
		Logger:     log,
		Verbose:    verbose,
		Quiet:      quiet,
	}
}

// Sink opens the backend output sink on first use.
func (c *CLIContext) Sink() (*logger.Sink, error) {
	if c.sink != nil {
		return c.sink, nil
	}
	sink, err := c.Config.OpenSink()
	if err != nil {
		return nil, err
	}
	c.sink = sink
	return sink, nil
}

// Supervisor builds a backend supervisor from the loaded configuration.
func (c *CLIContext) Supervisor(opts ...sidecar.Option) (*sidecar.Supervisor, error) {
	sink, err := c.Sink()
	if err != nil {
		return nil, err
	}
	base := []sidecar.Option{
		sidecar.WithLogger(c.Log().With().Str("component", "sidecar").Logger()),
		sidecar.WithSink(sink.Logger()),
	}
	return sidecar.NewSupervisor(c.Config.Backend.Sidecar(), append(base, opts...)...), nil
}

// Coordinator builds a lifecycle coordinator over a fresh process slot.
func (c *CLIContext) Coordinator() *sidecar.Coordinator {
	return sidecar.NewCoordinator(sidecar.NewProcessSlot(),
		sidecar.WithCoordinatorLogger(c.Log().With().Str("component", "lifecycle").Logger()),
		sidecar.WithReapTimeout(c.Config.Backend.ReapTimeout),
	)
}

// Close releases the sink.
func (c *CLIContext) Close() error {
	if c.sink != nil {
		err := c.sink.Close()
		c.sink = nil
		return err
	}
	return nil
}

// Log returns the command logger.
func (c *CLIContext) Log() *zerolog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return logger.Get()
}
