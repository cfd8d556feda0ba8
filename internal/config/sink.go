package config

import (
	"faltas/pkg/logger"
)

// OpenSink opens the destination for relayed backend output: the console in
// development, <log dir>/sidecar.log when packaged.
func (c *Config) OpenSink() (*logger.Sink, error) {
	sc := logger.SinkConfig{Packaged: c.Shell.Packaged}
	if c.Shell.Packaged {
		dir, err := c.Log.ResolveDir()
		if err != nil {
			return nil, err
		}
		sc.Dir = dir
	}
	return logger.NewSink(sc)
}
