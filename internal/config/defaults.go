package config

import (
	"github.com/spf13/viper"

	"faltas/internal/sidecar"
)

// Default application window settings.
const (
	DefaultTitle  = "Faltas"
	DefaultWidth  = 1280
	DefaultHeight = 800

	// DefaultRuntimeConstraint is the node version range the Next.js
	// standalone server supports.
	DefaultRuntimeConstraint = ">= 18.17.0"
)

// SetDefaults registers the default of every key.
func SetDefaults() {
	// Backend
	viper.SetDefault("backend.resources_dir", "")
	viper.SetDefault("backend.dir", sidecar.DefaultBackendDir)
	viper.SetDefault("backend.entry_file", sidecar.DefaultEntryFile)
	viper.SetDefault("backend.runtime", sidecar.DefaultRuntime)
	viper.SetDefault("backend.host", sidecar.LoopbackHost)
	viper.SetDefault("backend.preferred_port", sidecar.DefaultPreferredPort)
	viper.SetDefault("backend.fallback_port", sidecar.DefaultFallbackPort)
	viper.SetDefault("backend.ready_timeout", sidecar.DefaultReadyTimeout)
	viper.SetDefault("backend.probe_interval", sidecar.DefaultProbeInterval)
	viper.SetDefault("backend.reap_timeout", sidecar.DefaultReapTimeout)
	viper.SetDefault("backend.runtime_constraint", DefaultRuntimeConstraint)
	viper.SetDefault("backend.data_dir", "")
	viper.SetDefault("backend.cache_dir", "")

	// Shell
	viper.SetDefault("shell.packaged", true)
	viper.SetDefault("shell.dev_url", "")
	viper.SetDefault("shell.title", DefaultTitle)
	viper.SetDefault("shell.width", DefaultWidth)
	viper.SetDefault("shell.height", DefaultHeight)

	// Log
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "auto")
	viper.SetDefault("log.file", "")
	viper.SetDefault("log.dir", "")
}
